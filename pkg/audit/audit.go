package audit

import (
	"context"
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/skyalgo/pkg/model"
	"github.com/m-mizutani/skyalgo/pkg/utils/logging"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/topdown/print"
)

//go:embed policy/audit.rego
var defaultPolicy string

const warningQuery = "data.audit.warning"

// regoPrintHook forwards Rego print() output to the context logger
type regoPrintHook struct {
	ctx context.Context
}

func (h *regoPrintHook) Print(_ print.Context, message string) error {
	logging.From(h.ctx).Debug("rego print", "message", message)
	return nil
}

// Auditor checks a report against the trading rules the prompt asks the model to follow.
// Its findings are advisory only.
type Auditor struct {
	query *rego.PreparedEvalQuery
}

type config struct {
	policyDir string
}

// Option is a functional option for Auditor
type Option func(*config)

// WithPolicyDir loads *.rego files from dir instead of the built-in policy
func WithPolicyDir(dir string) Option {
	return func(c *config) {
		c.policyDir = dir
	}
}

// New prepares the warning query
func New(ctx context.Context, opts ...Option) (*Auditor, error) {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	modules, err := loadModules(cfg.policyDir)
	if err != nil {
		return nil, err
	}

	options := make([]func(*rego.Rego), 0, len(modules)+2)
	options = append(options, rego.Query(warningQuery), rego.EnablePrintStatements(true))
	options = append(options, modules...)

	prepared, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare audit query", goerr.V("query", warningQuery))
	}

	return &Auditor{query: &prepared}, nil
}

// loadModules reads every Rego file in policyDir. An empty policyDir, or one without any
// Rego file, falls back to the embedded policy.
func loadModules(policyDir string) ([]func(*rego.Rego), error) {
	builtin := []func(*rego.Rego){rego.Module("audit.rego", defaultPolicy)}
	if policyDir == "" {
		return builtin, nil
	}

	files, err := filepath.Glob(filepath.Join(policyDir, "*.rego"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to glob policy files", goerr.V("dir", policyDir))
	}
	if len(files) == 0 {
		return builtin, nil
	}

	modules := make([]func(*rego.Rego), 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", file))
		}
		modules = append(modules, rego.Module(file, string(data)))
	}
	return modules, nil
}

// Audit returns the warnings raised for analysis, sorted
func (a *Auditor) Audit(ctx context.Context, analysis *model.TradingAnalysis) ([]string, error) {
	if analysis == nil {
		return nil, nil
	}

	raw, err := json.Marshal(analysis)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal analysis")
	}
	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal analysis")
	}

	levels, _ := ParseLevels(analysis.FinalTradingDecision)
	input := map[string]any{
		"analysis": tree,
		"levels":   levels.regoInput(),
	}

	rs, err := a.query.Eval(ctx, rego.EvalInput(input), rego.EvalPrintHook(&regoPrintHook{ctx: ctx}))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to evaluate audit policy")
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return nil, nil
	}

	values, ok := rs[0].Expressions[0].Value.([]any)
	if !ok {
		return nil, goerr.New("audit warning must be a set of strings",
			goerr.V("value", rs[0].Expressions[0].Value))
	}

	warnings := make([]string, 0, len(values))
	for _, v := range values {
		msg, ok := v.(string)
		if !ok {
			return nil, goerr.New("audit warning must be a string", goerr.V("value", v))
		}
		warnings = append(warnings, msg)
	}
	sort.Strings(warnings)

	return warnings, nil
}

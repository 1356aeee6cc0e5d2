package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/skyalgo/pkg/adapter"
	"github.com/m-mizutani/skyalgo/pkg/audit"
	"github.com/m-mizutani/skyalgo/pkg/repository"
	"github.com/m-mizutani/skyalgo/pkg/usecase/analysis"
	"github.com/m-mizutani/skyalgo/pkg/usecase/session"
	"github.com/m-mizutani/skyalgo/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

const (
	storeFile      = "file"
	storeMemory    = "memory"
	storeFirestore = "firestore"
	storeGCS       = "gcs"
)

// config holds configuration values
type config struct {
	// Logging
	logLevel  string
	logFormat string

	// Repository
	store      string
	dir        string
	project    string
	database   string
	collection string
	bucket     string
	prefix     string

	// Adapters
	geminiAPIKey   string
	geminiProject  string
	geminiLocation string
	model          string
	instrument     string

	// Session
	baseURL   string
	policyDir string
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("SKYALGO_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json)",
			Value:       string(logging.FormatConsole),
			Sources:     cli.EnvVars("SKYALGO_LOG_FORMAT"),
			Destination: &cfg.logFormat,
		},
	}
}

// storeFlags returns flags selecting where history and labels are persisted
func storeFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "store",
			Usage:       "Record store (file, memory, firestore, gcs)",
			Value:       storeFile,
			Sources:     cli.EnvVars("SKYALGO_STORE"),
			Destination: &cfg.store,
		},
		&cli.StringFlag{
			Name:        "dir",
			Usage:       "Directory of the file store (default: ~/.skyalgo)",
			Sources:     cli.EnvVars("SKYALGO_DIR"),
			Destination: &cfg.dir,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
		&cli.StringFlag{
			Name:        "collection",
			Usage:       "Firestore collection holding records",
			Sources:     cli.EnvVars("SKYALGO_FIRESTORE_COLLECTION"),
			Destination: &cfg.collection,
		},
		&cli.StringFlag{
			Name:        "bucket",
			Usage:       "Cloud Storage bucket of the gcs store",
			Sources:     cli.EnvVars("SKYALGO_BUCKET"),
			Destination: &cfg.bucket,
		},
		&cli.StringFlag{
			Name:        "prefix",
			Usage:       "Object prefix in the Cloud Storage bucket",
			Sources:     cli.EnvVars("SKYALGO_BUCKET_PREFIX"),
			Destination: &cfg.prefix,
		},
	}
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-api-key",
			Usage:       "Gemini API key",
			Sources:     cli.EnvVars("GEMINI_API_KEY", "API_KEY"),
			Destination: &cfg.geminiAPIKey,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini on Vertex AI",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini on Vertex AI",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "model",
			Usage:       "Gemini model name",
			Sources:     cli.EnvVars("SKYALGO_MODEL"),
			Destination: &cfg.model,
		},
		&cli.StringFlag{
			Name:        "instrument",
			Usage:       "Instrument the entered price refers to",
			Value:       analysis.DefaultInstrument,
			Sources:     cli.EnvVars("SKYALGO_INSTRUMENT"),
			Destination: &cfg.instrument,
		},
	}
}

// sessionFlags returns flags shaping share links and the report audit
func sessionFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "base-url",
			Usage:       "Page URL share links point to",
			Sources:     cli.EnvVars("SKYALGO_BASE_URL"),
			Destination: &cfg.baseURL,
		},
		&cli.StringFlag{
			Name:        "policy-dir",
			Usage:       "Directory of Rego policies auditing reports (default: builtin)",
			Sources:     cli.EnvVars("SKYALGO_POLICY_DIR"),
			Destination: &cfg.policyDir,
		},
	}
}

// withLogger attaches the configured logger to ctx and makes it the default
func (cfg *config) withLogger(ctx context.Context, w io.Writer) context.Context {
	logger := logging.NewWithFormat(cfg.logLevel, logging.Format(cfg.logFormat), w)
	logging.SetDefault(logger)
	return logging.With(ctx, logger)
}

// newRepository creates the configured record store. The returned function releases it.
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, func(), error) {
	noop := func() {}

	switch cfg.store {
	case storeMemory:
		return repository.NewMemory(), noop, nil

	case storeFile, "":
		dir := cfg.dir
		if dir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, nil, goerr.Wrap(err, "failed to resolve home directory")
			}
			dir = filepath.Join(home, ".skyalgo")
		}
		repo, err := repository.NewFile(dir)
		if err != nil {
			return nil, nil, err
		}
		return repo, noop, nil

	case storeFirestore:
		if cfg.project == "" {
			return nil, nil, goerr.New("project is required")
		}
		if cfg.database == "" {
			return nil, nil, goerr.New("database is required")
		}
		repo, err := repository.NewFirestore(ctx, cfg.project, cfg.database, repository.WithCollection(cfg.collection))
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to create repository")
		}
		return repo, func() {
			if err := repo.Close(); err != nil {
				logging.From(ctx).Warn("failed to close firestore", "error", err)
			}
		}, nil

	case storeGCS:
		storage, err := cfg.newStorage(ctx)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewBucket(storage), noop, nil

	default:
		return nil, nil, goerr.New("unknown store", goerr.V("store", cfg.store))
	}
}

// newStorage creates a new Storage adapter instance
func (cfg *config) newStorage(ctx context.Context) (adapter.Storage, error) {
	if cfg.bucket == "" {
		return nil, goerr.New("bucket name is required")
	}

	storage, err := adapter.NewStorage(ctx, cfg.bucket, adapter.WithObjectPrefix(cfg.prefix))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage")
	}
	return storage, nil
}

// credential returns the startup Gemini credential. It may be empty; the server accepts
// one later.
func (cfg *config) credential() adapter.Credential {
	return adapter.Credential{
		APIKey:   cfg.geminiAPIKey,
		Project:  cfg.geminiProject,
		Location: cfg.geminiLocation,
	}
}

// newController wires the analysis client, the auditor and the repository into a session
func (cfg *config) newController(ctx context.Context, repo repository.Repository) (*session.Controller, error) {
	creds := session.NewCredentials(cfg.credential())

	client := analysis.New(creds,
		analysis.WithModel(cfg.model),
		analysis.WithInstrument(cfg.instrument),
	)

	auditor, err := audit.New(ctx, audit.WithPolicyDir(cfg.policyDir))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create auditor")
	}

	opts := []session.Option{
		session.WithCredentials(creds),
		session.WithAuditor(auditor),
	}
	if cfg.baseURL != "" {
		opts = append(opts, session.WithBaseURL(cfg.baseURL))
	}

	return session.New(repo, client, opts...), nil
}

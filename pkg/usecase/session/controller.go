package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/skyalgo/pkg/adapter"
	"github.com/m-mizutani/skyalgo/pkg/model"
	"github.com/m-mizutani/skyalgo/pkg/repository"
	"github.com/m-mizutani/skyalgo/pkg/utils/logging"
)

// Analyzer produces a report from chart images and the current price
type Analyzer interface {
	Analyze(ctx context.Context, images []*model.EncodedImage, price string) (*model.TradingAnalysis, error)
}

// Auditor reviews a report and returns advisory warnings
type Auditor interface {
	Audit(ctx context.Context, analysis *model.TradingAnalysis) ([]string, error)
}

// Controller owns the history log, the displayed analysis and the credential state
type Controller struct {
	repo     repository.Repository
	analyzer Analyzer
	creds    *Credentials
	auditor  Auditor
	now      func() time.Time
	newID    func() model.HistoryEntryID
	baseURL  string

	// baseURLSet is false while baseURL is the localhost default
	baseURLSet bool

	mu      sync.Mutex
	history []*model.HistoryEntry
	loaded  bool
	display *Display

	busy atomic.Bool
}

// Option is a functional option for Controller
type Option func(*Controller)

// WithCredentials shares the credential state with the analyzer
func WithCredentials(creds *Credentials) Option {
	return func(c *Controller) {
		c.creds = creds
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

func WithIDGenerator(newID func() model.HistoryEntryID) Option {
	return func(c *Controller) {
		c.newID = newID
	}
}

// WithAuditor logs rule warnings for each new analysis
func WithAuditor(auditor Auditor) Option {
	return func(c *Controller) {
		c.auditor = auditor
	}
}

// WithBaseURL sets the page URL share links point to
func WithBaseURL(baseURL string) Option {
	return func(c *Controller) {
		if baseURL != "" {
			c.baseURL = baseURL
			c.baseURLSet = true
		}
	}
}

// New creates a controller. History is loaded lazily on first use or by Boot.
func New(repo repository.Repository, analyzer Analyzer, opts ...Option) *Controller {
	c := &Controller{
		repo:     repo,
		analyzer: analyzer,
		creds:    NewCredentials(adapter.Credential{}),
		now:      time.Now,
		newID:    model.NewHistoryEntryID,
		baseURL:  "http://localhost:8080/",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL is the page URL share links point to
func (c *Controller) BaseURL() string {
	return c.baseURL
}

// HasBaseURL reports whether a base URL was configured. Without one, callers that know the
// page URL (e.g. from an HTTP request) should pass it to EncodeShareLink.
func (c *Controller) HasBaseURL() bool {
	return c.baseURLSet
}

// Boot resolves what a client shows on load. A view parameter wins over everything: the
// shared entry is decoded into a read-only display and nothing else is loaded.
func (c *Controller) Boot(ctx context.Context, query url.Values) (*Startup, error) {
	if query.Has(ViewParam) {
		entry, err := DecodeShareLink(query.Get(ViewParam))
		if err != nil {
			logging.From(ctx).Warn("failed to load shared analysis", "error", err)
			return &Startup{
				Mode:    ModeReadOnly,
				Error:   err,
				Message: UserMessage(err),
			}, nil
		}

		return &Startup{
			Mode: ModeReadOnly,
			Display: &Display{
				Analysis:  &entry.TradingAnalysis,
				Timestamp: entry.Timestamp,
				ReadOnly:  true,
			},
		}, nil
	}

	history, err := c.LoadHistory(ctx)
	if err != nil {
		return nil, err
	}

	return &Startup{
		Mode:            ModeInteractive,
		Labels:          c.Labels(ctx),
		Admin:           query.Get("admin") == "true",
		CredentialReady: c.creds.Ready(),
		History:         history,
		Display:         c.Display(),
	}, nil
}

// Labels returns the stored page labels, or the defaults when none are stored or the
// record is unreadable.
func (c *Controller) Labels(ctx context.Context) model.Labels {
	labels := model.DefaultLabels()

	var stored model.Labels
	found, err := repository.LoadJSON(ctx, c.repo, repository.LabelsKey, &stored)
	if err != nil {
		logging.From(ctx).Warn("failed to load labels", "error", err)
		return labels
	}
	if found {
		return stored
	}
	return labels
}

// LoadHistory reads the persisted log. A corrupt record is logged and treated as empty.
func (c *Controller) LoadHistory(ctx context.Context) ([]*model.HistoryEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.loadLocked(ctx); err != nil {
		return nil, err
	}
	return copyHistory(c.history), nil
}

func (c *Controller) loadLocked(ctx context.Context) error {
	var records []json.RawMessage
	_, err := repository.LoadJSON(ctx, c.repo, repository.HistoryKey, &records)
	if err != nil {
		if !errors.Is(err, repository.ErrRecordCorrupt) {
			return goerr.Wrap(err, "failed to load history")
		}
		logging.From(ctx).Error("history record is corrupt, starting empty", "error", err)
		records = nil
	}

	// entries are checked one by one so a single bad element does not drop the whole log
	var history []*model.HistoryEntry
	for i, raw := range records {
		entry, err := model.ParseHistoryEntry(raw)
		if err != nil {
			logging.From(ctx).Error("skipping corrupt history entry", "index", i, "error", err)
			continue
		}
		history = append(history, entry)
	}

	c.history = history
	c.loaded = true
	return nil
}

func (c *Controller) ensureLoadedLocked(ctx context.Context) error {
	if c.loaded {
		return nil
	}
	return c.loadLocked(ctx)
}

// History returns the cached log, newest first
func (c *Controller) History(ctx context.Context) ([]*model.HistoryEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureLoadedLocked(ctx); err != nil {
		return nil, err
	}
	return copyHistory(c.history), nil
}

func copyHistory(history []*model.HistoryEntry) []*model.HistoryEntry {
	copied := make([]*model.HistoryEntry, len(history))
	copy(copied, history)
	return copied
}

// RunAnalysis validates input, asks the analyzer for a report and records it. A failure
// leaves history and display as they were.
func (c *Controller) RunAnalysis(ctx context.Context, images []*model.EncodedImage, price string) (*model.HistoryEntry, error) {
	if len(images) == 0 {
		return nil, goerr.Wrap(model.ErrNoImages, "no chart image given")
	}
	if strings.TrimSpace(price) == "" {
		return nil, goerr.Wrap(model.ErrNoPrice, "no price given")
	}
	if len(images) > model.MaxImages {
		return nil, goerr.Wrap(model.ErrTooManyImages, "too many chart images",
			goerr.V("count", len(images)),
			goerr.V("max", model.MaxImages))
	}

	if !c.busy.CompareAndSwap(false, true) {
		return nil, goerr.Wrap(model.ErrAnalysisInProgress, "analysis rejected")
	}
	defer c.busy.Store(false)

	logger := logging.From(ctx)

	analysis, err := c.analyzer.Analyze(ctx, images, price)
	if err != nil {
		if errors.Is(err, model.ErrPermissionDenied) {
			c.creds.Invalidate()
		}
		logger.Error("analysis failed", "error", err)
		return nil, err
	}

	c.audit(ctx, analysis)

	entry := model.NewHistoryEntry(analysis, c.newID(), c.now())

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureLoadedLocked(ctx); err != nil {
		return nil, err
	}

	updated := model.PrependHistory(c.history, entry)
	if err := repository.SaveJSON(ctx, c.repo, repository.HistoryKey, updated); err != nil {
		return nil, goerr.Wrap(err, "failed to persist history", goerr.V("id", entry.ID))
	}
	c.history = updated
	c.display = &Display{
		Analysis:  &entry.TradingAnalysis,
		Timestamp: entry.Timestamp,
	}

	logger.Info("analysis recorded",
		"id", entry.ID,
		"bias", entry.FinalTradingDecision.MarketBias,
		"history", len(updated))

	return entry, nil
}

func (c *Controller) audit(ctx context.Context, analysis *model.TradingAnalysis) {
	if c.auditor == nil {
		return
	}

	logger := logging.From(ctx)
	warnings, err := c.auditor.Audit(ctx, analysis)
	if err != nil {
		logger.Warn("failed to audit analysis", "error", err)
		return
	}
	for _, w := range warnings {
		logger.Warn("analysis rule warning", "warning", w)
	}
}

// Busy reports whether an analysis is running
func (c *Controller) Busy() bool {
	return c.busy.Load()
}

// ClearHistory erases the persisted log. A display opened from history is cleared too.
func (c *Controller) ClearHistory(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.repo.DeleteRecord(ctx, repository.HistoryKey); err != nil {
		return goerr.Wrap(err, "failed to delete history")
	}

	c.history = nil
	c.loaded = true
	if c.display.FromHistory() {
		c.display = nil
	}

	logging.From(ctx).Info("history cleared")
	return nil
}

// Entry looks up a history entry without changing the display
func (c *Controller) Entry(ctx context.Context, id model.HistoryEntryID) (*model.HistoryEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureLoadedLocked(ctx); err != nil {
		return nil, err
	}
	return c.findLocked(id)
}

func (c *Controller) findLocked(id model.HistoryEntryID) (*model.HistoryEntry, error) {
	for _, entry := range c.history {
		if entry.ID == id {
			return entry, nil
		}
	}
	return nil, goerr.Wrap(model.ErrHistoryNotFound, "no such history entry", goerr.V("id", id))
}

// ViewHistoryEntry shows a stored entry
func (c *Controller) ViewHistoryEntry(ctx context.Context, id model.HistoryEntryID) (*model.HistoryEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureLoadedLocked(ctx); err != nil {
		return nil, err
	}
	entry, err := c.findLocked(id)
	if err != nil {
		return nil, err
	}

	c.display = &Display{
		Analysis:  &entry.TradingAnalysis,
		EntryID:   entry.ID,
		Timestamp: entry.Timestamp,
	}
	return entry, nil
}

// ResetDisplay clears the displayed analysis
func (c *Controller) ResetDisplay() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.display = nil
}

// Display returns a copy of the displayed analysis, or nil
func (c *Controller) Display() *Display {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.display.clone()
}

// EncodeShareLink builds a share link for entry under baseURL, or under the controller's
// base URL when baseURL is empty.
func (c *Controller) EncodeShareLink(entry *model.HistoryEntry, baseURL string) (string, error) {
	if baseURL == "" {
		baseURL = c.baseURL
	}
	return EncodeShareLink(entry, baseURL)
}

// ShareLink builds a share link for a stored entry
func (c *Controller) ShareLink(ctx context.Context, id model.HistoryEntryID) (string, error) {
	entry, err := c.Entry(ctx, id)
	if err != nil {
		return "", err
	}
	return c.EncodeShareLink(entry, "")
}

// DecodeShareLink decodes a view value. Controller state is not touched.
func (c *Controller) DecodeShareLink(value string) (*model.HistoryEntry, error) {
	return DecodeShareLink(value)
}

// SetCredential replaces the credential and marks it ready
func (c *Controller) SetCredential(cred adapter.Credential) {
	c.creds.Set(cred)
}

func (c *Controller) CredentialReady() bool {
	return c.creds.Ready()
}

package session

import (
	"github.com/m-mizutani/skyalgo/pkg/model"
)

// Display is the analysis currently shown to the user
type Display struct {
	Analysis  *model.TradingAnalysis `json:"analysis"`
	EntryID   model.HistoryEntryID   `json:"entryId,omitempty"`
	Timestamp string                 `json:"timestamp,omitempty"`
	ReadOnly  bool                   `json:"readOnly"`
}

// FromHistory reports whether the display was opened from the history log
func (d *Display) FromHistory() bool {
	return d != nil && d.EntryID != ""
}

func (d *Display) clone() *Display {
	if d == nil {
		return nil
	}
	copied := *d
	return &copied
}

// Mode is how a session starts
type Mode string

const (
	// ModeInteractive allows analysis and history operations
	ModeInteractive Mode = "interactive"
	// ModeReadOnly shows a shared report and nothing else
	ModeReadOnly Mode = "read_only"
)

// Startup is the state a client renders on load
type Startup struct {
	Mode            Mode                  `json:"mode"`
	Labels          model.Labels          `json:"labels"`
	Admin           bool                  `json:"admin"`
	CredentialReady bool                  `json:"credentialReady"`
	History         []*model.HistoryEntry `json:"history"`
	Display         *Display              `json:"display,omitempty"`
	Error           error                 `json:"-"`
	Message         string                `json:"message,omitempty"`
}

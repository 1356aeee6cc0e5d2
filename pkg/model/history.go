package model

import (
	"time"

	"github.com/google/uuid"
)

// HistoryCapacity bounds the persisted history log.
const HistoryCapacity = 50

// TimestampFormat is the ISO-8601 layout used for HistoryEntry.Timestamp.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

type HistoryEntryID string

// NewHistoryEntryID generates a new unique HistoryEntryID
func NewHistoryEntryID() HistoryEntryID {
	return HistoryEntryID(uuid.New().String())
}

// HistoryEntry is a captured analysis. It serializes flat: the report sections sit next
// to id and timestamp.
type HistoryEntry struct {
	TradingAnalysis
	ID        HistoryEntryID `json:"id"`
	Timestamp string         `json:"timestamp"`
}

// NewHistoryEntry tags an analysis with an id and the capture time.
func NewHistoryEntry(analysis *TradingAnalysis, id HistoryEntryID, capturedAt time.Time) *HistoryEntry {
	return &HistoryEntry{
		TradingAnalysis: *analysis,
		ID:              id,
		Timestamp:       FormatTimestamp(capturedAt),
	}
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

// ParseHistoryEntry decodes an entry with the same checks as ParseTradingAnalysis.
func ParseHistoryEntry(data []byte) (*HistoryEntry, error) {
	var entry HistoryEntry
	if err := decodeAnalysis(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// PrependHistory returns a new log with entry first, truncated to HistoryCapacity.
func PrependHistory(log []*HistoryEntry, entry *HistoryEntry) []*HistoryEntry {
	n := len(log) + 1
	if n > HistoryCapacity {
		n = HistoryCapacity
	}

	updated := make([]*HistoryEntry, 0, n)
	updated = append(updated, entry)
	for _, e := range log {
		if len(updated) >= HistoryCapacity {
			break
		}
		updated = append(updated, e)
	}
	return updated
}

package session

import (
	"errors"

	"github.com/m-mizutani/skyalgo/pkg/model"
)

// UserMessage turns an operation error into the text shown to the user
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, model.ErrNoImages):
		return "Upload at least one data stream image."
	case errors.Is(err, model.ErrTooManyImages):
		return "Upload at most 5 data stream images."
	case errors.Is(err, model.ErrNoPrice):
		return "Enter current NIFTY price signal."
	case errors.Is(err, model.ErrAnalysisInProgress):
		return "An analysis is already running. Wait for it to finish."
	case errors.Is(err, model.ErrMissingCredential):
		return "API KEY ERROR: No API key is configured. Please select a valid key and try again."
	case errors.Is(err, model.ErrPermissionDenied):
		return "API KEY ERROR: Permission denied or invalid. Please select a valid key and try again."
	case errors.Is(err, model.ErrShareLink) && errors.Is(err, model.ErrInvalidAnalysisStructure):
		return "Invalid share link data."
	case errors.Is(err, model.ErrShareLink):
		return "Could not load the shared analysis. The link may be corrupted."
	case errors.Is(err, model.ErrHistoryNotFound):
		return "The analysis is no longer in the history archive."
	}

	return "ANALYSIS FAILED: " + err.Error()
}

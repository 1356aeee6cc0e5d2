package model

import (
	"github.com/m-mizutani/goerr/v2"
)

var (
	// ErrMissingCredential means no model credential is configured. It is raised before any
	// network access.
	ErrMissingCredential = goerr.New("model credential is not configured")

	// ErrEncoding means an uploaded image could not be turned into a base64 payload and MIME type.
	ErrEncoding = goerr.New("failed to encode image")

	// ErrResponseFormat means the model output is not a JSON object.
	ErrResponseFormat = goerr.New("model response is not valid JSON")

	// ErrInvalidAnalysisStructure means the JSON parsed but marketSummary or
	// finalTradingDecision is missing.
	ErrInvalidAnalysisStructure = goerr.New("invalid analysis structure")

	// ErrRequestFailed wraps any transport or provider failure.
	ErrRequestFailed = goerr.New("analysis request failed")

	// ErrPermissionDenied is the credential-rejected case of ErrRequestFailed.
	ErrPermissionDenied = goerr.Wrap(ErrRequestFailed, "permission denied by model provider")

	// ErrShareLink means a share link value is malformed or incomplete.
	ErrShareLink = goerr.New("invalid share link")

	ErrNoImages           = goerr.New("at least one chart image is required")
	ErrTooManyImages      = goerr.New("too many chart images")
	ErrNoPrice            = goerr.New("price signal is required")
	ErrAnalysisInProgress = goerr.New("another analysis is in progress")
	ErrHistoryNotFound    = goerr.New("history entry not found")
)

package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/skyalgo/pkg/adapter"
	"github.com/m-mizutani/skyalgo/pkg/model"
	"github.com/m-mizutani/skyalgo/pkg/usecase/encoder"
	"github.com/m-mizutani/skyalgo/pkg/usecase/session"
	"github.com/m-mizutani/skyalgo/pkg/utils/logging"
)

// errorResponse is the body of every failed API call
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type statusResponse struct {
	CredentialReady bool         `json:"credentialReady"`
	Busy            bool         `json:"busy"`
	Labels          model.Labels `json:"labels"`
	HistoryCount    int          `json:"historyCount"`
}

type shareResponse struct {
	URL string `json:"url"`
}

type credentialRequest struct {
	APIKey string `json:"apiKey"`
}

var errorCodes = []struct {
	target error
	code   string
	status int
}{
	{model.ErrNoImages, "no_images", http.StatusBadRequest},
	{model.ErrTooManyImages, "too_many_images", http.StatusBadRequest},
	{model.ErrNoPrice, "no_price", http.StatusBadRequest},
	{model.ErrEncoding, "encoding", http.StatusBadRequest},
	{model.ErrShareLink, "share_link", http.StatusBadRequest},
	{model.ErrMissingCredential, "missing_credential", http.StatusUnauthorized},
	{model.ErrPermissionDenied, "permission_denied", http.StatusUnauthorized},
	{model.ErrAnalysisInProgress, "analysis_in_progress", http.StatusConflict},
	{model.ErrHistoryNotFound, "not_found", http.StatusNotFound},
	{model.ErrResponseFormat, "response_format", http.StatusBadGateway},
	{model.ErrInvalidAnalysisStructure, "invalid_analysis_structure", http.StatusBadGateway},
	{model.ErrRequestFailed, "request_failed", http.StatusBadGateway},
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.From(r.Context()).Error("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, status := "internal", http.StatusInternalServerError
	for _, c := range errorCodes {
		if errors.Is(err, c.target) {
			code, status = c.code, c.status
			break
		}
	}

	logger := logging.From(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "error", err, "status", status)
	} else {
		logger.Info("request rejected", "error", err, "status", status)
	}

	writeJSON(w, r, status, errorResponse{
		Error:   code,
		Message: session.UserMessage(err),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	history, err := s.ctrl.History(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, statusResponse{
		CredentialReady: s.ctrl.CredentialReady(),
		Busy:            s.ctrl.Busy(),
		Labels:          s.ctrl.Labels(ctx),
		HistoryCount:    len(history),
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// the model call outlives the server write timeout
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	var files []*multipart.FileHeader
	switch err := r.ParseMultipartForm(MaxUploadSize); {
	case errors.Is(err, http.ErrNotMultipart):
		// no files; a urlencoded price is still read below
	case err != nil:
		writeError(w, r, goerr.Wrap(errors.Join(model.ErrEncoding, err), "failed to parse upload"))
		return
	default:
		defer func() {
			_ = r.MultipartForm.RemoveAll()
		}()
		files = r.MultipartForm.File["images"]
	}

	if len(files) > model.MaxImages {
		writeError(w, r, goerr.Wrap(model.ErrTooManyImages, "too many uploads", goerr.V("count", len(files))))
		return
	}

	sources := make([]encoder.Source, 0, len(files))
	for _, fh := range files {
		sources = append(sources, encoder.Source{
			Name:         fh.Filename,
			DeclaredType: fh.Header.Get("Content-Type"),
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		})
	}

	images, err := encoder.EncodeAll(ctx, sources)
	if err != nil {
		writeError(w, r, err)
		return
	}

	entry, err := s.ctrl.RunAnalysis(ctx, images, r.FormValue("price"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, entry)
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.ctrl.History(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, history)
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.ClearHistory(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	entry, err := s.ctrl.Entry(r.Context(), model.HistoryEntryID(r.PathValue("id")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, entry)
}

func (s *Server) handleShareHistory(w http.ResponseWriter, r *http.Request) {
	entry, err := s.ctrl.Entry(r.Context(), model.HistoryEntryID(r.PathValue("id")))
	if err != nil {
		writeError(w, r, err)
		return
	}

	var baseURL string
	if !s.ctrl.HasBaseURL() {
		baseURL = pageURL(r)
	}

	link, err := s.ctrl.EncodeShareLink(entry, baseURL)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, shareResponse{URL: link})
}

// pageURL is the URL of the index page as the client reached it
func pageURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}

	host := r.Host
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		host = strings.TrimSpace(strings.Split(fwd, ",")[0])
	}

	return (&url.URL{Scheme: scheme, Host: host, Path: "/"}).String()
}

func (s *Server) handleGetDisplay(w http.ResponseWriter, r *http.Request) {
	display := s.ctrl.Display()
	if display == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, r, http.StatusOK, display)
}

func (s *Server) handleViewHistory(w http.ResponseWriter, r *http.Request) {
	if _, err := s.ctrl.ViewHistoryEntry(r.Context(), model.HistoryEntryID(r.PathValue("id"))); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, s.ctrl.Display())
}

func (s *Server) handleResetDisplay(w http.ResponseWriter, r *http.Request) {
	s.ctrl.ResetDisplay()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDecodeView(w http.ResponseWriter, r *http.Request) {
	entry, err := s.ctrl.DecodeShareLink(r.URL.Query().Get(session.ViewParam))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, entry)
}

func (s *Server) handleSetCredential(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxJSONBodySize)

	var req credentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, errorResponse{
			Error:   "invalid_request",
			Message: "Request body must be a JSON object with apiKey.",
		})
		return
	}

	apiKey := strings.TrimSpace(req.APIKey)
	if apiKey == "" {
		writeError(w, r, goerr.Wrap(model.ErrMissingCredential, "empty API key"))
		return
	}

	s.ctrl.SetCredential(adapter.Credential{APIKey: apiKey})
	logging.From(r.Context()).Info("credential updated")
	w.WriteHeader(http.StatusNoContent)
}

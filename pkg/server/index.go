package server

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/m-mizutani/skyalgo/pkg/model"
	"github.com/m-mizutani/skyalgo/pkg/usecase/session"
	"github.com/m-mizutani/skyalgo/pkg/utils/logging"
)

var templateFuncs = template.FuncMap{
	"biasClass": func(bias model.MarketBias) string {
		return strings.ToLower(string(bias))
	},
}

type indexData struct {
	*session.Startup
	MaxImages int
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	startup, err := s.ctrl.Boot(ctx, r.URL.Query())
	if err != nil {
		logging.From(ctx).Error("failed to boot session", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "index.html", indexData{
		Startup:   startup,
		MaxImages: model.MaxImages,
	}); err != nil {
		logging.From(ctx).Error("failed to execute template", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

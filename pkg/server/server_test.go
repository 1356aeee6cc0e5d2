package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/skyalgo/pkg/adapter"
	"github.com/m-mizutani/skyalgo/pkg/model"
	"github.com/m-mizutani/skyalgo/pkg/repository"
	"github.com/m-mizutani/skyalgo/pkg/server"
	"github.com/m-mizutani/skyalgo/pkg/usecase/session"
)

type mockAnalyzer struct {
	analyzeFunc func(ctx context.Context, images []*model.EncodedImage, price string) (*model.TradingAnalysis, error)
}

func (m *mockAnalyzer) Analyze(ctx context.Context, images []*model.EncodedImage, price string) (*model.TradingAnalysis, error) {
	return m.analyzeFunc(ctx, images, price)
}

func bullish() *model.TradingAnalysis {
	return &model.TradingAnalysis{
		MarketSummary: &model.MarketSummary{TrendDirection: "Uptrend"},
		FinalTradingDecision: &model.FinalTradingDecision{
			MarketBias: model.MarketBiasBullish,
			EntryZone:  "22100-22120",
			StopLoss:   "22080",
			Confidence: "High",
		},
	}
}

type fixture struct {
	handler  http.Handler
	ctrl     *session.Controller
	analyzer *mockAnalyzer
	images   [][]*model.EncodedImage
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{}
	f.analyzer = &mockAnalyzer{
		analyzeFunc: func(ctx context.Context, images []*model.EncodedImage, price string) (*model.TradingAnalysis, error) {
			f.images = append(f.images, images)
			return bullish(), nil
		},
	}
	f.ctrl = session.New(repository.NewMemory(), f.analyzer,
		session.WithCredentials(session.NewCredentials(adapter.Credential{APIKey: "test-key"})),
		session.WithBaseURL("https://skyalgo.example.com/"),
	)

	srv, err := server.New(f.ctrl)
	gt.NoError(t, err)
	f.handler = srv.Handler()
	return f
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

type upload struct {
	name        string
	contentType string
	body        []byte
}

func analyzeRequest(t *testing.T, price string, uploads ...upload) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, u := range uploads {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="images"; filename=%q`, u.name))
		h.Set("Content-Type", u.contentType)
		part, err := mw.CreatePart(h)
		gt.NoError(t, err)
		_, err = part.Write(u.body)
		gt.NoError(t, err)
	}
	if price != "" {
		gt.NoError(t, mw.WriteField("price", price))
	}
	gt.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestAnalyze(t *testing.T) {
	f := newFixture(t)

	rec := f.do(analyzeRequest(t, "22150",
		upload{name: "price.png", contentType: "image/png", body: []byte("png-bytes")},
		upload{name: "oi.jpg", contentType: "image/jpeg", body: []byte("jpeg-bytes")},
	))
	gt.Equal(t, rec.Code, http.StatusOK)

	var entry model.HistoryEntry
	gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	gt.Equal(t, entry.FinalTradingDecision.MarketBias, model.MarketBiasBullish)
	gt.True(t, entry.ID != "")

	gt.A(t, f.images).Length(1)
	gt.A(t, f.images[0]).Length(2)
	gt.Equal(t, f.images[0][0].MIMEType, "image/png")
	gt.Equal(t, f.images[0][1].MIMEType, "image/jpeg")

	t.Run("history lists the entry", func(t *testing.T) {
		rec := f.do(httptest.NewRequest(http.MethodGet, "/api/history", nil))
		gt.Equal(t, rec.Code, http.StatusOK)

		var history []*model.HistoryEntry
		gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
		gt.A(t, history).Length(1)
		gt.Equal(t, history[0].ID, entry.ID)
	})

	t.Run("get entry", func(t *testing.T) {
		rec := f.do(httptest.NewRequest(http.MethodGet, "/api/history/"+string(entry.ID), nil))
		gt.Equal(t, rec.Code, http.StatusOK)
	})

	t.Run("unknown entry", func(t *testing.T) {
		rec := f.do(httptest.NewRequest(http.MethodGet, "/api/history/nope", nil))
		gt.Equal(t, rec.Code, http.StatusNotFound)
		gt.Equal(t, decodeError(t, rec)["error"], "not_found")
	})

	t.Run("share and view", func(t *testing.T) {
		rec := f.do(httptest.NewRequest(http.MethodGet, "/api/history/"+string(entry.ID)+"/share", nil))
		gt.Equal(t, rec.Code, http.StatusOK)

		var share struct {
			URL string `json:"url"`
		}
		gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &share))
		gt.True(t, strings.HasPrefix(share.URL, "https://skyalgo.example.com/?view="))

		u, err := url.Parse(share.URL)
		gt.NoError(t, err)

		rec = f.do(httptest.NewRequest(http.MethodGet, "/api/view?"+u.RawQuery, nil))
		gt.Equal(t, rec.Code, http.StatusOK)
		var decoded model.HistoryEntry
		gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
		gt.Equal(t, decoded.ID, entry.ID)

		rec = f.do(httptest.NewRequest(http.MethodGet, "/?"+u.RawQuery, nil))
		gt.Equal(t, rec.Code, http.StatusOK)
		gt.S(t, rec.Body.String()).Contains("Shared analysis")
		gt.S(t, rec.Body.String()).Contains("22100-22120")
		gt.S(t, rec.Body.String()).NotContains("<form")
	})

	t.Run("display follows history selection", func(t *testing.T) {
		rec := f.do(httptest.NewRequest(http.MethodPut, "/api/display/"+string(entry.ID), nil))
		gt.Equal(t, rec.Code, http.StatusOK)

		var display session.Display
		gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &display))
		gt.Equal(t, display.EntryID, entry.ID)
	})

	t.Run("clear history", func(t *testing.T) {
		rec := f.do(httptest.NewRequest(http.MethodDelete, "/api/history", nil))
		gt.Equal(t, rec.Code, http.StatusNoContent)

		rec = f.do(httptest.NewRequest(http.MethodGet, "/api/display", nil))
		gt.Equal(t, rec.Code, http.StatusNoContent)

		rec = f.do(httptest.NewRequest(http.MethodGet, "/api/history", nil))
		gt.Equal(t, strings.TrimSpace(rec.Body.String()), "[]")
	})
}

func TestAnalyzeValidation(t *testing.T) {
	png := upload{name: "a.png", contentType: "image/png", body: []byte("png")}

	cases := []struct {
		name   string
		req    func(t *testing.T) *http.Request
		status int
		code   string
	}{
		{
			name:   "no images",
			req:    func(t *testing.T) *http.Request { return analyzeRequest(t, "22150") },
			status: http.StatusBadRequest,
			code:   "no_images",
		},
		{
			name:   "no price",
			req:    func(t *testing.T) *http.Request { return analyzeRequest(t, "", png) },
			status: http.StatusBadRequest,
			code:   "no_price",
		},
		{
			name: "too many images",
			req: func(t *testing.T) *http.Request {
				return analyzeRequest(t, "22150", png, png, png, png, png, png)
			},
			status: http.StatusBadRequest,
			code:   "too_many_images",
		},
		{
			name: "empty image",
			req: func(t *testing.T) *http.Request {
				return analyzeRequest(t, "22150", upload{name: "a.png", contentType: "image/png"})
			},
			status: http.StatusBadRequest,
			code:   "encoding",
		},
		{
			name: "urlencoded form has no images",
			req: func(t *testing.T) *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader("price=22150"))
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
				return req
			},
			status: http.StatusBadRequest,
			code:   "no_images",
		},
		{
			name: "urlencoded form without price has no images",
			req: func(t *testing.T) *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(""))
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
				return req
			},
			status: http.StatusBadRequest,
			code:   "no_images",
		},
		{
			name: "empty body has no images",
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/api/analyze", nil)
			},
			status: http.StatusBadRequest,
			code:   "no_images",
		},
		{
			name: "broken multipart body",
			req: func(t *testing.T) *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader("--x\r\ngarbage"))
				req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
				return req
			},
			status: http.StatusBadRequest,
			code:   "encoding",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			rec := f.do(tc.req(t))
			gt.Equal(t, rec.Code, tc.status)
			gt.Equal(t, decodeError(t, rec)["error"], tc.code)
			gt.A(t, f.images).Length(0)
		})
	}
}

func TestAnalyzeProviderErrors(t *testing.T) {
	png := upload{name: "a.png", contentType: "image/png", body: []byte("png")}

	cases := []struct {
		err     error
		status  int
		code    string
		message string
	}{
		{
			err:     goerr.Wrap(errors.Join(model.ErrPermissionDenied, errors.New("403")), "denied"),
			status:  http.StatusUnauthorized,
			code:    "permission_denied",
			message: "API KEY ERROR: Permission denied or invalid. Please select a valid key and try again.",
		},
		{
			err:    goerr.Wrap(model.ErrMissingCredential, "none"),
			status: http.StatusUnauthorized,
			code:   "missing_credential",
		},
		{
			err:    goerr.Wrap(model.ErrInvalidAnalysisStructure, "shape"),
			status: http.StatusBadGateway,
			code:   "invalid_analysis_structure",
		},
		{
			err:    goerr.Wrap(model.ErrRequestFailed, "reset"),
			status: http.StatusBadGateway,
			code:   "request_failed",
		},
	}

	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			f := newFixture(t)
			f.analyzer.analyzeFunc = func(ctx context.Context, images []*model.EncodedImage, price string) (*model.TradingAnalysis, error) {
				return nil, tc.err
			}

			rec := f.do(analyzeRequest(t, "22150", png))
			gt.Equal(t, rec.Code, tc.status)
			body := decodeError(t, rec)
			gt.Equal(t, body["error"], tc.code)
			if tc.message != "" {
				gt.Equal(t, body["message"], tc.message)
			}
		})
	}
}

func TestStatusAndCredential(t *testing.T) {
	f := newFixture(t)
	f.analyzer.analyzeFunc = func(ctx context.Context, images []*model.EncodedImage, price string) (*model.TradingAnalysis, error) {
		return nil, goerr.Wrap(model.ErrPermissionDenied, "denied")
	}

	status := func() map[string]any {
		rec := f.do(httptest.NewRequest(http.MethodGet, "/api/status", nil))
		gt.Equal(t, rec.Code, http.StatusOK)
		var body map[string]any
		gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return body
	}

	gt.Equal(t, status()["credentialReady"], any(true))

	rec := f.do(analyzeRequest(t, "22150", upload{name: "a.png", contentType: "image/png", body: []byte("png")}))
	gt.Equal(t, rec.Code, http.StatusUnauthorized)
	gt.Equal(t, status()["credentialReady"], any(false))

	rec = f.do(httptest.NewRequest(http.MethodPost, "/api/credential", strings.NewReader(`{"apiKey":"  "}`)))
	gt.Equal(t, rec.Code, http.StatusUnauthorized)

	rec = f.do(httptest.NewRequest(http.MethodPost, "/api/credential", strings.NewReader(`not json`)))
	gt.Equal(t, rec.Code, http.StatusBadRequest)

	rec = f.do(httptest.NewRequest(http.MethodPost, "/api/credential", strings.NewReader(`{"apiKey":"fresh"}`)))
	gt.Equal(t, rec.Code, http.StatusNoContent)
	gt.Equal(t, status()["credentialReady"], any(true))
}

func TestIndex(t *testing.T) {
	f := newFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/?admin=true", nil))
	gt.Equal(t, rec.Code, http.StatusOK)
	body := rec.Body.String()
	gt.S(t, body).Contains("Skyalgo.Ai")
	gt.S(t, body).Contains("Admin mode")
	gt.S(t, body).Contains("<form")

	t.Run("broken share link", func(t *testing.T) {
		rec := f.do(httptest.NewRequest(http.MethodGet, "/?view=%25%25%25", nil))
		gt.Equal(t, rec.Code, http.StatusOK)
		gt.S(t, rec.Body.String()).Contains("The link may be corrupted.")
		gt.S(t, rec.Body.String()).NotContains("Skyalgo.Ai")
	})

	t.Run("bad view value via api", func(t *testing.T) {
		rec := f.do(httptest.NewRequest(http.MethodGet, "/api/view?view=abc", nil))
		gt.Equal(t, rec.Code, http.StatusBadRequest)
		gt.Equal(t, decodeError(t, rec)["error"], "share_link")
	})

	t.Run("unknown path", func(t *testing.T) {
		rec := f.do(httptest.NewRequest(http.MethodGet, "/nothing", nil))
		gt.Equal(t, rec.Code, http.StatusNotFound)
	})
}

func TestMount(t *testing.T) {
	ctrl := session.New(repository.NewMemory(), &mockAnalyzer{})
	extra := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	srv, err := server.New(ctrl, server.WithMount("/extra", extra))
	gt.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/extra", nil))
	gt.Equal(t, rec.Code, http.StatusTeapot)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	gt.Equal(t, rec.Code, http.StatusOK)
}

func TestShareLinkHost(t *testing.T) {
	ctx := context.Background()
	images := []*model.EncodedImage{{Base64: "aGVsbG8=", MIMEType: "image/png"}}
	analyzer := &mockAnalyzer{
		analyzeFunc: func(ctx context.Context, images []*model.EncodedImage, price string) (*model.TradingAnalysis, error) {
			return bullish(), nil
		},
	}

	shareURL := func(t *testing.T, handler http.Handler, req *http.Request) *url.URL {
		t.Helper()
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		gt.Equal(t, rec.Code, http.StatusOK)

		var body map[string]string
		gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		u, err := url.Parse(body["url"])
		gt.NoError(t, err)
		return u
	}

	t.Run("no base url uses the request host", func(t *testing.T) {
		ctrl := session.New(repository.NewMemory(), analyzer)
		entry, err := ctrl.RunAnalysis(ctx, images, "22150")
		gt.NoError(t, err)
		srv, err := server.New(ctrl, server.WithAddr(":8080"))
		gt.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "https://charts.example.com/api/history/"+string(entry.ID)+"/share", nil)
		u := shareURL(t, srv.Handler(), req)
		gt.Equal(t, u.Scheme, "https")
		gt.Equal(t, u.Host, "charts.example.com")
		gt.Equal(t, u.Path, "/")
		gt.True(t, u.Query().Get(session.ViewParam) != "")

		decoded, err := ctrl.DecodeShareLink(u.Query().Get(session.ViewParam))
		gt.NoError(t, err)
		gt.Equal(t, decoded.ID, entry.ID)
	})

	t.Run("forwarded headers", func(t *testing.T) {
		ctrl := session.New(repository.NewMemory(), analyzer)
		entry, err := ctrl.RunAnalysis(ctx, images, "22150")
		gt.NoError(t, err)
		srv, err := server.New(ctrl)
		gt.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/history/"+string(entry.ID)+"/share", nil)
		req.Header.Set("X-Forwarded-Proto", "https")
		req.Header.Set("X-Forwarded-Host", "public.example.com, proxy.internal")
		u := shareURL(t, srv.Handler(), req)
		gt.Equal(t, u.Scheme, "https")
		gt.Equal(t, u.Host, "public.example.com")
	})

	t.Run("configured base url wins", func(t *testing.T) {
		f := newFixture(t)
		entry, err := f.ctrl.RunAnalysis(ctx, images, "22150")
		gt.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "https://charts.example.com/api/history/"+string(entry.ID)+"/share", nil)
		u := shareURL(t, f.handler, req)
		gt.Equal(t, u.Host, "skyalgo.example.com")
	})
}

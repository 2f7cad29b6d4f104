package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-quote-backend/internal/domain"
	"github.com/tbourn/go-quote-backend/internal/fingerprint"
	"github.com/tbourn/go-quote-backend/internal/http/middleware"
	"github.com/tbourn/go-quote-backend/internal/services"
)

// ---------- fakes ----------

type fakeQuoteSvc struct {
	mu       sync.Mutex
	calls    int
	lastFP   fingerprint.Fingerprint
	lastReq  domain.QuoteRequest
	submitFn func(domain.QuoteRequest) (*services.SubmitResult, error)
	listFn   func(page, size int) ([]domain.Quote, int64, error)
}

func (f *fakeQuoteSvc) Submit(_ context.Context, fp fingerprint.Fingerprint, req domain.QuoteRequest) (*services.SubmitResult, error) {
	f.mu.Lock()
	f.calls++
	f.lastFP, f.lastReq = fp, req
	f.mu.Unlock()
	return f.submitFn(req)
}

func (f *fakeQuoteSvc) ListPage(_ context.Context, page, size int) ([]domain.Quote, int64, error) {
	if f.listFn == nil {
		return []domain.Quote{}, 0, nil
	}
	return f.listFn(page, size)
}

type fakeDownloadSvc struct {
	files map[string]string
	err   error
	token string
}

func (f *fakeDownloadSvc) Open(_ context.Context, name, tok string) (io.ReadCloser, int64, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	if tok == "" {
		return nil, 0, services.ErrTokenMissing
	}
	if tok != f.token {
		return nil, 0, services.ErrTokenInvalid
	}
	body, ok := f.files[name]
	if !ok {
		return nil, 0, services.ErrArtifactNotFound
	}
	return io.NopCloser(strings.NewReader(body)), int64(len(body)), nil
}

// ---------- router ----------

func newTestRouter(q QuoteService, d DownloadService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := New(q, d)
	r := gin.New()
	r.Use(middleware.RequestID())
	r.POST("/quotes", middleware.Fingerprint(fingerprint.New([]byte("test")), middleware.FingerprintOptions{}), h.SubmitQuote)
	r.GET("/quotes", h.ListQuotes)
	r.GET("/downloads/:name", h.DownloadQuote)
	return r
}

func do(r http.Handler, method, target, body string, hdr map[string]string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

var errBoom = errors.New("boom")

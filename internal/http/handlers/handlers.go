// Package handlers exposes the REST endpoints of the quote service:
//   - POST /quotes                (submit, deduplicated by body fingerprint)
//   - GET  /quotes                (audit listing, paginated, ETag support)
//   - GET  /downloads/{name}      (tokenized PDF download)
//
// Handlers are transport-thin: they bind input, call application services,
// and translate results and sentinel errors into HTTP responses.
package handlers

import (
	"context"
	"io"

	"github.com/tbourn/go-quote-backend/internal/domain"
	"github.com/tbourn/go-quote-backend/internal/fingerprint"
	"github.com/tbourn/go-quote-backend/internal/services"
)

// QuoteService is the submission and audit contract used by the handlers.
//
// Implementations must be safe for concurrent use.
type QuoteService interface {
	// Submit renders, stores and delivers req unless fp is a duplicate.
	Submit(ctx context.Context, fp fingerprint.Fingerprint, req domain.QuoteRequest) (*services.SubmitResult, error)
	// ListPage returns a page of audited quotes and the total count.
	ListPage(ctx context.Context, page, pageSize int) ([]domain.Quote, int64, error)
}

// DownloadService authorizes and opens generated artifacts.
type DownloadService interface {
	Open(ctx context.Context, name, token string) (io.ReadCloser, int64, error)
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	quoteSvc    QuoteService
	downloadSvc DownloadService
}

// New constructs Handlers bound to the given services.
func New(quoteSvc QuoteService, downloadSvc DownloadService) *Handlers {
	return &Handlers{quoteSvc: quoteSvc, downloadSvc: downloadSvc}
}

package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-quote-backend/internal/domain"
	"github.com/tbourn/go-quote-backend/internal/http/middleware"
	"github.com/tbourn/go-quote-backend/internal/repo"
	"github.com/tbourn/go-quote-backend/internal/services"
	"github.com/tbourn/go-quote-backend/internal/utils"
)

//
// DTOs
//

// SubmitQuoteResponse is returned for accepted and duplicate submissions.
// DownloadURL and ExpiresAt are omitted for duplicates.
type SubmitQuoteResponse struct {
	Success     bool       `json:"success" example:"true"`
	Duplicate   bool       `json:"duplicate,omitempty" example:"false"`
	DownloadURL string     `json:"downloadUrl,omitempty" example:"https://quotes.example.com/api/v1/downloads/quote-20250101-120000-000-1a2b3c4d.pdf?token=eyJ..."`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty" example:"2025-01-02T12:00:00Z"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListQuotesResponse wraps a page of audited quotes.
type ListQuotesResponse struct {
	Quotes     []domain.Quote `json:"quotes"`
	Pagination Pagination     `json:"pagination"`
}

//
// Handlers
//

// SubmitQuote godoc
// @ID          submitQuote
// @Summary     Submit a quote request
// @Description Renders the request into a PDF, mails it to the admins and the customer, and returns a tokenized download link.
// @Description Identical bodies within the deduplication window are acknowledged with 202 and not processed again.
// @Tags        Quotes
// @Accept      json
// @Produce     json
//
// @Param       X-API-Key  header  string               false "Shared secret (when configured)"
// @Param       body       body    domain.QuoteRequest  true  "Quote request"
//
// @Success     200  {object}  handlers.SubmitQuoteResponse  "Processed"
// @Success     202  {object}  handlers.SubmitQuoteResponse  "Duplicate, already in flight or processed"
// @Failure     400  {object}  handlers.ErrorResponse        "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse        "Missing or invalid API key"
// @Failure     429  {object}  handlers.ErrorResponse        "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse        "Internal error"
// @Router      /quotes [post]
func (h *Handlers) SubmitQuote(c *gin.Context) {
	fp, found := middleware.GetFingerprint(c)
	if !found {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "request fingerprint unavailable")
		return
	}

	var req domain.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid quote request: name and items are required")
		return
	}

	res, err := h.quoteSvc.Submit(c.Request.Context(), fp, req)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrInvalidQuote):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	default:
		failErr(c, http.StatusInternalServerError, ErrCodeSubmitFailed, "could not process quote request", err)
		return
	}

	if res.Duplicate {
		ok(c, http.StatusAccepted, SubmitQuoteResponse{Success: true, Duplicate: true})
		return
	}
	exp := res.ExpiresAt.UTC()
	ok(c, http.StatusOK, SubmitQuoteResponse{
		Success:     true,
		DownloadURL: res.DownloadURL,
		ExpiresAt:   &exp,
	})
}

// ListQuotes godoc
// @ID          listQuotes
// @Summary     List audited quotes (paginated)
// @Description Returns processed quotes, newest first, with their delivery records. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Quotes
// @Produce     json
//
// @Param       X-API-Key      header  string  false "Shared secret (when configured)"
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"quotes:3:1700000000\")
// @Param       page           query   int     false "Page number"                 minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"              minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListQuotesResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     401  {object} handlers.ErrorResponse "Missing or invalid API key"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /quotes [get]
func (h *Handlers) ListQuotes(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := utils.PageBounds(c.Query("page"), c.Query("page_size"), 20, 100)

	// ETag pre-check (best effort).
	var db *gorm.DB
	if svc, ok := h.quoteSvc.(*services.QuoteService); ok {
		db = svc.DB
	}
	if db != nil {
		count, maxTS, err := repo.QuotesStats(ctx, db)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"quotes:%d:%d:%d:%d"`, count, ts, page, pageSize)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.quoteSvc.ListPage(ctx, page, pageSize)
	if err != nil {
		failErr(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list quotes", err)
		return
	}

	totalPages := utils.TotalPages(total, pageSize)
	ok(c, http.StatusOK, ListQuotesResponse{
		Quotes: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

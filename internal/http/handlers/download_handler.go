package handlers

import (
	"errors"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-quote-backend/internal/render"
	"github.com/tbourn/go-quote-backend/internal/services"
)

// DownloadQuote godoc
// @ID          downloadQuote
// @Summary     Download a generated quote PDF
// @Description Streams the PDF named in the path when the token was issued for that name and has not expired. Tokens are reusable until expiry.
// @Tags        Downloads
// @Produce     application/pdf
// @Produce     json
//
// @Param       name   path   string  true  "Artifact file name"  example(quote-20250101-120000-000-1a2b3c4d.pdf)
// @Param       token  query  string  true  "Signed download token"
//
// @Success     200  {file}   file                   "PDF document"
// @Failure     401  {object} handlers.ErrorResponse "Token missing"
// @Failure     403  {object} handlers.ErrorResponse "Token invalid, expired or issued for another file"
// @Failure     404  {object} handlers.ErrorResponse "File not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /downloads/{name} [get]
func (h *Handlers) DownloadQuote(c *gin.Context) {
	name := c.Param("name")

	rc, size, err := h.downloadSvc.Open(c.Request.Context(), name, c.Query("token"))
	switch {
	case err == nil:
	case errors.Is(err, services.ErrTokenMissing):
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "download token required")
		return
	case errors.Is(err, services.ErrTokenInvalid):
		fail(c, http.StatusForbidden, ErrCodeForbidden, "invalid or expired download token")
		return
	case errors.Is(err, services.ErrArtifactNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "file not found")
		return
	default:
		failErr(c, http.StatusInternalServerError, ErrCodeDownloadFailed, "could not open file", err)
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, size, render.ContentType, rc, map[string]string{
		"Content-Disposition": mime.FormatMediaType("attachment", map[string]string{"filename": name}),
	})
}

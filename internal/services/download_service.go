package services

import (
	"context"
	"errors"
	"io"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-quote-backend/internal/storage"
	"github.com/tbourn/go-quote-backend/internal/token"
)

// DownloadService authorizes artifact downloads with signed tokens.
type DownloadService struct {
	Tokens *token.Codec
	Store  storage.Store
}

// NewDownloadService returns a DownloadService.
func NewDownloadService(tokens *token.Codec, st storage.Store) *DownloadService {
	return &DownloadService{Tokens: tokens, Store: st}
}

// Open verifies tok for name and opens the artifact. The caller must close
// the returned reader. Tokens are reusable until they expire.
func (s *DownloadService) Open(ctx context.Context, name, tok string) (io.ReadCloser, int64, error) {
	tr := otel.Tracer("services/DownloadService")
	ctx, span := tr.Start(ctx, "Open", trace.WithAttributes(attribute.String("artifact.name", name)))
	defer span.End()

	if strings.TrimSpace(tok) == "" {
		downloadsTotal.WithLabelValues("missing_token").Inc()
		return nil, 0, ErrTokenMissing
	}
	p, err := s.Tokens.Verify(tok)
	if err != nil || p.Name != name {
		downloadsTotal.WithLabelValues("invalid_token").Inc()
		return nil, 0, ErrTokenInvalid
	}

	rc, size, err := s.Store.Open(ctx, name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			downloadsTotal.WithLabelValues("not_found").Inc()
			return nil, 0, ErrArtifactNotFound
		}
		downloadsTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		return nil, 0, err
	}
	downloadsTotal.WithLabelValues("ok").Inc()
	return rc, size, nil
}

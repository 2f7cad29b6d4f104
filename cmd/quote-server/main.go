// Command quote-server runs the quote HTTP API.
//
//	@title			Quote Backend API
//	@version		1.0
//	@description	Accepts quote requests, renders them to PDF, mails them to sales and the customer, and serves tokenized downloads.
//	@BasePath		/api/v1
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-quote-backend/internal/config"
	"github.com/tbourn/go-quote-backend/internal/dedup"
	"github.com/tbourn/go-quote-backend/internal/fingerprint"
	httpapi "github.com/tbourn/go-quote-backend/internal/http"
	"github.com/tbourn/go-quote-backend/internal/mailer"
	"github.com/tbourn/go-quote-backend/internal/observability"
	"github.com/tbourn/go-quote-backend/internal/render"
	"github.com/tbourn/go-quote-backend/internal/repo"
	"github.com/tbourn/go-quote-backend/internal/services"
	"github.com/tbourn/go-quote-backend/internal/storage"
	"github.com/tbourn/go-quote-backend/internal/sysutil"
	"github.com/tbourn/go-quote-backend/internal/token"
)

// version is set at build time with -ldflags "-X main.version=...".
var version string

const shutdownTimeout = 15 * time.Second

func main() {
	// .env is optional.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	log.Logger = sysutil.SetupLogger(os.Stdout, cfg.LogLevel, cfg.LogPretty)

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("quote-server stopped")
	}
}

func run(cfg config.Config) error {
	ctx, stop := sysutil.SignalContext(context.Background())
	defer stop()

	ver := sysutil.FirstNonEmpty(version, os.Getenv("APP_VERSION"), "dev")

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, ver)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer closeDB(db)
	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	sender, err := newSender(cfg.Mail.SMTP)
	if err != nil {
		return fmt.Errorf("mailer: %w", err)
	}

	cache := dedup.New(cfg.Quote.DedupWindow)
	go cache.Run(ctx, cfg.Quote.DedupSweepInterval)

	codec := token.NewCodec([]byte(cfg.Quote.TokenSecret))
	quotes := services.NewQuoteService(
		db,
		cache,
		render.NewPDFRenderer(cfg.Quote.Title, cfg.Quote.Currency),
		store,
		sender,
		codec,
		services.DeliveryConfig{
			AdminEmails:     cfg.Mail.AdminEmails,
			From:            cfg.Mail.From,
			DownloadBaseURL: cfg.DownloadBaseURL(),
			TokenTTL:        cfg.Quote.TokenTTL,
			MailConcurrency: cfg.Mail.Concurrency,
		},
	)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		Quotes:        quotes,
		Downloads:     services.NewDownloadService(codec, store),
		Fingerprinter: fingerprint.New([]byte(cfg.Quote.FingerprintSecret)),
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("version", ver).
			Str("base_path", cfg.APIBasePath).
			Str("download_base", cfg.DownloadBaseURL()).
			Dur("dedup_window", cfg.Quote.DedupWindow).
			Int("admins", len(cfg.Mail.AdminEmails)).
			Msg("quote-server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// openStore prefers the bucket when one is configured.
func openStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	if cfg.Bucket != "" {
		log.Info().Str("bucket", cfg.Bucket).Str("prefix", cfg.Prefix).Msg("storing quotes in GCS")
		st, err := storage.NewGCSStore(ctx, cfg.Bucket, cfg.Prefix)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	log.Info().Str("dir", cfg.Dir).Msg("storing quotes on disk")
	st, err := storage.NewDiskStore(cfg.Dir)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// newSender logs instead of mailing when no SMTP host is set.
func newSender(cfg mailer.SMTPConfig) (mailer.Sender, error) {
	if cfg.Host == "" {
		log.Warn().Msg("SMTP_HOST not set; quote emails are logged, not sent")
		return mailer.LogSender{Log: log.Logger.With().Str("component", "mailer").Logger()}, nil
	}
	s, err := mailer.NewSMTPSender(cfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func closeDB(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn().Err(err).Msg("close db")
	}
}

// Package services – QuoteService
//
// This file implements QuoteService, which turns a validated quote request
// into a stored PDF, one email per recipient, and a signed download link.
//
// Delivery is at most once per (fingerprint, recipient) while the fingerprint
// is inside the duplicate window: the dedup cache decides whether a request is
// processed at all and which recipients are still owed mail. Failures before
// any mail leaves release the fingerprint so a client retry is processed
// again; failures after a partial delivery are logged and the fingerprint is
// marked processed anyway.
//
// Observability: Submit and ListPage are OpenTelemetry-instrumented; delivery
// outcomes are logged with the request-scoped zerolog logger from ctx.
package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gorm.io/gorm"

	"github.com/tbourn/go-quote-backend/internal/dedup"
	"github.com/tbourn/go-quote-backend/internal/domain"
	"github.com/tbourn/go-quote-backend/internal/fingerprint"
	"github.com/tbourn/go-quote-backend/internal/mailer"
	"github.com/tbourn/go-quote-backend/internal/render"
	"github.com/tbourn/go-quote-backend/internal/repo"
	"github.com/tbourn/go-quote-backend/internal/storage"
	"github.com/tbourn/go-quote-backend/internal/token"
)

// DeliveryConfig holds the addressing and link settings of QuoteService.
type DeliveryConfig struct {
	// AdminEmails receive every quote. At least one is required.
	AdminEmails []string
	// From is the envelope sender of all mail.
	From string
	// DownloadBaseURL is the absolute URL prefix of the download route,
	// e.g. https://api.example.com/api/v1/downloads.
	DownloadBaseURL string
	// TokenTTL bounds how long a download link stays valid.
	TokenTTL time.Duration
	// MailConcurrency caps parallel sends per request.
	MailConcurrency int
}

// SubmitResult is the outcome of Submit.
type SubmitResult struct {
	// Duplicate is true when the fingerprint was in flight or already
	// processed; no other field is set in that case.
	Duplicate bool

	QuoteID     string
	Filename    string
	DownloadURL string
	ExpiresAt   time.Time
	// Sent and Failed list the addresses of this attempt by outcome.
	Sent   []string
	Failed []string
}

// QuoteService orchestrates rendering, storage and delivery of quotes.
type QuoteService struct {
	// DB receives the audit trail. When nil, auditing is skipped.
	DB       *gorm.DB
	Cache    *dedup.Cache
	Renderer render.Renderer
	Store    storage.Store
	Mailer   mailer.Sender
	Tokens   *token.Codec
	Config   DeliveryConfig

	// Now is the clock used for artifact names. Defaults to time.Now.
	Now func() time.Time
}

// NewQuoteService wires a QuoteService and applies defaults to cfg.
func NewQuoteService(db *gorm.DB, cache *dedup.Cache, r render.Renderer, st storage.Store, m mailer.Sender, tokens *token.Codec, cfg DeliveryConfig) *QuoteService {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.MailConcurrency <= 0 {
		cfg.MailConcurrency = 4
	}
	cfg.DownloadBaseURL = strings.TrimRight(cfg.DownloadBaseURL, "/")
	return &QuoteService{
		DB:       db,
		Cache:    cache,
		Renderer: r,
		Store:    st,
		Mailer:   m,
		Tokens:   tokens,
		Config:   cfg,
		Now:      time.Now,
	}
}

// delivery is one addressed send and its outcome.
type delivery struct {
	addr string
	role string
	err  error
}

// Submit processes req under fingerprint fp.
//
// Work continues after ctx is cancelled so that the cache stays consistent
// with what was actually sent; only ctx values are used.
func (s *QuoteService) Submit(ctx context.Context, fp fingerprint.Fingerprint, req domain.QuoteRequest) (*SubmitResult, error) {
	tr := otel.Tracer("services/QuoteService")
	ctx, span := tr.Start(context.WithoutCancel(ctx), "Submit",
		trace.WithAttributes(
			attribute.String("quote.fingerprint", fp.Short()),
			attribute.Int("quote.items", len(req.Items)),
		),
	)
	defer span.End()
	lg := zerolog.Ctx(ctx).With().Str("fingerprint", fp.Short()).Logger()

	if err := req.Validate(); err != nil {
		submissionsTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuote, err)
	}

	st := s.Cache.CheckAndMarkInFlight(fp)
	if st.Duplicate() {
		span.SetAttributes(attribute.Bool("quote.in_flight", st.InFlight), attribute.Bool("quote.processed", st.Processed))
		submissionsTotal.WithLabelValues("duplicate").Inc()
		lg.Info().Bool("in_flight", st.InFlight).Bool("processed", st.Processed).Msg("duplicate quote suppressed")
		return &SubmitResult{Duplicate: true}, nil
	}

	fail := func(outcome string, sentinel, cause error) (*SubmitResult, error) {
		s.Cache.Release(fp)
		submissionsTotal.WithLabelValues(outcome).Inc()
		span.RecordError(cause)
		span.SetStatus(codes.Error, sentinel.Error())
		return nil, fmt.Errorf("%w: %v", sentinel, cause)
	}

	art, err := s.Renderer.Render(ctx, req, render.Meta{Fingerprint: fp, GeneratedAt: s.now()})
	if err != nil {
		return fail("render_failed", ErrRenderFailed, err)
	}
	if err := s.Store.Save(ctx, art.Name, art.Data); err != nil {
		return fail("store_failed", ErrStoreFailed, err)
	}
	tok, exp, err := s.Tokens.Issue(art.Name, s.Config.TokenTTL)
	if err != nil {
		return fail("render_failed", ErrRenderFailed, fmt.Errorf("issue token: %w", err))
	}
	link := s.downloadURL(art.Name, tok)

	priorSent := s.Cache.SentCount(fp)
	targets := s.targets(fp, req)
	s.send(ctx, fp, req, art, link, exp, targets)

	res := &SubmitResult{Filename: art.Name, DownloadURL: link, ExpiresAt: exp}
	for _, d := range targets {
		if d.err != nil {
			res.Failed = append(res.Failed, d.addr)
			lg.Warn().Err(d.err).Str("role", d.role).Str("recipient", d.addr).Msg("quote mail failed")
			continue
		}
		res.Sent = append(res.Sent, d.addr)
	}
	span.SetAttributes(attribute.Int("mail.sent", len(res.Sent)), attribute.Int("mail.failed", len(res.Failed)))

	if len(res.Failed) > 0 && len(res.Sent) == 0 && priorSent == 0 {
		return fail("delivery_failed", ErrDeliveryFailed, fmt.Errorf("%d of %d sends failed", len(res.Failed), len(targets)))
	}
	s.Cache.MarkProcessed(fp)
	submissionsTotal.WithLabelValues("accepted").Inc()

	res.QuoteID = s.audit(ctx, lg, fp, req, art.Name, targets)
	lg.Info().
		Str("artifact", art.Name).
		Int("sent", len(res.Sent)).
		Int("failed", len(res.Failed)).
		Msg("quote processed")
	return res, nil
}

// targets returns the recipients still owed mail for fp: pending admins
// first, then the customer unless absent or also an admin.
func (s *QuoteService) targets(fp fingerprint.Fingerprint, req domain.QuoteRequest) []delivery {
	var out []delivery
	for _, a := range s.Cache.RecipientsPending(fp, s.Config.AdminEmails) {
		out = append(out, delivery{addr: a, role: domain.RoleAdmin})
	}

	cust := strings.TrimSpace(req.Email)
	if cust == "" {
		return out
	}
	key := dedup.NormalizeAddress(cust)
	for _, a := range s.Config.AdminEmails {
		if dedup.NormalizeAddress(a) == key {
			return out
		}
	}
	for _, a := range s.Cache.RecipientsPending(fp, []string{cust}) {
		out = append(out, delivery{addr: a, role: domain.RoleCustomer})
	}
	return out
}

// send delivers one message per target with bounded concurrency and records
// each success in the cache. Outcomes are written back into targets.
func (s *QuoteService) send(ctx context.Context, fp fingerprint.Fingerprint, req domain.QuoteRequest, art render.Artifact, link string, exp time.Time, targets []delivery) {
	var g errgroup.Group
	g.SetLimit(s.Config.MailConcurrency)
	for i := range targets {
		d := &targets[i]
		g.Go(func() error {
			start := time.Now()
			d.err = s.Mailer.Send(ctx, s.compose(d.role, d.addr, req, art, link, exp))
			mailSendSeconds.Observe(time.Since(start).Seconds())
			if d.err != nil {
				mailSendsTotal.WithLabelValues(d.role, domain.DeliveryFailed).Inc()
				return nil
			}
			s.Cache.MarkSent(fp, d.addr)
			mailSendsTotal.WithLabelValues(d.role, domain.DeliverySent).Inc()
			return nil
		})
	}
	_ = g.Wait()
}

// compose builds the message for one recipient.
func (s *QuoteService) compose(role, to string, req domain.QuoteRequest, art render.Artifact, link string, exp time.Time) mailer.Message {
	p := message.NewPrinter(language.English)
	name := strings.TrimSpace(req.Name)

	var b strings.Builder
	msg := mailer.Message{
		From:        s.Config.From,
		To:          to,
		Attachments: []mailer.Attachment{{Name: art.Name, ContentType: render.ContentType, Data: art.Data}},
	}
	if role == domain.RoleAdmin {
		msg.Subject = "New quote request from " + name
		msg.ReplyTo = strings.TrimSpace(req.Email)
		fmt.Fprintf(&b, "A new quote request was received.\n\n")
		fmt.Fprintf(&b, "Name: %s\n", name)
		if req.Company != "" {
			fmt.Fprintf(&b, "Company: %s\n", req.Company)
		}
		if req.Email != "" {
			fmt.Fprintf(&b, "Email: %s\n", req.Email)
		}
		if req.Phone != "" {
			fmt.Fprintf(&b, "Phone: %s\n", req.Phone)
		}
		b.WriteString(p.Sprintf("Items: %d, total %.2f\n", len(req.Items), req.GrandTotal()))
		if m := strings.TrimSpace(req.Message); m != "" {
			fmt.Fprintf(&b, "\nMessage:\n%s\n", m)
		}
	} else {
		msg.Subject = "Your quote"
		fmt.Fprintf(&b, "Hello %s,\n\nThank you for your request. Your quote is attached.\n", name)
	}
	fmt.Fprintf(&b, "\nDownload: %s\n(valid until %s)\n", link, exp.UTC().Format(time.RFC1123))
	msg.Body = b.String()
	return msg
}

// audit records the quote and its delivery attempts. Failures are logged and
// never affect the submission outcome.
func (s *QuoteService) audit(ctx context.Context, lg zerolog.Logger, fp fingerprint.Fingerprint, req domain.QuoteRequest, filename string, targets []delivery) string {
	if s.DB == nil {
		return ""
	}
	q := &domain.Quote{
		Fingerprint: string(fp),
		Name:        strings.TrimSpace(req.Name),
		Email:       strings.TrimSpace(req.Email),
		Company:     strings.TrimSpace(req.Company),
		Filename:    filename,
		ItemCount:   len(req.Items),
		Total:       req.GrandTotal(),
	}
	rows := make([]domain.Delivery, 0, len(targets))
	for _, d := range targets {
		row := domain.Delivery{Recipient: d.addr, Role: d.role, Status: domain.DeliverySent}
		if d.err != nil {
			row.Status = domain.DeliveryFailed
			row.Error = d.err.Error()
		}
		rows = append(rows, row)
	}
	if err := repo.CreateQuote(ctx, s.DB, q, rows); err != nil {
		lg.Warn().Err(err).Msg("quote audit failed")
		return ""
	}
	return q.ID
}

// ListPage returns a page of audited quotes, newest first, and the total.
func (s *QuoteService) ListPage(ctx context.Context, page, pageSize int) ([]domain.Quote, int64, error) {
	tr := otel.Tracer("services/QuoteService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if s.DB == nil {
		return []domain.Quote{}, 0, nil
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountQuotes(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Quote{}, 0, nil
	}
	items, err := repo.ListQuotesPage(ctx, s.DB, offset, pageSize)
	return items, total, err
}

func (s *QuoteService) downloadURL(name, tok string) string {
	return s.Config.DownloadBaseURL + "/" + url.PathEscape(name) + "?token=" + url.QueryEscape(tok)
}

func (s *QuoteService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

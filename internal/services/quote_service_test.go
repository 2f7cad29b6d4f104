package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-quote-backend/internal/dedup"
	"github.com/tbourn/go-quote-backend/internal/domain"
	"github.com/tbourn/go-quote-backend/internal/fingerprint"
	"github.com/tbourn/go-quote-backend/internal/mailer"
	"github.com/tbourn/go-quote-backend/internal/render"
	"github.com/tbourn/go-quote-backend/internal/repo"
	"github.com/tbourn/go-quote-backend/internal/storage"
	"github.com/tbourn/go-quote-backend/internal/token"
)

// ---------- test helpers ----------

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:quotesvc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

type fakeRenderer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeRenderer) Render(_ context.Context, req domain.QuoteRequest, meta render.Meta) (render.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return render.Artifact{}, f.err
	}
	name := fmt.Sprintf("quote-%d-%s.pdf", f.calls, meta.Fingerprint.Short())
	return render.Artifact{Name: name, Data: []byte("%PDF-" + req.Name)}, nil
}

type memStore struct {
	mu    sync.Mutex
	files map[string][]byte
	err   error
}

func newMemStore() *memStore { return &memStore{files: map[string][]byte{}} }

func (m *memStore) Save(_ context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.files[name] = append([]byte(nil), data...)
	return nil
}

func (m *memStore) Open(_ context.Context, name string) (io.ReadCloser, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.files[name]
	if !ok {
		return nil, 0, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), int64(len(b)), nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []mailer.Message
	fail map[string]error
}

func (f *fakeSender) Send(_ context.Context, msg mailer.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[strings.ToLower(msg.To)]; err != nil {
		return err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) to() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, m := range f.sent {
		out = append(out, m.To)
	}
	return out
}

func (f *fakeSender) setFail(addr string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail == nil {
		f.fail = map[string]error{}
	}
	if err == nil {
		delete(f.fail, addr)
		return
	}
	f.fail[addr] = err
}

type harness struct {
	svc    *QuoteService
	dl     *DownloadService
	cache  *dedup.Cache
	rend   *fakeRenderer
	store  *memStore
	sender *fakeSender
	fp     *fingerprint.Fingerprinter
	db     *gorm.DB
}

func newHarness(t *testing.T, admins ...string) *harness {
	t.Helper()
	if len(admins) == 0 {
		admins = []string{"a@x.com"}
	}
	h := &harness{
		cache:  dedup.New(15 * time.Second),
		rend:   &fakeRenderer{},
		store:  newMemStore(),
		sender: &fakeSender{},
		fp:     fingerprint.New([]byte("fp-secret")),
		db:     newSvcDB(t),
	}
	codec := token.NewCodec([]byte("tok-secret"))
	h.svc = NewQuoteService(h.db, h.cache, h.rend, h.store, h.sender, codec, DeliveryConfig{
		AdminEmails:     admins,
		From:            "quotes@example.com",
		DownloadBaseURL: "https://api.example.com/api/v1/downloads/",
		TokenTTL:        time.Hour,
		MailConcurrency: 2,
	})
	h.dl = NewDownloadService(codec, h.store)
	return h
}

func f64(v float64) *float64 { return &v }

func sampleQuote(email string) domain.QuoteRequest {
	return domain.QuoteRequest{
		Name:  "Ada",
		Email: email,
		Items: []domain.LineItem{{Description: "Bracket", Quantity: 2, UnitPrice: f64(3)}},
	}
}

func (h *harness) fingerprintOf(t *testing.T, req domain.QuoteRequest) fingerprint.Fingerprint {
	t.Helper()
	return h.fp.Sum(fingerprint.FromAny(req))
}

// ---------- Submit() ----------

func TestSubmit_AdminAndCustomer_TwoSends(t *testing.T) {
	h := newHarness(t, "a@x.com")
	req := sampleQuote("b@y.com")
	fp := h.fingerprintOf(t, req)

	res, err := h.svc.Submit(context.Background(), fp, req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Duplicate {
		t.Fatalf("first submission must not be a duplicate")
	}
	got := h.sender.to()
	if len(got) != 2 {
		t.Fatalf("expected 2 sends, got %v", got)
	}
	seen := map[string]bool{}
	for _, a := range got {
		seen[a] = true
	}
	if !seen["a@x.com"] || !seen["b@y.com"] {
		t.Fatalf("unexpected recipients: %v", got)
	}
	if res.QuoteID == "" || len(res.Sent) != 2 || len(res.Failed) != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	// Download link round-trips through the download service, repeatedly.
	u, err := url.Parse(res.DownloadURL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if !strings.HasPrefix(res.DownloadURL, "https://api.example.com/api/v1/downloads/"+res.Filename+"?token=") {
		t.Fatalf("unexpected download url %q", res.DownloadURL)
	}
	for i := 0; i < 2; i++ {
		rc, size, err := h.dl.Open(context.Background(), res.Filename, u.Query().Get("token"))
		if err != nil {
			t.Fatalf("Open #%d: %v", i+1, err)
		}
		b, _ := io.ReadAll(rc)
		rc.Close()
		if int64(len(b)) != size || !bytes.HasPrefix(b, []byte("%PDF-")) {
			t.Fatalf("unexpected artifact: %q", b)
		}
	}

	// Audit trail recorded both deliveries.
	q, err := repo.GetQuote(context.Background(), h.db, res.QuoteID)
	if err != nil || len(q.Deliveries) != 2 || q.Fingerprint != string(fp) {
		t.Fatalf("audit = %+v, %v", q, err)
	}
}

func TestSubmit_CustomerEqualsAdmin_OneSend(t *testing.T) {
	h := newHarness(t, "a@x.com")
	req := sampleQuote("A@X.com ")
	if _, err := h.svc.Submit(context.Background(), h.fingerprintOf(t, req), req); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got := h.sender.to(); len(got) != 1 || got[0] != "a@x.com" {
		t.Fatalf("expected exactly one send to the admin, got %v", got)
	}
}

func TestSubmit_NoCustomerEmail_AdminsOnly(t *testing.T) {
	h := newHarness(t, "a@x.com", "c@x.com")
	req := sampleQuote("")
	if _, err := h.svc.Submit(context.Background(), h.fingerprintOf(t, req), req); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got := h.sender.to(); len(got) != 2 {
		t.Fatalf("expected one send per admin, got %v", got)
	}
}

func TestSubmit_DuplicateWithinWindow_NoResend(t *testing.T) {
	h := newHarness(t, "a@x.com")
	req := sampleQuote("b@y.com")
	fp := h.fingerprintOf(t, req)

	if _, err := h.svc.Submit(context.Background(), fp, req); err != nil {
		t.Fatalf("Submit #1: %v", err)
	}
	res, err := h.svc.Submit(context.Background(), fp, req)
	if err != nil {
		t.Fatalf("Submit #2: %v", err)
	}
	if !res.Duplicate {
		t.Fatalf("second submission should be a duplicate")
	}
	if n := len(h.sender.to()); n != 2 {
		t.Fatalf("expected exactly one set of sends (2), got %d", n)
	}
	if h.rend.calls != 1 {
		t.Fatalf("duplicate must not re-render, calls=%d", h.rend.calls)
	}
}

func TestSubmit_ConcurrentDuplicates_SingleDelivery(t *testing.T) {
	h := newHarness(t, "a@x.com")
	req := sampleQuote("b@y.com")
	fp := h.fingerprintOf(t, req)

	var wg sync.WaitGroup
	var mu sync.Mutex
	dups := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.svc.Submit(context.Background(), fp, req)
			if err != nil {
				t.Errorf("Submit: %v", err)
				return
			}
			if res.Duplicate {
				mu.Lock()
				dups++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if dups != 7 {
		t.Fatalf("expected 7 duplicates, got %d", dups)
	}
	if n := len(h.sender.to()); n != 2 {
		t.Fatalf("expected 2 sends, got %d", n)
	}
}

func TestSubmit_Invalid(t *testing.T) {
	h := newHarness(t)
	req := sampleQuote("b@y.com")
	req.Items = nil
	_, err := h.svc.Submit(context.Background(), "fp", req)
	if !errors.Is(err, ErrInvalidQuote) {
		t.Fatalf("expected ErrInvalidQuote, got %v", err)
	}
	if h.cache.Stats().Requests != 0 {
		t.Fatalf("invalid requests must not touch the cache")
	}
}

func TestSubmit_RenderFailure_ReleasesForRetry(t *testing.T) {
	h := newHarness(t)
	req := sampleQuote("b@y.com")
	fp := h.fingerprintOf(t, req)

	h.rend.err = errors.New("boom")
	if _, err := h.svc.Submit(context.Background(), fp, req); !errors.Is(err, ErrRenderFailed) {
		t.Fatalf("expected ErrRenderFailed, got %v", err)
	}
	if len(h.sender.to()) != 0 {
		t.Fatalf("no mail should be sent on render failure")
	}

	h.rend.err = nil
	res, err := h.svc.Submit(context.Background(), fp, req)
	if err != nil || res.Duplicate {
		t.Fatalf("retry should be processed: %+v, %v", res, err)
	}
}

func TestSubmit_StoreFailure(t *testing.T) {
	h := newHarness(t)
	h.store.err = errors.New("disk full")
	req := sampleQuote("")
	fp := h.fingerprintOf(t, req)
	if _, err := h.svc.Submit(context.Background(), fp, req); !errors.Is(err, ErrStoreFailed) {
		t.Fatalf("expected ErrStoreFailed, got %v", err)
	}
	if st := h.cache.CheckAndMarkInFlight(fp); st.Duplicate() {
		t.Fatalf("fingerprint should have been released")
	}
}

func TestSubmit_AllSendsFail_RetryableAndNotProcessed(t *testing.T) {
	h := newHarness(t, "a@x.com")
	h.sender.setFail("a@x.com", errors.New("421 try later"))
	h.sender.setFail("b@y.com", errors.New("421 try later"))
	req := sampleQuote("b@y.com")
	fp := h.fingerprintOf(t, req)

	if _, err := h.svc.Submit(context.Background(), fp, req); !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}

	h.sender.setFail("a@x.com", nil)
	h.sender.setFail("b@y.com", nil)
	res, err := h.svc.Submit(context.Background(), fp, req)
	if err != nil || res.Duplicate || len(res.Sent) != 2 {
		t.Fatalf("retry should deliver to both: %+v, %v", res, err)
	}
}

func TestSubmit_PartialFailure_MarksProcessed(t *testing.T) {
	h := newHarness(t, "a@x.com")
	h.sender.setFail("b@y.com", errors.New("550 mailbox unavailable"))
	req := sampleQuote("b@y.com")
	fp := h.fingerprintOf(t, req)

	before := testutil.ToFloat64(mailSendsTotal.WithLabelValues(domain.RoleCustomer, domain.DeliveryFailed))
	res, err := h.svc.Submit(context.Background(), fp, req)
	if err != nil {
		t.Fatalf("partial failure must not fail the request: %v", err)
	}
	if len(res.Sent) != 1 || len(res.Failed) != 1 || res.Failed[0] != "b@y.com" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got := testutil.ToFloat64(mailSendsTotal.WithLabelValues(domain.RoleCustomer, domain.DeliveryFailed)) - before; got != 1 {
		t.Fatalf("failed-send counter delta = %v", got)
	}

	// Processed within the window: the retry is suppressed.
	h.sender.setFail("b@y.com", nil)
	res, err = h.svc.Submit(context.Background(), fp, req)
	if err != nil || !res.Duplicate {
		t.Fatalf("retry inside window should be a duplicate: %+v, %v", res, err)
	}

	n, err := repo.CountDeliveries(context.Background(), h.db, mustQuoteID(t, h), domain.DeliveryFailed)
	if err != nil || n != 1 {
		t.Fatalf("failed delivery audit count = %d, %v", n, err)
	}
}

func mustQuoteID(t *testing.T, h *harness) string {
	t.Helper()
	items, total, err := h.svc.ListPage(context.Background(), 1, 10)
	if err != nil || total != 1 {
		t.Fatalf("ListPage = %d, %v", total, err)
	}
	return items[0].ID
}

func TestSubmit_SkipsRecipientsAlreadySent(t *testing.T) {
	h := newHarness(t, "a@x.com")
	req := sampleQuote("b@y.com")
	fp := h.fingerprintOf(t, req)

	// Simulate an earlier cycle that reached the admin and then released.
	h.cache.CheckAndMarkInFlight(fp)
	h.cache.MarkSent(fp, "a@x.com")
	h.cache.Release(fp)

	res, err := h.svc.Submit(context.Background(), fp, req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got := h.sender.to(); len(got) != 1 || got[0] != "b@y.com" {
		t.Fatalf("admin must not be mailed twice, sends=%v", got)
	}
	if len(res.Sent) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestSubmit_RetryWithEarlierSendIsProcessedDespiteFailure(t *testing.T) {
	h := newHarness(t, "a@x.com")
	req := sampleQuote("b@y.com")
	fp := h.fingerprintOf(t, req)

	h.cache.CheckAndMarkInFlight(fp)
	h.cache.MarkSent(fp, "a@x.com")
	h.cache.Release(fp)
	h.sender.setFail("b@y.com", errors.New("421 try later"))

	res, err := h.svc.Submit(context.Background(), fp, req)
	if err != nil {
		t.Fatalf("an earlier successful send must not turn this into a delivery failure: %v", err)
	}
	if len(res.Sent) != 0 || len(res.Failed) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if st := h.cache.CheckAndMarkInFlight(fp); !st.Processed {
		t.Fatalf("fingerprint should be processed: %+v", st)
	}
}

func TestSubmit_ComposesPerRole(t *testing.T) {
	h := newHarness(t, "a@x.com")
	req := sampleQuote("b@y.com")
	req.Message = "Urgent please"
	if _, err := h.svc.Submit(context.Background(), h.fingerprintOf(t, req), req); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	for _, m := range h.sender.sent {
		if len(m.Attachments) != 1 || m.Attachments[0].ContentType != render.ContentType {
			t.Fatalf("expected one PDF attachment: %+v", m.Attachments)
		}
		if !strings.Contains(m.Body, "Download: https://api.example.com/api/v1/downloads/") {
			t.Fatalf("body missing download link: %s", m.Body)
		}
		switch m.To {
		case "a@x.com":
			if m.ReplyTo != "b@y.com" || !strings.Contains(m.Body, "Urgent please") {
				t.Fatalf("admin message: %+v", m)
			}
		case "b@y.com":
			if m.Subject != "Your quote" || strings.Contains(m.Body, "Urgent please") {
				t.Fatalf("customer message: %+v", m)
			}
		}
	}
}

// ---------- ListPage() ----------

func TestListPage_NoDB(t *testing.T) {
	s := &QuoteService{}
	items, total, err := s.ListPage(context.Background(), 0, 0)
	if err != nil || total != 0 || len(items) != 0 {
		t.Fatalf("ListPage without DB = %v, %d, %v", items, total, err)
	}
}

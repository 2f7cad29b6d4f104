// Package render turns a quote request into a PDF artifact.
//
// The PDF is laid out as a pdfcpu JSON page description and handed to
// api.Create, so no template engine or headless browser is involved. Long
// item lists continue on further pages.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/tbourn/go-quote-backend/internal/domain"
	"github.com/tbourn/go-quote-backend/internal/fingerprint"
)

// ContentType is the MIME type of every rendered artifact.
const ContentType = "application/pdf"

// Artifact is a rendered document and the name it is stored under.
type Artifact struct {
	Name string
	Data []byte
}

// Meta carries the request-independent inputs of a render.
type Meta struct {
	Fingerprint fingerprint.Fingerprint
	GeneratedAt time.Time
}

// Renderer produces the document for a quote request.
type Renderer interface {
	Render(ctx context.Context, req domain.QuoteRequest, meta Meta) (Artifact, error)
}

// ArtifactName derives the stored filename from the generation time, with
// the fingerprint prefix appended so names stay unique across concurrent
// requests within the same millisecond.
func ArtifactName(at time.Time, fp fingerprint.Fingerprint) string {
	at = at.UTC()
	return fmt.Sprintf("quote-%s-%03d-%s.pdf", at.Format("20060102-150405"), at.Nanosecond()/int(time.Millisecond), fp.Short())
}

// Layout constants in PDF points (A4 portrait, origin upper left).
const (
	marginLeft   = 50.0
	marginTop    = 60.0
	lineHeight   = 16.0
	pageHeight   = 842.0
	marginBottom = 60.0

	colQty   = 330.0
	colUnit  = 400.0
	colTotal = 480.0

	maxDescRunes = 48
)

// PDFRenderer renders quotes with pdfcpu using the built-in Helvetica font.
type PDFRenderer struct {
	// Title is printed at the top of the first page.
	Title string
	// Currency is prefixed to every amount.
	Currency string
	// Locale drives number formatting and name casing.
	Locale language.Tag

	conf *model.Configuration
}

var (
	confOnce sync.Once
	baseConf *model.Configuration
)

// defaultConfiguration returns a pdfcpu configuration that never touches the
// user's config directory.
func defaultConfiguration() *model.Configuration {
	confOnce.Do(func() {
		model.ConfigPath = "disable"
		baseConf = model.NewDefaultConfiguration()
	})
	return baseConf
}

// NewPDFRenderer returns a renderer with English number formatting.
func NewPDFRenderer(title, currency string) *PDFRenderer {
	if strings.TrimSpace(title) == "" {
		title = "Quotation"
	}
	return &PDFRenderer{
		Title:    title,
		Currency: currency,
		Locale:   language.English,
		conf:     defaultConfiguration(),
	}
}

// Render lays out req and returns the PDF bytes.
func (r *PDFRenderer) Render(ctx context.Context, req domain.QuoteRequest, meta Meta) (Artifact, error) {
	tr := otel.Tracer("render/PDFRenderer")
	_, span := tr.Start(ctx, "Render",
		trace.WithAttributes(
			attribute.Int("quote.items", len(req.Items)),
			attribute.String("quote.fingerprint", meta.Fingerprint.Short()),
		),
	)
	defer span.End()

	if meta.GeneratedAt.IsZero() {
		meta.GeneratedAt = time.Now()
	}

	desc, err := json.Marshal(r.document(req, meta))
	if err != nil {
		span.RecordError(err)
		return Artifact{}, fmt.Errorf("encode page description: %w", err)
	}

	conf := r.conf
	if conf == nil {
		conf = defaultConfiguration()
	}
	var buf bytes.Buffer
	if err := api.Create(nil, bytes.NewReader(desc), &buf, conf); err != nil {
		span.RecordError(err)
		return Artifact{}, fmt.Errorf("create pdf: %w", err)
	}

	name := ArtifactName(meta.GeneratedAt, meta.Fingerprint)
	span.SetAttributes(attribute.String("artifact.name", name), attribute.Int("artifact.bytes", buf.Len()))
	return Artifact{Name: name, Data: buf.Bytes()}, nil
}

// pdfcpu JSON page description types. Only the subset used here is modelled.
type (
	pdfDocument struct {
		Paper  string             `json:"paper"`
		Origin string             `json:"origin"`
		Fonts  map[string]pdfFont `json:"fonts"`
		Pages  map[string]pdfPage `json:"pages"`
	}
	pdfFont struct {
		Name  string `json:"name"`
		Size  int    `json:"size"`
		Color string `json:"color,omitempty"`
	}
	pdfPage struct {
		Content pdfContent `json:"content"`
	}
	pdfContent struct {
		Text []pdfText `json:"text"`
	}
	pdfText struct {
		Value string     `json:"value"`
		Pos   [2]float64 `json:"pos"`
		Font  pdfFontRef `json:"font"`
	}
	pdfFontRef struct {
		Name string `json:"name"`
	}
)

// page accumulates text lines for one PDF page.
type page struct {
	y     float64
	lines []pdfText
}

func (p *page) add(x float64, font, value string) {
	p.lines = append(p.lines, pdfText{Value: value, Pos: [2]float64{x, p.y}, Font: pdfFontRef{Name: "$" + font}})
}

func (p *page) newline(n float64) { p.y += lineHeight * n }

func (p *page) full() bool { return p.y > pageHeight-marginBottom }

// document builds the page description for req.
func (r *PDFRenderer) document(req domain.QuoteRequest, meta Meta) pdfDocument {
	pr := message.NewPrinter(r.Locale)
	title := cases.Title(r.Locale)
	money := func(v float64) string { return r.Currency + pr.Sprintf("%.2f", v) }

	var pages []*page
	cur := &page{y: marginTop}
	pages = append(pages, cur)

	cur.add(marginLeft, "title", r.Title)
	cur.newline(2)
	cur.add(marginLeft, "body", "Prepared for: "+title.String(strings.TrimSpace(req.Name)))
	cur.newline(1)
	if c := strings.TrimSpace(req.Company); c != "" {
		cur.add(marginLeft, "body", "Company: "+c)
		cur.newline(1)
	}
	if e := strings.TrimSpace(req.Email); e != "" {
		cur.add(marginLeft, "body", "Email: "+e)
		cur.newline(1)
	}
	if p := strings.TrimSpace(req.Phone); p != "" {
		cur.add(marginLeft, "body", "Phone: "+p)
		cur.newline(1)
	}
	cur.add(marginLeft, "small", "Date: "+meta.GeneratedAt.UTC().Format("2 January 2006 15:04 MST"))
	cur.newline(1)
	cur.add(marginLeft, "small", "Reference: "+meta.Fingerprint.Short())
	cur.newline(2)

	header := func(p *page) {
		p.add(marginLeft, "bold", "Description")
		p.add(colQty, "bold", "Qty")
		p.add(colUnit, "bold", "Unit")
		p.add(colTotal, "bold", "Total")
		p.newline(1.5)
	}
	header(cur)

	for _, it := range req.Items {
		if cur.full() {
			cur = &page{y: marginTop}
			pages = append(pages, cur)
			header(cur)
		}
		unit := "-"
		if it.UnitPrice != nil {
			unit = money(*it.UnitPrice)
		}
		cur.add(marginLeft, "body", clip(strings.TrimSpace(it.Description), maxDescRunes))
		cur.add(colQty, "body", pr.Sprintf("%v", it.Quantity))
		cur.add(colUnit, "body", unit)
		cur.add(colTotal, "body", money(it.LineTotal()))
		cur.newline(1)
	}

	cur.newline(0.5)
	cur.add(colUnit, "bold", "Total")
	cur.add(colTotal, "bold", money(req.GrandTotal()))
	cur.newline(2)

	if msg := strings.TrimSpace(req.Message); msg != "" {
		cur.add(marginLeft, "bold", "Notes")
		cur.newline(1)
		for _, ln := range wrap(msg, 90) {
			if cur.full() {
				cur = &page{y: marginTop}
				pages = append(pages, cur)
			}
			cur.add(marginLeft, "body", ln)
			cur.newline(1)
		}
	}

	doc := pdfDocument{
		Paper:  "A4P",
		Origin: "UpperLeft",
		Fonts: map[string]pdfFont{
			"title": {Name: "Helvetica-Bold", Size: 20},
			"bold":  {Name: "Helvetica-Bold", Size: 11},
			"body":  {Name: "Helvetica", Size: 11},
			"small": {Name: "Helvetica", Size: 9, Color: "#555555"},
		},
		Pages: make(map[string]pdfPage, len(pages)),
	}
	for i, p := range pages {
		doc.Pages[fmt.Sprint(i+1)] = pdfPage{Content: pdfContent{Text: p.lines}}
	}
	return doc
}

// clip truncates s to max runes, marking the cut with "...".
func clip(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

// wrap splits s into lines of at most width runes on word boundaries.
// Existing line breaks are kept.
func wrap(s string, width int) []string {
	var out []string
	for _, para := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			out = append(out, "")
			continue
		}
		line := ""
		for _, w := range words {
			w = clip(w, width)
			switch {
			case line == "":
				line = w
			case len([]rune(line))+1+len([]rune(w)) > width:
				out = append(out, line)
				line = w
			default:
				line += " " + w
			}
		}
		out = append(out, line)
	}
	return out
}

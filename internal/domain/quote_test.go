package domain

import (
	"strings"
	"testing"
)

func f64(v float64) *float64 { return &v }

func validRequest() QuoteRequest {
	return QuoteRequest{
		Name:  "Ada",
		Email: "ada@example.com",
		Items: []LineItem{{Description: "Bracket", Quantity: 2, UnitPrice: f64(3.5)}},
	}
}

func TestValidate_OK(t *testing.T) {
	if err := validRequest().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_Failures(t *testing.T) {
	cases := map[string]func(*QuoteRequest){
		"blank name":       func(q *QuoteRequest) { q.Name = "  " },
		"bad email":        func(q *QuoteRequest) { q.Email = "not-an-address" },
		"no items":         func(q *QuoteRequest) { q.Items = nil },
		"blank item":       func(q *QuoteRequest) { q.Items[0].Description = "" },
		"zero quantity":    func(q *QuoteRequest) { q.Items[0].Quantity = 0 },
		"no price":         func(q *QuoteRequest) { q.Items[0].UnitPrice = nil },
		"negative total":   func(q *QuoteRequest) { q.Items[0].Total = f64(-1) },
		"long message":     func(q *QuoteRequest) { q.Message = strings.Repeat("x", MaxMessageLen+1) },
		"long company":     func(q *QuoteRequest) { q.Company = strings.Repeat("x", MaxFieldLength+1) },
		"too many items":   func(q *QuoteRequest) { q.Items = make([]LineItem, MaxItems+1) },
	}
	for name, mut := range cases {
		q := validRequest()
		mut(&q)
		if err := q.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestValidate_EmailOptional(t *testing.T) {
	q := validRequest()
	q.Email = ""
	if err := q.Validate(); err != nil {
		t.Fatalf("email should be optional: %v", err)
	}
}

func TestTotals(t *testing.T) {
	q := QuoteRequest{Items: []LineItem{
		{Quantity: 2, UnitPrice: f64(3.5)},
		{Quantity: 4, UnitPrice: f64(1), Total: f64(3)}, // explicit total wins
		{Quantity: 1},
	}}
	if got := q.Items[0].LineTotal(); got != 7 {
		t.Fatalf("LineTotal = %v, want 7", got)
	}
	if got := q.GrandTotal(); got != 10 {
		t.Fatalf("GrandTotal = %v, want 10", got)
	}
}

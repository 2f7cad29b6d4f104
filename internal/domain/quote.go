package domain

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

// Request limits.
const (
	MaxItems       = 200
	MaxFieldLength = 255
	MaxMessageLen  = 4000
)

// LineItem is one priced row of a quote request. At least one of UnitPrice
// and Total must be present; when only UnitPrice is given the total is
// Quantity * UnitPrice.
type LineItem struct {
	Description string   `json:"description" binding:"required" example:"Steel bracket, 40mm"`
	Quantity    float64  `json:"quantity"    binding:"required" example:"12"`
	UnitPrice   *float64 `json:"unitPrice,omitempty" example:"3.5"`
	Total       *float64 `json:"total,omitempty"     example:"42"`
}

// LineTotal returns the explicit total when present, otherwise
// Quantity * UnitPrice.
func (li LineItem) LineTotal() float64 {
	if li.Total != nil {
		return *li.Total
	}
	if li.UnitPrice != nil {
		return li.Quantity * *li.UnitPrice
	}
	return 0
}

// QuoteRequest is the inbound payload of POST /quotes.
type QuoteRequest struct {
	Name    string     `json:"name"              binding:"required" example:"Ada Lovelace"`
	Email   string     `json:"email,omitempty"   example:"ada@example.com"`
	Company string     `json:"company,omitempty" example:"Analytical Engines Ltd"`
	Phone   string     `json:"phone,omitempty"   example:"+44 20 7946 0000"`
	Items   []LineItem `json:"items"             binding:"required"`
	Message string     `json:"message,omitempty" example:"Delivery needed by March."`
}

// GrandTotal sums the line totals of all items.
func (q QuoteRequest) GrandTotal() float64 {
	var sum float64
	for _, it := range q.Items {
		sum += it.LineTotal()
	}
	return sum
}

// Validate checks required fields and bounds. The returned error describes
// the first problem found and is safe to show to the requester.
func (q QuoteRequest) Validate() error {
	if strings.TrimSpace(q.Name) == "" {
		return errors.New("name is required")
	}
	if len(q.Name) > MaxFieldLength || len(q.Company) > MaxFieldLength || len(q.Phone) > MaxFieldLength {
		return fmt.Errorf("fields must be at most %d characters", MaxFieldLength)
	}
	if e := strings.TrimSpace(q.Email); e != "" {
		if _, err := mail.ParseAddress(e); err != nil {
			return errors.New("email is not a valid address")
		}
	}
	if len(q.Message) > MaxMessageLen {
		return fmt.Errorf("message must be at most %d characters", MaxMessageLen)
	}
	if len(q.Items) == 0 {
		return errors.New("at least one item is required")
	}
	if len(q.Items) > MaxItems {
		return fmt.Errorf("at most %d items are allowed", MaxItems)
	}
	for i, it := range q.Items {
		if strings.TrimSpace(it.Description) == "" {
			return fmt.Errorf("item %d: description is required", i+1)
		}
		if it.Quantity <= 0 {
			return fmt.Errorf("item %d: quantity must be positive", i+1)
		}
		if it.UnitPrice == nil && it.Total == nil {
			return fmt.Errorf("item %d: unitPrice or total is required", i+1)
		}
		if (it.UnitPrice != nil && *it.UnitPrice < 0) || (it.Total != nil && *it.Total < 0) {
			return fmt.Errorf("item %d: prices must not be negative", i+1)
		}
	}
	return nil
}

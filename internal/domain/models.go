// Package domain defines the persistence models for quotes and their
// deliveries, and the inbound quote request shape. The GORM models form the
// audit trail of the service; they are never consulted for duplicate
// suppression.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Delivery roles and statuses.
const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"

	DeliverySent   = "sent"
	DeliveryFailed = "failed"
)

// Quote records one processed quote request.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - Fingerprint: keyed digest of the request body (indexed, not unique:
//     the same body may be processed again once the window has passed).
//   - Name / Email / Company: requester identity as submitted.
//   - Filename: generated artifact name, unique per quote.
//   - ItemCount: number of line items on the quote.
//   - Total: computed grand total of all line items.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker.
type Quote struct {
	ID          string         `json:"id"          gorm:"type:char(36);primaryKey"`
	Fingerprint string         `json:"fingerprint" gorm:"type:char(64);not null;index:idx_quote_fp"`
	Name        string         `json:"name"        gorm:"type:varchar(255);not null"`
	Email       string         `json:"email,omitempty"   gorm:"type:varchar(320)"`
	Company     string         `json:"company,omitempty" gorm:"type:varchar(255)"`
	Filename    string         `json:"filename"    gorm:"type:varchar(255);not null;uniqueIndex:ux_quote_filename"`
	ItemCount   int            `json:"item_count"  gorm:"not null"`
	Total       float64        `json:"total"`
	CreatedAt   time.Time      `json:"created_at"  gorm:"index:idx_quote_created"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-"           gorm:"index"`

	Deliveries []Delivery `json:"deliveries,omitempty" gorm:"foreignKey:QuoteID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Quote.
func (Quote) TableName() string { return "quotes" }

// Delivery records one email attempt for a quote.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - QuoteID: owning quote (indexed, cascade on delete).
//   - Recipient: destination address as sent.
//   - Role: "admin" or "customer" (enforced by DB constraint).
//   - Status: "sent" or "failed" (enforced by DB constraint).
//   - Error: transport error text for failed attempts.
type Delivery struct {
	ID        string    `json:"id"        gorm:"type:char(36);primaryKey"`
	QuoteID   string    `json:"quote_id"  gorm:"type:char(36);not null;index:idx_quote_deliveries,priority:1"`
	Recipient string    `json:"recipient" gorm:"type:varchar(320);not null"`
	Role      string    `json:"role"      gorm:"type:varchar(16);not null;check:role IN ('admin','customer')"`
	Status    string    `json:"status"    gorm:"type:varchar(16);not null;check:status IN ('sent','failed')"`
	Error     string    `json:"error,omitempty" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_quote_deliveries,priority:2"`

	Quote Quote `json:"-" gorm:"foreignKey:QuoteID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Delivery.
func (Delivery) TableName() string { return "deliveries" }

// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Quote and
// Delivery audit models.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. They follow the "thin repository"
// approach: no business logic, only persistence and query composition.
//
// Error semantics:
//   - When a quote is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-quote-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateQuote inserts q together with its deliveries in one transaction.
// Missing IDs are generated and CreatedAt defaults to now (UTC).
func CreateQuote(ctx context.Context, db *gorm.DB, q *domain.Quote, deliveries []domain.Delivery) error {
	now := time.Now().UTC()
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = now
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Deliveries").Create(q).Error; err != nil {
			return err
		}
		if len(deliveries) == 0 {
			return nil
		}
		for i := range deliveries {
			if deliveries[i].ID == "" {
				deliveries[i].ID = uuid.NewString()
			}
			deliveries[i].QuoteID = q.ID
			if deliveries[i].CreatedAt.IsZero() {
				deliveries[i].CreatedAt = now
			}
		}
		if err := tx.Omit("Quote").Create(&deliveries).Error; err != nil {
			return err
		}
		q.Deliveries = deliveries
		return nil
	})
}

// GetQuote fetches a quote with its deliveries.
func GetQuote(ctx context.Context, db *gorm.DB, id string) (*domain.Quote, error) {
	var q domain.Quote
	err := db.WithContext(ctx).
		Preload("Deliveries", func(tx *gorm.DB) *gorm.DB { return tx.Order("created_at asc") }).
		Where("id = ?", id).
		First(&q).Error
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// GetQuoteByFilename fetches the quote that produced the named artifact.
func GetQuoteByFilename(ctx context.Context, db *gorm.DB, filename string) (*domain.Quote, error) {
	var q domain.Quote
	if err := db.WithContext(ctx).Where("filename = ?", filename).First(&q).Error; err != nil {
		return nil, err
	}
	return &q, nil
}

// CountQuotes returns the total number of recorded quotes.
func CountQuotes(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Quote{}).Count(&total).Error
	return total, err
}

// ListQuotesPage returns a page of quotes, newest first, with their
// deliveries preloaded.
//
// The caller is responsible for computing offset and limit (e.g., (page-1)*pageSize).
func ListQuotesPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Quote, error) {
	var out []domain.Quote
	err := db.WithContext(ctx).
		Preload("Deliveries", func(tx *gorm.DB) *gorm.DB { return tx.Order("created_at asc") }).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountDeliveries returns how many deliveries with the given status exist
// for a quote.
func CountDeliveries(ctx context.Context, db *gorm.DB, quoteID, status string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Delivery{}).
		Where("quote_id = ? AND status = ?", quoteID, status).
		Count(&n).Error
	return n, err
}

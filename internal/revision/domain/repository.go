package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/quoteforgelabs/quoteforge/pkg/db/pagination"
	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("revision not found")
	// ErrVersionConflict signals that another writer claimed the version
	// slot first. Callers reload the quote and retry.
	ErrVersionConflict = errors.New("revision version conflict")
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, rev *QuoteRevision) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*QuoteRevision, error)
	// FindLatest returns the highest-version revision for a quote, or nil
	// when the quote has none.
	FindLatest(ctx context.Context, db *gorm.DB, orgID, quoteID snowflake.ID) (*QuoteRevision, error)
	ListByQuote(ctx context.Context, db *gorm.DB, orgID, quoteID snowflake.ID, page pagination.Pagination) ([]*QuoteRevision, *pagination.PageInfo, error)
}

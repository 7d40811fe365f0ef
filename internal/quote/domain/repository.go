package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("quote_not_found")

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, q *Quote) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Quote, error)
	// UpdatePricingState advances the quote's revision baseline with an
	// optimistic-concurrency check: the update applies only when the
	// stored RevisionVersion still equals expectedVersion. Returns false
	// when another writer won the race.
	UpdatePricingState(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, expectedVersion int, hash string, newVersion int) (bool, error)
	UpdateSelectedLines(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, lines []SelectedLine, subtotal float64) error
}

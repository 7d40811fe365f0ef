package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/bwmarrin/snowflake"
	quotedomain "github.com/quoteforgelabs/quoteforge/internal/quote/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() quotedomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, q *quotedomain.Quote) error {
	return db.WithContext(ctx).Create(q).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*quotedomain.Quote, error) {
	var q quotedomain.Quote
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&q).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, quotedomain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *repo) UpdatePricingState(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, expectedVersion int, hash string, newVersion int) (bool, error) {
	result := db.WithContext(ctx).
		Model(&quotedomain.Quote{}).
		Where("org_id = ? AND id = ? AND revision_version = ?", orgID, id, expectedVersion).
		Updates(map[string]any{
			"pricing_hash":     hash,
			"revision_version": newVersion,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) UpdateSelectedLines(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, lines []quotedomain.SelectedLine, subtotal float64) error {
	raw, err := json.Marshal(lines)
	if err != nil {
		return err
	}
	return db.WithContext(ctx).
		Model(&quotedomain.Quote{}).
		Where("org_id = ? AND id = ?", orgID, id).
		Updates(map[string]any{
			"lines":             raw,
			"selected_subtotal": subtotal,
		}).Error
}

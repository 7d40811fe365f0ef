package repository

import (
	"context"
	"errors"
	"strconv"

	"github.com/bwmarrin/snowflake"
	revisiondomain "github.com/quoteforgelabs/quoteforge/internal/revision/domain"
	"github.com/quoteforgelabs/quoteforge/pkg/db"
	"github.com/quoteforgelabs/quoteforge/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() revisiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, rev *revisiondomain.QuoteRevision) error {
	err := tx.WithContext(ctx).Create(rev).Error
	if db.IsDuplicateKeyErr(err) {
		return revisiondomain.ErrVersionConflict
	}
	return err
}

func (r *repo) FindByID(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID) (*revisiondomain.QuoteRevision, error) {
	var rev revisiondomain.QuoteRevision
	err := tx.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&rev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, revisiondomain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rev, nil
}

func (r *repo) FindLatest(ctx context.Context, tx *gorm.DB, orgID, quoteID snowflake.ID) (*revisiondomain.QuoteRevision, error) {
	var rev revisiondomain.QuoteRevision
	err := tx.WithContext(ctx).
		Where("org_id = ? AND quote_id = ?", orgID, quoteID).
		Order("version DESC").
		First(&rev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rev, nil
}

func (r *repo) ListByQuote(ctx context.Context, tx *gorm.DB, orgID, quoteID snowflake.ID, page pagination.Pagination) ([]*revisiondomain.QuoteRevision, *pagination.PageInfo, error) {
	limit := page.PageSize
	if limit <= 0 {
		limit = 10
	}

	query := tx.WithContext(ctx).
		Model(&revisiondomain.QuoteRevision{}).
		Where("org_id = ? AND quote_id = ?", orgID, quoteID)

	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, nil, err
		}
		afterVersion, err := strconv.Atoi(cursor.ID)
		if err != nil {
			return nil, nil, err
		}
		query = query.Where("version < ?", afterVersion)
	}

	var items []*revisiondomain.QuoteRevision
	err := query.
		Order("version DESC").
		Limit(limit + 1).
		Find(&items).Error
	if err != nil {
		return nil, nil, err
	}

	pageInfo, items := pagination.BuildCursorPageInfo(items, int32(limit), func(rev *revisiondomain.QuoteRevision) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: strconv.Itoa(rev.Version)})
		return token
	})
	return items, pageInfo, nil
}

package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/quoteforgelabs/quoteforge/internal/clock"
	"github.com/quoteforgelabs/quoteforge/internal/pricing/diff"
	pricingdomain "github.com/quoteforgelabs/quoteforge/internal/pricing/domain"
	"github.com/quoteforgelabs/quoteforge/internal/pricinghash"
	quotedomain "github.com/quoteforgelabs/quoteforge/internal/quote/domain"
	revisiondomain "github.com/quoteforgelabs/quoteforge/internal/revision/domain"
	"github.com/quoteforgelabs/quoteforge/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// maxConflictRetries bounds the optimistic-concurrency retry loop. Conflicts
// only occur when two writers race on the same quote, so contention beyond
// this is a caller bug, not bad luck.
const maxConflictRetries = 3

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      revisiondomain.Repository
	QuoteRepo quotedomain.Repository
	Catalog   *pricingdomain.Catalog
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      revisiondomain.Repository
	quoteRepo quotedomain.Repository
	catalog   *pricingdomain.Catalog
}

func New(p Params) revisiondomain.Writer {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("revision.writer"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		quoteRepo: p.QuoteRepo,
		catalog:   p.Catalog,
	}
}

func (s *Service) ShouldCreateRevision(ctx context.Context, orgID, quoteID snowflake.ID, newHash string) (bool, error) {
	q, err := s.quoteRepo.FindByID(ctx, s.db, orgID, quoteID)
	if err != nil {
		return false, err
	}
	if q.RevisionVersion == 0 {
		return true, nil
	}
	return q.PricingHash != newHash, nil
}

func (s *Service) CreateRevisionIfChanged(ctx context.Context, in revisiondomain.CreateRevisionInput) (*revisiondomain.QuoteRevision, error) {
	newHash, err := pricinghash.ComputeHash(in.Snapshot)
	if err != nil {
		return nil, err
	}

	if in.EventType != revisiondomain.EventRestore {
		should, err := s.ShouldCreateRevision(ctx, in.OrgID, in.QuoteID, newHash)
		if err != nil {
			return nil, err
		}
		if !should {
			s.log.Debug("skipping revision, pricing hash unchanged",
				zap.String("quote_id", in.QuoteID.String()),
				zap.String("pricing_hash", newHash))
			return nil, nil
		}
	}

	snapJSON, err := json.Marshal(in.Snapshot)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		q, err := s.quoteRepo.FindByID(ctx, s.db, in.OrgID, in.QuoteID)
		if err != nil {
			return nil, err
		}

		diffJSON, err := s.diffAgainstLatest(ctx, in.OrgID, in.QuoteID, in.Snapshot)
		if err != nil {
			return nil, err
		}

		rev := &revisiondomain.QuoteRevision{
			ID:                     s.genID.Generate(),
			OrgID:                  in.OrgID,
			QuoteID:                in.QuoteID,
			Version:                q.RevisionVersion + 1,
			UserID:                 in.UserID,
			EventType:              in.EventType,
			PricingHash:            newHash,
			SnapshotJSON:           snapJSON,
			DiffJSON:               diffJSON,
			Note:                   in.Note,
			RestoredFromRevisionID: in.RestoredFromRevisionID,
			CreatedAt:              s.clock.Now(),
		}

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			ok, err := s.quoteRepo.UpdatePricingState(ctx, tx, in.OrgID, in.QuoteID, q.RevisionVersion, newHash, rev.Version)
			if err != nil {
				return err
			}
			if !ok {
				return revisiondomain.ErrVersionConflict
			}
			return s.repo.Insert(ctx, tx, rev)
		})
		if errors.Is(err, revisiondomain.ErrVersionConflict) {
			s.log.Warn("revision version conflict, retrying",
				zap.String("quote_id", in.QuoteID.String()),
				zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return nil, err
		}

		s.log.Info("created revision",
			zap.String("quote_id", in.QuoteID.String()),
			zap.String("revision_id", rev.ID.String()),
			zap.Int("version", rev.Version),
			zap.String("event_type", in.EventType))
		return rev, nil
	}
	return nil, revisiondomain.ErrVersionConflict
}

func (s *Service) Restore(ctx context.Context, orgID, quoteID, revisionID snowflake.ID, userID *snowflake.ID, note string) (*revisiondomain.QuoteRevision, error) {
	source, err := s.repo.FindByID(ctx, s.db, orgID, revisionID)
	if err != nil {
		return nil, err
	}
	if source.QuoteID != quoteID {
		return nil, revisiondomain.ErrNotFound
	}
	snap, err := source.Snapshot()
	if err != nil {
		return nil, err
	}

	return s.CreateRevisionIfChanged(ctx, revisiondomain.CreateRevisionInput{
		OrgID:                  orgID,
		QuoteID:                quoteID,
		UserID:                 userID,
		EventType:              revisiondomain.EventRestore,
		Snapshot:               snap,
		Note:                   note,
		RestoredFromRevisionID: &revisionID,
	})
}

func (s *Service) Get(ctx context.Context, orgID, id snowflake.ID) (*revisiondomain.QuoteRevision, error) {
	return s.repo.FindByID(ctx, s.db, orgID, id)
}

func (s *Service) List(ctx context.Context, orgID, quoteID snowflake.ID, page pagination.Pagination) ([]*revisiondomain.QuoteRevision, *pagination.PageInfo, error) {
	return s.repo.ListByQuote(ctx, s.db, orgID, quoteID, page)
}

func (s *Service) Compare(ctx context.Context, orgID, quoteID, aID, bID snowflake.ID) (*revisiondomain.Comparison, error) {
	a, err := s.repo.FindByID(ctx, s.db, orgID, aID)
	if err != nil {
		return nil, err
	}
	b, err := s.repo.FindByID(ctx, s.db, orgID, bID)
	if err != nil {
		return nil, err
	}
	if a.QuoteID != quoteID || b.QuoteID != quoteID {
		return nil, revisiondomain.ErrNotFound
	}

	aSnap, err := a.Snapshot()
	if err != nil {
		return nil, err
	}
	bSnap, err := b.Snapshot()
	if err != nil {
		return nil, err
	}

	d := diff.GeneratePricingDiff(
		pricingRowFromSnapshot(aSnap),
		pricingRowFromSnapshot(bSnap),
		s.diffMetadata(aSnap, bSnap),
	)
	return &revisiondomain.Comparison{A: a, B: b, Diff: d}, nil
}

// diffAgainstLatest builds the diff_json for a candidate snapshot against
// the immediately preceding revision. First revision has no diff.
func (s *Service) diffAgainstLatest(ctx context.Context, orgID, quoteID snowflake.ID, snap quotedomain.Snapshot) (datatypes.JSON, error) {
	prev, err := s.repo.FindLatest(ctx, s.db, orgID, quoteID)
	if err != nil {
		return nil, err
	}
	if prev == nil {
		return nil, nil
	}
	prevSnap, err := prev.Snapshot()
	if err != nil {
		return nil, err
	}

	d := diff.GeneratePricingDiff(
		pricingRowFromSnapshot(prevSnap),
		pricingRowFromSnapshot(snap),
		s.diffMetadata(prevSnap, snap),
	)
	return json.Marshal(d)
}

func (s *Service) diffMetadata(prev, next quotedomain.Snapshot) diff.Metadata {
	return diff.Metadata{
		OldPricingVersion: s.pricingVersion(prev),
		NewPricingVersion: s.pricingVersion(next),
		OldTax:            snapshotTax(prev),
		NewTax:            snapshotTax(next),
	}
}

func (s *Service) pricingVersion(snap quotedomain.Snapshot) string {
	for _, line := range snap.Lines {
		if v, ok := line.Outputs["pricing_version"].(string); ok && v != "" {
			return v
		}
	}
	return s.catalog.Version
}

package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	quotedomain "github.com/quoteforgelabs/quoteforge/internal/quote/domain"
	"github.com/quoteforgelabs/quoteforge/pkg/db/pagination"
)

// CreateRevisionInput describes a candidate revision. The writer decides
// whether it actually becomes one.
type CreateRevisionInput struct {
	OrgID     snowflake.ID
	QuoteID   snowflake.ID
	UserID    *snowflake.ID
	EventType string
	Snapshot  quotedomain.Snapshot
	Note      string

	RestoredFromRevisionID *snowflake.ID
}

// Comparison is the result of comparing two revisions of the same quote.
type Comparison struct {
	A    *QuoteRevision `json:"a"`
	B    *QuoteRevision `json:"b"`
	Diff any            `json:"diff_json"`
}

type Writer interface {
	// ShouldCreateRevision reports whether newHash differs from the
	// quote's current baseline. Always true when no revision exists yet.
	ShouldCreateRevision(ctx context.Context, orgID, quoteID snowflake.ID, newHash string) (bool, error)

	// CreateRevisionIfChanged hashes the snapshot and persists a revision
	// when warranted. Returns nil without error when the hash is unchanged
	// and the event type does not force a revision.
	CreateRevisionIfChanged(ctx context.Context, in CreateRevisionInput) (*QuoteRevision, error)

	// Restore creates a new revision from a prior revision's snapshot,
	// bypassing the hash gate, and resets the quote baseline to it.
	Restore(ctx context.Context, orgID, quoteID, revisionID snowflake.ID, userID *snowflake.ID, note string) (*QuoteRevision, error)

	Get(ctx context.Context, orgID, id snowflake.ID) (*QuoteRevision, error)
	List(ctx context.Context, orgID, quoteID snowflake.ID, page pagination.Pagination) ([]*QuoteRevision, *pagination.PageInfo, error)
	Compare(ctx context.Context, orgID, quoteID, aID, bID snowflake.ID) (*Comparison, error)
}

// Package store is the typed gateway to the backing database: the Store
// Adapter named in the system overview. It hides the wide-column driver
// behind a small set of operations grouped into single-row upserts,
// single-partition range reads, and grouped writes within one partition.
//
// Every per-conversation table is conceptually partitioned by
// conversation_id, mirroring a wide-column store's partitioning: every hot
// path (tree listing, children lookup, branch path, point reads) touches
// exactly one partition. Cross-partition atomicity is never attempted.
package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/branchweave/branchweave/pkg/convo"
)

// Consistency mirrors a wide-column store's consistency level. It is
// carried on the context of a call rather than threaded through every
// signature; backends that have no real notion of consistency (the
// in-memory backend, a single-node SQLite file) treat every level the
// same way but still honor the knob so callers can exercise it.
type Consistency string

const (
	// ConsistencyLocalQuorum is the default for writes.
	ConsistencyLocalQuorum Consistency = "LOCAL_QUORUM"
	// ConsistencyLocalOne is the default for reads.
	ConsistencyLocalOne Consistency = "LOCAL_ONE"
)

type consistencyKey struct{}

// WithConsistency attaches a consistency level to ctx for the store calls
// made with it.
func WithConsistency(ctx context.Context, c Consistency) context.Context {
	return context.WithValue(ctx, consistencyKey{}, c)
}

// ConsistencyFrom reads the consistency level attached to ctx, defaulting
// to def when none was set.
func ConsistencyFrom(ctx context.Context, def Consistency) Consistency {
	if c, ok := ctx.Value(consistencyKey{}).(Consistency); ok {
		return c
	}
	return def
}

// MessageWrite is the grouped write C3's append protocol issues on a
// single conversation partition: the message row plus its child-index
// entry, inserted together so readers never observe one without the
// other.
type MessageWrite struct {
	Message *convo.Message
}

// Store is the C1 Store Adapter surface consumed by the repository,
// branch, fork, and share components. Implementations must guarantee that
// PutMessage (and PutMessages) write the message row and its child-index
// entry as one grouped, single-partition operation.
type Store interface {
	// Conversations (single-row upserts / point reads).
	PutConversation(ctx context.Context, c *convo.Conversation) error
	GetConversation(ctx context.Context, conversationID uuid.UUID) (*convo.Conversation, error)
	DeleteConversation(ctx context.Context, conversationID uuid.UUID) error

	// Messages (grouped writes within the conversation partition).
	PutMessage(ctx context.Context, m *convo.Message) error
	PutMessages(ctx context.Context, ms []*convo.Message) error
	GetMessage(ctx context.Context, conversationID, messageID uuid.UUID) (*convo.Message, error)
	GetMessagesByIDs(ctx context.Context, conversationID uuid.UUID, ids []uuid.UUID) ([]*convo.Message, error)
	GetChildren(ctx context.Context, conversationID, parentMessageID uuid.UUID) ([]*convo.Message, error)
	GetAllMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*convo.Message, int, error)
	CountMessages(ctx context.Context, conversationID uuid.UUID) (int, error)

	// Branches (partition scan by conversation_id, point reads/writes by
	// (conversation_id, branch_id)).
	PutBranch(ctx context.Context, b *convo.Branch) error
	GetBranch(ctx context.Context, conversationID, branchID uuid.UUID) (*convo.Branch, error)
	ListBranches(ctx context.Context, conversationID uuid.UUID, activeOnly bool) ([]*convo.Branch, error)
	// CASAdvanceLeaf atomically advances a branch's leaf only if its
	// current leaf still equals expectedLeaf, implementing the
	// compare-and-set the branch manager relies on for monotonic
	// advancement without locking. ok is false (and no error) when the
	// current leaf no longer matches expectedLeaf.
	CASAdvanceLeaf(ctx context.Context, conversationID, branchID, expectedLeaf, newLeaf uuid.UUID) (ok bool, err error)
	UpdateBranch(ctx context.Context, b *convo.Branch) error
	DeleteBranch(ctx context.Context, conversationID, branchID uuid.UUID, hard bool) error

	// Shares: the primary table keyed by (conversation_id, shared_with)
	// plus a reverse index keyed by shared_with, updated best-effort per
	// the share ledger's at-least-once reconciliation policy.
	PutShare(ctx context.Context, s *convo.Share) error
	GetShare(ctx context.Context, conversationID uuid.UUID, sharedWith string) (*convo.Share, error)
	ListShares(ctx context.Context, conversationID uuid.UUID) ([]*convo.Share, error)
	DeleteShare(ctx context.Context, conversationID uuid.UUID, sharedWith string) error
	ListSharesForUser(ctx context.Context, userID string) ([]*convo.Share, error)

	// User activity index (supplemental, recovered from the original
	// implementation's user_conversations table).
	UpsertUserActivity(ctx context.Context, a *convo.UserActivity) error
	ListUserActivity(ctx context.Context, userID string, limit int) ([]*convo.UserActivity, error)

	Close() error
}

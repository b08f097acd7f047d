// Package share implements the Share Ledger: per-user permission grants
// on a conversation, and the user-activity index recovered from the
// original implementation's user_conversations table.
package share

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/branchweave/branchweave/pkg/apierr"
	"github.com/branchweave/branchweave/pkg/convo"
	"github.com/branchweave/branchweave/pkg/store"
)

// Ledger is the C6 Share Ledger.
type Ledger struct {
	store store.Store
}

// New builds a Ledger over st.
func New(st store.Store) *Ledger {
	return &Ledger{store: st}
}

// Grant upserts a permission grant. Re-granting the same (conversation,
// grantee) pair replaces the prior permission, per I-Share-Unique.
func (l *Ledger) Grant(ctx context.Context, conversationID uuid.UUID, grantee string, permission convo.Permission, grantedBy string) (*convo.Share, error) {
	if !convo.ValidPermission(permission) {
		return nil, apierr.InvalidInput("unrecognized permission %q", permission)
	}
	if grantee == "" {
		return nil, apierr.InvalidInput("grantee must not be empty")
	}

	s := &convo.Share{
		ConversationID: conversationID,
		SharedWith:     grantee,
		Permission:     permission,
		SharedAt:       time.Now().UTC(),
		SharedBy:       grantedBy,
	}
	if err := l.store.PutShare(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// List is a partition scan of every share on a conversation.
func (l *Ledger) List(ctx context.Context, conversationID uuid.UUID) ([]*convo.Share, error) {
	return l.store.ListShares(ctx, conversationID)
}

// Revoke deletes a share by key, surfacing NotFound if absent so the HTTP
// layer can decide whether that maps to 404 or 200.
func (l *Ledger) Revoke(ctx context.Context, conversationID uuid.UUID, grantee string) error {
	return l.store.DeleteShare(ctx, conversationID, grantee)
}

// ListForUser is the reverse-index read: every conversation shared with
// user, tolerant of entries not yet reconciled from a very recent grant.
func (l *Ledger) ListForUser(ctx context.Context, user string) ([]*convo.Share, error) {
	return l.store.ListSharesForUser(ctx, user)
}

// TouchActivity records that user most recently interacted with
// conversationID, optionally while working on a particular branch.
func (l *Ledger) TouchActivity(ctx context.Context, user string, conversationID uuid.UUID, activeBranch *uuid.UUID) error {
	return l.store.UpsertUserActivity(ctx, &convo.UserActivity{
		UserID:         user,
		ConversationID: conversationID,
		ActiveBranchID: activeBranch,
		LastActivity:   time.Now().UTC(),
	})
}

// ListActivity returns a user's most recently touched conversations, most
// recent first, bounded by limit (<=0 means unbounded).
func (l *Ledger) ListActivity(ctx context.Context, user string, limit int) ([]*convo.UserActivity, error) {
	return l.store.ListUserActivity(ctx, user, limit)
}

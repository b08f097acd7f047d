// Package branch implements the Branch Manager: named leaf pointers over
// a conversation's message tree, advanced monotonically on branch-tagged
// appends and relocatable by explicit update.
package branch

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/branchweave/branchweave/pkg/apierr"
	"github.com/branchweave/branchweave/pkg/convo"
	"github.com/branchweave/branchweave/pkg/events"
	"github.com/branchweave/branchweave/pkg/events/nop"
	"github.com/branchweave/branchweave/pkg/store"
)

// Manager is the C4 Branch Manager.
type Manager struct {
	store     store.Store
	publisher events.Publisher
}

// New builds a Manager over st. A nil publisher falls back to a no-op one.
func New(st store.Store, publisher events.Publisher) *Manager {
	if publisher == nil {
		publisher = nop.NewPublisher()
	}
	return &Manager{store: st, publisher: publisher}
}

// CreateBranch validates that leafMessageID exists in the conversation,
// then stores a new active branch pointing at it.
func (m *Manager) CreateBranch(ctx context.Context, conversationID uuid.UUID, branchName string, leafMessageID uuid.UUID, createdBy string) (*convo.Branch, error) {
	if branchName == "" {
		return nil, apierr.InvalidInput("branch_name must not be empty")
	}
	if _, err := m.store.GetMessage(ctx, conversationID, leafMessageID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	b := &convo.Branch{
		BranchID:       uuid.New(),
		ConversationID: conversationID,
		BranchName:     branchName,
		LeafMessageID:  leafMessageID,
		CreatedAt:      now,
		LastUpdated:    now,
		CreatedBy:      createdBy,
		IsActive:       true,
	}
	if err := m.store.PutBranch(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// GetBranch is a point read by (conversation_id, branch_id).
func (m *Manager) GetBranch(ctx context.Context, conversationID, branchID uuid.UUID) (*convo.Branch, error) {
	return m.store.GetBranch(ctx, conversationID, branchID)
}

// ListBranches scans the conversation's branches, optionally filtered to
// active ones.
func (m *Manager) ListBranches(ctx context.Context, conversationID uuid.UUID, activeOnly bool) ([]*convo.Branch, error) {
	return m.store.ListBranches(ctx, conversationID, activeOnly)
}

// AdvanceLeaf implements append-advance: the current leaf must appear in
// newLeaf's lineage, or the branch is divergent and the advance is
// rejected without modifying the branch. Divergence is detected by
// re-reading the candidate message's lineage and checking membership,
// then committed via the store's compare-and-set so a concurrent advance
// never silently overwrites another.
func (m *Manager) AdvanceLeaf(ctx context.Context, conversationID, branchID, newLeaf uuid.UUID) error {
	b, err := m.store.GetBranch(ctx, conversationID, branchID)
	if err != nil {
		return err
	}

	newMsg, err := m.store.GetMessage(ctx, conversationID, newLeaf)
	if err != nil {
		return err
	}
	if !convo.ContainsID(newMsg.Lineage, b.LeafMessageID) {
		return apierr.BranchDivergent("branch %s's current leaf is not an ancestor of the new message", branchID)
	}

	ok, err := m.store.CASAdvanceLeaf(ctx, conversationID, branchID, b.LeafMessageID, newLeaf)
	if err != nil {
		return err
	}
	if !ok {
		return apierr.BranchDivergent("branch %s's leaf changed concurrently; retry against the current leaf", branchID)
	}

	m.publishAdvanced(ctx, conversationID, branchID, newLeaf)
	return nil
}

func (m *Manager) publishAdvanced(ctx context.Context, conversationID, branchID, newLeaf uuid.UUID) {
	_ = m.publisher.Publish(ctx, &events.MessageEvent{
		SchemaVersion:  events.SchemaVersionV1,
		EventType:      events.EventTypeBranchAdvanced,
		EventID:        uuid.New().String(),
		EmittedAt:      time.Now().UTC(),
		ConversationID: conversationID,
		MessageID:      newLeaf,
		BranchID:       &branchID,
	})
}

// UpdateBranch is the manual override path: relocates the branch to
// newLeaf (which must exist) and/or renames it, without the monotonicity
// check AdvanceLeaf enforces.
func (m *Manager) UpdateBranch(ctx context.Context, conversationID, branchID uuid.UUID, newName *string, newLeaf *uuid.UUID) (*convo.Branch, error) {
	b, err := m.store.GetBranch(ctx, conversationID, branchID)
	if err != nil {
		return nil, err
	}
	if newLeaf != nil {
		if _, err := m.store.GetMessage(ctx, conversationID, *newLeaf); err != nil {
			return nil, err
		}
		b.LeafMessageID = *newLeaf
	}
	if newName != nil {
		if *newName == "" {
			return nil, apierr.InvalidInput("branch_name must not be empty")
		}
		b.BranchName = *newName
	}
	b.LastUpdated = time.Now().UTC()
	if err := m.store.UpdateBranch(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// DeleteBranch removes a branch, soft by default (is_active=false) per
// the lifecycle policy; hard permanently removes the row.
func (m *Manager) DeleteBranch(ctx context.Context, conversationID, branchID uuid.UUID, hard bool) error {
	return m.store.DeleteBranch(ctx, conversationID, branchID, hard)
}

// LineageReader is the narrow slice of the conversation repository the
// branch manager needs to resolve a branch's canonical path: its leaf's
// root-to-leaf lineage.
type LineageReader interface {
	GetLineage(ctx context.Context, conversationID, messageID uuid.UUID) ([]*convo.Message, error)
}

// GetBranchMessages returns the ordered lineage of branchID's current
// leaf: a branch is a leaf pointer, so its canonical path is the path
// from root to that leaf.
func (m *Manager) GetBranchMessages(ctx context.Context, conversationID, branchID uuid.UUID, lineage LineageReader) ([]*convo.Message, error) {
	b, err := m.store.GetBranch(ctx, conversationID, branchID)
	if err != nil {
		return nil, err
	}
	return lineage.GetLineage(ctx, conversationID, b.LeafMessageID)
}

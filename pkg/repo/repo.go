// Package repo implements the Conversation Repository: CRUD over the
// conversation header and its tree of messages, and the append protocol
// that enforces the lineage invariants on every write.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/branchweave/branchweave/pkg/apierr"
	"github.com/branchweave/branchweave/pkg/content"
	"github.com/branchweave/branchweave/pkg/convo"
	"github.com/branchweave/branchweave/pkg/events"
	"github.com/branchweave/branchweave/pkg/events/nop"
	"github.com/branchweave/branchweave/pkg/store"
)

// DefaultMaxLineageDepth is I-Depth-Bound's default ceiling on
// depth(m) = len(lineage(m)).
const DefaultMaxLineageDepth = 1000

// BranchAdvancer is the narrow slice of the branch manager the repository
// needs when an append is tagged with a branch: advance that branch's
// leaf, or report divergence. It is satisfied by *branch.Manager; kept as
// an interface here so the two packages don't import each other directly.
type BranchAdvancer interface {
	AdvanceLeaf(ctx context.Context, conversationID, branchID, newLeaf uuid.UUID) error
}

// Repository is the C3 Conversation Repository.
type Repository struct {
	store           store.Store
	maxLineageDepth int
	publisher       events.Publisher
}

// New builds a Repository over st. maxLineageDepth <= 0 falls back to
// DefaultMaxLineageDepth. A nil publisher falls back to a no-op one.
func New(st store.Store, maxLineageDepth int, publisher events.Publisher) *Repository {
	if maxLineageDepth <= 0 {
		maxLineageDepth = DefaultMaxLineageDepth
	}
	if publisher == nil {
		publisher = nop.NewPublisher()
	}
	return &Repository{store: st, maxLineageDepth: maxLineageDepth, publisher: publisher}
}

// CreateConversation allocates a conversation and its root message in one
// grouped write. The root carries a metadata content variant recording the
// title and, if present, fork provenance.
func (r *Repository) CreateConversation(ctx context.Context, title, description, createdBy string, forkFromConversation, forkFromMessage *uuid.UUID) (*convo.Conversation, *convo.Message, error) {
	if title == "" {
		return nil, nil, apierr.InvalidInput("title must not be empty")
	}
	if len(title) > 500 {
		return nil, nil, apierr.InvalidInput("title exceeds maximum length")
	}

	now := time.Now().UTC()
	conversationID := uuid.New()
	rootID := uuid.New()

	conv := &convo.Conversation{
		ConversationID:         conversationID,
		Title:                  title,
		Description:            description,
		CreatedAt:              now,
		CreatedBy:              createdBy,
		ForkFromConversationID: forkFromConversation,
		ForkFromMessageID:      forkFromMessage,
	}

	root := &convo.Message{
		ConversationID:  conversationID,
		MessageID:       rootID,
		ParentMessageID: nil,
		Role:            convo.RoleRoot,
		Content:         content.NewMetadata(title, description, false, forkFromConversation, forkFromMessage),
		Lineage:         []uuid.UUID{rootID},
		Depth:           1,
		CreatedAt:       now,
		CreatedBy:       createdBy,
	}

	if err := r.store.PutConversation(ctx, conv); err != nil {
		return nil, nil, err
	}
	if err := r.store.PutMessage(ctx, root); err != nil {
		return nil, nil, err
	}
	return conv, root, nil
}

// GetConversation is a single-row header read.
func (r *Repository) GetConversation(ctx context.Context, conversationID uuid.UUID) (*convo.Conversation, error) {
	return r.store.GetConversation(ctx, conversationID)
}

// UpdateConversation applies a partial update to the header's mutable
// fields. Fields left nil are unchanged.
func (r *Repository) UpdateConversation(ctx context.Context, conversationID uuid.UUID, title, description *string, isPublic *bool) (*convo.Conversation, error) {
	conv, err := r.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if title != nil {
		if *title == "" {
			return nil, apierr.InvalidInput("title must not be empty")
		}
		conv.Title = *title
	}
	if description != nil {
		conv.Description = *description
	}
	if isPublic != nil {
		conv.IsPublic = *isPublic
	}
	if err := r.store.PutConversation(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// DeleteConversation cascades: messages, then branches, then shares, then
// the header, matching the ordering the data model's lifecycle section
// requires. The backend's DeleteConversation performs this ordering
// transactionally where the driver supports it.
func (r *Repository) DeleteConversation(ctx context.Context, conversationID uuid.UUID) error {
	if _, err := r.store.GetConversation(ctx, conversationID); err != nil {
		return err
	}
	return r.store.DeleteConversation(ctx, conversationID)
}

// GetConversationTree reads the conversation's full message set, paginated
// by limit/offset, along with the total message count.
func (r *Repository) GetConversationTree(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*convo.Message, int, error) {
	if _, err := r.store.GetConversation(ctx, conversationID); err != nil {
		return nil, 0, err
	}
	return r.store.GetAllMessages(ctx, conversationID, limit, offset)
}

// AppendInput carries the caller-supplied fields of an append; MessageID,
// Lineage, Depth, and CreatedAt are derived by the repository.
type AppendInput struct {
	ConversationID  uuid.UUID
	ParentMessageID uuid.UUID
	Role            convo.Role
	Content         content.Content
	ContentMetadata map[string]string
	CreatedBy       string
	BranchID        *uuid.UUID
}

// AppendMessage implements the core append protocol: load parent, derive
// lineage, enforce the depth bound, encode content, write the message row
// grouped with its child-index entry, then advance the tagged branch (if
// any) through branches.
func (r *Repository) AppendMessage(ctx context.Context, in AppendInput, branches BranchAdvancer) (*convo.Message, error) {
	if !convo.ValidRole(in.Role) {
		return nil, apierr.InvalidInput("unrecognized role %q", in.Role)
	}

	parent, err := r.store.GetMessage(ctx, in.ConversationID, in.ParentMessageID)
	if err != nil {
		return nil, err
	}

	newID := uuid.New()
	lineage := convo.ComputeLineage(parent.Lineage, newID)
	if len(lineage) > r.maxLineageDepth {
		return nil, apierr.DepthExceeded("appending would exceed maximum lineage depth of %d", r.maxLineageDepth)
	}

	if _, _, _, err := content.Encode(in.Content, in.ContentMetadata); err != nil {
		return nil, apierr.InvalidInput("encoding content: %v", err)
	}

	msg := &convo.Message{
		ConversationID:  in.ConversationID,
		MessageID:       newID,
		ParentMessageID: &in.ParentMessageID,
		Role:            in.Role,
		Content:         in.Content,
		ContentMetadata: in.ContentMetadata,
		Lineage:         lineage,
		Depth:           len(lineage),
		CreatedAt:       time.Now().UTC(),
		CreatedBy:       in.CreatedBy,
	}

	if err := r.store.PutMessage(ctx, msg); err != nil {
		return nil, err
	}

	if in.BranchID != nil && branches != nil {
		if err := branches.AdvanceLeaf(ctx, in.ConversationID, *in.BranchID, newID); err != nil {
			return msg, err
		}
	}

	r.publishAppended(ctx, msg, in.BranchID)

	return msg, nil
}

// publishAppended best-effort publishes a message-appended event; a
// publish failure never fails the append that already committed.
func (r *Repository) publishAppended(ctx context.Context, msg *convo.Message, branchID *uuid.UUID) {
	_ = r.publisher.Publish(ctx, &events.MessageEvent{
		SchemaVersion:   events.SchemaVersionV1,
		EventType:       events.EventTypeMessageAppended,
		EventID:         uuid.New().String(),
		EmittedAt:       time.Now().UTC(),
		ConversationID:  msg.ConversationID,
		MessageID:       msg.MessageID,
		ParentMessageID: msg.ParentMessageID,
		BranchID:        branchID,
		Depth:           msg.Depth,
		CreatedBy:       msg.CreatedBy,
	})
}

// GetMessage is a point read by (conversation_id, message_id).
func (r *Repository) GetMessage(ctx context.Context, conversationID, messageID uuid.UUID) (*convo.Message, error) {
	return r.store.GetMessage(ctx, conversationID, messageID)
}

// GetChildren returns the direct children of parentMessageID.
func (r *Repository) GetChildren(ctx context.Context, conversationID, parentMessageID uuid.UUID) ([]*convo.Message, error) {
	if _, err := r.store.GetMessage(ctx, conversationID, parentMessageID); err != nil {
		return nil, err
	}
	return r.store.GetChildren(ctx, conversationID, parentMessageID)
}

// GetLineage returns the ordered ancestor path (root..m) for messageID, a
// single batched read of the lineage array's identifiers rather than a
// recursive parent walk.
func (r *Repository) GetLineage(ctx context.Context, conversationID, messageID uuid.UUID) ([]*convo.Message, error) {
	m, err := r.store.GetMessage(ctx, conversationID, messageID)
	if err != nil {
		return nil, err
	}
	return r.store.GetMessagesByIDs(ctx, conversationID, m.Lineage)
}

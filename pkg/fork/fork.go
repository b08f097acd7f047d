// Package fork implements the Fork Engine: deep-copies a subtree of a
// source conversation into a new conversation, rewriting identifiers and
// lineages and recording provenance.
package fork

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/branchweave/branchweave/pkg/apierr"
	"github.com/branchweave/branchweave/pkg/content"
	"github.com/branchweave/branchweave/pkg/convo"
	"github.com/branchweave/branchweave/pkg/events"
	"github.com/branchweave/branchweave/pkg/events/nop"
	"github.com/branchweave/branchweave/pkg/store"
)

// Engine is the C5 Fork Engine.
type Engine struct {
	store     store.Store
	publisher events.Publisher
}

// New builds an Engine over st. A nil publisher falls back to a no-op one.
func New(st store.Store, publisher events.Publisher) *Engine {
	if publisher == nil {
		publisher = nop.NewPublisher()
	}
	return &Engine{store: st, publisher: publisher}
}

// ForkConversation copies the whole source conversation: root_msg is the
// source root, provenance is (sourceConv, null). An empty title keeps the
// source's title.
func (e *Engine) ForkConversation(ctx context.Context, sourceConv uuid.UUID, title, createdBy string) (*convo.Conversation, error) {
	src, err := e.store.GetConversation(ctx, sourceConv)
	if err != nil {
		return nil, err
	}
	root, err := e.rootOf(ctx, sourceConv)
	if err != nil {
		return nil, err
	}
	return e.forkSubtree(ctx, src, root, nil, title, createdBy)
}

// ForkBranch copies the lineage of a branch's leaf plus that leaf's
// descendants: root_msg is still the source root, but the traversal is
// pruned to messages reachable from the leaf's lineage or beneath it.
// Provenance is (sourceConv, branch.leaf_message_id).
func (e *Engine) ForkBranch(ctx context.Context, sourceConv, branchID uuid.UUID, title, createdBy string) (*convo.Conversation, error) {
	src, err := e.store.GetConversation(ctx, sourceConv)
	if err != nil {
		return nil, err
	}
	b, err := e.store.GetBranch(ctx, sourceConv, branchID)
	if err != nil {
		return nil, err
	}
	leaf, err := e.store.GetMessage(ctx, sourceConv, b.LeafMessageID)
	if err != nil {
		return nil, err
	}
	root, err := e.rootOf(ctx, sourceConv)
	if err != nil {
		return nil, err
	}

	allowed := make(map[uuid.UUID]bool, len(leaf.Lineage))
	for _, id := range leaf.Lineage {
		allowed[id] = true
	}
	leafID := leaf.MessageID
	return e.forkSubtreeFiltered(ctx, src, root, &leafID, title, createdBy, func(id uuid.UUID, m *convo.Message) bool {
		return allowed[id] || convo.ContainsID(m.Lineage, leafID)
	})
}

// ForkFromMessage copies the subtree rooted at the chosen message: that
// message becomes the new root. Provenance is (sourceConv, chosenMessageID).
func (e *Engine) ForkFromMessage(ctx context.Context, sourceConv, chosenMessageID uuid.UUID, title, createdBy string) (*convo.Conversation, error) {
	src, err := e.store.GetConversation(ctx, sourceConv)
	if err != nil {
		return nil, err
	}
	chosen, err := e.store.GetMessage(ctx, sourceConv, chosenMessageID)
	if err != nil {
		return nil, err
	}
	return e.forkSubtree(ctx, src, chosen, &chosenMessageID, title, createdBy)
}

func (e *Engine) rootOf(ctx context.Context, conversationID uuid.UUID) (*convo.Message, error) {
	all, _, err := e.store.GetAllMessages(ctx, conversationID, 0, 0)
	if err != nil {
		return nil, err
	}
	for _, m := range all {
		if m.IsRoot() {
			return m, nil
		}
	}
	return nil, apierr.NotFound("conversation %s has no root message", conversationID)
}

func (e *Engine) forkSubtree(ctx context.Context, src *convo.Conversation, root *convo.Message, forkFromMessage *uuid.UUID, title, createdBy string) (*convo.Conversation, error) {
	return e.forkSubtreeFiltered(ctx, src, root, forkFromMessage, title, createdBy, nil)
}

// forkSubtreeFiltered is the shared BFS subroutine every entry point
// funnels through. It walks the source subtree breadth-first, maintaining
// an old-id -> new-id mapping, translating and trimming lineages through
// that mapping, and writing each node only after its parent is known to
// exist. The destination header is written last so a partial failure
// never leaves headerless orphans visible as a complete conversation.
func (e *Engine) forkSubtreeFiltered(ctx context.Context, src *convo.Conversation, root *convo.Message, forkFromMessage *uuid.UUID, title, createdBy string, include func(uuid.UUID, *convo.Message) bool) (*convo.Conversation, error) {
	if title == "" {
		title = src.Title
	}
	now := time.Now().UTC()
	destConvID := uuid.New()

	mapping := map[uuid.UUID]uuid.UUID{}
	var toWrite []*convo.Message

	type queued struct {
		source *convo.Message
		newID  uuid.UUID
		parent *uuid.UUID
	}

	newRootID := uuid.New()
	mapping[root.MessageID] = newRootID
	queue := []queued{{source: root, newID: newRootID, parent: nil}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		newLineage := translateLineage(cur.source.Lineage, root.MessageID, mapping)

		dest := &convo.Message{
			ConversationID:  destConvID,
			MessageID:       cur.newID,
			ParentMessageID: cur.parent,
			Role:            cur.source.Role,
			Content:         cur.source.Content,
			ContentMetadata: cur.source.ContentMetadata,
			Lineage:         newLineage,
			Depth:           len(newLineage),
			CreatedAt:       now,
			CreatedBy:       createdBy,
		}
		toWrite = append(toWrite, dest)

		children, err := e.store.GetChildren(ctx, src.ConversationID, cur.source.MessageID)
		if err != nil {
			return nil, err
		}
		sort.Slice(children, func(i, j int) bool { return children[i].CreatedAt.Before(children[j].CreatedAt) })

		for _, child := range children {
			if include != nil && !include(child.MessageID, child) {
				continue
			}
			childNewID := uuid.New()
			mapping[child.MessageID] = childNewID
			parentID := cur.newID
			queue = append(queue, queued{source: child, newID: childNewID, parent: &parentID})
		}
	}

	if len(toWrite) == 0 {
		return nil, apierr.Internal(nil, "fork produced an empty subtree")
	}

	// New root carries its own metadata content, recording the fork title
	// and provenance, rather than the source root's encoded payload.
	toWrite[0].Content = content.NewMetadata(title, src.Description, false, &src.ConversationID, forkFromMessage)

	for _, m := range toWrite {
		if err := e.store.PutMessage(ctx, m); err != nil {
			return nil, apierr.Internal(err, "writing forked message %s", m.MessageID)
		}
	}

	dest := &convo.Conversation{
		ConversationID:         destConvID,
		Title:                  title,
		Description:            src.Description,
		CreatedAt:              now,
		CreatedBy:              createdBy,
		IsPublic:               false,
		ForkFromConversationID: &src.ConversationID,
		ForkFromMessageID:      forkFromMessage,
	}
	if err := e.store.PutConversation(ctx, dest); err != nil {
		return nil, apierr.Internal(err, "writing forked conversation header")
	}

	_ = e.publisher.Publish(ctx, &events.MessageEvent{
		SchemaVersion:  events.SchemaVersionV1,
		EventType:      events.EventTypeConversationForked,
		EventID:        uuid.New().String(),
		EmittedAt:      now,
		ConversationID: dest.ConversationID,
		MessageID:      toWrite[0].MessageID,
		CreatedBy:      createdBy,
	})

	return dest, nil
}

// translateLineage rewrites a source lineage through mapping, trimming
// everything above newRoot's source identifier so a subtree fork's
// lineages start at the new root rather than the original tree's root.
func translateLineage(sourceLineage []uuid.UUID, newRootSourceID uuid.UUID, mapping map[uuid.UUID]uuid.UUID) []uuid.UUID {
	start := 0
	for i, id := range sourceLineage {
		if id == newRootSourceID {
			start = i
			break
		}
	}
	trimmed := sourceLineage[start:]
	out := make([]uuid.UUID, 0, len(trimmed))
	for _, id := range trimmed {
		if newID, ok := mapping[id]; ok {
			out = append(out, newID)
		}
	}
	return out
}

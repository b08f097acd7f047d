// Package memory implements store.Store over in-memory maps, for tests
// and for running the service without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/branchweave/branchweave/pkg/apierr"
	"github.com/branchweave/branchweave/pkg/convo"
)

// conversationPartition holds every per-conversation table's rows,
// grouped the way a wide-column partition would group them.
type conversationPartition struct {
	header   *convo.Conversation
	messages map[uuid.UUID]*convo.Message
	// children indexes parent_message_id -> ordered child message ids,
	// mirroring the message_children secondary table.
	children map[uuid.UUID][]uuid.UUID
	branches map[uuid.UUID]*convo.Branch
	shares   map[string]*convo.Share
}

// Store is a Driver implementing store.Store using in-memory maps guarded
// by a single read-write mutex, in the spirit of the teacher's in-memory
// driver.
type Store struct {
	mu sync.RWMutex

	conversations map[uuid.UUID]*conversationPartition

	// sharesByUser is the reverse index keyed by grantee.
	sharesByUser map[string]map[uuid.UUID]*convo.Share

	// activity is the user activity index keyed by user then conversation.
	activity map[string]map[uuid.UUID]*convo.UserActivity
}

// New creates a new empty in-memory Store.
func New() *Store {
	return &Store{
		conversations: make(map[uuid.UUID]*conversationPartition),
		sharesByUser:  make(map[string]map[uuid.UUID]*convo.Share),
		activity:      make(map[string]map[uuid.UUID]*convo.UserActivity),
	}
}

func (s *Store) partition(conversationID uuid.UUID) *conversationPartition {
	p, ok := s.conversations[conversationID]
	if !ok {
		p = &conversationPartition{
			messages: make(map[uuid.UUID]*convo.Message),
			children: make(map[uuid.UUID][]uuid.UUID),
			branches: make(map[uuid.UUID]*convo.Branch),
			shares:   make(map[string]*convo.Share),
		}
		s.conversations[conversationID] = p
	}
	return p
}

func (s *Store) PutConversation(_ context.Context, c *convo.Conversation) error {
	cp := cloneConversation(*c)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partition(c.ConversationID).header = &cp
	return nil
}

func (s *Store) GetConversation(_ context.Context, conversationID uuid.UUID) (*convo.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.conversations[conversationID]
	if !ok || p.header == nil {
		return nil, apierr.NotFound("conversation %s not found", conversationID)
	}
	cp := cloneConversation(*p.header)
	return &cp, nil
}

func (s *Store) DeleteConversation(_ context.Context, conversationID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.conversations, conversationID)
	for user, convs := range s.sharesByUser {
		delete(convs, conversationID)
		if len(convs) == 0 {
			delete(s.sharesByUser, user)
		}
	}
	for user, convs := range s.activity {
		delete(convs, conversationID)
		if len(convs) == 0 {
			delete(s.activity, user)
		}
	}
	return nil
}

func (s *Store) PutMessage(ctx context.Context, m *convo.Message) error {
	return s.PutMessages(ctx, []*convo.Message{m})
}

func (s *Store) PutMessages(_ context.Context, ms []*convo.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range ms {
		p := s.partition(m.ConversationID)
		mc := cloneMessage(*m)
		p.messages[m.MessageID] = &mc
		if m.ParentMessageID != nil {
			p.children[*m.ParentMessageID] = append(p.children[*m.ParentMessageID], m.MessageID)
		}
	}
	return nil
}

func (s *Store) GetMessage(_ context.Context, conversationID, messageID uuid.UUID) (*convo.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.conversations[conversationID]
	if !ok {
		return nil, apierr.NotFound("message %s not found", messageID)
	}
	m, ok := p.messages[messageID]
	if !ok {
		return nil, apierr.NotFound("message %s not found", messageID)
	}
	mc := cloneMessage(*m)
	return &mc, nil
}

func (s *Store) GetMessagesByIDs(_ context.Context, conversationID uuid.UUID, ids []uuid.UUID) ([]*convo.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.conversations[conversationID]
	if !ok {
		return nil, apierr.NotFound("conversation %s not found", conversationID)
	}

	result := make([]*convo.Message, 0, len(ids))
	for _, id := range ids {
		m, ok := p.messages[id]
		if !ok {
			return nil, apierr.NotFound("message %s not found", id)
		}
		mc := cloneMessage(*m)
		result = append(result, &mc)
	}
	return result, nil
}

func (s *Store) GetChildren(_ context.Context, conversationID, parentMessageID uuid.UUID) ([]*convo.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.conversations[conversationID]
	if !ok {
		return nil, apierr.NotFound("conversation %s not found", conversationID)
	}

	ids := p.children[parentMessageID]
	result := make([]*convo.Message, 0, len(ids))
	for _, id := range ids {
		m, ok := p.messages[id]
		if !ok {
			continue
		}
		mc := cloneMessage(*m)
		result = append(result, &mc)
	}
	return result, nil
}

func (s *Store) GetAllMessages(_ context.Context, conversationID uuid.UUID, limit, offset int) ([]*convo.Message, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.conversations[conversationID]
	if !ok {
		return nil, 0, apierr.NotFound("conversation %s not found", conversationID)
	}

	all := make([]*convo.Message, 0, len(p.messages))
	for _, m := range p.messages {
		mc := cloneMessage(*m)
		all = append(all, &mc)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Depth != all[j].Depth {
			return all[i].Depth < all[j].Depth
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	total := len(all)
	if limit <= 0 {
		return all, total, nil
	}
	if offset >= total {
		return []*convo.Message{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (s *Store) CountMessages(_ context.Context, conversationID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.conversations[conversationID]
	if !ok {
		return 0, apierr.NotFound("conversation %s not found", conversationID)
	}
	return len(p.messages), nil
}

func (s *Store) PutBranch(_ context.Context, b *convo.Branch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bc := clone(*b)
	s.partition(b.ConversationID).branches[b.BranchID] = &bc
	return nil
}

func (s *Store) GetBranch(_ context.Context, conversationID, branchID uuid.UUID) (*convo.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.conversations[conversationID]
	if !ok {
		return nil, apierr.NotFound("branch %s not found", branchID)
	}
	b, ok := p.branches[branchID]
	if !ok {
		return nil, apierr.NotFound("branch %s not found", branchID)
	}
	bc := clone(*b)
	return &bc, nil
}

func (s *Store) ListBranches(_ context.Context, conversationID uuid.UUID, activeOnly bool) ([]*convo.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.conversations[conversationID]
	if !ok {
		return []*convo.Branch{}, nil
	}

	result := make([]*convo.Branch, 0, len(p.branches))
	for _, b := range p.branches {
		if activeOnly && !b.IsActive {
			continue
		}
		bc := clone(*b)
		result = append(result, &bc)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) CASAdvanceLeaf(_ context.Context, conversationID, branchID, expectedLeaf, newLeaf uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.conversations[conversationID]
	if !ok {
		return false, apierr.NotFound("branch %s not found", branchID)
	}
	b, ok := p.branches[branchID]
	if !ok {
		return false, apierr.NotFound("branch %s not found", branchID)
	}
	if b.LeafMessageID != expectedLeaf {
		return false, nil
	}
	b.LeafMessageID = newLeaf
	b.LastUpdated = time.Now().UTC()
	return true, nil
}

func (s *Store) UpdateBranch(_ context.Context, b *convo.Branch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.conversations[b.ConversationID]
	if !ok {
		return apierr.NotFound("branch %s not found", b.BranchID)
	}
	if _, ok := p.branches[b.BranchID]; !ok {
		return apierr.NotFound("branch %s not found", b.BranchID)
	}
	bc := clone(*b)
	p.branches[b.BranchID] = &bc
	return nil
}

func (s *Store) DeleteBranch(_ context.Context, conversationID, branchID uuid.UUID, hard bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.conversations[conversationID]
	if !ok {
		return apierr.NotFound("branch %s not found", branchID)
	}
	b, ok := p.branches[branchID]
	if !ok {
		return apierr.NotFound("branch %s not found", branchID)
	}
	if hard {
		delete(p.branches, branchID)
		return nil
	}
	b.IsActive = false
	b.LastUpdated = time.Now().UTC()
	return nil
}

func (s *Store) PutShare(_ context.Context, share *convo.Share) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc := clone(*share)
	s.partition(share.ConversationID).shares[share.SharedWith] = &sc

	if s.sharesByUser[share.SharedWith] == nil {
		s.sharesByUser[share.SharedWith] = make(map[uuid.UUID]*convo.Share)
	}
	sc2 := clone(*share)
	s.sharesByUser[share.SharedWith][share.ConversationID] = &sc2
	return nil
}

func (s *Store) GetShare(_ context.Context, conversationID uuid.UUID, sharedWith string) (*convo.Share, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.conversations[conversationID]
	if !ok {
		return nil, apierr.NotFound("share for %s not found", sharedWith)
	}
	sh, ok := p.shares[sharedWith]
	if !ok {
		return nil, apierr.NotFound("share for %s not found", sharedWith)
	}
	sc := clone(*sh)
	return &sc, nil
}

func (s *Store) ListShares(_ context.Context, conversationID uuid.UUID) ([]*convo.Share, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.conversations[conversationID]
	if !ok {
		return []*convo.Share{}, nil
	}
	result := make([]*convo.Share, 0, len(p.shares))
	for _, sh := range p.shares {
		sc := clone(*sh)
		result = append(result, &sc)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SharedAt.Before(result[j].SharedAt) })
	return result, nil
}

func (s *Store) DeleteShare(_ context.Context, conversationID uuid.UUID, sharedWith string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.conversations[conversationID]
	if !ok {
		return apierr.NotFound("share for %s not found", sharedWith)
	}
	if _, ok := p.shares[sharedWith]; !ok {
		return apierr.NotFound("share for %s not found", sharedWith)
	}
	delete(p.shares, sharedWith)

	if byConv, ok := s.sharesByUser[sharedWith]; ok {
		delete(byConv, conversationID)
		if len(byConv) == 0 {
			delete(s.sharesByUser, sharedWith)
		}
	}
	return nil
}

func (s *Store) ListSharesForUser(_ context.Context, userID string) ([]*convo.Share, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byConv := s.sharesByUser[userID]
	result := make([]*convo.Share, 0, len(byConv))
	for _, sh := range byConv {
		sc := clone(*sh)
		result = append(result, &sc)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SharedAt.Before(result[j].SharedAt) })
	return result, nil
}

func (s *Store) UpsertUserActivity(_ context.Context, a *convo.UserActivity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activity[a.UserID] == nil {
		s.activity[a.UserID] = make(map[uuid.UUID]*convo.UserActivity)
	}
	ac := cloneUserActivity(*a)
	s.activity[a.UserID][a.ConversationID] = &ac
	return nil
}

func (s *Store) ListUserActivity(_ context.Context, userID string, limit int) ([]*convo.UserActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byConv := s.activity[userID]
	result := make([]*convo.UserActivity, 0, len(byConv))
	for _, a := range byConv {
		ac := cloneUserActivity(*a)
		result = append(result, &ac)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].LastActivity.After(result[j].LastActivity) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) Close() error {
	return nil
}

// clone copies a value with no pointer or reference fields needing a
// deep copy, such as Branch and Share, so a caller mutating the
// returned value can never reach into the store's own copy.
func clone[T any](v T) T {
	return v
}

// cloneMessage deep-copies the fields a stored Message shares backing
// storage with: Lineage, ContentMetadata, and ParentMessageID, so a
// caller mutating a returned message can never reach into the store's
// own copy.
func cloneMessage(m convo.Message) convo.Message {
	if m.Lineage != nil {
		lineage := make([]uuid.UUID, len(m.Lineage))
		copy(lineage, m.Lineage)
		m.Lineage = lineage
	}
	if m.ContentMetadata != nil {
		meta := make(map[string]string, len(m.ContentMetadata))
		for k, v := range m.ContentMetadata {
			meta[k] = v
		}
		m.ContentMetadata = meta
	}
	if m.ParentMessageID != nil {
		id := *m.ParentMessageID
		m.ParentMessageID = &id
	}
	return m
}

// cloneConversation deep-copies Conversation's two fork-provenance
// pointer fields.
func cloneConversation(c convo.Conversation) convo.Conversation {
	if c.ForkFromConversationID != nil {
		id := *c.ForkFromConversationID
		c.ForkFromConversationID = &id
	}
	if c.ForkFromMessageID != nil {
		id := *c.ForkFromMessageID
		c.ForkFromMessageID = &id
	}
	return c
}

// cloneUserActivity deep-copies UserActivity's ActiveBranchID pointer.
func cloneUserActivity(a convo.UserActivity) convo.UserActivity {
	if a.ActiveBranchID != nil {
		id := *a.ActiveBranchID
		a.ActiveBranchID = &id
	}
	return a
}

package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/branchweave/branchweave/pkg/content"
	"github.com/branchweave/branchweave/pkg/convo"
)

// ConversationResponse flattens the header row for the wire.
type ConversationResponse struct {
	ConversationID         uuid.UUID  `json:"conversation_id"`
	Title                  string     `json:"title"`
	Description            string     `json:"description,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	CreatedBy              string     `json:"created_by"`
	IsPublic               bool       `json:"is_public"`
	ForkFromConversationID *uuid.UUID `json:"fork_from_conversation_id,omitempty"`
	ForkFromMessageID      *uuid.UUID `json:"fork_from_message_id,omitempty"`
}

func conversationResponse(c *convo.Conversation) ConversationResponse {
	return ConversationResponse{
		ConversationID:         c.ConversationID,
		Title:                  c.Title,
		Description:            c.Description,
		CreatedAt:              c.CreatedAt,
		CreatedBy:              c.CreatedBy,
		IsPublic:               c.IsPublic,
		ForkFromConversationID: c.ForkFromConversationID,
		ForkFromMessageID:      c.ForkFromMessageID,
	}
}

// MessageResponse is the wire shape for a message node.
type MessageResponse struct {
	ConversationID  uuid.UUID         `json:"conversation_id"`
	MessageID       uuid.UUID         `json:"message_id"`
	ParentMessageID *uuid.UUID        `json:"parent_message_id"`
	Role            convo.Role        `json:"role"`
	Content         content.Content   `json:"content"`
	ContentMetadata map[string]string `json:"content_metadata,omitempty"`
	Lineage         []uuid.UUID       `json:"lineage"`
	Depth           int               `json:"depth"`
	CreatedAt       time.Time         `json:"created_at"`
	CreatedBy       string            `json:"created_by"`
}

func messageResponse(m *convo.Message) MessageResponse {
	return MessageResponse{
		ConversationID:  m.ConversationID,
		MessageID:       m.MessageID,
		ParentMessageID: m.ParentMessageID,
		Role:            m.Role,
		Content:         m.Content,
		ContentMetadata: m.ContentMetadata,
		Lineage:         m.Lineage,
		Depth:           m.Depth,
		CreatedAt:       m.CreatedAt,
		CreatedBy:       m.CreatedBy,
	}
}

func messageResponses(ms []*convo.Message) []MessageResponse {
	out := make([]MessageResponse, len(ms))
	for i, m := range ms {
		out[i] = messageResponse(m)
	}
	return out
}

// TreeResponse is the wire shape for GET /conversations/{cid}/tree.
type TreeResponse struct {
	ConversationID uuid.UUID         `json:"conversation_id"`
	TotalMessages  int               `json:"total_messages"`
	Messages       []MessageResponse `json:"messages"`
}

// BranchResponse is the wire shape for a branch.
type BranchResponse struct {
	BranchID       uuid.UUID `json:"branch_id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	BranchName     string    `json:"branch_name"`
	LeafMessageID  uuid.UUID `json:"leaf_message_id"`
	CreatedAt      time.Time `json:"created_at"`
	LastUpdated    time.Time `json:"last_updated"`
	CreatedBy      string    `json:"created_by"`
	IsActive       bool      `json:"is_active"`
}

func branchResponse(b *convo.Branch) BranchResponse {
	return BranchResponse{
		BranchID:       b.BranchID,
		ConversationID: b.ConversationID,
		BranchName:     b.BranchName,
		LeafMessageID:  b.LeafMessageID,
		CreatedAt:      b.CreatedAt,
		LastUpdated:    b.LastUpdated,
		CreatedBy:      b.CreatedBy,
		IsActive:       b.IsActive,
	}
}

func branchResponses(bs []*convo.Branch) []BranchResponse {
	out := make([]BranchResponse, len(bs))
	for i, b := range bs {
		out[i] = branchResponse(b)
	}
	return out
}

// ShareResponse is the wire shape for a share grant.
type ShareResponse struct {
	ConversationID uuid.UUID        `json:"conversation_id"`
	SharedWith     string           `json:"shared_with"`
	Permission     convo.Permission `json:"permission"`
	SharedAt       time.Time        `json:"shared_at"`
	SharedBy       string           `json:"shared_by"`
}

func shareResponse(s *convo.Share) ShareResponse {
	return ShareResponse{
		ConversationID: s.ConversationID,
		SharedWith:     s.SharedWith,
		Permission:     s.Permission,
		SharedAt:       s.SharedAt,
		SharedBy:       s.SharedBy,
	}
}

func shareResponses(ss []*convo.Share) []ShareResponse {
	out := make([]ShareResponse, len(ss))
	for i, s := range ss {
		out[i] = shareResponse(s)
	}
	return out
}

// UserActivityResponse is the wire shape for an entry in a user's
// conversation activity index.
type UserActivityResponse struct {
	ConversationID uuid.UUID  `json:"conversation_id"`
	ActiveBranchID *uuid.UUID `json:"active_branch_id,omitempty"`
	LastActivity   time.Time  `json:"last_activity"`
}

func userActivityResponses(as []*convo.UserActivity) []UserActivityResponse {
	out := make([]UserActivityResponse, len(as))
	for i, a := range as {
		out[i] = UserActivityResponse{
			ConversationID: a.ConversationID,
			ActiveBranchID: a.ActiveBranchID,
			LastActivity:   a.LastActivity,
		}
	}
	return out
}

// createConversationRequest is the body of POST /conversations.
type createConversationRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	CreatedBy   string `json:"created_by"`
}

// updateConversationRequest is the body of PUT /conversations/{cid}.
type updateConversationRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	IsPublic    *bool   `json:"is_public"`
}

// appendMessageRequest is the body of POST /conversations/{cid}/messages.
type appendMessageRequest struct {
	ParentMessageID uuid.UUID         `json:"parent_message_id"`
	Role            convo.Role        `json:"role"`
	Content         content.Content   `json:"content"`
	ContentMetadata map[string]string `json:"content_metadata"`
	CreatedBy       string            `json:"created_by"`
	BranchID        *uuid.UUID        `json:"branch_id"`
}

// createBranchRequest is the body of POST /conversations/{cid}/branches.
type createBranchRequest struct {
	BranchName string    `json:"branch_name"`
	Leaf       uuid.UUID `json:"leaf"`
	CreatedBy  string    `json:"created_by"`
}

// updateBranchRequest is the body of PUT /conversations/{cid}/branches/{bid}.
type updateBranchRequest struct {
	BranchName *string    `json:"branch_name"`
	Leaf       *uuid.UUID `json:"leaf"`
}

// forkRequest is the shared body of the three fork endpoints.
type forkRequest struct {
	Title     string `json:"title"`
	CreatedBy string `json:"created_by"`
}

// shareRequest is the body of POST /conversations/{cid}/share.
type shareRequest struct {
	SharedWith string           `json:"shared_with"`
	Permission convo.Permission `json:"permission"`
	SharedBy   string           `json:"shared_by"`
}

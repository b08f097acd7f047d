// Package convo defines the domain types shared across the persistence
// and query service: conversations, messages, branches, and shares.
package convo

import (
	"time"

	"github.com/google/uuid"

	"github.com/branchweave/branchweave/pkg/content"
)

// Role identifies who produced a message.
type Role string

const (
	RoleRoot      Role = "root"
	RoleSystem    Role = "system"
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ValidRole reports whether r is one of the recognized roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleRoot, RoleSystem, RoleHuman, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// Permission is a grant level recorded in the share ledger.
type Permission string

const (
	PermissionRead   Permission = "read"
	PermissionBranch Permission = "branch"
	PermissionFork   Permission = "fork"
)

// ValidPermission reports whether p is one of the recognized permissions.
func ValidPermission(p Permission) bool {
	switch p {
	case PermissionRead, PermissionBranch, PermissionFork:
		return true
	}
	return false
}

// CanRead reports whether p is sufficient for a read access check.
func (p Permission) CanRead() bool {
	switch p {
	case PermissionRead, PermissionBranch, PermissionFork:
		return true
	}
	return false
}

// CanBranch reports whether p is sufficient for a branch access check.
func (p Permission) CanBranch() bool {
	return p == PermissionBranch || p == PermissionFork
}

// CanFork reports whether p is sufficient for a fork access check.
func (p Permission) CanFork() bool {
	return p == PermissionFork
}

// Conversation is the header row for a tree of messages.
type Conversation struct {
	ConversationID         uuid.UUID
	Title                  string
	Description            string
	CreatedAt              time.Time
	CreatedBy              string
	IsPublic               bool
	ForkFromConversationID *uuid.UUID
	ForkFromMessageID      *uuid.UUID
}

// Message is a node in a conversation's tree.
//
// Lineage is the ordered sequence of message identifiers from the root
// down to and including this message. It is materialized on every row so
// that a root-to-leaf path is a single point read instead of a recursive
// parent walk; Depth is its length, persisted redundantly for indexing.
type Message struct {
	ConversationID  uuid.UUID
	MessageID       uuid.UUID
	ParentMessageID *uuid.UUID
	Role            Role
	Content         content.Content
	ContentMetadata map[string]string
	Lineage         []uuid.UUID
	Depth           int
	CreatedAt       time.Time
	CreatedBy       string
}

// IsRoot reports whether m is the root message of its conversation.
func (m *Message) IsRoot() bool {
	return m.ParentMessageID == nil
}

// Branch is a named pointer at the current tip of a line of development.
type Branch struct {
	BranchID       uuid.UUID
	ConversationID uuid.UUID
	BranchName     string
	LeafMessageID  uuid.UUID
	CreatedAt      time.Time
	LastUpdated    time.Time
	CreatedBy      string
	IsActive       bool
}

// Share is a grant of access on a conversation to a user.
type Share struct {
	ConversationID uuid.UUID
	SharedWith     string
	Permission     Permission
	SharedAt       time.Time
	SharedBy       string
}

// UserActivity records a user's most recent touch of a conversation and,
// if any, the branch they were last working on within it.
type UserActivity struct {
	UserID         string
	ConversationID uuid.UUID
	ActiveBranchID *uuid.UUID
	LastActivity   time.Time
}

// ComputeLineage appends newID to parentLineage, returning a freshly
// allocated slice (the parent's slice is never mutated in place).
func ComputeLineage(parentLineage []uuid.UUID, newID uuid.UUID) []uuid.UUID {
	lineage := make([]uuid.UUID, len(parentLineage)+1)
	copy(lineage, parentLineage)
	lineage[len(parentLineage)] = newID
	return lineage
}

// ContainsID reports whether id appears anywhere in lineage.
func ContainsID(lineage []uuid.UUID, id uuid.UUID) bool {
	for _, x := range lineage {
		if x == id {
			return true
		}
	}
	return false
}

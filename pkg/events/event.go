// Package events defines the transport-neutral change events the
// persistence and query service emits after a committed write, and the
// Publisher interface backends implement to ship them.
package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeMessageAppended is emitted after a message is durably
	// written to its conversation's partition.
	EventTypeMessageAppended = "branchweave.message.appended"

	// EventTypeBranchAdvanced is emitted after a branch's leaf pointer
	// moves, whether by tagged append or manual relocation.
	EventTypeBranchAdvanced = "branchweave.branch.advanced"

	// EventTypeConversationForked is emitted after a fork's destination
	// header is written, marking the copy visible as complete.
	EventTypeConversationForked = "branchweave.conversation.forked"
)

// MessageEvent is the payload published for every event type above; not
// every field is populated for every type (a fork event, for instance,
// leaves BranchID nil).
type MessageEvent struct {
	SchemaVersion   int        `json:"schema_version"`
	EventType       string     `json:"event_type"`
	EventID         string     `json:"event_id"`
	EmittedAt       time.Time  `json:"emitted_at"`
	ConversationID  uuid.UUID  `json:"conversation_id"`
	MessageID       uuid.UUID  `json:"message_id"`
	ParentMessageID *uuid.UUID `json:"parent_message_id,omitempty"`
	BranchID        *uuid.UUID `json:"branch_id,omitempty"`
	Depth           int        `json:"depth,omitempty"`
	CreatedBy       string     `json:"created_by,omitempty"`
}

package sqlite

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/branchweave/branchweave/pkg/content"
	"github.com/branchweave/branchweave/pkg/convo"
)

const timeLayout = time.RFC3339Nano

func nowString() string {
	return time.Now().UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func uuidPtrStr(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

const messageSelect = `
	SELECT conversation_id, message_id, parent_message_id, role, content_type, content_data, content_metadata, lineage, depth, created_at, created_by
	FROM messages`

const branchSelect = `
	SELECT conversation_id, branch_id, branch_name, leaf_message_id, created_at, last_updated, created_by, is_active
	FROM branches`

const shareSelect = `
	SELECT conversation_id, shared_with, permission, shared_at, shared_by
	FROM shares`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*convo.Conversation, error) {
	var c convo.Conversation
	var id, createdAt string
	var forkConv, forkMsg sql.NullString
	var isPublic int

	if err := row.Scan(&id, &c.Title, &c.Description, &createdAt, &c.CreatedBy, &isPublic, &forkConv, &forkMsg); err != nil {
		return nil, err
	}

	var err error
	c.ConversationID, err = uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	c.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	c.IsPublic = isPublic != 0
	if forkConv.Valid {
		v, err := uuid.Parse(forkConv.String)
		if err != nil {
			return nil, err
		}
		c.ForkFromConversationID = &v
	}
	if forkMsg.Valid {
		v, err := uuid.Parse(forkMsg.String)
		if err != nil {
			return nil, err
		}
		c.ForkFromMessageID = &v
	}
	return &c, nil
}

func scanMessageRow(scan func(dest ...any) error) (*convo.Message, error) {
	var convID, msgID, role, contentType, contentData, lineageJSON, createdAt string
	var parentID sql.NullString
	var contentMetadata sql.NullString
	var depth int
	var createdBy string

	if err := scan(&convID, &msgID, &parentID, &role, &contentType, &contentData, &contentMetadata, &lineageJSON, &depth, &createdAt, &createdBy); err != nil {
		return nil, err
	}

	m := &convo.Message{Role: convo.Role(role), Depth: depth, CreatedBy: createdBy}

	var err error
	m.ConversationID, err = uuid.Parse(convID)
	if err != nil {
		return nil, err
	}
	m.MessageID, err = uuid.Parse(msgID)
	if err != nil {
		return nil, err
	}
	if parentID.Valid {
		v, err := uuid.Parse(parentID.String)
		if err != nil {
			return nil, err
		}
		m.ParentMessageID = &v
	}
	m.Content, err = content.Decode(contentType, contentData)
	if err != nil {
		return nil, err
	}
	if contentMetadata.Valid && contentMetadata.String != "" {
		if err := json.Unmarshal([]byte(contentMetadata.String), &m.ContentMetadata); err != nil {
			return nil, err
		}
	}
	if err := json.Unmarshal([]byte(lineageJSON), &m.Lineage); err != nil {
		return nil, err
	}
	m.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func scanMessage(row rowScanner) (*convo.Message, error) {
	return scanMessageRow(row.Scan)
}

func scanMessages(rows *sql.Rows) ([]*convo.Message, error) {
	var result []*convo.Message
	for rows.Next() {
		m, err := scanMessageRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if result == nil {
		result = []*convo.Message{}
	}
	return result, nil
}

func scanBranchRow(scan func(dest ...any) error) (*convo.Branch, error) {
	var convID, branchID, leafID, createdAt, lastUpdated string
	var isActive int
	b := &convo.Branch{}

	if err := scan(&convID, &branchID, &b.BranchName, &leafID, &createdAt, &lastUpdated, &b.CreatedBy, &isActive); err != nil {
		return nil, err
	}

	var err error
	b.ConversationID, err = uuid.Parse(convID)
	if err != nil {
		return nil, err
	}
	b.BranchID, err = uuid.Parse(branchID)
	if err != nil {
		return nil, err
	}
	b.LeafMessageID, err = uuid.Parse(leafID)
	if err != nil {
		return nil, err
	}
	b.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	b.LastUpdated, err = parseTime(lastUpdated)
	if err != nil {
		return nil, err
	}
	b.IsActive = isActive != 0
	return b, nil
}

func scanBranch(row rowScanner) (*convo.Branch, error) {
	return scanBranchRow(row.Scan)
}

func scanBranchRows(rows *sql.Rows) (*convo.Branch, error) {
	return scanBranchRow(rows.Scan)
}

func scanShareRow(scan func(dest ...any) error) (*convo.Share, error) {
	var convID, permission, sharedAt string
	sh := &convo.Share{}

	if err := scan(&convID, &sh.SharedWith, &permission, &sharedAt, &sh.SharedBy); err != nil {
		return nil, err
	}

	var err error
	sh.ConversationID, err = uuid.Parse(convID)
	if err != nil {
		return nil, err
	}
	sh.Permission = convo.Permission(permission)
	sh.SharedAt, err = parseTime(sharedAt)
	if err != nil {
		return nil, err
	}
	return sh, nil
}

func scanShare(row rowScanner) (*convo.Share, error) {
	return scanShareRow(row.Scan)
}

func scanShares(rows *sql.Rows) ([]*convo.Share, error) {
	var result []*convo.Share
	for rows.Next() {
		sh, err := scanShareRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if result == nil {
		result = []*convo.Share{}
	}
	return result, nil
}

package postgres

import (
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/branchweave/branchweave/pkg/content"
	"github.com/branchweave/branchweave/pkg/convo"
)

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
	var id string
	var forkConv, forkMsg sql.NullString

	if err := row.Scan(&id, &c.Title, &c.Description, &c.CreatedAt, &c.CreatedBy, &c.IsPublic, &forkConv, &forkMsg); err != nil {
		return nil, err
	}

	var err error
	c.ConversationID, err = uuid.Parse(id)
	if err != nil {
		return nil, err
	}
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
	var convID, msgID, role, contentType, contentData, lineageJSON string
	var parentID sql.NullString
	var contentMetadata sql.NullString
	var depth int
	var createdBy string

	m := &convo.Message{}
	if err := scan(&convID, &msgID, &parentID, &role, &contentType, &contentData, &contentMetadata, &lineageJSON, &depth, &m.CreatedAt, &createdBy); err != nil {
		return nil, err
	}
	m.Role = convo.Role(role)
	m.Depth = depth
	m.CreatedBy = createdBy

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
	var convID, branchID, leafID string
	b := &convo.Branch{}

	if err := scan(&convID, &branchID, &b.BranchName, &leafID, &b.CreatedAt, &b.LastUpdated, &b.CreatedBy, &b.IsActive); err != nil {
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
	return b, nil
}

func scanBranch(row rowScanner) (*convo.Branch, error) {
	return scanBranchRow(row.Scan)
}

func scanBranchRows(rows *sql.Rows) (*convo.Branch, error) {
	return scanBranchRow(rows.Scan)
}

func scanShareRow(scan func(dest ...any) error) (*convo.Share, error) {
	var convID, permission string
	sh := &convo.Share{}

	if err := scan(&convID, &sh.SharedWith, &permission, &sh.SharedAt, &sh.SharedBy); err != nil {
		return nil, err
	}

	var err error
	sh.ConversationID, err = uuid.Parse(convID)
	if err != nil {
		return nil, err
	}
	sh.Permission = convo.Permission(permission)
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

// Package postgres implements store.Store over PostgreSQL using raw SQL
// via database/sql and the pgx stdlib driver, the same sql.Open("pgx", ...)
// pattern the teacher's postgres backend uses, without the ent wrapping.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/branchweave/branchweave/pkg/apierr"
	"github.com/branchweave/branchweave/pkg/content"
	"github.com/branchweave/branchweave/pkg/convo"
)

// Store implements store.Store against a PostgreSQL database.
type Store struct {
	db *sql.DB
}

// New opens a connection pool against connStr and ensures the schema
// exists.
func New(ctx context.Context, connStr string) (*Store, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		conversation_id UUID PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		created_by TEXT NOT NULL,
		is_public BOOLEAN NOT NULL DEFAULT FALSE,
		fork_from_conversation_id UUID,
		fork_from_message_id UUID
	);

	CREATE TABLE IF NOT EXISTS messages (
		conversation_id UUID NOT NULL,
		message_id UUID NOT NULL,
		parent_message_id UUID,
		role TEXT NOT NULL,
		content_type TEXT NOT NULL,
		content_data JSONB NOT NULL,
		content_metadata JSONB,
		lineage JSONB NOT NULL,
		depth INTEGER NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		created_by TEXT NOT NULL,
		PRIMARY KEY (conversation_id, message_id)
	);
	CREATE INDEX IF NOT EXISTS idx_messages_parent
		ON messages (conversation_id, parent_message_id);

	CREATE TABLE IF NOT EXISTS branches (
		conversation_id UUID NOT NULL,
		branch_id UUID NOT NULL,
		branch_name TEXT NOT NULL,
		leaf_message_id UUID NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		last_updated TIMESTAMPTZ NOT NULL,
		created_by TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		PRIMARY KEY (conversation_id, branch_id)
	);

	CREATE TABLE IF NOT EXISTS shares (
		conversation_id UUID NOT NULL,
		shared_with TEXT NOT NULL,
		permission TEXT NOT NULL,
		shared_at TIMESTAMPTZ NOT NULL,
		shared_by TEXT NOT NULL,
		PRIMARY KEY (conversation_id, shared_with)
	);
	CREATE INDEX IF NOT EXISTS idx_shares_by_user ON shares (shared_with);

	CREATE TABLE IF NOT EXISTS user_activity (
		user_id TEXT NOT NULL,
		conversation_id UUID NOT NULL,
		active_branch_id UUID,
		last_activity TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (user_id, conversation_id)
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Store) PutConversation(ctx context.Context, c *convo.Conversation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (conversation_id, title, description, created_at, created_by, is_public, fork_from_conversation_id, fork_from_message_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (conversation_id) DO UPDATE SET
			title=excluded.title, description=excluded.description, is_public=excluded.is_public`,
		c.ConversationID.String(), c.Title, c.Description, c.CreatedAt, c.CreatedBy,
		c.IsPublic, uuidPtrStr(c.ForkFromConversationID), uuidPtrStr(c.ForkFromMessageID))
	if err != nil {
		return apierr.Internal(err, "putting conversation")
	}
	return nil
}

func (s *Store) GetConversation(ctx context.Context, conversationID uuid.UUID) (*convo.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT conversation_id, title, description, created_at, created_by, is_public, fork_from_conversation_id, fork_from_message_id
		FROM conversations WHERE conversation_id = $1`, conversationID.String())

	c, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFound("conversation %s not found", conversationID)
	}
	if err != nil {
		return nil, apierr.Internal(err, "getting conversation")
	}
	return c, nil
}

func (s *Store) DeleteConversation(ctx context.Context, conversationID uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apierr.Internal(err, "deleting conversation")
	}
	defer tx.Rollback()

	for _, table := range []string{"messages", "branches", "shares", "user_activity", "conversations"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE conversation_id = $1", table), conversationID.String()); err != nil {
			return apierr.Internal(err, "deleting from %s", table)
		}
	}
	if err := tx.Commit(); err != nil {
		return apierr.Internal(err, "committing conversation delete")
	}
	return nil
}

func (s *Store) PutMessage(ctx context.Context, m *convo.Message) error {
	return s.PutMessages(ctx, []*convo.Message{m})
}

func (s *Store) PutMessages(ctx context.Context, ms []*convo.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apierr.Internal(err, "putting messages")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (conversation_id, message_id, parent_message_id, role, content_type, content_data, content_metadata, lineage, depth, created_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`)
	if err != nil {
		return apierr.Internal(err, "preparing message insert")
	}
	defer stmt.Close()

	for _, m := range ms {
		contentType, contentData, _, err := content.Encode(m.Content, nil)
		if err != nil {
			return apierr.InvalidInput("encoding content: %v", err)
		}
		metaJSON, err := json.Marshal(m.ContentMetadata)
		if err != nil {
			return apierr.Internal(err, "encoding content metadata")
		}
		lineageJSON, err := json.Marshal(m.Lineage)
		if err != nil {
			return apierr.Internal(err, "encoding lineage")
		}

		if _, err := stmt.ExecContext(ctx,
			m.ConversationID.String(), m.MessageID.String(), uuidPtrStr(m.ParentMessageID), string(m.Role),
			contentType, contentData, string(metaJSON), string(lineageJSON),
			m.Depth, m.CreatedAt, m.CreatedBy,
		); err != nil {
			return apierr.Internal(err, "inserting message")
		}
	}

	if err := tx.Commit(); err != nil {
		return apierr.Internal(err, "committing message write")
	}
	return nil
}

func (s *Store) GetMessage(ctx context.Context, conversationID, messageID uuid.UUID) (*convo.Message, error) {
	row := s.db.QueryRowContext(ctx, messageSelect+" WHERE conversation_id = $1 AND message_id = $2",
		conversationID.String(), messageID.String())
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFound("message %s not found", messageID)
	}
	if err != nil {
		return nil, apierr.Internal(err, "getting message")
	}
	return m, nil
}

func (s *Store) GetMessagesByIDs(ctx context.Context, conversationID uuid.UUID, ids []uuid.UUID) ([]*convo.Message, error) {
	result := make([]*convo.Message, 0, len(ids))
	for _, id := range ids {
		m, err := s.GetMessage(ctx, conversationID, id)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, nil
}

func (s *Store) GetChildren(ctx context.Context, conversationID, parentMessageID uuid.UUID) ([]*convo.Message, error) {
	rows, err := s.db.QueryContext(ctx, messageSelect+" WHERE conversation_id = $1 AND parent_message_id = $2 ORDER BY created_at",
		conversationID.String(), parentMessageID.String())
	if err != nil {
		return nil, apierr.Internal(err, "getting children")
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *Store) GetAllMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*convo.Message, int, error) {
	total, err := s.CountMessages(ctx, conversationID)
	if err != nil {
		return nil, 0, err
	}

	query := messageSelect + " WHERE conversation_id = $1 ORDER BY depth, created_at"
	args := []any{conversationID.String()}
	if limit > 0 {
		query += " LIMIT $2 OFFSET $3"
		args = append(args, limit, offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, apierr.Internal(err, "getting conversation tree")
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

func (s *Store) CountMessages(ctx context.Context, conversationID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE conversation_id = $1`, conversationID.String()).Scan(&count)
	if err != nil {
		return 0, apierr.Internal(err, "counting messages")
	}
	return count, nil
}

func (s *Store) PutBranch(ctx context.Context, b *convo.Branch) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO branches (conversation_id, branch_id, branch_name, leaf_message_id, created_at, last_updated, created_by, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		b.ConversationID.String(), b.BranchID.String(), b.BranchName, b.LeafMessageID.String(), b.CreatedAt, b.LastUpdated, b.CreatedBy, b.IsActive)
	if err != nil {
		return apierr.Internal(err, "putting branch")
	}
	return nil
}

func (s *Store) GetBranch(ctx context.Context, conversationID, branchID uuid.UUID) (*convo.Branch, error) {
	row := s.db.QueryRowContext(ctx, branchSelect+" WHERE conversation_id = $1 AND branch_id = $2", conversationID.String(), branchID.String())
	b, err := scanBranch(row)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFound("branch %s not found", branchID)
	}
	if err != nil {
		return nil, apierr.Internal(err, "getting branch")
	}
	return b, nil
}

func (s *Store) ListBranches(ctx context.Context, conversationID uuid.UUID, activeOnly bool) ([]*convo.Branch, error) {
	query := branchSelect + " WHERE conversation_id = $1"
	if activeOnly {
		query += " AND is_active = TRUE"
	}
	query += " ORDER BY created_at"

	rows, err := s.db.QueryContext(ctx, query, conversationID.String())
	if err != nil {
		return nil, apierr.Internal(err, "listing branches")
	}
	defer rows.Close()

	var result []*convo.Branch
	for rows.Next() {
		b, err := scanBranchRows(rows)
		if err != nil {
			return nil, apierr.Internal(err, "scanning branch")
		}
		result = append(result, b)
	}
	if result == nil {
		result = []*convo.Branch{}
	}
	return result, nil
}

func (s *Store) CASAdvanceLeaf(ctx context.Context, conversationID, branchID, expectedLeaf, newLeaf uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE branches SET leaf_message_id = $1, last_updated = now()
		WHERE conversation_id = $2 AND branch_id = $3 AND leaf_message_id = $4`,
		newLeaf.String(), conversationID.String(), branchID.String(), expectedLeaf.String())
	if err != nil {
		return false, apierr.Internal(err, "advancing branch leaf")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apierr.Internal(err, "checking branch leaf advance")
	}
	if n == 0 {
		if _, err := s.GetBranch(ctx, conversationID, branchID); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (s *Store) UpdateBranch(ctx context.Context, b *convo.Branch) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE branches SET branch_name = $1, leaf_message_id = $2, last_updated = now(), is_active = $3
		WHERE conversation_id = $4 AND branch_id = $5`,
		b.BranchName, b.LeafMessageID.String(), b.IsActive, b.ConversationID.String(), b.BranchID.String())
	if err != nil {
		return apierr.Internal(err, "updating branch")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apierr.NotFound("branch %s not found", b.BranchID)
	}
	return nil
}

func (s *Store) DeleteBranch(ctx context.Context, conversationID, branchID uuid.UUID, hard bool) error {
	if hard {
		res, err := s.db.ExecContext(ctx, `DELETE FROM branches WHERE conversation_id = $1 AND branch_id = $2`,
			conversationID.String(), branchID.String())
		if err != nil {
			return apierr.Internal(err, "hard-deleting branch")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apierr.NotFound("branch %s not found", branchID)
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx, `UPDATE branches SET is_active = FALSE, last_updated = now() WHERE conversation_id = $1 AND branch_id = $2`,
		conversationID.String(), branchID.String())
	if err != nil {
		return apierr.Internal(err, "soft-deleting branch")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apierr.NotFound("branch %s not found", branchID)
	}
	return nil
}

func (s *Store) PutShare(ctx context.Context, share *convo.Share) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shares (conversation_id, shared_with, permission, shared_at, shared_by)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (conversation_id, shared_with) DO UPDATE SET
			permission=excluded.permission, shared_at=excluded.shared_at, shared_by=excluded.shared_by`,
		share.ConversationID.String(), share.SharedWith, string(share.Permission), share.SharedAt, share.SharedBy)
	if err != nil {
		return apierr.Internal(err, "putting share")
	}
	return nil
}

func (s *Store) GetShare(ctx context.Context, conversationID uuid.UUID, sharedWith string) (*convo.Share, error) {
	row := s.db.QueryRowContext(ctx, shareSelect+" WHERE conversation_id = $1 AND shared_with = $2", conversationID.String(), sharedWith)
	sh, err := scanShare(row)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFound("share for %s not found", sharedWith)
	}
	if err != nil {
		return nil, apierr.Internal(err, "getting share")
	}
	return sh, nil
}

func (s *Store) ListShares(ctx context.Context, conversationID uuid.UUID) ([]*convo.Share, error) {
	rows, err := s.db.QueryContext(ctx, shareSelect+" WHERE conversation_id = $1 ORDER BY shared_at", conversationID.String())
	if err != nil {
		return nil, apierr.Internal(err, "listing shares")
	}
	defer rows.Close()
	return scanShares(rows)
}

func (s *Store) DeleteShare(ctx context.Context, conversationID uuid.UUID, sharedWith string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM shares WHERE conversation_id = $1 AND shared_with = $2`,
		conversationID.String(), sharedWith)
	if err != nil {
		return apierr.Internal(err, "deleting share")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apierr.NotFound("share for %s not found", sharedWith)
	}
	return nil
}

func (s *Store) ListSharesForUser(ctx context.Context, userID string) ([]*convo.Share, error) {
	rows, err := s.db.QueryContext(ctx, shareSelect+" WHERE shared_with = $1 ORDER BY shared_at", userID)
	if err != nil {
		return nil, apierr.Internal(err, "listing shares for user")
	}
	defer rows.Close()
	return scanShares(rows)
}

func (s *Store) UpsertUserActivity(ctx context.Context, a *convo.UserActivity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_activity (user_id, conversation_id, active_branch_id, last_activity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, conversation_id) DO UPDATE SET
			active_branch_id=excluded.active_branch_id, last_activity=excluded.last_activity`,
		a.UserID, a.ConversationID.String(), uuidPtrStr(a.ActiveBranchID), a.LastActivity)
	if err != nil {
		return apierr.Internal(err, "upserting user activity")
	}
	return nil
}

func (s *Store) ListUserActivity(ctx context.Context, userID string, limit int) ([]*convo.UserActivity, error) {
	query := `SELECT user_id, conversation_id, active_branch_id, last_activity FROM user_activity
		WHERE user_id = $1 ORDER BY last_activity DESC`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierr.Internal(err, "listing user activity")
	}
	defer rows.Close()

	var result []*convo.UserActivity
	for rows.Next() {
		var a convo.UserActivity
		var convID string
		var branchID sql.NullString
		if err := rows.Scan(&a.UserID, &convID, &branchID, &a.LastActivity); err != nil {
			return nil, apierr.Internal(err, "scanning user activity")
		}
		var err error
		a.ConversationID, err = uuid.Parse(convID)
		if err != nil {
			return nil, apierr.Internal(err, "parsing conversation id")
		}
		if branchID.Valid {
			id, err := uuid.Parse(branchID.String)
			if err != nil {
				return nil, apierr.Internal(err, "parsing branch id")
			}
			a.ActiveBranchID = &id
		}
		result = append(result, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, apierr.Internal(err, "iterating user activity")
	}
	if result == nil {
		result = []*convo.UserActivity{}
	}
	return result, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Package sqlite implements store.Store over SQLite using raw SQL via
// database/sql and github.com/mattn/go-sqlite3, storing
// conversation/message/branch/share rows.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/branchweave/branchweave/pkg/apierr"
	"github.com/branchweave/branchweave/pkg/content"
	"github.com/branchweave/branchweave/pkg/convo"
)

// Store implements store.Store using a SQLite file or in-memory database.
type Store struct {
	db *sql.DB
}

// New opens (creating if necessary) a SQLite-backed Store. dbPath may be
// a file path or ":memory:".
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		conversation_id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT,
		created_at TEXT NOT NULL,
		created_by TEXT NOT NULL,
		is_public INTEGER NOT NULL DEFAULT 0,
		fork_from_conversation_id TEXT,
		fork_from_message_id TEXT
	);

	CREATE TABLE IF NOT EXISTS messages (
		conversation_id TEXT NOT NULL,
		message_id TEXT NOT NULL,
		parent_message_id TEXT,
		role TEXT NOT NULL,
		content_type TEXT NOT NULL,
		content_data TEXT NOT NULL,
		content_metadata TEXT,
		lineage TEXT NOT NULL,
		depth INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		created_by TEXT NOT NULL,
		PRIMARY KEY (conversation_id, message_id)
	);
	CREATE INDEX IF NOT EXISTS idx_messages_parent
		ON messages (conversation_id, parent_message_id);

	CREATE TABLE IF NOT EXISTS branches (
		conversation_id TEXT NOT NULL,
		branch_id TEXT NOT NULL,
		branch_name TEXT NOT NULL,
		leaf_message_id TEXT NOT NULL,
		created_at TEXT NOT NULL,
		last_updated TEXT NOT NULL,
		created_by TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		PRIMARY KEY (conversation_id, branch_id)
	);

	CREATE TABLE IF NOT EXISTS shares (
		conversation_id TEXT NOT NULL,
		shared_with TEXT NOT NULL,
		permission TEXT NOT NULL,
		shared_at TEXT NOT NULL,
		shared_by TEXT NOT NULL,
		PRIMARY KEY (conversation_id, shared_with)
	);
	CREATE INDEX IF NOT EXISTS idx_shares_by_user ON shares (shared_with);

	CREATE TABLE IF NOT EXISTS user_activity (
		user_id TEXT NOT NULL,
		conversation_id TEXT NOT NULL,
		active_branch_id TEXT,
		last_activity TEXT NOT NULL,
		PRIMARY KEY (user_id, conversation_id)
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Store) PutConversation(ctx context.Context, c *convo.Conversation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (conversation_id, title, description, created_at, created_by, is_public, fork_from_conversation_id, fork_from_message_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (conversation_id) DO UPDATE SET
			title=excluded.title, description=excluded.description, is_public=excluded.is_public`,
		c.ConversationID.String(), c.Title, c.Description, c.CreatedAt.Format(timeLayout), c.CreatedBy,
		boolToInt(c.IsPublic), uuidPtrStr(c.ForkFromConversationID), uuidPtrStr(c.ForkFromMessageID))
	if err != nil {
		return apierr.Internal(err, "putting conversation")
	}
	return nil
}

func (s *Store) GetConversation(ctx context.Context, conversationID uuid.UUID) (*convo.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT conversation_id, title, description, created_at, created_by, is_public, fork_from_conversation_id, fork_from_message_id
		FROM conversations WHERE conversation_id = ?`, conversationID.String())

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
	id := conversationID.String()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apierr.Internal(err, "deleting conversation")
	}
	defer tx.Rollback()

	for _, table := range []string{"messages", "branches", "shares", "user_activity", "conversations"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE conversation_id = ?", table), id); err != nil {
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
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
			m.ConversationID.String(), m.MessageID.String(), uuidPtrStr(m.ParentMessageID),
			string(m.Role), contentType, contentData, string(metaJSON), string(lineageJSON),
			m.Depth, m.CreatedAt.Format(timeLayout), m.CreatedBy,
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
	row := s.db.QueryRowContext(ctx, messageSelect+" WHERE conversation_id = ? AND message_id = ?",
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
	rows, err := s.db.QueryContext(ctx, messageSelect+" WHERE conversation_id = ? AND parent_message_id = ? ORDER BY created_at",
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

	query := messageSelect + " WHERE conversation_id = ? ORDER BY depth, created_at"
	args := []any{conversationID.String()}
	if limit > 0 {
		query += " LIMIT ? OFFSET ?"
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
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, conversationID.String()).Scan(&count)
	if err != nil {
		return 0, apierr.Internal(err, "counting messages")
	}
	return count, nil
}

func (s *Store) PutBranch(ctx context.Context, b *convo.Branch) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO branches (conversation_id, branch_id, branch_name, leaf_message_id, created_at, last_updated, created_by, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ConversationID.String(), b.BranchID.String(), b.BranchName, b.LeafMessageID.String(),
		b.CreatedAt.Format(timeLayout), b.LastUpdated.Format(timeLayout), b.CreatedBy, boolToInt(b.IsActive))
	if err != nil {
		return apierr.Internal(err, "putting branch")
	}
	return nil
}

func (s *Store) GetBranch(ctx context.Context, conversationID, branchID uuid.UUID) (*convo.Branch, error) {
	row := s.db.QueryRowContext(ctx, branchSelect+" WHERE conversation_id = ? AND branch_id = ?",
		conversationID.String(), branchID.String())
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
	query := branchSelect + " WHERE conversation_id = ?"
	if activeOnly {
		query += " AND is_active = 1"
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
		UPDATE branches SET leaf_message_id = ?, last_updated = ?
		WHERE conversation_id = ? AND branch_id = ? AND leaf_message_id = ?`,
		newLeaf.String(), nowString(), conversationID.String(), branchID.String(), expectedLeaf.String())
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
		UPDATE branches SET branch_name = ?, leaf_message_id = ?, last_updated = ?, is_active = ?
		WHERE conversation_id = ? AND branch_id = ?`,
		b.BranchName, b.LeafMessageID.String(), nowString(), boolToInt(b.IsActive),
		b.ConversationID.String(), b.BranchID.String())
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
		res, err := s.db.ExecContext(ctx, `DELETE FROM branches WHERE conversation_id = ? AND branch_id = ?`,
			conversationID.String(), branchID.String())
		if err != nil {
			return apierr.Internal(err, "hard-deleting branch")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apierr.NotFound("branch %s not found", branchID)
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx, `UPDATE branches SET is_active = 0, last_updated = ? WHERE conversation_id = ? AND branch_id = ?`,
		nowString(), conversationID.String(), branchID.String())
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
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (conversation_id, shared_with) DO UPDATE SET
			permission=excluded.permission, shared_at=excluded.shared_at, shared_by=excluded.shared_by`,
		share.ConversationID.String(), share.SharedWith, string(share.Permission), share.SharedAt.Format(timeLayout), share.SharedBy)
	if err != nil {
		return apierr.Internal(err, "putting share")
	}
	return nil
}

func (s *Store) GetShare(ctx context.Context, conversationID uuid.UUID, sharedWith string) (*convo.Share, error) {
	row := s.db.QueryRowContext(ctx, shareSelect+" WHERE conversation_id = ? AND shared_with = ?",
		conversationID.String(), sharedWith)
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
	rows, err := s.db.QueryContext(ctx, shareSelect+" WHERE conversation_id = ? ORDER BY shared_at", conversationID.String())
	if err != nil {
		return nil, apierr.Internal(err, "listing shares")
	}
	defer rows.Close()
	return scanShares(rows)
}

func (s *Store) DeleteShare(ctx context.Context, conversationID uuid.UUID, sharedWith string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM shares WHERE conversation_id = ? AND shared_with = ?`,
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
	rows, err := s.db.QueryContext(ctx, shareSelect+" WHERE shared_with = ? ORDER BY shared_at", userID)
	if err != nil {
		return nil, apierr.Internal(err, "listing shares for user")
	}
	defer rows.Close()
	return scanShares(rows)
}

func (s *Store) UpsertUserActivity(ctx context.Context, a *convo.UserActivity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_activity (user_id, conversation_id, active_branch_id, last_activity)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, conversation_id) DO UPDATE SET
			active_branch_id=excluded.active_branch_id, last_activity=excluded.last_activity`,
		a.UserID, a.ConversationID.String(), uuidPtrStr(a.ActiveBranchID), a.LastActivity.Format(timeLayout))
	if err != nil {
		return apierr.Internal(err, "upserting user activity")
	}
	return nil
}

func (s *Store) ListUserActivity(ctx context.Context, userID string, limit int) ([]*convo.UserActivity, error) {
	query := `SELECT user_id, conversation_id, active_branch_id, last_activity FROM user_activity
		WHERE user_id = ? ORDER BY last_activity DESC`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT ?"
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
		var lastActivity string
		if err := rows.Scan(&a.UserID, &convID, &branchID, &lastActivity); err != nil {
			return nil, apierr.Internal(err, "scanning user activity")
		}
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
		a.LastActivity, err = parseTime(lastActivity)
		if err != nil {
			return nil, apierr.Internal(err, "parsing last activity timestamp")
		}
		result = append(result, &a)
	}
	if result == nil {
		result = []*convo.UserActivity{}
	}
	return result, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

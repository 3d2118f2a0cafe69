package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/tOgg1/chatsync/internal/models"
)

// Chat repository errors.
var (
	ErrChatNotFound = errors.New("chat not found")
	ErrOrderRange   = errors.New("order exceeds storable range")
)

// ChatRepository persists chats and their per-list positions.
type ChatRepository struct {
	db    *DB
	retry RetryPolicy
}

// NewChatRepository creates a new ChatRepository.
func NewChatRepository(db *DB) *ChatRepository {
	return &ChatRepository{db: db, retry: DefaultRetryPolicy()}
}

// WithRetry returns a copy of the repository using policy for writes.
func (r *ChatRepository) WithRetry(policy RetryPolicy) *ChatRepository {
	return &ChatRepository{db: r.db, retry: policy.normalized()}
}

type execer interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
}

// PutChat creates or replaces the snapshot of a chat.
func (r *ChatRepository) PutChat(ctx context.Context, id models.ChatID, snap models.Snapshot) error {
	if id <= 0 {
		return models.ErrInvalidChatID
	}
	return r.db.TransactionWithRetry(ctx, r.retry, func(tx *sql.Tx) error {
		return putChat(ctx, tx, id, snap)
	})
}

func putChat(ctx context.Context, ex execer, id models.ChatID, snap models.Snapshot) error {
	var lastActivity *string
	if !snap.LastActivity.IsZero() {
		s := snap.LastActivity.UTC().Format(time.RFC3339Nano)
		lastActivity = &s
	}

	_, err := ex.ExecContext(ctx, `
		INSERT INTO chats (
			id, title, last_activity, unread_count, mention_count, has_draft,
			muted, has_scheduled, tag, archived, special, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			last_activity = excluded.last_activity,
			unread_count = excluded.unread_count,
			mention_count = excluded.mention_count,
			has_draft = excluded.has_draft,
			muted = excluded.muted,
			has_scheduled = excluded.has_scheduled,
			tag = excluded.tag,
			archived = excluded.archived,
			special = excluded.special,
			updated_at = excluded.updated_at
	`,
		int64(id),
		snap.Title,
		lastActivity,
		snap.UnreadCount,
		snap.MentionCount,
		boolToInt(snap.HasDraft),
		boolToInt(snap.Muted),
		boolToInt(snap.HasScheduled),
		snap.Tag,
		boolToInt(snap.Archived),
		boolToInt(snap.Special),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert chat %d: %w", id, err)
	}
	return nil
}

// GetChat returns the snapshot of a chat.
func (r *ChatRepository) GetChat(ctx context.Context, id models.ChatID) (models.Snapshot, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT title, last_activity, unread_count, mention_count, has_draft,
			muted, has_scheduled, tag, archived, special
		FROM chats WHERE id = ?
	`, int64(id))

	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Snapshot{}, ErrChatNotFound
	}
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to load chat %d: %w", id, err)
	}
	return snap, nil
}

// SetPosition places a chat in list and returns its previous position, if
// any. A non-member position removes the chat from the list.
func (r *ChatRepository) SetPosition(ctx context.Context, list models.ListID, id models.ChatID, pos models.Position) (*models.Position, error) {
	if list == "" {
		return nil, models.ErrInvalidList
	}
	if pos.Order > math.MaxInt64 {
		return nil, fmt.Errorf("chat %d order %d: %w", id, pos.Order, ErrOrderRange)
	}

	var prev *models.Position
	err := r.db.TransactionWithRetry(ctx, r.retry, func(tx *sql.Tx) error {
		current, err := position(ctx, tx, list, id)
		if err != nil {
			return err
		}
		prev = current

		if !pos.IsMember() {
			_, err := tx.ExecContext(ctx, `DELETE FROM chat_positions WHERE list_id = ? AND chat_id = ?`, string(list), int64(id))
			if err != nil {
				return fmt.Errorf("failed to remove chat %d from %s: %w", id, list, err)
			}
			return nil
		}

		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM chats WHERE id = ?`, int64(id)).Scan(&exists); err != nil {
			return fmt.Errorf("failed to look up chat %d: %w", id, err)
		}
		if exists == 0 {
			return ErrChatNotFound
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO chat_positions (list_id, chat_id, pinned, ord, tie_break)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(list_id, chat_id) DO UPDATE SET
				pinned = excluded.pinned,
				ord = excluded.ord,
				tie_break = excluded.tie_break
		`, string(list), int64(id), boolToInt(pos.Pinned), int64(pos.Order), pos.TieBreak)
		if err != nil {
			return fmt.Errorf("failed to position chat %d in %s: %w", id, list, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return prev, nil
}

// RemoveFromList takes a chat out of list and returns the position it had.
func (r *ChatRepository) RemoveFromList(ctx context.Context, list models.ListID, id models.ChatID) (*models.Position, error) {
	return r.SetPosition(ctx, list, id, models.Position{})
}

// Position returns the position of a chat in list, or nil.
func (r *ChatRepository) Position(ctx context.Context, list models.ListID, id models.ChatID) (*models.Position, error) {
	return position(ctx, r.db, list, id)
}

func position(ctx context.Context, ex execer, list models.ListID, id models.ChatID) (*models.Position, error) {
	var pinned int
	var ord, tieBreak int64
	err := ex.QueryRowContext(ctx, `
		SELECT pinned, ord, tie_break FROM chat_positions WHERE list_id = ? AND chat_id = ?
	`, string(list), int64(id)).Scan(&pinned, &ord, &tieBreak)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load position of chat %d: %w", id, err)
	}
	return &models.Position{Pinned: pinned != 0, Order: uint64(ord), TieBreak: tieBreak}, nil
}

// Memberships returns every list the chat belongs to with its position.
func (r *ChatRepository) Memberships(ctx context.Context, id models.ChatID) (map[models.ListID]models.Position, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT list_id, pinned, ord, tie_break FROM chat_positions WHERE chat_id = ?
	`, int64(id))
	if err != nil {
		return nil, fmt.Errorf("failed to query memberships: %w", err)
	}
	defer rows.Close()

	out := make(map[models.ListID]models.Position)
	for rows.Next() {
		var list string
		var pinned int
		var ord, tieBreak int64
		if err := rows.Scan(&list, &pinned, &ord, &tieBreak); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		out[models.ListID(list)] = models.Position{Pinned: pinned != 0, Order: uint64(ord), TieBreak: tieBreak}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memberships: %w", err)
	}
	return out, nil
}

// Entry returns a chat as positioned in list.
func (r *ChatRepository) Entry(ctx context.Context, list models.ListID, id models.ChatID) (models.Entry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM chat_positions p JOIN chats c ON c.id = p.chat_id
		WHERE p.list_id = ? AND p.chat_id = ?
	`, string(list), int64(id))

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Entry{}, ErrChatNotFound
	}
	if err != nil {
		return models.Entry{}, fmt.Errorf("failed to load chat %d: %w", id, err)
	}
	return entry, nil
}

// ListPage returns up to limit entries of list sorting after after, in list
// order. Filter queries match titles case-insensitively (ASCII only).
func (r *ChatRepository) ListPage(ctx context.Context, list models.ListID, filter models.Filter, after *models.Position, limit int) ([]models.Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + entryColumns + `
		FROM chat_positions p JOIN chats c ON c.id = p.chat_id
		WHERE p.list_id = ?`
	args := []any{string(list)}

	clause, filterArgs := filterClause(filter)
	query += clause
	args = append(args, filterArgs...)

	if after != nil {
		pinned := boolToInt(after.Pinned)
		query += ` AND (p.pinned < ?
			OR (p.pinned = ? AND p.ord < ?)
			OR (p.pinned = ? AND p.ord = ? AND p.tie_break > ?))`
		args = append(args, pinned, pinned, int64(after.Order), pinned, int64(after.Order), after.TieBreak)
	}

	query += ` ORDER BY p.pinned DESC, p.ord DESC, p.tie_break ASC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", list, err)
	}
	defer rows.Close()

	var entries []models.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", list, err)
	}
	return entries, nil
}

// Count returns the number of chats in list matching filter.
func (r *ChatRepository) Count(ctx context.Context, list models.ListID, filter models.Filter) (int, error) {
	clause, args := filterClause(filter)
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM chat_positions p JOIN chats c ON c.id = p.chat_id
		WHERE p.list_id = ?`+clause, append([]any{string(list)}, args...)...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", list, err)
	}
	return count, nil
}

// MaxOrder returns the highest order in the pinned or unpinned part of list.
func (r *ChatRepository) MaxOrder(ctx context.Context, list models.ListID, pinned bool) (uint64, error) {
	var highest sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
		SELECT MAX(ord) FROM chat_positions WHERE list_id = ? AND pinned = ?
	`, string(list), boolToInt(pinned)).Scan(&highest)
	if err != nil {
		return 0, fmt.Errorf("failed to read max order of %s: %w", list, err)
	}
	if !highest.Valid {
		return 0, nil
	}
	return uint64(highest.Int64), nil
}

// Lists returns the ids of every list that holds at least one chat.
func (r *ChatRepository) Lists(ctx context.Context) ([]models.ListID, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT list_id FROM chat_positions ORDER BY list_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query lists: %w", err)
	}
	defer rows.Close()

	var lists []models.ListID
	for rows.Next() {
		var list string
		if err := rows.Scan(&list); err != nil {
			return nil, fmt.Errorf("failed to scan list: %w", err)
		}
		lists = append(lists, models.ListID(list))
	}
	return lists, rows.Err()
}

const entryColumns = `c.id, p.pinned, p.ord, p.tie_break,
	c.title, c.last_activity, c.unread_count, c.mention_count, c.has_draft,
	c.muted, c.has_scheduled, c.tag, c.archived, c.special`

func filterClause(filter models.Filter) (string, []any) {
	var b strings.Builder
	var args []any
	if filter.UnreadOnly {
		b.WriteString(` AND c.unread_count > 0`)
	}
	if filter.MutedOnly {
		b.WriteString(` AND c.muted = 1`)
	}
	if filter.MentionsOnly {
		b.WriteString(` AND c.mention_count > 0`)
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		b.WriteString(` AND instr(lower(c.title), lower(?)) > 0`)
		args = append(args, q)
	}
	return b.String(), args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (models.Entry, error) {
	var entry models.Entry
	var id, ord, tieBreak int64
	var pinned int
	var f snapshotFields
	if err := s.Scan(append([]any{&id, &pinned, &ord, &tieBreak}, f.targets()...)...); err != nil {
		return models.Entry{}, err
	}
	entry.ID = models.ChatID(id)
	entry.Position = models.Position{Pinned: pinned != 0, Order: uint64(ord), TieBreak: tieBreak}
	entry.Metadata = f.snapshot()
	return entry, nil
}

func scanSnapshot(s scanner) (models.Snapshot, error) {
	var f snapshotFields
	if err := s.Scan(f.targets()...); err != nil {
		return models.Snapshot{}, err
	}
	return f.snapshot(), nil
}

type snapshotFields struct {
	title        string
	lastActivity sql.NullString
	unread       int
	mentions     int
	draft        int
	muted        int
	scheduled    int
	tag          string
	archived     int
	special      int
}

func (f *snapshotFields) targets() []any {
	return []any{
		&f.title, &f.lastActivity, &f.unread, &f.mentions, &f.draft,
		&f.muted, &f.scheduled, &f.tag, &f.archived, &f.special,
	}
}

func (f *snapshotFields) snapshot() models.Snapshot {
	snap := models.Snapshot{
		Title:        f.title,
		UnreadCount:  f.unread,
		MentionCount: f.mentions,
		HasDraft:     f.draft != 0,
		Muted:        f.muted != 0,
		HasScheduled: f.scheduled != 0,
		Tag:          f.tag,
		Archived:     f.archived != 0,
		Special:      f.special != 0,
	}
	if f.lastActivity.Valid {
		if t, err := time.Parse(time.RFC3339Nano, f.lastActivity.String); err == nil {
			snap.LastActivity = t
		}
	}
	return snap
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

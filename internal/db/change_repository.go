package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tOgg1/chatsync/internal/models"
)

// ErrInvalidChange is returned when a notification cannot be recorded.
var ErrInvalidChange = errors.New("invalid change")

// Change is one recorded notification.
type Change struct {
	Seq          int64
	ID           string
	RecordedAt   time.Time
	Notification models.ChangeNotification
}

// ChangeQuery selects recorded changes.
type ChangeQuery struct {
	List   models.ListID // empty for every list
	ChatID models.ChatID // zero for every chat
	After  int64         // only changes with a larger seq
	Limit  int
}

// ChangePage is a page of changes. NextAfter is zero on the last page.
type ChangePage struct {
	Changes   []Change
	NextAfter int64
}

// ChangeRepository keeps the log of notifications emitted for each list.
type ChangeRepository struct {
	db *DB
}

// NewChangeRepository creates a new ChangeRepository.
func NewChangeRepository(db *DB) *ChangeRepository {
	return &ChangeRepository{db: db}
}

// Append records n and returns the stored change.
func (r *ChangeRepository) Append(ctx context.Context, n models.ChangeNotification) (Change, error) {
	return r.appendWithExecutor(ctx, r.db, n)
}

// AppendWithTx records n inside an existing transaction.
func (r *ChangeRepository) AppendWithTx(ctx context.Context, tx *sql.Tx, n models.ChangeNotification) (Change, error) {
	if tx == nil {
		return Change{}, fmt.Errorf("transaction is required")
	}
	return r.appendWithExecutor(ctx, tx, n)
}

func (r *ChangeRepository) appendWithExecutor(ctx context.Context, ex execer, n models.ChangeNotification) (Change, error) {
	if err := n.Validate(); err != nil {
		return Change{}, fmt.Errorf("%w: %v", ErrInvalidChange, err)
	}

	change := Change{
		ID:           uuid.New().String(),
		RecordedAt:   time.Now().UTC(),
		Notification: n.Clone(),
	}

	positionJSON, err := marshalOptional(n.Position)
	if err != nil {
		return Change{}, fmt.Errorf("failed to marshal position: %w", err)
	}
	metadataJSON, err := marshalOptional(n.Metadata)
	if err != nil {
		return Change{}, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	result, err := ex.ExecContext(ctx, `
		INSERT INTO changes (id, recorded_at, list_id, kind, chat_id, position_json, metadata_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		change.ID,
		change.RecordedAt.Format(time.RFC3339Nano),
		string(n.List),
		string(n.Kind),
		int64(n.ChatID),
		positionJSON,
		metadataJSON,
	)
	if err != nil {
		return Change{}, fmt.Errorf("failed to record change: %w", err)
	}
	change.Seq, err = result.LastInsertId()
	if err != nil {
		return Change{}, fmt.Errorf("failed to read change seq: %w", err)
	}
	return change, nil
}

// Query returns changes in seq order with cursor pagination.
func (r *ChangeRepository) Query(ctx context.Context, q ChangeQuery) (*ChangePage, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT seq, id, recorded_at, list_id, kind, chat_id, position_json, metadata_json
		FROM changes WHERE seq > ?`
	args := []any{q.After}

	if q.List != "" {
		query += ` AND list_id = ?`
		args = append(args, string(q.List))
	}
	if q.ChatID != 0 {
		query += ` AND chat_id = ?`
		args = append(args, int64(q.ChatID))
	}

	query += ` ORDER BY seq LIMIT ?`
	args = append(args, limit+1) // one extra tells whether a next page exists

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query changes: %w", err)
	}
	defer rows.Close()

	var changes []Change
	for rows.Next() {
		change, err := scanChange(rows)
		if err != nil {
			return nil, err
		}
		changes = append(changes, change)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating changes: %w", err)
	}

	page := &ChangePage{}
	if len(changes) > limit {
		page.Changes = changes[:limit]
		page.NextAfter = changes[limit-1].Seq
	} else {
		page.Changes = changes
	}
	return page, nil
}

// Count returns the number of recorded changes.
func (r *ChangeRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM changes`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count changes: %w", err)
	}
	return count, nil
}

// DeleteExcess deletes the oldest changes beyond maxCount, at most limit at
// a time. Returns the number of changes deleted.
func (r *ChangeRepository) DeleteExcess(ctx context.Context, maxCount int, limit int) (int64, error) {
	if maxCount <= 0 {
		return 0, nil
	}
	if limit <= 0 {
		limit = 1000
	}

	total, err := r.Count(ctx)
	if err != nil {
		return 0, err
	}
	excess := total - int64(maxCount)
	if excess <= 0 {
		return 0, nil
	}
	if excess > int64(limit) {
		excess = int64(limit)
	}

	result, err := r.db.ExecContext(ctx, `
		DELETE FROM changes WHERE seq IN (
			SELECT seq FROM changes ORDER BY seq LIMIT ?
		)
	`, excess)
	if err != nil {
		return 0, fmt.Errorf("failed to delete excess changes: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get deleted count: %w", err)
	}
	return count, nil
}

func scanChange(rows *sql.Rows) (Change, error) {
	var change Change
	var recordedAt, list, kind string
	var chatID int64
	var positionJSON, metadataJSON sql.NullString

	if err := rows.Scan(&change.Seq, &change.ID, &recordedAt, &list, &kind, &chatID, &positionJSON, &metadataJSON); err != nil {
		return Change{}, fmt.Errorf("failed to scan change: %w", err)
	}

	var err error
	change.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt)
	if err != nil {
		return Change{}, fmt.Errorf("failed to parse recorded_at: %w", err)
	}

	change.Notification = models.ChangeNotification{
		List:   models.ListID(list),
		Kind:   models.NotificationKind(kind),
		ChatID: models.ChatID(chatID),
	}
	if positionJSON.Valid {
		var pos models.Position
		if err := json.Unmarshal([]byte(positionJSON.String), &pos); err != nil {
			return Change{}, fmt.Errorf("failed to unmarshal position: %w", err)
		}
		change.Notification.Position = &pos
	}
	if metadataJSON.Valid {
		var meta models.Snapshot
		if err := json.Unmarshal([]byte(metadataJSON.String), &meta); err != nil {
			return Change{}, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
		change.Notification.Metadata = &meta
	}
	return change, nil
}

func marshalOptional[T any](v *T) (*string, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(data)
	return &s, nil
}

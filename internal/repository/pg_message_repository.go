package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThePickle31/clawd-site-sub000/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const messageColumns = `id, name, email, body, COALESCE(source_address, ''), status,
	COALESCE(notification_id, ''), COALESCE(reply_content, ''),
	created_at, updated_at, approved_at, replied_at, sending_at`

// scanner is satisfied by pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// PgMessageRepository is the PostgreSQL implementation of MessageRepository.
type PgMessageRepository struct {
	pool *pgxpool.Pool
}

// NewPgMessageRepository creates a PgMessageRepository backed by the given pool.
func NewPgMessageRepository(pool *pgxpool.Pool) *PgMessageRepository {
	return &PgMessageRepository{pool: pool}
}

// Ensure PgMessageRepository implements MessageRepository at compile time.
var _ MessageRepository = (*PgMessageRepository)(nil)

func scanMessage(row scanner) (*model.Message, error) {
	var m model.Message
	var status string
	if err := row.Scan(&m.ID, &m.Name, &m.Email, &m.Body, &m.SourceAddress, &status,
		&m.NotificationID, &m.ReplyContent, &m.CreatedAt, &m.UpdatedAt, &m.ApprovedAt, &m.RepliedAt, &m.SendingAt); err != nil {
		return nil, err
	}
	m.Status = model.MessageStatus(status)
	return &m, nil
}

// Create inserts a new messages row. Status is always pending; id and
// timestamps come from the RETURNING clause.
func (r *PgMessageRepository) Create(ctx context.Context, msg *model.Message) error {
	msg.Status = model.MessageStatusPending
	err := r.pool.QueryRow(ctx,
		`INSERT INTO messages (name, email, body, source_address, status)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		 RETURNING id, created_at, updated_at`,
		msg.Name, msg.Email, msg.Body, msg.SourceAddress, string(msg.Status),
	).Scan(&msg.ID, &msg.CreatedAt, &msg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *PgMessageRepository) FindByID(ctx context.Context, id string) (*model.Message, error) {
	m, err := scanMessage(r.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

// List returns pending messages, or all messages for MessageFilterAll.
func (r *PgMessageRepository) List(ctx context.Context, filter model.MessageFilter) ([]*model.Message, error) {
	if filter == model.MessageFilterAll {
		return r.query(ctx, `SELECT `+messageColumns+` FROM messages ORDER BY created_at DESC`)
	}
	return r.ListByStatus(ctx, model.MessageStatusPending)
}

func (r *PgMessageRepository) ListByStatus(ctx context.Context, status model.MessageStatus) ([]*model.Message, error) {
	return r.query(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE status = $1 ORDER BY created_at DESC`,
		string(status))
}

func (r *PgMessageRepository) query(ctx context.Context, sql string, args ...any) ([]*model.Message, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// Transition performs a compare-and-swap on status: the row is only updated
// when its current status is a legal source for `to`. Moves other than
// replied and failed also wait out a live send claim. Every transition
// clears the claim.
func (r *PgMessageRepository) Transition(ctx context.Context, id string, to model.MessageStatus, t model.MessageTransition) (*model.Message, error) {
	from := statusStrings(model.MessageSourcesFor(to))
	m, err := scanMessage(r.pool.QueryRow(ctx,
		`UPDATE messages SET
			status = $2::text,
			approved_at = CASE WHEN $2::text = 'approved' THEN $3::timestamptz ELSE approved_at END,
			replied_at = CASE WHEN $2::text = 'replied' THEN $3::timestamptz ELSE replied_at END,
			reply_content = CASE WHEN $2::text = 'replied' THEN $4 ELSE reply_content END,
			sending_at = NULL,
			updated_at = $3::timestamptz
		 WHERE id = $1 AND status = ANY($5)
		   AND ($2::text IN ('replied', 'failed') OR sending_at IS NULL OR sending_at < $6)
		 RETURNING `+messageColumns,
		id, string(to), t.At, t.ReplyContent, from, t.At.Add(-model.SendLease)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.missOrConflict(ctx, `SELECT EXISTS(SELECT 1 FROM messages WHERE id = $1)`, id)
	}
	if err != nil {
		return nil, fmt.Errorf("transition message %s to %s: %w", id, to, err)
	}
	return m, nil
}

// ClaimSend takes the send claim when the message can still be replied to
// and nobody else holds a live claim. Status is left unchanged.
func (r *PgMessageRepository) ClaimSend(ctx context.Context, id string, now time.Time) (*model.Message, error) {
	from := statusStrings(model.MessageSourcesFor(model.MessageStatusReplied))
	m, err := scanMessage(r.pool.QueryRow(ctx,
		`UPDATE messages SET sending_at = $2, updated_at = $2
		 WHERE id = $1 AND status = ANY($3)
		   AND (sending_at IS NULL OR sending_at < $4)
		 RETURNING `+messageColumns,
		id, now, from, now.Add(-model.SendLease)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.missOrConflict(ctx, `SELECT EXISTS(SELECT 1 FROM messages WHERE id = $1)`, id)
	}
	if err != nil {
		return nil, fmt.Errorf("claim send for message %s: %w", id, err)
	}
	return m, nil
}

func (r *PgMessageRepository) ReleaseSend(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE messages SET sending_at = NULL WHERE id = $1`, id)
	return err
}

func (r *PgMessageRepository) AttachNotification(ctx context.Context, id, ref string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE messages SET notification_id = $2 WHERE id = $1`, id, ref)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PgMessageRepository) missOrConflict(ctx context.Context, existsSQL, id string) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, existsSQL, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

func statusStrings[S ~string](in []S) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

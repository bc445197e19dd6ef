package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ThePickle31/clawd-site-sub000/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const draftColumns = `id, message_id, drafts, COALESCE(external_ref, ''), status, selected_draft, created_at, updated_at`

// PgDraftRepository is the PostgreSQL implementation of DraftRepository.
type PgDraftRepository struct {
	pool *pgxpool.Pool
}

// NewPgDraftRepository creates a PgDraftRepository backed by the given pool.
func NewPgDraftRepository(pool *pgxpool.Pool) *PgDraftRepository {
	return &PgDraftRepository{pool: pool}
}

var _ DraftRepository = (*PgDraftRepository)(nil)

func scanDraft(row scanner) (*model.ReplyDraft, error) {
	var d model.ReplyDraft
	var raw []byte
	var status string
	if err := row.Scan(&d.ID, &d.MessageID, &raw, &d.ExternalRef, &status, &d.SelectedDraft, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &d.Drafts); err != nil {
		return nil, fmt.Errorf("decode drafts: %w", err)
	}
	d.Status = model.DraftStatus(status)
	return &d, nil
}

// Upsert relies on the unique index on message_id so retried draft
// submissions update the existing row instead of adding another one.
func (r *PgDraftRepository) Upsert(ctx context.Context, messageID string, drafts []model.DraftOption, externalRef string) (*model.ReplyDraft, error) {
	raw, err := json.Marshal(drafts)
	if err != nil {
		return nil, err
	}
	d, err := scanDraft(r.pool.QueryRow(ctx,
		`INSERT INTO reply_drafts (message_id, drafts, external_ref, status)
		 VALUES ($1, $2, NULLIF($3, ''), 'pending')
		 ON CONFLICT (message_id) DO UPDATE SET
			drafts = EXCLUDED.drafts,
			external_ref = EXCLUDED.external_ref,
			updated_at = NOW()
		 RETURNING `+draftColumns,
		messageID, raw, externalRef))
	if err != nil {
		return nil, fmt.Errorf("upsert draft for message %s: %w", messageID, err)
	}
	return d, nil
}

func (r *PgDraftRepository) FindByID(ctx context.Context, id string) (*model.ReplyDraft, error) {
	return r.findOne(ctx, `SELECT `+draftColumns+` FROM reply_drafts WHERE id = $1`, id)
}

func (r *PgDraftRepository) FindByMessageID(ctx context.Context, messageID string) (*model.ReplyDraft, error) {
	return r.findOne(ctx, `SELECT `+draftColumns+` FROM reply_drafts WHERE message_id = $1`, messageID)
}

func (r *PgDraftRepository) FindByExternalRef(ctx context.Context, ref string) (*model.ReplyDraft, error) {
	return r.findOne(ctx, `SELECT `+draftColumns+` FROM reply_drafts WHERE external_ref = $1`, ref)
}

func (r *PgDraftRepository) findOne(ctx context.Context, sql, arg string) (*model.ReplyDraft, error) {
	d, err := scanDraft(r.pool.QueryRow(ctx, sql, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

func (r *PgDraftRepository) Transition(ctx context.Context, id string, to model.DraftStatus, t model.DraftTransition) (*model.ReplyDraft, error) {
	from := statusStrings(model.DraftSourcesFor(to))
	d, err := scanDraft(r.pool.QueryRow(ctx,
		`UPDATE reply_drafts SET
			status = $2,
			selected_draft = COALESCE($3, selected_draft),
			updated_at = NOW()
		 WHERE id = $1 AND status = ANY($4)
		 RETURNING `+draftColumns,
		id, string(to), t.SelectedDraft, from))
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM reply_drafts WHERE id = $1)`, id).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, ErrNotFound
		}
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("transition draft %s to %s: %w", id, to, err)
	}
	return d, nil
}

func (r *PgDraftRepository) SetExternalRef(ctx context.Context, id, ref string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE reply_drafts SET external_ref = $2, updated_at = NOW() WHERE id = $1`, id, ref)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/state"
	"github.com/louisbranch/torchbearer.quest/internal/engine/storage"
)

// Session methods

// PutSession stores a session row along with its game-state document.
//
// Activating a session fails with storage.ErrActiveSessionExists when the
// campaign already has a different active session.
func (s *Store) PutSession(ctx context.Context, record storage.SessionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("session id is required")
	}
	if strings.TrimSpace(record.CampaignID) == "" {
		return fmt.Errorf("campaign id is required")
	}

	stateJSON, err := json.Marshal(record.State)
	if err != nil {
		return fmt.Errorf("encode game state: %w", err)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if record.Status == storage.SessionActive {
		var activeID string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM sessions WHERE campaign_id = ? AND status = ? AND id != ?`,
			record.CampaignID, string(storage.SessionActive), record.ID,
		).Scan(&activeID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("check active session: %w", err)
		default:
			return storage.ErrActiveSessionExists
		}
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO sessions (id, campaign_id, name, status, state, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    name = excluded.name,
    status = excluded.status,
    state = excluded.state,
    updated_at = excluded.updated_at`,
		record.ID, record.CampaignID, record.Name, string(record.Status),
		string(stateJSON), toMillis(record.CreatedAt), toMillis(record.UpdatedAt),
	); err != nil {
		return fmt.Errorf("put session: %w", err)
	}

	return tx.Commit()
}

// GetSession loads one session with its game-state document.
func (s *Store) GetSession(ctx context.Context, sessionID string) (storage.SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.SessionRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.SessionRecord{}, fmt.Errorf("storage is not configured")
	}
	return scanSession(s.sqlDB.QueryRowContext(ctx,
		`SELECT id, campaign_id, name, status, state, created_at, updated_at
		 FROM sessions WHERE id = ?`, sessionID))
}

// ActiveSessionForCampaign returns the campaign's single active session.
func (s *Store) ActiveSessionForCampaign(ctx context.Context, campaignID string) (storage.SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.SessionRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.SessionRecord{}, fmt.Errorf("storage is not configured")
	}
	return scanSession(s.sqlDB.QueryRowContext(ctx,
		`SELECT id, campaign_id, name, status, state, created_at, updated_at
		 FROM sessions WHERE campaign_id = ? AND status = ?`,
		campaignID, string(storage.SessionActive)))
}

// UpdateGameState reads the session's document, applies mutate, and writes
// the result inside one transaction. Mutation errors roll back and pass
// through unchanged so domain codes survive the storage layer.
func (s *Store) UpdateGameState(ctx context.Context, sessionID string, mutate func(state.GameState) (state.GameState, error)) (state.GameState, error) {
	if err := ctx.Err(); err != nil {
		return state.GameState{}, err
	}
	if s == nil || s.sqlDB == nil {
		return state.GameState{}, fmt.Errorf("storage is not configured")
	}
	if mutate == nil {
		return state.GameState{}, fmt.Errorf("mutate func is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return state.GameState{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	current, err := readGameStateTx(ctx, tx, sessionID)
	if err != nil {
		return state.GameState{}, err
	}

	next, err := mutate(current)
	if err != nil {
		return state.GameState{}, err
	}

	if err := writeGameStateTx(ctx, tx, sessionID, next, time.Now()); err != nil {
		return state.GameState{}, err
	}

	if err := tx.Commit(); err != nil {
		return state.GameState{}, fmt.Errorf("commit tx: %w", err)
	}
	return next, nil
}

func readGameStateTx(ctx context.Context, tx *sql.Tx, sessionID string) (state.GameState, error) {
	var stateJSON string
	err := tx.QueryRowContext(ctx,
		`SELECT state FROM sessions WHERE id = ?`, sessionID).Scan(&stateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return state.GameState{}, storage.ErrNotFound
	}
	if err != nil {
		return state.GameState{}, fmt.Errorf("read game state: %w", err)
	}
	var doc state.GameState
	if err := json.Unmarshal([]byte(stateJSON), &doc); err != nil {
		return state.GameState{}, fmt.Errorf("decode game state: %w", err)
	}
	return doc, nil
}

func writeGameStateTx(ctx context.Context, tx *sql.Tx, sessionID string, doc state.GameState, now time.Time) error {
	stateJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode game state: %w", err)
	}
	result, err := tx.ExecContext(ctx,
		`UPDATE sessions SET state = ?, updated_at = ? WHERE id = ?`,
		string(stateJSON), toMillis(now), sessionID)
	if err != nil {
		return fmt.Errorf("write game state: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("write game state rows: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanSession(row *sql.Row) (storage.SessionRecord, error) {
	var (
		record    storage.SessionRecord
		status    string
		stateJSON string
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(&record.ID, &record.CampaignID, &record.Name, &status,
		&stateJSON, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.SessionRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.SessionRecord{}, fmt.Errorf("scan session: %w", err)
	}
	if err := json.Unmarshal([]byte(stateJSON), &record.State); err != nil {
		return storage.SessionRecord{}, fmt.Errorf("decode game state: %w", err)
	}
	record.Status = storage.SessionStatus(status)
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

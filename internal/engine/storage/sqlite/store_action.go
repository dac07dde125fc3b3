package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/action"
	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/state"
	"github.com/louisbranch/torchbearer.quest/internal/engine/narrative"
	"github.com/louisbranch/torchbearer.quest/internal/engine/storage"
)

// Action methods

// CreateAction inserts the action and, when update is non-nil, writes the
// new game-state document in the same transaction so the budget consume
// and the action row commit together.
func (s *Store) CreateAction(ctx context.Context, act action.Action, update *storage.StateUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(act.ID) == "" {
		return fmt.Errorf("action id is required")
	}
	if strings.TrimSpace(act.SessionID) == "" {
		return fmt.Errorf("session id is required")
	}

	rollJSON, err := rollResultToColumn(act.RollResult)
	if err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO actions (
    id, session_id, campaign_id, user_id, character_id, type, category,
    payload, status, dm_response, roll_result, created_at, resolved_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		act.ID, act.SessionID, act.CampaignID, act.UserID, act.CharacterID,
		act.Type, string(act.Category), rawToColumn(act.Payload),
		string(act.Status), rawToColumn(act.DMResponse), rollJSON,
		toMillis(act.CreatedAt), toNullMillis(act.ResolvedAt),
	); err != nil {
		return fmt.Errorf("insert action: %w", err)
	}

	if update != nil {
		doc, err := readGameStateTx(ctx, tx, update.SessionID)
		if err != nil {
			return err
		}
		next, err := update.Mutate(doc)
		if err != nil {
			return err
		}
		if err := writeGameStateTx(ctx, tx, update.SessionID, next, act.CreatedAt); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetAction loads one action.
func (s *Store) GetAction(ctx context.Context, actionID string) (action.Action, error) {
	if err := ctx.Err(); err != nil {
		return action.Action{}, err
	}
	if s == nil || s.sqlDB == nil {
		return action.Action{}, fmt.Errorf("storage is not configured")
	}
	return scanAction(s.sqlDB.QueryRowContext(ctx, actionColumns+
		` FROM actions WHERE id = ?`, actionID))
}

// UpdateAction reads, applies mutate, and writes in one transaction.
// Mutation errors roll back and pass through unchanged.
func (s *Store) UpdateAction(ctx context.Context, actionID string, mutate func(action.Action) (action.Action, error)) (action.Action, error) {
	if err := ctx.Err(); err != nil {
		return action.Action{}, err
	}
	if s == nil || s.sqlDB == nil {
		return action.Action{}, fmt.Errorf("storage is not configured")
	}
	if mutate == nil {
		return action.Action{}, fmt.Errorf("mutate func is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return action.Action{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	current, err := readActionTx(ctx, tx, actionID)
	if err != nil {
		return action.Action{}, err
	}

	next, err := mutate(current)
	if err != nil {
		return action.Action{}, err
	}
	next.ID = current.ID

	if err := writeActionTx(ctx, tx, next); err != nil {
		return action.Action{}, err
	}

	if err := tx.Commit(); err != nil {
		return action.Action{}, fmt.Errorf("commit tx: %w", err)
	}
	return next, nil
}

// ApplyOutcome completes the action and folds its mechanical effects into
// the touched character records, all in one transaction. The refreshed
// records are returned ordered by character id.
func (s *Store) ApplyOutcome(ctx context.Context, actionID string, response []byte, effects []narrative.Effect, now time.Time) (action.Action, []storage.CharacterRecord, error) {
	if err := ctx.Err(); err != nil {
		return action.Action{}, nil, err
	}
	if s == nil || s.sqlDB == nil {
		return action.Action{}, nil, fmt.Errorf("storage is not configured")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return action.Action{}, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	current, err := readActionTx(ctx, tx, actionID)
	if err != nil {
		return action.Action{}, nil, err
	}
	completed, err := current.Complete(response, now)
	if err != nil {
		return action.Action{}, nil, err
	}
	if err := writeActionTx(ctx, tx, completed); err != nil {
		return action.Action{}, nil, err
	}

	touched := make(map[string]storage.CharacterRecord)
	for _, effect := range effects {
		if strings.TrimSpace(effect.CharacterID) == "" {
			continue
		}
		record, ok := touched[effect.CharacterID]
		if !ok {
			record, err = readCharacterTx(ctx, tx, effect.CharacterID)
			if err != nil {
				return action.Action{}, nil, err
			}
		}
		touched[effect.CharacterID] = storage.ApplyEffect(record, effect, now)
	}

	ids := make([]string, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	records := make([]storage.CharacterRecord, 0, len(ids))
	for _, id := range ids {
		record := touched[id]
		if err := writeCharacterTx(ctx, tx, record); err != nil {
			return action.Action{}, nil, err
		}
		records = append(records, record)
	}

	if err := tx.Commit(); err != nil {
		return action.Action{}, nil, fmt.Errorf("commit tx: %w", err)
	}
	return completed, records, nil
}

const actionColumns = `SELECT id, session_id, campaign_id, user_id,
    character_id, type, category, payload, status, dm_response, roll_result,
    created_at, resolved_at`

func scanAction(row *sql.Row) (action.Action, error) {
	var (
		act        action.Action
		category   string
		payload    sql.NullString
		status     string
		dmResponse sql.NullString
		rollJSON   sql.NullString
		createdAt  int64
		resolvedAt sql.NullInt64
	)
	err := row.Scan(&act.ID, &act.SessionID, &act.CampaignID, &act.UserID,
		&act.CharacterID, &act.Type, &category, &payload, &status,
		&dmResponse, &rollJSON, &createdAt, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return action.Action{}, storage.ErrNotFound
	}
	if err != nil {
		return action.Action{}, fmt.Errorf("scan action: %w", err)
	}
	act.Category = state.BudgetCategory(category)
	act.Payload = columnToRaw(payload)
	act.Status = action.Status(status)
	act.DMResponse = columnToRaw(dmResponse)
	act.CreatedAt = fromMillis(createdAt)
	act.ResolvedAt = fromNullMillis(resolvedAt)
	if rollJSON.Valid {
		var roll action.RollResult
		if err := json.Unmarshal([]byte(rollJSON.String), &roll); err != nil {
			return action.Action{}, fmt.Errorf("decode roll result: %w", err)
		}
		act.RollResult = &roll
	}
	return act, nil
}

func readActionTx(ctx context.Context, tx *sql.Tx, actionID string) (action.Action, error) {
	return scanAction(tx.QueryRowContext(ctx, actionColumns+
		` FROM actions WHERE id = ?`, actionID))
}

func writeActionTx(ctx context.Context, tx *sql.Tx, act action.Action) error {
	rollJSON, err := rollResultToColumn(act.RollResult)
	if err != nil {
		return err
	}
	result, err := tx.ExecContext(ctx, `
UPDATE actions SET
    status = ?, dm_response = ?, roll_result = ?, resolved_at = ?
WHERE id = ?`,
		string(act.Status), rawToColumn(act.DMResponse), rollJSON,
		toNullMillis(act.ResolvedAt), act.ID)
	if err != nil {
		return fmt.Errorf("write action: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("write action rows: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func rawToColumn(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func columnToRaw(value sql.NullString) json.RawMessage {
	if !value.Valid || value.String == "" {
		return nil
	}
	return json.RawMessage(value.String)
}

func rollResultToColumn(roll *action.RollResult) (sql.NullString, error) {
	if roll == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(roll)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode roll result: %w", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

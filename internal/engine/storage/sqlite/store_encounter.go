package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/combat"
	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/participant"
	"github.com/louisbranch/torchbearer.quest/internal/engine/storage"
)

// Encounter methods

// CreateEncounter inserts the encounter and its roster and, when update is
// non-nil, writes the new game-state document in the same transaction.
func (s *Store) CreateEncounter(ctx context.Context, encounter combat.Encounter, roster []combat.Participant, update *storage.StateUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(encounter.ID) == "" {
		return fmt.Errorf("encounter id is required")
	}
	if strings.TrimSpace(encounter.SessionID) == "" {
		return fmt.Errorf("session id is required")
	}

	initiativeJSON, err := toJSON(encounter.InitiativeOrder)
	if err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO encounters (
    id, campaign_id, session_id, status, reason, end_condition,
    initiative_order, created_at, resolved_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		encounter.ID, encounter.CampaignID, encounter.SessionID,
		string(encounter.Status), encounter.Reason, string(encounter.EndCondition),
		initiativeJSON, toMillis(encounter.CreatedAt), toNullMillis(encounter.ResolvedAt),
	); err != nil {
		return fmt.Errorf("insert encounter: %w", err)
	}

	for position, entry := range roster {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO encounter_participants (
    encounter_id, ref, character_id, initiative, has_acted, position)
VALUES (?, ?, ?, ?, ?, ?)`,
			encounter.ID, entry.Ref.String(), entry.CharacterID,
			entry.Initiative, boolToInt(entry.HasActed), position,
		); err != nil {
			return fmt.Errorf("insert combatant: %w", err)
		}
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
		if err := writeGameStateTx(ctx, tx, update.SessionID, next, encounter.CreatedAt); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetEncounter loads one encounter.
func (s *Store) GetEncounter(ctx context.Context, encounterID string) (combat.Encounter, error) {
	if err := ctx.Err(); err != nil {
		return combat.Encounter{}, err
	}
	if s == nil || s.sqlDB == nil {
		return combat.Encounter{}, fmt.Errorf("storage is not configured")
	}
	return scanEncounter(s.sqlDB.QueryRowContext(ctx, `
SELECT id, campaign_id, session_id, status, reason, end_condition,
    initiative_order, created_at, resolved_at
FROM encounters WHERE id = ?`, encounterID))
}

// ListCombatants returns the encounter roster in insertion order.
func (s *Store) ListCombatants(ctx context.Context, encounterID string) ([]combat.Participant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT ref, character_id, initiative, has_acted
FROM encounter_participants WHERE encounter_id = ? ORDER BY position`, encounterID)
	if err != nil {
		return nil, fmt.Errorf("list combatants: %w", err)
	}
	defer rows.Close()

	var roster []combat.Participant
	for rows.Next() {
		var (
			entry    combat.Participant
			ref      string
			hasActed int
		)
		if err := rows.Scan(&ref, &entry.CharacterID, &entry.Initiative, &hasActed); err != nil {
			return nil, fmt.Errorf("scan combatant: %w", err)
		}
		parsed, err := participant.Parse(ref)
		if err != nil {
			return nil, fmt.Errorf("decode combatant ref: %w", err)
		}
		entry.Ref = parsed
		entry.HasActed = hasActed != 0
		roster = append(roster, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read combatants: %w", err)
	}
	return roster, nil
}

// MarkActed records that a combatant took their turn this round.
func (s *Store) MarkActed(ctx context.Context, encounterID string, ref participant.Participant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE encounter_participants SET has_acted = 1
WHERE encounter_id = ? AND ref = ?`, encounterID, ref.String())
	if err != nil {
		return fmt.Errorf("mark acted: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark acted rows: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// CompleteEncounter marks the active encounter completed with its end
// condition. Completing an already-resolved encounter returns
// storage.ErrNotFound because no active row matches.
func (s *Store) CompleteEncounter(ctx context.Context, encounterID string, end combat.EndCondition, resolvedAt time.Time) (combat.Encounter, error) {
	if err := ctx.Err(); err != nil {
		return combat.Encounter{}, err
	}
	if s == nil || s.sqlDB == nil {
		return combat.Encounter{}, fmt.Errorf("storage is not configured")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return combat.Encounter{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
UPDATE encounters SET status = ?, end_condition = ?, resolved_at = ?
WHERE id = ? AND status = ?`,
		string(combat.StatusCompleted), string(end), toMillis(resolvedAt),
		encounterID, string(combat.StatusActive))
	if err != nil {
		return combat.Encounter{}, fmt.Errorf("complete encounter: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return combat.Encounter{}, fmt.Errorf("complete encounter rows: %w", err)
	}
	if affected == 0 {
		return combat.Encounter{}, storage.ErrNotFound
	}

	encounter, err := scanEncounter(tx.QueryRowContext(ctx, `
SELECT id, campaign_id, session_id, status, reason, end_condition,
    initiative_order, created_at, resolved_at
FROM encounters WHERE id = ?`, encounterID))
	if err != nil {
		return combat.Encounter{}, err
	}

	if err := tx.Commit(); err != nil {
		return combat.Encounter{}, fmt.Errorf("commit tx: %w", err)
	}
	return encounter, nil
}

func scanEncounter(row *sql.Row) (combat.Encounter, error) {
	var (
		encounter      combat.Encounter
		status         string
		endCondition   string
		initiativeJSON string
		createdAt      int64
		resolvedAt     sql.NullInt64
	)
	err := row.Scan(&encounter.ID, &encounter.CampaignID, &encounter.SessionID,
		&status, &encounter.Reason, &endCondition, &initiativeJSON,
		&createdAt, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return combat.Encounter{}, storage.ErrNotFound
	}
	if err != nil {
		return combat.Encounter{}, fmt.Errorf("scan encounter: %w", err)
	}
	if err := json.Unmarshal([]byte(initiativeJSON), &encounter.InitiativeOrder); err != nil {
		return combat.Encounter{}, fmt.Errorf("decode initiative order: %w", err)
	}
	encounter.Status = combat.Status(status)
	encounter.EndCondition = combat.EndCondition(endCondition)
	encounter.CreatedAt = fromMillis(createdAt)
	encounter.ResolvedAt = fromNullMillis(resolvedAt)
	return encounter, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

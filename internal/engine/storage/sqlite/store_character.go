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

	"github.com/louisbranch/torchbearer.quest/internal/engine/storage"
)

// Character methods

// PutCharacter stores one character's engine-owned live state.
func (s *Store) PutCharacter(ctx context.Context, record storage.CharacterRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("character id is required")
	}
	if strings.TrimSpace(record.CampaignID) == "" {
		return fmt.Errorf("campaign id is required")
	}

	conditions, err := toJSON(record.Conditions)
	if err != nil {
		return err
	}

	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO characters (
    id, campaign_id, user_id, name, kind, hit_points, max_hit_points,
    conditions, experience, level, experience_value,
    save_successes, save_failures, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    user_id = excluded.user_id,
    name = excluded.name,
    kind = excluded.kind,
    hit_points = excluded.hit_points,
    max_hit_points = excluded.max_hit_points,
    conditions = excluded.conditions,
    experience = excluded.experience,
    level = excluded.level,
    experience_value = excluded.experience_value,
    save_successes = excluded.save_successes,
    save_failures = excluded.save_failures,
    updated_at = excluded.updated_at`,
		record.ID, record.CampaignID, record.UserID, record.Name, string(record.Kind),
		record.HitPoints, record.MaxHitPoints, conditions,
		record.Experience, record.Level, record.ExperienceValue,
		record.SaveSuccesses, record.SaveFailures, toMillis(record.UpdatedAt),
	); err != nil {
		return fmt.Errorf("put character: %w", err)
	}
	return nil
}

// GetCharacter loads one character record.
func (s *Store) GetCharacter(ctx context.Context, characterID string) (storage.CharacterRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.CharacterRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.CharacterRecord{}, fmt.Errorf("storage is not configured")
	}
	return scanCharacter(s.sqlDB.QueryRowContext(ctx, characterColumns+
		` FROM characters WHERE id = ?`, characterID))
}

// ListCampaignCharacters returns every character in a campaign, ordered by name.
func (s *Store) ListCampaignCharacters(ctx context.Context, campaignID string) ([]storage.CharacterRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, characterColumns+
		` FROM characters WHERE campaign_id = ? ORDER BY name, id`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}
	defer rows.Close()

	var records []storage.CharacterRecord
	for rows.Next() {
		record, err := scanCharacter(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read characters: %w", err)
	}
	return records, nil
}

// UpdateCharacter reads, applies mutate, and writes in one transaction.
func (s *Store) UpdateCharacter(ctx context.Context, characterID string, mutate func(storage.CharacterRecord) (storage.CharacterRecord, error)) (storage.CharacterRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.CharacterRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.CharacterRecord{}, fmt.Errorf("storage is not configured")
	}
	if mutate == nil {
		return storage.CharacterRecord{}, fmt.Errorf("mutate func is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.CharacterRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	current, err := readCharacterTx(ctx, tx, characterID)
	if err != nil {
		return storage.CharacterRecord{}, err
	}

	next, err := mutate(current)
	if err != nil {
		return storage.CharacterRecord{}, err
	}
	next.ID = current.ID
	next.CampaignID = current.CampaignID

	if err := writeCharacterTx(ctx, tx, next); err != nil {
		return storage.CharacterRecord{}, err
	}

	if err := tx.Commit(); err != nil {
		return storage.CharacterRecord{}, fmt.Errorf("commit tx: %w", err)
	}
	return next, nil
}

// AwardExperience adds experience to several characters in one transaction
// and returns the updated records ordered by character id.
func (s *Store) AwardExperience(ctx context.Context, awards map[string]int) ([]storage.CharacterRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if len(awards) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(awards))
	for id := range awards {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	updated := make([]storage.CharacterRecord, 0, len(ids))
	for _, id := range ids {
		record, err := readCharacterTx(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		record.Experience += awards[id]
		record.UpdatedAt = now.UTC()
		if err := writeCharacterTx(ctx, tx, record); err != nil {
			return nil, err
		}
		updated = append(updated, record)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return updated, nil
}

const characterColumns = `SELECT id, campaign_id, user_id, name, kind,
    hit_points, max_hit_points, conditions, experience, level,
    experience_value, save_successes, save_failures, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCharacter(row rowScanner) (storage.CharacterRecord, error) {
	var (
		record     storage.CharacterRecord
		kind       string
		conditions string
		updatedAt  int64
	)
	err := row.Scan(&record.ID, &record.CampaignID, &record.UserID, &record.Name,
		&kind, &record.HitPoints, &record.MaxHitPoints, &conditions,
		&record.Experience, &record.Level, &record.ExperienceValue,
		&record.SaveSuccesses, &record.SaveFailures, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.CharacterRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.CharacterRecord{}, fmt.Errorf("scan character: %w", err)
	}
	if err := json.Unmarshal([]byte(conditions), &record.Conditions); err != nil {
		return storage.CharacterRecord{}, fmt.Errorf("decode conditions: %w", err)
	}
	record.Kind = storage.CharacterKind(kind)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

func readCharacterTx(ctx context.Context, tx *sql.Tx, characterID string) (storage.CharacterRecord, error) {
	return scanCharacter(tx.QueryRowContext(ctx, characterColumns+
		` FROM characters WHERE id = ?`, characterID))
}

func writeCharacterTx(ctx context.Context, tx *sql.Tx, record storage.CharacterRecord) error {
	conditions, err := toJSON(record.Conditions)
	if err != nil {
		return err
	}
	result, err := tx.ExecContext(ctx, `
UPDATE characters SET
    user_id = ?, name = ?, kind = ?, hit_points = ?, max_hit_points = ?,
    conditions = ?, experience = ?, level = ?, experience_value = ?,
    save_successes = ?, save_failures = ?, updated_at = ?
WHERE id = ?`,
		record.UserID, record.Name, string(record.Kind),
		record.HitPoints, record.MaxHitPoints, conditions,
		record.Experience, record.Level, record.ExperienceValue,
		record.SaveSuccesses, record.SaveFailures, toMillis(record.UpdatedAt),
		record.ID)
	if err != nil {
		return fmt.Errorf("write character: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("write character rows: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

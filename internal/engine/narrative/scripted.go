package narrative

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/louisbranch/torchbearer.quest/internal/core/dice"
)

// Attack outcomes hit on this check value or higher.
const scriptedHitThreshold = 10

// Scripted is a dice-backed generator used when no external narrative
// service is configured. It narrates from fixed templates and resolves
// attacks mechanically, which keeps a campaign playable offline.
type Scripted struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewScripted creates the fallback generator.
func NewScripted(seed int64) *Scripted {
	return &Scripted{rng: rand.New(rand.NewSource(seed))}
}

type scriptedPayload struct {
	TargetID    string `json:"targetId,omitempty"`
	Description string `json:"description,omitempty"`
}

// Generate implements Generator.
func (s *Scripted) Generate(_ context.Context, snapshot Context) (Result, error) {
	var payload scriptedPayload
	if len(snapshot.ActionPayload) > 0 {
		// A payload the script can't read still narrates; only attacks
		// need the structured fields.
		_ = json.Unmarshal(snapshot.ActionPayload, &payload)
	}

	actor := snapshot.CharacterID
	if name := s.partyName(snapshot, snapshot.CharacterID); name != "" {
		actor = name
	}

	switch strings.ToLower(snapshot.ActionType) {
	case "attack":
		return s.resolveAttack(snapshot, payload, actor)
	case "npc_action":
		return s.resolveEnemyAttack(snapshot, actor)
	default:
		narration := fmt.Sprintf("%s %s.", actor, describeAction(snapshot.ActionType, payload))
		return Result{Narration: narration}, nil
	}
}

// resolveAttack asks for a d20 on the first pass and applies damage on the
// rolled pass.
func (s *Scripted) resolveAttack(snapshot Context, payload scriptedPayload, actor string) (Result, error) {
	if snapshot.RollResult == nil {
		return Result{
			Narration: fmt.Sprintf("%s lines up an attack.", actor),
			RequiredRolls: []RequiredRoll{
				{Type: "d20", Sides: 20, Reason: "attack check"},
			},
		}, nil
	}

	if snapshot.RollResult.Value < scriptedHitThreshold {
		return Result{
			Narration: fmt.Sprintf("%s swings wide and misses.", actor),
		}, nil
	}

	damage := s.roll(6)
	result := Result{
		Narration: fmt.Sprintf("%s lands the blow for %d damage.", actor, damage),
	}
	if payload.TargetID != "" {
		result.Outcome = &Outcome{Effects: []Effect{
			{CharacterID: payload.TargetID, HitPointDelta: -damage},
		}}
	}
	return result, nil
}

// resolveEnemyAttack resolves an engine-controlled turn in one pass. The
// script never asks the engine to roll for itself.
func (s *Scripted) resolveEnemyAttack(snapshot Context, actor string) (Result, error) {
	target := s.pickTarget(snapshot)
	if target == nil {
		return Result{
			Narration: fmt.Sprintf("%s snarls, finding no one left to fight.", actor),
		}, nil
	}

	check := s.roll(20)
	if check < scriptedHitThreshold {
		return Result{
			Narration: fmt.Sprintf("%s lunges at %s and misses.", actor, target.Name),
		}, nil
	}

	damage := s.roll(4)
	return Result{
		Narration: fmt.Sprintf("%s savages %s for %d damage.", actor, target.Name, damage),
		Outcome: &Outcome{Effects: []Effect{
			{CharacterID: target.CharacterID, HitPointDelta: -damage},
		}},
	}, nil
}

// pickTarget chooses a standing party member other than the actor.
func (s *Scripted) pickTarget(snapshot Context) *CharacterState {
	var standing []CharacterState
	for _, member := range snapshot.Party {
		if member.CharacterID == snapshot.CharacterID {
			continue
		}
		if member.HitPoints <= 0 {
			continue
		}
		standing = append(standing, member)
	}
	if len(standing) == 0 {
		return nil
	}
	s.mu.Lock()
	pick := standing[s.rng.Intn(len(standing))]
	s.mu.Unlock()
	return &pick
}

func (s *Scripted) roll(sides int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sides == 20 {
		return dice.D20(s.rng)
	}
	result, err := dice.RollWithRng(s.rng, []dice.Spec{{Sides: sides, Count: 1}})
	if err != nil {
		return 1
	}
	return result.Total
}

func (s *Scripted) partyName(snapshot Context, characterID string) string {
	for _, member := range snapshot.Party {
		if member.CharacterID == characterID {
			return member.Name
		}
	}
	return ""
}

func describeAction(actionType string, payload scriptedPayload) string {
	if payload.Description != "" {
		return payload.Description
	}
	switch strings.ToLower(actionType) {
	case "explore":
		return "searches the area"
	case "talk":
		return "starts a conversation"
	case "rest":
		return "settles in to rest"
	default:
		return fmt.Sprintf("attempts to %s", strings.ReplaceAll(actionType, "_", " "))
	}
}

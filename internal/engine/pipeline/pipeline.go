// Package pipeline resolves submitted actions asynchronously.
//
// The worker owns the generation step: it builds a context snapshot, calls
// the narrative generator, and either pauses the action for a roll or
// applies the mechanical outcome in its own transaction. The synchronous
// submit path never waits on it.
package pipeline

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/louisbranch/torchbearer.quest/internal/engine/authz"
	"github.com/louisbranch/torchbearer.quest/internal/engine/broadcast"
	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/action"
	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/participant"
	"github.com/louisbranch/torchbearer.quest/internal/engine/narrative"
	"github.com/louisbranch/torchbearer.quest/internal/engine/service"
	"github.com/louisbranch/torchbearer.quest/internal/engine/storage"
	"github.com/louisbranch/torchbearer.quest/internal/platform/telemetry/metrics"
	"github.com/louisbranch/torchbearer.quest/internal/platform/timeouts"
)

// NPCActionType is the action type the enemy-turn executor submits.
const NPCActionType = "npc_action"

const queueDepth = 256

type taskKind int

const (
	taskGenerate taskKind = iota
	taskEnemyTurn
)

type task struct {
	kind      taskKind
	actionID  string
	sessionID string
	npc       participant.Participant
}

// Worker drains the pipeline queue.
type Worker struct {
	store       storage.Store
	generator   narrative.Generator
	broadcaster broadcast.Broadcaster
	service     *service.Service
	metrics     *metrics.Metrics

	tasks chan task
	wg    sync.WaitGroup
	now   func() time.Time
}

// Deps configures a Worker. Store, Generator, and Service are required.
type Deps struct {
	Store       storage.Store
	Generator   narrative.Generator
	Broadcaster broadcast.Broadcaster
	Service     *service.Service
	Metrics     *metrics.Metrics

	// Now defaults to the production clock.
	Now func() time.Time
}

// New creates a stopped worker and wires it as the service's resolver.
func New(deps Deps) *Worker {
	w := &Worker{
		store:       deps.Store,
		generator:   deps.Generator,
		broadcaster: deps.Broadcaster,
		service:     deps.Service,
		metrics:     deps.Metrics,
		tasks:       make(chan task, queueDepth),
		now:         deps.Now,
	}
	if w.now == nil {
		w.now = time.Now
	}
	if w.service != nil {
		w.service.SetResolver(w)
	}
	return w
}

// Enqueue hands a persisted processing action to the worker.
func (w *Worker) Enqueue(actionID string) {
	w.tasks <- task{kind: taskGenerate, actionID: actionID}
}

// EnqueueEnemyTurn schedules the enemy-turn executor for the NPC holding
// the active turn.
func (w *Worker) EnqueueEnemyTurn(sessionID string, npc participant.Participant) {
	w.tasks <- task{kind: taskEnemyTurn, sessionID: sessionID, npc: npc}
}

// Start launches the worker loop; it drains until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case next := <-w.tasks:
				w.handle(ctx, next)
			}
		}
	}()
}

// Wait blocks until the worker loop has exited.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) handle(ctx context.Context, next task) {
	switch next.kind {
	case taskGenerate:
		w.Resolve(ctx, next.actionID)
	case taskEnemyTurn:
		w.runEnemyTurn(ctx, next.sessionID, next.npc)
	}
}

// Resolve runs one generation pass for the action.
//
// Terminal actions are skipped so a task queued behind an inline resolution
// is harmless. Worker errors mark the action failed; there is no retry.
func (w *Worker) Resolve(ctx context.Context, actionID string) {
	act, err := w.store.GetAction(ctx, actionID)
	if err != nil {
		log.Printf("pipeline: load action %s: %v", actionID, err)
		return
	}
	if act.Status != action.StatusProcessing {
		return
	}

	session, err := w.store.GetSession(ctx, act.SessionID)
	if err != nil {
		log.Printf("pipeline: load session %s: %v", act.SessionID, err)
		w.fail(ctx, act)
		return
	}

	snapshot, err := w.buildContext(ctx, session, act)
	if err != nil {
		log.Printf("pipeline: build context for action %s: %v", act.ID, err)
		w.fail(ctx, act)
		return
	}

	generateCtx, cancel := context.WithTimeout(ctx, timeouts.Generation)
	started := w.now()
	result, err := w.generator.Generate(generateCtx, snapshot)
	cancel()
	w.metrics.ObserveGeneration(w.now().Sub(started).Seconds())
	if err != nil {
		log.Printf("pipeline: generate for action %s: %v", act.ID, err)
		w.fail(ctx, act)
		return
	}

	response, err := json.Marshal(result)
	if err != nil {
		log.Printf("pipeline: encode response for action %s: %v", act.ID, err)
		w.fail(ctx, act)
		return
	}

	// A pass that already consumed the player's roll never asks again.
	if len(result.RequiredRolls) > 0 && act.RollResult == nil {
		w.pauseForRoll(ctx, session, act, result, response)
		return
	}

	w.complete(ctx, session, act, result, response)
}

// pauseForRoll persists the awaiting_roll state and asks the actor to roll.
func (w *Worker) pauseForRoll(ctx context.Context, session storage.SessionRecord, act action.Action, result narrative.Result, response []byte) {
	updated, err := w.store.UpdateAction(ctx, act.ID, func(current action.Action) (action.Action, error) {
		return current.AwaitRoll(response)
	})
	if err != nil {
		log.Printf("pipeline: pause action %s for roll: %v", act.ID, err)
		w.fail(ctx, act)
		return
	}

	w.publishNarration(ctx, session, updated, result)

	rolls := make([]broadcast.RequestedRoll, 0, len(result.RequiredRolls))
	for _, roll := range result.RequiredRolls {
		rolls = append(rolls, broadcast.RequestedRoll{
			Type:   roll.Type,
			Sides:  roll.Sides,
			Reason: roll.Reason,
		})
	}
	w.publish(ctx, broadcast.Event{
		Kind:       broadcast.KindRollRequested,
		SessionID:  session.ID,
		CampaignID: session.CampaignID,
		Payload: broadcast.RollRequested{
			ActionID: updated.ID,
			UserID:   updated.UserID,
			Rolls:    rolls,
		},
	})
}

// complete applies the mechanical outcome and resolves the action.
func (w *Worker) complete(ctx context.Context, session storage.SessionRecord, act action.Action, result narrative.Result, response []byte) {
	var effects []narrative.Effect
	if result.Outcome != nil {
		effects = result.Outcome.Effects
	}

	completed, records, err := w.store.ApplyOutcome(ctx, act.ID, response, effects, w.now())
	if err != nil {
		log.Printf("pipeline: apply outcome for action %s: %v", act.ID, err)
		w.fail(ctx, act)
		return
	}
	w.metrics.RecordResolution(string(action.StatusCompleted))

	w.publishNarration(ctx, session, completed, result)
	w.publish(ctx, broadcast.Event{
		Kind:       broadcast.KindActionCompleted,
		SessionID:  session.ID,
		CampaignID: session.CampaignID,
		Payload: broadcast.ActionCompleted{
			ActionID: completed.ID,
			Status:   string(completed.Status),
		},
	})
	if len(records) > 0 {
		w.publish(ctx, broadcast.Event{
			Kind:       broadcast.KindLiveStateChanged,
			SessionID:  session.ID,
			CampaignID: session.CampaignID,
			Payload:    liveState(records),
		})
	}
}

// fail marks the action failed. Terminal; the player resubmits.
func (w *Worker) fail(ctx context.Context, act action.Action) {
	failed, err := w.store.UpdateAction(ctx, act.ID, func(current action.Action) (action.Action, error) {
		return current.Fail(w.now())
	})
	if err != nil {
		log.Printf("pipeline: mark action %s failed: %v", act.ID, err)
		return
	}
	w.metrics.RecordResolution(string(action.StatusFailed))
	w.publish(ctx, broadcast.Event{
		Kind:       broadcast.KindActionCompleted,
		SessionID:  failed.SessionID,
		CampaignID: failed.CampaignID,
		Payload: broadcast.ActionCompleted{
			ActionID: failed.ID,
			Status:   string(failed.Status),
		},
	})
}

// runEnemyTurn submits the NPC's action through the pipeline, resolves it
// inline, and ends the NPC's turn with the system actor.
func (w *Worker) runEnemyTurn(ctx context.Context, sessionID string, npc participant.Participant) {
	if w.service == nil || !npc.IsNPC() {
		return
	}
	systemCtx := authz.WithActor(ctx, authz.System)

	act, err := w.service.SubmitAction(systemCtx, service.SubmitActionInput{
		SessionID:   sessionID,
		CharacterID: npc.ID,
		ActionType:  NPCActionType,
	})
	if err != nil {
		log.Printf("pipeline: submit enemy action for %s: %v", npc, err)
	} else {
		w.Resolve(ctx, act.ID)
	}

	if _, err := w.service.EndTurn(systemCtx, sessionID); err != nil {
		log.Printf("pipeline: end enemy turn for %s: %v", npc, err)
	}
}

// buildContext assembles the generator's snapshot.
func (w *Worker) buildContext(ctx context.Context, session storage.SessionRecord, act action.Action) (narrative.Context, error) {
	characters, err := w.store.ListCampaignCharacters(ctx, session.CampaignID)
	if err != nil {
		return narrative.Context{}, err
	}

	party := make([]narrative.CharacterState, 0, len(characters))
	for _, record := range characters {
		party = append(party, narrative.CharacterState{
			CharacterID:  record.ID,
			Name:         record.Name,
			HitPoints:    record.HitPoints,
			MaxHitPoints: record.MaxHitPoints,
			Conditions:   record.Conditions,
		})
	}

	return narrative.Context{
		CampaignID:    session.CampaignID,
		SessionID:     session.ID,
		Phase:         session.State.Phase,
		RoundNumber:   session.State.RoundNumber,
		UserID:        act.UserID,
		CharacterID:   act.CharacterID,
		ActionType:    act.Type,
		ActionPayload: act.Payload,
		RollResult:    act.RollResult,
		Party:         party,
	}, nil
}

// publishNarration sends the public narration and, when present, the
// private aside addressed to the actor.
func (w *Worker) publishNarration(ctx context.Context, session storage.SessionRecord, act action.Action, result narrative.Result) {
	payload := broadcast.NarrativeDM{
		ActionID:  act.ID,
		Narration: result.Narration,
	}
	if result.PrivateNarration != "" {
		payload.PrivateUserID = act.UserID
		payload.Private = result.PrivateNarration
	}
	w.publish(ctx, broadcast.Event{
		Kind:       broadcast.KindNarrativeDM,
		SessionID:  session.ID,
		CampaignID: session.CampaignID,
		Payload:    payload,
	})
}

func (w *Worker) publish(ctx context.Context, event broadcast.Event) {
	if w.broadcaster == nil {
		return
	}
	if event.At.IsZero() {
		event.At = w.now().UTC()
	}
	if err := w.broadcaster.Publish(ctx, event); err != nil {
		log.Printf("pipeline: publish %s for session %s: %v", event.Kind, event.SessionID, err)
		return
	}
	w.metrics.RecordBroadcast(string(event.Kind))
}

// liveState projects character records into the broadcast payload.
func liveState(records []storage.CharacterRecord) broadcast.LiveStateChanged {
	payload := broadcast.LiveStateChanged{
		Characters: make([]broadcast.CharacterLiveState, 0, len(records)),
	}
	for _, record := range records {
		payload.Characters = append(payload.Characters, broadcast.CharacterLiveState{
			CharacterID:  record.ID,
			HitPoints:    record.HitPoints,
			MaxHitPoints: record.MaxHitPoints,
			Conditions:   record.Conditions,
			Experience:   record.Experience,
			Level:        record.Level,
		})
	}
	return payload
}

var _ service.Resolver = (*Worker)(nil)

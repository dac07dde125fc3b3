// Package service orchestrates the engine's transactional operations.
//
// Every mutation follows the same shape: resolve the actor, run one
// read-then-write transaction through the store, and publish notifications
// strictly after commit. Domain rules live in internal/engine/domain; the
// service sequences them.
package service

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/torchbearer.quest/internal/engine/broadcast"
	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/participant"
	"github.com/louisbranch/torchbearer.quest/internal/engine/storage"
	"github.com/louisbranch/torchbearer.quest/internal/platform/errors"
	"github.com/louisbranch/torchbearer.quest/internal/platform/id"
	"github.com/louisbranch/torchbearer.quest/internal/platform/telemetry/metrics"
	"github.com/louisbranch/torchbearer.quest/internal/random"
)

// Resolver accepts post-commit work for the asynchronous pipeline.
//
// Enqueue hands off a persisted processing action for generation.
// EnqueueEnemyTurn signals that an NPC holds the active turn.
type Resolver interface {
	Enqueue(actionID string)
	EnqueueEnemyTurn(sessionID string, npc participant.Participant)
}

// Service owns the engine's synchronous operations.
type Service struct {
	store       storage.Store
	broadcaster broadcast.Broadcaster
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	resolver    Resolver

	now   func() time.Time
	newID func() (string, error)
	seed  func() int64
}

// Deps configures a Service. Store is required; the rest degrade to
// no-ops so tests can wire only what they exercise.
type Deps struct {
	Store       storage.Store
	Broadcaster broadcast.Broadcaster
	Metrics     *metrics.Metrics

	// Now, NewID, and Seed default to the production clock, id generator,
	// and crypto seed; tests override them for determinism.
	Now   func() time.Time
	NewID func() (string, error)
	Seed  func() int64
}

// New creates the engine service.
func New(deps Deps) *Service {
	svc := &Service{
		store:       deps.Store,
		broadcaster: deps.Broadcaster,
		metrics:     deps.Metrics,
		tracer:      otel.Tracer("torchbearer.quest/engine"),
		now:         deps.Now,
		newID:       deps.NewID,
		seed:        deps.Seed,
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	if svc.newID == nil {
		svc.newID = id.NewID
	}
	if svc.seed == nil {
		svc.seed = random.MustSeed
	}
	return svc
}

// SetResolver wires the pipeline after construction; the pipeline itself
// depends on the service for enemy turns, so the cycle is broken here.
func (s *Service) SetResolver(resolver Resolver) {
	s.resolver = resolver
}

// begin opens a traced, timed operation scope. The returned func records
// metrics and closes the span; call it with the operation error.
func (s *Service) begin(ctx context.Context, operation string) (context.Context, func(error)) {
	started := s.now()
	ctx, span := s.tracer.Start(ctx, "engine."+operation)
	return ctx, func(err error) {
		result := "ok"
		if err != nil {
			result = string(errors.CodeOf(err))
		}
		s.metrics.RecordOperation(operation, result, s.now().Sub(started).Seconds())
		span.End()
	}
}

// publish sends one post-commit notification. Publish failures are logged
// and swallowed; the committed transaction stands either way.
func (s *Service) publish(ctx context.Context, event broadcast.Event) {
	if s.broadcaster == nil {
		return
	}
	if event.At.IsZero() {
		event.At = s.now().UTC()
	}
	if err := s.broadcaster.Publish(ctx, event); err != nil {
		log.Printf("publish %s for session %s: %v", event.Kind, event.SessionID, err)
		return
	}
	s.metrics.RecordBroadcast(string(event.Kind))
}

// enqueueGeneration hands a persisted action to the pipeline.
func (s *Service) enqueueGeneration(actionID string) {
	if s.resolver == nil {
		return
	}
	s.resolver.Enqueue(actionID)
}

// signalEnemyTurn notifies clients and the enemy-turn executor that an NPC
// holds the active turn.
func (s *Service) signalEnemyTurn(ctx context.Context, record storage.SessionRecord, npc participant.Participant, round int) {
	s.publish(ctx, broadcast.Event{
		Kind:       broadcast.KindEnemyTurnStarted,
		SessionID:  record.ID,
		CampaignID: record.CampaignID,
		Payload:    broadcast.EnemyTurnStarted{Ref: npc, RoundNumber: round},
	})
	if s.resolver != nil {
		s.resolver.EnqueueEnemyTurn(record.ID, npc)
	}
}

// activeSession loads the session and confirms it is being played.
func (s *Service) activeSession(ctx context.Context, sessionID string) (storage.SessionRecord, error) {
	record, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		if err == storage.ErrNotFound {
			return storage.SessionRecord{}, errors.WithMetadata(errors.CodeSessionNotFound,
				"session does not exist",
				map[string]string{"sessionId": sessionID})
		}
		return storage.SessionRecord{}, errors.Wrap(errors.CodeUnknown, "load session", err)
	}
	if record.Status != storage.SessionActive {
		return storage.SessionRecord{}, errors.WithMetadata(errors.CodeNoActiveSession,
			"session is not active",
			map[string]string{"sessionId": sessionID, "status": string(record.Status)})
	}
	return record, nil
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

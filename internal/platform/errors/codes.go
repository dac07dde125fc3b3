// Package errors provides structured error handling for engine operations.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Session errors
	CodeNoActiveSession     Code = "NO_ACTIVE_SESSION"
	CodeSessionNotFound     Code = "SESSION_NOT_FOUND"
	CodeActiveSessionExists Code = "ACTIVE_SESSION_EXISTS"

	// Authorization errors
	CodePhaseForbidden   Code = "PHASE_FORBIDDEN"
	CodeNotYourTurn      Code = "NOT_YOUR_TURN"
	CodeActorForbidden   Code = "ACTOR_FORBIDDEN"
	CodeMissingActor     Code = "MISSING_ACTOR"
	CodeInvalidActorRole Code = "INVALID_ACTOR_ROLE"

	// Phase errors
	CodePhaseInvalid          Code = "PHASE_INVALID"
	CodePhaseTransitionNoOp   Code = "PHASE_TRANSITION_NO_OP"
	CodeEncounterNotResolved  Code = "ENCOUNTER_NOT_RESOLVED"
	CodeRestForbidsActions    Code = "REST_FORBIDS_ACTIONS"
	CodeRestTypeInvalid       Code = "REST_TYPE_INVALID"

	// Turn order errors
	CodeTurnOrderDuplicate      Code = "TURN_ORDER_DUPLICATE"
	CodeTurnOrderInvalidEntry   Code = "TURN_ORDER_INVALID_ENTRY"
	CodeTurnParticipantNotFound Code = "TURN_PARTICIPANT_NOT_FOUND"

	// Combat errors
	CodeEncounterNotFound       Code = "ENCOUNTER_NOT_FOUND"
	CodeEncounterNotActive      Code = "ENCOUNTER_NOT_ACTIVE"
	CodeEncounterAlreadyActive  Code = "ENCOUNTER_ALREADY_ACTIVE"
	CodeNotInCombat             Code = "NOT_IN_COMBAT"
	CodeBudgetExhausted         Code = "BUDGET_EXHAUSTED"
	CodeBudgetCategoryInvalid   Code = "BUDGET_CATEGORY_INVALID"
	CodeEndConditionInvalid     Code = "END_CONDITION_INVALID"

	// Death save errors
	CodeDeathSaveRollOutOfRange  Code = "DEATH_SAVE_ROLL_OUT_OF_RANGE"
	CodeDeathSaveNotUnconscious  Code = "DEATH_SAVE_NOT_UNCONSCIOUS"
	CodeDeathSaveCharacterDead   Code = "DEATH_SAVE_CHARACTER_DEAD"

	// Action pipeline errors
	CodeActionNotFound        Code = "ACTION_NOT_FOUND"
	CodeActionTypeRequired    Code = "ACTION_TYPE_REQUIRED"
	CodeActionNotAwaitingRoll Code = "ACTION_NOT_AWAITING_ROLL"
	CodeActionAlreadyResolved Code = "ACTION_ALREADY_RESOLVED"
	CodeRollValueOutOfRange   Code = "ROLL_VALUE_OUT_OF_RANGE"

	// Character errors
	CodeCharacterNotFound Code = "CHARACTER_NOT_FOUND"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"

	// Transport errors
	CodeBadRequest Code = "BAD_REQUEST"

	// Dice/mechanics errors
	CodeDiceMissing     Code = "DICE_MISSING"
	CodeDiceInvalidSpec Code = "DICE_INVALID_SPEC"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	// Bad request - validation failures, bad input
	case CodePhaseInvalid,
		CodeRestTypeInvalid,
		CodeTurnOrderDuplicate,
		CodeTurnOrderInvalidEntry,
		CodeBudgetCategoryInvalid,
		CodeEndConditionInvalid,
		CodeDeathSaveRollOutOfRange,
		CodeActionTypeRequired,
		CodeRollValueOutOfRange,
		CodeDiceMissing,
		CodeDiceInvalidSpec,
		CodeBadRequest:
		return http.StatusBadRequest

	// Forbidden - actor lacks the required capability
	case CodePhaseForbidden,
		CodeNotYourTurn,
		CodeActorForbidden,
		CodeInvalidActorRole:
		return http.StatusForbidden

	// Unauthorized - no actor identity at all
	case CodeMissingActor:
		return http.StatusUnauthorized

	// Not found - resource doesn't exist
	case CodeNotFound,
		CodeSessionNotFound,
		CodeEncounterNotFound,
		CodeTurnParticipantNotFound,
		CodeActionNotFound,
		CodeCharacterNotFound:
		return http.StatusNotFound

	// Conflict - state doesn't allow the operation
	case CodeNoActiveSession,
		CodeActiveSessionExists,
		CodePhaseTransitionNoOp,
		CodeEncounterNotResolved,
		CodeRestForbidsActions,
		CodeEncounterNotActive,
		CodeEncounterAlreadyActive,
		CodeNotInCombat,
		CodeBudgetExhausted,
		CodeDeathSaveNotUnconscious,
		CodeDeathSaveCharacterDead,
		CodeActionNotAwaitingRoll,
		CodeActionAlreadyResolved:
		return http.StatusConflict

	default:
		return http.StatusInternalServerError
	}
}

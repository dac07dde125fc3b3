// Package participant defines the identifier union for turn-order members.
//
// A participant is either a player (identified by user id) or an NPC.
// The wire and storage form uses an "npc:" prefix for NPCs; that form is
// resolved exactly once at the boundary so consumers branch on Kind rather
// than re-parsing strings.
package participant

import (
	"strings"

	"github.com/louisbranch/torchbearer.quest/internal/platform/errors"
)

// npcPrefix tags NPC identifiers in wire and storage form.
const npcPrefix = "npc:"

// Kind distinguishes player participants from NPCs.
type Kind int

const (
	// KindUnspecified is the zero value for an unset participant.
	KindUnspecified Kind = iota
	// KindPlayer identifies a player-controlled participant.
	KindPlayer
	// KindNPC identifies a non-player participant.
	KindNPC
)

// Participant identifies one member of a session's turn order.
type Participant struct {
	Kind Kind
	ID   string
}

// Player builds a player participant.
func Player(userID string) Participant {
	return Participant{Kind: KindPlayer, ID: userID}
}

// NPC builds an NPC participant.
func NPC(npcID string) Participant {
	return Participant{Kind: KindNPC, ID: npcID}
}

// Parse resolves a wire identifier into a Participant.
//
// NPC identifiers carry the "npc:" prefix; anything else is a player id.
func Parse(value string) (Participant, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Participant{}, errors.New(errors.CodeTurnOrderInvalidEntry,
			"participant id is required")
	}
	if rest, ok := strings.CutPrefix(value, npcPrefix); ok {
		rest = strings.TrimSpace(rest)
		if rest == "" {
			return Participant{}, errors.New(errors.CodeTurnOrderInvalidEntry,
				"npc id is required after prefix")
		}
		return NPC(rest), nil
	}
	return Player(value), nil
}

// IsZero reports whether the participant is unset.
func (p Participant) IsZero() bool {
	return p.Kind == KindUnspecified && p.ID == ""
}

// IsNPC reports whether the participant is an NPC.
func (p Participant) IsNPC() bool {
	return p.Kind == KindNPC
}

// String renders the canonical wire form.
func (p Participant) String() string {
	if p.Kind == KindNPC {
		return npcPrefix + p.ID
	}
	return p.ID
}

// MarshalText encodes the participant in wire form for JSON documents.
func (p Participant) MarshalText() ([]byte, error) {
	if p.IsZero() {
		return []byte(""), nil
	}
	return []byte(p.String()), nil
}

// UnmarshalText decodes the wire form, resolving the NPC prefix once.
func (p *Participant) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*p = Participant{}
		return nil
	}
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParseList resolves a slice of wire identifiers, rejecting duplicates.
func ParseList(values []string) ([]Participant, error) {
	out := make([]Participant, 0, len(values))
	seen := make(map[Participant]struct{}, len(values))
	for _, value := range values {
		parsed, err := Parse(value)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[parsed]; dup {
			return nil, errors.WithMetadata(errors.CodeTurnOrderDuplicate,
				"duplicate participant",
				map[string]string{"participant": parsed.String()})
		}
		seen[parsed] = struct{}{}
		out = append(out, parsed)
	}
	return out, nil
}

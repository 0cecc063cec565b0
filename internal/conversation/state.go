package conversation

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TurnID identifies a turn within its session.
type TurnID string

// Turn is one immutable message of a conversation. Order is insertion order.
type Turn struct {
	ID        TurnID    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// State is the append-only turn history of one session. The system
// instruction is never stored here.
type State struct {
	mu       sync.RWMutex
	turns    []Turn
	greeting string
}

// NewState creates a history seeded with greeting as its first assistant turn.
// An empty greeting leaves the history empty.
func NewState(greeting string) *State {
	s := &State{greeting: greeting}
	s.seed()
	return s
}

func (s *State) seed() {
	s.turns = nil
	if s.greeting != "" {
		s.turns = append(s.turns, newTurn(RoleAssistant, s.greeting))
	}
}

func newTurn(role Role, text string) Turn {
	return Turn{
		ID:        TurnID(uuid.NewString()),
		Role:      role,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
}

// AppendUser appends a user turn. Blank text fails with ErrEmptyInput and
// leaves the history untouched.
func (s *State) AppendUser(text string) (TurnID, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyInput
	}
	return s.append(newTurn(RoleUser, text)), nil
}

// AppendAssistant appends an assistant turn.
func (s *State) AppendAssistant(text string) TurnID {
	return s.append(newTurn(RoleAssistant, text))
}

func (s *State) append(turn Turn) TurnID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turn)
	return turn.ID
}

// Snapshot returns a copy of the ordered history.
func (s *State) Snapshot() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len returns the number of turns.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Greeted reports whether the program-authored greeting opens the history.
func (s *State) Greeted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.greeting != "" && len(s.turns) > 0 &&
		s.turns[0].Role == RoleAssistant && s.turns[0].Text == s.greeting
}

// Reset clears the history and re-seeds the greeting for the restarted session.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seed()
}

// Restore replaces the history with a stored snapshot.
func (s *State) Restore(turns []Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = make([]Turn, len(turns))
	copy(s.turns, turns)
}

package runtime

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// SessionId is a fresh universally unique identifier minted per session.
type SessionId struct {
	id uuid.UUID
}

// NewSessionId mints a fresh SessionId.
func NewSessionId() SessionId {
	return SessionId{id: uuid.New()}
}

// ParseSessionId parses a SessionId from its canonical string form.
func ParseSessionId(s string) (SessionId, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return SessionId{}, fmt.Errorf("invalid session id %q: %w", s, err)
	}
	return SessionId{id: id}, nil
}

// String returns the canonical printable form, satisfying fmt.Stringer.
func (s SessionId) String() string {
	return s.id.String()
}

// IsZero reports whether s is the zero value (never a valid minted id).
func (s SessionId) IsZero() bool {
	return s.id == uuid.Nil
}

// MarshalJSON implements json.Marshaler.
func (s SessionId) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.id.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *SessionId) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := ParseSessionId(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

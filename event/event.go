// Package event defines the immutable tracked-event value and its wire form.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

// IdentifyName is the reserved name of the event enqueued by an identify call.
const IdentifyName = "$identify"

// ErrValidation is matched by every error returned for rejected input.
var ErrValidation = errors.New("validation failed")

// ValidationError describes a rejected event before it reaches the buffer.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Properties are caller supplied, JSON-representable event attributes.
type Properties map[string]interface{}

// Event is one tracked occurrence. The zero value is not valid; use New.
// Properties are encoded once at construction so that the value never
// changes after it is handed to the buffer.
type Event struct {
	name       string
	properties []byte
	userID     string
	sessionID  string
	timestamp  time.Time
}

// New validates the input and builds an Event. An empty userID means the
// client has not been identified yet.
func New(name string, props Properties, userID, sessionID string, ts time.Time) (Event, error) {
	if strings.TrimSpace(name) == "" {
		return Event{}, &ValidationError{Field: "eventName", Reason: "must not be empty"}
	}
	if props == nil {
		props = Properties{}
	}
	encoded, err := sonic.ConfigStd.Marshal(props)
	if err != nil {
		return Event{}, &ValidationError{Field: "properties", Reason: err.Error()}
	}
	return Event{
		name:       name,
		properties: encoded,
		userID:     userID,
		sessionID:  sessionID,
		timestamp:  ts,
	}, nil
}

func (e Event) Name() string         { return e.name }
func (e Event) UserID() string       { return e.userID }
func (e Event) SessionID() string    { return e.sessionID }
func (e Event) Timestamp() time.Time { return e.timestamp }

// Properties returns a fresh decoded copy of the event properties.
func (e Event) Properties() Properties {
	props := Properties{}
	if len(e.properties) == 0 {
		return props
	}
	if err := sonic.Unmarshal(e.properties, &props); err != nil {
		return Properties{}
	}
	return props
}

// RawProperties returns the encoded properties object.
func (e Event) RawProperties() json.RawMessage {
	if len(e.properties) == 0 {
		return json.RawMessage("{}")
	}
	out := make([]byte, len(e.properties))
	copy(out, e.properties)
	return out
}

type wireEvent struct {
	EventName  string          `json:"eventName"`
	Properties json.RawMessage `json:"properties"`
	UserID     *string         `json:"userId"`
	SessionID  string          `json:"sessionId"`
	Timestamp  float64         `json:"timestamp"`
}

func (e Event) wire() wireEvent {
	w := wireEvent{
		EventName:  e.name,
		Properties: e.RawProperties(),
		SessionID:  e.sessionID,
		Timestamp:  UnixSeconds(e.timestamp),
	}
	if e.userID != "" {
		userID := e.userID
		w.UserID = &userID
	}
	return w
}

// MarshalJSON encodes the event as
// {eventName, properties, userId, sessionId, timestamp}.
func (e Event) MarshalJSON() ([]byte, error) {
	return sonic.ConfigStd.Marshal(e.wire())
}

// UnixSeconds converts t to fractional unix seconds.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// Package transcript persists the event stream of tutoring sessions.
package transcript

import (
	"encoding/json"
	"time"

	"github.com/pitabwire/frame/data"

	"github.com/hypatia-tutor/hypatia/pkg/events"
)

// Entry is one recorded session event.
type Entry struct {
	data.BaseModel

	EventID    string           `gorm:"type:varchar(50);not null;uniqueIndex:idx_te_event" json:"event_id"`
	SessionID  string           `gorm:"type:varchar(100);not null;index:idx_te_session"   json:"session_id"`
	EventType  events.EventType `gorm:"type:varchar(100);not null"                        json:"event_type"`
	Source     string           `gorm:"type:varchar(100)"                                 json:"source"`
	OccurredAt time.Time        `gorm:"not null"                                          json:"occurred_at"`
	Payload    Payload          `gorm:"type:jsonb"                                        json:"payload"`
}

func (Entry) TableName() string { return "transcript_entries" }

// FromEnvelope converts a bus envelope into a transcript entry.
func FromEnvelope(env events.Envelope) *Entry {
	return &Entry{
		EventID:    env.ID,
		SessionID:  env.SessionID,
		EventType:  env.Type,
		Source:     env.Source,
		OccurredAt: env.Timestamp,
		Payload:    Payload(env.Data),
	}
}

// Payload is raw event JSON stored in a jsonb column.
type Payload json.RawMessage

func (p Payload) Value() (interface{}, error) {
	if len(p) == 0 {
		return "null", nil
	}
	return string(p), nil
}

func (p *Payload) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		*p = append((*p)[:0], v...)
	case string:
		*p = Payload(v)
	default:
		*p = nil
	}
	return nil
}

// MarshalJSON emits the stored payload verbatim.
func (p Payload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	return p, nil
}

// UnmarshalJSON stores a copy of the raw payload.
func (p *Payload) UnmarshalJSON(b []byte) error {
	*p = append((*p)[:0], b...)
	return nil
}

package relay

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/tickbus/tickbus/pkg/signal"
)

// Envelope is the wire form of one relayed emission.
type Envelope struct {
	EventID uuid.UUID       `json:"event_id"`
	Signal  string          `json:"signal"`
	Source  string          `json:"source"`
	Payload json.RawMessage `json:"payload,omitempty"`
	SentAt  time.Time       `json:"sent_at"`
}

// Message is the payload a relayed signal carries on the local bus.
type Message struct {
	EventID uuid.UUID
	Source  string
	Payload json.RawMessage
	SentAt  time.Time
}

// Decode unmarshals the relayed payload into v.
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}

// Key returns the typed key under which inbound envelopes for name are emitted.
func Key(name string) signal.Key[Message] {
	return signal.NewKey[Message](name)
}

func newEnvelope(source string, em signal.Emission) (*Envelope, error) {
	env := &Envelope{
		EventID: uuid.New(),
		Signal:  em.Signal,
		Source:  source,
		SentAt:  time.Now().UTC(),
	}
	if em.HasPayload {
		data, err := json.Marshal(em.Payload)
		if err != nil {
			return nil, err
		}
		env.Payload = data
	}
	return env, nil
}

package messaging

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const ContentTypeJSON = "application/json"

var (
	ErrPublish      = errors.New("publish failed")
	ErrDecode       = errors.New("decode failed")
	ErrUnknownType  = errors.New("unknown event type")
	ErrSourceClosed = errors.New("source closed")
)

// Event is anything that can be published. EventType is the envelope type tag.
type Event interface {
	EventType() string
}

// Keyed events are routed by key so that events about one entity stay ordered.
type Keyed interface {
	PartitionKey() string
}

type Envelope struct {
	MessageID   string          `json:"messageId"`
	Type        string          `json:"type"`
	ContentType string          `json:"contentType"`
	Body        json.RawMessage `json:"body"`
}

func NewEnvelope(event Event) (Envelope, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s: %w", event.EventType(), err)
	}

	return Envelope{
		MessageID:   uuid.NewString(),
		Type:        event.EventType(),
		ContentType: ContentTypeJSON,
		Body:        body,
	}, nil
}

func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEnvelope parses the wire form. A missing type tag is not a decode
// failure: it surfaces as an envelope with an empty Type.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: envelope: %w", ErrDecode, err)
	}

	if env.ContentType != "" && env.ContentType != ContentTypeJSON {
		return Envelope{}, fmt.Errorf("%w: unsupported content type %q", ErrDecode, env.ContentType)
	}

	return env, nil
}

// DecodeBody unmarshals the envelope body into v.
func (e Envelope) DecodeBody(v any) error {
	if len(e.Body) == 0 {
		return fmt.Errorf("%w: %s has empty body", ErrDecode, e.Type)
	}

	if err := json.Unmarshal(e.Body, v); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDecode, e.Type, err)
	}

	return nil
}

package bus

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// PushEnvelope is the delivery envelope a push subscription POSTs to a
// subscriber endpoint. Data is the base64-encoded JSON event.
type PushEnvelope struct {
	Message      *PushMessage `json:"message"`
	Subscription string       `json:"subscription,omitempty"`
}

// PushMessage is the inner message object of a push envelope
type PushMessage struct {
	Data        string            `json:"data"`
	MessageID   string            `json:"messageId"`
	PublishTime time.Time         `json:"publishTime"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// DecodeEnvelope parses a push envelope body and returns the decoded event
// payload plus the message attributes. A missing message object or
// undecodable data is a hard error; the caller answers 400 so the broker
// can dead-letter poison deliveries.
func DecodeEnvelope(body []byte) ([]byte, *PushMessage, error) {
	var env PushEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, nil, fmt.Errorf("malformed push envelope: %w", err)
	}
	if env.Message == nil {
		return nil, nil, fmt.Errorf("push envelope missing message object")
	}
	data, err := base64.StdEncoding.DecodeString(env.Message.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to base64-decode message data: %w", err)
	}
	return data, env.Message, nil
}

// EncodeEnvelope wraps an event payload in a push envelope. Used by tests
// and by local redelivery tooling.
func EncodeEnvelope(payload []byte, messageID string, attrs map[string]string) ([]byte, error) {
	env := PushEnvelope{
		Message: &PushMessage{
			Data:        base64.StdEncoding.EncodeToString(payload),
			MessageID:   messageID,
			PublishTime: time.Now().UTC(),
			Attributes:  attrs,
		},
	}
	return json.Marshal(env)
}

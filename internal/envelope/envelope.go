// Package envelope defines the single response shape returned for every chat turn.
package envelope

import (
	"encoding/json"
	"fmt"

	"github.com/ashureev/dynamo-gateway/internal/llm"
)

// Type is the kind of payload an Envelope carries.
type Type string

const (
	TypeText     Type = "text"
	TypeImage    Type = "image"
	TypeDeepDive Type = "deep_dive"
	TypeError    Type = "error"
)

// Fallback texts returned when an upstream capability fails.
const (
	ProviderApology = "Dynamo AI could not reach its research engine right now. Please try again in a moment."
	ImageBusy       = "Visual system is currently busy."
)

// Envelope is {"type": ..., "content": ...}. Content is a string for every
// type except deep_dive, whose Perspectives are serialized as an array.
type Envelope struct {
	Type         Type
	Text         string
	Perspectives []string
}

// Text wraps a textual answer.
func Text(s string) Envelope {
	return Envelope{Type: TypeText, Text: s}
}

// Image wraps an image URL or data URI.
func Image(ref string) Envelope {
	return Envelope{Type: TypeImage, Text: ref}
}

// DeepDive wraps independently generated perspectives in order.
func DeepDive(perspectives []string) Envelope {
	return Envelope{Type: TypeDeepDive, Perspectives: append([]string(nil), perspectives...)}
}

// Error wraps a user-visible error message.
func Error(msg string) Envelope {
	return Envelope{Type: TypeError, Text: msg}
}

// FromResult maps a provider result to a text envelope. Failures become an
// apology so the caller always gets a reply.
func FromResult(res llm.Result) Envelope {
	if res.OK() {
		return Text(res.Text)
	}
	return Text(ProviderApology)
}

// Content returns the payload as it is serialized.
func (e Envelope) Content() any {
	if e.Type == TypeDeepDive {
		if e.Perspectives == nil {
			return []string{}
		}
		return e.Perspectives
	}
	return e.Text
}

type wireEnvelope struct {
	Type    Type            `json:"type"`
	Content json.RawMessage `json:"content"`
}

// MarshalJSON implements json.Marshaler.
func (e Envelope) MarshalJSON() ([]byte, error) {
	content, err := json.Marshal(e.Content())
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireEnvelope{Type: e.Type, Content: content})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Type {
	case TypeText, TypeImage, TypeError:
		var s string
		if err := json.Unmarshal(w.Content, &s); err != nil {
			return fmt.Errorf("envelope %s content: %w", w.Type, err)
		}
		*e = Envelope{Type: w.Type, Text: s}
	case TypeDeepDive:
		var parts []string
		if err := json.Unmarshal(w.Content, &parts); err != nil {
			return fmt.Errorf("envelope deep_dive content: %w", err)
		}
		*e = Envelope{Type: w.Type, Perspectives: parts}
	default:
		return fmt.Errorf("unknown envelope type %q", w.Type)
	}
	return nil
}

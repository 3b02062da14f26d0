package enforcement

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// EventType is the modality of a user action.
type EventType string

const (
	EventButton EventType = "button"
	EventText   EventType = "text"
)

// UserEvent is a parsed inbound action. Token is set for button events only.
type UserEvent struct {
	Type       EventType `json:"type"`
	Raw        *string   `json:"raw"`
	Token      *string   `json:"token"`
	Label      *string   `json:"label"`
	Normalized string    `json:"normalized"`
}

// Event implements Input; a parsed event passes through unchanged.
func (e UserEvent) Event() UserEvent { return e }

// TokenValue returns the token or "".
func (e UserEvent) TokenValue() string {
	if e.Token == nil {
		return ""
	}
	return *e.Token
}

// Input is anything the engine can turn into a UserEvent.
type Input interface {
	Event() UserEvent
}

// ButtonValue is a button identifier as sent by the widget. Older widgets send
// numeric ids.
type ButtonValue string

func (b *ButtonValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*b = ButtonValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("buttonId must be a string or number: %w", err)
	}
	*b = ButtonValue(n.String())
	return nil
}

// RawInput is the wire form of a user action.
type RawInput struct {
	Button *ButtonValue `json:"buttonId,omitempty"`
	Label  *string      `json:"label,omitempty"`
	Text   *string      `json:"text,omitempty"`
}

// Event implements Input.
func (r RawInput) Event() UserEvent { return Parse(r) }

// ButtonPress builds the raw input of a button press.
func ButtonPress(token string) RawInput {
	v := ButtonValue(token)
	return RawInput{Button: &v}
}

// TextMessage builds the raw input of a typed message.
func TextMessage(text string) RawInput {
	return RawInput{Text: &text}
}

// Parse classifies r. A present button wins over text; a missing button is
// never turned into a button event.
func Parse(r RawInput) UserEvent {
	if r.Button != nil {
		token := string(*r.Button)
		normalized := token
		if r.Label != nil && strings.TrimSpace(*r.Label) != "" {
			normalized = *r.Label
		}
		return UserEvent{
			Type:       EventButton,
			Raw:        strPtr(token),
			Token:      strPtr(token),
			Label:      copyPtr(r.Label),
			Normalized: normalized,
		}
	}
	if r.Text != nil {
		return UserEvent{
			Type:       EventText,
			Raw:        strPtr(*r.Text),
			Normalized: norm.NFC.String(strings.TrimSpace(*r.Text)),
		}
	}
	return UserEvent{Type: EventText}
}

func strPtr(s string) *string { return &s }

func copyPtr(s *string) *string {
	if s == nil {
		return nil
	}
	return strPtr(*s)
}

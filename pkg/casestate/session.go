// Package casestate models the parts of a conversation session that stage
// enforcement may read, and the gate that derives dynamic restrictions from
// them.
//
// A Session is owned by the caller. Business logic writes CurrentStage and
// Case; Flags are written only by Gate.Refresh. Any other session data (chat
// transcript, timestamps, ticket payloads) is outside this package.
package casestate

import (
	"github.com/stirosario/sti-ai-chat-sub010/pkg/flow"
)

// CaseFields are the facts collected so far in a support case.
type CaseFields struct {
	Language     string         `json:"language,omitempty"`
	UserName     string         `json:"userName,omitempty"`
	Need         string         `json:"need,omitempty"`
	Problem      string         `json:"problem,omitempty"`
	Device       string         `json:"device,omitempty"`
	OS           string         `json:"os,omitempty"`
	StepsShown   int            `json:"stepsShown,omitempty"`
	TestsFailed  bool           `json:"testsFailed,omitempty"`
	ContactEmail string         `json:"contactEmail,omitempty"`
	ContactPhone string         `json:"contactPhone,omitempty"`
	TicketID     string         `json:"ticketId,omitempty"`
	ConsentGiven bool           `json:"consentGiven,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// Vars renders the case as the `case` variable of gate expressions. Extra
// entries never shadow the named fields.
func (c CaseFields) Vars() map[string]any {
	m := map[string]any{
		"language":      c.Language,
		"user_name":     c.UserName,
		"need":          c.Need,
		"problem":       c.Problem,
		"device":        c.Device,
		"os":            c.OS,
		"steps_shown":   int64(c.StepsShown),
		"tests_failed":  c.TestsFailed,
		"contact_email": c.ContactEmail,
		"contact_phone": c.ContactPhone,
		"ticket_id":     c.TicketID,
		"consent":       c.ConsentGiven,
	}
	for k, v := range c.Extra {
		if _, reserved := m[k]; !reserved {
			m[k] = v
		}
	}
	return m
}

// Flags is the derived case-state cache.
type Flags map[string]bool

// Session is the enforcement view of a conversation.
type Session struct {
	ID           string       `json:"id"`
	CurrentStage flow.StageID `json:"stage,omitempty"`
	Case         CaseFields   `json:"case"`
	Flags        Flags        `json:"flags,omitempty"`
}

// NewSession returns a session positioned before the entry stage.
func NewSession(id string) *Session {
	return &Session{ID: id}
}

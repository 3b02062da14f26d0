// Package flow defines the closed set of conversation stages.
//
// The stage enumeration is owned by the conversation layer. This package only
// carries it so that contract tables can be validated against it at load time.
package flow

import "fmt"

// StageID identifies a named point in the conversation's finite-state flow.
type StageID string

// Stages of the STI support conversation.
const (
	AskLanguage     StageID = "ASK_LANGUAGE"
	AskConsent      StageID = "ASK_CONSENT"
	AskName         StageID = "ASK_NAME"
	AskNeed         StageID = "ASK_NEED"
	AskProblem      StageID = "ASK_PROBLEM"
	AskDevice       StageID = "ASK_DEVICE"
	AskOS           StageID = "ASK_OS"
	BasicTests      StageID = "BASIC_TESTS"
	AdvancedTests   StageID = "ADVANCED_TESTS"
	Escalate        StageID = "ESCALATE"
	AskContactEmail StageID = "ASK_CONTACT_EMAIL"
	AskContactPhone StageID = "ASK_CONTACT_PHONE"
	TicketSent      StageID = "TICKET_SENT"
	Ended           StageID = "ENDED"
)

// Definition is an ordered, closed enumeration of stages plus the entry stage
// used when a session has not been assigned one yet.
type Definition struct {
	entry  StageID
	stages []StageID
	index  map[StageID]int
}

// NewDefinition builds a Definition. The entry stage must be one of stages and
// stage ids must be unique and non-empty.
func NewDefinition(entry StageID, stages ...StageID) (Definition, error) {
	index := make(map[StageID]int, len(stages))
	for i, s := range stages {
		if s == "" {
			return Definition{}, fmt.Errorf("flow: empty stage id at position %d", i)
		}
		if _, dup := index[s]; dup {
			return Definition{}, fmt.Errorf("flow: duplicate stage id %q", s)
		}
		index[s] = i
	}
	if _, ok := index[entry]; !ok {
		return Definition{}, fmt.Errorf("flow: entry stage %q is not enumerated", entry)
	}
	out := make([]StageID, len(stages))
	copy(out, stages)
	return Definition{entry: entry, stages: out, index: index}, nil
}

// Default returns the STI support flow.
func Default() Definition {
	def, err := NewDefinition(AskLanguage,
		AskLanguage,
		AskConsent,
		AskName,
		AskNeed,
		AskProblem,
		AskDevice,
		AskOS,
		BasicTests,
		AdvancedTests,
		Escalate,
		AskContactEmail,
		AskContactPhone,
		TicketSent,
		Ended,
	)
	if err != nil {
		panic(err)
	}
	return def
}

// Entry returns the designated entry stage.
func (d Definition) Entry() StageID { return d.entry }

// Contains reports whether id is a member of the enumeration.
func (d Definition) Contains(id StageID) bool {
	_, ok := d.index[id]
	return ok
}

// Stages returns the enumeration in declaration order.
func (d Definition) Stages() []StageID {
	out := make([]StageID, len(d.stages))
	copy(out, d.stages)
	return out
}

// Resolve returns id, or the entry stage when id is unset.
func (d Definition) Resolve(id StageID) StageID {
	if id == "" {
		return d.entry
	}
	return id
}

// Package audit provides the sinks that record enforcement decisions: a
// structured log sink, an in-memory hash-chained trail, a SQL store and the
// flow-audit CSV.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"

	"github.com/stirosario/sti-ai-chat-sub010/pkg/enforcement"
	"github.com/stirosario/sti-ai-chat-sub010/pkg/flow"
)

var (
	ErrChainBroken   = errors.New("audit: hash chain is broken")
	ErrEntryNotFound = errors.New("audit: entry not found")
)

const genesis = "genesis"

// Entry is one immutable link of the trail.
type Entry struct {
	EntryID      string          `json:"entry_id"`
	Sequence     uint64          `json:"sequence"`
	Timestamp    time.Time       `json:"timestamp"`
	TurnID       string          `json:"turn_id"`
	SessionID    string          `json:"session_id"`
	Stage        flow.StageID    `json:"stage"`
	Allowed      bool            `json:"allowed"`
	Codes        []string        `json:"codes"`
	Payload      json.RawMessage `json:"payload"`
	PayloadHash  string          `json:"payload_hash"`
	PreviousHash string          `json:"previous_hash"`
	EntryHash    string          `json:"entry_hash"`
}

// ChainStore is an append-only trail of enforcement reports in which every
// entry commits to its predecessor.
type ChainStore struct {
	mu       sync.RWMutex
	entries  []*Entry
	byTurn   map[string]*Entry
	sequence uint64
	head     string
}

func NewChainStore() *ChainStore {
	return &ChainStore{
		byTurn: make(map[string]*Entry),
		head:   genesis,
	}
}

// Report implements enforcement.Sink.
func (s *ChainStore) Report(_ context.Context, r enforcement.Report) error {
	_, err := s.Append(r)
	return err
}

// Append links r into the chain.
func (s *ChainStore) Append(r enforcement.Report) (*Entry, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize report: %w", err)
	}
	payload, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize report: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sequence++
	entry := &Entry{
		EntryID:      uuid.New().String(),
		Sequence:     s.sequence,
		Timestamp:    r.Timestamp.UTC(),
		TurnID:       r.TurnID,
		SessionID:    r.SessionID,
		Stage:        r.Stage,
		Allowed:      r.Allowed,
		Codes:        r.Codes(),
		Payload:      payload,
		PayloadHash:  computeHash(payload),
		PreviousHash: s.head,
	}
	entryHash, err := computeEntryHash(entry)
	if err != nil {
		s.sequence--
		return nil, fmt.Errorf("failed to compute entry hash: %w", err)
	}
	entry.EntryHash = entryHash
	s.head = entryHash

	s.entries = append(s.entries, entry)
	s.byTurn[entry.TurnID] = entry
	return cloneEntry(entry), nil
}

func computeHash(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

func computeEntryHash(e *Entry) (string, error) {
	hashable := struct {
		Sequence     uint64       `json:"sequence"`
		Timestamp    time.Time    `json:"timestamp"`
		TurnID       string       `json:"turn_id"`
		SessionID    string       `json:"session_id"`
		Stage        flow.StageID `json:"stage"`
		Allowed      bool         `json:"allowed"`
		Codes        []string     `json:"codes"`
		PayloadHash  string       `json:"payload_hash"`
		PreviousHash string       `json:"previous_hash"`
	}{
		Sequence:     e.Sequence,
		Timestamp:    e.Timestamp,
		TurnID:       e.TurnID,
		SessionID:    e.SessionID,
		Stage:        e.Stage,
		Allowed:      e.Allowed,
		Codes:        e.Codes,
		PayloadHash:  e.PayloadHash,
		PreviousHash: e.PreviousHash,
	}
	data, err := json.Marshal(hashable)
	if err != nil {
		return "", fmt.Errorf("failed to marshal entry for hashing: %w", err)
	}
	canonical, err := jcs.Transform(data)
	if err != nil {
		return "", err
	}
	return computeHash(canonical), nil
}

func cloneEntry(e *Entry) *Entry {
	out := *e
	out.Codes = append([]string(nil), e.Codes...)
	out.Payload = append(json.RawMessage(nil), e.Payload...)
	return &out
}

// Head returns the hash of the latest entry, or "genesis".
func (s *ChainStore) Head() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.head
}

// Len returns the number of entries.
func (s *ChainStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// ByTurn returns the entry recorded for a turn.
func (s *ChainStore) ByTurn(turnID string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byTurn[turnID]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return cloneEntry(e), nil
}

// BySession returns the entries of a session in append order.
func (s *ChainStore) BySession(sessionID string) []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Entry, 0)
	for _, e := range s.entries {
		if e.SessionID == sessionID {
			out = append(out, cloneEntry(e))
		}
	}
	return out
}

// VerifyChain recomputes every payload and entry hash and checks the links.
func (s *ChainStore) VerifyChain() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expectedPrev := genesis
	for i, e := range s.entries {
		if e.PreviousHash != expectedPrev {
			return fmt.Errorf("%w: entry %d links to %s, want %s", ErrChainBroken, i, e.PreviousHash, expectedPrev)
		}
		if computeHash(e.Payload) != e.PayloadHash {
			return fmt.Errorf("%w: entry %d payload hash mismatch", ErrChainBroken, i)
		}
		h, err := computeEntryHash(e)
		if err != nil {
			return err
		}
		if h != e.EntryHash {
			return fmt.Errorf("%w: entry %d hash mismatch", ErrChainBroken, i)
		}
		expectedPrev = e.EntryHash
	}
	return nil
}

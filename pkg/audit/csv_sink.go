package audit

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/stirosario/sti-ai-chat-sub010/pkg/enforcement"
)

// CSVHeader is the column layout of the flow-audit file.
var CSVHeader = []string{"timestamp", "session_id", "turn_id", "stage", "event_type", "token", "text", "allowed", "codes"}

// CSVSink appends one flow-audit row per turn.
type CSVSink struct {
	mu            sync.Mutex
	w             *csv.Writer
	closer        io.Closer
	headerWritten bool
}

// NewCSVSink writes rows to w, starting with the header.
func NewCSVSink(w io.Writer) *CSVSink {
	return &CSVSink{w: csv.NewWriter(w)}
}

// OpenCSVFile appends to the file at path, creating it and its directory if
// needed. The header is written only into an empty file.
func OpenCSVFile(path string) (*CSVSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("audit: create %s: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("audit: stat %s: %w", path, err)
	}
	return &CSVSink{
		w:             csv.NewWriter(f),
		closer:        f,
		headerWritten: info.Size() > 0,
	}, nil
}

func csvRow(r enforcement.Report) []string {
	text := ""
	if r.Event.Type == enforcement.EventText {
		text = r.Event.Normalized
	}
	return []string{
		r.Timestamp.UTC().Format(time.RFC3339),
		r.SessionID,
		r.TurnID,
		string(r.Stage),
		string(r.Event.Type),
		r.Event.TokenValue(),
		text,
		strconv.FormatBool(r.Allowed),
		strings.Join(r.Codes(), "|"),
	}
}

// Report implements enforcement.Sink.
func (s *CSVSink) Report(_ context.Context, r enforcement.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.headerWritten {
		if err := s.w.Write(CSVHeader); err != nil {
			return err
		}
		s.headerWritten = true
	}
	if err := s.w.Write(csvRow(r)); err != nil {
		return err
	}
	s.w.Flush()
	return s.w.Error()
}

// Close flushes and closes the file opened by OpenCSVFile.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Flush()
	if s.closer == nil {
		return s.w.Error()
	}
	return s.closer.Close()
}

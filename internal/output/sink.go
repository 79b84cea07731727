// Package output writes grep records to the terminal or as JSON lines.
package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"syscall"
	"time"
)

// clearLine returns the cursor to column 0 and erases the line, so the
// next write replaces a pending status line.
const clearLine = "\r\x1b[K"

// Record is one JSON output line.
type Record struct {
	T    int64             `json:"t"`
	Data map[string]string `json:"data"`
}

// Sink serialises records to a writer. It is safe for concurrent use.
type Sink struct {
	mu    sync.Mutex
	w     io.Writer
	json  bool
	inTmp bool
	now   func() time.Time
}

// New creates a sink writing to w. In JSON mode every record is written
// as {"t":<epoch-ms>,"data":...} and status lines are dropped.
func New(w io.Writer, jsonMode bool) *Sink {
	return &Sink{w: w, json: jsonMode, now: time.Now}
}

// JSON reports whether the sink writes JSON lines.
func (s *Sink) JSON() bool {
	return s.json
}

// Log writes one record.
func (s *Sink) Log(message string, data map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.json {
		return s.writeJSON(data)
	}
	return s.writeText(message, false)
}

// Tmp writes a status line that the next write overwrites.
func (s *Sink) Tmp(message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.json {
		return nil
	}
	return s.writeText(message, true)
}

// Close erases a pending status line.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.inTmp {
		return nil
	}
	s.inTmp = false
	_, err := io.WriteString(s.w, clearLine)
	return err
}

func (s *Sink) writeText(message string, tmp bool) error {
	var b bytes.Buffer
	if s.inTmp {
		b.WriteString(clearLine)
	}
	b.WriteString(message)
	if !tmp {
		b.WriteByte('\n')
	}
	s.inTmp = tmp
	_, err := s.w.Write(b.Bytes())
	return err
}

func (s *Sink) writeJSON(data map[string]string) error {
	if data == nil {
		data = map[string]string{}
	}

	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(Record{T: s.now().UnixMilli(), Data: data}); err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	_, err := s.w.Write(b.Bytes())
	return err
}

// IsBrokenPipe reports whether err comes from writing to a closed pipe,
// as when output is piped to head(1).
func IsBrokenPipe(err error) bool {
	return errors.Is(err, syscall.EPIPE)
}

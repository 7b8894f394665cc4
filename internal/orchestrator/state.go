// File: internal/orchestrator/state.go
package orchestrator

import (
	"fmt"
	"sync"
	"time"
)

// Outcome is the terminal classification of one contact attempt.
type Outcome string

const (
	OutcomeSent      Outcome = "sent"
	OutcomeNotFound  Outcome = "not_found"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeFailed    Outcome = "failed"
	OutcomeInterrupt Outcome = "interrupted"
)

// Result records one contact's attempt for the run log and the write-back.
type Result struct {
	Row       int       `json:"row"`
	Phone     string    `json:"phone"`
	Name      string    `json:"name"`
	Outcome   Outcome   `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// CurrentContact identifies the contact a run is working on right now.
type CurrentContact struct {
	Row   int    `json:"row"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// LogEntry is one timestamped line of the run narrative.
type LogEntry struct {
	At   time.Time `json:"at"`
	Text string    `json:"text"`
}

// Snapshot is a read-only copy of the session state, safe to hand to the
// dashboard or log without holding the lock.
type Snapshot struct {
	Running   bool            `json:"running"`
	Paused    bool            `json:"paused"`
	Stopping  bool            `json:"stopping"`
	Planned   int             `json:"planned"`
	Attempted int             `json:"attempted"`
	Sent      int             `json:"sent"`
	Failed    int             `json:"failed"`
	StartedAt time.Time       `json:"started_at,omitempty"`
	Current   *CurrentContact `json:"current,omitempty"`
	Results   []Result        `json:"results"`
	Log       []LogEntry      `json:"log"`
}

// SessionState is the one shared structure between the send loop and the
// control surface. The orchestrator alone writes progress; the control
// surface alone writes the pause and stop flags. Readers use Snapshot.
type SessionState struct {
	mu sync.Mutex

	running   bool
	paused    bool
	stopping  bool
	planned   int
	attempted int
	sent      int
	failed    int
	startedAt time.Time
	current   *CurrentContact
	results   []Result
	log       []LogEntry
}

func NewSessionState() *SessionState { return &SessionState{} }

// --- orchestrator-owned writes ---

// Begin marks the run started. Returns false when a run is already active,
// so overlapping starts from the dashboard are rejected.
func (s *SessionState) Begin(planned int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	s.paused = false
	s.stopping = false
	s.planned = planned
	s.attempted = 0
	s.sent = 0
	s.failed = 0
	s.startedAt = time.Now()
	s.current = nil
	s.results = nil
	s.log = nil
	return true
}

// SetCurrent marks the contact being worked on right now.
func (s *SessionState) SetCurrent(c CurrentContact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = &c
}

// Record appends one contact's outcome, bumps the counters, and clears the
// current-target marker: the attempt is over.
func (s *SessionState) Record(r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempted++
	if r.Outcome == OutcomeSent {
		s.sent++
	} else {
		s.failed++
	}
	s.results = append(s.results, r)
	s.current = nil
}

// Logf appends a timestamped line to the run narrative.
func (s *SessionState) Logf(format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, LogEntry{At: time.Now(), Text: fmt.Sprintf(format, args...)})
}

// Finish clears the run flags. Pause and stop requests do not survive into
// the next run.
func (s *SessionState) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.paused = false
	s.stopping = false
	s.current = nil
}

// --- control-surface-owned writes ---

func (s *SessionState) RequestStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopping = true
}

func (s *SessionState) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
}

// --- reads ---

func (s *SessionState) Stopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

func (s *SessionState) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *SessionState) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := Snapshot{
		Running:   s.running,
		Paused:    s.paused,
		Stopping:  s.stopping,
		Planned:   s.planned,
		Attempted: s.attempted,
		Sent:      s.sent,
		Failed:    s.failed,
		StartedAt: s.startedAt,
	}
	if s.current != nil {
		c := *s.current
		out.Current = &c
	}
	out.Results = append(out.Results, s.results...)
	out.Log = append(out.Log, s.log...)
	return out
}

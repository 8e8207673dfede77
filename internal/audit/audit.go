// Package audit implements spec.md §4.J: a hash-chained, append-only
// event trail mirrored to the system log under a consistent program
// tag, so a tampered local log can be detected by a broken hash chain
// even if the syslog copy is unavailable.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/syslog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// SessionType classifies the session an event belongs to, per §4.J's
// "session-type indicator".
type SessionType string

const (
	SessionInteractive SessionType = "interactive"
	SessionAutomation  SessionType = "automation"
	SessionAIBlocked   SessionType = "ai-blocked"
)

// Event is one audit record. Fields are omitted from JSON when empty so
// a given event kind's log line stays compact.
type Event struct {
	Sequence    uint64      `json:"seq"`
	Timestamp   time.Time   `json:"ts"`
	Kind        string      `json:"event"`
	Invoker     string      `json:"invoker,omitempty"`
	TTY         string      `json:"tty,omitempty"`
	Target      string      `json:"target,omitempty"`
	Command     string      `json:"command,omitempty"`
	ExitCode    *int        `json:"exit_code,omitempty"`
	Rule        string      `json:"rule,omitempty"`
	Reason      string      `json:"reason,omitempty"`
	Session     SessionType `json:"session_type,omitempty"`
	Automation  string      `json:"automation,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	PrevHash    string      `json:"prev_hash"`
	EventHash   string      `json:"event_hash"`
}

// Sink is the audit trail writer: one hash-chained JSON-lines file plus
// a mirrored copy to the system log under ProgramTag.
type Sink struct {
	mu       sync.Mutex
	logger   zerolog.Logger
	sysWrite *syslog.Writer
	prevHash []byte
	sequence uint64
	Tag      string
}

// New builds a Sink writing structured JSON to w (typically a file under
// the run directory) and mirroring every event to the system log under
// tag. A nil syslog writer is tolerated: mirroring is then skipped,
// matching the "degrade gracefully" posture for non-critical resources.
func New(w io.Writer, sysWriter *syslog.Writer, tag string) *Sink {
	return &Sink{
		logger:   zerolog.New(w).With().Timestamp().Logger(),
		sysWrite: sysWriter,
		Tag:      tag,
	}
}

// NewSyslog dials the local syslog daemon under the given program tag,
// per §4.J's "consistent program tag" requirement.
func NewSyslog(tag string) (*syslog.Writer, error) {
	return syslog.New(syslog.LOG_AUTH|syslog.LOG_NOTICE, tag)
}

// CorrelationID mints a new lexicographically-sortable session/command
// correlation id.
func CorrelationID() string {
	return ulid.Make().String()
}

// record appends event to the chain, computing its hash over the
// previous event's hash plus this event's canonical payload, then mirrors
// it to the system log.
func (s *Sink) record(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sequence++
	e.Sequence = s.sequence
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	e.PrevHash = hex.EncodeToString(s.prevHash)

	payload, err := json.Marshal(withoutHash(e))
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to marshal audit event")
		return
	}
	sum := sha256.Sum256(append(s.prevHash, payload...))
	s.prevHash = sum[:]
	e.EventHash = hex.EncodeToString(sum[:])

	line, err := json.Marshal(e)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to marshal audit event")
		return
	}
	s.logger.Log().RawJSON("event", line).Send()

	if s.sysWrite != nil {
		_, _ = s.sysWrite.Write(line)
	}
}

func withoutHash(e Event) Event {
	e.EventHash = ""
	return e
}

// SessionStart emits the session-start event §4.J requires on startup.
func (s *Sink) SessionStart(invoker, tty string, session SessionType, correlationID string) {
	s.record(Event{Kind: "session.start", Invoker: invoker, TTY: tty, Session: session, CorrelationID: correlationID})
}

// SessionEnd emits the session-end event on exit.
func (s *Sink) SessionEnd(invoker, tty, correlationID string) {
	s.record(Event{Kind: "session.end", Invoker: invoker, TTY: tty, CorrelationID: correlationID})
}

// Command emits a command-attempt event with the full command string
// and its exit status.
func (s *Sink) Command(invoker, target, command, correlationID string, exitCode int) {
	s.record(Event{
		Kind: "command", Invoker: invoker, Target: target, Command: command,
		ExitCode: &exitCode, CorrelationID: correlationID,
	})
}

// Violation emits a rejection event naming the rule that fired.
func (s *Sink) Violation(invoker, command, rule, reason, correlationID string) {
	s.record(Event{
		Kind: "violation", Invoker: invoker, Command: command,
		Rule: rule, Reason: reason, CorrelationID: correlationID,
	})
}

// PipelineStart emits the pipeline-start event required before a
// multi-stage plan begins executing, per §4.J/§5's ordering guarantees.
func (s *Sink) PipelineStart(invoker, command, correlationID string) {
	s.record(Event{Kind: "pipeline.start", Invoker: invoker, Command: command, CorrelationID: correlationID})
}

// PipelineEnd emits the pipeline-end event after the final wait, per
// §5, carrying the pipeline's overall (last-stage) exit status.
func (s *Sink) PipelineEnd(invoker, command, correlationID string, exitCode int) {
	s.record(Event{Kind: "pipeline.end", Invoker: invoker, Command: command, ExitCode: &exitCode, CorrelationID: correlationID})
}

// AIBlocked emits the fatal AI-assistant-detected event.
func (s *Sink) AIBlocked(invoker, reason, correlationID string) {
	s.record(Event{
		Kind: "ai.blocked", Invoker: invoker, Reason: reason,
		Session: SessionAIBlocked, CorrelationID: correlationID,
	})
}

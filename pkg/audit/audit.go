// Package audit provides the command journal: every operator command is
// recorded as an Entry with its outcome. Entries are written by pluggable
// backends (stdout, JSONL file, zstd-compressed JSONL file).
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"multimodal/pkg/config"
)

// Outcome is the result of a journaled command.
type Outcome string

const (
	// OutcomeApplied indicates the command changed state.
	OutcomeApplied Outcome = "APPLIED"
	// OutcomeNoop indicates the command referenced unknown input and was absorbed.
	OutcomeNoop Outcome = "NOOP"
	// OutcomeRejected indicates the command was not accepted in the current state.
	OutcomeRejected Outcome = "REJECTED"
	// OutcomeFailed indicates an unexpected failure.
	OutcomeFailed Outcome = "FAILED"
)

// Entry is a single journal record.
type Entry struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	Service    string         `json:"service"`
	Command    string         `json:"command"`
	Outcome    Outcome        `json:"outcome"`
	SessionID  string         `json:"session_id,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	ClientIP   string         `json:"client_ip,omitempty"`
	Target     string         `json:"target,omitempty"`
	DurationMs int64          `json:"duration_ms"`
	ErrorCode  string         `json:"error_code,omitempty"`
	Message    string         `json:"message,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Logger is the interface that journal backends implement.
type Logger interface {
	// Log records an entry. Backends may buffer.
	Log(ctx context.Context, entry *Entry) error

	// Close flushes pending entries and releases resources.
	Close() error
}

// Config holds journal settings.
type Config struct {
	Enabled        bool
	Backend        string // stdout, file, zstd, none
	FilePath       string
	BufferSize     int
	FlushPeriod    time.Duration
	ExcludeMethods []string
}

// DefaultConfig returns the journal defaults.
func DefaultConfig() *Config {
	return &Config{
		Enabled:     true,
		Backend:     "stdout",
		BufferSize:  1000,
		FlushPeriod: 5 * time.Second,
	}
}

// FromConfig converts the service configuration section.
func FromConfig(cfg config.AuditConfig) *Config {
	return &Config{
		Enabled:        cfg.Enabled,
		Backend:        cfg.Backend,
		FilePath:       cfg.FilePath,
		BufferSize:     cfg.BufferSize,
		FlushPeriod:    cfg.FlushPeriod,
		ExcludeMethods: cfg.ExcludeMethods,
	}
}

// Builder provides a fluent API for constructing an Entry.
type Builder struct {
	entry *Entry
}

// NewEntry creates a Builder stamped with the current time.
func NewEntry() *Builder {
	return &Builder{
		entry: &Entry{
			Timestamp: time.Now().UTC(),
			Metadata:  make(map[string]any),
		},
	}
}

// Service sets the service name.
func (b *Builder) Service(s string) *Builder {
	b.entry.Service = s
	return b
}

// Command sets the command name.
func (b *Builder) Command(c string) *Builder {
	b.entry.Command = c
	return b
}

// Outcome sets the outcome.
func (b *Builder) Outcome(o Outcome) *Builder {
	b.entry.Outcome = o
	return b
}

// Session sets the session id.
func (b *Builder) Session(id string) *Builder {
	b.entry.SessionID = id
	return b
}

// RequestID sets the request id.
func (b *Builder) RequestID(id string) *Builder {
	b.entry.RequestID = id
	return b
}

// Client sets the client address.
func (b *Builder) Client(ip string) *Builder {
	b.entry.ClientIP = ip
	return b
}

// Target sets the command target (city, route, mode).
func (b *Builder) Target(t string) *Builder {
	b.entry.Target = t
	return b
}

// Duration sets the command duration.
func (b *Builder) Duration(d time.Duration) *Builder {
	b.entry.DurationMs = d.Milliseconds()
	return b
}

// Error sets the error code and message.
func (b *Builder) Error(code, message string) *Builder {
	b.entry.ErrorCode = code
	b.entry.Message = message
	return b
}

// Meta adds a metadata key.
func (b *Builder) Meta(key string, value any) *Builder {
	b.entry.Metadata[key] = value
	return b
}

// Build finalizes the entry, assigning an ID if none is set.
func (b *Builder) Build() *Entry {
	if b.entry.ID == "" {
		b.entry.ID = uuid.NewString()
	}
	if len(b.entry.Metadata) == 0 {
		b.entry.Metadata = nil
	}
	return b.entry
}

package audit

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LogEntry defines the structured audit log
type LogEntry struct {
	Timestamp time.Time
	RequestID string
	ClientID  string
	ActorID   string // session email, or "anonymous"
	Action    string // method + path
	Resource  string // path
	Status    int
	Rejection string // pipeline stage that refused the request, if any
	Duration  time.Duration
	Metadata  map[string]interface{}
}

// Logger interface
type Logger interface {
	Log(entry LogEntry)
}

// ZerologLogger writes entries as structured zerolog events.
type ZerologLogger struct {
	log zerolog.Logger
}

func NewZerologLogger(log zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{log: log.With().Str("component", "audit").Logger()}
}

func (l *ZerologLogger) Log(entry LogEntry) {
	if entry.Metadata != nil {
		maskSensitive(entry.Metadata)
	}

	ev := l.log.Info()
	if entry.Status >= 500 {
		ev = l.log.Error()
	} else if entry.Status >= 400 {
		ev = l.log.Warn()
	}

	ev = ev.Time("ts", entry.Timestamp).
		Str("request_id", entry.RequestID).
		Str("client", entry.ClientID).
		Str("actor", entry.ActorID).
		Str("action", entry.Action).
		Str("resource", entry.Resource).
		Int("status", entry.Status).
		Dur("duration", entry.Duration)
	if entry.Rejection != "" {
		ev = ev.Str("rejected_by", entry.Rejection)
	}
	if len(entry.Metadata) > 0 {
		ev = ev.Fields(entry.Metadata)
	}
	ev.Msg("request")
}

var sensitiveKeys = []string{"password", "token", "secret", "authorization", "cookie"}

func maskSensitive(m map[string]interface{}) {
	for k := range m {
		lowerK := strings.ToLower(k)
		for _, s := range sensitiveKeys {
			if strings.Contains(lowerK, s) {
				m[k] = "***REDACTED***"
				break
			}
		}
	}
}

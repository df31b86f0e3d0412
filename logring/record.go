package logring

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/c360/simmirror/errors"
)

// Severity orders log levels for filtering.
type Severity int

const (
	SeverityTrace Severity = iota
	SeverityDebug
	SeverityInfo
	SeverityWarn
	SeverityError
)

var severities = map[string]Severity{
	"TRACE":   SeverityTrace,
	"DEBUG":   SeverityDebug,
	"INFO":    SeverityInfo,
	"WARN":    SeverityWarn,
	"WARNING": SeverityWarn,
	"ERROR":   SeverityError,
	"COMMAND": SeverityInfo,
	"SCRIPT":  SeverityInfo,
}

// SeverityOf maps a level name to its severity. Matching ignores case and
// surrounding space; unknown levels rank as INFO.
func SeverityOf(level string) Severity {
	if s, ok := severities[strings.ToUpper(strings.TrimSpace(level))]; ok {
		return s
	}
	return SeverityInfo
}

// NormalizeTarget returns the key used for target counts and filtering.
func NormalizeTarget(target string) string {
	return strings.ToLower(strings.TrimSpace(target))
}

// SyntheticTarget is the target of records produced by the client itself.
const SyntheticTarget = "client"

// Envelope is the JSON document carried by one log frame.
type Envelope struct {
	TimestampMs int64          `json:"timestamp_ms"`
	Level       string         `json:"level"`
	Target      string         `json:"target"`
	Message     string         `json:"message"`
	Fields      map[string]any `json:"fields,omitempty"`
}

// ParseEnvelope decodes one log payload. Malformed JSON returns an
// invalid-class error wrapping ErrParsingFailed.
func ParseEnvelope(payload []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Envelope{}, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"logring", "ParseEnvelope", "unmarshal envelope")
	}
	return env, nil
}

// Record is one formatted log line.
type Record struct {
	Text        string
	SearchText  string
	Level       string
	Target      string
	TargetKey   string
	Message     string
	TimestampMs int64
	Fields      map[string]any
	Synthetic   bool
}

// Severity returns the record's severity.
func (r Record) Severity() Severity {
	return SeverityOf(r.Level)
}

// NewRecord formats env into a record.
func NewRecord(env Envelope) Record {
	level := strings.ToUpper(strings.TrimSpace(env.Level))
	if level == "" {
		level = "INFO"
	}
	text := formatText(env.TimestampMs, level, env.Target, env.Message, env.Fields)
	return Record{
		Text:        text,
		SearchText:  strings.ToLower(text),
		Level:       level,
		Target:      env.Target,
		TargetKey:   NormalizeTarget(env.Target),
		Message:     env.Message,
		TimestampMs: env.TimestampMs,
		Fields:      env.Fields,
	}
}

// SyntheticRecord builds a client-generated record stamped with now.
func SyntheticRecord(now time.Time, level, message string, fields map[string]any) Record {
	r := NewRecord(Envelope{
		TimestampMs: now.UnixMilli(),
		Level:       level,
		Target:      SyntheticTarget,
		Message:     message,
		Fields:      fields,
	})
	r.Synthetic = true
	return r
}

// formatText renders "[hh:mm:ss.mmm] LEVEL target: message k=v ..." with
// fields sorted by key.
func formatText(ts int64, level, target, message string, fields map[string]any) string {
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(time.UnixMilli(ts).UTC().Format("15:04:05.000"))
	b.WriteString("] ")
	b.WriteString(level)
	if target = strings.TrimSpace(target); target != "" {
		b.WriteByte(' ')
		b.WriteString(target)
		b.WriteByte(':')
	}
	b.WriteByte(' ')
	b.WriteString(message)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(formatValue(fields[k]))
	}
	return b.String()
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case float64, bool, json.Number:
		return fmt.Sprint(val)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
}

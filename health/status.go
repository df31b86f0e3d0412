package health

import (
	"regexp"
	"strings"
	"time"

	"github.com/c360/simmirror/frame"
)

// Pre-compiled regexes for error message sanitization
var (
	urlRegex        = regexp.MustCompile(`(?:https?|nats|wss?)://[^\s]+`)
	unixPathRegex   = regexp.MustCompile(`/[a-zA-Z0-9/_.-]+`)
	ipAddrRegex     = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	portRegex       = regexp.MustCompile(`:\d{2,5}\b`)
	credentialRegex = regexp.MustCompile(`(?i)(password|token|secret)[^a-zA-Z]*[:=][^,\s}]+`)
)

// Status values.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Status represents the health of one stream or of the whole client
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics contains per-stream counters reported alongside the status
type Metrics struct {
	State        string    `json:"state"`
	Failures     int       `json:"consecutive_failures"`
	LastActivity time.Time `json:"last_activity,omitempty"`
}

// IsHealthy returns true if the status is healthy
func (s Status) IsHealthy() bool {
	return s.Status == StatusHealthy
}

// IsDegraded returns true if the status is degraded
func (s Status) IsDegraded() bool {
	return s.Status == StatusDegraded
}

// IsUnhealthy returns true if the status is unhealthy
func (s Status) IsUnhealthy() bool {
	return s.Status == StatusUnhealthy
}

// StreamInfo is the observable state of one supervised stream.
type StreamInfo struct {
	Enabled      bool
	State        frame.ConnectionState
	Err          error
	Failures     int
	LastActivity time.Time
}

// FromStream maps a stream's connection state to a health status. A
// disabled stream is healthy and a first connect attempt is degraded. An
// enabled stream in Error or Disconnected, or retrying after failures, is
// unhealthy.
// Error text is sanitized before it is exposed.
func FromStream(name string, info StreamInfo) Status {
	var status Status
	switch {
	case !info.Enabled:
		status = NewHealthy(name, "Stream disabled")
	case info.State == frame.Connected:
		status = NewHealthy(name, "Stream connected")
	case info.State == frame.Connecting && info.Failures == 0:
		status = NewDegraded(name, "Stream connecting")
	default:
		msg := "Stream " + info.State.String()
		if info.Err != nil {
			msg += ": " + sanitizeErrorMessage(info.Err.Error())
		}
		status = NewUnhealthy(name, msg)
	}

	status.Metrics = &Metrics{
		State:        info.State.String(),
		Failures:     info.Failures,
		LastActivity: info.LastActivity,
	}
	return status
}

// sanitizeErrorMessage strips addresses, paths and credentials from error
// text: URLs become [URL], paths [PATH], IPs [IP], ports [PORT] and
// credential assignments [REDACTED].
func sanitizeErrorMessage(err string) string {
	if err == "" {
		return ""
	}

	sanitized := urlRegex.ReplaceAllString(err, "[URL]")
	sanitized = unixPathRegex.ReplaceAllString(sanitized, "[PATH]")
	sanitized = ipAddrRegex.ReplaceAllString(sanitized, "[IP]")
	sanitized = portRegex.ReplaceAllString(sanitized, "[PORT]")

	lower := strings.ToLower(sanitized)
	if strings.Contains(lower, "password") || strings.Contains(lower, "token") || strings.Contains(lower, "secret") {
		sanitized = credentialRegex.ReplaceAllString(sanitized, "[REDACTED]")
	}
	return sanitized
}

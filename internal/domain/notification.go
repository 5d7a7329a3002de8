package domain

import (
	"context"
	"strings"
	"time"
)

// Priority is the delivery priority requested for a notification
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// DispatchRequest is one fan-out request
type DispatchRequest struct {
	Title    string
	Body     string
	Data     map[string]string
	ImageURL string
	Priority Priority

	// Filters. CountryCode takes precedence over Country when both are set.
	Country       string
	CountryCode   string
	OriginAddress string

	// Set by predefined smoke tests only.
	AndroidChannelID string
	ClickAction      string
}

// CountryFilter returns the effective country filter, or "" when none was given
func (r DispatchRequest) CountryFilter() string {
	if c := strings.TrimSpace(r.CountryCode); c != "" {
		return c
	}
	return strings.TrimSpace(r.Country)
}

// HasFilter reports whether any target filter is set
func (r DispatchRequest) HasFilter() bool {
	return r.CountryFilter() != "" || strings.TrimSpace(r.OriginAddress) != ""
}

// Matches reports whether a record passes every filter in the request
func (r DispatchRequest) Matches(rec TokenRecord) bool {
	if c := r.CountryFilter(); c != "" && !rec.MatchesCountry(c) {
		return false
	}
	if o := strings.TrimSpace(r.OriginAddress); o != "" && !rec.MatchesOrigin(o) {
		return false
	}
	return true
}

// Validate checks the required fields
func (r DispatchRequest) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return Required("title")
	}
	if strings.TrimSpace(r.Body) == "" {
		return Required("body")
	}
	switch r.Priority {
	case "", PriorityNormal, PriorityHigh:
	default:
		return &ValidationError{Field: "priority", Message: "must be normal or high"}
	}
	return nil
}

// Alert is the visible notification text set directly on platforms that render it correctly
type Alert struct {
	Title string
	Body  string
}

// OutboundMessage is the gateway-neutral message for one target
type OutboundMessage struct {
	Token    string
	Platform Platform
	Data     map[string]string
	Alert    *Alert
	ImageURL string
	Priority Priority
}

// PushGateway delivers one message and returns the gateway message id.
// Implementations wrap permanent token failures with ErrPermanentToken.
type PushGateway interface {
	Send(ctx context.Context, msg *OutboundMessage) (string, error)
}

// TargetOutcome is the result of sending to one target
type TargetOutcome struct {
	Token     string            `json:"token"`
	Platform  Platform          `json:"platform"`
	Success   bool              `json:"success"`
	MessageID string            `json:"messageId,omitempty"`
	Error     string            `json:"error,omitempty"`
	ErrorKind DeliveryErrorKind `json:"errorKind,omitempty"`
}

// DispatchKind distinguishes caller-authored sends from predefined smoke tests
type DispatchKind string

const (
	DispatchSend DispatchKind = "send"
	DispatchTest DispatchKind = "test"
)

// DispatchResult aggregates a completed fan-out
type DispatchResult struct {
	DispatchID  string          `json:"dispatchId"`
	Kind        DispatchKind    `json:"kind"`
	TestType    string          `json:"testType,omitempty"`
	TotalTokens int             `json:"totalTokens"`
	Matched     int             `json:"matched"`
	Successful  int             `json:"successful"`
	Failed      int             `json:"failed"`
	Removed     int             `json:"removed"`
	DroppedKeys []string        `json:"droppedKeys,omitempty"`
	Outcomes    []TargetOutcome `json:"outcomes"`
	StartedAt   time.Time       `json:"startedAt"`
	CompletedAt time.Time       `json:"completedAt"`
}

// Successes returns the successful outcomes in target order
func (r *DispatchResult) Successes() []TargetOutcome {
	out := make([]TargetOutcome, 0, r.Successful)
	for _, o := range r.Outcomes {
		if o.Success {
			out = append(out, o)
		}
	}
	return out
}

// Failures returns the failed outcomes in target order
func (r *DispatchResult) Failures() []TargetOutcome {
	out := make([]TargetOutcome, 0, r.Failed)
	for _, o := range r.Outcomes {
		if !o.Success {
			out = append(out, o)
		}
	}
	return out
}

// ReportArchiver stores completed dispatch results
type ReportArchiver interface {
	Archive(ctx context.Context, result *DispatchResult) error
}

// LocationResolver turns an origin address and an optional edge hint into a location.
// It never fails; unresolvable inputs yield an unresolved hint.
type LocationResolver interface {
	Resolve(ctx context.Context, originAddress, edgeCountryHint string) LocationHint
}

// MetricsRecorder receives counters from the services
type MetricsRecorder interface {
	Registration(action AuditAction)
	Geolocation(by ResolvedBy)
	Delivery(kind DispatchKind, success bool, errKind DeliveryErrorKind)
	Evicted(n int)
	Dispatch(kind DispatchKind)
}

type nopMetrics struct{}

func (nopMetrics) Registration(AuditAction)                       {}
func (nopMetrics) Geolocation(ResolvedBy)                         {}
func (nopMetrics) Delivery(DispatchKind, bool, DeliveryErrorKind) {}
func (nopMetrics) Evicted(int)                                    {}
func (nopMetrics) Dispatch(DispatchKind)                          {}

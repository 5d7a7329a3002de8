package domain

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RegisterRequest carries one token registration
type RegisterRequest struct {
	Token      string
	Platform   string
	Source     string
	CustomerID string
	Email      string
	Timestamp  string

	OriginAddress   string
	EdgeCountryHint string
}

// Registration is the outcome of a successful registration
type Registration struct {
	Record   TokenRecord
	WasNew   bool
	Location LocationHint
}

// RegistrationService resolves location, upserts the registry and appends to the audit log
type RegistrationService struct {
	registry  TokenRepository
	audit     AuditRepository
	resolver  LocationResolver
	publisher AuditPublisher
	metrics   MetricsRecorder
	logger    *zap.Logger
	now       func() time.Time
}

func NewRegistrationService(
	registry TokenRepository,
	audit AuditRepository,
	resolver LocationResolver,
	publisher AuditPublisher,
	metrics MetricsRecorder,
	logger *zap.Logger,
) *RegistrationService {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &RegistrationService{
		registry:  registry,
		audit:     audit,
		resolver:  resolver,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Register validates the request and records the token.
// Location resolution happens before the registry is touched and never fails the call.
func (s *RegistrationService) Register(ctx context.Context, req RegisterRequest) (*Registration, error) {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return nil, Required("token")
	}

	location := Unresolved()
	if s.resolver != nil {
		location = s.resolver.Resolve(ctx, req.OriginAddress, req.EdgeCountryHint)
	}
	s.metrics.Geolocation(location.ResolvedBy)

	now := s.now()
	clientTS := strings.TrimSpace(req.Timestamp)
	if clientTS == "" {
		clientTS = now.Format(time.RFC3339)
	}
	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = "unknown"
	}

	candidate := TokenRecord{
		Token:           token,
		Platform:        ParsePlatform(req.Platform),
		ClientTimestamp: clientTS,
		Source:          source,
		CustomerID:      optional(req.CustomerID),
		Email:           optional(req.Email),
		OriginAddress:   req.OriginAddress,
	}.WithLocation(location)

	record, wasNew := s.registry.Upsert(candidate)

	action := AuditUpdated
	if wasNew {
		action = AuditRegistered
	}
	entry := AuditLogEntry{
		Action:    action,
		Token:     Preview(token),
		Platform:  record.Platform,
		Timestamp: now,
	}
	s.audit.Append(entry)
	if s.publisher != nil {
		s.publisher.Publish(entry)
	}
	s.metrics.Registration(action)

	s.logger.Info("token registered",
		zap.String("action", string(action)),
		zap.String("token", entry.Token),
		zap.String("platform", string(record.Platform)),
		zap.String("source", record.Source),
		zap.String("resolved_by", string(location.ResolvedBy)),
	)

	return &Registration{Record: record, WasNew: wasNew, Location: location}, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

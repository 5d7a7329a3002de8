package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	defaultConcurrency = 8
	defaultSendTimeout = 10 * time.Second
	archiveTimeout     = 15 * time.Second
)

// DispatchOptions tunes the fan-out
type DispatchOptions struct {
	// Concurrency bounds the number of in-flight gateway calls.
	Concurrency int
	// SendTimeout bounds each gateway call.
	SendTimeout time.Duration
	// Limiter paces gateway calls across the process when set.
	Limiter *rate.Limiter
}

// NotificationService selects targets, fans out through the gateway and evicts dead tokens
type NotificationService struct {
	registry TokenRepository
	gateway  PushGateway
	archive  ReportArchiver
	metrics  MetricsRecorder
	logger   *zap.Logger
	opts     DispatchOptions
	now      func() time.Time
}

func NewNotificationService(
	registry TokenRepository,
	gateway PushGateway,
	archive ReportArchiver,
	metrics MetricsRecorder,
	logger *zap.Logger,
	opts DispatchOptions,
) *NotificationService {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &NotificationService{
		registry: registry,
		gateway:  gateway,
		archive:  archive,
		metrics:  metrics,
		logger:   logger,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Dispatch sends req to every registered token that passes its filters.
// Per-target failures are reported in the result, never as the returned error.
func (s *NotificationService) Dispatch(ctx context.Context, req DispatchRequest) (*DispatchResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.dispatch(ctx, req, DispatchSend, "")
}

// RunSmokeTest sends a predefined test notification to every registered token
func (s *NotificationService) RunSmokeTest(ctx context.Context, variant string) (*DispatchResult, error) {
	name, req := SmokeTest(variant, s.now())
	return s.dispatch(ctx, req, DispatchTest, name)
}

func (s *NotificationService) dispatch(ctx context.Context, req DispatchRequest, kind DispatchKind, testType string) (*DispatchResult, error) {
	// A dispatch that has started runs to completion so eviction sees every outcome.
	ctx = context.WithoutCancel(ctx)

	targets := s.registry.Filter(req.Matches)
	total := s.registry.Count()
	if len(targets) == 0 {
		if total == 0 {
			return nil, ErrNoTokensRegistered
		}
		return nil, fmt.Errorf("%w (country=%q originAddress=%q)", ErrNoTargetsMatched, req.CountryFilter(), req.OriginAddress)
	}

	started := s.now()
	result := &DispatchResult{
		DispatchID:  uuid.New().String(),
		Kind:        kind,
		TestType:    testType,
		TotalTokens: total,
		Matched:     len(targets),
		StartedAt:   started,
	}
	s.metrics.Dispatch(kind)

	data, dropped := BuildDataPayload(req, started)
	result.DroppedKeys = dropped
	if len(dropped) > 0 {
		s.logger.Warn("caller data keys dropped", zap.Strings("keys", dropped))
	}

	s.logger.Info("dispatch started",
		zap.String("dispatch_id", result.DispatchID),
		zap.String("kind", string(kind)),
		zap.Bool("filtered", req.HasFilter()),
		zap.Int("matched", len(targets)),
		zap.Int("total_tokens", total),
	)

	outcomes := make([]TargetOutcome, len(targets))
	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for i, target := range targets {
		g.Go(func() error {
			outcomes[i] = s.sendOne(ctx, target, BuildMessage(target, req, data))
			return nil
		})
	}
	_ = g.Wait()

	invalid := make(map[string]struct{})
	for i, o := range outcomes {
		s.metrics.Delivery(kind, o.Success, o.ErrorKind)
		if o.Success {
			result.Successful++
			continue
		}
		result.Failed++
		if o.ErrorKind == DeliveryPermanent {
			invalid[targets[i].Token] = struct{}{}
		}
	}
	result.Outcomes = outcomes

	if len(invalid) > 0 {
		result.Removed = s.registry.Evict(invalid)
		s.metrics.Evicted(result.Removed)
		s.logger.Info("invalid tokens evicted",
			zap.String("dispatch_id", result.DispatchID),
			zap.Int("removed", result.Removed),
		)
	}
	result.CompletedAt = s.now()

	fields := []zap.Field{
		zap.String("dispatch_id", result.DispatchID),
		zap.Int("successful", result.Successful),
		zap.Int("failed", result.Failed),
		zap.Int("removed", result.Removed),
		zap.Duration("duration", result.CompletedAt.Sub(started)),
	}
	if result.Failed > 0 {
		s.logger.Warn("dispatch finished with failures", fields...)
	} else {
		s.logger.Info("dispatch finished", fields...)
	}

	s.archiveResult(ctx, result)
	return result, nil
}

func (s *NotificationService) sendOne(ctx context.Context, target TokenRecord, msg *OutboundMessage) TargetOutcome {
	outcome := TargetOutcome{
		Token:    Preview(target.Token),
		Platform: target.Platform,
	}

	if s.opts.Limiter != nil {
		waitCtx, cancel := context.WithTimeout(ctx, s.opts.SendTimeout)
		err := s.opts.Limiter.Wait(waitCtx)
		cancel()
		if err != nil {
			outcome.Error = err.Error()
			outcome.ErrorKind = DeliveryTransient
			return outcome
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.opts.SendTimeout)
	defer cancel()

	id, err := s.gateway.Send(sendCtx, msg)
	if err != nil {
		outcome.Error = err.Error()
		outcome.ErrorKind = ClassifyDeliveryError(err)
		s.logger.Debug("delivery failed",
			zap.String("token", outcome.Token),
			zap.String("kind", string(outcome.ErrorKind)),
			zap.Error(err),
		)
		return outcome
	}
	outcome.Success = true
	outcome.MessageID = id
	return outcome
}

func (s *NotificationService) archiveResult(ctx context.Context, result *DispatchResult) {
	if s.archive == nil {
		return
	}
	archiveCtx, cancel := context.WithTimeout(ctx, archiveTimeout)
	defer cancel()
	if err := s.archive.Archive(archiveCtx, result); err != nil {
		s.logger.Warn("failed to archive dispatch report",
			zap.String("dispatch_id", result.DispatchID),
			zap.Error(err),
		)
	}
}

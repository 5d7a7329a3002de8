package domain_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/gst3d/pushserver/internal/domain"
	"github.com/gst3d/pushserver/internal/repository"
)

// fakeGateway answers per token: a configured error or a generated message id
type fakeGateway struct {
	mu       sync.Mutex
	failures map[string]error
	sent     []*domain.OutboundMessage
	inFlight int32
	maxSeen  int32
	delay    time.Duration
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{failures: make(map[string]error)}
}

func (g *fakeGateway) Send(ctx context.Context, msg *domain.OutboundMessage) (string, error) {
	n := atomic.AddInt32(&g.inFlight, 1)
	defer atomic.AddInt32(&g.inFlight, -1)
	for {
		seen := atomic.LoadInt32(&g.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&g.maxSeen, seen, n) {
			break
		}
	}
	if g.delay > 0 {
		time.Sleep(g.delay)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, msg)
	if err, ok := g.failures[msg.Token]; ok {
		return "", err
	}
	return "msg-" + msg.Token, nil
}

func (g *fakeGateway) sentTo() map[string]*domain.OutboundMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]*domain.OutboundMessage, len(g.sent))
	for _, m := range g.sent {
		out[m.Token] = m
	}
	return out
}

type recordingArchive struct {
	mu      sync.Mutex
	results []*domain.DispatchResult
	err     error
}

func (a *recordingArchive) Archive(_ context.Context, r *domain.DispatchResult) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.results = append(a.results, r)
	return a.err
}

func country(code string) domain.LocationHint {
	return domain.LocationHint{Country: &code, CountryName: &code, ResolvedBy: domain.ResolvedByEdgeHeader}
}

func seed(reg *repository.MemoryRegistry, token string, platform domain.Platform, loc domain.LocationHint, origin string) {
	reg.Upsert(domain.TokenRecord{Token: token, Platform: platform, OriginAddress: origin}.WithLocation(loc))
}

func newService(reg domain.TokenRepository, gw domain.PushGateway, archive domain.ReportArchiver) *domain.NotificationService {
	return domain.NewNotificationService(reg, gw, archive, nil, zap.NewNop(), domain.DispatchOptions{Concurrency: 4})
}

func tokens(recs []domain.TokenRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Token)
	}
	return out
}

func TestDispatch_ValidationError(t *testing.T) {
	svc := newService(repository.NewMemoryRegistry(), newFakeGateway(), nil)

	_, err := svc.Dispatch(context.Background(), domain.DispatchRequest{Body: "b"})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "title", verr.Field)
}

func TestDispatch_EmptyRegistry(t *testing.T) {
	svc := newService(repository.NewMemoryRegistry(), newFakeGateway(), nil)

	_, err := svc.Dispatch(context.Background(), domain.DispatchRequest{Title: "t", Body: "b"})
	assert.ErrorIs(t, err, domain.ErrNoTokensRegistered)
	assert.NotErrorIs(t, err, domain.ErrNoTargetsMatched)
}

func TestDispatch_FilterMatchesNothing(t *testing.T) {
	reg := repository.NewMemoryRegistry()
	seed(reg, "fr-1", domain.PlatformAndroid, country("FR"), "")
	gw := newFakeGateway()
	svc := newService(reg, gw, nil)

	_, err := svc.Dispatch(context.Background(), domain.DispatchRequest{Title: "t", Body: "b", Country: "JP"})
	assert.ErrorIs(t, err, domain.ErrNoTargetsMatched)
	assert.NotErrorIs(t, err, domain.ErrNoTokensRegistered)
	assert.Empty(t, gw.sentTo())
}

func TestDispatch_CountryFilterIsCaseInsensitive(t *testing.T) {
	reg := repository.NewMemoryRegistry()
	seed(reg, "us-1", domain.PlatformAndroid, country("US"), "")
	seed(reg, "us-2", domain.PlatformIOS, country("US"), "")
	seed(reg, "fr-1", domain.PlatformAndroid, country("FR"), "")
	gw := newFakeGateway()
	svc := newService(reg, gw, nil)

	for _, filter := range []string{"us", "US", "uS"} {
		res, err := svc.Dispatch(context.Background(), domain.DispatchRequest{Title: "t", Body: "b", Country: filter})
		require.NoError(t, err)
		assert.Equal(t, 2, res.Matched)
		assert.Equal(t, 3, res.TotalTokens)
		assert.Equal(t, 2, res.Successful)
		assert.Zero(t, res.Removed)
	}

	sent := gw.sentTo()
	assert.Contains(t, sent, "us-1")
	assert.Contains(t, sent, "us-2")
	assert.NotContains(t, sent, "fr-1")
	assert.Equal(t, []string{"us-1", "us-2", "fr-1"}, tokens(reg.List()))
}

func TestDispatch_OriginFilter(t *testing.T) {
	reg := repository.NewMemoryRegistry()
	seed(reg, "a", domain.PlatformAndroid, domain.Unresolved(), "203.0.113.10")
	seed(reg, "b", domain.PlatformAndroid, domain.Unresolved(), "198.51.100.2")
	gw := newFakeGateway()
	svc := newService(reg, gw, nil)

	res, err := svc.Dispatch(context.Background(), domain.DispatchRequest{Title: "t", Body: "b", OriginAddress: "203.0.113"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Matched)
	assert.Contains(t, gw.sentTo(), "a")
}

func TestDispatch_PermanentFailureEvicts(t *testing.T) {
	reg := repository.NewMemoryRegistry()
	seed(reg, "good-1", domain.PlatformAndroid, country("US"), "")
	seed(reg, "dead", domain.PlatformAndroid, country("US"), "")
	seed(reg, "good-2", domain.PlatformIOS, country("US"), "")

	gw := newFakeGateway()
	gw.failures["dead"] = fmt.Errorf("%w: requested entity was not found", domain.ErrPermanentToken)
	archive := &recordingArchive{}
	svc := newService(reg, gw, archive)

	res, err := svc.Dispatch(context.Background(), domain.DispatchRequest{Title: "t", Body: "b"})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Matched)
	assert.Equal(t, 2, res.Successful)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Removed)
	require.Len(t, res.Failures(), 1)
	assert.Equal(t, domain.DeliveryPermanent, res.Failures()[0].ErrorKind)
	assert.Equal(t, domain.Preview("dead"), res.Failures()[0].Token)
	for _, ok := range res.Successes() {
		assert.NotEmpty(t, ok.MessageID)
	}

	assert.Equal(t, []string{"good-1", "good-2"}, tokens(reg.List()))
	require.Len(t, archive.results, 1)
	assert.Equal(t, res.DispatchID, archive.results[0].DispatchID)
}

func TestDispatch_TransientFailureKeepsToken(t *testing.T) {
	reg := repository.NewMemoryRegistry()
	seed(reg, "flaky", domain.PlatformAndroid, domain.Unresolved(), "")
	gw := newFakeGateway()
	gw.failures["flaky"] = errors.New("service unavailable")
	svc := newService(reg, gw, &recordingArchive{err: errors.New("disk full")})

	res, err := svc.Dispatch(context.Background(), domain.DispatchRequest{Title: "t", Body: "b"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Zero(t, res.Removed)
	assert.Equal(t, domain.DeliveryTransient, res.Outcomes[0].ErrorKind)
	assert.Equal(t, 1, reg.Count())
}

func TestDispatch_ConcurrencyIsBounded(t *testing.T) {
	reg := repository.NewMemoryRegistry()
	for i := 0; i < 20; i++ {
		seed(reg, fmt.Sprintf("t-%02d", i), domain.PlatformAndroid, domain.Unresolved(), "")
	}
	gw := newFakeGateway()
	gw.delay = 5 * time.Millisecond
	svc := domain.NewNotificationService(reg, gw, nil, nil, zap.NewNop(), domain.DispatchOptions{Concurrency: 3})

	res, err := svc.Dispatch(context.Background(), domain.DispatchRequest{Title: "t", Body: "b"})
	require.NoError(t, err)
	assert.Equal(t, 20, res.Successful)
	assert.LessOrEqual(t, atomic.LoadInt32(&gw.maxSeen), int32(3))
	assert.Len(t, gw.sentTo(), 20)
}

func TestDispatch_SurvivesCallerCancellation(t *testing.T) {
	reg := repository.NewMemoryRegistry()
	seed(reg, "dead", domain.PlatformAndroid, domain.Unresolved(), "")
	gw := newFakeGateway()
	gw.failures["dead"] = domain.ErrPermanentToken
	svc := newService(reg, gw, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := svc.Dispatch(ctx, domain.DispatchRequest{Title: "t", Body: "b"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Removed)
	assert.Zero(t, reg.Count())
}

func TestDispatch_LimiterWaitIsBoundedBySendTimeout(t *testing.T) {
	reg := repository.NewMemoryRegistry()
	seed(reg, "paced-1", domain.PlatformAndroid, domain.Unresolved(), "")
	seed(reg, "paced-2", domain.PlatformAndroid, domain.Unresolved(), "")
	gw := newFakeGateway()
	// one token up front, the next one an hour later
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	svc := domain.NewNotificationService(reg, gw, nil, nil, zap.NewNop(), domain.DispatchOptions{
		Concurrency: 2,
		SendTimeout: 50 * time.Millisecond,
		Limiter:     limiter,
	})

	started := time.Now()
	res, err := svc.Dispatch(context.Background(), domain.DispatchRequest{Title: "t", Body: "b"})
	require.NoError(t, err)
	assert.Less(t, time.Since(started), 5*time.Second)
	assert.Equal(t, 1, res.Successful)
	assert.Equal(t, 1, res.Failed)
	assert.Zero(t, res.Removed)
	assert.Len(t, gw.sentTo(), 1)
	assert.Equal(t, 2, reg.Count())
	for _, o := range res.Outcomes {
		if !o.Success {
			assert.Equal(t, domain.DeliveryTransient, o.ErrorKind)
		}
	}
}

func TestDispatch_EncodesTextPerPlatform(t *testing.T) {
	reg := repository.NewMemoryRegistry()
	seed(reg, "android", domain.PlatformAndroid, domain.Unresolved(), "")
	seed(reg, "ios", domain.PlatformIOS, domain.Unresolved(), "")
	gw := newFakeGateway()
	svc := newService(reg, gw, nil)

	title, body := "Año nuevo 🎆", "Descuento del 20% ✨"
	_, err := svc.Dispatch(context.Background(), domain.DispatchRequest{
		Title: title,
		Body:  body,
		Data:  map[string]string{"orderId": "7", domain.DataKeyBody: "spoof"},
	})
	require.NoError(t, err)

	sent := gw.sentTo()
	for _, tok := range []string{"android", "ios"} {
		msg := sent[tok]
		require.NotNil(t, msg, tok)
		assert.Equal(t, domain.EncodingBase64URL, msg.Data[domain.DataKeyEncoding])
		gotTitle, err := domain.DecodeText(msg.Data[domain.DataKeyTitle])
		require.NoError(t, err)
		assert.Equal(t, title, gotTitle)
		gotBody, err := domain.DecodeText(msg.Data[domain.DataKeyBody])
		require.NoError(t, err)
		assert.Equal(t, body, gotBody)
		assert.Equal(t, "7", msg.Data["orderId"])
	}
	assert.Nil(t, sent["android"].Alert)
	require.NotNil(t, sent["ios"].Alert)
	assert.Equal(t, title, sent["ios"].Alert.Title)
}

func TestRunSmokeTest(t *testing.T) {
	svc := newService(repository.NewMemoryRegistry(), newFakeGateway(), nil)
	_, err := svc.RunSmokeTest(context.Background(), "simple")
	assert.ErrorIs(t, err, domain.ErrNoTokensRegistered)

	reg := repository.NewMemoryRegistry()
	seed(reg, "a", domain.PlatformAndroid, country("US"), "")
	seed(reg, "b", domain.PlatformAndroid, country("FR"), "")
	gw := newFakeGateway()
	gw.failures["b"] = domain.ErrPermanentToken
	svc = newService(reg, gw, nil)

	res, err := svc.RunSmokeTest(context.Background(), "compatibility")
	require.NoError(t, err)
	assert.Equal(t, domain.DispatchTest, res.Kind)
	assert.Equal(t, domain.SmokeCompatibility, res.TestType)
	assert.Equal(t, 2, res.Matched)
	assert.Equal(t, 1, res.Removed)
	assert.Equal(t, "test_channel", gw.sentTo()["a"].Data[domain.DataKeyChannelID])
	assert.Equal(t, domain.PriorityHigh, gw.sentTo()["a"].Priority)
}

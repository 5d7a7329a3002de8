package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gst3d/pushserver/internal/domain"
	"go.uber.org/zap"
)

const (
	DefaultLookupURL = "http://ip-api.com/json"
	lookupFields     = "status,message,country,countryCode,region,regionName,city,lat,lon"
	maxResponseBytes = 64 << 10
)

// Edge hints that mean "country unknown"
var unknownEdgeCodes = map[string]struct{}{
	"":   {},
	"XX": {},
	"T1": {},
}

// lookupResponse is the remote service payload
type lookupResponse struct {
	Status      string   `json:"status"`
	Message     string   `json:"message"`
	Country     string   `json:"country"`
	CountryCode string   `json:"countryCode"`
	Region      string   `json:"region"`
	RegionName  string   `json:"regionName"`
	City        string   `json:"city"`
	Lat         *float64 `json:"lat"`
	Lon         *float64 `json:"lon"`
}

// Resolver implements domain.LocationResolver with an edge-header fast path
// and a remote HTTP lookup fallback
type Resolver struct {
	client  *http.Client
	baseURL string
	timeout time.Duration
	logger  *zap.Logger
}

// NewResolver creates a resolver. The timeout bounds each remote lookup.
func NewResolver(baseURL string, timeout time.Duration, logger *zap.Logger) *Resolver {
	if baseURL == "" {
		baseURL = DefaultLookupURL
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Resolver{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		logger:  logger,
	}
}

// Resolve never returns an error: every failure collapses to an unresolved hint
func (r *Resolver) Resolve(ctx context.Context, originAddress, edgeCountryHint string) domain.LocationHint {
	if code := strings.ToUpper(strings.TrimSpace(edgeCountryHint)); !isUnknownEdgeCode(code) {
		return domain.LocationHint{
			Country:     &code,
			CountryName: &code,
			ResolvedBy:  domain.ResolvedByEdgeHeader,
		}
	}

	ip := net.ParseIP(strings.TrimSpace(originAddress))
	if !isLookupCandidate(ip) {
		return domain.Unresolved()
	}

	hint, err := r.lookup(ctx, ip.String())
	if err != nil {
		r.logger.Debug("geolocation lookup failed", zap.String("ip", ip.String()), zap.Error(err))
		return domain.Unresolved()
	}
	return hint
}

func (r *Resolver) lookup(ctx context.Context, ip string) (domain.LocationHint, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/%s?fields=%s", r.baseURL, url.PathEscape(ip), lookupFields)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.LocationHint{}, fmt.Errorf("failed to build lookup request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return domain.LocationHint{}, fmt.Errorf("lookup request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.LocationHint{}, fmt.Errorf("lookup returned status %d", resp.StatusCode)
	}

	var body lookupResponse
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes))
	if err := dec.Decode(&body); err != nil {
		return domain.LocationHint{}, fmt.Errorf("failed to decode lookup response: %w", err)
	}
	if body.Status != "success" {
		return domain.LocationHint{}, fmt.Errorf("lookup failed: %s", body.Message)
	}

	hint := domain.LocationHint{
		Country:     nonEmpty(body.CountryCode),
		CountryName: nonEmpty(body.Country),
		Region:      nonEmpty(body.RegionName),
		City:        nonEmpty(body.City),
		Latitude:    body.Lat,
		Longitude:   body.Lon,
		ResolvedBy:  domain.ResolvedByRemoteLookup,
	}
	if hint.Region == nil {
		hint.Region = nonEmpty(body.Region)
	}
	if hint.Country == nil {
		return domain.LocationHint{}, fmt.Errorf("lookup response has no country")
	}
	return hint, nil
}

func isUnknownEdgeCode(code string) bool {
	_, ok := unknownEdgeCodes[code]
	return ok
}

// isLookupCandidate rejects addresses a public geolocation service cannot place
func isLookupCandidate(ip net.IP) bool {
	if ip == nil {
		return false
	}
	return !ip.IsLoopback() &&
		!ip.IsLinkLocalUnicast() &&
		!ip.IsLinkLocalMulticast() &&
		!ip.IsPrivate() &&
		!ip.IsUnspecified()
}

func nonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

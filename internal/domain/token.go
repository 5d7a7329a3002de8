package domain

import (
	"strings"
	"time"
)

// Platform identifies the client platform family that issued a push token
type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
	PlatformUnknown Platform = "unknown"
)

// ParsePlatform normalizes a caller-supplied platform. An empty value defaults to android.
func ParsePlatform(s string) Platform {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return PlatformAndroid
	case "android":
		return PlatformAndroid
	case "ios":
		return PlatformIOS
	default:
		return PlatformUnknown
	}
}

// ResolvedBy records which geolocation path produced a LocationHint
type ResolvedBy string

const (
	ResolvedByEdgeHeader   ResolvedBy = "edge-header"
	ResolvedByRemoteLookup ResolvedBy = "remote-lookup"
	ResolvedByUnresolved   ResolvedBy = "unresolved"
)

// LocationHint is the result of resolving a network origin to a coarse location.
// Nil fields mean the value is unknown.
type LocationHint struct {
	Country     *string    `json:"country"`
	CountryName *string    `json:"countryName"`
	Region      *string    `json:"region"`
	City        *string    `json:"city"`
	Latitude    *float64   `json:"latitude"`
	Longitude   *float64   `json:"longitude"`
	ResolvedBy  ResolvedBy `json:"resolvedBy"`
}

// Unresolved returns an empty hint
func Unresolved() LocationHint {
	return LocationHint{ResolvedBy: ResolvedByUnresolved}
}

// IsResolved reports whether any location data is present
func (h LocationHint) IsResolved() bool {
	return h.ResolvedBy != ResolvedByUnresolved && h.ResolvedBy != ""
}

// TokenRecord is the registry entry for one device token
type TokenRecord struct {
	Token           string     `json:"token"`
	Platform        Platform   `json:"platform"`
	RegisteredAt    time.Time  `json:"registeredAt"`
	LastSeen        time.Time  `json:"lastSeen"`
	ClientTimestamp string     `json:"clientTimestamp,omitempty"`
	Source          string     `json:"source"`
	CustomerID      *string    `json:"customerId"`
	Email           *string    `json:"email"`
	Country         *string    `json:"country"`
	CountryName     *string    `json:"countryName"`
	Region          *string    `json:"region"`
	City            *string    `json:"city"`
	Latitude        *float64   `json:"latitude"`
	Longitude       *float64   `json:"longitude"`
	LocatedBy       ResolvedBy `json:"locatedBy"`
	OriginAddress   string     `json:"originAddress"`
}

// Location returns the location fields of the record as a hint
func (r TokenRecord) Location() LocationHint {
	by := r.LocatedBy
	if by == "" {
		by = ResolvedByUnresolved
	}
	return LocationHint{
		Country:     r.Country,
		CountryName: r.CountryName,
		Region:      r.Region,
		City:        r.City,
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
		ResolvedBy:  by,
	}
}

// WithLocation copies a resolved hint into the record's location fields
func (r TokenRecord) WithLocation(h LocationHint) TokenRecord {
	r.Country = h.Country
	r.CountryName = h.CountryName
	r.Region = h.Region
	r.City = h.City
	r.Latitude = h.Latitude
	r.Longitude = h.Longitude
	r.LocatedBy = h.ResolvedBy
	return r
}

// Merge applies a re-registration on top of an existing record.
//
// Every caller-controlled field is replaced by the candidate's value.
// RegisteredAt stays at first registration and LastSeen becomes now.
// Location fields move as one group and only when the candidate carries a
// resolved location, so a failed lookup never erases an earlier result.
func (r TokenRecord) Merge(candidate TokenRecord, now time.Time) TokenRecord {
	merged := candidate
	merged.RegisteredAt = r.RegisteredAt
	merged.LastSeen = now
	if !candidate.Location().IsResolved() {
		merged = merged.WithLocation(r.Location())
	}
	return merged
}

// MatchesCountry reports whether the record's country equals code, ignoring case
func (r TokenRecord) MatchesCountry(code string) bool {
	return r.Country != nil && strings.EqualFold(*r.Country, code)
}

// MatchesOrigin reports whether the record's origin address equals or contains addr
func (r TokenRecord) MatchesOrigin(addr string) bool {
	if r.OriginAddress == "" {
		return false
	}
	return r.OriginAddress == addr || strings.Contains(r.OriginAddress, addr)
}

const previewLength = 20

// Preview truncates a token for display and logging
func Preview(token string) string {
	if len(token) > previewLength {
		token = token[:previewLength]
	}
	return token + "..."
}

// AuditAction is the kind of registry change recorded in the audit log
type AuditAction string

const (
	AuditRegistered AuditAction = "registered"
	AuditUpdated    AuditAction = "updated"
)

// AuditLogEntry is one append-only audit record
type AuditLogEntry struct {
	Action    AuditAction `json:"action"`
	Token     string      `json:"token"`
	Platform  Platform    `json:"platform"`
	Timestamp time.Time   `json:"timestamp"`
}

// TokenRepository is the in-memory token registry contract
type TokenRepository interface {
	// Upsert inserts or merges a record by token and reports whether it was new.
	Upsert(candidate TokenRecord) (TokenRecord, bool)
	List() []TokenRecord
	Filter(match func(TokenRecord) bool) []TokenRecord
	// Evict removes every record whose token is in the set and returns the removed count.
	Evict(tokens map[string]struct{}) int
	Count() int
}

// AuditRepository is the bounded audit log contract
type AuditRepository interface {
	Append(entry AuditLogEntry)
	Recent(n int) []AuditLogEntry
	Len() int
}

// AuditPublisher receives audit entries after they are appended
type AuditPublisher interface {
	Publish(entry AuditLogEntry)
}

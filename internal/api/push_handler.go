package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gst3d/pushserver/internal/domain"
	"github.com/gst3d/pushserver/internal/middleware"
	"github.com/gst3d/pushserver/pkg/response"
	"github.com/gst3d/pushserver/pkg/validator"
)

const (
	maxBodyBytes     = 1 << 20
	defaultLogLimit  = 20
	maxLogLimit      = 100
	infoAuditEntries = 10

	maxSourceBytes     = 128
	maxCustomerIDBytes = 256
	maxEmailBytes      = 320
)

// PushHandler serves token registration, listing, dispatch and audit endpoints
type PushHandler struct {
	registrations *domain.RegistrationService
	notifications *domain.NotificationService
	registry      domain.TokenRepository
	audit         domain.AuditRepository
	edgeHeader    string
	logger        *zap.Logger
}

func NewPushHandler(
	registrations *domain.RegistrationService,
	notifications *domain.NotificationService,
	registry domain.TokenRepository,
	audit domain.AuditRepository,
	edgeHeader string,
	logger *zap.Logger,
) *PushHandler {
	return &PushHandler{
		registrations: registrations,
		notifications: notifications,
		registry:      registry,
		audit:         audit,
		edgeHeader:    edgeHeader,
		logger:        logger,
	}
}

type registerTokenRequest struct {
	Token      string `json:"token" validate:"required,max=4096"`
	Platform   string `json:"platform" validate:"max=32"`
	Source     string `json:"source" validate:"max=128"`
	CustomerID string `json:"customerId" validate:"max=256"`
	Email      string `json:"email" validate:"max=320"`
	Timestamp  string `json:"timestamp" validate:"max=64"`
}

type registerTokenResponse struct {
	Message      string            `json:"message"`
	Token        string            `json:"token"`
	Platform     domain.Platform   `json:"platform"`
	RegisteredAt time.Time         `json:"registeredAt"`
	IsNew        bool              `json:"isNew"`
	Country      string            `json:"country"`
	CountryName  string            `json:"countryName"`
	City         string            `json:"city"`
	ResolvedBy   domain.ResolvedBy `json:"resolvedBy"`
}

// RegisterToken handles POST /api/push/token
func (h *PushHandler) RegisterToken(w http.ResponseWriter, r *http.Request) {
	var req registerTokenRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	reg, err := h.registrations.Register(r.Context(), domain.RegisterRequest{
		Token:           req.Token,
		Platform:        req.Platform,
		Source:          validator.SanitizeString(req.Source, maxSourceBytes),
		CustomerID:      validator.SanitizeString(req.CustomerID, maxCustomerIDBytes),
		Email:           validator.SanitizeString(req.Email, maxEmailBytes),
		Timestamp:       req.Timestamp,
		OriginAddress:   middleware.ClientIP(r),
		EdgeCountryHint: r.Header.Get(h.edgeHeader),
	})
	if err != nil {
		h.writeError(w, err, "failed to register token")
		return
	}

	rec := reg.Record
	response.OK(w, registerTokenResponse{
		Message:      "Token registered successfully",
		Token:        domain.Preview(rec.Token),
		Platform:     rec.Platform,
		RegisteredAt: rec.RegisteredAt,
		IsNew:        reg.WasNew,
		Country:      valueOr(rec.Country, "UNKNOWN"),
		CountryName:  valueOr(rec.CountryName, "Unknown"),
		City:         valueOr(rec.City, "Unknown"),
		ResolvedBy:   rec.Location().ResolvedBy,
	})
}

// ListTokens handles GET /api/push/tokens
func (h *PushHandler) ListTokens(w http.ResponseWriter, r *http.Request) {
	records := h.registry.List()
	tokens := make([]string, 0, len(records))
	for _, rec := range records {
		tokens = append(tokens, rec.Token)
	}
	response.OK(w, map[string]interface{}{
		"count":       len(tokens),
		"tokens":      tokens,
		"lastUpdated": time.Now().UTC(),
	})
}

type tokenInfo struct {
	Token         string            `json:"token"`
	Platform      domain.Platform   `json:"platform"`
	Source        string            `json:"source"`
	CustomerID    *string           `json:"customerId"`
	Email         *string           `json:"email"`
	RegisteredAt  time.Time         `json:"registeredAt"`
	LastSeen      time.Time         `json:"lastSeen"`
	Country       *string           `json:"country"`
	CountryName   *string           `json:"countryName"`
	Region        *string           `json:"region"`
	City          *string           `json:"city"`
	Latitude      *float64          `json:"latitude"`
	Longitude     *float64          `json:"longitude"`
	LocatedBy     domain.ResolvedBy `json:"locatedBy"`
	OriginAddress string            `json:"originAddress"`
}

// TokenInfo handles GET /api/push/tokens/info
func (h *PushHandler) TokenInfo(w http.ResponseWriter, r *http.Request) {
	records := h.registry.List()
	infos := make([]tokenInfo, 0, len(records))
	for _, rec := range records {
		infos = append(infos, tokenInfo{
			Token:         domain.Preview(rec.Token),
			Platform:      rec.Platform,
			Source:        rec.Source,
			CustomerID:    rec.CustomerID,
			Email:         rec.Email,
			RegisteredAt:  rec.RegisteredAt,
			LastSeen:      rec.LastSeen,
			Country:       rec.Country,
			CountryName:   rec.CountryName,
			Region:        rec.Region,
			City:          rec.City,
			Latitude:      rec.Latitude,
			Longitude:     rec.Longitude,
			LocatedBy:     rec.LocatedBy,
			OriginAddress: rec.OriginAddress,
		})
	}
	response.OK(w, map[string]interface{}{
		"count":       len(infos),
		"tokens":      infos,
		"logs":        h.audit.Recent(infoAuditEntries),
		"lastUpdated": time.Now().UTC(),
	})
}

type sendRequest struct {
	Title            string                 `json:"title" validate:"required,max=1024"`
	Body             string                 `json:"body" validate:"required,max=4096"`
	Data             map[string]interface{} `json:"data"`
	ImageURL         string                 `json:"imageUrl" validate:"omitempty,url,max=2048"`
	Priority         string                 `json:"priority" validate:"omitempty,oneof=normal high"`
	Country          string                 `json:"country" validate:"max=64"`
	CountryCode      string                 `json:"countryCode" validate:"max=8"`
	OriginAddress    string                 `json:"originAddress" validate:"max=64"`
	AndroidChannelID string                 `json:"androidChannelId" validate:"max=128"`
	ClickAction      string                 `json:"clickAction" validate:"max=256"`
}

// Send handles POST /api/push/send
func (h *PushHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	result, err := h.notifications.Dispatch(r.Context(), domain.DispatchRequest{
		Title:            req.Title,
		Body:             req.Body,
		Data:             stringifyData(req.Data),
		ImageURL:         req.ImageURL,
		Priority:         domain.Priority(req.Priority),
		Country:          req.Country,
		CountryCode:      req.CountryCode,
		OriginAddress:    req.OriginAddress,
		AndroidChannelID: req.AndroidChannelID,
		ClickAction:      req.ClickAction,
	})
	if err != nil {
		h.writeError(w, err, "failed to send notifications")
		return
	}
	response.OK(w, newDispatchResponse("Notification sending completed", result))
}

type smokeTestRequest struct {
	TestType string `json:"testType" validate:"max=32"`
}

// Test handles POST /api/push/test
func (h *PushHandler) Test(w http.ResponseWriter, r *http.Request) {
	var req smokeTestRequest
	if !h.decode(w, r, &req, true) {
		return
	}

	result, err := h.notifications.RunSmokeTest(r.Context(), req.TestType)
	if err != nil {
		h.writeError(w, err, "failed to send test notifications")
		return
	}
	response.OK(w, newDispatchResponse("Test notification sending completed", result))
}

// Logs handles GET /api/logs
func (h *PushHandler) Logs(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxLogLimit)
	}

	response.OK(w, map[string]interface{}{
		"logs":      h.audit.Recent(limit),
		"totalLogs": h.audit.Len(),
		"timestamp": time.Now().UTC(),
	})
}

type dispatchSummary struct {
	TotalTokens int `json:"totalTokens"`
	Matched     int `json:"matched"`
	Successful  int `json:"successful"`
	Failed      int `json:"failed"`
	Removed     int `json:"removed"`
}

type dispatchResponse struct {
	DispatchID  string                 `json:"dispatchId"`
	Message     string                 `json:"message"`
	TestType    string                 `json:"testType,omitempty"`
	Summary     dispatchSummary        `json:"summary"`
	Results     []domain.TargetOutcome `json:"results"`
	Errors      []domain.TargetOutcome `json:"errors"`
	DroppedKeys []string               `json:"droppedKeys,omitempty"`
}

func newDispatchResponse(message string, res *domain.DispatchResult) dispatchResponse {
	return dispatchResponse{
		DispatchID: res.DispatchID,
		Message:    message,
		TestType:   res.TestType,
		Summary: dispatchSummary{
			TotalTokens: res.TotalTokens,
			Matched:     res.Matched,
			Successful:  res.Successful,
			Failed:      res.Failed,
			Removed:     res.Removed,
		},
		Results:     res.Successes(),
		Errors:      res.Failures(),
		DroppedKeys: res.DroppedKeys,
	}
}

// decode reads a JSON body and validates it. An empty body is accepted when allowEmpty is set.
func (h *PushHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}, allowEmpty bool) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
	if err != nil && !(allowEmpty && errors.Is(err, io.EOF)) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(w, http.StatusRequestEntityTooLarge, response.CodeBadRequest, "request body too large")
			return false
		}
		response.BadRequest(w, "invalid request body")
		return false
	}
	if err := validator.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			response.ErrorWithData(w, http.StatusBadRequest, response.CodeBadRequest, ve.Error(), ve)
			return false
		}
		h.logger.Error("request validation failed", zap.Error(err))
		response.InternalError(w, "failed to validate request")
		return false
	}
	return true
}

func (h *PushHandler) writeError(w http.ResponseWriter, err error, fallback string) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		response.BadRequest(w, verr.Error())
	case errors.Is(err, domain.ErrNoTokensRegistered):
		response.ErrorWithData(w, http.StatusNotFound, response.CodeNoTokensRegistered,
			"No devices have registered their FCM tokens yet",
			map[string]string{"hint": "Use POST /api/push/token to register a device token"})
	case errors.Is(err, domain.ErrNoTargetsMatched):
		response.Error(w, http.StatusNotFound, response.CodeNoTargetsMatched, err.Error())
	default:
		h.logger.Error(fallback, zap.Error(err))
		response.InternalError(w, fallback)
	}
}

// stringifyData flattens caller data to the string map the gateway requires.
// Strings pass through; other JSON values are re-encoded; nulls are dropped.
func stringifyData(in map[string]interface{}) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			out[k] = val
		default:
			b, err := json.Marshal(val)
			if err != nil {
				continue
			}
			out[k] = string(b)
		}
	}
	return out
}

func valueOr(p *string, fallback string) string {
	if p == nil || strings.TrimSpace(*p) == "" {
		return fallback
	}
	return *p
}

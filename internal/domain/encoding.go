package domain

import (
	"encoding/base64"
	"sort"
	"strings"
	"time"
)

// Text fields travel base64url-encoded (no padding) in the data payload. Android
// clients decode them locally because the notification payload path garbled
// non-ASCII text on some Android builds. iOS also receives the plain alert.
const (
	EncodingBase64URL = "base64url"

	DataKeyEncoding    = "encoding"
	DataKeyTitle       = "title_b64"
	DataKeyBody        = "body_b64"
	DataKeyTimestamp   = "timestamp"
	DataKeySource      = "source"
	DataKeyImageURL    = "image_url"
	DataKeyPriority    = "priority"
	DataKeyChannelID   = "android_channel_id"
	DataKeyClickAction = "click_action"

	dataSourceValue = "push_server"
)

var reservedDataKeys = map[string]struct{}{
	DataKeyEncoding:    {},
	DataKeyTitle:       {},
	DataKeyBody:        {},
	DataKeyTimestamp:   {},
	DataKeySource:      {},
	DataKeyImageURL:    {},
	DataKeyPriority:    {},
	DataKeyChannelID:   {},
	DataKeyClickAction: {},
	// rejected by FCM
	"from":         {},
	"notification": {},
	"message_type": {},
}

// IsReservedDataKey reports whether key is owned by the server or forbidden by the gateway
func IsReservedDataKey(key string) bool {
	if _, ok := reservedDataKeys[key]; ok {
		return true
	}
	lower := strings.ToLower(key)
	return strings.HasPrefix(lower, "google") || strings.HasPrefix(lower, "gcm")
}

// EncodeText encodes s as URL-safe base64 without padding
func EncodeText(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

// DecodeText reverses EncodeText
func DecodeText(s string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// BuildDataPayload merges caller data with the server-owned keys.
// Server keys win; caller keys that collide are dropped and returned sorted.
func BuildDataPayload(req DispatchRequest, now time.Time) (map[string]string, []string) {
	data := make(map[string]string, len(req.Data)+8)
	var dropped []string
	for k, v := range req.Data {
		if IsReservedDataKey(k) {
			dropped = append(dropped, k)
			continue
		}
		data[k] = v
	}
	sort.Strings(dropped)

	data[DataKeyEncoding] = EncodingBase64URL
	data[DataKeyTitle] = EncodeText(req.Title)
	data[DataKeyBody] = EncodeText(req.Body)
	data[DataKeyTimestamp] = now.UTC().Format(time.RFC3339)
	data[DataKeySource] = dataSourceValue
	data[DataKeyPriority] = string(effectivePriority(req.Priority))
	if req.ImageURL != "" {
		data[DataKeyImageURL] = req.ImageURL
	}
	if req.AndroidChannelID != "" {
		data[DataKeyChannelID] = req.AndroidChannelID
	}
	if req.ClickAction != "" {
		data[DataKeyClickAction] = req.ClickAction
	}
	return data, dropped
}

// BuildMessage renders the outbound message for one target.
// Only iOS gets the plain alert; every other platform is data-only.
func BuildMessage(target TokenRecord, req DispatchRequest, data map[string]string) *OutboundMessage {
	payload := make(map[string]string, len(data))
	for k, v := range data {
		payload[k] = v
	}
	msg := &OutboundMessage{
		Token:    target.Token,
		Platform: target.Platform,
		Data:     payload,
		ImageURL: req.ImageURL,
		Priority: effectivePriority(req.Priority),
	}
	if target.Platform == PlatformIOS {
		msg.Alert = &Alert{Title: req.Title, Body: req.Body}
	}
	return msg
}

func effectivePriority(p Priority) Priority {
	if p == "" {
		return PriorityNormal
	}
	return p
}

package domain

import (
	"strings"
	"time"
)

// Smoke test variant names
const (
	SmokeSimple        = "simple"
	SmokeCompatibility = "compatibility"
	SmokeFirebase      = "firebase"
	SmokeComplete      = "complete"
)

// SmokeTest returns the predefined request for a variant.
// Unknown or empty names fall back to the complete variant.
func SmokeTest(variant string, now time.Time) (string, DispatchRequest) {
	ts := now.UTC().Format(time.RFC3339)
	switch strings.ToLower(strings.TrimSpace(variant)) {
	case SmokeSimple:
		return SmokeSimple, DispatchRequest{
			Title: "🧪 Simple test",
			Body:  "Simple test notification from the push server",
			Data: map[string]string{
				"testType": SmokeSimple,
				"sentAt":   ts,
			},
		}
	case SmokeCompatibility:
		return SmokeCompatibility, DispatchRequest{
			Title:    "🔧 Compatibility test",
			Body:     "Checking delivery on Android 5.1 (API 22) and newer",
			Priority: PriorityHigh,
			Data: map[string]string{
				"testType":       SmokeCompatibility,
				"androidVersion": "API 22",
				"sentAt":         ts,
				"features":       "Firebase FCM + Wake Lock + Foreground Service",
			},
			AndroidChannelID: "test_channel",
		}
	case SmokeFirebase:
		return SmokeFirebase, DispatchRequest{
			Title: "🔥 Firebase FCM test",
			Body:  "Checking Firebase Cloud Messaging delivery",
			Data: map[string]string{
				"testType":        SmokeFirebase,
				"firebaseVersion": "21.2.0",
				"sentAt":          ts,
			},
		}
	default:
		return SmokeComplete, DispatchRequest{
			Title:    "✅ Complete test",
			Body:     "Full notification test - " + now.UTC().Format("15:04:05"),
			Priority: PriorityHigh,
			Data: map[string]string{
				"testType":        SmokeComplete,
				"androidVersion":  "API 22 (Android 5.1)",
				"firebaseVersion": "21.2.0",
				"sentAt":          ts,
				"features": strings.Join([]string{
					"Firebase FCM",
					"Wake Lock",
					"Foreground Service",
					"Notification Channels (8.0+)",
					"Battery Optimization Bypass",
				}, ", "),
			},
			AndroidChannelID: "default_channel",
			ClickAction:      "OPEN_APP",
		}
	}
}

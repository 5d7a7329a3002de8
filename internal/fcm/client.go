package fcm

import (
	"context"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/gst3d/pushserver/internal/domain"
)

// sender is the subset of *messaging.Client used here
type sender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// Client implements domain.PushGateway on top of Firebase Cloud Messaging
type Client struct {
	msgClient sender
	logger    *zap.Logger
}

func NewClient(ctx context.Context, logger *zap.Logger, credentialsFile, projectID string) (*Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	} else {
		logger.Warn("No Firebase credentials file provided. FCM will use application default credentials.")
	}

	var fbConfig *firebase.Config
	if projectID != "" {
		fbConfig = &firebase.Config{ProjectID: projectID}
	}

	return newAppClient(ctx, logger, fbConfig, opts...)
}

func newAppClient(ctx context.Context, logger *zap.Logger, fbConfig *firebase.Config, opts ...option.ClientOption) (*Client, error) {
	app, err := firebase.NewApp(ctx, fbConfig, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	msgClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	return newClient(msgClient, logger), nil
}

func newClient(s sender, logger *zap.Logger) *Client {
	return &Client{msgClient: s, logger: logger}
}

// Send delivers one message. Permanent token failures are wrapped with domain.ErrPermanentToken.
func (c *Client) Send(ctx context.Context, msg *domain.OutboundMessage) (string, error) {
	if msg == nil || msg.Token == "" {
		return "", fmt.Errorf("fcm: empty token")
	}

	id, err := c.msgClient.Send(ctx, toMessage(msg))
	if err != nil {
		c.logger.Debug("Failed to send FCM message",
			zap.String("token", domain.Preview(msg.Token)),
			zap.Error(err),
		)
		if IsPermanent(err) {
			return "", fmt.Errorf("%w: %v", domain.ErrPermanentToken, err)
		}
		return "", err
	}
	return id, nil
}

// IsPermanent reports whether an FCM error means the token can never receive messages again
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if messaging.IsUnregistered(err) || messaging.IsSenderIDMismatch(err) {
		return true
	}
	return messaging.IsInvalidArgument(err) &&
		strings.Contains(strings.ToLower(err.Error()), "registration token")
}

// toMessage renders the platform-specific FCM message.
// Android and unknown platforms get a data-only message so the client decodes the text itself.
// iOS additionally gets the plain alert through APNs.
func toMessage(msg *domain.OutboundMessage) *messaging.Message {
	m := &messaging.Message{
		Token: msg.Token,
		Data:  msg.Data,
	}

	high := msg.Priority == domain.PriorityHigh

	if msg.Platform == domain.PlatformIOS {
		apnsPriority := "5"
		if high {
			apnsPriority = "10"
		}
		aps := &messaging.Aps{
			Sound:          "default",
			MutableContent: msg.ImageURL != "",
		}
		if msg.Alert != nil {
			aps.Alert = &messaging.ApsAlert{
				Title: msg.Alert.Title,
				Body:  msg.Alert.Body,
			}
		} else {
			aps.ContentAvailable = true
		}
		m.APNS = &messaging.APNSConfig{
			Headers: map[string]string{"apns-priority": apnsPriority},
			Payload: &messaging.APNSPayload{Aps: aps},
		}
		if msg.ImageURL != "" {
			m.APNS.FCMOptions = &messaging.APNSFCMOptions{ImageURL: msg.ImageURL}
		}
		return m
	}

	androidPriority := "normal"
	if high {
		androidPriority = "high"
	}
	m.Android = &messaging.AndroidConfig{Priority: androidPriority}
	return m
}

// Unavailable is the gateway used when Firebase could not be initialized.
// Every send fails transiently so no token is evicted.
type Unavailable struct {
	Reason error
}

func (u Unavailable) Send(context.Context, *domain.OutboundMessage) (string, error) {
	if u.Reason != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, u.Reason)
	}
	return "", domain.ErrGatewayUnavailable
}

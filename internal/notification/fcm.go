package notification

import (
	"context"
	"fmt"
	"log"

	"coinPusherAPI/internal/types/notification"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
)

// FCM accepts at most 500 tokens per multicast request.
const multicastLimit = 500

type FCMService struct {
	client *messaging.Client
}

func NewFCMService(ctx context.Context, app *firebase.App) (*FCMService, error) {
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %v", err)
	}
	return &FCMService{client: client}, nil
}

// SendPush multicasts to every token and only fails when no message was delivered.
func (s *FCMService) SendPush(ctx context.Context, tokens []notification.DeviceToken, title, body string, data map[string]any) error {
	if len(tokens) == 0 {
		return nil
	}

	ids := make([]string, 0, len(tokens))
	for _, t := range tokens {
		ids = append(ids, t.Token)
	}

	stringData := make(map[string]string, len(data))
	for k, v := range data {
		stringData[k] = fmt.Sprintf("%v", v)
	}

	successCount, failureCount := 0, 0
	for start := 0; start < len(ids); start += multicastLimit {
		batch := ids[start:min(start+multicastLimit, len(ids))]

		resp, err := s.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
			Tokens: batch,
			Notification: &messaging.Notification{
				Title: title,
				Body:  body,
			},
			Data: stringData,
			Android: &messaging.AndroidConfig{
				Priority: "high",
				Notification: &messaging.AndroidNotification{
					Sound: "default",
				},
			},
			APNS: &messaging.APNSConfig{
				Payload: &messaging.APNSPayload{
					Aps: &messaging.Aps{Sound: "default"},
				},
			},
		})
		if err != nil {
			log.Printf("FCM: multicast of %d messages failed: %v", len(batch), err)
			failureCount += len(batch)
			continue
		}

		for i, r := range resp.Responses {
			if r.Error != nil {
				log.Printf("FCM: Failed to send to token %s: %v", batch[i], r.Error)
			}
		}
		successCount += resp.SuccessCount
		failureCount += resp.FailureCount
	}

	log.Printf("FCM: Sent %d messages, %d failed", successCount, failureCount)

	if successCount == 0 && failureCount > 0 {
		return fmt.Errorf("all push notifications failed")
	}
	return nil
}

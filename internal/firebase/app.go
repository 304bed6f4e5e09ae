// Package firebase builds the shared firebase.App used by Firestore, Firebase
// Auth and Cloud Messaging.
package firebase

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"os"

	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
)

type Credentials struct {
	ProjectID string
	// EncodedJSON is a base64 service account; it wins over File.
	EncodedJSON string
	File        string
}

func (c Credentials) clientOption() (option.ClientOption, error) {
	if c.EncodedJSON != "" {
		decoded, err := base64.StdEncoding.DecodeString(c.EncodedJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 firebase credentials: %v", err)
		}
		log.Println("Firebase: Initializing from FCM_SERVICE_ACCOUNT_JSON environment variable.")
		return option.WithCredentialsJSON(decoded), nil
	}

	if _, err := os.Stat(c.File); os.IsNotExist(err) {
		return nil, fmt.Errorf("local firebase file not found: %s, and FCM_SERVICE_ACCOUNT_JSON environment variable is not set", c.File)
	}
	log.Printf("Firebase: Initializing from local file: %s.", c.File)
	return option.WithCredentialsFile(c.File), nil
}

func NewApp(ctx context.Context, creds Credentials) (*firebase.App, error) {
	opt, err := creds.clientOption()
	if err != nil {
		return nil, err
	}

	var cfg *firebase.Config
	if creds.ProjectID != "" {
		cfg = &firebase.Config{ProjectID: creds.ProjectID}
	}

	app, err := firebase.NewApp(ctx, cfg, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %v", err)
	}
	return app, nil
}

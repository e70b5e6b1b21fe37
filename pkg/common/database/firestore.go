package database

import (
	"context"
	"errors"
	"fmt"
	"os"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"github.com/synaptica-ai/medsplit/pkg/common/config"
	"github.com/synaptica-ai/medsplit/pkg/common/logger"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

const datastoreScope = "https://www.googleapis.com/auth/datastore"

// ErrFirestoreNotConfigured means neither a key file nor application default
// credentials were found.
var ErrFirestoreNotConfigured = errors.New("firestore credentials not configured")

// NewFirestore initialises a Firebase app and returns its Firestore client.
// A key file at cfg.FirebaseCredentialsFile wins; otherwise application
// default credentials are used.
func NewFirestore(ctx context.Context, cfg *config.Config) (*firestore.Client, error) {
	var opts []option.ClientOption
	if _, err := os.Stat(cfg.FirebaseCredentialsFile); err == nil {
		opts = append(opts, option.WithCredentialsFile(cfg.FirebaseCredentialsFile))
	} else {
		creds, err := google.FindDefaultCredentials(ctx, datastoreScope)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFirestoreNotConfigured, err)
		}
		opts = append(opts, option.WithCredentials(creds))
	}

	var fbConfig *firebase.Config
	if cfg.FirebaseProjectID != "" {
		fbConfig = &firebase.Config{ProjectID: cfg.FirebaseProjectID}
	}

	app, err := firebase.NewApp(ctx, fbConfig, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firestore client: %w", err)
	}
	logger.Log.WithField("collection", cfg.ClinicalCollection).Info("connected to Firestore")
	return client, nil
}

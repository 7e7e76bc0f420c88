package storage

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/dgellow/grant-intake/internal/log"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var _ Store = (*FirestoreStore)(nil)

// FirestoreStore keeps one document per key in a single collection.
//
// Keys are used as document IDs, so they must not contain '/'. Scoped keys
// are dotted and satisfy that.
type FirestoreStore struct {
	client     *firestore.Client
	projectID  string
	collection string
}

// FirestoreConfig configures NewFirestoreStore.
type FirestoreConfig struct {
	ProjectID       string
	Database        string
	Collection      string
	CredentialsFile string
}

// entryDoc is the document shape stored in Firestore
type entryDoc struct {
	Value     string    `firestore:"value"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

// NewFirestoreStore creates a new Firestore-backed store
func NewFirestoreStore(ctx context.Context, cfg FirestoreConfig) (*FirestoreStore, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("collection is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	var client *firestore.Client
	var err error

	// Firestore client with custom database
	if cfg.Database != "" && cfg.Database != "(default)" {
		client, err = firestore.NewClientWithDatabase(ctx, cfg.ProjectID, cfg.Database, opts...)
	} else {
		client, err = firestore.NewClient(ctx, cfg.ProjectID, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	log.LogInfoWithFields("storage", "Firestore store ready", map[string]any{
		"project":    cfg.ProjectID,
		"database":   cfg.Database,
		"collection": cfg.Collection,
	})

	return &FirestoreStore{
		client:     client,
		projectID:  cfg.ProjectID,
		collection: cfg.Collection,
	}, nil
}

func (s *FirestoreStore) Get(ctx context.Context, key string) (string, error) {
	doc, err := s.client.Collection(s.collection).Doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: failed to get %s from Firestore: %v", ErrUnavailable, key, err)
	}

	var entry entryDoc
	if err := doc.DataTo(&entry); err != nil {
		return "", fmt.Errorf("failed to unmarshal entry: %w", err)
	}
	return entry.Value, nil
}

func (s *FirestoreStore) Set(ctx context.Context, key, value string) error {
	entry := entryDoc{
		Value:     value,
		UpdatedAt: time.Now(),
	}
	if _, err := s.client.Collection(s.collection).Doc(key).Set(ctx, entry); err != nil {
		if status.Code(err) == codes.ResourceExhausted {
			return ErrQuotaExceeded
		}
		return fmt.Errorf("%w: failed to set %s in Firestore: %v", ErrUnavailable, key, err)
	}
	return nil
}

func (s *FirestoreStore) Remove(ctx context.Context, key string) error {
	_, err := s.client.Collection(s.collection).Doc(key).Delete(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("%w: failed to delete %s from Firestore: %v", ErrUnavailable, key, err)
	}
	return nil
}

// Close closes the Firestore client
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GCPConfig selects a sync server backed by a Google Cloud Storage bucket.
// No server process is involved; replicas coordinate through conditional
// object writes.
type GCPConfig struct {
	// Bucket must already exist.
	Bucket string

	// CredentialPath points at a service-account JSON key. Empty falls
	// back to application default credentials.
	CredentialPath string

	// EncryptionSecret seals every object end to end.
	EncryptionSecret string
}

// NewServer implements Config.
func (c GCPConfig) NewServer(ctx context.Context, logger *log.Logger) (Server, error) {
	if c.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	var opts []option.ClientOption
	if c.CredentialPath != "" {
		opts = append(opts, option.WithCredentialsFile(c.CredentialPath))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	store := &gcsStore{client: client, bucket: client.Bucket(c.Bucket)}
	return newCloudServer(store, c.EncryptionSecret, logger)
}

type gcsStore struct {
	client *gcs.Client
	bucket *gcs.BucketHandle
}

func (s *gcsStore) get(ctx context.Context, name string) ([]byte, bool, error) {
	r, err := s.bucket.Object(name).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read object %s: %w", name, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read object %s: %w", name, err)
	}
	return data, true, nil
}

func (s *gcsStore) put(ctx context.Context, name string, data []byte) error {
	w := s.bucket.Object(name).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write object %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to write object %s: %w", name, err)
	}
	return nil
}

func (s *gcsStore) putIfAbsent(ctx context.Context, name string, data []byte) (bool, error) {
	obj := s.bucket.Object(name).If(gcs.Conditions{DoesNotExist: true})
	w := obj.NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return false, fmt.Errorf("failed to write object %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
			return false, nil
		}
		return false, fmt.Errorf("failed to write object %s: %w", name, err)
	}
	return true, nil
}

func (s *gcsStore) close() error { return s.client.Close() }

// Package firestore persists sync state in Cloud Firestore: per-account
// watermarks for deployments where the destination's notes field is not a
// suitable channel, and a bounded history of sync runs for the status
// endpoint.
package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rumor-ml/commons.systems/ledgersync/internal/engine"
	"github.com/rumor-ml/commons.systems/ledgersync/internal/watermark"
)

const (
	watermarkCollection = "ledgersync-watermarks"
	runCollection       = "ledgersync-runs"
)

// Client wraps the Firestore client with sync-state operations.
type Client struct {
	Firestore *firestore.Client
	projectID string
}

// NewClient creates a Firestore client for the given project. With an empty
// credentialsFile, Application Default Credentials are used.
func NewClient(ctx context.Context, projectID, credentialsFile string) (*Client, error) {
	conf := &firebase.Config{ProjectID: projectID}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	firestoreClient, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return &Client{
		Firestore: firestoreClient,
		projectID: projectID,
	}, nil
}

// Close closes the Firestore client.
func (c *Client) Close() error {
	return c.Firestore.Close()
}

// watermarkDoc is the persisted resume position for one source account.
type watermarkDoc struct {
	AccountID         string    `firestore:"accountId"`
	LastTransactionID string    `firestore:"lastTransactionId"`
	UpdatedAt         time.Time `firestore:"updatedAt"`
}

// WatermarkStore implements watermark.Store on a Firestore collection with
// one document per source account.
type WatermarkStore struct {
	client *Client
}

// NewWatermarkStore creates a store backed by the given client.
func NewWatermarkStore(client *Client) *WatermarkStore {
	return &WatermarkStore{client: client}
}

// Position loads the resume position for an account. A missing document
// means the account has never been synced.
func (s *WatermarkStore) Position(ctx context.Context, accountID string) (watermark.Position, error) {
	snap, err := s.client.Firestore.Collection(watermarkCollection).Doc(accountID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return watermark.NeverSynced(), nil
	}
	if err != nil {
		return watermark.Position{}, fmt.Errorf("loading watermark for %s: %w", accountID, err)
	}

	var doc watermarkDoc
	if err := snap.DataTo(&doc); err != nil {
		return watermark.Position{}, fmt.Errorf("failed to parse watermark for %s: %w", accountID, err)
	}
	if doc.LastTransactionID == "" {
		return watermark.NeverSynced(), nil
	}
	return watermark.Resuming(doc.LastTransactionID), nil
}

// Advance records txID as the newest synced transaction for the account.
func (s *WatermarkStore) Advance(ctx context.Context, accountID, txID string) error {
	_, err := s.client.Firestore.Collection(watermarkCollection).Doc(accountID).Set(ctx, watermarkDoc{
		AccountID:         accountID,
		LastTransactionID: txID,
		UpdatedAt:         time.Now(),
	})
	if err != nil {
		return fmt.Errorf("advancing watermark for %s: %w", accountID, err)
	}
	return nil
}

// RunStatus is the outcome of one sync pass.
type RunStatus string

const (
	RunStatusCompleted RunStatus = "completed"
	RunStatusError     RunStatus = "error"
	RunStatusHalted    RunStatus = "halted"
)

var validRunStatuses = map[RunStatus]bool{
	RunStatusCompleted: true,
	RunStatusError:     true,
	RunStatusHalted:    true,
}

// RunRecord is one sync pass as persisted for the status history. The json
// tags shape the /runs endpoint response.
type RunRecord struct {
	ID        string        `firestore:"id" json:"id"`
	Status    RunStatus     `firestore:"status" json:"status"`
	Report    engine.Report `firestore:"report" json:"report"`
	Error     string        `firestore:"error,omitempty" json:"error,omitempty"`
	CreatedAt time.Time     `firestore:"createdAt" json:"createdAt"`
}

// Validate checks if the RunRecord has valid data.
func (r *RunRecord) Validate() error {
	if !validRunStatuses[r.Status] {
		return fmt.Errorf("invalid status: %s", r.Status)
	}
	return nil
}

// RecordRun persists one sync pass. An id is assigned when missing.
func (c *Client) RecordRun(ctx context.Context, rec *RunRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid run record: %w", err)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	_, err := c.Firestore.Collection(runCollection).Doc(rec.ID).Set(ctx, rec)
	return err
}

// RecentRuns retrieves the newest sync passes, newest first.
func (c *Client) RecentRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	iter := c.Firestore.Collection(runCollection).
		OrderBy("createdAt", firestore.Desc).
		Limit(limit).
		Documents(ctx)

	var runs []*RunRecord
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate runs: %w", err)
		}

		var rec RunRecord
		if err := doc.DataTo(&rec); err != nil {
			return nil, fmt.Errorf("failed to parse run record: %w", err)
		}
		runs = append(runs, &rec)
	}

	return runs, nil
}

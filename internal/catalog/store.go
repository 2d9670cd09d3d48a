// Package catalog wraps the Couchbase-backed catalog of TarXiv objects,
// cross-match hits, and raw alerts (ports original_source/tarxiv/database.py's
// TarxivDB into a typed, transaction-capable Go client).
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/couchbase/gocb/v2"
)

// ErrNotFound is returned by Get only when the caller explicitly wants
// to distinguish "missing" from "present" — Get itself returns (nil,
// nil) on a missing document, mirroring database.py's
// DocumentNotFoundException swallow, so this sentinel exists purely
// for callers that need an error signal (Transaction's Tx.Get does
// return it, since transaction logic branches on presence).
var ErrNotFound = errors.New("catalog: document not found")

// Store wraps a Couchbase cluster connection scoped to the tarxiv
// bucket. Collections are addressed by (scope, collection) pairs,
// e.g. scope "xmatch" holds collections "hits", "alerts", "idx";
// scope "tns" holds "objects", "lightcurves".
type Store struct {
	cluster *gocb.Cluster
	bucket  *gocb.Bucket
}

// Options configures how Store connects.
type Options struct {
	ConnectionString string // couchbase://host
	Username         string
	Password         string
	BucketName       string // defaults to "tarxiv"
}

// Open connects to Couchbase using the pipeline write-role credentials.
// The API read-role credentials (TARXIV_COUCHBASE_API_USERNAME/PASSWORD)
// are intentionally not consumed here — they belong to the read-only
// API surface outside this module's scope, and are documented as a
// constructor option only so an operator wiring both roles together
// can see where the boundary is.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.BucketName == "" {
		opts.BucketName = "tarxiv"
	}

	cluster, err := gocb.Connect(opts.ConnectionString, gocb.ClusterOptions{
		Authenticator: gocb.PasswordAuthenticator{
			Username: opts.Username,
			Password: opts.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: connect: %w", err)
	}

	bucket := cluster.Bucket(opts.BucketName)
	if err := bucket.WaitUntilReady(10*time.Second, nil); err != nil {
		return nil, fmt.Errorf("catalog: bucket not ready: %w", err)
	}

	return &Store{cluster: cluster, bucket: bucket}, nil
}

// Close tears down the cluster connection.
func (s *Store) Close() error {
	return s.cluster.Close(nil)
}

func (s *Store) collection(scope, collection string) *gocb.Collection {
	return s.bucket.Scope(scope).Collection(collection)
}

// Upsert writes doc under key in scope/collection, replacing any
// existing document.
func (s *Store) Upsert(ctx context.Context, scope, collection, key string, doc any) error {
	_, err := s.collection(scope, collection).Upsert(key, doc, &gocb.UpsertOptions{Context: ctx})
	if err != nil {
		return fmt.Errorf("catalog: upsert %s/%s/%s: %w", scope, collection, key, err)
	}
	return nil
}

// Get retrieves a document by key. Returns (nil, nil) when the
// document does not exist — never an error — per database.py's
// DocumentNotFoundException swallow.
func (s *Store) Get(ctx context.Context, scope, collection, key string) (json.RawMessage, error) {
	res, err := s.collection(scope, collection).Get(key, &gocb.GetOptions{Context: ctx})
	if errors.Is(err, gocb.ErrDocumentNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get %s/%s/%s: %w", scope, collection, key, err)
	}

	var raw json.RawMessage
	if err := res.Content(&raw); err != nil {
		return nil, fmt.Errorf("catalog: decode %s/%s/%s: %w", scope, collection, key, err)
	}
	return raw, nil
}

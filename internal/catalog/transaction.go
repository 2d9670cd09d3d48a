package catalog

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/couchbase/gocb/v2"
)

// Transactor is the subset of transaction operations the reconciler
// needs, implemented by both the real Couchbase-backed Tx and the
// in-memory FakeTx test double so reconciler logic is storage-agnostic.
type Transactor interface {
	// FindHitsByIdentifiers returns the keys of every document in
	// scope/collection whose identifiers array contains one of names
	// (ports new_xmatch_transaction's
	// "ANY id IN identifiers SATISFIES id.name IN [...] END" query).
	FindHitsByIdentifiers(scope, collection string, names []string) ([]string, error)
	Get(scope, collection, key string) (json.RawMessage, error)
	Insert(scope, collection, key string, doc any) error
	Replace(scope, collection, key string, doc any) error
}

// Tx is the Couchbase-backed Transactor implementation, scoped to one
// transaction attempt.
type Tx struct {
	attempt *gocb.TransactionAttemptContext
	bucket  *gocb.Bucket

	// handles caches the CAS-bearing get-result for each key read
	// during this transaction, so Replace can perform the
	// read-modify-write ctx.get/ctx.replace pair from a single
	// scope/collection/key argument instead of a separate handle type.
	handles map[string]*gocb.TransactionGetResult
}

func txDocKey(scope, collection, key string) string { return scope + "/" + collection + "/" + key }

// Get fetches a document inside the transaction. Returns ErrNotFound
// when missing.
func (t *Tx) Get(scope, collection, key string) (json.RawMessage, error) {
	coll := t.bucket.Scope(scope).Collection(collection)
	doc, err := t.attempt.Get(coll, key)
	if errors.Is(err, gocb.ErrDocumentNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: tx get %s/%s/%s: %w", scope, collection, key, err)
	}
	if t.handles == nil {
		t.handles = make(map[string]*gocb.TransactionGetResult)
	}
	t.handles[txDocKey(scope, collection, key)] = doc

	var raw json.RawMessage
	if err := doc.Content(&raw); err != nil {
		return nil, fmt.Errorf("catalog: tx decode %s/%s/%s: %w", scope, collection, key, err)
	}
	return raw, nil
}

// Insert creates a new document inside the transaction.
func (t *Tx) Insert(scope, collection, key string, doc any) error {
	coll := t.bucket.Scope(scope).Collection(collection)
	_, err := t.attempt.Insert(coll, key, doc)
	if err != nil {
		return fmt.Errorf("catalog: tx insert %s/%s/%s: %w", scope, collection, key, err)
	}
	return nil
}

// Replace writes doc over a document previously fetched with Get in
// this same transaction, using its cached CAS token for optimistic
// concurrency — the same read-modify-write shape as original_source's
// ctx.get/ctx.replace.
func (t *Tx) Replace(scope, collection, key string, doc any) error {
	handle, ok := t.handles[txDocKey(scope, collection, key)]
	if !ok {
		return fmt.Errorf("catalog: replace %s/%s/%s without a prior Get in this transaction", scope, collection, key)
	}
	_, err := t.attempt.Replace(handle, doc)
	if err != nil {
		return fmt.Errorf("catalog: tx replace %s/%s/%s: %w", scope, collection, key, err)
	}
	return nil
}

// FindHitsByIdentifiers runs the N1QL identifier-membership query
// described on Transactor.
func (t *Tx) FindHitsByIdentifiers(scope, collection string, names []string) ([]string, error) {
	literal, err := json.Marshal(names)
	if err != nil {
		return nil, err
	}
	stmt := fmt.Sprintf(
		"SELECT META(h).id AS id FROM `tarxiv`.`%s`.`%s` AS h "+
			"WHERE ANY id IN h.identifiers SATISFIES id.name IN %s END",
		scope, collection, string(literal),
	)

	result, err := t.attempt.Query(stmt, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: tx hit-lookup query: %w", err)
	}

	var ids []string
	for result.Next() {
		var row struct {
			ID string `json:"id"`
		}
		if err := result.Row(&row); err != nil {
			return nil, fmt.Errorf("catalog: tx hit-lookup scan: %w", err)
		}
		ids = append(ids, row.ID)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("catalog: tx hit-lookup iteration: %w", err)
	}
	return ids, nil
}

// Transaction runs fn inside a Couchbase ACID transaction. fn's
// returned error aborts the transaction; TransactionCommitAmbiguous
// and TransactionFailed are both surfaced to the caller unwrapped so
// it can decide whether to commit the Kafka offset anyway (spec's
// "never retried, but still commit" rule for poison messages).
func (s *Store) Transaction(fn func(tx Transactor) error) error {
	_, err := s.cluster.Transactions().Run(func(attempt *gocb.TransactionAttemptContext) error {
		return fn(&Tx{attempt: attempt, bucket: s.bucket})
	}, nil)
	return err
}

package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/tarxiv/tarxiv/internal/matcher"
)

// Fake is an in-memory Store double for reconciler/lightcurve/matcher
// tests, implementing the same operations as Store without needing a
// live Couchbase cluster.
type Fake struct {
	mu   sync.Mutex
	docs map[string]map[string]json.RawMessage // "scope/collection" -> key -> doc
}

// NewFake creates an empty in-memory catalog double.
func NewFake() *Fake {
	return &Fake{docs: make(map[string]map[string]json.RawMessage)}
}

func collKey(scope, collection string) string { return scope + "/" + collection }

func (f *Fake) Upsert(ctx context.Context, scope, collection, key string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ck := collKey(scope, collection)
	if f.docs[ck] == nil {
		f.docs[ck] = make(map[string]json.RawMessage)
	}
	f.docs[ck][key] = raw
	return nil
}

func (f *Fake) Get(ctx context.Context, scope, collection, key string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.docs[collKey(scope, collection)][key]
	if !ok {
		return nil, nil
	}
	return raw, nil
}

// FakeTx is the Transactor implementation backed by Fake.
type FakeTx struct {
	f *Fake
}

func (t *FakeTx) Get(scope, collection, key string) (json.RawMessage, error) {
	raw, err := t.f.Get(context.Background(), scope, collection, key)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, ErrNotFound
	}
	return raw, nil
}

func (t *FakeTx) Insert(scope, collection, key string, doc any) error {
	existing, _ := t.f.Get(context.Background(), scope, collection, key)
	if existing != nil {
		return fmt.Errorf("catalog: fake insert: %s/%s/%s already exists", scope, collection, key)
	}
	return t.f.Upsert(context.Background(), scope, collection, key, doc)
}

func (t *FakeTx) Replace(scope, collection, key string, doc any) error {
	return t.f.Upsert(context.Background(), scope, collection, key, doc)
}

// FindHitsByIdentifiers implements Transactor for the fake store.
func (t *FakeTx) FindHitsByIdentifiers(scope, collection string, names []string) ([]string, error) {
	return t.f.queryIdentifiers(scope, collection, names)
}

// Transaction runs fn against the fake store. There is no real
// isolation or rollback — tests that need conflict semantics should
// assert on call ordering instead.
func (f *Fake) Transaction(fn func(tx Transactor) error) error {
	return fn(&FakeTx{f: f})
}

// queryIdentifiers returns the keys of every document in scope/collection
// whose "identifiers" array contains a name in names — the fake's
// substitute for the N1QL `ANY id IN identifiers SATISFIES ...` query
// new_xmatch_transaction issues against the hits collection.
func (f *Fake) queryIdentifiers(scope, collection string, names []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	var matches []string
	for key, raw := range f.docs[collKey(scope, collection)] {
		var doc struct {
			Identifiers []struct {
				Name string `json:"name"`
			} `json:"identifiers"`
		}
		if err := json.Unmarshal(raw, &doc); err != nil {
			continue
		}
		for _, id := range doc.Identifiers {
			if want[id.Name] {
				matches = append(matches, key)
				break
			}
		}
	}
	sort.Strings(matches)
	return matches, nil
}

// ConeSearch mirrors Store.ConeSearch for tests that stock plain
// {ra_deg, dec_deg} documents in scope "tns", collection "objects".
func (f *Fake) ConeSearch(raDeg, decDeg, radiusArcsec float64) ([]ConeHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var hits []ConeHit
	for key, raw := range f.docs[collKey("tns", "objects")] {
		var row coneRow
		if err := json.Unmarshal(raw, &row); err != nil {
			continue
		}
		sep := matcher.Haversine(raDeg, decDeg, row.RADeg, row.DecDeg)
		if sep <= radiusArcsec {
			hits = append(hits, ConeHit{ObjectID: key, RADeg: row.RADeg, DecDeg: row.DecDeg, SeparationArcsec: sep})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].SeparationArcsec < hits[j].SeparationArcsec })
	return hits, nil
}

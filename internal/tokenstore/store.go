// Package tokenstore persists the access/refresh token pair.
//
// Values are stored the way the web client kept them in local storage: two keys,
// "access" and "refresh", each holding a JSON-encoded string. A value that does not
// decode is treated as absent.
package tokenstore

import (
	"context"
	"encoding/json"
	"fmt"
)

const (
	KeyAccess  = "access"
	KeyRefresh = "refresh"
)

// Pair is the opaque bearer token pair.
type Pair struct {
	Access  string
	Refresh string
}

// Empty reports whether neither token is set.
func (p Pair) Empty() bool { return p.Access == "" && p.Refresh == "" }

// KV is the persistent medium. Put and Delete must apply all keys atomically.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
}

// Store reads and writes the token pair over a KV.
type Store struct {
	kv KV
}

// New wraps kv.
func New(kv KV) *Store {
	return &Store{kv: kv}
}

// Load returns the persisted pair; missing or malformed values come back empty.
func (s *Store) Load(ctx context.Context) (Pair, error) {
	access, err := s.get(ctx, KeyAccess)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := s.get(ctx, KeyRefresh)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Access: access, Refresh: refresh}, nil
}

// Save persists both tokens.
func (s *Store) Save(ctx context.Context, p Pair) error {
	values := map[string]string{
		KeyAccess:  encode(p.Access),
		KeyRefresh: encode(p.Refresh),
	}
	if err := s.kv.Put(ctx, values); err != nil {
		return fmt.Errorf("tokenstore: save: %w", err)
	}
	return nil
}

// SaveAccess replaces the access token only.
func (s *Store) SaveAccess(ctx context.Context, access string) error {
	if err := s.kv.Put(ctx, map[string]string{KeyAccess: encode(access)}); err != nil {
		return fmt.Errorf("tokenstore: save access: %w", err)
	}
	return nil
}

// Clear removes both tokens. Clearing an empty store is not an error.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, KeyAccess, KeyRefresh); err != nil {
		return fmt.Errorf("tokenstore: clear: %w", err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, key string) (string, error) {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("tokenstore: load %s: %w", key, err)
	}
	if !ok {
		return "", nil
	}
	return decode(raw), nil
}

func encode(v string) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func decode(raw string) string {
	var v string
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return ""
	}
	return v
}

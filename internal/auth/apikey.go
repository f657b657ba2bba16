package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	authcrypto "github.com/davidrudduck/vk-swarm-sub003/internal/auth/crypto"
	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/hive"
)

// PrefixLength is the number of raw-key characters stored unencrypted
// as a lookup index (spec §6: "a stable prefix (first 8 chars) as an
// index and a hash for verification").
const PrefixLength = 8

// GenerateAPIKey returns a new random raw key and its prefix. The raw
// value is shown to the operator exactly once and never stored;
// HashAPIKey's output is what persists.
func GenerateAPIKey() (raw, prefix string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate api key: %w", err)
	}
	raw = hex.EncodeToString(buf)
	if len(raw) < PrefixLength {
		return "", "", errors.New("auth: generated key shorter than prefix length")
	}
	return raw, raw[:PrefixLength], nil
}

// HashAPIKey hashes a raw key for storage.
func HashAPIKey(raw string) (string, error) {
	return authcrypto.Hash(raw)
}

// KeyIssuer creates and revokes node API keys via hive.Store.
type KeyIssuer struct {
	store hive.Store
}

func NewKeyIssuer(store hive.Store) *KeyIssuer {
	return &KeyIssuer{store: store}
}

// Issue generates a key for nodeID, persists its hash, and returns the
// raw key (shown once) alongside the stored record.
func (k *KeyIssuer) Issue(ctx context.Context, nodeID string) (raw string, rec *hive.NodeAPIKey, err error) {
	raw, prefix, err := GenerateAPIKey()
	if err != nil {
		return "", nil, err
	}
	hash, err := HashAPIKey(raw)
	if err != nil {
		return "", nil, err
	}
	rec = &hive.NodeAPIKey{
		ID:        uuid.NewString(),
		NodeID:    nodeID,
		Prefix:    prefix,
		Hash:      hash,
		CreatedAt: time.Now().UTC(),
	}
	if err := k.store.CreateAPIKey(ctx, rec); err != nil {
		return "", nil, err
	}
	return raw, rec, nil
}

// Revoke revokes a previously issued key.
func (k *KeyIssuer) Revoke(ctx context.Context, keyID string) error {
	return k.store.RevokeAPIKey(ctx, keyID, time.Now().UTC())
}

// Verifier authenticates raw API keys presented by a connecting node.
type Verifier struct {
	store hive.Store
}

func NewVerifier(store hive.Store) *Verifier {
	return &Verifier{store: store}
}

var ErrInvalidAPIKey = errors.New("auth: invalid api key")

// Verify looks up candidates sharing raw's prefix and checks raw
// against each candidate's hash (more than one revoked/expired key can
// share a prefix by chance, so every candidate is checked rather than
// assuming the first match is authoritative).
func (v *Verifier) Verify(ctx context.Context, raw string) (*hive.NodeAPIKey, error) {
	if len(raw) < PrefixLength {
		return nil, ErrInvalidAPIKey
	}
	candidates, err := v.store.LookupByPrefix(ctx, raw[:PrefixLength])
	if err != nil {
		return nil, err
	}
	for _, c := range candidates {
		ok, err := authcrypto.Verify(raw, c.Hash)
		if err != nil {
			continue
		}
		if ok {
			return c, nil
		}
	}
	return nil, ErrInvalidAPIKey
}

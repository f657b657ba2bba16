// Package crypto hashes API-key secrets with Argon2id, adapted from the
// refresh-token hashing helper this module's teacher uses for its own
// credential storage.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Params tunes Argon2id. DefaultParams matches the teacher's own
// refresh-token hashing tuning.
type Params struct {
	Time       uint32
	Memory     uint32
	Threads    uint8
	KeyLength  uint32
	SaltLength uint32
}

var DefaultParams = Params{
	Time:       1,
	Memory:     64 * 1024,
	Threads:    4,
	KeyLength:  32,
	SaltLength: 16,
}

// Hash hashes value with DefaultParams, returning a self-describing
// encoded string (algorithm + params + salt + hash, all base64/decimal).
func Hash(value string) (string, error) {
	return hashWithParams(value, DefaultParams)
}

func hashWithParams(value string, p Params) (string, error) {
	salt := make([]byte, int(p.SaltLength))
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	hash := argon2.IDKey([]byte(value), salt, p.Time, p.Memory, p.Threads, p.KeyLength)
	return fmt.Sprintf("argon2id$%d$%d$%d$%s$%s",
		p.Time, p.Memory, p.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash)), nil
}

// Verify compares value against an encoded Argon2id hash in constant
// time.
func Verify(value, encoded string) (bool, error) {
	decoded, err := decodeHash(encoded)
	if err != nil {
		return false, err
	}
	computed := argon2.IDKey([]byte(value), decoded.salt, decoded.params.Time, decoded.params.Memory, decoded.params.Threads, uint32(len(decoded.hash)))
	if len(computed) != len(decoded.hash) {
		return false, nil
	}
	var diff byte
	for i := range computed {
		diff |= computed[i] ^ decoded.hash[i]
	}
	return diff == 0, nil
}

type decodedHash struct {
	params Params
	salt   []byte
	hash   []byte
}

func decodeHash(encoded string) (decodedHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return decodedHash{}, fmt.Errorf("invalid hash format")
	}
	if parts[0] != "argon2id" {
		return decodedHash{}, fmt.Errorf("unsupported hash algorithm: %s", parts[0])
	}
	t, err := parseUint32(parts[1])
	if err != nil {
		return decodedHash{}, fmt.Errorf("invalid time parameter: %w", err)
	}
	m, err := parseUint32(parts[2])
	if err != nil {
		return decodedHash{}, fmt.Errorf("invalid memory parameter: %w", err)
	}
	threads, err := parseUint32(parts[3])
	if err != nil {
		return decodedHash{}, fmt.Errorf("invalid threads parameter: %w", err)
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return decodedHash{}, fmt.Errorf("invalid salt encoding: %w", err)
	}
	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return decodedHash{}, fmt.Errorf("invalid hash encoding: %w", err)
	}
	return decodedHash{
		params: Params{Time: t, Memory: m, Threads: uint8(threads)},
		salt:   salt,
		hash:   hash,
	}, nil
}

func parseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

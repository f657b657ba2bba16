// Package auth issues and verifies the node<->hive sync protocol's
// credentials (spec §6): short-lived JWT connection tokens and
// prefix-indexed, hashed API keys.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// ConnectionTokenTTL and ConnectionTokenLeeway match spec §6's wire
	// protocol: "short-lived JWTs (HS256, base64 secret, 15-minute TTL,
	// 30s leeway, audience = 'connection')".
	ConnectionTokenTTL      = 15 * time.Minute
	ConnectionTokenLeeway   = 30 * time.Second
	ConnectionTokenAudience = "connection"
)

// ConnectionClaims is the payload a connection token carries (spec §6:
// "{sub, node_id, assignment_id, execution_process_id?, iat, exp}").
type ConnectionClaims struct {
	Subject            string
	NodeID             string
	AssignmentID       string
	ExecutionProcessID string
	IssuedAt           time.Time
	ExpiresAt          time.Time
}

// TokenManager issues and parses HS256 connection tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	leeway time.Duration
}

// NewTokenManager builds a TokenManager. ttl/leeway <= 0 fall back to
// the spec §6 defaults.
func NewTokenManager(secret string, ttl, leeway time.Duration) (*TokenManager, error) {
	if secret == "" {
		return nil, errors.New("auth: empty jwt secret")
	}
	if ttl <= 0 {
		ttl = ConnectionTokenTTL
	}
	if leeway <= 0 {
		leeway = ConnectionTokenLeeway
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl, leeway: leeway}, nil
}

// Issue mints a connection token. executionProcessID may be empty when
// the token is scoped to an assignment with no execution yet running.
func (m *TokenManager) Issue(sub, nodeID, assignmentID, executionProcessID string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(m.ttl)
	claims := jwt.MapClaims{
		"sub":     sub,
		"node_id": nodeID,
		"aud":     ConnectionTokenAudience,
		"iat":     now.Unix(),
		"exp":     expiresAt.Unix(),
	}
	if assignmentID != "" {
		claims["assignment_id"] = assignmentID
	}
	if executionProcessID != "" {
		claims["execution_process_id"] = executionProcessID
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign connection token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse verifies signature, expiry (within leeway), and audience, and
// returns the decoded claims.
func (m *TokenManager) Parse(token string) (ConnectionClaims, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithLeeway(m.leeway),
		jwt.WithAudience(ConnectionTokenAudience),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return ConnectionClaims{}, fmt.Errorf("parse connection token: %w", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return ConnectionClaims{}, errors.New("auth: invalid connection token claims")
	}

	sub, _ := claims["sub"].(string)
	nodeID, _ := claims["node_id"].(string)
	assignmentID, _ := claims["assignment_id"].(string)
	executionProcessID, _ := claims["execution_process_id"].(string)
	iat, _ := claims["iat"].(float64)
	exp, _ := claims["exp"].(float64)

	return ConnectionClaims{
		Subject:            sub,
		NodeID:             nodeID,
		AssignmentID:       assignmentID,
		ExecutionProcessID: executionProcessID,
		IssuedAt:           time.Unix(int64(iat), 0),
		ExpiresAt:          time.Unix(int64(exp), 0),
	}, nil
}

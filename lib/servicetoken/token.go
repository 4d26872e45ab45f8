// Copyright 2026 The ai-llm-matrix-bot Authors
// SPDX-License-Identifier: Apache-2.0

package servicetoken

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/secret"
)

// Claims describes one token to mint.
type Claims struct {
	// Subject becomes the "sub" claim.
	Subject string

	// Lifetime is the span between "iat" and "exp". Must be positive.
	Lifetime time.Duration

	// Extra holds additional claims. Registered claims set by Mint
	// take precedence over same-named keys here.
	Extra map[string]any
}

// Mint signs a JWT with EdDSA at the given time.
func Mint(privateKey ed25519.PrivateKey, claims Claims, now time.Time) (string, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return "", errors.New("servicetoken: invalid Ed25519 private key")
	}
	if claims.Subject == "" {
		return "", errors.New("servicetoken: subject is required")
	}
	if claims.Lifetime <= 0 {
		return "", fmt.Errorf("servicetoken: lifetime must be positive, got %s", claims.Lifetime)
	}

	mapClaims := jwt.MapClaims{}
	for key, value := range claims.Extra {
		mapClaims[key] = value
	}
	mapClaims["sub"] = claims.Subject
	mapClaims["iat"] = jwt.NewNumericDate(now)
	mapClaims["nbf"] = jwt.NewNumericDate(now)
	mapClaims["exp"] = jwt.NewNumericDate(now.Add(claims.Lifetime))
	mapClaims["jti"] = uuid.NewString()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, mapClaims).SignedString(privateKey)
	if err != nil {
		return "", fmt.Errorf("servicetoken: signing token: %w", err)
	}
	return signed, nil
}

// ParsePrivateKey decodes a PKCS#8 PEM-encoded Ed25519 private key.
func ParsePrivateKey(pemBytes []byte) (ed25519.PrivateKey, error) {
	key, err := jwt.ParseEdPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("servicetoken: parsing private key: %w", err)
	}
	privateKey, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("servicetoken: private key is %T, not Ed25519", key)
	}
	return privateKey, nil
}

// LoadPrivateKey reads and parses a PEM private key file.
func LoadPrivateKey(path string) (ed25519.PrivateKey, error) {
	buffer, err := secret.ReadFromPath(path)
	if err != nil {
		return nil, fmt.Errorf("servicetoken: reading private key %s: %w", path, err)
	}
	defer buffer.Close()
	return ParsePrivateKey(buffer.Bytes())
}

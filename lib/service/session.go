// Copyright 2026 The ai-llm-matrix-bot Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/ref"
	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/secret"
	"github.com/xwiki-contrib/ai-llm-matrix-bot/messaging"
)

// Credentials identify the bot's Matrix account.
type Credentials struct {
	// Username is the full user ID or the localpart.
	Username string
	// Password is read but not closed.
	Password *secret.Buffer
	// DeviceID reuses an existing device when set, so the homeserver
	// does not accumulate a new device per restart.
	DeviceID string
}

// Login authenticates with a password and validates the resulting
// session. The returned session's UserID is the one the homeserver
// reported from whoami, which is the identity the bot must treat as
// itself.
//
// The caller must call Session.Close when the session is no longer
// needed to release the guarded memory holding the access token.
func Login(ctx context.Context, client *messaging.Client, credentials Credentials, logger *slog.Logger) (*messaging.DirectSession, error) {
	session, err := client.Login(ctx, credentials.Username, credentials.Password, credentials.DeviceID)
	if err != nil {
		return nil, err
	}

	userID, err := ValidateSession(ctx, session)
	if err != nil {
		session.Close()
		return nil, err
	}
	if userID != session.UserID() {
		session.Close()
		return nil, fmt.Errorf("login returned user %s but whoami reports %s", session.UserID(), userID)
	}

	logger.Info("matrix session ready",
		"user_id", userID,
		"device_id", session.DeviceID(),
	)
	return session, nil
}

// ValidateSession calls WhoAmI to verify the session's access token
// is valid and returns the authenticated user ID.
func ValidateSession(ctx context.Context, session messaging.Session) (ref.UserID, error) {
	userID, err := session.WhoAmI(ctx)
	if err != nil {
		return ref.UserID{}, fmt.Errorf("validating matrix session: %w", err)
	}
	return userID, nil
}

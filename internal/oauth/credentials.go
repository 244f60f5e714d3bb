// Package oauth implements the Gemini Code-Assist OAuth credential flow:
// inline/file-backed token loading, near-expiry detection, and
// single-flight refresh-on-401 (spec.md §4.2).
package oauth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// CredentialSource names where a Gemini account's OAuth token came from,
// since the refresh path differs for each.
type CredentialSource int

const (
	SourceInlineBase64 CredentialSource = iota
	SourceFile
	SourceBrowserRedirect
)

// StoredCredentials is the on-disk/inline JSON shape for a Gemini
// Code-Assist OAuth token.
type StoredCredentials struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
	ProjectID    string    `json:"project_id,omitempty"`
}

// nearMinutes is CRON_NEAR_MINUTES from spec.md §4.2.
const nearMinutes = 10 * time.Minute

// isExpiryDateNear reports whether creds should be refreshed now. Any
// error reading/parsing credentials is treated as "definitely near" —
// the conservative branch decided in SPEC_FULL.md §9 decision 2.
func isExpiryDateNear(creds StoredCredentials, err error) bool {
	if err != nil {
		return true
	}
	if creds.Expiry.IsZero() {
		return true
	}
	return time.Now().Add(nearMinutes).After(creds.Expiry)
}

// LoadInline decodes a base64-encoded JSON credentials blob supplied
// directly in config.
func LoadInline(encoded string) (StoredCredentials, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return StoredCredentials{}, fmt.Errorf("decode inline credentials: %w", err)
	}
	var creds StoredCredentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return StoredCredentials{}, fmt.Errorf("unmarshal inline credentials: %w", err)
	}
	return creds, nil
}

// LoadFile reads credentials from a JSON file path.
func LoadFile(path string) (StoredCredentials, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return StoredCredentials{}, fmt.Errorf("read credentials file %s: %w", path, err)
	}
	var creds StoredCredentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return StoredCredentials{}, fmt.Errorf("unmarshal credentials file %s: %w", path, err)
	}
	return creds, nil
}

// SaveFile persists refreshed credentials back to disk so a restart
// doesn't force a fresh browser flow.
func SaveFile(path string, creds StoredCredentials) error {
	raw, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write credentials file %s: %w", path, err)
	}
	return nil
}

package oauth

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsExpiryDateNear(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name   string
		creds  StoredCredentials
		err    error
		expect bool
	}{
		{
			name:   "far in the future",
			creds:  StoredCredentials{Expiry: now.Add(time.Hour)},
			expect: false,
		},
		{
			name:   "within near window",
			creds:  StoredCredentials{Expiry: now.Add(5 * time.Minute)},
			expect: true,
		},
		{
			name:   "already expired",
			creds:  StoredCredentials{Expiry: now.Add(-time.Minute)},
			expect: true,
		},
		{
			name:   "zero expiry treated as near",
			creds:  StoredCredentials{},
			expect: true,
		},
		{
			name:   "load error treated as near regardless of creds",
			creds:  StoredCredentials{Expiry: now.Add(time.Hour)},
			err:    assert.AnError,
			expect: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, isExpiryDateNear(tt.creds, tt.err))
		})
	}
}

func TestLoadInline_DecodesBase64JSON(t *testing.T) {
	creds := StoredCredentials{AccessToken: "at", RefreshToken: "rt", ProjectID: "proj"}
	raw, err := json.Marshal(creds)
	require.NoError(t, err)
	encoded := base64.StdEncoding.EncodeToString(raw)

	got, err := LoadInline(encoded)
	require.NoError(t, err)
	assert.Equal(t, creds.AccessToken, got.AccessToken)
	assert.Equal(t, creds.RefreshToken, got.RefreshToken)
	assert.Equal(t, creds.ProjectID, got.ProjectID)
}

func TestLoadInline_RejectsInvalidBase64(t *testing.T) {
	_, err := LoadInline("not-base64!!!")
	assert.Error(t, err)
}

func TestSaveFileThenLoadFile_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "creds.json")

	want := StoredCredentials{AccessToken: "at", RefreshToken: "rt", Expiry: time.Now().UTC().Truncate(time.Second)}
	require.NoError(t, SaveFile(path, want))

	got, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, want.AccessToken, got.AccessToken)
	assert.Equal(t, want.RefreshToken, got.RefreshToken)
	assert.True(t, want.Expiry.Equal(got.Expiry))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadFile_MissingFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

package oauth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverProjectID_ReturnsProjectFromLoadCodeAssist(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "loadCodeAssist")
		_ = json.NewEncoder(w).Encode(map[string]any{"cloudaicompanionProject": "existing-project"})
	}))
	defer server.Close()

	projectID, err := DiscoverProjectID(t.Context(), server.Client(), server.URL, "token")
	require.NoError(t, err)
	assert.Equal(t, "existing-project", projectID)
}

func TestDiscoverProjectID_OnboardsThenPollsUntilDone(t *testing.T) {
	orig := onboardPollInterval
	onboardPollInterval = time.Millisecond
	defer func() { onboardPollInterval = orig }()

	pollCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case contains(r.URL.Path, "loadCodeAssist"):
			_ = json.NewEncoder(w).Encode(map[string]any{"cloudaicompanionProject": ""})
		case contains(r.URL.Path, "onboardUser"):
			_ = json.NewEncoder(w).Encode(map[string]any{"name": "operations/onboard-123"})
		default:
			pollCount++
			done := pollCount >= 2
			resp := map[string]any{"done": done}
			if done {
				resp["response"] = map[string]any{
					"cloudaicompanionProject": map[string]any{"id": "onboarded-project"},
				}
			}
			_ = json.NewEncoder(w).Encode(resp)
		}
	}))
	defer server.Close()

	projectID, err := DiscoverProjectID(t.Context(), server.Client(), server.URL, "token")
	require.NoError(t, err)
	assert.Equal(t, "onboarded-project", projectID)
	assert.GreaterOrEqual(t, pollCount, 2)
}

func TestDiscoverProjectID_GivesUpAfterMaxAttempts(t *testing.T) {
	orig := onboardPollInterval
	onboardPollInterval = time.Millisecond
	defer func() { onboardPollInterval = orig }()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case contains(r.URL.Path, "loadCodeAssist"):
			_ = json.NewEncoder(w).Encode(map[string]any{"cloudaicompanionProject": ""})
		case contains(r.URL.Path, "onboardUser"):
			_ = json.NewEncoder(w).Encode(map[string]any{"name": "operations/never-done"})
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{"done": false})
		}
	}))
	defer server.Close()

	_, err := DiscoverProjectID(t.Context(), server.Client(), server.URL, "token")
	require.Error(t, err)
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

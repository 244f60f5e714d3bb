package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// onboardPollInterval/onboardMaxAttempts implement the ~60s project-ID
// discovery ceiling named in spec.md §4.2/§5 (2s interval, 30 attempts).
// onboardPollInterval is a var, not a const, so tests can shrink it.
var onboardPollInterval = 2 * time.Second

const onboardMaxAttempts = 30

// DiscoverProjectID resolves the Code Assist project ID for a Gemini
// CLI-OAuth account: calls loadCodeAssist, and if the account has no
// project yet, calls onboardUser and polls the returned long-running
// operation until it completes.
func DiscoverProjectID(ctx context.Context, httpClient *http.Client, endpoint, accessToken string) (string, error) {
	projectID, err := loadCodeAssist(ctx, httpClient, endpoint, accessToken)
	if err != nil {
		return "", err
	}
	if projectID != "" {
		return projectID, nil
	}

	opName, err := onboardUser(ctx, httpClient, endpoint, accessToken)
	if err != nil {
		return "", err
	}

	for attempt := 0; attempt < onboardMaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("project onboarding cancelled: %w", ctx.Err())
		case <-time.After(onboardPollInterval):
		}

		done, pid, err := pollOperation(ctx, httpClient, endpoint, accessToken, opName)
		if err != nil {
			return "", err
		}
		if done {
			return pid, nil
		}
	}

	return "", fmt.Errorf("project onboarding did not complete after %d attempts", onboardMaxAttempts)
}

func loadCodeAssist(ctx context.Context, httpClient *http.Client, endpoint, accessToken string) (string, error) {
	var out struct {
		CloudaicompanionProject string `json:"cloudaicompanionProject"`
	}
	if err := callCodeAssist(ctx, httpClient, endpoint, accessToken, "loadCodeAssist", map[string]any{}, &out); err != nil {
		return "", err
	}
	return out.CloudaicompanionProject, nil
}

func onboardUser(ctx context.Context, httpClient *http.Client, endpoint, accessToken string) (string, error) {
	var out struct {
		Name string `json:"name"`
	}
	if err := callCodeAssist(ctx, httpClient, endpoint, accessToken, "onboardUser", map[string]any{"tierId": "free-tier"}, &out); err != nil {
		return "", err
	}
	return out.Name, nil
}

func pollOperation(ctx context.Context, httpClient *http.Client, endpoint, accessToken, opName string) (done bool, projectID string, err error) {
	var out struct {
		Done     bool `json:"done"`
		Response struct {
			CloudaicompanionProject struct {
				ID string `json:"id"`
			} `json:"cloudaicompanionProject"`
		} `json:"response"`
	}
	if err := callCodeAssist(ctx, httpClient, endpoint, accessToken, opName, nil, &out); err != nil {
		return false, "", err
	}
	return out.Done, out.Response.CloudaicompanionProject.ID, nil
}

// callCodeAssist issues one v1internal:{method} POST against the Code
// Assist endpoint (spec.md §6 wire protocol).
func callCodeAssist(ctx context.Context, httpClient *http.Client, endpoint, accessToken, method string, body any, out any) error {
	var reqBody bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&reqBody).Encode(body); err != nil {
			return fmt.Errorf("encode %s request: %w", method, err)
		}
	}

	url := fmt.Sprintf("%s/v1internal:%s", endpoint, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &reqBody)
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned status %d", method, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	return nil
}

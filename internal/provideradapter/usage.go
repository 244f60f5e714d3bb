package provideradapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/proxyforge/llmgate/internal/pool"
)

// usageReportingAdapter wraps an httpAdapter with getUsageLimits, kept as
// a distinct type (rather than a method on httpAdapter itself) so only
// the Gemini-family and claude-code-custom adapters structurally satisfy
// UsageReporter, per spec.md's "expose as a separate interface" guidance
// for a capability only a subset of adapters have.
type usageReportingAdapter struct {
	*httpAdapter
	quotaURL func(account *pool.Account) string
}

// ModelQuota is one entry of the getUsageLimits response (spec.md §4.2).
type ModelQuota struct {
	Remaining       float64 `json:"remaining"`
	ResetTime       string  `json:"resetTime,omitempty"`
	ResetTimeRaw    string  `json:"resetTimeRaw,omitempty"`
	InputTokenLimit int64   `json:"inputTokenLimit,omitempty"`
	OutputTokenLimit int64  `json:"outputTokenLimit,omitempty"`
}

type usageLimits struct {
	LastUpdated string                `json:"lastUpdated"`
	Models      map[string]ModelQuota `json:"models"`
}

// rawQuotaResponse is the shape of whatever subset of the upstream's
// quota response the gateway understands; any field it doesn't recognize
// is ignored rather than rejected.
type rawQuotaResponse struct {
	Models map[string]struct {
		Remaining        *float64 `json:"remaining"`
		ResetTime        string   `json:"resetTime"`
		InputTokenLimit  int64    `json:"inputTokenLimit"`
		OutputTokenLimit int64    `json:"outputTokenLimit"`
	} `json:"models"`
}

// GetUsageLimits calls the account's upstream quota endpoint and
// normalizes the result: models in notSupportedModels are filtered out
// and a model entry with no remaining value gets remaining:1. Only models
// the upstream response lists appear; none are added from elsewhere. A
// failed quota request returns an empty models map rather than an error.
func (a *usageReportingAdapter) GetUsageLimits(ctx context.Context, account *pool.Account) (map[string]any, error) {
	account.Mu.Lock()
	notSupported := append([]string(nil), account.Static.NotSupportedModels...)
	account.Mu.Unlock()

	result := usageLimits{
		LastUpdated: time.Now().UTC().Format(time.RFC3339),
		Models:      make(map[string]ModelQuota),
	}

	raw, err := a.fetchQuota(ctx, account)
	if err != nil || raw == nil {
		return toAnyMap(result), nil
	}

	for model, q := range raw.Models {
		if containsModel(notSupported, model) {
			continue
		}
		remaining := 1.0
		if q.Remaining != nil {
			remaining = *q.Remaining
		}
		result.Models[model] = ModelQuota{
			Remaining:        remaining,
			ResetTime:        q.ResetTime,
			ResetTimeRaw:     q.ResetTime,
			InputTokenLimit:  q.InputTokenLimit,
			OutputTokenLimit: q.OutputTokenLimit,
		}
	}

	return toAnyMap(result), nil
}

func (a *usageReportingAdapter) fetchQuota(ctx context.Context, account *pool.Account) (*rawQuotaResponse, error) {
	if a.quotaURL == nil {
		return nil, nil
	}
	url := a.quotaURL(account)
	if url == "" {
		return nil, fmt.Errorf("no quota endpoint configured")
	}

	headerName, headerValue, err := a.cfg.auth(ctx, account, false)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader("{}"))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerName, headerValue)

	resp, err := sharedClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("quota endpoint returned status %d", resp.StatusCode)
	}

	var out rawQuotaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func containsModel(models []string, model string) bool {
	for _, m := range models {
		if m == model {
			return true
		}
	}
	return false
}

func toAnyMap(u usageLimits) map[string]any {
	b, _ := json.Marshal(u)
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	return m
}

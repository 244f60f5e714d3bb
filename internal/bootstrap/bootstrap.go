// Package bootstrap wires the gateway's process-wide collaborators
// together from a loaded Config: the pool manager (with its persisted
// store, recovery scheduler, and telemetry sink), the adapter factory,
// and the Service Orchestrator sitting on top of both. Kept separate
// from cmd/ and internal/server so both the `start` command and tests
// can construct the same graph without standing up an HTTP listener.
package bootstrap

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/proxyforge/llmgate/internal/config"
	"github.com/proxyforge/llmgate/internal/factory"
	"github.com/proxyforge/llmgate/internal/orchestrator"
	"github.com/proxyforge/llmgate/internal/pool"
	"github.com/proxyforge/llmgate/internal/protocol"
	"github.com/proxyforge/llmgate/internal/telemetry"
)

// Gateway bundles the constructed collaborators a running process (or a
// test) needs.
type Gateway struct {
	Pools        *pool.Manager
	Factory      *factory.Factory
	Orchestrator *orchestrator.Orchestrator
	Telemetry    *telemetry.Sink
}

// New builds a Gateway from cfg: registers every configured account with
// the pool manager, wires the Prometheus health sink, and points the
// prober at each account's adapter via ListModels.
func New(cfg *config.Config, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}

	store := pool.NewStoreAtPath(cfg.PoolFilePath)
	pools := pool.NewManager(logger, store)

	fac := factory.New(logger,
		factory.OAuthAppCredentials{ClientID: cfg.GeminiOAuthApp.ClientID, ClientSecret: cfg.GeminiOAuthApp.ClientSecret},
		factory.OAuthAppCredentials{ClientID: cfg.ClaudeCodeOAuthApp.ClientID, ClientSecret: cfg.ClaudeCodeOAuthApp.ClientSecret},
	)

	for _, ac := range cfg.Accounts {
		if ac.Disabled {
			continue
		}
		account := pool.NewAccount(ac.Type, pool.StaticConfig{
			Name:               ac.Name,
			Endpoint:           ac.Endpoint,
			APIKey:             ac.APIKey,
			CredentialsFile:    ac.CredentialsFile,
			CredentialsInline:  ac.CredentialsInline,
			MaxErrorCount:      ac.MaxErrorCount,
			NotSupportedModels: ac.NotSupportedModels,
		})
		if ac.UUID != "" {
			account.UUID = ac.UUID
		}
		pools.Register(account)
	}

	sink := telemetry.NewSink(prometheus.NewRegistry())
	pools.SetSink(sink)
	pools.SetProber(func(ctx context.Context, a *pool.Account) error {
		adapter, err := fac.Get(a)
		if err != nil {
			return err
		}
		_, err = adapter.ListModels(ctx, a)
		return err
	})

	orch := orchestrator.New(pools, fac, logger)

	return &Gateway{Pools: pools, Factory: fac, Orchestrator: orch, Telemetry: sink}
}

// ProviderTypesWithAccounts returns the distinct provider types the
// config registered at least one account for, used by Server to decide
// which inbound routes to mount.
func ProviderTypesWithAccounts(cfg *config.Config) map[protocol.ProviderType]bool {
	out := make(map[protocol.ProviderType]bool)
	for _, ac := range cfg.Accounts {
		if !ac.Disabled {
			out[ac.Type] = true
		}
	}
	return out
}

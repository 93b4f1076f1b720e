package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/telhawk-systems/rangehawk/internal/answerkey"
	"github.com/telhawk-systems/rangehawk/internal/messaging"
	"github.com/telhawk-systems/rangehawk/internal/results"
	"github.com/telhawk-systems/rangehawk/internal/search"
	"github.com/telhawk-systems/rangehawk/internal/server"
)

// backends collects the connections a command opened so they can be checked
// for readiness and closed together.
type backends struct {
	closers []func()
	checks  map[string]server.ReadyCheck
}

func newBackends() *backends {
	return &backends{checks: make(map[string]server.ReadyCheck)}
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// keyStore opens the configured answer key backend.
func (b *backends) keyStore(ctx context.Context) (answerkey.Store, error) {
	switch cfg.Keys.Backend {
	case "memory":
		return answerkey.NewMemoryStore(), nil
	case "redis":
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		b.closers = append(b.closers, func() { _ = client.Close() })
		b.checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		return answerkey.NewRedisStore(client, cfg.Redis.TTL, cfg.Keys.Passphrase), nil
	default:
		return answerkey.NewFileStore(cfg.Keys.Dir, cfg.Keys.Passphrase), nil
	}
}

// resultsRepo opens the grading history. Without a database the history is
// kept in memory when fallback is set, and not kept at all otherwise.
func (b *backends) resultsRepo(ctx context.Context, fallback bool) (results.Repository, error) {
	if !cfg.Grading.Persist {
		return nil, nil
	}
	if !cfg.Database.Enabled {
		if fallback {
			return results.NewInMemoryRepository(), nil
		}
		return nil, nil
	}

	if err := results.Migrate(cfg.Database.URL); err != nil {
		return nil, err
	}
	repo, err := results.NewPostgresRepository(ctx, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	b.closers = append(b.closers, repo.Close)
	b.checks["postgres"] = repo.Ping
	return repo, nil
}

// publisher connects to NATS when enabled. A nil publisher means events are
// not published.
func (b *backends) publisher(name string) (messaging.Publisher, error) {
	if !cfg.NATS.Enabled {
		return nil, nil
	}

	natsCfg := messaging.DefaultNATSConfig()
	natsCfg.URL = cfg.NATS.URL
	natsCfg.Name = name
	natsCfg.MaxReconnects = cfg.NATS.MaxReconnects
	if cfg.NATS.ReconnectWait > 0 {
		natsCfg.ReconnectWait = cfg.NATS.ReconnectWait
	}

	pub, err := messaging.NewNATSPublisher(natsCfg, logger.Logger)
	if err != nil {
		return nil, err
	}
	b.closers = append(b.closers, func() { _ = pub.Close() })
	b.checks["nats"] = func(context.Context) error {
		if !pub.IsConnected() {
			return errors.New("not connected")
		}
		return nil
	}
	return pub, nil
}

func (b *backends) indexer() (*search.Indexer, error) {
	return search.NewIndexer(search.Config{
		URL:         cfg.OpenSearch.URL,
		Username:    cfg.OpenSearch.Username,
		Password:    cfg.OpenSearch.Password,
		Insecure:    cfg.OpenSearch.Insecure,
		IndexPrefix: cfg.OpenSearch.IndexPrefix,
	})
}

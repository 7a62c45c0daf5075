package config

import (
	"context"

	"github.com/pkg/errors"

	"github.com/go-go-golems/blockchat/pkg/generator"
	"github.com/go-go-golems/blockchat/pkg/store"
)

// OpenStore opens the configured message store.
func (s *Settings) OpenStore(ctx context.Context) (store.MessageStore, error) {
	switch s.Store.Backend {
	case StoreMemory:
		return store.NewInMemoryStore(), nil
	case StoreSQLite:
		dsn, err := store.SQLiteDSNForFile(s.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		st, err := store.NewSQLiteStore(dsn)
		if err != nil {
			return nil, err
		}
		return st, nil
	case StoreRedis:
		st, err := store.NewRedisStore(ctx, store.RedisOptions{
			Addr:     s.Store.RedisAddr,
			Password: s.Store.RedisPassword,
			DB:       s.Store.RedisDB,
			Prefix:   s.Store.RedisPrefix,
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, errors.Wrapf(ErrInvalidSettings, "unknown store backend %q", s.Store.Backend)
	}
}

// NewGenerator builds the configured generator.
func (s *Settings) NewGenerator() (generator.Generator, error) {
	switch s.Generator.Backend {
	case GeneratorEcho:
		return generator.Echo{}, nil
	case GeneratorOpenAI:
		g, err := generator.NewOpenAI(generator.OpenAISettings{
			APIKey:  s.Generator.OpenAIAPIKey,
			BaseURL: s.Generator.OpenAIBaseURL,
			Model:   s.Generator.OpenAIModel,
		})
		if err != nil {
			return nil, err
		}
		return g, nil
	case GeneratorScripted:
		script, err := generator.LoadScript(s.Generator.Script)
		if err != nil {
			return nil, err
		}
		return generator.NewScripted(*script), nil
	default:
		return nil, errors.Wrapf(ErrInvalidSettings, "unknown generator backend %q", s.Generator.Backend)
	}
}

package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/go-go-golems/blockchat/pkg/generator"
	"github.com/go-go-golems/blockchat/pkg/orchestrator"
	"github.com/go-go-golems/blockchat/pkg/parse"
	"github.com/go-go-golems/blockchat/pkg/server"
)

const EnvPrefix = "blockchat"

const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"

	GeneratorEcho     = "echo"
	GeneratorOpenAI   = "openai"
	GeneratorScripted = "scripted"
)

var ErrInvalidSettings = errors.New("invalid settings")

type StoreSettings struct {
	Backend       string `mapstructure:"backend" yaml:"backend"`
	SQLitePath    string `mapstructure:"sqlite-path" yaml:"sqlite-path"`
	RedisAddr     string `mapstructure:"redis-addr" yaml:"redis-addr"`
	RedisPassword string `mapstructure:"redis-password" yaml:"redis-password"`
	RedisDB       int    `mapstructure:"redis-db" yaml:"redis-db"`
	RedisPrefix   string `mapstructure:"redis-prefix" yaml:"redis-prefix"`
}

type GeneratorSettings struct {
	Backend       string        `mapstructure:"backend" yaml:"backend"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	OpenAIAPIKey  string        `mapstructure:"openai-api-key" yaml:"openai-api-key"`
	OpenAIModel   string        `mapstructure:"openai-model" yaml:"openai-model"`
	OpenAIBaseURL string        `mapstructure:"openai-base-url" yaml:"openai-base-url"`
	// Script is a YAML file of canned responses for the scripted backend.
	Script string `mapstructure:"script" yaml:"script"`
}

type ParserSettings struct {
	PreviewLength int `mapstructure:"preview-length" yaml:"preview-length"`
	MaxInputBytes int `mapstructure:"max-input-bytes" yaml:"max-input-bytes"`
}

type ServerSettings struct {
	InboundRate  float64       `mapstructure:"inbound-rate" yaml:"inbound-rate"`
	InboundBurst int           `mapstructure:"inbound-burst" yaml:"inbound-burst"`
	WriteTimeout time.Duration `mapstructure:"write-timeout" yaml:"write-timeout"`
	OutboxSize   int           `mapstructure:"outbox-size" yaml:"outbox-size"`
}

// Settings is the complete configuration of a blockchat server.
type Settings struct {
	Listen    string            `mapstructure:"listen" yaml:"listen"`
	Store     StoreSettings     `mapstructure:"store" yaml:"store"`
	Generator GeneratorSettings `mapstructure:"generator" yaml:"generator"`
	Parser    ParserSettings    `mapstructure:"parser" yaml:"parser"`
	Server    ServerSettings    `mapstructure:"server" yaml:"server"`
}

func Defaults() *Settings {
	return &Settings{
		Listen: ":8080",
		Store: StoreSettings{
			Backend:     StoreMemory,
			SQLitePath:  "blockchat.db",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "blockchat:",
		},
		Generator: GeneratorSettings{
			Backend:     GeneratorEcho,
			Timeout:     orchestrator.DefaultGeneratorTimeout,
			OpenAIModel: generator.DefaultOpenAIModel,
		},
		Parser: ParserSettings{
			PreviewLength: parse.DefaultPreviewLength,
			MaxInputBytes: parse.DefaultMaxInputBytes,
		},
		Server: ServerSettings{
			InboundRate:  server.DefaultInboundRate,
			InboundBurst: server.DefaultInboundBurst,
			WriteTimeout: server.DefaultWriteTimeout,
			OutboxSize:   server.DefaultOutboxSize,
		},
	}
}

// SetDefaults registers every key with its default, which also makes the
// keys visible to AutomaticEnv.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("listen", d.Listen)

	v.SetDefault("store.backend", d.Store.Backend)
	v.SetDefault("store.sqlite-path", d.Store.SQLitePath)
	v.SetDefault("store.redis-addr", d.Store.RedisAddr)
	v.SetDefault("store.redis-password", d.Store.RedisPassword)
	v.SetDefault("store.redis-db", d.Store.RedisDB)
	v.SetDefault("store.redis-prefix", d.Store.RedisPrefix)

	v.SetDefault("generator.backend", d.Generator.Backend)
	v.SetDefault("generator.timeout", d.Generator.Timeout)
	v.SetDefault("generator.openai-api-key", d.Generator.OpenAIAPIKey)
	v.SetDefault("generator.openai-model", d.Generator.OpenAIModel)
	v.SetDefault("generator.openai-base-url", d.Generator.OpenAIBaseURL)
	v.SetDefault("generator.script", d.Generator.Script)

	v.SetDefault("parser.preview-length", d.Parser.PreviewLength)
	v.SetDefault("parser.max-input-bytes", d.Parser.MaxInputBytes)

	v.SetDefault("server.inbound-rate", d.Server.InboundRate)
	v.SetDefault("server.inbound-burst", d.Server.InboundBurst)
	v.SetDefault("server.write-timeout", d.Server.WriteTimeout)
	v.SetDefault("server.outbox-size", d.Server.OutboxSize)
}

// ConfigureEnv maps keys like store.sqlite-path to BLOCKCHAT_STORE_SQLITE_PATH.
func ConfigureEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
}

// Load decodes and validates the settings held by v.
func Load(v *viper.Viper) (*Settings, error) {
	s := Defaults()
	if err := v.Unmarshal(s); err != nil {
		return nil, errors.Wrap(err, "decode settings")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) Validate() error {
	if s.Listen == "" {
		return errors.Wrap(ErrInvalidSettings, "listen address is empty")
	}

	switch s.Store.Backend {
	case StoreMemory:
	case StoreSQLite:
		if s.Store.SQLitePath == "" {
			return errors.Wrap(ErrInvalidSettings, "store.sqlite-path is required for the sqlite store")
		}
	case StoreRedis:
		if s.Store.RedisAddr == "" {
			return errors.Wrap(ErrInvalidSettings, "store.redis-addr is required for the redis store")
		}
		if s.Store.RedisDB < 0 {
			return errors.Wrapf(ErrInvalidSettings, "store.redis-db %d is negative", s.Store.RedisDB)
		}
	default:
		return errors.Wrapf(ErrInvalidSettings, "unknown store backend %q", s.Store.Backend)
	}

	switch s.Generator.Backend {
	case GeneratorEcho:
	case GeneratorOpenAI:
		if s.Generator.OpenAIAPIKey == "" {
			return errors.Wrap(ErrInvalidSettings, "generator.openai-api-key is required for the openai generator")
		}
	case GeneratorScripted:
		if s.Generator.Script == "" {
			return errors.Wrap(ErrInvalidSettings, "generator.script is required for the scripted generator")
		}
	default:
		return errors.Wrapf(ErrInvalidSettings, "unknown generator backend %q", s.Generator.Backend)
	}
	if s.Generator.Timeout <= 0 {
		return errors.Wrapf(ErrInvalidSettings, "generator.timeout must be positive, got %s", s.Generator.Timeout)
	}

	if s.Parser.PreviewLength <= 0 || s.Parser.MaxInputBytes <= 0 {
		return errors.Wrap(ErrInvalidSettings, "parser limits must be positive")
	}
	if s.Server.InboundRate <= 0 || s.Server.InboundBurst <= 0 {
		return errors.Wrap(ErrInvalidSettings, "server.inbound-rate and server.inbound-burst must be positive")
	}
	if s.Server.WriteTimeout <= 0 {
		return errors.Wrap(ErrInvalidSettings, "server.write-timeout must be positive")
	}
	if s.Server.OutboxSize <= 0 {
		return errors.Wrap(ErrInvalidSettings, "server.outbox-size must be positive")
	}
	return nil
}

func (s *Settings) ParserOptions() parse.Options {
	return parse.Options{
		PreviewLength: s.Parser.PreviewLength,
		MaxInputBytes: s.Parser.MaxInputBytes,
	}
}

func (s *Settings) ServerOptions() server.Options {
	return server.Options{
		InboundRate:  s.Server.InboundRate,
		InboundBurst: s.Server.InboundBurst,
		WriteTimeout: s.Server.WriteTimeout,
		OutboxSize:   s.Server.OutboxSize,
	}
}

package cmds

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/blockchat/pkg/config"
	"github.com/go-go-golems/blockchat/pkg/helpers"
	"github.com/go-go-golems/blockchat/pkg/orchestrator"
	"github.com/go-go-golems/blockchat/pkg/parse"
	"github.com/go-go-golems/blockchat/pkg/server"
)

func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve chat sessions over websockets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, settings)
		},
	}

	cmd.Flags().String("listen", ":8080", "Address to listen on")
	cmd.Flags().String("store", config.StoreMemory, "Message store (memory, sqlite, redis)")
	cmd.Flags().String("sqlite-path", "blockchat.db", "SQLite database file")
	cmd.Flags().String("redis-addr", "localhost:6379", "Redis address")
	cmd.Flags().String("generator", config.GeneratorEcho, "Generator (echo, openai, scripted)")
	cmd.Flags().String("script", "", "YAML script for the scripted generator")
	cmd.Flags().Duration("generator-timeout", orchestrator.DefaultGeneratorTimeout, "Generator deadline per turn")

	cmd.PreRunE = bindFlags(map[string]string{
		"listen":            "listen",
		"store.backend":     "store",
		"store.sqlite-path": "sqlite-path",
		"store.redis-addr":  "redis-addr",
		"generator.backend": "generator",
		"generator.script":  "script",
		"generator.timeout": "generator-timeout",
	})
	return cmd
}

// bindFlags binds config keys to the flags of the command being run. An
// explicitly set flag wins over config file and environment. Binding happens
// at run time because several commands share keys.
func bindFlags(keys map[string]string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		for key, flag := range keys {
			if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
				return errors.Wrapf(err, "bind --%s", flag)
			}
		}
		return nil
	}
}

func serve(ctx context.Context, settings *config.Settings) error {
	st, err := settings.OpenStore(ctx)
	if err != nil {
		return errors.Wrap(err, "open message store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Warn().Err(err).Msg("could not close message store")
		}
	}()

	gen, err := settings.NewGenerator()
	if err != nil {
		return errors.Wrap(err, "create generator")
	}

	pubSub := helpers.NewOrderedPubSub(log.Logger)
	defer func() {
		_ = pubSub.Close()
	}()

	o := orchestrator.New(st, gen, orchestrator.NewWatermillSink(pubSub),
		orchestrator.WithParser(parse.NewParser(settings.ParserOptions())),
		orchestrator.WithGeneratorTimeout(settings.Generator.Timeout),
	)
	defer func() {
		log.Info().Msg("Waiting for queued turns")
		_ = o.Close()
	}()

	log.Info().
		Str("store", settings.Store.Backend).
		Str("generator", settings.Generator.Backend).
		Dur("generator_timeout", settings.Generator.Timeout).
		Msg("Starting blockchat")

	srv := server.New(o, st, pubSub, settings.ServerOptions())
	return srv.ListenAndServe(ctx, settings.Listen)
}

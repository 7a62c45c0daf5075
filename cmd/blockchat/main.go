package main

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/go-go-golems/blockchat/cmd/blockchat/cmds"
	"github.com/go-go-golems/blockchat/cmd/blockchat/cmds/chat"
	"github.com/go-go-golems/blockchat/pkg/config"
)

var rootCmd = &cobra.Command{
	Use:   "blockchat",
	Short: "blockchat serves and talks to block-based interactive chat sessions",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// reinitialize the logger because we can now parse --log-level and co
		// from the command line flag
		return initLogger()
	},
}

type logConfig struct {
	WithCaller bool
	Level      string
	LogFormat  string
	LogFile    string
}

func initLogger() error {
	logLevel := viper.GetString("log-level")
	if viper.GetBool("verbose") && logLevel != "trace" {
		logLevel = "debug"
	}
	return InitLogger(&logConfig{
		Level:      logLevel,
		LogFile:    viper.GetString("log-file"),
		LogFormat:  viper.GetString("log-format"),
		WithCaller: viper.GetBool("with-caller"),
	})
}

func InitLogger(config *logConfig) error {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if config.WithCaller {
		logger = logger.With().Caller().Logger()
	}

	format := config.LogFormat
	if format == "" {
		format = "json"
		if isatty.IsTerminal(os.Stderr.Fd()) {
			format = "text"
		}
	}

	var logWriter io.Writer
	if format == "text" {
		logWriter = zerolog.ConsoleWriter{Out: os.Stderr}
	} else {
		logWriter = os.Stderr
	}

	if config.LogFile != "" {
		logWriter = io.MultiWriter(
			logWriter,
			zerolog.ConsoleWriter{
				NoColor: true,
				Out: &lumberjack.Logger{
					Filename:   config.LogFile,
					MaxSize:    10, // megabytes
					MaxBackups: 3,
					MaxAge:     28, // days
				},
			})
	}

	log.Logger = logger.Output(logWriter)

	level := zerolog.InfoLevel
	if config.Level != "" {
		l, err := zerolog.ParseLevel(config.Level)
		if err != nil {
			return err
		}
		level = l
	}
	zerolog.SetGlobalLevel(level)
	return nil
}

func initConfig(configPath string) error {
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.blockchat")
		viper.AddConfigPath("/etc/blockchat")

		xdgConfigPath, err := os.UserConfigDir()
		if err == nil {
			viper.AddConfigPath(xdgConfigPath + "/blockchat")
		}
	}

	err := viper.ReadInConfig()
	// a missing config file is fine, everything has a default
	if _, ok := err.(viper.ConfigFileNotFoundError); !ok && err != nil {
		return err
	}

	config.SetDefaults(viper.GetViper())
	config.ConfigureEnv(viper.GetViper())
	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return err
	}
	if err := initLogger(); err != nil {
		return err
	}

	log.Debug().Str("config", viper.ConfigFileUsed()).Msg("Loaded configuration")
	return nil
}

// configPathFromArgs finds --config before cobra parses the flags, so the
// config file can provide defaults for them.
func configPathFromArgs(args []string) string {
	for i, a := range args {
		switch {
		case a == "--config" && i+1 < len(args):
			return args[i+1]
		case strings.HasPrefix(a, "--config="):
			return strings.TrimPrefix(a, "--config=")
		}
	}
	return ""
}

func main() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Path to a YAML config file")
	pf.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	pf.String("log-format", "", "Log format (json, text), text on a terminal by default")
	pf.String("log-file", "", "Also write logs to this file, rotated")
	pf.Bool("with-caller", false, "Log caller information")
	pf.BoolP("verbose", "v", false, "Shorthand for --log-level debug")

	if err := initConfig(configPathFromArgs(os.Args[1:])); err != nil {
		log.Fatal().Err(err).Msg("could not load configuration")
	}

	for _, c := range []*cobra.Command{
		cmds.NewServeCommand(),
		cmds.NewParseCommand(),
		cmds.NewHistoryCommand(),
		chat.NewChatCommand(),
	} {
		rootCmd.AddCommand(c)
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

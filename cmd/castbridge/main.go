// Castbridge discovers Chromecast devices on the local network and casts
// media URLs to them.
//
// Usage:
//
//	castbridge list [--timeout 5s]
//	castbridge cast <url> [--device "Living Room TV"]
package main

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"go2tv.app/castbridge/internal/config"
)

//go:embed version.txt
var version string

var (
	configPath string
	logLevel   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Encountered error(s): %s\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "castbridge",
	Short: "Discover Chromecast devices and cast media URLs to them",
	Long: `castbridge browses the local network for Google Cast devices, connects to
one, launches the default media receiver and relays load, play, pause and
stop commands to it.

Settings are read from a YAML file. A default one is created on first run
under the user config directory unless --config points elsewhere.`,
	Version:       strings.TrimSpace(version),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the config file (default is the user config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error), overrides the config file")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(castCmd)
}

// loadConfig reads the config file and applies the global flags.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	conf, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		conf.LogLevel = logLevel
	}
	return conf, nil
}

// newLogOutput sets the global level and returns a console writer on stderr.
func newLogOutput(level string) (io.Writer, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}, nil
}

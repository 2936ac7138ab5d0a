// Command accidents-api serves the US accidents dataset over HTTP and
// carries the tooling that prepares the dataset for it.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/usaccidents/accidents-api/internal/appconf"
	"github.com/usaccidents/accidents-api/internal/logging"
)

// Set at build time with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

// globalOptions holds the flags shared by every command.
type globalOptions struct {
	configFile string
	viper      *viper.Viper
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{viper: viper.New()}

	cmd := &cobra.Command{
		Use:   "accidents-api",
		Short: "US accidents dataset API",
		Long: `accidents-api serves the US accidents dataset as a JSON API and
proxies uploads and downloads to object storage.

Configuration is read from flags, then environment variables (PORT,
CLOUD_STORAGE_BUCKET, DATASET_PATH, ...), then an optional config file.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "",
		"optional config file (yaml, toml or json)")

	cmd.AddCommand(
		newServeCommand(opts),
		newFetchCommand(),
		newConvertCommand(),
		newVersionCommand(),
	)
	return cmd
}

// loadConfig reads the optional config file and resolves the server
// configuration against fs.
func (opts *globalOptions) loadConfig(fs *pflag.FlagSet) (appconf.Config, error) {
	if opts.configFile != "" {
		opts.viper.SetConfigFile(opts.configFile)
		if err := opts.viper.ReadInConfig(); err != nil {
			return appconf.Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return appconf.Load(opts.viper, fs)
}

func newLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	lvl, err := logging.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(w, format, lvl), nil
}

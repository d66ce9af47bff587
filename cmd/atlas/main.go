// Command atlas is the Castle Atlas command-line client.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/castleatlas/atlas/internal/client"
	"github.com/castleatlas/atlas/internal/config"
	"github.com/castleatlas/atlas/internal/crypto"
	"github.com/castleatlas/atlas/internal/events"
	"github.com/castleatlas/atlas/internal/models"
)

// skipConfig marks commands that run without loading configuration.
const skipConfig = "skip-config"

var (
	cfgFile    string
	jsonOutput bool
	noColor    bool

	cfg        *config.Config
	logger     *events.Logger
	apiClient  *client.Client
	stopToasts func()

	// errorToasts also prints error notifications, for commands whose
	// failures arrive from the server rather than as a returned error.
	errorToasts bool
)

var rootCmd = &cobra.Command{
	Use:   "atlas",
	Short: "Castle Atlas command-line client",
	Long: `Atlas signs in to Castle Atlas, tracks learning progress and provides
the password-based encryption utilities the web client uses.

Without --remote every command runs against a built-in mock API seeded with
the demo account test@example.com / password.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// flagKeys maps persistent flags onto config keys.
var flagKeys = map[string]string{
	"log-level": "log.level",
	"remote":    "api.remote",
	"data-dir":  "storage.data_dir",
	"api-url":   "api.base_url",
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "",
		"Config file (default: ./atlas.json or ~/.config/atlas/config.json)")
	flags.BoolVar(&jsonOutput, "json", false,
		"Output in JSON format")
	flags.BoolVar(&noColor, "no-color", false,
		"Disable colored output")
	flags.String("log-level", "",
		"Log level (debug, info, warn, error)")
	flags.Bool("remote", false,
		"Use the remote API instead of the built-in mock")
	flags.String("data-dir", "",
		"Directory for session data")
	flags.String("api-url", "",
		"API base URL")
}

func setup(cmd *cobra.Command, args []string) error {
	if noColor {
		color.NoColor = true
	}

	if cmd.Annotations[skipConfig] == "true" {
		logger = events.NewNopLogger()
		return nil
	}

	loader := config.NewLoader(cfgFile)
	for name, key := range flagKeys {
		if err := loader.Viper().BindPFlag(key, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	var err error
	cfg, err = loader.Load()
	if err != nil {
		return err
	}

	logger, err = events.NewLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	events.SetDefault(logger)

	if file := loader.ConfigFile(); file != "" {
		logger.WithField("file", file).Debug("Loaded config")
	}

	return nil
}

// getClient builds the client on first use so commands that only need
// configuration never open the session store.
func getClient() (*client.Client, error) {
	if apiClient != nil {
		return apiClient, nil
	}

	c, err := client.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	apiClient = c

	if !jsonOutput {
		stopToasts = startToasts(c.Bus, errorToasts)
	}

	return c, nil
}

// newUtility builds the crypto utility from configuration.
func newUtility() (*crypto.Utility, error) {
	opts := []crypto.Option{crypto.WithIterations(cfg.Crypto.Iterations)}
	if cfg.Crypto.NormalizePasswords {
		opts = append(opts, crypto.WithPasswordNormalization())
	}
	return crypto.New(opts...)
}

func cleanup() {
	if stopToasts != nil {
		stopToasts()
		stopToasts = nil
	}
	if apiClient != nil {
		if err := apiClient.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close client")
		}
		apiClient = nil
	}
	if logger != nil {
		_ = logger.Sync()
		if err := logger.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to close log: %v\n", err)
		}
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)

	err := rootCmd.ExecuteContext(ctx)
	cleanup()
	stop()

	if err != nil {
		if jsonOutput {
			printJSON(map[string]interface{}{
				"success": false,
				"error":   models.UserMessage(err),
			})
		} else {
			printError("%s", models.UserMessage(err))
		}
		os.Exit(1)
	}
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/saga/internal/profile"
	"github.com/hrygo/saga/internal/version"
	"github.com/hrygo/saga/server"
	"github.com/hrygo/saga/internal/observability"
	"github.com/hrygo/saga/server/runner/embedding"
	"github.com/hrygo/saga/store"
	"github.com/hrygo/saga/store/db"
)

var rootCmd = &cobra.Command{
	Use:   "saga",
	Short: `A journaling service that writes prompts from your own past entries.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the backfill runner",
	RunE: func(cmd *cobra.Command, _ []string) error {
		instanceProfile, err := newProfile()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		storeInstance, err := openStore(ctx, instanceProfile)
		if err != nil {
			return err
		}

		s, err := server.NewServer(ctx, instanceProfile, storeInstance)
		if err != nil {
			return errors.Wrap(err, "failed to create server")
		}

		c := make(chan os.Signal, 1)
		// Trigger graceful shutdown on SIGINT or SIGTERM.
		// The default signal sent by the `kill` command is SIGTERM,
		// which is taken as the graceful shutdown signal for many systems, eg., Kubernetes, Gunicorn.
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)

		if err := s.Start(ctx); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "failed to start server")
			}
		}

		printGreetings(instanceProfile)

		<-c
		s.Shutdown(ctx)
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		instanceProfile, err := newProfile()
		if err != nil {
			return err
		}
		storeInstance, err := openStore(cmd.Context(), instanceProfile)
		if err != nil {
			return err
		}
		defer storeInstance.Close()

		schemaVersion, err := storeInstance.GetCurrentSchemaVersion()
		if err != nil {
			return err
		}
		fmt.Printf("schema version %s\n", schemaVersion)
		return nil
	},
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Regenerate missing summaries and embeddings once and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		instanceProfile, err := newProfile()
		if err != nil {
			return err
		}
		if !instanceProfile.IsAIEnabled() {
			return errors.New("AI is not enabled, set SAGA_AI_ENABLED=true")
		}
		storeInstance, err := openStore(cmd.Context(), instanceProfile)
		if err != nil {
			return err
		}
		defer storeInstance.Close()

		services, err := server.NewServices(instanceProfile, storeInstance, observability.NewMetrics())
		if err != nil {
			return err
		}
		stats := embedding.NewRunner(storeInstance, services.Entries, services.Metrics).RunOnce(cmd.Context())
		fmt.Printf("refreshed %d, still pending %d, failed %d\n", stats.Refreshed, stats.Pending, stats.Failed)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(*cobra.Command, []string) {
		fmt.Println(version.GetCurrentVersion(viper.GetString("mode")))
	},
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 8081)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 8081, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", `database driver, "sqlite" or "postgres"`)
	rootCmd.PersistentFlags().String("dsn", "", "database source name(aka. DSN)")
	rootCmd.PersistentFlags().String("instance-url", "", "the url of your saga instance")

	for _, key := range []string{"mode", "addr", "port", "data", "driver", "dsn", "instance-url"} {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(key)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("saga")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(serveCmd, migrateCmd, backfillCmd, versionCmd)
}

func newProfile() (*profile.Profile, error) {
	instanceProfile := &profile.Profile{
		Mode:        viper.GetString("mode"),
		Addr:        viper.GetString("addr"),
		Port:        viper.GetInt("port"),
		Data:        viper.GetString("data"),
		Driver:      viper.GetString("driver"),
		DSN:         viper.GetString("dsn"),
		InstanceURL: viper.GetString("instance-url"),
	}
	instanceProfile.FromEnv()
	if err := instanceProfile.Validate(); err != nil {
		return nil, err
	}
	instanceProfile.Version = version.GetCurrentVersion(instanceProfile.Mode)
	if instanceProfile.IsDev() {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}
	return instanceProfile, nil
}

// openStore connects to the database and brings its schema up to date.
func openStore(ctx context.Context, instanceProfile *profile.Profile) (*store.Store, error) {
	dbDriver, err := db.NewDBDriver(instanceProfile)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db driver")
	}
	storeInstance := store.New(dbDriver, instanceProfile)
	if err := storeInstance.Migrate(ctx); err != nil {
		storeInstance.Close()
		return nil, errors.Wrap(err, "failed to migrate")
	}
	return storeInstance, nil
}

func printGreetings(instanceProfile *profile.Profile) {
	fmt.Printf("Saga %s started successfully!\n", instanceProfile.Version)
	fmt.Printf("Data directory: %s\nDatabase driver: %s\nMode: %s\n", instanceProfile.Data, instanceProfile.Driver, instanceProfile.Mode)
	if instanceProfile.IsAIEnabled() {
		fmt.Println("AI: enabled")
	} else {
		fmt.Println("AI: disabled (set SAGA_AI_ENABLED=true to enable)")
	}
	if len(instanceProfile.Addr) == 0 {
		fmt.Printf("Server running on port %d\n", instanceProfile.Port)
	} else {
		fmt.Printf("Server running on address %s:%d\n", instanceProfile.Addr, instanceProfile.Port)
	}
}

func main() {
	// .env values never override variables already set in the environment.
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("saga exited with error", "error", err)
		os.Exit(1)
	}
}

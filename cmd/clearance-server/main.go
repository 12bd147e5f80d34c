package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nuvia/clearance/internal/config"
	"github.com/nuvia/clearance/internal/domain/eligibility"
	"github.com/nuvia/clearance/internal/platform/db"
	"github.com/nuvia/clearance/internal/platform/hipaa"
	"github.com/nuvia/clearance/internal/platform/sandbox"
	"github.com/nuvia/clearance/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "clearance-server",
		Short:        "Surgical clearance eligibility API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(accessLogCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the eligibility API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServer(cfg, newLogger(cfg))
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, _ := cmd.Flags().GetInt("to")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, migrations.FS)
			var count int
			if target > 0 {
				count, err = migrator.UpTo(ctx, target)
			} else {
				count, err = migrator.Up(ctx)
			}
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().Int("to", 0, "Apply migrations up to and including this version (0 = all)")
	cmd.AddCommand(upCmd)

	// migrate status
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrations.FS).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the demo providers and patients into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			synthetic, _ := cmd.Flags().GetInt("synthetic")
			seed, _ := cmd.Flags().GetInt64("seed")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Storage != config.StoragePostgres {
				return fmt.Errorf("seed writes to Postgres; set STORAGE=%s (memory stores seed with SEED_DEMO=true)", config.StoragePostgres)
			}
			logger := newLogger(cfg)

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := eligibility.NewService(eligibility.NewPGRepo(pool))
			svc.SetLogger(logger)
			svc.SetWriteTimeout(cfg.WriteTimeout)

			seedCfg := sandbox.DefaultSeedConfig()
			seedCfg.SyntheticPatients = synthetic
			seedCfg.Seed = seed
			res, err := sandbox.NewSeeder(svc, seedCfg, logger).Seed(ctx)
			if err != nil {
				return err
			}
			if res.Skipped {
				fmt.Println("Store already holds patients; demo roster skipped.")
				return nil
			}
			fmt.Printf("Seeded %d provider(s) and %d patient(s) in %s.\n", res.Providers, res.Patients, res.Duration.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().Int("synthetic", 0, "Number of generated patients to add to the demo roster")
	cmd.Flags().Int64("seed", 1, "Random seed for generated patients")
	return cmd
}

func accessLogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "access-log",
		Short: "Maintain the PHI access log",
	}

	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete access entries older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			olderThan, _ := cmd.Flags().GetDuration("older-than")
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			n, err := hipaa.NewAccessLogger(pool, newLogger(cfg)).Purge(ctx, time.Now().UTC().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d access entr(y/ies).\n", n)
			return nil
		},
	}
	purgeCmd.Flags().Duration("older-than", hipaa.DefaultRetention, "Delete entries recorded before now minus this duration")
	cmd.AddCommand(purgeCmd)

	return cmd
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger writes JSON to stdout, or a console format in development.
func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).Level(level).With().Timestamp().Logger()
	}
	return logger
}

// Command clearinghouse runs the perpetual-futures clearing house and its
// database migrations.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"PerpClearing/internal/config"
	"PerpClearing/migrations"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	v := config.NewViper()

	root := &cobra.Command{
		Use:           "clearinghouse",
		Short:         "Perpetual-futures clearing house",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(c *cobra.Command, _ []string) error {
			file, _ := c.Flags().GetString("config")
			if file == "" {
				return nil
			}
			v.SetConfigFile(file)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("read config %s: %w", file, err)
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (toml, yaml or json)")
	flags.String("postgres-dsn", "", "Postgres connection string")
	flags.String("log-level", "", "debug|info|warn|error")
	flags.String("migrations-dir", "", "read migrations from this directory instead of the embedded set")
	bindFlags(v, flags, "postgres-dsn", "log-level", "migrations-dir")

	root.AddCommand(serveCommand(v), migrateCommand(v))
	return root
}

// bindFlags lets a flag override the config file and environment, but only
// when it is set explicitly.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, names ...string) {
	for _, name := range names {
		if f := flags.Lookup(name); f != nil {
			// BindPFlag only fails on a nil flag.
			_ = v.BindPFlag(name, f)
		}
	}
}

// migrationFiles returns the embedded migrations unless dir is set.
func migrationFiles(dir string) fs.FS {
	if dir != "" {
		return os.DirFS(dir)
	}
	return migrations.FS
}

func openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return db, nil
}

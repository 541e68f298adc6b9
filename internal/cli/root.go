// Package cli wires the sked commands: the scheduler daemon and the
// job inspection/management subcommands.
package cli

import (
	"database/sql"

	"github.com/spf13/cobra"

	"github.com/marquev/sked/config"
	"github.com/marquev/sked/db"
	"github.com/marquev/sked/logger"
	"github.com/marquev/sked/store"
)

// env carries the shared state each command needs once flags are
// parsed: loaded config, initialized logger, open database.
type env struct {
	cfg  config.Config
	conn *sql.DB
	st   *store.Store
}

func (e *env) close() {
	if e.conn != nil {
		e.conn.Close()
	}
	logger.Cleanup()
}

// NewRootCmd builds the sked command tree.
func NewRootCmd() *cobra.Command {
	var configPath string
	var jsonLogs bool

	cmd := &cobra.Command{
		Use:           "sked",
		Short:         "Persistent job scheduler",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to TOML config file")
	cmd.PersistentFlags().BoolVar(&jsonLogs, "json", false, "JSON log output")

	setup := func() (*env, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		if jsonLogs {
			cfg.JSONLogs = true
		}
		if err := logger.Initialize(cfg.JSONLogs); err != nil {
			return nil, err
		}

		conn, err := db.Open(cfg.DatabasePath, logger.Logger)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(conn, logger.Logger); err != nil {
			conn.Close()
			return nil, err
		}

		return &env{cfg: cfg, conn: conn, st: store.New(conn)}, nil
	}

	cmd.AddCommand(NewDaemonCmd(setup))
	cmd.AddCommand(NewJobsCmd(setup))
	return cmd
}

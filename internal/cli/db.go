package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Brownie44l1/skinlens/internal/config"
	"github.com/Brownie44l1/skinlens/internal/domain/entity"
	"github.com/Brownie44l1/skinlens/internal/storage/postgres"
)

var (
	// db is opened by the database commands' PersistentPreRunE.
	db       *postgres.Store
	dbURL    string
	resetYes bool
)

func openDB(cmd *cobra.Command, args []string) error {
	cfg := config.LoadDatabase()
	if dbURL != "" {
		cfg.URL = dbURL
	}
	if cfg.URL == "" {
		return fmt.Errorf("no database configured: set DATABASE_URL or pass --db")
	}

	var err error
	db, err = postgres.Connect(cmd.Context(), cfg.URL, cfg.ConnectTimeout, log.Desugar())
	return err
}

func closeDB(cmd *cobra.Command, args []string) {
	if db != nil {
		db.Close()
	}
	if log != nil {
		_ = log.Sync()
	}
}

// withDB makes cmd connect to Postgres before running. The root pre-run is
// chained explicitly since cobra only runs the nearest one.
func withDB(cmd *cobra.Command) *cobra.Command {
	cmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string (default: $DATABASE_URL)")
	cmd.PersistentPreRunE = func(c *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(c, args); err != nil {
			return err
		}
		return openDB(c, args)
	}
	cmd.PersistentPostRun = closeDB
	return cmd
}

var dbCmd = withDB(&cobra.Command{
	Use:   "db",
	Short: "Manage the web API database",
})

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create missing tables and indexes",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := db.Migrate(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date.")
		return nil
	},
}

var dbResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop every table and recreate the schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !resetYes && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Drop all users, posts, uploads and escalations?") {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
			return nil
		}
		if err := db.Reset(cmd.Context()); err != nil {
			return fmt.Errorf("failed to reset database: %w", err)
		}
		if err := db.Migrate(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Database reset.")
		return nil
	},
}

var userCmd = withDB(&cobra.Command{
	Use:   "user",
	Short: "Manage web API accounts",
})

var userRoleCmd = &cobra.Command{
	Use:   "role <username> <admin|doctor|patient>",
	Short: "Change an account's role",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setRole(cmd.Context(), db.Users, args[0], entity.Role(args[1]), cmd.OutOrStdout())
	},
}

type roleSetter interface {
	SetRole(ctx context.Context, username string, role entity.Role) error
}

func setRole(ctx context.Context, users roleSetter, username string, role entity.Role, out io.Writer) error {
	if !role.Valid() {
		return fmt.Errorf("unknown role %q", role)
	}
	if err := users.SetRole(ctx, username, role); err != nil {
		return fmt.Errorf("failed to update %s: %w", username, err)
	}
	fmt.Fprintf(out, "%s is now %s\n", username, role)
	return nil
}

func init() {
	dbResetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Skip the confirmation prompt")
	dbCmd.AddCommand(dbMigrateCmd, dbResetCmd)
	userCmd.AddCommand(userRoleCmd)
	rootCmd.AddCommand(dbCmd, userCmd)
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	res, _ := bufio.NewReader(in).ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

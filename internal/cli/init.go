package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/example/harness/internal/config"
	"github.com/example/harness/internal/db"
)

// InitCmd returns the init command
func InitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write .harness/config.json with defaults",
		Long: `Write .harness/config.json in the current directory (or --dir).

Examples:
  harness init
  harness init --harness web --backend beads`,
		RunE: func(cmd *cobra.Command, args []string) error {
			harnessID, _ := cmd.Flags().GetString("harness")
			backend, _ := cmd.Flags().GetString("backend")
			force, _ := cmd.Flags().GetBool("force")

			_, err := config.LoadConfig(globalDir)
			if err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", filepath.Join(globalDir, config.Dir, "config.json"))
			}
			if err != nil && !errors.Is(err, fs.ErrNotExist) && !force {
				return err
			}

			cfg := config.Default()
			if harnessID != "" {
				cfg.HarnessID = harnessID
			}
			if backend != "" {
				cfg.Store.Backend = backend
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.SaveConfig(globalDir, cfg); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Created %s (harness %s, %s store)\n", filepath.Join(globalDir, config.Dir, "config.json"), cfg.HarnessID, cfg.Store.Backend)

			if cfg.Store.Backend == config.BackendSQLite {
				dbPath, err := db.ResolvePath(cfg.Store.DBPath)
				if err != nil {
					return err
				}
				database, err := db.Open(dbPath)
				if err != nil {
					return err
				}
				database.Close()
				fmt.Fprintf(out, "✓ Database ready at %s\n", dbPath)
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Next steps:")
			fmt.Fprintln(out, "  harness issue create \"First task\" --ready")
			fmt.Fprintln(out, "  harness run --once")
			return nil
		},
	}

	cmd.Flags().String("harness", "", "Harness id (default \"main\")")
	cmd.Flags().String("backend", "", "Issue store: sqlite or beads (default sqlite)")
	cmd.Flags().BoolP("force", "f", false, "Overwrite an existing config")
	return cmd
}

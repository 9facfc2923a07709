package cli

import (
	gocontext "context"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/harness/internal/ctxutil"
	"github.com/example/harness/internal/logging"
	"github.com/example/harness/internal/wire"
)

// Global flags shared by every command.
var (
	globalDir     string
	globalVerbose bool
	globalLogJSON bool
)

// ConfigureRoot registers the persistent flags and wires services before
// any subcommand runs.
func ConfigureRoot(root *cobra.Command) {
	root.PersistentFlags().StringVarP(&globalDir, "dir", "C", ".", "Directory holding .harness/")
	root.PersistentFlags().BoolVarP(&globalVerbose, "verbose", "v", false, "Debug logging")
	root.PersistentFlags().BoolVar(&globalLogJSON, "log-json", false, "Log JSON records instead of text")

	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		wire.Configure(globalDir, logging.New(os.Stderr, globalVerbose, globalLogJSON))
	}
	root.SilenceUsage = true
}

// NewContext returns the context for one CLI invocation, attributing
// mutations to the local user.
func NewContext() gocontext.Context {
	ctx := gocontext.Background()
	if user := os.Getenv("USER"); user != "" {
		return ctxutil.WithActorID(ctx, "cli:"+user)
	}
	return ctx
}

package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chainguard-dev/clog"
	"github.com/cloudbees-io/checkout/internal/checkout"
	"github.com/cloudbees-io/checkout/internal/core"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	cmd = &cobra.Command{
		Use:          "checkout",
		Short:        "Checks out a git repository into the CloudBees workspace",
		Long:         "Checks out a git repository into the CloudBees workspace, reusing a previous checkout when it is safe to do so",
		SilenceUsage: true,
		RunE:         doCheckout,
	}
	cfg      checkout.Config
	logLevel string
)

func Execute() error {
	return cmd.Execute()
}

func init() {
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Minimum level of the log messages to print, one of `debug`, `info`, `warn` or `error`")

	f := cmd.Flags()
	f.StringVar(&cfg.Repository, "repository", "", "Repository clone URL, https or ssh")
	f.StringVar(&cfg.Ref, "ref", "", "Branch, tag or SHA to check out. Defaults to the event's ref for the event's own repository, otherwise to the default branch")
	f.StringVar(&cfg.Path, "path", "", "Relative path under $CLOUDBEES_WORKSPACE to place the repository")
	f.BoolVar(&cfg.Clean, "clean", false, "Whether to run git clean -ffdx and git reset --hard HEAD on a reused checkout")
	f.IntVar(&cfg.FetchDepth, "fetch-depth", 1, "Number of commits to fetch, 0 for the whole history")
	f.BoolVar(&cfg.SetSafeDirectory, "set-safe-directory", true, "Add the workspace as safe.directory in the global git config")

	cmd.AddCommand(prepareCmd)
}

// signalContext is canceled by the first SIGINT or SIGTERM. Once it is canceled the signals are released, so a
// second one terminates the process.
func signalContext() context.Context {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()
	return ctx
}

// loggingContext returns a context carrying a logger that tags every line with an id unique to this run
func loggingContext(ctx context.Context) (context.Context, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, err
	}
	logger := core.NewLogger(os.Stderr, level).With("run", uuid.New().String())
	return clog.WithLogger(ctx, logger), nil
}

func doCheckout(command *cobra.Command, args []string) error {
	ctx, err := loggingContext(signalContext())
	if err != nil {
		return err
	}
	return cfg.Run(ctx)
}

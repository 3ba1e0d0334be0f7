package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/cloudbees-io/checkout/internal/checkout"
	"github.com/cloudbees-io/checkout/internal/core"
	"github.com/cloudbees-io/checkout/internal/git"
	"github.com/spf13/cobra"
)

var (
	prepareCmd = &cobra.Command{
		Use:   "prepare",
		Short: "Prepares an existing directory for a checkout",
		Long: "Prepares an existing directory for a checkout. A working copy of the same repository is reset " +
			"and kept, anything else is deleted.",
		SilenceUsage: true,
		RunE:         doPrepare,
	}
	prepareCfg struct {
		path       string
		repository string
		clean      bool
	}
)

func init() {
	prepareCmd.Flags().StringVar(&prepareCfg.path, "path", "", "Directory to prepare")
	prepareCmd.Flags().StringVar(&prepareCfg.repository, "repository", "", "Repository clone URL")
	prepareCmd.Flags().BoolVar(&prepareCfg.clean, "clean", false, "Whether to remove untracked files and reset tracked files")
	_ = prepareCmd.MarkFlagRequired("path")
	_ = prepareCmd.MarkFlagRequired("repository")
}

// commandManager returns the in-process git backend for path, or nil if path does not hold a usable repository
func commandManager(ctx context.Context, path string) checkout.CommandManager {
	e, err := git.OpenEmbedded(path)
	if err != nil {
		core.Debug(ctx, "%v", err)
		return nil
	}
	return e
}

func doPrepare(command *cobra.Command, args []string) error {
	ctx, err := loggingContext(signalContext())
	if err != nil {
		return err
	}

	path, err := filepath.Abs(prepareCfg.path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(path, os.ModePerm); err != nil {
		return err
	}

	core.StartGroup("Preparing the existing directory")
	if err := checkout.PrepareDirectory(ctx, commandManager(ctx, path), path, prepareCfg.repository, prepareCfg.clean); err != nil {
		return err
	}
	core.EndGroup("Existing directory prepared")
	return nil
}

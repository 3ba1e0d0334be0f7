package checkout

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cloudbees-io/checkout/internal/core"
)

// CommandManager is the set of git operations needed to decide whether an existing working copy can be reused.
// The try* operations report failure through their result rather than an error.
type CommandManager interface {
	TryGetRemoteURL() string
	TryClean() bool
	TryReset() bool
	IsDetached() (bool, error)
	CheckoutDetach() error
	BranchList(remote bool) ([]string, error)
	BranchDelete(remote bool, branch string) error
	SetRemoteURL(url string) error
}

// PrepareDirectory reconciles repositoryPath against repository, accepting any equivalent spelling of the
// repository URL as an existing origin
func PrepareDirectory(ctx context.Context, cli CommandManager, repositoryPath string, repository string, clean bool) error {
	cloneURL, err := normalizeRepositoryURL(repository)
	if err != nil {
		return err
	}
	return prepareExistingDirectory(ctx, cli, repositoryPath, cloneURL, validRemoteURLs(cloneURL), clean)
}

// prepareExistingDirectory leaves repositoryPath either holding a git repository that is safe to fetch into, with
// its origin set to repositoryURL, or empty. A nil cli means git cannot be used, so the directory is emptied.
//
// The directory is only reused when its origin is one of validRemoteURLs (compared exactly). The origin is then
// rewritten to repositoryURL if it is spelled differently. Any failure while resetting a reusable repository is
// logged as a warning and the directory is emptied instead.
func prepareExistingDirectory(ctx context.Context, cli CommandManager, repositoryPath string, repositoryURL string, validRemoteURLs []string, clean bool) error {
	remoteURL, reason := reusableRemoteURL(cli, repositoryPath, validRemoteURLs)
	if reason != "" {
		core.Debug(ctx, "Not reusing '%s': %s", repositoryPath, reason)
		return removeContents(ctx, repositoryPath)
	}

	if err := resetExistingRepository(ctx, cli, repositoryPath, repositoryURL, remoteURL, clean); err != nil {
		core.Warning(ctx, "%v", err)
		core.Warning(ctx, "Unable to prepare the existing Repository. The Repository will be recreated instead.")
		return removeContents(ctx, repositoryPath)
	}

	return nil
}

// reusableRemoteURL runs the checks that decide whether repositoryPath may be reused, in order. It returns the
// configured origin URL, or the reason the directory cannot be reused.
func reusableRemoteURL(cli CommandManager, repositoryPath string, validRemoteURLs []string) (remoteURL string, reason string) {
	if stat, err := os.Stat(filepath.Join(repositoryPath, ".git")); err != nil || !stat.IsDir() {
		return "", "no .git directory"
	}

	if cli == nil {
		return "", "git is not available"
	}

	remoteURL = cli.TryGetRemoteURL()
	if remoteURL == "" {
		return "", "origin URL could not be determined"
	}

	if !slices.Contains(validRemoteURLs, remoteURL) {
		return "", fmt.Sprintf("origin URL '%s' belongs to a different repository", remoteURL)
	}

	return remoteURL, ""
}

func resetExistingRepository(ctx context.Context, cli CommandManager, repositoryPath string, repositoryURL string, remoteURL string, clean bool) error {
	// Locks left behind by a canceled run or a crashed process would block every git command that follows
	if err := removeLockFiles(ctx, filepath.Join(repositoryPath, ".git")); err != nil {
		return err
	}

	if clean {
		if !cli.TryClean() {
			return fmt.Errorf("the clean command failed. This might be caused by: 1) path too long, 2) permission issue, or 3) file in use. For further investigation, manually run 'git clean -ffdx' on the directory '%s'", repositoryPath)
		}
		if !cli.TryReset() {
			return errors.New("the reset command failed")
		}
	}

	core.Info(ctx, "Removing previously created refs, to avoid conflicts")

	// checkout detached HEAD so that we can remove all branches safely
	detached, err := cli.IsDetached()
	if err != nil {
		return fmt.Errorf("determining whether HEAD is detached: %w", err)
	}
	if !detached {
		if err := cli.CheckoutDetach(); err != nil {
			return fmt.Errorf("detaching HEAD: %w", err)
		}
	}

	for _, remote := range []bool{false, true} {
		branches, err := cli.BranchList(remote)
		if err != nil {
			return fmt.Errorf("listing branches: %w", err)
		}
		for _, b := range branches {
			if err := cli.BranchDelete(remote, b); err != nil {
				return fmt.Errorf("deleting branch '%s': %w", b, err)
			}
		}
	}

	if remoteURL != repositoryURL {
		core.Info(ctx, "Updating the origin URL from '%s' to '%s'", remoteURL, repositoryURL)
		if err := cli.SetRemoteURL(repositoryURL); err != nil {
			return fmt.Errorf("updating the origin URL: %w", err)
		}
	}

	return nil
}

// removeLockFiles deletes the *.lock files directly inside gitDir
func removeLockFiles(ctx context.Context, gitDir string) error {
	entries, err := os.ReadDir(gitDir)
	if err != nil {
		return err
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".lock") {
			continue
		}
		lockPath := filepath.Join(gitDir, e.Name())
		core.Debug(ctx, "Removing stale lock '%s'", lockPath)
		if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("unable to delete '%s': %w", lockPath, err)
		}
	}
	return nil
}

// removeContents deletes everything inside repositoryPath. The directory itself is kept since it might be the
// current working directory.
func removeContents(ctx context.Context, repositoryPath string) (reterr error) {
	d, err := os.Open(repositoryPath)
	if err != nil {
		return err
	}
	defer (func() {
		err := d.Close()
		if err != nil && reterr == nil {
			reterr = err
		}
	})()

	names, err := d.Readdirnames(-1)
	if err != nil {
		return err
	}

	if len(names) == 0 {
		return nil
	}

	core.Info(ctx, "Deleting the contents of '%s'", repositoryPath)

	var errs []error
	for _, name := range names {
		if err := os.RemoveAll(filepath.Join(repositoryPath, name)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

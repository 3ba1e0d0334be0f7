package git

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/format/index"
)

// Embedded works on a local working copy in-process using go-git, without needing a git executable.
// It only supports the operations needed to decide whether an existing working copy can be reused.
type Embedded struct {
	path string
	repo *gogit.Repository
}

// OpenEmbedded opens the working copy at path. It fails if path does not hold a readable git repository.
func OpenEmbedded(path string) (*Embedded, error) {
	repo, err := gogit.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("opening repository at '%s': %w", path, err)
	}
	return &Embedded{path: path, repo: repo}, nil
}

// Path returns the working copy this Embedded operates on
func (e *Embedded) Path() string {
	return e.path
}

func (e *Embedded) TryGetRemoteURL() string {
	remote, err := e.repo.Remote(defaultRemote)
	if err != nil {
		return ""
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return ""
	}
	return strings.TrimSpace(urls[0])
}

// TryClean removes every untracked file and directory, ignored ones included, like `git clean -ffdx`. Nested
// repositories are removed too; submodules, which the index records, are left alone.
func (e *Embedded) TryClean() bool {
	idx, err := e.repo.Storer.Index()
	if err != nil {
		return false
	}

	tracked := make(map[string]bool, len(idx.Entries))
	for _, entry := range idx.Entries {
		tracked[entry.Name] = true
		for dir := path.Dir(entry.Name); dir != "."; dir = path.Dir(dir) {
			tracked[dir] = true
		}
	}

	err = filepath.WalkDir(e.path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(e.path, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		name := filepath.ToSlash(rel)
		if name == ".git" {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !tracked[name] {
			if err := os.RemoveAll(p); err != nil {
				return err
			}
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() && isGitlink(idx, name) {
			return filepath.SkipDir
		}
		return nil
	})
	return err == nil
}

func isGitlink(idx *index.Index, name string) bool {
	entry, err := idx.Entry(name)
	return err == nil && entry.Mode == filemode.Submodule
}

// TryReset restores the tracked files and the index to HEAD
func (e *Embedded) TryReset() bool {
	wt, err := e.repo.Worktree()
	if err != nil {
		return false
	}
	return wt.Reset(&gogit.ResetOptions{Mode: gogit.HardReset}) == nil
}

// IsDetached returns true if HEAD points directly at a commit rather than at a local branch
func (e *Embedded) IsDetached() (bool, error) {
	head, err := e.repo.Reference(plumbing.HEAD, false)
	if err != nil {
		return false, err
	}
	if head.Type() != plumbing.SymbolicReference {
		return true, nil
	}
	return !head.Target().IsBranch(), nil
}

// CheckoutDetach points HEAD at the commit it currently resolves to. The working tree is left untouched.
func (e *Embedded) CheckoutDetach() error {
	head, err := e.repo.Head()
	if err != nil {
		return fmt.Errorf("resolving HEAD: %w", err)
	}
	return e.repo.Storer.SetReference(plumbing.NewHashReference(plumbing.HEAD, head.Hash()))
}

// BranchList returns the short names of the local branches, or of the origin remote-tracking branches prefixed
// with "origin/" when remote is true
func (e *Embedded) BranchList(remote bool) ([]string, error) {
	refs, err := e.repo.References()
	if err != nil {
		return nil, err
	}
	defer refs.Close()

	remotePrefix := "refs/remotes/" + defaultRemote + "/"

	var result []string
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name()
		switch {
		case remote && strings.HasPrefix(name.String(), remotePrefix):
			result = append(result, strings.TrimPrefix(name.String(), "refs/remotes/"))
		case !remote && name.IsBranch():
			result = append(result, name.Short())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Embedded) BranchDelete(remote bool, branch string) error {
	if remote {
		return e.repo.Storer.RemoveReference(plumbing.ReferenceName("refs/remotes/" + branch))
	}

	if err := e.repo.Storer.RemoveReference(plumbing.NewBranchReferenceName(branch)); err != nil {
		return err
	}
	// drop any tracking configuration along with the ref
	if err := e.repo.DeleteBranch(branch); err != nil && !errors.Is(err, gogit.ErrBranchNotFound) {
		return err
	}
	return nil
}

func (e *Embedded) SetRemoteURL(url string) error {
	cfg, err := e.repo.Config()
	if err != nil {
		return err
	}
	remote, ok := cfg.Remotes[defaultRemote]
	if !ok {
		return fmt.Errorf("remote '%s' is not configured", defaultRemote)
	}
	remote.URLs = []string{url}
	return e.repo.Storer.SetConfig(cfg)
}

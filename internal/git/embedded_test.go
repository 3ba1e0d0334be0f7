package git

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

const testRemoteURL = "https://github.com/my-org/my-repo"

// initRepository creates a working copy with one commit on master, a feature branch and a remote-tracking branch
func initRepository(t *testing.T) (string, *gogit.Repository, plumbing.Hash) {
	t.Helper()
	dir := t.TempDir()

	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)

	_, err = repo.CreateRemote(&config.RemoteConfig{Name: "origin", URLs: []string{testRemoteURL}})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "tracked.txt"), []byte("v1\n"), 0644))
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("tracked.txt")
	require.NoError(t, err)
	hash, err := wt.Commit("initial", &gogit.CommitOptions{
		Author: &object.Signature{Name: "ci", Email: "ci@example.com", When: time.Unix(1700000000, 0)},
	})
	require.NoError(t, err)

	require.NoError(t, repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("feature"), hash)))
	require.NoError(t, repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewRemoteReferenceName("origin", "main"), hash)))

	return dir, repo, hash
}

func TestOpenEmbedded_NotARepository(t *testing.T) {
	_, err := OpenEmbedded(t.TempDir())
	require.Error(t, err)
}

func TestEmbedded_TryGetRemoteURL(t *testing.T) {
	dir, _, _ := initRepository(t)
	e, err := OpenEmbedded(dir)
	require.NoError(t, err)
	require.Equal(t, dir, e.Path())
	require.Equal(t, testRemoteURL, e.TryGetRemoteURL())
}

func TestEmbedded_TryGetRemoteURL_NoRemote(t *testing.T) {
	dir := t.TempDir()
	_, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)

	e, err := OpenEmbedded(dir)
	require.NoError(t, err)
	require.Equal(t, "", e.TryGetRemoteURL())
}

func TestEmbedded_Detach(t *testing.T) {
	dir, repo, hash := initRepository(t)
	e, err := OpenEmbedded(dir)
	require.NoError(t, err)

	detached, err := e.IsDetached()
	require.NoError(t, err)
	require.False(t, detached)

	require.NoError(t, e.CheckoutDetach())

	detached, err = e.IsDetached()
	require.NoError(t, err)
	require.True(t, detached)

	head, err := repo.Head()
	require.NoError(t, err)
	require.Equal(t, hash, head.Hash())
}

func TestEmbedded_Branches(t *testing.T) {
	dir, repo, _ := initRepository(t)
	e, err := OpenEmbedded(dir)
	require.NoError(t, err)

	local, err := e.BranchList(false)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"master", "feature"}, local)

	remote, err := e.BranchList(true)
	require.NoError(t, err)
	require.Equal(t, []string{"origin/main"}, remote)

	require.NoError(t, e.CheckoutDetach())
	for _, b := range local {
		require.NoError(t, e.BranchDelete(false, b))
	}
	for _, b := range remote {
		require.NoError(t, e.BranchDelete(true, b))
	}

	local, err = e.BranchList(false)
	require.NoError(t, err)
	require.Empty(t, local)
	remote, err = e.BranchList(true)
	require.NoError(t, err)
	require.Empty(t, remote)

	// objects survive, so HEAD still resolves
	_, err = repo.Head()
	require.NoError(t, err)
}

func TestEmbedded_SetRemoteURL(t *testing.T) {
	dir, _, _ := initRepository(t)
	e, err := OpenEmbedded(dir)
	require.NoError(t, err)

	require.NoError(t, e.SetRemoteURL("git@github.com:my-org/my-repo"))

	reopened, err := OpenEmbedded(dir)
	require.NoError(t, err)
	require.Equal(t, "git@github.com:my-org/my-repo", reopened.TryGetRemoteURL())
}

func TestEmbedded_SetRemoteURL_NoRemote(t *testing.T) {
	dir := t.TempDir()
	_, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)

	e, err := OpenEmbedded(dir)
	require.NoError(t, err)
	require.Error(t, e.SetRemoteURL(testRemoteURL))
}

func TestEmbedded_CleanAndReset(t *testing.T) {
	dir, _, _ := initRepository(t)
	e, err := OpenEmbedded(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "untracked.txt"), []byte("junk"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tracked.txt"), []byte("modified\n"), 0644))

	require.True(t, e.TryClean())
	require.NoFileExists(t, filepath.Join(dir, "untracked.txt"))

	require.True(t, e.TryReset())
	b, err := os.ReadFile(filepath.Join(dir, "tracked.txt"))
	require.NoError(t, err)
	require.Equal(t, "v1\n", string(b))
}

func TestEmbedded_TryCleanRemovesIgnoredFiles(t *testing.T) {
	dir, repo, _ := initRepository(t)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "main.go"), []byte("package main\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("*.log\nout/\n"), 0644))
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("src/main.go")
	require.NoError(t, err)
	_, err = wt.Add(".gitignore")
	require.NoError(t, err)
	_, err = wt.Commit("sources", &gogit.CommitOptions{
		Author: &object.Signature{Name: "ci", Email: "ci@example.com", When: time.Unix(1700000100, 0)},
	})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "build.log"), []byte("log"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "out", "bin"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "out", "bin", "app"), []byte("elf"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "generated.go"), []byte("package main\n"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "empty"), 0755))

	e, err := OpenEmbedded(dir)
	require.NoError(t, err)
	require.True(t, e.TryClean())

	require.NoFileExists(t, filepath.Join(dir, "build.log"))
	require.NoDirExists(t, filepath.Join(dir, "out"))
	require.NoDirExists(t, filepath.Join(dir, "empty"))
	require.NoFileExists(t, filepath.Join(dir, "src", "generated.go"))

	require.FileExists(t, filepath.Join(dir, "src", "main.go"))
	require.FileExists(t, filepath.Join(dir, ".gitignore"))
	require.FileExists(t, filepath.Join(dir, "tracked.txt"))
	require.DirExists(t, filepath.Join(dir, ".git"))
}

package git

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/cloudbees-io/checkout/internal/core"
)

const (
	defaultRemote = "origin"

	// ceilingEnv stops git from looking above the working copy for a repository
	ceilingEnv = "GIT_CEILING_DIRECTORIES"
)

// GitCLI runs the git executable against one working copy.
type GitCLI struct {
	ctx  context.Context
	exe  string
	env  map[string]string
	cwd  string
	echo bool
}

// NewGitCLI locates git on the PATH and binds it to the current directory
func NewGitCLI(ctx context.Context) (*GitCLI, error) {
	exe, err := exec.LookPath("git")
	if errors.Is(err, exec.ErrDot) {
		exe, err = filepath.Abs(exe)
	}
	if err != nil {
		return nil, fmt.Errorf("locating git: %w", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	g := &GitCLI{ctx: ctx, exe: exe, env: envEntriesToMap(os.Environ()), echo: true}
	g.SetCwd(cwd)
	return g, nil
}

func (g *GitCLI) SetEnv(key string, val string) {
	g.env[key] = val
}

// SetCwd points the GitCLI at the working copy in cwd. Repository discovery never leaves cwd, so a broken .git
// there is reported as an error instead of resolving to an enclosing repository.
func (g *GitCLI) SetCwd(cwd string) {
	g.cwd = cwd
	g.env[ceilingEnv] = filepath.Dir(cwd)
}

func (g *GitCLI) Cwd() string {
	return g.cwd
}

func (g *GitCLI) Executable() string {
	return g.exe
}

// exec runs git and returns what it wrote to stdout. When stream is set the command line is logged and the output
// is mirrored to the console as well.
func (g *GitCLI) exec(stream bool, args ...string) (string, error) {
	c := exec.CommandContext(g.ctx, g.exe, args...)
	c.Dir = g.cwd
	c.Env = envMapToEntries(g.env)

	var stdout strings.Builder
	c.Stdout = &stdout
	if stream {
		if g.echo {
			core.Info(g.ctx, "%s", commandLine(g.exe, args))
		}
		c.Stdout = io.MultiWriter(os.Stdout, &stdout)
		c.Stderr = os.Stderr
	}

	err := c.Run()
	core.Debug(g.ctx, "git %s exited with status %d", args[0], exitCode(err))
	return stdout.String(), err
}

func (g *GitCLI) run(args ...string) error {
	_, err := g.exec(true, args...)
	return err
}

func (g *GitCLI) output(args ...string) (string, error) {
	out, err := g.exec(false, args...)
	return strings.TrimSpace(out), err
}

func exitCode(err error) int {
	var e *exec.ExitError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &e):
		return e.ExitCode()
	default:
		return 126
	}
}

// TryGetRemoteURL returns the origin URL from the local config, or "" if it cannot be read
func (g *GitCLI) TryGetRemoteURL() string {
	url, err := g.output("config", "--local", "--get", "remote."+defaultRemote+".url")
	if err != nil {
		return ""
	}
	return url
}

func (g *GitCLI) TryClean() bool {
	return g.run("clean", "-ffdx") == nil
}

func (g *GitCLI) TryReset() bool {
	return g.run("reset", "--hard", "HEAD") == nil
}

// IsDetached reports whether HEAD does not name a local branch
func (g *GitCLI) IsDetached() (bool, error) {
	// rev-parse is plumbing, `branch --show-current` is not
	head, err := g.output("rev-parse", "--symbolic-full-name", "--verify", "--quiet", "HEAD")
	if err != nil {
		return false, err
	}
	return !strings.HasPrefix(head, "refs/heads/"), nil
}

func (g *GitCLI) CheckoutDetach() error {
	return g.run("checkout", "--detach")
}

// BranchList returns local branch names, or origin/<name> for the remote-tracking branches of origin
func (g *GitCLI) BranchList(remote bool) ([]string, error) {
	selector := "--branches"
	if remote {
		selector = "--remotes=" + defaultRemote
	}

	out, err := g.output("rev-parse", "--symbolic-full-name", selector)
	if err != nil {
		return nil, err
	}

	var branches []string
	for _, line := range strings.Split(out, "\n") {
		name := strings.TrimSpace(line)
		if name == "" {
			continue
		}
		for _, prefix := range []string{"refs/heads/", "refs/remotes/"} {
			if short, ok := strings.CutPrefix(name, prefix); ok {
				name = short
				break
			}
		}
		branches = append(branches, name)
	}
	return branches, nil
}

func (g *GitCLI) BranchDelete(remote bool, branch string) error {
	args := []string{"branch", "--delete", "--force"}
	if remote {
		args = append(args, "--remote")
	}
	return g.run(append(args, branch)...)
}

func (g *GitCLI) SetRemoteURL(url string) error {
	return g.run("remote", "set-url", defaultRemote, url)
}

func (g *GitCLI) Init(path string) error {
	return g.run("init", path)
}

func (g *GitCLI) RemoteAdd(name string, url string) error {
	return g.run("remote", "add", name, url)
}

func configScope(global bool) string {
	if global {
		return "--global"
	}
	return "--local"
}

func (g *GitCLI) SetConfig(global bool, key string, val string) error {
	return g.run("config", configScope(global), key, val)
}

func (g *GitCLI) AddConfig(global bool, key string, val string) error {
	return g.run("config", configScope(global), "--add", key, val)
}

// DefaultBranch asks the remote which ref its HEAD points at
func (g *GitCLI) DefaultBranch(repositoryURL string) (string, error) {
	out, err := g.exec(true, "ls-remote", "--quiet", "--exit-code", "--symref", repositoryURL, "HEAD")
	if err != nil {
		return "", err
	}

	for _, line := range strings.Split(out, "\n") {
		rest, ok := strings.CutPrefix(strings.TrimSpace(line), "ref:")
		if ok && strings.HasSuffix(rest, "HEAD") {
			return strings.TrimSpace(strings.TrimSuffix(rest, "HEAD")), nil
		}
	}
	return "", errors.New("unexpected output when retrieving default branch")
}

func (g *GitCLI) BranchExists(remote bool, pattern string) (bool, error) {
	args := []string{"branch", "--list"}
	if remote {
		args = append(args, "--remote")
	}
	out, err := g.output(append(args, pattern)...)
	return out != "", err
}

func (g *GitCLI) TagExists(pattern string) (bool, error) {
	out, err := g.output("tag", "--list", pattern)
	return out != "", err
}

func (g *GitCLI) ShaExists(sha string) (bool, error) {
	_, err := g.output("rev-parse", "--verify", "--quiet", sha+"^{object}")
	if e := (&exec.ExitError{}); errors.As(err, &e) {
		return false, nil
	}
	return err == nil, err
}

func (g *GitCLI) RevParse(ref string) (string, error) {
	return g.output("rev-parse", ref)
}

// HeadCommit returns the SHA of HEAD
func (g *GitCLI) HeadCommit() (string, error) {
	return g.output("rev-parse", "HEAD")
}

// CurrentBranch returns the short name of the checked out branch, or "" when HEAD is detached
func (g *GitCLI) CurrentBranch() (string, error) {
	branch, err := g.output("rev-parse", "--abbrev-ref", "HEAD")
	if err != nil || branch == "HEAD" {
		return "", err
	}
	return branch, nil
}

// Fetch fetches refSpec from origin. A depth of zero fetches the whole history, unshallowing a shallow clone.
func (g *GitCLI) Fetch(refSpec []string, depth int) error {
	args := []string{"-c", "protocol.version=2", "fetch"}
	if !slices.Contains(refSpec, "+refs/tags/*:refs/tags/*") {
		args = append(args, "--no-tags")
	}
	args = append(args, "--prune", "--progress", "--no-recurse-submodules")

	if depth > 0 {
		args = append(args, "--depth="+strconv.Itoa(depth))
	} else {
		out, err := g.output("rev-parse", "--is-shallow-repository")
		if err != nil {
			return err
		}
		if shallow, _ := strconv.ParseBool(out); shallow {
			args = append(args, "--unshallow")
		}
	}

	args = append(args, defaultRemote)
	return g.run(append(args, refSpec...)...)
}

func (g *GitCLI) Checkout(ref string, startPoint string) error {
	args := []string{"checkout", "--progress", "--force"}
	if startPoint != "" {
		args = append(args, "-B", ref, startPoint)
	} else {
		args = append(args, ref)
	}
	return g.run(args...)
}

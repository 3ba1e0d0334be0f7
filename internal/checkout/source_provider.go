package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/cloudbees-io/checkout/internal/core"
	"github.com/cloudbees-io/checkout/internal/git"
)

// Config holds the inputs of a checkout run
type Config struct {
	Repository       string
	Ref              string
	Path             string
	Clean            bool
	FetchDepth       int
	SetSafeDirectory bool

	commit   string
	cloneURL string
	event    map[string]any
	env      *Environment
}

// workingCopy is the git surface a checkout run drives
type workingCopy interface {
	CommandManager
	refResolver
	SetEnv(key string, val string)
	SetCwd(cwd string)
	Init(path string) error
	RemoteAdd(name string, url string) error
	SetConfig(global bool, key string, val string) error
	AddConfig(global bool, key string, val string) error
	DefaultBranch(repositoryURL string) (string, error)
	Fetch(refSpec []string, depth int) error
	Checkout(ref string, startPoint string) error
	HeadCommit() (string, error)
	CurrentBranch() (string, error)
}

var shaRegex = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)

// Run checks out the configured repository into the workspace
func (cfg *Config) Run(ctx context.Context) error {
	env, err := LoadEnvironment(ctx)
	if err != nil {
		return err
	}
	cfg.env = env

	if err := cfg.validate(ctx); err != nil {
		return err
	}

	cli, err := git.NewGitCLI(ctx)
	if err != nil {
		return err
	}
	return cfg.checkout(ctx, cli)
}

func (cfg *Config) validate(ctx context.Context) error {
	event, err := loadEventContext(cfg.env.EventPath)
	if err != nil {
		return fmt.Errorf("loading event context: %w", err)
	}
	cfg.event = event

	workspace := filepath.Clean(cfg.env.Workspace)
	if err := core.DirExists(workspace, true); err != nil {
		return err
	}

	if cfg.cloneURL, err = normalizeRepositoryURL(cfg.Repository); err != nil {
		return err
	}

	if cfg.Path == "" {
		cfg.Path = "."
	}
	if p := filepath.Join(workspace, cfg.Path); !isUnder(p, workspace) {
		return fmt.Errorf("repository path '%s' is not under '%s'", p, workspace)
	}

	cfg.resolveRef(ctx)
	core.Debug(ctx, "repository = %s, ref = %s, commit = %s, clean = %v, fetch depth = %d",
		cfg.cloneURL, cfg.Ref, cfg.commit, cfg.Clean, cfg.FetchDepth)
	return nil
}

// resolveRef turns a SHA given as ref into a commit, and takes ref and commit from the triggering event when
// checking out the repository the event came from
func (cfg *Config) resolveRef(ctx context.Context) {
	switch {
	case shaRegex.MatchString(cfg.Ref):
		cfg.commit, cfg.Ref = cfg.Ref, ""
	case cfg.Ref == "" && cfg.isEventRepository(ctx):
		cfg.Ref = eventString(cfg.event, "ref")
		cfg.commit = eventString(cfg.event, "sha")
		// merged pull requests report an unqualified branch name
		if cfg.commit != "" && cfg.Ref != "" && !strings.HasPrefix(cfg.Ref, "refs/") {
			cfg.Ref = headsPrefix + cfg.Ref
		}
	}
}

func (cfg *Config) isEventRepository(ctx context.Context) bool {
	eventURL := eventString(cfg.event, "repositoryUrl")
	core.Debug(ctx, "event repository = %s", eventURL)
	if eventURL == "" {
		return false
	}
	if eventURL == cfg.Repository {
		return true
	}
	normalized, err := normalizeRepositoryURL(eventURL)
	return err == nil && stripDotGitExtension(normalized) == stripDotGitExtension(cfg.cloneURL)
}

type checkoutStep struct {
	start string
	done  string
	run   func() error
}

func (cfg *Config) checkout(ctx context.Context, wc workingCopy) error {
	workspace, repositoryPath, err := cfg.resolvePaths()
	if err != nil {
		return err
	}
	if err := makeDirectory(repositoryPath); err != nil {
		return err
	}

	wc.SetEnv("HOME", cfg.env.Home)
	wc.SetEnv("RUNNER_TEMP", cfg.env.RunnerTemp)
	if cfg.SetSafeDirectory {
		core.Info(ctx, "Adding '%s' to the global git config as a safe directory", workspace)
		if err := wc.AddConfig(true, "safe.directory", workspace); err != nil {
			return err
		}
	}
	wc.SetCwd(repositoryPath)

	core.Info(ctx, "Syncing Repository: %s", cfg.cloneURL)

	var tgt target
	steps := []checkoutStep{
		{"Preparing the existing directory", "Existing directory prepared", func() error {
			return prepareExistingDirectory(ctx, wc, repositoryPath, cfg.cloneURL, validRemoteURLs(cfg.cloneURL), cfg.Clean)
		}},
		{"Initializing the Repository", "Repository initialized", func() error {
			return cfg.initialize(ctx, wc, repositoryPath)
		}},
		{"Determining the target", "Target determined", func() (err error) {
			if cfg.Ref == "" && cfg.commit == "" {
				if cfg.Ref, err = wc.DefaultBranch(cfg.cloneURL); err != nil {
					return err
				}
			}
			tgt, err = parseTarget(cfg.Ref, cfg.commit)
			return err
		}},
		{"Fetching the Repository", "Repository fetched", func() error {
			return cfg.fetch(wc, tgt)
		}},
		{"Checking out the Ref", "Ref checked out", func() error {
			point, err := tgt.resolve(wc)
			if err != nil {
				return err
			}
			return wc.Checkout(point.ref, point.startPoint)
		}},
	}
	for _, s := range steps {
		core.StartGroup(s.start)
		if err := s.run(); err != nil {
			return err
		}
		core.EndGroup(s.done)
	}

	if err := cfg.writeOutputs(wc); err != nil {
		core.Warning(ctx, "failed to write checkout action outputs: %v", err)
	}
	return nil
}

// initialize creates the repository when the directory was emptied, and turns off automatic gc
func (cfg *Config) initialize(ctx context.Context, wc workingCopy, repositoryPath string) error {
	if _, err := os.Stat(filepath.Join(repositoryPath, ".git")); os.IsNotExist(err) {
		if err := wc.Init(repositoryPath); err != nil {
			return err
		}
		if err := wc.RemoteAdd("origin", cfg.cloneURL); err != nil {
			return err
		}
	}

	if err := wc.SetConfig(false, "gc.auto", "0"); err != nil {
		core.Warning(ctx, "Unable to turn off git automatic garbage collection. The git fetch operation may trigger garbage collection and cause a delay.")
	}
	return nil
}

// fetch fetches the target only when a depth is set. Otherwise it fetches all history, and fetches the target
// again when the ref has moved away from the expected commit.
func (cfg *Config) fetch(wc workingCopy, tgt target) error {
	if cfg.FetchDepth > 0 {
		return wc.Fetch(tgt.refSpec(), cfg.FetchDepth)
	}

	if err := wc.Fetch(tgt.historyRefSpec(), 0); err != nil {
		return err
	}
	ok, err := tgt.fetched(wc)
	if err != nil || ok {
		return err
	}
	return wc.Fetch(tgt.refSpec(), 0)
}

func (cfg *Config) writeOutputs(wc workingCopy) (err error) {
	dir := cfg.env.Outputs
	if dir == "" {
		return nil
	}

	commit := cfg.commit
	if commit == "" {
		if commit, err = wc.HeadCommit(); err != nil {
			return err
		}
	}
	ref := cfg.Ref
	if ref == "" {
		if ref, err = wc.CurrentBranch(); err != nil {
			return err
		}
	}

	for name, value := range map[string]string{"repository-url": cfg.cloneURL, "commit": commit, "ref": ref} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(value), 0640); err != nil {
			return err
		}
	}
	return nil
}

// resolvePaths returns the canonical workspace and repository paths, failing if the repository would be outside
// the workspace
func (cfg *Config) resolvePaths() (string, string, error) {
	if err := os.MkdirAll(cfg.env.Workspace, os.ModePerm); err != nil {
		return "", "", err
	}
	workspace := canonicalPath(cfg.env.Workspace)
	repositoryPath := canonicalPath(filepath.Join(workspace, cfg.Path))

	if !isUnder(repositoryPath, workspace) {
		return "", "", fmt.Errorf("repository path '%s' is not under '%s'", repositoryPath, workspace)
	}
	return workspace, repositoryPath, nil
}

// canonicalPath resolves symlinks and makes p absolute, as far as it can
func canonicalPath(p string) string {
	if r, err := filepath.EvalSymlinks(p); err == nil {
		p = r
	}
	if r, err := filepath.Abs(p); err == nil {
		p = r
	}
	return p
}

// makeDirectory makes sure dir is a directory, replacing a file in its way
func makeDirectory(dir string) error {
	if stat, err := os.Stat(dir); err == nil && !stat.IsDir() {
		if err := os.Remove(dir); err != nil {
			return fmt.Errorf("could not remove conflicting file at Repository Path '%s': %w", dir, err)
		}
	}
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return fmt.Errorf("could not create directory '%s': %w", dir, err)
	}
	return nil
}

func isUnder(path string, dir string) bool {
	path = filepath.Clean(path)
	return path == dir || strings.HasPrefix(path, dir+string(os.PathSeparator))
}

func loadEventContext(path string) (map[string]any, error) {
	if path == "" {
		return nil, fmt.Errorf("missing event context")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var event map[string]any
	if err := json.Unmarshal(b, &event); err != nil {
		return nil, err
	}
	return event, nil
}

// eventString returns the string value of key in the event, or "" if it is absent or not a string
func eventString(event map[string]any, key string) string {
	s, _ := event[key].(string)
	return s
}

package checkout

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	commitA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	commitB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

// fakeRefs resolves remote branches (keyed as origin/<name>) and tags to commits
type fakeRefs struct {
	remoteBranches map[string]string
	tags           map[string]string
	shas           map[string]bool
}

func (f *fakeRefs) BranchExists(remote bool, pattern string) (bool, error) {
	_, ok := f.remoteBranches[pattern]
	return remote && ok, nil
}

func (f *fakeRefs) TagExists(pattern string) (bool, error) {
	_, ok := f.tags[pattern]
	return ok, nil
}

func (f *fakeRefs) ShaExists(sha string) (bool, error) {
	return f.shas[sha], nil
}

func (f *fakeRefs) RevParse(ref string) (string, error) {
	if b, ok := strings.CutPrefix(ref, "refs/remotes/"); ok {
		return f.remoteBranches[b], nil
	}
	if t, ok := strings.CutPrefix(ref, "refs/tags/"); ok {
		return f.tags[t], nil
	}
	return "", nil
}

func newFakeRefs() *fakeRefs {
	return &fakeRefs{
		remoteBranches: map[string]string{"origin/main": commitA},
		tags:           map[string]string{"v1.0.0": commitA},
		shas:           map[string]bool{commitA: true},
	}
}

func Test_target_resolve(t *testing.T) {
	tests := []struct {
		name       string
		ref        string
		commit     string
		wantRef    string
		wantStart  string
		wantErrMsg string
	}{
		{name: "commit only", commit: commitA, wantRef: commitA},
		{name: "qualified branch", ref: "refs/heads/main", wantRef: "main", wantStart: "refs/remotes/origin/main"},
		{name: "pull request", ref: "refs/pull/12/merge", wantRef: "12/merge", wantStart: "refs/remotes/pull/12/merge"},
		{name: "qualified tag", ref: "refs/tags/v1.0.0", wantRef: "refs/tags/v1.0.0"},
		{name: "other qualified ref", ref: "refs/notes/commits", wantRef: "refs/notes/commits"},
		{name: "unqualified branch", ref: "main", wantRef: "main", wantStart: "refs/remotes/origin/main"},
		{name: "unqualified tag", ref: "v1.0.0", wantRef: "refs/tags/v1.0.0"},
		{name: "unknown", ref: "nope", wantErrMsg: "'nope' could not be found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tg, err := parseTarget(tt.ref, tt.commit)
			require.NoError(t, err)

			point, err := tg.resolve(newFakeRefs())
			if tt.wantErrMsg != "" {
				require.ErrorContains(t, err, tt.wantErrMsg)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantRef, point.ref)
			require.Equal(t, tt.wantStart, point.startPoint)
		})
	}
}

func Test_parseTarget_Empty(t *testing.T) {
	_, err := parseTarget("", "")
	require.ErrorContains(t, err, "cannot both be empty")
}

func Test_target_fetched(t *testing.T) {
	refs := newFakeRefs()
	fetched := func(ref string, commit string) (bool, error) {
		tg, err := parseTarget(ref, commit)
		require.NoError(t, err)
		return tg.fetched(refs)
	}

	for _, tc := range []struct {
		ref    string
		commit string
		want   bool
	}{
		{ref: "refs/heads/main", want: true},
		{commit: commitA, want: true},
		{commit: commitB, want: false},
		{ref: "refs/heads/main", commit: commitA, want: true},
		// branch moved since the event was raised
		{ref: "refs/heads/main", commit: commitB, want: false},
		{ref: "refs/heads/gone", commit: commitA, want: false},
		{ref: "refs/tags/v1.0.0", commit: commitA, want: true},
		{ref: "refs/pull/3/head", commit: commitB, want: true},
	} {
		ok, err := fetched(tc.ref, tc.commit)
		require.NoError(t, err)
		require.Equal(t, tc.want, ok, "%s@%s", tc.ref, tc.commit)
	}

	_, err := fetched("main", commitA)
	require.Error(t, err)
}

func Test_target_refSpec(t *testing.T) {
	refSpec := func(ref string, commit string) []string {
		tg, err := parseTarget(ref, commit)
		require.NoError(t, err)
		return tg.refSpec()
	}

	require.Equal(t, []string{"+" + commitA + ":refs/remotes/origin/main"}, refSpec("refs/heads/main", commitA))
	require.Equal(t, []string{"+" + commitA + ":refs/remotes/pull/7/merge"}, refSpec("refs/pull/7/merge", commitA))
	require.Equal(t, []string{"+" + commitA + ":refs/tags/v1"}, refSpec("refs/tags/v1", commitA))
	require.Equal(t, []string{commitA}, refSpec("", commitA))
	require.Equal(t, []string{commitA}, refSpec("main", commitA))
	require.Equal(t, []string{
		"+refs/heads/main*:refs/remotes/origin/main*",
		"+refs/tags/main*:refs/tags/main*",
	}, refSpec("main", ""))
	require.Equal(t, []string{"+refs/heads/main:refs/remotes/origin/main"}, refSpec("refs/heads/main", ""))
	require.Equal(t, []string{"+refs/pull/7/merge:refs/remotes/pull/7/merge"}, refSpec("refs/pull/7/merge", ""))
	require.Equal(t, []string{"+refs/tags/v1:refs/tags/v1"}, refSpec("refs/tags/v1", ""))
	require.Equal(t, []string{"+refs/notes/x:refs/notes/x"}, refSpec("refs/notes/x", ""))
}

func Test_target_historyRefSpec(t *testing.T) {
	history := func(ref string, commit string) []string {
		tg, err := parseTarget(ref, commit)
		require.NoError(t, err)
		return tg.historyRefSpec()
	}

	base := []string{"+refs/heads/*:refs/remotes/origin/*", "+refs/tags/*:refs/tags/*"}
	require.Equal(t, base, history("refs/heads/main", commitA))
	require.Equal(t, append(base, "+"+commitA+":refs/remotes/pull/7/merge"), history("refs/pull/7/merge", commitA))
	require.Equal(t, append(base, "+refs/pull/7/merge:refs/remotes/pull/7/merge"), history("refs/pull/7/merge", ""))
}

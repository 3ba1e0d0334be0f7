package checkout

import (
	"errors"
	"fmt"
	"strings"
)

const (
	headsPrefix  = "refs/heads/"
	pullPrefix   = "refs/pull/"
	tagsPrefix   = "refs/tags/"
	originPrefix = "refs/remotes/origin/"
	pullsPrefix  = "refs/remotes/pull/"
)

// refResolver answers questions about the refs and objects present in the local repository
type refResolver interface {
	BranchExists(remote bool, pattern string) (bool, error)
	TagExists(pattern string) (bool, error)
	ShaExists(sha string) (bool, error)
	RevParse(ref string) (string, error)
}

type refKind int

const (
	commitOnly refKind = iota
	branchRef
	pullRef
	tagRef
	otherRef
	shortRef
)

// target is what a checkout asks for: a ref, a commit, or a ref expected to be at a commit
type target struct {
	kind   refKind
	ref    string
	name   string // ref without its refs/heads/, refs/pull/ or refs/tags/ prefix
	commit string
}

// checkoutPoint is what gets passed to `git checkout`. A startPoint means ref is a branch to (re)create there.
type checkoutPoint struct {
	ref        string
	startPoint string
}

func parseTarget(ref string, commit string) (target, error) {
	if ref == "" && commit == "" {
		return target{}, errors.New("ref and commit cannot both be empty")
	}

	t := target{kind: shortRef, ref: ref, name: ref, commit: commit}
	lower := strings.ToLower(ref)
	for _, p := range []struct {
		prefix string
		kind   refKind
	}{{headsPrefix, branchRef}, {pullPrefix, pullRef}, {tagsPrefix, tagRef}} {
		if strings.HasPrefix(lower, p.prefix) {
			t.kind, t.name = p.kind, ref[len(p.prefix):]
			return t, nil
		}
	}

	switch {
	case ref == "":
		t.kind = commitOnly
	case strings.HasPrefix(lower, "refs/"):
		t.kind = otherRef
	}
	return t, nil
}

// resolve works out what to check out. A short name is looked up as a branch of origin first, then as a tag.
func (t target) resolve(r refResolver) (checkoutPoint, error) {
	switch t.kind {
	case commitOnly:
		return checkoutPoint{ref: t.commit}, nil
	case branchRef:
		return checkoutPoint{ref: t.name, startPoint: originPrefix + t.name}, nil
	case pullRef:
		return checkoutPoint{ref: t.name, startPoint: pullsPrefix + t.name}, nil
	case tagRef, otherRef:
		return checkoutPoint{ref: t.ref}, nil
	}

	if ok, err := r.BranchExists(true, "origin/"+t.ref); err != nil {
		return checkoutPoint{}, err
	} else if ok {
		return checkoutPoint{ref: t.ref, startPoint: originPrefix + t.ref}, nil
	}
	if ok, err := r.TagExists(t.ref); err != nil {
		return checkoutPoint{}, err
	} else if ok {
		return checkoutPoint{ref: tagsPrefix + t.ref}, nil
	}
	return checkoutPoint{}, fmt.Errorf("a branch or tag with the name '%s' could not be found", t.ref)
}

// fetched reports whether the local repository already holds the target at the expected commit
func (t target) fetched(r refResolver) (bool, error) {
	if t.commit == "" {
		return true, nil
	}

	switch t.kind {
	case commitOnly:
		return r.ShaExists(t.commit)
	case pullRef:
		// fetched by commit, so it matches
		return true, nil
	case branchRef:
		ok, err := r.BranchExists(true, "origin/"+t.name)
		if err != nil || !ok {
			return false, err
		}
		return t.at(r, originPrefix+t.name)
	case tagRef:
		ok, err := r.TagExists(t.name)
		if err != nil || !ok {
			return false, err
		}
		return t.at(r, t.ref)
	}
	return false, fmt.Errorf("unexpected ref format '%s' when testing ref info", t.ref)
}

func (t target) at(r refResolver, rev string) (bool, error) {
	c, err := r.RevParse(rev)
	if err != nil {
		return false, err
	}
	return c == t.commit, nil
}

// refSpec is the narrowest refspec that fetches the target
func (t target) refSpec() []string {
	src := t.ref
	if t.commit != "" {
		src = t.commit
	}

	switch t.kind {
	case branchRef:
		return []string{fmt.Sprintf("+%s:%s%s", src, originPrefix, t.name)}
	case pullRef:
		return []string{fmt.Sprintf("+%s:%s%s", src, pullsPrefix, t.name)}
	case tagRef:
		return []string{fmt.Sprintf("+%s:%s", src, t.ref)}
	}

	switch {
	case t.commit != "":
		return []string{t.commit}
	case t.kind == shortRef:
		return []string{
			fmt.Sprintf("+%s%s*:%s%s*", headsPrefix, t.ref, originPrefix, t.ref),
			fmt.Sprintf("+%s%s*:%s%s*", tagsPrefix, t.ref, tagsPrefix, t.ref),
		}
	default:
		return []string{fmt.Sprintf("+%s:%s", t.ref, t.ref)}
	}
}

// historyRefSpec fetches every branch and tag, plus the target itself when it is a pull request
func (t target) historyRefSpec() []string {
	specs := []string{"+" + headsPrefix + "*:" + originPrefix + "*", "+" + tagsPrefix + "*:" + tagsPrefix + "*"}
	if t.kind == pullRef {
		specs = append(specs, t.refSpec()...)
	}
	return specs
}

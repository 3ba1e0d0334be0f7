package git

import (
	"maps"
	"slices"
	"strings"

	"gopkg.in/alessio/shellescape.v1"
)

// envEntriesToMap indexes KEY=VAL entries by key. Entries without '=' are dropped.
func envEntriesToMap(entries []string) map[string]string {
	env := make(map[string]string, len(entries))
	for _, e := range entries {
		if k, v, ok := strings.Cut(e, "="); ok {
			env[k] = v
		}
	}
	return env
}

// envMapToEntries renders env as KEY=VAL entries sorted by key
func envMapToEntries(env map[string]string) []string {
	entries := make([]string, 0, len(env))
	for _, k := range slices.Sorted(maps.Keys(env)) {
		entries = append(entries, k+"="+env[k])
	}
	return entries
}

// commandLine renders the command the way a user would type it into a shell
func commandLine(exe string, args []string) string {
	words := make([]string, 0, len(args)+1)
	for _, w := range append([]string{exe}, args...) {
		words = append(words, shellescape.Quote(w))
	}
	return strings.Join(words, " ")
}

package checkout

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
)

const dotGitCloneURLSuffix = ".git"

var (
	sshURLRegex = regexp.MustCompile(`^(ssh://)?([a-zA-Z][-a-zA-Z0-9_]*@)?[a-z0-9][-a-z0-9_\.]*:(/?[\w_\-\.~]+)*$`)
	scpURLRegex = regexp.MustCompile(`^([a-zA-Z][-a-zA-Z0-9_]*@)?([a-z0-9][-a-z0-9_\.]*):(.*)$`)
)

func isSSHURL(urlStr string) bool {
	return sshURLRegex.MatchString(urlStr) || strings.HasPrefix(urlStr, "ssh://")
}

// normalizeSSHURL rewrites the scp-like syntax user@host:path into ssh://user@host/path. Anything else is returned
// unchanged.
func normalizeSSHURL(urlStr string) string {
	if strings.Contains(urlStr, "://") {
		return urlStr
	}
	m := scpURLRegex.FindStringSubmatch(urlStr)
	if m == nil {
		return urlStr
	}
	return "ssh://" + m[1] + m[2] + "/" + strings.TrimPrefix(m[3], "/")
}

func normalizeRepositoryURL(repoURL string) (string, error) {
	if repoURL == "" {
		return "", fmt.Errorf("repository must be specified")
	}

	if isSSHURL(repoURL) {
		return normalizeSSHURL(repoURL), nil
	}

	parsedURL, err := url.Parse(repoURL)
	if err != nil {
		return "", fmt.Errorf("invalid repository %q: %w", repoURL, err)
	}

	if !parsedURL.IsAbs() || parsedURL.Host == "" {
		return "", fmt.Errorf("invalid repository URL %q provided, expects full clone URL", repoURL)
	}

	return repoURL, nil
}

func stripDotGitExtension(repoURL string) string {
	return strings.TrimSuffix(repoURL, dotGitCloneURLSuffix)
}

// validRemoteURLs returns the spellings of cloneURL that git accepts for the same repository: https, scp-like and
// ssh:// forms, with and without the .git suffix. cloneURL itself always comes first.
func validRemoteURLs(cloneURL string) []string {
	result := []string{cloneURL}
	add := func(u string) {
		if !slices.Contains(result, u) {
			result = append(result, u)
		}
	}

	ep, err := transport.NewEndpoint(cloneURL)
	if err != nil || ep.Host == "" {
		return result
	}

	repoPath := stripDotGitExtension(strings.TrimPrefix(ep.Path, "/"))
	if repoPath == "" {
		return result
	}

	webScheme := "https"
	if ep.Protocol == "http" {
		webScheme = "http"
	}

	sshUser := "git"
	if ep.Protocol == "ssh" && ep.User != "" {
		sshUser = ep.User
	}

	for _, p := range []string{repoPath, repoPath + dotGitCloneURLSuffix} {
		if hasCustomPort(ep) {
			// a custom port only tells us how to reach the host over the protocol in use
			hostPort := ep.Host + ":" + strconv.Itoa(ep.Port)
			switch ep.Protocol {
			case "ssh":
				add("ssh://" + sshUser + "@" + hostPort + "/" + p)
			case "http", "https":
				add(webScheme + "://" + hostPort + "/" + p)
			}
			continue
		}

		add(webScheme + "://" + ep.Host + "/" + p)
		add(sshUser + "@" + ep.Host + ":" + p)
		add("ssh://" + sshUser + "@" + ep.Host + "/" + p)
	}

	return result
}

func hasCustomPort(ep *transport.Endpoint) bool {
	switch ep.Protocol {
	case "ssh":
		return ep.Port != 0 && ep.Port != 22
	case "https":
		return ep.Port != 0 && ep.Port != 443
	case "http":
		return ep.Port != 0 && ep.Port != 80
	default:
		return false
	}
}

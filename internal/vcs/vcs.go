// Package vcs resolves refs in version control content repositories by
// shelling out to git, without cloning the repository.
package vcs

import (
	"context"
	"net/url"
	"os"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/metal-toolbox/composer/internal/metrics"
)

// ErrVCS wraps failures while querying the version control service.
var ErrVCS = errors.New("error accessing version control")

const headsRefPrefix = "refs/heads/"

// Client lists remote refs over git ls-remote. The zero value is usable and
// runs git unauthenticated.
type Client struct {
	// AskPassPath, when set, is exported as GIT_ASKPASS so git can fetch
	// credentials without them landing on the command line.
	AskPassPath string

	logger *logrus.Logger
}

// NewClient returns a remote ref client logging through the given logger.
func NewClient(logger *logrus.Logger, askPassPath string) *Client {
	return &Client{AskPassPath: askPassPath, logger: logger}
}

func (c *Client) log() *logrus.Logger {
	if c.logger != nil {
		return c.logger
	}

	return logrus.StandardLogger()
}

// cleanCloneURL strips any username embedded in the clone URL, since
// credentials come from the askpass helper instead.
func (c *Client) cleanCloneURL(cloneURL string) string {
	parsed, err := url.Parse(cloneURL)
	if err != nil || parsed.User == nil {
		return cloneURL
	}

	c.log().WithFields(logrus.Fields{
		"username": parsed.User.Username(),
		"cloneURL": cloneURL,
	}).Warn("ignoring username specified in clone URL")

	parsed.User = nil

	return parsed.String()
}

// RemoteRefs returns the remote refs of the repository at cloneURL, mapping
// ref name to commit hash.
func (c *Client) RemoteRefs(ctx context.Context, cloneURL string) (map[string]string, error) {
	cmd := exec.CommandContext(ctx, "git", "ls-remote", c.cleanCloneURL(cloneURL))
	cmd.Env = os.Environ()

	if c.AskPassPath != "" {
		cmd.Env = append(cmd.Env, "GIT_ASKPASS="+c.AskPassPath)
	}

	out, err := cmd.Output()
	if err != nil {
		metrics.VCSQueryError()

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, errors.Wrap(ErrVCS, strings.TrimSpace(string(exitErr.Stderr)))
		}

		return nil, errors.Wrap(ErrVCS, err.Error())
	}

	return parseRemoteRefs(string(out))
}

// parseRemoteRefs maps git ls-remote output, one "<commit>\t<ref>" per line,
// from ref name to commit hash.
func parseRemoteRefs(out string) (map[string]string, error) {
	refs := map[string]string{}

	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}

		commit, ref, found := strings.Cut(line, "\t")
		if !found {
			return nil, errors.Wrap(ErrVCS, "malformed ls-remote output line: "+line)
		}

		refs[ref] = commit
	}

	return refs, nil
}

// CommitForBranch returns the commit hash at the head of the given branch,
// or an empty string when the remote has no such branch.
func (c *Client) CommitForBranch(ctx context.Context, cloneURL, branch string) (string, error) {
	refs, err := c.RemoteRefs(ctx, cloneURL)
	if err != nil {
		return "", err
	}

	return refs[headsRefPrefix+branch], nil
}

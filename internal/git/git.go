// Package git fetches the template repository into a temporary checkout,
// either through the git command or in-process with go-git.
package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// versionCheckTimeout bounds the `git --version` probe
const versionCheckTimeout = 5 * time.Second

// Fetcher retrieves the template repository into a temporary directory
type Fetcher interface {
	// Fetch clones ref of the repository at url. An empty ref selects the
	// remote's default branch. The caller owns the returned Checkout and
	// must call Cleanup.
	Fetch(ctx context.Context, url, ref string) (*Checkout, error)
}

// ShellClient implements Fetcher by shelling out to the git command
type ShellClient struct {
	sshKeyFile     string
	httpsTokenFile string
	timeout        time.Duration
}

// NewShellClient creates a new git client that uses the git command.
// A zero timeout disables the clone deadline.
func NewShellClient(sshKeyFile, httpsTokenFile string, timeout time.Duration) *ShellClient {
	return &ShellClient{
		sshKeyFile:     sshKeyFile,
		httpsTokenFile: httpsTokenFile,
		timeout:        timeout,
	}
}

// Available reports whether a working git binary is on PATH
func (c *ShellClient) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, versionCheckTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "--version")
	return cmd.Run() == nil
}

// Fetch performs a shallow clone of ref into a fresh temporary directory
func (c *ShellClient) Fetch(ctx context.Context, url, ref string) (*Checkout, error) {
	if !c.Available(ctx) {
		return nil, &FetchError{
			Kind: KindToolUnavailable,
			Msg:  "git is not installed or not available in PATH; install git or set fetch.method to builtin",
		}
	}

	root, err := newCheckoutRoot()
	if err != nil {
		return nil, err
	}
	checkout := &Checkout{Root: root, Dir: filepath.Join(root, "repo")}

	cloneCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		cloneCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := []string{"clone", "--depth", "1"}
	if ref != "" {
		args = append(args, "--branch", ref)
	}
	args = append(args, url, checkout.Dir)

	cmd := exec.CommandContext(cloneCtx, "git", args...)
	if err := c.configureAuth(cmd, url); err != nil {
		_ = checkout.Cleanup()
		return nil, &FetchError{Kind: KindClone, Msg: "failed to configure git authentication", Err: err}
	}

	if err := c.runCommand(cmd); err != nil {
		_ = checkout.Cleanup()
		if errors.Is(cloneCtx.Err(), context.DeadlineExceeded) {
			return nil, &FetchError{Kind: KindTimeout, Msg: "repository clone timed out; please try again", Err: err}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyCloneError(err)
	}

	cmd = exec.CommandContext(ctx, "git", "-C", checkout.Dir, "rev-parse", "HEAD")
	output, err := cmd.Output()
	if err != nil {
		_ = checkout.Cleanup()
		return nil, &FetchError{Kind: KindClone, Msg: "git rev-parse failed", Err: err}
	}
	checkout.Commit = strings.TrimSpace(string(output))

	return checkout, nil
}

// classifyCloneError maps git's stderr to a FetchError kind
func classifyCloneError(err error) *FetchError {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "could not resolve host") || strings.Contains(msg, "network") ||
		strings.Contains(msg, "connection refused") {
		return &FetchError{
			Kind: KindNetwork,
			Msg:  "network error: unable to connect to repository; check your internet connection",
			Err:  err,
		}
	}
	return &FetchError{Kind: KindClone, Msg: "failed to clone repository", Err: err}
}

// configureAuth sets up authentication for git operations
func (c *ShellClient) configureAuth(cmd *exec.Cmd, url string) error {
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	cmd.Env = append(cmd.Env, "GIT_TERMINAL_PROMPT=0")

	// SSH authentication
	if c.sshKeyFile != "" && (strings.HasPrefix(url, "git@") || strings.HasPrefix(url, "ssh://")) {
		// The path is shell-quoted to prevent injection via crafted filenames.
		sshCmd := fmt.Sprintf("ssh -i %s -o StrictHostKeyChecking=accept-new -F /dev/null", shellQuote(c.sshKeyFile))
		cmd.Env = append(cmd.Env, "GIT_SSH_COMMAND="+sshCmd)
		return nil
	}

	// HTTPS authentication with token
	if c.httpsTokenFile != "" && strings.HasPrefix(url, "https://") {
		token, err := readToken(c.httpsTokenFile)
		if err != nil {
			return err
		}

		// The token travels through the environment and a credential
		// helper, never through the command line.
		cmd.Env = append(cmd.Env, "WFSYNC_GIT_TOKEN="+token)
		cmd.Args = insertGitFlags(cmd.Args,
			"-c", `credential.helper=!f() { echo "username=x-access-token"; echo "password=$WFSYNC_GIT_TOKEN"; }; f`,
		)
	}

	return nil
}

// readToken reads and trims an HTTPS token file
func readToken(path string) (string, error) {
	token, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read HTTPS token file: %w", err)
	}
	return strings.TrimSpace(string(token)), nil
}

// insertGitFlags inserts flags immediately after the "git" command name,
// before the subcommand (e.g. "clone", "fetch").
func insertGitFlags(args []string, flags ...string) []string {
	if len(args) == 0 {
		return flags
	}
	result := make([]string, 0, len(args)+len(flags))
	result = append(result, args[0])
	result = append(result, flags...)
	result = append(result, args[1:]...)
	return result
}

// shellQuote wraps s in single quotes, escaping any embedded single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// runCommand executes a command and returns an error with stderr on failure
func (c *ShellClient) runCommand(cmd *exec.Cmd) error {
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

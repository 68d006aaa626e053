package git

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	gogit "gopkg.in/src-d/go-git.v4"
	"gopkg.in/src-d/go-git.v4/plumbing"
	"gopkg.in/src-d/go-git.v4/plumbing/transport"
	githttp "gopkg.in/src-d/go-git.v4/plumbing/transport/http"
	gitssh "gopkg.in/src-d/go-git.v4/plumbing/transport/ssh"
)

// GoGitClient implements Fetcher in-process with go-git, for hosts
// without a git binary
type GoGitClient struct {
	sshKeyFile     string
	httpsTokenFile string
	timeout        time.Duration
	progress       io.Writer
}

// NewGoGitClient creates a go-git backed client. progress may be nil.
func NewGoGitClient(sshKeyFile, httpsTokenFile string, timeout time.Duration, progress io.Writer) *GoGitClient {
	return &GoGitClient{
		sshKeyFile:     sshKeyFile,
		httpsTokenFile: httpsTokenFile,
		timeout:        timeout,
		progress:       progress,
	}
}

// Fetch performs a shallow, single branch clone of ref. Tags are tried when
// no branch of that name exists.
func (c *GoGitClient) Fetch(ctx context.Context, url, ref string) (*Checkout, error) {
	root, err := newCheckoutRoot()
	if err != nil {
		return nil, err
	}
	checkout := &Checkout{Root: root, Dir: filepath.Join(root, "repo")}

	auth, err := c.auth(url)
	if err != nil {
		_ = checkout.Cleanup()
		return nil, &FetchError{Kind: KindClone, Msg: "failed to configure git authentication", Err: err}
	}

	cloneCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		cloneCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var refs []plumbing.ReferenceName
	if ref == "" {
		refs = []plumbing.ReferenceName{""}
	} else {
		refs = []plumbing.ReferenceName{
			plumbing.NewBranchReferenceName(ref),
			plumbing.NewTagReferenceName(ref),
		}
	}

	var repo *gogit.Repository
	for _, name := range refs {
		repo, err = gogit.PlainCloneContext(cloneCtx, checkout.Dir, false, &gogit.CloneOptions{
			URL:           url,
			Auth:          auth,
			ReferenceName: name,
			SingleBranch:  true,
			Depth:         1,
			Tags:          gogit.NoTags,
			Progress:      c.progress,
		})
		if err == nil || !refNotFound(err) {
			break
		}
		// Start over in an empty working tree for the next candidate.
		_ = os.RemoveAll(checkout.Dir)
	}
	if err != nil {
		_ = checkout.Cleanup()
		if errors.Is(cloneCtx.Err(), context.DeadlineExceeded) {
			return nil, &FetchError{Kind: KindTimeout, Msg: "repository clone timed out; please try again", Err: err}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyGoGitError(err)
	}

	head, err := repo.Head()
	if err != nil {
		_ = checkout.Cleanup()
		return nil, &FetchError{Kind: KindClone, Msg: "failed to resolve HEAD", Err: err}
	}
	checkout.Commit = head.Hash().String()

	return checkout, nil
}

// auth builds the go-git transport credentials for url
func (c *GoGitClient) auth(url string) (transport.AuthMethod, error) {
	if c.sshKeyFile != "" && (strings.HasPrefix(url, "git@") || strings.HasPrefix(url, "ssh://")) {
		keys, err := gitssh.NewPublicKeysFromFile("git", c.sshKeyFile, "")
		if err != nil {
			return nil, err
		}
		return keys, nil
	}
	if c.httpsTokenFile != "" && strings.HasPrefix(url, "https://") {
		token, err := readToken(c.httpsTokenFile)
		if err != nil {
			return nil, err
		}
		return &githttp.BasicAuth{Username: "x-access-token", Password: token}, nil
	}
	return nil, nil
}

// refNotFound reports whether err means the requested ref does not exist
// on the remote
func refNotFound(err error) bool {
	return errors.Is(err, plumbing.ErrReferenceNotFound) ||
		strings.Contains(err.Error(), "couldn't find remote ref")
}

// classifyGoGitError maps go-git failures to a FetchError kind
func classifyGoGitError(err error) *FetchError {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &FetchError{
			Kind: KindNetwork,
			Msg:  "network error: unable to connect to repository; check your internet connection",
			Err:  err,
		}
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "no such host") || strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "network is unreachable") {
		return &FetchError{
			Kind: KindNetwork,
			Msg:  "network error: unable to connect to repository; check your internet connection",
			Err:  err,
		}
	}
	if errors.Is(err, transport.ErrRepositoryNotFound) {
		return &FetchError{Kind: KindClone, Msg: "repository not found", Err: err}
	}
	return &FetchError{Kind: KindClone, Msg: "failed to clone repository", Err: err}
}

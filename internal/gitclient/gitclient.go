package gitclient

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultBlobCacheSize is the number of file contents kept in memory.
	DefaultBlobCacheSize = 64
)

// Auth holds Basic Auth credentials.
// For Bitbucket Cloud access tokens, use "x-token-auth" as Username
// and the token as Password.
type Auth struct {
	Username string
	Password string // or Token
}

// Client holds a repository clone in memory and reads catalog files from its revisions.
type Client struct {
	repo  *git.Repository
	blobs *lru.Cache[plumbing.Hash, []byte]
}

// New clones the repository at url into memory.
func New(url string, auth *Auth) (*Client, error) {
	// In-memory storage
	storer := memory.NewStorage()

	cloneOpts := &git.CloneOptions{
		URL:        url,
		NoCheckout: true, // Don't inflate files into a worktree
		Progress:   nil,
		Depth:      0, // Full history, plugin catalogs are often read from older tags
	}

	if auth != nil {
		cloneOpts.Auth = &http.BasicAuth{
			Username: auth.Username,
			Password: auth.Password,
		}
	}

	repo, err := git.Clone(storer, nil, cloneOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to clone %s: %w", url, err)
	}
	return newClient(repo)
}

func newClient(repo *git.Repository) (*Client, error) {
	blobs, err := lru.New[plumbing.Hash, []byte](DefaultBlobCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob cache: %w", err)
	}
	return &Client{repo: repo, blobs: blobs}, nil
}

// DefaultBranch returns the short name of the branch HEAD points to.
func (c *Client) DefaultBranch() (string, error) {
	head, err := c.repo.Head()
	if err != nil {
		return "", fmt.Errorf("cannot resolve HEAD: %w", err)
	}
	return head.Name().Short(), nil
}

// ListReferences returns the short names of all branches and tags, sorted.
func (c *Client) ListReferences() ([]string, error) {
	refMap := make(map[string]bool)

	refs, err := c.repo.References()
	if err != nil {
		return nil, err
	}

	err = refs.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name()
		if name.IsTag() || name.IsBranch() {
			refMap[name.Short()] = true
		} else if name.IsRemote() {
			// e.g. refs/remotes/origin/main -> Short() is "origin/main"
			short := name.Short()
			if slashIdx := strings.Index(short, "/"); slashIdx != -1 {
				refMap[short[slashIdx+1:]] = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var references []string
	for v := range refMap {
		references = append(references, v)
	}
	slices.Sort(references)
	return references, nil
}

func (c *Client) resolveRevision(revision string) (*plumbing.Hash, error) {
	hash, err := c.repo.ResolveRevision(plumbing.Revision(revision))
	if err == nil {
		return hash, nil
	}

	// Try with origin/ prefix if not found (common for clones)
	if !strings.HasPrefix(revision, "refs/") {
		if hash, err := c.repo.ResolveRevision(plumbing.Revision("origin/" + revision)); err == nil {
			return hash, nil
		}
	}

	return nil, fmt.Errorf("revision not found: %w", err)
}

func (c *Client) file(revision, filePath string) (*object.File, error) {
	hash, err := c.resolveRevision(revision)
	if err != nil {
		return nil, err
	}
	commit, err := c.repo.CommitObject(*hash)
	if err != nil {
		return nil, err
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, err
	}
	// Returns object.ErrFileNotFound if missing
	return tree.File(filePath)
}

// FileExists reports whether filePath exists at the given revision.
func (c *Client) FileExists(revision, filePath string) (bool, error) {
	_, err := c.file(revision, filePath)
	if errors.Is(err, object.ErrFileNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ReadFile returns the contents of filePath at the given revision.
// Contents are cached by blob hash, so reading the same blob via different
// revisions only inflates it once.
func (c *Client) ReadFile(revision, filePath string) ([]byte, error) {
	file, err := c.file(revision, filePath)
	if err != nil {
		return nil, err
	}
	if data, ok := c.blobs.Get(file.Hash); ok {
		return slices.Clone(data), nil
	}

	reader, err := file.Reader()
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	c.blobs.Add(file.Hash, slices.Clone(data))
	return data, nil
}

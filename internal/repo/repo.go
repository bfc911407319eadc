// Package repo loads and persists plugin repository catalogs.
//
// Input catalogs are read from a local path or fetched from a URL.
// Output catalogs are always local: they are created from the empty template
// if missing, reset if corrupt, and written back in canonical form.
package repo

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"

	"github.com/dnswlt/qgisrepo/internal/catalog"
	"github.com/dnswlt/qgisrepo/internal/store"
)

var (
	// ErrSource is returned when an input is neither an existing file nor a valid URL.
	ErrSource = errors.New("not an existing file or a valid URL")
	// ErrNotExist is returned when a catalog file does not exist.
	ErrNotExist = errors.New("file does not exist")
	// ErrTransport is returned when fetching a remote catalog fails.
	ErrTransport = errors.New("transport error")
)

// Fetcher retrieves the contents of a remote catalog.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// IsURL reports whether source should be treated as a URL:
// no file may exist at source in st, and source must parse as
// an absolute URL with both a scheme and a host.
// A string that looks like a URL but names an existing file is a path.
func IsURL(st store.Store, source string) bool {
	if ok, err := st.Exists(source); err == nil && ok {
		return false
	}
	u, err := url.Parse(source)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

// Load reads the catalog named by source, which is either a path in st or a URL.
// Paths take precedence over URLs, see IsURL.
func Load(ctx context.Context, st store.Store, f Fetcher, source string) (*catalog.Catalog, error) {
	ok, err := st.Exists(source)
	if err != nil {
		return nil, fmt.Errorf("cannot access %s: %w", source, err)
	}
	if ok {
		return LoadFile(st, source)
	}
	if !IsURL(st, source) {
		return nil, fmt.Errorf("%s: %w: %w", source, ErrSource, ErrNotExist)
	}
	return LoadURL(ctx, f, source)
}

// LoadFile reads the catalog at path in st. The path is never interpreted as a URL.
func LoadFile(st store.Store, path string) (*catalog.Catalog, error) {
	ok, err := st.Exists(path)
	if err != nil {
		return nil, fmt.Errorf("cannot access %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrNotExist)
	}
	bs, err := st.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	c, err := catalog.Parse(bs)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog %s: %w", path, err)
	}
	return c, nil
}

// LoadURL fetches and parses the catalog at rawURL with a single request.
func LoadURL(ctx context.Context, f Fetcher, rawURL string) (*catalog.Catalog, error) {
	bs, err := f.Fetch(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	c, err := catalog.Parse(bs)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog at %s: %w", rawURL, err)
	}
	return c, nil
}

// EnsureAndLoad reads the catalog at path, which is meant to be written afterwards.
// A missing file is created from the empty template. A file that is not
// well-formed XML (catalog.ErrParse) is overwritten with the empty template.
// Well-formed XML that is not a catalog (catalog.ErrShape) is an error and the
// file is left untouched, so valid records are never discarded.
func EnsureAndLoad(st store.Store, path string) (*catalog.Catalog, error) {
	ok, err := st.Exists(path)
	if err != nil {
		return nil, fmt.Errorf("cannot access %s: %w", path, err)
	}
	if !ok {
		log.Printf("Creating source %s", path)
		if err := st.WriteFile(path, catalog.EmptyTemplate()); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", path, err)
		}
	}

	bs, err := st.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	c, err := catalog.Parse(bs)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, catalog.ErrParse) {
		return nil, fmt.Errorf("invalid catalog %s: %w", path, err)
	}

	log.Printf("Resetting corrupt catalog %s: %v", path, err)
	if err := st.WriteFile(path, catalog.EmptyTemplate()); err != nil {
		return nil, fmt.Errorf("failed to reset %s: %w", path, err)
	}
	bs, err = st.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	c, err = catalog.Parse(bs)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog %s after reset: %w", path, err)
	}
	return c, nil
}

// Save writes c to path, replacing the whole file.
func Save(st store.Store, path string, c *catalog.Catalog) error {
	bs, err := catalog.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal catalog for %s: %w", path, err)
	}
	if err := st.WriteFile(path, bs); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Package testutil holds catalog fixtures and helpers shared by tests.
package testutil

import (
	"bytes"
	"encoding/xml"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// PluginsXML is a catalog holding a stable and an experimental PgMetadata record
// plus an unrelated third-party record.
const PluginsXML = `<?xml version='1.0' encoding='UTF-8'?>
<plugins>
  <plugin name="PgMetadata" version="0.4.0" plugin_id="101">
    <description><![CDATA[Manage metadata of PostgreSQL tables]]></description>
    <version>0.4.0</version>
    <qgis_minimum_version>3.10</qgis_minimum_version>
    <qgis_maximum_version>3.99</qgis_maximum_version>
    <experimental>True</experimental>
    <download_url>https://github.com/3liz/qgis-pgmetadata-plugin/releases/download/0.4.0/pg_metadata.0.4.0.zip</download_url>
  </plugin>
  <plugin name="PgMetadata" version="0.5.0" plugin_id="101">
    <description><![CDATA[Manage metadata of PostgreSQL tables]]></description>
    <version>0.5.0</version>
    <qgis_minimum_version>3.10</qgis_minimum_version>
    <qgis_maximum_version>3.22</qgis_maximum_version>
    <experimental>False</experimental>
    <download_url>https://github.com/3liz/qgis-pgmetadata-plugin/releases/download/0.5.0/pg_metadata.0.5.0.zip</download_url>
  </plugin>
  <plugin name="atlasprint" version="v3.2.2">
    <description>Print atlas features from the Lizmap server</description>
    <qgis_minimum_version>3.4</qgis_minimum_version>
    <experimental>False</experimental>
  </plugin>
</plugins>
`

// PgMetadataStableXML holds a single stable PgMetadata 0.6.0 record for QGIS 3.10 to 3.22.
const PgMetadataStableXML = `<?xml version='1.0' encoding='UTF-8'?>
<plugins>
  <plugin name="PgMetadata" version="0.6.0" plugin_id="101">
    <description><![CDATA[Manage metadata of PostgreSQL tables]]></description>
    <version>0.6.0</version>
    <qgis_minimum_version>3.10</qgis_minimum_version>
    <qgis_maximum_version>3.22</qgis_maximum_version>
    <experimental>False</experimental>
    <download_url>https://github.com/3liz/qgis-pgmetadata-plugin/releases/download/0.6.0/pg_metadata.0.6.0.zip</download_url>
  </plugin>
</plugins>
`

// PgMetadataExperimentalXML holds a single experimental PgMetadata 0.7.0 record
// for QGIS 3.10 without an upper bound.
const PgMetadataExperimentalXML = `<?xml version='1.0' encoding='UTF-8'?>
<plugins>
  <plugin name="PgMetadata" version="0.7.0" plugin_id="101">
    <description><![CDATA[Manage metadata of PostgreSQL tables]]></description>
    <version>0.7.0</version>
    <qgis_minimum_version>3.10</qgis_minimum_version>
    <experimental>True</experimental>
    <download_url>https://github.com/3liz/qgis-pgmetadata-plugin/releases/download/0.7.0/pg_metadata.0.7.0.zip</download_url>
  </plugin>
</plugins>
`

// WriteFile writes content to dir/name and returns the full path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write file %s: %v", path, err)
	}
	return path
}

// ReadFile returns the contents of path as a string.
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	bs, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(bs)
}

// ExtractAttrValues returns the values of all attrName attributes on
// elements named elemName, in document order.
func ExtractAttrValues(doc []byte, elemName, attrName string) ([]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(doc))
	var values []string
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == elemName {
			for _, a := range se.Attr {
				if a.Name.Local == attrName {
					values = append(values, a.Value)
				}
			}
		}
	}
	return values, nil
}

// CreateGitRepo initializes a git repo in a temp dir with plugin catalogs
// and returns the path to that directory.
//
// Structure:
// v1.0.0 (tag)
//   - plugins.xml (PluginsXML)
//
// v2.0.0 (tag)
//   - plugins.xml (PgMetadataStableXML)
//   - nested/pgmetadata_experimental.xml (PgMetadataExperimentalXML)
//
// feature/test-branch (branch)
//   - branch-file.txt ("branch content")
//
// HEAD is left on master (== v2.0.0).
func CreateGitRepo(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()

	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("Failed to init git repo: %v", err)
	}

	w, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Failed to get worktree: %v", err)
	}

	commit := func(msg string) {
		if _, err := w.Add("."); err != nil {
			t.Fatalf("Failed to add files: %v", err)
		}
		_, err = w.Commit(msg, &git.CommitOptions{
			Author: &object.Signature{
				Name:  "Test User",
				Email: "test@example.com",
				When:  time.Now(),
			},
		})
		if err != nil {
			t.Fatalf("Failed to commit: %v", err)
		}
	}
	tag := func(name string) {
		head, err := repo.Head()
		if err != nil {
			t.Fatalf("Failed to get HEAD: %v", err)
		}
		if _, err := repo.CreateTag(name, head.Hash(), nil); err != nil {
			t.Fatalf("Failed to create tag %s: %v", name, err)
		}
	}

	WriteFile(t, dir, "plugins.xml", PluginsXML)
	commit("Initial commit")
	tag("v1.0.0")

	WriteFile(t, dir, "plugins.xml", PgMetadataStableXML)
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0755); err != nil {
		t.Fatalf("Failed to create subdir: %v", err)
	}
	WriteFile(t, filepath.Join(dir, "nested"), "pgmetadata_experimental.xml", PgMetadataExperimentalXML)
	commit("Second commit")
	tag("v2.0.0")

	err = w.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName("feature/test-branch"),
		Create: true,
	})
	if err != nil {
		t.Fatalf("Failed to checkout branch: %v", err)
	}
	WriteFile(t, dir, "branch-file.txt", "branch content")
	commit("Branch commit")

	// Switch back to master so it's the HEAD when cloned
	err = w.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName("master"),
	})
	if err != nil {
		t.Fatalf("Failed to checkout master: %v", err)
	}

	return dir
}

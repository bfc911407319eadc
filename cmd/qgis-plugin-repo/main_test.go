package main

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dnswlt/qgisrepo/internal/testutil"
	"github.com/google/go-cmp/cmp"
)

func runCmd(t *testing.T, args ...string) (int, string) {
	t.Helper()
	var out bytes.Buffer
	code := run(context.Background(), args, &out)
	return code, out.String()
}

func pluginVersions(t *testing.T, path string) []string {
	t.Helper()
	vs, err := testutil.ExtractAttrValues([]byte(testutil.ReadFile(t, path)), "plugin", "version")
	if err != nil {
		t.Fatalf("ExtractAttrValues(%s) failed: %v", path, err)
	}
	return vs
}

func assertNotExist(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("%s: want no file, got err=%v", path, err)
	}
}

func TestRunUsage(t *testing.T) {
	for _, args := range [][]string{nil, {"help"}} {
		code, out := runCmd(t, args...)
		if code != exitOK {
			t.Errorf("run(%v) = %d, want %d", args, code, exitOK)
		}
		if !strings.Contains(out, "usage: qgis-plugin-repo") {
			t.Errorf("run(%v) printed %q, want usage", args, out)
		}
	}
}

func TestRunVersion(t *testing.T) {
	code, out := runCmd(t, "version")
	if code != exitOK || out != Version+"\n" {
		t.Errorf("version = (%d, %q), want (%d, %q)", code, out, exitOK, Version+"\n")
	}
}

func TestRunUnknownCommand(t *testing.T) {
	if code, _ := runCmd(t, "frobnicate"); code != exitError {
		t.Errorf("run(frobnicate) = %d, want %d", code, exitError)
	}
}

func TestRunRead(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "plugins.xml", testutil.PluginsXML)

	t.Run("all", func(t *testing.T) {
		code, out := runCmd(t, "read", path)
		if code != exitOK {
			t.Fatalf("read = %d, want %d", code, exitOK)
		}
		want := "List of plugins in " + path + "\n" +
			"PgMetadata 0.4.0 experimental\n" +
			"PgMetadata 0.5.0\n" +
			"atlasprint v3.2.2\n"
		if diff := cmp.Diff(want, out); diff != "" {
			t.Errorf("read output mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("filter", func(t *testing.T) {
		code, out := runCmd(t, "read", "-filter", `experimental || name == "atlasprint"`, path)
		if code != exitOK {
			t.Fatalf("read = %d, want %d", code, exitOK)
		}
		want := "List of plugins in " + path + "\n" +
			"PgMetadata 0.4.0 experimental\n" +
			"atlasprint v3.2.2\n"
		if diff := cmp.Diff(want, out); diff != "" {
			t.Errorf("read output mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("invalid filter", func(t *testing.T) {
		if code, _ := runCmd(t, "read", "-filter", "name ==", path); code != exitError {
			t.Errorf("read = %d, want %d", code, exitError)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		missing := filepath.Join(t.TempDir(), "nope.xml")
		if code, _ := runCmd(t, "read", missing); code != exitSource {
			t.Errorf("read = %d, want %d", code, exitSource)
		}
	})

	t.Run("no argument", func(t *testing.T) {
		if code, _ := runCmd(t, "read"); code != exitError {
			t.Errorf("read = %d, want %d", code, exitError)
		}
	})
}

func TestRunReadURL(t *testing.T) {
	var userAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent = r.Header.Get("User-Agent")
		w.Write([]byte(testutil.PgMetadataStableXML))
	}))
	defer srv.Close()

	code, out := runCmd(t, "read", srv.URL+"/plugins.xml")
	if code != exitOK {
		t.Fatalf("read = %d, want %d", code, exitOK)
	}
	if !strings.HasSuffix(out, "PgMetadata 0.6.0\n") {
		t.Errorf("read printed %q", out)
	}
	if userAgent != "qgis-plugin-repo/"+Version {
		t.Errorf("User-Agent = %q", userAgent)
	}
}

func TestRunMergeSingleOutput(t *testing.T) {
	dir := t.TempDir()
	in := testutil.WriteFile(t, dir, "input.xml", testutil.PgMetadataStableXML)
	out := testutil.WriteFile(t, dir, "plugins.xml", testutil.PluginsXML)

	code, stdout := runCmd(t, "merge", in, out)
	if code != exitOK {
		t.Fatalf("merge = %d, want %d", code, exitOK)
	}
	if !strings.Contains(stdout, "A single XML file detected for the output.") {
		t.Errorf("merge printed %q", stdout)
	}
	if diff := cmp.Diff([]string{"0.4.0", "0.6.0", "v3.2.2"}, pluginVersions(t, out)); diff != "" {
		t.Errorf("versions mismatch (-want +got):\n%s", diff)
	}

	// A second run leaves the file unchanged.
	before := testutil.ReadFile(t, out)
	if code, _ := runCmd(t, "merge", in, out); code != exitOK {
		t.Fatalf("second merge = %d, want %d", code, exitOK)
	}
	if diff := cmp.Diff(before, testutil.ReadFile(t, out)); diff != "" {
		t.Errorf("second merge changed the file (-want +got):\n%s", diff)
	}
}

func TestRunMergeCreatesOutput(t *testing.T) {
	dir := t.TempDir()
	in := testutil.WriteFile(t, dir, "input.xml", testutil.PgMetadataExperimentalXML)
	out := filepath.Join(dir, "new.xml")

	if code, _ := runCmd(t, "merge", in, out); code != exitOK {
		t.Fatalf("merge = %d, want %d", code, exitOK)
	}
	if diff := cmp.Diff([]string{"0.7.0"}, pluginVersions(t, out)); diff != "" {
		t.Errorf("versions mismatch (-want +got):\n%s", diff)
	}
}

func TestRunMergeDispatch(t *testing.T) {
	dir := t.TempDir()
	in := testutil.WriteFile(t, dir, "input.xml", testutil.PgMetadataStableXML)
	outputs := []string{
		filepath.Join(dir, "plugins-3.4.xml"),
		filepath.Join(dir, "plugins-3.10.xml"),
		filepath.Join(dir, "plugins-3.16.xml"),
		filepath.Join(dir, "plugins-3.28.xml"),
	}

	code, stdout := runCmd(t, append([]string{"merge", in}, outputs...)...)
	if code != exitOK {
		t.Fatalf("merge = %d, want %d", code, exitOK)
	}
	for _, want := range []string{"Editing plugins-3.10.xml", "Editing plugins-3.16.xml"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("merge output does not contain %q:\n%s", want, stdout)
		}
	}
	for _, path := range outputs[1:3] {
		if diff := cmp.Diff([]string{"0.6.0"}, pluginVersions(t, path)); diff != "" {
			t.Errorf("%s: versions mismatch (-want +got):\n%s", path, diff)
		}
	}
	assertNotExist(t, outputs[0])
	assertNotExist(t, outputs[3])
}

func TestRunMergeDispatchConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg := testutil.WriteFile(t, dir, "config.yaml", `
dispatch:
  defaultMinimumVersion: "3.16"
  defaultMaximumVersion: "3.18"
`)
	in := testutil.WriteFile(t, dir, "input.xml",
		`<plugins><plugin name="bare" version="1.0"><experimental>False</experimental></plugin></plugins>`)
	outputs := []string{
		filepath.Join(dir, "plugins-3.10.xml"),
		filepath.Join(dir, "plugins-3.16.xml"),
		filepath.Join(dir, "plugins-3.18.xml"),
	}

	code, _ := runCmd(t, append([]string{"merge", "-config", cfg, in}, outputs...)...)
	if code != exitOK {
		t.Fatalf("merge = %d, want %d", code, exitOK)
	}
	assertNotExist(t, outputs[0])
	for _, path := range outputs[1:] {
		if diff := cmp.Diff([]string{"1.0"}, pluginVersions(t, path)); diff != "" {
			t.Errorf("%s: versions mismatch (-want +got):\n%s", path, diff)
		}
	}
}

func TestRunMergeManyPluginsManyOutputs(t *testing.T) {
	dir := t.TempDir()
	in := testutil.WriteFile(t, dir, "input.xml", testutil.PluginsXML)
	a := filepath.Join(dir, "plugins-3.10.xml")
	b := filepath.Join(dir, "plugins-3.12.xml")

	code, stdout := runCmd(t, "merge", in, a, b)
	if code != exitError {
		t.Fatalf("merge = %d, want %d", code, exitError)
	}
	if !strings.Contains(stdout, "Not possible to merge an XML file having many plugins") {
		t.Errorf("merge printed %q", stdout)
	}
	assertNotExist(t, a)
	assertNotExist(t, b)
}

func TestRunMergeInvalidSource(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "plugins.xml")
	if code, _ := runCmd(t, "merge", filepath.Join(dir, "missing.xml"), out); code != exitSource {
		t.Errorf("merge = %d, want %d", code, exitSource)
	}
	assertNotExist(t, out)
}

func TestRunMergeTooFewArgs(t *testing.T) {
	in := testutil.WriteFile(t, t.TempDir(), "input.xml", testutil.PgMetadataStableXML)
	if code, _ := runCmd(t, "merge", in); code != exitError {
		t.Errorf("merge = %d, want %d", code, exitError)
	}
}

func TestRunMergeFromGit(t *testing.T) {
	repoPath := testutil.CreateGitRepo(t)
	out := filepath.Join(t.TempDir(), "plugins.xml")

	code, _ := runCmd(t, "merge", "-git-url", repoPath, "-git-ref", "v2.0.0",
		"nested/pgmetadata_experimental.xml", out)
	if code != exitOK {
		t.Fatalf("merge = %d, want %d", code, exitOK)
	}
	if diff := cmp.Diff([]string{"0.7.0"}, pluginVersions(t, out)); diff != "" {
		t.Errorf("versions mismatch (-want +got):\n%s", diff)
	}
}

func TestRunReadFromGitDefaultBranch(t *testing.T) {
	repoPath := testutil.CreateGitRepo(t)

	code, out := runCmd(t, "read", "-git-url", repoPath, "plugins.xml")
	if code != exitOK {
		t.Fatalf("read = %d, want %d", code, exitOK)
	}
	want := "List of plugins in plugins.xml\nPgMetadata 0.6.0\n"
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("read output mismatch (-want +got):\n%s", diff)
	}
}

func TestRunMergeInvalidOutputIsKept(t *testing.T) {
	dir := t.TempDir()
	in := testutil.WriteFile(t, dir, "input.xml", testutil.PgMetadataStableXML)
	doc := "<plugins>\n  <plugin name=\"keep\" version=\"1.0\"/>\n  <plugin name=\"broken\"/>\n</plugins>\n"
	out := testutil.WriteFile(t, dir, "plugins.xml", doc)

	if code, _ := runCmd(t, "merge", in, out); code != exitError {
		t.Errorf("merge = %d, want %d", code, exitError)
	}
	if got := testutil.ReadFile(t, out); got != doc {
		t.Errorf("output was modified: %q", got)
	}
}

package merge

import (
	"testing"

	"github.com/dnswlt/qgisrepo/internal/catalog"
	"github.com/dnswlt/qgisrepo/internal/testutil"
	"github.com/google/go-cmp/cmp"
)

func mustParse(t *testing.T, doc string) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return c
}

func TestDiff(t *testing.T) {
	out := mustParse(t, testutil.PluginsXML)

	testCases := []struct {
		name string
		in   *catalog.Catalog
		want []catalog.Ident
	}{
		{
			name: "new version of stable record",
			in:   mustParse(t, testutil.PgMetadataStableXML),
			want: []catalog.Ident{{Name: "PgMetadata", Experimental: false, Version: "0.6.0"}},
		},
		{
			name: "identical records",
			in:   mustParse(t, testutil.PluginsXML),
			want: nil,
		},
		{
			name: "same version, other flag",
			in:   catalog.New(catalog.NewPlugin("atlasprint", "v3.2.2", true)),
			want: []catalog.Ident{{Name: "atlasprint", Experimental: true, Version: "v3.2.2"}},
		},
		{
			name: "new name",
			in:   catalog.New(catalog.NewPlugin("lizmap", "3.7.0", false)),
			want: []catalog.Ident{{Name: "lizmap", Experimental: false, Version: "3.7.0"}},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var got []catalog.Ident
			for _, p := range Diff(tc.in.Plugins, out.Plugins) {
				got = append(got, p.Ident())
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Diff() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMergeStable(t *testing.T) {
	in := mustParse(t, testutil.PgMetadataStableXML)
	out := mustParse(t, testutil.PluginsXML)

	report := Merge(in, out)

	want := []catalog.Ident{
		{Name: "PgMetadata", Experimental: true, Version: "0.4.0"},
		{Name: "PgMetadata", Experimental: false, Version: "0.6.0"},
		{Name: "atlasprint", Experimental: false, Version: "v3.2.2"},
	}
	if diff := cmp.Diff(want, out.Idents()); diff != "" {
		t.Errorf("Idents() mismatch (-want +got):\n%s", diff)
	}
	wantChanges := []Change{
		{
			Kind:            Updated,
			Plugin:          catalog.Ident{Name: "PgMetadata", Version: "0.6.0"},
			Index:           1,
			PreviousVersion: "0.5.0",
		},
	}
	if diff := cmp.Diff(wantChanges, report.Changes); diff != "" {
		t.Errorf("Changes mismatch (-want +got):\n%s", diff)
	}
	if d := report.Changes[0].Direction(); d != Upgrade {
		t.Errorf("Direction() = %s, want %s", d, Upgrade)
	}
	// The whole record is copied, including opaque children.
	if !out.Plugins[1].Equal(in.Plugins[0]) {
		t.Errorf("merged record differs from input record")
	}
	if out.Plugins[1] == in.Plugins[0] {
		t.Errorf("merged record shares memory with input record")
	}
	if got := out.Plugins[1].QGISMaximumVersion(); got != "3.22" {
		t.Errorf("QGISMaximumVersion() = %q, want 3.22", got)
	}
}

func TestMergeExperimental(t *testing.T) {
	in := mustParse(t, testutil.PgMetadataExperimentalXML)
	out := mustParse(t, testutil.PluginsXML)

	report := Merge(in, out)

	want := []catalog.Ident{
		{Name: "PgMetadata", Experimental: true, Version: "0.7.0"},
		{Name: "PgMetadata", Experimental: false, Version: "0.5.0"},
		{Name: "atlasprint", Experimental: false, Version: "v3.2.2"},
	}
	if diff := cmp.Diff(want, out.Idents()); diff != "" {
		t.Errorf("Idents() mismatch (-want +got):\n%s", diff)
	}
	if report.Count(Updated) != 1 || report.Count(Added) != 0 {
		t.Errorf("report = %+v, want exactly one update", report.Changes)
	}
}

func TestMergeAppendsNewRecords(t *testing.T) {
	in := catalog.New(
		catalog.NewPlugin("lizmap", "3.7.0", false),
		catalog.NewPlugin("atlasprint", "v3.3.0", true),
	)
	out := mustParse(t, testutil.PluginsXML)

	report := Merge(in, out)

	want := []catalog.Ident{
		{Name: "PgMetadata", Experimental: true, Version: "0.4.0"},
		{Name: "PgMetadata", Experimental: false, Version: "0.5.0"},
		{Name: "atlasprint", Experimental: false, Version: "v3.2.2"},
		{Name: "lizmap", Experimental: false, Version: "3.7.0"},
		{Name: "atlasprint", Experimental: true, Version: "v3.3.0"},
	}
	if diff := cmp.Diff(want, out.Idents()); diff != "" {
		t.Errorf("Idents() mismatch (-want +got):\n%s", diff)
	}
	if report.Count(Added) != 2 {
		t.Errorf("Count(Added) = %d, want 2", report.Count(Added))
	}
	if report.Changes[1].Index != 4 {
		t.Errorf("Index = %d, want 4", report.Changes[1].Index)
	}
}

func TestMergeMissingExperimentalIsStable(t *testing.T) {
	out := mustParse(t, `<plugins>
  <plugin name="a" version="1.0"><about>no flag</about></plugin>
  <plugin name="b" version="1.0"/>
</plugins>`)
	in := catalog.New(catalog.NewPlugin("a", "1.1", false))

	Merge(in, out)

	want := []catalog.Ident{
		{Name: "a", Version: "1.1"},
		{Name: "b", Version: "1.0"},
	}
	if diff := cmp.Diff(want, out.Idents()); diff != "" {
		t.Errorf("Idents() mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	in := mustParse(t, testutil.PgMetadataStableXML)
	out := mustParse(t, testutil.PluginsXML)

	Merge(in, out)
	first, err := catalog.Marshal(out)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	report := Merge(in, out)
	if !report.Empty() {
		t.Errorf("second Merge() changed %v", report.Changes)
	}
	second, err := catalog.Marshal(out)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if diff := cmp.Diff(string(first), string(second)); diff != "" {
		t.Errorf("second Merge() changed output (-first +second):\n%s", diff)
	}
}

func TestMergeIntoEmpty(t *testing.T) {
	in := mustParse(t, testutil.PgMetadataStableXML)
	out := catalog.New()

	report := Merge(in, out)

	want := []catalog.Ident{{Name: "PgMetadata", Version: "0.6.0"}}
	if diff := cmp.Diff(want, out.Idents()); diff != "" {
		t.Errorf("Idents() mismatch (-want +got):\n%s", diff)
	}
	if report.Count(Added) != 1 {
		t.Errorf("Count(Added) = %d, want 1", report.Count(Added))
	}
}

func TestChangeDirection(t *testing.T) {
	testCases := []struct {
		prev, next string
		want       Direction
	}{
		{"0.5.0", "0.6.0", Upgrade},
		{"v3.2.2", "v3.2.1", Downgrade},
		{"1.0", "v1.0", Reinstall},
		{"0.5.0", "master-2021", Unknown},
	}
	for _, tc := range testCases {
		c := Change{Kind: Updated, PreviousVersion: tc.prev, Plugin: catalog.Ident{Name: "x", Version: tc.next}}
		if got := c.Direction(); got != tc.want {
			t.Errorf("Direction(%s -> %s) = %s, want %s", tc.prev, tc.next, got, tc.want)
		}
	}
	added := Change{Kind: Added, Plugin: catalog.Ident{Name: "x", Version: "1.0"}}
	if got := added.Direction(); got != Unknown {
		t.Errorf("Direction() of added record = %s, want %s", got, Unknown)
	}
}

// Package merge reconciles a plugin catalog with records from another catalog.
//
// A record is identified by its name and experimental flag. Input records that are
// already present with the same version are left alone. Others replace the output
// record with the same identity in place, or are appended if there is none.
package merge

import (
	"fmt"
	"strings"

	"github.com/dnswlt/qgisrepo/internal/catalog"
	"golang.org/x/mod/semver"
)

type ChangeKind string

const (
	Added   ChangeKind = "added"
	Updated ChangeKind = "updated"
)

// Direction describes how a version changed. It is informational only:
// versions are opaque to the merge and never ordered for decisions.
type Direction string

const (
	Upgrade   Direction = "upgrade"
	Downgrade Direction = "downgrade"
	Reinstall Direction = "reinstall"
	Unknown   Direction = "unknown"
)

// Change records a single modification of the output catalog.
type Change struct {
	Kind   ChangeKind
	Plugin catalog.Ident
	// Position of the record in the output catalog after the merge.
	Index int
	// PreviousVersion is the version of the replaced record (Updated only).
	PreviousVersion string
}

// Direction compares PreviousVersion and the new version if both look like
// semantic versions (an optional "v" prefix is accepted).
func (c Change) Direction() Direction {
	if c.Kind != Updated {
		return Unknown
	}
	prev, next := canonicalSemver(c.PreviousVersion), canonicalSemver(c.Plugin.Version)
	if prev == "" || next == "" {
		return Unknown
	}
	switch semver.Compare(next, prev) {
	case 1:
		return Upgrade
	case -1:
		return Downgrade
	default:
		return Reinstall
	}
}

func (c Change) String() string {
	switch c.Kind {
	case Updated:
		return fmt.Sprintf("%s %s %t %s -> %s (%s)", c.Kind, c.Plugin.Name, c.Plugin.Experimental,
			c.PreviousVersion, c.Plugin.Version, c.Direction())
	default:
		return fmt.Sprintf("%s %s %t %s", c.Kind, c.Plugin.Name, c.Plugin.Experimental, c.Plugin.Version)
	}
}

func canonicalSemver(v string) string {
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return ""
	}
	return v
}

// Report lists the changes applied by Merge, in the order they were applied.
type Report struct {
	Changes []Change
}

// Empty reports whether the merge left the output catalog untouched.
func (r *Report) Empty() bool {
	return len(r.Changes) == 0
}

// Count returns the number of changes of the given kind.
func (r *Report) Count(kind ChangeKind) int {
	n := 0
	for _, c := range r.Changes {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

// Diff returns the input records whose (name, experimental, version) triple
// does not occur in the output records, in input order.
func Diff(in, out []*catalog.Plugin) []*catalog.Plugin {
	present := make(map[catalog.Ident]bool, len(out))
	for _, p := range out {
		present[p.Ident()] = true
	}
	var changed []*catalog.Plugin
	for _, p := range in {
		if !present[p.Ident()] {
			changed = append(changed, p)
		}
	}
	return changed
}

// Merge applies the records of in that are new or changed to out.
// Changed records replace the first output record with the same key at its position,
// new records are appended. Records are deep-copied, in is not modified.
func Merge(in, out *catalog.Catalog) *Report {
	report := &Report{}
	for _, p := range Diff(in.Plugins, out.Plugins) {
		cpy := p.Clone()
		if i := out.Index(p.Key()); i >= 0 {
			prev := out.Plugins[i]
			out.Replace(i, cpy)
			report.Changes = append(report.Changes, Change{
				Kind:            Updated,
				Plugin:          p.Ident(),
				Index:           i,
				PreviousVersion: prev.Version,
			})
			continue
		}
		out.Append(cpy)
		report.Changes = append(report.Changes, Change{
			Kind:   Added,
			Plugin: p.Ident(),
			Index:  out.Count() - 1,
		})
	}
	return report
}

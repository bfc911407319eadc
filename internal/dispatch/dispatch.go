// Package dispatch selects the versioned catalog files a plugin update belongs to.
//
// Catalog files are tagged with a QGIS release line in their name, e.g. plugins-3.22.xml.
// QGIS releases use even minor versions, odd minors are development snapshots,
// so only even minors in the plugin's supported range are considered.
package dispatch

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dnswlt/qgisrepo/internal/catalog"
)

const (
	DefaultMinimumVersion = "3.0"
	DefaultMaximumVersion = "3.99"
)

var (
	ErrVersion = errors.New("invalid QGIS version")
)

// Config holds the versions assumed for plugins that do not declare them.
type Config struct {
	DefaultMinimumVersion string `yaml:"defaultMinimumVersion"`
	DefaultMaximumVersion string `yaml:"defaultMaximumVersion"`
}

func (c Config) minimum() string {
	if c.DefaultMinimumVersion != "" {
		return c.DefaultMinimumVersion
	}
	return DefaultMinimumVersion
}

func (c Config) maximum() string {
	if c.DefaultMaximumVersion != "" {
		return c.DefaultMaximumVersion
	}
	return DefaultMaximumVersion
}

// Validate checks that the default versions can be parsed.
func (c Config) Validate() error {
	_, err := NewRange(c.minimum(), c.maximum())
	return err
}

// VersionsForPlugin returns the QGIS compatibility range declared by the first
// record of c. Missing or empty bounds are taken from cfg.
func VersionsForPlugin(c *catalog.Catalog, cfg Config) (minVersion, maxVersion string) {
	minVersion, maxVersion = cfg.minimum(), cfg.maximum()
	if c.Count() == 0 {
		return minVersion, maxVersion
	}
	p := c.Plugins[0]
	if v := p.QGISMinimumVersion(); v != "" {
		minVersion = v
	}
	if v := p.QGISMaximumVersion(); v != "" {
		maxVersion = v
	}
	return minVersion, maxVersion
}

type version struct {
	major, minor int
	parts        int
}

func parseVersion(v string) (version, error) {
	parts := strings.Split(strings.TrimSpace(v), ".")
	if len(parts) < 2 {
		return version{}, fmt.Errorf("%w: %q: want <major>.<minor>", ErrVersion, v)
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil || major < 0 {
		return version{}, fmt.Errorf("%w: %q: bad major version", ErrVersion, v)
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil || minor < 0 {
		return version{}, fmt.Errorf("%w: %q: bad minor version", ErrVersion, v)
	}
	return version{major: major, minor: minor, parts: len(parts)}, nil
}

// Range is the set of QGIS release lines <Major>.<minor> with an even minor
// between MinMinor and MaxMinor (inclusive).
type Range struct {
	Major    int
	MinMinor int
	MaxMinor int
}

// NewRange returns the release range between minVersion and maxVersion.
// The major version is taken from minVersion; only major.minor are honored.
// The range is empty if the maximum minor is smaller than the minimum minor.
func NewRange(minVersion, maxVersion string) (Range, error) {
	lo, err := parseVersion(minVersion)
	if err != nil {
		return Range{}, err
	}
	hi, err := parseVersion(maxVersion)
	if err != nil {
		return Range{}, err
	}
	if lo.parts > 2 || hi.parts > 2 {
		log.Printf("Only major and minor versions are supported for now.")
	}
	return Range{Major: lo.major, MinMinor: lo.minor, MaxMinor: hi.minor}, nil
}

// Contains reports whether the release line major.minor belongs to r.
func (r Range) Contains(major, minor int) bool {
	return major == r.Major && minor%2 == 0 && minor >= r.MinMinor && minor <= r.MaxMinor
}

func (r Range) String() string {
	return fmt.Sprintf("%d.%d - %d.%d", r.Major, r.MinMinor, r.Major, r.MaxMinor)
}

// nameVersions returns all <major>.<minor> tokens in name, i.e. pairs of
// decimal numbers joined by a dot and not adjacent to further digits.
// Numbers with leading zeros ("03", "010") or that overflow are ignored.
// "plugins-3.10.xml" yields 3.10; "v3.10.2" yields 3.10 and 10.2.
func nameVersions(name string) []version {
	var runs [][2]int // [start, end) of maximal digit runs
	for i := 0; i < len(name); {
		if !isDigit(name[i]) {
			i++
			continue
		}
		j := i
		for j < len(name) && isDigit(name[j]) {
			j++
		}
		runs = append(runs, [2]int{i, j})
		i = j
	}
	var vs []version
	for k := 0; k+1 < len(runs); k++ {
		a, b := runs[k], runs[k+1]
		if a[1]+1 != b[0] || name[a[1]] != '.' {
			continue
		}
		major, ok := canonicalInt(name[a[0]:a[1]])
		if !ok {
			continue
		}
		minor, ok := canonicalInt(name[b[0]:b[1]])
		if !ok {
			continue
		}
		vs = append(vs, version{major: major, minor: minor, parts: 2})
	}
	return vs
}

func canonicalInt(s string) (int, bool) {
	if len(s) > 1 && s[0] == '0' {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// SelectTargets returns the candidates whose file name is tagged with a release
// line in the range [minVersion, maxVersion], in their original order.
// An empty result means no candidate is compatible; it is not an error.
func SelectTargets(minVersion, maxVersion string, candidates []string) ([]string, error) {
	r, err := NewRange(minVersion, maxVersion)
	if err != nil {
		return nil, err
	}
	var selected []string
	for _, c := range candidates {
		for _, v := range nameVersions(filepath.Base(c)) {
			if r.Contains(v.major, v.minor) {
				selected = append(selected, c)
				break
			}
		}
	}
	return selected, nil
}

// Targets combines VersionsForPlugin and SelectTargets for the single record in c.
func Targets(c *catalog.Catalog, candidates []string, cfg Config) ([]string, error) {
	minVersion, maxVersion := VersionsForPlugin(c, cfg)
	targets, err := SelectTargets(minVersion, maxVersion, candidates)
	if err != nil {
		return nil, fmt.Errorf("cannot select targets for QGIS %s - %s: %w", minVersion, maxVersion, err)
	}
	return targets, nil
}

// Package catalog defines the model of a QGIS plugin repository catalog:
// an ordered list of plugin records as found in a plugins.xml file.
//
// Only the attributes and children that the merge and dispatch logic reason
// about are typed. Everything else is kept as opaque Nodes so that a record
// can be copied between catalogs without losing metadata.
package catalog

import (
	"fmt"
	"strings"
)

// Well-known element and attribute names of the plugins.xml format.
const (
	ElemPlugins            = "plugins"
	ElemPlugin             = "plugin"
	ElemExperimental       = "experimental"
	ElemQGISMinimumVersion = "qgis_minimum_version"
	ElemQGISMaximumVersion = "qgis_maximum_version"

	AttrName    = "name"
	AttrVersion = "version"

	// The literal that marks a plugin as experimental.
	// Any other text (or a missing element) means "not experimental".
	ExperimentalTrue = "True"
)

// Key is the merge identity of a plugin record.
// A stable and an experimental record of the same plugin are different identities.
type Key struct {
	Name         string
	Experimental bool
}

func (k Key) String() string {
	return fmt.Sprintf("%s %t", k.Name, k.Experimental)
}

// Ident is the value identity of a plugin record: its Key plus its version.
// Two records with equal Idents are considered unchanged by a merge.
type Ident struct {
	Name         string
	Experimental bool
	Version      string
}

func (i Ident) Key() Key {
	return Key{Name: i.Name, Experimental: i.Experimental}
}

// Plugin is a single <plugin> record of a catalog.
type Plugin struct {
	Name    string
	Version string
	// Experimental is derived from the <experimental> child when parsed.
	// It is not serialized by itself: Children carries the element.
	Experimental bool

	// Attrs holds all attributes of the <plugin> element except name and version,
	// in document order.
	Attrs []Attr
	// Children holds all child elements in document order,
	// including the ones that are also reflected in typed fields.
	Children []*Node
}

// NewPlugin returns a plugin record with an <experimental> child
// reflecting the given flag, followed by the given children.
func NewPlugin(name, version string, experimental bool, children ...*Node) *Plugin {
	flag := "False"
	if experimental {
		flag = ExperimentalTrue
	}
	p := &Plugin{
		Name:         name,
		Version:      version,
		Experimental: experimental,
		Children:     []*Node{NewTextNode(ElemExperimental, flag)},
	}
	p.Children = append(p.Children, children...)
	return p
}

func (p *Plugin) Key() Key {
	return Key{Name: p.Name, Experimental: p.Experimental}
}

func (p *Plugin) Ident() Ident {
	return Ident{Name: p.Name, Experimental: p.Experimental, Version: p.Version}
}

// Child returns the first child element with the given name, or nil.
func (p *Plugin) Child(name string) *Node {
	for _, c := range p.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ChildText returns the trimmed text of the first child element with the given name.
// The second return value is false if no such child exists.
func (p *Plugin) ChildText(name string) (string, bool) {
	c := p.Child(name)
	if c == nil {
		return "", false
	}
	return strings.TrimSpace(c.Text), true
}

// QGISMinimumVersion returns the text of <qgis_minimum_version>, or "" if absent.
func (p *Plugin) QGISMinimumVersion() string {
	v, _ := p.ChildText(ElemQGISMinimumVersion)
	return v
}

// QGISMaximumVersion returns the text of <qgis_maximum_version>, or "" if absent.
func (p *Plugin) QGISMaximumVersion() string {
	v, _ := p.ChildText(ElemQGISMaximumVersion)
	return v
}

// Clone returns a deep copy of p.
func (p *Plugin) Clone() *Plugin {
	if p == nil {
		return nil
	}
	c := &Plugin{
		Name:         p.Name,
		Version:      p.Version,
		Experimental: p.Experimental,
		Attrs:        cloneAttrs(p.Attrs),
	}
	if p.Children != nil {
		c.Children = make([]*Node, len(p.Children))
		for i, ch := range p.Children {
			c.Children[i] = ch.Clone()
		}
	}
	return c
}

// Equal reports whether p and other are structurally identical,
// including all opaque attributes and children.
func (p *Plugin) Equal(other *Plugin) bool {
	if p == nil || other == nil {
		return p == other
	}
	if p.Name != other.Name || p.Version != other.Version || p.Experimental != other.Experimental {
		return false
	}
	return attrsEqual(p.Attrs, other.Attrs) && nodesEqual(p.Children, other.Children)
}

func (p *Plugin) String() string {
	if p.Experimental {
		return fmt.Sprintf("%s %s experimental", p.Name, p.Version)
	}
	return fmt.Sprintf("%s %s", p.Name, p.Version)
}

// Catalog is an ordered sequence of plugin records.
// Record order reflects document order and is preserved on write.
type Catalog struct {
	// Attrs holds the attributes of the <plugins> root element, e.g. namespace
	// declarations used by prefixed child elements, in document order.
	Attrs   []Attr
	Plugins []*Plugin
}

// New returns a catalog holding the given plugins.
func New(plugins ...*Plugin) *Catalog {
	return &Catalog{Plugins: plugins}
}

// Count returns the number of top-level plugin records.
func (c *Catalog) Count() int {
	return len(c.Plugins)
}

// Idents returns the value identities of all records, in document order.
func (c *Catalog) Idents() []Ident {
	ids := make([]Ident, len(c.Plugins))
	for i, p := range c.Plugins {
		ids[i] = p.Ident()
	}
	return ids
}

// Index returns the position of the first record with the given key, or -1.
func (c *Catalog) Index(key Key) int {
	for i, p := range c.Plugins {
		if p.Key() == key {
			return i
		}
	}
	return -1
}

// Replace sets the record at position i, keeping its position in the catalog.
func (c *Catalog) Replace(i int, p *Plugin) {
	c.Plugins[i] = p
}

// Append adds p as the last record.
func (c *Catalog) Append(p *Plugin) {
	c.Plugins = append(c.Plugins, p)
}

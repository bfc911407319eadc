package catalog

import "slices"

// Attr is an XML attribute. Namespaces are not interpreted:
// Name is the local name, prefixed names keep their prefix (e.g. "xml:lang").
type Attr struct {
	Name  string
	Value string
}

// Node is an opaque XML element: its name, attributes, text and child elements.
// Mixed content is not preserved: Text holds the element's character data
// with surrounding whitespace trimmed for elements that have children.
type Node struct {
	Name     string
	Attrs    []Attr
	Text     string
	Children []*Node
}

// NewTextNode returns a leaf element <name>text</name>.
func NewTextNode(name, text string) *Node {
	return &Node{Name: name, Text: text}
}

// Child returns the first child element with the given name, or nil.
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := &Node{
		Name:  n.Name,
		Attrs: cloneAttrs(n.Attrs),
		Text:  n.Text,
	}
	if n.Children != nil {
		c.Children = make([]*Node, len(n.Children))
		for i, ch := range n.Children {
			c.Children[i] = ch.Clone()
		}
	}
	return c
}

// Equal reports whether n and other are structurally identical (recursively).
// Attribute order is significant.
func (n *Node) Equal(other *Node) bool {
	if n == nil || other == nil {
		return n == other
	}
	if n.Name != other.Name || n.Text != other.Text {
		return false
	}
	return attrsEqual(n.Attrs, other.Attrs) && nodesEqual(n.Children, other.Children)
}

func cloneAttrs(as []Attr) []Attr {
	if as == nil {
		return nil
	}
	return slices.Clone(as)
}

func attrsEqual(a, b []Attr) bool {
	return slices.Equal(a, b)
}

func nodesEqual(a, b []*Node) bool {
	return slices.EqualFunc(a, b, func(x, y *Node) bool {
		return x.Equal(y)
	})
}

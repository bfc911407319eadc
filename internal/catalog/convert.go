package catalog

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

const (
	// XMLHeader is written at the top of every serialized catalog.
	XMLHeader = "<?xml version='1.0' encoding='UTF-8'?>\n"
	// XMLIndent is the indentation used for nested elements.
	XMLIndent = "  "
)

var (
	// ErrParse is wrapped by errors for documents that are not well-formed XML.
	ErrParse = errors.New("parse error")
	// ErrShape is wrapped by errors for well-formed documents that are not a catalog,
	// e.g. a foreign root element or a <plugin> without a version.
	ErrShape = errors.New("not a plugin catalog")
)

// EmptyTemplate returns the serialized form of a catalog without any records.
func EmptyTemplate() []byte {
	bs, err := Marshal(New())
	if err != nil {
		// Cannot happen for an empty catalog.
		panic(fmt.Sprintf("cannot marshal empty catalog: %v", err))
	}
	return bs
}

// Parse reads a catalog document. The root element must be <plugins> and every
// child of the root must be a <plugin> element with name and version attributes.
// Syntax errors wrap ErrParse, structural errors wrap ErrShape.
// Documents may declare any encoding known to golang.org/x/net/html/charset.
func Parse(bs []byte) (*Catalog, error) {
	dec := xml.NewDecoder(bytes.NewReader(bs))
	dec.CharsetReader = charset.NewReaderLabel

	var root *Node
	for {
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if root != nil {
				return nil, fmt.Errorf("%w: multiple root elements", ErrParse)
			}
			root, err = decodeNode(dec, t)
			if err != nil {
				return nil, err
			}
		case xml.CharData:
			if root == nil && len(bytes.TrimSpace(t)) > 0 {
				return nil, fmt.Errorf("%w: text outside of root element", ErrParse)
			}
		}
	}
	if root == nil {
		return nil, fmt.Errorf("%w: no root element", ErrParse)
	}
	if root.Name != ElemPlugins {
		return nil, fmt.Errorf("%w: root element is <%s>, want <%s>", ErrShape, root.Name, ElemPlugins)
	}

	c := New()
	c.Attrs = root.Attrs
	for i, n := range root.Children {
		p, err := pluginFromNode(n)
		if err != nil {
			return nil, fmt.Errorf("%w: record #%d: %w", ErrShape, i, err)
		}
		c.Append(p)
	}
	return c, nil
}

// decodeNode reads the contents of the element started by start,
// up to and including its end element.
func decodeNode(dec *xml.Decoder, start xml.StartElement) (*Node, error) {
	n := &Node{Name: qname(start.Name)}
	for _, a := range start.Attr {
		n.Attrs = append(n.Attrs, Attr{Name: qname(a.Name), Value: a.Value})
	}
	var text strings.Builder
	for {
		tok, err := dec.RawToken()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, fmt.Errorf("%w: in <%s>: %v", ErrParse, n.Name, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := decodeNode(dec, t)
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, child)
		case xml.EndElement:
			if name := qname(t.Name); name != n.Name {
				return nil, fmt.Errorf("%w: element <%s> closed by </%s>", ErrParse, n.Name, name)
			}
			n.Text = text.String()
			if len(n.Children) > 0 || strings.TrimSpace(n.Text) == "" {
				n.Text = strings.TrimSpace(n.Text)
			}
			return n, nil
		case xml.CharData:
			text.Write(t)
		}
		// Comments, processing instructions and directives are dropped.
	}
}

func qname(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

func pluginFromNode(n *Node) (*Plugin, error) {
	if n.Name != ElemPlugin {
		return nil, fmt.Errorf("unexpected element <%s>, want <%s>", n.Name, ElemPlugin)
	}
	p := &Plugin{Children: n.Children}
	var hasName, hasVersion bool
	for _, a := range n.Attrs {
		switch a.Name {
		case AttrName:
			p.Name, hasName = a.Value, true
		case AttrVersion:
			p.Version, hasVersion = a.Value, true
		default:
			p.Attrs = append(p.Attrs, a)
		}
	}
	if !hasName {
		return nil, fmt.Errorf("missing %q attribute", AttrName)
	}
	if !hasVersion {
		return nil, fmt.Errorf("plugin %q: missing %q attribute", p.Name, AttrVersion)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if flag, ok := p.ChildText(ElemExperimental); ok {
		p.Experimental = flag == ExperimentalTrue
	}
	return p, nil
}

// Marshal serializes c. The output is deterministic: marshalling the same
// catalog twice yields identical bytes. It ends with a trailing newline.
func Marshal(c *Catalog) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(XMLHeader)

	enc := xml.NewEncoder(&buf)
	enc.Indent("", XMLIndent)

	root := xml.StartElement{Name: xml.Name{Local: ElemPlugins}, Attr: xmlAttrs(c.Attrs)}
	if err := enc.EncodeToken(root); err != nil {
		return nil, err
	}
	for _, p := range c.Plugins {
		if err := encodeNode(enc, p.node()); err != nil {
			return nil, fmt.Errorf("failed to encode plugin %q: %w", p.Name, err)
		}
	}
	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to close encoder: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// node returns the XML element for p. Name and version are always the first attributes.
func (p *Plugin) node() *Node {
	attrs := make([]Attr, 0, len(p.Attrs)+2)
	attrs = append(attrs, Attr{Name: AttrName, Value: p.Name}, Attr{Name: AttrVersion, Value: p.Version})
	attrs = append(attrs, p.Attrs...)
	return &Node{
		Name:     ElemPlugin,
		Attrs:    attrs,
		Children: p.Children,
	}
}

func encodeNode(enc *xml.Encoder, n *Node) error {
	start := xml.StartElement{Name: xml.Name{Local: n.Name}, Attr: xmlAttrs(n.Attrs)}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if n.Text != "" {
		if err := enc.EncodeToken(xml.CharData(n.Text)); err != nil {
			return err
		}
	}
	for _, c := range n.Children {
		if err := encodeNode(enc, c); err != nil {
			return err
		}
	}
	return enc.EncodeToken(start.End())
}

// xmlAttrs converts attributes for the encoder. Prefixed names are written
// verbatim, so "xmlns:q" round-trips as a namespace declaration.
func xmlAttrs(as []Attr) []xml.Attr {
	if len(as) == 0 {
		return nil
	}
	res := make([]xml.Attr, len(as))
	for i, a := range as {
		res[i] = xml.Attr{Name: xml.Name{Local: a.Name}, Value: a.Value}
	}
	return res
}

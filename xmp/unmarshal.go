// Copyright (c) 2017-2018 Alexander Eichhorn
//
// Licensed under the Apache License, Version 2.0 (the "License"): you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations
// under the License.

package xmp

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"
)

// Decoder consumes the XML event stream of one XMP packet and builds the
// document node tree. It accepts all equivalent RDF shorthand shapes:
// attribute properties on rdf:Description, rdf:parseType="Resource" and
// nested Description structs, Bag/Seq/Alt arrays with rdf:li items,
// rdf:value qualifier form and rdf:resource URI shorthand.
type Decoder struct {
	r        io.Reader
	toolkit  string
	about    string
	nodes    NodeList
	bindings []nsBinding
}

type nsBinding struct {
	prefix string
	uri    string
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

func Unmarshal(data []byte, d *Document) error {
	return NewDecoder(bytes.NewReader(data)).Decode(d)
}

// raw XML tree, one node per element. Character content is kept verbatim
// for leaf elements; whitespace between child elements is discarded.
type rawNode struct {
	name     xml.Name
	attr     []xml.Attr
	children []*rawNode
	text     string
}

func (n *rawNode) getAttr(space, local string) (string, bool) {
	for _, a := range n.attr {
		if matchSpace(a.Name.Space, space) && a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

// matchSpace compares attribute namespaces, tolerating the bare "xml" and
// "rdf" prefixes encoding/xml reports when a document does not declare
// them.
func matchSpace(got, want string) bool {
	if got == want {
		return true
	}
	switch want {
	case NsXML.URI:
		return got == "xml"
	case NsRDF.URI:
		return got == "rdf"
	}
	return false
}

func isXmlns(a xml.Attr) bool {
	return a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns")
}

func (d *Decoder) Decode(x *Document) error {
	if x == nil {
		return nil
	}

	data, err := io.ReadAll(d.r)
	if err != nil {
		return wrapParseError(NotWellFormed, err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	root, err := d.buildTree(xml.NewDecoder(bytes.NewReader(data)))
	if err != nil {
		return err
	}
	if root == nil {
		return newParseError(MissingRdfRoot, "empty document")
	}

	// apply in-packet namespace declarations: known URIs keep their
	// standard prefix, new pairs are registered process-wide, conflicting
	// ones are kept per-document only
	for _, b := range d.bindings {
		if NsRegistry.IsRegistered(b.uri) {
			continue
		}
		if err := NsRegistry.Register(b.uri, b.prefix); err != nil {
			x.addExtNs(b.uri, b.prefix)
		}
	}

	// unwrap the optional x:xmpmeta envelope
	if root.name.Local == "xmpmeta" {
		if tk, ok := root.getAttr(NsX.URI, "xmptk"); ok {
			d.toolkit = strings.TrimSpace(tk)
		}
		var rdf *rawNode
		for _, c := range root.children {
			if matchSpace(c.name.Space, NsRDF.URI) && c.name.Local == "RDF" {
				rdf = c
				break
			}
		}
		if rdf == nil {
			return newParseError(MissingRdfRoot, "x:xmpmeta without rdf:RDF child")
		}
		root = rdf
	}

	if !matchSpace(root.name.Space, NsRDF.URI) || root.name.Local != "RDF" {
		return newParseError(MissingRdfRoot, "found "+root.name.Local)
	}

	for _, c := range root.children {
		if !matchSpace(c.name.Space, NsRDF.URI) || c.name.Local != "Description" {
			return newParseError(UnexpectedElement, c.name.Local)
		}
		if err := d.mergeDescription(c); err != nil {
			return err
		}
	}

	x.toolkit = d.toolkit
	x.about = d.about
	x.nodes = d.nodes
	return nil
}

// buildTree runs the XML token loop and captures xmlns bindings as they
// appear. The xpacket processing instructions, comments and text outside
// the root element are skipped.
func (d *Decoder) buildTree(dec *xml.Decoder) (*rawNode, error) {
	var root *rawNode
	var stack []*rawNode
	var text bytes.Buffer

	for {
		t, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			if strings.Contains(err.Error(), "character entity") {
				return nil, wrapParseError(UnknownEntity, err)
			}
			return nil, wrapParseError(NotWellFormed, err)
		}
		switch t := t.(type) {
		case xml.StartElement:
			n := &rawNode{name: t.Name, attr: make([]xml.Attr, len(t.Attr))}
			copy(n.attr, t.Attr)
			for _, a := range t.Attr {
				if a.Name.Space == "xmlns" {
					d.bindings = append(d.bindings, nsBinding{prefix: a.Name.Local, uri: a.Value})
				}
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, newParseError(NotWellFormed, "trailing content after document element")
				}
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, n)
			}
			stack = append(stack, n)
			text.Reset()
		case xml.CharData:
			if len(stack) > 0 {
				text.Write(t)
			}
		case xml.EndElement:
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if len(n.children) == 0 {
				n.text = text.String()
			}
			text.Reset()
		case xml.ProcInst, xml.Comment, xml.Directive:
			// <?xpacket?> envelope, comments and doctype are not part of
			// the property tree
		}
	}
	if len(stack) != 0 {
		return nil, newParseError(NotWellFormed, "unclosed element")
	}
	return root, nil
}

// mergeDescription folds one rdf:Description into the flat property set.
// Duplicate qualified names across Descriptions resolve last-write-wins.
func (d *Decoder) mergeDescription(desc *rawNode) error {
	for _, a := range desc.attr {
		if isXmlns(a) {
			continue
		}
		if matchSpace(a.Name.Space, NsRDF.URI) {
			if a.Name.Local == "about" {
				d.about = a.Value
			}
			continue
		}
		if matchSpace(a.Name.Space, NsXML.URI) {
			continue
		}
		if a.Name.Space == "" {
			// attribute with no resolvable namespace cannot name a property
			continue
		}
		d.addProperty(NewNode(normalName(a.Name), Simple(a.Value)))
	}

	for _, c := range desc.children {
		n, err := d.parseProperty(c)
		if err != nil {
			return err
		}
		d.addProperty(n)
	}
	return nil
}

func (d *Decoder) addProperty(n *Node) {
	if prev := d.nodes.Find(n.XMLName); prev != nil {
		Log.Warnf("xmp: duplicate property %s, keeping later value", n.FullName())
	}
	d.nodes.Add(n)
}

// normalName maps the bare "xml"/"rdf" prefixes onto their URIs so that
// qualified-name equality works on undeclared-prefix documents too.
func normalName(n xml.Name) xml.Name {
	switch n.Space {
	case "xml":
		n.Space = NsXML.URI
	case "rdf":
		n.Space = NsRDF.URI
	}
	return n
}

func isRdfName(n xml.Name, local string) bool {
	return matchSpace(n.Space, NsRDF.URI) && n.Local == local
}

// parseProperty interprets one property element into a node. The returned
// node carries the element's qualified name; array items pass through
// parseItem which clears it.
func (d *Decoder) parseProperty(raw *rawNode) (*Node, error) {
	n := &Node{XMLName: normalName(raw.name)}

	var parseType, resource string
	for _, a := range raw.attr {
		if isXmlns(a) {
			continue
		}
		name := normalName(a.Name)
		switch {
		case name.Space == NsRDF.URI:
			switch name.Local {
			case "parseType":
				parseType = a.Value
			case "resource":
				resource = a.Value
			case "about", "ID", "nodeID", "datatype":
				// ignored per the XMP subset
			default:
				n.Quals.Set(name, Simple(a.Value))
			}
		case name.Space == NsXML.URI && name.Local == "lang":
			n.SetLang(a.Value)
		case name.Space == "":
			// unresolvable prefix, cannot qualify
		default:
			n.Quals.Set(name, Simple(a.Value))
		}
	}

	if parseType != "" && parseType != "Resource" {
		return nil, newParseError(UnsupportedParseType, parseType)
	}

	switch {
	case parseType == "Resource":
		if err := d.fillResource(n, raw.children); err != nil {
			return nil, err
		}
	case len(raw.children) == 1 && isArrayContainer(raw.children[0]):
		arr, err := d.parseArray(raw.children[0])
		if err != nil {
			return nil, err
		}
		n.Value = arr
	case len(raw.children) == 1 && isRdfName(raw.children[0].name, "Description"):
		inner := raw.children[0]
		for _, a := range inner.attr {
			if isXmlns(a) {
				continue
			}
			name := normalName(a.Name)
			if name.Space == NsRDF.URI || name.Space == NsXML.URI || name.Space == "" {
				continue
			}
			// attribute shorthand fields on an inner Description
			fieldAttr := &rawNode{name: a.Name, text: a.Value}
			inner.children = append([]*rawNode{fieldAttr}, inner.children...)
		}
		if err := d.fillResource(n, inner.children); err != nil {
			return nil, err
		}
	case len(raw.children) > 0:
		if err := d.fillResource(n, raw.children); err != nil {
			return nil, err
		}
	case resource != "":
		n.Value = Simple(resource)
	default:
		n.Value = Simple(raw.text)
	}
	return n, nil
}

func isArrayContainer(n *rawNode) bool {
	if !matchSpace(n.name.Space, NsRDF.URI) {
		return false
	}
	switch n.name.Local {
	case "Bag", "Seq", "Alt":
		return true
	}
	return false
}

// fillResource interprets an implicit or explicit Description body. A
// rdf:value child turns the body into "a value with qualifiers": the value
// comes from rdf:value and the sibling elements become qualifiers.
func (d *Decoder) fillResource(n *Node, children []*rawNode) error {
	var valueNode *Node
	fields := make(NodeList, 0, len(children))
	for _, c := range children {
		f, err := d.parseProperty(c)
		if err != nil {
			return err
		}
		if isRdfName(normalName(c.name), "value") {
			valueNode = f
			continue
		}
		fields.Add(f)
	}
	if valueNode != nil {
		n.Value = valueNode.Value
		for _, q := range valueNode.Quals {
			n.Quals.Set(q.Name, q.Value)
		}
		for _, f := range fields {
			n.Quals.Set(f.XMLName, f.Value)
		}
		return nil
	}
	n.Value = &Struct{Fields: fields}
	return nil
}

func (d *Decoder) parseArray(container *rawNode) (*Array, error) {
	arr := &Array{}
	switch container.name.Local {
	case "Bag":
		arr.Type = ArrayTypeUnordered
	case "Seq":
		arr.Type = ArrayTypeOrdered
	case "Alt":
		arr.Type = ArrayTypeAlternative
	}
	for _, li := range container.children {
		if !isRdfName(normalName(li.name), "li") {
			return nil, newParseError(UnexpectedElement, li.name.Local)
		}
		item, err := d.parseProperty(li)
		if err != nil {
			return nil, err
		}
		item.XMLName = xml.Name{}
		arr.Items = append(arr.Items, item)
	}

	// an Alt whose items all carry xml:lang is a language alternative
	if arr.Type == ArrayTypeAlternative && len(arr.Items) > 0 {
		isAltText := true
		for _, it := range arr.Items {
			if it.Lang() == "" {
				isAltText = false
				break
			}
		}
		if isAltText {
			arr.Type = ArrayTypeAltText
		}
	}
	return arr, nil
}

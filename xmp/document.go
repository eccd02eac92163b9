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
	"encoding/xml"
	"fmt"

	"golang.org/x/text/language"
)

const XMP_TOOLKIT_VERSION = "go-xmpkit 1.0"

// Document is the top-level property set of an XMP packet: an ordered
// QualifiedName -> Node mapping. Multiple rdf:Description elements are
// merged into one Document on read; serialization emits a single
// consolidated Description.
//
// A Document is not internally synchronised; it belongs to one goroutine
// at a time.
type Document struct {
	toolkit string
	about   string
	nodes   NodeList

	// prefixes seen in the packet for otherwise unregistered URIs
	extNsMap map[string]string

	dirty bool
}

func NewDocument() *Document {
	return &Document{
		toolkit:  XMP_TOOLKIT_VERSION,
		extNsMap: make(map[string]string),
	}
}

func (d *Document) About() string     { return d.about }
func (d *Document) SetAbout(s string) { d.about = s; d.dirty = true }
func (d *Document) Toolkit() string   { return d.toolkit }
func (d *Document) SetDirty()         { d.dirty = true }
func (d Document) IsDirty() bool      { return d.dirty }

func (d *Document) Nodes() NodeList {
	return d.nodes
}

func (d *Document) Clone() *Document {
	c := NewDocument()
	c.toolkit = d.toolkit
	c.about = d.about
	for _, n := range d.nodes {
		c.nodes = append(c.nodes, n.Clone())
	}
	for k, v := range d.extNsMap {
		c.extNsMap[k] = v
	}
	return c
}

// Equal reports structural equality of the two property sets.
func (d *Document) Equal(o *Document) bool {
	if len(d.nodes) != len(o.nodes) {
		return false
	}
	for _, n := range d.nodes {
		on := o.nodes.Find(n.XMLName)
		if on == nil || !n.Equal(on) {
			return false
		}
	}
	return true
}

func checkName(nsURI, name string) error {
	if nsURI == "" || name == "" {
		return fmt.Errorf("%w: empty namespace uri or property name", ErrInvalidArgument)
	}
	return nil
}

// GetProperty returns the value of a top-level property. Array and struct
// contents are reached through the array accessors and the returned value
// itself.
func (d *Document) GetProperty(nsURI, name string) (Value, bool) {
	if nsURI == "" || name == "" {
		return nil, false
	}
	n := d.nodes.Find(xml.Name{Space: nsURI, Local: name})
	if n == nil {
		return nil, false
	}
	return n.Value, true
}

// GetNode returns the addressed top-level node itself.
func (d *Document) GetNode(nsURI, name string) *Node {
	return d.nodes.Find(xml.Name{Space: nsURI, Local: name})
}

func (d *Document) HasProperty(nsURI, name string) bool {
	_, ok := d.GetProperty(nsURI, name)
	return ok
}

// SetProperty overwrites any existing node under the qualified name. It
// fails with ErrInvalidArgument for an empty namespace URI or name, and
// when the value is nil or structurally invalid, e.g. an AltText item
// without xml:lang.
func (d *Document) SetProperty(nsURI, name string, v Value) error {
	if err := checkName(nsURI, name); err != nil {
		return err
	}
	if err := validateValue(v); err != nil {
		return err
	}
	d.nodes.Add(NewNode(xml.Name{Space: nsURI, Local: name}, v))
	d.dirty = true
	return nil
}

// DeleteProperty is idempotent.
func (d *Document) DeleteProperty(nsURI, name string) {
	if d.nodes.Delete(xml.Name{Space: nsURI, Local: name}) {
		d.dirty = true
	}
}

// AppendArrayItem appends to the named array, creating an unordered array
// when the property is absent. Appending to an existing non-array property
// fails with ErrTypeMismatch.
func (d *Document) AppendArrayItem(nsURI, name string, v Value) error {
	if err := checkName(nsURI, name); err != nil {
		return err
	}
	if err := validateValue(v); err != nil {
		return err
	}
	qn := xml.Name{Space: nsURI, Local: name}
	n := d.nodes.Find(qn)
	if n == nil {
		n = NewNode(qn, NewArray(ArrayTypeUnordered))
		d.nodes.Add(n)
	}
	arr, ok := n.Value.(*Array)
	if !ok {
		return fmt.Errorf("%w: %s is not an array", ErrTypeMismatch, n.FullName())
	}
	arr.Append(&Node{Value: v})
	d.dirty = true
	return nil
}

// GetArrayItem addresses an array item with the 1-based XMP convention.
func (d *Document) GetArrayItem(nsURI, name string, index int) (Value, error) {
	if err := checkName(nsURI, name); err != nil {
		return nil, err
	}
	n := d.nodes.Find(xml.Name{Space: nsURI, Local: name})
	if n == nil {
		return nil, ErrNotFound
	}
	arr, ok := n.Value.(*Array)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not an array", ErrTypeMismatch, n.FullName())
	}
	if index < 1 || index > arr.Len() {
		return nil, fmt.Errorf("%w: %d of %d", ErrIndexOut, index, arr.Len())
	}
	return arr.Get(index - 1).Value, nil
}

// ArrayLen returns 0 for absent properties.
func (d *Document) ArrayLen(nsURI, name string) int {
	n := d.nodes.Find(xml.Name{Space: nsURI, Local: name})
	if n == nil {
		return 0
	}
	if arr, ok := n.Value.(*Array); ok {
		return arr.Len()
	}
	return 0
}

// SetLocalizedText creates or updates an AltText array item for lang.
// The "x-default" language marks the fallback item, kept first.
func (d *Document) SetLocalizedText(nsURI, name, lang, value string) error {
	if err := checkName(nsURI, name); err != nil {
		return err
	}
	if lang == "" {
		return fmt.Errorf("%w: empty language", ErrInvalidArgument)
	}
	qn := xml.Name{Space: nsURI, Local: name}
	n := d.nodes.Find(qn)
	if n == nil {
		n = NewNode(qn, &Array{Type: ArrayTypeAltText})
		d.nodes.Add(n)
	}
	arr, ok := n.Value.(*Array)
	if !ok || (arr.Type != ArrayTypeAltText && arr.Type != ArrayTypeAlternative) {
		return fmt.Errorf("%w: %s is not a language alternative", ErrTypeMismatch, n.FullName())
	}
	arr.Type = ArrayTypeAltText
	for _, it := range arr.Items {
		if it.Lang() == lang {
			it.Value = Simple(value)
			d.dirty = true
			return nil
		}
	}
	item := &Node{Value: Simple(value)}
	item.SetLang(lang)
	if lang == "x-default" {
		arr.Insert(0, item)
	} else {
		arr.Append(item)
	}
	d.dirty = true
	return nil
}

// GetLocalizedText returns the best match for lang: exact language, then
// same BCP-47 primary subtag, then the x-default item, else absent.
func (d *Document) GetLocalizedText(nsURI, name, lang string) (string, bool) {
	n := d.nodes.Find(xml.Name{Space: nsURI, Local: name})
	if n == nil {
		return "", false
	}
	arr, ok := n.Value.(*Array)
	if !ok {
		return "", false
	}
	var deflt *Node
	for _, it := range arr.Items {
		if it.Lang() == lang {
			if s, ok := it.Value.(Simple); ok {
				return string(s), true
			}
		}
		if it.Lang() == "x-default" && deflt == nil {
			deflt = it
		}
	}
	if want, err := language.Parse(lang); err == nil {
		wantBase, _ := want.Base()
		for _, it := range arr.Items {
			il := it.Lang()
			if il == "" || il == "x-default" {
				continue
			}
			tag, err := language.Parse(il)
			if err != nil {
				continue
			}
			base, _ := tag.Base()
			if base == wantBase {
				if s, ok := it.Value.(Simple); ok {
					return string(s), true
				}
			}
		}
	}
	if deflt != nil {
		if s, ok := deflt.Value.(Simple); ok {
			return string(s), true
		}
	}
	return "", false
}

// SetQualifier attaches a qualifier to the addressed top-level node.
func (d *Document) SetQualifier(nsURI, name, qURI, qName string, v Value) error {
	if err := checkName(nsURI, name); err != nil {
		return err
	}
	if err := checkName(qURI, qName); err != nil {
		return err
	}
	if err := validateValue(v); err != nil {
		return err
	}
	n := d.nodes.Find(xml.Name{Space: nsURI, Local: name})
	if n == nil {
		return ErrNotFound
	}
	n.Quals.Set(xml.Name{Space: qURI, Local: qName}, v)
	d.dirty = true
	return nil
}

func (d *Document) GetQualifier(nsURI, name, qURI, qName string) (Value, bool) {
	n := d.nodes.Find(xml.Name{Space: nsURI, Local: name})
	if n == nil {
		return nil, false
	}
	return n.Quals.Get(xml.Name{Space: qURI, Local: qName})
}

// Parse decodes an XMP packet (with or without the xpacket envelope) into
// a fresh document.
func Parse(data []byte) (*Document, error) {
	d := NewDocument()
	if err := Unmarshal(data, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Serialize emits the x:xmpmeta form without the xpacket envelope.
func (d *Document) Serialize() ([]byte, error) {
	return Marshal(d)
}

// SerializePacket emits the full xpacket envelope, padded per opts.
func (d *Document) SerializePacket(opts PacketOptions) ([]byte, error) {
	return MarshalPacket(d, opts)
}

// addExtNs remembers an in-document prefix for an unregistered URI so the
// serializer can keep using it.
func (d *Document) addExtNs(uri, prefix string) {
	if d.extNsMap == nil {
		d.extNsMap = make(map[string]string)
	}
	if _, ok := d.extNsMap[uri]; !ok {
		d.extNsMap[uri] = prefix
	}
}

func (d *Document) extPrefix(uri string) string {
	return d.extNsMap[uri]
}

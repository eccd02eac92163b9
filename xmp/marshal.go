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
	"fmt"
	"sort"
	"strings"

	"golang.org/x/exp/maps"
)

var (
	xmpPacketHeader   = []byte("<?xpacket begin=\"\uFEFF\" id=\"W5M0MpCehiHzreSzNTczkc9d\"?>\n")
	xmpPacketFooterW  = []byte(`<?xpacket end="w"?>`)
	xmpPacketFooterR  = []byte(`<?xpacket end="r"?>`)
	defaultPacketSize = 2048
)

// PacketOptions controls the xpacket envelope emitted by MarshalPacket.
type PacketOptions struct {
	// MinSize pads the packet with trailing whitespace up to this many
	// bytes, rounded up to a 4-byte boundary. Zero selects the 2 KiB
	// default. Ignored for read-only packets.
	MinSize int

	// ReadOnly emits end="r" and no padding.
	ReadOnly bool
}

// Encoder emits the canonical RDF/XML serialization. The emitter is
// hand-written: encoding/xml cannot produce rdf:parseType shorthand,
// selective attribute escaping or the xpacket envelope.
//
// Output is byte-deterministic for the same tree and registry state.
type Encoder struct {
	buf      bytes.Buffer
	doc      *Document
	prefixes map[string]string // uri -> prefix for this serialization
	synth    int
}

func Marshal(d *Document) ([]byte, error) {
	e := &Encoder{doc: d}
	if err := e.Encode(d); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

func MarshalPacket(d *Document, opts PacketOptions) ([]byte, error) {
	body, err := Marshal(d)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Write(xmpPacketHeader)
	buf.Write(body)
	buf.WriteByte('\n')

	if opts.ReadOnly {
		buf.Write(xmpPacketFooterR)
		return buf.Bytes(), nil
	}

	minSize := opts.MinSize
	if minSize <= 0 {
		minSize = defaultPacketSize
	}
	target := buf.Len() + len(xmpPacketFooterW)
	if target < minSize {
		target = minSize
	}
	target = (target + 3) &^ 3
	pad := target - buf.Len() - len(xmpPacketFooterW)
	for i := 0; i < pad; i++ {
		if i%80 == 0 {
			buf.WriteByte('\n')
		} else {
			buf.WriteByte(' ')
		}
	}
	buf.Write(xmpPacketFooterW)
	return buf.Bytes(), nil
}

func (e *Encoder) Bytes() []byte {
	return e.buf.Bytes()
}

func (e *Encoder) Encode(d *Document) error {
	if d == nil {
		return nil
	}
	e.buf.Reset()
	e.assignPrefixes(d)

	tk := d.toolkit
	if tk == "" {
		tk = XMP_TOOLKIT_VERSION
	}
	fmt.Fprintf(&e.buf, "<x:xmpmeta xmlns:x=%q x:xmptk=\"%s\">\n", NsX.URI, escapeAttr(tk))
	fmt.Fprintf(&e.buf, " <rdf:RDF xmlns:rdf=%q>\n", NsRDF.URI)

	e.buf.WriteString("  <rdf:Description rdf:about=\"")
	e.buf.WriteString(escapeAttr(d.about))
	e.buf.WriteString("\"")

	// xmlns declarations for every URI used in the tree, sorted by prefix
	uris := maps.Keys(e.prefixes)
	sort.Slice(uris, func(i, j int) bool {
		return e.prefixes[uris[i]] < e.prefixes[uris[j]]
	})
	for _, uri := range uris {
		fmt.Fprintf(&e.buf, " xmlns:%s=\"%s\"", e.prefixes[uri], escapeAttr(uri))
	}
	e.buf.WriteString(">\n")

	for _, n := range d.nodes {
		if err := e.encodeNode(n, e.name(n.XMLName), 3); err != nil {
			return err
		}
	}

	e.buf.WriteString("  </rdf:Description>\n")
	e.buf.WriteString(" </rdf:RDF>\n")
	e.buf.WriteString("</x:xmpmeta>")
	return nil
}

// assignPrefixes resolves every URI in the tree to a prefix: the registry
// binding first, then the prefix the packet itself declared, then a
// synthetic ns1, ns2, ... assigned in document order for the life of this
// serialization.
func (e *Encoder) assignPrefixes(d *Document) {
	e.prefixes = make(map[string]string)
	e.synth = 0
	for _, n := range d.nodes {
		e.collectNode(n)
	}
}

func (e *Encoder) collectNode(n *Node) {
	if n == nil {
		return
	}
	e.collectURI(n.XMLName.Space)
	for _, q := range n.Quals {
		if q.Name != xmlLang {
			e.collectURI(q.Name.Space)
		}
		e.collectValue(q.Value)
	}
	e.collectValue(n.Value)
}

func (e *Encoder) collectValue(v Value) {
	switch val := v.(type) {
	case *Array:
		for _, it := range val.Items {
			e.collectNode(it)
		}
	case *Struct:
		for _, f := range val.Fields {
			e.collectNode(f)
		}
	}
}

func (e *Encoder) collectURI(uri string) {
	if uri == "" || uri == NsRDF.URI || uri == NsXML.URI {
		return
	}
	if _, ok := e.prefixes[uri]; ok {
		return
	}
	if pre, ok := NsRegistry.PrefixOfURI(uri); ok {
		e.prefixes[uri] = pre
		return
	}
	if e.doc != nil {
		if pre := e.doc.extPrefix(uri); pre != "" && !e.prefixTaken(pre) {
			e.prefixes[uri] = pre
			return
		}
	}
	for {
		e.synth++
		pre := fmt.Sprintf("ns%d", e.synth)
		if !e.prefixTaken(pre) {
			e.prefixes[uri] = pre
			return
		}
	}
}

func (e *Encoder) prefixTaken(pre string) bool {
	if _, ok := NsRegistry.URIOfPrefix(pre); ok {
		return true
	}
	for _, p := range e.prefixes {
		if p == pre {
			return true
		}
	}
	return false
}

func (e *Encoder) name(n xml.Name) string {
	switch n.Space {
	case NsRDF.URI:
		return "rdf:" + n.Local
	case NsXML.URI:
		return "xml:" + n.Local
	}
	if pre, ok := e.prefixes[n.Space]; ok {
		return pre + ":" + n.Local
	}
	return n.Local
}

const indentStep = " "

func (e *Encoder) indent(level int) {
	e.buf.WriteString(strings.Repeat(indentStep, level))
}

// encodeNode writes one property, struct field or array item element.
// A node carrying qualifiers other than xml:lang is emitted in the
// rdf:value form; structs use parseType="Resource" otherwise.
func (e *Encoder) encodeNode(n *Node, name string, level int) error {
	lang := n.Lang()
	var quals QualifierList
	for _, q := range n.Quals {
		if q.Name != xmlLang {
			quals = append(quals, q)
		}
	}

	attrs := ""
	if lang != "" {
		attrs = fmt.Sprintf(" xml:lang=\"%s\"", escapeAttr(lang))
	}

	if len(quals) > 0 {
		e.indent(level)
		fmt.Fprintf(&e.buf, "<%s%s rdf:parseType=\"Resource\">\n", name, attrs)
		if err := e.encodeNode(&Node{Value: n.Value}, "rdf:value", level+1); err != nil {
			return err
		}
		for _, q := range quals {
			if err := e.encodeNode(&Node{Value: q.Value}, e.name(q.Name), level+1); err != nil {
				return err
			}
		}
		e.indent(level)
		fmt.Fprintf(&e.buf, "</%s>\n", name)
		return nil
	}

	switch v := n.Value.(type) {
	case nil:
		e.indent(level)
		fmt.Fprintf(&e.buf, "<%s%s/>\n", name, attrs)
	case Simple:
		e.indent(level)
		if v == "" {
			fmt.Fprintf(&e.buf, "<%s%s/>\n", name, attrs)
		} else {
			fmt.Fprintf(&e.buf, "<%s%s>%s</%s>\n", name, attrs, escapeText(string(v)), name)
		}
	case *Array:
		e.indent(level)
		fmt.Fprintf(&e.buf, "<%s%s>\n", name, attrs)
		e.indent(level + 1)
		fmt.Fprintf(&e.buf, "<rdf:%s>\n", v.Type.RDFName())
		for _, it := range orderedItems(v) {
			if err := e.encodeNode(it, "rdf:li", level+2); err != nil {
				return err
			}
		}
		e.indent(level + 1)
		fmt.Fprintf(&e.buf, "</rdf:%s>\n", v.Type.RDFName())
		e.indent(level)
		fmt.Fprintf(&e.buf, "</%s>\n", name)
	case *Struct:
		e.indent(level)
		if len(v.Fields) == 0 {
			fmt.Fprintf(&e.buf, "<%s%s rdf:parseType=\"Resource\"/>\n", name, attrs)
			return nil
		}
		fmt.Fprintf(&e.buf, "<%s%s rdf:parseType=\"Resource\">\n", name, attrs)
		for _, f := range v.Fields {
			if err := e.encodeNode(f, e.name(f.XMLName), level+1); err != nil {
				return err
			}
		}
		e.indent(level)
		fmt.Fprintf(&e.buf, "</%s>\n", name)
	default:
		return fmt.Errorf("xmp: no method for marshalling value %T", n.Value)
	}
	return nil
}

// orderedItems moves the x-default item of a language alternative to the
// front without touching the source tree.
func orderedItems(a *Array) []*Node {
	if a.Type != ArrayTypeAltText && a.Type != ArrayTypeAlternative {
		return a.Items
	}
	idx := -1
	for i, it := range a.Items {
		if it.Lang() == "x-default" {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return a.Items
	}
	l := make([]*Node, 0, len(a.Items))
	l = append(l, a.Items[idx])
	for i, it := range a.Items {
		if i != idx {
			l = append(l, it)
		}
	}
	return l
}

func escapeText(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '\r':
			b.WriteString("&#xD;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func escapeAttr(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		case '\r':
			b.WriteString("&#xD;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

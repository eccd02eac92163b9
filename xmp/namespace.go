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
	"strings"
)

// Namespace binds an XML namespace URI to its standard prefix. Equality of
// qualified names is always by URI; the prefix is a presentation detail
// resolved through the registry at serialization time.
type Namespace struct {
	Name string // prefix
	URI  string
}

func NewNamespace(name, uri string) *Namespace {
	return &Namespace{Name: name, URI: uri}
}

func (n Namespace) GetName() string {
	return n.Name
}

func (n Namespace) GetURI() string {
	return n.URI
}

// XMLName builds a URI-qualified name for a local property name in this
// namespace.
func (n Namespace) XMLName(local string) xml.Name {
	return xml.Name{Space: n.URI, Local: local}
}

func (n Namespace) Expand(local string) string {
	if local == "" {
		return n.Name
	}
	return n.Name + ":" + local
}

type NamespaceList []*Namespace

func (l NamespaceList) ContainsURI(uri string) bool {
	for _, v := range l {
		if v.URI == uri {
			return true
		}
	}
	return false
}

// Well-known namespaces. The set is the union of the XMP standard
// namespaces and the model namespaces the toolkit ships descriptors for.
var (
	NsX         = NewNamespace("x", "adobe:ns:meta/")
	NsRDF       = NewNamespace("rdf", "http://www.w3.org/1999/02/22-rdf-syntax-ns#")
	NsXML       = NewNamespace("xml", "http://www.w3.org/XML/1998/namespace")
	NsXmp       = NewNamespace("xmp", "http://ns.adobe.com/xap/1.0/")
	NsDc        = NewNamespace("dc", "http://purl.org/dc/elements/1.1/")
	NsExif      = NewNamespace("exif", "http://ns.adobe.com/exif/1.0/")
	NsTiff      = NewNamespace("tiff", "http://ns.adobe.com/tiff/1.0/")
	NsPhotoshop = NewNamespace("photoshop", "http://ns.adobe.com/photoshop/1.0/")
	NsXmpMM     = NewNamespace("xmpMM", "http://ns.adobe.com/xap/1.0/mm/")
	NsXmpRights = NewNamespace("xmpRights", "http://ns.adobe.com/xap/1.0/rights/")
	NsXmpDM     = NewNamespace("xmpDM", "http://ns.adobe.com/xmp/1.0/DynamicMedia/")
	NsXmpBJ     = NewNamespace("xmpBJ", "http://ns.adobe.com/xap/1.0/bj/")
	NsXmpTPg    = NewNamespace("xmpTPg", "http://ns.adobe.com/xap/1.0/t/pg/")
	NsPdf       = NewNamespace("pdf", "http://ns.adobe.com/pdf/1.3/")
	NsCrs       = NewNamespace("crs", "http://ns.adobe.com/camera-raw-settings/1.0/")
	NsStEvt     = NewNamespace("stEvt", "http://ns.adobe.com/xap/1.0/sType/ResourceEvent#")
	NsStRef     = NewNamespace("stRef", "http://ns.adobe.com/xap/1.0/sType/ResourceRef#")
)

var builtinNamespaces = NamespaceList{
	NsX, NsRDF, NsXML, NsXmp, NsDc, NsExif, NsTiff, NsPhotoshop,
	NsXmpMM, NsXmpRights, NsXmpDM, NsXmpBJ, NsXmpTPg, NsPdf, NsCrs,
	NsStEvt, NsStRef,
}

func stripPrefix(n string) string {
	if i := strings.Index(n, ":"); i > -1 {
		return n[i+1:]
	}
	return n
}

func getPrefix(n string) string {
	if i := strings.Index(n, ":"); i > -1 {
		return n[:i]
	}
	return ""
}

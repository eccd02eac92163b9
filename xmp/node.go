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
)

// Value is the variant payload of a node: Simple, *Array or *Struct.
// The XMP grammar fixes the variants, so the set is closed and consumers
// dispatch with a type switch.
type Value interface {
	isValue()
	cloneValue() Value
}

// Simple is a leaf scalar. The lexical form is preserved verbatim,
// including leading and trailing whitespace.
type Simple string

func (Simple) isValue() {}

func (s Simple) cloneValue() Value { return s }

func (s Simple) String() string { return string(s) }

type ArrayType string

const (
	ArrayTypeOrdered     ArrayType = "Seq"
	ArrayTypeUnordered   ArrayType = "Bag"
	ArrayTypeAlternative ArrayType = "Alt"
	ArrayTypeAltText     ArrayType = "AltText"
)

// RDFName is the rdf container element name for the array type. AltText is
// an Alt whose items all carry xml:lang.
func (t ArrayType) RDFName() string {
	if t == ArrayTypeAltText {
		return string(ArrayTypeAlternative)
	}
	return string(t)
}

// Array holds rdf:Bag, rdf:Seq or rdf:Alt items. Items never carry a name
// of their own (they serialize as rdf:li) but retain their qualifiers.
// Indexes at this layer are 0-based; the document facade exposes the
// 1-based XMP convention.
type Array struct {
	Type  ArrayType
	Items []*Node
}

func (*Array) isValue() {}

func (a *Array) cloneValue() Value {
	c := &Array{Type: a.Type, Items: make([]*Node, len(a.Items))}
	for i, n := range a.Items {
		c.Items[i] = n.Clone()
	}
	return c
}

func NewArray(typ ArrayType, values ...Value) *Array {
	a := &Array{Type: typ}
	for _, v := range values {
		a.Items = append(a.Items, &Node{Value: v})
	}
	return a
}

func (a *Array) Len() int {
	return len(a.Items)
}

func (a *Array) Get(i int) *Node {
	if i < 0 || i >= len(a.Items) {
		return nil
	}
	return a.Items[i]
}

func (a *Array) Append(n *Node) {
	a.Items = append(a.Items, n)
}

func (a *Array) Insert(i int, n *Node) {
	if i < 0 {
		i = 0
	}
	if i >= len(a.Items) {
		a.Items = append(a.Items, n)
		return
	}
	a.Items = append(a.Items[:i], append([]*Node{n}, a.Items[i:]...)...)
}

func (a *Array) Remove(i int) {
	if i < 0 || i >= len(a.Items) {
		return
	}
	a.Items = append(a.Items[:i], a.Items[i+1:]...)
}

// Struct is an insertion-ordered field set with unique qualified names.
type Struct struct {
	Fields []*Node
}

func (*Struct) isValue() {}

func (s *Struct) cloneValue() Value {
	c := &Struct{Fields: make([]*Node, len(s.Fields))}
	for i, n := range s.Fields {
		c.Fields[i] = n.Clone()
	}
	return c
}

func NewStruct() *Struct {
	return &Struct{}
}

func (s *Struct) Field(name xml.Name) *Node {
	for _, f := range s.Fields {
		if f.XMLName == name {
			return f
		}
	}
	return nil
}

// SetField keeps field names unique, overwriting in place when the name is
// already present.
func (s *Struct) SetField(n *Node) {
	for i, f := range s.Fields {
		if f.XMLName == n.XMLName {
			s.Fields[i] = n
			return
		}
	}
	s.Fields = append(s.Fields, n)
}

// Qualifier attaches a secondary value to a node. xml:lang on an Alt item
// marks the AltText language key.
type Qualifier struct {
	Name  xml.Name
	Value Value
}

// QualifierList is insertion-ordered and lazily allocated; most nodes have
// none.
type QualifierList []Qualifier

func (l QualifierList) Get(name xml.Name) (Value, bool) {
	for _, q := range l {
		if q.Name == name {
			return q.Value, true
		}
	}
	return nil, false
}

func (l *QualifierList) Set(name xml.Name, v Value) {
	for i, q := range *l {
		if q.Name == name {
			(*l)[i].Value = v
			return
		}
	}
	*l = append(*l, Qualifier{Name: name, Value: v})
}

func (l *QualifierList) Remove(name xml.Name) {
	for i, q := range *l {
		if q.Name == name {
			*l = append((*l)[:i], (*l)[i+1:]...)
			return
		}
	}
}

func (l QualifierList) clone() QualifierList {
	if len(l) == 0 {
		return nil
	}
	c := make(QualifierList, len(l))
	for i, q := range l {
		c[i] = Qualifier{Name: q.Name, Value: q.Value.cloneValue()}
	}
	return c
}

var xmlLang = xml.Name{Space: NsXML.URI, Local: "lang"}

// Node is one property, struct field or array item: a value plus its
// qualifiers. Array items keep a zero XMLName.
type Node struct {
	XMLName xml.Name
	Value   Value
	Quals   QualifierList
}

func NewNode(name xml.Name, v Value) *Node {
	return &Node{XMLName: name, Value: v}
}

func (n *Node) Name() string {
	return n.XMLName.Local
}

func (n *Node) FullName() string {
	if n.XMLName.Space != "" {
		return NsRegistry.Short(n.XMLName.Space, n.XMLName.Local)
	}
	return n.XMLName.Local
}

// Lang returns the xml:lang qualifier value, if any.
func (n *Node) Lang() string {
	if v, ok := n.Quals.Get(xmlLang); ok {
		if s, ok := v.(Simple); ok {
			return string(s)
		}
	}
	return ""
}

func (n *Node) SetLang(lang string) {
	n.Quals.Set(xmlLang, Simple(lang))
}

func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := &Node{XMLName: n.XMLName, Quals: n.Quals.clone()}
	if n.Value != nil {
		c.Value = n.Value.cloneValue()
	}
	return c
}

func (n *Node) IsZero() bool {
	if n == nil {
		return true
	}
	if len(n.Quals) > 0 {
		return false
	}
	switch v := n.Value.(type) {
	case nil:
		return true
	case Simple:
		return v == ""
	case *Array:
		return len(v.Items) == 0
	case *Struct:
		return len(v.Fields) == 0
	}
	return false
}

// Equal reports structural equality: same names, variants, item order and
// qualifier sets. Serialization whitespace does not participate.
func (n *Node) Equal(o *Node) bool {
	if n == nil || o == nil {
		return n == o
	}
	if n.XMLName != o.XMLName {
		return false
	}
	if !qualsEqual(n.Quals, o.Quals) {
		return false
	}
	return valueEqual(n.Value, o.Value)
}

func qualsEqual(a, b QualifierList) bool {
	if len(a) != len(b) {
		return false
	}
	for _, q := range a {
		v, ok := b.Get(q.Name)
		if !ok || !valueEqual(q.Value, v) {
			return false
		}
	}
	return true
}

func valueEqual(a, b Value) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case Simple:
		bv, ok := b.(Simple)
		return ok && av == bv
	case *Array:
		bv, ok := b.(*Array)
		if !ok || av.Type != bv.Type || len(av.Items) != len(bv.Items) {
			return false
		}
		for i := range av.Items {
			if !av.Items[i].Equal(bv.Items[i]) {
				return false
			}
		}
		return true
	case *Struct:
		bv, ok := b.(*Struct)
		if !ok || len(av.Fields) != len(bv.Fields) {
			return false
		}
		for _, f := range av.Fields {
			of := bv.Field(f.XMLName)
			if of == nil || !f.Equal(of) {
				return false
			}
		}
		return true
	}
	return false
}

// NodeList keeps top-level properties and struct fields unique by
// qualified name, in insertion order.
type NodeList []*Node

func (x NodeList) Find(name xml.Name) *Node {
	for _, n := range x {
		if n.XMLName == name {
			return n
		}
	}
	return nil
}

func (x *NodeList) Add(n *Node) {
	for i, v := range *x {
		if v.XMLName == n.XMLName {
			(*x)[i] = n
			return
		}
	}
	*x = append(*x, n)
}

func (x *NodeList) Delete(name xml.Name) bool {
	for i, v := range *x {
		if v.XMLName == name {
			*x = append((*x)[:i], (*x)[i+1:]...)
			return true
		}
	}
	return false
}

// validateValue enforces the structural invariants the facade promises:
// AltText items all carry xml:lang with at most one x-default, struct field
// names are unique and URI-qualified, nested nodes carry values.
func validateValue(v Value) error {
	switch val := v.(type) {
	case nil:
		return fmt.Errorf("%w: nil value", ErrInvalidArgument)
	case Simple:
		return nil
	case *Array:
		switch val.Type {
		case ArrayTypeOrdered, ArrayTypeUnordered, ArrayTypeAlternative, ArrayTypeAltText:
		default:
			return fmt.Errorf("%w: unknown array type %q", ErrInvalidArgument, val.Type)
		}
		defaults := 0
		for _, it := range val.Items {
			if it == nil {
				return fmt.Errorf("%w: nil array item", ErrInvalidArgument)
			}
			if val.Type == ArrayTypeAltText {
				lang := it.Lang()
				if lang == "" {
					return fmt.Errorf("%w: alt-text item missing xml:lang", ErrTypeMismatch)
				}
				if lang == "x-default" {
					defaults++
				}
			}
			if err := validateValue(it.Value); err != nil {
				return err
			}
		}
		if defaults > 1 {
			return fmt.Errorf("%w: multiple x-default items", ErrTypeMismatch)
		}
		return nil
	case *Struct:
		seen := make(map[xml.Name]bool, len(val.Fields))
		for _, f := range val.Fields {
			if f == nil {
				return fmt.Errorf("%w: nil struct field", ErrInvalidArgument)
			}
			if f.XMLName.Space == "" || f.XMLName.Local == "" {
				return fmt.Errorf("%w: struct field without qualified name", ErrInvalidArgument)
			}
			if seen[f.XMLName] {
				return fmt.Errorf("%w: duplicate struct field %s", ErrInvalidArgument, f.FullName())
			}
			seen[f.XMLName] = true
			if err := validateValue(f.Value); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("%w: unknown value variant %T", ErrInvalidArgument, v)
}

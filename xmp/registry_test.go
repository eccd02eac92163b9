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
	"errors"
	"testing"
)

func TestRegisterIdempotent(T *testing.T) {
	if err := Register("http://test.example.com/a/", "testa"); err != nil {
		T.Fatalf("first registration failed: %v", err)
	}
	if err := Register("http://test.example.com/a/", "testa"); err != nil {
		T.Fatalf("exact-pair re-registration failed: %v", err)
	}
}

func TestRegisterConflict(T *testing.T) {
	if err := Register("http://test.example.com/b/", "testb"); err != nil {
		T.Fatalf("registration failed: %v", err)
	}
	// same prefix, different uri
	err := Register("http://test.example.com/other/", "testb")
	if !errors.Is(err, ErrNamespaceConflict) {
		T.Errorf("expected ErrNamespaceConflict, got %v", err)
	}
	// same uri, different prefix
	err = Register("http://test.example.com/b/", "testb2")
	if !errors.Is(err, ErrNamespaceConflict) {
		T.Errorf("expected ErrNamespaceConflict, got %v", err)
	}
	// state unchanged
	if uri, _ := NsRegistry.URIOfPrefix("testb"); uri != "http://test.example.com/b/" {
		T.Errorf("registry state changed after rejected registration: %q", uri)
	}
	if _, ok := NsRegistry.URIOfPrefix("testb2"); ok {
		T.Error("rejected prefix was registered")
	}
}

func TestRegisterEmpty(T *testing.T) {
	if err := Register("", "p"); !errors.Is(err, ErrInvalidArgument) {
		T.Errorf("expected ErrInvalidArgument for empty uri, got %v", err)
	}
	if err := Register("http://test.example.com/c/", ""); !errors.Is(err, ErrInvalidArgument) {
		T.Errorf("expected ErrInvalidArgument for empty prefix, got %v", err)
	}
}

func TestBuiltins(T *testing.T) {
	for _, ns := range builtinNamespaces {
		if !NsRegistry.IsRegistered(ns.URI) {
			T.Errorf("builtin %s not seeded", ns.URI)
		}
		if pre, _ := NsRegistry.PrefixOfURI(ns.URI); pre != ns.Name {
			T.Errorf("builtin %s has prefix %q, want %q", ns.URI, pre, ns.Name)
		}
	}
	found := false
	for _, uri := range NsRegistry.BuiltinURIs() {
		if uri == NsDc.URI {
			found = true
		}
	}
	if !found {
		T.Error("dc missing from BuiltinURIs")
	}
	if p := NsRegistry.GetPrefix(NsXmp.URI); p != "xmp" {
		T.Errorf("GetPrefix(xmp) = %q", p)
	}
	if s := NsRegistry.Short(NsDc.URI, "title"); s != "dc:title" {
		T.Errorf("Short = %q", s)
	}
}

func TestLookups(T *testing.T) {
	if uri, ok := NsRegistry.URIOfPrefix("dc"); !ok || uri != NsDc.URI {
		T.Errorf("URIOfPrefix(dc) = %q, %v", uri, ok)
	}
	if _, ok := NsRegistry.URIOfPrefix("no-such-prefix"); ok {
		T.Error("unknown prefix resolved")
	}
	all := NsRegistry.All()
	if all[NsDc.URI] != "dc" {
		T.Errorf("All() missing dc: %v", all[NsDc.URI])
	}
	// mutation of the copy must not affect the registry
	all[NsDc.URI] = "broken"
	if p := NsRegistry.GetPrefix(NsDc.URI); p != "dc" {
		T.Errorf("All() returned shared state, dc now %q", p)
	}
}

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
	"errors"
	"testing"
)

func wrapInGarbage(packet []byte) []byte {
	var b bytes.Buffer
	b.Write([]byte{0x00, 0xFF, 0x13, 0x37})
	b.Write(bytes.Repeat([]byte{0xAB}, 300))
	b.Write(packet)
	b.Write(bytes.Repeat([]byte{0xCD}, 150))
	return b.Bytes()
}

func TestFindPacket(T *testing.T) {
	blob := wrapInGarbage([]byte(minimalPacket))
	start, end, ok := FindPacket(blob)
	if !ok {
		T.Fatal("packet not found")
	}
	got := blob[start:end]
	if !bytes.Equal(got, []byte(minimalPacket)) {
		T.Errorf("span mismatch:\n%q", got)
	}
	if _, _, ok := FindPacket([]byte("no packets here")); ok {
		T.Error("found packet in garbage")
	}
}

func TestScanPackets(T *testing.T) {
	var blob bytes.Buffer
	blob.Write(wrapInGarbage([]byte(minimalPacket)))
	blob.Write(wrapInGarbage([]byte(minimalPacket)))

	pp, err := ScanPackets(bytes.NewReader(blob.Bytes()))
	if err != nil {
		T.Fatalf("scan: %v", err)
	}
	if len(pp) != 2 {
		T.Fatalf("found %d packets, want 2", len(pp))
	}
	for _, p := range pp {
		if !bytes.Equal(p, []byte(minimalPacket)) {
			T.Errorf("packet bytes differ:\n%q", p)
		}
	}
}

func TestScanNoPacket(T *testing.T) {
	_, err := ScanPackets(bytes.NewReader(bytes.Repeat([]byte{0x42}, 4096)))
	if !errors.Is(err, ErrNoXmp) {
		T.Errorf("got %v, want ErrNoXmp", err)
	}
}

func TestScanParses(T *testing.T) {
	d, err := Scan(bytes.NewReader(wrapInGarbage([]byte(minimalPacket))))
	if err != nil {
		T.Fatalf("scan: %v", err)
	}
	if v, _ := d.GetProperty(NsXmp.URI, "CreatorTool"); v.(Simple) != "MyApp" {
		T.Errorf("CreatorTool = %v", v)
	}
}

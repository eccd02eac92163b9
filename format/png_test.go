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

package format

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"testing"
)

func makeTestPng() []byte {
	var b bytes.Buffer
	b.Write(pngMagic)
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], 1) // width
	binary.BigEndian.PutUint32(ihdr[4:8], 1) // height
	ihdr[8] = 8                              // bit depth
	appendChunk(&b, "IHDR", ihdr)
	appendChunk(&b, "IDAT", []byte{0x78, 0x9C, 0x62, 0x00, 0x00})
	appendChunk(&b, "IEND", nil)
	return b.Bytes()
}

func TestPngInsertBeforeIdat(T *testing.T) {
	h := ForName("png")
	out, err := h.WriteXMP(makeTestPng(), testPacket)
	if err != nil {
		T.Fatalf("write: %v", err)
	}
	chunks, err := parsePng(out)
	if err != nil {
		T.Fatalf("parse: %v", err)
	}
	order := make([]string, len(chunks))
	for i, c := range chunks {
		order[i] = c.typ
	}
	want := []string{"IHDR", "iTXt", "IDAT", "IEND"}
	for i := range want {
		if order[i] != want[i] {
			T.Fatalf("chunk order = %v, want %v", order, want)
		}
	}
	got, err := h.ReadXMP(out)
	if err != nil || !bytes.Equal(got, testPacket) {
		T.Errorf("read back: %v", err)
	}
}

func TestPngChunkCrc(T *testing.T) {
	out, err := ForName("png").WriteXMP(makeTestPng(), testPacket)
	if err != nil {
		T.Fatal(err)
	}
	// locate the raw iTXt chunk and verify its CRC over type+data
	pos := len(pngMagic)
	for pos < len(out) {
		length := int(binary.BigEndian.Uint32(out[pos : pos+4]))
		typ := string(out[pos+4 : pos+8])
		if typ == "iTXt" {
			crc := crc32.NewIEEE()
			crc.Write(out[pos+4 : pos+8+length])
			stored := binary.BigEndian.Uint32(out[pos+8+length : pos+12+length])
			if crc.Sum32() != stored {
				T.Fatalf("iTXt crc = %08x, stored %08x", crc.Sum32(), stored)
			}
			return
		}
		pos += 12 + length
	}
	T.Fatal("no iTXt chunk found")
}

func TestPngItxtLayout(T *testing.T) {
	data := buildITXt(testPacket)
	want := append([]byte("XMP:com.adobe.xmp"), 0, 0, 0, 0, 0)
	if !bytes.HasPrefix(data, want) {
		T.Errorf("iTXt header = % x", data[:24])
	}
	p, ok := xmpFromITXt(data)
	if !ok || !bytes.Equal(p, testPacket) {
		T.Error("iTXt round trip failed")
	}
}

func TestPngMalformed(T *testing.T) {
	h := ForName("png")
	if _, err := h.ReadXMP(append(clone(pngMagic), 0x00, 0x00)); err == nil {
		T.Error("truncated chunk accepted")
	}
	// no IDAT: header + IEND only
	var b bytes.Buffer
	b.Write(pngMagic)
	appendChunk(&b, "IEND", nil)
	if _, err := h.WriteXMP(b.Bytes(), testPacket); err == nil {
		T.Error("write without IDAT accepted")
	}
}

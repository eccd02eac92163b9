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
	"testing"
)

func box(typ string, payload []byte) []byte {
	b := make([]byte, 0, 8+len(payload))
	var size [4]byte
	binary.BigEndian.PutUint32(size[:], uint32(8+len(payload)))
	b = append(b, size[:]...)
	b = append(b, typ...)
	return append(b, payload...)
}

// makeTestMp4 builds ftyp(isom) + moov(mvhd, trak/mdia/minf/stbl/stco) +
// mdat, with the single stco entry pointing at the mdat payload.
func makeTestMp4() []byte {
	ftyp := box("ftyp", []byte("isom\x00\x00\x02\x00mp41"))

	mdatPayload := []byte("media-bytes-here")
	mdat := box("mdat", mdatPayload)

	// stco with one entry, patched below once the layout is known
	stcoPayload := make([]byte, 4+4+4)
	binary.BigEndian.PutUint32(stcoPayload[4:8], 1)
	stco := box("stco", stcoPayload)
	stbl := box("stbl", stco)
	minf := box("minf", stbl)
	mdia := box("mdia", minf)
	trak := box("trak", mdia)
	mvhd := box("mvhd", make([]byte, 20))
	moov := box("moov", append(mvhd, trak...))

	out := append(append(clone(ftyp), moov...), mdat...)
	chunkOffset := uint32(len(ftyp) + len(moov) + 8)
	// the stco entry is the last 4 bytes of moov
	entryPos := len(ftyp) + len(moov) - 4
	binary.BigEndian.PutUint32(out[entryPos:entryPos+4], chunkOffset)
	return out
}

func makeTestHeif() []byte {
	ftyp := box("ftyp", []byte("mif1\x00\x00\x00\x00mif1heic"))
	hdlr := box("hdlr", make([]byte, 24))
	meta := box("meta", append([]byte{0, 0, 0, 0}, hdlr...))
	mdat := box("mdat", []byte("tile-data"))
	return append(append(clone(ftyp), meta...), mdat...)
}

func mdatPayloadOffset(T *testing.T, src []byte) int {
	T.Helper()
	boxes, err := parseBmff(src)
	if err != nil {
		T.Fatal(err)
	}
	for _, b := range boxes {
		if b.typ == "mdat" {
			return b.start + b.hdr
		}
	}
	T.Fatal("no mdat box")
	return 0
}

func TestBmffMp4WriteRead(T *testing.T) {
	src := makeTestMp4()
	h := ForName("bmff")

	out, err := h.WriteXMP(src, testPacket)
	if err != nil {
		T.Fatalf("write: %v", err)
	}
	got, err := h.ReadXMP(out)
	if err != nil || !bytes.Equal(got, testPacket) {
		T.Fatalf("read back: %v", err)
	}

	boxes, err := parseBmff(out)
	if err != nil {
		T.Fatalf("parse output: %v", err)
	}
	// the uuid box lives inside moov
	uuidIdx := bmffFindXmp(out, boxes)
	if uuidIdx < 0 {
		T.Fatal("no uuid box")
	}
	parent := boxes[uuidIdx].parent
	if parent < 0 || boxes[parent].typ != "moov" {
		T.Errorf("uuid parent = %v", parent)
	}

	// mdat content is unchanged at the byte level
	if !bytes.Contains(out, []byte("media-bytes-here")) {
		T.Error("mdat bytes lost")
	}

	// the stco entry tracks the shifted mdat payload
	wantOffset := mdatPayloadOffset(T, out)
	var entry uint32
	for _, b := range boxes {
		if b.typ == "stco" {
			entry = binary.BigEndian.Uint32(out[b.start+b.hdr+8 : b.start+b.hdr+12])
		}
	}
	if int(entry) != wantOffset {
		T.Errorf("stco entry = %d, mdat payload at %d", entry, wantOffset)
	}

	// removing restores the original layout
	removed, err := h.RemoveXMP(out)
	if err != nil {
		T.Fatal(err)
	}
	if !bytes.Equal(removed, src) {
		T.Error("remove did not restore the original bytes")
	}
}

func TestBmffHeifPlacement(T *testing.T) {
	src := makeTestHeif()
	h := ForName("bmff")

	out, err := h.WriteXMP(src, testPacket)
	if err != nil {
		T.Fatalf("write: %v", err)
	}
	boxes, err := parseBmff(out)
	if err != nil {
		T.Fatal(err)
	}
	uuidIdx := bmffFindXmp(out, boxes)
	if uuidIdx < 0 {
		T.Fatal("no uuid box")
	}
	parent := boxes[uuidIdx].parent
	if parent < 0 || boxes[parent].typ != "meta" {
		T.Errorf("uuid parent type = %q, want meta", boxes[parent].typ)
	}
	got, err := h.ReadXMP(out)
	if err != nil || !bytes.Equal(got, testPacket) {
		T.Errorf("read back: %v", err)
	}
}

func TestBmffNoContainer(T *testing.T) {
	ftyp := box("ftyp", []byte("isom\x00\x00\x02\x00"))
	h := ForName("bmff")
	if _, err := h.WriteXMP(ftyp, testPacket); err == nil {
		T.Error("write without moov accepted")
	}
}

func TestBmffMalformed(T *testing.T) {
	h := ForName("bmff")
	bad := box("ftyp", []byte("isom"))
	bad[0] = 0xFF // size far outside the file
	if _, err := h.ReadXMP(bad); err == nil {
		T.Error("bad box size accepted")
	}
}

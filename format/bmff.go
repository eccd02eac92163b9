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
)

// ISO base media file format (MP4, MOV, HEIF, AVIF). XMP lives in a uuid
// box; placement is inside moov for movie brands and inside meta for image
// brands. mdat bytes are never touched; absolute chunk offsets are patched
// by the insertion delta instead.
var bmffXmpUUID = []byte{
	0xBE, 0x7A, 0xCF, 0xCB, 0x97, 0xA9, 0x42, 0xE8,
	0x9C, 0x71, 0x99, 0x94, 0x91, 0xE3, 0xAF, 0xAC,
}

var bmffImageBrands = map[string]bool{
	"heic": true, "heix": true, "hevc": true, "hevx": true,
	"heim": true, "heis": true, "hevm": true, "hevs": true,
	"mif1": true, "msf1": true, "avif": true, "avis": true,
}

var bmffContainers = map[string]bool{
	"moov": true, "trak": true, "mdia": true, "minf": true,
	"stbl": true, "udta": true, "meta": true, "moof": true,
	"traf": true,
}

type bmffHandler struct{}

func (h *bmffHandler) Name() string { return "bmff" }

func (h *bmffHandler) Extensions() []string {
	return []string{".mp4", ".m4a", ".m4v", ".mov", ".heic", ".heif", ".avif"}
}

func (h *bmffHandler) CanHandle(prefix []byte) bool {
	return len(prefix) >= 8 && bytes.Equal(prefix[4:8], []byte("ftyp"))
}

type bmffBox struct {
	typ    string
	start  int
	end    int
	hdr    int // header length: 8, or 16 with largesize
	parent int // index into the box list, -1 for top level
}

func (b bmffBox) payload() int {
	p := b.start + b.hdr
	if b.typ == "meta" {
		p += 4 // FullBox version and flags
	}
	return p
}

func parseBmff(src []byte) ([]bmffBox, error) {
	var boxes []bmffBox
	var walk func(from, to, parent int) error
	walk = func(from, to, parent int) error {
		pos := from
		for pos < to {
			if pos+8 > to {
				return containerErr("bmff", "truncated box header at %d", pos)
			}
			size := int(binary.BigEndian.Uint32(src[pos : pos+4]))
			typ := string(src[pos+4 : pos+8])
			hdr := 8
			if size == 1 {
				if pos+16 > to {
					return containerErr("bmff", "truncated largesize at %d", pos)
				}
				size64 := binary.BigEndian.Uint64(src[pos+8 : pos+16])
				size = int(size64)
				hdr = 16
			} else if size == 0 {
				size = to - pos
			}
			if size < hdr || pos+size > to {
				return containerErr("bmff", "box %s size %d outside parent", typ, size)
			}
			b := bmffBox{typ: typ, start: pos, end: pos + size, hdr: hdr, parent: parent}
			boxes = append(boxes, b)
			idx := len(boxes) - 1
			if bmffContainers[typ] {
				if err := walk(b.payload(), b.end, idx); err != nil {
					return err
				}
			}
			pos += size
		}
		return nil
	}
	if err := walk(0, len(src), -1); err != nil {
		return nil, err
	}
	if len(boxes) == 0 || boxes[0].typ != "ftyp" {
		return nil, containerErr("bmff", "missing ftyp box")
	}
	return boxes, nil
}

func bmffFindXmp(src []byte, boxes []bmffBox) int {
	for i, b := range boxes {
		if b.typ != "uuid" || b.end-b.start < b.hdr+16 {
			continue
		}
		if bytes.Equal(src[b.start+b.hdr:b.start+b.hdr+16], bmffXmpUUID) {
			return i
		}
	}
	return -1
}

func (h *bmffHandler) ReadXMP(src []byte) ([]byte, error) {
	boxes, err := parseBmff(src)
	if err != nil {
		return nil, err
	}
	if i := bmffFindXmp(src, boxes); i >= 0 {
		b := boxes[i]
		return clone(src[b.start+b.hdr+16 : b.end]), nil
	}
	return nil, nil
}

func (h *bmffHandler) WriteXMP(src, packet []byte) ([]byte, error) {
	return h.rewrite(src, packet)
}

func (h *bmffHandler) RemoveXMP(src []byte) ([]byte, error) {
	return h.rewrite(src, nil)
}

func (h *bmffHandler) rewrite(src, packet []byte) ([]byte, error) {
	boxes, err := parseBmff(src)
	if err != nil {
		return nil, err
	}

	var newBox []byte
	if packet != nil {
		newBox = make([]byte, 0, 24+len(packet))
		var size [4]byte
		binary.BigEndian.PutUint32(size[:], uint32(24+len(packet)))
		newBox = append(newBox, size[:]...)
		newBox = append(newBox, "uuid"...)
		newBox = append(newBox, bmffXmpUUID...)
		newBox = append(newBox, packet...)
	}

	// splice span and the ancestor chain whose sizes take the delta
	var spliceStart, spliceEnd, anchor int
	if i := bmffFindXmp(src, boxes); i >= 0 {
		spliceStart, spliceEnd = boxes[i].start, boxes[i].end
		anchor = boxes[i].parent
	} else {
		if packet == nil {
			return clone(src), nil
		}
		target := -1
		brand := string(src[boxes[0].payload() : boxes[0].payload()+4])
		want := "moov"
		if bmffImageBrands[brand] {
			want = "meta"
		}
		for i, b := range boxes {
			if b.typ == want && b.parent == -1 {
				target = i
				break
			}
		}
		if target < 0 {
			return nil, containerErr("bmff", "no %s box to hold XMP", want)
		}
		spliceStart, spliceEnd = boxes[target].end, boxes[target].end
		anchor = target
	}
	delta := len(newBox) - (spliceEnd - spliceStart)

	out := make([]byte, 0, len(src)+delta)
	out = append(out, src[:spliceStart]...)
	out = append(out, newBox...)
	out = append(out, src[spliceEnd:]...)

	// grow every ancestor box up the chain
	for i := anchor; i >= 0; i = boxes[i].parent {
		b := boxes[i]
		if b.hdr == 16 {
			old := binary.BigEndian.Uint64(out[b.start+8 : b.start+16])
			binary.BigEndian.PutUint64(out[b.start+8:b.start+16], uint64(int64(old)+int64(delta)))
		} else {
			old := binary.BigEndian.Uint32(out[b.start : b.start+4])
			if old != 0 {
				binary.BigEndian.PutUint32(out[b.start:b.start+4], uint32(int(old)+delta))
			}
		}
	}

	if delta != 0 {
		bmffPatchOffsets(out, boxes, spliceStart, delta)
	}
	return out, nil
}

// bmffPatchOffsets shifts every absolute file offset at or past the splice
// point: stco and co64 chunk offset tables, plus iloc extents in HEIF meta
// (unpatched extents would point into the moved data).
func bmffPatchOffsets(out []byte, boxes []bmffBox, splice, delta int) {
	shift := func(pos int) int {
		if pos >= splice {
			return pos + delta
		}
		return pos
	}
	for _, b := range boxes {
		p := shift(b.start) + b.hdr
		switch b.typ {
		case "stco":
			count := int(binary.BigEndian.Uint32(out[p+4 : p+8]))
			e := p + 8
			for i := 0; i < count; i++ {
				off := binary.BigEndian.Uint32(out[e : e+4])
				if int(off) >= splice {
					binary.BigEndian.PutUint32(out[e:e+4], uint32(int(off)+delta))
				}
				e += 4
			}
		case "co64":
			count := int(binary.BigEndian.Uint32(out[p+4 : p+8]))
			e := p + 8
			for i := 0; i < count; i++ {
				off := binary.BigEndian.Uint64(out[e : e+8])
				if off >= uint64(splice) {
					binary.BigEndian.PutUint64(out[e:e+8], uint64(int64(off)+int64(delta)))
				}
				e += 8
			}
		case "iloc":
			bmffPatchIloc(out, p, splice, delta)
		}
	}
}

func bmffPatchIloc(out []byte, p, splice, delta int) {
	version := out[p]
	q := p + 4
	offSize := int(out[q] >> 4)
	lenSize := int(out[q] & 0x0F)
	baseSize := int(out[q+1] >> 4)
	idxSize := 0
	if version == 1 || version == 2 {
		idxSize = int(out[q+1] & 0x0F)
	}
	q += 2
	var itemCount int
	if version < 2 {
		itemCount = int(binary.BigEndian.Uint16(out[q : q+2]))
		q += 2
	} else {
		itemCount = int(binary.BigEndian.Uint32(out[q : q+4]))
		q += 4
	}

	readN := func(at, n int) uint64 {
		var v uint64
		for i := 0; i < n; i++ {
			v = v<<8 | uint64(out[at+i])
		}
		return v
	}
	writeN := func(at, n int, v uint64) {
		for i := n - 1; i >= 0; i-- {
			out[at+i] = byte(v)
			v >>= 8
		}
	}

	for i := 0; i < itemCount; i++ {
		if version < 2 {
			q += 2 // item_ID
		} else {
			q += 4
		}
		method := 0
		if version == 1 || version == 2 {
			method = int(binary.BigEndian.Uint16(out[q:q+2]) & 0x0F)
			q += 2
		}
		q += 2 // data_reference_index
		if baseSize > 0 {
			base := readN(q, baseSize)
			if method == 0 && base >= uint64(splice) {
				writeN(q, baseSize, uint64(int64(base)+int64(delta)))
			}
			q += baseSize
		}
		extents := int(binary.BigEndian.Uint16(out[q : q+2]))
		q += 2
		for e := 0; e < extents; e++ {
			q += idxSize
			if offSize > 0 {
				off := readN(q, offSize)
				if method == 0 && off >= uint64(splice) {
					writeN(q, offSize, uint64(int64(off)+int64(delta)))
				}
			}
			q += offSize + lenSize
		}
	}
}

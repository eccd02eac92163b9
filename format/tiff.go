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
	"sort"

	"github.com/rwcarlsen/goexif/tiff"
)

// XMP lives in IFD0 tag 700, type BYTE.
const tiffXmpTag = 700

var (
	tiffMagicLE = []byte{0x49, 0x49, 0x2A, 0x00}
	tiffMagicBE = []byte{0x4D, 0x4D, 0x00, 0x2A}
)

type tiffHandler struct{}

func (h *tiffHandler) Name() string { return "tiff" }

func (h *tiffHandler) Extensions() []string { return []string{".tif", ".tiff"} }

func (h *tiffHandler) CanHandle(prefix []byte) bool {
	return hasPrefix(prefix, tiffMagicLE) || hasPrefix(prefix, tiffMagicBE)
}

func (h *tiffHandler) ReadXMP(src []byte) ([]byte, error) {
	t, err := tiff.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, containerErr("tiff", "decode: %v", err)
	}
	if len(t.Dirs) == 0 {
		return nil, nil
	}
	for _, tag := range t.Dirs[0].Tags {
		if tag.Id == tiffXmpTag {
			return clone(tag.Val), nil
		}
	}
	return nil, nil
}

type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	raw   [4]byte // inline value or offset, verbatim
}

type tiffLayout struct {
	order   binary.ByteOrder
	ifd0Off uint32
	entries []ifdEntry
	nextIfd uint32
}

func parseTiffHeader(src []byte) (*tiffLayout, error) {
	if len(src) < 8 {
		return nil, containerErr("tiff", "short header")
	}
	var order binary.ByteOrder
	switch {
	case bytes.HasPrefix(src, tiffMagicLE):
		order = binary.LittleEndian
	case bytes.HasPrefix(src, tiffMagicBE):
		order = binary.BigEndian
	default:
		return nil, containerErr("tiff", "bad byte-order mark")
	}
	l := &tiffLayout{order: order, ifd0Off: order.Uint32(src[4:8])}
	pos := int(l.ifd0Off)
	if pos+2 > len(src) {
		return nil, containerErr("tiff", "IFD0 offset outside file")
	}
	count := int(order.Uint16(src[pos : pos+2]))
	pos += 2
	if pos+count*12+4 > len(src) {
		return nil, containerErr("tiff", "truncated IFD0")
	}
	for i := 0; i < count; i++ {
		e := ifdEntry{
			tag:   order.Uint16(src[pos : pos+2]),
			typ:   order.Uint16(src[pos+2 : pos+4]),
			count: order.Uint32(src[pos+4 : pos+8]),
		}
		copy(e.raw[:], src[pos+8:pos+12])
		l.entries = append(l.entries, e)
		pos += 12
	}
	l.nextIfd = order.Uint32(src[pos : pos+4])
	return l, nil
}

// WriteXMP rebuilds IFD0 with an updated tag 700. The new directory and
// the packet bytes are appended at the end of the file and the header IFD0
// pointer is repointed, so every offset in the original file stays valid
// and the source endianness is preserved.
func (h *tiffHandler) WriteXMP(src, packet []byte) ([]byte, error) {
	return h.rewrite(src, packet)
}

func (h *tiffHandler) RemoveXMP(src []byte) ([]byte, error) {
	return h.rewrite(src, nil)
}

func (h *tiffHandler) rewrite(src, packet []byte) ([]byte, error) {
	l, err := parseTiffHeader(src)
	if err != nil {
		return nil, err
	}

	entries := make([]ifdEntry, 0, len(l.entries)+1)
	had := false
	for _, e := range l.entries {
		if e.tag == tiffXmpTag {
			had = true
			continue
		}
		entries = append(entries, e)
	}
	if packet == nil && !had {
		return clone(src), nil
	}

	out := clone(src)
	if len(out)%2 == 1 {
		out = append(out, 0) // word-align the appended IFD
	}
	newIfdOff := uint32(len(out))

	if packet != nil {
		dataOff := newIfdOff + 2 + uint32(len(entries)+1)*12 + 4
		e := ifdEntry{tag: tiffXmpTag, typ: 1 /* BYTE */, count: uint32(len(packet))}
		if len(packet) <= 4 {
			copy(e.raw[:], packet)
		} else {
			l.order.PutUint32(e.raw[:], dataOff)
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	var ifd bytes.Buffer
	var u16 [2]byte
	var u32 [4]byte
	l.order.PutUint16(u16[:], uint16(len(entries)))
	ifd.Write(u16[:])
	for _, e := range entries {
		l.order.PutUint16(u16[:], e.tag)
		ifd.Write(u16[:])
		l.order.PutUint16(u16[:], e.typ)
		ifd.Write(u16[:])
		l.order.PutUint32(u32[:], e.count)
		ifd.Write(u32[:])
		ifd.Write(e.raw[:])
	}
	l.order.PutUint32(u32[:], l.nextIfd)
	ifd.Write(u32[:])

	out = append(out, ifd.Bytes()...)
	if packet != nil && len(packet) > 4 {
		out = append(out, packet...)
	}
	l.order.PutUint32(out[4:8], newIfdOff)
	return out, nil
}

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

var (
	id3Magic    = []byte("ID3")
	mp3XmpOwner = []byte("XMP\x00")
)

type mp3Handler struct{}

func (h *mp3Handler) Name() string { return "mp3" }

func (h *mp3Handler) Extensions() []string { return []string{".mp3"} }

func (h *mp3Handler) CanHandle(prefix []byte) bool {
	if hasPrefix(prefix, id3Magic) {
		return true
	}
	// bare MPEG frame sync
	return len(prefix) >= 2 && prefix[0] == 0xFF && prefix[1]&0xE0 == 0xE0
}

func syncsafe(v uint32) [4]byte {
	return [4]byte{
		byte(v >> 21 & 0x7F),
		byte(v >> 14 & 0x7F),
		byte(v >> 7 & 0x7F),
		byte(v & 0x7F),
	}
}

func unsyncsafe(b []byte) uint32 {
	return uint32(b[0]&0x7F)<<21 | uint32(b[1]&0x7F)<<14 | uint32(b[2]&0x7F)<<7 | uint32(b[3]&0x7F)
}

type id3Tag struct {
	major  byte
	flags  byte
	size   int // tag body size, excluding the 10-byte header
	frames []id3Frame
	rest   []byte // audio data after the tag
}

type id3Frame struct {
	id   string
	data []byte
}

func (f id3Frame) isXmpPriv() bool {
	return f.id == "PRIV" && bytes.HasPrefix(f.data, mp3XmpOwner)
}

func parseID3(src []byte) (*id3Tag, error) {
	if !bytes.HasPrefix(src, id3Magic) {
		return &id3Tag{major: 3, rest: src}, nil
	}
	if len(src) < 10 {
		return nil, containerErr("mp3", "short ID3v2 header")
	}
	t := &id3Tag{major: src[3], flags: src[5]}
	t.size = int(unsyncsafe(src[6:10]))
	if 10+t.size > len(src) {
		return nil, containerErr("mp3", "tag size outside file")
	}
	body := src[10 : 10+t.size]
	t.rest = src[10+t.size:]

	// skip the extended header if flagged
	if t.flags&0x40 != 0 && len(body) >= 4 {
		var ext int
		if t.major >= 4 {
			ext = int(unsyncsafe(body[0:4]))
		} else {
			ext = int(binary.BigEndian.Uint32(body[0:4])) + 4
		}
		if ext > len(body) {
			return nil, containerErr("mp3", "bad extended header size")
		}
		body = body[ext:]
	}

	pos := 0
	for pos+10 <= len(body) {
		if body[pos] == 0 { // padding
			break
		}
		id := string(body[pos : pos+4])
		var size int
		if t.major >= 4 {
			size = int(unsyncsafe(body[pos+4 : pos+8]))
		} else {
			size = int(binary.BigEndian.Uint32(body[pos+4 : pos+8]))
		}
		if pos+10+size > len(body) {
			return nil, containerErr("mp3", "truncated frame %s", id)
		}
		t.frames = append(t.frames, id3Frame{id: id, data: body[pos+10 : pos+10+size]})
		pos += 10 + size
	}
	return t, nil
}

func (h *mp3Handler) ReadXMP(src []byte) ([]byte, error) {
	t, err := parseID3(src)
	if err != nil {
		return nil, err
	}
	for _, f := range t.frames {
		if f.isXmpPriv() {
			return clone(f.data[len(mp3XmpOwner):]), nil
		}
	}
	return nil, nil
}

// WriteXMP replaces the XMP PRIV frame and recomputes the syncsafe tag
// size. An existing tag keeps its major version and frame-size encoding; a
// v2.3 tag is created when none exists. Unsynchronisation is not applied.
func (h *mp3Handler) WriteXMP(src, packet []byte) ([]byte, error) {
	return h.rewrite(src, packet)
}

func (h *mp3Handler) RemoveXMP(src []byte) ([]byte, error) {
	return h.rewrite(src, nil)
}

func (h *mp3Handler) rewrite(src, packet []byte) ([]byte, error) {
	t, err := parseID3(src)
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	writeFrame := func(id string, data []byte) {
		body.WriteString(id)
		if t.major >= 4 {
			s := syncsafe(uint32(len(data)))
			body.Write(s[:])
		} else {
			var s [4]byte
			binary.BigEndian.PutUint32(s[:], uint32(len(data)))
			body.Write(s[:])
		}
		body.Write([]byte{0, 0})
		body.Write(data)
	}

	had := false
	for _, f := range t.frames {
		if f.isXmpPriv() {
			had = true
			continue
		}
		writeFrame(f.id, f.data)
	}
	if packet != nil {
		data := make([]byte, 0, len(mp3XmpOwner)+len(packet))
		data = append(data, mp3XmpOwner...)
		data = append(data, packet...)
		writeFrame("PRIV", data)
	}
	if !had && packet == nil {
		return clone(src), nil
	}
	if body.Len() == 0 {
		// removing the only frame drops the whole tag
		return clone(t.rest), nil
	}

	var out bytes.Buffer
	out.Grow(10 + body.Len() + len(t.rest))
	out.Write(id3Magic)
	out.WriteByte(t.major)
	out.WriteByte(0) // revision
	out.WriteByte(t.flags &^ 0xC0)
	size := syncsafe(uint32(body.Len()))
	out.Write(size[:])
	out.Write(body.Bytes())
	out.Write(t.rest)
	return out.Bytes(), nil
}

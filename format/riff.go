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
	riffMagic = []byte("RIFF")
	riffXmpId = []byte("_PMX")
	riffForms = [][]byte{[]byte("WAVE"), []byte("AVI "), []byte("WEBP")}
)

type riffHandler struct{}

func (h *riffHandler) Name() string { return "riff" }

func (h *riffHandler) Extensions() []string { return []string{".wav", ".avi", ".webp"} }

func (h *riffHandler) CanHandle(prefix []byte) bool {
	if !hasPrefix(prefix, riffMagic) || len(prefix) < 12 {
		return false
	}
	for _, f := range riffForms {
		if bytes.Equal(prefix[8:12], f) {
			return true
		}
	}
	return false
}

type riffChunk struct {
	id    string
	start int // offset of the chunk id
	data  []byte
}

// parseRiff walks the top-level chunks. RIFF is little-endian and chunk
// data is padded to even length.
func parseRiff(src []byte) ([]riffChunk, error) {
	if len(src) < 12 || !bytes.HasPrefix(src, riffMagic) {
		return nil, containerErr("riff", "missing RIFF header")
	}
	size := int(binary.LittleEndian.Uint32(src[4:8]))
	if size+8 > len(src) {
		return nil, containerErr("riff", "declared size outside file")
	}
	var chunks []riffChunk
	pos := 12
	end := 8 + size
	for pos+8 <= end {
		length := int(binary.LittleEndian.Uint32(src[pos+4 : pos+8]))
		if pos+8+length > end {
			return nil, containerErr("riff", "truncated chunk at %d", pos)
		}
		chunks = append(chunks, riffChunk{
			id:    string(src[pos : pos+4]),
			start: pos,
			data:  src[pos+8 : pos+8+length],
		})
		pos += 8 + length
		if length%2 == 1 {
			pos++ // pad byte
		}
	}
	return chunks, nil
}

func (h *riffHandler) ReadXMP(src []byte) ([]byte, error) {
	chunks, err := parseRiff(src)
	if err != nil {
		return nil, err
	}
	for _, c := range chunks {
		if c.id == string(riffXmpId) {
			return clone(c.data), nil
		}
	}
	return nil, nil
}

// WriteXMP appends or replaces the top-level _PMX chunk and updates the
// outer RIFF size.
func (h *riffHandler) WriteXMP(src, packet []byte) ([]byte, error) {
	return h.rewrite(src, packet)
}

func (h *riffHandler) RemoveXMP(src []byte) ([]byte, error) {
	return h.rewrite(src, nil)
}

func (h *riffHandler) rewrite(src, packet []byte) ([]byte, error) {
	chunks, err := parseRiff(src)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	out.Grow(len(src) + len(packet) + 16)
	out.Write(src[:12]) // RIFF header + form type, size patched below

	writeChunk := func(id string, data []byte) {
		out.WriteString(id)
		var l [4]byte
		binary.LittleEndian.PutUint32(l[:], uint32(len(data)))
		out.Write(l[:])
		out.Write(data)
		if len(data)%2 == 1 {
			out.WriteByte(0)
		}
	}

	had := false
	for _, c := range chunks {
		if c.id == string(riffXmpId) {
			had = true
			continue
		}
		writeChunk(c.id, c.data)
	}
	if packet != nil {
		writeChunk(string(riffXmpId), packet)
	}
	if packet == nil && !had {
		return clone(src), nil
	}

	b := out.Bytes()
	binary.LittleEndian.PutUint32(b[4:8], uint32(len(b)-8))
	return b, nil
}

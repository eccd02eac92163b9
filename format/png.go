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
)

var (
	pngMagic      = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}
	pngXmpKeyword = []byte("XMP:com.adobe.xmp")
)

type pngHandler struct{}

func (h *pngHandler) Name() string { return "png" }

func (h *pngHandler) Extensions() []string { return []string{".png"} }

func (h *pngHandler) CanHandle(prefix []byte) bool {
	return hasPrefix(prefix, pngMagic)
}

type pngChunk struct {
	typ   string
	start int // offset of the length field
	data  []byte
}

func parsePng(src []byte) ([]pngChunk, error) {
	if !bytes.HasPrefix(src, pngMagic) {
		return nil, containerErr("png", "missing signature")
	}
	var chunks []pngChunk
	pos := len(pngMagic)
	for pos < len(src) {
		if pos+8 > len(src) {
			return nil, containerErr("png", "truncated chunk header at %d", pos)
		}
		length := int(binary.BigEndian.Uint32(src[pos : pos+4]))
		end := pos + 8 + length + 4
		if end > len(src) {
			return nil, containerErr("png", "truncated chunk at %d", pos)
		}
		chunks = append(chunks, pngChunk{
			typ:   string(src[pos+4 : pos+8]),
			start: pos,
			data:  src[pos+8 : pos+8+length],
		})
		pos = end
	}
	return chunks, nil
}

// xmpFromITXt unwraps the iTXt layout: keyword, null, compression flag,
// compression method, language tag, null, translated keyword, null, text.
func xmpFromITXt(data []byte) ([]byte, bool) {
	if !bytes.HasPrefix(data, pngXmpKeyword) {
		return nil, false
	}
	p := data[len(pngXmpKeyword):]
	if len(p) < 5 || p[0] != 0 {
		return nil, false
	}
	p = p[3:] // null, compression flag, compression method
	for i := 0; i < 2; i++ {
		idx := bytes.IndexByte(p, 0)
		if idx < 0 {
			return nil, false
		}
		p = p[idx+1:]
	}
	return p, true
}

func buildITXt(packet []byte) []byte {
	data := make([]byte, 0, len(pngXmpKeyword)+5+len(packet))
	data = append(data, pngXmpKeyword...)
	data = append(data, 0, 0, 0) // keyword null, flag 0, method 0
	data = append(data, 0)       // empty language tag
	data = append(data, 0)       // empty translated keyword
	data = append(data, packet...)
	return data
}

func appendChunk(out *bytes.Buffer, typ string, data []byte) {
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[:4], uint32(len(data)))
	copy(hdr[4:], typ)
	out.Write(hdr[:])
	out.Write(data)
	crc := crc32.NewIEEE()
	crc.Write([]byte(typ))
	crc.Write(data)
	var sum [4]byte
	binary.BigEndian.PutUint32(sum[:], crc.Sum32())
	out.Write(sum[:])
}

func (h *pngHandler) ReadXMP(src []byte) ([]byte, error) {
	chunks, err := parsePng(src)
	if err != nil {
		return nil, err
	}
	for _, c := range chunks {
		if c.typ != "iTXt" {
			continue
		}
		if p, ok := xmpFromITXt(c.data); ok {
			return clone(p), nil
		}
	}
	return nil, nil
}

// WriteXMP drops any existing XMP iTXt chunk and writes the new one right
// before the first IDAT. The chunk CRC is recomputed over type and data.
func (h *pngHandler) WriteXMP(src, packet []byte) ([]byte, error) {
	return h.rewrite(src, packet)
}

func (h *pngHandler) RemoveXMP(src []byte) ([]byte, error) {
	return h.rewrite(src, nil)
}

func (h *pngHandler) rewrite(src, packet []byte) ([]byte, error) {
	chunks, err := parsePng(src)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	out.Grow(len(src) + len(packet) + 64)
	out.Write(pngMagic)
	written := false
	for _, c := range chunks {
		if c.typ == "iTXt" {
			if _, ok := xmpFromITXt(c.data); ok {
				continue
			}
		}
		if c.typ == "IDAT" && !written {
			if packet != nil {
				appendChunk(&out, "iTXt", buildITXt(packet))
			}
			written = true
		}
		appendChunk(&out, c.typ, c.data)
	}
	if !written && packet != nil {
		return nil, containerErr("png", "missing IDAT chunk")
	}
	return out.Bytes(), nil
}

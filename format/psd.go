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
	psdMagic = []byte("8BPS")
	irbMagic = []byte("8BIM")
)

// XMP lives in Image Resource Block 1060.
const psdXmpResource = 0x0424

type psdHandler struct{}

func (h *psdHandler) Name() string { return "psd" }

func (h *psdHandler) Extensions() []string { return []string{".psd", ".psb"} }

func (h *psdHandler) CanHandle(prefix []byte) bool {
	return hasPrefix(prefix, psdMagic)
}

type psdResource struct {
	id   uint16
	name []byte // raw pascal string including padding
	data []byte
}

type psdLayout struct {
	head      []byte // header + color mode section
	resources []psdResource
	tail      []byte // layer and image data sections
}

func parsePsd(src []byte) (*psdLayout, error) {
	if len(src) < 26+4 || !bytes.HasPrefix(src, psdMagic) {
		return nil, containerErr("psd", "missing header")
	}
	pos := 26
	colorLen := int(binary.BigEndian.Uint32(src[pos : pos+4]))
	pos += 4 + colorLen
	if pos+4 > len(src) {
		return nil, containerErr("psd", "truncated color mode section")
	}
	l := &psdLayout{head: src[:pos]}
	resLen := int(binary.BigEndian.Uint32(src[pos : pos+4]))
	resEnd := pos + 4 + resLen
	if resEnd > len(src) {
		return nil, containerErr("psd", "resources section outside file")
	}
	p := pos + 4
	for p+4 <= resEnd {
		if !bytes.Equal(src[p:p+4], irbMagic) {
			return nil, containerErr("psd", "bad resource signature at %d", p)
		}
		if p+6 > resEnd {
			return nil, containerErr("psd", "truncated resource header")
		}
		id := binary.BigEndian.Uint16(src[p+4 : p+6])
		p += 6
		nameLen := int(src[p])
		namePad := nameLen + 1
		if namePad%2 == 1 {
			namePad++
		}
		if p+namePad+4 > resEnd {
			return nil, containerErr("psd", "truncated resource name")
		}
		name := src[p : p+namePad]
		p += namePad
		size := int(binary.BigEndian.Uint32(src[p : p+4]))
		p += 4
		if p+size > resEnd {
			return nil, containerErr("psd", "truncated resource data")
		}
		l.resources = append(l.resources, psdResource{id: id, name: name, data: src[p : p+size]})
		p += size
		if size%2 == 1 {
			p++ // pad
		}
	}
	l.tail = src[resEnd:]
	return l, nil
}

func (h *psdHandler) ReadXMP(src []byte) ([]byte, error) {
	l, err := parsePsd(src)
	if err != nil {
		return nil, err
	}
	for _, r := range l.resources {
		if r.id == psdXmpResource {
			return clone(r.data), nil
		}
	}
	return nil, nil
}

// WriteXMP replaces or inserts resource 1060 and updates the resources
// section length; layer and image data stay byte-unchanged.
func (h *psdHandler) WriteXMP(src, packet []byte) ([]byte, error) {
	return h.rewrite(src, packet)
}

func (h *psdHandler) RemoveXMP(src []byte) ([]byte, error) {
	return h.rewrite(src, nil)
}

func (h *psdHandler) rewrite(src, packet []byte) ([]byte, error) {
	l, err := parsePsd(src)
	if err != nil {
		return nil, err
	}

	var section bytes.Buffer
	writeResource := func(r psdResource) {
		section.Write(irbMagic)
		var id [2]byte
		binary.BigEndian.PutUint16(id[:], r.id)
		section.Write(id[:])
		if len(r.name) == 0 {
			section.Write([]byte{0, 0}) // empty pascal name, padded
		} else {
			section.Write(r.name)
		}
		var size [4]byte
		binary.BigEndian.PutUint32(size[:], uint32(len(r.data)))
		section.Write(size[:])
		section.Write(r.data)
		if len(r.data)%2 == 1 {
			section.WriteByte(0)
		}
	}

	had := false
	for _, r := range l.resources {
		if r.id == psdXmpResource {
			had = true
			if packet != nil {
				writeResource(psdResource{id: psdXmpResource, data: packet})
				packet = nil
			}
			continue
		}
		writeResource(r)
	}
	if packet != nil {
		writeResource(psdResource{id: psdXmpResource, data: packet})
	} else if !had {
		// nothing removed, nothing added
		if section.Len() == 0 && len(l.resources) == 0 {
			return clone(src), nil
		}
	}

	var out bytes.Buffer
	out.Grow(len(l.head) + 4 + section.Len() + len(l.tail))
	out.Write(l.head)
	var slen [4]byte
	binary.BigEndian.PutUint32(slen[:], uint32(section.Len()))
	out.Write(slen[:])
	out.Write(section.Bytes())
	out.Write(l.tail)
	return out.Bytes(), nil
}

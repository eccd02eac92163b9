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
	"errors"

	"github.com/xmpkit/go-xmpkit/xmp"
)

// ReadOptions selects how a container is opened.
type ReadOptions struct {
	// ForUpdate keeps enough state to write the container back.
	ForUpdate bool

	// UseSmartHandler requires a container handler match and fails with
	// a ContainerError otherwise.
	UseSmartHandler bool

	// UsePacketScanning bypasses the handlers and scans raw bytes for the
	// packet envelope.
	UsePacketScanning bool

	// OnlyXMP extracts the packet without parsing it into a document.
	OnlyXMP bool
}

// File is one opened container: the source bytes, the matched handler and
// the extracted packet. It is not internally synchronised.
type File struct {
	src     []byte
	handler Handler
	packet  []byte
	doc     *xmp.Document
	opts    ReadOptions
	dirty   bool
}

// ReadBytes opens a container held in memory. A valid container without a
// packet yields a File whose Xmp and PacketBytes are nil; that is not an
// error. The default policy prefers a smart handler and falls back to
// packet scanning when no handler matches.
func ReadBytes(data []byte, opts *ReadOptions) (*File, error) {
	var o ReadOptions
	if opts != nil {
		o = *opts
	}
	f := &File{src: data, opts: o}

	if !o.UsePacketScanning {
		f.handler = Detect(data)
	}
	if f.handler == nil && o.UseSmartHandler {
		return nil, containerErr("format", "no handler for input")
	}

	var packet []byte
	var err error
	if f.handler != nil {
		packet, err = f.handler.ReadXMP(data)
		if err != nil {
			return nil, err
		}
	} else {
		if start, end, ok := xmp.FindPacket(data); ok {
			packet = data[start:end]
		}
	}
	if packet == nil {
		return f, nil
	}
	f.packet = packet

	if !o.OnlyXMP {
		f.doc, err = xmp.Parse(packet)
		if err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Format names the matched container handler.
func (f *File) Format() string {
	if f.handler == nil {
		return ""
	}
	return f.handler.Name()
}

// Xmp returns the parsed document, or nil when the container carries no
// packet (NoXmp is a read-side signal, not an error).
func (f *File) Xmp() *xmp.Document {
	return f.doc
}

// PacketBytes returns the raw extracted packet.
func (f *File) PacketBytes() []byte {
	return f.packet
}

// SetXmp replaces the document to be written back.
func (f *File) SetXmp(d *xmp.Document) error {
	if !f.opts.ForUpdate {
		return xmp.ErrNotWritable
	}
	f.doc = d
	f.packet = nil
	f.dirty = true
	return nil
}

// SetPacket replaces the raw packet to be written back, bypassing the
// serializer.
func (f *File) SetPacket(p []byte) error {
	if !f.opts.ForUpdate {
		return xmp.ErrNotWritable
	}
	f.packet = p
	f.doc = nil
	f.dirty = true
	return nil
}

// RemoveXmp marks the packet for removal on the next Bytes call.
func (f *File) RemoveXmp() error {
	if !f.opts.ForUpdate {
		return xmp.ErrNotWritable
	}
	f.doc = nil
	f.packet = nil
	f.dirty = true
	return nil
}

// Bytes produces the updated container. Without pending changes the source
// bytes are returned unchanged.
func (f *File) Bytes() ([]byte, error) {
	if !f.dirty {
		return f.src, nil
	}
	if f.handler == nil {
		return nil, containerErr("format", "packet-scanned input cannot be written back")
	}
	if f.doc == nil && f.packet == nil {
		return f.handler.RemoveXMP(f.src)
	}
	packet := f.packet
	if packet == nil {
		var err error
		packet, err = f.doc.SerializePacket(xmp.PacketOptions{})
		if err != nil {
			return nil, err
		}
	}
	return f.handler.WriteXMP(f.src, packet)
}

// Extract returns the packet bytes of a container using the default read
// policy. A missing packet yields (nil, nil).
func Extract(data []byte) ([]byte, error) {
	f, err := ReadBytes(data, &ReadOptions{OnlyXMP: true})
	if err != nil {
		return nil, err
	}
	return f.PacketBytes(), nil
}

// Embed splices a serialized packet into the container.
func Embed(data, packet []byte) ([]byte, error) {
	h := Detect(data)
	if h == nil {
		return nil, containerErr("format", "no handler for input")
	}
	return h.WriteXMP(data, packet)
}

// IsNoXmp reports whether err is the no-packet signal some low-level
// helpers return.
func IsNoXmp(err error) bool {
	return errors.Is(err, xmp.ErrNoXmp)
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}

func hasPrefix(b, prefix []byte) bool {
	return bytes.HasPrefix(b, prefix)
}

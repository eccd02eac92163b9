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
	"testing"

	"github.com/xmpkit/go-xmpkit/xmp"
)

func TestFileUpdateFlow(T *testing.T) {
	f, err := ReadBytes(makeTestJpeg(), &ReadOptions{ForUpdate: true})
	if err != nil {
		T.Fatalf("open: %v", err)
	}
	if f.Format() != "jpeg" {
		T.Errorf("format = %q", f.Format())
	}
	if f.Xmp() != nil || f.PacketBytes() != nil {
		T.Error("fresh sample reports xmp")
	}

	d := xmp.NewDocument()
	if err := d.SetProperty(xmp.NsXmp.URI, "CreatorTool", xmp.Simple("go-xmpkit")); err != nil {
		T.Fatal(err)
	}
	if err := f.SetXmp(d); err != nil {
		T.Fatalf("SetXmp: %v", err)
	}
	out, err := f.Bytes()
	if err != nil {
		T.Fatalf("Bytes: %v", err)
	}

	f2, err := ReadBytes(out, nil)
	if err != nil {
		T.Fatalf("reopen: %v", err)
	}
	if f2.Xmp() == nil {
		T.Fatal("no xmp after write")
	}
	if v, _ := f2.Xmp().GetProperty(xmp.NsXmp.URI, "CreatorTool"); v.(xmp.Simple) != "go-xmpkit" {
		T.Errorf("CreatorTool = %v", v)
	}
	// the default serialization pads to a writable packet
	if len(f2.PacketBytes())%4 != 0 {
		T.Errorf("packet length %d not aligned", len(f2.PacketBytes()))
	}

	// remove flow
	f3, err := ReadBytes(out, &ReadOptions{ForUpdate: true})
	if err != nil {
		T.Fatal(err)
	}
	if err := f3.RemoveXmp(); err != nil {
		T.Fatal(err)
	}
	cleaned, err := f3.Bytes()
	if err != nil {
		T.Fatal(err)
	}
	f4, err := ReadBytes(cleaned, nil)
	if err != nil {
		T.Fatal(err)
	}
	if f4.Xmp() != nil {
		T.Error("xmp present after remove")
	}
}

func TestFileNotWritable(T *testing.T) {
	f, err := ReadBytes(makeTestJpeg(), nil)
	if err != nil {
		T.Fatal(err)
	}
	if err := f.SetXmp(xmp.NewDocument()); !errors.Is(err, xmp.ErrNotWritable) {
		T.Errorf("SetXmp without ForUpdate: %v", err)
	}
	if err := f.SetPacket(testPacket); !errors.Is(err, xmp.ErrNotWritable) {
		T.Errorf("SetPacket without ForUpdate: %v", err)
	}
	if err := f.RemoveXmp(); !errors.Is(err, xmp.ErrNotWritable) {
		T.Errorf("RemoveXmp without ForUpdate: %v", err)
	}
}

func TestFilePacketScanFallback(T *testing.T) {
	// unknown container: garbage with an embedded packet
	var blob bytes.Buffer
	blob.Write([]byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09})
	blob.Write(testPacket)
	blob.Write([]byte{0x0A, 0x0B})

	f, err := ReadBytes(blob.Bytes(), nil)
	if err != nil {
		T.Fatalf("open: %v", err)
	}
	if f.Format() != "" {
		T.Errorf("format = %q for unknown container", f.Format())
	}
	if f.Xmp() == nil {
		T.Fatal("packet scanning fallback found nothing")
	}
	if v, _ := f.Xmp().GetProperty(xmp.NsXmp.URI, "CreatorTool"); v.(xmp.Simple) != "MyApp" {
		T.Errorf("CreatorTool = %v", v)
	}

	// smart-handler-only mode refuses unknown containers
	if _, err := ReadBytes(blob.Bytes(), &ReadOptions{UseSmartHandler: true}); err == nil {
		T.Error("UseSmartHandler accepted unknown container")
	}

	// forced scanning bypasses handlers even for known formats
	jpeg, err := Embed(makeTestJpeg(), testPacket)
	if err != nil {
		T.Fatal(err)
	}
	fs, err := ReadBytes(jpeg, &ReadOptions{UsePacketScanning: true})
	if err != nil {
		T.Fatal(err)
	}
	if fs.Format() != "" {
		T.Error("handler used despite UsePacketScanning")
	}
	if fs.Xmp() == nil {
		T.Error("scan missed the embedded packet")
	}
}

func TestFileOnlyXmp(T *testing.T) {
	jpeg, err := Embed(makeTestJpeg(), testPacket)
	if err != nil {
		T.Fatal(err)
	}
	f, err := ReadBytes(jpeg, &ReadOptions{OnlyXMP: true})
	if err != nil {
		T.Fatal(err)
	}
	if f.Xmp() != nil {
		T.Error("OnlyXMP parsed the packet")
	}
	if !bytes.Equal(f.PacketBytes(), testPacket) {
		T.Error("packet bytes differ")
	}
}

func TestExtractEmbed(T *testing.T) {
	out, err := Embed(makeTestPng(), testPacket)
	if err != nil {
		T.Fatalf("embed: %v", err)
	}
	got, err := Extract(out)
	if err != nil || !bytes.Equal(got, testPacket) {
		T.Errorf("extract: %v", err)
	}
	if p, err := Extract(makeTestPng()); err != nil || p != nil {
		T.Errorf("extract from fresh sample: %v, %v", p, err)
	}
	if _, err := Embed([]byte{0x00, 0x01}, testPacket); err == nil {
		T.Error("embed into garbage accepted")
	}
}

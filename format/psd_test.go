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

var psdTail = []byte("\x00\x00\x00\x00LAYER-AND-IMAGE-DATA")

func makeTestPsd() []byte {
	var b bytes.Buffer
	b.Write(psdMagic)
	b.Write([]byte{0x00, 0x01})                         // version
	b.Write(make([]byte, 6))                            // reserved
	b.Write([]byte{0x00, 0x03})                         // channels
	b.Write([]byte{0x00, 0x00, 0x00, 0x01})             // height
	b.Write([]byte{0x00, 0x00, 0x00, 0x01})             // width
	b.Write([]byte{0x00, 0x08, 0x00, 0x03})             // depth, mode

	b.Write([]byte{0x00, 0x00, 0x00, 0x00}) // empty color mode section

	// resources: one resolution-info block (id 1005)
	var res bytes.Buffer
	res.Write(irbMagic)
	res.Write([]byte{0x03, 0xED})
	res.Write([]byte{0x00, 0x00}) // empty pascal name, padded
	resData := []byte{0x01, 0x02, 0x03, 0x04}
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(resData)))
	res.Write(l[:])
	res.Write(resData)

	binary.BigEndian.PutUint32(l[:], uint32(res.Len()))
	b.Write(l[:])
	b.Write(res.Bytes())
	b.Write(psdTail)
	return b.Bytes()
}

func TestPsdWriteRead(T *testing.T) {
	src := makeTestPsd()
	h := ForName("psd")

	out, err := h.WriteXMP(src, testPacket)
	if err != nil {
		T.Fatalf("write: %v", err)
	}
	got, err := h.ReadXMP(out)
	if err != nil || !bytes.Equal(got, testPacket) {
		T.Fatalf("read back: %v", err)
	}
	// later sections stay byte-unchanged
	if !bytes.HasSuffix(out, psdTail) {
		T.Error("tail sections modified")
	}
	// header and color mode section untouched
	if !bytes.Equal(out[:30], src[:30]) {
		T.Error("header modified")
	}

	l, err := parsePsd(out)
	if err != nil {
		T.Fatal(err)
	}
	ids := make([]uint16, len(l.resources))
	for i, r := range l.resources {
		ids[i] = r.id
	}
	if len(ids) != 2 || ids[0] != 1005 || ids[1] != psdXmpResource {
		T.Errorf("resource ids = %v", ids)
	}

	// replacement keeps the block position
	out2, err := h.WriteXMP(out, packetOfLength(99)) // odd size, pad applies
	if err != nil {
		T.Fatal(err)
	}
	got, err = h.ReadXMP(out2)
	if err != nil || !bytes.Equal(got, packetOfLength(99)) {
		T.Errorf("replace read back: %v", err)
	}
	l2, _ := parsePsd(out2)
	if l2.resources[1].id != psdXmpResource {
		T.Error("replaced block moved")
	}
}

func TestPsdMalformed(T *testing.T) {
	h := ForName("psd")
	if _, err := h.ReadXMP([]byte("8BPS")); err == nil {
		T.Error("short header accepted")
	}
	bad := makeTestPsd()
	// corrupt the resources length
	binary.BigEndian.PutUint32(bad[30:34], 0xFFFF)
	if _, err := h.ReadXMP(bad); err == nil {
		T.Error("resources section outside file accepted")
	}
}

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

package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xmpkit/go-xmpkit/format"
	"github.com/xmpkit/go-xmpkit/xmp"
)

var (
	debug bool
	quiet bool
	fxmp  bool
	forig bool
	fscan bool
)

func init() {
	flag.BoolVar(&debug, "debug", false, "enable debugging")
	flag.BoolVar(&quiet, "quiet", false, "don't output anything")
	flag.BoolVar(&fxmp, "xmp", false, "re-serialize the parsed document")
	flag.BoolVar(&forig, "orig", false, "output the embedded packet verbatim")
	flag.BoolVar(&fscan, "scan", false, "bypass container handlers and scan raw bytes")
}

func fail(v interface{}) {
	fmt.Printf("Error: %s in file %s\n", v, flag.Arg(0))
	os.Exit(1)
}

func out(b []byte) {
	if quiet {
		return
	}
	fmt.Println(string(b))
}

func main() {
	flag.Parse()

	if debug {
		xmp.SetLogLevel(xmp.LogLevelDebug)
	}
	if flag.NArg() == 0 {
		fmt.Println("Usage: xmpdump [options] file")
		flag.PrintDefaults()
		os.Exit(1)
	}

	// output original when no option is selected
	if !fxmp && !quiet {
		forig = true
	}

	filename := flag.Arg(0)
	data, err := os.ReadFile(filename)
	if err != nil {
		fail(err)
	}

	var packet []byte
	switch {
	case filepath.Ext(filename) == ".xmp":
		packet = data
	default:
		f, err := format.ReadBytes(data, &format.ReadOptions{
			OnlyXMP:           true,
			UsePacketScanning: fscan,
		})
		if err != nil {
			fail(err)
		}
		if name, ok := format.DetectFormat(data); ok && !quiet {
			fmt.Fprintf(os.Stderr, "format: %s\n", name)
		}
		packet = f.PacketBytes()
	}
	if packet == nil {
		fmt.Fprintln(os.Stderr, "no XMP packet")
		return
	}

	if forig {
		out(packet)
	}
	if fxmp {
		d, err := xmp.Parse(packet)
		if err != nil {
			fail(err)
		}
		b, err := d.Serialize()
		if err != nil {
			fail(err)
		}
		out(b)
	}
}

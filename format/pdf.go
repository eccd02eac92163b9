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
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"

	"rsc.io/pdf"
)

// PDF keeps XMP in the document catalog's /Metadata stream (Subtype /XML).
// Reading goes through the rsc.io/pdf xref machinery, which resolves both
// xref tables and cross-reference streams and decodes stream filters.
// Writing appends an incremental update section: a rewritten catalog, the
// metadata stream and an xref addition of the same kind the document uses.
type pdfHandler struct{}

func (h *pdfHandler) Name() string { return "pdf" }

func (h *pdfHandler) Extensions() []string { return []string{".pdf"} }

var pdfMagic = []byte("%PDF-")

func (h *pdfHandler) CanHandle(prefix []byte) bool {
	return hasPrefix(prefix, pdfMagic)
}

func (h *pdfHandler) ReadXMP(src []byte) (packet []byte, err error) {
	defer func() {
		// the pdf reader panics on some malformed structures
		if r := recover(); r != nil {
			packet, err = nil, containerErr("pdf", "malformed document: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(src), int64(len(src)))
	if err != nil {
		return nil, containerErr("pdf", "open: %v", err)
	}
	meta := r.Trailer().Key("Root").Key("Metadata")
	if meta.Kind() != pdf.Stream {
		return nil, nil
	}
	rc := meta.Reader()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, containerErr("pdf", "metadata stream: %v", err)
	}
	return data, nil
}

var (
	pdfObjRe     = regexp.MustCompile(`(\d+)\s+(\d+)\s+obj\b`)
	pdfCatalogRe = regexp.MustCompile(`/Type\s*/Catalog\b`)
	pdfMetaRefRe = regexp.MustCompile(`/Metadata\s+(\d+)\s+(\d+)\s+R\b`)
	pdfSizeRe    = regexp.MustCompile(`/Size\s+(\d+)`)
	startxrefRe  = regexp.MustCompile(`startxref\s+(\d+)\s*%%EOF`)
)

type pdfCatalog struct {
	num, gen int
	dict     []byte // the << ... >> source
	metaNum  int    // referenced metadata object, -1 when absent
}

// findCatalog scans raw object headers for the newest /Type /Catalog
// object. Incremental updates append, so the last match wins.
func findCatalog(src []byte) (*pdfCatalog, int, error) {
	var cat *pdfCatalog
	maxObj := 0
	for _, m := range pdfObjRe.FindAllSubmatchIndex(src, -1) {
		num, _ := strconv.Atoi(string(src[m[2]:m[3]]))
		gen, _ := strconv.Atoi(string(src[m[4]:m[5]]))
		if num > maxObj {
			maxObj = num
		}
		bodyEnd := bytes.Index(src[m[1]:], []byte("endobj"))
		if bodyEnd < 0 {
			continue
		}
		body := src[m[1] : m[1]+bodyEnd]
		if !pdfCatalogRe.Match(body) {
			continue
		}
		c := &pdfCatalog{num: num, gen: gen, metaNum: -1}
		open := bytes.Index(body, []byte("<<"))
		close := bytes.LastIndex(body, []byte(">>"))
		if open < 0 || close < 0 || close < open {
			continue
		}
		c.dict = body[open : close+2]
		if ref := pdfMetaRefRe.FindSubmatch(c.dict); ref != nil {
			c.metaNum, _ = strconv.Atoi(string(ref[1]))
		}
		cat = c
	}
	if cat == nil {
		return nil, 0, containerErr("pdf", "no document catalog")
	}
	if sz := pdfSizeRe.FindAllSubmatch(src, -1); len(sz) > 0 {
		if n, err := strconv.Atoi(string(sz[len(sz)-1][1])); err == nil && n > maxObj {
			maxObj = n - 1
		}
	}
	return cat, maxObj, nil
}

func lastStartxref(src []byte) (int, error) {
	ms := startxrefRe.FindAllSubmatch(src, -1)
	if len(ms) == 0 {
		return 0, containerErr("pdf", "missing startxref")
	}
	return strconv.Atoi(string(ms[len(ms)-1][1]))
}

// usesXrefStream reports whether the active cross-reference section is a
// stream rather than a table.
func usesXrefStream(src []byte, xrefOff int) bool {
	if xrefOff < 0 || xrefOff >= len(src) {
		return false
	}
	tail := bytes.TrimLeft(src[xrefOff:], " \t\r\n")
	return !bytes.HasPrefix(tail, []byte("xref"))
}

func (h *pdfHandler) WriteXMP(src, packet []byte) ([]byte, error) {
	if packet == nil {
		return h.RemoveXMP(src)
	}
	return h.update(src, packet)
}

// RemoveXMP rewrites the catalog without its /Metadata key.
func (h *pdfHandler) RemoveXMP(src []byte) ([]byte, error) {
	return h.update(src, nil)
}

func (h *pdfHandler) update(src, packet []byte) ([]byte, error) {
	if !bytes.HasPrefix(src, pdfMagic) {
		return nil, containerErr("pdf", "missing %%PDF header")
	}
	cat, maxObj, err := findCatalog(src)
	if err != nil {
		return nil, err
	}
	if packet == nil && cat.metaNum < 0 {
		return clone(src), nil
	}
	prevXref, err := lastStartxref(src)
	if err != nil {
		return nil, err
	}

	metaNum := cat.metaNum
	if packet != nil && metaNum < 0 {
		maxObj++
		metaNum = maxObj
	}

	// updated catalog dictionary
	dict := clone(cat.dict)
	switch {
	case packet == nil:
		dict = pdfMetaRefRe.ReplaceAll(dict, nil)
	case pdfMetaRefRe.Match(dict):
		dict = pdfMetaRefRe.ReplaceAll(dict, []byte(fmt.Sprintf("/Metadata %d 0 R", metaNum)))
	default:
		end := bytes.LastIndex(dict, []byte(">>"))
		ins := []byte(fmt.Sprintf(" /Metadata %d 0 R ", metaNum))
		dict = append(dict[:end:end], append(ins, dict[end:]...)...)
	}

	out := clone(src)
	if len(out) > 0 && out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}

	var entries []xrefEntry

	catOff := len(out)
	out = append(out, []byte(fmt.Sprintf("%d %d obj\n", cat.num, cat.gen))...)
	out = append(out, dict...)
	out = append(out, []byte("\nendobj\n")...)
	entries = append(entries, xrefEntry{cat.num, cat.gen, catOff})

	if packet != nil {
		metaOff := len(out)
		out = append(out, []byte(fmt.Sprintf(
			"%d 0 obj\n<< /Type /Metadata /Subtype /XML /Length %d >>\nstream\n", metaNum, len(packet)))...)
		out = append(out, packet...)
		out = append(out, []byte("\nendstream\nendobj\n")...)
		entries = append(entries, xrefEntry{metaNum, 0, metaOff})
	}

	if usesXrefStream(src, prevXref) {
		// cross-reference stream of the same kind
		xNum := maxObj + 1
		size := xNum + 1
		entries = append(entries, xrefEntry{xNum, 0, 0})
		sortXref(entries)
		xOff := len(out)
		for i := range entries {
			if entries[i].num == xNum {
				entries[i].off = xOff
			}
		}
		var data bytes.Buffer
		var index bytes.Buffer
		for _, e := range entries {
			fmt.Fprintf(&index, "%d 1 ", e.num)
			data.WriteByte(1) // in-use entry
			data.Write([]byte{
				byte(e.off >> 24), byte(e.off >> 16), byte(e.off >> 8), byte(e.off),
				byte(e.gen >> 8), byte(e.gen),
			})
		}
		out = append(out, []byte(fmt.Sprintf(
			"%d 0 obj\n<< /Type /XRef /Size %d /Root %d %d R /Prev %d /W [1 4 2] /Index [%s] /Length %d >>\nstream\n",
			xNum, size, cat.num, cat.gen, prevXref, bytes.TrimSpace(index.Bytes()), data.Len()))...)
		out = append(out, data.Bytes()...)
		out = append(out, []byte("\nendstream\nendobj\n")...)
		out = append(out, []byte(fmt.Sprintf("startxref\n%d\n%%%%EOF\n", xOff))...)
		return out, nil
	}

	sortXref(entries)
	size := maxObj + 1
	xOff := len(out)
	out = append(out, []byte("xref\n")...)
	for _, e := range entries {
		out = append(out, []byte(fmt.Sprintf("%d 1\n%010d %05d n \n", e.num, e.off, e.gen))...)
	}
	out = append(out, []byte(fmt.Sprintf(
		"trailer\n<< /Size %d /Root %d %d R /Prev %d >>\nstartxref\n%d\n%%%%EOF\n",
		size, cat.num, cat.gen, prevXref, xOff))...)
	return out, nil
}

type xrefEntry struct {
	num, gen, off int
}

func sortXref(entries []xrefEntry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].num < entries[j].num })
}

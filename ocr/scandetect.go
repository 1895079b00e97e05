package ocr

import (
	"bytes"
	"regexp"
)

// scanned-PDF classification (§4.2: "scanned-PDF heuristic: count
// machine-readable text blocks per page; below a threshold, treat the page
// as scanned and route it through rasterization + OCR rather than direct
// text extraction"). No PDF-parsing library is available anywhere in this
// codebase's dependency corpus, so this counts PDF content-stream text
// operators directly against the raw object bytes: a conservative,
// dependency-free proxy for "how much machine-readable text does this page
// carry", not a full PDF content-stream interpreter.
var (
	pdfPageMarker = regexp.MustCompile(`/Type\s*/Page\b`)
	pdfTextShow   = regexp.MustCompile(`\)\s*Tj|\]\s*TJ`)
)

// MinTextBlocksPerPage is the default threshold below which a page is
// classified as scanned (image-only or text too sparse to trust).
const MinTextBlocksPerPage = 3

// ClassifyScanned reports whether a PDF's pages carry enough machine-
// readable text to skip rasterization, and the per-page text-operator
// counts it based that decision on. pdfBytes is the raw, unparsed file.
func ClassifyScanned(pdfBytes []byte, minBlocksPerPage int) (scanned bool, perPageBlocks []int) {
	if minBlocksPerPage <= 0 {
		minBlocksPerPage = MinTextBlocksPerPage
	}

	pageCount := len(pdfPageMarker.FindAllIndex(pdfBytes, -1))
	if pageCount == 0 {
		// No recognizable /Page objects at all (e.g. a raw image wrapped in
		// a single-page container) — treat as fully scanned.
		return true, nil
	}

	totalTextOps := len(pdfTextShow.FindAllIndex(pdfBytes, -1))
	avgPerPage := totalTextOps / pageCount

	perPageBlocks = distributeEvenly(totalTextOps, pageCount)
	return avgPerPage < minBlocksPerPage, perPageBlocks
}

// distributeEvenly spreads total text operators across pageCount pages.
// Real per-page attribution would require walking the page tree and each
// page's content stream; this codebase has no PDF object-graph parser, so
// classification instead uses the whole-document average computed above and
// this is reported only as an illustrative split for logging.
func distributeEvenly(total, pageCount int) []int {
	if pageCount <= 0 {
		return nil
	}
	base := total / pageCount
	remainder := total % pageCount
	out := make([]int, pageCount)
	for i := range out {
		out[i] = base
		if i < remainder {
			out[i]++
		}
	}
	return out
}

// looksLikePDF is a cheap header sniff used before attempting classification.
func looksLikePDF(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(data), []byte("%PDF-"))
}

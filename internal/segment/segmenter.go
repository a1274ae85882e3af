package segment

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// SegmentationError reports an unreadable or text-free PDF. It is fatal for
// the document: no zones or fields are produced.
type SegmentationError struct {
	Reason string
	Err    error
}

func (e *SegmentationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("segmentation failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("segmentation failed: %s", e.Reason)
}

func (e *SegmentationError) Unwrap() error { return e.Err }

// Segmenter turns raw PDF bytes into a Document with populated zones and
// metadata. Anchor heuristics are pluggable per detector.
type Segmenter struct {
	detectors []AnchorDetector
	meta      *metadataExtractor
	logger    *slog.Logger
}

// NewSegmenter creates a segmenter. With no detectors the stock academic
// paper set is used.
func NewSegmenter(logger *slog.Logger, detectors ...AnchorDetector) *Segmenter {
	if logger == nil {
		logger = slog.Default()
	}
	if len(detectors) == 0 {
		detectors = DefaultDetectors()
	}
	return &Segmenter{
		detectors: detectors,
		meta:      newMetadataExtractor(),
		logger:    logger,
	}
}

// Segment parses raw PDF bytes into a Document. It fails with a
// *SegmentationError when the PDF is unreadable or carries no text layer;
// missing anchors and missing metadata are not errors.
func (s *Segmenter) Segment(raw []byte, id string) (*Document, error) {
	if len(raw) == 0 {
		return nil, &SegmentationError{Reason: "empty input"}
	}

	// Structural sanity check before attempting text extraction.
	pageCount, err := api.PageCount(bytes.NewReader(raw), nil)
	if err != nil {
		return nil, &SegmentationError{Reason: "unreadable PDF", Err: err}
	}
	if pageCount == 0 {
		return nil, &SegmentationError{Reason: "PDF has no pages"}
	}

	pages, err := extractPageText(raw)
	if err != nil {
		return nil, &SegmentationError{Reason: "text extraction failed", Err: err}
	}

	lines, pageOfLine := normalizeLines(pages)
	if !hasText(lines) {
		return nil, &SegmentationError{Reason: "no extractable text layer"}
	}

	doc := &Document{
		ID:    id,
		Pages: pages,
		Lines: lines,
	}
	doc.Zones = s.assembleZones(lines, pageOfLine)

	if z, ok := doc.Zone(ZonePreIntro); ok {
		doc.Meta = s.meta.extract(z.Text, firstPageText(pages))
	}

	s.logger.Debug("document segmented",
		"id", id,
		"pages", pageCount,
		"lines", len(lines),
		"abstract_empty", zoneEmpty(doc, ZoneAbstract),
		"end_matter_empty", zoneEmpty(doc, ZoneEndMatter))

	return doc, nil
}

// assembleZones partitions the line slice into the four canonical zones.
// Boundaries are derived from detected anchors; a missing anchor collapses
// its zone to an empty span and the text flows to the neighbor, with body
// absorbing ties.
func (s *Segmenter) assembleZones(lines []string, pageOfLine []int) []Zone {
	abstractIdx := s.detect(AnchorAbstract, lines)
	introIdx := s.detect(AnchorIntro, lines)
	refIdx := s.detect(AnchorReferences, lines)

	total := len(lines)

	// Pre-intro ends at the first recognized heading after the title block.
	preEnd := 0
	switch {
	case abstractIdx >= 0 && introIdx >= 0:
		preEnd = min(abstractIdx, introIdx)
	case abstractIdx >= 0:
		preEnd = abstractIdx
	case introIdx >= 0:
		preEnd = introIdx
	}

	// End matter starts at the references anchor; without one the body
	// runs to the end of the document.
	endStart := total
	if refIdx >= 0 && refIdx >= preEnd {
		endStart = refIdx
	}

	bodyStart := s.bodyStart(lines, abstractIdx, introIdx, preEnd, endStart)

	// Boundaries must be monotonic so the zones partition the document.
	bodyStart = clamp(bodyStart, preEnd, endStart)

	mk := func(name string, start, end int) Zone {
		z := Zone{Name: name, StartLine: start, EndLine: end}
		if start < end {
			z.Text = strings.Join(lines[start:end], "\n")
			z.StartPage = pageOfLine[start] + 1
			z.EndPage = pageOfLine[end-1] + 1
		}
		return z
	}

	return []Zone{
		mk(ZonePreIntro, 0, preEnd),
		mk(ZoneAbstract, preEnd, bodyStart),
		mk(ZoneBody, bodyStart, endStart),
		mk(ZoneEndMatter, endStart, total),
	}
}

// bodyStart resolves where the body zone begins. Preference order: the
// introduction anchor, then the first section-start line after the abstract
// heading, then the end of the abstract's first paragraph (blank line).
// With no abstract at all the abstract zone is empty and the body starts at
// the pre-intro boundary.
func (s *Segmenter) bodyStart(lines []string, abstractIdx, introIdx, preEnd, endStart int) int {
	if introIdx >= 0 {
		return introIdx
	}
	if abstractIdx < 0 {
		return preEnd
	}

	if idx := firstSectionStartAfter(lines, abstractIdx); idx >= 0 && idx <= endStart {
		return idx
	}

	// Abstract heading plus one contiguous paragraph; the trailing blank
	// line and everything after belong to the body.
	for j := abstractIdx + 1; j < endStart; j++ {
		if lines[j] == "" {
			return j
		}
	}
	return endStart
}

func (s *Segmenter) detect(name string, lines []string) int {
	for _, d := range s.detectors {
		if d.Name() == name {
			return d.Detect(lines)
		}
	}
	return -1
}

// extractPageText pulls the plain text layer of each page.
func extractPageText(raw []byte) ([]string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	numPages := reader.NumPage()
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page is tolerated; its text is empty.
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// normalizeLines splits page text into trimmed lines and records the source
// page index of every line.
func normalizeLines(pages []string) (lines []string, pageOfLine []int) {
	for pageIdx, pageText := range pages {
		for _, line := range strings.Split(pageText, "\n") {
			lines = append(lines, strings.TrimSpace(line))
			pageOfLine = append(pageOfLine, pageIdx)
		}
	}
	return lines, pageOfLine
}

func hasText(lines []string) bool {
	for _, l := range lines {
		if l != "" {
			return true
		}
	}
	return false
}

func firstPageText(pages []string) string {
	if len(pages) == 0 {
		return ""
	}
	return pages[0]
}

func zoneEmpty(doc *Document, name string) bool {
	z, _ := doc.Zone(name)
	return z.Empty()
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

package segment

import (
	"errors"
	"strings"
	"testing"
)

// paperLines is a typical well-formed paper layout.
var paperLines = []string{
	"Measuring Learning Outcomes at Scale",
	"Jane Doe, John Smith",
	"Stanford University",
	"Abstract",
	"We measure learning outcomes across cohorts.",
	"Results indicate strong effects.",
	"1 Introduction",
	"Learning outcomes are hard to measure.",
	"2 Methods",
	"We used a longitudinal design.",
	"References",
	"[1] Doe, J. (2020).",
}

func segmentLines(t *testing.T, lines []string) []Zone {
	t.Helper()
	s := NewSegmenter(nil)
	pageOf := make([]int, len(lines))
	return s.assembleZones(lines, pageOf)
}

// checkPartition asserts the coverage + disjointness property: the four
// zones are contiguous, non-overlapping, and cover every line.
func checkPartition(t *testing.T, zones []Zone, total int) {
	t.Helper()
	if len(zones) != 4 {
		t.Fatalf("expected 4 zones, got %d", len(zones))
	}
	wantNames := ZoneNames()
	cursor := 0
	for i, z := range zones {
		if z.Name != wantNames[i] {
			t.Errorf("zone %d name = %q, want %q", i, z.Name, wantNames[i])
		}
		if z.StartLine != cursor {
			t.Errorf("zone %q starts at %d, want %d", z.Name, z.StartLine, cursor)
		}
		if z.EndLine < z.StartLine {
			t.Errorf("zone %q has inverted span [%d,%d)", z.Name, z.StartLine, z.EndLine)
		}
		cursor = z.EndLine
	}
	if cursor != total {
		t.Errorf("zones cover %d lines, want %d", cursor, total)
	}
}

func TestAssembleZonesWellFormedPaper(t *testing.T) {
	zones := segmentLines(t, paperLines)
	checkPartition(t, zones, len(paperLines))

	pre, abstract, body, end := zones[0], zones[1], zones[2], zones[3]

	if !strings.Contains(pre.Text, "Jane Doe") {
		t.Errorf("pre_intro missing author line: %q", pre.Text)
	}
	if !strings.HasPrefix(abstract.Text, "Abstract") {
		t.Errorf("abstract does not start at heading: %q", abstract.Text)
	}
	if !strings.Contains(abstract.Text, "strong effects") {
		t.Errorf("abstract missing content: %q", abstract.Text)
	}
	if !strings.Contains(body.Text, "1 Introduction") || !strings.Contains(body.Text, "longitudinal") {
		t.Errorf("body missing content: %q", body.Text)
	}
	if !strings.HasPrefix(end.Text, "References") {
		t.Errorf("end_matter does not start at references: %q", end.Text)
	}
}

func TestAssembleZonesCoverageEqualsFullText(t *testing.T) {
	cases := [][]string{
		paperLines,
		{"Title only", "no structure at all", "just text"},
		{"Title", "Abstract", "content", "more content"},
		{"Title", "1 Introduction", "body text", "References", "[1]"},
	}

	for _, lines := range cases {
		zones := segmentLines(t, lines)
		checkPartition(t, zones, len(lines))

		var parts []string
		for _, z := range zones {
			if z.StartLine < z.EndLine {
				parts = append(parts, z.Text)
			}
		}
		if got, want := strings.Join(parts, "\n"), strings.Join(lines, "\n"); got != want {
			t.Errorf("zone concatenation mismatch:\ngot:  %q\nwant: %q", got, want)
		}
	}
}

func TestAssembleZonesNoAbstractHeading(t *testing.T) {
	lines := []string{
		"Title",
		"Authors",
		"1 Introduction",
		"Some body text.",
		"References",
		"[1]",
	}
	zones := segmentLines(t, lines)
	checkPartition(t, zones, len(lines))

	abstract := zones[1]
	if abstract.Text != "" {
		t.Errorf("abstract zone should be empty, got %q", abstract.Text)
	}
	if !strings.Contains(zones[2].Text, "Some body text.") {
		t.Errorf("body missing content: %q", zones[2].Text)
	}
}

func TestAssembleZonesNoAnchorsAtAll(t *testing.T) {
	// Multiple anchors missing simultaneously: body absorbs everything.
	lines := []string{"random text", "more text", "even more"}
	zones := segmentLines(t, lines)
	checkPartition(t, zones, len(lines))

	if zones[0].Text != "" || zones[1].Text != "" || zones[3].Text != "" {
		t.Errorf("expected only body to carry text: %+v", zones)
	}
	if zones[2].Text != strings.Join(lines, "\n") {
		t.Errorf("body should absorb whole document, got %q", zones[2].Text)
	}
}

func TestAssembleZonesNoReferences(t *testing.T) {
	lines := []string{
		"Title",
		"Abstract",
		"Study summary.",
		"1 Introduction",
		"Body text to the end.",
	}
	zones := segmentLines(t, lines)
	checkPartition(t, zones, len(lines))

	if zones[3].Text != "" {
		t.Errorf("end_matter should be empty, got %q", zones[3].Text)
	}
	if !strings.Contains(zones[2].Text, "to the end") {
		t.Errorf("body should absorb trailing text: %q", zones[2].Text)
	}
}

func TestAssembleZonesAbstractBoundedByKeywords(t *testing.T) {
	lines := []string{
		"Title",
		"Abstract",
		"We present results.",
		"Keywords: education, measurement",
		"Body paragraph without intro heading.",
		"References",
		"[1]",
	}
	zones := segmentLines(t, lines)
	checkPartition(t, zones, len(lines))

	if strings.Contains(zones[1].Text, "Keywords") {
		t.Errorf("abstract should end before keywords: %q", zones[1].Text)
	}
	if !strings.Contains(zones[2].Text, "Keywords") {
		t.Errorf("keywords line should flow to body: %q", zones[2].Text)
	}
}

func TestSegmentRejectsUnreadableInput(t *testing.T) {
	s := NewSegmenter(nil)

	var segErr *SegmentationError

	if _, err := s.Segment(nil, "rec1"); !errors.As(err, &segErr) {
		t.Errorf("expected SegmentationError for empty input, got %v", err)
	}
	if _, err := s.Segment([]byte("not a pdf at all"), "rec2"); !errors.As(err, &segErr) {
		t.Errorf("expected SegmentationError for garbage input, got %v", err)
	}
}

func TestDocumentZoneLookup(t *testing.T) {
	lines := paperLines
	doc := &Document{ID: "d1", Lines: lines}
	doc.Zones = segmentLines(t, lines)

	for _, name := range ZoneNames() {
		if _, ok := doc.Zone(name); !ok {
			t.Errorf("zone %q missing", name)
		}
	}
	if _, ok := doc.Zone("nope"); ok {
		t.Error("unexpected zone hit")
	}
	if doc.FullText() != strings.Join(lines, "\n") {
		t.Error("FullText mismatch")
	}
}

// Package segment splits academic PDFs into named logical zones and
// extracts lightweight bibliographic metadata.
package segment

import "strings"

// Canonical zone names. Every segmented document carries exactly these four
// zones, in this order, even when some are empty.
const (
	ZonePreIntro  = "pre_intro"
	ZoneAbstract  = "abstract"
	ZoneBody      = "body"
	ZoneEndMatter = "end_matter"
)

// ZoneNames returns the canonical zone names in document order.
func ZoneNames() []string {
	return []string{ZonePreIntro, ZoneAbstract, ZoneBody, ZoneEndMatter}
}

// KnownZone reports whether name is one of the canonical zone names.
func KnownZone(name string) bool {
	switch name {
	case ZonePreIntro, ZoneAbstract, ZoneBody, ZoneEndMatter:
		return true
	}
	return false
}

// Zone is a named contiguous span of document text. StartLine/EndLine are
// half-open line indices into the document's normalized line slice;
// StartPage/EndPage are 1-indexed source pages (0 when the zone is empty).
type Zone struct {
	Name      string `json:"name"`
	Text      string `json:"text"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	StartPage int    `json:"start_page,omitempty"`
	EndPage   int    `json:"end_page,omitempty"`
}

// Empty reports whether the zone contains no text.
func (z Zone) Empty() bool {
	return strings.TrimSpace(z.Text) == ""
}

// Metadata holds bibliographic details recovered from the front matter.
// Missing values are left empty; metadata extraction never fails a document.
type Metadata struct {
	Year         int      `json:"year,omitempty"`
	DOI          string   `json:"doi,omitempty"`
	ArxivID      string   `json:"arxiv_id,omitempty"`
	Outlet       string   `json:"outlet,omitempty"`
	OpenAccess   bool     `json:"open_access,omitempty"`
	Affiliations []string `json:"affiliations,omitempty"`
}

// Document is one segmented PDF. It is immutable after segmentation and
// owned exclusively by one processing run.
type Document struct {
	ID    string   `json:"id"`
	Pages []string `json:"-"`
	Lines []string `json:"-"`
	Zones []Zone   `json:"zones"`
	Meta  Metadata `json:"meta"`
}

// Zone returns the named zone. The four canonical zones are always present,
// so lookups for known names never miss.
func (d *Document) Zone(name string) (Zone, bool) {
	for _, z := range d.Zones {
		if z.Name == name {
			return z, true
		}
	}
	return Zone{}, false
}

// FullText returns the normalized document text: the concatenation of the
// four zone spans, which by construction equals the joined line slice.
func (d *Document) FullText() string {
	return strings.Join(d.Lines, "\n")
}

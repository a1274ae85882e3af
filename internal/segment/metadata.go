package segment

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	doiPattern    = regexp.MustCompile(`\b10\.\d{4,9}/[-._;()/:A-Za-z0-9]+\b`)
	arxivPattern  = regexp.MustCompile(`(?i)arxiv[:\s]*(\d{4}\.\d{4,5}(?:v\d+)?)`)
	yearPattern   = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	outletPattern = regexp.MustCompile(`(?i)publication in ([A-Za-z &().\-]+)`)
)

// openAccessMarkers flag license text identifying a freely available paper.
var openAccessMarkers = []string{
	"creative commons",
	"cc by",
	"cc-by",
	"open access article",
	"open-access article",
	"open access",
	"distributed under the terms of the",
	"this is an open access article",
	"open access funded",
	"public domain",
	"u.s. government work",
}

// publicationCues flag lines likely to carry the publication year.
var publicationCues = []string{
	"published",
	"publication",
	"copyright",
	"©",
	"(c)",
	"accepted",
	"received",
	"preprint",
	"arxiv",
	"vol.",
	"volume",
}

// defaultInstitutions is the stock known-institution list used for
// affiliation matching. Callers can extend it per run.
var defaultInstitutions = []string{
	"Massachusetts Institute of Technology",
	"Stanford University",
	"Harvard University",
	"University of California",
	"Carnegie Mellon University",
	"University of Oxford",
	"University of Cambridge",
	"ETH Zurich",
	"Max Planck Institute",
	"National Institutes of Health",
	"Digital Promise",
}

// metadataExtractor applies regex heuristics over front-matter text.
// Failure to find a value is never an error; fields stay empty.
type metadataExtractor struct {
	institutions []string
}

func newMetadataExtractor() *metadataExtractor {
	return &metadataExtractor{institutions: defaultInstitutions}
}

// AddInstitutions extends the known-institution list used for affiliation
// matching on the segmenter's metadata extractor.
func (s *Segmenter) AddInstitutions(names ...string) {
	s.meta.institutions = append(s.meta.institutions, names...)
}

// extract scans pre-intro text (and the first page, a strong signal zone
// for identifiers) for year, DOI, arXiv id, publication outlet, open-access
// markers, and affiliations.
func (m *metadataExtractor) extract(preIntro, firstPage string) Metadata {
	meta := Metadata{
		Year:         detectYear(preIntro),
		Affiliations: m.detectAffiliations(preIntro),
	}

	if match := outletPattern.FindStringSubmatch(preIntro); match != nil {
		meta.Outlet = strings.TrimSpace(match[1])
	}

	// Identifiers are searched in a safe zone that excludes references and
	// end matter, where cited DOIs would cause false positives.
	idText := preIntro + "\n" + firstPage
	meta.DOI = doiPattern.FindString(idText)
	if match := arxivPattern.FindStringSubmatch(idText); match != nil {
		meta.ArxivID = match[1]
	}

	// An arXiv posting is open access even without license text.
	meta.OpenAccess = detectOpenAccess(idText) || meta.ArxivID != ""

	return meta
}

// detectOpenAccess reports whether the text carries a license marker.
func detectOpenAccess(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range openAccessMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// detectYear returns a 4-digit year found on a line that also carries a
// publication cue. Lines without a cue are ignored to avoid picking up
// page numbers or grant identifiers.
func detectYear(text string) int {
	for _, line := range strings.Split(text, "\n") {
		lower := strings.ToLower(line)
		cued := false
		for _, cue := range publicationCues {
			if strings.Contains(lower, cue) {
				cued = true
				break
			}
		}
		if !cued {
			continue
		}
		if match := yearPattern.FindString(line); match != "" {
			year, err := strconv.Atoi(match)
			if err == nil {
				return year
			}
		}
	}
	return 0
}

// detectAffiliations matches front-matter text against the known-institution
// list, preserving list order and deduplicating.
func (m *metadataExtractor) detectAffiliations(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, inst := range m.institutions {
		if strings.Contains(lower, strings.ToLower(inst)) {
			found = append(found, inst)
		}
	}
	return found
}

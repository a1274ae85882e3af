package segment

import (
	"regexp"
	"strings"
)

// AnchorDetector locates a structural anchor line within a document.
// Implementations are independent so heuristics can be unit tested and
// swapped without touching zone assembly.
type AnchorDetector interface {
	// Name identifies the anchor (e.g. "abstract", "references").
	Name() string

	// Detect returns the index of the first matching line, or -1.
	Detect(lines []string) int
}

// Anchor names used by the default detector set.
const (
	AnchorAbstract   = "abstract"
	AnchorIntro      = "introduction"
	AnchorReferences = "references"
)

// simplifyPattern collapses whitespace and decoration so headings like
// "== ABSTRACT ==" still match their plain form.
var simplifyPattern = regexp.MustCompile(`[=\s]+`)

// patternDetector matches any of a list of anchored regexes against each
// line, both raw (lowercased) and in simplified form.
type patternDetector struct {
	name     string
	patterns []*regexp.Regexp
}

// NewPatternDetector builds an AnchorDetector from regex source strings.
// Patterns are matched case-insensitively and anchored at line start.
func NewPatternDetector(name string, patterns []string) AnchorDetector {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return &patternDetector{name: name, patterns: compiled}
}

func (d *patternDetector) Name() string { return d.name }

func (d *patternDetector) Detect(lines []string) int {
	for idx, line := range lines {
		raw := strings.ToLower(line)
		simple := simplifyPattern.ReplaceAllString(raw, "")
		for _, pat := range d.patterns {
			if pat.MatchString(raw) || pat.MatchString(simple) {
				return idx
			}
		}
	}
	return -1
}

// DefaultDetectors returns the stock anchor detectors for academic papers:
// abstract heading, introduction heading, and references/bibliography
// heading. The title block is implicit (document start).
func DefaultDetectors() []AnchorDetector {
	return []AnchorDetector{
		NewPatternDetector(AnchorAbstract, []string{
			`^abstract[:\s]*$`,
			`^abstract[\s\x{2013}\x{2014}-].+`,
			`^summary[:\s]*$`,
			`^abstract\s*[:\-\x{2013}\x{2014}]\s*.+$`,
			`^summary\s*[:\-\x{2013}\x{2014}]\s*.+$`,
			`^#+\s*abstract\s*$`,
			`^\*\*abstract\*\*$`,
		}),
		NewPatternDetector(AnchorIntro, []string{
			`^[0-9]+\.?\s*introduction$`,
			`^[ivxlcdm]+\.?\s*introduction$`,
			`^section\s*[0-9]+[:.]?\s*introduction$`,
			`^introduction$`,
			`^background$`,
		}),
		NewPatternDetector(AnchorReferences, []string{
			`^references?$`,
			`^literature\s+cited$`,
			`^works\s+cited$`,
			`^bibliography$`,
			`^acknowledg(?:e?ments)?$`,
			`^appendix$`,
			`^supplementary$`,
			`^data\s+availability$`,
			`^conflicts\s+of\s+interest$`,
			`^funding$`,
		}),
	}
}

// sectionStartPatterns recognize the start of a numbered or keyword section
// used to bound the abstract when no introduction heading exists.
var sectionStartPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^keywords?\b`),
	regexp.MustCompile(`^author\s+keywords?\b`),
	regexp.MustCompile(`^key\s*words?\b`),
	regexp.MustCompile(`^index\s+terms?\b`),
	regexp.MustCompile(`^jel\s+classification\b`),
	regexp.MustCompile(`^msc\s+classification\b`),
	regexp.MustCompile(`^[0-9]+\s*[.)]?\s+[A-Z].*`),
	regexp.MustCompile(`^(?:[ivxlcdm]+)\s*[.)]?\s+[A-Z].*`),
}

// firstSectionStartAfter returns the index of the first section-start line
// strictly after start, or -1.
func firstSectionStartAfter(lines []string, start int) int {
	for idx := start + 1; idx < len(lines); idx++ {
		lower := strings.ToLower(lines[idx])
		for _, pat := range sectionStartPatterns {
			// Numbered-heading patterns are case sensitive on the
			// heading word; keyword patterns match lowercased text.
			if pat.MatchString(lower) || pat.MatchString(lines[idx]) {
				return idx
			}
		}
	}
	return -1
}

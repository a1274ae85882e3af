package segment

import "testing"

func TestExtractMetadata(t *testing.T) {
	ex := newMetadataExtractor()

	preIntro := "Measuring Learning Outcomes\n" +
		"Jane Doe\n" +
		"Stanford University\n" +
		"Published in Journal of Learning Science, 2021\n" +
		"doi: 10.1234/jls.2021.042"
	firstPage := "arXiv:2101.04567v2 [cs.CY] 12 Jan 2021"

	meta := ex.extract(preIntro, firstPage)

	if meta.Year != 2021 {
		t.Errorf("Year = %d, want 2021", meta.Year)
	}
	if meta.DOI != "10.1234/jls.2021.042" {
		t.Errorf("DOI = %q", meta.DOI)
	}
	if meta.ArxivID != "2101.04567v2" {
		t.Errorf("ArxivID = %q", meta.ArxivID)
	}
	if len(meta.Affiliations) != 1 || meta.Affiliations[0] != "Stanford University" {
		t.Errorf("Affiliations = %v", meta.Affiliations)
	}
	if !meta.OpenAccess {
		t.Error("an arXiv posting should count as open access")
	}
}

func TestExtractMetadataOutlet(t *testing.T) {
	ex := newMetadataExtractor()

	preIntro := "A Study of Things\n" +
		"Accepted for publication in Nature Communications, May 2020"
	meta := ex.extract(preIntro, "")

	if meta.Outlet != "Nature Communications" {
		t.Errorf("Outlet = %q, want %q", meta.Outlet, "Nature Communications")
	}
}

func TestDetectOpenAccess(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"This is an open access article distributed under CC BY 4.0.", true},
		{"© 2021 The Authors. Creative Commons Attribution License.", true},
		{"This work is in the public domain.", true},
		{"All rights reserved. Reproduction prohibited.", false},
	}
	for _, tt := range tests {
		if got := detectOpenAccess(tt.text); got != tt.want {
			t.Errorf("detectOpenAccess(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestExtractMetadataMissingIsNotAnError(t *testing.T) {
	ex := newMetadataExtractor()

	meta := ex.extract("A title\nAn author", "page one text")

	if meta.Year != 0 || meta.DOI != "" || meta.ArxivID != "" || meta.Outlet != "" || meta.OpenAccess {
		t.Errorf("expected empty metadata, got %+v", meta)
	}
	if len(meta.Affiliations) != 0 {
		t.Errorf("expected no affiliations, got %v", meta.Affiliations)
	}
}

func TestDetectYearRequiresPublicationCue(t *testing.T) {
	// A bare 4-digit number (page id, grant number) must not be taken
	// as the publication year.
	if got := detectYear("Room 2044\nGrant 1984"); got != 0 {
		t.Errorf("detectYear = %d, want 0", got)
	}
	if got := detectYear("© 2019 The Authors"); got != 2019 {
		t.Errorf("detectYear = %d, want 2019", got)
	}
}

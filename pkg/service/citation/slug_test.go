package citation

import "testing"

func TestSlug_Basic(t *testing.T) {
	s := NewSlugger()

	cases := []struct {
		title string
		want  string
	}{
		{"Overview", "overview"},
		{"User  Stories & Flows", "user-stories-flows"},
		{"2.1 Data Model", "21-data-model"},
		{"需求背景", "需求背景"},
		{"API --- Design", "api-design"},
	}
	for _, tc := range cases {
		if got := s.Slug(tc.title); got != tc.want {
			t.Fatalf("Slug(%q) = %q, want %q", tc.title, got, tc.want)
		}
	}
}

func TestSlug_DuplicatesGetOrderedSuffixes(t *testing.T) {
	s := NewSlugger()

	if got := s.Slug("Overview"); got != "overview" {
		t.Fatalf("first = %q, want %q", got, "overview")
	}
	if got := s.Slug("Overview"); got != "overview-1" {
		t.Fatalf("second = %q, want %q", got, "overview-1")
	}
	if got := s.Slug("Overview"); got != "overview-2" {
		t.Fatalf("third = %q, want %q", got, "overview-2")
	}
}

func TestSlug_EmptyFallsBackToSection(t *testing.T) {
	s := NewSlugger()

	if got := s.Slug("!!!"); got != "section" {
		t.Fatalf("Slug(%q) = %q, want %q", "!!!", got, "section")
	}
	if got := s.Slug("???"); got != "section-1" {
		t.Fatalf("second empty slug = %q, want %q", got, "section-1")
	}
}

func TestSlug_Deterministic(t *testing.T) {
	titles := []string{"Goals", "Non-Goals", "Goals", "里程碑 Milestones"}

	first := make([]string, len(titles))
	s1 := NewSlugger()
	for i, title := range titles {
		first[i] = s1.Slug(title)
	}

	s2 := NewSlugger()
	for i, title := range titles {
		if got := s2.Slug(title); got != first[i] {
			t.Fatalf("run 2 Slug(%q) = %q, want %q", title, got, first[i])
		}
	}
}

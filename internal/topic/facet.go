package topic

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// ExamType selects the exam a paper was set for.
type ExamType string

const (
	ExamSemester ExamType = "semester"
	ExamMidterm1 ExamType = "midterm1"
	ExamMidterm2 ExamType = "midterm2"
)

// ExamTypes lists every valid exam type.
var ExamTypes = []ExamType{ExamSemester, ExamMidterm1, ExamMidterm2}

// ParseExamType accepts case, space and punctuation variants such as
// "Midterm 1", "mid-term-2" or "SEMESTER".
func ParseExamType(s string) (ExamType, error) {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	switch b.String() {
	case "semester", "sem", "endsem", "endsemester":
		return ExamSemester, nil
	case "midterm1", "mid1", "mt1":
		return ExamMidterm1, nil
	case "midterm2", "mid2", "mt2":
		return ExamMidterm2, nil
	}
	return "", &ValidationError{Field: "exam_type", Reason: fmt.Sprintf("%q is not one of semester, midterm1, midterm2", s)}
}

// IsMidterm reports whether t is either midterm variant.
func (t ExamType) IsMidterm() bool {
	return t == ExamMidterm1 || t == ExamMidterm2
}

func (t ExamType) valid() bool {
	switch t {
	case ExamSemester, ExamMidterm1, ExamMidterm2:
		return true
	}
	return false
}

// Part is a question section of a paper.
type Part string

const (
	PartA Part = "A"
	PartB Part = "B"
)

// Parts lists both parts in query order.
var Parts = []Part{PartA, PartB}

// ParsePart accepts "a", "B", "part a" and similar.
func ParsePart(s string) (Part, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	v = strings.TrimSpace(strings.TrimPrefix(v, "PART"))
	switch Part(v) {
	case PartA, PartB:
		return Part(v), nil
	}
	return "", &ValidationError{Field: "part", Reason: fmt.Sprintf("%q is not A or B", s)}
}

func (p Part) valid() bool {
	return p == PartA || p == PartB
}

// Facet is the paper-level scope a topic group belongs to. Text fields keep
// their display form; use Canonical for comparisons.
type Facet struct {
	College  string   `json:"college"`
	Subject  string   `json:"subject"`
	Semester string   `json:"semester"`
	Branch   string   `json:"branch"`
	ExamType ExamType `json:"exam_type"`
}

// Validate rejects empty fields and unknown exam types.
func (f Facet) Validate() error {
	for _, field := range []struct {
		name, value string
	}{
		{"college", f.College},
		{"subject", f.Subject},
		{"semester", f.Semester},
		{"branch", f.Branch},
	} {
		if strings.TrimSpace(field.value) == "" {
			return &ValidationError{Field: field.name}
		}
	}
	if f.ExamType == "" {
		return &ValidationError{Field: "exam_type"}
	}
	if !f.ExamType.valid() {
		return &ValidationError{Field: "exam_type", Reason: fmt.Sprintf("%q is not one of semester, midterm1, midterm2", f.ExamType)}
	}
	return nil
}

// Canonical returns the facet with college, subject and branch lowercased and
// whitespace-collapsed. Semester is only trimmed.
func (f Facet) Canonical() Facet {
	return Facet{
		College:  foldKeyText(f.College),
		Subject:  foldKeyText(f.Subject),
		Semester: strings.TrimSpace(f.Semester),
		Branch:   foldKeyText(f.Branch),
		ExamType: f.ExamType,
	}
}

// Key scopes the facet to one part.
func (f Facet) Key(p Part) FacetKey {
	return FacetKey{Facet: f, Part: p}
}

// FacetKey is the six-part identity of one topic group.
type FacetKey struct {
	Facet
	Part Part `json:"part"`
}

// Validate checks the facet fields and the part.
func (k FacetKey) Validate() error {
	if err := k.Facet.Validate(); err != nil {
		return err
	}
	if k.Part == "" {
		return &ValidationError{Field: "part"}
	}
	if !k.Part.valid() {
		return &ValidationError{Field: "part", Reason: fmt.Sprintf("%q is not A or B", k.Part)}
	}
	return nil
}

// Canonical canonicalizes the facet fields.
func (k FacetKey) Canonical() FacetKey {
	return FacetKey{Facet: k.Facet.Canonical(), Part: k.Part}
}

// Equal compares two keys case-insensitively on the text fields.
func (k FacetKey) Equal(other FacetKey) bool {
	return k.Canonical() == other.Canonical()
}

// ID is the stable storage identifier: SHA-256 over the canonical fields.
// Keys that compare Equal share an ID.
func (k FacetKey) ID() string {
	c := k.Canonical()
	h := sha256.New()
	for _, v := range []string{c.College, c.Subject, c.Semester, c.Branch, string(c.ExamType), string(c.Part)} {
		h.Write([]byte(v))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

func (k FacetKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%s/%s/%s", k.College, k.Subject, k.Semester, k.Branch, k.ExamType, k.Part)
}

func foldKeyText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

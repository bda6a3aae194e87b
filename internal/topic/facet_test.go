package topic

import (
	"errors"
	"testing"
)

func TestParseExamType(t *testing.T) {
	cases := map[string]ExamType{
		"semester":   ExamSemester,
		"SEMESTER":   ExamSemester,
		"Midterm 1":  ExamMidterm1,
		"mid-term-2": ExamMidterm2,
		"midterm2":   ExamMidterm2,
	}
	for in, want := range cases {
		got, err := ParseExamType(in)
		if err != nil {
			t.Fatalf("ParseExamType(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseExamType(%q) = %s, want %s", in, got, want)
		}
	}
	if _, err := ParseExamType("final"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParsePart(t *testing.T) {
	for in, want := range map[string]Part{"a": PartA, "B": PartB, "part a": PartA, " Part B ": PartB} {
		got, err := ParsePart(in)
		if err != nil || got != want {
			t.Fatalf("ParsePart(%q) = %s, %v", in, got, err)
		}
	}
	if _, err := ParsePart("C"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestFacetKey_Validate(t *testing.T) {
	valid := testKey()
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid key, got %v", err)
	}

	cases := map[string]func(k *FacetKey){
		"college":   func(k *FacetKey) { k.College = " " },
		"subject":   func(k *FacetKey) { k.Subject = "" },
		"semester":  func(k *FacetKey) { k.Semester = "" },
		"branch":    func(k *FacetKey) { k.Branch = "\t" },
		"exam_type": func(k *FacetKey) { k.ExamType = "final" },
		"part":      func(k *FacetKey) { k.Part = "" },
	}
	for field, mutate := range cases {
		k := testKey()
		mutate(&k)
		err := k.Validate()
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("%s: expected ValidationError, got %v", field, err)
		}
		if ve.Field != field {
			t.Fatalf("expected field %s, got %s", field, ve.Field)
		}
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: expected errors.Is(ErrValidation)", field)
		}
	}
}

func TestFacetKey_CaseInsensitiveIdentity(t *testing.T) {
	a := testKey()
	b := Facet{
		College:  "  rv   college ",
		Subject:  "DATA STRUCTURES",
		Semester: "3",
		Branch:   "cse",
		ExamType: ExamSemester,
	}.Key(PartA)

	if !a.Equal(b) {
		t.Fatal("expected keys differing only in case/whitespace to be equal")
	}
	if a.ID() != b.ID() {
		t.Fatal("equal keys must share an ID")
	}

	c := b
	c.Semester = "III"
	if a.Equal(c) || a.ID() == c.ID() {
		t.Fatal("semester is compared as given")
	}

	d := a.Facet.Key(PartB)
	if a.ID() == d.ID() {
		t.Fatal("parts must not share an ID")
	}
}

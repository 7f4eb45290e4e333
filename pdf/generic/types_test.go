package generic

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeString(t *testing.T, obj PdfObject) string {
	t.Helper()
	var buf bytes.Buffer
	if err := obj.Write(&buf); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	return buf.String()
}

func TestScalarWrite(t *testing.T) {
	tests := []struct {
		value    PdfObject
		expected string
	}{
		{NullObject{}, "null"},
		{BooleanObject(true), "true"},
		{BooleanObject(false), "false"},
		{IntegerObject(0), "0"},
		{IntegerObject(-123), "-123"},
		{RealObject(0.5), "0.5"},
		{RealObject(470), "470"},
		{RealObject(-2.25), "-2.25"},
		{RealObject(0.000001), "0.000001"},
		{NewReference(12, 0), "12 0 R"},
	}

	for _, tt := range tests {
		if got := writeString(t, tt.value); got != tt.expected {
			t.Errorf("Expected '%s', got '%s'", tt.expected, got)
		}
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		value    float64
		expected string
	}{
		{470, "470"},
		{790, "790"},
		{0.5, "0.5"},
		{-0.0, "0"},
		{123.456, "123.456"},
	}

	for _, tt := range tests {
		if got := FormatNumber(tt.value); got != tt.expected {
			t.Errorf("FormatNumber(%v) = %q, want %q", tt.value, got, tt.expected)
		}
	}
}

func TestNameObject(t *testing.T) {
	tests := []struct {
		name     NameObject
		expected string
	}{
		{"Type", "/Type"},
		{"myImage", "/myImage"},
		{"A B", "/A#20B"},
		{"a/b", "/a#2Fb"},
		{"x#y", "/x#23y"},
		{"F\xc3\xa9", "/F#C3#A9"},
		{"\xe2\x82\xac1", "/#E2#82#AC1"},
		{"{}", "/#7B#7D"},
	}

	for _, tt := range tests {
		if got := writeString(t, tt.name); got != tt.expected {
			t.Errorf("Expected '%s', got '%s'", tt.expected, got)
		}
	}
}

func TestNameRoundTrip(t *testing.T) {
	names := []NameObject{"F\xc3\xa9", "\xe2\x82\xac", "Im#1", "a\x00b", "\xff"}
	for _, name := range names {
		text := writeString(t, name)
		got, err := NewParser([]byte(text)).ParseObject()
		if err != nil {
			t.Fatalf("ParseObject(%q) failed: %v", text, err)
		}
		if got != name {
			t.Errorf("name %q written as %q parsed back as %q", name, text, got)
		}
	}
}

func TestStringObject(t *testing.T) {
	tests := []struct {
		value    *StringObject
		expected string
	}{
		{NewLiteralString("Hello"), "(Hello)"},
		{NewLiteralString("a(b)c"), `(a\(b\)c)`},
		{NewLiteralString("back\\slash"), `(back\\slash)`},
		{NewLiteralString("\x01"), `(\001)`},
		{NewHexString([]byte{0xde, 0xad}), "<dead>"},
	}

	for _, tt := range tests {
		if got := writeString(t, tt.value); got != tt.expected {
			t.Errorf("Expected '%s', got '%s'", tt.expected, got)
		}
	}
}

func TestArrayObject(t *testing.T) {
	arr := NewArray(IntegerObject(1), NameObject("X"), NewReference(3, 0))
	if got := writeString(t, arr); got != "[1 /X 3 0 R]" {
		t.Errorf("Unexpected array output: %s", got)
	}
}

func TestDictionaryObject(t *testing.T) {
	dict := NewDictionary()
	dict.Set("Type", NameObject("Page"))
	dict.Set("Count", IntegerObject(3))
	dict.Set("Type", NameObject("Pages"))
	dict.Set("F\xc3\xa9", NewReference(7, 0))

	want := "<<\n/Type /Pages\n/Count 3\n/F#C3#A9 7 0 R\n>>"
	if got := writeString(t, dict); got != want {
		t.Errorf("Unexpected dictionary output: %q", got)
	}
	if diff := cmp.Diff([]string{"Type", "Count", "F\xc3\xa9"}, dict.Keys()); diff != "" {
		t.Errorf("Keys mismatch (-want +got):\n%s", diff)
	}

	if n, ok := dict.GetInt("Count"); !ok || n != 3 {
		t.Errorf("GetInt(Count) = %d, %v", n, ok)
	}
	if dict.GetName("Count") != "" {
		t.Error("GetName on an integer should return empty string")
	}
	if dict.GetArray("Type") != nil {
		t.Error("GetArray on a name should return nil")
	}
	if !dict.Has("Count") || dict.Has("Missing") {
		t.Error("Has reports the wrong keys")
	}
}

func TestStreamObject(t *testing.T) {
	dict := NewDictionary()
	dict.Set("Length", IntegerObject(999))
	stream := NewStream(dict, []byte("q Q"))

	want := "<<\n/Length 3\n>>\nstream\nq Q\nendstream"
	if got := writeString(t, stream); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
	if got := writeString(t, NewStream(nil, nil)); got != "<<\n/Length 0\n>>\nstream\n\nendstream" {
		t.Errorf("Unexpected empty stream output: %q", got)
	}
}

func TestIndirectObject(t *testing.T) {
	obj := NewIndirectObject(5, 0, IntegerObject(42))
	if got := writeString(t, obj); got != "5 0 obj\n42\nendobj\n" {
		t.Errorf("Unexpected output: %q", got)
	}
}

type failingWriter struct{ after int }

func (f *failingWriter) Write(p []byte) (int, error) {
	if f.after <= 0 {
		return 0, errors.New("disk full")
	}
	f.after--
	return len(p), nil
}

func TestWriteStopsAtFirstError(t *testing.T) {
	dict := NewDictionary()
	dict.Set("Kids", NewArray(NewReference(1, 0), NewReference(2, 0)))
	dict.Set("Count", IntegerObject(2))

	for after := range 4 {
		if err := dict.Write(&failingWriter{after: after}); err == nil {
			t.Errorf("Write with a writer failing after %d writes returned nil", after)
		}
	}
}

func TestTrailerDictionary(t *testing.T) {
	dict := NewDictionary()
	dict.Set("Size", IntegerObject(10))
	dict.Set("Root", NewReference(1, 0))
	dict.Set("Prev", IntegerObject(1234))
	trailer := NewTrailer(dict)

	if trailer.Size() != 10 {
		t.Errorf("Expected Size 10, got %d", trailer.Size())
	}
	if root, ok := trailer.Root(); !ok || root.ObjectNumber != 1 {
		t.Errorf("Unexpected Root %v", root)
	}
	if _, ok := trailer.Info(); ok {
		t.Error("Expected no Info")
	}
	if prev, ok := trailer.Prev(); !ok || prev != 1234 {
		t.Errorf("Unexpected Prev %d", prev)
	}
	if NewTrailer(NewDictionary()).Size() != 0 {
		t.Error("Size of an empty trailer should be 0")
	}
}

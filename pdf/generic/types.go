// Package generic provides the PDF object model used by the reader and the
// incremental writer.
package generic

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
)

// PdfObject is a value that can be serialized in PDF syntax. Values are
// copied into an update exactly as they were parsed, so Write must not
// normalize anything beyond what the syntax requires.
type PdfObject interface {
	Write(w io.Writer) error
}

// syntaxWriter keeps the first write error so composite values can emit
// token after token and check once at the end.
type syntaxWriter struct {
	w   io.Writer
	err error
}

func (s *syntaxWriter) str(v string) {
	if s.err == nil {
		_, s.err = io.WriteString(s.w, v)
	}
}

func (s *syntaxWriter) raw(b []byte) {
	if s.err == nil {
		_, s.err = s.w.Write(b)
	}
}

func (s *syntaxWriter) obj(o PdfObject) {
	if s.err == nil {
		s.err = o.Write(s.w)
	}
}

// Reference is an indirect reference "num gen R".
type Reference struct {
	ObjectNumber     int
	GenerationNumber int
}

// NewReference returns the reference to object num, generation gen.
func NewReference(num, gen int) Reference {
	return Reference{ObjectNumber: num, GenerationNumber: gen}
}

func (r Reference) Write(w io.Writer) error {
	_, err := io.WriteString(w, r.String())
	return err
}

func (r Reference) String() string {
	return strconv.Itoa(r.ObjectNumber) + " " + strconv.Itoa(r.GenerationNumber) + " R"
}

// IndirectObject is a parsed "num gen obj ... endobj" block.
type IndirectObject struct {
	ObjectNumber     int
	GenerationNumber int
	Object           PdfObject
}

// NewIndirectObject wraps obj as object num, generation gen.
func NewIndirectObject(num, gen int, obj PdfObject) *IndirectObject {
	return &IndirectObject{ObjectNumber: num, GenerationNumber: gen, Object: obj}
}

func (i *IndirectObject) Write(w io.Writer) error {
	s := &syntaxWriter{w: w}
	s.str(fmt.Sprintf("%d %d obj\n", i.ObjectNumber, i.GenerationNumber))
	if i.Object != nil {
		s.obj(i.Object)
	}
	s.str("\nendobj\n")
	return s.err
}

// NullObject is the PDF null value.
type NullObject struct{}

func (NullObject) Write(w io.Writer) error {
	_, err := io.WriteString(w, "null")
	return err
}

// BooleanObject is true or false.
type BooleanObject bool

func (b BooleanObject) Write(w io.Writer) error {
	_, err := io.WriteString(w, strconv.FormatBool(bool(b)))
	return err
}

// IntegerObject is a PDF integer.
type IntegerObject int64

func (i IntegerObject) Write(w io.Writer) error {
	_, err := io.WriteString(w, strconv.FormatInt(int64(i), 10))
	return err
}

// RealObject is a PDF real number.
type RealObject float64

func (r RealObject) Write(w io.Writer) error {
	_, err := io.WriteString(w, FormatNumber(float64(r)))
	return err
}

// FormatNumber renders v in plain decimal notation without an exponent or
// trailing zeros. Integral values have no decimal point.
func FormatNumber(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// StringObject is a literal or hexadecimal string. IsHex records the form
// it was read in so a copied value keeps that form.
type StringObject struct {
	Value []byte
	IsHex bool
}

// NewLiteralString returns s as a literal string.
func NewLiteralString(s string) *StringObject {
	return &StringObject{Value: []byte(s)}
}

// NewHexString returns data as a hexadecimal string.
func NewHexString(data []byte) *StringObject {
	return &StringObject{Value: data, IsHex: true}
}

func (s *StringObject) Write(w io.Writer) error {
	if s.IsHex {
		out := make([]byte, 0, 2*len(s.Value)+2)
		out = append(out, '<')
		out = hex.AppendEncode(out, s.Value)
		out = append(out, '>')
		_, err := w.Write(out)
		return err
	}
	_, err := w.Write(appendLiteral(make([]byte, 0, len(s.Value)+2), s.Value))
	return err
}

// appendLiteral escapes the delimiters, backslash and bytes outside
// printable ASCII.
func appendLiteral(out, v []byte) []byte {
	out = append(out, '(')
	for _, b := range v {
		switch b {
		case '\\', '(', ')':
			out = append(out, '\\', b)
		case '\n':
			out = append(out, `\n`...)
		case '\r':
			out = append(out, `\r`...)
		case '\t':
			out = append(out, `\t`...)
		default:
			if b < ' ' || b > '~' {
				out = append(out, '\\', '0'+b>>6, '0'+(b>>3)&7, '0'+b&7)
			} else {
				out = append(out, b)
			}
		}
	}
	return append(out, ')')
}

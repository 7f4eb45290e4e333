package writer

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/georgepadayatti/pdflogo/pdf/generic"
)

type containerKind int

const (
	dictContainer containerKind = iota
	arrayContainer
)

type frame struct {
	kind       containerKind
	count      int
	keyPending bool
}

// ObjectWriter writes the body of the one open indirect object. It is
// obtained from ObjectsContext and becomes invalid once End returns.
// A failed call leaves the writer unchanged.
type ObjectWriter struct {
	ctx  *ObjectsContext
	num  int
	gen  int
	body bytes.Buffer

	stack      []frame
	topWritten bool
	stream     *StreamWriter
	done       bool
}

// Reference returns the reference of the object being written.
func (w *ObjectWriter) Reference() generic.Reference {
	return generic.NewReference(w.num, w.gen)
}

func (w *ObjectWriter) usable() error {
	if w.done {
		return fmt.Errorf("%w: object %d already ended", ErrIllegalState, w.num)
	}
	if w.stream != nil {
		return fmt.Errorf("%w: object %d has an open stream", ErrIllegalState, w.num)
	}
	return nil
}

// checkValue verifies a value may be written at the current position.
func (w *ObjectWriter) checkValue() error {
	if err := w.usable(); err != nil {
		return err
	}
	if len(w.stack) == 0 {
		if w.topWritten {
			return fmt.Errorf("%w: object %d already has a value", ErrIllegalState, w.num)
		}
		return nil
	}
	if top := w.stack[len(w.stack)-1]; top.kind == dictContainer && !top.keyPending {
		return fmt.Errorf("%w: dictionary value without a key", ErrIllegalState)
	}
	return nil
}

// beginValue records a value at the current position; checkValue must have
// succeeded.
func (w *ObjectWriter) beginValue() {
	if len(w.stack) == 0 {
		w.topWritten = true
		return
	}
	top := &w.stack[len(w.stack)-1]
	switch top.kind {
	case dictContainer:
		top.keyPending = false
		w.body.WriteByte(' ')
	case arrayContainer:
		if top.count > 0 {
			w.body.WriteByte(' ')
		}
	}
	top.count++
}

func (w *ObjectWriter) writeToken(tok string) error {
	if err := w.checkValue(); err != nil {
		return err
	}
	w.beginValue()
	w.body.WriteString(tok)
	return nil
}

// StartDictionary opens a dictionary.
func (w *ObjectWriter) StartDictionary() error {
	if err := w.checkValue(); err != nil {
		return err
	}
	w.beginValue()
	w.stack = append(w.stack, frame{kind: dictContainer})
	w.body.WriteString("<<")
	return nil
}

// EndDictionary closes the innermost container, which must be a dictionary
// with no key awaiting its value.
func (w *ObjectWriter) EndDictionary() error {
	if err := w.usable(); err != nil {
		return err
	}
	if len(w.stack) == 0 || w.stack[len(w.stack)-1].kind != dictContainer {
		return fmt.Errorf("%w: EndDictionary without an open dictionary", ErrUnbalancedStructure)
	}
	if w.stack[len(w.stack)-1].keyPending {
		return fmt.Errorf("%w: dictionary key without a value", ErrUnbalancedStructure)
	}
	w.stack = w.stack[:len(w.stack)-1]
	w.body.WriteString("\n>>")
	return nil
}

// StartArray opens an array.
func (w *ObjectWriter) StartArray() error {
	if err := w.checkValue(); err != nil {
		return err
	}
	w.beginValue()
	w.stack = append(w.stack, frame{kind: arrayContainer})
	w.body.WriteString("[")
	return nil
}

// EndArray closes the innermost container, which must be an array.
func (w *ObjectWriter) EndArray() error {
	if err := w.usable(); err != nil {
		return err
	}
	if len(w.stack) == 0 || w.stack[len(w.stack)-1].kind != arrayContainer {
		return fmt.Errorf("%w: EndArray without an open array", ErrUnbalancedStructure)
	}
	w.stack = w.stack[:len(w.stack)-1]
	w.body.WriteString("]")
	return nil
}

// WriteKey writes a dictionary key. The next write supplies its value.
func (w *ObjectWriter) WriteKey(name string) error {
	if err := w.usable(); err != nil {
		return err
	}
	if len(w.stack) == 0 || w.stack[len(w.stack)-1].kind != dictContainer {
		return fmt.Errorf("%w: key %q outside a dictionary", ErrIllegalState, name)
	}
	top := &w.stack[len(w.stack)-1]
	if top.keyPending {
		return fmt.Errorf("%w: key %q follows a key without a value", ErrIllegalState, name)
	}
	top.keyPending = true
	w.body.WriteByte('\n')
	return generic.NameObject(name).Write(&w.body)
}

// WriteReference writes an indirect reference.
func (w *ObjectWriter) WriteReference(ref generic.Reference) error {
	return w.writeToken(ref.String())
}

// WriteNumber writes a real number in plain decimal notation.
func (w *ObjectWriter) WriteNumber(v float64) error {
	return w.writeToken(generic.FormatNumber(v))
}

// WriteInteger writes an integer.
func (w *ObjectWriter) WriteInteger(v int64) error {
	return w.writeToken(strconv.FormatInt(v, 10))
}

// WriteName writes a name object; name excludes the leading slash.
func (w *ObjectWriter) WriteName(name string) error {
	var buf bytes.Buffer
	generic.NameObject(name).Write(&buf)
	return w.writeToken(buf.String())
}

// WriteKeyword writes a bare keyword such as true, false or null.
func (w *ObjectWriter) WriteKeyword(keyword string) error {
	return w.writeToken(keyword)
}

// WriteValue writes a scalar value: anything but a dictionary, array or
// stream, which have their own structured calls.
func (w *ObjectWriter) WriteValue(value generic.PdfObject) error {
	switch value.(type) {
	case *generic.DictionaryObject, generic.ArrayObject, *generic.StreamObject, *generic.IndirectObject, nil:
		return fmt.Errorf("%w: WriteValue needs a scalar, got %T", ErrIllegalState, value)
	}
	var buf bytes.Buffer
	if err := value.Write(&buf); err != nil {
		return err
	}
	return w.writeToken(buf.String())
}

// StartUnfilteredStream makes the object a stream with the given dictionary
// (Length is filled in) and returns a writer for its content. It must be
// the object's only top-level value.
func (w *ObjectWriter) StartUnfilteredStream(dict *generic.DictionaryObject) (*StreamWriter, error) {
	if dict != nil && dict.Has("Filter") {
		return nil, fmt.Errorf("%w: unfiltered stream dictionary has a Filter", ErrIllegalState)
	}
	return w.startStream(dict)
}

// StartEncodedStream is like StartUnfilteredStream but for content that is
// already encoded with the filters named in dict, such as a JPEG passed
// through as DCTDecode. The bytes are written verbatim.
func (w *ObjectWriter) StartEncodedStream(dict *generic.DictionaryObject) (*StreamWriter, error) {
	if dict == nil || !dict.Has("Filter") {
		return nil, fmt.Errorf("%w: encoded stream dictionary has no Filter", ErrIllegalState)
	}
	return w.startStream(dict)
}

func (w *ObjectWriter) startStream(dict *generic.DictionaryObject) (*StreamWriter, error) {
	if err := w.usable(); err != nil {
		return nil, err
	}
	if len(w.stack) != 0 || w.topWritten {
		return nil, fmt.Errorf("%w: a stream must be the top-level value of object %d", ErrIllegalState, w.num)
	}
	if dict == nil {
		dict = generic.NewDictionary()
	}
	w.topWritten = true
	w.stream = &StreamWriter{obj: w, dict: dict}
	return w.stream, nil
}

// End closes the object. All containers and any stream must be closed.
func (w *ObjectWriter) End() error {
	if w.done {
		return fmt.Errorf("%w: object %d already ended", ErrIllegalState, w.num)
	}
	if w.stream != nil {
		return fmt.Errorf("%w: object %d has an open stream", ErrUnbalancedStructure, w.num)
	}
	if len(w.stack) != 0 {
		return fmt.Errorf("%w: object %d has %d open containers", ErrUnbalancedStructure, w.num, len(w.stack))
	}
	if !w.topWritten {
		return fmt.Errorf("%w: object %d has no value", ErrUnbalancedStructure, w.num)
	}
	w.done = true
	w.ctx.commit(w)
	return nil
}

// StreamWriter writes the content of an unfiltered stream. Tokens written
// through WriteKeyword, WriteNumber and WriteName are separated by spaces;
// Write appends raw bytes.
type StreamWriter struct {
	obj       *ObjectWriter
	dict      *generic.DictionaryObject
	data      bytes.Buffer
	needSpace bool
	done      bool
}

var _ io.Writer = (*StreamWriter)(nil)

func (s *StreamWriter) token(tok string) error {
	if s.done {
		return fmt.Errorf("%w: stream already ended", ErrIllegalState)
	}
	if s.needSpace {
		s.data.WriteByte(' ')
	}
	s.data.WriteString(tok)
	s.needSpace = true
	return nil
}

// WriteKeyword writes an operator or keyword.
func (s *StreamWriter) WriteKeyword(keyword string) error {
	return s.token(keyword)
}

// WriteNumber writes an operand.
func (s *StreamWriter) WriteNumber(v float64) error {
	return s.token(generic.FormatNumber(v))
}

// WriteInteger writes an integer operand.
func (s *StreamWriter) WriteInteger(v int64) error {
	return s.token(strconv.FormatInt(v, 10))
}

// WriteName writes a name operand.
func (s *StreamWriter) WriteName(name string) error {
	var buf bytes.Buffer
	generic.NameObject(name).Write(&buf)
	return s.token(buf.String())
}

// Write appends raw bytes to the stream content. A token written next is
// separated from them unless they end in whitespace.
func (s *StreamWriter) Write(p []byte) (int, error) {
	if s.done {
		return 0, fmt.Errorf("%w: stream already ended", ErrIllegalState)
	}
	if len(p) > 0 {
		s.needSpace = !generic.IsWhitespace(p[len(p)-1])
	}
	return s.data.Write(p)
}

// End closes the stream; the owning object can then be ended.
func (s *StreamWriter) End() error {
	if s.done {
		return fmt.Errorf("%w: stream already ended", ErrIllegalState)
	}
	s.done = true
	if err := generic.NewStream(s.dict, s.data.Bytes()).Write(&s.obj.body); err != nil {
		return err
	}
	s.obj.stream = nil
	return nil
}

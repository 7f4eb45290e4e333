package generic

import "io"

// StreamObject is a stream dictionary with its data.
type StreamObject struct {
	Dictionary *DictionaryObject
	// Data holds the raw bytes between "stream" and "endstream".
	Data []byte
	// Decoded caches Data with its filters removed.
	Decoded []byte
}

// NewStream returns a stream over data. A nil dict starts empty.
func NewStream(dict *DictionaryObject, data []byte) *StreamObject {
	if dict == nil {
		dict = NewDictionary()
	}
	return &StreamObject{Dictionary: dict, Data: data}
}

// Write sets /Length to the size of Data before writing the dictionary.
func (st *StreamObject) Write(w io.Writer) error {
	st.Dictionary.Set("Length", IntegerObject(len(st.Data)))
	s := &syntaxWriter{w: w}
	s.obj(st.Dictionary)
	s.str("\nstream\n")
	s.raw(st.Data)
	s.str("\nendstream")
	return s.err
}

// TrailerDictionary is the trailer of one cross-reference section.
type TrailerDictionary struct {
	*DictionaryObject
}

// NewTrailer wraps dict as a trailer.
func NewTrailer(dict *DictionaryObject) *TrailerDictionary {
	return &TrailerDictionary{DictionaryObject: dict}
}

// Root returns the catalog reference.
func (t *TrailerDictionary) Root() (Reference, bool) {
	ref, ok := t.Get("Root").(Reference)
	return ref, ok
}

// Info returns the document information reference.
func (t *TrailerDictionary) Info() (Reference, bool) {
	ref, ok := t.Get("Info").(Reference)
	return ref, ok
}

// Size returns /Size, one past the highest object number, or 0.
func (t *TrailerDictionary) Size() int64 {
	n, _ := t.GetInt("Size")
	return n
}

// Prev returns the offset of the previous cross-reference section.
func (t *TrailerDictionary) Prev() (int64, bool) {
	return t.GetInt("Prev")
}

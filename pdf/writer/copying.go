package writer

import (
	"fmt"

	"github.com/georgepadayatti/pdflogo/pdf/generic"
	"github.com/georgepadayatti/pdflogo/pdf/reader"
)

// CopyingContext re-serialises source values into an open object.
// References are copied as references, never followed.
type CopyingContext struct {
	src      *reader.PdfFileReader
	ctx      *ObjectsContext
	dangling []generic.Reference
}

// NewCopyingContext creates a copying context for values read from src and
// written through ctx.
func NewCopyingContext(src *reader.PdfFileReader, ctx *ObjectsContext) *CopyingContext {
	return &CopyingContext{src: src, ctx: ctx}
}

// CopyAsIs writes value at the current position of w. Dictionaries and
// arrays are walked through w's structure calls. A reference that resolves
// neither to a source object nor to an id allocated in this update denotes
// the null object and is written as null, so it cannot come to point at an
// object this update adds. Direct streams cannot be copied.
func (c *CopyingContext) CopyAsIs(w *ObjectWriter, value generic.PdfObject) error {
	switch v := value.(type) {
	case *generic.DictionaryObject:
		if err := w.StartDictionary(); err != nil {
			return err
		}
		for _, key := range v.Keys() {
			if err := w.WriteKey(key); err != nil {
				return err
			}
			if err := c.CopyAsIs(w, v.Get(key)); err != nil {
				return fmt.Errorf("/%s: %w", key, err)
			}
		}
		return w.EndDictionary()

	case generic.ArrayObject:
		if err := w.StartArray(); err != nil {
			return err
		}
		for i, item := range v {
			if err := c.CopyAsIs(w, item); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		return w.EndArray()

	case generic.Reference:
		if !c.Resolvable(v) {
			c.dangling = append(c.dangling, v)
			return w.WriteValue(generic.NullObject{})
		}
		return w.WriteReference(v)

	case *generic.StreamObject:
		return fmt.Errorf("%w: a stream cannot be copied as a direct value", ErrIllegalState)

	default:
		return w.WriteValue(value)
	}
}

// DanglingReferences returns the references CopyAsIs replaced with null, in
// the order it met them.
func (c *CopyingContext) DanglingReferences() []generic.Reference {
	return c.dangling
}

// Resolvable reports whether ref names an object of the source, with its
// generation, or an id allocated in this update.
func (c *CopyingContext) Resolvable(ref generic.Reference) bool {
	if gen, ok := c.src.Generation(ref.ObjectNumber); ok {
		return gen == ref.GenerationNumber
	}
	return ref.GenerationNumber == 0 && c.ctx != nil && c.ctx.allocated[ref.ObjectNumber]
}

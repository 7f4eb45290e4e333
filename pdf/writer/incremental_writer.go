// Package writer appends incremental updates to existing PDF files.
//
// An ObjectsContext accumulates new and modified indirect objects in memory
// and writes nothing to its sink until Finalize, which emits the objects, a
// cross-reference section and a trailer chained to the source's newest
// section through Prev.
package writer

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/georgepadayatti/pdflogo/pdf/generic"
	"github.com/georgepadayatti/pdflogo/pdf/reader"
)

// Common errors
var (
	ErrIllegalState        = errors.New("illegal writer state")
	ErrUnbalancedStructure = errors.New("unbalanced structure")
	ErrIncompleteWrite     = errors.New("incomplete write")
)

// ObjectsContext allocates object ids and collects the bodies written
// during one update. At most one object is open at a time.
type ObjectsContext struct {
	src  *reader.PdfFileReader
	sink io.Writer

	// baseOffset is the file offset at which the update starts.
	baseOffset int64
	buf        bytes.Buffer

	nextObjNum int
	allocated  map[int]bool
	offsets    map[int]int64
	gens       map[int]int

	open      *ObjectWriter
	finalized bool

	// StreamXRefs selects a cross-reference stream instead of a classic
	// table. It defaults to whatever the source's newest section uses.
	StreamXRefs bool
}

// NewObjectsContext creates a context for an update of src whose bytes will
// be written to sink. The sink receives only the update, never the original
// bytes.
func NewObjectsContext(src *reader.PdfFileReader, sink io.Writer) *ObjectsContext {
	ctx := &ObjectsContext{
		src:         src,
		sink:        sink,
		baseOffset:  int64(len(src.Data())),
		nextObjNum:  src.MaxObjectNumber() + 1,
		allocated:   make(map[int]bool),
		offsets:     make(map[int]int64),
		gens:        make(map[int]int),
		StreamXRefs: src.HasXRefStream,
	}

	// The first appended object must start on a fresh line.
	if data := src.Data(); len(data) > 0 {
		if last := data[len(data)-1]; last != '\n' && last != '\r' {
			ctx.buf.WriteByte('\n')
		}
	}

	return ctx
}

// AllocateObjectID reserves a fresh object number. Numbers are strictly
// increasing and never collide with objects of the source.
func (c *ObjectsContext) AllocateObjectID() int {
	id := c.nextObjNum
	c.nextObjNum++
	c.allocated[id] = true
	return id
}

// StartNewIndirectObject opens a previously allocated id for writing.
func (c *ObjectsContext) StartNewIndirectObject(id int) (*ObjectWriter, error) {
	if err := c.checkStart(id); err != nil {
		return nil, err
	}
	if !c.allocated[id] {
		return nil, fmt.Errorf("%w: object %d was not allocated", ErrIllegalState, id)
	}
	return c.start(id, 0), nil
}

// StartModifiedIndirectObject opens an existing source object for
// rewriting. The new body replaces the old one for readers of the update;
// the generation number is kept.
func (c *ObjectsContext) StartModifiedIndirectObject(id int) (*ObjectWriter, error) {
	if err := c.checkStart(id); err != nil {
		return nil, err
	}
	gen, ok := c.src.Generation(id)
	if !ok {
		return nil, fmt.Errorf("%w: object %d is not in the source", ErrIllegalState, id)
	}
	return c.start(id, gen), nil
}

func (c *ObjectsContext) checkStart(id int) error {
	if c.finalized {
		return fmt.Errorf("%w: context already finalized", ErrIllegalState)
	}
	if c.open != nil {
		return fmt.Errorf("%w: object %d is still open", ErrIllegalState, c.open.num)
	}
	if _, done := c.offsets[id]; done {
		return fmt.Errorf("%w: object %d already written in this update", ErrIllegalState, id)
	}
	return nil
}

func (c *ObjectsContext) start(id, gen int) *ObjectWriter {
	w := &ObjectWriter{ctx: c, num: id, gen: gen}
	c.open = w
	return w
}

// commit is called by ObjectWriter.End with the serialised body.
func (c *ObjectsContext) commit(w *ObjectWriter) {
	c.offsets[w.num] = c.baseOffset + int64(c.buf.Len())
	c.gens[w.num] = w.gen
	fmt.Fprintf(&c.buf, "%d %d obj\n", w.num, w.gen)
	c.buf.Write(w.body.Bytes())
	c.buf.WriteString("\nendobj\n")
	c.open = nil
}

// Finalize writes the update: every object body, a cross-reference section
// covering them and the trailer. It may be called once, with no object open
// and every allocated id written.
func (c *ObjectsContext) Finalize() error {
	if c.finalized {
		return fmt.Errorf("%w: already finalized", ErrIncompleteWrite)
	}
	if c.open != nil {
		return fmt.Errorf("%w: object %d is still open", ErrIncompleteWrite, c.open.num)
	}
	for id := range c.allocated {
		if _, ok := c.offsets[id]; !ok {
			return fmt.Errorf("%w: object %d allocated but never written", ErrIncompleteWrite, id)
		}
	}
	c.finalized = true

	trailer, err := c.trailer()
	if err != nil {
		return err
	}

	xrefOffset := c.baseOffset + int64(c.buf.Len())
	if c.StreamXRefs {
		c.writeXRefStream(trailer, xrefOffset)
	} else {
		c.writeXRefTable(trailer, xrefOffset)
	}

	if _, err := c.sink.Write(c.buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write incremental update: %w", err)
	}
	return nil
}

// trailer builds the entries shared by both xref formats.
func (c *ObjectsContext) trailer() (*generic.DictionaryObject, error) {
	root, ok := c.src.Trailer.Root()
	if !ok {
		return nil, fmt.Errorf("%w: source trailer has no Root", reader.ErrSourceParse)
	}

	trailer := generic.NewDictionary()
	trailer.Set("Size", generic.IntegerObject(c.nextObjNum))
	trailer.Set("Root", root)
	if info, ok := c.src.Trailer.Info(); ok {
		trailer.Set("Info", info)
	}
	trailer.Set("ID", documentID(c.src.Trailer))
	trailer.Set("Prev", generic.IntegerObject(c.src.LastXRefOffset()))
	return trailer, nil
}

// documentID keeps the first part of the file identifier and regenerates
// the second, marking this revision as different content.
func documentID(trailer *generic.TrailerDictionary) generic.ArrayObject {
	id2 := make([]byte, 16)
	rand.Read(id2)

	var id1 []byte
	if idArray := trailer.GetArray("ID"); len(idArray) >= 1 {
		if str, ok := idArray[0].(*generic.StringObject); ok {
			id1 = str.Value
		}
	}
	if id1 == nil {
		id1 = make([]byte, 16)
		rand.Read(id1)
	}

	return generic.ArrayObject{generic.NewHexString(id1), generic.NewHexString(id2)}
}

type subsection struct {
	start int
	nums  []int
}

// subsections groups sorted object numbers into runs of consecutive ids.
func subsections(nums []int) []subsection {
	var subs []subsection
	for _, num := range nums {
		if n := len(subs); n > 0 && num == subs[n-1].start+len(subs[n-1].nums) {
			subs[n-1].nums = append(subs[n-1].nums, num)
			continue
		}
		subs = append(subs, subsection{start: num, nums: []int{num}})
	}
	return subs
}

func (c *ObjectsContext) sortedObjects() []int {
	nums := make([]int, 0, len(c.offsets))
	for num := range c.offsets {
		nums = append(nums, num)
	}
	sort.Ints(nums)
	return nums
}

func (c *ObjectsContext) writeXRefTable(trailer *generic.DictionaryObject, xrefOffset int64) {
	c.buf.WriteString("xref\n")
	for _, sub := range subsections(c.sortedObjects()) {
		fmt.Fprintf(&c.buf, "%d %d\n", sub.start, len(sub.nums))
		for _, num := range sub.nums {
			fmt.Fprintf(&c.buf, "%010d %05d n \n", c.offsets[num], c.gens[num])
		}
	}

	c.buf.WriteString("trailer\n")
	trailer.Write(&c.buf)
	fmt.Fprintf(&c.buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)
}

// writeXRefStream writes an unfiltered cross-reference stream. The stream
// object takes the next free id and lists itself.
func (c *ObjectsContext) writeXRefStream(trailer *generic.DictionaryObject, xrefOffset int64) {
	xrefNum := c.nextObjNum
	c.nextObjNum++
	c.offsets[xrefNum] = xrefOffset
	c.gens[xrefNum] = 0
	trailer.Set("Size", generic.IntegerObject(c.nextObjNum))

	nums := c.sortedObjects()
	offsetWidth := bytesNeeded(xrefOffset)
	genWidth := 1
	for _, num := range nums {
		if c.gens[num] > 0xFF {
			genWidth = 2
		}
	}

	var index generic.ArrayObject
	var data bytes.Buffer
	for _, sub := range subsections(nums) {
		index = append(index, generic.IntegerObject(sub.start), generic.IntegerObject(len(sub.nums)))
		for _, num := range sub.nums {
			data.WriteByte(1)
			writeField(&data, c.offsets[num], offsetWidth)
			writeField(&data, int64(c.gens[num]), genWidth)
		}
	}

	trailer.Set("Type", generic.NameObject("XRef"))
	trailer.Set("W", generic.NewArray(generic.IntegerObject(1), generic.IntegerObject(offsetWidth), generic.IntegerObject(genWidth)))
	trailer.Set("Index", index)

	generic.NewIndirectObject(xrefNum, 0, generic.NewStream(trailer, data.Bytes())).Write(&c.buf)
	fmt.Fprintf(&c.buf, "startxref\n%d\n%%%%EOF\n", xrefOffset)
}

func bytesNeeded(n int64) int {
	width := 1
	for n > 0xFF {
		n >>= 8
		width++
	}
	return width
}

func writeField(w *bytes.Buffer, value int64, width int) {
	for i := width - 1; i >= 0; i-- {
		w.WriteByte(byte(value >> (8 * i)))
	}
}

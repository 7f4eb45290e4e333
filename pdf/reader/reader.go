// Package reader provides a read-only view of an existing PDF file: the
// cross-reference chain, indirect objects and the page tree.
package reader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"

	"github.com/georgepadayatti/pdflogo/pdf/generic"
)

// Common errors. Every failure to read the source wraps ErrSourceParse.
var (
	ErrSourceParse    = errors.New("source parse error")
	ErrOutOfRange     = errors.New("page index out of range")
	ErrObjectNotFound = fmt.Errorf("%w: object not found", ErrSourceParse)
	ErrEncrypted      = fmt.Errorf("%w: encrypted documents are not supported", ErrSourceParse)
)

var headerRegex = regexp.MustCompile(`%PDF-(\d+\.\d+)`)

// PdfFileReader reads and parses PDF files. A reader is never mutated after
// construction apart from its object cache.
type PdfFileReader struct {
	data    []byte
	Version string
	// Trailer is the trailer of the newest cross-reference section.
	Trailer *generic.TrailerDictionary
	XRef    map[int]*XRefEntry
	Root    *generic.DictionaryObject

	// HasXRefStream is true when the newest section is a cross-reference
	// stream (or a hybrid table pointing at one).
	HasXRefStream bool

	objects    map[int]generic.PdfObject
	objStreams map[int]*objectStream
	resolving  map[int]bool
	pages      []*Page

	startXRef   int64
	xrefOffsets []int64
}

// NewPdfFileReader creates a new PDF reader.
func NewPdfFileReader(r io.Reader) (*PdfFileReader, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF data: %w", err)
	}

	return NewPdfFileReaderFromBytes(data)
}

// NewPdfFileReaderFromBytes creates a new PDF reader from bytes. The slice is
// retained and must not be modified while the reader is in use.
func NewPdfFileReaderFromBytes(data []byte) (*PdfFileReader, error) {
	reader := &PdfFileReader{
		data:       data,
		XRef:       make(map[int]*XRefEntry),
		objects:    make(map[int]generic.PdfObject),
		objStreams: make(map[int]*objectStream),
		resolving:  make(map[int]bool),
	}

	if err := reader.parse(); err != nil {
		return nil, err
	}

	return reader, nil
}

func (r *PdfFileReader) parse() error {
	if err := r.parseHeader(); err != nil {
		return err
	}

	if err := r.findAndParseXRef(); err != nil {
		return err
	}

	if r.Trailer.Has("Encrypt") {
		return ErrEncrypted
	}

	rootRef, ok := r.Trailer.Root()
	if !ok {
		return fmt.Errorf("%w: trailer has no Root", ErrSourceParse)
	}
	rootObj, err := r.GetObject(rootRef.ObjectNumber)
	if err != nil {
		return fmt.Errorf("failed to load Root: %w", err)
	}
	root, ok := rootObj.(*generic.DictionaryObject)
	if !ok {
		return fmt.Errorf("%w: Root must be dictionary, got %T", ErrSourceParse, rootObj)
	}
	r.Root = root

	if err := r.loadPages(); err != nil {
		return fmt.Errorf("failed to load pages: %w", err)
	}

	return nil
}

func (r *PdfFileReader) parseHeader() error {
	if len(r.data) < 8 {
		return fmt.Errorf("%w: file too short", ErrSourceParse)
	}

	match := headerRegex.FindSubmatch(r.data[:min(1024, len(r.data))])
	if match == nil {
		return fmt.Errorf("%w: missing PDF header", ErrSourceParse)
	}

	r.Version = string(match[1])
	return nil
}

func (r *PdfFileReader) findAndParseXRef() error {
	pos := bytes.LastIndex(r.data, []byte("startxref"))
	if pos == -1 {
		return fmt.Errorf("%w: no startxref", ErrSourceParse)
	}

	p := generic.NewParser(r.data)
	p.Seek(pos + len("startxref"))
	offset, err := strconv.ParseInt(p.ReadToken(), 10, 64)
	if err != nil || offset <= 0 {
		return fmt.Errorf("%w: invalid startxref offset", ErrSourceParse)
	}
	r.startXRef = offset

	return r.parseXRefChain(offset)
}

// GetObject retrieves an object by object number.
func (r *PdfFileReader) GetObject(objNum int) (generic.PdfObject, error) {
	if obj, ok := r.objects[objNum]; ok {
		return obj, nil
	}

	entry, ok := r.XRef[objNum]
	if !ok || entry.Type == XRefFree {
		return nil, fmt.Errorf("%w: object %d", ErrObjectNotFound, objNum)
	}

	if r.resolving[objNum] {
		return nil, fmt.Errorf("%w: object %d refers to itself", ErrSourceParse, objNum)
	}
	r.resolving[objNum] = true
	defer delete(r.resolving, objNum)

	var obj generic.PdfObject
	var err error
	if entry.Type == XRefCompressed {
		obj, err = r.getObjectFromStream(objNum, entry.StreamObjNum, entry.IndexInStream)
	} else {
		obj, err = r.getObjectAtOffset(objNum, entry.Offset)
	}
	if err != nil {
		return nil, err
	}

	r.objects[objNum] = obj
	return obj, nil
}

func (r *PdfFileReader) getObjectAtOffset(objNum int, offset int64) (generic.PdfObject, error) {
	if offset <= 0 || offset >= int64(len(r.data)) {
		return nil, fmt.Errorf("%w: object %d offset %d out of bounds", ErrSourceParse, objNum, offset)
	}

	parser := generic.NewParser(r.data)
	parser.Seek(int(offset))
	parser.ResolveLength = r.resolveLength
	indirect, err := parser.ParseIndirectObject()
	if err != nil {
		return nil, fmt.Errorf("%w: object %d: %v", ErrSourceParse, objNum, err)
	}
	if indirect.ObjectNumber != objNum {
		return nil, fmt.Errorf("%w: xref points object %d at object %d", ErrSourceParse, objNum, indirect.ObjectNumber)
	}

	return indirect.Object, nil
}

// resolveLength resolves an indirect /Length while a stream is being parsed.
func (r *PdfFileReader) resolveLength(ref generic.Reference) (int64, error) {
	obj, err := r.GetObject(ref.ObjectNumber)
	if err != nil {
		return 0, err
	}
	n, ok := obj.(generic.IntegerObject)
	if !ok {
		return 0, fmt.Errorf("%w: stream length is %T", ErrSourceParse, obj)
	}
	return int64(n), nil
}

// ResolveReference dereferences obj if it is an indirect reference. Other
// values are returned unchanged.
func (r *PdfFileReader) ResolveReference(obj generic.PdfObject) (generic.PdfObject, error) {
	ref, ok := obj.(generic.Reference)
	if !ok {
		return obj, nil
	}
	if gen, known := r.Generation(ref.ObjectNumber); known && gen != ref.GenerationNumber {
		return nil, fmt.Errorf("%w: reference %s does not match generation %d", ErrSourceParse, ref, gen)
	}
	return r.GetObject(ref.ObjectNumber)
}

// Generation returns the generation number of an object in use.
func (r *PdfFileReader) Generation(objNum int) (int, bool) {
	entry, ok := r.XRef[objNum]
	if !ok || entry.Type == XRefFree {
		return 0, false
	}
	return entry.Generation, true
}

// MaxObjectNumber returns the highest object number known to the document,
// taking the trailer's Size into account.
func (r *PdfFileReader) MaxObjectNumber() int {
	maxNum := int(r.Trailer.Size()) - 1
	for num := range r.XRef {
		if num > maxNum {
			maxNum = num
		}
	}
	return max(maxNum, 0)
}

// LastXRefOffset returns the offset of the newest cross-reference section,
// the value an incremental update must store as Prev.
func (r *PdfFileReader) LastXRefOffset() int64 {
	return r.startXRef
}

// Data returns the raw PDF data.
func (r *PdfFileReader) Data() []byte {
	return r.data
}

package reader

import (
	"fmt"
	"strconv"

	"github.com/georgepadayatti/pdflogo/pdf/filters"
	"github.com/georgepadayatti/pdflogo/pdf/generic"
)

// XRefType represents the kind of a cross-reference entry.
type XRefType int

const (
	// XRefFree marks a free entry.
	XRefFree XRefType = iota
	// XRefInUse marks an object stored at a byte offset.
	XRefInUse
	// XRefCompressed marks an object stored inside an object stream.
	XRefCompressed
)

// String returns the string representation of the XRef type.
func (t XRefType) String() string {
	switch t {
	case XRefFree:
		return "free"
	case XRefInUse:
		return "in-use"
	case XRefCompressed:
		return "compressed"
	default:
		return fmt.Sprintf("XRefType(%d)", int(t))
	}
}

// XRefEntry represents an entry in the cross-reference table.
type XRefEntry struct {
	Type       XRefType
	Offset     int64
	Generation int
	// For objects in object streams
	StreamObjNum  int
	IndexInStream int
}

type xrefRecord struct {
	objNum int
	entry  *XRefEntry
}

// parseXRefChain walks the chain of sections from the newest one. The first
// entry seen for an object number wins, so newer sections shadow older ones.
func (r *PdfFileReader) parseXRefChain(offset int64) error {
	visited := make(map[int64]bool)

	for first := true; offset > 0; first = false {
		if visited[offset] {
			return fmt.Errorf("%w: xref chain loops at offset %d", ErrSourceParse, offset)
		}
		visited[offset] = true
		r.xrefOffsets = append(r.xrefOffsets, offset)

		if offset >= int64(len(r.data)) {
			return fmt.Errorf("%w: xref offset %d out of bounds", ErrSourceParse, offset)
		}

		p := generic.NewParser(r.data)
		p.Seek(int(offset))
		p.SkipWhitespace()
		pos := p.Pos()

		var trailer *generic.TrailerDictionary
		var records []xrefRecord
		var err error
		isStream := false

		if p.ReadToken() == "xref" {
			records, trailer, err = r.parseXRefTable(p)
			if err != nil {
				return err
			}
			// In a hybrid file the stream's entries take precedence over the
			// placeholder free entries of the table they accompany.
			if stm, ok := trailer.GetInt("XRefStm"); ok {
				streamRecords, _, err := r.parseXRefStream(stm)
				if err != nil {
					return err
				}
				records = append(streamRecords, records...)
				isStream = true
			}
		} else {
			records, trailer, err = r.parseXRefStream(int64(pos))
			if err != nil {
				return err
			}
			isStream = true
		}

		for _, rec := range records {
			if _, exists := r.XRef[rec.objNum]; !exists {
				r.XRef[rec.objNum] = rec.entry
			}
		}

		if first {
			r.Trailer = trailer
			r.HasXRefStream = isStream
		} else {
			// Older trailers only fill gaps, never override.
			for _, key := range []string{"Root", "Info", "ID"} {
				if !r.Trailer.Has(key) && trailer.Has(key) {
					r.Trailer.Set(key, trailer.Get(key))
				}
			}
		}

		offset = 0
		if prev, ok := trailer.Prev(); ok {
			offset = prev
		}
	}

	return nil
}

// parseXRefTable parses a classic table; the parser is positioned just after
// the "xref" keyword.
func (r *PdfFileReader) parseXRefTable(p *generic.Parser) ([]xrefRecord, *generic.TrailerDictionary, error) {
	var records []xrefRecord

	for {
		tok := p.ReadToken()
		if tok == "trailer" {
			break
		}
		if tok == "" {
			return nil, nil, fmt.Errorf("%w: unterminated xref table", ErrSourceParse)
		}

		startObj, err := strconv.Atoi(tok)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: invalid xref subsection start %q", ErrSourceParse, tok)
		}
		count, err := strconv.Atoi(p.ReadToken())
		if err != nil || count < 0 {
			return nil, nil, fmt.Errorf("%w: invalid xref subsection count", ErrSourceParse)
		}

		for i := 0; i < count; i++ {
			entry, err := parseXRefTableEntry(p)
			if err != nil {
				return nil, nil, fmt.Errorf("object %d: %w", startObj+i, err)
			}
			records = append(records, xrefRecord{objNum: startObj + i, entry: entry})
		}
	}

	obj, err := p.ParseObject()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to parse trailer: %v", ErrSourceParse, err)
	}
	dict, ok := obj.(*generic.DictionaryObject)
	if !ok {
		return nil, nil, fmt.Errorf("%w: trailer must be dictionary", ErrSourceParse)
	}

	return records, generic.NewTrailer(dict), nil
}

// parseXRefTableEntry reads "oooooooooo ggggg n". Entries are tokenised
// rather than sliced at fixed columns; some writers pad them incorrectly.
func parseXRefTableEntry(p *generic.Parser) (*XRefEntry, error) {
	offset, err := strconv.ParseInt(p.ReadToken(), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid xref offset: %v", ErrSourceParse, err)
	}
	gen, err := strconv.Atoi(p.ReadToken())
	if err != nil {
		return nil, fmt.Errorf("%w: invalid xref generation: %v", ErrSourceParse, err)
	}

	switch status := p.ReadToken(); status {
	case "n":
		return &XRefEntry{Type: XRefInUse, Offset: offset, Generation: gen}, nil
	case "f":
		return &XRefEntry{Type: XRefFree, Offset: offset, Generation: gen}, nil
	default:
		return nil, fmt.Errorf("%w: invalid xref entry status %q", ErrSourceParse, status)
	}
}

// parseXRefStream parses the cross-reference stream object at offset.
func (r *PdfFileReader) parseXRefStream(offset int64) ([]xrefRecord, *generic.TrailerDictionary, error) {
	if offset <= 0 || offset >= int64(len(r.data)) {
		return nil, nil, fmt.Errorf("%w: xref stream offset %d out of bounds", ErrSourceParse, offset)
	}

	parser := generic.NewParser(r.data)
	parser.Seek(int(offset))
	indirect, err := parser.ParseIndirectObject()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to parse xref stream: %v", ErrSourceParse, err)
	}

	stream, ok := indirect.Object.(*generic.StreamObject)
	if !ok || stream.Dictionary.GetName("Type") != "XRef" {
		return nil, nil, fmt.Errorf("%w: no xref table or stream at offset %d", ErrSourceParse, offset)
	}
	dict := stream.Dictionary

	data, err := filters.DecodeStream(stream)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to decode xref stream: %v", ErrSourceParse, err)
	}

	wArray := dict.GetArray("W")
	if len(wArray) != 3 {
		return nil, nil, fmt.Errorf("%w: invalid W array", ErrSourceParse)
	}
	var w [3]int
	for i, v := range wArray {
		iv, ok := v.(generic.IntegerObject)
		if !ok || iv < 0 || iv > 8 {
			return nil, nil, fmt.Errorf("%w: invalid W array", ErrSourceParse)
		}
		w[i] = int(iv)
	}
	entrySize := w[0] + w[1] + w[2]
	if entrySize == 0 {
		return nil, nil, fmt.Errorf("%w: zero entry size", ErrSourceParse)
	}

	var index []int
	if indexArray := dict.GetArray("Index"); indexArray != nil {
		for _, v := range indexArray {
			iv, ok := v.(generic.IntegerObject)
			if !ok {
				return nil, nil, fmt.Errorf("%w: invalid Index array", ErrSourceParse)
			}
			index = append(index, int(iv))
		}
		if len(index)%2 != 0 {
			return nil, nil, fmt.Errorf("%w: odd Index array", ErrSourceParse)
		}
	} else {
		size, _ := dict.GetInt("Size")
		index = []int{0, int(size)}
	}

	var records []xrefRecord
	pos := 0
	for i := 0; i < len(index); i += 2 {
		startObj, count := index[i], index[i+1]
		for j := 0; j < count; j++ {
			if pos+entrySize > len(data) {
				return nil, nil, fmt.Errorf("%w: xref stream truncated", ErrSourceParse)
			}
			entry := parseXRefStreamEntry(data[pos:pos+entrySize], w)
			if entry != nil {
				records = append(records, xrefRecord{objNum: startObj + j, entry: entry})
			}
			pos += entrySize
		}
	}

	return records, generic.NewTrailer(dict), nil
}

// parseXRefStreamEntry decodes one binary entry. Unknown types are ignored
// (nil), as the format requires.
func parseXRefStreamEntry(data []byte, w [3]int) *XRefEntry {
	typ := int64(1)
	if w[0] > 0 {
		typ = readXRefField(data, 0, w[0])
	}
	field2 := readXRefField(data, w[0], w[1])
	field3 := readXRefField(data, w[0]+w[1], w[2])

	switch typ {
	case 0:
		return &XRefEntry{Type: XRefFree, Offset: field2, Generation: int(field3)}
	case 1:
		return &XRefEntry{Type: XRefInUse, Offset: field2, Generation: int(field3)}
	case 2:
		return &XRefEntry{Type: XRefCompressed, StreamObjNum: int(field2), IndexInStream: int(field3)}
	default:
		return nil
	}
}

func readXRefField(data []byte, offset, width int) int64 {
	var val int64
	for i := 0; i < width; i++ {
		val = val<<8 | int64(data[offset+i])
	}
	return val
}

// objectStream is a decoded object stream with its index parsed.
type objectStream struct {
	data    []byte
	first   int
	objNums []int
	offsets []int
}

func (r *PdfFileReader) loadObjectStream(streamObjNum int) (*objectStream, error) {
	if os, ok := r.objStreams[streamObjNum]; ok {
		return os, nil
	}

	obj, err := r.GetObject(streamObjNum)
	if err != nil {
		return nil, err
	}
	stream, ok := obj.(*generic.StreamObject)
	if !ok {
		return nil, fmt.Errorf("%w: object stream %d is not a stream", ErrSourceParse, streamObjNum)
	}

	data, err := filters.DecodeStream(stream)
	if err != nil {
		return nil, fmt.Errorf("%w: object stream %d: %v", ErrSourceParse, streamObjNum, err)
	}

	n, okN := stream.Dictionary.GetInt("N")
	first, okF := stream.Dictionary.GetInt("First")
	if !okN || !okF || n < 0 || first < 0 || int(first) > len(data) {
		return nil, fmt.Errorf("%w: object stream %d has invalid N or First", ErrSourceParse, streamObjNum)
	}

	os := &objectStream{data: data, first: int(first)}
	p := generic.NewParser(data[:first])
	for i := int64(0); i < n; i++ {
		num, err1 := strconv.Atoi(p.ReadToken())
		off, err2 := strconv.Atoi(p.ReadToken())
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("%w: object stream %d has a malformed index", ErrSourceParse, streamObjNum)
		}
		os.objNums = append(os.objNums, num)
		os.offsets = append(os.offsets, off)
	}

	r.objStreams[streamObjNum] = os
	return os, nil
}

func (r *PdfFileReader) getObjectFromStream(objNum, streamObjNum, index int) (generic.PdfObject, error) {
	os, err := r.loadObjectStream(streamObjNum)
	if err != nil {
		return nil, err
	}

	if index < 0 || index >= len(os.offsets) {
		return nil, fmt.Errorf("%w: object %d: index %d out of bounds in stream %d", ErrSourceParse, objNum, index, streamObjNum)
	}
	if os.objNums[index] != objNum {
		return nil, fmt.Errorf("%w: object stream %d holds object %d at index %d, not %d",
			ErrSourceParse, streamObjNum, os.objNums[index], index, objNum)
	}

	start := os.first + os.offsets[index]
	if start >= len(os.data) {
		return nil, fmt.Errorf("%w: object %d lies outside stream %d", ErrSourceParse, objNum, streamObjNum)
	}

	obj, err := generic.NewParser(os.data[start:]).ParseObjectOrReference()
	if err != nil {
		return nil, fmt.Errorf("%w: object %d: %v", ErrSourceParse, objNum, err)
	}
	return obj, nil
}

// Package pdftest builds small, well-formed PDF documents for tests.
package pdftest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/georgepadayatti/pdflogo/pdf/generic"
)

// Builder lays out indirect objects and a cross-reference section.
type Builder struct {
	Version string
	Root    generic.Reference
	Info    *generic.Reference
	// ID, when set, is written as the trailer's two-part file identifier.
	ID [][]byte
	// XRefStream writes an uncompressed cross-reference stream instead of a
	// classic table.
	XRefStream bool
	// OmitFinalEOL leaves "%%EOF" without a trailing newline.
	OmitFinalEOL bool

	objects    map[int]generic.PdfObject
	compressed map[int]bool
	nextObjNum int
	pages      generic.Reference
	kids       generic.ArrayObject
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		Version:    "1.7",
		objects:    make(map[int]generic.PdfObject),
		compressed: make(map[int]bool),
		nextObjNum: 1,
	}
}

// Reserve allocates an object number without assigning a value.
func (b *Builder) Reserve() generic.Reference {
	ref := generic.NewReference(b.nextObjNum, 0)
	b.nextObjNum++
	return ref
}

// Add adds an object and returns its reference.
func (b *Builder) Add(obj generic.PdfObject) generic.Reference {
	ref := b.Reserve()
	b.objects[ref.ObjectNumber] = obj
	return ref
}

// Set assigns the value of a reserved object.
func (b *Builder) Set(ref generic.Reference, obj generic.PdfObject) {
	b.objects[ref.ObjectNumber] = obj
}

// Stream adds an unfiltered content stream.
func (b *Builder) Stream(content string) generic.Reference {
	return b.Add(generic.NewStream(nil, []byte(content)))
}

// Compress moves the given objects into an object stream. It implies
// XRefStream. Streams cannot be compressed.
func (b *Builder) Compress(refs ...generic.Reference) {
	b.XRefStream = true
	for _, ref := range refs {
		b.compressed[ref.ObjectNumber] = true
	}
}

// Dict builds a dictionary from alternating keys and values.
func Dict(kv ...any) *generic.DictionaryObject {
	d := generic.NewDictionary()
	for i := 0; i+1 < len(kv); i += 2 {
		d.Set(kv[i].(string), kv[i+1].(generic.PdfObject))
	}
	return d
}

// PageTree returns the root page tree node, creating it and the catalog on
// first use.
func (b *Builder) PageTree() generic.Reference {
	if b.pages.ObjectNumber == 0 {
		b.pages = b.Reserve()
		b.Root = b.Add(Dict("Type", generic.NameObject("Catalog"), "Pages", b.pages))
	}
	return b.pages
}

// AddPage adds a page under the root page tree node. Type, Parent and a
// MediaBox are filled in when missing.
func (b *Builder) AddPage(page *generic.DictionaryObject) generic.Reference {
	parent := b.PageTree()
	if page == nil {
		page = generic.NewDictionary()
	}
	if !page.Has("Type") {
		page.Set("Type", generic.NameObject("Page"))
	}
	if !page.Has("Parent") {
		page.Set("Parent", parent)
	}
	if !page.Has("MediaBox") {
		page.Set("MediaBox", generic.NewArray(generic.IntegerObject(0), generic.IntegerObject(0),
			generic.IntegerObject(612), generic.IntegerObject(792)))
	}
	ref := b.Add(page)
	b.kids = append(b.kids, ref)
	return ref
}

// PagesDict returns extra entries for the root page tree node, such as
// inheritable Resources. It is applied when Bytes is called.
func (b *Builder) PagesDict(extra ...any) {
	b.PageTree()
	d := Dict(extra...)
	b.objects[b.pages.ObjectNumber] = d
}

func (b *Builder) finishPageTree() {
	if b.pages.ObjectNumber == 0 {
		return
	}
	node, _ := b.objects[b.pages.ObjectNumber].(*generic.DictionaryObject)
	if node == nil {
		node = generic.NewDictionary()
	}
	node.Set("Type", generic.NameObject("Pages"))
	if !node.Has("Kids") {
		node.Set("Kids", b.kids)
		node.Set("Count", generic.IntegerObject(len(b.kids)))
	}
	b.objects[b.pages.ObjectNumber] = node
}

// Bytes serialises the document.
func (b *Builder) Bytes() []byte {
	b.finishPageTree()

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%%PDF-%s\n", b.Version)
	buf.Write([]byte{0x25, 0xE2, 0xE3, 0xCF, 0xD3, 0x0A}) // Binary comment

	nums := make([]int, 0, len(b.objects))
	for num := range b.objects {
		nums = append(nums, num)
	}
	sort.Ints(nums)

	offsets := make(map[int]int)
	var packed []int
	for _, num := range nums {
		if b.compressed[num] {
			packed = append(packed, num)
			continue
		}
		offsets[num] = buf.Len()
		generic.NewIndirectObject(num, 0, b.objects[num]).Write(&buf)
	}

	size := b.nextObjNum
	objStmNum := 0
	if len(packed) > 0 {
		objStmNum = size
		size++
		offsets[objStmNum] = buf.Len()
		generic.NewIndirectObject(objStmNum, 0, b.objectStream(packed)).Write(&buf)
	}

	trailer := generic.NewDictionary()
	trailer.Set("Size", generic.IntegerObject(size))
	trailer.Set("Root", b.Root)
	if b.Info != nil {
		trailer.Set("Info", *b.Info)
	}
	if len(b.ID) == 2 {
		trailer.Set("ID", generic.NewArray(generic.NewHexString(b.ID[0]), generic.NewHexString(b.ID[1])))
	}

	xrefOffset := buf.Len()
	if b.XRefStream {
		xrefNum := size
		size++
		offsets[xrefNum] = xrefOffset
		trailer.Set("Size", generic.IntegerObject(size))

		var data bytes.Buffer
		for num := 0; num < size; num++ {
			if idx := indexOf(packed, num); idx >= 0 {
				data.WriteByte(2)
				writeUint(&data, uint64(objStmNum), 4)
				writeUint(&data, uint64(idx), 2)
			} else if off, ok := offsets[num]; ok {
				data.WriteByte(1)
				writeUint(&data, uint64(off), 4)
				writeUint(&data, 0, 2)
			} else {
				data.WriteByte(0)
				writeUint(&data, 0, 4)
				writeUint(&data, 0xFFFF, 2)
			}
		}
		trailer.Set("Type", generic.NameObject("XRef"))
		trailer.Set("W", generic.NewArray(generic.IntegerObject(1), generic.IntegerObject(4), generic.IntegerObject(2)))
		generic.NewIndirectObject(xrefNum, 0, generic.NewStream(trailer, data.Bytes())).Write(&buf)
	} else {
		fmt.Fprintf(&buf, "xref\n0 %d\n", size)
		for num := 0; num < size; num++ {
			if off, ok := offsets[num]; ok {
				fmt.Fprintf(&buf, "%010d %05d n \n", off, 0)
			} else {
				buf.WriteString("0000000000 65535 f \n")
			}
		}
		buf.WriteString("trailer\n")
		trailer.Write(&buf)
		buf.WriteString("\n")
	}

	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF", xrefOffset)
	if !b.OmitFinalEOL {
		buf.WriteString("\n")
	}
	return buf.Bytes()
}

func (b *Builder) objectStream(nums []int) *generic.StreamObject {
	var header, body bytes.Buffer
	for _, num := range nums {
		fmt.Fprintf(&header, "%d %d ", num, body.Len())
		b.objects[num].Write(&body)
		body.WriteString("\n")
	}

	dict := Dict(
		"Type", generic.NameObject("ObjStm"),
		"N", generic.IntegerObject(len(nums)),
		"First", generic.IntegerObject(header.Len()),
	)
	return generic.NewStream(dict, append(header.Bytes(), body.Bytes()...))
}

func writeUint(buf *bytes.Buffer, v uint64, width int) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	buf.Write(tmp[8-width:])
}

func indexOf(nums []int, num int) int {
	for i, n := range nums {
		if n == num {
			return i
		}
	}
	return -1
}

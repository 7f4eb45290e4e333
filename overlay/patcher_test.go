package overlay

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/georgepadayatti/pdflogo/pdf/generic"
	"github.com/georgepadayatti/pdflogo/pdf/images"
	"github.com/georgepadayatti/pdflogo/pdf/pdftest"
	"github.com/georgepadayatti/pdflogo/pdf/reader"
)

func testImage() *images.PDFImage {
	return &images.PDFImage{
		Width:            2,
		Height:           1,
		BitsPerComponent: 8,
		ColorSpace:       images.ColorSpaceRGB,
		Components:       3,
		Data:             []byte{1, 2, 3, 4, 5, 6},
	}
}

type patched struct {
	src    *reader.PdfFileReader
	out    *reader.PdfFileReader
	update string
	result *Result
}

func patchDocument(t *testing.T, data []byte, opts Options) patched {
	t.Helper()
	src, err := reader.NewPdfFileReaderFromBytes(data)
	if err != nil {
		t.Fatalf("Failed to read source: %v", err)
	}
	p, err := NewPatcher(opts)
	if err != nil {
		t.Fatalf("NewPatcher failed: %v", err)
	}
	var update bytes.Buffer
	result, err := p.Patch(src, testImage(), &update)
	if err != nil {
		t.Fatalf("Patch failed: %v", err)
	}
	out, err := reader.NewPdfFileReaderFromBytes(append(append([]byte{}, data...), update.Bytes()...))
	if err != nil {
		t.Fatalf("Failed to read patched document: %v", err)
	}
	return patched{src: src, out: out, update: update.String(), result: result}
}

func (p patched) page(t *testing.T, i int) *generic.DictionaryObject {
	t.Helper()
	page, err := p.out.GetPage(i)
	if err != nil {
		t.Fatalf("GetPage(%d) failed: %v", i, err)
	}
	return page.Dict
}

func (p patched) streamContent(t *testing.T, ref generic.PdfObject) string {
	t.Helper()
	obj, err := p.out.ResolveReference(ref)
	if err != nil {
		t.Fatalf("resolve %v: %v", ref, err)
	}
	stream, ok := obj.(*generic.StreamObject)
	if !ok {
		t.Fatalf("%v is %T, want a stream", ref, obj)
	}
	return string(stream.Data)
}

// writes counts how many times object num is written in the update.
func (p patched) writes(num int) int {
	return strings.Count("\n"+p.update, fmt.Sprintf("\n%d 0 obj\n", num))
}

// directDict follows keys through nested direct dictionaries and returns nil
// when one is missing or not a dictionary.
func directDict(d *generic.DictionaryObject, keys ...string) *generic.DictionaryObject {
	for _, key := range keys {
		if d == nil {
			return nil
		}
		d, _ = d.Get(key).(*generic.DictionaryObject)
	}
	return d
}

func serialize(t *testing.T, obj generic.PdfObject) string {
	t.Helper()
	var buf bytes.Buffer
	if err := obj.Write(&buf); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	return buf.String()
}

const defaultOverlay = "q 0.5 0 0 0.5 470 790 cm /myImage Do Q"

func TestSinglePageWithoutContentsOrResources(t *testing.T) {
	b := pdftest.NewBuilder()
	b.AddPage(nil)
	p := patchDocument(t, b.Bytes(), DefaultOptions())

	page := p.page(t, 0)
	streamRef, ok := page.Get("Contents").(generic.Reference)
	if !ok {
		t.Fatalf("Contents = %T, want a single reference", page.Get("Contents"))
	}
	if got := p.streamContent(t, streamRef); got != defaultOverlay {
		t.Errorf("overlay stream = %q, want %q", got, defaultOverlay)
	}

	resources := directDict(page, "Resources")
	if resources == nil {
		t.Fatal("page has no direct Resources")
	}
	xobjects := directDict(resources, "XObject")
	if diff := cmp.Diff([]string{"myImage"}, xobjects.Keys()); diff != "" {
		t.Errorf("XObject names mismatch (-want +got):\n%s", diff)
	}
	if got := xobjects.Get("myImage"); got != p.result.Form {
		t.Errorf("myImage = %v, want form %v", got, p.result.Form)
	}
	if diff := cmp.Diff([]string{"myImage"}, p.result.Names); diff != "" {
		t.Errorf("Names mismatch (-want +got):\n%s", diff)
	}
}

func TestOverlayForm(t *testing.T) {
	b := pdftest.NewBuilder()
	b.AddPage(nil)
	p := patchDocument(t, b.Bytes(), DefaultOptions())

	obj, err := p.out.ResolveReference(p.result.Form)
	if err != nil {
		t.Fatal(err)
	}
	form := obj.(*generic.StreamObject)
	if form.Dictionary.GetName("Subtype") != "Form" {
		t.Errorf("form Subtype = %q", form.Dictionary.GetName("Subtype"))
	}
	if got := serialize(t, form.Dictionary.Get("BBox")); got != "[0 0 2 1]" {
		t.Errorf("BBox = %s, want [0 0 2 1]", got)
	}
	if got := string(form.Data); got != "q 2 0 0 1 0 0 cm /Im0 Do Q" {
		t.Errorf("form content = %q", got)
	}

	imageRef := directDict(form.Dictionary, "Resources", "XObject").Get("Im0")
	obj, err = p.out.ResolveReference(imageRef)
	if err != nil {
		t.Fatal(err)
	}
	img := obj.(*generic.StreamObject)
	if img.Dictionary.GetName("Subtype") != "Image" || img.Dictionary.Has("Filter") || img.Dictionary.Has("SMask") {
		t.Errorf("unexpected image dictionary %s", serialize(t, img.Dictionary))
	}
	if !bytes.Equal(img.Data, []byte{1, 2, 3, 4, 5, 6}) {
		t.Errorf("image samples = %v", img.Data)
	}
}

func TestOverlayFormSoftMask(t *testing.T) {
	b := pdftest.NewBuilder()
	b.AddPage(nil)
	src, err := reader.NewPdfFileReaderFromBytes(b.Bytes())
	if err != nil {
		t.Fatal(err)
	}

	img := testImage()
	img.AlphaData = []byte{0xFF, 0x00}
	p, _ := NewPatcher(DefaultOptions())
	var update bytes.Buffer
	if _, err := p.Patch(src, img, &update); err != nil {
		t.Fatalf("Patch failed: %v", err)
	}
	if !strings.Contains(update.String(), "/SMask ") {
		t.Error("image with alpha should reference a soft mask")
	}
	if !strings.Contains(update.String(), "stream\n\xff\x00\nendstream") {
		t.Error("soft mask samples not written")
	}
}

func TestContentsTransform(t *testing.T) {
	testCases := []struct {
		name  string
		setup func(b *pdftest.Builder) (*generic.DictionaryObject, []generic.Reference)
	}{
		{"absent", func(b *pdftest.Builder) (*generic.DictionaryObject, []generic.Reference) {
			return pdftest.Dict(), nil
		}},
		{"single", func(b *pdftest.Builder) (*generic.DictionaryObject, []generic.Reference) {
			a := b.Stream("0 0 m 10 10 l S")
			return pdftest.Dict("Contents", a), []generic.Reference{a}
		}},
		{"array", func(b *pdftest.Builder) (*generic.DictionaryObject, []generic.Reference) {
			a := b.Stream("q")
			c := b.Stream("Q")
			return pdftest.Dict("Contents", generic.NewArray(a, c)), []generic.Reference{a, c}
		}},
		{"indirect array", func(b *pdftest.Builder) (*generic.DictionaryObject, []generic.Reference) {
			a := b.Stream("q")
			c := b.Stream("Q")
			arr := b.Add(generic.NewArray(a, c))
			return pdftest.Dict("Contents", arr), []generic.Reference{a, c}
		}},
		{"empty array", func(b *pdftest.Builder) (*generic.DictionaryObject, []generic.Reference) {
			return pdftest.Dict("Contents", generic.NewArray()), nil
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b := pdftest.NewBuilder()
			dict, existing := tc.setup(b)
			b.AddPage(dict)
			p := patchDocument(t, b.Bytes(), DefaultOptions())

			contents := p.page(t, 0).Get("Contents")
			if tc.name == "absent" {
				if _, ok := contents.(generic.Reference); !ok {
					t.Fatalf("Contents = %s, want a single reference", serialize(t, contents))
				}
				return
			}

			arr, ok := contents.(generic.ArrayObject)
			if !ok {
				t.Fatalf("Contents = %s, want a direct array", serialize(t, contents))
			}
			if len(arr) != len(existing)+1 {
				t.Fatalf("Contents has %d entries, want %d", len(arr), len(existing)+1)
			}
			for i, ref := range existing {
				if arr[i] != ref {
					t.Errorf("Contents[%d] = %v, want %v", i, arr[i], ref)
				}
			}
			if got := p.streamContent(t, arr[len(arr)-1]); got != defaultOverlay {
				t.Errorf("last stream = %q, want the overlay", got)
			}
		})
	}
}

func TestWrapExistingContent(t *testing.T) {
	b := pdftest.NewBuilder()
	a := b.Stream("1 0 0 1 50 50 cm")
	b.AddPage(pdftest.Dict("Contents", a))
	b.AddPage(pdftest.Dict("Contents", generic.NewArray(a)))
	b.AddPage(nil)

	opts := DefaultOptions()
	opts.WrapExistingContent = true
	p := patchDocument(t, b.Bytes(), opts)

	var wrapRefs generic.ArrayObject
	for i := 0; i < 2; i++ {
		arr, ok := p.page(t, i).Get("Contents").(generic.ArrayObject)
		if !ok || len(arr) != 4 {
			t.Fatalf("page %d Contents = %v, want 4 entries", i, p.page(t, i).Get("Contents"))
		}
		if p.streamContent(t, arr[0]) != "q" || arr[1] != a || p.streamContent(t, arr[2]) != "Q" {
			t.Errorf("page %d Contents = %s, want [q A Q overlay]", i, serialize(t, arr))
		}
		if i == 0 {
			wrapRefs = generic.NewArray(arr[0], arr[2])
		} else if arr[0] != wrapRefs[0] || arr[2] != wrapRefs[1] {
			t.Errorf("page %d does not share the q/Q streams", i)
		}
	}

	if _, ok := p.page(t, 2).Get("Contents").(generic.Reference); !ok {
		t.Error("page without contents should not be wrapped")
	}
}

func TestResourcesDirect(t *testing.T) {
	b := pdftest.NewBuilder()
	font := b.Add(pdftest.Dict("Type", generic.NameObject("Font"), "Subtype", generic.NameObject("Type1"),
		"BaseFont", generic.NameObject("Helvetica")))
	logo := b.Stream("")
	resources := pdftest.Dict(
		"Font", pdftest.Dict("F1", font),
		"XObject", pdftest.Dict("myImage", logo),
		"ProcSet", generic.NewArray(generic.NameObject("PDF"), generic.NameObject("Text")),
	)
	b.AddPage(pdftest.Dict("Resources", resources))
	p := patchDocument(t, b.Bytes(), DefaultOptions())

	got := directDict(p.page(t, 0), "Resources")
	if got == nil {
		t.Fatal("page lost its direct Resources")
	}
	for _, key := range []string{"Font", "ProcSet"} {
		if diff := cmp.Diff(serialize(t, resources.Get(key)), serialize(t, got.Get(key))); diff != "" {
			t.Errorf("/%s changed (-want +got):\n%s", key, diff)
		}
	}

	xobjects := directDict(got, "XObject")
	if diff := cmp.Diff([]string{"myImage", "n"}, xobjects.Keys()); diff != "" {
		t.Errorf("XObject names mismatch (-want +got):\n%s", diff)
	}
	if xobjects.Get("myImage") != logo {
		t.Error("existing XObject entry was not kept")
	}
	if xobjects.Get("n") != p.result.Form {
		t.Error("new XObject entry does not point at the form")
	}

	arr := p.page(t, 0).Get("Contents")
	if got := p.streamContent(t, arr); got != "q 0.5 0 0 0.5 470 790 cm /n Do Q" {
		t.Errorf("overlay stream = %q", got)
	}
}

func TestResourcesIndirect(t *testing.T) {
	b := pdftest.NewBuilder()
	im1 := b.Stream("")
	res := b.Add(pdftest.Dict("XObject", pdftest.Dict("Im1", im1)))
	pageRef := b.AddPage(pdftest.Dict("Resources", res))
	p := patchDocument(t, b.Bytes(), DefaultOptions())

	page := p.page(t, 0)
	if page.Get("Resources") != res {
		t.Fatalf("page Resources = %v, want unchanged %v", page.Get("Resources"), res)
	}

	obj, err := p.out.GetObject(res.ObjectNumber)
	if err != nil {
		t.Fatal(err)
	}
	xobjects := directDict(obj.(*generic.DictionaryObject), "XObject")
	if diff := cmp.Diff([]string{"Im1", "J"}, xobjects.Keys()); diff != "" {
		t.Errorf("XObject names mismatch (-want +got):\n%s", diff)
	}
	if xobjects.Get("J") != p.result.Form {
		t.Error("new XObject entry does not point at the form")
	}
	if p.writes(res.ObjectNumber) != 1 || p.writes(pageRef.ObjectNumber) != 1 {
		t.Errorf("resources written %d times, page %d times", p.writes(res.ObjectNumber), p.writes(pageRef.ObjectNumber))
	}
}

func TestResourcesIndirectXObjectMap(t *testing.T) {
	b := pdftest.NewBuilder()
	im1 := b.Stream("")
	xmap := b.Add(pdftest.Dict("Im1", im1, "Im2", im1))
	b.AddPage(pdftest.Dict("Resources", pdftest.Dict("XObject", xmap)))
	p := patchDocument(t, b.Bytes(), DefaultOptions())

	xobjects := directDict(p.page(t, 0), "Resources", "XObject")
	if xobjects == nil {
		t.Fatal("XObject map should be written as a direct dictionary")
	}
	if diff := cmp.Diff([]string{"Im1", "Im2", "Jn"}, xobjects.Keys()); diff != "" {
		t.Errorf("XObject names mismatch (-want +got):\n%s", diff)
	}
	if p.writes(xmap.ObjectNumber) != 0 {
		t.Error("the source XObject map object should be left alone")
	}
}

func TestResourcesInherited(t *testing.T) {
	b := pdftest.NewBuilder()
	font := b.Add(pdftest.Dict("Type", generic.NameObject("Font")))
	pages := b.PageTree()
	page := b.AddPage(nil)
	b.PagesDict(
		"Kids", generic.NewArray(page),
		"Count", generic.IntegerObject(1),
		"Resources", pdftest.Dict("Font", pdftest.Dict("F1", font)),
	)
	p := patchDocument(t, b.Bytes(), DefaultOptions())

	resources := directDict(p.page(t, 0), "Resources")
	if resources == nil {
		t.Fatal("page should get its own Resources")
	}
	if directDict(resources, "Font").Get("F1") != font {
		t.Error("inherited fonts were not carried over")
	}
	if directDict(resources, "XObject").Get("myImage") != p.result.Form {
		t.Error("overlay missing from page resources")
	}
	if p.writes(pages.ObjectNumber) != 0 {
		t.Error("the page tree node should not be rewritten")
	}
}

func TestSharedIndirectResourcesPatchedOnce(t *testing.T) {
	b := pdftest.NewBuilder()
	res := b.Add(pdftest.Dict("XObject", pdftest.Dict("Im1", b.Stream(""))))
	for range 3 {
		b.AddPage(pdftest.Dict("Resources", res))
	}
	p := patchDocument(t, b.Bytes(), DefaultOptions())

	if n := p.writes(res.ObjectNumber); n != 1 {
		t.Errorf("shared resources written %d times, want 1", n)
	}
	if diff := cmp.Diff([]string{"J", "J", "J"}, p.result.Names); diff != "" {
		t.Errorf("Names mismatch (-want +got):\n%s", diff)
	}
	for i := range 3 {
		if got := p.streamContent(t, p.page(t, i).Get("Contents")); !strings.Contains(got, "/J Do") {
			t.Errorf("page %d overlay = %q", i, got)
		}
	}
}

func TestOtherPageKeysUnchanged(t *testing.T) {
	b := pdftest.NewBuilder()
	annot := b.Add(pdftest.Dict("Type", generic.NameObject("Annot"), "Subtype", generic.NameObject("Link")))
	page := pdftest.Dict(
		"MediaBox", generic.NewArray(generic.IntegerObject(0), generic.IntegerObject(0), generic.RealObject(595.28), generic.RealObject(841.89)),
		"Rotate", generic.IntegerObject(90),
		"Annots", generic.NewArray(annot),
		"UserUnit", generic.RealObject(1.5),
		"PieceInfo", pdftest.Dict("App", pdftest.Dict("Private", generic.NewLiteralString("(x)\\y"), "Flag", generic.BooleanObject(true))),
		"Contents", b.Stream("BT ET"),
	)
	b.AddPage(page)
	p := patchDocument(t, b.Bytes(), DefaultOptions())

	srcPage, _ := p.src.GetPage(0)
	outPage := p.page(t, 0)
	var srcKeys, outKeys []string
	for _, key := range srcPage.Dict.Keys() {
		if key == "Contents" || key == "Resources" {
			continue
		}
		srcKeys = append(srcKeys, key)
		if diff := cmp.Diff(serialize(t, srcPage.Dict.Get(key)), serialize(t, outPage.Get(key))); diff != "" {
			t.Errorf("/%s changed (-want +got):\n%s", key, diff)
		}
	}
	for _, key := range outPage.Keys() {
		if key != "Contents" && key != "Resources" {
			outKeys = append(outKeys, key)
		}
	}
	if diff := cmp.Diff(srcKeys, outKeys); diff != "" {
		t.Errorf("page keys mismatch (-want +got):\n%s", diff)
	}
}

func TestNonASCIIResourceNamesSurvive(t *testing.T) {
	b := pdftest.NewBuilder()
	font := b.Add(pdftest.Dict("Type", generic.NameObject("Font")))
	b.AddPage(pdftest.Dict(
		"Resources", pdftest.Dict("Font", pdftest.Dict("F\xc3\xa9", font)),
		"Contents", b.Stream("BT /F#C3#A9 12 Tf ET"),
	))
	p := patchDocument(t, b.Bytes(), DefaultOptions())

	fonts := directDict(p.page(t, 0), "Resources", "Font")
	if fonts == nil {
		t.Fatal("page lost its Font map")
	}
	if diff := cmp.Diff([]string{"F\xc3\xa9"}, fonts.Keys()); diff != "" {
		t.Errorf("font keys mismatch (-want +got):\n%s", diff)
	}
	if fonts.Get("F\xc3\xa9") != font {
		t.Error("font entry no longer points at the font")
	}
	if !strings.Contains(p.update, "/F#C3#A9 ") {
		t.Errorf("update does not spell the font name as /F#C3#A9:\n%s", p.update)
	}
}

func TestStaleAnnotationReferenceWrittenAsNull(t *testing.T) {
	b := pdftest.NewBuilder()
	annot := b.Add(pdftest.Dict("Type", generic.NameObject("Annot")))
	b.AddPage(pdftest.Dict("Annots", generic.NewArray(annot, generic.NewReference(4000, 0))))
	p := patchDocument(t, b.Bytes(), DefaultOptions())

	want := "[" + annot.String() + " null]"
	if got := serialize(t, p.page(t, 0).Get("Annots")); got != want {
		t.Errorf("Annots = %s, want %s", got, want)
	}
	if p.result.Pages != 1 {
		t.Errorf("Pages = %d, want 1", p.result.Pages)
	}
}

func TestPageCountPreserved(t *testing.T) {
	b := pdftest.NewBuilder()
	pages := b.PageTree()
	mid := b.Reserve()
	leaf1 := b.Add(pdftest.Dict("Type", generic.NameObject("Page"), "Parent", mid))
	leaf2 := b.Add(pdftest.Dict("Type", generic.NameObject("Page"), "Parent", mid, "Contents", b.Stream("")))
	b.Set(mid, pdftest.Dict("Type", generic.NameObject("Pages"), "Parent", pages,
		"Kids", generic.NewArray(leaf1, leaf2), "Count", generic.IntegerObject(2)))
	leaf3 := b.Add(pdftest.Dict("Type", generic.NameObject("Page"), "Parent", pages))
	b.PagesDict("Kids", generic.NewArray(mid, leaf3), "Count", generic.IntegerObject(3))

	p := patchDocument(t, b.Bytes(), DefaultOptions())
	if got := p.out.GetPageCount(); got != 3 {
		t.Fatalf("page count = %d, want 3", got)
	}
	if p.result.Pages != 3 {
		t.Errorf("Result.Pages = %d, want 3", p.result.Pages)
	}
	for i, want := range []generic.Reference{leaf1, leaf2, leaf3} {
		page, _ := p.out.GetPage(i)
		if page.Ref != want {
			t.Errorf("page %d = %v, want %v", i, page.Ref, want)
		}
	}
}

func TestXRefStreamSource(t *testing.T) {
	b := pdftest.NewBuilder()
	res := b.Add(pdftest.Dict("ProcSet", generic.NewArray(generic.NameObject("PDF"))))
	page := b.AddPage(pdftest.Dict("Resources", res))
	b.Compress(page, res)
	p := patchDocument(t, b.Bytes(), DefaultOptions())

	if !p.out.HasXRefStream {
		t.Error("update should use a cross-reference stream like its source")
	}
	obj, err := p.out.GetObject(res.ObjectNumber)
	if err != nil {
		t.Fatal(err)
	}
	if directDict(obj.(*generic.DictionaryObject), "XObject") == nil {
		t.Error("compressed resource dictionary was not patched")
	}
}

func TestPatchTwiceAddsTwoOverlays(t *testing.T) {
	b := pdftest.NewBuilder()
	b.AddPage(nil)
	first := patchDocument(t, b.Bytes(), DefaultOptions())
	second := patchDocument(t, first.out.Data(), DefaultOptions())

	arr, ok := second.page(t, 0).Get("Contents").(generic.ArrayObject)
	if !ok || len(arr) != 2 {
		t.Fatalf("Contents = %v, want two overlay streams", second.page(t, 0).Get("Contents"))
	}
	if got := second.streamContent(t, arr[0]); got != defaultOverlay {
		t.Errorf("first overlay = %q", got)
	}
	if got := second.streamContent(t, arr[1]); got != "q 0.5 0 0 0.5 470 790 cm /n Do Q" {
		t.Errorf("second overlay = %q", got)
	}
	xobjects := directDict(second.page(t, 0), "Resources", "XObject")
	if diff := cmp.Diff([]string{"myImage", "n"}, xobjects.Keys()); diff != "" {
		t.Errorf("XObject names mismatch (-want +got):\n%s", diff)
	}
}

func TestPlacementAndName(t *testing.T) {
	b := pdftest.NewBuilder()
	b.AddPage(nil)
	opts := Options{
		Placement:    Placement{X: 10.25, Y: -3, Scale: 2},
		ResourceName: "Logo",
	}
	p := patchDocument(t, b.Bytes(), opts)

	if got := p.streamContent(t, p.page(t, 0).Get("Contents")); got != "q 2 0 0 2 10.25 -3 cm /Logo Do Q" {
		t.Errorf("overlay stream = %q", got)
	}
}

func TestFailureLeavesSinkEmpty(t *testing.T) {
	b := pdftest.NewBuilder()
	for range 3 {
		b.AddPage(nil)
	}
	src, err := reader.NewPdfFileReaderFromBytes(b.Bytes())
	if err != nil {
		t.Fatal(err)
	}

	injected := errors.New("injected failure")
	p, _ := NewPatcher(DefaultOptions())
	p.afterResources = func(page int) error {
		if page == 1 {
			return injected
		}
		return nil
	}

	var sink bytes.Buffer
	if _, err := p.Patch(src, testImage(), &sink); !errors.Is(err, injected) {
		t.Fatalf("error = %v, want injected failure", err)
	}
	if sink.Len() != 0 {
		t.Errorf("sink received %d bytes after a failed run", sink.Len())
	}
}

func TestPatchErrors(t *testing.T) {
	testCases := []struct {
		name  string
		setup func(b *pdftest.Builder)
		want  error
	}{
		{"dangling contents", func(b *pdftest.Builder) {
			b.AddPage(pdftest.Dict("Contents", generic.NewArray(generic.NewReference(99, 0))))
		}, reader.ErrSourceParse},
		{"contents is a number", func(b *pdftest.Builder) {
			b.AddPage(pdftest.Dict("Contents", generic.IntegerObject(3)))
		}, reader.ErrSourceParse},
		{"xobject map is an array", func(b *pdftest.Builder) {
			b.AddPage(pdftest.Dict("Resources", pdftest.Dict("XObject", generic.NewArray())))
		}, reader.ErrSourceParse},
		{"resources point at a stream", func(b *pdftest.Builder) {
			b.AddPage(pdftest.Dict("Resources", b.Stream("")))
		}, reader.ErrSourceParse},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b := pdftest.NewBuilder()
			tc.setup(b)
			src, err := reader.NewPdfFileReaderFromBytes(b.Bytes())
			if err != nil {
				t.Fatal(err)
			}
			p, _ := NewPatcher(DefaultOptions())
			var sink bytes.Buffer
			if _, err := p.Patch(src, testImage(), &sink); !errors.Is(err, tc.want) {
				t.Errorf("error = %v, want %v", err, tc.want)
			}
			if sink.Len() != 0 {
				t.Error("sink should be empty")
			}
		})
	}
}

func TestNewPatcherValidation(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(o *Options)
		wantErr bool
	}{
		{"defaults", func(o *Options) {}, false},
		{"zero scale", func(o *Options) { o.Placement.Scale = 0 }, true},
		{"negative scale", func(o *Options) { o.Placement.Scale = -1 }, true},
		{"negative max pixels", func(o *Options) { o.MaxPixels = -5 }, true},
		{"empty name uses default", func(o *Options) { o.ResourceName = "" }, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultOptions()
			tc.mutate(&opts)
			_, err := NewPatcher(opts)
			if tc.wantErr && !errors.Is(err, ErrInvalidOptions) {
				t.Errorf("error = %v, want ErrInvalidOptions", err)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestPatchNilImage(t *testing.T) {
	b := pdftest.NewBuilder()
	b.AddPage(nil)
	src, _ := reader.NewPdfFileReaderFromBytes(b.Bytes())
	p, _ := NewPatcher(DefaultOptions())
	if _, err := p.Patch(src, nil, &bytes.Buffer{}); !errors.Is(err, images.ErrAssetLoad) {
		t.Errorf("error = %v, want ErrAssetLoad", err)
	}
}

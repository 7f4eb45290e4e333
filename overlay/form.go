package overlay

import (
	"github.com/georgepadayatti/pdflogo/pdf/generic"
	"github.com/georgepadayatti/pdflogo/pdf/images"
	"github.com/georgepadayatti/pdflogo/pdf/writer"
)

// formImageName is the image's name inside the form's own resources.
const formImageName = "Im0"

// Operators of the streams this package writes.
const (
	opSaveState    = "q"
	opRestoreState = "Q"
	opSetCTM       = "cm"
	opPaintXObject = "Do"
)

// writeForm writes the overlay image, its soft mask if any, and a form
// XObject painting the image over its bounding box [0 0 w h]. It returns
// the form's reference.
func writeForm(ctx *writer.ObjectsContext, img *images.PDFImage) (generic.Reference, error) {
	var smask *generic.Reference
	if img.HasAlpha() {
		ref, err := writeStream(ctx, img.AlphaDictionary(), img.AlphaData, false)
		if err != nil {
			return generic.Reference{}, err
		}
		smask = &ref
	}

	imageRef, err := writeStream(ctx, img.Dictionary(smask), img.Data, img.Filter != "")
	if err != nil {
		return generic.Reference{}, err
	}

	w := float64(img.Width)
	h := float64(img.Height)

	dict := generic.NewDictionary()
	dict.Set("Type", generic.NameObject("XObject"))
	dict.Set("Subtype", generic.NameObject("Form"))
	dict.Set("BBox", generic.NewArray(
		generic.IntegerObject(0),
		generic.IntegerObject(0),
		generic.IntegerObject(img.Width),
		generic.IntegerObject(img.Height),
	))
	xobjects := generic.NewDictionary()
	xobjects.Set(formImageName, imageRef)
	resources := generic.NewDictionary()
	resources.Set("XObject", xobjects)
	dict.Set("Resources", resources)

	id := ctx.AllocateObjectID()
	obj, err := ctx.StartNewIndirectObject(id)
	if err != nil {
		return generic.Reference{}, err
	}
	stream, err := obj.StartUnfilteredStream(dict)
	if err != nil {
		return generic.Reference{}, err
	}
	if err := paint(stream, w, h, 0, 0, formImageName); err != nil {
		return generic.Reference{}, err
	}
	if err := stream.End(); err != nil {
		return generic.Reference{}, err
	}
	if err := obj.End(); err != nil {
		return generic.Reference{}, err
	}
	return obj.Reference(), nil
}

// writeStream writes data as a new stream object. When encoded is set the
// dictionary names the filter the data already carries.
func writeStream(ctx *writer.ObjectsContext, dict *generic.DictionaryObject, data []byte, encoded bool) (generic.Reference, error) {
	id := ctx.AllocateObjectID()
	obj, err := ctx.StartNewIndirectObject(id)
	if err != nil {
		return generic.Reference{}, err
	}

	var stream *writer.StreamWriter
	if encoded {
		stream, err = obj.StartEncodedStream(dict)
	} else {
		stream, err = obj.StartUnfilteredStream(dict)
	}
	if err != nil {
		return generic.Reference{}, err
	}
	if _, err := stream.Write(data); err != nil {
		return generic.Reference{}, err
	}
	if err := stream.End(); err != nil {
		return generic.Reference{}, err
	}
	if err := obj.End(); err != nil {
		return generic.Reference{}, err
	}
	return obj.Reference(), nil
}

// paint writes "q sx 0 0 sy x y cm /name Do Q". Token writes only fail once
// the stream has ended, which the final write reports.
func paint(s *writer.StreamWriter, sx, sy, x, y float64, name string) error {
	s.WriteKeyword(opSaveState)
	for _, v := range []float64{sx, 0, 0, sy, x, y} {
		s.WriteNumber(v)
	}
	s.WriteKeyword(opSetCTM)
	s.WriteName(name)
	s.WriteKeyword(opPaintXObject)
	return s.WriteKeyword(opRestoreState)
}

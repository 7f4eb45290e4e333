// Package overlay paints a raster image on every page of an existing PDF.
//
// The overlay is written once as a form XObject. Each page object is
// rewritten with an extra content stream that draws the form, and its
// resources gain an XObject entry naming it. All changes are appended to
// the source as a single incremental update; the original bytes are never
// rewritten.
package overlay

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/georgepadayatti/pdflogo/pdf/generic"
	"github.com/georgepadayatti/pdflogo/pdf/images"
	"github.com/georgepadayatti/pdflogo/pdf/reader"
	"github.com/georgepadayatti/pdflogo/pdf/writer"
)

// ErrInvalidOptions is returned for unusable patcher options.
var ErrInvalidOptions = errors.New("invalid overlay options")

// Default placement of the overlay.
const (
	DefaultX     = 470
	DefaultY     = 790
	DefaultScale = 0.5
)

// Placement positions the overlay on the page. The form's lower left corner
// is moved to (X, Y) and the form is scaled by Scale in both directions.
type Placement struct {
	X, Y  float64
	Scale float64
}

// Options configures a Patcher.
type Options struct {
	Placement Placement

	// ResourceName is the XObject name used on pages without XObjects.
	// Defaults to DefaultResourceName.
	ResourceName string

	// WrapExistingContent brackets the existing page content in q/Q so an
	// unbalanced graphics state cannot leak into the overlay. Two shared
	// streams are added for the whole document.
	WrapExistingContent bool

	// MaxPixels bounds the longer side of the overlay image; larger images
	// are downsampled when loaded. Zero keeps the original size.
	MaxPixels int

	// Logger receives progress messages. Defaults to discarding them.
	Logger *slog.Logger
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		Placement: Placement{
			X:     DefaultX,
			Y:     DefaultY,
			Scale: DefaultScale,
		},
		ResourceName: DefaultResourceName,
	}
}

// Result describes a completed update.
type Result struct {
	// Pages is the number of pages patched.
	Pages int
	// Form is the reference of the overlay form XObject.
	Form generic.Reference
	// Names holds the XObject name the overlay got on each page.
	Names []string
}

// Patcher applies an overlay to documents.
type Patcher struct {
	opts  Options
	namer Namer
	log   *slog.Logger

	// afterResources, when set, runs once a page's Resources entry has been
	// written. A non-nil error aborts the run.
	afterResources func(page int) error
}

// NewPatcher creates a patcher with the given options.
func NewPatcher(opts Options) (*Patcher, error) {
	pl := opts.Placement
	if math.IsNaN(pl.X) || math.IsInf(pl.X, 0) || math.IsNaN(pl.Y) || math.IsInf(pl.Y, 0) {
		return nil, fmt.Errorf("%w: offset (%v, %v) is not finite", ErrInvalidOptions, pl.X, pl.Y)
	}
	if !(pl.Scale > 0) || math.IsInf(pl.Scale, 0) {
		return nil, fmt.Errorf("%w: scale %v must be positive", ErrInvalidOptions, pl.Scale)
	}
	if opts.MaxPixels < 0 {
		return nil, fmt.Errorf("%w: max pixels %d is negative", ErrInvalidOptions, opts.MaxPixels)
	}
	if opts.ResourceName == "" {
		opts.ResourceName = DefaultResourceName
	}

	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Patcher{
		opts:  opts,
		namer: Namer{Default: opts.ResourceName},
		log:   log,
	}, nil
}

// run holds the state of one update.
type run struct {
	src    *reader.PdfFileReader
	ctx    *writer.ObjectsContext
	copier *writer.CopyingContext
	form   generic.Reference

	// patched maps indirect resource dictionaries already rewritten in this
	// run to the name the overlay got in them.
	patched map[int]string

	wrapOpen, wrapClose *generic.Reference
}

// Patch writes an update of src that paints img on every page. Only the
// update reaches sink, in one write once every page has been patched; on
// error nothing is written.
func (p *Patcher) Patch(src *reader.PdfFileReader, img *images.PDFImage, sink io.Writer) (*Result, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: no overlay image", images.ErrAssetLoad)
	}

	ctx := writer.NewObjectsContext(src, sink)
	r := &run{
		src:     src,
		ctx:     ctx,
		copier:  writer.NewCopyingContext(src, ctx),
		patched: make(map[int]string),
	}

	form, err := writeForm(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("failed to write overlay form: %w", err)
	}
	r.form = form

	result := &Result{Form: form}
	for i := 0; i < src.GetPageCount(); i++ {
		name, err := p.patchPage(r, i)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		result.Names = append(result.Names, name)
		result.Pages++
	}

	if err := ctx.Finalize(); err != nil {
		return nil, err
	}

	if dangling := r.copier.DanglingReferences(); len(dangling) > 0 {
		p.log.Warn("dangling references written as null", "count", len(dangling), "first", dangling[0].String())
	}
	p.log.Info("overlay applied", "pages", result.Pages, "form", form.String())
	return result, nil
}

func (p *Patcher) patchPage(r *run, index int) (string, error) {
	page, err := r.src.GetPage(index)
	if err != nil {
		return "", err
	}
	contents, err := r.src.ClassifyContents(page)
	if err != nil {
		return "", err
	}
	resources, err := r.src.ClassifyResources(page)
	if err != nil {
		return "", err
	}

	// A page without its own Resources gets a copy of the inherited ones,
	// extended with the overlay.
	if _, ok := resources.(reader.ResourcesAbsent); ok {
		inherited, err := r.src.InheritedResources(page)
		if err != nil {
			return "", err
		}
		if inherited != nil {
			resources = reader.ResourcesDirect{Dict: inherited}
		}
	}

	if _, absent := contents.(reader.ContentsAbsent); p.opts.WrapExistingContent && !absent {
		if err := r.ensureWrapStreams(); err != nil {
			return "", err
		}
	}

	streamRef := generic.NewReference(r.ctx.AllocateObjectID(), 0)

	w, err := r.ctx.StartModifiedIndirectObject(page.Ref.ObjectNumber)
	if err != nil {
		return "", err
	}
	if err := w.StartDictionary(); err != nil {
		return "", err
	}
	for _, key := range page.Dict.Keys() {
		if key == "Contents" || key == "Resources" {
			continue
		}
		if err := w.WriteKey(key); err != nil {
			return "", err
		}
		if err := r.copier.CopyAsIs(w, page.Dict.Get(key)); err != nil {
			return "", fmt.Errorf("/%s: %w", key, err)
		}
	}

	if err := w.WriteKey("Contents"); err != nil {
		return "", err
	}
	if err := r.writeContents(w, contents, streamRef); err != nil {
		return "", fmt.Errorf("/Contents: %w", err)
	}

	if err := w.WriteKey("Resources"); err != nil {
		return "", err
	}
	name, pending, err := p.writeResources(r, w, resources)
	if err != nil {
		return "", fmt.Errorf("/Resources: %w", err)
	}

	if err := w.EndDictionary(); err != nil {
		return "", err
	}
	if err := w.End(); err != nil {
		return "", err
	}

	// An indirect resource dictionary is rewritten in its own object, not
	// on the page.
	if pending != nil {
		if name, err = p.rewriteResources(r, *pending); err != nil {
			return "", fmt.Errorf("resources %s: %w", pending.Ref, err)
		}
	}

	if p.afterResources != nil {
		if err := p.afterResources(index); err != nil {
			return "", err
		}
	}

	obj, err := r.ctx.StartNewIndirectObject(streamRef.ObjectNumber)
	if err != nil {
		return "", err
	}
	stream, err := obj.StartUnfilteredStream(nil)
	if err != nil {
		return "", err
	}
	pl := p.opts.Placement
	if err := paint(stream, pl.Scale, pl.Scale, pl.X, pl.Y, name); err != nil {
		return "", err
	}
	if err := stream.End(); err != nil {
		return "", err
	}
	if err := obj.End(); err != nil {
		return "", err
	}

	p.log.Debug("patched page", "page", index, "object", page.Ref.String(), "name", name)
	return name, nil
}

// writeContents writes the page's new Contents value: the existing streams
// in order, followed by the overlay stream.
func (r *run) writeContents(w *writer.ObjectWriter, contents reader.Contents, streamRef generic.Reference) error {
	var refs []generic.Reference
	switch c := contents.(type) {
	case reader.ContentsAbsent:
		return w.WriteReference(streamRef)
	case reader.ContentsSingle:
		refs = []generic.Reference{c.Ref}
	case reader.ContentsArray:
		refs = c.Refs
	default:
		return fmt.Errorf("%w: unexpected Contents %T", reader.ErrSourceParse, contents)
	}

	if err := w.StartArray(); err != nil {
		return err
	}
	if r.wrapOpen != nil {
		if err := w.WriteReference(*r.wrapOpen); err != nil {
			return err
		}
	}
	for _, ref := range refs {
		if !r.copier.Resolvable(ref) {
			return fmt.Errorf("%w: Contents stream %s does not exist", reader.ErrSourceParse, ref)
		}
		if err := r.copier.CopyAsIs(w, ref); err != nil {
			return err
		}
	}
	if r.wrapClose != nil {
		if err := w.WriteReference(*r.wrapClose); err != nil {
			return err
		}
	}
	if err := w.WriteReference(streamRef); err != nil {
		return err
	}
	return w.EndArray()
}

// writeResources writes the page's new Resources value and returns the
// overlay's name. For an indirect dictionary not yet rewritten in this run,
// the reference is kept and returned as pending.
func (p *Patcher) writeResources(r *run, w *writer.ObjectWriter, resources reader.Resources) (string, *reader.ResourcesIndirect, error) {
	switch res := resources.(type) {
	case reader.ResourcesAbsent:
		name := p.namer.Name(nil)
		if err := w.StartDictionary(); err != nil {
			return "", nil, err
		}
		if err := w.WriteKey("XObject"); err != nil {
			return "", nil, err
		}
		if err := w.StartDictionary(); err != nil {
			return "", nil, err
		}
		if err := w.WriteKey(name); err != nil {
			return "", nil, err
		}
		if err := w.WriteReference(r.form); err != nil {
			return "", nil, err
		}
		if err := w.EndDictionary(); err != nil {
			return "", nil, err
		}
		return name, nil, w.EndDictionary()

	case reader.ResourcesDirect:
		name, err := p.writeResourceDict(r, w, res.Dict)
		return name, nil, err

	case reader.ResourcesIndirect:
		if err := r.copier.CopyAsIs(w, res.Ref); err != nil {
			return "", nil, err
		}
		// Pages sharing a resource dictionary share its overlay entry.
		if name, ok := r.patched[res.Ref.ObjectNumber]; ok {
			return name, nil, nil
		}
		return "", &res, nil

	default:
		return "", nil, fmt.Errorf("%w: unexpected Resources %T", reader.ErrSourceParse, resources)
	}
}

func (p *Patcher) rewriteResources(r *run, res reader.ResourcesIndirect) (string, error) {
	w, err := r.ctx.StartModifiedIndirectObject(res.Ref.ObjectNumber)
	if err != nil {
		return "", err
	}
	name, err := p.writeResourceDict(r, w, res.Dict)
	if err != nil {
		return "", err
	}
	if err := w.End(); err != nil {
		return "", err
	}
	r.patched[res.Ref.ObjectNumber] = name
	return name, nil
}

// writeResourceDict copies dict with the overlay added to its XObject map.
// An indirect XObject map is written back as a direct dictionary.
func (p *Patcher) writeResourceDict(r *run, w *writer.ObjectWriter, dict *generic.DictionaryObject) (string, error) {
	if err := w.StartDictionary(); err != nil {
		return "", err
	}
	for _, key := range dict.Keys() {
		if key == "XObject" {
			continue
		}
		if err := w.WriteKey(key); err != nil {
			return "", err
		}
		if err := r.copier.CopyAsIs(w, dict.Get(key)); err != nil {
			return "", fmt.Errorf("/%s: %w", key, err)
		}
	}

	var xobjects *generic.DictionaryObject
	if value := dict.Get("XObject"); value != nil {
		resolved, err := r.src.ResolveReference(value)
		if err != nil {
			return "", fmt.Errorf("/XObject: %w", err)
		}
		d, ok := resolved.(*generic.DictionaryObject)
		if !ok {
			return "", fmt.Errorf("%w: XObject resources are %T", reader.ErrSourceParse, resolved)
		}
		xobjects = d
	}

	if err := w.WriteKey("XObject"); err != nil {
		return "", err
	}
	if err := w.StartDictionary(); err != nil {
		return "", err
	}
	var existing []string
	if xobjects != nil {
		existing = xobjects.Keys()
		for _, key := range existing {
			if err := w.WriteKey(key); err != nil {
				return "", err
			}
			if err := r.copier.CopyAsIs(w, xobjects.Get(key)); err != nil {
				return "", fmt.Errorf("/XObject/%s: %w", key, err)
			}
		}
	}
	name := p.namer.Name(existing)
	if err := w.WriteKey(name); err != nil {
		return "", err
	}
	if err := w.WriteReference(r.form); err != nil {
		return "", err
	}
	if err := w.EndDictionary(); err != nil {
		return "", err
	}
	return name, w.EndDictionary()
}

// ensureWrapStreams writes the shared "q" and "Q" streams on first use.
func (r *run) ensureWrapStreams() error {
	if r.wrapOpen != nil {
		return nil
	}
	open, err := writeStream(r.ctx, nil, []byte(opSaveState), false)
	if err != nil {
		return err
	}
	closing, err := writeStream(r.ctx, nil, []byte(opRestoreState), false)
	if err != nil {
		return err
	}
	r.wrapOpen, r.wrapClose = &open, &closing
	return nil
}

package reader

import (
	"fmt"

	"github.com/georgepadayatti/pdflogo/pdf/generic"
)

// Page is a leaf of the page tree.
type Page struct {
	Index int
	// Ref is the indirect reference of the page object.
	Ref  generic.Reference
	Dict *generic.DictionaryObject

	// ancestors holds the page tree nodes above the page, nearest first.
	ancestors []*generic.DictionaryObject
}

// GetPageCount returns the number of pages.
func (r *PdfFileReader) GetPageCount() int {
	return len(r.pages)
}

// GetPage returns a page by index (0-based).
func (r *PdfFileReader) GetPage(index int) (*Page, error) {
	if index < 0 || index >= len(r.pages) {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, index, len(r.pages))
	}
	return r.pages[index], nil
}

func (r *PdfFileReader) loadPages() error {
	pagesRef, ok := r.Root.Get("Pages").(generic.Reference)
	if !ok {
		return fmt.Errorf("%w: catalog has no Pages reference", ErrSourceParse)
	}
	return r.walkPageTree(pagesRef, nil, make(map[int]bool))
}

// walkPageTree collects the leaves under ref in document order.
func (r *PdfFileReader) walkPageTree(ref generic.Reference, ancestors []*generic.DictionaryObject, visited map[int]bool) error {
	if visited[ref.ObjectNumber] {
		return fmt.Errorf("%w: page tree cycle at object %d", ErrSourceParse, ref.ObjectNumber)
	}
	visited[ref.ObjectNumber] = true

	obj, err := r.ResolveReference(ref)
	if err != nil {
		return err
	}
	node, ok := obj.(*generic.DictionaryObject)
	if !ok {
		return fmt.Errorf("%w: page tree node %s is %T", ErrSourceParse, ref, obj)
	}

	kids, hasKids := node.Get("Kids").(generic.ArrayObject)
	nodeType := node.GetName("Type")
	if nodeType == "Page" || (nodeType == "" && !hasKids) {
		r.pages = append(r.pages, &Page{
			Index:     len(r.pages),
			Ref:       ref,
			Dict:      node,
			ancestors: ancestors,
		})
		return nil
	}
	if !hasKids {
		return fmt.Errorf("%w: page tree node %s has no Kids", ErrSourceParse, ref)
	}

	// Nearest ancestor first.
	chain := make([]*generic.DictionaryObject, 0, len(ancestors)+1)
	chain = append(chain, node)
	chain = append(chain, ancestors...)

	for _, kid := range kids {
		kidRef, ok := kid.(generic.Reference)
		if !ok {
			return fmt.Errorf("%w: page tree kid of %s is %T, not a reference", ErrSourceParse, ref, kid)
		}
		if err := r.walkPageTree(kidRef, chain, visited); err != nil {
			return err
		}
	}
	return nil
}

// Contents is the shape of a page's Contents entry: one of ContentsAbsent,
// ContentsSingle or ContentsArray.
type Contents interface {
	isContents()
}

// ContentsAbsent means the page has no Contents entry.
type ContentsAbsent struct{}

// ContentsSingle is a reference to a single content stream.
type ContentsSingle struct {
	Ref generic.Reference
}

// ContentsArray is an array of content stream references, direct on the
// page or held in an indirect array object.
type ContentsArray struct {
	Refs []generic.Reference
}

func (ContentsAbsent) isContents() {}
func (ContentsSingle) isContents() {}
func (ContentsArray) isContents()  {}

// ClassifyContents determines the shape of the page's Contents entry.
func (r *PdfFileReader) ClassifyContents(page *Page) (Contents, error) {
	value := page.Dict.Get("Contents")
	switch v := value.(type) {
	case nil:
		return ContentsAbsent{}, nil
	case generic.ArrayObject:
		return contentsArray(page, v)
	case generic.Reference:
		target, err := r.ResolveReference(v)
		if err != nil {
			return nil, fmt.Errorf("page %d Contents: %w", page.Index, err)
		}
		switch t := target.(type) {
		case *generic.StreamObject:
			return ContentsSingle{Ref: v}, nil
		case generic.ArrayObject:
			return contentsArray(page, t)
		default:
			return nil, fmt.Errorf("%w: page %d Contents %s resolves to %T", ErrSourceParse, page.Index, v, target)
		}
	default:
		return nil, fmt.Errorf("%w: page %d Contents is %T", ErrSourceParse, page.Index, value)
	}
}

func contentsArray(page *Page, arr generic.ArrayObject) (Contents, error) {
	refs := make([]generic.Reference, 0, len(arr))
	for _, item := range arr {
		ref, ok := item.(generic.Reference)
		if !ok {
			return nil, fmt.Errorf("%w: page %d Contents array holds %T", ErrSourceParse, page.Index, item)
		}
		refs = append(refs, ref)
	}
	return ContentsArray{Refs: refs}, nil
}

// Resources is the shape of a page's own Resources entry: one of
// ResourcesAbsent, ResourcesDirect or ResourcesIndirect.
type Resources interface {
	isResources()
}

// ResourcesAbsent means the page has no Resources entry of its own.
type ResourcesAbsent struct{}

// ResourcesDirect is a resource dictionary embedded in the page.
type ResourcesDirect struct {
	Dict *generic.DictionaryObject
}

// ResourcesIndirect is a reference to a resource dictionary object. Dict is
// the resolved dictionary.
type ResourcesIndirect struct {
	Ref  generic.Reference
	Dict *generic.DictionaryObject
}

func (ResourcesAbsent) isResources()   {}
func (ResourcesDirect) isResources()   {}
func (ResourcesIndirect) isResources() {}

// ClassifyResources determines the shape of the page's Resources entry.
func (r *PdfFileReader) ClassifyResources(page *Page) (Resources, error) {
	value := page.Dict.Get("Resources")
	switch v := value.(type) {
	case nil:
		return ResourcesAbsent{}, nil
	case *generic.DictionaryObject:
		return ResourcesDirect{Dict: v}, nil
	case generic.Reference:
		target, err := r.ResolveReference(v)
		if err != nil {
			return nil, fmt.Errorf("page %d Resources: %w", page.Index, err)
		}
		dict, ok := target.(*generic.DictionaryObject)
		if !ok {
			return nil, fmt.Errorf("%w: page %d Resources %s resolves to %T", ErrSourceParse, page.Index, v, target)
		}
		return ResourcesIndirect{Ref: v, Dict: dict}, nil
	default:
		return nil, fmt.Errorf("%w: page %d Resources is %T", ErrSourceParse, page.Index, value)
	}
}

// InheritedResources returns the resource dictionary the page inherits from
// its nearest page tree ancestor, or nil if no ancestor has one.
func (r *PdfFileReader) InheritedResources(page *Page) (*generic.DictionaryObject, error) {
	for _, node := range page.ancestors {
		value := node.Get("Resources")
		if value == nil {
			continue
		}
		resolved, err := r.ResolveReference(value)
		if err != nil {
			return nil, fmt.Errorf("page %d inherited Resources: %w", page.Index, err)
		}
		dict, ok := resolved.(*generic.DictionaryObject)
		if !ok {
			return nil, fmt.Errorf("%w: page %d inherited Resources is %T", ErrSourceParse, page.Index, resolved)
		}
		return dict, nil
	}
	return nil, nil
}

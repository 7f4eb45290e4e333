package generic

import "io"

// ArrayObject is a PDF array.
type ArrayObject []PdfObject

// NewArray returns an array holding items.
func NewArray(items ...PdfObject) ArrayObject {
	return ArrayObject(items)
}

func (a ArrayObject) Write(w io.Writer) error {
	s := &syntaxWriter{w: w}
	s.str("[")
	for i, item := range a {
		if i > 0 {
			s.str(" ")
		}
		s.obj(item)
	}
	s.str("]")
	return s.err
}

// DictionaryObject is a PDF dictionary. Keys are written in the order they
// were first set; for parsed dictionaries that is file order, which lets a
// copied page keep its entries where they were.
type DictionaryObject struct {
	entries map[string]PdfObject
	order   []string
}

// NewDictionary returns an empty dictionary.
func NewDictionary() *DictionaryObject {
	return &DictionaryObject{entries: make(map[string]PdfObject)}
}

func (d *DictionaryObject) Write(w io.Writer) error {
	s := &syntaxWriter{w: w}
	s.str("<<")
	for _, key := range d.order {
		s.raw(appendName([]byte{'\n'}, key))
		s.str(" ")
		s.obj(d.entries[key])
	}
	s.str("\n>>")
	return s.err
}

// Set stores value under key. Replacing a value keeps the key's position.
func (d *DictionaryObject) Set(key string, value PdfObject) {
	if _, ok := d.entries[key]; !ok {
		d.order = append(d.order, key)
	}
	d.entries[key] = value
}

// Get returns the value stored under key, or nil.
func (d *DictionaryObject) Get(key string) PdfObject {
	return d.entries[key]
}

// Has reports whether key is present.
func (d *DictionaryObject) Has(key string) bool {
	_, ok := d.entries[key]
	return ok
}

// Keys returns the keys in write order. Callers must not modify the slice.
func (d *DictionaryObject) Keys() []string {
	return d.order
}

// GetName returns the name stored under key, or "" for any other value.
func (d *DictionaryObject) GetName(key string) string {
	name, _ := d.entries[key].(NameObject)
	return string(name)
}

// GetInt returns the integer stored under key.
func (d *DictionaryObject) GetInt(key string) (int64, bool) {
	i, ok := d.entries[key].(IntegerObject)
	return int64(i), ok
}

// GetArray returns the direct array stored under key, or nil.
func (d *DictionaryObject) GetArray(key string) ArrayObject {
	arr, _ := d.entries[key].(ArrayObject)
	return arr
}

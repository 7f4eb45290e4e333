package generic

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
)

// Common errors
var (
	ErrUnexpectedEOF     = errors.New("unexpected end of data")
	ErrInvalidObject     = errors.New("invalid PDF object")
	ErrInvalidStream     = errors.New("invalid PDF stream")
	ErrInvalidDictionary = errors.New("invalid PDF dictionary")
	ErrInvalidArray      = errors.New("invalid PDF array")
	ErrInvalidString     = errors.New("invalid PDF string")
	ErrInvalidName       = errors.New("invalid PDF name")
	ErrInvalidNumber     = errors.New("invalid PDF number")
)

// LengthResolver resolves an indirect /Length value of a stream.
type LengthResolver func(ref Reference) (int64, error)

// Parser parses PDF objects from a byte slice.
type Parser struct {
	data []byte
	pos  int

	// ResolveLength is consulted when a stream's /Length is an indirect
	// reference. When nil, or when it fails, the parser scans for the
	// "endstream" keyword instead.
	ResolveLength LengthResolver
}

// NewParser creates a parser over data, starting at offset 0.
func NewParser(data []byte) *Parser {
	return &Parser{data: data}
}

// Pos returns the current offset into the data.
func (p *Parser) Pos() int {
	return p.pos
}

// Seek moves the parser to an absolute offset.
func (p *Parser) Seek(pos int) {
	p.pos = pos
}

func (p *Parser) eof() bool {
	return p.pos >= len(p.data)
}

func (p *Parser) peek() (byte, bool) {
	if p.eof() {
		return 0, false
	}
	return p.data[p.pos], true
}

// IsWhitespace returns true if b is PDF whitespace.
func IsWhitespace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\x00' || b == '\x0c'
}

// IsDelimiter returns true if b is a PDF delimiter.
func IsDelimiter(b byte) bool {
	switch b {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

// SkipWhitespace skips whitespace and comments.
func (p *Parser) SkipWhitespace() {
	for !p.eof() {
		b := p.data[p.pos]
		switch {
		case IsWhitespace(b):
			p.pos++
		case b == '%':
			for !p.eof() && p.data[p.pos] != '\n' && p.data[p.pos] != '\r' {
				p.pos++
			}
		default:
			return
		}
	}
}

// ReadToken reads a run of regular characters.
func (p *Parser) ReadToken() string {
	p.SkipWhitespace()
	start := p.pos
	for !p.eof() {
		b := p.data[p.pos]
		if IsWhitespace(b) || IsDelimiter(b) {
			break
		}
		p.pos++
	}
	return string(p.data[start:p.pos])
}

// ParseObject parses a direct PDF object. Indirect references are not
// recognised; use ParseObjectOrReference for dictionary and array values.
func (p *Parser) ParseObject() (PdfObject, error) {
	p.SkipWhitespace()
	b, ok := p.peek()
	if !ok {
		return nil, ErrUnexpectedEOF
	}

	switch b {
	case '(':
		return p.parseString()
	case '<':
		if p.pos+1 < len(p.data) && p.data[p.pos+1] == '<' {
			p.pos += 2
			return p.parseDictionary()
		}
		return p.parseHexString()
	case '[':
		return p.parseArray()
	case '/':
		return p.parseName()
	}

	if b == '-' || b == '+' || b == '.' || (b >= '0' && b <= '9') {
		return p.parseNumber()
	}

	switch tok := p.ReadToken(); tok {
	case "true":
		return BooleanObject(true), nil
	case "false":
		return BooleanObject(false), nil
	case "null":
		return NullObject{}, nil
	case "":
		return nil, fmt.Errorf("%w: unexpected character %q at offset %d", ErrInvalidObject, b, p.pos)
	default:
		return nil, fmt.Errorf("%w: unexpected keyword %q", ErrInvalidObject, tok)
	}
}

func (p *Parser) parseString() (*StringObject, error) {
	p.pos++ // (

	var buf bytes.Buffer
	depth := 1
	for depth > 0 {
		if p.eof() {
			return nil, fmt.Errorf("%w: unterminated string", ErrInvalidString)
		}
		b := p.data[p.pos]
		p.pos++

		switch b {
		case '(':
			depth++
			buf.WriteByte(b)
		case ')':
			depth--
			if depth > 0 {
				buf.WriteByte(b)
			}
		case '\\':
			if p.eof() {
				return nil, fmt.Errorf("%w: unterminated escape", ErrInvalidString)
			}
			esc := p.data[p.pos]
			p.pos++
			switch esc {
			case 'n':
				buf.WriteByte('\n')
			case 'r':
				buf.WriteByte('\r')
			case 't':
				buf.WriteByte('\t')
			case 'b':
				buf.WriteByte('\b')
			case 'f':
				buf.WriteByte('\f')
			case '\r':
				if next, ok := p.peek(); ok && next == '\n' {
					p.pos++
				}
			case '\n':
			default:
				if esc >= '0' && esc <= '7' {
					val := int(esc - '0')
					for i := 0; i < 2; i++ {
						next, ok := p.peek()
						if !ok || next < '0' || next > '7' {
							break
						}
						val = val*8 + int(next-'0')
						p.pos++
					}
					buf.WriteByte(byte(val))
				} else {
					buf.WriteByte(esc)
				}
			}
		default:
			buf.WriteByte(b)
		}
	}

	return &StringObject{Value: buf.Bytes()}, nil
}

func (p *Parser) parseHexString() (*StringObject, error) {
	p.pos++ // <

	var digits []byte
	for {
		if p.eof() {
			return nil, fmt.Errorf("%w: unterminated hex string", ErrInvalidString)
		}
		b := p.data[p.pos]
		p.pos++
		if b == '>' {
			break
		}
		if IsWhitespace(b) {
			continue
		}
		digits = append(digits, b)
	}
	if len(digits)%2 != 0 {
		digits = append(digits, '0')
	}

	data := make([]byte, len(digits)/2)
	if _, err := hex.Decode(data, digits); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidString, err)
	}
	return &StringObject{Value: data, IsHex: true}, nil
}

// parseDictionary parses a dictionary body; the opening << is consumed.
func (p *Parser) parseDictionary() (*DictionaryObject, error) {
	dict := NewDictionary()

	for {
		p.SkipWhitespace()
		b, ok := p.peek()
		if !ok {
			return nil, fmt.Errorf("%w: unterminated dictionary", ErrInvalidDictionary)
		}

		if b == '>' {
			if p.pos+1 >= len(p.data) || p.data[p.pos+1] != '>' {
				return nil, fmt.Errorf("%w: expected '>>'", ErrInvalidDictionary)
			}
			p.pos += 2
			return dict, nil
		}

		key, err := p.parseName()
		if err != nil {
			return nil, fmt.Errorf("%w: invalid key: %v", ErrInvalidDictionary, err)
		}

		value, err := p.ParseObjectOrReference()
		if err != nil {
			return nil, fmt.Errorf("%w: invalid value for key '%s': %v", ErrInvalidDictionary, key, err)
		}

		// A null value is equivalent to the key being absent.
		if _, isNull := value.(NullObject); isNull {
			continue
		}
		dict.Set(string(key), value)
	}
}

func (p *Parser) parseArray() (ArrayObject, error) {
	p.pos++ // [

	arr := ArrayObject{}
	for {
		p.SkipWhitespace()
		b, ok := p.peek()
		if !ok {
			return nil, fmt.Errorf("%w: unterminated array", ErrInvalidArray)
		}
		if b == ']' {
			p.pos++
			return arr, nil
		}

		obj, err := p.ParseObjectOrReference()
		if err != nil {
			return nil, fmt.Errorf("%w: invalid element: %v", ErrInvalidArray, err)
		}
		arr = append(arr, obj)
	}
}

func (p *Parser) parseName() (NameObject, error) {
	p.SkipWhitespace()
	if b, ok := p.peek(); !ok || b != '/' {
		return "", ErrInvalidName
	}
	p.pos++

	var buf bytes.Buffer
	for !p.eof() {
		b := p.data[p.pos]
		if IsWhitespace(b) || IsDelimiter(b) {
			break
		}
		p.pos++

		if b == '#' && p.pos+1 < len(p.data) {
			val, err := strconv.ParseUint(string(p.data[p.pos:p.pos+2]), 16, 8)
			if err != nil {
				return "", fmt.Errorf("%w: invalid hex escape", ErrInvalidName)
			}
			buf.WriteByte(byte(val))
			p.pos += 2
			continue
		}
		buf.WriteByte(b)
	}

	return NameObject(buf.String()), nil
}

func (p *Parser) parseNumber() (PdfObject, error) {
	start := p.pos
	hasDecimal := false
	for !p.eof() {
		b := p.data[p.pos]
		switch {
		case b >= '0' && b <= '9':
		case b == '.' && !hasDecimal:
			hasDecimal = true
		case (b == '-' || b == '+') && p.pos == start:
		default:
			goto done
		}
		p.pos++
	}
done:
	str := string(p.data[start:p.pos])
	if str == "" || str == "-" || str == "+" || str == "." {
		return nil, fmt.Errorf("%w: '%s'", ErrInvalidNumber, str)
	}

	if hasDecimal {
		val, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidNumber, err)
		}
		return RealObject(val), nil
	}

	val, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNumber, err)
	}
	return IntegerObject(val), nil
}

// ParseObjectOrReference parses an object, recognising "n g R" as an
// indirect reference.
func (p *Parser) ParseObjectOrReference() (PdfObject, error) {
	p.SkipWhitespace()
	start := p.pos

	obj, err := p.ParseObject()
	if err != nil {
		return nil, err
	}
	objNum, ok := obj.(IntegerObject)
	if !ok || objNum < 0 {
		return obj, nil
	}

	afterFirst := p.pos
	p.SkipWhitespace()
	if b, ok := p.peek(); !ok || b < '0' || b > '9' {
		p.pos = afterFirst
		return obj, nil
	}
	genObj, err := p.parseNumber()
	genNum, isInt := genObj.(IntegerObject)
	if err != nil || !isInt {
		p.pos = afterFirst
		return obj, nil
	}

	p.SkipWhitespace()
	if b, ok := p.peek(); ok && b == 'R' {
		next := p.pos + 1
		if next >= len(p.data) || IsWhitespace(p.data[next]) || IsDelimiter(p.data[next]) {
			p.pos = next
			return Reference{ObjectNumber: int(objNum), GenerationNumber: int(genNum)}, nil
		}
	}

	p.pos = start
	return p.parseNumber()
}

// ParseIndirectObject parses "n g obj ... endobj" at the current position.
func (p *Parser) ParseIndirectObject() (*IndirectObject, error) {
	p.SkipWhitespace()

	objNum, err := p.parseNumber()
	if err != nil {
		return nil, fmt.Errorf("%w: invalid object number: %v", ErrInvalidObject, err)
	}
	p.SkipWhitespace()
	genNum, err := p.parseNumber()
	if err != nil {
		return nil, fmt.Errorf("%w: invalid generation number: %v", ErrInvalidObject, err)
	}
	num, ok1 := objNum.(IntegerObject)
	gen, ok2 := genNum.(IntegerObject)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("%w: object header must be integers", ErrInvalidObject)
	}

	if tok := p.ReadToken(); tok != "obj" {
		return nil, fmt.Errorf("%w: expected 'obj', got '%s'", ErrInvalidObject, tok)
	}

	obj, err := p.ParseObjectOrReference()
	if err != nil {
		return nil, err
	}

	if dict, ok := obj.(*DictionaryObject); ok {
		save := p.pos
		if p.ReadToken() == "stream" {
			stream, err := p.parseStreamBody(dict)
			if err != nil {
				return nil, fmt.Errorf("object %d: %w", num, err)
			}
			obj = stream
		} else {
			p.pos = save
		}
	}

	// Some producers omit endobj; tolerate it.
	save := p.pos
	if p.ReadToken() != "endobj" {
		p.pos = save
	}

	return NewIndirectObject(int(num), int(gen), obj), nil
}

// parseStreamBody reads the stream data following the "stream" keyword.
func (p *Parser) parseStreamBody(dict *DictionaryObject) (*StreamObject, error) {
	// The keyword is followed by CRLF or LF.
	if b, ok := p.peek(); ok && b == '\r' {
		p.pos++
	}
	if b, ok := p.peek(); ok && b == '\n' {
		p.pos++
	}
	start := p.pos

	length := int64(-1)
	switch l := dict.Get("Length").(type) {
	case IntegerObject:
		length = int64(l)
	case Reference:
		if p.ResolveLength != nil {
			if n, err := p.ResolveLength(l); err == nil {
				length = n
			}
		}
	}

	if length >= 0 && start+int(length) <= len(p.data) {
		end := start + int(length)
		probe := NewParser(p.data)
		probe.Seek(end)
		if probe.ReadToken() == "endstream" {
			p.pos = probe.pos
			return NewStream(dict, p.data[start:end]), nil
		}
	}

	// Length missing or wrong: fall back to the endstream keyword.
	idx := bytes.Index(p.data[start:], []byte("endstream"))
	if idx < 0 {
		return nil, fmt.Errorf("%w: missing endstream", ErrInvalidStream)
	}
	end := start + idx
	if end > start && p.data[end-1] == '\n' {
		end--
		if end > start && p.data[end-1] == '\r' {
			end--
		}
	} else if end > start && p.data[end-1] == '\r' {
		end--
	}
	p.pos = start + idx + len("endstream")
	return NewStream(dict, p.data[start:end]), nil
}

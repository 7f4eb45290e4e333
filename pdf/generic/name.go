package generic

import (
	"io"
	"strings"
)

// NameObject is a PDF name, stored decoded and without the leading slash.
// It may hold any bytes, including UTF-8 sequences decoded from #XX escapes.
type NameObject string

// nameDelimiters are the bytes that must be escaped inside a name even
// though they are printable.
const nameDelimiters = "#%/()<>[]{}"

func (n NameObject) Write(w io.Writer) error {
	_, err := w.Write(appendName(make([]byte, 0, len(n)+1), string(n)))
	return err
}

func (n NameObject) String() string {
	return string(n)
}

// appendName writes /name, escaping every byte outside '!'..'~' and every
// delimiter as #XX. Escaping works on bytes, so each byte of a multi-byte
// sequence gets its own escape.
func appendName(out []byte, name string) []byte {
	const hexDigits = "0123456789ABCDEF"
	out = append(out, '/')
	for i := 0; i < len(name); i++ {
		b := name[i]
		if b < '!' || b > '~' || strings.IndexByte(nameDelimiters, b) >= 0 {
			out = append(out, '#', hexDigits[b>>4], hexDigits[b&0x0f])
			continue
		}
		out = append(out, b)
	}
	return out
}

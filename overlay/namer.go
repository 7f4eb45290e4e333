package overlay

// DefaultResourceName is the XObject name used when a page has no XObject
// resources yet.
const DefaultResourceName = "myImage"

// Namer picks a name for the overlay in an XObject resource map.
//
// For n existing names the candidate has n characters. Character i is
// derived from character i of the i-th existing name, so the candidate
// differs from every existing name at least at that position (or in length).
// The result is sufficient, not minimal.
type Namer struct {
	// Default is returned when there are no existing names.
	Default string
}

// Name returns a name not present in existing. existing must be in the
// order the names are stored in the resource map.
func (n Namer) Name(existing []string) string {
	if len(existing) == 0 {
		if n.Default == "" {
			return DefaultResourceName
		}
		return n.Default
	}

	name := make([]byte, len(existing))
	for i, s := range existing {
		c := byte('9')
		if len(s) > i {
			c = s[i]
		}
		name[i] = nextChar(c)
	}
	return string(name)
}

// nextChar maps c to a different character in the same range, wrapping
// within digits, lowercase and uppercase letters. Anything else maps to 'A'.
func nextChar(c byte) byte {
	switch {
	case c >= '0' && c < '9', c >= 'a' && c < 'z', c >= 'A' && c < 'Z':
		return c + 1
	case c == '9':
		return '0'
	case c == 'z':
		return 'a'
	case c == 'Z':
		return 'A'
	}
	return 'A'
}

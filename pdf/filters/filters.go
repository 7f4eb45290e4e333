// Package filters decodes PDF stream data. Only decoding is supported: the
// incremental writer never re-encodes existing streams and writes its own
// streams unfiltered.
package filters

import (
	"bytes"
	"compress/zlib"
	"encoding/ascii85"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/georgepadayatti/pdflogo/pdf/generic"
)

// Common errors
var (
	ErrUnsupportedFilter = errors.New("unsupported filter")
	ErrDecodeFailed      = errors.New("decode failed")
)

// Params holds the DecodeParms entries the decoders understand.
type Params struct {
	Predictor        int
	Colors           int
	BitsPerComponent int
	Columns          int
	EarlyChange      int
}

// DefaultParams returns the parameter values PDF assumes when DecodeParms
// is absent.
func DefaultParams() Params {
	return Params{
		Predictor:        1,
		Colors:           1,
		BitsPerComponent: 8,
		Columns:          1,
		EarlyChange:      1,
	}
}

// ParamsFromDict reads decode parameters from a DecodeParms dictionary.
// A nil dictionary yields the defaults.
func ParamsFromDict(dict *generic.DictionaryObject) Params {
	p := DefaultParams()
	if dict == nil {
		return p
	}
	if v, ok := dict.GetInt("Predictor"); ok {
		p.Predictor = int(v)
	}
	if v, ok := dict.GetInt("Colors"); ok && v > 0 {
		p.Colors = int(v)
	}
	if v, ok := dict.GetInt("BitsPerComponent"); ok && v > 0 {
		p.BitsPerComponent = int(v)
	}
	if v, ok := dict.GetInt("Columns"); ok && v > 0 {
		p.Columns = int(v)
	}
	if v, ok := dict.GetInt("EarlyChange"); ok {
		p.EarlyChange = int(v)
	}
	return p
}

// Decoder decodes data for one filter.
type Decoder interface {
	// Decode decodes the data.
	Decode(data []byte, params Params) ([]byte, error)
	// Name returns the filter name.
	Name() string
}

// FlateDecoder implements the FlateDecode filter (zlib compression).
type FlateDecoder struct{}

// Name implements Decoder.
func (FlateDecoder) Name() string {
	return "FlateDecode"
}

// Decode implements Decoder.
func (FlateDecoder) Decode(data []byte, params Params) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	defer r.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		// Many producers truncate the zlib checksum; keep what was inflated.
		if buf.Len() == 0 || !errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
		}
	}

	return applyPredictor(buf.Bytes(), params)
}

// applyPredictor undoes TIFF or PNG prediction.
func applyPredictor(data []byte, params Params) ([]byte, error) {
	bytesPerPixel := (params.Colors*params.BitsPerComponent + 7) / 8
	rowLength := (params.Columns*params.Colors*params.BitsPerComponent + 7) / 8

	switch {
	case params.Predictor <= 1:
		return data, nil
	case params.Predictor == 2:
		if params.BitsPerComponent != 8 {
			return nil, fmt.Errorf("%w: TIFF predictor with %d bits per component", ErrUnsupportedFilter, params.BitsPerComponent)
		}
		return decodeTIFFPredictor(data, rowLength, bytesPerPixel), nil
	case params.Predictor >= 10 && params.Predictor <= 15:
		return decodePNGPredictor(data, rowLength+1, bytesPerPixel)
	default:
		return nil, fmt.Errorf("%w: predictor %d", ErrUnsupportedFilter, params.Predictor)
	}
}

func decodeTIFFPredictor(data []byte, rowLength, bytesPerPixel int) []byte {
	out := make([]byte, len(data))
	copy(out, data)
	for start := 0; start < len(out); start += rowLength {
		end := min(start+rowLength, len(out))
		for j := start + bytesPerPixel; j < end; j++ {
			out[j] += out[j-bytesPerPixel]
		}
	}
	return out
}

// decodePNGPredictor decodes rows that each carry a leading filter-type byte.
func decodePNGPredictor(data []byte, rowLength, bytesPerPixel int) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	if len(data)%rowLength != 0 {
		return nil, fmt.Errorf("%w: predicted data is %d bytes, not a multiple of row length %d", ErrDecodeFailed, len(data), rowLength)
	}

	output := make([]byte, 0, len(data)/rowLength*(rowLength-1))
	prevRow := make([]byte, rowLength-1)

	for i := 0; i < len(data); i += rowLength {
		filterType := data[i]
		row := data[i+1 : i+rowLength]
		decodedRow := make([]byte, len(row))

		for j := range row {
			var left, upLeft byte
			if j >= bytesPerPixel {
				left = decodedRow[j-bytesPerPixel]
				upLeft = prevRow[j-bytesPerPixel]
			}
			up := prevRow[j]

			switch filterType {
			case 0: // None
				decodedRow[j] = row[j]
			case 1: // Sub
				decodedRow[j] = row[j] + left
			case 2: // Up
				decodedRow[j] = row[j] + up
			case 3: // Average
				decodedRow[j] = row[j] + byte((int(left)+int(up))/2)
			case 4: // Paeth
				decodedRow[j] = row[j] + paethPredictor(left, up, upLeft)
			default:
				return nil, fmt.Errorf("%w: unknown PNG filter type %d", ErrDecodeFailed, filterType)
			}
		}

		output = append(output, decodedRow...)
		prevRow = decodedRow
	}

	return output, nil
}

func paethPredictor(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa := abs(p - int(a))
	pb := abs(p - int(b))
	pc := abs(p - int(c))

	if pa <= pb && pa <= pc {
		return a
	} else if pb <= pc {
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// ASCIIHexDecoder implements the ASCIIHexDecode filter.
type ASCIIHexDecoder struct{}

// Name implements Decoder.
func (ASCIIHexDecoder) Name() string {
	return "ASCIIHexDecode"
}

// Decode implements Decoder.
func (ASCIIHexDecoder) Decode(data []byte, _ Params) ([]byte, error) {
	var cleaned []byte
	for _, b := range data {
		if b == '>' {
			break
		}
		if !generic.IsWhitespace(b) {
			cleaned = append(cleaned, b)
		}
	}
	if len(cleaned)%2 != 0 {
		cleaned = append(cleaned, '0')
	}

	out := make([]byte, len(cleaned)/2)
	if _, err := hex.Decode(out, cleaned); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	return out, nil
}

// ASCII85Decoder implements the ASCII85Decode filter.
type ASCII85Decoder struct{}

// Name implements Decoder.
func (ASCII85Decoder) Name() string {
	return "ASCII85Decode"
}

// Decode implements Decoder.
func (ASCII85Decoder) Decode(data []byte, _ Params) ([]byte, error) {
	if end := bytes.Index(data, []byte("~>")); end != -1 {
		data = data[:end]
	}
	data = bytes.TrimPrefix(bytes.TrimSpace(data), []byte("<~"))

	var cleaned []byte
	for _, b := range data {
		if !generic.IsWhitespace(b) {
			cleaned = append(cleaned, b)
		}
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, ascii85.NewDecoder(bytes.NewReader(cleaned))); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	return buf.Bytes(), nil
}

// LZWDecoder implements the LZWDecode filter. compress/lzw cannot be used:
// PDF's default EarlyChange=1 widens codes one entry earlier than GIF/TIFF.
type LZWDecoder struct{}

// Name implements Decoder.
func (LZWDecoder) Name() string {
	return "LZWDecode"
}

// Decode implements Decoder.
func (LZWDecoder) Decode(data []byte, params Params) ([]byte, error) {
	out, err := lzwDecode(data, params.EarlyChange)
	if err != nil {
		return nil, err
	}
	return applyPredictor(out, params)
}

func lzwDecode(data []byte, earlyChange int) ([]byte, error) {
	const clearCode = 256
	const eodCode = 257

	var table [][]byte
	reset := func() {
		table = make([][]byte, 258, 4096)
		for i := 0; i < 256; i++ {
			table[i] = []byte{byte(i)}
		}
	}
	reset()
	codeLen := 9

	bitPos := 0
	readCode := func() int {
		if bitPos+codeLen > len(data)*8 {
			return eodCode
		}
		code := 0
		for i := 0; i < codeLen; i++ {
			byteIdx := (bitPos + i) / 8
			bitIdx := 7 - ((bitPos + i) % 8)
			if (data[byteIdx]>>bitIdx)&1 == 1 {
				code |= 1 << (codeLen - 1 - i)
			}
		}
		bitPos += codeLen
		return code
	}

	var output bytes.Buffer
	var prevSeq []byte

	for {
		code := readCode()
		if code == eodCode {
			break
		}
		if code == clearCode {
			reset()
			codeLen = 9
			prevSeq = nil
			continue
		}

		var seq []byte
		switch {
		case code < len(table):
			seq = table[code]
		case code == len(table) && prevSeq != nil:
			seq = append(append([]byte{}, prevSeq...), prevSeq[0])
		default:
			return nil, fmt.Errorf("%w: invalid LZW code %d", ErrDecodeFailed, code)
		}
		output.Write(seq)

		if prevSeq != nil && len(table) < 4096 {
			entry := append(append([]byte{}, prevSeq...), seq[0])
			table = append(table, entry)
		}
		if len(table)+earlyChange >= 1<<codeLen && codeLen < 12 {
			codeLen++
		}
		prevSeq = seq
	}

	return output.Bytes(), nil
}

// RunLengthDecoder implements the RunLengthDecode filter.
type RunLengthDecoder struct{}

// Name implements Decoder.
func (RunLengthDecoder) Name() string {
	return "RunLengthDecode"
}

// Decode implements Decoder.
func (RunLengthDecoder) Decode(data []byte, _ Params) ([]byte, error) {
	var output bytes.Buffer
	i := 0

	for i < len(data) {
		length := int(data[i])
		i++

		switch {
		case length == 128: // EOD
			return output.Bytes(), nil
		case length < 128:
			count := length + 1
			if i+count > len(data) {
				return nil, fmt.Errorf("%w: truncated run-length data", ErrDecodeFailed)
			}
			output.Write(data[i : i+count])
			i += count
		default:
			if i >= len(data) {
				return nil, fmt.Errorf("%w: truncated run-length data", ErrDecodeFailed)
			}
			output.Write(bytes.Repeat(data[i:i+1], 257-length))
			i++
		}
	}

	return output.Bytes(), nil
}

// Registry holds all registered decoders, under full and abbreviated names.
var Registry = map[string]Decoder{
	"FlateDecode":     FlateDecoder{},
	"Fl":              FlateDecoder{},
	"ASCIIHexDecode":  ASCIIHexDecoder{},
	"AHx":             ASCIIHexDecoder{},
	"ASCII85Decode":   ASCII85Decoder{},
	"A85":             ASCII85Decoder{},
	"LZWDecode":       LZWDecoder{},
	"LZW":             LZWDecoder{},
	"RunLengthDecode": RunLengthDecoder{},
	"RL":              RunLengthDecoder{},
}

// GetDecoder returns a decoder by name.
func GetDecoder(name string) (Decoder, error) {
	if d, ok := Registry[name]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFilter, name)
}

// FilterChain returns the filter names and their parameters from a stream
// dictionary. Filter and DecodeParms may each be a single value or an array.
func FilterChain(dict *generic.DictionaryObject) ([]string, []Params, error) {
	var names []string
	switch f := dict.Get("Filter").(type) {
	case nil:
	case generic.NameObject:
		names = []string{string(f)}
	case generic.ArrayObject:
		for _, item := range f {
			name, ok := item.(generic.NameObject)
			if !ok {
				return nil, nil, fmt.Errorf("%w: Filter array entry is %T", ErrDecodeFailed, item)
			}
			names = append(names, string(name))
		}
	default:
		return nil, nil, fmt.Errorf("%w: Filter is %T", ErrDecodeFailed, f)
	}

	params := make([]Params, len(names))
	for i := range params {
		params[i] = DefaultParams()
	}
	switch dp := dict.Get("DecodeParms").(type) {
	case *generic.DictionaryObject:
		if len(params) > 0 {
			params[0] = ParamsFromDict(dp)
		}
	case generic.ArrayObject:
		for i, item := range dp {
			if d, ok := item.(*generic.DictionaryObject); ok && i < len(params) {
				params[i] = ParamsFromDict(d)
			}
		}
	}

	return names, params, nil
}

// Decode applies a filter chain to data.
func Decode(data []byte, names []string, params []Params) ([]byte, error) {
	result := data
	for i, name := range names {
		d, err := GetDecoder(name)
		if err != nil {
			return nil, err
		}
		p := DefaultParams()
		if i < len(params) {
			p = params[i]
		}
		result, err = d.Decode(result, p)
		if err != nil {
			return nil, fmt.Errorf("filter %s decode failed: %w", name, err)
		}
	}
	return result, nil
}

// DecodeStream decodes a stream according to its own dictionary. The result
// is cached in stream.Decoded.
func DecodeStream(stream *generic.StreamObject) ([]byte, error) {
	if stream.Decoded != nil {
		return stream.Decoded, nil
	}
	names, params, err := FilterChain(stream.Dictionary)
	if err != nil {
		return nil, err
	}
	out, err := Decode(stream.Data, names, params)
	if err != nil {
		return nil, err
	}
	stream.Decoded = out
	return out, nil
}

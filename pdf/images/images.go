// Package images loads raster overlays and prepares them for embedding as
// PDF image XObjects.
package images

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"

	"github.com/georgepadayatti/pdflogo/pdf/generic"
)

// ErrAssetLoad is returned when an overlay image cannot be read or decoded.
var ErrAssetLoad = errors.New("overlay image cannot be loaded")

// ColorSpace represents a PDF color space.
type ColorSpace string

const (
	ColorSpaceGray ColorSpace = "DeviceGray"
	ColorSpaceRGB  ColorSpace = "DeviceRGB"
)

// ImageFormat represents an image file format.
type ImageFormat string

const (
	FormatPNG  ImageFormat = "PNG"
	FormatJPEG ImageFormat = "JPEG"
	FormatGIF  ImageFormat = "GIF"
	FormatBMP  ImageFormat = "BMP"
	FormatTIFF ImageFormat = "TIFF"
	FormatWebP ImageFormat = "WebP"
)

// PDFImage represents an image ready for PDF embedding.
type PDFImage struct {
	// Width in pixels
	Width int
	// Height in pixels
	Height int
	// Bits per component, always 8
	BitsPerComponent int
	// Color space
	ColorSpace ColorSpace
	// Number of color components (1 for gray, 3 for RGB)
	Components int
	// Image samples, or the original JPEG stream when Filter is DCTDecode
	Data []byte
	// Filter the data is encoded with; empty for raw samples
	Filter string
	// Alpha samples, one byte per pixel, nil if the image is opaque
	AlphaData []byte
	// Original format
	OriginalFormat ImageFormat
}

// Load reads and decodes the overlay at path. When maxPixels is positive,
// images whose longer side exceeds it are downsampled to fit.
func Load(path string, maxPixels int) (*PDFImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssetLoad, err)
	}
	img, err := LoadBytes(data, maxPixels)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// LoadBytes decodes an overlay from memory; see Load.
func LoadBytes(data []byte, maxPixels int) (*PDFImage, error) {
	format := DetectFormat(data)
	if format == "" {
		return nil, fmt.Errorf("%w: unrecognised image format", ErrAssetLoad)
	}

	if format == FormatJPEG {
		if img, ok, err := passthroughJPEG(data, maxPixels); err != nil || ok {
			return img, err
		}
	}

	decoded, err := decode(format, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrAssetLoad, format, err)
	}
	decoded = Downsample(decoded, maxPixels)

	img, err := NewPDFImageFromImage(decoded)
	if err != nil {
		return nil, err
	}
	img.OriginalFormat = format
	return img, nil
}

// DetectFormat identifies the image format from its signature.
func DetectFormat(data []byte) ImageFormat {
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return FormatPNG
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return FormatJPEG
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return FormatGIF
	case bytes.HasPrefix(data, []byte("BM")):
		return FormatBMP
	case bytes.HasPrefix(data, []byte("II*\x00")), bytes.HasPrefix(data, []byte("MM\x00*")):
		return FormatTIFF
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return FormatWebP
	}
	return ""
}

func decode(format ImageFormat, data []byte) (image.Image, error) {
	r := bytes.NewReader(data)
	switch format {
	case FormatPNG:
		return png.Decode(r)
	case FormatJPEG:
		return jpeg.Decode(r)
	case FormatGIF:
		return gif.Decode(r)
	case FormatBMP:
		return bmp.Decode(r)
	case FormatTIFF:
		return tiff.Decode(r)
	case FormatWebP:
		return webp.Decode(r)
	}
	return nil, fmt.Errorf("no decoder for %s", format)
}

// passthroughJPEG embeds gray and YCbCr JPEGs unchanged as DCTDecode. It
// reports false when the image has to be decoded instead: CMYK data, or a
// size above maxPixels.
func passthroughJPEG(data []byte, maxPixels int) (*PDFImage, bool, error) {
	config, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, false, fmt.Errorf("%w: JPEG: %v", ErrAssetLoad, err)
	}
	if config.Width <= 0 || config.Height <= 0 {
		return nil, false, fmt.Errorf("%w: JPEG has no pixels", ErrAssetLoad)
	}
	if maxPixels > 0 && max(config.Width, config.Height) > maxPixels {
		return nil, false, nil
	}

	var colorSpace ColorSpace
	var components int
	switch config.ColorModel {
	case color.GrayModel:
		colorSpace, components = ColorSpaceGray, 1
	case color.YCbCrModel:
		colorSpace, components = ColorSpaceRGB, 3
	default:
		return nil, false, nil
	}

	return &PDFImage{
		Width:            config.Width,
		Height:           config.Height,
		BitsPerComponent: 8,
		ColorSpace:       colorSpace,
		Components:       components,
		Data:             data,
		Filter:           "DCTDecode",
		OriginalFormat:   FormatJPEG,
	}, true, nil
}

// Downsample scales img so its longer side is at most maxPixels, keeping the
// aspect ratio. Images already within bounds, or a non-positive maxPixels,
// are returned unchanged.
func Downsample(img image.Image, maxPixels int) image.Image {
	b := img.Bounds()
	longest := max(b.Dx(), b.Dy())
	if maxPixels <= 0 || longest <= maxPixels {
		return img
	}
	w := max(1, b.Dx()*maxPixels/longest)
	h := max(1, b.Dy()*maxPixels/longest)
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// NewPDFImageFromImage converts img to raw 8-bit samples. Gray images stay
// gray; everything else becomes RGB. Non-opaque images carry their alpha
// channel separately for use as a soft mask.
func NewPDFImageFromImage(img image.Image) (*PDFImage, error) {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: image has no pixels", ErrAssetLoad)
	}

	gray := false
	switch img.ColorModel() {
	case color.GrayModel, color.Gray16Model:
		gray = true
	}

	pdfImg := &PDFImage{
		Width:            width,
		Height:           height,
		BitsPerComponent: 8,
	}
	if gray {
		pdfImg.ColorSpace, pdfImg.Components = ColorSpaceGray, 1
	} else {
		pdfImg.ColorSpace, pdfImg.Components = ColorSpaceRGB, 3
	}

	data := make([]byte, 0, width*height*pdfImg.Components)
	alpha := make([]byte, 0, width*height)
	opaque := true
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			if gray {
				g := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
				data = append(data, g.Y)
			} else {
				data = append(data, c.R, c.G, c.B)
			}
			alpha = append(alpha, c.A)
			if c.A != 0xFF {
				opaque = false
			}
		}
	}

	pdfImg.Data = data
	if !opaque {
		pdfImg.AlphaData = alpha
	}
	return pdfImg, nil
}

// HasAlpha reports whether the image needs a soft mask.
func (img *PDFImage) HasAlpha() bool {
	return img.AlphaData != nil
}

// Dictionary returns the image XObject stream dictionary. smask, when not
// nil, is the reference of the soft mask written by AlphaDictionary.
func (img *PDFImage) Dictionary(smask *generic.Reference) *generic.DictionaryObject {
	dict := generic.NewDictionary()
	dict.Set("Type", generic.NameObject("XObject"))
	dict.Set("Subtype", generic.NameObject("Image"))
	dict.Set("Width", generic.IntegerObject(img.Width))
	dict.Set("Height", generic.IntegerObject(img.Height))
	dict.Set("ColorSpace", generic.NameObject(img.ColorSpace))
	dict.Set("BitsPerComponent", generic.IntegerObject(img.BitsPerComponent))
	if img.Filter != "" {
		dict.Set("Filter", generic.NameObject(img.Filter))
	}
	if smask != nil {
		dict.Set("SMask", *smask)
	}
	return dict
}

// AlphaDictionary returns the stream dictionary of the soft mask holding
// AlphaData.
func (img *PDFImage) AlphaDictionary() *generic.DictionaryObject {
	dict := generic.NewDictionary()
	dict.Set("Type", generic.NameObject("XObject"))
	dict.Set("Subtype", generic.NameObject("Image"))
	dict.Set("Width", generic.IntegerObject(img.Width))
	dict.Set("Height", generic.IntegerObject(img.Height))
	dict.Set("ColorSpace", generic.NameObject(ColorSpaceGray))
	dict.Set("BitsPerComponent", generic.IntegerObject(8))
	return dict
}

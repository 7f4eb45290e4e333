package overlay

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/georgepadayatti/pdflogo/pdf/images"
	"github.com/georgepadayatti/pdflogo/pdf/reader"
)

// Point is a position in default user space.
type Point struct {
	X, Y float64
}

// Patch paints the image at imagePath on every page of inputPath, with the
// image's lower left corner at offset and scaled by scale. An empty
// outputPath, or one naming the input file, updates the input in place.
func Patch(inputPath, outputPath, imagePath string, offset Point, scale float64) error {
	opts := DefaultOptions()
	opts.Placement = Placement{X: offset.X, Y: offset.Y, Scale: scale}
	_, err := PatchFile(inputPath, outputPath, imagePath, opts)
	return err
}

// PatchFile is Patch with full options.
//
// A distinct output is written to a temporary file next to it and renamed
// into place once complete. An in-place update is appended to the input and
// the file is truncated back to its original size if the append fails.
// Either way a failed run leaves the target absent or unchanged.
func PatchFile(inputPath, outputPath, imagePath string, opts Options) (*Result, error) {
	p, err := NewPatcher(opts)
	if err != nil {
		return nil, err
	}
	return p.PatchFile(inputPath, outputPath, imagePath)
}

// PatchFile patches inputPath with the image at imagePath; see the
// package-level PatchFile.
func (p *Patcher) PatchFile(inputPath, outputPath, imagePath string) (*Result, error) {
	img, err := images.Load(imagePath, p.opts.MaxPixels)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}
	src, err := reader.NewPdfFileReaderFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PDF: %w", err)
	}

	var update bytes.Buffer
	result, err := p.Patch(src, img, &update)
	if err != nil {
		return nil, fmt.Errorf("failed to apply overlay: %w", err)
	}

	inPlace, err := sameFile(inputPath, outputPath)
	if err != nil {
		return nil, err
	}
	if inPlace {
		err = appendInPlace(inputPath, int64(len(data)), update.Bytes())
	} else {
		err = writeAtomic(inputPath, outputPath, data, update.Bytes())
	}
	if err != nil {
		return nil, err
	}

	p.log.Info("wrote output", "input", inputPath, "output", outputPath, "in_place", inPlace, "update_bytes", update.Len())
	return result, nil
}

// PatchBytes returns src with an update that paints img on every page.
func PatchBytes(src []byte, img *images.PDFImage, opts Options) ([]byte, error) {
	p, err := NewPatcher(opts)
	if err != nil {
		return nil, err
	}
	r, err := reader.NewPdfFileReaderFromBytes(src)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PDF: %w", err)
	}

	var out bytes.Buffer
	out.Write(src)
	if _, err := p.Patch(r, img, &out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func sameFile(inputPath, outputPath string) (bool, error) {
	if outputPath == "" {
		return true, nil
	}
	out, err := os.Stat(outputPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat output file: %w", err)
	}
	in, err := os.Stat(inputPath)
	if err != nil {
		return false, fmt.Errorf("failed to stat input file: %w", err)
	}
	return os.SameFile(in, out), nil
}

// appendInPlace appends update to path, which must still be size bytes
// long.
func appendInPlace(path string, size int64, update []byte) (err error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close input file: %w", cerr)
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat input file: %w", err)
	}
	if info.Size() != size {
		return fmt.Errorf("input file changed size from %d to %d while patching", size, info.Size())
	}

	if _, err := f.WriteAt(update, size); err != nil {
		f.Truncate(size)
		return fmt.Errorf("failed to append update: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Truncate(size)
		return fmt.Errorf("failed to sync input file: %w", err)
	}
	return nil
}

// writeAtomic writes original followed by update to outputPath through a
// temporary file in the same directory.
func writeAtomic(inputPath, outputPath string, original, update []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(outputPath), "."+filepath.Base(outputPath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if info, err := os.Stat(inputPath); err == nil {
		tmp.Chmod(info.Mode().Perm())
	}

	if _, err := tmp.Write(original); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if _, err := tmp.Write(update); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close output: %w", err)
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		os.Remove(tmpPath)
		committed = true
		return fmt.Errorf("failed to move output into place: %w", err)
	}
	committed = true
	return nil
}

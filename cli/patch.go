package cli

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/georgepadayatti/pdflogo/overlay"
)

// PatchOptions contains options for the patch command. Flags that are set
// override the configuration file.
type PatchOptions struct {
	ConfigFile string
	Image      string
	X          float64
	Y          float64
	Scale      float64
	Name       string
	Wrap       bool
	MaxPixels  int
}

// errUsage signals that the usage text should be shown.
var errUsage = errors.New("invalid arguments")

// PatchCommand implements the 'patch' command.
func PatchCommand(args []string) {
	patchFlags := flag.NewFlagSet("patch", flag.ExitOnError)
	opts := bindPatchFlags(patchFlags)

	patchFlags.Usage = func() {
		fmt.Printf("Usage: %s patch [options] <input.pdf> [output.pdf]\n\n", os.Args[0])
		fmt.Println("Paint the overlay image on every page of a PDF file as an incremental update.")
		fmt.Println("")
		fmt.Println("Arguments:")
		fmt.Println("  input.pdf   PDF file to patch")
		fmt.Println("  output.pdf  Output file (default: update input.pdf in place)")
		fmt.Println("")
		fmt.Println("Options:")
		patchFlags.PrintDefaults()
		fmt.Println("")
		fmt.Println("Examples:")
		fmt.Printf("  %s patch -image logo.jpg input.pdf output.pdf\n", os.Args[0])
		fmt.Printf("  %s patch -image logo.png -x 20 -y 20 -scale 0.25 input.pdf\n", os.Args[0])
		fmt.Printf("  %s patch -config pdflogo.yaml -wrap input.pdf\n", os.Args[0])
	}

	if err := patchFlags.Parse(args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		osExit(1)
	}

	result, err := runPatch(patchFlags, opts)
	if errors.Is(err, errUsage) {
		patchFlags.Usage()
		osExit(1)
		return
	}
	if err != nil {
		fail(err)
		return
	}
	fmt.Printf("Patched %d page(s) of %s\n", result.Pages, patchFlags.Arg(0))
}

func bindPatchFlags(fs *flag.FlagSet) *PatchOptions {
	var opts PatchOptions
	fs.StringVar(&opts.ConfigFile, "config", "", "YAML configuration file")
	fs.StringVar(&opts.Image, "image", "", "Overlay image (JPEG, PNG, GIF, BMP, TIFF or WebP)")
	fs.Float64Var(&opts.X, "x", overlay.DefaultX, "Horizontal offset in points from the left edge")
	fs.Float64Var(&opts.Y, "y", overlay.DefaultY, "Vertical offset in points from the bottom edge")
	fs.Float64Var(&opts.Scale, "scale", overlay.DefaultScale, "Scale factor applied to the image")
	fs.StringVar(&opts.Name, "name", overlay.DefaultResourceName, "XObject name used on pages without XObjects")
	fs.BoolVar(&opts.Wrap, "wrap", false, "Bracket existing page content in q/Q")
	fs.IntVar(&opts.MaxPixels, "max-pixels", 0, "Downsample the image so its longer side fits (0 keeps its size)")
	return &opts
}

// runPatch patches the file named by the parsed arguments of fs.
func runPatch(fs *flag.FlagSet, opts *PatchOptions) (*overlay.Result, error) {
	if fs.NArg() < 1 || fs.NArg() > 2 {
		return nil, errUsage
	}

	cfg, err := loadConfig(opts.ConfigFile)
	if err != nil {
		return nil, err
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	o := cfg.Overlay
	if set["image"] {
		o.Image = opts.Image
	}
	if set["x"] {
		o.Offset.X = opts.X
	}
	if set["y"] {
		o.Offset.Y = opts.Y
	}
	if set["scale"] {
		o.Scale = opts.Scale
	}
	if set["name"] {
		o.ResourceName = opts.Name
	}
	if set["wrap"] {
		o.WrapExistingContent = opts.Wrap
	}
	if set["max-pixels"] {
		o.MaxPixels = opts.MaxPixels
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	if o.Image == "" {
		return nil, errors.New("no overlay image: use -image or set overlay.image in the configuration")
	}

	logger, closer, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	return overlay.PatchFile(fs.Arg(0), fs.Arg(1), o.Image, overlayOptions(o, logger))
}

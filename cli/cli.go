// Package cli provides the command-line interface of pdflogo.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/georgepadayatti/pdflogo/config"
	"github.com/georgepadayatti/pdflogo/logging"
	"github.com/georgepadayatti/pdflogo/overlay"
)

// Version information
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// osExit is a variable for os.Exit to allow testing
var osExit = os.Exit

// Run executes the CLI with the given arguments.
// This is the main entry point for the CLI.
func Run(args []string) {
	if len(args) < 2 {
		Usage()
		return
	}

	command := args[1]

	switch command {
	case "patch":
		PatchCommand(args)
	case "run":
		RunCommand(args)
	case "version":
		VersionCommand()
	case "help", "-h", "--help":
		Usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		Usage()
		osExit(2)
	}
}

// Usage prints the CLI usage information.
func Usage() {
	fmt.Printf("pdflogo - paint a logo on every page of a PDF\n\n")
	fmt.Printf("Usage: %s <command> [options] <args>\n\n", os.Args[0])
	fmt.Println("Commands:")
	fmt.Println("  patch    Add the overlay image to one PDF file")
	fmt.Println("  run      Process PDF files under a lock, skipping those already done")
	fmt.Println("  version  Show version information")
	fmt.Println("  help     Show this help message")
	fmt.Println("")
	fmt.Printf("Use '%s <command> -h' for command-specific help\n", os.Args[0])
	fmt.Println("")
	fmt.Println("Examples:")
	fmt.Printf("  %s patch -image logo.jpg input.pdf output.pdf\n", os.Args[0])
	fmt.Printf("  %s patch -config pdflogo.yaml -scale 0.25 document.pdf\n", os.Args[0])
	fmt.Printf("  %s run -config pdflogo.yaml /home/pdfdata/*.pdf\n", os.Args[0])
}

// VersionCommand prints version information.
func VersionCommand() {
	fmt.Printf("pdflogo version %s\n", Version)
	fmt.Printf("Build time: %s\n", BuildTime)
}

// loadConfig reads the configuration file, or returns the defaults when no
// file is given.
func loadConfig(path string) (*config.AppConfig, error) {
	if path == "" {
		return config.DefaultAppConfig(), nil
	}
	return config.LoadAppConfig(path)
}

// overlayOptions converts the overlay section into patcher options.
func overlayOptions(cfg *config.OverlayConfig, logger *slog.Logger) overlay.Options {
	opts := overlay.DefaultOptions()
	if cfg.Offset != nil {
		opts.Placement.X = cfg.Offset.X
		opts.Placement.Y = cfg.Offset.Y
	}
	if cfg.Scale != 0 {
		opts.Placement.Scale = cfg.Scale
	}
	if cfg.ResourceName != "" {
		opts.ResourceName = cfg.ResourceName
	}
	opts.WrapExistingContent = cfg.WrapExistingContent
	opts.MaxPixels = cfg.MaxPixels
	opts.Logger = logger
	return opts
}

func newLogger(cfg *config.AppConfig) (*slog.Logger, io.Closer, error) {
	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	return logger, closer, nil
}

// fail reports err and exits with status 1.
func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	osExit(1)
}

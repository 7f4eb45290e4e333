// Command pdflogo paints a logo image on every page of PDF files, appending
// the change as an incremental update so the original bytes stay intact.
//
// Usage:
//
//	pdflogo <command> [options] <args>
//
// Commands:
//
//	patch    Add the overlay image to one PDF file
//	run      Process PDF files under a lock, skipping those already done
//	version  Show version information
//	help     Show help message
//
// Examples:
//
//	# Patch into a new file
//	pdflogo patch -image logo.jpg input.pdf output.pdf
//
//	# Patch in place with settings from a configuration file
//	pdflogo patch -config pdflogo.yaml document.pdf
//
//	# Batch run shared between workers
//	pdflogo run -config pdflogo.yaml /home/pdfdata/*.pdf
package main

import (
	"os"

	"github.com/georgepadayatti/pdflogo/cli"
)

// These variables are set at build time using ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" ./cmd/pdflogo
var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	cli.Version = version
	cli.BuildTime = buildTime

	cli.Run(os.Args)
}

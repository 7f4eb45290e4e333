package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/georgepadayatti/pdflogo/job"
	"github.com/georgepadayatti/pdflogo/overlay"
)

// RunCommand implements the 'run' command.
func RunCommand(args []string) {
	runFlags := flag.NewFlagSet("run", flag.ExitOnError)
	configFile := runFlags.String("config", "", "YAML configuration file with overlay and job sections (required)")

	runFlags.Usage = func() {
		fmt.Printf("Usage: %s run -config <file> <file.pdf>...\n\n", os.Args[0])
		fmt.Println("Patch each PDF file once. Files locked by another worker or already")
		fmt.Println("recorded in the audit log are skipped.")
		fmt.Println("")
		fmt.Println("Options:")
		runFlags.PrintDefaults()
		fmt.Println("")
		fmt.Println("Examples:")
		fmt.Printf("  %s run -config /etc/pdflogo.yaml /home/pdfdata/*.pdf\n", os.Args[0])
	}

	if err := runFlags.Parse(args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		osExit(1)
	}

	if *configFile == "" || runFlags.NArg() == 0 {
		runFlags.Usage()
		osExit(1)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := runJob(ctx, *configFile, runFlags.Args())
	for _, r := range results {
		if r.err != nil {
			fmt.Printf("%s: %s: %v\n", r.path, r.status, r.err)
		} else {
			fmt.Printf("%s: %s\n", r.path, r.status)
		}
	}
	if err != nil {
		fail(err)
	}
}

type fileResult struct {
	path   string
	status job.Status
	err    error
}

// errFilesFailed is returned when at least one file could not be processed.
var errFilesFailed = errors.New("some files failed")

// runJob processes files in order. A failed file does not stop the others.
func runJob(ctx context.Context, configFile string, files []string) ([]fileResult, error) {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return nil, err
	}

	logger, closer, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	patcher, err := overlay.NewPatcher(overlayOptions(cfg.Overlay, logger))
	if err != nil {
		return nil, err
	}
	runner, err := job.NewRunner(cfg.Job, patcher, cfg.Overlay.Image, logger)
	if err != nil {
		return nil, err
	}

	results := make([]fileResult, 0, len(files))
	failed := 0
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		status, err := runner.Process(ctx, path)
		if err != nil {
			failed++
		}
		results = append(results, fileResult{path: path, status: status, err: err})
	}
	if failed > 0 {
		return results, fmt.Errorf("%w: %d of %d", errFilesFailed, failed, len(files))
	}
	return results, nil
}

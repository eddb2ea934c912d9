// Command paeth-rotate rotates grayscale images with the paeth shear
// pipeline.
//
// Usage:
//
//	paeth-rotate -degrees 30 in.png out.png
//	paeth-rotate -degrees 30 -batch rotated/ a.png b.jpg c.tif
//
// Color inputs are converted to luma. Rotations by a multiple of 90
// degrees cannot be expressed as two shears and are rejected.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/gogpu/paeth"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "paeth-rotate: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, files, err := parseConfig(args, stderr)
	if errors.Is(err, errVersion) {
		fmt.Fprintf(stdout, "paeth-rotate %s\n", paeth.Version)
		return nil
	}
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	r, err := newRotator(cfg, logger)
	if err != nil {
		return err
	}
	defer r.close()

	if cfg.BatchDir != "" {
		return r.batch(ctx, cfg.BatchDir, files, cfg.Jobs, stdout)
	}
	stats, err := r.file(ctx, files[0], files[1])
	if err != nil {
		return err
	}
	printSummary(stdout, []fileStats{stats}, cfg.Degrees, stats.elapsed)
	return nil
}

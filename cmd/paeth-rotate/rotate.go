package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/paeth"
	"github.com/gogpu/paeth/compute"
	"github.com/gogpu/paeth/compute/software"
	"github.com/gogpu/paeth/internal/imageio"
)

// rotator rotates image files by one fixed angle on one queue.
type rotator struct {
	queue   compute.Queue
	backend string
	degrees float64
	shear   paeth.Shear2[float32]
	logger  *slog.Logger
}

func newRotator(cfg config, logger *slog.Logger) (*rotator, error) {
	paeth.SetLogger(logger)

	s, err := paeth.Decompose2(paeth.Rotation2[float32](cfg.Degrees * math.Pi / 180))
	if err != nil {
		return nil, fmt.Errorf("rotate by %g degrees: %w", cfg.Degrees, err)
	}
	q, backend, err := openQueue(cfg, logger)
	if err != nil {
		return nil, err
	}
	desc := backend
	if d, ok := q.(compute.Describer); ok {
		desc = d.Describe()
	}
	logger.Info("compute queue ready", "version", paeth.Version, "backend", backend, "device", desc)
	return &rotator{queue: q, backend: backend, degrees: cfg.Degrees, shear: s, logger: logger}, nil
}

// openQueue opens the configured backend. "auto" prefers the GPU and falls
// back to the software backend.
func openQueue(cfg config, logger *slog.Logger) (compute.Queue, string, error) {
	switch cfg.Backend {
	case backendSoftware:
		return software.New(cfg.Workers), backendSoftware, nil
	case backendWGPU:
		q, err := compute.Open(compute.BackendWGPU)
		if err != nil {
			return nil, "", err
		}
		return q, backendWGPU, nil
	}
	if compute.IsRegistered(compute.BackendWGPU) {
		q, err := compute.Open(compute.BackendWGPU)
		if err == nil {
			return q, backendWGPU, nil
		}
		logger.Warn("GPU backend unavailable, using software", "err", err)
	}
	return software.New(cfg.Workers), backendSoftware, nil
}

func (r *rotator) close() {
	c, ok := r.queue.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		r.logger.Warn("close compute queue", "err", err)
	}
}

// fileStats describes one rotated image.
type fileStats struct {
	input   string
	output  string
	width   int
	height  int
	elapsed time.Duration
}

// file rotates the image at in and writes the result to out. It builds a
// pipeline for the image size and closes it before returning.
func (r *rotator) file(ctx context.Context, in, out string) (fileStats, error) {
	start := time.Now()
	plane, err := imageio.Load(in)
	if err != nil {
		return fileStats{}, fmt.Errorf("%s: %w", in, err)
	}

	rot, err := paeth.NewRotator2[float32](r.queue, plane.Width, plane.Height)
	if err != nil {
		return fileStats{}, fmt.Errorf("%s: %w", in, err)
	}
	pix, err := rot.Rotate(ctx, plane.Pix, r.shear)
	if cerr := rot.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return fileStats{}, fmt.Errorf("%s: %w", in, err)
	}

	plane.Pix = pix
	if err := plane.Save(out); err != nil {
		return fileStats{}, fmt.Errorf("%s: %w", out, err)
	}
	stats := fileStats{
		input:   in,
		output:  out,
		width:   plane.Width,
		height:  plane.Height,
		elapsed: time.Since(start),
	}
	r.logger.Debug("image rotated", "in", in, "out", out,
		"width", stats.width, "height", stats.height, "elapsed", stats.elapsed)
	return stats, nil
}

// batch rotates every input into dir, at most jobs at a time. The first
// failure cancels the images not yet started.
func (r *rotator) batch(ctx context.Context, dir string, inputs []string, jobs int, stdout io.Writer) error {
	outputs, err := batchOutputs(dir, inputs)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	start := time.Now()
	stats := make([]fileStats, len(inputs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, in := range inputs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s, err := r.file(ctx, in, outputs[i])
			if err != nil {
				return err
			}
			stats[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	printSummary(stdout, stats, r.degrees, time.Since(start))
	return nil
}

// batchOutputs maps each input to a file in dir with the same base name.
// Inputs in a format that cannot be written are saved as PNG.
func batchOutputs(dir string, inputs []string) ([]string, error) {
	outputs := make([]string, len(inputs))
	seen := make(map[string]string, len(inputs))
	for i, in := range inputs {
		name := filepath.Base(in)
		if !imageio.CanEncode(name) {
			name = strings.TrimSuffix(name, filepath.Ext(name)) + ".png"
		}
		if prev, ok := seen[name]; ok {
			return nil, fmt.Errorf("inputs %s and %s map to the same output %s", prev, in, name)
		}
		seen[name] = in
		outputs[i] = filepath.Join(dir, name)
	}
	return outputs, nil
}

// printSummary writes a one-line report with locale-formatted numbers.
func printSummary(w io.Writer, stats []fileStats, degrees float64, elapsed time.Duration) {
	p := message.NewPrinter(language.English)
	if len(stats) == 1 {
		s := stats[0]
		p.Fprintf(w, "%s: %d x %d rotated by %.2f degrees in %v\n",
			s.output, s.width, s.height, degrees, elapsed.Round(time.Millisecond))
		return
	}
	var pixels int
	for _, s := range stats {
		pixels += s.width * s.height
	}
	p.Fprintf(w, "rotated %d images, %d pixels in total, by %.2f degrees in %v\n",
		len(stats), pixels, degrees, elapsed.Round(time.Millisecond))
}

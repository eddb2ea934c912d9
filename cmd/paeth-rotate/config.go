package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"runtime"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

// Backend choices.
const (
	backendAuto     = "auto"
	backendSoftware = "software"
	backendWGPU     = "wgpu"
)

// errVersion is returned by parseConfig when -version is given.
var errVersion = errors.New("version requested")

// config holds the tool settings. Explicit flags override the config
// file, which overrides the defaults.
type config struct {
	Backend string  `toml:"backend"`
	Workers int     `toml:"workers"`
	Degrees float64 `toml:"degrees"`
	Verbose bool    `toml:"verbose"`
	Jobs    int     `toml:"jobs"`

	// Flag-only settings.
	ConfigFile string `toml:"-"`
	BatchDir   string `toml:"-"`
}

func defaultConfig() config {
	return config{
		Backend: backendAuto,
		Jobs:    runtime.NumCPU(),
	}
}

// parseConfig resolves the configuration from the command line and the
// optional config file. It returns the positional arguments.
func parseConfig(args []string, stderr io.Writer) (config, []string, error) {
	var (
		flags       config
		showVersion bool
	)
	fs := flag.NewFlagSet("paeth-rotate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: paeth-rotate [flags] -degrees D in out\n")
		fmt.Fprintf(stderr, "       paeth-rotate [flags] -degrees D -batch outdir in...\n\nflags:\n")
		fs.PrintDefaults()
	}
	fs.Float64Var(&flags.Degrees, "degrees", 0, "rotation angle in degrees, counter-clockwise")
	fs.StringVar(&flags.Backend, "backend", backendAuto, "compute backend: auto, software or wgpu")
	fs.IntVar(&flags.Workers, "workers", 0, "software backend workers (0 = GOMAXPROCS)")
	fs.IntVar(&flags.Jobs, "jobs", runtime.NumCPU(), "images rotated concurrently in batch mode")
	fs.BoolVar(&flags.Verbose, "v", false, "verbose logging")
	fs.StringVar(&flags.ConfigFile, "config", "", "TOML config file")
	fs.StringVar(&flags.BatchDir, "batch", "", "write rotated copies of every input into this directory")
	fs.BoolVar(&showVersion, "version", false, "print the version and exit")
	if err := fs.Parse(args); err != nil {
		return config{}, nil, err
	}
	if showVersion {
		return config{}, nil, errVersion
	}

	cfg := defaultConfig()
	if flags.ConfigFile != "" {
		if err := loadConfigFile(flags.ConfigFile, &cfg); err != nil {
			return config{}, nil, err
		}
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "degrees":
			cfg.Degrees = flags.Degrees
		case "backend":
			cfg.Backend = flags.Backend
		case "workers":
			cfg.Workers = flags.Workers
		case "jobs":
			cfg.Jobs = flags.Jobs
		case "v":
			cfg.Verbose = flags.Verbose
		}
	})
	cfg.ConfigFile = flags.ConfigFile
	cfg.BatchDir = flags.BatchDir

	if err := cfg.validate(fs.NArg()); err != nil {
		return config{}, nil, err
	}
	return cfg, fs.Args(), nil
}

// loadConfigFile decodes path over cfg. Keys absent from the file keep
// their current values.
func loadConfigFile(path string, cfg *config) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return nil
}

func (c config) validate(nargs int) error {
	if !slices.Contains([]string{backendAuto, backendSoftware, backendWGPU}, c.Backend) {
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.Jobs < 1 {
		return fmt.Errorf("jobs must be at least 1, got %d", c.Jobs)
	}
	switch {
	case c.BatchDir != "" && nargs == 0:
		return fmt.Errorf("batch mode needs at least one input")
	case c.BatchDir == "" && nargs != 2:
		return fmt.Errorf("need an input and an output file, got %d arguments", nargs)
	}
	return nil
}

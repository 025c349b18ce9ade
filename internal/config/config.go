// Package config resolves the runtime configuration from defaults, .env
// files, MUKHA_* environment variables and command line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ayusman/mukha/internal/detector"
	"github.com/ayusman/mukha/internal/particle"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MUKHA_"

// Config holds every tunable of the mukha binary.
type Config struct {
	CameraID         int           `validate:"gte=0"`
	Mode             string        `validate:"oneof=streaming polling"`
	PollInterval     time.Duration `validate:"gt=0"`
	FPS              int           `validate:"gte=1,lte=120"`
	BootstrapTimeout time.Duration `validate:"gt=0"`

	Detector        string  `validate:"oneof=auto mediapipe cascade"`
	MaxFaces        int     `validate:"gte=1,lte=10"`
	MinConfidence   float64 `validate:"gte=0,lte=1"`
	RefineLandmarks bool
	CascadePath     string

	ViewportWidth  int     `validate:"gte=1"`
	ViewportHeight int     `validate:"gte=1"`
	CanvasFraction float64 `validate:"gt=0,lte=1"`
	Tray           bool    `validate:"excluded_with=Window"`
	Listen         string  `validate:"omitempty,hostname_port"`
	Window         bool
	ShowLandmarks  bool

	ParticleFloor   int `validate:"gte=0"`
	ParticleInitial int `validate:"gte=0"`

	LogLevel string `validate:"oneof=trace debug info warn warning error"`
	LogFile  string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		CameraID:         0,
		Mode:             "streaming",
		PollInterval:     100 * time.Millisecond,
		FPS:              30,
		BootstrapTimeout: 30 * time.Second,
		Detector:         "auto",
		MaxFaces:         1,
		MinConfidence:    0.5,
		ViewportWidth:    1280,
		ViewportHeight:   720,
		CanvasFraction:   0.4,
		Window:           true,
		ParticleFloor:    particle.DefaultFloor,
		ParticleInitial:  particle.DefaultInitial,
		LogLevel:         "info",
	}
}

var validate = validator.New()

// Validate checks every field constraint.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s fails %q (got %v)", fe.Field(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// DetectorConfig maps the detector settings.
func (c *Config) DetectorConfig() detector.Config {
	dc := detector.DefaultConfig()
	dc.MaxFaces = c.MaxFaces
	dc.RefineLandmarks = c.RefineLandmarks
	dc.MinConfidence = c.MinConfidence
	dc.MinTrackingConf = c.MinConfidence
	dc.CascadePath = c.CascadePath
	return dc
}

// ParticleConfig maps the particle settings.
func (c *Config) ParticleConfig() particle.Config {
	pc := particle.DefaultConfig()
	pc.Floor = c.ParticleFloor
	pc.Initial = c.ParticleInitial
	return pc
}

// LoadDotEnv loads .env style files into the process environment. Missing
// files are ignored; variables already set are never overwritten.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// setting ties a flag to its environment variable.
type setting struct {
	flag  string
	usage string
	bind  func(fs *pflag.FlagSet, c *Config, name, usage string)
	parse func(c *Config, v string) error
}

var settings = []setting{
	intSetting("camera", "camera device index", func(c *Config) *int { return &c.CameraID }),
	stringSetting("mode", "detection mode: streaming or polling", func(c *Config) *string { return &c.Mode }),
	durationSetting("poll-interval", "delay between polling detection cycles", func(c *Config) *time.Duration { return &c.PollInterval }),
	intSetting("fps", "render frame rate", func(c *Config) *int { return &c.FPS }),
	durationSetting("bootstrap-timeout", "maximum wait for the first camera frame", func(c *Config) *time.Duration { return &c.BootstrapTimeout }),
	stringSetting("detector", "detector backend: auto, mediapipe or cascade", func(c *Config) *string { return &c.Detector }),
	intSetting("max-faces", "maximum faces per frame", func(c *Config) *int { return &c.MaxFaces }),
	boolSetting("refine-landmarks", "enable iris refinement", func(c *Config) *bool { return &c.RefineLandmarks }),
	floatSetting("min-confidence", "minimum detection confidence", func(c *Config) *float64 { return &c.MinConfidence }),
	stringSetting("cascade", "Haar cascade file for the fallback detector", func(c *Config) *string { return &c.CascadePath }),
	intSetting("viewport-width", "viewport width used to size the canvas", func(c *Config) *int { return &c.ViewportWidth }),
	intSetting("viewport-height", "viewport height used to place the canvas", func(c *Config) *int { return &c.ViewportHeight }),
	floatSetting("canvas-fraction", "canvas side as a fraction of the viewport width", func(c *Config) *float64 { return &c.CanvasFraction }),
	boolSetting("landmarks", "draw every landmark", func(c *Config) *bool { return &c.ShowLandmarks }),
	boolSetting("window", "show the overlay in a window", func(c *Config) *bool { return &c.Window }),
	boolSetting("tray", "show a system tray menu (requires --window=false)", func(c *Config) *bool { return &c.Tray }),
	stringSetting("listen", "preview server address, e.g. localhost:8080", func(c *Config) *string { return &c.Listen }),
	intSetting("particle-floor", "minimum particle count", func(c *Config) *int { return &c.ParticleFloor }),
	intSetting("particle-initial", "particles seeded at start and on reset", func(c *Config) *int { return &c.ParticleInitial }),
	stringSetting("log-level", "log level", func(c *Config) *string { return &c.LogLevel }),
	stringSetting("log-file", "rotating log file", func(c *Config) *string { return &c.LogFile }),
}

// EnvName returns the environment variable for a flag name.
func EnvName(flag string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

// BindFlags registers every setting on fs, using the current values of c as
// defaults.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	for _, s := range settings {
		s.bind(fs, c, s.flag, fmt.Sprintf("%s [%s]", s.usage, EnvName(s.flag)))
	}
}

// ApplyEnv overrides c from environment variables. Settings whose flag was
// set explicitly are skipped; changed may be nil.
func (c *Config) ApplyEnv(lookup func(string) (string, bool), changed func(flag string) bool) error {
	var errs []error
	for _, s := range settings {
		if changed != nil && changed(s.flag) {
			continue
		}
		v, ok := lookup(EnvName(s.flag))
		if !ok || v == "" {
			continue
		}
		if err := s.parse(c, v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvName(s.flag), err))
		}
	}
	return errors.Join(errs...)
}

func intSetting(flag, usage string, field func(*Config) *int) setting {
	return setting{
		flag:  flag,
		usage: usage,
		bind: func(fs *pflag.FlagSet, c *Config, name, usage string) {
			fs.IntVar(field(c), name, *field(c), usage)
		},
		parse: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			*field(c) = n
			return nil
		},
	}
}

func floatSetting(flag, usage string, field func(*Config) *float64) setting {
	return setting{
		flag:  flag,
		usage: usage,
		bind: func(fs *pflag.FlagSet, c *Config, name, usage string) {
			fs.Float64Var(field(c), name, *field(c), usage)
		},
		parse: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return err
			}
			*field(c) = f
			return nil
		},
	}
}

func boolSetting(flag, usage string, field func(*Config) *bool) setting {
	return setting{
		flag:  flag,
		usage: usage,
		bind: func(fs *pflag.FlagSet, c *Config, name, usage string) {
			fs.BoolVar(field(c), name, *field(c), usage)
		},
		parse: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			*field(c) = b
			return nil
		},
	}
}

func stringSetting(flag, usage string, field func(*Config) *string) setting {
	return setting{
		flag:  flag,
		usage: usage,
		bind: func(fs *pflag.FlagSet, c *Config, name, usage string) {
			fs.StringVar(field(c), name, *field(c), usage)
		},
		parse: func(c *Config, v string) error {
			*field(c) = v
			return nil
		},
	}
}

func durationSetting(flag, usage string, field func(*Config) *time.Duration) setting {
	return setting{
		flag:  flag,
		usage: usage,
		bind: func(fs *pflag.FlagSet, c *Config, name, usage string) {
			fs.DurationVar(field(c), name, *field(c), usage)
		},
		parse: func(c *Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return err
			}
			*field(c) = d
			return nil
		},
	}
}

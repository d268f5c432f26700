// Package config loads the automuter configuration.
//
// Sources, lowest precedence first:
//
//	built-in defaults
//	config.yaml          (--config, or <UserConfigDir>/automuter/config.yaml)
//	.env files           (working directory, then the app directory)
//	environment          (AUTOMUTER_*, HF_AUTH_TOKEN, AWS_*)
//
// Command flags override the loaded values.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"

	"github.com/haivivi/automuter/pkg/cli"
	"github.com/haivivi/automuter/pkg/storage"
)

// Config is the root configuration.
type Config struct {
	Listen       string   `yaml:"listen"`
	Threshold    float64  `yaml:"threshold"`
	Format       string   `yaml:"format"`
	DataDir      string   `yaml:"data_dir"`
	AllowOrigins []string `yaml:"allow_origins,omitempty"`

	Dirs      Dirs             `yaml:"dirs"`
	Embedding Embedding        `yaml:"embedding"`
	Mining    Mining           `yaml:"mining"`
	S3        storage.S3Config `yaml:"s3"`
	Acquire   Acquire          `yaml:"acquire"`

	// Path is the file the configuration was read from, if any.
	Path string `yaml:"-"`
}

// Dirs holds the working directories of the mining tools.
type Dirs struct {
	Raw      string `yaml:"raw"`
	Samples  string `yaml:"samples"`
	Speakers string `yaml:"speakers"`

	// Dumps receives chunks that failed to decode. Empty disables dumps.
	Dumps string `yaml:"dumps,omitempty"`
}

// Embedding configures the speaker embedding model gateway.
type Embedding struct {
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Token       string        `yaml:"token,omitempty"`
	Dimension   int           `yaml:"dimension,omitempty"`
	Workers     int           `yaml:"workers"`
	MinDuration time.Duration `yaml:"min_duration"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Mining configures the mine command.
type Mining struct {
	Rounds             int           `yaml:"rounds"`
	InitialThreshold   float64       `yaml:"initial_threshold"`
	ThresholdIncrement float64       `yaml:"threshold_increment"`
	Window             time.Duration `yaml:"window"`
	Step               time.Duration `yaml:"step"`
	MinSegment         time.Duration `yaml:"min_segment"`
	Workers            int           `yaml:"workers"`
	Strategy           string        `yaml:"strategy"`
	VADModel           string        `yaml:"vad_model,omitempty"`
}

// Acquire configures the download tool.
type Acquire struct {
	Binary string `yaml:"binary"`
	FFmpeg string `yaml:"ffmpeg,omitempty"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Listen:    ":8000",
		Threshold: 0.65,
		Format:    "webm",
		DataDir:   "data",
		Dirs: Dirs{
			Raw:      "raw",
			Samples:  "samples",
			Speakers: "speakers",
		},
		Embedding: Embedding{
			BaseURL:     "http://127.0.0.1:8080/v1",
			Model:       "pyannote/embedding",
			Workers:     runtime.NumCPU(),
			MinDuration: 1500 * time.Millisecond,
			Timeout:     30 * time.Second,
		},
		Mining: Mining{
			Rounds:             3,
			InitialThreshold:   0.1,
			ThresholdIncrement: 0.2,
			Window:             2 * time.Second,
			Step:               time.Second,
			MinSegment:         1500 * time.Millisecond,
			Workers:            runtime.NumCPU(),
			Strategy:           "window",
		},
		Acquire: Acquire{Binary: "yt-dlp"},
	}
}

// Load reads the configuration. An empty path selects the default file,
// which may be absent; an explicit path must exist.
func Load(path string) (*Config, error) {
	paths, perr := cli.NewPaths()

	for _, env := range envFiles(paths) {
		if err := godotenv.Load(env); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", env, err)
		}
	}

	cfg := Default()
	explicit := path != ""
	if !explicit && perr == nil {
		path = paths.ConfigFile()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
			cfg.Path = path
		case explicit || !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envFiles(paths *cli.Paths) []string {
	files := []string{".env"}
	if paths != nil {
		files = append(files, paths.EnvFile())
	}
	return files
}

// applyEnv overrides values from the environment.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("AUTOMUTER_LISTEN", &c.Listen)
	str("AUTOMUTER_DATA_DIR", &c.DataDir)
	str("AUTOMUTER_FORMAT", &c.Format)
	str("AUTOMUTER_EMBEDDING_URL", &c.Embedding.BaseURL)
	str("AUTOMUTER_EMBEDDING_MODEL", &c.Embedding.Model)
	str("HF_AUTH_TOKEN", &c.Embedding.Token)
	str("AUTOMUTER_S3_BUCKET", &c.S3.Bucket)
	str("AWS_ACCESS_KEY_ID", &c.S3.AccessKey)
	str("AWS_SECRET_ACCESS_KEY", &c.S3.SecretKey)
	str("AWS_REGION", &c.S3.Region)

	if v, ok := lookup("AUTOMUTER_THRESHOLD"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("AUTOMUTER_THRESHOLD: %w", err)
		}
		c.Threshold = f
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Threshold < -1 || c.Threshold > 1 {
		errs = append(errs, fmt.Errorf("threshold %v outside [-1, 1]", c.Threshold))
	}
	if c.Format == "" {
		errs = append(errs, errors.New("format must not be empty"))
	}
	if c.Mining.Rounds < 1 {
		errs = append(errs, fmt.Errorf("mining.rounds must be >= 1, got %d", c.Mining.Rounds))
	}
	if !(c.Mining.ThresholdIncrement > 0) {
		errs = append(errs, fmt.Errorf("mining.threshold_increment must be > 0, got %v", c.Mining.ThresholdIncrement))
	}
	if c.Mining.Window <= 0 || c.Mining.Step <= 0 {
		errs = append(errs, errors.New("mining.window and mining.step must be positive"))
	}
	if c.Embedding.Workers < 1 {
		c.Embedding.Workers = 1
	}
	if c.Mining.Workers < 1 {
		c.Mining.Workers = 1
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

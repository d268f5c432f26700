package cli

import (
	"os"
	"path/filepath"
)

const (
	// AppName is the directory name under os.UserConfigDir().
	AppName = "automuter"
	// DefaultConfigFile is the default configuration filename
	DefaultConfigFile = "config.yaml"
)

// Paths resolves the application directory layout:
//
//	<UserConfigDir>/automuter/
//	├── config.yaml
//	├── .env
//	└── data/          # badger speaker store
type Paths struct {
	// Dir is the application directory.
	Dir string
}

// NewPaths returns the layout under os.UserConfigDir().
func NewPaths() (*Paths, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return nil, err
	}
	return &Paths{Dir: filepath.Join(base, AppName)}, nil
}

// ConfigFile returns the default config file path.
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.Dir, DefaultConfigFile)
}

// EnvFile returns the default .env path.
func (p *Paths) EnvFile() string {
	return filepath.Join(p.Dir, ".env")
}

// DataDir returns the default speaker store directory.
func (p *Paths) DataDir() string {
	return filepath.Join(p.Dir, "data")
}

// EnsureDir creates dir if it doesn't exist
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}

// Package dataset manages speech dataset descriptors, the sentence lists a
// speaker works through, and the on-disk layout of recorded takes.
package dataset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/maauso/speech-dataset-maker/internal/audio"
)

// Static errors for dataset descriptors.
var (
	// ErrEmptyConfig is returned when a descriptor file has no content.
	ErrEmptyConfig = errors.New("dataset: config file is empty")
	// ErrInvalidConfig is returned when a descriptor fails validation.
	ErrInvalidConfig = errors.New("dataset: invalid config")
)

// Text directions for sentence display.
const (
	DirectionLTR = "ltr"
	DirectionRTL = "rtl"
)

var validate = validator.New()

// Config describes one dataset: where its sentences come from, where takes
// are written and the format every take is recorded at.
type Config struct {
	LangCode      string `json:"LangCode" yaml:"lang_code"`
	LangTitle     string `json:"LangTitle" yaml:"lang_title"`
	TextDirection string `json:"TextDirection" yaml:"text_direction" validate:"omitempty,oneof=ltr rtl"`
	SentencesFile string `json:"SentencesFile" yaml:"sentences_file" validate:"required"`
	OutputDir     string `json:"OutputDir" yaml:"output_dir" validate:"required"`
	WavsDir       string `json:"WavsDir" yaml:"wavs_dir" validate:"required"`
	SampleRate    int    `json:"SampleRate" yaml:"sample_rate" validate:"required,min=1000,max=384000"`
	BitDepth      int    `json:"BitDepth" yaml:"bit_depth" validate:"required,oneof=8 16 24 32"`
	Channels      int    `json:"Channels" yaml:"channels" validate:"required,min=1,max=8"`
	Speaker       string `json:"Speaker" yaml:"speaker"`
	Gender        string `json:"Gender" yaml:"gender"`
}

// Format returns the audio format takes of this dataset are recorded at.
func (c *Config) Format() audio.Format {
	return audio.Format{
		SampleRate: c.SampleRate,
		BitDepth:   c.BitDepth,
		Channels:   c.Channels,
	}
}

// RTL reports whether sentences should be displayed right-to-left. Validate
// only admits the lowercase directions.
func (c *Config) RTL() bool {
	return c.TextDirection == DirectionRTL
}

// MetadataPath returns the path of the dataset's metadata ledger.
func (c *Config) MetadataPath() string {
	return filepath.Join(c.OutputDir, MetadataFile)
}

// Validate checks the descriptor with its struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// LoadConfig reads a descriptor from path. Files ending in .yaml or .yml are
// parsed as YAML, everything else as JSON.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from the dataset catalog
	if err != nil {
		return nil, fmt.Errorf("read dataset config: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyConfig
	}

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse dataset config %s: %w", filepath.Base(path), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

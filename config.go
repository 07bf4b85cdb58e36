// config.go
// One immutable Config, passed to every constructor. No globals.

package main

import (
	"path/filepath"
	"runtime"

	"github.com/pkg/errors"
)

// Config holds every knob for a run. Construct it once, hand copies around.
type Config struct {
	// data
	DataDir  string `json:"data_dir"`
	OutDir   string `json:"out_dir"`
	DBPath   string `json:"db_path"`
	GenCkpt  string `json:"gen_ckpt"`
	DiscCkpt string `json:"disc_ckpt"`

	// model
	ImageSize     int `json:"image_size"`
	BaseChannels  int `json:"base_channels"`
	NoiseDim      int `json:"noise_dim"`
	NumCategories int `json:"num_categories"`
	ContinuousDim int `json:"continuous_dim"`

	// training
	BatchSize    int     `json:"batch_size"`
	Epochs       int     `json:"epochs"`
	LearningRate float64 `json:"learning_rate"`
	Beta1        float64 `json:"beta1"`
	Beta2        float64 `json:"beta2"`
	EpsAdam      float64 `json:"eps_adam"`
	GradClip     float64 `json:"grad_clip"`
	DiscEvery    int     `json:"disc_every"`
	LogInterval  int     `json:"log_interval"`
	Seed         int64   `json:"seed"`

	// retrieval
	TruncDepth int `json:"trunc_depth"`

	// loading
	Workers int `json:"workers"`
}

func DefaultConfig() Config {
	return Config{
		DataDir:       "faces",
		OutDir:        "run",
		DBPath:        "metrics.sqlite3",
		GenCkpt:       "generator.ckpt.gz",
		DiscCkpt:      "discriminator.ckpt.gz",
		ImageSize:     64,
		BaseChannels:  64,
		NoiseDim:      100,
		NumCategories: 10,
		ContinuousDim: 2,
		BatchSize:     64,
		Epochs:        30,
		LearningRate:  0.0002,
		Beta1:         0.5,
		Beta2:         0.999,
		EpsAdam:       1e-8,
		GradClip:      0,
		DiscEvery:     2,
		LogInterval:   100,
		Seed:          42,
		TruncDepth:    4,
		Workers:       runtime.NumCPU(),
	}
}

// LatentDim is the generator input width: noise + one-hot category + continuous code.
func (c Config) LatentDim() int {
	return c.NoiseDim + c.NumCategories + c.ContinuousDim
}

// ProjSize is the spatial side of the generator's dense projection. Four
// stride-2 stages grow it back to ImageSize.
func (c Config) ProjSize() int {
	return c.ImageSize / 16
}

// CkptPath places a checkpoint file inside the run directory.
func (c Config) CkptPath(name string) string {
	return filepath.Join(c.OutDir, name)
}

// MetricsPath is the metrics database location inside the run directory.
func (c Config) MetricsPath() string {
	return filepath.Join(c.OutDir, c.DBPath)
}

func (c Config) Validate() error {
	if c.ImageSize < 16 || c.ImageSize%16 != 0 {
		return errors.Errorf("image size %d: need a multiple of 16 (four stride-2 stages)", c.ImageSize)
	}
	if c.BaseChannels < 1 {
		return errors.Errorf("base channels %d: need at least 1", c.BaseChannels)
	}
	if c.NoiseDim < 1 || c.NumCategories < 2 || c.ContinuousDim < 1 {
		return errors.Errorf("latent dims z=%d c=%d d=%d: need z>=1, c>=2, d>=1",
			c.NoiseDim, c.NumCategories, c.ContinuousDim)
	}
	if c.BatchSize < 1 {
		return errors.Errorf("batch size %d: need at least 1", c.BatchSize)
	}
	if c.DiscEvery < 1 {
		return errors.Errorf("disc update stride %d: need at least 1", c.DiscEvery)
	}
	if c.TruncDepth < 1 || c.TruncDepth > 5 {
		return errors.Errorf("truncation depth %d: valid depths are 1..4 (conv stages) or 5 (shared dense)", c.TruncDepth)
	}
	if c.LearningRate <= 0 {
		return errors.Errorf("learning rate %g: must be positive", c.LearningRate)
	}
	if c.Workers < 1 {
		return errors.Errorf("workers %d: need at least 1", c.Workers)
	}
	return nil
}

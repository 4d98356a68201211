package translation

import (
	"encoding/json"
	"fmt"
	"time"
)

// Mode selects how a changed crop becomes a translation.
type Mode string

const (
	// ModeOCR runs local OCR and sends only the text for translation.
	ModeOCR Mode = "ocr"
	// ModeVision sends the cropped image straight to the vision model.
	ModeVision Mode = "vision"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool { return m == ModeOCR || m == ModeVision }

// Tunables. The recheck and stale values were picked empirically.
const (
	DefaultPollInterval      = 2 * time.Second
	DefaultChangeThreshold   = 7
	DefaultDetectionInterval = 300 * time.Second
	DefaultDebugDir          = "tmp/translation_debug"

	// RecheckFloor and RecheckPolls bound the forced recheck: a displayed
	// translation is re-verified after max(RecheckFloor, RecheckPolls*poll).
	RecheckFloor = 2 * time.Second
	RecheckPolls = 4
	// StaleAfter is how long identical text may stay displayed before the
	// overlay is cleared as a safety measure.
	StaleAfter = 60 * time.Second
	// EMAWeight is the weight of the newest latency sample.
	EMAWeight = 0.3
)

// Config is the live configuration of a Service.
type Config struct {
	PollInterval      time.Duration
	ChangeThreshold   int
	DetectionInterval time.Duration
	DebugMode         bool
	DebugDir          string
	Mode              Mode
	AutoDetect        bool
}

// DefaultConfig returns the out-of-the-box configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval:      DefaultPollInterval,
		ChangeThreshold:   DefaultChangeThreshold,
		DetectionInterval: DefaultDetectionInterval,
		DebugDir:          DefaultDebugDir,
		Mode:              ModeOCR,
		AutoDetect:        true,
	}
}

// Validate checks ranges.
func (c Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.ChangeThreshold < 0 || c.ChangeThreshold > 64 {
		return fmt.Errorf("change threshold must be within 0..64, got %d", c.ChangeThreshold)
	}
	if c.DetectionInterval <= 0 {
		return fmt.Errorf("detection interval must be positive, got %s", c.DetectionInterval)
	}
	if !c.Mode.Valid() {
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	return nil
}

// RecheckAfter is the forced recheck delay for this configuration.
func (c Config) RecheckAfter() time.Duration {
	return max(RecheckFloor, RecheckPolls*c.PollInterval)
}

type configJSON struct {
	PollInterval      float64 `json:"poll_interval"`
	ChangeThreshold   int     `json:"change_threshold"`
	DetectionInterval float64 `json:"detection_interval"`
	DebugMode         bool    `json:"debug_mode"`
	DebugDir          string  `json:"debug_dir"`
	Mode              Mode    `json:"mode"`
	AutoDetect        bool    `json:"auto_detect"`
}

// MarshalJSON renders durations as seconds.
func (c Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(configJSON{
		PollInterval:      c.PollInterval.Seconds(),
		ChangeThreshold:   c.ChangeThreshold,
		DetectionInterval: c.DetectionInterval.Seconds(),
		DebugMode:         c.DebugMode,
		DebugDir:          c.DebugDir,
		Mode:              c.Mode,
		AutoDetect:        c.AutoDetect,
	})
}

// Patch is a partial configuration update; nil fields are left alone.
type Patch struct {
	PollInterval      *time.Duration
	ChangeThreshold   *int
	DetectionInterval *time.Duration
	// DialogueBox is an "x,y,w,h" operator override.
	DialogueBox *string
	DebugMode   *bool
	Mode        *Mode
	AutoDetect  *bool
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.PollInterval == nil && p.ChangeThreshold == nil && p.DetectionInterval == nil &&
		p.DialogueBox == nil && p.DebugMode == nil && p.Mode == nil && p.AutoDetect == nil
}

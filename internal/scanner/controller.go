// Package scanner owns the barcode acquisition lifecycle: it wraps an
// external decoder behind a narrow interface, debounces its raw
// detections, and yields one validated code per scan session.
package scanner

import (
	"fmt"
	"log/slog"
	"sync"
)

// State is the scan session lifecycle state
type State int

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	}
	return "unknown"
}

// DeviceUnavailableError reports a camera/decoder initialization failure
// (permissions denied, no HTTPS context, hardware busy).
type DeviceUnavailableError struct {
	Cause error
}

func (e *DeviceUnavailableError) Error() string {
	return fmt.Sprintf("scan device unavailable: %v", e.Cause)
}

func (e *DeviceUnavailableError) Unwrap() error {
	return e.Cause
}

// CaptureRegion restricts decoding to the center of the frame, expressed
// as percentage insets.
type CaptureRegion struct {
	Top    string `json:"top"`
	Right  string `json:"right"`
	Bottom string `json:"bottom"`
	Left   string `json:"left"`
}

// Config controls the decoder attachment and the debounce
type Config struct {
	Region    CaptureRegion `json:"region"`
	Frequency int           `json:"frequency"` // decode attempts per second
	Readers   []string      `json:"readers"`   // barcode symbologies
	Threshold int           `json:"threshold"` // consecutive identical reads required
}

// DefaultConfig returns the scan configuration used in production.
// Single-frame reads are noisy (motion blur, reflections, partial
// occlusion); requiring three identical consecutive reads trades a small
// latency for a large drop in false positives.
func DefaultConfig() Config {
	return Config{
		Region:    CaptureRegion{Top: "25%", Right: "15%", Bottom: "25%", Left: "15%"},
		Frequency: 5,
		Readers:   []string{"ean_reader", "ean_8_reader"},
		Threshold: 3,
	}
}

// Controller drives the scan session state machine. All transitions are
// serialized; detections are processed strictly in delivery order.
type Controller struct {
	mu      sync.Mutex
	decoder Decoder
	cfg     Config

	state    State
	session  uint64
	lastCode string
	matches  int
}

// NewController creates a Controller in the Idle state
func NewController(decoder Decoder, cfg Config) *Controller {
	if cfg.Threshold < 1 {
		cfg.Threshold = 1
	}
	return &Controller{
		decoder: decoder,
		cfg:     cfg,
	}
}

// Start attaches the decoder and begins a scan session. It is an
// idempotent no-op unless the controller is Idle. On attach failure the
// controller returns to Idle with the stream released.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		return nil
	}

	c.state = StateStarting
	if err := c.decoder.Attach(c.cfg); err != nil {
		// The stream must not stay attached after a failed start
		if relErr := c.decoder.Release(); relErr != nil {
			slog.Warn("Failed to release decoder after attach failure", "error", relErr)
		}
		c.state = StateIdle
		return &DeviceUnavailableError{Cause: err}
	}

	c.state = StateRunning
	c.session++
	c.lastCode = ""
	c.matches = 0
	return nil
}

// HandleDetection processes one raw detection from the decoder. It
// returns the validated code with accepted=true exactly once per session,
// after the configured count of consecutive identical plausible reads.
// Detections are ignored unless the controller is Running; implausible
// codes are discarded silently.
func (c *Controller) HandleDetection(raw string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRunning {
		return "", false
	}
	if !plausibleCode(raw) {
		return "", false
	}

	if raw == c.lastCode {
		c.matches++
	} else {
		c.lastCode = raw
		c.matches = 1
	}

	if c.matches < c.cfg.Threshold {
		return "", false
	}

	c.state = StateStopping
	c.releaseLocked()
	return raw, true
}

// Cancel aborts the session without yielding a code. It is valid from
// Starting or Running and a no-op otherwise.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateStarting && c.state != StateRunning {
		return
	}

	c.state = StateStopping
	c.releaseLocked()
}

// State returns the current session state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns a number identifying the current scan session. It
// changes on every successful Start, so a caller relaying detections can
// discard frames that belong to an earlier session.
func (c *Controller) Session() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// releaseLocked stops the decoder and resets the debounce state. The
// caller holds the mutex and has already set the state to Stopping.
func (c *Controller) releaseLocked() {
	if err := c.decoder.Release(); err != nil {
		slog.Warn("Failed to release decoder", "error", err)
	}
	c.lastCode = ""
	c.matches = 0
	c.state = StateIdle
}

// plausibleCode reports whether raw looks like an EAN-13 or EAN-8 code:
// exactly 13 or 8 ASCII digits.
func plausibleCode(raw string) bool {
	if len(raw) != 13 && len(raw) != 8 {
		return false
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

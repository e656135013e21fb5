package scanner

import (
	"fmt"
	"sync"
)

// Decoder is the capability the Controller depends on for the camera
// feed. The decoding itself happens outside this process; Attach and
// Release bracket the session so that the camera hardware is held for
// exactly as long as a session is live.
type Decoder interface {
	// Attach connects the decoder to a live camera feed with the given
	// capture region and scan frequency.
	Attach(cfg Config) error

	// Release stops the feed, including every underlying hardware track.
	// A stopped decoder does not guarantee camera-light-off without this.
	Release() error
}

// RemoteFeed is the production Decoder for the browser deployment: the
// camera and the decoding library live in the page, which relays raw
// detections over HTTP. Attach and Release only track whether a feed is
// expected; the page stops its own video tracks when the server reports
// the session over.
type RemoteFeed struct {
	mu       sync.Mutex
	attached bool
	cfg      Config
}

// NewRemoteFeed creates a detached RemoteFeed
func NewRemoteFeed() *RemoteFeed {
	return &RemoteFeed{}
}

// Attach marks the feed as live
func (f *RemoteFeed) Attach(cfg Config) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.attached {
		return fmt.Errorf("feed already attached")
	}
	f.attached = true
	f.cfg = cfg
	return nil
}

// Release marks the feed as stopped
func (f *RemoteFeed) Release() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.attached = false
	return nil
}

// Attached reports whether a feed is currently expected
func (f *RemoteFeed) Attached() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attached
}

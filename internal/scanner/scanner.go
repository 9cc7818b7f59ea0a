// Package scanner acquires document images, either from a SANE scanner or
// from an inbox directory.
package scanner

import (
	"context"
	"fmt"
)

// Scanner writes one scanned page to outputPath
type Scanner interface {
	Scan(ctx context.Context, outputPath string) error
	DeviceInfo() string
}

// Config describes how scans are acquired. Sizes are in inches, the
// resolution in DPI.
type Config struct {
	Driver     string
	Device     string
	Resolution int
	ColorMode  string
	MaxWidth   float64
	MaxHeight  float64
	InboxPath  string
}

// New creates the configured scanner driver
func New(cfg Config) (Scanner, error) {
	switch cfg.Driver {
	case "", "sane":
		return NewSaneScanner(cfg, nil), nil
	case "inbox":
		return NewInboxScanner(cfg.InboxPath)
	default:
		return nil, fmt.Errorf("unsupported scanner driver: %s", cfg.Driver)
	}
}

// Package hardware drives the front panel: scan button, status LEDs, the
// three position language switch and a 16x2 character display.
package hardware

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// LED names a front panel light
type LED string

const (
	LEDReady       LED = "ready"
	LEDProcessing  LED = "processing"
	LEDError       LED = "error"
	LEDButtonLight LED = "button_light"
)

// AllLEDs lists the panel lights in self-test order
func AllLEDs() []LED {
	return []LED{LEDReady, LEDProcessing, LEDError, LEDButtonLight}
}

// Panel is the device front panel
type Panel interface {
	// Presses delivers debounced button presses until ctx is done
	Presses(ctx context.Context) <-chan time.Time
	SetLED(led LED, on bool) error
	// Language returns the language selected on the switch, false when the
	// panel has no switch or it is between positions
	Language() (string, bool)
	Display(line1, line2 string) error
	Available() bool
	Close() error
}

// SelfTest lights each LED in turn, as the device does at power on
func SelfTest(ctx context.Context, panel Panel, onTime time.Duration) {
	for _, led := range AllLEDs() {
		if err := panel.SetLED(led, true); err != nil {
			slog.Warn("led self test failed", "led", led, "error", err)
			continue
		}
		select {
		case <-ctx.Done():
		case <-time.After(onTime):
		}
		_ = panel.SetLED(led, false)
		if ctx.Err() != nil {
			return
		}
	}
}

// Debouncer accepts an event only when the previous accepted event is at
// least window old
type Debouncer struct {
	mu     sync.Mutex
	window time.Duration
	last   time.Time
}

func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{window: window}
}

func (d *Debouncer) Accept(now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.last.IsZero() && now.Sub(d.last) < d.window {
		return false
	}
	d.last = now
	return true
}

// Noop is the panel used when hardware is disabled. It never reports a press.
type Noop struct{}

func (Noop) Presses(ctx context.Context) <-chan time.Time {
	ch := make(chan time.Time)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch
}

func (Noop) SetLED(led LED, on bool) error {
	slog.Debug("led", "led", led, "on", on)
	return nil
}

func (Noop) Language() (string, bool) { return "", false }

func (Noop) Display(line1, line2 string) error {
	slog.Debug("display", "line1", line1, "line2", line2)
	return nil
}

func (Noop) Available() bool { return false }

func (Noop) Close() error { return nil }

package hardware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// Pins holds BCM GPIO numbers
type Pins struct {
	Button         int            `yaml:"button" validate:"gte=0"`
	ButtonLight    int            `yaml:"button_light" validate:"gte=0"`
	ReadyLED       int            `yaml:"ready_led" validate:"gte=0"`
	ProcessingLED  int            `yaml:"processing_led" validate:"gte=0"`
	ErrorLED       int            `yaml:"error_led" validate:"gte=0"`
	LanguageSwitch map[string]int `yaml:"language_switch"`
}

// Config describes the wired panel
type Config struct {
	Enabled           bool   `yaml:"enabled"`
	Pins              Pins   `yaml:"pins"`
	DebounceMillis    int    `yaml:"debounce_ms" validate:"gte=0"`
	LCDEnabled        bool   `yaml:"lcd_enabled"`
	LCDBus            string `yaml:"lcd_bus"`
	LCDAddress        int    `yaml:"lcd_address" validate:"gte=0,lte=127"`
	SelfTestMillis    int    `yaml:"self_test_ms" validate:"gte=0"`
	PollTimeoutMillis int    `yaml:"poll_timeout_ms" validate:"gte=0"`
}

// Validate checks that no GPIO is wired twice
func (p Pins) Validate() error {
	seen := map[int]string{}
	check := func(name string, pin int) error {
		if other, ok := seen[pin]; ok {
			return fmt.Errorf("gpio %d is assigned to both %s and %s", pin, other, name)
		}
		seen[pin] = name
		return nil
	}
	for _, entry := range []struct {
		name string
		pin  int
	}{
		{"button", p.Button},
		{"button_light", p.ButtonLight},
		{"ready_led", p.ReadyLED},
		{"processing_led", p.ProcessingLED},
		{"error_led", p.ErrorLED},
	} {
		if err := check(entry.name, entry.pin); err != nil {
			return err
		}
	}
	languages := make([]string, 0, len(p.LanguageSwitch))
	for lang := range p.LanguageSwitch {
		languages = append(languages, lang)
	}
	sort.Strings(languages)
	for _, lang := range languages {
		if err := check("language_switch."+lang, p.LanguageSwitch[lang]); err != nil {
			return err
		}
	}
	return nil
}

type inputPin interface {
	In(pull gpio.Pull, edge gpio.Edge) error
	Read() gpio.Level
	WaitForEdge(timeout time.Duration) bool
}

type outputPin interface {
	Out(l gpio.Level) error
}

// PeriphPanel is the panel wired to the board's GPIO header via periph.io
type PeriphPanel struct {
	button      inputPin
	leds        map[LED]outputPin
	switches    map[string]inputPin
	lcd         *LCD
	bus         i2c.BusCloser
	debouncer   *Debouncer
	pollTimeout time.Duration
}

// NewPeriphPanel initializes the host drivers and claims the configured pins
func NewPeriphPanel(cfg Config) (*PeriphPanel, error) {
	if err := cfg.Pins.Validate(); err != nil {
		return nil, err
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	pin := func(n int) (gpio.PinIO, error) {
		p := gpioreg.ByName(fmt.Sprintf("GPIO%d", n))
		if p == nil {
			return nil, fmt.Errorf("gpio %d not found", n)
		}
		return p, nil
	}

	button, err := pin(cfg.Pins.Button)
	if err != nil {
		return nil, err
	}

	leds := make(map[LED]outputPin, 4)
	for led, n := range map[LED]int{
		LEDReady:       cfg.Pins.ReadyLED,
		LEDProcessing:  cfg.Pins.ProcessingLED,
		LEDError:       cfg.Pins.ErrorLED,
		LEDButtonLight: cfg.Pins.ButtonLight,
	} {
		p, err := pin(n)
		if err != nil {
			return nil, fmt.Errorf("%s led: %w", led, err)
		}
		leds[led] = p
	}

	switches := make(map[string]inputPin, len(cfg.Pins.LanguageSwitch))
	for lang, n := range cfg.Pins.LanguageSwitch {
		p, err := pin(n)
		if err != nil {
			return nil, fmt.Errorf("language switch %s: %w", lang, err)
		}
		switches[lang] = p
	}

	panel, err := newPeriphPanel(button, leds, switches, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.LCDEnabled {
		bus, err := i2creg.Open(cfg.LCDBus)
		if err != nil {
			return nil, fmt.Errorf("failed to open i2c bus: %w", err)
		}
		lcd, err := NewLCD(&i2c.Dev{Bus: bus, Addr: uint16(cfg.LCDAddress)})
		if err != nil {
			_ = bus.Close()
			return nil, err
		}
		panel.bus = bus
		panel.lcd = lcd
	}

	slog.Info("panel initialized",
		"button_gpio", cfg.Pins.Button,
		"switch_positions", len(switches),
		"lcd", cfg.LCDEnabled)
	return panel, nil
}

func newPeriphPanel(button inputPin, leds map[LED]outputPin, switches map[string]inputPin, cfg Config) (*PeriphPanel, error) {
	if err := button.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return nil, fmt.Errorf("failed to configure button: %w", err)
	}
	for lang, p := range switches {
		if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
			return nil, fmt.Errorf("failed to configure language switch %s: %w", lang, err)
		}
	}
	for led, p := range leds {
		if err := p.Out(gpio.Low); err != nil {
			return nil, fmt.Errorf("failed to configure %s led: %w", led, err)
		}
	}

	debounce := time.Duration(cfg.DebounceMillis) * time.Millisecond
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	pollTimeout := time.Duration(cfg.PollTimeoutMillis) * time.Millisecond
	if pollTimeout <= 0 {
		pollTimeout = 500 * time.Millisecond
	}

	return &PeriphPanel{
		button:      button,
		leds:        leds,
		switches:    switches,
		debouncer:   NewDebouncer(debounce),
		pollTimeout: pollTimeout,
	}, nil
}

func (p *PeriphPanel) Presses(ctx context.Context) <-chan time.Time {
	ch := make(chan time.Time)
	go func() {
		defer close(ch)
		for ctx.Err() == nil {
			// bounded wait so cancellation is noticed
			if !p.button.WaitForEdge(p.pollTimeout) {
				continue
			}
			now := time.Now()
			if p.button.Read() != gpio.Low || !p.debouncer.Accept(now) {
				continue
			}
			select {
			case ch <- now:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func (p *PeriphPanel) SetLED(led LED, on bool) error {
	pin, ok := p.leds[led]
	if !ok {
		return fmt.Errorf("unknown led: %s", led)
	}
	level := gpio.Low
	if on {
		level = gpio.High
	}
	return pin.Out(level)
}

// Language reads the switch; the selected position pulls its pin low
func (p *PeriphPanel) Language() (string, bool) {
	selected := ""
	for lang, pin := range p.switches {
		if pin.Read() == gpio.Low {
			if selected != "" {
				return "", false
			}
			selected = lang
		}
	}
	return selected, selected != ""
}

func (p *PeriphPanel) Display(line1, line2 string) error {
	if p.lcd == nil {
		return nil
	}
	return p.lcd.Show(line1, line2)
}

func (p *PeriphPanel) Available() bool { return true }

func (p *PeriphPanel) Close() error {
	var errs []error
	for _, pin := range p.leds {
		errs = append(errs, pin.Out(gpio.Low))
	}
	if p.bus != nil {
		errs = append(errs, p.bus.Close())
	}
	return errors.Join(errs...)
}

// NewPanel returns the periph panel when enabled and the no-op panel otherwise
func NewPanel(cfg Config) (Panel, error) {
	if !cfg.Enabled {
		return Noop{}, nil
	}
	return NewPeriphPanel(cfg)
}

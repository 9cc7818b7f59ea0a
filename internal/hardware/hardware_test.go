package hardware

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
)

type fakeInput struct {
	mu    sync.Mutex
	level gpio.Level
	pull  gpio.Pull
	edges chan gpio.Level
}

func newFakeInput() *fakeInput {
	return &fakeInput{level: gpio.High, edges: make(chan gpio.Level, 8)}
}

func (f *fakeInput) In(pull gpio.Pull, _ gpio.Edge) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pull = pull
	return nil
}

func (f *fakeInput) Read() gpio.Level {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.level
}

func (f *fakeInput) set(l gpio.Level) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.level = l
}

func (f *fakeInput) WaitForEdge(timeout time.Duration) bool {
	select {
	case l := <-f.edges:
		f.set(l)
		return true
	case <-time.After(timeout):
		return false
	}
}

type fakeOutput struct {
	mu     sync.Mutex
	levels []gpio.Level
}

func (f *fakeOutput) Out(l gpio.Level) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels = append(f.levels, l)
	return nil
}

func (f *fakeOutput) last() gpio.Level {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.levels[len(f.levels)-1]
}

type recordingConn struct {
	writes [][]byte
}

func (r *recordingConn) String() string { return "recording" }

func (r *recordingConn) Tx(w, _ []byte) error {
	r.writes = append(r.writes, append([]byte(nil), w...))
	return nil
}

func (r *recordingConn) Duplex() conn.Duplex { return conn.Half }

func newTestPanel(t *testing.T) (*PeriphPanel, *fakeInput, map[LED]*fakeOutput, map[string]*fakeInput) {
	t.Helper()
	button := newFakeInput()
	outputs := map[LED]*fakeOutput{}
	leds := map[LED]outputPin{}
	for _, led := range AllLEDs() {
		outputs[led] = &fakeOutput{}
		leds[led] = outputs[led]
	}
	inputs := map[string]*fakeInput{"english": newFakeInput(), "tamil": newFakeInput(), "malayalam": newFakeInput()}
	switches := map[string]inputPin{}
	for lang, in := range inputs {
		switches[lang] = in
	}

	panel, err := newPeriphPanel(button, leds, switches, Config{DebounceMillis: 300, PollTimeoutMillis: 10})
	if err != nil {
		t.Fatalf("newPeriphPanel failed: %v", err)
	}
	return panel, button, outputs, inputs
}

func TestDebouncer(t *testing.T) {
	d := NewDebouncer(300 * time.Millisecond)
	base := time.Now()
	if !d.Accept(base) {
		t.Error("first event must be accepted")
	}
	if d.Accept(base.Add(100 * time.Millisecond)) {
		t.Error("event inside the window must be rejected")
	}
	if !d.Accept(base.Add(301 * time.Millisecond)) {
		t.Error("event after the window must be accepted")
	}
}

func TestPins_Validate(t *testing.T) {
	ok := Pins{Button: 17, ButtonLight: 27, ReadyLED: 5, ErrorLED: 6, ProcessingLED: 13,
		LanguageSwitch: map[string]int{"english": 22, "tamil": 23, "malayalam": 24}}
	if err := ok.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	clash := ok
	clash.LanguageSwitch = map[string]int{"english": 27}
	if err := clash.Validate(); err == nil {
		t.Error("expected error for pin assigned twice")
	}
}

func TestPeriphPanel_Setup(t *testing.T) {
	_, button, outputs, inputs := newTestPanel(t)
	if button.pull != gpio.PullUp {
		t.Error("button must be pulled up")
	}
	if inputs["tamil"].pull != gpio.PullUp {
		t.Error("switch pins must be pulled up")
	}
	for led, out := range outputs {
		if out.last() != gpio.Low {
			t.Errorf("%s led must start off", led)
		}
	}
}

func TestPeriphPanel_SetLED(t *testing.T) {
	panel, _, outputs, _ := newTestPanel(t)
	if err := panel.SetLED(LEDError, true); err != nil {
		t.Fatalf("SetLED failed: %v", err)
	}
	if outputs[LEDError].last() != gpio.High {
		t.Error("error led should be on")
	}
	if err := panel.SetLED(LED("blue"), true); err == nil {
		t.Error("expected error for unknown led")
	}
}

func TestPeriphPanel_Language(t *testing.T) {
	panel, _, _, inputs := newTestPanel(t)

	if _, ok := panel.Language(); ok {
		t.Error("no position selected should report false")
	}

	inputs["malayalam"].set(gpio.Low)
	if lang, ok := panel.Language(); !ok || lang != "malayalam" {
		t.Errorf("Language() = %q, %v", lang, ok)
	}

	inputs["tamil"].set(gpio.Low)
	if _, ok := panel.Language(); ok {
		t.Error("two positions at once should report false")
	}
}

func TestPeriphPanel_Presses(t *testing.T) {
	panel, button, _, _ := newTestPanel(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	presses := panel.Presses(ctx)

	button.edges <- gpio.Low
	select {
	case <-presses:
	case <-time.After(time.Second):
		t.Fatal("expected a press")
	}

	// bounce inside the debounce window and a release are both ignored
	button.edges <- gpio.High
	button.edges <- gpio.Low
	select {
	case <-presses:
		t.Fatal("bounce must be filtered")
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	for range presses {
	}
}

func TestSelfTest(t *testing.T) {
	panel, _, outputs, _ := newTestPanel(t)
	SelfTest(context.Background(), panel, time.Millisecond)
	for led, out := range outputs {
		// initial off, on, off
		if len(out.levels) != 3 || out.levels[1] != gpio.High || out.levels[2] != gpio.Low {
			t.Errorf("%s led sequence %v", led, out.levels)
		}
	}
}

func TestLCD(t *testing.T) {
	rec := &recordingConn{}
	lcd, err := newLCD(rec, func(time.Duration) {})
	if err != nil {
		t.Fatalf("newLCD failed: %v", err)
	}
	initWrites := len(rec.writes)
	if initWrites == 0 {
		t.Fatal("expected init sequence")
	}
	for _, w := range rec.writes {
		if w[0]&lcdBacklight == 0 {
			t.Fatal("backlight bit must always be set")
		}
	}

	if err := lcd.Show("X-ray", "fracture 82%"); err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	// 2 line address commands + 32 characters, 2 nibbles each, 2 writes per nibble
	if got := len(rec.writes) - initWrites; got != (2+2*LCDWidth)*4 {
		t.Errorf("expected %d writes, got %d", (2+2*LCDWidth)*4, got)
	}

	// first character 'X' (0x58): high nibble 5 with RS and enable
	first := rec.writes[initWrites+4]
	want := []byte{0x50 | lcdRegisterSelect | lcdBacklight | lcdEnable}
	if !bytes.Equal(first, want) {
		t.Errorf("first data write = %08b, want %08b", first, want)
	}
}

func TestFitLine(t *testing.T) {
	if got := fitLine("abc"); got != "abc             " {
		t.Errorf("fitLine pads to width, got %q", got)
	}
	if got := fitLine("this line is far too long"); len(got) != LCDWidth {
		t.Errorf("fitLine must cut to width, got %q", got)
	}
	if got := fitLine("தமிழ்"); got[0] != '?' {
		t.Errorf("non ASCII must be replaced, got %q", got)
	}
}

func TestNoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	presses := Noop{}.Presses(ctx)
	cancel()
	if _, open := <-presses; open {
		t.Error("channel should close with the context")
	}
	if (Noop{}).Available() {
		t.Error("noop panel is not available hardware")
	}
}

package hardware

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"periph.io/x/conn/v3"
)

// PCF8574 backpack wiring: P0 RS, P1 RW, P2 E, P3 backlight, P4..P7 D4..D7
const (
	lcdRegisterSelect byte = 0x01
	lcdEnable         byte = 0x04
	lcdBacklight      byte = 0x08

	lcdClear       byte = 0x01
	lcdEntryMode   byte = 0x06 // increment, no shift
	lcdDisplayOn   byte = 0x0C // display on, cursor off
	lcdFunctionSet byte = 0x28 // 4-bit, 2 lines, 5x8 font

	lcdLine1 byte = 0x80
	lcdLine2 byte = 0xC0

	LCDWidth = 16
)

// LCD drives an HD44780 16x2 display behind a PCF8574 I2C expander
type LCD struct {
	mu    sync.Mutex
	dev   conn.Conn
	sleep func(time.Duration)
}

// NewLCD initializes the display in 4-bit mode
func NewLCD(dev conn.Conn) (*LCD, error) {
	return newLCD(dev, time.Sleep)
}

func newLCD(dev conn.Conn, sleep func(time.Duration)) (*LCD, error) {
	l := &LCD{dev: dev, sleep: sleep}
	if err := l.init(); err != nil {
		return nil, fmt.Errorf("lcd init: %w", err)
	}
	return l, nil
}

func (l *LCD) init() error {
	l.sleep(50 * time.Millisecond)
	// three times 8-bit mode, then switch to 4-bit
	for _, wait := range []time.Duration{4500 * time.Microsecond, 4500 * time.Microsecond, 150 * time.Microsecond} {
		if err := l.writeNibble(0x03, 0); err != nil {
			return err
		}
		l.sleep(wait)
	}
	if err := l.writeNibble(0x02, 0); err != nil {
		return err
	}
	for _, cmd := range []byte{lcdFunctionSet, lcdDisplayOn, lcdEntryMode} {
		if err := l.command(cmd); err != nil {
			return err
		}
	}
	return l.clear()
}

func (l *LCD) clear() error {
	if err := l.command(lcdClear); err != nil {
		return err
	}
	l.sleep(2 * time.Millisecond)
	return nil
}

// Show writes two lines, each cut or padded to the display width
func (l *LCD) Show(line1, line2 string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, line := range []struct {
		addr byte
		text string
	}{{lcdLine1, line1}, {lcdLine2, line2}} {
		if err := l.command(line.addr); err != nil {
			return err
		}
		for _, c := range []byte(fitLine(line.text)) {
			if err := l.write(c, lcdRegisterSelect); err != nil {
				return err
			}
		}
	}
	return nil
}

// fitLine maps text onto the display's ASCII character set
func fitLine(text string) string {
	var b strings.Builder
	for _, r := range text {
		if b.Len() == LCDWidth {
			break
		}
		if r < 0x20 || r > 0x7E {
			r = '?'
		}
		b.WriteRune(r)
	}
	for b.Len() < LCDWidth {
		b.WriteByte(' ')
	}
	return b.String()
}

func (l *LCD) command(cmd byte) error {
	return l.write(cmd, 0)
}

func (l *LCD) write(value, mode byte) error {
	if err := l.writeNibble(value>>4, mode); err != nil {
		return err
	}
	return l.writeNibble(value&0x0F, mode)
}

func (l *LCD) writeNibble(nibble, mode byte) error {
	data := nibble<<4 | mode | lcdBacklight
	if err := l.dev.Tx([]byte{data | lcdEnable}, nil); err != nil {
		return err
	}
	return l.dev.Tx([]byte{data}, nil)
}

// Package speech reads system messages and analysis results aloud.
package speech

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jo-hoe/medscan/internal/common"
)

// Synthesizer turns text into MP3 audio in the given language
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text, language string) ([]byte, error)
}

// Player plays an audio file and returns when playback has finished
type Player interface {
	Play(ctx context.Context, path string) error
}

// SilentSynthesizer produces no audio. The speaker then only logs what it
// would have said.
type SilentSynthesizer struct{}

func (SilentSynthesizer) Name() string { return "none" }

func (SilentSynthesizer) Synthesize(context.Context, string, string) ([]byte, error) {
	return nil, nil
}

// CommandPlayer plays files through an external program such as mpg123.
// Arguments may contain {file}, {volume_percent} and {scale} placeholders;
// the file is appended when no {file} placeholder is present.
type CommandPlayer struct {
	command string
	args    []string
	volume  float64
	run     common.CommandRunner
}

// DefaultPlayerArgs suits mpg123, whose -f flag scales output from 0 to 32768
var DefaultPlayerArgs = []string{"-q", "-f", "{scale}"}

func NewCommandPlayer(command string, args []string, volume float64, run common.CommandRunner) (*CommandPlayer, error) {
	if command == "" {
		return nil, fmt.Errorf("player command must not be empty")
	}
	if volume < 0 || volume > 1 {
		return nil, fmt.Errorf("audio volume must be between 0 and 1, got %v", volume)
	}
	if args == nil {
		args = DefaultPlayerArgs
	}
	if run == nil {
		run = common.RunCommand
	}
	return &CommandPlayer{command: command, args: args, volume: volume, run: run}, nil
}

func (p *CommandPlayer) Play(ctx context.Context, path string) error {
	_, err := p.run(ctx, p.command, p.expandArgs(path)...)
	return err
}

func (p *CommandPlayer) expandArgs(path string) []string {
	replacer := strings.NewReplacer(
		"{file}", path,
		"{volume_percent}", strconv.Itoa(int(p.volume*100+0.5)),
		"{scale}", strconv.Itoa(int(p.volume*32768+0.5)),
	)
	args := make([]string, 0, len(p.args)+1)
	hasFile := false
	for _, a := range p.args {
		if strings.Contains(a, "{file}") {
			hasFile = true
		}
		args = append(args, replacer.Replace(a))
	}
	if !hasFile {
		args = append(args, path)
	}
	return args
}

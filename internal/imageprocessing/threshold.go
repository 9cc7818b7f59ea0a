package imageprocessing

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/jo-hoe/medscan/internal/common"
)

const ThresholdCommandName = "ThresholdCommand"

// ThresholdCommand binarizes the scan. Pixels with a luminance at or above
// the level become white, everything else black. A level of 0 picks the
// mean luminance of the page, never below 1 so a black page stays black.
type ThresholdCommand struct {
	level int
}

func NewThresholdCommand(params map[string]any) (Command, error) {
	level := common.GetIntParam(params, "level", 0)
	if level < 0 || level > 255 {
		return nil, fmt.Errorf("level must be between 0 and 255, got %d", level)
	}
	return &ThresholdCommand{level: level}, nil
}

func (c *ThresholdCommand) Name() string {
	return ThresholdCommandName
}

func (c *ThresholdCommand) Execute(imageData []byte) ([]byte, error) {
	img, err := decodePNG(imageData)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)

	level := uint8(c.level)
	if c.level == 0 {
		level = max(meanLuminance(gray), 1)
	}

	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()
	parallelFor(h, func(y int) {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+w]
		for x, v := range row {
			if v >= level {
				row[x] = 0xff
			} else {
				row[x] = 0
			}
		}
	})
	return encodePNG(gray)
}

func meanLuminance(gray *image.Gray) uint8 {
	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()
	if w == 0 || h == 0 {
		return 128
	}
	var sum uint64
	for y := range h {
		for _, v := range gray.Pix[y*gray.Stride : y*gray.Stride+w] {
			sum += uint64(v)
		}
	}
	return uint8(sum / uint64(w*h))
}

func init() {
	mustRegister(ThresholdCommandName, NewThresholdCommand)
}

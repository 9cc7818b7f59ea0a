package imageprocessing

import (
	"fmt"
	"image"
	"log/slog"

	"github.com/jo-hoe/medscan/internal/common"
)

const OrientationCommandName = "OrientationCommand"

// OrientationCommand rotates a scan by 90 degrees when it does not match the
// target orientation. Scanner beds deliver landscape images for documents
// placed sideways, which hurts OCR.
type OrientationCommand struct {
	orientation string
	clockwise   bool
}

// NewOrientationCommand creates an orientation command from configuration parameters
func NewOrientationCommand(params map[string]any) (Command, error) {
	orientation := common.GetStringParam(params, "orientation", "portrait")
	if orientation != "portrait" && orientation != "landscape" {
		return nil, fmt.Errorf("invalid orientation: %s (must be 'portrait' or 'landscape')", orientation)
	}
	return &OrientationCommand{
		orientation: orientation,
		clockwise:   common.GetBoolParam(params, "clockwise", true),
	}, nil
}

func (c *OrientationCommand) Name() string {
	return OrientationCommandName
}

func (c *OrientationCommand) Execute(imageData []byte) ([]byte, error) {
	img, err := decodePNG(imageData)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	if b.Dx() == b.Dy() {
		return imageData, nil
	}
	isPortrait := b.Dy() > b.Dx()
	if isPortrait == (c.orientation == "portrait") {
		return imageData, nil
	}

	slog.Debug("OrientationCommand: rotating scan",
		"width", b.Dx(),
		"height", b.Dy(),
		"target", c.orientation,
		"clockwise", c.clockwise)

	return encodePNG(rotate90(img, c.clockwise))
}

func rotate90(img image.Image, clockwise bool) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, h, w))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.At(b.Min.X+x, b.Min.Y+y)
			if clockwise {
				dst.Set(h-1-y, x, c)
			} else {
				dst.Set(y, w-1-x, c)
			}
		}
	}
	return dst
}

func init() {
	mustRegister(OrientationCommandName, NewOrientationCommand)
}

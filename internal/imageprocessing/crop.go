package imageprocessing

import (
	"fmt"
	"image"
	"image/draw"
	"log/slog"

	"github.com/jo-hoe/medscan/internal/common"
)

const MarginCropCommandName = "MarginCropCommand"

// MarginCropCommand trims a fixed border from every edge of the scan. Flatbed
// scans carry a dark band where the lid does not cover the glass, which
// confuses both OCR and the vision models.
type MarginCropCommand struct {
	margin int
}

func NewMarginCropCommand(params map[string]any) (Command, error) {
	if err := common.ValidateRequiredParams(params, []string{"margin"}); err != nil {
		return nil, err
	}
	margin := common.GetIntParam(params, "margin", 0)
	if margin <= 0 {
		return nil, fmt.Errorf("margin must be positive, got %d", margin)
	}
	return &MarginCropCommand{margin: margin}, nil
}

func (c *MarginCropCommand) Name() string {
	return MarginCropCommandName
}

func (c *MarginCropCommand) Execute(imageData []byte) ([]byte, error) {
	img, err := decodePNG(imageData)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	if b.Dx() <= 2*c.margin || b.Dy() <= 2*c.margin {
		slog.Warn("MarginCropCommand: image smaller than margins, skipping",
			"width", b.Dx(), "height", b.Dy(), "margin", c.margin)
		return imageData, nil
	}

	crop := image.Rect(b.Min.X+c.margin, b.Min.Y+c.margin, b.Max.X-c.margin, b.Max.Y-c.margin)
	out := image.NewRGBA(image.Rect(0, 0, crop.Dx(), crop.Dy()))
	draw.Draw(out, out.Bounds(), img, crop.Min, draw.Src)

	slog.Debug("MarginCropCommand: cropped scan",
		"original_width", b.Dx(), "original_height", b.Dy(),
		"width", crop.Dx(), "height", crop.Dy())
	return encodePNG(out)
}

func init() {
	mustRegister(MarginCropCommandName, NewMarginCropCommand)
}

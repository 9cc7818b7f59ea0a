package imageprocessing

import (
	"fmt"
	"image"
	"log/slog"

	xdraw "golang.org/x/image/draw"

	"github.com/jo-hoe/medscan/internal/common"
)

const ScaleCommandName = "ScaleCommand"

// ScaleCommand shrinks a scan so its longest edge fits maxEdge pixels.
// A 300 DPI legal page is roughly 2550x4200, far more than a vision model accepts.
// Images already inside the bound are passed through untouched; nothing is upscaled.
type ScaleCommand struct {
	maxEdge int
}

// NewScaleCommand creates a scale command from configuration parameters
func NewScaleCommand(params map[string]any) (Command, error) {
	if err := common.ValidateRequiredParams(params, []string{"maxEdge"}); err != nil {
		return nil, err
	}
	maxEdge := common.GetIntParam(params, "maxEdge", 0)
	if maxEdge <= 0 {
		return nil, fmt.Errorf("maxEdge must be positive, got %d", maxEdge)
	}
	return &ScaleCommand{maxEdge: maxEdge}, nil
}

func (c *ScaleCommand) Name() string {
	return ScaleCommandName
}

func (c *ScaleCommand) Execute(imageData []byte) ([]byte, error) {
	img, err := decodePNG(imageData)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	w, h := scaledSize(b.Dx(), b.Dy(), c.maxEdge)
	if w == b.Dx() && h == b.Dy() {
		return imageData, nil
	}

	slog.Debug("ScaleCommand: downscaling scan",
		"original_width", b.Dx(),
		"original_height", b.Dy(),
		"scaled_width", w,
		"scaled_height", h)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return encodePNG(dst)
}

// scaledSize preserves aspect ratio and never returns a zero dimension
func scaledSize(w, h, maxEdge int) (int, int) {
	longest := w
	if h > longest {
		longest = h
	}
	if longest <= maxEdge {
		return w, h
	}
	ratio := float64(maxEdge) / float64(longest)
	sw := int(float64(w)*ratio + 0.5)
	sh := int(float64(h)*ratio + 0.5)
	if sw < 1 {
		sw = 1
	}
	if sh < 1 {
		sh = 1
	}
	return sw, sh
}

func init() {
	mustRegister(ScaleCommandName, NewScaleCommand)
}

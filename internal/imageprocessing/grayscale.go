package imageprocessing

import (
	"image"
	"image/draw"
)

const GrayscaleCommandName = "GrayscaleCommand"

// GrayscaleCommand converts the scan to 8-bit gray, which Tesseract handles
// better than color scans of printed reports.
type GrayscaleCommand struct{}

func NewGrayscaleCommand(map[string]any) (Command, error) {
	return &GrayscaleCommand{}, nil
}

func (c *GrayscaleCommand) Name() string {
	return GrayscaleCommandName
}

func (c *GrayscaleCommand) Execute(imageData []byte) ([]byte, error) {
	img, err := decodePNG(imageData)
	if err != nil {
		return nil, err
	}
	if _, ok := img.(*image.Gray); ok {
		return imageData, nil
	}
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return encodePNG(gray)
}

func init() {
	mustRegister(GrayscaleCommandName, NewGrayscaleCommand)
}

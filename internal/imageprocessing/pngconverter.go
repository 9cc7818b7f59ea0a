package imageprocessing

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log/slog"
	"regexp"
	"strconv"

	_ "image/gif"
	_ "image/jpeg"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/jo-hoe/medscan/internal/common"
)

const PngConverterCommandName = "PngConverterCommand"

var pngSignature = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

// IsPNG reports whether data starts with the PNG signature
func IsPNG(data []byte) bool {
	return len(data) >= len(pngSignature) && bytes.Equal(data[:len(pngSignature)], pngSignature)
}

// ImageExtension names the file extension of an encoded image, or returns ""
// when the format is not recognized
func ImageExtension(data []byte) string {
	if IsPNG(data) {
		return "png"
	}
	if _, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		switch format {
		case "jpeg":
			return "jpg"
		case "tiff":
			return "tif"
		default:
			return format
		}
	}
	if isSVG(data) {
		return "svg"
	}
	return ""
}

// PngConverterCommand normalizes uploads and scanner output (JPEG, TIFF, BMP,
// WebP, GIF, SVG) to PNG, the only format the rest of the pipeline handles.
type PngConverterCommand struct {
	svgWidth  int
	svgHeight int
}

// NewPngConverterCommand creates a PNG converter; svgWidth/svgHeight size SVGs that carry no explicit dimensions
func NewPngConverterCommand(params map[string]any) (Command, error) {
	w := common.GetIntParam(params, "svgWidth", 2480)
	h := common.GetIntParam(params, "svgHeight", 3508)
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("svg fallback size must be positive, got %dx%d", w, h)
	}
	return &PngConverterCommand{svgWidth: w, svgHeight: h}, nil
}

func (c *PngConverterCommand) Name() string {
	return PngConverterCommandName
}

func (c *PngConverterCommand) Execute(imageData []byte) ([]byte, error) {
	if IsPNG(imageData) {
		return imageData, nil
	}

	if isSVG(imageData) {
		w, h, ok := svgExplicitSize(imageData)
		if !ok {
			w, h = c.svgWidth, c.svgHeight
		}
		slog.Debug("PngConverterCommand: rendering SVG", "width", w, "height", h)
		return renderSVG(imageData, w, h)
	}

	img, format, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	slog.Debug("PngConverterCommand: converting raster image",
		"source_format", format,
		"width", img.Bounds().Dx(),
		"height", img.Bounds().Dy())

	return encodePNG(img)
}

func isSVG(data []byte) bool {
	n := len(data)
	if n > 4096 {
		n = 4096
	}
	head := bytes.ToLower(data[:n])
	return bytes.Contains(head, []byte("<svg"))
}

var (
	svgTagPattern  = regexp.MustCompile(`(?is)<svg\b[^>]*>`)
	svgSizePattern = regexp.MustCompile(`(?i)\b(width|height)\s*=\s*["']\s*([0-9]+(?:\.[0-9]+)?)\s*(px)?\s*["']`)
)

// svgExplicitSize reads pixel width/height attributes from the root element.
// Percentages and physical units are ignored so the fallback size applies.
func svgExplicitSize(data []byte) (int, int, bool) {
	tag := svgTagPattern.Find(data)
	if tag == nil {
		return 0, 0, false
	}
	var w, h int
	for _, m := range svgSizePattern.FindAllSubmatch(tag, -1) {
		v, err := strconv.ParseFloat(string(m[2]), 64)
		if err != nil || v <= 0 {
			continue
		}
		switch string(bytes.ToLower(m[1])) {
		case "width":
			w = int(v)
		case "height":
			h = int(v)
		}
	}
	return w, h, w > 0 && h > 0
}

func renderSVG(data []byte, w, h int) ([]byte, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SVG: %w", err)
	}
	icon.SetTarget(0, 0, float64(w), float64(h))

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(w, h, dst, dst.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1.0)

	return encodePNG(dst)
}

func decodePNG(data []byte) (image.Image, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode PNG image: %w", err)
	}
	return img, nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	b := img.Bounds()
	buf.Grow(b.Dx() * b.Dy())
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode PNG image: %w", err)
	}
	return buf.Bytes(), nil
}

func init() {
	mustRegister(PngConverterCommandName, NewPngConverterCommand)
}

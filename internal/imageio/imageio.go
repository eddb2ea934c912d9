// Package imageio converts image files to and from single-channel float
// planes.
package imageio

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp" // register WebP decoder
)

// I/O errors.
var (
	// ErrUnsupportedFormat is returned when the file extension has no encoder.
	ErrUnsupportedFormat = errors.New("imageio: unsupported format")

	// ErrInvalidPlane is returned when a plane's pixels do not match its size.
	ErrInvalidPlane = errors.New("imageio: invalid plane")
)

// JPEGQuality is the quality used when saving JPEG files.
const JPEGQuality = 92

// Plane is a row-major luma image with values in [0, 255].
type Plane struct {
	Width  int
	Height int
	Pix    []float32
}

// NewPlane allocates a zero plane.
func NewPlane(width, height int) *Plane {
	return &Plane{Width: width, Height: height, Pix: make([]float32, width*height)}
}

// At returns the value at (x, y).
func (p *Plane) At(x, y int) float32 { return p.Pix[y*p.Width+x] }

// Set sets the value at (x, y).
func (p *Plane) Set(x, y int, v float32) { p.Pix[y*p.Width+x] = v }

// Load decodes the image at path into a luma plane. PNG, JPEG, GIF, BMP,
// TIFF and WebP are recognized from the content.
func Load(path string) (*Plane, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("imageio: open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Decode(f)
}

// Decode decodes an image from r into a luma plane.
func Decode(r io.Reader) (*Plane, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("imageio: decode: %w", err)
	}
	return FromImage(img), nil
}

// FromImage converts img to a luma plane.
func FromImage(img image.Image) *Plane {
	b := img.Bounds()
	gray, ok := img.(*image.Gray)
	if !ok {
		gray = image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	}

	p := NewPlane(b.Dx(), b.Dy())
	for y := range p.Height {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+p.Width]
		for x, v := range row {
			p.Pix[y*p.Width+x] = float32(v)
		}
	}
	return p
}

// ToImage converts the plane to an 8-bit gray image, rounding and
// clamping each value to [0, 255].
func (p *Plane) ToImage() (*image.Gray, error) {
	if p.Width <= 0 || p.Height <= 0 || len(p.Pix) != p.Width*p.Height {
		return nil, fmt.Errorf("%w: %dx%d with %d pixels", ErrInvalidPlane, p.Width, p.Height, len(p.Pix))
	}
	img := image.NewGray(image.Rect(0, 0, p.Width, p.Height))
	for y := range p.Height {
		row := img.Pix[y*img.Stride : y*img.Stride+p.Width]
		for x := range row {
			row[x] = toByte(p.Pix[y*p.Width+x])
		}
	}
	return img, nil
}

// Save encodes the plane to path. The format follows the extension: .png,
// .jpg/.jpeg, .gif, .bmp or .tif/.tiff.
func (p *Plane) Save(path string) error {
	format, err := formatOf(path)
	if err != nil {
		return err
	}
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("imageio: create file: %w", err)
	}
	if err := p.Encode(f, format); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Encode writes the plane in the named format ("png", "jpeg", "gif",
// "bmp" or "tiff").
func (p *Plane) Encode(w io.Writer, format string) error {
	img, err := p.ToImage()
	if err != nil {
		return err
	}
	switch format {
	case "png":
		err = png.Encode(w, img)
	case "jpeg":
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: JPEGQuality})
	case "gif":
		err = gif.Encode(w, paletted(img), nil)
	case "bmp":
		err = bmp.Encode(w, img)
	case "tiff":
		err = tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return fmt.Errorf("imageio: encode %s: %w", format, err)
	}
	return nil
}

// paletted maps a gray image onto a 256-level gray palette so GIF output
// is lossless.
func paletted(img *image.Gray) *image.Paletted {
	pal := make(color.Palette, 256)
	for i := range pal {
		pal[i] = color.Gray{Y: uint8(i)}
	}
	out := image.NewPaletted(img.Bounds(), pal)
	copy(out.Pix, img.Pix)
	return out
}

// CanEncode reports whether Save supports the extension of path.
func CanEncode(path string) bool {
	_, err := formatOf(path)
	return err == nil
}

func formatOf(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "png", nil
	case ".jpg", ".jpeg":
		return "jpeg", nil
	case ".gif":
		return "gif", nil
	case ".bmp":
		return "bmp", nil
	case ".tif", ".tiff":
		return "tiff", nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

func toByte(v float32) uint8 {
	if v != v { // NaN
		return 0
	}
	return uint8(math.Round(float64(min(max(v, 0), 255))))
}

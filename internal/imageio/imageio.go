// Package imageio reads and writes the image formats accepted by the aligner.
package imageio

import (
	"bufio"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/HugoSmits86/nativewebp"
	"github.com/ftrvxmtrx/tga"
	"golang.org/x/image/bmp"
	"golang.org/x/image/webp"
)

// Output formats.
const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
	FormatWebP = "webp"
)

// inputExtensions lists the file extensions picked up by ListImages.
var inputExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp", ".tga"}

// decoder is an input format recognized by its leading bytes.
type decoder struct {
	name   string
	magic  string // '?' matches any byte
	decode func(io.Reader) (image.Image, error)
}

// TGA has no magic number and registers itself with image.RegisterFormat as
// matching every input, shadowing the other formats in image.Decode. Formats
// are sniffed here instead and anything unrecognized is read as TGA.
var decoders = []decoder{
	{"png", "\x89PNG\r\n\x1a\n", png.Decode},
	{"jpeg", "\xff\xd8", jpeg.Decode},
	{"gif", "GIF8", gif.Decode},
	{"bmp", "BM", bmp.Decode},
	{"webp", "RIFF????WEBP", webp.Decode},
}

func (d decoder) match(head []byte) bool {
	if len(head) < len(d.magic) {
		return false
	}
	for i := range len(d.magic) {
		if d.magic[i] != '?' && d.magic[i] != head[i] {
			return false
		}
	}
	return true
}

// Decode reads a jpeg, png, gif, bmp, webp or tga image.
func Decode(r io.Reader) (image.Image, string, error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(12)

	format, decode := "tga", tga.Decode
	for _, d := range decoders {
		if d.match(head) {
			format, decode = d.name, d.decode
			break
		}
	}

	img, err := decode(br)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode %s image: %w", format, err)
	}
	return img, format, nil
}

// Load decodes the image file at path.
func Load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()

	img, _, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return img, nil
}

// Encode writes img in the given format. Quality only applies to JPEG.
func Encode(w io.Writer, img image.Image, format string, quality int) error {
	switch format {
	case FormatJPEG, "jpg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
	case FormatPNG:
		return png.Encode(w, img)
	case FormatWebP:
		return nativewebp.Encode(w, img, nil)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// Save writes img to path, creating parent directories.
func Save(path string, img image.Image, format string, quality int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	if err := Encode(w, img, format, quality); err != nil {
		f.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// Ext returns the file extension for an output format.
func Ext(format string) string {
	switch format {
	case FormatPNG:
		return ".png"
	case FormatWebP:
		return ".webp"
	}
	return ".jpg"
}

// IsImage reports whether name has a supported image extension.
func IsImage(name string) bool {
	return slices.Contains(inputExtensions, strings.ToLower(filepath.Ext(name)))
}

// ListImages returns the image files directly inside dir, sorted by name.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !IsImage(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	slices.Sort(paths)
	return paths, nil
}

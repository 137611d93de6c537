// Package imageprep decodes staged answer-sheet images and shrinks them before
// they are sent to the extraction service.
package imageprep

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/joseph-ayodele/exam-grader/constants"
	"github.com/joseph-ayodele/exam-grader/internal/extract"
)

const jpegQuality = 90

// Prepare reads the image at path and returns it ready for extraction.
// The file name reported in the result is name, not the temp path.
func Prepare(path, name string, maxDim int) (extract.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return extract.Image{}, fmt.Errorf("read image: %w", err)
	}
	return PrepareBytes(name, data, maxDim)
}

// PrepareBytes decodes data, applies EXIF orientation and fits it within
// maxDim x maxDim. A non-positive maxDim disables resizing.
// PNG and GIF sources that need no resize are passed through untouched.
func PrepareBytes(name string, data []byte, maxDim int) (extract.Image, error) {
	ext := constants.NormalizeExt(filepath.Ext(name))
	if !constants.IsAllowedExt(ext) {
		return extract.Image{}, fmt.Errorf("%s: unsupported extension %q", name, ext)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return extract.Image{}, fmt.Errorf("decode image: %w", err)
	}

	b := img.Bounds()
	resize := maxDim > 0 && (b.Dx() > maxDim || b.Dy() > maxDim)
	isJPEG := ext == "jpg" || ext == "jpeg"

	if !resize && !isJPEG {
		return extract.Image{Name: name, MIMEType: constants.MIMEForExt(ext), Data: data}, nil
	}
	if resize {
		img = imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	}

	var (
		buf  bytes.Buffer
		mime string
	)
	if isJPEG {
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality))
		mime = "image/jpeg"
	} else {
		// GIF frames are flattened to PNG so no palette quantization is applied.
		err = imaging.Encode(&buf, img, imaging.PNG)
		mime = "image/png"
	}
	if err != nil {
		return extract.Image{}, fmt.Errorf("encode image: %w", err)
	}
	return extract.Image{Name: name, MIMEType: mime, Data: buf.Bytes()}, nil
}

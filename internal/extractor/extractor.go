// Package extractor turns a prescription image into a candidate
// record via a vision-capable language model. It is a thin boundary:
// prompt assembly, image encoding, and response cleanup. The merge
// engine treats its output as an opaque candidate record.
package extractor

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/rxlens/rxlens-api/internal/model"
)

var ErrNoImage = errors.New("either image data or image URL is required")

// Image is the input to one extraction: raw bytes of a photographed
// prescription, or a URL the model can fetch itself.
type Image struct {
	Data []byte
	URL  string
}

// ContentURL returns the value placed in the image part of the model
// request: the remote URL as-is, or the bytes as a base64 data URL.
func (img Image) ContentURL() (string, error) {
	if len(img.Data) > 0 {
		return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(img.Data), nil
	}
	if img.URL != "" {
		return img.URL, nil
	}
	return "", ErrNoImage
}

// Extractor produces a candidate record from one image. The optional
// contextRecord is the accumulated record so far; when it carries real
// data the prompt embeds it so the model can extract with context.
// Implementations must return records that satisfy the sentinel
// invariants (model.PrescriptionRecord.Normalize handles this).
type Extractor interface {
	Extract(ctx context.Context, img Image, contextRecord *model.PrescriptionRecord) (model.PrescriptionRecord, error)
}

// Validate reports whether the image input is usable before any model
// call is attempted.
func (img Image) Validate() error {
	if len(img.Data) == 0 && img.URL == "" {
		return ErrNoImage
	}
	return nil
}

func wrapModelErr(err error) error {
	return fmt.Errorf("extraction model call failed: %w", err)
}

package scale

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"math"

	"filedepot/files"
	"filedepot/storage"

	"golang.org/x/image/draw"
)

// ErrNotImage is returned when the source file is not a decodable image.
var ErrNotImage = errors.New("source file is not an image")

// ErrWidthExceedsSource is returned when the target width is larger than the
// source image's native width. Upscaling is not supported.
var ErrWidthExceedsSource = errors.New("target width exceeds source image width")

// Scaler produces proportionally downscaled copies of stored images. The
// source file is never mutated; the scaled image is saved through the router
// as a brand-new file under the same tenant.
type Scaler struct {
	log    *slog.Logger
	router *storage.Router
	fs     *storage.Filesystem
}

func New(log *slog.Logger, router *storage.Router, fs *storage.Filesystem) *Scaler {
	return &Scaler{
		log:    log,
		router: router,
		fs:     fs,
	}
}

// Scale reads src, resizes it to targetWidth preserving aspect ratio, and
// stores the result as a new unsaved file record. Validation failures
// (non-image source, oversized target width) are returned as errors. A nil
// file with a nil error means the content could not be read or stored after
// every fallback; nothing was created.
//
// All intermediate buffers are in memory. Target height is
// round(targetWidth * srcHeight / srcWidth), so scaling the same source to
// the same width always yields identical dimensions.
func (s *Scaler) Scale(ctx context.Context, src *files.File, targetWidth int) (*files.File, error) {
	if src == nil || !src.IsImage() {
		return nil, ErrNotImage
	}
	if targetWidth < 1 {
		return nil, fmt.Errorf("%w: target width %d is not positive", ErrWidthExceedsSource, targetWidth)
	}

	data, ok, err := s.read(ctx, src)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotImage, err)
	}

	bounds := img.Bounds()
	srcWidth, srcHeight := bounds.Dx(), bounds.Dy()
	if targetWidth > srcWidth {
		return nil, fmt.Errorf("%w: %d > %d", ErrWidthExceedsSource, targetWidth, srcWidth)
	}

	targetHeight := Height(srcWidth, srcHeight, targetWidth)
	dst := image.NewRGBA(image.Rect(0, 0, targetWidth, targetHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)

	var buf bytes.Buffer
	if err := encode(&buf, dst, format); err != nil {
		return nil, err
	}

	name := files.ScaledFilename(src.Filename, targetWidth)
	out, err := s.router.Save(ctx, src.TenantID, files.NewToken(), name, int64(buf.Len()), &buf)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, nil
	}
	s.log.Info("scaled image", slog.String("source", src.ID), slog.String("filename", name), slog.Int("width", targetWidth), slog.Int("height", targetHeight))
	return out, nil
}

// Height computes the proportional target height for a resize.
func Height(srcWidth, srcHeight, targetWidth int) int {
	return int(math.Round(float64(targetWidth) * float64(srcHeight) / float64(srcWidth)))
}

func (s *Scaler) read(ctx context.Context, src *files.File) (data []byte, ok bool, err error) {
	switch ref := src.Ref.(type) {
	case files.FilesystemRef:
		return s.fs.Read(ctx, ref.Path)
	case files.DatabaseRef:
		r, _, err := ref.Handle.Open(ctx)
		if err != nil {
			s.log.Error("failed to open large object for scaling", slog.String("file", src.ID), slog.Any("error", err))
			return nil, false, nil
		}
		defer r.Close()
		data, err = io.ReadAll(r)
		if err != nil {
			s.log.Error("failed to read large object for scaling", slog.String("file", src.ID), slog.Any("error", err))
			return nil, false, nil
		}
		return data, true, nil
	}
	return nil, false, fmt.Errorf("file %s has no readable storage reference", src.ID)
}

func encode(w io.Writer, img image.Image, format string) error {
	switch format {
	case "jpeg":
		return jpeg.Encode(w, img, nil)
	case "png":
		return png.Encode(w, img)
	case "gif":
		return gif.Encode(w, img, nil)
	}
	return fmt.Errorf("%w: unsupported image format %q", ErrNotImage, format)
}

package encoder

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/skyalgo/pkg/model"
	"golang.org/x/sync/errgroup"
)

// Source is one uploaded chart
type Source struct {
	Name         string
	DeclaredType string
	Open         func() (io.ReadCloser, error)
}

// FileSource reads a chart from the local filesystem; the declared type comes from the
// file extension.
func FileSource(path string) Source {
	return Source{
		Name:         path,
		DeclaredType: mime.TypeByExtension(filepath.Ext(path)),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}
}

// Encode reads a blob and returns its base64 payload and MIME type. The result goes
// through the same data URL parsing as browser uploads, so an empty or unparsable blob is
// rejected with model.ErrEncoding instead of producing partial data.
func Encode(r io.Reader, declaredType string) (*model.EncodedImage, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, goerr.Wrap(model.ErrEncoding, "failed to read image",
			goerr.V("error", err.Error()))
	}

	return ParseDataURL(toDataURL(data, declaredType))
}

// EncodeFile encodes a chart stored on disk
func EncodeFile(path string) (*model.EncodedImage, error) {
	return encodeSource(FileSource(path))
}

func encodeSource(src Source) (*model.EncodedImage, error) {
	rc, err := src.Open()
	if err != nil {
		return nil, goerr.Wrap(model.ErrEncoding, "failed to open image",
			goerr.V("name", src.Name),
			goerr.V("error", err.Error()))
	}
	defer rc.Close()

	img, err := Encode(rc, src.DeclaredType)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode image", goerr.V("name", src.Name))
	}
	return img, nil
}

// EncodeAll encodes sources concurrently and returns them in input order
func EncodeAll(ctx context.Context, sources []Source) ([]*model.EncodedImage, error) {
	images := make([]*model.EncodedImage, len(sources))

	eg, ctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := encodeSource(src)
			if err != nil {
				return err
			}
			images[i] = img
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return images, nil
}

func toDataURL(data []byte, declaredType string) string {
	if len(data) == 0 {
		return "data:,"
	}

	mimeType := mediaType(declaredType)
	if mimeType == "" {
		mimeType = mediaType(http.DetectContentType(data))
	}

	var buf bytes.Buffer
	buf.WriteString("data:")
	buf.WriteString(mimeType)
	buf.WriteString(";base64,")
	buf.WriteString(base64.StdEncoding.EncodeToString(data))
	return buf.String()
}

func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return mt
}

// ParseDataURL splits a base64 data URL into payload and MIME type
func ParseDataURL(dataURL string) (*model.EncodedImage, error) {
	header, payload, ok := strings.Cut(dataURL, ",")
	if !ok || !strings.HasPrefix(header, "data:") {
		return nil, goerr.Wrap(model.ErrEncoding, "not a data URL")
	}

	meta := strings.TrimPrefix(header, "data:")
	mimeType, _, _ := strings.Cut(meta, ";")
	if mimeType == "" {
		return nil, goerr.Wrap(model.ErrEncoding, "data URL has no MIME type")
	}
	if !strings.HasSuffix(meta, ";base64") {
		return nil, goerr.Wrap(model.ErrEncoding, "data URL is not base64 encoded",
			goerr.V("mime_type", mimeType))
	}
	if payload == "" {
		return nil, goerr.Wrap(model.ErrEncoding, "data URL has no payload",
			goerr.V("mime_type", mimeType))
	}
	if _, err := base64.StdEncoding.DecodeString(payload); err != nil {
		return nil, goerr.Wrap(model.ErrEncoding, "data URL payload is not valid base64",
			goerr.V("mime_type", mimeType))
	}

	return &model.EncodedImage{
		Base64:   payload,
		MIMEType: mimeType,
	}, nil
}

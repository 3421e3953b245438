package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/d60-Lab/beunreal/internal/model"
)

// UploadMedia multipart 上传，字段 file + type
func (c *Client) UploadMedia(ctx context.Context, filename string, r io.Reader, mediaType model.MediaType) (model.Media, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return model.Media{}, err
	}
	if _, err := io.Copy(fw, r); err != nil {
		return model.Media{}, fmt.Errorf("read media: %w", err)
	}
	if err := mw.WriteField("type", string(mediaType)); err != nil {
		return model.Media{}, err
	}
	if err := mw.Close(); err != nil {
		return model.Media{}, err
	}

	var out wireMedia
	err = c.do(ctx, request{
		method: http.MethodPost, path: "/api/media/upload",
		raw: &buf, ctype: mw.FormDataContentType(),
		response: &out,
	})
	if err != nil {
		return model.Media{}, err
	}
	return decodeMedia(out), nil
}

func (c *Client) GetMedia(ctx context.Context, id string) (model.Media, error) {
	var out wireMedia
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/media/" + url.PathEscape(id), response: &out}); err != nil {
		return model.Media{}, err
	}
	return decodeMedia(out), nil
}

func (c *Client) DeleteMedia(ctx context.Context, id string) error {
	return c.do(ctx, request{method: http.MethodDelete, path: "/api/media/" + url.PathEscape(id)})
}

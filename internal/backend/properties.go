package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
)

type PropertyDirectory struct {
	client *Client
}

func (d *PropertyDirectory) List(ctx context.Context) ([]PropertyDTO, error) {
	return d.list(ctx, "/properties", nil)
}

func (d *PropertyDirectory) Get(ctx context.Context, id int64) (*PropertyDTO, error) {
	var p PropertyDTO
	if err := d.client.doJSON(ctx, http.MethodGet, fmt.Sprintf("/properties/%d", id), nil, nil, &p); err != nil {
		return nil, fmt.Errorf("failed to get property %d: %w", id, err)
	}
	return &p, nil
}

func (d *PropertyDirectory) Create(ctx context.Context, p PropertyDTO) (*PropertyDTO, error) {
	var created PropertyDTO
	if err := d.client.doJSON(ctx, http.MethodPost, "/properties", nil, p, &created); err != nil {
		return nil, fmt.Errorf("failed to create property: %w", err)
	}
	return &created, nil
}

func (d *PropertyDirectory) Update(ctx context.Context, id int64, p PropertyDTO) (*PropertyDTO, error) {
	var updated PropertyDTO
	if err := d.client.doJSON(ctx, http.MethodPut, fmt.Sprintf("/properties/%d", id), nil, p, &updated); err != nil {
		return nil, fmt.Errorf("failed to update property %d: %w", id, err)
	}
	return &updated, nil
}

func (d *PropertyDirectory) Delete(ctx context.Context, id int64) error {
	if err := d.client.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/properties/%d", id), nil, nil, nil); err != nil {
		return fmt.Errorf("failed to delete property %d: %w", id, err)
	}
	return nil
}

func (d *PropertyDirectory) ByType(ctx context.Context, propertyType string) ([]PropertyDTO, error) {
	return d.list(ctx, "/properties/type/"+url.PathEscape(propertyType), nil)
}

func (d *PropertyDirectory) Search(ctx context.Context, keyword string) ([]PropertyDTO, error) {
	return d.list(ctx, "/properties/search", url.Values{"keyword": {keyword}})
}

func (d *PropertyDirectory) ByMaxPrice(ctx context.Context, maxPrice float64) ([]PropertyDTO, error) {
	return d.list(ctx, "/properties/price", url.Values{"maxPrice": {strconv.FormatFloat(maxPrice, 'f', -1, 64)}})
}

func (d *PropertyDirectory) ByAgent(ctx context.Context, agentID int64) ([]PropertyDTO, error) {
	return d.list(ctx, fmt.Sprintf("/properties/agent/%d", agentID), nil)
}

func (d *PropertyDirectory) list(ctx context.Context, path string, query url.Values) ([]PropertyDTO, error) {
	var props []PropertyDTO
	if err := d.client.doJSON(ctx, http.MethodGet, path, query, nil, &props); err != nil {
		return nil, fmt.Errorf("failed to list properties: %w", err)
	}
	if props == nil {
		props = []PropertyDTO{}
	}
	return props, nil
}

// ImageUpload is one file sent to POST /properties/{id}/images.
type ImageUpload struct {
	FileName     string
	MimeType     string
	Body         io.Reader
	Description  string
	DisplayOrder int
}

func (d *PropertyDirectory) UploadImage(ctx context.Context, propertyID int64, up ImageUpload) (*ImageDTO, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fileContentDisposition("file", up.FileName))
	if up.MimeType != "" {
		h.Set("Content-Type", up.MimeType)
	} else {
		h.Set("Content-Type", "application/octet-stream")
	}
	fw, err := w.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := io.Copy(fw, up.Body); err != nil {
		return nil, fmt.Errorf("failed to read upload %s: %w", up.FileName, err)
	}
	if up.Description != "" {
		if err := w.WriteField("description", up.Description); err != nil {
			return nil, fmt.Errorf("failed to write description: %w", err)
		}
	}
	if err := w.WriteField("displayOrder", strconv.Itoa(up.DisplayOrder)); err != nil {
		return nil, fmt.Errorf("failed to write display order: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart body: %w", err)
	}

	path := fmt.Sprintf("/properties/%d/images", propertyID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.client.endpoint(path, nil), &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	var img ImageDTO
	if err := d.client.do(req, path, &img); err != nil {
		return nil, fmt.Errorf("failed to upload image %s: %w", up.FileName, err)
	}
	return &img, nil
}

func (d *PropertyDirectory) ListImages(ctx context.Context, propertyID int64) ([]ImageDTO, error) {
	var images []ImageDTO
	if err := d.client.doJSON(ctx, http.MethodGet, fmt.Sprintf("/properties/%d/images", propertyID), nil, nil, &images); err != nil {
		return nil, fmt.Errorf("failed to list images for property %d: %w", propertyID, err)
	}
	if images == nil {
		images = []ImageDTO{}
	}
	return images, nil
}

// UpdateImage changes an image's description and display order. The backend
// takes both as query/form parameters rather than a JSON body.
func (d *PropertyDirectory) UpdateImage(ctx context.Context, imageID int64, description string, displayOrder int) (*ImageDTO, error) {
	query := url.Values{
		"description":  {description},
		"displayOrder": {strconv.Itoa(displayOrder)},
	}
	var img ImageDTO
	if err := d.client.doJSON(ctx, http.MethodPut, fmt.Sprintf("/properties/images/%d", imageID), query, nil, &img); err != nil {
		return nil, fmt.Errorf("failed to update image %d: %w", imageID, err)
	}
	return &img, nil
}

func (d *PropertyDirectory) DeleteImage(ctx context.Context, imageID int64) error {
	if err := d.client.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/properties/images/%d", imageID), nil, nil, nil); err != nil {
		return fmt.Errorf("failed to delete image %d: %w", imageID, err)
	}
	return nil
}

// fileContentDisposition mirrors multipart.FileContentDisposition (Go 1.25+)
// for older toolchains.
func fileContentDisposition(fieldname, filename string) string {
	return fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(fieldname), quoteEscaper.Replace(filename))
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gabriel-vasile/mimetype"

	"github.com/vbonduro/proplist/internal/domain"
	"github.com/vbonduro/proplist/internal/mapper"
	"github.com/vbonduro/proplist/internal/preview"
	"github.com/vbonduro/proplist/internal/staging"
)

var ErrImageIndex = errors.New("image index out of range")

// TooManyImagesError is returned when a draft already holds the maximum number
// of images.
type TooManyImagesError struct {
	Max int
}

func (e *TooManyImagesError) Error() string {
	return fmt.Sprintf("Maximum %d images allowed", e.Max)
}

// SelectedFile is a file the user picked for upload.
type SelectedFile struct {
	Name string
	Data []byte
}

// DraftImage is one entry of a draft's preview strip: either an image already
// stored by the backend or a newly selected file waiting to be uploaded.
type DraftImage struct {
	Preview string `json:"preview"`

	// Set for existing backend images.
	ImageURL string `json:"imageUrl,omitempty"`

	// Set for newly selected files.
	FileName   string `json:"fileName,omitempty"`
	MimeType   string `json:"mimeType,omitempty"`
	StagingKey string `json:"-"`
}

func (i DraftImage) IsNew() bool {
	return i.StagingKey != ""
}

// Draft is the state of the add/edit form. A Draft is owned by a single
// caller and is not safe for concurrent use.
type Draft struct {
	Property domain.Property `json:"property"`
	Images   []DraftImage    `json:"images"`
	Errors   []string        `json:"errors"`
}

// Selected returns the newly selected files in selection order.
func (d *Draft) Selected() []DraftImage {
	var out []DraftImage
	for _, img := range d.Images {
		if img.IsNew() {
			out = append(out, img)
		}
	}
	return out
}

// imageDeleter is the subset of backend.PropertyDirectory the draft requires.
type imageDeleter interface {
	DeleteImage(ctx context.Context, imageID int64) error
}

type DraftService struct {
	staging   staging.Store
	images    imageDeleter
	maxImages int
	logger    *slog.Logger
}

func NewDraftService(stg staging.Store, images imageDeleter, maxImages int, logger *slog.Logger) *DraftService {
	return &DraftService{staging: stg, images: images, maxImages: maxImages, logger: logger}
}

// NewDraft starts a form for p. p's current images become the initial
// previews; placeholders are dropped so they take no image slot. A nil p
// starts an empty form.
func (s *DraftService) NewDraft(p *domain.Property) *Draft {
	d := &Draft{Errors: []string{}}
	if p == nil {
		return d
	}
	d.Property = *p.Clone()
	urls := d.Property.ImageURLs[:0]
	for _, u := range d.Property.ImageURLs {
		if mapper.IsPlaceholder(u) {
			continue
		}
		urls = append(urls, u)
		d.Images = append(d.Images, DraftImage{Preview: u, ImageURL: u})
	}
	d.Property.ImageURLs = urls
	return d
}

// AddFiles stages as many of files as there are free slots and generates a
// preview for each. A file whose preview fails stays selected and the failure
// is recorded in d.Errors.
func (s *DraftService) AddFiles(ctx context.Context, d *Draft, files []SelectedFile) error {
	if len(files) == 0 {
		return nil
	}
	available := s.maxImages - len(d.Images)
	if available <= 0 {
		return &TooManyImagesError{Max: s.maxImages}
	}
	if len(files) > available {
		s.logger.Info("dropping files over image limit", "selected", len(files), "available", available)
		files = files[:available]
	}

	d.Errors = d.Errors[:0]
	for _, f := range files {
		mimeType := mimetype.Detect(f.Data).String()
		key, err := s.staging.Save(ctx, "draft", mimeType, bytes.NewReader(f.Data))
		if err != nil {
			return fmt.Errorf("failed to stage %s: %w", f.Name, err)
		}

		img := DraftImage{FileName: f.Name, MimeType: mimeType, StagingKey: key}
		url, err := preview.FromBytes(f.Data)
		if err != nil {
			s.logger.Warn("preview generation failed", "file", f.Name, "error", err)
			d.Errors = append(d.Errors, "Failed to generate preview for "+f.Name)
		} else {
			img.Preview = url
		}
		d.Images = append(d.Images, img)
	}
	return nil
}

// RemoveImage drops the image at index. A new file is unstaged; an existing
// image is deleted on the backend, and if that fails it is put back at the
// same index and the error returned.
func (s *DraftService) RemoveImage(ctx context.Context, d *Draft, index int) error {
	if index < 0 || index >= len(d.Images) {
		return ErrImageIndex
	}
	img := d.Images[index]
	d.Images = append(d.Images[:index], d.Images[index+1:]...)

	if img.IsNew() {
		if err := s.staging.Delete(ctx, img.StagingKey); err != nil && !errors.Is(err, staging.ErrNotFound) {
			s.logger.Warn("failed to delete staged file", "key", img.StagingKey, "error", err)
		}
		return nil
	}

	id, ok := mapper.ImageIDFromURL(img.ImageURL)
	if !ok || d.Property.ID == 0 {
		// Without an image id there is nothing to delete on the backend.
		d.Property.ImageURLs = removeURL(d.Property.ImageURLs, img.ImageURL)
		return nil
	}

	if err := s.images.DeleteImage(ctx, id); err != nil {
		s.logger.Error("failed to delete image", "image_id", id, "property_id", d.Property.ID, "error", err)
		d.Images = append(d.Images[:index], append([]DraftImage{img}, d.Images[index:]...)...)
		return fmt.Errorf("failed to delete image: %w", err)
	}
	d.Property.ImageURLs = removeURL(d.Property.ImageURLs, img.ImageURL)
	s.logger.Info("image deleted", "image_id", id, "property_id", d.Property.ID)
	return nil
}

// Discard removes every staged file of d.
func (s *DraftService) Discard(ctx context.Context, d *Draft) {
	for _, img := range d.Selected() {
		if err := s.staging.Delete(ctx, img.StagingKey); err != nil && !errors.Is(err, staging.ErrNotFound) {
			s.logger.Warn("failed to delete staged file", "key", img.StagingKey, "error", err)
		}
	}
}

// Preview returns data URLs for files without staging them.
func Preview(files []SelectedFile) ([]string, []string) {
	urls := make([]string, 0, len(files))
	errs := []string{}
	for _, f := range files {
		url, err := preview.DataURL(bytes.NewReader(f.Data))
		if err != nil {
			errs = append(errs, "Failed to generate preview for "+f.Name)
			continue
		}
		urls = append(urls, url)
	}
	return urls, errs
}

func removeURL(urls []string, u string) []string {
	out := urls[:0:0]
	for _, v := range urls {
		if v != u {
			out = append(out, v)
		}
	}
	return out
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vbonduro/proplist/internal/backend"
	"github.com/vbonduro/proplist/internal/domain"
	"github.com/vbonduro/proplist/internal/mapper"
	"github.com/vbonduro/proplist/internal/metrics"
	"github.com/vbonduro/proplist/internal/staging"
)

// ErrNoPropertyID is returned when the backend accepted a new property but
// did not assign it an id, so no images can be attached.
var ErrNoPropertyID = errors.New("Failed to create property record")

type PublisherConfig struct {
	// Attempts per image, including the first. Values below 1 mean 1.
	Attempts int
	// RetryDelay is the pause between attempts of the same image.
	RetryDelay time.Duration
	// Verify re-reads the saved property before uploading. Failures are
	// only logged.
	Verify bool
}

// Result is the outcome of a publish run. The property is saved even when
// some or all uploads failed; UploadErrors names each file that was dropped.
type Result struct {
	RunID        string           `json:"runId"`
	Property     *domain.Property `json:"property"`
	UploadErrors []string         `json:"uploadErrors"`
}

// ProgressFunc receives the share of files processed so far, 0 to 100.
type ProgressFunc func(percent int)

type Publisher struct {
	props   propertyDirectory
	mapper  *mapper.Mapper
	staging staging.Store
	cfg     PublisherConfig
	logger  *slog.Logger
}

func NewPublisher(props propertyDirectory, m *mapper.Mapper, stg staging.Store, cfg PublisherConfig, logger *slog.Logger) *Publisher {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	return &Publisher{props: props, mapper: m, staging: stg, cfg: cfg, logger: logger}
}

// Publish saves the draft's property, creating it when it has no id, then
// uploads the newly selected files one at a time in selection order and
// returns the property with its final image list. Only a failed create or
// update is returned as an error. Staged files are removed when the run ends.
func (p *Publisher) Publish(ctx context.Context, d *Draft, progress ProgressFunc) (*Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	mode := "update"
	if d.Property.ID == 0 {
		mode = "create"
	}
	log := p.logger.With("run_id", runID, "mode", mode)
	defer func() {
		metrics.PublishDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	}()

	selected := d.Selected()
	defer p.cleanup(context.WithoutCancel(ctx), selected, log)

	if err := Validate(&d.Property); err != nil {
		metrics.PublishRuns.WithLabelValues(mode, metrics.OutcomeFailed).Inc()
		return nil, err
	}

	saved, err := p.save(ctx, &d.Property, log)
	if err != nil {
		metrics.PublishRuns.WithLabelValues(mode, metrics.OutcomeFailed).Inc()
		log.Error("failed to save property", "error", err)
		return nil, err
	}
	log = log.With("property_id", saved.ID)
	log.Info("property saved", "files", len(selected))

	if p.cfg.Verify {
		if _, err := p.props.Get(ctx, saved.ID); err != nil {
			log.Warn("saved property not yet readable", "error", err)
		}
	}

	property := p.mapper.ToView(*saved)
	result := &Result{RunID: runID, Property: property, UploadErrors: []string{}}
	if len(selected) == 0 {
		metrics.PublishRuns.WithLabelValues(mode, metrics.OutcomeOK).Inc()
		return result, nil
	}

	uploaded := make([]string, 0, len(selected))
	for i, img := range selected {
		dto, err := p.uploadWithRetry(ctx, saved.ID, i, d.Property.Title, img, log)
		if err != nil {
			log.Error("image upload failed", "file", img.FileName, "attempts", p.cfg.Attempts, "error", err)
			metrics.UploadFailures.Inc()
			result.UploadErrors = append(result.UploadErrors, "Failed to upload "+img.FileName)
		} else if dto.ImageURL != "" {
			uploaded = append(uploaded, p.mapper.ResolveImageURL(dto.ImageURL))
		}
		if progress != nil {
			progress((i + 1) * 100 / len(selected))
		}
	}

	property.ImageURLs = p.reconcile(ctx, saved.ID, uploaded, log)

	outcome := metrics.OutcomeOK
	if len(result.UploadErrors) > 0 {
		outcome = metrics.OutcomePartial
	}
	metrics.PublishRuns.WithLabelValues(mode, outcome).Inc()
	log.Info("publish finished",
		"uploaded", len(uploaded),
		"failed", len(result.UploadErrors),
		"images", len(property.ImageURLs),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// save creates or updates prop. A rejected save whose agent id came from the
// local cache is retried once with the agent resolved against the backend.
func (p *Publisher) save(ctx context.Context, prop *domain.Property, log *slog.Logger) (*backend.PropertyDTO, error) {
	wire, src := p.mapper.Resolve(ctx, prop)
	saved, err := p.write(ctx, prop.ID, wire)

	var se *backend.StatusError
	if err != nil && src == mapper.AgentCache && errors.As(err, &se) {
		log.Warn("save rejected with cached agent id, resolving agent again",
			"agent_id", wire.Agent.ID, "status", se.StatusCode, "error", err)
		p.mapper.Forget(ctx, prop.Agent.Email)
		wire, _ = p.mapper.Resolve(ctx, prop)
		saved, err = p.write(ctx, prop.ID, wire)
	}
	if err != nil {
		return nil, err
	}
	if prop.ID == 0 && saved.ID <= 0 {
		return nil, ErrNoPropertyID
	}
	return saved, nil
}

func (p *Publisher) write(ctx context.Context, id int64, wire backend.PropertyDTO) (*backend.PropertyDTO, error) {
	if id > 0 {
		return p.props.Update(ctx, id, wire)
	}
	return p.props.Create(ctx, wire)
}

func (p *Publisher) uploadWithRetry(ctx context.Context, propertyID int64, index int, title string, img DraftImage, log *slog.Logger) (*backend.ImageDTO, error) {
	var lastErr error
	for attempt := 1; attempt <= p.cfg.Attempts; attempt++ {
		if attempt > 1 {
			log.Info("retrying image upload", "file", img.FileName, "attempt", attempt, "delay", p.cfg.RetryDelay)
			if err := sleep(ctx, p.cfg.RetryDelay); err != nil {
				return nil, fmt.Errorf("upload of %s cancelled: %w", img.FileName, err)
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("upload of %s cancelled: %w", img.FileName, err)
		}

		dto, err := p.uploadOnce(ctx, propertyID, index, title, img)
		if err == nil {
			log.Debug("image uploaded", "file", img.FileName, "image_id", dto.ID, "attempt", attempt)
			return dto, nil
		}
		lastErr = err
		log.Warn("image upload attempt failed", "file", img.FileName, "attempt", attempt, "error", err)
	}
	return nil, lastErr
}

func (p *Publisher) uploadOnce(ctx context.Context, propertyID int64, index int, title string, img DraftImage) (*backend.ImageDTO, error) {
	body, detected, err := p.staging.Open(ctx, img.StagingKey)
	if err != nil {
		return nil, fmt.Errorf("failed to open staged %s: %w", img.FileName, err)
	}
	defer func() {
		if cerr := body.Close(); cerr != nil {
			p.logger.Warn("failed to close staged file", "key", img.StagingKey, "error", cerr)
		}
	}()

	mimeType := img.MimeType
	if mimeType == "" {
		mimeType = detected
	}
	metrics.UploadAttempts.Inc()
	return p.props.UploadImage(ctx, propertyID, backend.ImageUpload{
		FileName:     img.FileName,
		MimeType:     mimeType,
		Body:         body,
		Description:  fmt.Sprintf("Image %d for %s", index+1, title),
		DisplayOrder: index,
	})
}

// reconcile decides the final image list. The backend listing wins unless it
// fails or comes back empty while uploads succeeded.
func (p *Publisher) reconcile(ctx context.Context, propertyID int64, uploaded []string, log *slog.Logger) []string {
	images, err := p.props.ListImages(ctx, propertyID)
	if err != nil {
		log.Warn("failed to fetch images, using upload responses", "error", err)
		return uploaded
	}

	fetched := make([]string, 0, len(images))
	for _, img := range images {
		if img.ImageURL != "" {
			fetched = append(fetched, p.mapper.ResolveImageURL(img.ImageURL))
		}
	}
	if len(fetched) == 0 && len(uploaded) > 0 {
		log.Warn("backend listed no images, using upload responses", "uploaded", len(uploaded))
		return uploaded
	}
	return fetched
}

func (p *Publisher) cleanup(ctx context.Context, selected []DraftImage, log *slog.Logger) {
	for _, img := range selected {
		if err := p.staging.Delete(ctx, img.StagingKey); err != nil && !errors.Is(err, staging.ErrNotFound) {
			log.Warn("failed to remove staged file", "key", img.StagingKey, "error", err)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

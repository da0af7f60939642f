package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"mediadiff/internal/config"
	"mediadiff/internal/jobs"
	"mediadiff/internal/logging"
	"mediadiff/internal/media/ffprobe"
	"mediadiff/internal/services"
)

const stageName = "probe"

// Info is the technical metadata the analyzers need for one file.
type Info struct {
	FileID          int64   `json:"file_id"`
	Path            string  `json:"path"`
	DurationSeconds float64 `json:"duration_seconds"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	FPS             float64 `json:"fps"`
	HasAudio        bool    `json:"has_audio"`
}

// Catalog is the subset of the job store the prober reads and updates.
type Catalog interface {
	GetFile(ctx context.Context, id int64) (*jobs.MediaFile, error)
	SaveProbe(ctx context.Context, id int64, data jobs.ProbeData) error
	InvalidateProbe(ctx context.Context, id int64) error
}

// InspectFunc runs the probe tool against a path.
type InspectFunc func(ctx context.Context, binary, path string) (ffprobe.Result, error)

// Prober caches probe results per file id on top of the catalog columns.
type Prober struct {
	catalog Catalog
	binary  string
	inspect InspectFunc
	logger  *slog.Logger

	cache sync.Map // int64 -> cacheEntry
	group singleflight.Group
}

type cacheEntry struct {
	info     Info
	probedAt time.Time
}

// Option customizes a Prober.
type Option func(*Prober)

// WithInspector replaces the ffprobe invocation.
func WithInspector(fn InspectFunc) Option {
	return func(p *Prober) {
		if fn != nil {
			p.inspect = fn
		}
	}
}

// WithLogger sets the prober's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Prober) {
		p.logger = logging.NewComponentLogger(logger, "probe")
	}
}

// New constructs a Prober backed by the catalog.
func New(cfg *config.Config, catalog Catalog, opts ...Option) *Prober {
	p := &Prober{
		catalog: catalog,
		binary:  cfg.FFprobeBinary(),
		inspect: ffprobe.Inspect,
		logger:  logging.NewComponentLogger(nil, "probe"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe returns metadata for a catalog file, probing it on a cache miss.
// Cached entries are only served while the catalog row still carries the
// probe they were read from, so an invalidation by any process forces a
// re-probe. Unreadable or undecodable media fails with services.ErrMediaProbe.
func (p *Prober) Probe(ctx context.Context, fileID int64) (Info, error) {
	file, err := p.resolve(ctx, fileID)
	if err != nil {
		return Info{}, err
	}
	if cached, ok := p.cache.Load(fileID); ok {
		entry := cached.(cacheEntry)
		if file.ProbedAt != nil && entry.probedAt.Equal(*file.ProbedAt) {
			return entry.info, nil
		}
		p.cache.CompareAndDelete(fileID, cached)
	}
	if file.Probed() {
		info := fromCatalog(file)
		p.cache.Store(fileID, cacheEntry{info: info, probedAt: *file.ProbedAt})
		return info, nil
	}

	value, err, _ := p.group.Do(strconv.FormatInt(fileID, 10), func() (any, error) {
		return p.inspectFile(ctx, fileID)
	})
	if err != nil {
		return Info{}, err
	}
	return value.(Info), nil
}

// Invalidate forgets cached metadata for fileID so the next Probe re-runs the tool.
func (p *Prober) Invalidate(ctx context.Context, fileID int64) error {
	p.cache.Delete(fileID)
	if err := p.catalog.InvalidateProbe(ctx, fileID); err != nil {
		if errors.Is(err, jobs.ErrFileNotFound) {
			return services.Wrap(services.ErrNotFound, stageName, "invalidate", fmt.Sprintf("media file %d not in catalog", fileID), err)
		}
		return err
	}
	return nil
}

func (p *Prober) resolve(ctx context.Context, fileID int64) (*jobs.MediaFile, error) {
	file, err := p.catalog.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, services.Wrap(services.ErrMediaProbe, stageName, "resolve", fmt.Sprintf("media file %d not in catalog", fileID), nil)
	}
	return file, nil
}

// inspectFile runs the tool and writes the result to the catalog. Concurrent
// callers for one file share a single run.
func (p *Prober) inspectFile(ctx context.Context, fileID int64) (Info, error) {
	file, err := p.resolve(ctx, fileID)
	if err != nil {
		return Info{}, err
	}
	if file.Probed() {
		// Another caller finished the probe first.
		return fromCatalog(file), nil
	}

	if _, err := os.Stat(file.Path); err != nil {
		return Info{}, services.Wrap(services.ErrMediaProbe, stageName, "stat", "media file is not readable", err)
	}
	result, err := p.inspect(ctx, p.binary, file.Path)
	if err != nil {
		if ctx.Err() != nil {
			return Info{}, ctx.Err()
		}
		return Info{}, services.Wrap(services.ErrMediaProbe, stageName, "ffprobe", "media file could not be decoded", err)
	}
	info, err := fromResult(file, result)
	if err != nil {
		return Info{}, err
	}

	if err := p.catalog.SaveProbe(ctx, fileID, jobs.ProbeData{
		DurationSeconds: info.DurationSeconds,
		Width:           info.Width,
		Height:          info.Height,
		FPS:             info.FPS,
		HasAudio:        info.HasAudio,
		RawJSON:         string(result.RawJSON()),
	}); err != nil {
		// Nothing is cached; the next Probe runs the tool again.
		p.logger.Warn("failed to persist probe metadata",
			logging.Int64("file_id", fileID),
			logging.Error(err),
			logging.Event("probe_persist_failed"),
			logging.String(logging.FieldErrorHint, "check database permissions"),
		)
	}
	p.logger.Debug("media probed",
		logging.Int64("file_id", fileID),
		logging.Float64("duration_seconds", info.DurationSeconds),
		logging.Float64("fps", info.FPS),
		logging.Bool("has_audio", info.HasAudio),
	)
	return info, nil
}

func fromCatalog(file *jobs.MediaFile) Info {
	return Info{
		FileID:          file.ID,
		Path:            file.Path,
		DurationSeconds: file.DurationSeconds,
		Width:           file.Width,
		Height:          file.Height,
		FPS:             file.FPS,
		HasAudio:        file.HasAudio,
	}
}

func fromResult(file *jobs.MediaFile, result ffprobe.Result) (Info, error) {
	video, ok := result.PrimaryVideo()
	if !ok {
		return Info{}, services.Wrap(services.ErrMediaProbe, stageName, "ffprobe", "no video stream found", nil)
	}
	duration := result.DurationSeconds()
	if duration <= 0 {
		return Info{}, services.Wrap(services.ErrMediaProbe, stageName, "ffprobe", "media has no usable duration", nil)
	}
	fps := video.FrameRate()
	if fps <= 0 {
		return Info{}, services.Wrap(services.ErrMediaProbe, stageName, "ffprobe", "video stream has no frame rate", nil)
	}
	return Info{
		FileID:          file.ID,
		Path:            file.Path,
		DurationSeconds: duration,
		Width:           video.Width,
		Height:          video.Height,
		FPS:             fps,
		HasAudio:        result.AudioStreamCount() > 0,
	}, nil
}

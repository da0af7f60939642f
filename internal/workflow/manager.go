package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"mediadiff/internal/capability"
	"mediadiff/internal/config"
	"mediadiff/internal/jobs"
	"mediadiff/internal/logging"
	"mediadiff/internal/probe"
	"mediadiff/internal/render"
	"mediadiff/internal/stage"
)

// Manager coordinates job creation, execution and the worker pool.
type Manager struct {
	cfg      *config.Config
	store    *jobs.Store
	logger   *slog.Logger
	validate *validator.Validate

	prober   *probe.Prober
	provider *capability.Provider

	artifactsMu sync.Mutex
	artifacts   render.ArtifactStore

	heartbeat *HeartbeatMonitor
	jobLogs   *JobLogger

	pollInterval time.Duration

	mu      sync.RWMutex
	tokens  map[int64]*stage.Token
	running bool
	lastErr error
	lastJob *jobs.Job
}

// Option configures optional Manager collaborators.
type Option func(*Manager)

// WithProber replaces the default ffprobe-backed prober.
func WithProber(p *probe.Prober) Option {
	return func(m *Manager) {
		m.prober = p
	}
}

// WithCapabilities replaces the default capability provider.
func WithCapabilities(p *capability.Provider) Option {
	return func(m *Manager) {
		m.provider = p
	}
}

// WithArtifactStore replaces the configured artifact backend.
func WithArtifactStore(s render.ArtifactStore) Option {
	return func(m *Manager) {
		m.artifacts = s
	}
}

// NewManager constructs a workflow manager. Collaborators not supplied via
// options are built from cfg; the artifact store is opened on first use.
func NewManager(cfg *config.Config, store *jobs.Store, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:          cfg,
		store:        store,
		logger:       logging.NewComponentLogger(logger, "workflow"),
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		pollInterval: time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		tokens:       make(map[int64]*stage.Token),
		jobLogs:      NewJobLogger(cfg),
	}
	m.heartbeat = NewHeartbeatMonitor(
		store,
		m.logger,
		time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
		time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
	)
	for _, opt := range opts {
		opt(m)
	}
	if m.prober == nil {
		m.prober = probe.New(cfg, store, probe.WithLogger(logger))
	}
	if m.provider == nil {
		m.provider = capability.NewProvider(cfg, logger)
	}
	return m
}

func (m *Manager) artifactStore(ctx context.Context) (render.ArtifactStore, error) {
	m.artifactsMu.Lock()
	defer m.artifactsMu.Unlock()
	if m.artifacts != nil {
		return m.artifacts, nil
	}
	store, err := render.NewStore(ctx, m.cfg)
	if err != nil {
		return nil, err
	}
	m.artifacts = store
	return store, nil
}

// registerToken returns the job's token. Every check also reads the persisted
// cancel flag so a cancel issued by another process stops the current loop.
func (m *Manager) registerToken(ctx context.Context, id int64) *stage.Token {
	token := stage.NewWatchedToken(func() bool {
		requested, err := m.store.CancelRequested(ctx, id)
		return err == nil && requested
	})
	m.mu.Lock()
	m.tokens[id] = token
	m.mu.Unlock()
	return token
}

func (m *Manager) releaseToken(id int64) {
	m.mu.Lock()
	delete(m.tokens, id)
	m.mu.Unlock()
}

func (m *Manager) cancelToken(id int64) bool {
	m.mu.RLock()
	token := m.tokens[id]
	m.mu.RUnlock()
	if token == nil {
		return false
	}
	token.Cancel()
	return true
}

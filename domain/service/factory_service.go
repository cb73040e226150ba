package service

import (
	"context"
	"io"
	"mime"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/evnchn/3D-Print-Me/domain/model"
	"github.com/evnchn/3D-Print-Me/domain/port/inbound"
	"github.com/evnchn/3D-Print-Me/domain/port/outbound"
)

// factoryService caches factory descriptors and reloads them when the factories directory changes.
type factoryService struct {
	repo      outbound.FactoryRepository
	watcher   outbound.FileWatcher
	logger    outbound.Logger
	factories map[string]*model.Factory
	order     []string
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	running   bool
	done      chan struct{}
}

// NewFactoryService builds the service; watcher may be nil to disable hot reload.
func NewFactoryService(
	repo outbound.FactoryRepository,
	watcher outbound.FileWatcher,
	logger outbound.Logger,
) inbound.FactoryService {
	ctx, cancel := context.WithCancel(context.Background())

	return &factoryService{
		repo:      repo,
		watcher:   watcher,
		logger:    logger,
		factories: make(map[string]*model.Factory),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start renames invalid factory folders, loads every descriptor and begins watching for changes
func (s *factoryService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("Factory service already running")
		return nil
	}
	s.mu.Unlock()

	renamed, err := s.repo.Normalize(ctx)
	if err != nil {
		return oops.Code("FACTORY_NORMALIZE_FAILED").With("dir", s.repo.Dir()).Wrap(err)
	}
	if renamed > 0 {
		s.logger.Info("Renamed factory folders to fresh ids", "count", renamed)
	}

	if err := s.Reload(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watcher != nil {
		if err := s.watcher.Watch(ctx, s.repo.Dir()); err != nil {
			s.logger.Error("Failed to watch factories directory, hot reload disabled", "dir", s.repo.Dir(), "error", err)
		} else {
			s.done = make(chan struct{})
			go s.processEvents()
		}
	}

	s.running = true
	s.logger.Info("Factory service started", "dir", s.repo.Dir(), "factories", len(s.order))
	return nil
}

func (s *factoryService) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	done := s.done
	s.mu.Unlock()

	s.cancel()
	if done != nil {
		<-done
	}

	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			s.logger.Error("Error stopping factory watcher", "error", err)
			return err
		}
	}

	s.logger.Info("Factory service stopped")
	return nil
}

func (s *factoryService) Reload(ctx context.Context) error {
	list, err := s.repo.List(ctx)
	if err != nil {
		return oops.Code("FACTORY_LOAD_FAILED").With("dir", s.repo.Dir()).Wrap(err)
	}

	factories := make(map[string]*model.Factory, len(list))
	order := make([]string, 0, len(list))
	for _, f := range list {
		factories[f.UUID] = f
		order = append(order, f.UUID)
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := factories[order[i]], factories[order[j]]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.UUID < b.UUID
	})

	s.mu.Lock()
	s.factories = factories
	s.order = order
	s.mu.Unlock()

	s.logger.Debug("Factories reloaded", "count", len(order))
	return nil
}

func (s *factoryService) ListFactories(ctx context.Context) ([]*model.Factory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Factory, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.factories[id])
	}
	return out, nil
}

func (s *factoryService) GetFactory(ctx context.Context, factoryID string) (*model.Factory, error) {
	if !model.IsPrefixedID(model.FactoryPrefix, factoryID) {
		return nil, model.ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.factories[factoryID]
	if !ok {
		return nil, model.ErrNotFound
	}
	return f, nil
}

// OpenCoverImage returns the cover image stream and its content type
func (s *factoryService) OpenCoverImage(ctx context.Context, factoryID string) (io.ReadCloser, string, error) {
	f, err := s.GetFactory(ctx, factoryID)
	if err != nil {
		return nil, "", err
	}
	if f.CoverImage == "" {
		return nil, "", model.ErrNotFound
	}

	rc, err := s.repo.OpenAsset(ctx, factoryID, f.CoverImage)
	if err != nil {
		return nil, "", err
	}

	contentType := mime.TypeByExtension(filepath.Ext(f.CoverImage))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return rc, contentType, nil
}

// processEvents reloads descriptors after changes, at most once per reloadInterval
func (s *factoryService) processEvents() {
	defer close(s.done)

	const reloadInterval = 500 * time.Millisecond
	var lastReload time.Time

	for {
		select {
		case <-s.ctx.Done():
			return

		case event, ok := <-s.watcher.Events():
			if !ok {
				return
			}
			s.logger.Debug("Factories directory changed", "path", event.FilePath, "type", event.EventType)

			if wait := reloadInterval - time.Since(lastReload); wait > 0 {
				select {
				case <-time.After(wait):
				case <-s.ctx.Done():
					return
				}
			}

			if err := s.Reload(s.ctx); err != nil {
				s.logger.Error("Failed to reload factories", "error", err, "path", event.FilePath)
			}
			lastReload = time.Now()

		case err, ok := <-s.watcher.Errors():
			if !ok {
				return
			}
			s.logger.Error("Factory watcher error", "error", err)
		}
	}
}

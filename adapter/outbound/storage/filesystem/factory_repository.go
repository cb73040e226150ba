package filesystem

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/samber/oops"

	"github.com/evnchn/3D-Print-Me/domain/model"
	"github.com/evnchn/3D-Print-Me/domain/port/outbound"
)

const factoryDescFile = "desc.json"

// FactoryRepository reads <dir>/<factory-id>/desc.json, the folder name is the id
type FactoryRepository struct {
	dir    string
	logger outbound.Logger
}

func NewFactoryRepository(dir string, logger outbound.Logger) (*FactoryRepository, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, oops.Code("FACTORIES_DIR_FAILED").With("dir", dir).Wrap(err)
	}
	return &FactoryRepository{dir: dir, logger: logger}, nil
}

func (r *FactoryRepository) Dir() string {
	return r.dir
}

func (r *FactoryRepository) Normalize(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return 0, err
	}

	renamed := 0
	for _, entry := range entries {
		if !entry.IsDir() || model.IsPrefixedID(model.FactoryPrefix, entry.Name()) {
			continue
		}
		if entry.Name()[0] == '.' {
			continue
		}
		newID := model.NewPrefixedID(model.FactoryPrefix)
		if err := os.Rename(filepath.Join(r.dir, entry.Name()), filepath.Join(r.dir, newID)); err != nil {
			return renamed, oops.Code("FACTORY_RENAME_FAILED").With("folder", entry.Name()).Wrap(err)
		}
		r.logger.Info("Renamed factory folder", "from", entry.Name(), "to", newID)
		renamed++
	}
	return renamed, nil
}

func (r *FactoryRepository) List(ctx context.Context) ([]*model.Factory, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, err
	}

	factories := make([]*model.Factory, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || !model.IsPrefixedID(model.FactoryPrefix, entry.Name()) {
			continue
		}
		f, err := r.Get(ctx, entry.Name())
		if err != nil {
			r.logger.Warn("Skipping factory without a readable descriptor", "factory", entry.Name(), "error", err)
			continue
		}
		factories = append(factories, f)
	}

	sort.Slice(factories, func(i, j int) bool {
		if factories[i].Name != factories[j].Name {
			return factories[i].Name < factories[j].Name
		}
		return factories[i].UUID < factories[j].UUID
	})
	return factories, nil
}

func (r *FactoryRepository) Get(ctx context.Context, factoryID string) (*model.Factory, error) {
	if !model.IsPrefixedID(model.FactoryPrefix, factoryID) {
		return nil, model.ErrInvalidID
	}
	var f model.Factory
	if err := readJSON(filepath.Join(r.dir, factoryID, factoryDescFile), &f); err != nil {
		return nil, err
	}
	f.UUID = factoryID
	return &f, nil
}

func (r *FactoryRepository) OpenAsset(ctx context.Context, factoryID, name string) (io.ReadCloser, error) {
	if !model.IsPrefixedID(model.FactoryPrefix, factoryID) {
		return nil, model.ErrInvalidID
	}
	name, err := baseName(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(r.dir, factoryID, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, model.ErrNotFound
	}
	return f, err
}

package service

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/evnchn/3D-Print-Me/domain/model"
	"github.com/evnchn/3D-Print-Me/domain/port/outbound"
)

type fakeJobRepo struct {
	mu        sync.Mutex
	jobs      map[string]model.Job
	files     map[string][]byte
	updateErr error
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{
		jobs:  make(map[string]model.Job),
		files: make(map[string][]byte),
	}
}

func (f *fakeJobRepo) Create(_ context.Context, job *model.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[job.UUID] = *job
	return nil
}

func (f *fakeJobRepo) Get(_ context.Context, jobID string) (*model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &job, nil
}

func (f *fakeJobRepo) Update(_ context.Context, job *model.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.jobs[job.UUID]; !ok {
		return model.ErrNotFound
	}
	f.jobs[job.UUID] = *job
	return nil
}

func (f *fakeJobRepo) Delete(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.jobs[jobID]; !ok {
		return model.ErrNotFound
	}
	delete(f.jobs, jobID)
	return nil
}

func (f *fakeJobRepo) List(_ context.Context) ([]*model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*model.Job, 0, len(f.jobs))
	for _, job := range f.jobs {
		job := job
		out = append(out, &job)
	}
	return out, nil
}

func (f *fakeJobRepo) SaveFile(_ context.Context, jobID, name string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[jobID+"/"+name] = data
	return nil
}

func (f *fakeJobRepo) OpenFile(_ context.Context, jobID, name string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[jobID+"/"+name]
	if !ok {
		return nil, model.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeJobRepo) RemoveFile(_ context.Context, jobID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, jobID+"/"+name)
	return nil
}

type fakeFactoryRepo struct {
	mu        sync.Mutex
	dir       string
	factories []*model.Factory
	assets    map[string][]byte
	renamed   int
}

func (f *fakeFactoryRepo) Dir() string { return f.dir }

func (f *fakeFactoryRepo) Normalize(context.Context) (int, error) {
	return f.renamed, nil
}

func (f *fakeFactoryRepo) List(context.Context) ([]*model.Factory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*model.Factory(nil), f.factories...), nil
}

func (f *fakeFactoryRepo) Get(_ context.Context, factoryID string) (*model.Factory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, factory := range f.factories {
		if factory.UUID == factoryID {
			return factory, nil
		}
	}
	return nil, model.ErrNotFound
}

func (f *fakeFactoryRepo) OpenAsset(_ context.Context, factoryID, name string) (io.ReadCloser, error) {
	data, ok := f.assets[factoryID+"/"+name]
	if !ok {
		return nil, model.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeFactoryRepo) set(factories ...*model.Factory) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.factories = factories
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.JobEvent
}

func (p *recordingPublisher) Publish(event *model.JobEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *event)
}

func (p *recordingPublisher) types() []model.JobEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.JobEventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// chanWatcher is a FileWatcher driven by the test
type chanWatcher struct {
	mu      sync.Mutex
	events  chan outbound.FileChangeEvent
	errors  chan error
	watched []string
	stopped bool
}

func newChanWatcher() *chanWatcher {
	return &chanWatcher{
		events: make(chan outbound.FileChangeEvent, 10),
		errors: make(chan error, 10),
	}
}

func (w *chanWatcher) Watch(_ context.Context, dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.watched = append(w.watched, dir)
	return nil
}

func (w *chanWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	return nil
}

func (w *chanWatcher) Events() <-chan outbound.FileChangeEvent { return w.events }
func (w *chanWatcher) Errors() <-chan error                    { return w.errors }

func (w *chanWatcher) IsWatching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.watched) > 0 && !w.stopped
}

func (w *chanWatcher) GetWatchedPaths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.watched...)
}

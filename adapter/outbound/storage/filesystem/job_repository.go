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

const jobInfoFile = "job_info.json"

// JobRepository stores <dir>/<job-id>/job_info.json plus the uploaded file next to it
type JobRepository struct {
	dir    string
	logger outbound.Logger
}

func NewJobRepository(dir string, logger outbound.Logger) (*JobRepository, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, oops.Code("JOBS_DIR_FAILED").With("dir", dir).Wrap(err)
	}
	return &JobRepository{dir: dir, logger: logger}, nil
}

func (r *JobRepository) jobDir(jobID string) (string, error) {
	if !model.IsPrefixedID(model.JobPrefix, jobID) {
		return "", model.ErrInvalidID
	}
	return filepath.Join(r.dir, jobID), nil
}

func (r *JobRepository) Create(ctx context.Context, job *model.Job) error {
	dir, err := r.jobDir(job.UUID)
	if err != nil {
		return err
	}
	// Mkdir fails on an existing directory, ids are never reused
	if err := os.Mkdir(dir, 0755); err != nil {
		return oops.Code("JOB_CREATE_FAILED").With("job", job.UUID).Wrap(err)
	}
	if err := writeJSON(filepath.Join(dir, jobInfoFile), job); err != nil {
		os.RemoveAll(dir)
		return oops.Code("JOB_CREATE_FAILED").With("job", job.UUID).Wrap(err)
	}
	return nil
}

func (r *JobRepository) Get(ctx context.Context, jobID string) (*model.Job, error) {
	dir, err := r.jobDir(jobID)
	if err != nil {
		return nil, err
	}
	var job model.Job
	if err := readJSON(filepath.Join(dir, jobInfoFile), &job); err != nil {
		return nil, err
	}
	job.UUID = jobID
	return &job, nil
}

func (r *JobRepository) Update(ctx context.Context, job *model.Job) error {
	dir, err := r.jobDir(job.UUID)
	if err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Join(dir, jobInfoFile)); os.IsNotExist(err) {
		return model.ErrNotFound
	}
	if err := writeJSON(filepath.Join(dir, jobInfoFile), job); err != nil {
		return oops.Code("JOB_UPDATE_FAILED").With("job", job.UUID).Wrap(err)
	}
	return nil
}

func (r *JobRepository) Delete(ctx context.Context, jobID string) error {
	dir, err := r.jobDir(jobID)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return model.ErrNotFound
	}
	return os.RemoveAll(dir)
}

// List skips entries that are not readable jobs, sorted by creation time
func (r *JobRepository) List(ctx context.Context) ([]*model.Job, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, oops.Code("JOBS_LIST_FAILED").With("dir", r.dir).Wrap(err)
	}

	jobs := make([]*model.Job, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || !model.IsPrefixedID(model.JobPrefix, entry.Name()) {
			continue
		}
		job, err := r.Get(ctx, entry.Name())
		if err != nil {
			r.logger.Warn("Skipping unreadable job", "job", entry.Name(), "error", err)
			continue
		}
		jobs = append(jobs, job)
	}

	sort.SliceStable(jobs, func(i, j int) bool {
		if jobs[i].Timestamp != jobs[j].Timestamp {
			return jobs[i].Timestamp < jobs[j].Timestamp
		}
		return jobs[i].UUID < jobs[j].UUID
	})
	return jobs, nil
}

func (r *JobRepository) SaveFile(ctx context.Context, jobID, name string, src io.Reader) error {
	dir, err := r.jobDir(jobID)
	if err != nil {
		return err
	}
	if name, err = baseName(name); err != nil {
		return err
	}
	if name == jobInfoFile {
		return model.ErrFileTypeRejected
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return model.ErrNotFound
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return oops.Code("JOB_FILE_SAVE_FAILED").With("job", jobID).Wrap(err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return oops.Code("JOB_FILE_SAVE_FAILED").With("job", jobID).Wrap(err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, name))
}

func (r *JobRepository) OpenFile(ctx context.Context, jobID, name string) (io.ReadCloser, error) {
	dir, err := r.jobDir(jobID)
	if err != nil {
		return nil, err
	}
	if name, err = baseName(name); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, model.ErrNotFound
	}
	return f, err
}

// RemoveFile deletes an uploaded file, a missing file is not an error
func (r *JobRepository) RemoveFile(ctx context.Context, jobID, name string) error {
	dir, err := r.jobDir(jobID)
	if err != nil {
		return err
	}
	if name, err = baseName(name); err != nil {
		return err
	}
	if name == jobInfoFile {
		return model.ErrFileTypeRejected
	}
	if err := os.Remove(filepath.Join(dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return oops.Code("JOB_FILE_REMOVE_FAILED").With("job", jobID).Wrap(err)
	}
	return nil
}

package inbound

import (
	"context"
	"io"

	"github.com/evnchn/3D-Print-Me/domain/model"
)

// FieldIssue describes why a submitted form field was refused.
type FieldIssue struct {
	Field  string `json:"field"`
	Reason string `json:"reason"` // "missing", "empty", "invalid_email"
}

type FactoryService interface {
	ListFactories(ctx context.Context) ([]*model.Factory, error)
	GetFactory(ctx context.Context, factoryID string) (*model.Factory, error)
	OpenCoverImage(ctx context.Context, factoryID string) (io.ReadCloser, string, error)

	// Reload rereads every descriptor from disk
	Reload(ctx context.Context) error
	Start(ctx context.Context) error
	Stop() error
}

// JobService drives a job from creation to review. subject is always the verified caller.
type JobService interface {
	NewJob(ctx context.Context, subject, factoryID string) (*model.Job, error)
	SubmitFields(ctx context.Context, subject, jobID string, fields map[string]string) (*model.Job, []FieldIssue, error)
	UploadFile(ctx context.Context, subject, jobID, name string, r io.Reader) (*model.Job, error)
	GetJob(ctx context.Context, subject, jobID string) (*model.Job, error)
	ListMyJobs(ctx context.Context, subject string) ([]*model.Job, error)

	// ListJobs is admin only, factoryID may be model.AllJobs
	ListJobs(ctx context.Context, subject, factoryID string) ([]*model.Job, error)
	MarkStatus(ctx context.Context, subject, jobID string, status model.JobStatus) (*model.Job, error)
	PurgeJobs(ctx context.Context, subject, factoryID string, status model.JobStatus) (int, error)

	DeleteJob(ctx context.Context, subject, jobID string) error
	OpenJobFile(ctx context.Context, subject, jobID string) (io.ReadCloser, string, error)
}

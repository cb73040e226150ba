package outbound

import (
	"context"
	"io"

	"github.com/evnchn/3D-Print-Me/domain/model"
)

// JobRepository persists jobs and their uploaded files.
type JobRepository interface {
	Create(ctx context.Context, job *model.Job) error
	Get(ctx context.Context, jobID string) (*model.Job, error)
	Update(ctx context.Context, job *model.Job) error
	Delete(ctx context.Context, jobID string) error
	List(ctx context.Context) ([]*model.Job, error)

	// SaveFile stores the uploaded file under the job, name is a base name
	SaveFile(ctx context.Context, jobID, name string, r io.Reader) error
	OpenFile(ctx context.Context, jobID, name string) (io.ReadCloser, error)
	RemoveFile(ctx context.Context, jobID, name string) error
}

// FactoryRepository reads factory descriptors.
type FactoryRepository interface {
	// Dir is the directory holding one folder per factory
	Dir() string

	// Normalize renames folders whose name is not a factory id, returns renamed count
	Normalize(ctx context.Context) (int, error)

	List(ctx context.Context) ([]*model.Factory, error)
	Get(ctx context.Context, factoryID string) (*model.Factory, error)
	OpenAsset(ctx context.Context, factoryID, name string) (io.ReadCloser, error)
}

// JobEventPublisher fans job events out to subscribers.
type JobEventPublisher interface {
	Publish(event *model.JobEvent)
}

// Metrics records authentication outcomes.
type Metrics interface {
	RecordAuth(operation string, kind model.ErrorKind, ok bool)
	RecordTokenMinted(kind model.TokenKind)
}

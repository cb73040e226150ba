package service

import (
	"context"
	"errors"
	"io"
	"net/mail"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/evnchn/3D-Print-Me/domain/model"
	"github.com/evnchn/3D-Print-Me/domain/port/inbound"
	"github.com/evnchn/3D-Print-Me/domain/port/outbound"
)

const (
	IssueMissing      = "missing"
	IssueEmpty        = "empty"
	IssueInvalidEmail = "invalid_email"
)

type jobService struct {
	jobs      outbound.JobRepository
	factories inbound.FactoryService
	authz     inbound.AuthorizationService
	events    outbound.JobEventPublisher
	logger    outbound.Logger
	jobLocks  *keyedMutex
	now       func() time.Time
}

func NewJobService(
	jobs outbound.JobRepository,
	factories inbound.FactoryService,
	authz inbound.AuthorizationService,
	events outbound.JobEventPublisher,
	logger outbound.Logger,
) inbound.JobService {
	return &jobService{
		jobs:      jobs,
		factories: factories,
		authz:     authz,
		events:    events,
		logger:    logger,
		jobLocks:  newKeyedMutex(),
		now:       time.Now,
	}
}

func (s *jobService) NewJob(ctx context.Context, subject, factoryID string) (*model.Job, error) {
	if subject == "" {
		return nil, model.ErrNullUserField
	}

	factory, err := s.factories.GetFactory(ctx, factoryID)
	if err != nil {
		return nil, err
	}

	job := &model.Job{
		UUID:        model.NewPrefixedID(model.JobPrefix),
		FactoryUUID: factory.UUID,
		Status:      model.JobNew,
		Fields:      make(map[string]string),
		Timestamp:   s.now().Unix(),
		User:        subject,
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, oops.Code("JOB_STORE_FAILED").With("factory", factoryID).Wrap(err)
	}

	s.logger.Info("Job created", "job", job.UUID, "factory", job.FactoryUUID, "user", subject)
	s.publish(model.JobEventCreated, job, subject)
	return job, nil
}

// SubmitFields stores the values of the factory fields. The job becomes fields_ready only without issues.
func (s *jobService) SubmitFields(ctx context.Context, subject, jobID string, fields map[string]string) (*model.Job, []inbound.FieldIssue, error) {
	unlock, job, err := s.lockJob(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	if !job.Owned(subject) {
		return nil, nil, model.ErrNotOwner
	}
	if !job.CanEditFields() {
		return nil, nil, model.ErrInvalidJobState
	}

	factory, err := s.factories.GetFactory(ctx, job.FactoryUUID)
	if err != nil {
		return nil, nil, err
	}

	values, issues := checkFields(factory.Fields, fields)
	job.Fields = values
	if len(issues) == 0 {
		job.Status = model.JobFieldsReady
	} else {
		job.Status = model.JobNew
	}

	if err := s.jobs.Update(ctx, job); err != nil {
		return nil, nil, oops.Code("JOB_STORE_FAILED").With("job", jobID).Wrap(err)
	}

	s.publish(model.JobEventFieldsUpdated, job, subject)
	return job, issues, nil
}

// checkFields keeps only declared fields. A missing field falls back to its default when one is declared.
func checkFields(specs []model.FieldSpec, submitted map[string]string) (map[string]string, []inbound.FieldIssue) {
	values := make(map[string]string, len(specs))
	var issues []inbound.FieldIssue

	for _, field := range specs {
		value, ok := submitted[field.Name]
		if !ok {
			if field.Default == "" {
				issues = append(issues, inbound.FieldIssue{Field: field.Name, Reason: IssueMissing})
				continue
			}
			value = field.Default
		}

		value = strings.TrimSpace(value)
		values[field.Name] = value

		switch {
		case value == "":
			issues = append(issues, inbound.FieldIssue{Field: field.Name, Reason: IssueEmpty})
		case field.Format == model.FieldFormatEmail && !validEmail(value):
			issues = append(issues, inbound.FieldIssue{Field: field.Name, Reason: IssueInvalidEmail})
		}
	}

	return values, issues
}

func validEmail(value string) bool {
	addr, err := mail.ParseAddress(value)
	return err == nil && addr.Address == value
}

func (s *jobService) UploadFile(ctx context.Context, subject, jobID, name string, r io.Reader) (*model.Job, error) {
	unlock, job, err := s.lockJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if !job.Owned(subject) {
		return nil, model.ErrNotOwner
	}
	switch job.Status {
	case model.JobFieldsReady:
	case model.JobNew:
		return nil, model.ErrFieldsIncomplete
	default:
		return nil, model.ErrInvalidJobState
	}

	name = cleanFileName(name)
	if name == "" {
		return nil, model.ErrInvalidID
	}

	factory, err := s.factories.GetFactory(ctx, job.FactoryUUID)
	if err != nil {
		return nil, err
	}
	if !factory.Accepts(name) {
		return nil, model.ErrFileTypeRejected
	}

	if err := s.jobs.SaveFile(ctx, job.UUID, name, r); err != nil {
		return nil, oops.Code("JOB_FILE_STORE_FAILED").With("job", jobID).Wrap(err)
	}

	job.File = name
	job.Status = model.JobSubmitted
	if err := s.jobs.Update(ctx, job); err != nil {
		if rmErr := s.jobs.RemoveFile(ctx, job.UUID, name); rmErr != nil {
			s.logger.Warn("Failed to remove orphaned upload", "job", job.UUID, "file", name, "error", rmErr)
		}
		return nil, oops.Code("JOB_STORE_FAILED").With("job", jobID).Wrap(err)
	}

	s.logger.Info("Job submitted", "job", job.UUID, "file", name, "user", subject)
	s.publish(model.JobEventSubmitted, job, subject)
	return job, nil
}

// cleanFileName strips any directory part, "" means no usable name
func cleanFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	switch name {
	case ".", "..", "/", "job_info.json":
		return ""
	}
	return name
}

func (s *jobService) GetJob(ctx context.Context, subject, jobID string) (*model.Job, error) {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := s.requireOwnerOrAdmin(ctx, subject, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *jobService) ListMyJobs(ctx context.Context, subject string) ([]*model.Job, error) {
	if subject == "" {
		return nil, model.ErrNullUserField
	}
	return s.listJobs(ctx, func(j *model.Job) bool {
		return j.Owned(subject)
	})
}

func (s *jobService) ListJobs(ctx context.Context, subject, factoryID string) ([]*model.Job, error) {
	if err := s.authz.RequireAdmin(ctx, subject); err != nil {
		return nil, err
	}
	match, err := factoryFilter(factoryID)
	if err != nil {
		return nil, err
	}
	return s.listJobs(ctx, match)
}

func (s *jobService) MarkStatus(ctx context.Context, subject, jobID string, status model.JobStatus) (*model.Job, error) {
	if err := s.authz.RequireAdmin(ctx, subject); err != nil {
		return nil, err
	}
	if !model.IsReviewStatus(status) {
		return nil, model.ErrInvalidJobState
	}

	unlock, job, err := s.lockJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if job.Status != model.JobSubmitted && !model.IsReviewStatus(job.Status) {
		return nil, model.ErrInvalidJobState
	}

	previous := job.Status
	job.Status = status
	if err := s.jobs.Update(ctx, job); err != nil {
		return nil, oops.Code("JOB_STORE_FAILED").With("job", jobID).Wrap(err)
	}

	s.logger.Info("Job status changed", "job", job.UUID, "from", previous, "to", status, "by", subject)
	s.publish(model.JobEventStatusChanged, job, subject)
	return job, nil
}

// PurgeJobs deletes every job of factoryID in the given status and returns how many were removed
func (s *jobService) PurgeJobs(ctx context.Context, subject, factoryID string, status model.JobStatus) (int, error) {
	if err := s.authz.RequireAdmin(ctx, subject); err != nil {
		return 0, err
	}
	if !model.ValidJobStatus(status) {
		return 0, model.ErrInvalidJobState
	}
	inFactory, err := factoryFilter(factoryID)
	if err != nil {
		return 0, err
	}

	jobs, err := s.listJobs(ctx, func(j *model.Job) bool {
		return inFactory(j) && j.Status == status
	})
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, job := range jobs {
		if err := s.deleteJob(ctx, job, subject); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				continue
			}
			return purged, err
		}
		purged++
	}

	s.logger.Info("Jobs purged", "factory", factoryID, "status", status, "count", purged, "by", subject)
	return purged, nil
}

func (s *jobService) DeleteJob(ctx context.Context, subject, jobID string) error {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return err
	}
	if err := s.requireOwnerOrAdmin(ctx, subject, job); err != nil {
		return err
	}
	return s.deleteJob(ctx, job, subject)
}

func (s *jobService) deleteJob(ctx context.Context, job *model.Job, actor string) error {
	unlock := s.jobLocks.Lock(job.UUID)
	defer unlock()

	if err := s.jobs.Delete(ctx, job.UUID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return err
		}
		return oops.Code("JOB_STORE_FAILED").With("job", job.UUID).Wrap(err)
	}

	s.publish(model.JobEventDeleted, job, actor)
	return nil
}

// OpenJobFile returns the uploaded file and its name
func (s *jobService) OpenJobFile(ctx context.Context, subject, jobID string) (io.ReadCloser, string, error) {
	job, err := s.GetJob(ctx, subject, jobID)
	if err != nil {
		return nil, "", err
	}
	if job.File == "" {
		return nil, "", model.ErrNotFound
	}

	rc, err := s.jobs.OpenFile(ctx, job.UUID, job.File)
	if err != nil {
		return nil, "", err
	}
	return rc, job.File, nil
}

func (s *jobService) loadJob(ctx context.Context, jobID string) (*model.Job, error) {
	if !model.IsPrefixedID(model.JobPrefix, jobID) {
		return nil, model.ErrInvalidID
	}

	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, err
		}
		return nil, oops.Code("JOB_STORE_FAILED").With("job", jobID).Wrap(err)
	}
	return job, nil
}

// lockJob loads the job under its lock, the caller must run unlock
func (s *jobService) lockJob(ctx context.Context, jobID string) (func(), *model.Job, error) {
	if !model.IsPrefixedID(model.JobPrefix, jobID) {
		return nil, nil, model.ErrInvalidID
	}

	unlock := s.jobLocks.Lock(jobID)
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	return unlock, job, nil
}

func (s *jobService) requireOwnerOrAdmin(ctx context.Context, subject string, job *model.Job) error {
	if job.Owned(subject) {
		return nil
	}
	admin, err := s.authz.IsAdmin(ctx, subject)
	if err != nil {
		return err
	}
	if !admin {
		return model.ErrNotOwner
	}
	return nil
}

func (s *jobService) listJobs(ctx context.Context, match func(*model.Job) bool) ([]*model.Job, error) {
	all, err := s.jobs.List(ctx)
	if err != nil {
		return nil, oops.Code("JOB_STORE_FAILED").Wrap(err)
	}

	out := make([]*model.Job, 0, len(all))
	for _, job := range all {
		if match(job) {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp > out[j].Timestamp
		}
		return out[i].UUID < out[j].UUID
	})
	return out, nil
}

func factoryFilter(factoryID string) (func(*model.Job) bool, error) {
	if factoryID == model.AllJobs {
		return func(*model.Job) bool { return true }, nil
	}
	if !model.IsPrefixedID(model.FactoryPrefix, factoryID) {
		return nil, model.ErrInvalidID
	}
	return func(j *model.Job) bool { return j.FactoryUUID == factoryID }, nil
}

func (s *jobService) publish(eventType model.JobEventType, job *model.Job, actor string) {
	if s.events == nil {
		return
	}
	s.events.Publish(&model.JobEvent{
		Type:        eventType,
		JobUUID:     job.UUID,
		FactoryUUID: job.FactoryUUID,
		Status:      job.Status,
		User:        job.User,
		Actor:       actor,
		Timestamp:   s.now(),
	})
}

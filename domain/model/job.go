package model

import (
	"time"
)

type JobStatus string

const (
	JobNew         JobStatus = "new"
	JobFieldsReady JobStatus = "fields_ready"
	JobSubmitted   JobStatus = "submitted"
	JobAccepted    JobStatus = "accepted"
	JobRejected    JobStatus = "rejected"
	JobFinished    JobStatus = "finished"
)

// AllJobs selects jobs of every factory when listing or purging.
const AllJobs = "__all__"

// Job is persisted as job_info.json inside the job directory.
type Job struct {
	UUID        string            `json:"uuid"`
	FactoryUUID string            `json:"factory_uuid"`
	Status      JobStatus         `json:"status"`
	Fields      map[string]string `json:"fields,omitempty"`
	File        string            `json:"file,omitempty"`
	Timestamp   int64             `json:"__timestamp__"`
	User        string            `json:"__user__"`
}

func (j *Job) CreatedAt() time.Time {
	return time.Unix(j.Timestamp, 0)
}

// CanEditFields reports whether the owner may still change the form fields.
func (j *Job) CanEditFields() bool {
	return j.Status == JobNew || j.Status == JobFieldsReady
}

// IsReviewStatus reports whether s is a status an administrator may set.
func IsReviewStatus(s JobStatus) bool {
	switch s {
	case JobAccepted, JobRejected, JobFinished:
		return true
	}
	return false
}

type JobEventType string

const (
	JobEventCreated       JobEventType = "job_created"
	JobEventFieldsUpdated JobEventType = "job_fields_updated"
	JobEventSubmitted     JobEventType = "job_submitted"
	JobEventStatusChanged JobEventType = "job_status_changed"
	JobEventDeleted       JobEventType = "job_deleted"
)

// JobEvent is pushed to subscribed administrators.
type JobEvent struct {
	Type        JobEventType `json:"type"`
	JobUUID     string       `json:"jobUuid"`
	FactoryUUID string       `json:"factoryUuid"`
	Status      JobStatus    `json:"status"`
	User        string       `json:"user"`
	Actor       string       `json:"actor"`
	Timestamp   time.Time    `json:"timestamp"`
}

// Owned reports whether username created the job.
func (j *Job) Owned(username string) bool {
	return username != "" && j.User == username
}

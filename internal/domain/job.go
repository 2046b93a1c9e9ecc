package domain

import (
	"encoding/json"
	"time"
)

type JobKind string

const (
	JobKindTranscribeAudio JobKind = "transcribe_audio"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusDone       JobStatus = "done"
	JobStatusFailed     JobStatus = "failed"
)

// Job is the canonical async unit processed by the worker.
type Job struct {
	ID           string
	Kind         JobKind
	UserID       string
	FileID       string
	Payload      json.RawMessage
	Status       JobStatus
	Result       json.RawMessage
	ErrorCode    string
	ErrorMessage string
	Attempts     int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Terminal reports whether the job reached done or failed.
func (j *Job) Terminal() bool {
	return j.Status == JobStatusDone || j.Status == JobStatusFailed
}

// QueueMessage is the transport format sent to queue backends.
type QueueMessage struct {
	JobID       string          `json:"job_id"`
	Kind        JobKind         `json:"kind"`
	UserID      string          `json:"user_id"`
	FileID      string          `json:"file_id"`
	Payload     json.RawMessage `json:"payload"`
	Attempt     int             `json:"attempt"`
	RequestedAt time.Time       `json:"requested_at"`
}

// TranscribeAudioPayload is the payload of a JobKindTranscribeAudio job.
type TranscribeAudioPayload struct {
	AudioURL  string `json:"audio_url"`
	ObjectKey string `json:"object_key,omitempty"`
}

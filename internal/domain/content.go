package domain

import (
	"encoding/json"
	"time"
)

type FileType string

const (
	FileTypePDF     FileType = "pdf"
	FileTypeAudio   FileType = "audio"
	FileTypeYouTube FileType = "youtube"
)

func (t FileType) Valid() bool {
	switch t {
	case FileTypePDF, FileTypeAudio, FileTypeYouTube:
		return true
	default:
		return false
	}
}

// UploadedFile is a user's source document and everything derived from it.
type UploadedFile struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId"`
	Name          string          `json:"name"`
	Type          FileType        `json:"type"`
	ExtractedText string          `json:"extractedText,omitempty"`
	Summary       string          `json:"summary,omitempty"`
	Transcript    string          `json:"transcript,omitempty"`
	Quiz          json.RawMessage `json:"quiz,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// FileUpdate carries the derived fields to overwrite. Nil fields are kept.
type FileUpdate struct {
	ExtractedText *string
	Summary       *string
	Transcript    *string
	Quiz          json.RawMessage
}

type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

type ChatMessage struct {
	ID        string    `json:"id,omitempty"`
	FileID    string    `json:"fileId,omitempty"`
	UserID    string    `json:"userId,omitempty"`
	Role      ChatRole  `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

type SummarySection struct {
	Title        string   `json:"title"`
	Content      string   `json:"content"`
	BulletPoints []string `json:"bulletPoints"`
}

type Summary struct {
	Title    string           `json:"title"`
	Sections []SummarySection `json:"sections"`
}

type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple-choice"
	QuestionTrueFalse      QuestionType = "true-false"
	QuestionShortAnswer    QuestionType = "short-answer"
)

type QuizQuestion struct {
	ID            string       `json:"id"`
	Type          QuestionType `json:"type"`
	Question      string       `json:"question"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer string       `json:"correctAnswer"`
}

type QuestionResult struct {
	ID            string `json:"id"`
	Answer        string `json:"answer"`
	CorrectAnswer string `json:"correctAnswer"`
	Correct       bool   `json:"correct"`
}

type QuizResult struct {
	Score   int              `json:"score"`
	Total   int              `json:"total"`
	Results []QuestionResult `json:"results"`
}

type TranscriptStatus string

const (
	TranscriptQueued     TranscriptStatus = "queued"
	TranscriptProcessing TranscriptStatus = "processing"
	TranscriptCompleted  TranscriptStatus = "completed"
	TranscriptError      TranscriptStatus = "error"
)

type TranscriptWord struct {
	Text       string  `json:"text"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
}

// Transcript is the completed output of an audio transcription job.
type Transcript struct {
	ProviderJobID string           `json:"providerJobId"`
	Text          string           `json:"transcript"`
	Words         []TranscriptWord `json:"words"`
	Duration      float64          `json:"duration"`
	Polls         int              `json:"polls"`
}

type CaptionSegment struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

type VideoTranscript struct {
	VideoID    string           `json:"videoId"`
	Transcript string           `json:"transcript"`
	Segments   []CaptionSegment `json:"segments"`
}

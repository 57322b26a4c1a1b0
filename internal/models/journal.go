package models

import "time"

// Attachment kinds stored in the attachment_type column.
const (
	AttachmentImage = "image"
	AttachmentVideo = "video"
	AttachmentURL   = "url"
	AttachmentPDF   = "pdf"
)

// Journal is a dated entry authored by a teacher, optionally carrying an attachment.
type Journal struct {
	ID             int       `json:"id"`
	Description    string    `json:"description"`
	PublishedAt    time.Time `json:"published_at"`
	AttachmentType *string   `json:"attachment_type,omitempty"`
	AttachmentURL  *string   `json:"attachment_url,omitempty"`
	TeacherID      int       `json:"teacher_id"`
}

// Tag links one journal to one student, meaning the journal is visible to that student.
type Tag struct {
	ID        int `json:"id"`
	StudentID int `json:"student_id"`
	JournalID int `json:"journal_id"`
}

// JournalResult is the envelope every journal operation resolves with.
// Business failures come back as Success=false with a message instead of an error.
type JournalResult struct {
	Success        bool       `json:"success"`
	Message        string     `json:"message"`
	ID             int        `json:"id,omitempty"`
	Description    string     `json:"description,omitempty"`
	StudentsTagged []int      `json:"studentsTagged,omitempty"`
	PublishedAt    *time.Time `json:"publishedAt,omitempty"`
	AttachmentType *string    `json:"attachmentType,omitempty"`
	AttachmentURL  *string    `json:"attachmentUrl,omitempty"`
}

// Failure builds a failed JournalResult with the given message.
func Failure(message string) JournalResult {
	return JournalResult{Success: false, Message: message}
}

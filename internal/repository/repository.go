package repository

import (
	"context"
	"errors"

	"github.com/devikshitij/classjournal-backend/internal/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrTagInsert marks a failure in the tag stage of a journal creation so
// callers can report it distinctly from a failed journal insert.
var ErrTagInsert = errors.New("tag insert failed")

// Store is the data-access surface the resolvers run against.
type Store interface {
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetJournalByID(ctx context.Context, id int) (*models.Journal, error)
	ListJournalsByTeacher(ctx context.Context, teacherID int) ([]models.Journal, error)

	// ListTagsByJournal returns the student ids tagged on a journal.
	ListTagsByJournal(ctx context.Context, journalID int) ([]int, error)
	ListTagsByStudent(ctx context.Context, studentID int) ([]models.Tag, error)

	// CreateJournalWithTags inserts the journal and its tags in one
	// transaction and returns the generated journal id. A failed tag
	// insert rolls the journal back too.
	CreateJournalWithTags(ctx context.Context, journal models.Journal, studentIDs []int) (int, error)

	// UpdateJournal writes all journal fields and reports rows affected.
	UpdateJournal(ctx context.Context, journal models.Journal) (int64, error)

	// ReplaceTags deletes every tag on the journal and inserts the new
	// set, transactionally. Replace semantics, not a diff.
	ReplaceTags(ctx context.Context, journalID int, studentIDs []int) error

	// DeleteJournal removes the journal's tags then the journal itself,
	// returning the number of journal rows removed.
	DeleteJournal(ctx context.Context, journalID int) (int64, error)
}

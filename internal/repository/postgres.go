package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/devikshitij/classjournal-backend/internal/models"
)

// PostgresStore implements Store over database/sql with the lib/pq driver.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password, user_type FROM users WHERE username = $1
	`, username).Scan(&u.ID, &u.Username, &u.Password, &u.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) GetJournalByID(ctx context.Context, id int) (*models.Journal, error) {
	var j models.Journal
	err := s.db.QueryRowContext(ctx, `
		SELECT id, description, published_at, attachment_type, attachment_url, teacher_id
		FROM journals WHERE id = $1
	`, id).Scan(&j.ID, &j.Description, &j.PublishedAt, &j.AttachmentType, &j.AttachmentURL, &j.TeacherID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get journal by id: %w", err)
	}
	return &j, nil
}

func (s *PostgresStore) ListJournalsByTeacher(ctx context.Context, teacherID int) ([]models.Journal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, description, published_at, attachment_type, attachment_url, teacher_id
		FROM journals WHERE teacher_id = $1
	`, teacherID)
	if err != nil {
		return nil, fmt.Errorf("list journals by teacher: %w", err)
	}
	defer rows.Close()

	var journals []models.Journal
	for rows.Next() {
		var j models.Journal
		if err := rows.Scan(&j.ID, &j.Description, &j.PublishedAt, &j.AttachmentType, &j.AttachmentURL, &j.TeacherID); err != nil {
			return nil, fmt.Errorf("scan journal: %w", err)
		}
		journals = append(journals, j)
	}
	return journals, rows.Err()
}

func (s *PostgresStore) ListTagsByJournal(ctx context.Context, journalID int) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT student_id FROM tags WHERE journal_id = $1
	`, journalID)
	if err != nil {
		return nil, fmt.Errorf("list tags by journal: %w", err)
	}
	defer rows.Close()

	var studentIDs []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		studentIDs = append(studentIDs, id)
	}
	return studentIDs, rows.Err()
}

func (s *PostgresStore) ListTagsByStudent(ctx context.Context, studentID int) ([]models.Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, student_id, journal_id FROM tags WHERE student_id = $1
	`, studentID)
	if err != nil {
		return nil, fmt.Errorf("list tags by student: %w", err)
	}
	defer rows.Close()

	var tags []models.Tag
	for rows.Next() {
		var t models.Tag
		if err := rows.Scan(&t.ID, &t.StudentID, &t.JournalID); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

func (s *PostgresStore) CreateJournalWithTags(ctx context.Context, journal models.Journal, studentIDs []int) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin create journal: %w", err)
	}
	defer tx.Rollback()

	var id int
	err = tx.QueryRowContext(ctx, `
		INSERT INTO journals (description, published_at, attachment_type, attachment_url, teacher_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, journal.Description, journal.PublishedAt, journal.AttachmentType, journal.AttachmentURL, journal.TeacherID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert journal: %w", err)
	}

	if len(studentIDs) > 0 {
		query, args := tagInsertQuery(id, studentIDs)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrTagInsert, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit create journal: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) UpdateJournal(ctx context.Context, journal models.Journal) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE journals
		SET description = $1, published_at = $2, attachment_type = $3, attachment_url = $4, teacher_id = $5
		WHERE id = $6
	`, journal.Description, journal.PublishedAt, journal.AttachmentType, journal.AttachmentURL, journal.TeacherID, journal.ID)
	if err != nil {
		return 0, fmt.Errorf("update journal: %w", err)
	}
	return res.RowsAffected()
}

func (s *PostgresStore) ReplaceTags(ctx context.Context, journalID int, studentIDs []int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace tags: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tags WHERE journal_id = $1`, journalID); err != nil {
		return fmt.Errorf("delete tags: %w", err)
	}

	if len(studentIDs) > 0 {
		query, args := tagInsertQuery(journalID, studentIDs)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert tags: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace tags: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteJournal(ctx context.Context, journalID int) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin delete journal: %w", err)
	}
	defer tx.Rollback()

	// Tags go first to respect the foreign key.
	if _, err := tx.ExecContext(ctx, `DELETE FROM tags WHERE journal_id = $1`, journalID); err != nil {
		return 0, fmt.Errorf("delete tags: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM journals WHERE id = $1`, journalID)
	if err != nil {
		return 0, fmt.Errorf("delete journal: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete journal: %w", err)
	}
	return affected, nil
}

// tagInsertQuery builds a parameterized multi-row insert for the tag set of
// one journal, e.g. INSERT INTO tags ... VALUES ($1, $2), ($3, $4).
func tagInsertQuery(journalID int, studentIDs []int) (string, []interface{}) {
	values := make([]string, 0, len(studentIDs))
	args := make([]interface{}, 0, len(studentIDs)*2)
	for i, studentID := range studentIDs {
		values = append(values, fmt.Sprintf("($%d, $%d)", i*2+1, i*2+2))
		args = append(args, studentID, journalID)
	}
	query := "INSERT INTO tags (student_id, journal_id) VALUES " + strings.Join(values, ", ")
	return query, args
}

package services

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/devikshitij/classjournal-backend/internal/models"
	"github.com/devikshitij/classjournal-backend/internal/repository"
	"github.com/devikshitij/classjournal-backend/pkg/utils"
)

// ErrInvalidCredentials is returned by Login when the username/password pair
// does not match a stored user.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Uploader streams an attachment to the media host and returns a stable URL.
type Uploader interface {
	UploadFromHeader(ctx context.Context, fileHeader *multipart.FileHeader) (string, error)
}

// CreateJournalInput carries the createJournal arguments.
type CreateJournalInput struct {
	Description    string
	PublishedAt    time.Time
	AttachmentType *string
	AttachmentFile *multipart.FileHeader
	StudentsTagged []int
}

// UpdateJournalInput carries the updateJournal arguments. Nil fields retain
// the stored value; a nil StudentsTagged leaves the existing tags alone.
type UpdateJournalInput struct {
	JournalID      int
	Description    *string
	PublishedAt    *time.Time
	AttachmentType *string
	AttachmentURL  *string
	TeacherID      *int
	StudentsTagged []int
	ReplaceTags    bool
}

// JournalService implements the resolver layer: authorization checks, CRUD,
// and tag fan-out on top of the store and the media host.
type JournalService struct {
	store  repository.Store
	tokens *TokenService
	media  Uploader // nil when the media host is not configured

	now func() time.Time
}

func NewJournalService(store repository.Store, tokens *TokenService, media Uploader) *JournalService {
	return &JournalService{
		store:  store,
		tokens: tokens,
		media:  media,
		now:    time.Now,
	}
}

// Login authenticates a username/password pair against the stored hash and
// mints a bearer token for it.
func (s *JournalService) Login(ctx context.Context, username, password string) (*models.AuthPayload, error) {
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("login lookup: %w", err)
	}

	ok, err := utils.VerifyPassword(password, user.Password)
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Sign(user.Username)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &models.AuthPayload{Username: user.Username, Token: token}, nil
}

// ListJournals returns the journal set visible to the verified caller.
// Teachers see every journal they own, each with its tagged student ids.
// Students see only journals tagged to them whose publish time has passed.
func (s *JournalService) ListJournals(ctx context.Context, v Verification) ([]models.JournalResult, error) {
	if fail, ok := checkVerification(v); !ok {
		return []models.JournalResult{fail}, nil
	}

	user, err := s.store.GetUserByUsername(ctx, v.Username)
	if errors.Is(err, repository.ErrNotFound) {
		return []models.JournalResult{models.Failure("User not found")}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if user.Role == models.RoleTeacher {
		return s.listTeacherJournals(ctx, user.ID)
	}
	return s.listStudentJournals(ctx, user.ID)
}

func (s *JournalService) listTeacherJournals(ctx context.Context, teacherID int) ([]models.JournalResult, error) {
	journals, err := s.store.ListJournalsByTeacher(ctx, teacherID)
	if err != nil {
		return nil, err
	}

	results := make([]models.JournalResult, len(journals))
	g, gctx := errgroup.WithContext(ctx)
	for i, journal := range journals {
		i, journal := i, journal
		g.Go(func() error {
			studentIDs, err := s.store.ListTagsByJournal(gctx, journal.ID)
			if err != nil {
				return err
			}
			results[i] = journalView(journal)
			results[i].StudentsTagged = studentIDs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *JournalService) listStudentJournals(ctx context.Context, studentID int) ([]models.JournalResult, error) {
	tags, err := s.store.ListTagsByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	fetched := make([]*models.JournalResult, len(tags))
	g, gctx := errgroup.WithContext(ctx)
	for i, tag := range tags {
		i, tag := i, tag
		g.Go(func() error {
			journal, err := s.store.GetJournalByID(gctx, tag.JournalID)
			if err != nil {
				return err
			}
			// Future-dated journals stay invisible even though tagged.
			if journal.PublishedAt.After(now) {
				return nil
			}
			view := journalView(*journal)
			fetched[i] = &view
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make([]models.JournalResult, 0, len(fetched))
	for _, r := range fetched {
		if r != nil {
			results = append(results, *r)
		}
	}
	return results, nil
}

// CreateJournal uploads the attachment if present, then inserts the journal
// row and its tags in one transaction. The creating user becomes the owner.
func (s *JournalService) CreateJournal(ctx context.Context, v Verification, input CreateJournalInput) (models.JournalResult, error) {
	if fail, ok := checkVerification(v); !ok {
		return fail, nil
	}

	var attachmentURL *string
	if input.AttachmentFile != nil {
		if s.media == nil {
			return models.Failure("File uploads are not available"), nil
		}
		url, err := s.media.UploadFromHeader(ctx, input.AttachmentFile)
		if err != nil {
			return models.JournalResult{}, fmt.Errorf("upload attachment: %w", err)
		}
		attachmentURL = &url
	}

	user, err := s.store.GetUserByUsername(ctx, v.Username)
	if errors.Is(err, repository.ErrNotFound) {
		return models.Failure("User not found"), nil
	}
	if err != nil {
		return models.Failure("Invalid token"), nil
	}

	journal := models.Journal{
		Description:    input.Description,
		PublishedAt:    input.PublishedAt,
		AttachmentType: input.AttachmentType,
		AttachmentURL:  attachmentURL,
		TeacherID:      user.ID,
	}
	id, err := s.store.CreateJournalWithTags(ctx, journal, input.StudentsTagged)
	if errors.Is(err, repository.ErrTagInsert) {
		return models.Failure("Due to some error in tags data cannot be inserted"), nil
	}
	if err != nil {
		return models.JournalResult{}, fmt.Errorf("create journal: %w", err)
	}

	publishedAt := input.PublishedAt
	return models.JournalResult{
		Success:        true,
		Message:        "Journal created successfully",
		ID:             id,
		Description:    input.Description,
		StudentsTagged: input.StudentsTagged,
		PublishedAt:    &publishedAt,
		AttachmentType: input.AttachmentType,
		AttachmentURL:  attachmentURL,
	}, nil
}

// DeleteJournal removes a journal and its tags after an ownership check.
func (s *JournalService) DeleteJournal(ctx context.Context, v Verification, journalID int) (models.JournalResult, error) {
	if fail, ok := checkVerification(v); !ok {
		return fail, nil
	}

	user, err := s.store.GetUserByUsername(ctx, v.Username)
	if errors.Is(err, repository.ErrNotFound) {
		return models.Failure("User not found"), nil
	}
	if err != nil {
		return models.Failure("Invalid token"), nil
	}

	journal, err := s.store.GetJournalByID(ctx, journalID)
	if errors.Is(err, repository.ErrNotFound) {
		return models.Failure("No journal exists with specified id"), nil
	}
	if err != nil {
		return models.JournalResult{}, fmt.Errorf("fetch journal: %w", err)
	}

	if journal.TeacherID != user.ID {
		return models.Failure("You do not have permission to delete the journal"), nil
	}

	affected, err := s.store.DeleteJournal(ctx, journal.ID)
	if err != nil {
		return models.JournalResult{}, fmt.Errorf("delete journal: %w", err)
	}
	if affected == 0 {
		// Lost a race with a concurrent delete; still reported as success.
		return models.JournalResult{Success: true, Message: "No journal exists with specified id", ID: journalID}, nil
	}
	return models.JournalResult{Success: true, Message: "Journal deleted successfully", ID: journalID}, nil
}

// UpdateJournal coalesces the supplied fields over the stored ones, writes
// the row, and replaces the tag set when one was supplied.
func (s *JournalService) UpdateJournal(ctx context.Context, v Verification, input UpdateJournalInput) (models.JournalResult, error) {
	if fail, ok := checkVerification(v); !ok {
		return fail, nil
	}

	user, err := s.store.GetUserByUsername(ctx, v.Username)
	if errors.Is(err, repository.ErrNotFound) {
		return models.Failure("User not found"), nil
	}
	if err != nil {
		return models.Failure("Invalid token"), nil
	}

	journal, err := s.store.GetJournalByID(ctx, input.JournalID)
	if errors.Is(err, repository.ErrNotFound) {
		return models.Failure("No journal exists with specified id"), nil
	}
	if err != nil {
		return models.JournalResult{}, fmt.Errorf("fetch journal: %w", err)
	}

	if journal.TeacherID != user.ID {
		return models.Failure("You do not have permission to update the journal"), nil
	}

	// Supplied argument wins, stored value otherwise.
	updated := *journal
	if input.Description != nil {
		updated.Description = *input.Description
	}
	if input.PublishedAt != nil {
		updated.PublishedAt = *input.PublishedAt
	}
	if input.AttachmentType != nil {
		updated.AttachmentType = input.AttachmentType
	}
	if input.AttachmentURL != nil {
		updated.AttachmentURL = input.AttachmentURL
	}
	if input.TeacherID != nil {
		updated.TeacherID = *input.TeacherID
	}

	affected, err := s.store.UpdateJournal(ctx, updated)
	if err != nil {
		return models.JournalResult{}, fmt.Errorf("update journal: %w", err)
	}

	result := journalView(updated)
	if affected > 0 && input.ReplaceTags {
		if err := s.store.ReplaceTags(ctx, updated.ID, input.StudentsTagged); err != nil {
			return models.JournalResult{}, fmt.Errorf("replace tags: %w", err)
		}
		result.Message = "Journal updated successfully"
		result.StudentsTagged = input.StudentsTagged
		return result, nil
	}

	result.Message = "Journal updated, existing tags left unchanged"
	return result, nil
}

// checkVerification gates every protected resolver: a failed verification or
// one without an expiry is propagated as a structured failure.
func checkVerification(v Verification) (models.JournalResult, bool) {
	if !v.Success || v.ExpiresAt == nil {
		message := v.Message
		if message == "" {
			message = "Token is invalid"
		}
		return models.Failure(message), false
	}
	return models.JournalResult{}, true
}

func journalView(j models.Journal) models.JournalResult {
	publishedAt := j.PublishedAt
	return models.JournalResult{
		Success:        true,
		Message:        "fetched successfully",
		ID:             j.ID,
		Description:    j.Description,
		PublishedAt:    &publishedAt,
		AttachmentType: j.AttachmentType,
		AttachmentURL:  j.AttachmentURL,
	}
}

package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devikshitij/classjournal-backend/internal/models"
	"github.com/devikshitij/classjournal-backend/internal/repository"
	"github.com/devikshitij/classjournal-backend/pkg/utils"
)

// fakeStore is an in-memory Store used by the resolver tests. It records
// which methods were called so tests can assert that short-circuit paths
// never touch the database.
type fakeStore struct {
	mu            sync.Mutex
	users         map[string]*models.User
	journals      map[int]*models.Journal
	tagsByJournal map[int][]int
	nextJournalID int
	nextTagID     int

	failTagInsert bool
	calls         []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:         map[string]*models.User{},
		journals:      map[int]*models.Journal{},
		tagsByJournal: map[int][]int{},
		nextJournalID: 1,
		nextTagID:     1,
	}
}

func (f *fakeStore) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeStore) addUser(id int, username, role string) *models.User {
	u := &models.User{ID: id, Username: username, Role: role}
	f.users[username] = u
	return u
}

func (f *fakeStore) addJournal(teacherID int, description string, publishedAt time.Time, studentIDs []int) int {
	id := f.nextJournalID
	f.nextJournalID++
	f.journals[id] = &models.Journal{
		ID:          id,
		Description: description,
		PublishedAt: publishedAt,
		TeacherID:   teacherID,
	}
	f.tagsByJournal[id] = append([]int(nil), studentIDs...)
	return id
}

func (f *fakeStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	f.record("GetUserByUsername")
	if u, ok := f.users[username]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStore) GetJournalByID(ctx context.Context, id int) (*models.Journal, error) {
	f.record("GetJournalByID")
	f.mu.Lock()
	defer f.mu.Unlock()
	if j, ok := f.journals[id]; ok {
		copied := *j
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStore) ListJournalsByTeacher(ctx context.Context, teacherID int) ([]models.Journal, error) {
	f.record("ListJournalsByTeacher")
	var out []models.Journal
	for id := 1; id < f.nextJournalID; id++ {
		if j, ok := f.journals[id]; ok && j.TeacherID == teacherID {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (f *fakeStore) ListTagsByJournal(ctx context.Context, journalID int) ([]int, error) {
	f.record("ListTagsByJournal")
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.tagsByJournal[journalID]...), nil
}

func (f *fakeStore) ListTagsByStudent(ctx context.Context, studentID int) ([]models.Tag, error) {
	f.record("ListTagsByStudent")
	var out []models.Tag
	for id := 1; id < f.nextJournalID; id++ {
		for _, sid := range f.tagsByJournal[id] {
			if sid == studentID {
				f.nextTagID++
				out = append(out, models.Tag{ID: f.nextTagID, StudentID: sid, JournalID: id})
			}
		}
	}
	return out, nil
}

func (f *fakeStore) CreateJournalWithTags(ctx context.Context, journal models.Journal, studentIDs []int) (int, error) {
	f.record("CreateJournalWithTags")
	if f.failTagInsert {
		// Mirrors the transactional contract: nothing is left behind.
		return 0, fmt.Errorf("%w: forced", repository.ErrTagInsert)
	}
	id := f.nextJournalID
	f.nextJournalID++
	journal.ID = id
	f.journals[id] = &journal
	f.tagsByJournal[id] = append([]int(nil), studentIDs...)
	return id, nil
}

func (f *fakeStore) UpdateJournal(ctx context.Context, journal models.Journal) (int64, error) {
	f.record("UpdateJournal")
	if _, ok := f.journals[journal.ID]; !ok {
		return 0, nil
	}
	f.journals[journal.ID] = &journal
	return 1, nil
}

func (f *fakeStore) ReplaceTags(ctx context.Context, journalID int, studentIDs []int) error {
	f.record("ReplaceTags")
	f.tagsByJournal[journalID] = append([]int(nil), studentIDs...)
	return nil
}

func (f *fakeStore) DeleteJournal(ctx context.Context, journalID int) (int64, error) {
	f.record("DeleteJournal")
	if _, ok := f.journals[journalID]; !ok {
		return 0, nil
	}
	delete(f.journals, journalID)
	delete(f.tagsByJournal, journalID)
	return 1, nil
}

func (f *fakeStore) called(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == name {
			return true
		}
	}
	return false
}

func newTestService(store *fakeStore) *JournalService {
	return NewJournalService(store, NewTokenService("test-secret"), nil)
}

func verified(username string) Verification {
	expiry := time.Now().Add(time.Hour)
	return Verification{Success: true, Username: username, ExpiresAt: &expiry}
}

func TestListJournalsTeacherSeesOwnJournalsWithTags(t *testing.T) {
	store := newFakeStore()
	store.addUser(1, "student1", models.RoleStudent)
	store.addUser(2, "student2", models.RoleStudent)
	store.addUser(4, "teacher1", models.RoleTeacher)
	store.addUser(5, "teacher2", models.RoleTeacher)

	past := time.Now().Add(-time.Hour)
	first := store.addJournal(4, "algebra homework", past, []int{1, 2})
	second := store.addJournal(4, "field trip notes", past, []int{2})
	store.addJournal(5, "someone else's journal", past, []int{1})

	svc := newTestService(store)
	results, err := svc.ListJournals(context.Background(), verified("teacher1"))
	require.NoError(t, err)
	require.Len(t, results, 2)

	byID := map[int]models.JournalResult{}
	for _, r := range results {
		assert.True(t, r.Success)
		assert.Equal(t, "fetched successfully", r.Message)
		byID[r.ID] = r
	}
	assert.ElementsMatch(t, []int{1, 2}, byID[first].StudentsTagged)
	assert.ElementsMatch(t, []int{2}, byID[second].StudentsTagged)
}

func TestListJournalsStudentFiltersFutureDated(t *testing.T) {
	store := newFakeStore()
	store.addUser(1, "student1", models.RoleStudent)
	store.addUser(4, "teacher1", models.RoleTeacher)

	visible := store.addJournal(4, "published entry", time.Now().Add(-time.Minute), []int{1})
	store.addJournal(4, "scheduled entry", time.Now().Add(24*time.Hour), []int{1})

	svc := newTestService(store)
	results, err := svc.ListJournals(context.Background(), verified("student1"))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, visible, results[0].ID)
	assert.Equal(t, "published entry", results[0].Description)
}

func TestListJournalsStudentWithNoVisibleJournals(t *testing.T) {
	store := newFakeStore()
	store.addUser(1, "student1", models.RoleStudent)
	store.addUser(4, "teacher1", models.RoleTeacher)
	store.addJournal(4, "scheduled entry", time.Now().Add(time.Hour), []int{1})

	svc := newTestService(store)
	results, err := svc.ListJournals(context.Background(), verified("student1"))
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestListJournalsUserNotFound(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	results, err := svc.ListJournals(context.Background(), verified("ghost"))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, "User not found", results[0].Message)
}

func TestListJournalsRejectsFailedVerification(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	results, err := svc.ListJournals(context.Background(), Verification{Success: false, Message: "Token is invalid"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, "Token is invalid", results[0].Message)
	assert.Empty(t, store.calls, "a failed verification must not reach the store")
}

func TestListJournalsRejectsClaimWithoutExpiry(t *testing.T) {
	store := newFakeStore()
	store.addUser(4, "teacher1", models.RoleTeacher)
	svc := newTestService(store)

	results, err := svc.ListJournals(context.Background(), Verification{Success: true, Username: "teacher1"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Empty(t, store.calls)
}

func TestCreateJournalRoundTrip(t *testing.T) {
	store := newFakeStore()
	store.addUser(1, "student1", models.RoleStudent)
	store.addUser(4, "teacher1", models.RoleTeacher)

	svc := newTestService(store)
	publishedAt := time.Now().Add(-time.Minute).Truncate(time.Second)
	result, err := svc.CreateJournal(context.Background(), verified("teacher1"), CreateJournalInput{
		Description:    "new entry",
		PublishedAt:    publishedAt,
		StudentsTagged: []int{1},
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "Journal created successfully", result.Message)
	assert.Equal(t, []int{1}, result.StudentsTagged)

	// The owning teacher sees it.
	teacherView, err := svc.ListJournals(context.Background(), verified("teacher1"))
	require.NoError(t, err)
	require.Len(t, teacherView, 1)
	assert.Equal(t, result.ID, teacherView[0].ID)
	assert.Equal(t, "new entry", teacherView[0].Description)
	assert.ElementsMatch(t, []int{1}, teacherView[0].StudentsTagged)

	// The tagged student sees it too.
	studentView, err := svc.ListJournals(context.Background(), verified("student1"))
	require.NoError(t, err)
	require.Len(t, studentView, 1)
	assert.Equal(t, result.ID, studentView[0].ID)
}

func TestCreateJournalTagInsertFailureLeavesNoJournal(t *testing.T) {
	store := newFakeStore()
	store.addUser(4, "teacher1", models.RoleTeacher)
	store.failTagInsert = true

	svc := newTestService(store)
	result, err := svc.CreateJournal(context.Background(), verified("teacher1"), CreateJournalInput{
		Description:    "doomed entry",
		PublishedAt:    time.Now(),
		StudentsTagged: []int{999},
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "Due to some error in tags data cannot be inserted", result.Message)

	_, err = store.GetJournalByID(context.Background(), 1)
	assert.True(t, errors.Is(err, repository.ErrNotFound), "no journal row may survive a failed tag insert")
}

func TestDeleteJournalPermissionDenied(t *testing.T) {
	store := newFakeStore()
	store.addUser(4, "teacher1", models.RoleTeacher)
	store.addUser(5, "teacher2", models.RoleTeacher)
	id := store.addJournal(4, "teacher1's entry", time.Now(), []int{1})

	svc := newTestService(store)
	result, err := svc.DeleteJournal(context.Background(), verified("teacher2"), id)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "You do not have permission to delete the journal", result.Message)

	// Journal and tags are untouched.
	journal, err := store.GetJournalByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "teacher1's entry", journal.Description)
	tags, err := store.ListTagsByJournal(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, tags)
}

func TestDeleteJournalByOwner(t *testing.T) {
	store := newFakeStore()
	store.addUser(4, "teacher1", models.RoleTeacher)
	id := store.addJournal(4, "to be removed", time.Now(), []int{1})

	svc := newTestService(store)
	result, err := svc.DeleteJournal(context.Background(), verified("teacher1"), id)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "Journal deleted successfully", result.Message)

	_, err = store.GetJournalByID(context.Background(), id)
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestDeleteJournalMissing(t *testing.T) {
	store := newFakeStore()
	store.addUser(4, "teacher1", models.RoleTeacher)

	svc := newTestService(store)
	result, err := svc.DeleteJournal(context.Background(), verified("teacher1"), 404)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "No journal exists with specified id", result.Message)
}

func TestUpdateJournalPartialRetainsOtherFields(t *testing.T) {
	store := newFakeStore()
	store.addUser(4, "teacher1", models.RoleTeacher)
	publishedAt := time.Now().Add(-time.Hour).Truncate(time.Second)
	id := store.addJournal(4, "original text", publishedAt, []int{1, 2})
	kind := models.AttachmentImage
	url := "https://res.cloudinary.com/demo/image.png"
	store.journals[id].AttachmentType = &kind
	store.journals[id].AttachmentURL = &url

	svc := newTestService(store)
	newDescription := "revised text"
	result, err := svc.UpdateJournal(context.Background(), verified("teacher1"), UpdateJournalInput{
		JournalID:   id,
		Description: &newDescription,
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "Journal updated, existing tags left unchanged", result.Message)

	journal, err := store.GetJournalByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "revised text", journal.Description)
	assert.Equal(t, publishedAt, journal.PublishedAt)
	require.NotNil(t, journal.AttachmentType)
	assert.Equal(t, kind, *journal.AttachmentType)
	require.NotNil(t, journal.AttachmentURL)
	assert.Equal(t, url, *journal.AttachmentURL)

	// Tags were not replaced.
	assert.False(t, store.called("ReplaceTags"))
	tags, err := store.ListTagsByJournal(context.Background(), id)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 2}, tags)
}

func TestUpdateJournalReplacesTagsWhenSupplied(t *testing.T) {
	store := newFakeStore()
	store.addUser(4, "teacher1", models.RoleTeacher)
	id := store.addJournal(4, "entry", time.Now(), []int{1, 2})

	svc := newTestService(store)
	result, err := svc.UpdateJournal(context.Background(), verified("teacher1"), UpdateJournalInput{
		JournalID:      id,
		StudentsTagged: []int{3},
		ReplaceTags:    true,
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "Journal updated successfully", result.Message)
	assert.Equal(t, []int{3}, result.StudentsTagged)

	tags, err := store.ListTagsByJournal(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, tags)
}

func TestUpdateJournalPermissionDenied(t *testing.T) {
	store := newFakeStore()
	store.addUser(4, "teacher1", models.RoleTeacher)
	store.addUser(5, "teacher2", models.RoleTeacher)
	id := store.addJournal(4, "entry", time.Now(), nil)

	svc := newTestService(store)
	newDescription := "hijacked"
	result, err := svc.UpdateJournal(context.Background(), verified("teacher2"), UpdateJournalInput{
		JournalID:   id,
		Description: &newDescription,
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "You do not have permission to update the journal", result.Message)

	journal, err := store.GetJournalByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "entry", journal.Description)
}

func TestLogin(t *testing.T) {
	store := newFakeStore()
	hash, err := utils.HashPassword("password4")
	require.NoError(t, err)
	teacher := store.addUser(4, "teacher1", models.RoleTeacher)
	teacher.Password = hash

	svc := newTestService(store)

	payload, err := svc.Login(context.Background(), "teacher1", "password4")
	require.NoError(t, err)
	assert.Equal(t, "teacher1", payload.Username)
	assert.NotEmpty(t, payload.Token)

	// The minted token verifies.
	v := NewTokenService("test-secret").Verify("Bearer " + payload.Token)
	assert.True(t, v.Success)
	assert.Equal(t, "teacher1", v.Username)

	_, err = svc.Login(context.Background(), "teacher1", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), "nobody", "password4")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

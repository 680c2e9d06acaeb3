package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/course-feedback-api/internal/models"
	"github.com/noah-isme/course-feedback-api/internal/repository"
	appErrors "github.com/noah-isme/course-feedback-api/pkg/errors"
	"github.com/noah-isme/course-feedback-api/pkg/jobs"
	"github.com/noah-isme/course-feedback-api/pkg/storage"
)

// memDB is a tiny in-memory stand-in for PostgreSQL and Redis shared by the fakes below.
type memDB struct {
	mu        sync.Mutex
	seq       int64
	clock     time.Time
	users     map[int64]*models.User
	students  map[int64]*models.Student
	lecturers map[int64]*models.Lecturer
	courses   map[int64]*models.Course
	messages  map[int64]*models.Message
	comments  []models.Comment
	refresh   map[string]*models.RefreshToken
	audit     []*models.AuditLog
	sessions  map[string]*models.Session
	attempts  map[string]int
	grants    map[string]map[int64]bool
}

func newMemDB() *memDB {
	return &memDB{
		clock:     time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		users:     map[int64]*models.User{},
		students:  map[int64]*models.Student{},
		lecturers: map[int64]*models.Lecturer{},
		courses:   map[int64]*models.Course{},
		messages:  map[int64]*models.Message{},
		refresh:   map[string]*models.RefreshToken{},
		sessions:  map[string]*models.Session{},
		attempts:  map[string]int{},
		grants:    map[string]map[int64]bool{},
	}
}

func (db *memDB) nextID() int64 {
	db.seq++
	return db.seq
}

func (db *memDB) tick() time.Time {
	db.clock = db.clock.Add(time.Second)
	return db.clock
}

type fakeUsers struct{ db *memDB }

func (f fakeUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, u := range f.db.users {
		if u.Email == strings.ToLower(email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f fakeUsers) FindByID(ctx context.Context, id int64) (*models.User, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	u, ok := f.db.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *u
	return &cp, nil
}

func (f fakeUsers) CreateWithProfile(ctx context.Context, user *models.User, student *models.Student, lecturer *models.Lecturer) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	user.Email = strings.ToLower(user.Email)
	for _, u := range f.db.users {
		if u.Email == user.Email {
			return &repository.ConstraintError{Constraint: "users_email_key", Kind: repository.ErrDuplicate, Err: fmt.Errorf("duplicate")}
		}
	}
	user.ID = f.db.nextID()
	user.CreatedAt = f.db.tick()
	cp := *user
	f.db.users[user.ID] = &cp
	if student != nil {
		student.UserID = user.ID
		s := *student
		f.db.students[user.ID] = &s
	}
	if lecturer != nil {
		lecturer.UserID = user.ID
		l := *lecturer
		f.db.lecturers[user.ID] = &l
	}
	return nil
}

func (f fakeUsers) UpdateLastLogin(ctx context.Context, id int64, ts time.Time) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if u, ok := f.db.users[id]; ok {
		u.LastLogin = &ts
	}
	return nil
}

func (f fakeUsers) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	cp := *token
	f.db.refresh[token.Token] = &cp
	return nil
}

func (f fakeUsers) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	rt, ok := f.db.refresh[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *rt
	return &cp, nil
}

func (f fakeUsers) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, rt := range f.db.refresh {
		if rt.ID == id && !rt.Revoked {
			rt.Revoked = true
			rt.RevokedAt = &revokedAt
			return true, nil
		}
	}
	return false, nil
}

func (f fakeUsers) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.audit = append(f.db.audit, log)
	return nil
}

func (f fakeUsers) FindStudent(ctx context.Context, userID int64) (*models.Student, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	s, ok := f.db.students[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *s
	return &cp, nil
}

func (f fakeUsers) FindLecturer(ctx context.Context, userID int64) (*models.Lecturer, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	l, ok := f.db.lecturers[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *l
	return &cp, nil
}

func (f fakeUsers) UpdateLecturerImage(ctx context.Context, userID int64, key string) (*string, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	l, ok := f.db.lecturers[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	prev := l.ProfileImageKey
	l.ProfileImageKey = &key
	return prev, nil
}

func (f fakeUsers) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.User
	for _, u := range f.db.users {
		if filter.Role == nil || u.Role == *filter.Role {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (f fakeUsers) ListAuditLogs(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	out := make([]models.AuditLog, 0, len(f.db.audit))
	for i := len(f.db.audit) - 1; i >= 0; i-- {
		out = append(out, *f.db.audit[i])
	}
	return out, len(out), nil
}

type fakeCourses struct{ db *memDB }

func (f fakeCourses) Create(ctx context.Context, course *models.Course) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, c := range f.db.courses {
		if c.Code == course.Code {
			return &repository.ConstraintError{Constraint: repository.ConstraintCourseCode, Kind: repository.ErrDuplicate, Err: fmt.Errorf("duplicate")}
		}
		if c.PinCode == course.PinCode {
			return &repository.ConstraintError{Constraint: repository.ConstraintCoursePin, Kind: repository.ErrDuplicate, Err: fmt.Errorf("duplicate")}
		}
	}
	course.ID = f.db.nextID()
	course.CreatedAt = f.db.tick()
	cp := *course
	f.db.courses[course.ID] = &cp
	return nil
}

func (f fakeCourses) FindByID(ctx context.Context, id int64) (*models.Course, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	c, ok := f.db.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *c
	return &cp, nil
}

func (f fakeCourses) FindByMessageID(ctx context.Context, messageID int64) (*models.Course, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	m, ok := f.db.messages[messageID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *f.db.courses[m.CourseID]
	return &cp, nil
}

func (f fakeCourses) List(ctx context.Context) ([]models.Course, error) {
	return f.listWhere(func(models.Course) bool { return true }), nil
}

func (f fakeCourses) ListByLecturer(ctx context.Context, lecturerID int64) ([]models.Course, error) {
	return f.listWhere(func(c models.Course) bool { return c.LecturerID == lecturerID }), nil
}

func (f fakeCourses) listWhere(keep func(models.Course) bool) []models.Course {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	out := []models.Course{}
	for _, c := range f.db.courses {
		if keep(*c) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func (f fakeCourses) UpdatePin(ctx context.Context, id int64, pin string) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	c, ok := f.db.courses[id]
	if !ok {
		return sql.ErrNoRows
	}
	for _, other := range f.db.courses {
		if other.ID != id && other.PinCode == pin {
			return &repository.ConstraintError{Constraint: repository.ConstraintCoursePin, Kind: repository.ErrDuplicate, Err: fmt.Errorf("duplicate")}
		}
	}
	c.PinCode = pin
	return nil
}

type fakeMessages struct{ db *memDB }

func (f fakeMessages) Create(ctx context.Context, msg *models.Message) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if _, ok := f.db.courses[msg.CourseID]; !ok {
		return &repository.ConstraintError{Constraint: "messages_course_id_fkey", Kind: repository.ErrMissingReference, Err: fmt.Errorf("fk")}
	}
	msg.ID = f.db.nextID()
	msg.CreatedAt = f.db.tick()
	msg.UpdatedAt = msg.CreatedAt
	cp := *msg
	f.db.messages[msg.ID] = &cp
	return nil
}

func (f fakeMessages) FindByID(ctx context.Context, id int64) (*models.Message, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	m, ok := f.db.messages[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *m
	return &cp, nil
}

func (f fakeMessages) ListByCourse(ctx context.Context, courseID int64) ([]models.MessageView, error) {
	return f.listWhere(func(m models.Message) bool { return m.CourseID == courseID }), nil
}

func (f fakeMessages) ListByStudent(ctx context.Context, studentID int64) ([]models.MessageView, error) {
	return f.listWhere(func(m models.Message) bool { return m.StudentID != nil && *m.StudentID == studentID }), nil
}

func (f fakeMessages) listWhere(keep func(models.Message) bool) []models.MessageView {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	out := []models.MessageView{}
	for _, m := range f.db.messages {
		if !keep(*m) {
			continue
		}
		view := models.MessageView{Message: *m}
		if m.StudentID != nil && !m.IsAnonymous {
			if u, ok := f.db.users[*m.StudentID]; ok {
				name := u.FullName
				view.AuthorName = &name
			}
		}
		for _, c := range f.db.comments {
			if c.MessageID == m.ID {
				view.CommentsCount++
			}
		}
		out = append(out, view)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (f fakeMessages) Reply(ctx context.Context, id int64, reply string) (*models.Message, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	m, ok := f.db.messages[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	now := f.db.tick()
	m.Reply = &reply
	m.RepliedAt = &now
	m.UpdatedAt = now
	cp := *m
	return &cp, nil
}

func (f fakeMessages) count() int {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return len(f.db.messages)
}

type fakeComments struct{ db *memDB }

func (f fakeComments) Create(ctx context.Context, comment *models.Comment) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	comment.ID = int64(len(f.db.comments) + 1)
	comment.CreatedAt = f.db.tick()
	f.db.comments = append(f.db.comments, *comment)
	return nil
}

func (f fakeComments) ListByMessages(ctx context.Context, messageIDs []int64) ([]models.Comment, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	wanted := map[int64]bool{}
	for _, id := range messageIDs {
		wanted[id] = true
	}
	out := []models.Comment{}
	for _, c := range f.db.comments {
		if wanted[c.MessageID] {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeAccess struct{ db *memDB }

func attemptKey(courseID int64, ip string) string { return fmt.Sprintf("%d:%s", courseID, ip) }

func (f fakeAccess) ReserveAttempt(ctx context.Context, courseID int64, clientIP string, window time.Duration) (int, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.attempts[attemptKey(courseID, clientIP)]++
	return f.db.attempts[attemptKey(courseID, clientIP)], nil
}

func (f fakeAccess) ResetPinAttempts(ctx context.Context, courseID int64, clientIP string) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	delete(f.db.attempts, attemptKey(courseID, clientIP))
	return nil
}

func (f fakeAccess) Grant(ctx context.Context, sessionID string, courseID int64, ttl time.Duration) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if f.db.grants[sessionID] == nil {
		f.db.grants[sessionID] = map[int64]bool{}
	}
	f.db.grants[sessionID][courseID] = true
	return nil
}

func (f fakeAccess) HasGrant(ctx context.Context, sessionID string, courseID int64) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return f.db.grants[sessionID][courseID], nil
}

func (f fakeAccess) HasAnyGrant(ctx context.Context, sessionID string) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return len(f.db.grants[sessionID]) > 0, nil
}

type fakeSessions struct{ db *memDB }

func (f fakeSessions) Save(ctx context.Context, session *models.Session) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	cp := *session
	f.db.sessions[session.ID] = &cp
	return nil
}

func (f fakeSessions) Get(ctx context.Context, id string) (*models.Session, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	s, ok := f.db.sessions[id]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (f fakeSessions) Delete(ctx context.Context, id string) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	delete(f.db.sessions, id)
	return nil
}

// recordingEvents captures emitted lifecycle events.
type recordingEvents struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recordingEvents) Emit(ctx context.Context, event models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

// memCache is an in-memory CacheRepository.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (m *memCache) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = raw
	return nil
}

func (m *memCache) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memCache) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

// memObjects is an in-memory objectStore.
type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memObjects) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

func (m *memObjects) Get(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), storage.ObjectInfo{Key: key, Size: int64(len(data)), ContentType: m.types[key]}, nil
}

func (m *memObjects) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memObjects) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.objects))
	for k := range m.objects {
		out = append(out, k)
	}
	return out
}

// fakeQueue records enqueued jobs.
type fakeQueue struct {
	jobs []jobs.Job
	err  error
}

func (q *fakeQueue) TryEnqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

// fakePublisher records published bodies.
type fakePublisher struct {
	keys []string
	body [][]byte
	err  error
}

func (p *fakePublisher) Publish(ctx context.Context, routingKey string, body []byte) error {
	if p.err != nil {
		return p.err
	}
	p.keys = append(p.keys, routingKey)
	p.body = append(p.body, body)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

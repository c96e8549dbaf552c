package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/docreview/internal/domain/model"
	"github.com/bigkaa/docreview/internal/domain/verdict"
	"github.com/bigkaa/docreview/internal/repository"
	"github.com/bigkaa/docreview/internal/reviewclient"
	"github.com/bigkaa/docreview/internal/storage"
)

// --- In-memory хранилище для unit-тестов сервисного слоя ---

// memState — состояние «базы данных» в памяти.
type memState struct {
	mu sync.Mutex

	submissions map[string]model.Submission
	history     []model.HistoryEntry
	historySeq  int64
	files       map[model.FileOwner]model.CurrentFile
	fields      map[string][]model.FieldValue
	outbox      map[string]model.OutboxEvent
	docTypes    map[int64]model.DocType
	required    map[int64][]model.RequiredField
	deadlines   map[int64]*time.Time

	// Инъекция ошибок
	failUpsert    error
	failHistory   error
	failHistoryIf func(e *model.HistoryEntry) error
}

func newMemState() *memState {
	return &memState{
		submissions: make(map[string]model.Submission),
		files:       make(map[model.FileOwner]model.CurrentFile),
		fields:      make(map[string][]model.FieldValue),
		outbox:      make(map[string]model.OutboxEvent),
		docTypes:    make(map[int64]model.DocType),
		required:    make(map[int64][]model.RequiredField),
		deadlines:   make(map[int64]*time.Time),
	}
}

type memSnapshot struct {
	submissions map[string]model.Submission
	history     []model.HistoryEntry
	historySeq  int64
	files       map[model.FileOwner]model.CurrentFile
	fields      map[string][]model.FieldValue
	outbox      map[string]model.OutboxEvent
}

func (m *memState) snapshot() memSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memSnapshot{
		submissions: maps.Clone(m.submissions),
		history:     slices.Clone(m.history),
		historySeq:  m.historySeq,
		files:       maps.Clone(m.files),
		fields:      maps.Clone(m.fields),
		outbox:      maps.Clone(m.outbox),
	}
}

func (m *memState) restore(s memSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submissions = s.submissions
	m.history = s.history
	m.historySeq = s.historySeq
	m.files = s.files
	m.fields = s.fields
	m.outbox = s.outbox
}

// historyOf возвращает записи истории заявки.
func (m *memState) historyOf(id string) []model.HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.HistoryEntry
	for _, e := range m.history {
		if e.SubmissionID == id {
			out = append(out, e)
		}
	}
	return out
}

func (m *memState) submission(id string) model.Submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submissions[id]
}

func (m *memState) outboxEvents() []model.OutboxEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := slices.Collect(maps.Values(m.outbox))
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// memStore — реализация Store поверх memState.
// InScope откатывает состояние при ошибке fn.
type memStore struct {
	state *memState
}

func (s *memStore) InScope(_ context.Context, fn func(scope *repository.Scope) error) error {
	snap := s.state.snapshot()
	scope := s.Direct()
	if err := fn(scope); err != nil {
		s.state.restore(snap)
		scope.RolledBack()
		return err
	}
	scope.Committed()
	return nil
}

func (s *memStore) Direct() *repository.Scope {
	return &repository.Scope{
		Submissions: &memSubmissions{s.state},
		History:     &memHistory{s.state},
		Files:       &memFiles{s.state},
		Fields:      &memFields{s.state},
		Outbox:      &memOutbox{s.state},
	}
}

type memSubmissions struct{ m *memState }

func (r *memSubmissions) Create(_ context.Context, s *model.Submission) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, other := range r.m.submissions {
		if other.OwnerID == s.OwnerID && other.DocTypeID == s.DocTypeID && !other.Status.IsTerminal() {
			return repository.ErrConflict
		}
	}
	r.m.submissions[s.ID] = *s
	return nil
}

func (r *memSubmissions) GetByID(_ context.Context, id string) (*model.Submission, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.submissions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

func (r *memSubmissions) GetForUpdate(ctx context.Context, id string) (*model.Submission, error) {
	return r.GetByID(ctx, id)
}

func (r *memSubmissions) FindActive(_ context.Context, ownerID string, docTypeID int64) (*model.Submission, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, s := range r.m.submissions {
		if s.OwnerID == ownerID && s.DocTypeID == docTypeID && !s.Status.IsTerminal() {
			return &s, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memSubmissions) SaveState(_ context.Context, s *model.Submission) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.submissions[s.ID]; !ok {
		return repository.ErrNotFound
	}
	r.m.submissions[s.ID] = *s
	return nil
}

func (r *memSubmissions) ListByOwner(_ context.Context, ownerID string, statuses []model.Status, limit int) ([]*model.SubmissionView, error) {
	views := r.list(func(s model.Submission) bool {
		return s.OwnerID == ownerID && (len(statuses) == 0 || slices.Contains(statuses, s.Status))
	})
	if len(views) > limit {
		views = views[:limit]
	}
	return views, nil
}

func (r *memSubmissions) ListByDepartment(_ context.Context, departmentID int64, statuses []model.Status) ([]*model.SubmissionView, error) {
	r.m.mu.Lock()
	docTypes := maps.Clone(r.m.docTypes)
	r.m.mu.Unlock()
	return r.list(func(s model.Submission) bool {
		return docTypes[s.DocTypeID].DepartmentID == departmentID &&
			(len(statuses) == 0 || slices.Contains(statuses, s.Status))
	}), nil
}

func (r *memSubmissions) list(match func(model.Submission) bool) []*model.SubmissionView {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*model.SubmissionView
	for _, s := range r.m.submissions {
		if !match(s) {
			continue
		}
		v := &model.SubmissionView{Submission: s, DocTypeTitle: r.m.docTypes[s.DocTypeID].Title}
		if f, ok := r.m.files[model.SubmissionOwner(s.ID)]; ok {
			name := f.OriginalName
			v.FileName = &name
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

type memHistory struct{ m *memState }

func (r *memHistory) Append(_ context.Context, e *model.HistoryEntry) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.failHistory != nil {
		return r.m.failHistory
	}
	if r.m.failHistoryIf != nil {
		if err := r.m.failHistoryIf(e); err != nil {
			return err
		}
	}
	// Как PostgreSQL: NUL не допускается в TEXT и JSONB
	if strings.Contains(e.Memo, "\x00") || bytes.Contains(e.Detail, []byte(`\u0000`)) {
		return errors.New("unsupported Unicode escape sequence (SQLSTATE 22P05)")
	}
	r.m.historySeq++
	e.ID = r.m.historySeq
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	r.m.history = append(r.m.history, *e)
	return nil
}

func (r *memHistory) ListBySubmission(_ context.Context, submissionID string) ([]*model.HistoryEntry, error) {
	var out []*model.HistoryEntry
	for _, e := range r.m.historyOf(submissionID) {
		out = append(out, &e)
	}
	return out, nil
}

func (r *memHistory) LatestDetail(_ context.Context, submissionID string) (*model.HistoryEntry, error) {
	entries := r.m.historyOf(submissionID)
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Detail != nil {
			e := entries[i]
			return &e, nil
		}
	}
	return nil, repository.ErrNotFound
}

type memFiles struct{ m *memState }

func (r *memFiles) Get(_ context.Context, owner model.FileOwner) (*model.CurrentFile, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	f, ok := r.m.files[owner]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &f, nil
}

func (r *memFiles) Upsert(_ context.Context, f *model.CurrentFile) (*string, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.failUpsert != nil {
		return nil, r.m.failUpsert
	}
	var previous *string
	if old, ok := r.m.files[f.Owner]; ok {
		loc := old.Locator
		previous = &loc
	}
	r.m.files[f.Owner] = *f
	return previous, nil
}

type memFields struct{ m *memState }

func (r *memFields) Replace(_ context.Context, submissionID string, values []model.FieldValue) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.fields[submissionID] = slices.Clone(values)
	return nil
}

func (r *memFields) List(_ context.Context, submissionID string) ([]model.FieldValue, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return slices.Clone(r.m.fields[submissionID]), nil
}

type memOutbox struct{ m *memState }

func (r *memOutbox) Enqueue(_ context.Context, e *model.OutboxEvent) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	e.Status = model.OutboxPending
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	r.m.outbox[e.ID] = *e
	return nil
}

func (r *memOutbox) Claim(_ context.Context, id, owner string, now, leaseUntil time.Time) (*model.OutboxEvent, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	e, ok := r.m.outbox[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	expired := e.Status == model.OutboxLeased && e.LeaseExpiresAt != nil && e.LeaseExpiresAt.Before(now)
	if e.Status != model.OutboxPending && !expired {
		return nil, repository.ErrNotFound
	}
	e.Status = model.OutboxLeased
	e.AttemptCount++
	e.LeaseOwner = &owner
	e.LeaseExpiresAt = &leaseUntil
	r.m.outbox[id] = e
	return &e, nil
}

func (r *memOutbox) MarkDone(_ context.Context, id string, now time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	e, ok := r.m.outbox[id]
	if !ok {
		return repository.ErrNotFound
	}
	e.Status = model.OutboxDone
	e.ProcessedAt = &now
	e.LeaseOwner, e.LeaseExpiresAt = nil, nil
	r.m.outbox[id] = e
	return nil
}

func (r *memOutbox) Release(_ context.Context, id, lastError string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	e, ok := r.m.outbox[id]
	if !ok {
		return repository.ErrNotFound
	}
	e.Status = model.OutboxPending
	e.LastError = &lastError
	e.LeaseOwner, e.LeaseExpiresAt = nil, nil
	r.m.outbox[id] = e
	return nil
}

func (r *memOutbox) ListDue(_ context.Context, now, createdBefore time.Time, limit int) ([]*model.OutboxEvent, error) {
	var out []*model.OutboxEvent
	for _, e := range r.m.outboxEvents() {
		due := (e.Status == model.OutboxPending && e.CreatedAt.Before(createdBefore)) ||
			(e.Status == model.OutboxLeased && e.LeaseExpiresAt != nil && e.LeaseExpiresAt.Before(now))
		if due && len(out) < limit {
			out = append(out, &e)
		}
	}
	return out, nil
}

func (r *memOutbox) MarkDead(_ context.Context, now time.Time, maxAttempts int) ([]*model.OutboxEvent, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*model.OutboxEvent
	for id, e := range r.m.outbox {
		stale := e.Status == model.OutboxPending ||
			(e.Status == model.OutboxLeased && e.LeaseExpiresAt != nil && e.LeaseExpiresAt.Before(now))
		if e.AttemptCount >= maxAttempts && stale {
			e.Status = model.OutboxDead
			e.ProcessedAt = &now
			e.LeaseOwner, e.LeaseExpiresAt = nil, nil
			r.m.outbox[id] = e
			out = append(out, &e)
		}
	}
	return out, nil
}

func (r *memOutbox) CountByStatus(_ context.Context) (map[model.OutboxStatus]int64, error) {
	out := make(map[model.OutboxStatus]int64)
	for _, e := range r.m.outboxEvents() {
		out[e.Status]++
	}
	return out, nil
}

// memCatalog — CatalogRepository поверх memState.
type memCatalog struct {
	m     *memState
	calls int
}

func (r *memCatalog) CreateDepartment(_ context.Context, _ string) (int64, error) {
	return 1, nil
}

func (r *memCatalog) CreateDocType(_ context.Context, dt *model.DocType) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.docTypes[dt.ID] = *dt
	return nil
}

func (r *memCatalog) AddRequiredField(_ context.Context, f *model.RequiredField) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.required[f.DocTypeID] = append(r.m.required[f.DocTypeID], *f)
	return nil
}

func (r *memCatalog) GetDocType(_ context.Context, id int64) (*model.DocType, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.calls++
	dt, ok := r.m.docTypes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &dt, nil
}

func (r *memCatalog) ListRequiredFields(_ context.Context, docTypeID int64) ([]model.RequiredField, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return slices.Clone(r.m.required[docTypeID]), nil
}

func (r *memCatalog) GetDeadline(_ context.Context, docTypeID int64) (*model.Deadline, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.docTypes[docTypeID]; !ok {
		return nil, repository.ErrNotFound
	}
	return &model.Deadline{DocTypeID: docTypeID, Date: r.m.deadlines[docTypeID]}, nil
}

func (r *memCatalog) SetDeadline(_ context.Context, docTypeID int64, date *time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.docTypes[docTypeID]; !ok {
		return repository.ErrNotFound
	}
	r.m.deadlines[docTypeID] = date
	return nil
}

// --- Mock сервиса проверки ---

type mockReviewer struct {
	reviewFn func(ctx context.Context, content io.Reader) (*reviewclient.Result, error)
	calls    int
	mu       sync.Mutex
}

func (m *mockReviewer) Review(ctx context.Context, content io.Reader) (*reviewclient.Result, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if _, err := io.Copy(io.Discard, content); err != nil {
		return nil, err
	}
	return m.reviewFn(ctx, content)
}

// --- Сборка сервисов для тестов ---

const (
	testOwner     = "student-1"
	testAdmin     = "admin-1"
	testDocTypeID = int64(7)
	testDeptID    = int64(3)
)

type testEnv struct {
	state    *memState
	store    *memStore
	backend  *storage.Local
	files    *FileVersionStore
	ledger   *AuditLedger
	notifier *CommitNotifier
	catalog  *CatalogService
	subs     *SubmissionService
	admin    *AdminReviewService
	recorder *ReviewRecorder
	reviewer *mockReviewer
	orch     *ReviewOrchestrator
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := testLogger()
	state := newMemState()
	state.docTypes[testDocTypeID] = model.DocType{ID: testDocTypeID, DepartmentID: testDeptID, Title: "Справка"}
	state.required[testDocTypeID] = []model.RequiredField{
		{ID: 71, DocTypeID: testDocTypeID, FieldName: "이름", OrderNo: 1},
	}

	backend, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("Ошибка создания локального хранилища: %v", err)
	}

	store := &memStore{state: state}
	files := NewFileVersionStore(backend, logger)
	ledger := NewAuditLedger(logger)
	notifier := NewCommitNotifier(16, logger)
	catalog := NewCatalogService(&memCatalog{m: state}, store, files,
		CatalogOptions{CacheSize: 16, CacheTTL: time.Minute, Location: time.UTC}, logger)
	recorder := NewReviewRecorder(store, ledger, false, logger)
	reviewer := &mockReviewer{reviewFn: func(context.Context, io.Reader) (*reviewclient.Result, error) {
		return &reviewclient.Result{Verdict: "PASS", Findings: []verdict.Finding{}}, nil
	}}

	return &testEnv{
		state:    state,
		store:    store,
		backend:  backend,
		files:    files,
		ledger:   ledger,
		notifier: notifier,
		catalog:  catalog,
		subs:     NewSubmissionService(store, catalog, files, ledger, notifier, logger),
		admin:    NewAdminReviewService(store, catalog, files, ledger, logger),
		recorder: recorder,
		reviewer: reviewer,
		orch: NewReviewOrchestrator(store, files, reviewer, recorder, notifier,
			OrchestratorConfig{Workers: 1, LeaseTTL: time.Minute}, logger),
	}
}

// upload создаёт загружаемый файл из строки.
func upload(name, content string) *FileUpload {
	return &FileUpload{
		Filename:    name,
		ContentType: "application/pdf",
		Size:        int64(len(content)),
		Content:     strings.NewReader(content),
	}
}

// createSubmission создаёт заявку и возвращает её ID.
func (e *testEnv) createSubmission(t *testing.T) string {
	t.Helper()
	sum, err := e.subs.Create(context.Background(), testOwner, testDocTypeID,
		`[{"label":"이름","value":"홍길동"}]`, upload("form.pdf", "%PDF-1.4 test"))
	if err != nil {
		t.Fatalf("Ошибка создания заявки: %v", err)
	}
	return sum.Submission.ID
}

// setFailHistoryIf включает выборочный отказ записи истории.
func (e *testEnv) setFailHistoryIf(fn func(*model.HistoryEntry) error) {
	e.state.mu.Lock()
	e.state.failHistoryIf = fn
	e.state.mu.Unlock()
}

func (e *testEnv) setFailHistory(err error) {
	e.state.mu.Lock()
	e.state.failHistory = err
	e.state.mu.Unlock()
}

func (e *testEnv) reviewerCalls() int {
	e.reviewer.mu.Lock()
	defer e.reviewer.mu.Unlock()
	return e.reviewer.calls
}

// drain обрабатывает все токены в очереди синхронно.
func (e *testEnv) drain(t *testing.T) int {
	t.Helper()
	n := 0
	for {
		select {
		case tok := <-e.notifier.Ready():
			e.orch.Handle(context.Background(), tok)
			n++
		default:
			return n
		}
	}
}

// countFiles — количество файлов в пространстве имён владельца.
func countFiles(t *testing.T, root string, owner model.FileOwner) int {
	t.Helper()
	entries, err := os.ReadDir(root + "/" + owner.Namespace())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0
		}
		t.Fatalf("Ошибка чтения каталога: %v", err)
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			n++
		}
	}
	return n
}

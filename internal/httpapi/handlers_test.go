package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/davidrudduck/vk-swarm-sub003/internal/approvalsvc"
	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/approval"
	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/project"
	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/task"
	vkerrors "github.com/davidrudduck/vk-swarm-sub003/internal/errors"
	"github.com/davidrudduck/vk-swarm-sub003/internal/taskevents"
)

// --- in-memory fakes, exercising only the Store interfaces the routes use ---

type fakeProjectStore struct {
	mu       sync.Mutex
	projects map[string]*project.Project
}

func newFakeProjectStore() *fakeProjectStore {
	return &fakeProjectStore{projects: map[string]*project.Project{}}
}

func (s *fakeProjectStore) Create(ctx context.Context, p *project.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ID] = p
	return nil
}

func (s *fakeProjectStore) Get(ctx context.Context, id string) (*project.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, vkerrors.NotFoundError("project " + id)
	}
	return p, nil
}

func (s *fakeProjectStore) Update(ctx context.Context, p *project.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[p.ID]; !ok {
		return vkerrors.NotFoundError("project " + p.ID)
	}
	s.projects[p.ID] = p
	return nil
}

func (s *fakeProjectStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[id]; !ok {
		return vkerrors.NotFoundError("project " + id)
	}
	delete(s.projects, id)
	return nil
}

func (s *fakeProjectStore) List(ctx context.Context) ([]*project.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*project.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p)
	}
	return out, nil
}

func (s *fakeProjectStore) SetGitHubSettings(ctx context.Context, id string, settings project.GitHubSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return vkerrors.NotFoundError("project " + id)
	}
	p.GitHubEnabled = settings.Enabled
	if settings.Owner != nil {
		p.GitHubOwner = *settings.Owner
	}
	if settings.Repo != nil {
		p.GitHubRepo = *settings.Repo
	}
	return nil
}

func (s *fakeProjectStore) UpdateGitHubSyncStats(ctx context.Context, id string, openIssues, openPRs int, syncedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return vkerrors.NotFoundError("project " + id)
	}
	p.GitHubOpenIssues, p.GitHubOpenPRs = openIssues, openPRs
	p.GitHubLastSyncedAt = &syncedAt
	return nil
}

type fakeTaskStore struct {
	mu    sync.Mutex
	tasks map[string]*task.Task
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{tasks: map[string]*task.Task{}}
}

func (s *fakeTaskStore) Create(ctx context.Context, t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t
	return nil
}

func (s *fakeTaskStore) Get(ctx context.Context, id string) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, vkerrors.NotFoundError("task " + id)
	}
	return t, nil
}

func (s *fakeTaskStore) UpdateStatus(ctx context.Context, id string, status task.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return vkerrors.NotFoundError("task " + id)
	}
	t.Status = status
	return nil
}

func (s *fakeTaskStore) Update(ctx context.Context, t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t
	return nil
}

func (s *fakeTaskStore) Archive(ctx context.Context, id string, archived bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return vkerrors.NotFoundError("task " + id)
	}
	if archived {
		now := time.Now().UTC()
		t.ArchivedAt = &now
	} else {
		t.ArchivedAt = nil
	}
	return nil
}

func (s *fakeTaskStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
	return nil
}

func (s *fakeTaskStore) ListByProject(ctx context.Context, projectID string, includeArchived bool) ([]*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*task.Task
	for _, t := range s.tasks {
		if t.ProjectID == projectID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeTaskStore) ListAll(ctx context.Context) ([]*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*task.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	return out, nil
}

func (s *fakeTaskStore) UpdateRemoteAssignee(ctx context.Context, id string, assigneeID, assigneeName string, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return vkerrors.NotFoundError("task " + id)
	}
	if t.RemoteVersion != expectedVersion {
		return vkerrors.ConflictError("task " + id + " remote_version changed concurrently")
	}
	t.RemoteAssigneeID = &assigneeID
	t.RemoteAssigneeName = &assigneeName
	t.RemoteVersion++
	return nil
}

type fakeApprovalStore struct {
	mu        sync.Mutex
	approvals map[string]*approval.Approval
}

func newFakeApprovalStore() *fakeApprovalStore {
	return &fakeApprovalStore{approvals: map[string]*approval.Approval{}}
}

func (s *fakeApprovalStore) Create(ctx context.Context, a *approval.Approval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	s.approvals[a.ID] = a
	return nil
}

func (s *fakeApprovalStore) Get(ctx context.Context, id string) (*approval.Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.approvals[id]
	if !ok {
		return nil, vkerrors.NotFoundError("approval " + id)
	}
	return a, nil
}

func (s *fakeApprovalStore) Resolve(ctx context.Context, id string, status approval.Status, denialReason *string, answers map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.approvals[id]
	if !ok {
		return vkerrors.NotFoundError("approval " + id)
	}
	a.Status = status
	a.DenialReason = denialReason
	a.Answers = answers
	return nil
}

func (s *fakeApprovalStore) ListPendingForExecution(ctx context.Context, executionID string) ([]*approval.Approval, error) {
	return nil, nil
}

type fakeNotifier struct{}

func (fakeNotifier) SetInReview(ctx context.Context, taskID string) error   { return nil }
func (fakeNotifier) SetInProgress(ctx context.Context, taskID string) error { return nil }

func testDeps() (Deps, *fakeProjectStore, *fakeTaskStore) {
	projects := newFakeProjectStore()
	tasks := newFakeTaskStore()
	approvals := newFakeApprovalStore()
	svc := approvalsvc.New(approvals, approvalsvc.NewInteractiveBackend(), fakeNotifier{}, time.Second)
	return Deps{
		Projects:        projects,
		Tasks:           tasks,
		Approvals:       approvals,
		ApprovalService: svc,
		TaskEvents:      taskevents.NewBus(),
		Logger:          slog.Default(),
	}, projects, tasks
}

func doRequest(t *testing.T, handler http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	deps, _, _ := testDeps()
	router := NewRouter(deps, Config{})

	rec := doRequest(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.Success)
}

func TestCreateAndGetProject(t *testing.T) {
	deps, _, _ := testDeps()
	router := NewRouter(deps, Config{})

	rec := doRequest(t, router, http.MethodPost, "/projects", createProjectParams{
		Name:     "demo",
		RepoPath: "/tmp/demo",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Data project.Project `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.Data.ID)

	rec = doRequest(t, router, http.MethodGet, "/projects/"+created.Data.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateProjectValidation(t *testing.T) {
	deps, _, _ := testDeps()
	router := NewRouter(deps, Config{})

	rec := doRequest(t, router, http.MethodPost, "/projects", createProjectParams{RepoPath: "/tmp/demo"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetProjectNotFound(t *testing.T) {
	deps, _, _ := testDeps()
	router := NewRouter(deps, Config{})

	rec := doRequest(t, router, http.MethodGet, "/projects/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestArchiveAndUnarchiveTask(t *testing.T) {
	deps, _, tasks := testDeps()
	router := NewRouter(deps, Config{})

	tk := &task.Task{ID: "t1", ProjectID: "p1", Title: "demo", Status: task.StatusTodo}
	require.NoError(t, tasks.Create(context.Background(), tk))

	rec := doRequest(t, router, http.MethodPost, "/tasks/t1/archive", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, tk.ArchivedAt)

	rec = doRequest(t, router, http.MethodPost, "/tasks/t1/unarchive", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, tk.ArchivedAt)
}

func TestAssignTaskConflictOnStaleVersion(t *testing.T) {
	deps, _, tasks := testDeps()
	router := NewRouter(deps, Config{})

	tk := &task.Task{ID: "t1", ProjectID: "p1", Title: "demo", Status: task.StatusTodo, RemoteVersion: 1}
	require.NoError(t, tasks.Create(context.Background(), tk))

	rec := doRequest(t, router, http.MethodPost, "/tasks/t1/assign", task.AssignParams{
		AssigneeID: "user-1",
		Version:    0,
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/tasks/t1/assign", task.AssignParams{
		AssigneeID: "user-1",
		Version:    1,
	})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRespondApprovalWithoutPendingRequestIsNoop(t *testing.T) {
	deps, _, _ := testDeps()
	router := NewRouter(deps, Config{})

	rec := doRequest(t, router, http.MethodPost, "/approvals/missing/respond", approval.RespondParams{
		Status: approval.StatusApproved,
	})
	require.Equal(t, http.StatusNoContent, rec.Code)
}

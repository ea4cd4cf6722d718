package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/kevinmaint/maint-api/internal/database"
	"github.com/kevinmaint/maint-api/internal/location"
	"github.com/kevinmaint/maint-api/internal/models"
	"github.com/kevinmaint/maint-api/internal/request"
	"github.com/kevinmaint/maint-api/internal/services/thread"
)

type mockIssueRepo struct {
	mu         sync.Mutex
	issues     map[uuid.UUID]*models.Issue
	lastFilter database.IssueFilter
	createErr  error
	updated    int
	lastPatch  database.IssuePatch
	onGet      func(id uuid.UUID)
}

func newMockIssueRepo(issues ...*models.Issue) *mockIssueRepo {
	m := &mockIssueRepo{issues: make(map[uuid.UUID]*models.Issue)}
	for _, issue := range issues {
		m.issues[issue.ID] = issue
	}
	return m
}

func (m *mockIssueRepo) Create(ctx context.Context, issue *models.Issue) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if issue.Status == "" {
		issue.Status = models.IssueStatusReported
	}
	if issue.Priority == "" {
		issue.Priority = models.PriorityMedium
	}
	m.issues[issue.ID] = issue
	return nil
}

func (m *mockIssueRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	issue, ok := m.issues[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *issue
	if m.onGet != nil {
		m.onGet(id)
	}
	return &cp, nil
}

func (m *mockIssueRepo) List(ctx context.Context, filter database.IssueFilter, page, pageSize int) ([]*models.Issue, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFilter = filter
	var out []*models.Issue
	for _, issue := range m.issues {
		if filter.ReporterID != nil && issue.ReporterID != *filter.ReporterID {
			continue
		}
		if filter.Status != nil && issue.Status != *filter.Status {
			continue
		}
		out = append(out, issue)
	}
	return out, len(out), nil
}

func (m *mockIssueRepo) Update(ctx context.Context, id uuid.UUID, patch database.IssuePatch) (*models.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	issue, ok := m.issues[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	m.updated++
	m.lastPatch = patch
	cp := *issue
	if patch.Title != nil {
		cp.Title = *patch.Title
	}
	if patch.Description != nil {
		cp.Description = *patch.Description
	}
	if patch.Category != nil {
		cp.Category = *patch.Category
	}
	if patch.Priority != nil {
		cp.Priority = *patch.Priority
	}
	m.issues[id] = &cp
	out := cp
	return &out, nil
}

type mockWorkLog struct {
	entries []*models.WorkLogEntry
}

func (m *mockWorkLog) ListByIssue(ctx context.Context, issueID uuid.UUID) ([]*models.WorkLogEntry, error) {
	return m.entries, nil
}

type mockThreadService struct {
	messages   map[uuid.UUID]*models.ThreadMessage
	posted     []*models.ThreadMessage
	postErr    error
	acceptErr  error
	dismissErr error
	statusTo   []models.IssueStatus
	summary    *models.SmartSummary
}

func newMockThreadService(msgs ...*models.ThreadMessage) *mockThreadService {
	m := &mockThreadService{messages: make(map[uuid.UUID]*models.ThreadMessage)}
	for _, msg := range msgs {
		m.messages[msg.ID] = msg
	}
	return m
}

func (m *mockThreadService) PostMessage(ctx context.Context, issue *models.Issue, msg *models.ThreadMessage) (*thread.PostResult, error) {
	if m.postErr != nil {
		return nil, m.postErr
	}
	msg.ID = uuid.New()
	msg.RequestID = issue.ID
	msg.AuthorType = models.AuthorTypeUser
	m.posted = append(m.posted, msg)
	result := &thread.PostResult{Message: msg}
	if msg.Type == models.MessageTypeStatusChange {
		updated := *issue
		updated.Status = *msg.NewStatus
		result.Issue = &updated
	}
	return result, nil
}

func (m *mockThreadService) ChangeStatus(ctx context.Context, issue *models.Issue, actorID uuid.UUID, status models.IssueStatus, note string) (*thread.PostResult, error) {
	m.statusTo = append(m.statusTo, status)
	return m.PostMessage(ctx, issue, &models.ThreadMessage{
		AuthorID:  actorID,
		Type:      models.MessageTypeStatusChange,
		Message:   note,
		NewStatus: &status,
	})
}

func (m *mockThreadService) Messages(ctx context.Context, issueID uuid.UUID) ([]*models.ThreadMessage, error) {
	var out []*models.ThreadMessage
	for _, msg := range m.messages {
		if msg.RequestID == issueID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *mockThreadService) Message(ctx context.Context, messageID uuid.UUID) (*models.ThreadMessage, error) {
	msg, ok := m.messages[messageID]
	if !ok {
		return nil, database.ErrNotFound
	}
	return msg, nil
}

func (m *mockThreadService) AcceptProposal(ctx context.Context, messageID, actorID uuid.UUID) (*database.AcceptResult, error) {
	if m.acceptErr != nil {
		return nil, m.acceptErr
	}
	msg := m.messages[messageID]
	accepted := true
	msg.ProposalAccepted = &accepted
	return &database.AcceptResult{Message: msg, Applied: true}, nil
}

func (m *mockThreadService) DismissProposal(ctx context.Context, messageID uuid.UUID) (*models.ThreadMessage, error) {
	if m.dismissErr != nil {
		return nil, m.dismissErr
	}
	msg := m.messages[messageID]
	dismissed := false
	msg.ProposalAccepted = &dismissed
	return msg, nil
}

func (m *mockThreadService) React(ctx context.Context, messageID uuid.UUID, emoji string, userID uuid.UUID) (*models.ThreadMessage, error) {
	msg := m.messages[messageID]
	if msg.Reactions == nil {
		msg.Reactions = map[string][]uuid.UUID{}
	}
	msg.Reactions[emoji] = append(msg.Reactions[emoji], userID)
	return msg, nil
}

func (m *mockThreadService) MarkRead(ctx context.Context, messageID, userID uuid.UUID) error {
	return nil
}

func (m *mockThreadService) Summary(ctx context.Context, issueID uuid.UUID) (*models.SmartSummary, error) {
	if m.summary == nil {
		return nil, database.ErrNotFound
	}
	return m.summary, nil
}

type mockDetector struct {
	result    *models.LocationContext
	err       error
	calls     int
	confirmed []models.DetectionMethod
}

func (m *mockDetector) Detect(ctx context.Context, req location.DetectionRequest) (*models.LocationContext, error) {
	m.calls++
	return m.result, m.err
}

func (m *mockDetector) ConfirmSelection(ctx context.Context, fingerprint string, business models.NearbyBusiness,
	method models.DetectionMethod) (*models.FingerprintEntry, error) {
	m.confirmed = append(m.confirmed, method)
	return &models.FingerprintEntry{
		Fingerprint:     fingerprint,
		Business:        business,
		Confidence:      method.Weight(),
		DetectionMethod: method,
		HitCount:        1,
	}, nil
}

type mockImageAnalyzer struct {
	gotBytes int
	gotMime  string
	err      error
}

func (m *mockImageAnalyzer) AnalyzeMaintenanceImage(ctx context.Context, image []byte, mimeType string) (*models.ImageAnalysis, error) {
	m.gotBytes = len(image)
	m.gotMime = mimeType
	if m.err != nil {
		return nil, m.err
	}
	return &models.ImageAnalysis{Description: "Leaking pipe under sink", Category: "plumbing", Priority: models.PriorityHigh, Confidence: 0.9}, nil
}

type mockBugReports struct {
	created    []*models.BugReport
	lastStatus *models.BugReportStatus
	lastLimit  int
}

func (m *mockBugReports) Create(ctx context.Context, report *models.BugReport) error {
	report.Status = models.BugReportOpen
	m.created = append(m.created, report)
	return nil
}

func (m *mockBugReports) List(ctx context.Context, status *models.BugReportStatus, limit int) ([]*models.BugReport, error) {
	m.lastStatus = status
	m.lastLimit = limit
	return m.created, nil
}

var errBoom = errors.New("boom")

// serve routes req through a fresh router so path variables resolve, acting as user
func serve(register func(*mux.Router), req *http.Request, user *models.User) *http.Response {
	r := mux.NewRouter()
	register(r)
	if user != nil {
		req = req.WithContext(request.WithUser(req.Context(), user))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Result()
}

// decodeEnvelope reads the {success,data,...} envelope, decoding data into dst when given
func decodeEnvelope(t *testing.T, resp *http.Response, dst any) map[string]any {
	t.Helper()
	defer func() {
		_ = resp.Body.Close()
	}()

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if dst != nil {
		if err := json.Unmarshal(raw["data"], dst); err != nil {
			t.Fatalf("failed to decode data: %v", err)
		}
	}
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		var val any
		_ = json.Unmarshal(v, &val)
		out[k] = val
	}
	return out
}

package thread

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kevinmaint/maint-api/internal/database"
	"github.com/kevinmaint/maint-api/internal/models"
	"github.com/kevinmaint/maint-api/internal/queue"
)

type mockIssueRepo struct {
	issues map[uuid.UUID]*models.Issue
}

func (m *mockIssueRepo) Create(ctx context.Context, issue *models.Issue) error {
	m.issues[issue.ID] = issue
	return nil
}

func (m *mockIssueRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Issue, error) {
	issue, ok := m.issues[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return issue, nil
}

func (m *mockIssueRepo) List(ctx context.Context, filter database.IssueFilter, page, pageSize int) ([]*models.Issue, int, error) {
	return nil, 0, nil
}

func (m *mockIssueRepo) Update(ctx context.Context, id uuid.UUID, patch database.IssuePatch) (*models.Issue, error) {
	return m.GetByID(ctx, id)
}

type mockThreadRepo struct {
	mu           sync.Mutex
	messages     map[uuid.UUID]*models.ThreadMessage
	order        []uuid.UUID
	setProposal  func(id uuid.UUID, p *models.AIProposal) (bool, error)
	acceptResult *database.AcceptResult
	acceptErr    error
	statusCalls  int
}

func newMockThreadRepo() *mockThreadRepo {
	return &mockThreadRepo{messages: map[uuid.UUID]*models.ThreadMessage{}}
}

func (m *mockThreadRepo) Create(ctx context.Context, msg *models.ThreadMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *msg
	m.messages[msg.ID] = &copied
	m.order = append(m.order, msg.ID)
	return nil
}

func (m *mockThreadRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.ThreadMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	copied := *msg
	return &copied, nil
}

func (m *mockThreadRepo) ListByIssue(ctx context.Context, issueID uuid.UUID) ([]*models.ThreadMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ThreadMessage
	for _, id := range m.order {
		if msg := m.messages[id]; msg.RequestID == issueID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *mockThreadRepo) SetProposal(ctx context.Context, id uuid.UUID, p *models.AIProposal) (bool, error) {
	if m.setProposal != nil {
		return m.setProposal(id, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return false, database.ErrNotFound
	}
	if msg.Proposal != nil {
		return false, nil
	}
	msg.Proposal = p
	return true, nil
}

func (m *mockThreadRepo) AddReaction(ctx context.Context, id uuid.UUID, emoji string, userID uuid.UUID) (*models.ThreadMessage, error) {
	return m.GetByID(ctx, id)
}

func (m *mockThreadRepo) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	return nil
}

func (m *mockThreadRepo) AcceptProposal(ctx context.Context, id, actorID uuid.UUID) (*database.AcceptResult, error) {
	return m.acceptResult, m.acceptErr
}

func (m *mockThreadRepo) DismissProposal(ctx context.Context, id uuid.UUID) (*models.ThreadMessage, bool, error) {
	msg, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	dismissed := false
	msg.ProposalAccepted = &dismissed
	return msg, true, nil
}

func (m *mockThreadRepo) ApplyStatusChange(ctx context.Context, msg *models.ThreadMessage) (*database.StatusChangeResult, error) {
	m.statusCalls++
	if err := m.Create(ctx, msg); err != nil {
		return nil, err
	}
	issue := &models.Issue{ID: msg.RequestID, Status: *msg.NewStatus}
	return &database.StatusChangeResult{
		Message: msg,
		Issue:   issue,
		Summary: &models.SmartSummary{IssueID: msg.RequestID, CurrentStatus: *msg.NewStatus},
	}, nil
}

type mockSummaryRepo struct {
	stored     *models.SmartSummary
	recomputes int
}

func (m *mockSummaryRepo) Get(ctx context.Context, issueID uuid.UUID) (*models.SmartSummary, error) {
	if m.stored == nil {
		return nil, database.ErrNotFound
	}
	return m.stored, nil
}

func (m *mockSummaryRepo) Upsert(ctx context.Context, s *models.SmartSummary) error {
	m.stored = s
	return nil
}

func (m *mockSummaryRepo) Recompute(ctx context.Context, issueID uuid.UUID) (*models.SmartSummary, error) {
	m.recomputes++
	m.stored = &models.SmartSummary{IssueID: issueID, CurrentStatus: models.IssueStatusReported, RiskLevel: models.RiskLow, NextAction: models.DefaultNextAction}
	return m.stored, nil
}

type mockEngine struct {
	calls    int
	lastCtx  *models.IssueContext
	proposal *models.AIProposal
	err      error
}

func (m *mockEngine) Name() string { return "mock" }

func (m *mockEngine) Propose(ctx context.Context, msg *models.ThreadMessage, issueCtx *models.IssueContext) (*models.AIProposal, error) {
	m.calls++
	m.lastCtx = issueCtx
	return m.proposal, m.err
}

type mockQueue struct {
	jobs []*queue.Job
	err  error
}

func (m *mockQueue) Enqueue(ctx context.Context, job *queue.Job) error {
	if m.err != nil {
		return m.err
	}
	m.jobs = append(m.jobs, job)
	return nil
}

type fixture struct {
	svc       *Service
	issue     *models.Issue
	threads   *mockThreadRepo
	summaries *mockSummaryRepo
	engine    *mockEngine
}

func newFixture(jobs queue.Enqueuer) *fixture {
	issue := &models.Issue{ID: uuid.New(), ReporterID: uuid.New(), Title: "Walk-in cooler warm", Status: models.IssueStatusReported, Priority: models.PriorityMedium}
	threads := newMockThreadRepo()
	summaries := &mockSummaryRepo{}
	completed := models.IssueStatusCompleted
	engine := &mockEngine{proposal: &models.AIProposal{ProposedStatus: &completed, RiskLevel: models.RiskLow, Confidence: 0.7, Reasoning: "work reported finished"}}
	svc := NewService(&mockIssueRepo{issues: map[uuid.UUID]*models.Issue{issue.ID: issue}}, threads, summaries, engine, jobs, nil)
	return &fixture{svc: svc, issue: issue, threads: threads, summaries: summaries, engine: engine}
}

func textMessage(author uuid.UUID, body string) *models.ThreadMessage {
	return &models.ThreadMessage{AuthorID: author, Type: models.MessageTypeText, Message: body}
}

func TestService_PostMessage_InlineProposal(t *testing.T) {
	t.Parallel()

	f := newFixture(nil)
	result, err := f.svc.PostMessage(context.Background(), f.issue, textMessage(f.issue.ReporterID, "  all done, works now  "))
	if err != nil {
		t.Fatalf("PostMessage() error = %v", err)
	}

	if f.engine.calls != 1 {
		t.Errorf("Expected engine to be called once, got %d", f.engine.calls)
	}
	if result.ProposalQueued {
		t.Error("Expected inline analysis, not a queued job")
	}
	if result.Message.Proposal == nil {
		t.Fatal("Expected returned message to carry the proposal")
	}
	if result.Message.Message != "all done, works now" {
		t.Errorf("Expected trimmed body, got %q", result.Message.Message)
	}
	if result.Message.RequestID != f.issue.ID {
		t.Errorf("Expected message to belong to issue %s, got %s", f.issue.ID, result.Message.RequestID)
	}
	if result.Message.ProposalState() != "pending" {
		t.Errorf("Expected pending proposal, got %s", result.Message.ProposalState())
	}
}

func TestService_PostMessage_QueuesProposal(t *testing.T) {
	t.Parallel()

	q := &mockQueue{}
	f := newFixture(q)

	result, err := f.svc.PostMessage(context.Background(), f.issue, textMessage(f.issue.ReporterID, "water on the floor again"))
	if err != nil {
		t.Fatalf("PostMessage() error = %v", err)
	}
	if !result.ProposalQueued {
		t.Error("Expected proposal to be queued")
	}
	if f.engine.calls != 0 {
		t.Errorf("Expected no inline engine call, got %d", f.engine.calls)
	}
	if len(q.jobs) != 1 {
		t.Fatalf("Expected one job, got %d", len(q.jobs))
	}
	job := q.jobs[0]
	if job.Type != queue.JobTypeProposalAnalysis || job.IssueID != f.issue.ID || job.MessageID == nil || *job.MessageID != result.Message.ID {
		t.Errorf("Unexpected job: %+v", job)
	}
}

func TestService_PostMessage_EnqueueFailureFallsBackInline(t *testing.T) {
	t.Parallel()

	f := newFixture(&mockQueue{err: errors.New("connection closed")})
	result, err := f.svc.PostMessage(context.Background(), f.issue, textMessage(f.issue.ReporterID, "fixed"))
	if err != nil {
		t.Fatalf("PostMessage() error = %v", err)
	}
	if result.ProposalQueued {
		t.Error("Expected ProposalQueued to be false after enqueue failure")
	}
	if f.engine.calls != 1 {
		t.Errorf("Expected inline fallback, engine calls = %d", f.engine.calls)
	}
}

func TestService_PostMessage_EngineFailureKeepsMessage(t *testing.T) {
	t.Parallel()

	f := newFixture(nil)
	f.engine.err = errors.New("upstream timeout")

	result, err := f.svc.PostMessage(context.Background(), f.issue, textMessage(f.issue.ReporterID, "still leaking"))
	if err != nil {
		t.Fatalf("Expected post to succeed despite engine failure, got %v", err)
	}
	if _, err := f.threads.GetByID(context.Background(), result.Message.ID); err != nil {
		t.Errorf("Expected message to be stored: %v", err)
	}
	if result.Message.Proposal != nil {
		t.Error("Expected no proposal")
	}
}

func TestService_PostMessage_InvalidShape(t *testing.T) {
	t.Parallel()

	completed := models.IssueStatusCompleted
	tests := []struct {
		name string
		msg  *models.ThreadMessage
	}{
		{name: "photo without attachment", msg: &models.ThreadMessage{Type: models.MessageTypePhoto}},
		{name: "status change without status", msg: &models.ThreadMessage{Type: models.MessageTypeStatusChange}},
		{name: "text with new status", msg: &models.ThreadMessage{Type: models.MessageTypeText, Message: "hi", NewStatus: &completed}},
		{name: "blank text", msg: &models.ThreadMessage{Type: models.MessageTypeText, Message: "   "}},
		{name: "unknown type", msg: &models.ThreadMessage{Type: "fax", Message: "hi"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(nil)
			_, err := f.svc.PostMessage(context.Background(), f.issue, tt.msg)
			if !errors.Is(err, ErrInvalidMessage) {
				t.Errorf("Expected ErrInvalidMessage, got %v", err)
			}
			if len(f.threads.order) != 0 {
				t.Error("Expected nothing to be stored")
			}
		})
	}
}

func TestService_PostMessage_ParentMustBelongToIssue(t *testing.T) {
	t.Parallel()

	foreign := &models.ThreadMessage{ID: uuid.New(), RequestID: uuid.New(), Type: models.MessageTypeText, Message: "other issue"}
	missing := uuid.New()

	tests := []struct {
		name     string
		parentID uuid.UUID
		wantErr  bool
	}{
		{name: "parent on another issue", parentID: foreign.ID, wantErr: true},
		{name: "unknown parent", parentID: missing, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(nil)
			f.threads.messages[foreign.ID] = foreign
			msg := textMessage(f.issue.ReporterID, "replying")
			parentID := tt.parentID
			msg.ParentID = &parentID

			_, err := f.svc.PostMessage(context.Background(), f.issue, msg)
			if !errors.Is(err, ErrInvalidMessage) {
				t.Errorf("Expected ErrInvalidMessage, got %v", err)
			}
			if len(f.threads.order) != 0 {
				t.Error("Expected nothing to be stored")
			}
		})
	}

	t.Run("parent on the same issue", func(t *testing.T) {
		t.Parallel()

		f := newFixture(nil)
		parent := &models.ThreadMessage{ID: uuid.New(), RequestID: f.issue.ID, Type: models.MessageTypeText, Message: "first"}
		f.threads.messages[parent.ID] = parent
		msg := textMessage(f.issue.ReporterID, "replying")
		msg.ParentID = &parent.ID

		result, err := f.svc.PostMessage(context.Background(), f.issue, msg)
		if err != nil {
			t.Fatalf("PostMessage() error = %v", err)
		}
		if result.Message.ParentID == nil || *result.Message.ParentID != parent.ID {
			t.Errorf("Expected reply to keep parent %s", parent.ID)
		}
	})
}

func TestService_PostMessage_StripsClientProposal(t *testing.T) {
	t.Parallel()

	f := newFixture(nil)
	f.engine.proposal = nil
	accepted := true
	msg := textMessage(f.issue.ReporterID, "note")
	msg.Proposal = &models.AIProposal{RiskLevel: models.RiskHigh, Confidence: 1, Reasoning: "forged"}
	msg.ProposalAccepted = &accepted

	result, err := f.svc.PostMessage(context.Background(), f.issue, msg)
	if err != nil {
		t.Fatalf("PostMessage() error = %v", err)
	}
	if result.Message.Proposal != nil || result.Message.ProposalAccepted != nil {
		t.Error("Expected client supplied proposal fields to be dropped")
	}
}

func TestService_ChangeStatus(t *testing.T) {
	t.Parallel()

	f := newFixture(nil)
	result, err := f.svc.ChangeStatus(context.Background(), f.issue, f.issue.ReporterID, models.IssueStatusScheduled, "plumber booked")
	if err != nil {
		t.Fatalf("ChangeStatus() error = %v", err)
	}
	if f.threads.statusCalls != 1 {
		t.Errorf("Expected ApplyStatusChange to be called once, got %d", f.threads.statusCalls)
	}
	if f.engine.calls != 0 {
		t.Error("Expected status changes not to be sent to the engine")
	}
	if result.Summary == nil || result.Summary.CurrentStatus != models.IssueStatusScheduled {
		t.Errorf("Expected summary status scheduled, got %+v", result.Summary)
	}
}

func TestService_AnalyzeMessage(t *testing.T) {
	t.Parallel()

	t.Run("existing proposal is returned without calling the engine", func(t *testing.T) {
		t.Parallel()
		f := newFixture(nil)
		existing := &models.AIProposal{RiskLevel: models.RiskLow, Confidence: 0.3, Reasoning: "earlier"}
		msg := textMessage(f.issue.ReporterID, "hello")
		msg.ID = uuid.New()
		msg.RequestID = f.issue.ID
		msg.Proposal = existing
		_ = f.threads.Create(context.Background(), msg)

		got, err := f.svc.AnalyzeMessage(context.Background(), msg.ID)
		if err != nil {
			t.Fatalf("AnalyzeMessage() error = %v", err)
		}
		if got.Reasoning != "earlier" || f.engine.calls != 0 {
			t.Errorf("Expected stored proposal and no engine call, got %+v (calls=%d)", got, f.engine.calls)
		}
	})

	t.Run("lost race returns the stored proposal", func(t *testing.T) {
		t.Parallel()
		f := newFixture(nil)
		msg := textMessage(f.issue.ReporterID, "done")
		msg.ID = uuid.New()
		msg.RequestID = f.issue.ID
		_ = f.threads.Create(context.Background(), msg)

		winner := &models.AIProposal{RiskLevel: models.RiskMedium, Confidence: 0.5, Reasoning: "other worker"}
		f.threads.setProposal = func(id uuid.UUID, p *models.AIProposal) (bool, error) {
			f.threads.messages[id].Proposal = winner
			return false, nil
		}

		got, err := f.svc.AnalyzeMessage(context.Background(), msg.ID)
		if err != nil {
			t.Fatalf("AnalyzeMessage() error = %v", err)
		}
		if got.Reasoning != "other worker" {
			t.Errorf("Expected winner's proposal, got %+v", got)
		}
	})

	t.Run("engine context excludes the analyzed message and caps history", func(t *testing.T) {
		t.Parallel()
		f := newFixture(nil)
		base := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
		for i := 0; i < 15; i++ {
			m := textMessage(f.issue.ReporterID, "update")
			m.ID = uuid.New()
			m.RequestID = f.issue.ID
			m.CreatedAt = base.Add(time.Duration(i) * time.Minute)
			_ = f.threads.Create(context.Background(), m)
		}
		last := f.threads.order[len(f.threads.order)-1]

		if _, err := f.svc.AnalyzeMessage(context.Background(), last); err != nil {
			t.Fatalf("AnalyzeMessage() error = %v", err)
		}
		recent := f.engine.lastCtx.RecentMessages
		if len(recent) != recentMessageLimit {
			t.Fatalf("Expected %d recent messages, got %d", recentMessageLimit, len(recent))
		}
		for _, m := range recent {
			if m.ID == last {
				t.Error("Expected analyzed message to be excluded from history")
			}
		}
		if f.engine.lastCtx.Issue.ID != f.issue.ID {
			t.Error("Expected issue in engine context")
		}
	})

	t.Run("nil proposal is not stored", func(t *testing.T) {
		t.Parallel()
		f := newFixture(nil)
		f.engine.proposal = nil
		msg := textMessage(f.issue.ReporterID, "ok")
		msg.ID = uuid.New()
		msg.RequestID = f.issue.ID
		_ = f.threads.Create(context.Background(), msg)

		got, err := f.svc.AnalyzeMessage(context.Background(), msg.ID)
		if err != nil || got != nil {
			t.Errorf("Expected (nil, nil), got (%v, %v)", got, err)
		}
	})
}

func TestService_AcceptProposal_PassesConflict(t *testing.T) {
	t.Parallel()

	f := newFixture(nil)
	f.threads.acceptErr = database.ErrProposalConflict

	_, err := f.svc.AcceptProposal(context.Background(), uuid.New(), uuid.New())
	if !errors.Is(err, database.ErrProposalConflict) {
		t.Errorf("Expected ErrProposalConflict, got %v", err)
	}
}

func TestService_Summary_BuildsOnFirstRequest(t *testing.T) {
	t.Parallel()

	f := newFixture(nil)
	sum, err := f.svc.Summary(context.Background(), f.issue.ID)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if f.summaries.recomputes != 1 {
		t.Errorf("Expected one recompute, got %d", f.summaries.recomputes)
	}
	if sum.NextAction != models.DefaultNextAction {
		t.Errorf("Expected default next action, got %q", sum.NextAction)
	}

	if _, err := f.svc.Summary(context.Background(), f.issue.ID); err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if f.summaries.recomputes != 1 {
		t.Errorf("Expected stored summary to be reused, recomputes = %d", f.summaries.recomputes)
	}
}

func TestService_React_RequiresEmoji(t *testing.T) {
	t.Parallel()

	f := newFixture(nil)
	_, err := f.svc.React(context.Background(), uuid.New(), "  ", uuid.New())
	if !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("Expected ErrInvalidMessage, got %v", err)
	}
}

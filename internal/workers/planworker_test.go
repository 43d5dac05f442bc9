package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fitforge/fitforge/internal/database"
	"github.com/fitforge/fitforge/internal/models"
	"github.com/fitforge/fitforge/internal/orchestrator"
	"github.com/fitforge/fitforge/internal/queue"
	"github.com/fitforge/fitforge/internal/services/ai"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type mockMessage struct {
	job      *queue.Job
	acked    bool
	nacked   bool
	requeued bool
}

func (m *mockMessage) Ack() error { m.acked = true; return nil }
func (m *mockMessage) Nack(requeue bool) error {
	m.nacked = true
	m.requeued = requeue
	return nil
}
func (m *mockMessage) GetJob() *queue.Job { return m.job }

type mockOrchestrator struct {
	generateFunc func(ctx context.Context, pctx *models.PlanningContext, weekNumber int, strategy ai.Strategy) (*orchestrator.Decision, error)
	calls        []int
}

func (m *mockOrchestrator) GenerateWeek(ctx context.Context, pctx *models.PlanningContext, weekNumber int, strategy ai.Strategy) (*orchestrator.Decision, error) {
	m.calls = append(m.calls, weekNumber)
	if m.generateFunc != nil {
		return m.generateFunc(ctx, pctx, weekNumber, strategy)
	}
	return &orchestrator.Decision{Source: models.PlanSourceAI}, nil
}

type mockProfileRepo struct {
	pctx *models.PlanningContext
	err  error
}

func (m *mockProfileRepo) Get(context.Context, uuid.UUID) (*models.PlanningContext, error) {
	return m.pctx, m.err
}
func (m *mockProfileRepo) Upsert(context.Context, *models.PlanningContext) error { return nil }

type mockStatusRepo struct {
	resetCalled        bool
	placeholdersWeeks  int
	staleWeeks         []database.StaleWeek
}

func (m *mockStatusRepo) EnsurePlaceholders(ctx context.Context, userID uuid.UUID, totalWeeks int) error {
	m.placeholdersWeeks = totalWeeks
	return nil
}
func (m *mockStatusRepo) Reset(context.Context, uuid.UUID) error { m.resetCalled = true; return nil }
func (m *mockStatusRepo) Claim(context.Context, uuid.UUID, int) error {
	return nil
}
func (m *mockStatusRepo) MarkGenerated(context.Context, uuid.UUID, int) error { return nil }
func (m *mockStatusRepo) MarkError(context.Context, uuid.UUID, int, string) error {
	return nil
}
func (m *mockStatusRepo) List(context.Context, uuid.UUID) ([]models.WeekStatus, error) {
	return nil, nil
}
func (m *mockStatusRepo) ReleaseStale(ctx context.Context, maxAge time.Duration) ([]database.StaleWeek, error) {
	return m.staleWeeks, nil
}

type mockWeekRepo struct {
	archived int64
}

func (m *mockWeekRepo) SaveWeek(context.Context, *models.WeekPlan, *models.PlanningContext) error {
	return nil
}
func (m *mockWeekRepo) GetWeek(context.Context, uuid.UUID, int) (*models.WeekPlan, error) {
	return nil, database.ErrWeekNotFound
}
func (m *mockWeekRepo) ArchivePlan(context.Context, uuid.UUID) (int64, error) {
	m.archived++
	return 1, nil
}

type mockJobQueue struct {
	enqueued []*queue.Job
	err      error
}

func (m *mockJobQueue) Enqueue(ctx context.Context, job *queue.Job) error {
	if m.err != nil {
		return m.err
	}
	m.enqueued = append(m.enqueued, job)
	return nil
}
func (m *mockJobQueue) Consume(context.Context, int) (<-chan *queue.Message, <-chan error, error) {
	return nil, nil, errors.New("not implemented")
}
func (m *mockJobQueue) Close() error                       { return nil }
func (m *mockJobQueue) HealthCheck(context.Context) error  { return nil }

func testContext() *models.PlanningContext {
	return &models.PlanningContext{
		UserID: uuid.New(),
		Goal:   models.GoalBulk,
		Planning: models.PlanningWindow{
			BlockSizeWeeks: 4,
			TotalBlocks:    2,
			TotalWeeks:     8,
			Phases:         map[models.Phase]int{models.PhaseBase: 4, models.PhaseBuild: 4},
		},
		CreatedAt: time.Now().UTC(),
	}
}

func newTestWorker(orch WeekOrchestrator, profiles *mockProfileRepo, statuses *mockStatusRepo, weeks *mockWeekRepo, q *mockJobQueue) *PlanWorker {
	var sched *Scheduler
	if q != nil {
		sched = NewScheduler(q, time.Second, zap.NewNop())
	}
	return NewPlanWorker(orch, profiles, statuses, weeks, q, sched, zap.NewNop())
}

func TestProcessJob_GenerateWeek_Success(t *testing.T) {
	t.Parallel()
	orch := &mockOrchestrator{}
	profiles := &mockProfileRepo{pctx: testContext()}
	w := newTestWorker(orch, profiles, &mockStatusRepo{}, &mockWeekRepo{}, &mockJobQueue{})

	msg := &mockMessage{job: queue.NewJob(queue.JobTypeGenerateWeek, uuid.New(), 3)}
	if err := w.ProcessJob(context.Background(), msg); err != nil {
		t.Fatalf("ProcessJob: %v", err)
	}
	if !msg.acked {
		t.Error("expected message to be acked")
	}
	if len(orch.calls) != 1 || orch.calls[0] != 3 {
		t.Errorf("expected one generation call for week 3, got %v", orch.calls)
	}
}

func TestProcessJob_GenerateWeek_ConflictIsHarmless(t *testing.T) {
	t.Parallel()
	orch := &mockOrchestrator{
		generateFunc: func(context.Context, *models.PlanningContext, int, ai.Strategy) (*orchestrator.Decision, error) {
			return nil, database.ErrWeekConflict
		},
	}
	profiles := &mockProfileRepo{pctx: testContext()}
	w := newTestWorker(orch, profiles, &mockStatusRepo{}, &mockWeekRepo{}, &mockJobQueue{})

	msg := &mockMessage{job: queue.NewJob(queue.JobTypeGenerateWeek, uuid.New(), 2)}
	if err := w.ProcessJob(context.Background(), msg); err != nil {
		t.Fatalf("conflict should not be an error: %v", err)
	}
	if !msg.acked {
		t.Error("expected duplicate delivery to be acked")
	}
}

func TestProcessJob_QuotaError_ReenqueuedWithDelay(t *testing.T) {
	t.Parallel()
	orch := &mockOrchestrator{
		generateFunc: func(context.Context, *models.PlanningContext, int, ai.Strategy) (*orchestrator.Decision, error) {
			return nil, &ai.APIError{StatusCode: 429, Code: "insufficient_quota", IsPermanent: true, Message: "quota"}
		},
	}
	q := &mockJobQueue{}
	profiles := &mockProfileRepo{pctx: testContext()}
	w := newTestWorker(orch, profiles, &mockStatusRepo{}, &mockWeekRepo{}, q)

	msg := &mockMessage{job: queue.NewJob(queue.JobTypeGenerateWeek, uuid.New(), 4)}
	if err := w.ProcessJob(context.Background(), msg); err != nil {
		t.Fatalf("quota error should be handled by re-enqueue: %v", err)
	}
	if !msg.acked {
		t.Error("expected original message to be acked after re-enqueue")
	}
	if len(q.enqueued) != 1 {
		t.Fatalf("expected 1 re-enqueued job, got %d", len(q.enqueued))
	}
	re := q.enqueued[0]
	if re.NotBefore == nil || time.Until(*re.NotBefore) < 30*time.Minute {
		t.Error("expected quota retry to be delayed by about an hour")
	}
	if re.RetryCount != 1 {
		t.Errorf("expected retry count 1, got %d", re.RetryCount)
	}
}

func TestProcessJob_ReenqueueFailure_RequeuesOriginal(t *testing.T) {
	t.Parallel()
	orch := &mockOrchestrator{
		generateFunc: func(context.Context, *models.PlanningContext, int, ai.Strategy) (*orchestrator.Decision, error) {
			return nil, &ai.APIError{StatusCode: 429, Code: "insufficient_quota", IsPermanent: true, Message: "quota"}
		},
	}
	q := &mockJobQueue{err: errors.New("broker unavailable")}
	profiles := &mockProfileRepo{pctx: testContext()}
	w := newTestWorker(orch, profiles, &mockStatusRepo{}, &mockWeekRepo{}, q)

	msg := &mockMessage{job: queue.NewJob(queue.JobTypeGenerateWeek, uuid.New(), 4)}
	if err := w.ProcessJob(context.Background(), msg); err == nil {
		t.Fatal("expected error when re-enqueue fails")
	}
	if msg.acked {
		t.Error("message must not be acked when re-enqueue fails")
	}
	if !msg.nacked || !msg.requeued {
		t.Error("expected original message to be nacked with requeue")
	}
}

func TestProcessJob_DataError_GoesToDLQ(t *testing.T) {
	t.Parallel()
	orch := &mockOrchestrator{
		generateFunc: func(context.Context, *models.PlanningContext, int, ai.Strategy) (*orchestrator.Decision, error) {
			return nil, &ai.DataError{Reason: "day count mismatch"}
		},
	}
	q := &mockJobQueue{}
	profiles := &mockProfileRepo{pctx: testContext()}
	w := newTestWorker(orch, profiles, &mockStatusRepo{}, &mockWeekRepo{}, q)

	msg := &mockMessage{job: queue.NewJob(queue.JobTypeGenerateWeek, uuid.New(), 2)}
	err := w.ProcessJob(context.Background(), msg)
	if err == nil {
		t.Fatal("expected error for invalid response data")
	}
	if !msg.nacked || msg.requeued {
		t.Error("expected nack without requeue (DLQ)")
	}
	if len(q.enqueued) != 0 {
		t.Error("data errors must not be re-enqueued")
	}
}

func TestProcessJob_MaxRetries_GoesToDLQ(t *testing.T) {
	t.Parallel()
	orch := &mockOrchestrator{
		generateFunc: func(context.Context, *models.PlanningContext, int, ai.Strategy) (*orchestrator.Decision, error) {
			return nil, errors.New("database write failed")
		},
	}
	profiles := &mockProfileRepo{pctx: testContext()}
	w := newTestWorker(orch, profiles, &mockStatusRepo{}, &mockWeekRepo{}, &mockJobQueue{})

	job := queue.NewJob(queue.JobTypeGenerateWeek, uuid.New(), 2)
	job.RetryCount = job.MaxRetries
	msg := &mockMessage{job: job}

	err := w.ProcessJob(context.Background(), msg)
	if err == nil {
		t.Fatal("expected error after max retries")
	}
	if !msg.nacked || msg.requeued {
		t.Error("expected nack without requeue (DLQ)")
	}
}

func TestProcessJob_UnknownType_Rejected(t *testing.T) {
	t.Parallel()
	w := newTestWorker(&mockOrchestrator{}, &mockProfileRepo{pctx: testContext()}, &mockStatusRepo{}, &mockWeekRepo{}, &mockJobQueue{})

	msg := &mockMessage{job: queue.NewJob(queue.JobType("mystery"), uuid.New(), 1)}
	if err := w.ProcessJob(context.Background(), msg); err == nil {
		t.Fatal("expected error for unknown job type")
	}
	if !msg.nacked || msg.requeued {
		t.Error("expected unknown job type to go to the DLQ")
	}
}

func TestProcessJob_RegeneratePlan(t *testing.T) {
	t.Parallel()
	pctx := testContext()
	orch := &mockOrchestrator{}
	statuses := &mockStatusRepo{}
	weeks := &mockWeekRepo{}
	q := &mockJobQueue{}
	w := newTestWorker(orch, &mockProfileRepo{pctx: pctx}, statuses, weeks, q)

	msg := &mockMessage{job: queue.NewJob(queue.JobTypeRegeneratePlan, pctx.UserID, 0)}
	if err := w.ProcessJob(context.Background(), msg); err != nil {
		t.Fatalf("ProcessJob: %v", err)
	}
	if weeks.archived != 1 {
		t.Error("expected the active plan to be archived")
	}
	if !statuses.resetCalled {
		t.Error("expected week statuses to be reset")
	}
	if statuses.placeholdersWeeks != pctx.Planning.TotalWeeks {
		t.Errorf("expected placeholders for %d weeks, got %d", pctx.Planning.TotalWeeks, statuses.placeholdersWeeks)
	}
	if len(orch.calls) != 1 || orch.calls[0] != 1 {
		t.Errorf("expected inline regeneration of week 1, got %v", orch.calls)
	}
	// Weeks 2..8 scheduled in the background
	if len(q.enqueued) != pctx.Planning.TotalWeeks-1 {
		t.Errorf("expected %d background jobs, got %d", pctx.Planning.TotalWeeks-1, len(q.enqueued))
	}
	for i, job := range q.enqueued {
		if job.WeekNumber != i+2 {
			t.Errorf("job %d: expected week %d, got %d", i, i+2, job.WeekNumber)
		}
		if job.NotBefore == nil {
			t.Errorf("job for week %d missing NotBefore stagger", job.WeekNumber)
		}
	}
}

func TestScheduler_StaggersNotBefore(t *testing.T) {
	t.Parallel()
	q := &mockJobQueue{}
	s := NewScheduler(q, time.Minute, zap.NewNop())

	if err := s.ScheduleWeeks(context.Background(), uuid.New(), 2, 4); err != nil {
		t.Fatalf("ScheduleWeeks: %v", err)
	}
	if len(q.enqueued) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(q.enqueued))
	}
	for i := 1; i < len(q.enqueued); i++ {
		prev, cur := q.enqueued[i-1].NotBefore, q.enqueued[i].NotBefore
		if prev == nil || cur == nil {
			t.Fatal("expected NotBefore on all scheduled jobs")
		}
		gap := cur.Sub(*prev)
		if gap < 50*time.Second || gap > 70*time.Second {
			t.Errorf("expected about a minute between weeks, got %v", gap)
		}
	}
}

func TestReconciler_RequeuesStaleWeeks(t *testing.T) {
	t.Parallel()
	stale := []database.StaleWeek{
		{UserID: uuid.New(), WeekNumber: 3},
		{UserID: uuid.New(), WeekNumber: 5},
	}
	statuses := &mockStatusRepo{staleWeeks: stale}
	q := &mockJobQueue{}
	sched := NewScheduler(q, time.Second, zap.NewNop())
	r := NewReconciler(statuses, sched, time.Minute, 10*time.Minute, zap.NewNop())

	if err := r.sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(q.enqueued) != 2 {
		t.Fatalf("expected 2 requeued jobs, got %d", len(q.enqueued))
	}
	if q.enqueued[0].WeekNumber != 3 || q.enqueued[1].WeekNumber != 5 {
		t.Errorf("unexpected requeued weeks: %d, %d", q.enqueued[0].WeekNumber, q.enqueued[1].WeekNumber)
	}
}

func TestReconciler_Start_StopsOnContextCancel(t *testing.T) {
	t.Parallel()
	r := NewReconciler(&mockStatusRepo{}, nil, time.Hour, time.Hour, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Start(ctx); err == nil {
		t.Error("expected context cancelled error")
	}
}

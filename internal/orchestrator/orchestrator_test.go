package orchestrator

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fitforge/fitforge/internal/database"
	"github.com/fitforge/fitforge/internal/models"
	"github.com/fitforge/fitforge/internal/semcache"
	"github.com/fitforge/fitforge/internal/services/ai"
)

type mockCache struct {
	match    *semcache.Match
	matchErr error
	puts     []*models.CachedPlanRecord
	touches  int
}

func (m *mockCache) BestMatch(ctx context.Context, requested *models.PlanningContext) (*semcache.Match, error) {
	return m.match, m.matchErr
}

func (m *mockCache) Put(ctx context.Context, record *models.CachedPlanRecord) error {
	m.puts = append(m.puts, record)
	return nil
}

func (m *mockCache) Touch(ctx context.Context, fp models.SemanticFingerprint) (int64, error) {
	m.touches++
	return int64(m.touches), nil
}

type mockGenerator struct {
	result *ai.WeekResult
	err    error
	calls  int
}

func (m *mockGenerator) GenerateWeek(ctx context.Context, pctx *models.PlanningContext, weekNumber int, startDate time.Time, strategy ai.Strategy) (*ai.WeekResult, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	result := *m.result
	result.Plan.UserID = pctx.UserID
	result.Plan.WeekNumber = weekNumber
	return &result, nil
}

type mockWeekRepo struct {
	saved     []*models.WeekPlan
	snapshots []*models.PlanningContext
	saveErr   error
}

func (m *mockWeekRepo) SaveWeek(ctx context.Context, plan *models.WeekPlan, snapshot *models.PlanningContext) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, plan)
	m.snapshots = append(m.snapshots, snapshot)
	return nil
}

func (m *mockWeekRepo) GetWeek(ctx context.Context, userID uuid.UUID, weekNumber int) (*models.WeekPlan, error) {
	return nil, database.ErrWeekNotFound
}

func (m *mockWeekRepo) ArchivePlan(ctx context.Context, userID uuid.UUID) (int64, error) {
	return 0, nil
}

type mockStatusRepo struct {
	claimErr  error
	claims    []int
	generated []int
	errored   []int
}

func (m *mockStatusRepo) EnsurePlaceholders(ctx context.Context, userID uuid.UUID, totalWeeks int) error {
	return nil
}
func (m *mockStatusRepo) Reset(ctx context.Context, userID uuid.UUID) error { return nil }
func (m *mockStatusRepo) Claim(ctx context.Context, userID uuid.UUID, weekNumber int) error {
	if m.claimErr != nil {
		return m.claimErr
	}
	m.claims = append(m.claims, weekNumber)
	return nil
}
func (m *mockStatusRepo) MarkGenerated(ctx context.Context, userID uuid.UUID, weekNumber int) error {
	m.generated = append(m.generated, weekNumber)
	return nil
}
func (m *mockStatusRepo) MarkError(ctx context.Context, userID uuid.UUID, weekNumber int, message string) error {
	m.errored = append(m.errored, weekNumber)
	return nil
}
func (m *mockStatusRepo) List(ctx context.Context, userID uuid.UUID) ([]models.WeekStatus, error) {
	return nil, nil
}
func (m *mockStatusRepo) ReleaseStale(ctx context.Context, maxAge time.Duration) ([]database.StaleWeek, error) {
	return nil, nil
}

type mockLogRepo struct {
	logs []*models.GenerationLog
}

func (m *mockLogRepo) Append(ctx context.Context, log *models.GenerationLog) error {
	m.logs = append(m.logs, log)
	return nil
}

func testContext() *models.PlanningContext {
	return &models.PlanningContext{
		UserID: uuid.New(),
		Goal:   models.GoalCut,
		Biometrics: models.Biometrics{
			Sex: models.SexMale, AgeYears: 30, HeightCm: 180, WeightKg: 80,
		},
		Training: models.TrainingProfile{
			DaysPerWeek: 4, Experience: models.ExperienceIntermediate,
			ActivityLevel: models.ActivityModerate, TimelineWeeks: 12,
		},
		Nutrition: models.NutritionProfile{Diet: models.DietOmnivore, MealsPerDay: 4},
		Targets:   models.Targets{AdjustedCalories: 2200},
		Planning: models.PlanningWindow{
			BlockSizeWeeks: 4, TotalBlocks: 3, TotalWeeks: 12,
			Phases: map[models.Phase]int{
				models.PhaseBase: 4, models.PhaseBuild: 5,
				models.PhasePeak: 2, models.PhaseTaper: 1,
			},
		},
		CreatedAt: time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC),
	}
}

func testWeekPlan() models.WeekPlan {
	return models.WeekPlan{
		ID:     uuid.New(),
		Phase:  models.PhaseBase,
		Source: models.PlanSourceAI,
		Days: []models.DayPlan{
			{
				IsTrainingDay: true,
				Workout: &models.Workout{
					Focus:     "upper",
					Exercises: []models.Exercise{{Name: "bench press", Sets: 4, Reps: "6"}},
				},
				Nutrition: models.DayNutrition{
					Meals: []models.Meal{{
						Name:        "lunch",
						Ingredients: []models.Ingredient{{Name: "rice", Grams: 200, Calories: 260}},
						Calories:    260,
					}},
					TotalCalories: 2200,
				},
			},
		},
	}
}

type fixture struct {
	orch       *Orchestrator
	cache      *mockCache
	gen        *mockGenerator
	weekRepo   *mockWeekRepo
	statusRepo *mockStatusRepo
	logRepo    *mockLogRepo
}

func newFixture(cache *mockCache, gen *mockGenerator, cfg Config) *fixture {
	weekRepo := &mockWeekRepo{}
	statusRepo := &mockStatusRepo{}
	logRepo := &mockLogRepo{}
	return &fixture{
		orch:       New(cache, gen, weekRepo, statusRepo, logRepo, cfg, zap.NewNop()),
		cache:      cache,
		gen:        gen,
		weekRepo:   weekRepo,
		statusRepo: statusRepo,
		logRepo:    logRepo,
	}
}

func cacheMatch(score float64, pctx *models.PlanningContext) *semcache.Match {
	return &semcache.Match{
		Record: &models.CachedPlanRecord{
			Fingerprint: semcache.Fingerprint(pctx),
			Context:     *pctx,
			Plan:        testWeekPlan(),
			Source:      models.PlanSourceAI,
		},
		Similarity: semcache.Similarity{Score: score},
	}
}

func TestGenerateWeek_CacheExact(t *testing.T) {
	t.Parallel()

	pctx := testContext()
	f := newFixture(&mockCache{match: cacheMatch(0.92, pctx)}, &mockGenerator{}, Config{})

	d, err := f.orch.GenerateWeek(context.Background(), pctx, 1, ai.StrategyChunked)
	if err != nil {
		t.Fatalf("GenerateWeek: %v", err)
	}
	if d.Source != models.PlanSourceCacheExact {
		t.Errorf("Source = %s, want cache_exact", d.Source)
	}
	if d.CostUSD != 0 {
		t.Errorf("CostUSD = %f, want 0", d.CostUSD)
	}
	if d.Similarity != 0.92 {
		t.Errorf("Similarity = %f, want 0.92", d.Similarity)
	}
	if f.gen.calls != 0 {
		t.Errorf("generator calls = %d, want 0", f.gen.calls)
	}
	if f.cache.touches != 1 {
		t.Errorf("touches = %d, want 1", f.cache.touches)
	}
	if d.Plan.UserID != pctx.UserID {
		t.Error("plan not rebased onto requesting user")
	}
	if len(f.statusRepo.generated) != 1 || f.statusRepo.generated[0] != 1 {
		t.Errorf("MarkGenerated calls = %v, want [1]", f.statusRepo.generated)
	}
}

func TestGenerateWeek_CacheAdapted(t *testing.T) {
	t.Parallel()

	pctx := testContext()
	cached := testContext()
	cached.Targets.AdjustedCalories = 2000 // forces a portion rescale
	match := cacheMatch(0.83, cached)

	f := newFixture(&mockCache{match: match}, &mockGenerator{}, Config{})

	d, err := f.orch.GenerateWeek(context.Background(), pctx, 1, ai.StrategyChunked)
	if err != nil {
		t.Fatalf("GenerateWeek: %v", err)
	}
	if d.Source != models.PlanSourceCacheAdapted {
		t.Errorf("Source = %s, want cache_adapted", d.Source)
	}
	if len(d.Adaptations) == 0 {
		t.Error("Adaptations should not be empty")
	}
	if d.CostUSD != 0 {
		t.Errorf("CostUSD = %f, want 0", d.CostUSD)
	}
	if f.gen.calls != 0 {
		t.Errorf("generator calls = %d, want 0", f.gen.calls)
	}
}

func TestGenerateWeek_BelowAdaptGeneratesAndWritesThrough(t *testing.T) {
	t.Parallel()

	pctx := testContext()
	gen := &mockGenerator{result: &ai.WeekResult{
		Plan:         testWeekPlan(),
		Model:        "model-a",
		CostUSD:      0.04,
		InputTokens:  4000,
		OutputTokens: 8000,
	}}
	f := newFixture(&mockCache{match: cacheMatch(0.60, pctx)}, gen, Config{})

	d, err := f.orch.GenerateWeek(context.Background(), pctx, 1, ai.StrategyChunked)
	if err != nil {
		t.Fatalf("GenerateWeek: %v", err)
	}
	if d.Source != models.PlanSourceAI {
		t.Errorf("Source = %s, want ai", d.Source)
	}
	if d.CostUSD != 0.04 {
		t.Errorf("CostUSD = %f, want 0.04", d.CostUSD)
	}
	if f.gen.calls != 1 {
		t.Errorf("generator calls = %d, want 1", f.gen.calls)
	}
	if len(f.cache.puts) != 1 {
		t.Fatalf("cache puts = %d, want 1", len(f.cache.puts))
	}
	if f.cache.puts[0].Source != models.PlanSourceAI {
		t.Errorf("cached Source = %s, want ai", f.cache.puts[0].Source)
	}
	if f.orch.Budget().SpentToday() != 0.04 {
		t.Errorf("SpentToday = %f, want 0.04", f.orch.Budget().SpentToday())
	}
	if len(f.logRepo.logs) != 1 {
		t.Fatalf("log entries = %d, want 1", len(f.logRepo.logs))
	}
	if got := f.logRepo.logs[0]; got.InputTokens != 4000 || got.OutputTokens != 8000 {
		t.Errorf("log tokens = %d/%d, want 4000/8000", got.InputTokens, got.OutputTokens)
	}
}

func TestGenerateWeek_ClaimConflict(t *testing.T) {
	t.Parallel()

	f := newFixture(&mockCache{}, &mockGenerator{}, Config{})
	f.statusRepo.claimErr = database.ErrWeekConflict

	_, err := f.orch.GenerateWeek(context.Background(), testContext(), 1, ai.StrategyChunked)
	if !errors.Is(err, database.ErrWeekConflict) {
		t.Fatalf("error = %v, want ErrWeekConflict", err)
	}
	// A conflicting claim must not flip the week to error
	if len(f.statusRepo.errored) != 0 {
		t.Errorf("MarkError calls = %v, want none", f.statusRepo.errored)
	}
}

func TestGenerateWeek_DegradedServesAdaptableCache(t *testing.T) {
	t.Parallel()

	pctx := testContext()
	// Score below the adapt threshold; degraded mode waives the gate
	f := newFixture(&mockCache{match: cacheMatch(0.78, pctx)}, &mockGenerator{}, Config{})
	f.orch.Budget().ForceExhausted()

	d, err := f.orch.GenerateWeek(context.Background(), pctx, 1, ai.StrategyChunked)
	if err != nil {
		t.Fatalf("GenerateWeek: %v", err)
	}
	if d.Source != models.PlanSourceCacheAdapted {
		t.Errorf("Source = %s, want cache_adapted", d.Source)
	}
	if !d.Degraded {
		t.Error("Degraded should be true")
	}
	if f.gen.calls != 0 {
		t.Errorf("generator calls = %d, want 0", f.gen.calls)
	}
}

func TestGenerateWeek_DegradedSafetyRulesStillApply(t *testing.T) {
	t.Parallel()

	pctx := testContext()
	pctx.Nutrition.Allergies = []string{"peanuts"}
	// Cached plan does not exclude peanuts; adaptation must refuse it
	f := newFixture(&mockCache{match: cacheMatch(0.95, testContext())}, &mockGenerator{}, Config{})
	f.orch.Budget().ForceExhausted()

	// 0.95 is above the exact threshold but the exact path serves the raw
	// cached plan only on a true fingerprint-level match score; drop the
	// score into adapt range to exercise the safety rule.
	f.cache.match.Similarity.Score = 0.85

	_, err := f.orch.GenerateWeek(context.Background(), pctx, 1, ai.StrategyChunked)
	if !errors.Is(err, ErrBudgetExhausted) {
		t.Fatalf("error = %v, want ErrBudgetExhausted", err)
	}
	if len(f.statusRepo.errored) != 1 {
		t.Errorf("MarkError calls = %v, want one", f.statusRepo.errored)
	}
}

func TestGenerateWeek_DegradedNoMatchFails(t *testing.T) {
	t.Parallel()

	f := newFixture(&mockCache{}, &mockGenerator{}, Config{})
	f.orch.Budget().ForceExhausted()

	_, err := f.orch.GenerateWeek(context.Background(), testContext(), 1, ai.StrategyChunked)
	if !errors.Is(err, ErrBudgetExhausted) {
		t.Fatalf("error = %v, want ErrBudgetExhausted", err)
	}
}

func TestGenerateWeek_QuotaErrorForcesDegradedMode(t *testing.T) {
	t.Parallel()

	gen := &mockGenerator{err: &ai.APIError{StatusCode: 429, Code: "insufficient_quota", IsPermanent: true}}
	f := newFixture(&mockCache{}, gen, Config{})

	_, err := f.orch.GenerateWeek(context.Background(), testContext(), 1, ai.StrategyChunked)
	if err == nil {
		t.Fatal("expected error")
	}
	if !f.orch.Budget().Exhausted() {
		t.Error("quota error should force the budget gate shut")
	}
}

func TestGenerateWeek_CacheOutageFallsThroughToGeneration(t *testing.T) {
	t.Parallel()

	gen := &mockGenerator{result: &ai.WeekResult{Plan: testWeekPlan(), Model: "model-a", CostUSD: 0.03}}
	f := newFixture(&mockCache{matchErr: errors.New("redis down")}, gen, Config{})

	d, err := f.orch.GenerateWeek(context.Background(), testContext(), 1, ai.StrategyChunked)
	if err != nil {
		t.Fatalf("GenerateWeek: %v", err)
	}
	if d.Source != models.PlanSourceAI {
		t.Errorf("Source = %s, want ai", d.Source)
	}
}

func TestGenerateWeek_SnapshotOnlyForWeekOne(t *testing.T) {
	t.Parallel()

	pctx := testContext()
	gen := &mockGenerator{result: &ai.WeekResult{Plan: testWeekPlan(), CostUSD: 0.02}}
	f := newFixture(&mockCache{}, gen, Config{})

	if _, err := f.orch.GenerateWeek(context.Background(), pctx, 1, ai.StrategyChunked); err != nil {
		t.Fatalf("week 1: %v", err)
	}
	if _, err := f.orch.GenerateWeek(context.Background(), pctx, 2, ai.StrategyChunked); err != nil {
		t.Fatalf("week 2: %v", err)
	}

	if len(f.weekRepo.snapshots) != 2 {
		t.Fatalf("saves = %d, want 2", len(f.weekRepo.snapshots))
	}
	if f.weekRepo.snapshots[0] == nil {
		t.Error("week 1 save should carry the context snapshot")
	}
	if f.weekRepo.snapshots[1] != nil {
		t.Error("week 2 save should not carry a snapshot")
	}
}

func TestGenerateWeek_FailureMarksErrorAndLogs(t *testing.T) {
	t.Parallel()

	gen := &mockGenerator{err: &ai.PipelineError{Models: []string{"model-a"}, LastErr: errors.New("overloaded")}}
	f := newFixture(&mockCache{}, gen, Config{})

	_, err := f.orch.GenerateWeek(context.Background(), testContext(), 3, ai.StrategyChunked)
	if err == nil {
		t.Fatal("expected error")
	}
	if len(f.statusRepo.errored) != 1 || f.statusRepo.errored[0] != 3 {
		t.Errorf("MarkError calls = %v, want [3]", f.statusRepo.errored)
	}
	if len(f.logRepo.logs) != 1 || f.logRepo.logs[0].Success {
		t.Errorf("expected one failed log entry, got %+v", f.logRepo.logs)
	}
}

func TestTelemetry_Aggregates(t *testing.T) {
	t.Parallel()

	pctx := testContext()
	f := newFixture(&mockCache{match: cacheMatch(0.92, pctx)}, &mockGenerator{}, Config{AvgAICostUSD: 0.05})

	for i := 0; i < 3; i++ {
		p := testContext()
		if _, err := f.orch.GenerateWeek(context.Background(), p, 1, ai.StrategyChunked); err != nil {
			t.Fatalf("GenerateWeek: %v", err)
		}
	}

	snap := f.orch.Telemetry()
	if snap.Requests != 3 || snap.CacheExact != 3 {
		t.Errorf("Requests/CacheExact = %d/%d, want 3/3", snap.Requests, snap.CacheExact)
	}
	if snap.HitRate != 1.0 {
		t.Errorf("HitRate = %f, want 1.0", snap.HitRate)
	}
	if math.Abs(snap.CostSavedUSD-0.15) > 1e-9 {
		t.Errorf("CostSavedUSD = %f, want 0.15", snap.CostSavedUSD)
	}
}

func TestWeekStartDate(t *testing.T) {
	t.Parallel()

	pctx := testContext()
	if got := weekStartDate(pctx, 1); got.Format("2006-01-02") != "2026-09-07" {
		t.Errorf("week 1 start = %s, want 2026-09-07", got.Format("2006-01-02"))
	}
	if got := weekStartDate(pctx, 3); got.Format("2006-01-02") != "2026-09-21" {
		t.Errorf("week 3 start = %s, want 2026-09-21", got.Format("2006-01-02"))
	}
}

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fitforge/fitforge/internal/database"
	"github.com/fitforge/fitforge/internal/models"
	"github.com/fitforge/fitforge/internal/semcache"
	"github.com/fitforge/fitforge/internal/services/ai"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrBudgetExhausted is returned when the upstream budget is spent and no
// cache candidate can safely serve the request.
var ErrBudgetExhausted = errors.New("generation budget exhausted and no safe cache candidate")

// CacheStore is the slice of the semantic cache the orchestrator uses.
type CacheStore interface {
	BestMatch(ctx context.Context, requested *models.PlanningContext) (*semcache.Match, error)
	Put(ctx context.Context, record *models.CachedPlanRecord) error
	Touch(ctx context.Context, fp models.SemanticFingerprint) (int64, error)
}

// WeekGenerator is the slice of the generation pipeline the orchestrator uses.
type WeekGenerator interface {
	GenerateWeek(ctx context.Context, pctx *models.PlanningContext, weekNumber int, startDate time.Time, strategy ai.Strategy) (*ai.WeekResult, error)
}

// Config holds the orchestrator's tunable policy, injected explicitly so
// tests can swap thresholds and budgets.
type Config struct {
	Thresholds      semcache.Thresholds
	DailyBudgetUSD  float64
	AvgAICostUSD    float64 // used to estimate cost saved by cache hits
}

// Decision is the outcome of one week-generation request.
type Decision struct {
	Plan         models.WeekPlan   `json:"plan"`
	Source       models.PlanSource `json:"source"`
	CostUSD      float64           `json:"cost_usd"`
	Similarity   float64           `json:"similarity,omitempty"`
	Adaptations  []string          `json:"adaptations,omitempty"`
	Model        string            `json:"model,omitempty"`
	InputTokens  int64             `json:"input_tokens,omitempty"`
	OutputTokens int64             `json:"output_tokens,omitempty"`
	LatencyMs    int64             `json:"latency_ms"`
	Degraded     bool              `json:"degraded,omitempty"`
}

// Orchestrator decides per week whether to serve an exact cache hit, an
// adapted cache hit, or invoke generation, then writes the result through to
// cache and persistence while driving the week state machine.
type Orchestrator struct {
	cache      CacheStore
	pipeline   WeekGenerator
	weekRepo   database.WeekPlanRepositoryInterface
	statusRepo database.WeekStatusRepositoryInterface
	logRepo    database.GenerationLogRepositoryInterface
	budget     *Budget
	telemetry  *Telemetry
	cfg        Config
	logger     *zap.Logger
}

// New creates an orchestrator.
func New(
	cache CacheStore,
	pipeline WeekGenerator,
	weekRepo database.WeekPlanRepositoryInterface,
	statusRepo database.WeekStatusRepositoryInterface,
	logRepo database.GenerationLogRepositoryInterface,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.Thresholds == (semcache.Thresholds{}) {
		cfg.Thresholds = semcache.DefaultThresholds()
	}
	if cfg.AvgAICostUSD <= 0 {
		cfg.AvgAICostUSD = 0.05
	}
	return &Orchestrator{
		cache:      cache,
		pipeline:   pipeline,
		weekRepo:   weekRepo,
		statusRepo: statusRepo,
		logRepo:    logRepo,
		budget:     NewBudget(cfg.DailyBudgetUSD),
		telemetry:  &Telemetry{},
		cfg:        cfg,
		logger:     logger,
	}
}

// Budget exposes the budget gate, shared with workers for spend accounting.
func (o *Orchestrator) Budget() *Budget { return o.budget }

// Telemetry returns the aggregate snapshot for the metrics surface.
func (o *Orchestrator) Telemetry() TelemetrySnapshot { return o.telemetry.Snapshot() }

// GenerateWeek runs the full decision flow for one (context, week): claim
// the week, serve from cache or generate, persist transactionally, and move
// the state machine to its terminal state. A week already generating or
// generated returns database.ErrWeekConflict.
func (o *Orchestrator) GenerateWeek(ctx context.Context, pctx *models.PlanningContext, weekNumber int, strategy ai.Strategy) (*Decision, error) {
	if err := o.statusRepo.Claim(ctx, pctx.UserID, weekNumber); err != nil {
		return nil, err
	}

	decision, err := o.decide(ctx, pctx, weekNumber, strategy)
	if err != nil {
		o.telemetry.recordFailure()
		o.failWeek(ctx, pctx.UserID, weekNumber, err)
		return nil, err
	}

	var snapshot *models.PlanningContext
	if weekNumber == 1 {
		snapshot = pctx
	}
	if err := o.weekRepo.SaveWeek(ctx, &decision.Plan, snapshot); err != nil {
		o.telemetry.recordFailure()
		o.failWeek(ctx, pctx.UserID, weekNumber, err)
		return nil, err
	}
	if err := o.statusRepo.MarkGenerated(ctx, pctx.UserID, weekNumber); err != nil {
		return nil, err
	}

	o.telemetry.record(decision, o.cfg.AvgAICostUSD)
	o.appendLog(ctx, pctx.UserID, weekNumber, decision, nil)
	o.logger.Info("generation_decision",
		zap.String("user_id", pctx.UserID.String()),
		zap.Int("week", weekNumber),
		zap.String("source", string(decision.Source)),
		zap.Float64("cost_usd", decision.CostUSD),
		zap.Float64("similarity", decision.Similarity),
		zap.Int("adaptations", len(decision.Adaptations)),
		zap.Int64("latency_ms", decision.LatencyMs),
		zap.Bool("degraded", decision.Degraded),
	)
	return decision, nil
}

// decide picks cache-exact, cache-adapted or AI generation, in that order.
func (o *Orchestrator) decide(ctx context.Context, pctx *models.PlanningContext, weekNumber int, strategy ai.Strategy) (*Decision, error) {
	started := time.Now()
	fp := semcache.Fingerprint(pctx)

	match, err := o.cache.BestMatch(ctx, pctx)
	if err != nil {
		// A cache outage must not block generation
		o.logger.Warn("cache_lookup_failed", zap.Error(err))
		match = nil
	}

	degraded := o.budget.Exhausted()

	if match != nil {
		score := match.Similarity.Score
		if score >= o.cfg.Thresholds.Exact {
			if _, err := o.cache.Touch(ctx, match.Record.Fingerprint); err != nil {
				o.logger.Warn("cache_touch_failed", zap.Error(err))
			}
			plan := rebasePlan(match.Record.Plan, pctx, weekNumber)
			plan.Source = models.PlanSourceCacheExact
			return &Decision{
				Plan:       plan,
				Source:     models.PlanSourceCacheExact,
				CostUSD:    0,
				Similarity: score,
				LatencyMs:  time.Since(started).Milliseconds(),
				Degraded:   degraded,
			}, nil
		}
		if score >= o.cfg.Thresholds.Adapt || degraded {
			// In degraded mode the similarity gate is waived; the
			// adaptation engine's hard safety rules never are.
			if adapted := semcache.Adapt(pctx, match.Record, match.Similarity); adapted != nil {
				if _, err := o.cache.Touch(ctx, match.Record.Fingerprint); err != nil {
					o.logger.Warn("cache_touch_failed", zap.Error(err))
				}
				plan := rebasePlan(adapted.Plan, pctx, weekNumber)
				plan.Source = models.PlanSourceCacheAdapted
				return &Decision{
					Plan:        plan,
					Source:      models.PlanSourceCacheAdapted,
					CostUSD:     0,
					Similarity:  score,
					Adaptations: adapted.Adaptations,
					LatencyMs:   time.Since(started).Milliseconds(),
					Degraded:    degraded,
				}, nil
			}
		}
	}

	if degraded {
		return nil, ErrBudgetExhausted
	}

	result, err := o.pipeline.GenerateWeek(ctx, pctx, weekNumber, weekStartDate(pctx, weekNumber), strategy)
	if err != nil {
		if ai.IsQuotaError(err) {
			o.budget.ForceExhausted()
		}
		return nil, err
	}
	o.budget.Spend(result.CostUSD)

	// Write-through: every AI generation lands in the cache
	record := &models.CachedPlanRecord{
		Fingerprint: fp,
		Context:     *pctx,
		Plan:        result.Plan,
		Source:      models.PlanSourceAI,
		CostUSD:     result.CostUSD,
		CreatedAt:   time.Now().UTC(),
		LastUsedAt:  time.Now().UTC(),
	}
	if err := o.cache.Put(ctx, record); err != nil {
		o.logger.Warn("cache_write_through_failed", zap.Error(err))
	}

	return &Decision{
		Plan:         result.Plan,
		Source:       models.PlanSourceAI,
		CostUSD:      result.CostUSD,
		Model:        result.Model,
		InputTokens:  result.InputTokens,
		OutputTokens: result.OutputTokens,
		LatencyMs:    time.Since(started).Milliseconds(),
	}, nil
}

func (o *Orchestrator) failWeek(ctx context.Context, userID uuid.UUID, weekNumber int, cause error) {
	if errors.Is(cause, database.ErrWeekConflict) {
		return
	}
	if err := o.statusRepo.MarkError(ctx, userID, weekNumber, cause.Error()); err != nil {
		o.logger.Error("failed_to_mark_week_error", zap.Error(err), zap.Int("week", weekNumber))
	}
	o.appendLog(ctx, userID, weekNumber, nil, cause)
}

func (o *Orchestrator) appendLog(ctx context.Context, userID uuid.UUID, weekNumber int, d *Decision, cause error) {
	log := &models.GenerationLog{
		UserID:     userID,
		WeekNumber: weekNumber,
		Success:    cause == nil,
	}
	if d != nil {
		log.Source = d.Source
		log.Model = d.Model
		log.Similarity = d.Similarity
		log.Adaptations = len(d.Adaptations)
		log.CostUSD = d.CostUSD
		log.InputTokens = d.InputTokens
		log.OutputTokens = d.OutputTokens
		log.DurationMs = d.LatencyMs
	}
	if cause != nil {
		log.Error = cause.Error()
	}
	if err := o.logRepo.Append(ctx, log); err != nil {
		o.logger.Error("failed_to_append_generation_log", zap.Error(err))
	}
}

// rebasePlan re-anchors a cached plan onto the requesting user and week:
// fresh ID, the caller's user and week number, dates stamped from the
// caller's plan start.
func rebasePlan(plan models.WeekPlan, pctx *models.PlanningContext, weekNumber int) models.WeekPlan {
	out := plan
	out.ID = uuid.New()
	out.UserID = pctx.UserID
	out.WeekNumber = weekNumber
	out.Phase = pctx.PhaseForWeek(weekNumber)
	out.Active = true
	out.Days = make([]models.DayPlan, len(plan.Days))
	copy(out.Days, plan.Days)

	start := weekStartDate(pctx, weekNumber)
	for i := range out.Days {
		out.Days[i].Date = start.AddDate(0, 0, i).Format("2006-01-02")
	}
	out.StartDate = start.Format("2006-01-02")
	out.EndDate = start.AddDate(0, 0, 6).Format("2006-01-02")
	out.ComputeStats()
	return out
}

// weekStartDate anchors week N at N-1 weeks after the plan's creation date.
func weekStartDate(pctx *models.PlanningContext, weekNumber int) time.Time {
	base := pctx.CreatedAt.UTC().Truncate(24 * time.Hour)
	return base.AddDate(0, 0, (weekNumber-1)*7)
}

// String implements fmt.Stringer for log ergonomics.
func (d *Decision) String() string {
	return fmt.Sprintf("%s (similarity %.2f, cost $%.4f)", d.Source, d.Similarity, d.CostUSD)
}

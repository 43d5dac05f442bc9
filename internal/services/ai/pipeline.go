package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/fitforge/fitforge/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Strategy selects how a week is generated.
type Strategy string

const (
	// StrategyChunked splits the week into fixed contiguous day ranges,
	// trading more round-trips for reliability against truncation on
	// full-week requests.
	StrategyChunked Strategy = "chunked"
	// StrategyWholeWeek issues a single full-week request, used for
	// regeneration.
	StrategyWholeWeek Strategy = "whole_week"
)

// PipelineConfig holds every tunable the pipeline reads. It is passed in
// explicitly so tests can inject alternative models, retry counts and chunk
// ranges.
type PipelineConfig struct {
	Models               []string
	MaxRetries           int
	BackoffBase          time.Duration
	ChunkRanges          [][2]int
	InterChunkDelay      time.Duration
	PromptCostPerMTok    float64
	CompletionCostPerMTok float64
}

// DefaultPipelineConfig returns the production defaults: three retries per
// model with 2s/4s/6s backoff and a 2+2+2+1 day chunking layout.
func DefaultPipelineConfig(models []string) PipelineConfig {
	return PipelineConfig{
		Models:                models,
		MaxRetries:            3,
		BackoffBase:           2 * time.Second,
		ChunkRanges:           [][2]int{{1, 2}, {3, 4}, {5, 6}, {7, 7}},
		InterChunkDelay:       1 * time.Second,
		PromptCostPerMTok:     0.15,
		CompletionCostPerMTok: 0.60,
	}
}

// WeekResult is a structurally validated week produced by the pipeline.
type WeekResult struct {
	Plan         models.WeekPlan
	Model        string
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
	DurationMs   int64
}

// Pipeline produces structurally valid week plans despite an unreliable
// upstream service, by chunking requests and folding over an explicit
// (model, attempt) sequence.
type Pipeline struct {
	provider Provider
	cfg      PipelineConfig
	logger   *zap.Logger

	// sleep is swapped out in tests to avoid real backoff waits
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPipeline creates a generation pipeline.
func NewPipeline(provider Provider, cfg PipelineConfig, logger *zap.Logger) *Pipeline {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 2 * time.Second
	}
	if len(cfg.ChunkRanges) == 0 {
		cfg.ChunkRanges = [][2]int{{1, 2}, {3, 4}, {5, 6}, {7, 7}}
	}
	return &Pipeline{
		provider: provider,
		cfg:      cfg,
		logger:   logger,
		sleep:    contextSleep,
	}
}

// GenerateWeek produces one validated WeekPlan for the given context and
// week number. The start date anchors the day dates.
func (p *Pipeline) GenerateWeek(ctx context.Context, pctx *models.PlanningContext, weekNumber int, startDate time.Time, strategy Strategy) (*WeekResult, error) {
	started := time.Now()
	result := &WeekResult{}

	var days []models.DayPlan
	switch strategy {
	case StrategyWholeWeek:
		chunkDays, err := p.generateRange(ctx, result, pctx, weekNumber, 1, daysPerWeek)
		if err != nil {
			return nil, err
		}
		days = chunkDays
	default:
		for i, r := range p.cfg.ChunkRanges {
			if i > 0 && p.cfg.InterChunkDelay > 0 {
				// Fixed pause between chunk requests to avoid rate limiting
				if err := p.sleep(ctx, p.cfg.InterChunkDelay); err != nil {
					return nil, err
				}
			}
			chunkDays, err := p.generateRange(ctx, result, pctx, weekNumber, r[0], r[1])
			if err != nil {
				return nil, err
			}
			if err := ValidateChunk(chunkDays, r[1]-r[0]+1); err != nil {
				return nil, err
			}
			days = append(days, chunkDays...)
		}
	}

	stampDates(days, startDate)
	if err := ValidateWeek(days); err != nil {
		return nil, err
	}
	if err := ValidateWeekTargets(days, pctx.Targets); err != nil {
		return nil, err
	}

	plan := models.WeekPlan{
		ID:         uuid.New(),
		UserID:     pctx.UserID,
		WeekNumber: weekNumber,
		StartDate:  startDate.Format("2006-01-02"),
		EndDate:    startDate.AddDate(0, 0, daysPerWeek-1).Format("2006-01-02"),
		Phase:      pctx.PhaseForWeek(weekNumber),
		Days:       days,
		Source:     models.PlanSourceAI,
		Active:     true,
		CreatedAt:  time.Now().UTC(),
	}
	plan.ComputeStats()

	result.Plan = plan
	result.CostUSD = float64(result.InputTokens)/1e6*p.cfg.PromptCostPerMTok +
		float64(result.OutputTokens)/1e6*p.cfg.CompletionCostPerMTok
	result.DurationMs = time.Since(started).Milliseconds()
	return result, nil
}

// generateRange requests days from..to of the week, walking the model
// fallback chain.
func (p *Pipeline) generateRange(ctx context.Context, result *WeekResult, pctx *models.PlanningContext, weekNumber, from, to int) ([]models.DayPlan, error) {
	prompt := buildDayRangePrompt(pctx, weekNumber, from, to)
	completion, model, err := p.completeWithFallback(ctx, prompt)
	if err != nil {
		return nil, err
	}
	result.Model = model
	result.InputTokens += completion.InputTokens
	result.OutputTokens += completion.OutputTokens

	days, err := parseDays(completion.Content)
	if err != nil {
		return nil, err
	}
	return days, nil
}

// attempt is one step of the fallback plan: try number `try` against
// `model`. try 0 is the initial attempt; 1..maxRetries are retries.
type attempt struct {
	model string
	try   int
}

// attemptSequence expands the model list into the full ordered attempt plan,
// one initial attempt plus maxRetries retries per model. Expressing the plan
// as data keeps the fallback order independently testable.
func attemptSequence(modelList []string, maxRetries int) []attempt {
	seq := make([]attempt, 0, len(modelList)*(maxRetries+1))
	for _, m := range modelList {
		for try := 0; try <= maxRetries; try++ {
			seq = append(seq, attempt{model: m, try: try})
		}
	}
	return seq
}

// completeWithFallback folds the attempt sequence into one outcome. Transient
// overload errors are retried with backoff within a model; any other
// upstream error abandons that model's remaining attempts and advances to
// the next. Structural validation happens after a successful completion and
// is never retried here.
func (p *Pipeline) completeWithFallback(ctx context.Context, prompt string) (*Completion, string, error) {
	var lastErr error
	skipModel := ""

	for _, at := range attemptSequence(p.cfg.Models, p.cfg.MaxRetries) {
		if at.model == skipModel {
			continue
		}
		if at.try > 0 {
			backoff := p.cfg.BackoffBase * time.Duration(at.try)
			if err := p.sleep(ctx, backoff); err != nil {
				return nil, "", err
			}
		}

		completion, err := p.provider.Complete(ctx, at.model, systemInstruction, prompt)
		if err == nil {
			return completion, at.model, nil
		}
		lastErr = err

		if p.logger != nil {
			p.logger.Warn("generation_attempt_failed",
				zap.String("model", at.model),
				zap.Int("attempt", at.try+1),
				zap.Bool("transient", IsTransientUpstream(err)),
				zap.Error(err),
			)
		}

		if !IsTransientUpstream(err) {
			// Abort this model; the next model may still succeed
			skipModel = at.model
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no models configured")
	}
	return nil, "", &PipelineError{Models: p.cfg.Models, LastErr: lastErr}
}

func stampDates(days []models.DayPlan, startDate time.Time) {
	for i := range days {
		days[i].Date = startDate.AddDate(0, 0, i).Format("2006-01-02")
	}
}

func contextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

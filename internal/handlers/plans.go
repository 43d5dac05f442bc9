package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/fitforge/fitforge/internal/database"
	"github.com/fitforge/fitforge/internal/middleware"
	"github.com/fitforge/fitforge/internal/models"
	"github.com/fitforge/fitforge/internal/orchestrator"
	"github.com/fitforge/fitforge/internal/planner"
	"github.com/fitforge/fitforge/internal/queue"
	"github.com/fitforge/fitforge/internal/semcache"
	"github.com/fitforge/fitforge/internal/services/ai"
	"github.com/fitforge/fitforge/internal/validation"
	"github.com/fitforge/fitforge/internal/workers"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// PlanGenerator is the slice of the orchestrator the HTTP layer uses.
type PlanGenerator interface {
	GenerateWeek(ctx context.Context, pctx *models.PlanningContext, weekNumber int, strategy ai.Strategy) (*orchestrator.Decision, error)
	Telemetry() orchestrator.TelemetrySnapshot
}

// CacheStatsSource exposes cache-level statistics for the metrics surface.
type CacheStatsSource interface {
	Stats(ctx context.Context) (*semcache.Stats, error)
}

// PlanHandler handles plan lifecycle requests
type PlanHandler struct {
	generator   PlanGenerator
	calc        *planner.Calculator
	statusRepo  database.WeekStatusRepositoryInterface
	weekRepo    database.WeekPlanRepositoryInterface
	profileRepo database.ProfileRepositoryInterface
	cacheStats  CacheStatsSource
	jobQueue    queue.JobQueue
	scheduler   *workers.Scheduler
	logger      *zap.Logger
}

// NewPlanHandler creates a new plan handler
func NewPlanHandler(
	generator PlanGenerator,
	calc *planner.Calculator,
	statusRepo database.WeekStatusRepositoryInterface,
	weekRepo database.WeekPlanRepositoryInterface,
	profileRepo database.ProfileRepositoryInterface,
	cacheStats CacheStatsSource,
	jobQueue queue.JobQueue,
	scheduler *workers.Scheduler,
	logger *zap.Logger,
) *PlanHandler {
	return &PlanHandler{
		generator:   generator,
		calc:        calc,
		statusRepo:  statusRepo,
		weekRepo:    weekRepo,
		profileRepo: profileRepo,
		cacheStats:  cacheStats,
		jobQueue:    jobQueue,
		scheduler:   scheduler,
		logger:      logger,
	}
}

// RegisterRoutes registers plan routes on the given router.
// The router should already have the /api/v1 prefix.
func (h *PlanHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/plans", h.InitiatePlan).Methods("POST")
	r.HandleFunc("/plans/status", h.GetStatus).Methods("GET")
	r.HandleFunc("/plans/weeks/{week}", h.GetWeek).Methods("GET")
	r.HandleFunc("/plans/regenerate", h.Regenerate).Methods("POST")
	r.HandleFunc("/metrics/cache", h.CacheMetrics).Methods("GET")
}

// InitiatePlanResponse is the synchronous response to plan initiation:
// week 1 in full, the rest as pending skeleton.
type InitiatePlanResponse struct {
	Week1    models.WeekPlan     `json:"week_1"`
	Source   models.PlanSource   `json:"source"`
	Skeleton models.PlanSkeleton `json:"skeleton"`
}

// InitiatePlan builds the planning context from onboarding answers,
// generates week 1 synchronously and schedules the remaining weeks.
func (h *PlanHandler) InitiatePlan(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	var answers planner.OnboardingAnswers
	if err := json.NewDecoder(r.Body).Decode(&answers); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := validation.Validate.Struct(answers); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}
	answers.Intolerances = validation.SanitizeList(answers.Intolerances)
	answers.Allergies = validation.SanitizeList(answers.Allergies)

	ctx := r.Context()
	pctx := h.calc.BuildContext(user.ID, answers)
	totalWeeks := pctx.Planning.TotalWeeks

	if err := h.statusRepo.EnsurePlaceholders(ctx, user.ID, totalWeeks); err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Failed to initiate plan", err.Error())
		return
	}

	decision, err := h.generator.GenerateWeek(ctx, &pctx, 1, ai.StrategyChunked)
	if err != nil {
		if errors.Is(err, database.ErrWeekConflict) {
			respondJSONError(w, http.StatusConflict, "Plan generation already in progress", "week 1 is already being generated")
			return
		}
		if errors.Is(err, orchestrator.ErrBudgetExhausted) {
			respondJSONError(w, http.StatusServiceUnavailable, "Generation temporarily unavailable", "daily generation budget exhausted")
			return
		}
		h.logger.Error("plan_initiation_failed",
			zap.String("user_id", user.ID.String()),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusBadGateway, "Plan generation failed", err.Error())
		return
	}

	if err := h.scheduler.ScheduleWeeks(ctx, user.ID, 2, totalWeeks); err != nil {
		// Week 1 is already persisted; the reconciler will pick up the rest
		h.logger.Error("failed_to_schedule_background_weeks",
			zap.String("user_id", user.ID.String()),
			zap.Error(err),
		)
	}

	skeleton, err := h.skeleton(ctx, user.ID, totalWeeks)
	if err != nil {
		h.logger.Warn("failed_to_build_skeleton", zap.Error(err))
		skeleton = models.PlanSkeleton{TotalWeeks: totalWeeks}
	}

	respondJSON(w, http.StatusCreated, InitiatePlanResponse{
		Week1:    decision.Plan,
		Source:   decision.Source,
		Skeleton: skeleton,
	})
}

// GetStatus returns the per-week skeleton without day content.
func (h *PlanHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	statuses, err := h.statusRepo.List(r.Context(), user.ID)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Failed to get plan status", err.Error())
		return
	}
	if len(statuses) == 0 {
		respondJSONError(w, http.StatusNotFound, "No plan found", "initiate a plan first")
		return
	}

	respondJSON(w, http.StatusOK, models.PlanSkeleton{
		TotalWeeks: len(statuses),
		Weeks:      statuses,
	})
}

// GetWeek returns one generated week in full.
func (h *PlanHandler) GetWeek(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	weekNumber, err := strconv.Atoi(mux.Vars(r)["week"])
	if err != nil || weekNumber < 1 {
		respondJSONError(w, http.StatusBadRequest, "Invalid week number", "week must be a positive integer")
		return
	}

	plan, err := h.weekRepo.GetWeek(r.Context(), user.ID, weekNumber)
	if err != nil {
		if errors.Is(err, database.ErrWeekNotFound) {
			// Distinguish "not generated yet" from "no such week"
			statuses, listErr := h.statusRepo.List(r.Context(), user.ID)
			if listErr == nil {
				for _, s := range statuses {
					if s.WeekNumber == weekNumber {
						respondJSON(w, http.StatusAccepted, s)
						return
					}
				}
			}
			respondJSONError(w, http.StatusNotFound, "Week not found", "no such week in the active plan")
			return
		}
		respondJSONError(w, http.StatusInternalServerError, "Failed to get week", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, plan)
}

// Regenerate archives the active plan and rebuilds it in the background.
func (h *PlanHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	ctx := r.Context()
	if _, err := h.profileRepo.Get(ctx, user.ID); err != nil {
		respondJSONError(w, http.StatusNotFound, "No plan to regenerate", "initiate a plan first")
		return
	}

	if err := workers.EnqueueRegeneration(ctx, h.jobQueue, user.ID); err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Failed to enqueue regeneration", err.Error())
		return
	}

	h.logger.Info("plan_regeneration_requested", zap.String("user_id", user.ID.String()))
	respondJSON(w, http.StatusAccepted, map[string]any{
		"status":       "regeneration_queued",
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}

// CacheMetricsResponse joins orchestrator aggregates with cache-level stats.
type CacheMetricsResponse struct {
	Decisions orchestrator.TelemetrySnapshot `json:"decisions"`
	Cache     *semcache.Stats                `json:"cache,omitempty"`
}

// CacheMetrics returns hit rate, cost saved and cache size.
func (h *PlanHandler) CacheMetrics(w http.ResponseWriter, r *http.Request) {
	resp := CacheMetricsResponse{Decisions: h.generator.Telemetry()}

	stats, err := h.cacheStats.Stats(r.Context())
	if err != nil {
		h.logger.Warn("failed_to_collect_cache_stats", zap.Error(err))
	} else {
		resp.Cache = stats
	}

	respondJSON(w, http.StatusOK, resp)
}

func (h *PlanHandler) skeleton(ctx context.Context, userID uuid.UUID, totalWeeks int) (models.PlanSkeleton, error) {
	statuses, err := h.statusRepo.List(ctx, userID)
	if err != nil {
		return models.PlanSkeleton{}, err
	}
	return models.PlanSkeleton{TotalWeeks: totalWeeks, Weeks: statuses}, nil
}

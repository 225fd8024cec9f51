package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/auratask/auratask/internal/domain"
	"github.com/auratask/auratask/internal/nlp"
	"github.com/auratask/auratask/internal/postgres"
	redisstore "github.com/auratask/auratask/internal/redis"
	"github.com/auratask/auratask/internal/timeutil"
	"github.com/auratask/auratask/internal/urgency"
	"github.com/auratask/auratask/pkg/telemetry"
)

// ownerHeader identifies the requesting user. There is no auth layer in
// front of this; deployments put one there.
const ownerHeader = "X-User-ID"

// REST handles HTTP requests for the API gateway.
type REST struct {
	repo   postgres.TaskRepository
	cache  redisstore.ScoreCache
	parser *nlp.Client // nil = parse endpoint disabled
	logger *slog.Logger
}

// NewREST creates a new REST handler.
func NewREST(repo postgres.TaskRepository, cache redisstore.ScoreCache, parser *nlp.Client, logger *slog.Logger) *REST {
	return &REST{repo: repo, cache: cache, parser: parser, logger: logger}
}

// CreateTaskRequest is the JSON body for POST /api/v1/tasks. Due is the
// wall-clock due time as the user sees it; Timezone interprets it.
type CreateTaskRequest struct {
	Title    string             `json:"title"`
	Notes    string             `json:"notes,omitempty"`
	Priority domain.Priority    `json:"priority"`
	Due      timeutil.CivilTime `json:"due"`
	Timezone string             `json:"timezone"`
}

// UpdateTaskRequest is the JSON body for PATCH /api/v1/tasks/{id}. Nil
// fields are left untouched. Changing Due resets the reminder state.
type UpdateTaskRequest struct {
	Title    *string             `json:"title,omitempty"`
	Notes    *string             `json:"notes,omitempty"`
	Priority *domain.Priority    `json:"priority,omitempty"`
	Due      *timeutil.CivilTime `json:"due,omitempty"`
	Timezone string              `json:"timezone,omitempty"`
}

// SnoozeRequest is the JSON body for POST /api/v1/tasks/{id}/snooze.
// A nil Until clears an existing snooze.
type SnoozeRequest struct {
	Until    *timeutil.CivilTime `json:"until,omitempty"`
	Timezone string              `json:"timezone,omitempty"`
}

// ParseTaskRequest is the JSON body for POST /api/v1/tasks/parse.
type ParseTaskRequest struct {
	Text     string `json:"text"`
	Timezone string `json:"timezone"`
}

// TaskResponse is the representation of one task in API responses.
type TaskResponse struct {
	ID           string                `json:"id"`
	Title        string                `json:"title"`
	Notes        string                `json:"notes,omitempty"`
	Priority     domain.Priority       `json:"priority"`
	Status       domain.Status         `json:"status"`
	DueAt        time.Time             `json:"due_at"`
	Timezone     string                `json:"timezone"`
	SnoozedUntil *time.Time            `json:"snoozed_until,omitempty"`
	UrgencyScore float64               `json:"urgency_score"`
	UrgencyLevel string                `json:"urgency_level"`
	Sent         []domain.ReminderKind `json:"sent_reminders,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

func (h *REST) taskResponse(r *http.Request, task *domain.Task) TaskResponse {
	score := task.UrgencyScore
	// The cache holds the ranker's latest pass; fall back to the persisted
	// value when cold.
	if cached, err := h.cache.GetScore(r.Context(), task.ID); err == nil {
		score = cached
	}
	return TaskResponse{
		ID:           task.ID,
		Title:        task.Title,
		Notes:        task.Notes,
		Priority:     task.Priority,
		Status:       task.Status,
		DueAt:        task.DueAt,
		Timezone:     task.Timezone,
		SnoozedUntil: task.SnoozedUntil,
		UrgencyScore: score,
		UrgencyLevel: urgency.Level(score),
		Sent:         task.Sent.Kinds(),
		CreatedAt:    task.CreatedAt,
		UpdatedAt:    task.UpdatedAt,
	}
}

func owner(r *http.Request) string {
	if id := r.Header.Get(ownerHeader); id != "" {
		return id
	}
	return "default"
}

// CreateTask handles POST /api/v1/tasks.
func (h *REST) CreateTask(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("api-gateway").Start(r.Context(), "api_gateway.create_task")
	defer span.End()
	r = r.WithContext(ctx)

	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "field 'title' is required")
		return
	}
	if req.Priority == "" {
		req.Priority = domain.PriorityMedium
	}
	if !req.Priority.Valid() {
		writeError(w, http.StatusBadRequest, "unknown priority")
		return
	}
	if req.Timezone == "" {
		writeError(w, http.StatusBadRequest, "field 'timezone' is required")
		return
	}

	dueAt, err := timeutil.ToInstant(req.Due, req.Timezone)
	if err != nil {
		var badZone *domain.InvalidZoneError
		if errors.As(err, &badZone) {
			writeError(w, http.StatusBadRequest, "unknown timezone")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid due time")
		return
	}

	now := time.Now().UTC()
	score, _ := urgency.Score(req.Priority, dueAt, now)
	task := &domain.Task{
		ID:           uuid.New().String(),
		OwnerID:      owner(r),
		Title:        req.Title,
		Notes:        req.Notes,
		Priority:     req.Priority,
		Status:       domain.StatusActive,
		DueAt:        dueAt,
		Timezone:     req.Timezone,
		UrgencyScore: score,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	span.SetAttributes(attribute.String("task.id", task.ID))

	if err := h.repo.Create(r.Context(), task); err != nil {
		h.logger.Error("failed to create task", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to create task")
		return
	}

	telemetry.APITasksCreated.Inc()
	h.logger.Info("task created",
		slog.String("task_id", task.ID),
		slog.String("priority", string(task.Priority)),
		slog.Time("due_at", task.DueAt),
	)
	writeJSON(w, http.StatusCreated, h.taskResponse(r, task))
}

// ListTasks handles GET /api/v1/tasks: every ACTIVE task, most urgent first.
func (h *REST) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.repo.ListActive(r.Context())
	if err != nil {
		h.logger.Error("failed to list tasks", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}

	out := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, h.taskResponse(r, t))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UrgencyScore > out[j].UrgencyScore
	})
	writeJSON(w, http.StatusOK, out)
}

// GetTask handles GET /api/v1/tasks/{id}.
func (h *REST) GetTask(w http.ResponseWriter, r *http.Request) {
	task, ok := h.loadTask(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.taskResponse(r, task))
}

// UpdateTask handles PATCH /api/v1/tasks/{id}.
func (h *REST) UpdateTask(w http.ResponseWriter, r *http.Request) {
	task, ok := h.loadTask(w, r)
	if !ok {
		return
	}

	var req UpdateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	title, notes, priority := task.Title, task.Notes, task.Priority
	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			writeError(w, http.StatusBadRequest, "title cannot be empty")
			return
		}
		title = *req.Title
	}
	if req.Notes != nil {
		notes = *req.Notes
	}
	if req.Priority != nil {
		if !req.Priority.Valid() {
			writeError(w, http.StatusBadRequest, "unknown priority")
			return
		}
		priority = *req.Priority
	}

	if err := h.repo.UpdateDetails(r.Context(), task.ID, title, notes, priority); err != nil {
		h.writeRepoError(w, err)
		return
	}

	if req.Due != nil {
		zone := req.Timezone
		if zone == "" {
			zone = task.Timezone
		}
		dueAt, err := timeutil.ToInstant(*req.Due, zone)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid due time or timezone")
			return
		}
		// UpdateDue clears fired-reminder markers so the new deadline gets a
		// full set of reminders.
		if err := h.repo.UpdateDue(r.Context(), task.ID, dueAt); err != nil {
			h.writeRepoError(w, err)
			return
		}
	}

	updated, err := h.repo.GetByID(r.Context(), task.ID)
	if err != nil {
		h.writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.taskResponse(r, updated))
}

// SnoozeTask handles POST /api/v1/tasks/{id}/snooze.
func (h *REST) SnoozeTask(w http.ResponseWriter, r *http.Request) {
	task, ok := h.loadTask(w, r)
	if !ok {
		return
	}

	var req SnoozeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var until *time.Time
	if req.Until != nil {
		zone := req.Timezone
		if zone == "" {
			zone = task.Timezone
		}
		instant, err := timeutil.ToInstant(*req.Until, zone)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid snooze time or timezone")
			return
		}
		until = &instant
	}

	if err := h.repo.Snooze(r.Context(), task.ID, until); err != nil {
		h.writeRepoError(w, err)
		return
	}

	updated, err := h.repo.GetByID(r.Context(), task.ID)
	if err != nil {
		h.writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.taskResponse(r, updated))
}

// CompleteTask handles POST /api/v1/tasks/{id}/complete.
func (h *REST) CompleteTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.repo.Complete(r.Context(), id); err != nil {
		h.writeRepoError(w, err)
		return
	}
	updated, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.taskResponse(r, updated))
}

// DeleteTask handles DELETE /api/v1/tasks/{id}.
func (h *REST) DeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeRepoError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ParseTask handles POST /api/v1/tasks/parse: free-form text goes to the
// external parser, the extracted task is created like any other.
func (h *REST) ParseTask(w http.ResponseWriter, r *http.Request) {
	if h.parser == nil {
		writeError(w, http.StatusServiceUnavailable, "natural-language parsing is not configured")
		return
	}

	var req ParseTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "field 'text' is required")
		return
	}
	if req.Timezone == "" {
		writeError(w, http.StatusBadRequest, "field 'timezone' is required")
		return
	}

	parsed, err := h.parser.Parse(r.Context(), req.Text, req.Timezone)
	if err != nil {
		var badZone *domain.InvalidZoneError
		if errors.As(err, &badZone) {
			writeError(w, http.StatusBadRequest, "unknown timezone")
			return
		}
		h.logger.Error("parse request failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "parser unavailable")
		return
	}

	now := time.Now().UTC()
	score, _ := urgency.Score(parsed.Priority, parsed.DueAt, now)
	task := &domain.Task{
		ID:           uuid.New().String(),
		OwnerID:      owner(r),
		Title:        parsed.Title,
		Priority:     parsed.Priority,
		Status:       domain.StatusActive,
		DueAt:        parsed.DueAt,
		Timezone:     req.Timezone,
		UrgencyScore: score,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.repo.Create(r.Context(), task); err != nil {
		h.logger.Error("failed to create parsed task", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to create task")
		return
	}

	telemetry.APITasksCreated.Inc()
	writeJSON(w, http.StatusCreated, h.taskResponse(r, task))
}

// GetSettings handles GET /api/v1/settings.
func (h *REST) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.repo.GetChannelSettings(r.Context(), owner(r))
	if err != nil {
		h.logger.Error("failed to load settings", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// PutSettings handles PUT /api/v1/settings.
func (h *REST) PutSettings(w http.ResponseWriter, r *http.Request) {
	var settings domain.ChannelSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	settings.OwnerID = owner(r)
	if err := h.repo.UpsertChannelSettings(r.Context(), &settings); err != nil {
		h.logger.Error("failed to save settings", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// Healthz handles GET /healthz.
func (h *REST) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz handles GET /readyz — verifies the store answers.
func (h *REST) Readyz(w http.ResponseWriter, r *http.Request) {
	_, err := h.repo.GetByID(r.Context(), "00000000-0000-0000-0000-000000000000")
	var notFound *domain.TaskNotFoundError
	if err != nil && !errors.As(err, &notFound) {
		writeError(w, http.StatusServiceUnavailable, "store not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *REST) loadTask(w http.ResponseWriter, r *http.Request) (*domain.Task, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "task ID is required")
		return nil, false
	}
	task, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.writeRepoError(w, err)
		return nil, false
	}
	return task, true
}

func (h *REST) writeRepoError(w http.ResponseWriter, err error) {
	var notFound *domain.TaskNotFoundError
	if errors.As(err, &notFound) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	h.logger.Error("repository error", slog.String("error", err.Error()))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/govconsole/internal/listing/filters"
	"github.com/odyssey-erp/govconsole/internal/listing/query"
	"github.com/odyssey-erp/govconsole/internal/listing/sorting"
	"github.com/odyssey-erp/govconsole/internal/platform/httpx"
	"github.com/odyssey-erp/govconsole/internal/shared"
	"github.com/odyssey-erp/govconsole/internal/view"
)

// Action names accepted by the actions endpoint.
const (
	ActionToggle     = "toggle"
	ActionOpen       = "open"
	ActionClose      = "close"
	ActionToggleOpen = "toggle_open"
	ActionDateRange  = "date_range"
	ActionBlur       = "blur"
	ActionNodes      = "nodes"
	ActionReset      = "reset"
	ActionResetAll   = "reset_all"
	ActionClearAll   = "clear_all"
	ActionSort       = "sort"
	ActionSortOrder  = "sort_order"
	ActionPreset     = "preset"
	ActionPage       = "page"
	ActionKeyword    = "keyword"
	ActionRefresh    = "refresh"
)

// ActionRequest is one user interaction with a list screen.
type ActionRequest struct {
	Action  string     `json:"action" validate:"required,oneof=toggle open close toggle_open date_range blur nodes reset reset_all clear_all sort sort_order preset page keyword refresh"`
	Filter  string     `json:"filter"`
	Option  string     `json:"option"`
	Start   *time.Time `json:"start"`
	End     *time.Time `json:"end"`
	Nodes   []string   `json:"nodes"`
	Column  string     `json:"column"`
	Order   string     `json:"order"`
	Preset  string     `json:"preset"`
	Page    int        `json:"page"`
	Keyword string     `json:"keyword"`
}

// Handler serves the list screens.
type Handler struct {
	logger    *slog.Logger
	store     *Store
	templates *view.Engine
	csrf      *shared.CSRFManager
}

// NewHandler constructs the console handler.
func NewHandler(logger *slog.Logger, store *Store, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	return &Handler{logger: logger, store: store, templates: templates, csrf: csrf}
}

// MountRoutes registers the screen routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.Index)
	r.Route("/{screen}", func(r chi.Router) {
		r.Get("/", h.Show)
		r.Get("/state", h.State)
		r.Post("/actions", h.Act)
		r.Post("/discard", h.Discard)
	})
}

// Index lists the available screens.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	defs := h.store.Registry().List()
	if wantsJSON(r) {
		out := make([]map[string]string, 0, len(defs))
		for _, d := range defs {
			out = append(out, map[string]string{"key": d.Key, "title": d.Title, "description": d.Description})
		}
		httpx.JSON(w, http.StatusOK, out)
		return
	}
	h.render(w, r, "pages/screens.html", "Screens", defs, http.StatusOK)
}

// Show renders a screen with the session's workspace.
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	ws, err := h.workspace(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	v := ws.View()
	h.render(w, r, "pages/screen.html", v.Title, v, http.StatusOK)
}

// State returns the render model as JSON.
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	ws, err := h.workspace(r)
	if err != nil {
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, ws.View())
}

// Act applies one action. JSON requests receive the new render model; form
// posts are redirected back to the screen.
func (h *Handler) Act(w http.ResponseWriter, r *http.Request) {
	jsonBody := strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
	var (
		req ActionRequest
		err error
	)
	if jsonBody {
		err = httpx.DecodeJSON(r, &req)
	} else {
		req, err = parseActionForm(r)
	}
	if err == nil {
		err = validate.Struct(req)
	}
	if err != nil {
		if !errors.Is(err, httpx.ErrValidation) {
			err = fmt.Errorf("%w: %v", httpx.ErrValidation, err)
		}
		if jsonBody {
			httpx.RespondError(w, err)
		} else {
			h.redirectWithFlash(w, r, "danger", "Invalid request.")
		}
		return
	}

	ws, err := h.workspace(r)
	if err != nil {
		if jsonBody {
			httpx.RespondError(w, mapError(err))
		} else {
			h.fail(w, r, err)
		}
		return
	}
	if err := apply(r.Context(), ws, req); err != nil {
		h.logger.Info("screen action rejected", slog.String("screen", ws.def.Key), slog.String("action", req.Action), slog.Any("error", err))
		if jsonBody {
			httpx.RespondError(w, mapError(err))
		} else {
			h.redirectWithFlash(w, r, "danger", err.Error())
		}
		return
	}
	if jsonBody {
		httpx.JSON(w, http.StatusOK, ws.View())
		return
	}
	http.Redirect(w, r, screenPath(ws.def.Key), http.StatusSeeOther)
}

// Discard drops the session's workspace so the next visit starts fresh.
func (h *Handler) Discard(w http.ResponseWriter, r *http.Request) {
	screen := chi.URLParam(r, "screen")
	h.store.Drop(shared.SessionID(r.Context()), screen)
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.Forget(screen)
	}
	if wantsJSON(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, screenPath(screen), http.StatusSeeOther)
}

// ResetSession drops every workspace of the session and ends it.
func (h *Handler) ResetSession(w http.ResponseWriter, r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		dropped := h.store.DropSession(sess.ID, sess.Screens())
		sess.End()
		h.logger.Info("session reset", slog.Int("workspaces", dropped))
	}
	if wantsJSON(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, "/screens", http.StatusSeeOther)
}

func apply(ctx context.Context, ws *Workspace, req ActionRequest) error {
	switch req.Action {
	case ActionToggle:
		return ws.Toggle(ctx, req.Filter, req.Option)
	case ActionOpen:
		return ws.Open(req.Filter)
	case ActionClose:
		return ws.Close(req.Filter)
	case ActionToggleOpen:
		_, err := ws.ToggleOpen(req.Filter)
		return err
	case ActionDateRange:
		return ws.SetDateRange(ctx, req.Filter, req.Start, req.End)
	case ActionBlur:
		return ws.BlurDateRange(ctx, req.Filter)
	case ActionNodes:
		return ws.SetNodes(ctx, req.Filter, req.Nodes)
	case ActionReset:
		return ws.Reset(ctx, req.Filter)
	case ActionResetAll:
		ws.ResetAll(ctx)
	case ActionClearAll:
		ws.ClearAll(ctx)
	case ActionSort:
		return ws.SortClick(ctx, req.Column)
	case ActionSortOrder:
		order, ok := sorting.ParseOrder(req.Order)
		if !ok {
			return fmt.Errorf("console: order %q: %w", req.Order, sorting.ErrInvalidDirection)
		}
		return ws.SortOrder(ctx, req.Column, order)
	case ActionPreset:
		return ws.SortPreset(ctx, req.Preset)
	case ActionPage:
		ws.Page(ctx, req.Page)
	case ActionKeyword:
		return ws.SetKeyword(ctx, strings.TrimSpace(req.Keyword))
	case ActionRefresh:
		return ws.Refresh(ctx)
	default:
		return fmt.Errorf("console: action %q: %w", req.Action, httpx.ErrValidation)
	}
	return nil
}

func parseActionForm(r *http.Request) (ActionRequest, error) {
	if err := r.ParseForm(); err != nil {
		return ActionRequest{}, err
	}
	f := r.PostForm
	req := ActionRequest{
		Action:  f.Get("action"),
		Filter:  f.Get("filter"),
		Option:  f.Get("option"),
		Nodes:   f["nodes"],
		Column:  f.Get("column"),
		Order:   f.Get("order"),
		Preset:  f.Get("preset"),
		Keyword: f.Get("keyword"),
	}
	if raw := f.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			return ActionRequest{}, fmt.Errorf("page: %w", err)
		}
		req.Page = page
	}
	var err error
	if req.Start, err = parseDate(f.Get("start")); err != nil {
		return ActionRequest{}, fmt.Errorf("start: %w", err)
	}
	if req.End, err = parseDate(f.Get("end")); err != nil {
		return ActionRequest{}, fmt.Errorf("end: %w", err)
	}
	return req, nil
}

// parseDate accepts HTML date inputs and RFC 3339 timestamps.
func parseDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// workspace returns the session's workspace for the routed screen and
// records the visit so a session reset can release it.
func (h *Handler) workspace(r *http.Request) (*Workspace, error) {
	screen := chi.URLParam(r, "screen")
	ws, err := h.store.Get(r.Context(), shared.SessionID(r.Context()), screen)
	if err != nil {
		return nil, err
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.Visit(screen)
	}
	return ws, nil
}

func screenPath(key string) string {
	return "/screens/" + key
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// mapError translates domain errors into httpx sentinels.
func mapError(err error) error {
	switch {
	case errors.Is(err, ErrUnknownScreen):
		return fmt.Errorf("%w: %v", httpx.ErrNotFound, err)
	case errors.Is(err, filters.ErrUnknownFilter),
		errors.Is(err, filters.ErrKindMismatch),
		errors.Is(err, filters.ErrUnknownOption),
		errors.Is(err, filters.ErrOptionDisabled),
		errors.Is(err, filters.ErrInvalidRange),
		errors.Is(err, filters.ErrIncompleteRange),
		errors.Is(err, sorting.ErrUnknownColumn),
		errors.Is(err, sorting.ErrUnknownPreset),
		errors.Is(err, sorting.ErrInvalidDirection):
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	case errors.Is(err, query.ErrClosed):
		return fmt.Errorf("%w: screen was discarded, reload it", httpx.ErrConflict)
	}
	return err
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrUnknownScreen) {
		http.Error(w, "Screen not found", http.StatusNotFound)
		return
	}
	h.logger.Error("load workspace failed", slog.Any("error", err))
	http.Error(w, "Failed to load screen", http.StatusInternalServerError)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, data any, status int) {
	sess := shared.SessionFromContext(r.Context())
	var csrfToken string
	var flash *shared.FlashMessage
	if sess != nil {
		csrfToken, _ = h.csrf.EnsureToken(r.Context(), sess)
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err), slog.String("template", template))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, screenPath(chi.URLParam(r, "screen")), http.StatusSeeOther)
}

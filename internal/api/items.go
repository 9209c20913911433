package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/erazemk/oddaja/internal/audit"
	"github.com/erazemk/oddaja/internal/model"
	"github.com/erazemk/oddaja/internal/store"
	"github.com/erazemk/oddaja/internal/workflow"
)

// ItemsHandler runs the hand-off workflow on one item for the calling
// session.
type ItemsHandler struct {
	Store    store.ItemStore
	Sessions *Sessions
}

type workflowView struct {
	Session   string             `json:"session"`
	Item      *model.WorkItem    `json:"item"`
	Step      model.Step         `json:"step"`
	StepName  string             `json:"step_name"`
	Reference string             `json:"reference"`
	Enabled   []workflow.Action  `json:"enabled"`
	ClaimedBy string             `json:"claimed_by,omitempty"`
	Keymap    []workflow.Binding `json:"keymap,omitempty"`
}

type actionResponse struct {
	Notice   workflow.Notice `json:"notice"`
	Workflow workflowView    `json:"workflow"`
}

type referenceRequest struct {
	Reference string `json:"reference"`
}

type auditResponse struct {
	Kind      model.Kind   `json:"kind"`
	ID        string       `json:"id"`
	Status    model.Status `json:"status"`
	Tags      []audit.Tag  `json:"tags"`
	ClaimedBy string       `json:"claimed_by,omitempty"`
	DoneBy    string       `json:"done_by,omitempty"`
}

func view(ctrl *workflow.Controller) workflowView {
	st := ctrl.State()
	v := workflowView{
		Session:   ctrl.SessionID(),
		Item:      st.Item,
		Step:      st.Step,
		Reference: st.Reference,
		Enabled:   st.Enabled,
		ClaimedBy: st.ClaimedBy,
	}
	if st.Item != nil {
		v.StepName = st.Step.String()
	}
	if v.Enabled == nil {
		v.Enabled = []workflow.Action{}
	}
	return v
}

// open resolves the item in the path for the calling session. It writes the
// response and returns nil when the item cannot be opened.
func (h *ItemsHandler) open(w http.ResponseWriter, r *http.Request) *workflow.Controller {
	kind, err := model.ParseKind(r.PathValue("kind"))
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return nil
	}
	ctrl := h.Sessions.Get(GetSession(r.Context()))
	if n := ctrl.Open(r.Context(), kind, r.PathValue("id")); !n.OK() {
		jsonResponse(w, noticeStatus(n), actionResponse{Notice: n, Workflow: view(ctrl)})
		return nil
	}
	return ctrl
}

func (h *ItemsHandler) run(w http.ResponseWriter, r *http.Request, action workflow.Action, arg string) {
	ctrl := h.open(w, r)
	if ctrl == nil {
		return
	}
	n := ctrl.Do(r.Context(), action, arg)
	if claims := GetClaims(r.Context()); claims != nil && n.OK() {
		slog.Info("workflow action", "user", claims.Username, "session", ctrl.SessionID(), "action", action)
	}
	jsonResponse(w, noticeStatus(n), actionResponse{Notice: n, Workflow: view(ctrl)})
}

// Workflow handles GET /api/items/{kind}/{id}/workflow.
func (h *ItemsHandler) Workflow(w http.ResponseWriter, r *http.Request) {
	ctrl := h.open(w, r)
	if ctrl == nil {
		return
	}
	v := view(ctrl)
	v.Keymap = workflow.DefaultBindings
	jsonResponse(w, http.StatusOK, v)
}

// Claim handles POST /api/items/{kind}/{id}/claim.
func (h *ItemsHandler) Claim(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, workflow.ActionClaim, "")
}

// Step handles POST /api/items/{kind}/{id}/steps/{action}.
func (h *ItemsHandler) Step(w http.ResponseWriter, r *http.Request) {
	action := workflow.Action(r.PathValue("action"))
	if _, ok := workflow.CopyStep(action); !ok {
		jsonError(w, http.StatusBadRequest, "unknown step "+string(action))
		return
	}
	h.run(w, r, action, "")
}

// Reference handles PUT /api/items/{kind}/{id}/reference.
func (h *ItemsHandler) Reference(w http.ResponseWriter, r *http.Request) {
	var req referenceRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.run(w, r, workflow.ActionReference, req.Reference)
}

// Draft handles POST /api/items/{kind}/{id}/draft.
func (h *ItemsHandler) Draft(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, workflow.ActionDraft, "")
}

// Publish handles POST /api/items/{kind}/{id}/publish.
func (h *ItemsHandler) Publish(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, workflow.ActionPublish, "")
}

// Error handles POST /api/items/{kind}/{id}/error.
func (h *ItemsHandler) Error(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, workflow.ActionError, "")
}

// Audit handles GET /api/items/{kind}/{id}/audit. It reads the store
// directly, so finished items can be inspected too.
func (h *ItemsHandler) Audit(w http.ResponseWriter, r *http.Request) {
	kind, err := model.ParseKind(r.PathValue("kind"))
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := r.PathValue("id")

	rec, err := h.Store.Get(r.Context(), kind, id)
	switch {
	case errors.Is(err, model.ErrNotFound):
		jsonError(w, http.StatusNotFound, "item not found")
		return
	case errors.Is(err, model.ErrStoreUnavailable):
		slog.Error("loading item", "kind", kind, "item", id, "error", err)
		jsonError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	case err != nil:
		slog.Error("loading item", "kind", kind, "item", id, "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := auditResponse{Kind: kind, ID: id, Status: rec.Status, Tags: audit.ParseTags(rec.Notes)}
	if resp.Tags == nil {
		resp.Tags = []audit.Tag{}
	}
	resp.ClaimedBy, _ = audit.LastClaim(rec.Notes)
	resp.DoneBy, _ = audit.LastDone(rec.Notes)
	jsonResponse(w, http.StatusOK, resp)
}

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/erazemk/oddaja/internal/model"
	"github.com/erazemk/oddaja/internal/workflow"
)

// QueueHandler serves the session's view of the work queue.
type QueueHandler struct {
	Sessions *Sessions
}

type queueResponse struct {
	Items    []model.WorkItem `json:"items"`
	Selected int              `json:"selected"`
	Failed   []model.Kind     `json:"failed,omitempty"`
	BuiltAt  time.Time        `json:"built_at"`
	Notice   workflow.Notice  `json:"notice"`
}

// Get handles GET /api/queue. The optional selected parameter moves the
// selection and is clamped to the queue.
func (h *QueueHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctrl := h.Sessions.Get(GetSession(r.Context()))

	n := ctrl.Refresh(r.Context())
	if s := r.URL.Query().Get("selected"); s != "" && n.OK() {
		i, err := strconv.Atoi(s)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid selected index")
			return
		}
		ctrl.Select(i)
	}

	st := ctrl.State()
	jsonResponse(w, noticeStatus(n), queueResponse{
		Items:    st.Queue.Items(),
		Selected: st.Selected,
		Failed:   st.Queue.Failed(),
		BuiltAt:  st.Queue.BuiltAt(),
		Notice:   n,
	})
}

// Keymap handles GET /api/keymap.
func Keymap(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, workflow.DefaultBindings)
}

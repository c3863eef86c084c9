package api

import (
	"net/http"

	"github.com/xraph/distill/job"
)

type statsResponse struct {
	Jobs      map[job.Status]int `json:"jobs"`
	Active    int                `json:"active"`
	DLQCount  int64              `json:"dlq_count"`
	DLQExists bool               `json:"dlq_enabled"`
}

func (a *API) stats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{
		Jobs:   make(map[job.Status]int),
		Active: a.eng.Admission().Active(),
	}
	for _, snap := range a.eng.Jobs() {
		resp.Jobs[snap.Status]++
	}

	if svc := a.eng.DLQ(); svc != nil {
		resp.DLQExists = true
		count, err := svc.Store().CountDLQ(r.Context())
		if err != nil {
			a.writeError(w, err)
			return
		}
		resp.DLQCount = count
	}

	a.writeJSON(w, http.StatusOK, resp)
}

package api

import (
	"fmt"
	"net/http"

	"github.com/xraph/distill/id"
	"github.com/xraph/distill/job"
)

func (a *API) listJobs(w http.ResponseWriter, r *http.Request) {
	snaps := a.eng.Jobs()

	if status := r.URL.Query().Get("status"); status != "" {
		filtered := snaps[:0]
		for _, s := range snaps {
			if string(s.Status) == status {
				filtered = append(filtered, s)
			}
		}
		snaps = filtered
	}
	if snaps == nil {
		snaps = []*job.Snapshot{}
	}

	a.writeJSON(w, http.StatusOK, snaps)
}

func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := id.ParseJobID(r.PathValue("jobID"))
	if err != nil {
		a.writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("invalid job ID: %v", err)})
		return
	}

	snap, err := a.eng.Job(jobID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, snap)
}

func (a *API) evictJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := id.ParseJobID(r.PathValue("jobID"))
	if err != nil {
		a.writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("invalid job ID: %v", err)})
		return
	}

	if err := a.eng.Evict(jobID); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

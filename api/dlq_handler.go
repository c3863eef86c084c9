package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/xraph/distill/dlq"
	"github.com/xraph/distill/id"
)

// defaultListLimit caps unpaginated DLQ listings.
const defaultListLimit = 100

// purgeRetention is how old an entry must be before POST /v1/dlq/purge
// removes it, unless the request overrides it.
const purgeRetention = 30 * 24 * time.Hour

func (a *API) dlqStore(w http.ResponseWriter) (dlq.Store, bool) {
	svc := a.eng.DLQ()
	if svc == nil {
		a.writeJSON(w, http.StatusNotImplemented, errorBody{Error: "dead letter queue not configured"})
		return nil, false
	}
	return svc.Store(), true
}

func (a *API) listDLQ(w http.ResponseWriter, r *http.Request) {
	store, ok := a.dlqStore(w)
	if !ok {
		return
	}

	q := r.URL.Query()
	opts := dlq.ListOpts{
		Limit: defaultListLimit,
		DocID: q.Get("doc_id"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			a.writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a non-negative integer"})
			return
		}
		opts.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			a.writeJSON(w, http.StatusBadRequest, errorBody{Error: "offset must be a non-negative integer"})
			return
		}
		opts.Offset = n
	}

	entries, err := store.ListDLQ(r.Context(), opts)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []*dlq.Entry{}
	}
	a.writeJSON(w, http.StatusOK, entries)
}

func (a *API) getDLQ(w http.ResponseWriter, r *http.Request) {
	store, ok := a.dlqStore(w)
	if !ok {
		return
	}

	entryID, err := id.ParseDLQID(r.PathValue("entryID"))
	if err != nil {
		a.writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("invalid DLQ entry ID: %v", err)})
		return
	}

	entry, err := store.GetDLQ(r.Context(), entryID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, entry)
}

func (a *API) replayDLQ(w http.ResponseWriter, r *http.Request) {
	entryID, err := id.ParseDLQID(r.PathValue("entryID"))
	if err != nil {
		a.writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("invalid DLQ entry ID: %v", err)})
		return
	}

	snap, err := a.eng.Replay(r.Context(), entryID)
	if err != nil {
		if a.eng.DLQ() == nil {
			a.writeJSON(w, http.StatusNotImplemented, errorBody{Error: "dead letter queue not configured"})
			return
		}
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, snap)
}

type purgeDLQResponse struct {
	Purged int64 `json:"purged"`
}

func (a *API) purgeDLQ(w http.ResponseWriter, r *http.Request) {
	store, ok := a.dlqStore(w)
	if !ok {
		return
	}

	retention := purgeRetention
	if v := r.URL.Query().Get("older_than"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			a.writeJSON(w, http.StatusBadRequest, errorBody{Error: "older_than must be a non-negative duration"})
			return
		}
		retention = d
	}

	count, err := store.PurgeDLQ(r.Context(), time.Now().UTC().Add(-retention))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, purgeDLQResponse{Purged: count})
}

type dlqCountResponse struct {
	Count int64 `json:"count"`
}

func (a *API) dlqCount(w http.ResponseWriter, r *http.Request) {
	store, ok := a.dlqStore(w)
	if !ok {
		return
	}

	count, err := store.CountDLQ(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, dlqCountResponse{Count: count})
}

package api

import (
	"encoding/json"
	"net/http"
)

type submitDocumentsRequest struct {
	// Documents is the raw text of each document to ingest.
	Documents []string `json:"documents"`
}

func (a *API) submitDocuments(w http.ResponseWriter, r *http.Request) {
	if a.ingestor == nil {
		a.writeJSON(w, http.StatusNotImplemented, errorBody{Error: "document ingestion not configured"})
		return
	}

	var req submitDocumentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error()})
		return
	}
	if len(req.Documents) == 0 {
		a.writeJSON(w, http.StatusBadRequest, errorBody{Error: "documents must not be empty"})
		return
	}

	res, err := a.ingestor.Ingest(r.Context(), req.Documents...)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusAccepted, res)
}

package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"inboxdb/pkg/api/handlers"
	"inboxdb/pkg/ingest"
	"inboxdb/pkg/store"
)

// Handler returns the /v1 API router. All ingestion writes flow through
// orc; reads and message mutations go straight to st.
func Handler(orc *ingest.Orchestrator, st store.Store, maxPayloadBytes int64) http.Handler {
	r := mux.NewRouter()

	v1 := r.PathPrefix("/v1").Subrouter()
	handlers.RegisterWebhook(v1, orc, maxPayloadBytes)
	handlers.RegisterConversations(v1, st)
	handlers.RegisterMessages(v1, st)

	// simple root help
	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"endpoints":["POST /v1/webhook","GET /v1/conversations","GET /v1/conversations/{id}/messages","POST /v1/messages","GET /v1/messages/{id}"]}`))
	}).Methods(http.MethodGet)

	return r
}

package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/gorilla/mux"

	"inboxdb/pkg/ingest"
	"inboxdb/pkg/logger"
	"inboxdb/pkg/telemetry"
	"inboxdb/pkg/utils"
)

// RegisterWebhook registers the provider webhook intake endpoint.
func RegisterWebhook(r *mux.Router, orc *ingest.Orchestrator, maxBody int64) {
	r.HandleFunc("/webhook", postWebhook(orc, maxBody)).Methods(http.MethodPost)
}

func postWebhook(orc *ingest.Orchestrator, maxBody int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := utils.ReadBody(r.Body, maxBody)
		if err != nil {
			utils.JSONError(w, http.StatusBadRequest, "unreadable body")
			return
		}
		telemetry.SetRequestOp(r.Context(), "webhook_ingest")
		span := telemetry.StartSpan(r.Context(), "ingest.process_payload")
		res, err := orc.ProcessPayload(r.Context(), "webhook", body)
		span()
		if err != nil {
			logger.Error("webhook_store_failure", zap.Error(err))
			utils.JSONError(w, http.StatusInternalServerError, "store failure")
			return
		}
		// a single webhook call carries exactly one payload, so a
		// skipped payload here means the body was not parseable
		if res.SkippedPayloads > 0 {
			utils.JSONError(w, http.StatusBadRequest, "invalid payload")
			return
		}
		_ = utils.JSONWrite(w, http.StatusOK, res)
	}
}

package handlers

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/gorilla/mux"

	"inboxdb/pkg/ingest"
	"inboxdb/pkg/logger"
	"inboxdb/pkg/models"
	"inboxdb/pkg/store"
	"inboxdb/pkg/utils"
	"inboxdb/pkg/validation"
)

const maxMessageBody = 1 << 20

// RegisterMessages registers outbound message creation and the
// message-by-id endpoints.
func RegisterMessages(r *mux.Router, st store.Store) {
	r.HandleFunc("/messages", createMessage(st)).Methods(http.MethodPost)
	r.HandleFunc("/messages/{id}", getMessage(st)).Methods(http.MethodGet)
	r.HandleFunc("/messages/{id}/status", patchStatus(st)).Methods(http.MethodPatch)
	r.HandleFunc("/messages/{id}", deleteMessage(st)).Methods(http.MethodDelete)
}

// createMessage stores an operator-sent message. Unlike webhook intake,
// these records originate here, so a missing id gets generated instead
// of rejecting the record.
func createMessage(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var m models.Message
		if err := utils.DecodeJSONBody(r.Body, &m, maxMessageBody); err != nil {
			utils.JSONError(w, http.StatusBadRequest, "invalid json")
			return
		}
		if m.ConversationID == "" {
			utils.JSONError(w, http.StatusBadRequest, "conversation_id required")
			return
		}
		if m.PrimaryID == "" {
			m.PrimaryID = utils.GenID()
		}
		now := time.Now().UTC()
		if m.OccurredAt.IsZero() {
			m.OccurredAt = now
		}
		m.Direction = models.DirectionOutbound
		if m.Kind == "" {
			m.Kind = "text"
		}
		m.Status = models.StatusSent
		m.StatusHistory = models.StatusHistory{}
		m.StatusHistory.Set(models.StatusSent, m.OccurredAt)
		m.Deleted = false
		m.DeletedTS = 0

		if err := validation.ValidateMessage(m); err != nil {
			utils.JSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		inserted, err := st.InsertIfAbsent(r.Context(), ingest.InsertFilter(m), m)
		if err != nil {
			logger.Error("message_create_failed", zap.Error(err))
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !inserted {
			utils.JSONError(w, http.StatusConflict, "message already exists")
			return
		}
		logger.Info("message_created", zap.String("conversation", m.ConversationID), zap.String("id", m.PrimaryID))
		_ = utils.JSONWrite(w, http.StatusCreated, m)
	}
}

func getMessage(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		m, err := st.GetMessage(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNoMatch) {
				utils.JSONError(w, http.StatusNotFound, "message not found")
				return
			}
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		_ = utils.JSONWrite(w, http.StatusOK, m)
	}
}

// patchStatus merges one delivery-state observation into the record,
// following the same normalization the webhook path uses.
func patchStatus(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		var in struct {
			Status string `json:"status"`
		}
		if err := utils.DecodeJSONBody(r.Body, &in, maxMessageBody); err != nil {
			utils.JSONError(w, http.StatusBadRequest, "invalid json")
			return
		}
		if in.Status == "" {
			utils.JSONError(w, http.StatusBadRequest, "status required")
			return
		}
		update := store.StatusUpdate{Status: ingest.NormalizeStatus(in.Status), At: time.Now().UTC()}
		matched, err := st.ApplyStatus(r.Context(), ingest.StatusFilter(id), update)
		if err != nil {
			logger.Error("status_patch_failed", zap.String("id", id), zap.Error(err))
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !matched {
			utils.JSONError(w, http.StatusNotFound, "message not found")
			return
		}
		logger.Info("status_patched", zap.String("id", id), zap.String("status", string(update.Status)))
		_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"id": id, "status": string(update.Status)})
	}
}

func deleteMessage(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		ok, err := st.SoftDelete(r.Context(), id)
		if err != nil {
			logger.Error("message_delete_failed", zap.String("id", id), zap.Error(err))
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !ok {
			utils.JSONError(w, http.StatusNotFound, "message not found")
			return
		}
		logger.Info("message_deleted", zap.String("id", id))
		w.WriteHeader(http.StatusNoContent)
	}
}

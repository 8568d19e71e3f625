package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/gorilla/mux"

	"inboxdb/pkg/logger"
	"inboxdb/pkg/models"
	"inboxdb/pkg/store"
	"inboxdb/pkg/utils"
)

// RegisterConversations registers the sidebar and thread read endpoints.
func RegisterConversations(r *mux.Router, st store.Store) {
	r.HandleFunc("/conversations", listConversations(st)).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}/messages", listConversationMessages(st)).Methods(http.MethodGet)
}

func listConversations(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		convos, err := st.ListConversations(r.Context())
		if err != nil {
			logger.Error("conversations_list_failed", zap.Error(err))
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		logger.Info("conversations_list", zap.Int("count", len(convos)))
		_ = utils.JSONWrite(w, http.StatusOK, struct {
			Conversations []models.Conversation `json:"conversations"`
		}{Conversations: convos})
	}
}

func listConversationMessages(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		limit := 0
		if limStr := r.URL.Query().Get("limit"); limStr != "" {
			n, err := strconv.Atoi(limStr)
			if err != nil || n < 0 {
				utils.JSONError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = n
		}
		msgs, err := st.ListMessages(r.Context(), id, limit)
		if err != nil {
			logger.Error("messages_list_failed", zap.String("conversation", id), zap.Error(err))
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		logger.Info("messages_list", zap.String("conversation", id), zap.Int("count", len(msgs)))
		_ = utils.JSONWrite(w, http.StatusOK, struct {
			ConversationID string           `json:"conversation_id"`
			Messages       []models.Message `json:"messages"`
		}{ConversationID: id, Messages: msgs})
	}
}

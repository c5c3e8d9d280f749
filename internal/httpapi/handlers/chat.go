package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/suPer8Hu/bi-assistant/internal/chat"
	"github.com/suPer8Hu/bi-assistant/internal/common"
	"github.com/suPer8Hu/bi-assistant/internal/httpapi/middleware"
	"github.com/suPer8Hu/bi-assistant/internal/incident"
)

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

type createSessionReq struct {
	Module string `json:"module" binding:"required"`
}

// CreateChatSession hands out a fresh id. Nothing is stored until the first message.
func (h *Handler) CreateChatSession(c *gin.Context) {
	var req createSessionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	m := chat.Module(req.Module)
	if !m.Valid() {
		common.Fail(c, http.StatusBadRequest, 10002, "unknown module")
		return
	}
	common.OK(c, gin.H{"session_id": uuid.NewString(), "module": m})
}

func (h *Handler) ListChatSessions(c *gin.Context) {
	m := chat.Module(c.Query("module"))
	if m != "" && !m.Valid() {
		common.Fail(c, http.StatusBadRequest, 10002, "unknown module")
		return
	}
	list, err := h.Repo.List(c.Request.Context(), m)
	if err != nil {
		log.Errorf("[ListChatSessions] list failed module=%s err=%v", m, err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, gin.H{"sessions": list})
}

func (h *Handler) GetChatSession(c *gin.Context) {
	id, ok := sessionParam(c)
	if !ok {
		return
	}
	view, err := h.Repo.Load(c.Request.Context(), id)
	if err != nil {
		failSession(c, "GetChatSession", id, err)
		return
	}
	common.OK(c, gin.H{"session": view})
}

func (h *Handler) DeleteChatSession(c *gin.Context) {
	id, ok := sessionParam(c)
	if !ok {
		return
	}
	deleted, err := h.Repo.SoftDelete(c.Request.Context(), id)
	if err != nil {
		failSession(c, "DeleteChatSession", id, err)
		return
	}
	if !deleted {
		common.Fail(c, http.StatusNotFound, 40401, "session not found")
		return
	}
	common.OK(c, gin.H{"session_id": id, "deleted": true})
}

type sendMessageReq struct {
	Message string `json:"message" binding:"required"`
}

func (h *Handler) SendChatMessage(c *gin.Context) {
	id, ok := sessionParam(c)
	if !ok {
		return
	}
	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	ctx := c.Request.Context()
	conv, err := chat.OpenConversation(ctx, h.Repo, id, chat.ModuleSQL)
	if err != nil {
		failSession(c, "SendChatMessage", id, err)
		return
	}
	msg, err := h.Assistant.Ask(ctx, conv, req.Message)
	writeReply(c, "SendChatMessage", conv, msg, err)
}

type explainIncidentReq struct {
	LogID    int64  `json:"log_id" binding:"required"`
	Language string `json:"language"`
}

func (h *Handler) ExplainIncident(c *gin.Context) {
	id, ok := sessionParam(c)
	if !ok {
		return
	}
	var req explainIncidentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	ctx := c.Request.Context()
	conv, err := chat.OpenConversation(ctx, h.Repo, id, chat.ModuleIncident)
	if err != nil {
		failSession(c, "ExplainIncident", id, err)
		return
	}
	msg, err := h.Assistant.ExplainIncident(ctx, conv, req.LogID, incident.ParseLanguage(req.Language))
	writeReply(c, "ExplainIncident", conv, msg, err)
}

// writeReply returns the assistant message even when saving it failed; persisted tells
// the client whether a reload will show it.
func writeReply(c *gin.Context, op string, conv *chat.Conversation, msg chat.Message, err error) {
	switch {
	case errors.Is(err, chat.ErrModuleMismatch):
		common.Fail(c, http.StatusConflict, 40901, "session belongs to another module")
		return
	case errors.Is(err, chat.ErrSessionDeleted):
		common.Fail(c, http.StatusGone, 41001, "session was deleted")
		return
	}
	if err != nil {
		log.Errorf("[%s] persist failed session_id=%s request_id=%s err=%v", op, conv.ID(), c.GetString(middleware.RequestIDKey), err)
	}
	common.OK(c, gin.H{
		"session_id": conv.ID(),
		"title":      conv.Title(),
		"message":    msg,
		"persisted":  err == nil,
	})
}

func sessionParam(c *gin.Context) (string, bool) {
	id := c.Param("session_id")
	if _, err := uuid.Parse(id); err != nil {
		common.Fail(c, http.StatusBadRequest, 10003, "invalid session_id")
		return "", false
	}
	return id, true
}

func failSession(c *gin.Context, op, id string, err error) {
	switch {
	case errors.Is(err, chat.ErrSessionDeleted):
		common.Fail(c, http.StatusGone, 41001, "session was deleted")
	case errors.Is(err, chat.ErrSessionNotFound):
		common.Fail(c, http.StatusNotFound, 40401, "session not found")
	case errors.Is(err, chat.ErrModuleMismatch):
		common.Fail(c, http.StatusConflict, 40901, "session belongs to another module")
	default:
		log.Errorf("[%s] failed session_id=%s err=%v", op, id, err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}

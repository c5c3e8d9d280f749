package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/suPer8Hu/bi-assistant/internal/chat"
	"github.com/suPer8Hu/bi-assistant/internal/common"
	"github.com/suPer8Hu/bi-assistant/internal/incident"
	"gorm.io/gorm"
)

type submitJobReq struct {
	Message  string `json:"message"`
	LogID    *int64 `json:"log_id"`
	Language string `json:"language"`
}

// SubmitChatJob queues a question (message) or an incident analysis (log_id).
func (h *Handler) SubmitChatJob(c *gin.Context) {
	if h.Publisher == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50301, "async jobs disabled")
		return
	}
	id, ok := sessionParam(c)
	if !ok {
		return
	}
	var req submitJobReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	j := &chat.Job{SessionID: id}
	module := chat.ModuleSQL
	switch {
	case req.LogID != nil && strings.TrimSpace(req.Message) == "":
		j.Kind = chat.JobIncident
		j.LogID = req.LogID
		j.Language = string(incident.ParseLanguage(req.Language))
		module = chat.ModuleIncident
	case req.LogID == nil && strings.TrimSpace(req.Message) != "":
		j.Kind = chat.JobQuestion
		j.Prompt = req.Message
	default:
		common.Fail(c, http.StatusBadRequest, 10002, "exactly one of message or log_id required")
		return
	}

	ctx := c.Request.Context()
	// reject a module clash now rather than in the worker
	if _, err := chat.OpenConversation(ctx, h.Repo, id, module); err != nil {
		failSession(c, "SubmitChatJob", id, err)
		return
	}
	if err := h.Repo.CreateJob(ctx, j); err != nil {
		log.Errorf("[SubmitChatJob] CreateJob failed session_id=%s err=%v", id, err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	if err := h.Publisher.PublishJob(ctx, j.ID); err != nil {
		log.Errorf("[SubmitChatJob] PublishJob failed session_id=%s job_id=%s err=%v", id, j.ID, err)
		_ = h.Repo.MarkJobFailed(ctx, j.ID, "enqueue failed")
		common.Fail(c, http.StatusInternalServerError, 50002, "enqueue failed")
		return
	}
	common.OK(c, gin.H{"job_id": j.ID})
}

func (h *Handler) GetChatJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if jobID == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "job_id required")
		return
	}

	j, err := h.Repo.GetJobByID(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40402, "job not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	common.OK(c, gin.H{
		"job": gin.H{
			"id":                j.ID,
			"session_id":        j.SessionID,
			"kind":              j.Kind,
			"status":            j.Status,
			"result_message_id": j.ResultMessageID,
			"error":             j.Error,
			"created_at":        j.CreatedAt,
			"updated_at":        j.UpdatedAt,
		},
	})
}

package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/suPer8Hu/bi-assistant/internal/common"
)

func (h *Handler) ListFailures(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	list, err := h.Incidents.Failures(c.Request.Context(), limit)
	if err != nil {
		log.Errorf("[ListFailures] err=%v", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, gin.H{"failures": list})
}

func (h *Handler) FailureStats(c *gin.Context) {
	s, err := h.Incidents.Stats(c.Request.Context(), time.Now())
	if err != nil {
		log.Errorf("[FailureStats] err=%v", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, gin.H{"stats": s})
}

package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/suPer8Hu/bi-assistant/internal/common"
	"github.com/suPer8Hu/bi-assistant/internal/export"
	"gorm.io/gorm"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportMessageResult downloads the result table stored on an assistant message.
func (h *Handler) ExportMessageResult(c *gin.Context) {
	id, ok := sessionParam(c)
	if !ok {
		return
	}
	messageID := c.Param("message_id")

	m, err := h.Repo.GetMessage(c.Request.Context(), id, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40403, "message not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	meta := m.Meta()
	var buf bytes.Buffer
	err = export.WriteXLSX(&buf, export.Table{Columns: meta.Columns, Rows: meta.Rows, SQL: meta.SQLQuery})
	if errors.Is(err, export.ErrNoResult) {
		common.Fail(c, http.StatusNotFound, 40404, "message has no result table")
		return
	}
	if err != nil {
		log.Errorf("[ExportMessageResult] session_id=%s message_id=%s err=%v", id, messageID, err)
		common.Fail(c, http.StatusInternalServerError, 50003, "export failed")
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="result-%s.xlsx"`, messageID))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

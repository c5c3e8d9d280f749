package incident

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/suPer8Hu/bi-assistant/internal/ai"
	"github.com/suPer8Hu/bi-assistant/internal/warehouse"
	"gorm.io/gorm"
)

// ToolKind names a local function the model may call.
type ToolKind string

const (
	FetchFailure ToolKind = "fetch_failure"
	LookupKB     ToolKind = "lookup_kb"
)

type FetchFailureArgs struct {
	LogID int64 `json:"log_id"`
}

type FailureRecord struct {
	LogID        int64  `json:"log_id"`
	JobName      string `json:"job_name"`
	RunTimestamp string `json:"run_timestamp"`
	Message      string `json:"message"`
}

type LookupKBArgs struct {
	ErrorMessage string `json:"error_message"`
}

type KBEntry struct {
	RootCauseEN  string `json:"root_cause_en"`
	ResolutionEN string `json:"resolution_en"`
	RootCauseAR  string `json:"root_cause_ar"`
	ResolutionAR string `json:"resolution_ar"`
}

// UnknownCause is returned by LookupKB when no pattern matches.
var UnknownCause = KBEntry{
	RootCauseEN:  "Unknown cause",
	ResolutionEN: "Manual investigation required",
	RootCauseAR:  "سبب غير معروف",
	ResolutionAR: "مطلوب تحقيق يدوي",
}

var ErrRecordNotFound = errors.New("record not found")

// Specs declares the tools to the model.
var Specs = []ai.ToolSpec{
	{
		Name:        string(FetchFailure),
		Description: "Retrieve detailed job failure information by log ID including job name, timestamp, and error message",
		Params: []ai.ToolParam{{
			Name:        "log_id",
			Type:        "integer",
			Description: "The unique identifier for the job log entry",
			Required:    true,
		}},
	},
	{
		Name:        string(LookupKB),
		Description: "Search knowledge base for root cause analysis and resolution steps based on error message pattern",
		Params: []ai.ToolParam{{
			Name:        "error_message",
			Type:        "string",
			Description: "The error message to search for in the knowledge base",
			Required:    true,
		}},
	},
}

// Tools runs the lookups against the warehouse. Each call uses its own query scope.
type Tools struct {
	db *gorm.DB
}

func NewTools(db *gorm.DB) *Tools {
	return &Tools{db: db}
}

func (t *Tools) FetchFailure(ctx context.Context, logID int64) (*FailureRecord, error) {
	var row warehouse.JobLog
	err := t.db.WithContext(ctx).Where("log_id = ?", logID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %v", err)
	}
	return &FailureRecord{
		LogID:        row.LogID,
		JobName:      row.JobName,
		RunTimestamp: row.RunTimestamp.Format(time.RFC3339),
		Message:      row.Message,
	}, nil
}

// LookupKB returns the first entry, in stored order, whose LIKE pattern matches msg
// ignoring case. It always returns an entry.
func (t *Tools) LookupKB(ctx context.Context, msg string) KBEntry {
	var row warehouse.IncidentKB
	err := t.db.WithContext(ctx).
		Where("LOWER(?) LIKE LOWER(error_pattern)", msg).
		Order("id ASC").
		First(&row).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Errorf("incident: kb lookup failed err=%v", err)
		}
		return UnknownCause
	}
	return KBEntry{
		RootCauseEN:  row.RootCauseEN,
		ResolutionEN: row.ResolutionEN,
		RootCauseAR:  row.RootCauseAR,
		ResolutionAR: row.ResolutionAR,
	}
}

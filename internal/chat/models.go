package chat

import (
	"time"

	"gorm.io/datatypes"
)

// Module partitions sessions by assistant personality. It never changes for a session.
type Module string

const (
	ModuleSQL      Module = "sql_assistant"
	ModuleIncident Module = "incident_explainer"
)

func (m Module) Valid() bool {
	return m == ModuleSQL || m == ModuleIncident
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Session struct {
	SessionID string    `gorm:"primaryKey;type:varchar(36)" json:"session_id"`
	Title     string    `gorm:"type:varchar(64);not null" json:"title"`
	Module    Module    `gorm:"type:varchar(32);index;not null" json:"module"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `gorm:"index" json:"updated_at"`
	IsActive  bool      `gorm:"index;not null" json:"is_active"`
}

func (Session) TableName() string { return "chat_sessions" }

// Metadata is the optional structured payload attached to a message.
type Metadata struct {
	SQLQuery         string   `json:"sql_query,omitempty"`
	Columns          []string `json:"columns,omitempty"`
	Rows             [][]any  `json:"rows,omitempty"`
	ExecutionStatus  string   `json:"execution_status,omitempty"`
	Success          *bool    `json:"success,omitempty"`
	Intent           string   `json:"intent,omitempty"`
	LogID            *int64   `json:"log_id,omitempty"`
	AnalysisLanguage string   `json:"analysis_language,omitempty"`
	IncidentType     string   `json:"incident_type,omitempty"`
	ReportError      bool     `json:"report_error,omitempty"`
	JobID            string   `json:"job_id,omitempty"`
}

// HasResult reports whether the message carries a result table.
func (m Metadata) HasResult() bool { return len(m.Columns) > 0 }

type Message struct {
	MessageID string                      `gorm:"primaryKey;type:varchar(26)" json:"message_id"`
	SessionID string                      `gorm:"type:varchar(36);not null;index:idx_chat_msg_session_seq,priority:1" json:"session_id"`
	Seq       int                         `gorm:"not null;index:idx_chat_msg_session_seq,priority:2" json:"seq"`
	Role      string                      `gorm:"type:varchar(16);not null" json:"role"`
	Content   string                      `gorm:"type:text;not null" json:"content"`
	Metadata  datatypes.JSONType[Metadata] `json:"metadata"`
	CreatedAt time.Time                   `json:"created_at"`
}

func (Message) TableName() string { return "chat_messages" }

// Meta returns the decoded metadata.
func (m Message) Meta() Metadata { return m.Metadata.Data() }

type SessionView struct {
	Session
	Messages []Message `json:"messages"`
}

type SessionSummary struct {
	SessionID    string    `json:"session_id"`
	Title        string    `json:"title"`
	Module       Module    `json:"module"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int64     `json:"message_count"`
}

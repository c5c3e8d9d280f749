package warehouse

import "time"

const (
	StatusSuccess = "SUCCESS"
	StatusFailure = "FAILURE"
)

// Sales dates are kept as YYYY-MM-DD text on the Go side so generated SQL can compare
// them with literals on every dialect.
type Sales struct {
	Date      string  `gorm:"primaryKey;type:date" json:"date"`
	Region    string  `gorm:"primaryKey;type:varchar(64)" json:"region"`
	Product   string  `gorm:"primaryKey;type:varchar(64)" json:"product"`
	UnitsSold int     `gorm:"not null" json:"units_sold"`
	Revenue   float64 `gorm:"type:numeric(10,2);not null" json:"revenue"`
}

func (Sales) TableName() string { return "sales" }

type Churn struct {
	Month            string `gorm:"primaryKey;type:date" json:"month"`
	Segment          string `gorm:"primaryKey;type:varchar(64)" json:"segment"`
	ChurnedCustomers int    `gorm:"not null" json:"churned_customers"`
}

func (Churn) TableName() string { return "churn" }

type Job struct {
	JobName     string `gorm:"primaryKey;type:varchar(64)" json:"job_name"`
	Description string `gorm:"type:text;not null" json:"description"`
	Owner       string `gorm:"type:varchar(64);not null" json:"owner"`
}

func (Job) TableName() string { return "jobs" }

type JobLog struct {
	LogID        int64     `gorm:"column:log_id;primaryKey;autoIncrement" json:"log_id"`
	JobName      string    `gorm:"type:varchar(64);index;not null" json:"job_name"`
	RunTimestamp time.Time `gorm:"index;not null" json:"run_timestamp"`
	Status       string    `gorm:"type:varchar(16);index;not null" json:"status"`
	Message      string    `gorm:"type:text;not null" json:"message"`
}

func (JobLog) TableName() string { return "job_logs" }

// IncidentKB maps a SQL LIKE pattern over error text to a diagnosis. Lookups try
// patterns in insertion (id) order.
type IncidentKB struct {
	ID           int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	ErrorPattern string `gorm:"column:error_pattern;uniqueIndex;type:varchar(255);not null" json:"error_pattern"`
	RootCauseEN  string `gorm:"column:root_cause_en;type:text;not null" json:"root_cause_en"`
	ResolutionEN string `gorm:"column:resolution_en;type:text;not null" json:"resolution_en"`
	RootCauseAR  string `gorm:"column:root_cause_ar;type:text;not null" json:"root_cause_ar"`
	ResolutionAR string `gorm:"column:resolution_ar;type:text;not null" json:"resolution_ar"`
}

func (IncidentKB) TableName() string { return "incident_kb" }

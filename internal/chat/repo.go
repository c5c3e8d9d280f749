package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

var (
	ErrSessionNotFound = errors.New("chat: session not found")
	ErrModuleMismatch  = errors.New("chat: session belongs to a different module")
	// ErrSessionDeleted is returned for soft-deleted sessions. It matches ErrSessionNotFound.
	ErrSessionDeleted = fmt.Errorf("%w: session was deleted", ErrSessionNotFound)
)

// Store persists conversations.
type Store interface {
	Save(ctx context.Context, sessionID, title string, module Module, messages []Message) error
	Load(ctx context.Context, sessionID string) (*SessionView, error)
	List(ctx context.Context, module Module) ([]SessionSummary, error)
	SoftDelete(ctx context.Context, sessionID string) (bool, error)
}

type Repo struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db, now: time.Now}
}

// Save upserts the session row and replaces its messages in one transaction.
// A soft-deleted session is never written to; Save returns ErrSessionDeleted.
func (r *Repo) Save(ctx context.Context, sessionID, title string, module Module, messages []Message) error {
	now := r.now()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s Session
		err := tx.Where("session_id = ?", sessionID).First(&s).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			s = Session{
				SessionID: sessionID,
				Title:     title,
				Module:    module,
				CreatedAt: now,
				UpdatedAt: now,
				IsActive:  true,
			}
			if err := tx.Create(&s).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if !s.IsActive {
				return ErrSessionDeleted
			}
			if s.Module != module {
				return ErrModuleMismatch
			}
			if err := tx.Model(&Session{}).
				Where("session_id = ?", sessionID).
				Updates(map[string]any{"title": title, "updated_at": now}).Error; err != nil {
				return err
			}
		}

		if err := tx.Where("session_id = ?", sessionID).Delete(&Message{}).Error; err != nil {
			return err
		}
		if len(messages) == 0 {
			return nil
		}

		rows := make([]Message, len(messages))
		for i, m := range messages {
			m.SessionID = sessionID
			m.Seq = i
			if m.MessageID == "" {
				m.MessageID = ulid.Make().String()
			}
			if m.CreatedAt.IsZero() {
				m.CreatedAt = now
			}
			rows[i] = m
		}
		return tx.CreateInBatches(rows, 100).Error
	})
}

func (r *Repo) Load(ctx context.Context, sessionID string) (*SessionView, error) {
	var s Session
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if !s.IsActive {
		return nil, ErrSessionDeleted
	}

	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return &SessionView{Session: s, Messages: msgs}, nil
}

// List returns active sessions, newest update first. An empty module lists all of them.
func (r *Repo) List(ctx context.Context, module Module) ([]SessionSummary, error) {
	q := r.db.WithContext(ctx).
		Table("chat_sessions AS s").
		Select("s.session_id, s.title, s.module, s.updated_at, " +
			"(SELECT COUNT(*) FROM chat_messages m WHERE m.session_id = s.session_id) AS message_count").
		Where("s.is_active = ?", true)
	if module != "" {
		q = q.Where("s.module = ?", module)
	}

	var out []SessionSummary
	if err := q.Order("s.updated_at DESC").Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) SoftDelete(ctx context.Context, sessionID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Session{}).
		Where("session_id = ? AND is_active = ?", sessionID, true).
		Updates(map[string]any{"is_active": false, "updated_at": r.now()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// GetMessage returns one message of an active session.
func (r *Repo) GetMessage(ctx context.Context, sessionID, messageID string) (*Message, error) {
	var m Message
	err := r.db.WithContext(ctx).
		Joins("JOIN chat_sessions ON chat_sessions.session_id = chat_messages.session_id").
		Where("chat_messages.session_id = ? AND chat_messages.message_id = ? AND chat_sessions.is_active = ?",
			sessionID, messageID, true).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Job CRUD
func (r *Repo) CreateJob(ctx context.Context, job *Job) error {
	if job.ID == "" {
		job.ID = ulid.Make().String()
	}
	if job.Status == "" {
		job.Status = JobQueued
	}
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *Repo) GetJobByID(ctx context.Context, id string) (*Job, error) {
	var j Job
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *Repo) UpdateJobStatusRunning(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, JobQueued).
		Update("status", JobRunning).Error
}

func (r *Repo) MarkJobSucceeded(ctx context.Context, id string, messageID string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            JobSucceeded,
			"result_message_id": messageID,
			"error":             nil,
		}).Error
}

func (r *Repo) MarkJobFailed(ctx context.Context, id string, errMsg string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            JobFailed,
			"error":             errMsg,
			"result_message_id": nil,
		}).Error
}

var _ Store = (*Repo)(nil)

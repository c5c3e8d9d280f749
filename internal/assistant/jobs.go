package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/suPer8Hu/bi-assistant/internal/chat"
	"github.com/suPer8Hu/bi-assistant/internal/incident"
)

// JobStore is the slice of chat.Repo the runner needs.
type JobStore interface {
	chat.Store
	GetJobByID(ctx context.Context, id string) (*chat.Job, error)
	UpdateJobStatusRunning(ctx context.Context, id string) error
	MarkJobSucceeded(ctx context.Context, id string, messageID string) error
	MarkJobFailed(ctx context.Context, id string, errMsg string) error
}

// JobRunner executes queued interactions.
type JobRunner struct {
	store     JobStore
	assistant *Assistant
}

func NewJobRunner(store JobStore, a *Assistant) *JobRunner {
	return &JobRunner{store: store, assistant: a}
}

// Run executes one job and records its outcome. A returned error means the job could
// not be completed and may be retried. Runs are idempotent: a succeeded job is skipped,
// a question that was already answered is not asked again, and a saved but unanswered
// question is answered without being appended twice.
func (r *JobRunner) Run(ctx context.Context, jobID string) error {
	jobStart := time.Now()

	j, err := r.store.GetJobByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if j.Status == chat.JobSucceeded {
		log.Infof("job_skip job=%s status=%s", jobID, j.Status)
		return nil
	}
	if err := r.store.UpdateJobStatusRunning(ctx, jobID); err != nil {
		log.Warnf("job_running job=%s err=%v", jobID, err)
	}

	msg, err := r.execute(ctx, j)
	if err != nil {
		if markErr := r.store.MarkJobFailed(ctx, jobID, err.Error()); markErr != nil {
			log.Errorf("job_failed job=%s mark_err=%v", jobID, markErr)
		}
		log.Errorf("job_failed job=%s kind=%s total=%s err=%v", jobID, j.Kind, time.Since(jobStart), err)
		return err
	}

	if err := r.store.MarkJobSucceeded(ctx, jobID, msg.MessageID); err != nil {
		log.Errorf("job_failed job=%s mark_succ err=%v", jobID, err)
		return err
	}
	if total := time.Since(jobStart); total > 2*time.Second {
		log.Printf("job_timing job=%s kind=%s total=%s", jobID, j.Kind, total)
	}
	return nil
}

var (
	errUnknownJobKind = errors.New("unknown job kind")
	// the job's question is followed by other messages but has no reply
	errJobInterleaved = errors.New("job question was interleaved with later messages")
)

func (r *JobRunner) execute(ctx context.Context, j *chat.Job) (chat.Message, error) {
	module := chat.ModuleSQL
	switch j.Kind {
	case chat.JobQuestion:
	case chat.JobIncident:
		if j.LogID == nil {
			return chat.Message{}, errors.New("incident job without log_id")
		}
		module = chat.ModuleIncident
	default:
		return chat.Message{}, fmt.Errorf("%w: %q", errUnknownJobKind, j.Kind)
	}

	conv, err := chat.OpenConversation(ctx, r.store, j.SessionID, module)
	if err != nil {
		return chat.Message{}, err
	}

	t := turn{jobID: j.ID}
	if q, reply, ok := conv.JobTurn(j.ID); ok {
		switch {
		case reply != nil:
			log.Infof("job_resume job=%s already answered message=%s", j.ID, reply.MessageID)
			return *reply, nil
		case q.Seq != conv.Len()-1:
			return chat.Message{}, fmt.Errorf("%w: job %s", errJobInterleaved, j.ID)
		}
		log.Infof("job_resume job=%s answering saved question message=%s", j.ID, q.MessageID)
		t.pending = true
	}

	if j.Kind == chat.JobIncident {
		return r.assistant.explain(ctx, conv, *j.LogID, incident.ParseLanguage(j.Language), t)
	}
	return r.assistant.ask(ctx, conv, j.Prompt, t)
}

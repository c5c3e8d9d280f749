package handlers

import (
	"context"

	"github.com/suPer8Hu/bi-assistant/internal/assistant"
	"github.com/suPer8Hu/bi-assistant/internal/chat"
	"github.com/suPer8Hu/bi-assistant/internal/incident"
)

// JobPublisher enqueues a job id for the worker.
type JobPublisher interface {
	PublishJob(ctx context.Context, jobID string) error
}

type Handler struct {
	Repo      *chat.Repo
	Assistant *assistant.Assistant
	Incidents *incident.Tools
	// nil disables the async job endpoint
	Publisher JobPublisher
}

func NewHandler(repo *chat.Repo, a *assistant.Assistant, incidents *incident.Tools, pub JobPublisher) *Handler {
	return &Handler{Repo: repo, Assistant: a, Incidents: incidents, Publisher: pub}
}

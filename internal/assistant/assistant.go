package assistant

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/suPer8Hu/bi-assistant/internal/ai"
	"github.com/suPer8Hu/bi-assistant/internal/chat"
	"github.com/suPer8Hu/bi-assistant/internal/incident"
	"github.com/suPer8Hu/bi-assistant/internal/intent"
	"github.com/suPer8Hu/bi-assistant/internal/sqlpipe"
)

// follow-up context handed to SQL generation
const previousTurns = 4

const (
	fallbackReply   = "I'm here to help you analyze your business data. What would you like to know about your sales, customers, or business metrics?"
	fallbackReplyAr = "أنا هنا لمساعدتك في تحليل بيانات عملك. ماذا تريد أن تعرف عن مبيعاتك أو عملائك أو مؤشرات عملك؟"
)

// Assistant routes one user interaction through the classifier and the matching pipeline
// and records both sides in the conversation.
type Assistant struct {
	provider     ai.Provider
	classifier   *intent.Classifier
	pipeline     *sqlpipe.Pipeline
	analyzer     *incident.Analyzer
	historyLimit int
}

func New(p ai.Provider, c *intent.Classifier, pl *sqlpipe.Pipeline, an *incident.Analyzer, historyLimit int) *Assistant {
	if historyLimit <= 0 {
		historyLimit = intent.DefaultHistory
	}
	return &Assistant{provider: p, classifier: c, pipeline: pl, analyzer: an, historyLimit: historyLimit}
}

// Ask answers a question in a sql_assistant session. The reply is always produced; the
// returned error only reports a failure to persist the exchange.
func (a *Assistant) Ask(ctx context.Context, conv *chat.Conversation, question string) (chat.Message, error) {
	return a.ask(ctx, conv, question, turn{})
}

// turn controls how the user side of an exchange is recorded.
type turn struct {
	// jobID tags the user message. Queued turns stop before any model call when the
	// user message cannot be saved.
	jobID string
	// pending means the user message is already the last message of the log.
	pending bool
}

// statusNotRerun is the status of a data-modifying statement regenerated for a question that
// was already answered once.
const statusNotRerun = "Error: the statement modifies data and was not run again for a retried question."

func (a *Assistant) ask(ctx context.Context, conv *chat.Conversation, question string, t turn) (chat.Message, error) {
	if conv.Module() != chat.ModuleSQL {
		return chat.Message{}, fmt.Errorf("%w: session %s is %s", chat.ErrModuleMismatch, conv.ID(), conv.Module())
	}

	end := conv.Len()
	if t.pending {
		end--
	}
	history := conv.HistoryAt(end, a.historyLimit)
	previous := conv.PreviousSQLAt(end, a.historyLimit, previousTurns)

	saveErr := a.recordQuestion(ctx, conv, question, chat.Metadata{}, t)
	if saveErr != nil && t.jobID != "" {
		return chat.Message{}, saveErr
	}

	kind := a.classifier.Classify(ctx, question, history)
	if kind != intent.DataQuery {
		reply := a.Contextual(ctx, question, kind, history)
		return a.reply(ctx, conv, reply, chat.Metadata{Intent: string(kind)}, saveErr)
	}

	sql, err := a.pipeline.Generate(ctx, question, previous)
	if err != nil {
		log.Warnf("assistant: sql generation failed session=%s err=%v", conv.ID(), err)
		reply := a.Contextual(ctx, "I had trouble generating a query for: "+question, intent.DataQuery, history)
		return a.reply(ctx, conv, reply, chat.Metadata{
			Intent:          string(kind),
			ExecutionStatus: err.Error(),
			Success:         boolPtr(false),
		}, saveErr)
	}

	var res sqlpipe.Result
	if t.pending && !sqlpipe.ReadOnlyStatement(sql) {
		log.Warnf("assistant: skipped data-modifying statement on retry session=%s job=%s", conv.ID(), t.jobID)
		res = sqlpipe.Result{Status: statusNotRerun}
	} else {
		res = a.pipeline.Execute(ctx, sql)
	}
	summary := a.pipeline.Summarize(ctx, sqlpipe.SummaryInput{
		Question: question,
		SQL:      sql,
		Result:   res,
		History:  history,
	})
	return a.reply(ctx, conv, summary, chat.Metadata{
		Intent:          string(kind),
		SQLQuery:        sql,
		Columns:         res.Columns,
		Rows:            res.Rows,
		ExecutionStatus: res.Status,
		Success:         boolPtr(res.Success),
	}, saveErr)
}

// ExplainIncident runs the incident analysis for logID in an incident_explainer session.
func (a *Assistant) ExplainIncident(ctx context.Context, conv *chat.Conversation, logID int64, lang incident.Language) (chat.Message, error) {
	return a.explain(ctx, conv, logID, lang, turn{})
}

func (a *Assistant) explain(ctx context.Context, conv *chat.Conversation, logID int64, lang incident.Language, t turn) (chat.Message, error) {
	if conv.Module() != chat.ModuleIncident {
		return chat.Message{}, fmt.Errorf("%w: session %s is %s", chat.ErrModuleMismatch, conv.ID(), conv.Module())
	}

	end := conv.Len()
	if t.pending {
		end--
	}
	history := conv.HistoryAt(end, a.historyLimit)

	saveErr := a.recordQuestion(ctx, conv, incidentRequest(logID, lang), chat.Metadata{
		LogID:            &logID,
		AnalysisLanguage: string(lang),
		IncidentType:     "pipeline_failure",
	}, t)
	if saveErr != nil && t.jobID != "" {
		return chat.Message{}, saveErr
	}

	report := a.analyzer.Explain(ctx, logID, lang, history)
	if report.Failed {
		log.Warnf("assistant: incident analysis failed session=%s log_id=%d", conv.ID(), logID)
	}
	return a.reply(ctx, conv, report.Text, chat.Metadata{
		LogID:            &logID,
		AnalysisLanguage: string(lang),
		IncidentType:     "incident_report",
		Success:          boolPtr(!report.Failed),
		ReportError:      report.Failed,
	}, saveErr)
}

func incidentRequest(logID int64, lang incident.Language) string {
	if lang == incident.Arabic {
		return fmt.Sprintf("تحليل الحادثة رقم %d", logID)
	}
	return fmt.Sprintf("Analyze incident log ID %d", logID)
}

func (a *Assistant) recordQuestion(ctx context.Context, conv *chat.Conversation, content string, meta chat.Metadata, t turn) error {
	if t.pending {
		return nil
	}
	meta.JobID = t.jobID
	_, err := conv.Append(ctx, chat.RoleUser, content, meta)
	return err
}

func (a *Assistant) reply(ctx context.Context, conv *chat.Conversation, content string, meta chat.Metadata, saveErr error) (chat.Message, error) {
	msg, err := conv.Append(ctx, chat.RoleAssistant, content, meta)
	if saveErr != nil {
		return msg, saveErr
	}
	return msg, err
}

// Contextual answers greetings, off-topic questions and failed data questions without
// touching the database.
func (a *Assistant) Contextual(ctx context.Context, question string, kind intent.Intent, history []ai.Message) string {
	msgs := make([]ai.Message, 0, len(history)+2)
	msgs = append(msgs, ai.Message{Role: ai.RoleSystem, Content: contextualPrompt(kind)})
	msgs = append(msgs, history...)
	msgs = append(msgs, ai.Message{Role: ai.RoleUser, Content: question})

	out, err := ai.Complete(ctx, a.provider, msgs, nil)
	if err != nil || out == "" {
		log.Warnf("assistant: contextual reply failed intent=%s err=%v", kind, err)
		if sqlpipe.IsArabic(question) {
			return fallbackReplyAr
		}
		return fallbackReply
	}
	return out
}

func contextualPrompt(kind intent.Intent) string {
	switch kind {
	case intent.Greeting:
		return "You are a friendly business data assistant. The user is greeting you. Respond naturally and let them know you can help them analyze their business data including sales, customers, and churn metrics. Be conversational and welcoming.\n\n" +
			"If there's conversation history, acknowledge any previous interactions warmly."
	case intent.Irrelevant:
		return "You are a business data assistant. The user is asking about something unrelated to business data analysis. Politely acknowledge their question but redirect them to ask about business data, sales, customers, or analytics instead. Be friendly but stay focused on your role."
	default:
		return "You are a helpful business data assistant. The user is asking about business data analysis, but you don't have access to their specific data right now. Explain that you can help them analyze their sales, customer, and churn data, and ask them to be more specific about what they'd like to know. Be friendly and professional.\n\n" +
			"Consider the conversation history to provide contextual responses. If they've asked similar questions before, acknowledge that and build upon previous discussions."
	}
}

func boolPtr(b bool) *bool { return &b }

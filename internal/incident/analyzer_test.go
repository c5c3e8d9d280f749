package incident

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/bi-assistant/internal/ai"
	"github.com/suPer8Hu/bi-assistant/internal/warehouse"
	"gorm.io/gorm"
)

type scriptedProvider struct {
	replies []*ai.ChatResponse
	errs    []error
	calls   []ai.ChatRequest
}

func (p *scriptedProvider) Chat(ctx context.Context, req ai.ChatRequest) (*ai.ChatResponse, error) {
	i := len(p.calls)
	p.calls = append(p.calls, req)
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	if i >= len(p.replies) {
		return nil, nil
	}
	return p.replies[i], nil
}

var failedAt = time.Date(2024, 7, 1, 2, 0, 0, 0, time.UTC)

var dbSeq atomic.Int64

func openIncidentDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_") + "_" + strconv.FormatInt(dbSeq.Add(1), 10)
	db, err := gorm.Open(gormsqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&warehouse.JobLog{}, &warehouse.IncidentKB{}))
	require.NoError(t, db.Create(&[]warehouse.JobLog{
		{LogID: 1, JobName: "daily_load", RunTimestamp: failedAt, Status: warehouse.StatusFailure, Message: "Connection timeout to source DB"},
		{LogID: 2, JobName: "daily_load", RunTimestamp: failedAt.Add(8 * time.Hour), Status: warehouse.StatusSuccess, Message: "ok"},
		{LogID: 3, JobName: "churn_calc", RunTimestamp: failedAt.Add(-48 * time.Hour), Status: warehouse.StatusFailure, Message: "Disk quota exceeded"},
	}).Error)
	require.NoError(t, db.Create(&[]warehouse.IncidentKB{
		{ErrorPattern: "%timeout%", RootCauseEN: "Network latency", ResolutionEN: "Retry the load", RootCauseAR: "تأخر الشبكة", ResolutionAR: "أعد المحاولة"},
		{ErrorPattern: "%connection%", RootCauseEN: "Source unavailable", ResolutionEN: "Check the source", RootCauseAR: "المصدر غير متاح", ResolutionAR: "تحقق من المصدر"},
	}).Error)
	return db
}

func newTestAnalyzer(t *testing.T, prov ai.Provider) *Analyzer {
	return NewAnalyzer(prov, NewDispatcher(NewTools(openIncidentDB(t))))
}

func toolCalls(calls ...ai.ToolCall) *ai.ChatResponse {
	return &ai.ChatResponse{ToolCalls: calls}
}

func text(s string) *ai.ChatResponse {
	return &ai.ChatResponse{Content: []string{s}}
}

func TestLookupKB_CaseInsensitiveFirstInStoredOrder(t *testing.T) {
	tools := NewTools(openIncidentDB(t))

	// both patterns match; "%timeout%" was stored first although "%connection%" sorts first
	got := tools.LookupKB(context.Background(), "CONNECTION TIMEOUT to source DB")
	assert.Equal(t, "Network latency", got.RootCauseEN)

	got = tools.LookupKB(context.Background(), "connection reset")
	assert.Equal(t, "Source unavailable", got.RootCauseEN)

	got = tools.LookupKB(context.Background(), "Request TIMEOUT")
	assert.Equal(t, "Network latency", got.RootCauseEN)
	assert.Equal(t, "تأخر الشبكة", got.RootCauseAR)
}

func TestLookupKB_FallsBackToUnknownCause(t *testing.T) {
	tools := NewTools(openIncidentDB(t))
	assert.Equal(t, UnknownCause, tools.LookupKB(context.Background(), "segfault"))
	assert.Equal(t, UnknownCause, tools.LookupKB(context.Background(), ""))
}

func TestFetchFailure(t *testing.T) {
	tools := NewTools(openIncidentDB(t))

	rec, err := tools.FetchFailure(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "daily_load", rec.JobName)
	assert.Equal(t, "2024-07-01T02:00:00Z", rec.RunTimestamp)

	_, err = tools.FetchFailure(context.Background(), 999)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestDispatch_RejectsBadArguments(t *testing.T) {
	d := NewDispatcher(NewTools(openIncidentDB(t)))
	ctx := context.Background()

	out := d.Dispatch(ctx, ai.ToolCall{ID: "a", Name: "fetch_failure", Arguments: `{"log_id":"one"}`})
	assert.Contains(t, out.Content(), "invalid arguments")

	out = d.Dispatch(ctx, ai.ToolCall{ID: "b", Name: "fetch_failure", Arguments: `{`})
	assert.Contains(t, out.Content(), "invalid arguments")

	out = d.Dispatch(ctx, ai.ToolCall{ID: "c", Name: "lookup_kb"})
	assert.Contains(t, out.Content(), "invalid arguments")

	out = d.Dispatch(ctx, ai.ToolCall{ID: "d", Name: "drop_tables", Arguments: `{}`})
	assert.Contains(t, out.Content(), "unknown tool")
	assert.Equal(t, "d", out.CallID)
}

func TestExplain_ZeroToolCallsReturnsContent(t *testing.T) {
	prov := &scriptedProvider{replies: []*ai.ChatResponse{text("I need more detail.")}}
	rep := newTestAnalyzer(t, prov).Explain(context.Background(), 1, English, nil)

	assert.Equal(t, "I need more detail.", rep.Text)
	assert.False(t, rep.Failed)
	require.Len(t, prov.calls, 1)
	assert.Len(t, prov.calls[0].Tools, 2)
}

func TestExplain_Round1Failures(t *testing.T) {
	prov := &scriptedProvider{errs: []error{errors.New("boom")}}
	rep := newTestAnalyzer(t, prov).Explain(context.Background(), 1, English, nil)
	assert.True(t, rep.Failed)
	assert.Equal(t, "Error in incident analysis: boom", rep.Text)

	prov = &scriptedProvider{}
	rep = newTestAnalyzer(t, prov).Explain(context.Background(), 1, English, nil)
	assert.Equal(t, "Error: No response received from the model", rep.Text)

	prov = &scriptedProvider{replies: []*ai.ChatResponse{{}}}
	rep = newTestAnalyzer(t, prov).Explain(context.Background(), 7, English, nil)
	assert.Equal(t, "Model didn't make required tool calls for log_id 7", rep.Text)
}

func TestExplain_FullExchange(t *testing.T) {
	prov := &scriptedProvider{replies: []*ai.ChatResponse{
		toolCalls(
			ai.ToolCall{ID: "c1", Name: "fetch_failure", Arguments: `{"log_id": 1}`},
			ai.ToolCall{ID: "c2", Name: "lookup_kb", Arguments: `{"error_message": "Connection timeout to source DB"}`},
		),
		text("The load timed out."),
	}}
	history := []ai.Message{{Role: ai.RoleUser, Content: "earlier"}, {Role: ai.RoleAssistant, Content: "reply"}}

	rep := newTestAnalyzer(t, prov).Explain(context.Background(), 1, English, history)
	require.False(t, rep.Failed, rep.Text)
	assert.Equal(t, "The load timed out.", rep.Text)
	require.Len(t, rep.Outcomes, 2)

	require.Len(t, prov.calls, 2)
	second := prov.calls[1]
	assert.Empty(t, second.Tools)
	// history + request + assistant tool calls + 2 tool results + synthesis
	require.Len(t, second.Messages, 7)
	assert.Equal(t, "earlier", second.Messages[0].Content)
	assert.Len(t, second.Messages[3].ToolCalls, 2)
	assert.Equal(t, ai.RoleTool, second.Messages[4].Role)
	assert.Equal(t, "c1", second.Messages[4].ToolCallID)
	assert.Contains(t, second.Messages[4].Content, "daily_load")
	assert.Contains(t, second.Messages[5].Content, "Network latency")

	last := second.Messages[6].Content
	assert.Contains(t, last, "log ID 1")
	assert.Contains(t, last, "1. Function: fetch_failure")
	assert.Contains(t, last, "Do not make any additional tool calls")
}

func TestExplain_UnknownLogReportsNotFound(t *testing.T) {
	prov := &scriptedProvider{replies: []*ai.ChatResponse{
		toolCalls(ai.ToolCall{ID: "c1", Name: "fetch_failure", Arguments: `{"log_id": 999}`}),
	}}
	rep := newTestAnalyzer(t, prov).Explain(context.Background(), 999, English, nil)

	assert.True(t, rep.Failed)
	assert.True(t, strings.HasPrefix(rep.Text, "Error: No second response received. Tool results were: "))
	assert.Contains(t, rep.Text, "record not found")
}

func TestExplain_FailingToolDoesNotAbortOthers(t *testing.T) {
	prov := &scriptedProvider{replies: []*ai.ChatResponse{
		toolCalls(
			ai.ToolCall{ID: "c1", Name: "fetch_failure", Arguments: `not json`},
			ai.ToolCall{ID: "c2", Name: "lookup_kb", Arguments: `{"error_message": "timeout"}`},
		),
		text("done"),
	}}
	rep := newTestAnalyzer(t, prov).Explain(context.Background(), 1, English, nil)

	require.Len(t, rep.Outcomes, 2)
	assert.Contains(t, rep.Outcomes[0].Content(), "error")
	assert.Contains(t, rep.Outcomes[1].Content(), "Network latency")
	assert.Equal(t, "done", rep.Text)
}

func TestExplain_Round2Failures(t *testing.T) {
	call := ai.ToolCall{ID: "c1", Name: "fetch_failure", Arguments: `{"log_id": 1}`}

	prov := &scriptedProvider{replies: []*ai.ChatResponse{toolCalls(call), toolCalls(call)}}
	rep := newTestAnalyzer(t, prov).Explain(context.Background(), 1, English, nil)
	assert.True(t, strings.HasPrefix(rep.Text, "Error: Model made unexpected tool calls in second response. Tool summary: "))

	prov = &scriptedProvider{replies: []*ai.ChatResponse{toolCalls(call), text("  ")}}
	rep = newTestAnalyzer(t, prov).Explain(context.Background(), 1, English, nil)
	assert.True(t, strings.HasPrefix(rep.Text, "Error: Empty final response. Tool results were: "))
	assert.Contains(t, rep.Text, "daily_load")
}

func TestExplain_ArabicPrompts(t *testing.T) {
	prov := &scriptedProvider{replies: []*ai.ChatResponse{text("نعم")}}
	newTestAnalyzer(t, prov).Explain(context.Background(), 3, Arabic, nil)

	require.Len(t, prov.calls, 1)
	assert.Contains(t, prov.calls[0].Messages[0].Content, "رقم 3")
	assert.Equal(t, Arabic, ParseLanguage("AR"))
	assert.Equal(t, English, ParseLanguage("french"))
}

func TestStats(t *testing.T) {
	tools := NewTools(openIncidentDB(t))

	s, err := tools.Stats(context.Background(), failedAt.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, Stats{TotalFailures: 2, RecentFailures: 1, FailingJobs: 2}, s)

	list, err := tools.Failures(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(1), list[0].LogID)
	assert.Equal(t, "churn_calc", list[1].JobName)
}

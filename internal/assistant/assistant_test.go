package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/bi-assistant/internal/ai"
	"github.com/suPer8Hu/bi-assistant/internal/chat"
	"github.com/suPer8Hu/bi-assistant/internal/incident"
	"github.com/suPer8Hu/bi-assistant/internal/intent"
	"github.com/suPer8Hu/bi-assistant/internal/sqlpipe"
	"github.com/suPer8Hu/bi-assistant/internal/warehouse"
	"gorm.io/gorm"
)

// routedProvider answers by matching the system prompt, so one fake can stand in for
// every model role in a single interaction.
type routedProvider struct {
	classify  string
	sql       string
	summary   string
	greeting  string
	toolCalls []ai.ToolCall
	calls     []ai.ChatRequest
}

func (p *routedProvider) Chat(ctx context.Context, req ai.ChatRequest) (*ai.ChatResponse, error) {
	p.calls = append(p.calls, req)
	if len(req.Tools) > 0 {
		return &ai.ChatResponse{ToolCalls: p.toolCalls}, nil
	}
	system := ""
	if len(req.Messages) > 0 && req.Messages[0].Role == ai.RoleSystem {
		system = req.Messages[0].Content
	}
	switch {
	case strings.Contains(system, "classifier for user intents"):
		return &ai.ChatResponse{Content: []string{p.classify}}, nil
	case strings.Contains(system, "SQL generator"):
		return &ai.ChatResponse{Content: []string{p.sql}}, nil
	case strings.Contains(system, "business data analyst"):
		return &ai.ChatResponse{Content: []string{p.summary}}, nil
	case strings.Contains(system, "greeting you"):
		return &ai.ChatResponse{Content: []string{p.greeting}}, nil
	}
	return nil, errors.New("unexpected request")
}

func (p *routedProvider) sawSystem(fragment string) bool {
	for _, c := range p.calls {
		if len(c.Messages) > 0 && strings.Contains(c.Messages[0].Content, fragment) {
			return true
		}
	}
	return false
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := gorm.Open(gormsqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	ctx := context.Background()
	require.NoError(t, warehouse.Migrate(ctx, db))
	require.NoError(t, chat.Migrate(ctx, db))
	require.NoError(t, db.Create(&warehouse.Sales{Date: "2024-07-01", Region: "West", Product: "A", UnitsSold: 10, Revenue: 500}).Error)
	return db
}

func newTestAssistant(db *gorm.DB, p ai.Provider) *Assistant {
	pipe := sqlpipe.New(p, db, sqlpipe.Config{Dialect: "SQLite"})
	an := incident.NewAnalyzer(p, incident.NewDispatcher(incident.NewTools(db)))
	return New(p, intent.NewClassifier(p, 0), pipe, an, 10)
}

func TestAsk_DataQuery(t *testing.T) {
	db := openTestDB(t)
	prov := &routedProvider{
		classify: "data_query",
		sql:      "```sql\nSELECT SUM(revenue) AS total_revenue FROM sales WHERE date = '2024-07-01'\n```",
		summary:  "Total revenue on July 1st was 500.",
	}
	store := chat.NewRepo(db)
	conv := chat.NewConversation(store, chat.ModuleSQL)

	msg, err := newTestAssistant(db, prov).Ask(context.Background(), conv, "total revenue on 2024-07-01")
	require.NoError(t, err)
	assert.Contains(t, msg.Content, "500")

	meta := msg.Meta()
	assert.Equal(t, "data_query", meta.Intent)
	assert.Contains(t, meta.SQLQuery, "FROM sales")
	assert.Equal(t, []string{"total_revenue"}, meta.Columns)
	require.NotNil(t, meta.Success)
	assert.True(t, *meta.Success)
	assert.Equal(t, "Query executed successfully. Found 1 rows.", meta.ExecutionStatus)

	view, err := store.Load(context.Background(), conv.ID())
	require.NoError(t, err)
	require.Len(t, view.Messages, 2)
	assert.Equal(t, "total revenue on 2024-07-01", view.Title)
	assert.Equal(t, chat.RoleUser, view.Messages[0].Role)
	assert.Contains(t, view.Messages[1].Meta().SQLQuery, "2024-07-01")
}

func TestAsk_GreetingSkipsSQL(t *testing.T) {
	db := openTestDB(t)
	prov := &routedProvider{classify: "greeting", greeting: "Hello! Ask me about your sales."}
	conv := chat.NewConversation(chat.NewRepo(db), chat.ModuleSQL)

	msg, err := newTestAssistant(db, prov).Ask(context.Background(), conv, "hello")
	require.NoError(t, err)
	assert.Equal(t, "Hello! Ask me about your sales.", msg.Content)
	assert.Equal(t, "greeting", msg.Meta().Intent)
	assert.Empty(t, msg.Meta().SQLQuery)
	assert.False(t, prov.sawSystem("SQL generator"))
	assert.Len(t, prov.calls, 2)
}

func TestAsk_IrrelevantFallsBackWhenModelFails(t *testing.T) {
	db := openTestDB(t)
	// no route for the irrelevant prompt, so the contextual call errors
	prov := &routedProvider{classify: "irrelevant"}
	conv := chat.NewConversation(chat.NewRepo(db), chat.ModuleSQL)

	msg, err := newTestAssistant(db, prov).Ask(context.Background(), conv, "what's the weather?")
	require.NoError(t, err)
	assert.Equal(t, fallbackReply, msg.Content)
}

func TestAsk_GenerationFailureDoesNotExecute(t *testing.T) {
	db := openTestDB(t)
	prov := &routedProvider{classify: "data_query", sql: "Sorry, I cannot help with that."}
	conv := chat.NewConversation(chat.NewRepo(db), chat.ModuleSQL)

	msg, err := newTestAssistant(db, prov).Ask(context.Background(), conv, "revenue?")
	require.NoError(t, err)
	// the data_query contextual prompt has no route either
	assert.Equal(t, fallbackReply, msg.Content)

	meta := msg.Meta()
	assert.Empty(t, meta.SQLQuery)
	assert.True(t, strings.HasPrefix(meta.ExecutionStatus, "Error: AI returned non-SQL response: "))
	require.NotNil(t, meta.Success)
	assert.False(t, *meta.Success)
	assert.False(t, prov.sawSystem("business data analyst"))
}

func TestAsk_ClassifierSeesPriorTurnsOnly(t *testing.T) {
	db := openTestDB(t)
	prov := &routedProvider{classify: "greeting", greeting: "Hi"}
	conv := chat.NewConversation(chat.NewRepo(db), chat.ModuleSQL)
	a := newTestAssistant(db, prov)

	_, err := a.Ask(context.Background(), conv, "hello")
	require.NoError(t, err)
	_, err = a.Ask(context.Background(), conv, "hello again")
	require.NoError(t, err)

	// third call is the second classification: system, 2 prior turns, question
	classify := prov.calls[2]
	require.Len(t, classify.Messages, 4)
	assert.Equal(t, "hello", classify.Messages[1].Content)
	assert.Equal(t, "hello again", classify.Messages[3].Content)
}

func TestAsk_RejectsIncidentSession(t *testing.T) {
	db := openTestDB(t)
	prov := &routedProvider{}
	conv := chat.NewConversation(chat.NewRepo(db), chat.ModuleIncident)

	_, err := newTestAssistant(db, prov).Ask(context.Background(), conv, "hello")
	assert.ErrorIs(t, err, chat.ErrModuleMismatch)
	assert.Empty(t, prov.calls)
	assert.Zero(t, conv.Len())
}

func TestExplainIncident_UnknownLog(t *testing.T) {
	db := openTestDB(t)
	prov := &routedProvider{toolCalls: []ai.ToolCall{{ID: "c1", Name: "fetch_failure", Arguments: `{"log_id": 999}`}}}
	store := chat.NewRepo(db)
	conv := chat.NewConversation(store, chat.ModuleIncident)

	msg, err := newTestAssistant(db, prov).ExplainIncident(context.Background(), conv, 999, incident.English)
	require.NoError(t, err)
	assert.Contains(t, msg.Content, "record not found")
	assert.True(t, msg.Meta().ReportError)

	view, err := store.Load(context.Background(), conv.ID())
	require.NoError(t, err)
	require.Len(t, view.Messages, 2)
	assert.Equal(t, "Analyze incident log ID 999", view.Messages[0].Content)
	require.NotNil(t, view.Messages[0].Meta().LogID)
	assert.Equal(t, int64(999), *view.Messages[0].Meta().LogID)
	assert.Equal(t, "english", view.Messages[0].Meta().AnalysisLanguage)

	_, err = newTestAssistant(db, prov).Ask(context.Background(), conv, "hello")
	assert.ErrorIs(t, err, chat.ErrModuleMismatch)
}

func TestExplainIncident_ArabicRequest(t *testing.T) {
	db := openTestDB(t)
	prov := &routedProvider{}
	conv := chat.NewConversation(chat.NewRepo(db), chat.ModuleIncident)

	msg, err := newTestAssistant(db, prov).ExplainIncident(context.Background(), conv, 5, incident.Arabic)
	require.NoError(t, err)
	assert.Equal(t, "Model didn't make required tool calls for log_id 5", msg.Content)
	assert.Equal(t, "تحليل الحادثة رقم 5", conv.Messages()[0].Content)
}

func TestAsk_ArabicFallbackWhenModelFails(t *testing.T) {
	db := openTestDB(t)
	prov := &routedProvider{classify: "irrelevant"}
	conv := chat.NewConversation(chat.NewRepo(db), chat.ModuleSQL)

	msg, err := newTestAssistant(db, prov).Ask(context.Background(), conv, "كيف حال الطقس اليوم؟")
	require.NoError(t, err)
	assert.Equal(t, fallbackReplyAr, msg.Content)
}

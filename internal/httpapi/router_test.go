package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gormsqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/bi-assistant/internal/ai"
	"github.com/suPer8Hu/bi-assistant/internal/assistant"
	"github.com/suPer8Hu/bi-assistant/internal/chat"
	"github.com/suPer8Hu/bi-assistant/internal/httpapi/handlers"
	"github.com/suPer8Hu/bi-assistant/internal/httpapi/middleware"
	"github.com/suPer8Hu/bi-assistant/internal/incident"
	"github.com/suPer8Hu/bi-assistant/internal/intent"
	"github.com/suPer8Hu/bi-assistant/internal/sqlpipe"
	"github.com/suPer8Hu/bi-assistant/internal/warehouse"
	"gorm.io/gorm"
)

// stubProvider classifies everything as data_query, writes one fixed statement and
// summarizes with a fixed sentence.
type stubProvider struct{}

func (stubProvider) Chat(ctx context.Context, req ai.ChatRequest) (*ai.ChatResponse, error) {
	if len(req.Tools) > 0 {
		return &ai.ChatResponse{Content: []string{"Please give me a log id."}}, nil
	}
	system := req.Messages[0].Content
	switch {
	case strings.Contains(system, "classifier"):
		return &ai.ChatResponse{Content: []string{"data_query"}}, nil
	case strings.Contains(system, "SQL generator"):
		return &ai.ChatResponse{Content: []string{"SELECT region, revenue FROM sales"}}, nil
	case strings.Contains(system, "data analyst"):
		return &ai.ChatResponse{Content: []string{"West made 500."}}, nil
	}
	return nil, errors.New("unexpected")
}

type recordingPublisher struct {
	ids []string
}

func (p *recordingPublisher) PublishJob(ctx context.Context, jobID string) error {
	p.ids = append(p.ids, jobID)
	return nil
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	engine *gin.Engine
	pub    *recordingPublisher
	db     *gorm.DB
	token  string
}

func newTestServer(t *testing.T, secret string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

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
	require.NoError(t, db.Create(&warehouse.JobLog{JobName: "daily_load", RunTimestamp: time.Now().UTC(), Status: warehouse.StatusFailure, Message: "timeout encountered"}).Error)

	var p stubProvider
	tools := incident.NewTools(db)
	a := assistant.New(p,
		intent.NewClassifier(p, 0),
		sqlpipe.New(p, db, sqlpipe.Config{Dialect: "SQLite"}),
		incident.NewAnalyzer(p, incident.NewDispatcher(tools)),
		10,
	)
	pub := &recordingPublisher{}
	h := handlers.NewHandler(chat.NewRepo(db), a, tools, pub)

	s := &testServer{engine: NewRouter(h, secret), pub: pub, db: db}
	if secret != "" {
		s.token, err = middleware.IssueToken(secret, "tester", time.Hour)
		require.NoError(t, err)
	}
	return s
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func createSession(t *testing.T, s *testServer, module string) string {
	t.Helper()
	w, env := s.do(t, http.MethodPost, "/api/sessions", gin.H{"module": module})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var data struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	return data.SessionID
}

func TestPingAndNoRoute(t *testing.T) {
	s := newTestServer(t, "")
	w, env := s.do(t, http.MethodGet, "/ping", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, env.Code)

	w, env = s.do(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 40400, env.Code)
}

func TestAuthGuardsAPI(t *testing.T) {
	s := newTestServer(t, "s3cret")
	s.token = ""
	w, _ := s.do(t, http.MethodGet, "/api/sessions", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(t, http.MethodGet, "/ping", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAskFlowAndExport(t *testing.T) {
	s := newTestServer(t, "s3cret")
	id := createSession(t, s, "sql_assistant")

	// unsaved sessions are not listed yet
	_, env := s.do(t, http.MethodGet, "/api/sessions/"+id, nil)
	assert.Equal(t, 40401, env.Code)

	w, env := s.do(t, http.MethodPost, "/api/sessions/"+id+"/messages", gin.H{"message": "revenue by region"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var reply struct {
		Persisted bool         `json:"persisted"`
		Message   chat.Message `json:"message"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &reply))
	assert.True(t, reply.Persisted)
	assert.Equal(t, "West made 500.", reply.Message.Content)

	w, env = s.do(t, http.MethodGet, "/api/sessions?module=sql_assistant", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Sessions []chat.SessionSummary `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, int64(2), list.Sessions[0].MessageCount)

	w, _ = s.do(t, http.MethodGet, "/api/sessions/"+id+"/messages/"+reply.Message.MessageID+"/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", w.Header().Get("Content-Type"))
	assert.NotZero(t, w.Body.Len())

	// module is fixed once the session exists
	w, env = s.do(t, http.MethodPost, "/api/sessions/"+id+"/incidents", gin.H{"log_id": 1})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 40901, env.Code)

	w, _ = s.do(t, http.MethodDelete, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(t, http.MethodDelete, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// a deleted session is read-only and keeps its rows
	w, env = s.do(t, http.MethodPost, "/api/sessions/"+id+"/messages", gin.H{"message": "revenue again?"})
	assert.Equal(t, http.StatusGone, w.Code)
	assert.Equal(t, 41001, env.Code)
	w, env = s.do(t, http.MethodGet, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusGone, w.Code)
	assert.Equal(t, 41001, env.Code)
	var kept int64
	require.NoError(t, s.db.Model(&chat.Message{}).Where("session_id = ?", id).Count(&kept).Error)
	assert.Equal(t, int64(2), kept)
}

func TestSessionValidation(t *testing.T) {
	s := newTestServer(t, "")

	w, env := s.do(t, http.MethodPost, "/api/sessions", gin.H{"module": "chess"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 10002, env.Code)

	w, env = s.do(t, http.MethodGet, "/api/sessions/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 10003, env.Code)

	w, _ = s.do(t, http.MethodGet, "/api/sessions?module=chess", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIncidentEndpoints(t *testing.T) {
	s := newTestServer(t, "")
	id := createSession(t, s, "incident_explainer")

	w, env := s.do(t, http.MethodPost, "/api/sessions/"+id+"/incidents", gin.H{"log_id": 1, "language": "english"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, string(env.Data), "Please give me a log id.")

	w, env = s.do(t, http.MethodGet, "/api/incidents/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"total_failures":1`)

	w, env = s.do(t, http.MethodGet, "/api/incidents/failures", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), "daily_load")
}

func TestSubmitJob(t *testing.T) {
	s := newTestServer(t, "")
	id := createSession(t, s, "sql_assistant")

	w, env := s.do(t, http.MethodPost, "/api/sessions/"+id+"/jobs", gin.H{"message": "revenue?"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var data struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, []string{data.JobID}, s.pub.ids)

	w, env = s.do(t, http.MethodGet, "/api/jobs/"+data.JobID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"status":"queued"`)

	w, _ = s.do(t, http.MethodPost, "/api/sessions/"+id+"/jobs", gin.H{"message": "x", "log_id": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/jobs/01HZZZZZZZZZZZZZZZZZZZZZZZ", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

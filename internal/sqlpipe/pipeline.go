package sqlpipe

import (
	"context"
	"time"

	"github.com/suPer8Hu/bi-assistant/internal/ai"
	"gorm.io/gorm"
)

// Cache stores translations. Implementations must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// SchemaHinter returns column descriptions relevant to a question.
type SchemaHinter interface {
	Hints(ctx context.Context, question string, limit int) ([]string, error)
}

type Config struct {
	Dialect  string // PostgreSQL, MySQL or SQLite
	Schema   string
	ReadOnly bool
	MaxRows  int // 0 keeps every row
}

// Pipeline turns a question into SQL, runs it and summarizes the result.
type Pipeline struct {
	provider ai.Provider
	db       *gorm.DB
	cfg      Config
	cache    Cache
	hints    SchemaHinter
	now      func() time.Time
}

type Option func(*Pipeline)

func WithCache(c Cache) Option { return func(p *Pipeline) { p.cache = c } }

func WithSchemaHints(h SchemaHinter) Option { return func(p *Pipeline) { p.hints = h } }

func WithClock(now func() time.Time) Option { return func(p *Pipeline) { p.now = now } }

func New(provider ai.Provider, db *gorm.DB, cfg Config, opts ...Option) *Pipeline {
	if cfg.Dialect == "" {
		cfg.Dialect = "PostgreSQL"
	}
	if cfg.Schema == "" {
		cfg.Schema = DefaultSchema
	}
	p := &Pipeline{provider: provider, db: db, cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(p)
	}
	return p
}

// dateContext describes today, this month and last month for prompts.
type dateContext struct {
	Today        string
	CurrentMonth string
	LastMonth    string
	Year, Month  int
	LastYear     int
	LastMonthNum int
}

func newDateContext(now time.Time) dateContext {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	prev := first.AddDate(0, 0, -1)
	return dateContext{
		Today:        now.Format("2006-01-02"),
		CurrentMonth: now.Format("January 2006"),
		LastMonth:    prev.Format("January 2006"),
		Year:         now.Year(),
		Month:        int(now.Month()),
		LastYear:     prev.Year(),
		LastMonthNum: int(prev.Month()),
	}
}

package schemaindex

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/pgvector/pgvector-go"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Column describes one warehouse column for retrieval.
type Column struct {
	Table       string
	Name        string
	Description string
}

func (c Column) String() string {
	return fmt.Sprintf("%s.%s: %s", c.Table, c.Name, c.Description)
}

var DefaultColumns = []Column{
	{"sales", "date", "day of the sale, YYYY-MM-DD"},
	{"sales", "region", "sales region: North, South, East or West"},
	{"sales", "product", "product name such as Product A"},
	{"sales", "units_sold", "number of units sold that day"},
	{"sales", "revenue", "revenue in currency units, two decimals"},
	{"churn", "month", "first day of the month the churn was measured"},
	{"churn", "segment", "customer segment"},
	{"churn", "churned_customers", "customers lost in the month, churn count"},
}

type Entry struct {
	ID          int64           `gorm:"primaryKey;autoIncrement"`
	Table       string          `gorm:"column:table_name;type:varchar(64);not null"`
	Column      string          `gorm:"column:column_name;type:varchar(64);not null"`
	Description string          `gorm:"type:text;not null"`
	Embedding   pgvector.Vector `gorm:"type:vector;not null"`
}

func (Entry) TableName() string { return "schema_index" }

var ErrNoEmbedder = errors.New("schema index: no embedder configured")

// Index keeps one embedding per column and returns the columns closest to a question.
type Index struct {
	db       *gorm.DB
	embedder Embedder
}

func New(db *gorm.DB, e Embedder) *Index {
	return &Index{db: db, embedder: e}
}

// Migrate creates the vector extension on postgres and the index table.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if db.Dialector.Name() == "postgres" {
		if err := db.WithContext(ctx).Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			return fmt.Errorf("create vector extension: %w", err)
		}
	}
	return db.WithContext(ctx).AutoMigrate(&Entry{})
}

// Build replaces the index with embeddings of cols.
func (ix *Index) Build(ctx context.Context, cols []Column) (int, error) {
	if ix.embedder == nil {
		return 0, ErrNoEmbedder
	}
	texts := make([]string, len(cols))
	for i, c := range cols {
		texts[i] = c.String()
	}
	vecs, err := ix.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed columns: %w", err)
	}
	if len(vecs) != len(cols) {
		return 0, fmt.Errorf("embed size mismatch: got %d want %d", len(vecs), len(cols))
	}

	rows := make([]Entry, len(cols))
	for i, c := range cols {
		rows[i] = Entry{Table: c.Table, Column: c.Name, Description: c.Description, Embedding: pgvector.NewVector(vecs[i])}
	}
	err = ix.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Entry{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return 0, fmt.Errorf("store schema index: %w", err)
	}
	log.Printf("schemaindex: indexed columns=%d", len(rows))
	return len(rows), nil
}

// Hints returns up to limit "table.column: description" lines ranked by cosine distance.
// Postgres ranks in SQL; other dialects rank in process.
func (ix *Index) Hints(ctx context.Context, question string, limit int) ([]string, error) {
	if ix.embedder == nil {
		return nil, ErrNoEmbedder
	}
	vecs, err := ix.embedder.EmbedTexts(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed size mismatch: got %d want 1", len(vecs))
	}
	q := vecs[0]

	var rows []Entry
	if ix.db.Dialector.Name() == "postgres" {
		err = ix.db.WithContext(ctx).
			Clauses(clause.OrderBy{Expression: clause.Expr{SQL: "embedding <=> ?", Vars: []any{pgvector.NewVector(q)}}}).
			Limit(limit).
			Find(&rows).Error
		if err != nil {
			return nil, err
		}
	} else {
		if err := ix.db.WithContext(ctx).Find(&rows).Error; err != nil {
			return nil, err
		}
		sort.SliceStable(rows, func(i, j int) bool {
			return cosineDistance(q, rows[i].Embedding.Slice()) < cosineDistance(q, rows[j].Embedding.Slice())
		})
		if limit > 0 && len(rows) > limit {
			rows = rows[:limit]
		}
	}

	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = Column{Table: r.Table, Name: r.Column, Description: r.Description}.String()
	}
	return out, nil
}

func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 2
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

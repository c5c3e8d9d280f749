package schemaindex

import (
	"context"
	"errors"
	"strings"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// keywordEmbedder maps text onto a 3-d space: revenue, churn, region.
type keywordEmbedder struct {
	err error
}

func (e keywordEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		t = strings.ToLower(t)
		v := []float32{0.01, 0.01, 0.01}
		if strings.Contains(t, "revenue") {
			v[0] = 1
		}
		if strings.Contains(t, "churn") {
			v[1] = 1
		}
		if strings.Contains(t, "region") {
			v[2] = 1
		}
		out[i] = v
	}
	return out, nil
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
	require.NoError(t, Migrate(context.Background(), db))
	return db
}

func TestBuildAndHints(t *testing.T) {
	db := openTestDB(t)
	ix := New(db, keywordEmbedder{})

	n, err := ix.Build(context.Background(), DefaultColumns)
	require.NoError(t, err)
	assert.Equal(t, len(DefaultColumns), n)

	// rebuilding replaces rather than appends
	_, err = ix.Build(context.Background(), DefaultColumns)
	require.NoError(t, err)
	var count int64
	require.NoError(t, db.Model(&Entry{}).Count(&count).Error)
	assert.Equal(t, int64(len(DefaultColumns)), count)

	hints, err := ix.Hints(context.Background(), "how much revenue did we make", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"sales.revenue: revenue in currency units, two decimals"}, hints)

	hints, err = ix.Hints(context.Background(), "churn by segment", 2)
	require.NoError(t, err)
	require.Len(t, hints, 2)
	assert.Contains(t, hints[0], "churn")
}

func TestEmbedderErrors(t *testing.T) {
	db := openTestDB(t)
	ix := New(db, keywordEmbedder{err: errors.New("quota")})

	_, err := ix.Build(context.Background(), DefaultColumns)
	assert.ErrorContains(t, err, "quota")
	_, err = ix.Hints(context.Background(), "revenue", 3)
	assert.ErrorContains(t, err, "quota")

	_, err = New(db, nil).Hints(context.Background(), "revenue", 3)
	assert.ErrorIs(t, err, ErrNoEmbedder)
}

func TestCosineDistance(t *testing.T) {
	assert.InDelta(t, 0, cosineDistance([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 1, cosineDistance([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 2.0, cosineDistance([]float32{1}, []float32{1, 2}))
}

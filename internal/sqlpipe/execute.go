package sqlpipe

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Result is the outcome of one statement. Count is the number of rows the database
// returned; Rows may hold fewer when MaxRows is set.
type Result struct {
	Columns []string
	Rows    [][]any
	Count   int
	Status  string
	Success bool
}

// Execute validates and runs sql. Database errors are reported in Status, never returned.
func (p *Pipeline) Execute(ctx context.Context, sql string) Result {
	if err := p.Validate(sql); err != nil {
		log.Warnf("sqlpipe: rejected statement err=%v", err)
		return Result{Status: err.Error()}
	}

	start := time.Now()
	res, err := p.run(ctx, sql)
	if err != nil {
		log.Errorf("sqlpipe: execute failed cost=%s err=%v", time.Since(start), err)
		return Result{Status: "Error executing SQL: " + err.Error()}
	}
	if res.Count == 0 {
		res.Status = "No rows returned from the query."
	} else {
		res.Status = fmt.Sprintf("Query executed successfully. Found %d rows.", res.Count)
	}
	res.Success = true
	return res
}

func (p *Pipeline) run(ctx context.Context, sql string) (Result, error) {
	rows, err := p.db.WithContext(ctx).Raw(sql).Rows()
	if err != nil {
		return Result{}, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return Result{}, err
	}
	numeric := make([]bool, len(cols))
	if types, err := rows.ColumnTypes(); err == nil {
		for i, ct := range types {
			name := strings.ToUpper(ct.DatabaseTypeName())
			numeric[i] = strings.HasPrefix(name, "NUMERIC") || strings.HasPrefix(name, "DECIMAL") ||
				name == "NEWDECIMAL"
		}
	}

	res := Result{Columns: cols}
	for rows.Next() {
		res.Count++
		if p.cfg.MaxRows > 0 && len(res.Rows) >= p.cfg.MaxRows {
			continue
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Result{}, err
		}
		for i, v := range vals {
			vals[i] = normalize(v, numeric[i])
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return Result{}, err
	}
	return res, nil
}

// normalize turns driver values into JSON friendly ones.
func normalize(v any, numeric bool) any {
	switch x := v.(type) {
	case nil:
		return nil
	case []byte:
		return normalize(string(x), numeric)
	case string:
		if numeric {
			if n, err := strconv.ParseInt(x, 10, 64); err == nil {
				return n
			}
			if f, err := strconv.ParseFloat(x, 64); err == nil {
				return f
			}
		}
		return x
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format(time.RFC3339)
	default:
		return x
	}
}

package warehouse

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	runsPerJob  = 20
	runInterval = 8 * time.Hour
	failureRate = 0.2
	batchSize   = 500
)

var DefaultJobs = []Job{
	{JobName: "daily_load", Description: "Ingest raw data daily", Owner: "data_eng"},
	{JobName: "aggregate_sales", Description: "Aggregate sales metrics", Owner: "analytics"},
	{JobName: "churn_calc", Description: "Compute monthly churn", Owner: "analytics"},
}

var DefaultKB = []IncidentKB{
	{
		ErrorPattern: "%Connection refused%",
		RootCauseEN:  "Database connection refused",
		ResolutionEN: "Verify DB credentials and network access",
		RootCauseAR:  "تم رفض اتصال قاعدة البيانات",
		ResolutionAR: "تحقق من بيانات الاعتماد والشبكة",
	},
	{
		ErrorPattern: "%timeout%",
		RootCauseEN:  "Operation timed out",
		ResolutionEN: "Increase timeout settings or optimize query",
		RootCauseAR:  "انتهت مهلة العملية",
		ResolutionAR: "قم بزيادة إعداد المهلة أو تحسين الاستعلام",
	},
	{
		ErrorPattern: "%NullPointerException%",
		RootCauseEN:  "Null pointer dereference",
		ResolutionEN: "Check for missing data or initialize variables",
		RootCauseAR:  "إشارة إلى مؤشر خالي",
		ResolutionAR: "تحقق من البيانات المفقودة أو قم بتهيئة المتغيرات",
	},
}

type SeedOptions struct {
	// DataDir holds sales.csv and churn.csv. Missing files are skipped.
	DataDir  string
	Truncate bool
}

type SeedReport struct {
	Sales   int
	Churn   int
	Jobs    int
	KB      int
	JobLogs int
}

type Seeder struct {
	db  *gorm.DB
	rng *rand.Rand
	now func() time.Time
}

func NewSeeder(db *gorm.DB, seed uint64) *Seeder {
	return &Seeder{
		db:  db,
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now: time.Now,
	}
}

// Seed loads the CSV facts, job metadata, knowledge base fixtures and a synthetic run
// history in one transaction.
func (s *Seeder) Seed(ctx context.Context, opts SeedOptions) (SeedReport, error) {
	var (
		sales []Sales
		churn []Churn
	)
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sales, err = readSales(filepath.Join(opts.DataDir, "sales.csv"))
		return err
	})
	g.Go(func() error {
		var err error
		churn, err = readChurn(filepath.Join(opts.DataDir, "churn.csv"))
		return err
	})
	if err := g.Wait(); err != nil {
		return SeedReport{}, err
	}

	logs := s.syntheticLogs()
	rep := SeedReport{Sales: len(sales), Churn: len(churn), Jobs: len(DefaultJobs), KB: len(DefaultKB), JobLogs: len(logs)}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if opts.Truncate {
			if err := truncate(tx); err != nil {
				return err
			}
		}
		// natural keys make reseeding without truncate a no-op for existing rows
		ignore := func() *gorm.DB { return tx.Clauses(clause.OnConflict{DoNothing: true}) }
		if len(sales) > 0 {
			if err := ignore().CreateInBatches(sales, batchSize).Error; err != nil {
				return fmt.Errorf("seed sales: %w", err)
			}
		}
		if len(churn) > 0 {
			if err := ignore().CreateInBatches(churn, batchSize).Error; err != nil {
				return fmt.Errorf("seed churn: %w", err)
			}
		}
		if err := ignore().Create(slices.Clone(DefaultJobs)).Error; err != nil {
			return fmt.Errorf("seed jobs: %w", err)
		}
		if err := ignore().Create(slices.Clone(DefaultKB)).Error; err != nil {
			return fmt.Errorf("seed kb: %w", err)
		}
		if err := tx.CreateInBatches(&logs, batchSize).Error; err != nil {
			return fmt.Errorf("seed job logs: %w", err)
		}
		return nil
	})
	if err != nil {
		return SeedReport{}, err
	}

	log.Printf("warehouse: seeded sales=%d churn=%d jobs=%d kb=%d job_logs=%d",
		rep.Sales, rep.Churn, rep.Jobs, rep.KB, rep.JobLogs)
	return rep, nil
}

func truncate(tx *gorm.DB) error {
	all := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
	for _, m := range []any{&JobLog{}, &IncidentKB{}, &Job{}, &Sales{}, &Churn{}} {
		if err := all.Delete(m).Error; err != nil {
			return fmt.Errorf("truncate: %w", err)
		}
	}
	return nil
}

// syntheticLogs builds runsPerJob runs per job spaced runInterval apart going back from
// now, failing about failureRate of the time with a message matching a KB pattern.
func (s *Seeder) syntheticLogs() []JobLog {
	now := s.now().UTC().Truncate(time.Second)
	out := make([]JobLog, 0, len(DefaultJobs)*runsPerJob)
	for _, j := range DefaultJobs {
		for i := 0; i < runsPerJob; i++ {
			ts := now.Add(-time.Duration(i) * runInterval)
			row := JobLog{JobName: j.JobName, RunTimestamp: ts, Status: StatusSuccess}
			if s.rng.Float64() < failureRate {
				kb := DefaultKB[s.rng.IntN(len(DefaultKB))]
				row.Status = StatusFailure
				row.Message = fmt.Sprintf("Error in %s: %s encountered", j.JobName, strings.Trim(kb.ErrorPattern, "%"))
			} else {
				row.Message = fmt.Sprintf("Job %s completed successfully at %s.", j.JobName, ts.Format("2006-01-02T15:04:05"))
			}
			out = append(out, row)
		}
	}
	return out
}

func readSales(path string) ([]Sales, error) {
	recs, err := readCSV(path, "date", "region", "product", "units_sold", "revenue")
	if err != nil || recs == nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(recs))
	out := make([]Sales, 0, len(recs))
	for i, r := range recs {
		date, err := parseDate(r["date"])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+2, err)
		}
		units, err := strconv.Atoi(r["units_sold"])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: units_sold: %w", path, i+2, err)
		}
		revenue, err := strconv.ParseFloat(r["revenue"], 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: revenue: %w", path, i+2, err)
		}
		key := date + "|" + r["region"] + "|" + r["product"]
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, Sales{Date: date, Region: r["region"], Product: r["product"], UnitsSold: units, Revenue: revenue})
	}
	return out, nil
}

func readChurn(path string) ([]Churn, error) {
	recs, err := readCSV(path, "month", "segment", "churned_customers")
	if err != nil || recs == nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(recs))
	out := make([]Churn, 0, len(recs))
	for i, r := range recs {
		month, err := parseDate(r["month"])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+2, err)
		}
		n, err := strconv.Atoi(r["churned_customers"])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: churned_customers: %w", path, i+2, err)
		}
		key := month + "|" + r["segment"]
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, Churn{Month: month, Segment: r["segment"], ChurnedCustomers: n})
	}
	return out, nil
}

// readCSV returns rows keyed by header name. A missing file yields nil, nil.
func readCSV(path string, required ...string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warnf("warehouse: %s not found, skipping", path)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	header, err := r.Read()
	if err == io.EOF {
		return []map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}
	for _, col := range required {
		found := false
		for _, h := range header {
			if h == col {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%s: missing column %q", path, col)
		}
	}

	var out []map[string]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		row := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(rec) {
				row[h] = strings.TrimSpace(rec[i])
			}
		}
		out = append(out, row)
	}
	if out == nil {
		out = []map[string]string{}
	}
	return out, nil
}

var dateLayouts = []string{"2006-01-02", "2006-01-02 15:04:05", time.RFC3339, "1/2/2006"}

func parseDate(s string) (string, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", fmt.Errorf("bad date %q", s)
}

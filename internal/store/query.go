package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/vardis.report/internal/stats"
)

// JobInfo is one row of the jobs table.
type JobInfo struct {
	ID         string
	Experiment string
	Formula    string
	Columns    []string
	StartedAt  time.Time
	// FinishedAt is nil for jobs that were interrupted.
	FinishedAt *time.Time
}

// Aggregate is one stored row.
type Aggregate struct {
	Table    string
	Metric   string
	Position string
	Point    map[string]string
	Stat     stats.SampleStatistic
}

// Jobs lists recorded jobs, oldest first.
func (s *Store) Jobs() ([]JobInfo, error) {
	rows, err := s.db.Query(`SELECT job_id, experiment, formula, columns, started_at, finished_at FROM jobs ORDER BY started_at, rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JobInfo
	for rows.Next() {
		var (
			j                 JobInfo
			cols              string
			started, finished sql.NullString
		)
		if err := rows.Scan(&j.ID, &j.Experiment, &j.Formula, &cols, &started, &finished); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(cols), &j.Columns); err != nil {
			return nil, fmt.Errorf("job %s columns: %w", j.ID, err)
		}
		if started.Valid {
			j.StartedAt = parseTimestamp(started.String)
		}
		if finished.Valid {
			t := parseTimestamp(finished.String)
			j.FinishedAt = &t
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// Aggregates returns the rows of one job in insertion order.
func (s *Store) Aggregates(jobID string) ([]Aggregate, error) {
	rows, err := s.db.Query(`
		SELECT table_name, metric, node_pos, point_json, mean, stddev, cnt
		FROM aggregates WHERE job_id = ? ORDER BY aggregate_id`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Aggregate
	for rows.Next() {
		var (
			a            Aggregate
			point        string
			mean, stddev sql.NullFloat64
		)
		if err := rows.Scan(&a.Table, &a.Metric, &a.Position, &point, &mean, &stddev, &a.Stat.Count); err != nil {
			return nil, err
		}
		a.Stat.Mean, a.Stat.Stddev = floatOrNaN(mean), floatOrNaN(stddev)
		if err := json.Unmarshal([]byte(point), &a.Point); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

// parseTimestamp accepts both the CURRENT_TIMESTAMP layout and the RFC 3339
// form the driver produces for columns it already decoded as time values.
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

package stats

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DateLayout is the date key format used in the store and the API.
const DateLayout = "2006-01-02"

// ErrInvalidDate is returned for a date that is not YYYY-MM-DD.
var ErrInvalidDate = errors.New("invalid date, expected YYYY-MM-DD")

// Store counts trades per date and hour of day. Every mutation rewrites
// the backing JSON file.
type Store struct {
	mu     sync.RWMutex
	path   string
	data   map[string]map[int]int
	logger *zap.Logger
}

// NewStore loads the store at path. A missing file starts empty; an
// unreadable one is logged and also starts empty.
func NewStore(path string, logger *zap.Logger) (*Store, error) {
	s := &Store{
		path:   path,
		data:   make(map[string]map[int]int),
		logger: logger.Named("stats-store"),
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read stats store: %w", err)
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		s.logger.Error("Stats store is malformed, starting empty", zap.String("path", path), zap.Error(err))
		s.data = make(map[string]map[int]int)
	}
	return s, nil
}

// Record counts one trade at ts and persists the store.
func (s *Store) Record(ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	date := ts.Format(DateLayout)
	hours, ok := s.data[date]
	if !ok {
		hours = make(map[int]int)
		s.data[date] = hours
	}
	hours[ts.Hour()]++
	mtxRecorded.Inc()

	s.logger.Info("Trade recorded", zap.String("date", date), zap.Int("hour", ts.Hour()), zap.Int("count", hours[ts.Hour()]))
	return s.save()
}

func (s *Store) save() error {
	b, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode stats store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("save stats store: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("save stats store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("save stats store: %w", err)
	}
	return nil
}

// Report is an hour-of-day breakdown over one or more dates.
type Report struct {
	Date        string      `json:"date,omitempty"`
	WeekStart   string      `json:"week_start,omitempty"`
	Month       string      `json:"month,omitempty"`
	Dates       []string    `json:"dates,omitempty"`
	Counts      [24]int     `json:"counts"`
	Percentages [24]float64 `json:"percentages"`
	Total       int         `json:"total"`
}

// Daily reports the given date.
func (s *Store) Daily(date string) (Report, error) {
	day, err := parseDate(date)
	if err != nil {
		return Report{}, err
	}
	r := s.sum([]string{day.Format(DateLayout)})
	r.Date = day.Format(DateLayout)
	return r, nil
}

// Weekly reports the Monday-aligned week containing date.
func (s *Store) Weekly(date string) (Report, error) {
	day, err := parseDate(date)
	if err != nil {
		return Report{}, err
	}
	offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
	monday := day.AddDate(0, 0, -offset)

	dates := make([]string, 7)
	for i := range dates {
		dates[i] = monday.AddDate(0, 0, i).Format(DateLayout)
	}
	r := s.sum(dates)
	r.WeekStart = dates[0]
	r.Dates = dates
	return r, nil
}

// Monthly reports the calendar month containing date.
func (s *Store) Monthly(date string) (Report, error) {
	day, err := parseDate(date)
	if err != nil {
		return Report{}, err
	}
	first := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	var dates []string
	for d := first; d.Month() == first.Month(); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(DateLayout))
	}
	r := s.sum(dates)
	r.Month = first.Format("2006-01")
	r.Dates = dates
	return r, nil
}

func (s *Store) sum(dates []string) Report {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var r Report
	for _, date := range dates {
		for hour, count := range s.data[date] {
			if hour < 0 || hour > 23 {
				continue
			}
			r.Counts[hour] += count
			r.Total += count
		}
	}
	if r.Total > 0 {
		for i, c := range r.Counts {
			r.Percentages[i] = math.Round(float64(c)/float64(r.Total)*1000) / 10
		}
	}
	return r
}

func parseDate(v string) (time.Time, error) {
	t, err := time.Parse(DateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, v)
	}
	return t, nil
}

package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// dateLayouts are the period formats seen from emission providers.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05.000 MST",
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// Date is a calendar day in UTC. It serialises as YYYY-MM-DD.
type Date struct {
	time.Time
}

// NewDate truncates t to its UTC calendar day.
func NewDate(t time.Time) Date {
	u := t.UTC()
	return Date{time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts a bare day or any of the timestamp layouts providers emit.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NewDate(t), nil
		}
	}
	return Date{}, fmt.Errorf("parse date %q: unsupported format", s)
}

// MustDate is ParseDate for constants and tests.
func MustDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) String() string { return d.Format("2006-01-02") }

// Equal reports whether both dates name the same day.
func (d Date) Equal(o Date) bool { return d.Time.Equal(o.Time) }

// DaysUntil returns the fractional number of days from d to o.
func (d Date) DaysUntil(o Date) float64 {
	return o.Sub(d.Time).Hours() / 24
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// EmissionRecord is one day of BGT emission and burn activity.
type EmissionRecord struct {
	Period        Date    `json:"period"`
	DailyEmission float64 `json:"daily_emission"`
	BurntAmount   float64 `json:"burnt_amount"`
	MintedAmount  float64 `json:"minted_amount"`
	TotalBurnt    float64 `json:"total_burnt"`
	TotalEmission float64 `json:"total_emission"`
	AvgEmission7d float64 `json:"avg_emission_7d"`
}

// EmissionSeries is an immutable, period-descending list of emission records.
// A refresh replaces the whole series; records are never edited in place.
type EmissionSeries struct {
	Records     []EmissionRecord `json:"emissions"`
	LastUpdated time.Time        `json:"last_updated"`
}

// NewEmissionSeries copies records, drops duplicate periods (first wins) and
// orders the result most recent first.
func NewEmissionSeries(records []EmissionRecord, lastUpdated time.Time) EmissionSeries {
	return EmissionSeries{Records: SortByPeriodDesc(records), LastUpdated: lastUpdated}
}

// SortByPeriodDesc returns a de-duplicated copy of records ordered newest first.
func SortByPeriodDesc(records []EmissionRecord) []EmissionRecord {
	seen := make(map[string]struct{}, len(records))
	out := make([]EmissionRecord, 0, len(records))
	for _, r := range records {
		k := r.Period.String()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Period.After(out[j].Period.Time) })
	return out
}

// Clone returns a deep copy so callers can never alias cached records.
func (s EmissionSeries) Clone() EmissionSeries {
	recs := make([]EmissionRecord, len(s.Records))
	copy(recs, s.Records)
	return EmissionSeries{Records: recs, LastUpdated: s.LastUpdated}
}

// Len returns the number of records.
func (s EmissionSeries) Len() int { return len(s.Records) }

// Latest returns the most recent record.
func (s EmissionSeries) Latest() (EmissionRecord, bool) {
	if len(s.Records) == 0 {
		return EmissionRecord{}, false
	}
	return s.Records[0], true
}

package models

import (
	"fmt"
	"time"
)

// Day is a calendar date packed as YYYYMMDD, so integer order is date order.
type Day int32

// DayFromTime packs the calendar date of t (in its own location).
func DayFromTime(t time.Time) Day {
	y, m, d := t.Date()
	return Day(int32(y)*10000 + int32(m)*100 + int32(d))
}

func (d Day) Year() int  { return int(d) / 10000 }
func (d Day) Month() int { return int(d) / 100 % 100 }
func (d Day) Dom() int   { return int(d) % 100 }

// Time returns midnight UTC of the day.
func (d Day) Time() time.Time {
	return time.Date(d.Year(), time.Month(d.Month()), d.Dom(), 0, 0, 0, 0, time.UTC)
}

func (d Day) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year(), d.Month(), d.Dom())
}

func (d Day) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// Row is one (country, date) observation with cumulative counts.
type Row struct {
	Country   string `json:"country"`
	Date      Day    `json:"date"`
	Confirmed int64  `json:"confirmed"`
	Recovered int64  `json:"recovered"`
	Deaths    int64  `json:"deaths"`
	Active    int64  `json:"active"`
}

// FilteredRow is a Row plus the window-relative daily delta of Confirmed.
type FilteredRow struct {
	Row
	DailyNewCases int64 `json:"daily_new_cases"`
}

type FilteredDataset []FilteredRow

// Rows strips the derived column.
func (fd FilteredDataset) Rows() []Row {
	out := make([]Row, len(fd))
	for i := range fd {
		out[i] = fd[i].Row
	}
	return out
}

// CountryTotals holds field-wise maxima for one country. The fields need not
// come from the same row.
type CountryTotals struct {
	Country       string `json:"country"`
	Date          Day    `json:"date"`
	Confirmed     int64  `json:"confirmed"`
	Recovered     int64  `json:"recovered"`
	Deaths        int64  `json:"deaths"`
	Active        int64  `json:"active"`
	DailyNewCases int64  `json:"daily_new_cases"`
}

type Breakdown struct {
	Active    int64 `json:"active"`
	Recovered int64 `json:"recovered"`
	Deaths    int64 `json:"deaths"`
}

type Point struct {
	Date  Day   `json:"date"`
	Value int64 `json:"value"`
}

type Series struct {
	Country string  `json:"country"`
	Points  []Point `json:"points"`
}

type CountryValue struct {
	Country string `json:"country"`
	Value   int64  `json:"value"`
}

// MapFrame is one animation step of the choropleth.
type MapFrame struct {
	Date   Day            `json:"date"`
	Values []CountryValue `json:"values"`
}

type VaccinationItem struct {
	Country      string `json:"country"`
	Vaccinations int64  `json:"vaccinations"`
}

type DashboardData struct {
	Confirmed    []Series          `json:"confirmed"`
	DailyNew     []Series          `json:"daily_new"`
	Totals       []CountryTotals   `json:"totals"`
	LatestDate   *Day              `json:"latest_date,omitempty"`
	Breakdown    Breakdown         `json:"breakdown"`
	Frames       []MapFrame        `json:"frames"`
	Vaccinations []VaccinationItem `json:"vaccinations"`
}

type CountryList struct {
	Countries []string `json:"countries"`
	MinDate   *Day     `json:"min_date,omitempty"`
	MaxDate   *Day     `json:"max_date,omitempty"`
}

type SnapshotResponse struct {
	Date      *Day            `json:"date,omitempty"`
	Rows      FilteredDataset `json:"rows"`
	Breakdown Breakdown       `json:"breakdown"`
}

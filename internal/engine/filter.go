package engine

import (
	"errors"
	"strings"
	"time"

	"covidboard/internal/models"
)

// Selection is the user's filter. An empty Countries list selects nothing.
// Start and End are inclusive; Start > End selects nothing.
type Selection struct {
	Countries []string
	Start     models.Day
	End       models.Day
}

var dayLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseDay normalizes a textual date to a Day.
func ParseDay(s string) (models.Day, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dayLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return models.DayFromTime(t), nil
		}
	}
	return 0, errors.New("unrecognized date format")
}

// ParseSelection normalizes raw selection values. It only fails when a value
// cannot be interpreted; selections that match nothing are valid.
func ParseSelection(countries []string, start, end string) (Selection, error) {
	sel := Selection{Countries: make([]string, 0, len(countries))}
	for _, c := range countries {
		name := strings.TrimSpace(c)
		if name == "" {
			return Selection{}, &InvalidInputError{Field: "country", Value: c, Err: errors.New("blank country name")}
		}
		sel.Countries = append(sel.Countries, name)
	}

	var err error
	if sel.Start, err = ParseDay(start); err != nil {
		return Selection{}, &InvalidInputError{Field: "start_date", Value: start, Err: err}
	}
	if sel.End, err = ParseDay(end); err != nil {
		return Selection{}, &InvalidInputError{Field: "end_date", Value: end, Err: err}
	}
	return sel, nil
}

// Filter returns the rows of ds whose country is selected and whose date lies
// in [Start, End], in dataset order.
func Filter(ds *ColumnStore, sel Selection) []models.Row {
	out := make([]models.Row, 0)
	if len(sel.Countries) == 0 || sel.Start > sel.End {
		return out
	}

	// Selected countries as a dictionary-id bitmap; unknown names drop out here.
	wanted := make([]bool, len(ds.CountryDict))
	matched := false
	for _, name := range sel.Countries {
		if id, ok := ds.CountryID(name); ok {
			wanted[id] = true
			matched = true
		}
	}
	if !matched {
		return out
	}

	for i, cid := range ds.CountryIDs {
		d := ds.Dates[i]
		if wanted[cid] && d >= sel.Start && d <= sel.End {
			out = append(out, ds.Row(i))
		}
	}
	return out
}

// FilterRows runs Filter and then DeriveDailyNewCases.
func FilterRows(ds *ColumnStore, sel Selection) models.FilteredDataset {
	return DeriveDailyNewCases(Filter(ds, sel))
}

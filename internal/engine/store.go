package engine

import (
	"sort"
	"sync"

	"covidboard/internal/models"
)

// ColumnStore holds the dataset in Struct-of-Arrays format.
// It is never modified after LoadColumnar returns it.
type ColumnStore struct {
	// Data Columns (Flat Arrays)
	Dates     []models.Day
	Confirmed []int64
	Recovered []int64
	Deaths    []int64
	Active    []int64

	// Dictionary Encoded IDs (0..N)
	CountryIDs []int32

	// Dictionary (ID -> String)
	CountryDict []string

	indexOnce    sync.Once
	countryIndex map[string]int32
}

func (cs *ColumnStore) Len() int { return len(cs.Dates) }

// Row materializes row i.
func (cs *ColumnStore) Row(i int) models.Row {
	return models.Row{
		Country:   cs.CountryDict[cs.CountryIDs[i]],
		Date:      cs.Dates[i],
		Confirmed: cs.Confirmed[i],
		Recovered: cs.Recovered[i],
		Deaths:    cs.Deaths[i],
		Active:    cs.Active[i],
	}
}

// CountryID looks up the dictionary id of a country name.
func (cs *ColumnStore) CountryID(name string) (int32, bool) {
	cs.indexOnce.Do(cs.buildIndex)
	id, ok := cs.countryIndex[name]
	return id, ok
}

func (cs *ColumnStore) buildIndex() {
	cs.countryIndex = make(map[string]int32, len(cs.CountryDict))
	for id, name := range cs.CountryDict {
		cs.countryIndex[name] = int32(id)
	}
}

// Countries returns the distinct country names, sorted.
func (cs *ColumnStore) Countries() []string {
	out := make([]string, len(cs.CountryDict))
	copy(out, cs.CountryDict)
	sort.Strings(out)
	return out
}

// DateRange returns the smallest and largest date; ok is false for an empty store.
func (cs *ColumnStore) DateRange() (minDay, maxDay models.Day, ok bool) {
	if len(cs.Dates) == 0 {
		return 0, 0, false
	}
	minDay, maxDay = cs.Dates[0], cs.Dates[0]
	for _, d := range cs.Dates[1:] {
		if d < minDay {
			minDay = d
		}
		if d > maxDay {
			maxDay = d
		}
	}
	return minDay, maxDay, true
}

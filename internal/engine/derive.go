package engine

import (
	"sort"

	"covidboard/internal/models"
)

// DeriveDailyNewCases adds the day-over-day change of Confirmed per country.
// The first row of each country in rows gets 0, even when earlier data exists
// outside the window. Deltas are not clamped. Output order matches rows.
func DeriveDailyNewCases(rows []models.Row) models.FilteredDataset {
	out := make(models.FilteredDataset, len(rows))
	groups := make(map[string][]int)
	order := make([]string, 0)
	for i, r := range rows {
		out[i] = models.FilteredRow{Row: r}
		if _, ok := groups[r.Country]; !ok {
			order = append(order, r.Country)
		}
		groups[r.Country] = append(groups[r.Country], i)
	}

	for _, country := range order {
		idx := groups[country]
		sort.SliceStable(idx, func(a, b int) bool { return rows[idx[a]].Date < rows[idx[b]].Date })
		for k := 1; k < len(idx); k++ {
			out[idx[k]].DailyNewCases = rows[idx[k]].Confirmed - rows[idx[k-1]].Confirmed
		}
	}
	return out
}

// LatestSnapshot returns the rows dated on the single latest date in rows.
func LatestSnapshot(rows models.FilteredDataset) models.FilteredDataset {
	out := make(models.FilteredDataset, 0)
	latest, ok := latestDay(rows)
	if !ok {
		return out
	}
	for _, r := range rows {
		if r.Date == latest {
			out = append(out, r)
		}
	}
	return out
}

func latestDay(rows models.FilteredDataset) (models.Day, bool) {
	if len(rows) == 0 {
		return 0, false
	}
	latest := rows[0].Date
	for _, r := range rows[1:] {
		if r.Date > latest {
			latest = r.Date
		}
	}
	return latest, true
}

// SnapshotTotals sums Active, Recovered and Deaths over rows.
func SnapshotTotals(rows models.FilteredDataset) models.Breakdown {
	var b models.Breakdown
	for _, r := range rows {
		b.Active += r.Active
		b.Recovered += r.Recovered
		b.Deaths += r.Deaths
	}
	return b
}

// MaxPerCountry maximizes every numeric field per country independently, so a
// result may combine values from different dates. Sorted by country.
func MaxPerCountry(rows models.FilteredDataset) []models.CountryTotals {
	byCountry := make(map[string]*models.CountryTotals)
	for _, r := range rows {
		t, ok := byCountry[r.Country]
		if !ok {
			byCountry[r.Country] = &models.CountryTotals{
				Country:       r.Country,
				Date:          r.Date,
				Confirmed:     r.Confirmed,
				Recovered:     r.Recovered,
				Deaths:        r.Deaths,
				Active:        r.Active,
				DailyNewCases: r.DailyNewCases,
			}
			continue
		}
		t.Date = max(t.Date, r.Date)
		t.Confirmed = max(t.Confirmed, r.Confirmed)
		t.Recovered = max(t.Recovered, r.Recovered)
		t.Deaths = max(t.Deaths, r.Deaths)
		t.Active = max(t.Active, r.Active)
		t.DailyNewCases = max(t.DailyNewCases, r.DailyNewCases)
	}

	out := make([]models.CountryTotals, 0, len(byCountry))
	for _, t := range byCountry {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Country < out[j].Country })
	return out
}

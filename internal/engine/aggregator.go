package engine

import (
	"sort"

	"covidboard/internal/models"
)

// Placeholder figures until a real vaccination feed is wired in.
var vaccinations = []models.VaccinationItem{
	{Country: "United States", Vaccinations: 300000000},
	{Country: "India", Vaccinations: 800000000},
	{Country: "Brazil", Vaccinations: 200000000},
	{Country: "UK", Vaccinations: 70000000},
	{Country: "Germany", Vaccinations: 60000000},
}

// Vaccinations returns a copy of the static vaccination table.
func Vaccinations() []models.VaccinationItem {
	out := make([]models.VaccinationItem, len(vaccinations))
	copy(out, vaccinations)
	return out
}

// Build computes every chart view of a filtered dataset in one pass.
func Build(rows models.FilteredDataset) *models.DashboardData {
	// 1. Group by country and by date
	confirmed := make(map[string][]models.Point)
	daily := make(map[string][]models.Point)
	frames := make(map[models.Day][]models.CountryValue)

	for _, r := range rows {
		confirmed[r.Country] = append(confirmed[r.Country], models.Point{Date: r.Date, Value: r.Confirmed})
		daily[r.Country] = append(daily[r.Country], models.Point{Date: r.Date, Value: r.DailyNewCases})
		frames[r.Date] = append(frames[r.Date], models.CountryValue{Country: r.Country, Value: r.Confirmed})
	}

	// 2. Build Result
	data := &models.DashboardData{
		Confirmed:    toSeries(confirmed),
		DailyNew:     toSeries(daily),
		Totals:       MaxPerCountry(rows),
		Frames:       make([]models.MapFrame, 0, len(frames)),
		Vaccinations: Vaccinations(),
	}

	// Pie (latest snapshot)
	if latest, ok := latestDay(rows); ok {
		data.LatestDate = &latest
		data.Breakdown = SnapshotTotals(LatestSnapshot(rows))
	}

	// Map frames, ascending by date
	for d, values := range frames {
		sort.Slice(values, func(i, j int) bool { return values[i].Country < values[j].Country })
		data.Frames = append(data.Frames, models.MapFrame{Date: d, Values: values})
	}
	sort.Slice(data.Frames, func(i, j int) bool { return data.Frames[i].Date < data.Frames[j].Date })

	return data
}

func toSeries(points map[string][]models.Point) []models.Series {
	out := make([]models.Series, 0, len(points))
	for country, pts := range points {
		sort.SliceStable(pts, func(i, j int) bool { return pts[i].Date < pts[j].Date })
		out = append(out, models.Series{Country: country, Points: pts})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Country < out[j].Country })
	return out
}

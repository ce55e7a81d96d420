package api_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"

	"covidboard/internal/api"
	"covidboard/internal/engine"
)

// --- test helpers -----------------------------------------------------------

const sampleCSV = `Date,Country,Confirmed,Recovered,Deaths
2020-01-22,A,10,2,1
2020-01-23,A,15,3,1
2020-01-23,B,5,0,0
2020-01-23,"Korea, South",7,1,0
`

func newServer(t *testing.T, p api.DatasetProvider) *echo.Echo {
	t.Helper()
	e := echo.New()
	e.JSONSerializer = api.JSONSerializer{}
	api.NewHandler(p, "2020-01-22", "2021-12-31").RegisterRoutes(e)
	return e
}

func sampleProvider(t *testing.T) api.DatasetProvider {
	t.Helper()
	store, err := engine.LoadColumnar([]byte(sampleCSV))
	if err != nil {
		t.Fatalf("LoadColumnar: %v", err)
	}
	return api.ProviderFunc(func(ctx context.Context) (*engine.ColumnStore, error) { return store, nil })
}

func failingProvider() api.DatasetProvider {
	return api.ProviderFunc(func(ctx context.Context) (*engine.ColumnStore, error) {
		return nil, &engine.FetchError{Source: "test", Err: errors.New("offline")}
	})
}

func get(t *testing.T, e *echo.Echo, path string, q url.Values) *httptest.ResponseRecorder {
	t.Helper()
	if q != nil {
		path += "?" + q.Encode()
	}
	rr := httptest.NewRecorder()
	e.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

func selectAll() url.Values {
	return url.Values{
		"country": {"A", "B"},
		"start":   {"2020-01-22"},
		"end":     {"2020-01-23"},
	}
}

// --- /api/health, /api/countries --------------------------------------------

func TestHealth(t *testing.T) {
	rr := get(t, newServer(t, sampleProvider(t)), "/api/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp map[string]interface{}
	decode(t, rr, &resp)
	if resp["rows"].(float64) != 4 {
		t.Errorf("rows: got %v, want 4", resp["rows"])
	}
}

func TestHealth_DatasetDown(t *testing.T) {
	rr := get(t, newServer(t, failingProvider()), "/api/health", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want 503", rr.Code)
	}
}

func TestCountries(t *testing.T) {
	rr := get(t, newServer(t, sampleProvider(t)), "/api/countries", nil)
	var resp struct {
		Countries []string `json:"countries"`
		MinDate   string   `json:"min_date"`
		MaxDate   string   `json:"max_date"`
	}
	decode(t, rr, &resp)
	if len(resp.Countries) != 3 || resp.Countries[2] != "Korea, South" {
		t.Errorf("countries: got %v", resp.Countries)
	}
	if resp.MinDate != "2020-01-22" || resp.MaxDate != "2020-01-23" {
		t.Errorf("date range: got %s..%s", resp.MinDate, resp.MaxDate)
	}
}

// --- /api/data --------------------------------------------------------------

type dataRow struct {
	Country       string `json:"country"`
	Date          string `json:"date"`
	Confirmed     int64  `json:"confirmed"`
	Active        int64  `json:"active"`
	DailyNewCases int64  `json:"daily_new_cases"`
}

type dataPage struct {
	Data   []dataRow `json:"data"`
	Total  int       `json:"total"`
	Limit  int       `json:"limit"`
	Offset int       `json:"offset"`
}

func TestData(t *testing.T) {
	rr := get(t, newServer(t, sampleProvider(t)), "/api/data", selectAll())
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (%s)", rr.Code, rr.Body.String())
	}
	var page dataPage
	decode(t, rr, &page)

	if page.Total != 3 || len(page.Data) != 3 {
		t.Fatalf("total: got %d rows %d, want 3", page.Total, len(page.Data))
	}
	want := []int64{0, 5, 0}
	for i, r := range page.Data {
		if r.DailyNewCases != want[i] {
			t.Errorf("row %d daily_new_cases: got %d, want %d", i, r.DailyNewCases, want[i])
		}
	}
	if page.Data[0].Date != "2020-01-22" || page.Data[0].Active != 7 {
		t.Errorf("row 0: got %+v", page.Data[0])
	}
}

func TestData_Pagination(t *testing.T) {
	q := selectAll()
	q.Set("limit", "1")
	q.Set("offset", "1")
	var page dataPage
	decode(t, get(t, newServer(t, sampleProvider(t)), "/api/data", q), &page)

	if page.Total != 3 || len(page.Data) != 1 || page.Data[0].Confirmed != 15 {
		t.Errorf("page: got %+v", page)
	}

	q.Set("offset", "10")
	decode(t, get(t, newServer(t, sampleProvider(t)), "/api/data", q), &page)
	if len(page.Data) != 0 {
		t.Errorf("past the end: got %d rows", len(page.Data))
	}
}

func TestData_NoCountries(t *testing.T) {
	var page dataPage
	decode(t, get(t, newServer(t, sampleProvider(t)), "/api/data", nil), &page)
	if page.Total != 0 {
		t.Errorf("total: got %d, want 0", page.Total)
	}
}

func TestData_QuotedCountryDefaultsDates(t *testing.T) {
	var page dataPage
	q := url.Values{"country": {"Korea, South"}}
	decode(t, get(t, newServer(t, sampleProvider(t)), "/api/data", q), &page)
	if page.Total != 1 || page.Data[0].Country != "Korea, South" {
		t.Errorf("page: got %+v", page)
	}
}

func TestData_BadDate(t *testing.T) {
	q := selectAll()
	q.Set("start", "not-a-date")
	// Bad input wins over an unavailable dataset.
	rr := get(t, newServer(t, failingProvider()), "/api/data", q)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rr.Code)
	}
}

// --- aggregated views -------------------------------------------------------

func TestTotals(t *testing.T) {
	var totals []struct {
		Country   string `json:"country"`
		Confirmed int64  `json:"confirmed"`
	}
	decode(t, get(t, newServer(t, sampleProvider(t)), "/api/totals", selectAll()), &totals)
	if len(totals) != 2 || totals[0].Confirmed != 15 || totals[1].Confirmed != 5 {
		t.Errorf("totals: got %+v", totals)
	}
}

func TestSnapshot(t *testing.T) {
	var snap struct {
		Date      string    `json:"date"`
		Rows      []dataRow `json:"rows"`
		Breakdown struct {
			Active    int64 `json:"active"`
			Recovered int64 `json:"recovered"`
			Deaths    int64 `json:"deaths"`
		} `json:"breakdown"`
	}
	decode(t, get(t, newServer(t, sampleProvider(t)), "/api/snapshot", selectAll()), &snap)

	if snap.Date != "2020-01-23" || len(snap.Rows) != 2 {
		t.Fatalf("snapshot: got %+v", snap)
	}
	if snap.Breakdown.Active != 16 || snap.Breakdown.Recovered != 3 || snap.Breakdown.Deaths != 1 {
		t.Errorf("breakdown: got %+v", snap.Breakdown)
	}
}

func TestDashboard(t *testing.T) {
	var data struct {
		Confirmed []struct {
			Country string `json:"country"`
		} `json:"confirmed"`
		Frames []struct {
			Date string `json:"date"`
		} `json:"frames"`
		LatestDate   string        `json:"latest_date"`
		Vaccinations []interface{} `json:"vaccinations"`
	}
	decode(t, get(t, newServer(t, sampleProvider(t)), "/api/dashboard", selectAll()), &data)

	if len(data.Confirmed) != 2 || len(data.Frames) != 2 || data.LatestDate != "2020-01-23" {
		t.Errorf("dashboard: got %+v", data)
	}
	if len(data.Vaccinations) != 5 {
		t.Errorf("vaccinations: got %d", len(data.Vaccinations))
	}
}

func TestVaccinations(t *testing.T) {
	rr := get(t, newServer(t, failingProvider()), "/api/vaccinations", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", rr.Code)
	}
}

// --- binary responses -------------------------------------------------------

func TestExport_ETag(t *testing.T) {
	e := newServer(t, sampleProvider(t))
	rr := get(t, e, "/api/export", selectAll())
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if ct := rr.Header().Get(echo.HeaderContentType); ct != "application/vnd.apache.arrow.stream" {
		t.Errorf("content type: got %q", ct)
	}
	etag := rr.Header().Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/export?"+selectAll().Encode(), nil)
	req.Header.Set("If-None-Match", etag)
	rr2 := httptest.NewRecorder()
	e.ServeHTTP(rr2, req)
	if rr2.Code != http.StatusNotModified {
		t.Errorf("conditional status: got %d, want 304", rr2.Code)
	}
}

func TestExport_IfNoneMatchForms(t *testing.T) {
	e := newServer(t, sampleProvider(t))
	etag := get(t, e, "/api/export", selectAll()).Header().Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag")
	}

	cases := map[string]struct {
		header string
		want   int
	}{
		"wildcard":  {"*", http.StatusNotModified},
		"list":      {`"0000000000000000", ` + etag, http.StatusNotModified},
		"weak":      {"W/" + etag, http.StatusNotModified},
		"no spaces": {`"a",` + etag + `,"b"`, http.StatusNotModified},
		"other tag": {`"0000000000000000"`, http.StatusOK},
	}
	for name, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/export?"+selectAll().Encode(), nil)
		req.Header.Set("If-None-Match", tc.header)
		rr := httptest.NewRecorder()
		e.ServeHTTP(rr, req)
		if rr.Code != tc.want {
			t.Errorf("%s: status got %d, want %d", name, rr.Code, tc.want)
		}
	}
}

func TestChart(t *testing.T) {
	rr := get(t, newServer(t, sampleProvider(t)), "/api/charts/confirmed", selectAll())
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (%s)", rr.Code, rr.Body.String())
	}
	if !bytes.HasPrefix(rr.Body.Bytes(), []byte("\x89PNG")) {
		t.Error("body is not a PNG")
	}
}

func TestChart_NoData(t *testing.T) {
	rr := get(t, newServer(t, sampleProvider(t)), "/api/charts/breakdown", nil)
	if rr.Code != http.StatusNoContent {
		t.Errorf("status: got %d, want 204", rr.Code)
	}
}

func TestChart_Unknown(t *testing.T) {
	rr := get(t, newServer(t, sampleProvider(t)), "/api/charts/radar", selectAll())
	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
}

package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/zeebo/xxh3"

	"covidboard/internal/engine"
	"covidboard/internal/models"
	"covidboard/internal/render"
)

const arrowStreamType = "application/vnd.apache.arrow.stream"

// DatasetProvider hands out the current dataset, loading it if needed.
type DatasetProvider interface {
	Dataset(ctx context.Context) (*engine.ColumnStore, error)
}

// ProviderFunc adapts a function to DatasetProvider.
type ProviderFunc func(ctx context.Context) (*engine.ColumnStore, error)

func (f ProviderFunc) Dataset(ctx context.Context) (*engine.ColumnStore, error) { return f(ctx) }

type Handler struct {
	data         DatasetProvider
	defaultStart string
	defaultEnd   string
}

// NewHandler wires the routes to a dataset provider. defaultStart and
// defaultEnd apply when a request omits start or end.
func NewHandler(data DatasetProvider, defaultStart, defaultEnd string) *Handler {
	return &Handler{data: data, defaultStart: defaultStart, defaultEnd: defaultEnd}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	api := e.Group("/api")
	api.GET("/health", h.GetHealth)
	api.GET("/countries", h.GetCountries)
	api.GET("/data", h.GetData)
	api.GET("/dashboard", h.GetDashboard)
	api.GET("/totals", h.GetTotals)
	api.GET("/snapshot", h.GetSnapshot)
	api.GET("/vaccinations", h.GetVaccinations)
	api.GET("/export", h.GetExport)
	api.GET("/charts/:chart", h.GetChart)
}

// --- HELPERS ---

func getPaginationParams(c echo.Context, defaultLimit int) (int, int) {
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}
	offset, err := strconv.Atoi(c.QueryParam("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

// httpError maps pipeline errors onto status codes.
func httpError(err error) error {
	var inv *engine.InvalidInputError
	var fe *engine.FetchError
	switch {
	case errors.As(err, &inv):
		return echo.NewHTTPError(http.StatusBadRequest, inv.Error()).SetInternal(err)
	case errors.As(err, &fe):
		log.Errorf("dataset unavailable: %v", err)
		return echo.NewHTTPError(http.StatusServiceUnavailable, "dataset unavailable").SetInternal(err)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError).SetInternal(err)
	}
}

func (h *Handler) selection(c echo.Context) (engine.Selection, error) {
	start := c.QueryParam("start")
	if start == "" {
		start = h.defaultStart
	}
	end := c.QueryParam("end")
	if end == "" {
		end = h.defaultEnd
	}
	return engine.ParseSelection(c.QueryParams()["country"], start, end)
}

// filtered parses the request selection before touching the dataset, so bad
// input is reported even when the dataset is down.
func (h *Handler) filtered(c echo.Context) (models.FilteredDataset, error) {
	sel, err := h.selection(c)
	if err != nil {
		return nil, httpError(err)
	}
	ds, err := h.data.Dataset(c.Request().Context())
	if err != nil {
		return nil, httpError(err)
	}
	return engine.FilterRows(ds, sel), nil
}

// etagMatch reports whether an If-None-Match header names etag. The header
// may be "*" or a comma separated list; weak tags compare by their opaque part.
func etagMatch(header, etag string) bool {
	for _, tag := range strings.Split(header, ",") {
		tag = strings.TrimSpace(tag)
		if tag == "*" || strings.TrimPrefix(tag, "W/") == etag {
			return true
		}
	}
	return false
}

// writeBlob sends b with a content hash ETag and honours If-None-Match.
func writeBlob(c echo.Context, contentType string, b []byte) error {
	etag := fmt.Sprintf(`"%016x"`, xxh3.Hash(b))
	c.Response().Header().Set("ETag", etag)
	if etagMatch(c.Request().Header.Get("If-None-Match"), etag) {
		return c.NoContent(http.StatusNotModified)
	}
	return c.Blob(http.StatusOK, contentType, b)
}

// --- HANDLERS ---

func (h *Handler) GetHealth(c echo.Context) error {
	ds, err := h.data.Dataset(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"rows":      ds.Len(),
		"countries": len(ds.CountryDict),
	})
}

// options for the country multiselect
func (h *Handler) GetCountries(c echo.Context) error {
	ds, err := h.data.Dataset(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	resp := models.CountryList{Countries: ds.Countries()}
	if lo, hi, ok := ds.DateRange(); ok {
		resp.MinDate, resp.MaxDate = &lo, &hi
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetData(c echo.Context) error {
	rows, err := h.filtered(c)
	if err != nil {
		return err
	}
	total := len(rows)
	limit, offset := getPaginationParams(c, total)

	page := rows[:0]
	if offset < total {
		end := offset + limit
		if end > total {
			end = total
		}
		page = rows[offset:end]
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":   page,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *Handler) GetDashboard(c echo.Context) error {
	rows, err := h.filtered(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, engine.Build(rows))
}

// per-country field-wise maxima
func (h *Handler) GetTotals(c echo.Context) error {
	rows, err := h.filtered(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, engine.MaxPerCountry(rows))
}

func (h *Handler) GetSnapshot(c echo.Context) error {
	rows, err := h.filtered(c)
	if err != nil {
		return err
	}
	snap := engine.LatestSnapshot(rows)
	resp := models.SnapshotResponse{Rows: snap, Breakdown: engine.SnapshotTotals(snap)}
	if len(snap) > 0 {
		d := snap[0].Date
		resp.Date = &d
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetVaccinations(c echo.Context) error {
	return c.JSON(http.StatusOK, engine.Vaccinations())
}

func (h *Handler) GetExport(c echo.Context) error {
	rows, err := h.filtered(c)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := engine.WriteArrow(&buf, rows); err != nil {
		return httpError(err)
	}
	return writeBlob(c, arrowStreamType, buf.Bytes())
}

func (h *Handler) GetChart(c echo.Context) error {
	name := c.Param("chart")
	switch name {
	case "confirmed", "daily", "totals", "breakdown":
	default:
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("unknown chart %q", name))
	}

	rows, err := h.filtered(c)
	if err != nil {
		return err
	}
	data := engine.Build(rows)

	var buf bytes.Buffer
	switch name {
	case "confirmed":
		err = render.ConfirmedLine(&buf, data.Confirmed)
	case "daily":
		err = render.DailyNewLine(&buf, data.DailyNew)
	case "totals":
		err = render.TotalsBar(&buf, data.Totals)
	case "breakdown":
		err = render.BreakdownPie(&buf, data.Breakdown)
	}
	if errors.Is(err, render.ErrNoData) {
		return c.NoContent(http.StatusNoContent)
	}
	if err != nil {
		return httpError(err)
	}
	return writeBlob(c, "image/png", buf.Bytes())
}

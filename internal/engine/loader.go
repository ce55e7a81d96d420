package engine

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"runtime"
	"strings"
	"time"

	"github.com/labstack/gommon/log"
	"golang.org/x/sync/errgroup"

	"covidboard/internal/models"
)

// minChunk keeps small files on a single worker.
const minChunk = 64 * 1024

var sep = []byte{','}

// --- 1. FAST PARSERS ---

// fastInt parses "123" -> 123. A leading '-' is accepted.
func fastInt(b []byte) (int64, error) {
	if len(b) == 0 {
		return 0, errors.New("empty number")
	}
	neg := b[0] == '-'
	if neg {
		b = b[1:]
		if len(b) == 0 {
			return 0, errors.New("bare sign")
		}
	}
	var n int64
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("unexpected %q in number", c)
		}
		d := int64(c - '0')
		if n > (math.MaxInt64-d)/10 {
			return 0, fmt.Errorf("number %q out of range", b)
		}
		n = n*10 + d
	}
	if neg {
		n = -n
	}
	return n, nil
}

// fastDate parses "2021-07-25" -> 20210725. A trailing time part
// ("2021-07-25T00:00:00", "2021-07-25 00:00:00") is ignored.
func fastDate(b []byte) (models.Day, error) {
	if len(b) > 10 && (b[10] == 'T' || b[10] == ' ') {
		b = b[:10]
	}
	if len(b) != 10 || b[4] != '-' || b[7] != '-' {
		return 0, fmt.Errorf("date %q is not YYYY-MM-DD", b)
	}
	var v int32
	for i, c := range b {
		if i == 4 || i == 7 {
			continue
		}
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("date %q is not YYYY-MM-DD", b)
		}
		v = v*10 + int32(c-'0')
	}
	d := models.Day(v)
	if d.Month() < 1 || d.Month() > 12 || d.Dom() < 1 || d.Dom() > daysIn(d.Year(), d.Month()) {
		return 0, fmt.Errorf("date %q out of range", b)
	}
	return d, nil
}

func daysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// splitFields splits one CSV line into dst. Quoted fields may contain commas
// and "" escapes.
func splitFields(line []byte, dst [][]byte) ([][]byte, error) {
	dst = dst[:0]
	for {
		if len(line) > 0 && line[0] == '"' {
			end, escaped := 1, false
			for {
				i := bytes.IndexByte(line[end:], '"')
				if i == -1 {
					return nil, errors.New("unterminated quoted field")
				}
				end += i
				if end+1 < len(line) && line[end+1] == '"' {
					escaped = true
					end += 2
					continue
				}
				break
			}
			field := line[1:end]
			if escaped {
				field = bytes.ReplaceAll(field, []byte(`""`), []byte(`"`))
			}
			dst = append(dst, field)
			rest := line[end+1:]
			if len(rest) == 0 {
				return dst, nil
			}
			if rest[0] != ',' {
				return nil, errors.New("text after closing quote")
			}
			line = rest[1:]
			continue
		}
		field, rest, found := bytes.Cut(line, sep)
		dst = append(dst, field)
		if !found {
			return dst, nil
		}
		line = rest
	}
}

// --- 2. HEADER ---

type columnMap struct {
	date, country, confirmed, recovered, deaths int
	width                                       int
}

func mapHeader(header []byte) (columnMap, error) {
	header = bytes.TrimPrefix(header, []byte("\xef\xbb\xbf"))
	header = bytes.TrimSuffix(header, []byte{'\r'})
	fields, err := splitFields(header, nil)
	if err != nil {
		return columnMap{}, fmt.Errorf("header: %w", err)
	}

	cm := columnMap{date: -1, country: -1, confirmed: -1, recovered: -1, deaths: -1}
	for i, f := range fields {
		switch strings.ToLower(strings.TrimSpace(string(f))) {
		case "date":
			cm.date = i
		case "country":
			cm.country = i
		case "confirmed":
			cm.confirmed = i
		case "recovered":
			cm.recovered = i
		case "deaths":
			cm.deaths = i
		}
	}
	for name, idx := range map[string]int{
		"Date": cm.date, "Country": cm.country, "Confirmed": cm.confirmed,
		"Recovered": cm.recovered, "Deaths": cm.deaths,
	} {
		if idx < 0 {
			return columnMap{}, fmt.Errorf("header: missing column %s", name)
		}
		if idx+1 > cm.width {
			cm.width = idx + 1
		}
	}
	return cm, nil
}

// --- 3. MAIN LOADER ---

// chunk is the output of one parse worker, with a worker-local country dictionary.
type chunk struct {
	dates     []models.Day
	confirmed []int64
	recovered []int64
	deaths    []int64
	ids       []int32
	dict      []string
	dictMap   map[string]int32
}

// alignChunk moves start and end forward to the next line boundary.
func alignChunk(content []byte, start, end int) (int, int) {
	if start > 0 {
		if i := bytes.IndexByte(content[start:], '\n'); i != -1 {
			start += i + 1
		} else {
			start = len(content)
		}
	}
	if end < len(content) {
		if i := bytes.IndexByte(content[end:], '\n'); i != -1 {
			end += i + 1
		} else {
			end = len(content)
		}
	}
	return start, end
}

func parseChunk(data []byte, cm columnMap) (*chunk, error) {
	ck := &chunk{dictMap: make(map[string]int32)}
	fields := make([][]byte, 0, cm.width)
	var err error

	for len(data) > 0 {
		var line []byte
		if i := bytes.IndexByte(data, '\n'); i != -1 {
			line, data = data[:i], data[i+1:]
		} else {
			line, data = data, nil
		}
		line = bytes.TrimSuffix(line, []byte{'\r'})
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		if fields, err = splitFields(line, fields); err != nil {
			return nil, fmt.Errorf("row %q: %w", line, err)
		}
		if len(fields) < cm.width {
			return nil, fmt.Errorf("row %q: want %d fields, got %d", line, cm.width, len(fields))
		}

		day, err := fastDate(fields[cm.date])
		if err != nil {
			return nil, fmt.Errorf("row %q: %w", line, err)
		}
		confirmed, err := fastInt(fields[cm.confirmed])
		if err != nil {
			return nil, fmt.Errorf("row %q: Confirmed: %w", line, err)
		}
		recovered, err := fastInt(fields[cm.recovered])
		if err != nil {
			return nil, fmt.Errorf("row %q: Recovered: %w", line, err)
		}
		deaths, err := fastInt(fields[cm.deaths])
		if err != nil {
			return nil, fmt.Errorf("row %q: Deaths: %w", line, err)
		}

		country := fields[cm.country]
		if len(country) == 0 {
			return nil, fmt.Errorf("row %q: empty Country", line)
		}
		id, ok := ck.dictMap[string(country)]
		if !ok {
			id = int32(len(ck.dict))
			str := string(country)
			ck.dict = append(ck.dict, str)
			ck.dictMap[str] = id
		}

		ck.dates = append(ck.dates, day)
		ck.confirmed = append(ck.confirmed, confirmed)
		ck.recovered = append(ck.recovered, recovered)
		ck.deaths = append(ck.deaths, deaths)
		ck.ids = append(ck.ids, id)
	}
	return ck, nil
}

// LoadColumnar parses a Date,Country,Confirmed,Recovered,Deaths CSV into a
// ColumnStore and derives Active. Row order follows the input. Any malformed
// row, missing column or duplicate (country, date) fails the whole load.
func LoadColumnar(content []byte) (*ColumnStore, error) {
	start := time.Now()

	// A. Header
	idx := bytes.IndexByte(content, '\n')
	if idx == -1 {
		idx = len(content)
	}
	cm, err := mapHeader(content[:idx])
	if err != nil {
		return nil, err
	}
	if idx < len(content) {
		content = content[idx+1:]
	} else {
		content = nil
	}

	// B. Parallel Parsing
	numWorkers := runtime.NumCPU()
	if n := len(content)/minChunk + 1; n < numWorkers {
		numWorkers = n
	}
	chunkSize := len(content) / numWorkers
	chunks := make([]*chunk, numWorkers)

	var g errgroup.Group
	for i := 0; i < numWorkers; i++ {
		i := i
		from, to := i*chunkSize, (i+1)*chunkSize
		if i == numWorkers-1 {
			to = len(content)
		}
		g.Go(func() error {
			s, e := alignChunk(content, from, to)
			if s >= e {
				chunks[i] = &chunk{}
				return nil
			}
			ck, err := parseChunk(content[s:e], cm)
			if err != nil {
				return err
			}
			chunks[i] = ck
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// C. Merge in chunk order
	total := 0
	for _, ck := range chunks {
		total += len(ck.dates)
	}
	store := &ColumnStore{
		Dates:      make([]models.Day, 0, total),
		Confirmed:  make([]int64, 0, total),
		Recovered:  make([]int64, 0, total),
		Deaths:     make([]int64, 0, total),
		Active:     make([]int64, 0, total),
		CountryIDs: make([]int32, 0, total),
	}
	gMap := make(map[string]int32)
	seen := make(map[uint64]struct{}, total)

	for _, ck := range chunks {
		remap := make([]int32, len(ck.dict))
		for lid, s := range ck.dict {
			gid, ok := gMap[s]
			if !ok {
				gid = int32(len(store.CountryDict))
				store.CountryDict = append(store.CountryDict, s)
				gMap[s] = gid
			}
			remap[lid] = gid
		}
		for k := range ck.dates {
			gid := remap[ck.ids[k]]
			key := uint64(uint32(gid))<<32 | uint64(uint32(ck.dates[k]))
			if _, dup := seen[key]; dup {
				return nil, fmt.Errorf("duplicate row for %s on %s", store.CountryDict[gid], ck.dates[k])
			}
			seen[key] = struct{}{}

			store.Dates = append(store.Dates, ck.dates[k])
			store.Confirmed = append(store.Confirmed, ck.confirmed[k])
			store.Recovered = append(store.Recovered, ck.recovered[k])
			store.Deaths = append(store.Deaths, ck.deaths[k])
			store.Active = append(store.Active, ck.confirmed[k]-ck.recovered[k]-ck.deaths[k])
			store.CountryIDs = append(store.CountryIDs, gid)
		}
	}

	log.Printf("Load Complete. Rows: %d. Countries: %d. Time: %v", store.Len(), len(store.CountryDict), time.Since(start))
	return store, nil
}

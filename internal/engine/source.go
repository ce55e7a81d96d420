package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/labstack/gommon/log"
)

// DefaultDatasetURL is the Johns Hopkins derived, country-aggregated table.
const DefaultDatasetURL = "https://raw.githubusercontent.com/datasets/covid-19/main/data/countries-aggregated.csv"

// Source fetches the raw CSV bytes of the dataset.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
	String() string
}

// HTTPSource downloads the dataset with a GET request.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

func (s *HTTPSource) String() string { return s.URL }

func (s *HTTPSource) Fetch(ctx context.Context) ([]byte, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// FileSource reads the dataset from a local file.
type FileSource struct {
	Path string
}

func (s *FileSource) String() string { return s.Path }

func (s *FileSource) Fetch(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(s.Path)
}

// Load fetches and parses the dataset. Every failure is a *FetchError.
func Load(ctx context.Context, src Source) (*ColumnStore, error) {
	t0 := time.Now()
	log.Infof("loading dataset from %s", src)

	content, err := src.Fetch(ctx)
	if err != nil {
		return nil, &FetchError{Source: src.String(), Err: err}
	}
	log.Debugf("fetched %d bytes from %s in %v", len(content), src, time.Since(t0))

	store, err := LoadColumnar(content)
	if err != nil {
		return nil, &FetchError{Source: src.String(), Err: err}
	}
	return store, nil
}

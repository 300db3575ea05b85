package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// PageSize is the largest row page the datasets server returns
const PageSize = 100

// Record is one dataset row, e.g. {"instruction": ..., "input": ..., "output": ...}
type Record map[string]any

// Split is a loaded, possibly sliced, dataset split
type Split struct {
	Name string
	Rows []Record
}

// Len returns the number of rows in the split
func (s *Split) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Rows)
}

// DatasetDict maps split names to loaded splits
type DatasetDict map[string]*Split

// WriteJSONL writes one <split>.jsonl file per split into dir and returns
// the file paths keyed by split name
func (d DatasetDict) WriteJSONL(dir string) (map[string]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create dataset dir %s: %w", dir, err)
	}

	paths := make(map[string]string, len(d))
	for name, split := range d {
		path := filepath.Join(dir, name+".jsonl")
		if err := writeSplit(path, split); err != nil {
			return nil, err
		}
		paths[name] = path
	}
	return paths, nil
}

func writeSplit(path string, split *Split) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, row := range split.Rows {
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return f.Close()
}

// Hub loads dataset splits from a Hugging Face datasets-server endpoint
type Hub struct {
	client *resty.Client
}

// NewHub creates a hub client; token may be empty for public datasets
func NewHub(baseURL, token string) *Hub {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(60*time.Second).
		SetHeader("Accept", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}
	return &Hub{client: client}
}

type sizeResponse struct {
	Size struct {
		Splits []struct {
			Dataset string `json:"dataset"`
			Config  string `json:"config"`
			Split   string `json:"split"`
			NumRows int    `json:"num_rows"`
		} `json:"splits"`
	} `json:"size"`
}

type rowsResponse struct {
	Rows []struct {
		RowIdx int    `json:"row_idx"`
		Row    Record `json:"row"`
	} `json:"rows"`
	NumRowsTotal int `json:"num_rows_total"`
}

// NumRows returns the row count of a split
func (h *Hub) NumRows(ctx context.Context, dataset, config, split string) (int, error) {
	var out sizeResponse
	res, err := h.client.R().
		// The datasets server does not always label its JSON
		ForceContentType("application/json").
		SetContext(ctx).
		SetQueryParams(map[string]string{"dataset": dataset, "config": config}).
		SetResult(&out).
		Get("/size")
	if err != nil {
		return 0, fmt.Errorf("failed to fetch size of %s: %w", dataset, err)
	}
	if res.IsError() {
		return 0, fmt.Errorf("failed to fetch size of %s: status %d: %s", dataset, res.StatusCode(), res.String())
	}

	for _, s := range out.Size.Splits {
		if s.Split == split && (s.Config == "" || s.Config == config) {
			return s.NumRows, nil
		}
	}
	return 0, fmt.Errorf("split %q not found in dataset %s (config %s)", split, dataset, config)
}

// Rows fetches rows [offset, offset+length) of a split, paging as needed
func (h *Hub) Rows(ctx context.Context, dataset, config, split string, offset, length int) ([]Record, error) {
	rows := make([]Record, 0, length)
	for length > 0 {
		page := min(length, PageSize)

		var out rowsResponse
		res, err := h.client.R().
			// The datasets server does not always label its JSON
			ForceContentType("application/json").
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"dataset": dataset,
				"config":  config,
				"split":   split,
				"offset":  strconv.Itoa(offset),
				"length":  strconv.Itoa(page),
			}).
			SetResult(&out).
			Get("/rows")
		if err != nil {
			return nil, fmt.Errorf("failed to fetch rows %d-%d of %s: %w", offset, offset+page, dataset, err)
		}
		if res.IsError() {
			return nil, fmt.Errorf("failed to fetch rows %d-%d of %s: status %d: %s", offset, offset+page, dataset, res.StatusCode(), res.String())
		}
		if len(out.Rows) == 0 {
			return nil, fmt.Errorf("datasets server returned no rows at offset %d of %s", offset, dataset)
		}

		for _, r := range out.Rows {
			rows = append(rows, r.Row)
		}
		offset += len(out.Rows)
		length -= len(out.Rows)
	}
	return rows, nil
}

// Load fetches the rows selected by a split expression such as "train[:20%]"
func (h *Hub) Load(ctx context.Context, dataset, config, splitExpr string) (*Split, error) {
	spec, err := ParseSplit(splitExpr)
	if err != nil {
		return nil, err
	}

	numRows, err := h.NumRows(ctx, dataset, config, spec.Name)
	if err != nil {
		return nil, err
	}

	start, end := spec.Bounds(numRows)
	slog.Info("loading dataset split", "dataset", dataset, "split", splitExpr, "rows", end-start, "total_rows", numRows)

	rows, err := h.Rows(ctx, dataset, config, spec.Name, start, end-start)
	if err != nil {
		return nil, err
	}

	return &Split{Name: spec.Name, Rows: rows}, nil
}

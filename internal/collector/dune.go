package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"SupplySentinel/internal/fetcher"
	"SupplySentinel/internal/model"
	"SupplySentinel/internal/poller"
)

// DefaultDuneURL is the Dune API v1 root.
const DefaultDuneURL = "https://api.dune.com/api/v1"

// DefaultEmissionsQuery is the Dune query producing daily BGT emissions.
const DefaultEmissionsQuery = "4740951"

// Dune implements poller.Backend against the Dune execution API.
type Dune struct {
	BaseURL string
	APIKey  string
	HTTP    *fetcher.Fetcher
}

var _ poller.Backend = (*Dune)(nil)

// NewDune creates a Dune client. An empty baseURL uses the public API.
func NewDune(baseURL, apiKey string, f *fetcher.Fetcher) *Dune {
	if baseURL == "" {
		baseURL = DefaultDuneURL
	}
	return &Dune{BaseURL: strings.TrimRight(baseURL, "/"), APIKey: apiKey, HTTP: f}
}

func (d *Dune) Name() string { return "dune" }

func (d *Dune) header() http.Header {
	h := http.Header{}
	if d.APIKey != "" {
		h.Set("x-dune-api-key", d.APIKey)
	}
	return h
}

type duneExecution struct {
	ExecutionID      string          `json:"execution_id"`
	State            string          `json:"state"`
	ExecutionEndedAt *time.Time      `json:"execution_ended_at"`
	Error            json.RawMessage `json:"error"`
	Result           *struct {
		Rows []model.EmissionRecord `json:"rows"`
	} `json:"result"`
}

// DuneState maps a Dune QUERY_STATE_* value to a job state.
func DuneState(s string) model.JobState {
	switch strings.ToUpper(strings.TrimPrefix(s, "QUERY_STATE_")) {
	case "COMPLETED", "COMPLETED_PARTIAL":
		return model.JobCompleted
	case "FAILED", "CANCELLED", "CANCELED", "EXPIRED":
		return model.JobFailed
	case "EXECUTING":
		return model.JobExecuting
	default:
		return model.JobPending
	}
}

// Execute triggers a new run of queryID.
func (d *Dune) Execute(ctx context.Context, queryID string) (string, error) {
	endpoint := fmt.Sprintf("%s/query/%s/execute", d.BaseURL, url.PathEscape(queryID))
	var resp duneExecution
	if err := d.HTTP.PostJSON(ctx, endpoint, d.header(), nil, &resp); err != nil {
		return "", err
	}
	return resp.ExecutionID, nil
}

// Status reads the state of an execution.
func (d *Dune) Status(ctx context.Context, executionID string) (poller.Status, error) {
	endpoint := fmt.Sprintf("%s/execution/%s/status", d.BaseURL, url.PathEscape(executionID))
	var resp duneExecution
	if err := d.HTTP.GetJSON(ctx, endpoint, d.header(), &resp); err != nil {
		return poller.Status{}, err
	}
	st := poller.Status{State: DuneState(resp.State)}
	if st.State == model.JobFailed {
		st.Diagnostics = resp.State
		if len(resp.Error) > 0 && string(resp.Error) != "null" {
			st.Diagnostics = resp.State + ": " + string(resp.Error)
		}
	}
	return st, nil
}

// Results reads the rows of a completed execution.
func (d *Dune) Results(ctx context.Context, executionID string) (poller.ResultSet, error) {
	endpoint := fmt.Sprintf("%s/execution/%s/results", d.BaseURL, url.PathEscape(executionID))
	return d.results(ctx, endpoint)
}

// LatestResults reads the rows of the last execution Dune stored for queryID.
func (d *Dune) LatestResults(ctx context.Context, queryID string) (poller.ResultSet, error) {
	endpoint := fmt.Sprintf("%s/query/%s/results", d.BaseURL, url.PathEscape(queryID))
	return d.results(ctx, endpoint)
}

func (d *Dune) results(ctx context.Context, endpoint string) (poller.ResultSet, error) {
	var resp duneExecution
	if err := d.HTTP.GetJSON(ctx, endpoint, d.header(), &resp); err != nil {
		return poller.ResultSet{}, err
	}
	if resp.Result == nil {
		return poller.ResultSet{}, fmt.Errorf("dune results: %w: result missing", fetcher.ErrMalformedPayload)
	}
	rs := poller.ResultSet{ExecutionID: resp.ExecutionID, Rows: resp.Result.Rows}
	if resp.ExecutionEndedAt != nil {
		rs.ExecutionEndedAt = resp.ExecutionEndedAt.UTC()
	}
	return rs, nil
}

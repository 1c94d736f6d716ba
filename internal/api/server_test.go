package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/tessera-lab/tessera/internal/control"
	"github.com/tessera-lab/tessera/internal/datasource"
	"github.com/tessera-lab/tessera/internal/engine"
	"github.com/tessera-lab/tessera/internal/indicator"
	"github.com/tessera-lab/tessera/internal/logger"
	"github.com/tessera-lab/tessera/internal/store"
	"github.com/tessera-lab/tessera/internal/types"
)

// syntheticSource fabricates minute bars for any requested range.
type syntheticSource struct{}

func (syntheticSource) Fetch(_ context.Context, _ types.SymbolTags, q datasource.Query) ([]types.Bar, error) {
	bars := make([]types.Bar, q.Limit)

	for i := range bars {
		ts := q.Since.Add(time.Duration(i) * time.Minute)
		price := 100 + float64(ts.Minute())
		bars[i] = types.Bar{Time: ts, Open: price, High: price + 1, Low: price - 1, Close: price, Volume: 1}
	}

	return bars, nil
}

func (syntheticSource) Close() error { return nil }

type nopStore struct{}

func (nopStore) WriteBatch(context.Context, []store.Point) error        { return nil }
func (nopStore) DropSeries(context.Context, string) error               { return nil }
func (nopStore) UpsertRunRecord(context.Context, store.RunRecord) error { return nil }
func (nopStore) DeleteRunRecord(context.Context, string) error          { return nil }
func (nopStore) ListRunRecords(context.Context) ([]store.RunRecord, error) {
	return nil, nil
}
func (nopStore) Close() error { return nil }

type APITestSuite struct {
	suite.Suite

	server *httptest.Server
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}

func (s *APITestSuite) SetupTest() {
	log := logger.NewNopLogger()

	builder := control.NewRunBuilder(
		indicator.DefaultRegistry(),
		engine.DefaultStrategyRegistry(),
		syntheticSource{},
		nopStore{},
		log,
	)

	pool := control.NewPool(2, builder, nopStore{}, log)
	s.server = httptest.NewServer(NewServer(pool, log).Router())
}

func (s *APITestSuite) TearDownTest() {
	s.server.Close()
}

func (s *APITestSuite) request(method, path string, body any) (*http.Response, map[string]any) {
	var reader *bytes.Reader

	if body != nil {
		encoded, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, s.server.URL+path, reader)
	s.Require().NoError(err)

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	decoded := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&decoded)

	return resp, decoded
}

func (s *APITestSuite) createBody(id string, start bool) map[string]any {
	return map[string]any{
		"id":    id,
		"start": start,
		"config": map[string]any{
			"strategy":        "hold",
			"symbols":         []string{"binance:btc:usdt"},
			"initial_capital": 1000,
			"warmup":          10,
			"batch_size":      10,
			"backtest": map[string]any{
				"start": "2024-03-01T00:00:00Z",
				"stop":  "2024-03-01T00:10:00Z",
			},
		},
	}
}

func (s *APITestSuite) TestCreateAndInspectRun() {
	resp, body := s.request("POST", "/runs", s.createBody("run-a", true))
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	s.Equal("run-a", body["id"])

	resp, body = s.request("GET", "/runs", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Contains(fmt.Sprint(body["runs"]), "run-a")

	// A short backtest settles quickly; then metrics become readable.
	s.Require().Eventually(func() bool {
		_, body := s.request("GET", "/runs/run-a", nil)

		return body["state"] == "STOP"
	}, 5*time.Second, 10*time.Millisecond)

	resp, body = s.request("GET", "/runs/run-a/metrics", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	metrics, ok := body["data"].(map[string]any)
	s.Require().True(ok)
	s.Equal(1000.0, metrics["cash"])

	resp, _ = s.request("DELETE", "/runs/run-a", nil)
	s.Equal(http.StatusNoContent, resp.StatusCode)

	resp, _ = s.request("GET", "/runs/run-a", nil)
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *APITestSuite) TestCreateWithoutConfig() {
	resp, body := s.request("POST", "/runs", map[string]any{"id": "run-a"})
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	s.NotNil(body["error"])
}

func (s *APITestSuite) TestCreateWithUnknownStrategy() {
	payload := s.createBody("run-a", true)
	payload["config"].(map[string]any)["strategy"] = "front-run"

	resp, body := s.request("POST", "/runs", payload)
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	s.NotNil(body["error"])

	// The failed run does not linger in the pool.
	_, listBody := s.request("GET", "/runs", nil)
	s.NotContains(fmt.Sprint(listBody["runs"]), "run-a")
}

func (s *APITestSuite) TestDuplicateRunConflicts() {
	resp, _ := s.request("POST", "/runs", s.createBody("run-a", false))
	s.Require().Equal(http.StatusCreated, resp.StatusCode)

	resp, _ = s.request("POST", "/runs", s.createBody("run-a", false))
	s.Equal(http.StatusConflict, resp.StatusCode)
}

func (s *APITestSuite) TestStopUnknownRun() {
	resp, _ := s.request("POST", "/runs/ghost/stop", nil)
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

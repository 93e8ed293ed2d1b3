package api

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/perceptual/internal/nlpd"
	"github.com/samcharles93/perceptual/internal/pim"
	"github.com/samcharles93/perceptual/internal/safetensors"
	"github.com/samcharles93/perceptual/internal/tensor"
)

type errProvider struct {
	err error
}

func (p errProvider) Model(ctx context.Context, name string) (*pim.Model, error) {
	return nil, p.err
}

func (p errProvider) List() ([]pim.CachedModel, error) {
	return nil, p.err
}

func newTestEcho(models ModelProvider) *echo.Echo {
	server := NewServer(nlpd.Config{}, models, nil)
	e := echo.New()
	server.Register(e)
	return e
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ResponseError {
	t.Helper()
	var env struct {
		Error ResponseError `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error envelope: %v body=%s", err, rec.Body.String())
	}
	return env.Error
}

func TestHealth(t *testing.T) {
	t.Parallel()

	rec := doJSON(t, newTestEcho(nil), http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestSubbandsChannelsFirst(t *testing.T) {
	t.Parallel()

	e := newTestEcho(nil)
	rec := doJSON(t, e, http.MethodPost, "/v1/subbands", `{"shape":[32,16],"data_format":"channels_first"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	var resp SubbandsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(resp.ID, "sb_") {
		t.Fatalf("id: got %q", resp.ID)
	}
	if resp.NumLevels != nlpd.DefaultNumLevels || resp.DataFormat != "channels_first" {
		t.Fatalf("config echo: %+v", resp)
	}
	want := [][]int{{32, 16}, {16, 8}, {8, 4}, {4, 2}, {2, 1}, {1, 0}}
	if len(resp.Shapes) != len(want) {
		t.Fatalf("levels: got %d want %d", len(resp.Shapes), len(want))
	}
	for i := range want {
		if fmt.Sprint(resp.Shapes[i]) != fmt.Sprint(want[i]) {
			t.Fatalf("level %d: got %v want %v", i, resp.Shapes[i], want[i])
		}
	}
}

func TestSubbandsOverridesNumLevels(t *testing.T) {
	t.Parallel()

	rec := doJSON(t, newTestEcho(nil), http.MethodPost, "/v1/subbands", `{"shape":[1,16,16,2],"num_levels":3}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	var resp SubbandsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Shapes) != 3 {
		t.Fatalf("levels: got %d", len(resp.Shapes))
	}
	if fmt.Sprint(resp.Shapes[2]) != "[1 4 4 2]" {
		t.Fatalf("last level: got %v", resp.Shapes[2])
	}
}

func TestSubbandsErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		body  string
		code  string
		param string
	}{
		{name: "rank one", body: `{"shape":[16],"data_format":"channels_first"}`, code: "invalid_shape"},
		{name: "channels last rank two", body: `{"shape":[16,16]}`, code: "invalid_shape"},
		{name: "missing shape", body: `{}`, param: "shape"},
		{name: "zero levels", body: `{"shape":[8,8],"num_levels":0}`, param: "num_levels"},
		{name: "negative levels", body: `{"shape":[8,8],"num_levels":-1}`, code: "invalid_config"},
		{name: "negative gamma", body: `{"shape":[8,8],"gamma":-1}`, code: "invalid_config"},
		{name: "bad format", body: `{"shape":[8,8],"data_format":"nhwc"}`, code: "invalid_config"},
		{name: "unknown field", body: `{"shape":[8,8],"levels":2}`},
		{name: "malformed", body: `{"shape":`},
	}
	e := newTestEcho(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, e, http.MethodPost, "/v1/subbands", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
			}
			got := decodeError(t, rec)
			if got.Type != "invalid_request_error" {
				t.Fatalf("type: got %q", got.Type)
			}
			if got.Code != tt.code {
				t.Fatalf("code: got %q want %q", got.Code, tt.code)
			}
			if got.Param != tt.param {
				t.Fatalf("param: got %q want %q", got.Param, tt.param)
			}
		})
	}
}

func imageJSON(shape []int, fill func(i int) float32) string {
	n := 1
	for _, d := range shape {
		n *= d
	}
	data := make([]float32, n)
	for i := range data {
		data[i] = fill(i)
	}
	b, _ := json.Marshal(Image{Shape: shape, Data: data})
	return string(b)
}

func TestDistance(t *testing.T) {
	t.Parallel()

	e := newTestEcho(nil)
	shape := []int{1, 8, 8, 1}
	a := imageJSON(shape, func(i int) float32 { return float32(i%8) / 8 })
	b := imageJSON(shape, func(i int) float32 { return float32(i/8) / 8 })

	same := doJSON(t, e, http.MethodPost, "/v1/nlpd", fmt.Sprintf(`{"num_levels":3,"a":%s,"b":%s}`, a, a))
	if same.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", same.Code, same.Body.String())
	}
	var resp DistanceResponse
	if err := json.Unmarshal(same.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Distance != 0 {
		t.Fatalf("identical images: got distance %v", resp.Distance)
	}
	if resp.Metric != "nlpd" || !strings.HasPrefix(resp.ID, "nlpd_") {
		t.Fatalf("unexpected response: %+v", resp)
	}

	diff := doJSON(t, e, http.MethodPost, "/v1/nlpd", fmt.Sprintf(`{"num_levels":3,"a":%s,"b":%s}`, a, b))
	if diff.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", diff.Code, diff.Body.String())
	}
	if err := json.Unmarshal(diff.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Distance <= 0 {
		t.Fatalf("different images: got distance %v", resp.Distance)
	}
}

func TestDistanceErrors(t *testing.T) {
	t.Parallel()

	e := newTestEcho(nil)
	a := imageJSON([]int{1, 8, 8, 1}, func(int) float32 { return 0.5 })
	b := imageJSON([]int{1, 4, 4, 1}, func(int) float32 { return 0.5 })

	rec := doJSON(t, e, http.MethodPost, "/v1/nlpd", fmt.Sprintf(`{"a":%s,"b":%s}`, a, b))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("mismatch status: got %d", rec.Code)
	}
	if got := decodeError(t, rec); got.Code != "invalid_shape" {
		t.Fatalf("mismatch code: got %q", got.Code)
	}

	rec = doJSON(t, e, http.MethodPost, "/v1/nlpd", fmt.Sprintf(`{"a":{"shape":[1,8,8,1],"data":[1,2]},"b":%s}`, a))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("short data status: got %d", rec.Code)
	}
	if got := decodeError(t, rec); got.Param != "a" {
		t.Fatalf("short data param: got %q", got.Param)
	}
}

func TestListModels(t *testing.T) {
	t.Parallel()

	cache := t.TempDir()
	dir := filepath.Join(cache, "pim-1")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}

	provider := NewCachedModelProvider(pim.NewLoader(pim.WithURLPrefix(pim.TestURLPrefix)), cache)
	rec := doJSON(t, newTestEcho(provider), http.MethodGet, "/v1/models", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	var list ModelList
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Data) != 1 || list.Data[0].Name != "pim-1" {
		t.Fatalf("unexpected models: %+v", list.Data)
	}
}

func TestListModelsWithoutProvider(t *testing.T) {
	t.Parallel()

	rec := doJSON(t, newTestEcho(nil), http.MethodGet, "/v1/models", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"data":[]`) {
		t.Fatalf("expected empty data array: %s", rec.Body.String())
	}
}

func TestGetModelTestMode(t *testing.T) {
	t.Parallel()

	provider := NewCachedModelProvider(pim.NewLoader(pim.WithURLPrefix(pim.TestURLPrefix)), t.TempDir())
	e := newTestEcho(provider)
	rec := doJSON(t, e, http.MethodGet, "/v1/models/pim-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	var info ModelInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.ID != "pim-1" || info.Object != "model" {
		t.Fatalf("unexpected info: %+v", info)
	}
	if info.Params.NumScales != pim.DefaultParams().NumScales {
		t.Fatalf("params: got %+v", info.Params)
	}
	if info.NumParameters != 0 {
		t.Fatalf("untrained model has %d parameters", info.NumParameters)
	}

	// Second lookup is served from memory.
	first, err := provider.Model(context.Background(), "pim-1")
	if err != nil {
		t.Fatalf("model: %v", err)
	}
	second, err := provider.Model(context.Background(), "pim-1")
	if err != nil {
		t.Fatalf("model: %v", err)
	}
	if first != second {
		t.Fatal("expected memoized model")
	}
}

func TestGetModelErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		provider ModelProvider
		status   int
	}{
		{name: "no provider", provider: nil, status: http.StatusNotFound},
		{name: "download", provider: errProvider{err: fmt.Errorf("%w: status 404", pim.ErrDownload)}, status: http.StatusBadGateway},
		{name: "unknown", provider: errProvider{err: fmt.Errorf("%w: %w: x", pim.ErrDownload, pim.ErrNotFound)}, status: http.StatusNotFound},
		{name: "config", provider: errProvider{err: pim.ErrConfig}, status: http.StatusUnprocessableEntity},
		{name: "archive", provider: errProvider{err: pim.ErrArchive}, status: http.StatusUnprocessableEntity},
		{name: "name", provider: errProvider{err: pim.ErrInvalidName}, status: http.StatusBadRequest},
		{name: "other", provider: errProvider{err: fmt.Errorf("disk on fire")}, status: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, newTestEcho(tt.provider), http.MethodGet, "/v1/models/pim-1", "")
			if rec.Code != tt.status {
				t.Fatalf("status: got %d want %d body=%s", rec.Code, tt.status, rec.Body.String())
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	e := echo.New()
	e.Use(RateLimit(0.001, 1))
	NewServer(nlpd.Config{}, nil, nil).Register(e)

	if rec := doJSON(t, e, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("first request: got %d", rec.Code)
	}
	rec := doJSON(t, e, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: got %d", rec.Code)
	}
	if got := decodeError(t, rec); got.Type != "rate_limit_error" {
		t.Fatalf("type: got %q", got.Type)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	t.Parallel()

	e := echo.New()
	e.Use(RateLimit(0, 0))
	NewServer(nlpd.Config{}, nil, nil).Register(e)
	for i := range 5 {
		if rec := doJSON(t, e, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d: got %d", i, rec.Code)
		}
	}
}

func modelZip(t *testing.T, name string) []byte {
	t.Helper()
	weights := filepath.Join(t.TempDir(), "weights")
	if err := safetensors.Write(weights, map[string]tensor.Tensor{"w": tensor.MustZeros(2)}, nil); err != nil {
		t.Fatalf("write weights: %v", err)
	}
	weightBytes, err := os.ReadFile(weights)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for entry, data := range map[string][]byte{
		name + "/config.json": []byte(`{}`),
		name + "/weights":     weightBytes,
	} {
		w, err := zw.Create(entry)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestModelLoadOutlivesCanceledRequest(t *testing.T) {
	t.Parallel()

	archive := modelZip(t, "pim-1")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pim-1.zip" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(archive)
	}))
	t.Cleanup(srv.Close)

	loader := pim.NewLoader(pim.WithURLPrefix(srv.URL), pim.WithHTTPClient(srv.Client()))
	provider := NewCachedModelProvider(loader, t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	model, err := provider.Model(ctx, "pim-1")
	if err != nil {
		t.Fatalf("load with canceled request context: %v", err)
	}
	if model.NumParameters() != 2 {
		t.Fatalf("parameters: got %d", model.NumParameters())
	}
}

package api

import (
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/timguo/taichi/internal/engine"
)

func newTestEcho(t *testing.T) (*echo.Echo, *CheckStore) {
	t.Helper()
	eng, err := engine.New(engine.Config{Arch: "parallel", Workers: 2}, nil)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(func() { _ = eng.Close() })
	store := NewCheckStore(2)
	e := echo.New()
	NewServer(store, eng, nil).Register(e)
	return e, store
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

type errorEnvelope struct {
	Error ErrorBody `json:"error"`
}

func TestHealthAndArchs(t *testing.T) {
	t.Parallel()

	e, _ := newTestEcho(t)
	rec := doJSON(t, e, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
	health := decodeBody[healthResponse](t, rec)
	if health.Status != "ok" || health.Version.Version == "" {
		t.Fatalf("health = %+v", health)
	}

	rec = doJSON(t, e, http.MethodGet, "/v1/archs", "")
	archs := decodeBody[archsResponse](t, rec)
	if archs.Active != "parallel" || archs.Lanes != 2 || archs.DefaultFloat != "f32" {
		t.Fatalf("archs = %+v", archs)
	}
	if len(archs.Available) != 2 || len(archs.Features) == 0 {
		t.Fatalf("archs = %+v", archs)
	}
}

func TestCheckRunLifecycle(t *testing.T) {
	t.Parallel()

	e, _ := newTestEcho(t)
	rec := doJSON(t, e, http.MethodPost, "/v1/checks", `{"arch":"all","scenarios":["transpose","inverse-3"],"default_float":"f64"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("create status = %d body = %s", rec.Code, rec.Body.String())
	}
	run := decodeBody[CheckRun](t, rec)
	if !strings.HasPrefix(run.ID, "chk_") || run.Object != "check.run" {
		t.Fatalf("run = %+v", run)
	}
	if !run.Passed || len(run.Results) != 4 || run.DefaultFloat != "f64" {
		t.Fatalf("run = %+v", run)
	}
	if run.Results[0].Arch != "cpu" || run.Results[3].Arch != "parallel" {
		t.Fatalf("result archs = %s, %s", run.Results[0].Arch, run.Results[3].Arch)
	}

	rec = doJSON(t, e, http.MethodGet, "/v1/checks/"+run.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	if got := decodeBody[CheckRun](t, rec); got.ID != run.ID || len(got.Results) != 4 {
		t.Fatalf("get = %+v", got)
	}

	rec = doJSON(t, e, http.MethodDelete, "/v1/checks/"+run.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = doJSON(t, e, http.MethodGet, "/v1/checks/"+run.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", rec.Code)
	}
}

func TestCheckRunDefaultsToActiveArch(t *testing.T) {
	t.Parallel()

	e, _ := newTestEcho(t)
	rec := doJSON(t, e, http.MethodPost, "/v1/checks", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	run := decodeBody[CheckRun](t, rec)
	if len(run.Archs) != 1 || run.Archs[0] != "parallel" {
		t.Fatalf("archs = %v", run.Archs)
	}
	if !run.Passed {
		for _, r := range run.Results {
			if !r.Passed {
				t.Fatalf("%s failed: %s", r.Name, r.Message)
			}
		}
	}
}

func TestCheckRunValidation(t *testing.T) {
	t.Parallel()

	e, _ := newTestEcho(t)
	cases := []struct {
		name, body, param string
	}{
		{"arch", `{"arch":"tpu"}`, "arch"},
		{"scenario", `{"scenarios":["nope"]}`, "scenarios"},
		{"dtype", `{"default_float":"f16"}`, ""},
		{"unknown field", `{"archs":"cpu"}`, ""},
	}
	for _, tc := range cases {
		rec := doJSON(t, e, http.MethodPost, "/v1/checks", tc.body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d", tc.name, rec.Code)
		}
		body := decodeBody[errorEnvelope](t, rec)
		if body.Error.Type != "invalid_request_error" || body.Error.Param != tc.param {
			t.Fatalf("%s: error = %+v", tc.name, body.Error)
		}
	}
}

func TestCheckStoreEvictsOldest(t *testing.T) {
	t.Parallel()

	e, store := newTestEcho(t)
	var ids []string
	for range 3 {
		rec := doJSON(t, e, http.MethodPost, "/v1/checks", `{"arch":"cpu","scenarios":["any-all"]}`)
		ids = append(ids, decodeBody[CheckRun](t, rec).ID)
	}
	if _, ok := store.Get(ids[0]); ok {
		t.Fatalf("oldest run %s still stored", ids[0])
	}
	list := decodeBody[listResponse[CheckRun]](t, doJSON(t, e, http.MethodGet, "/v1/checks", ""))
	if len(list.Data) != 2 || list.Data[0].ID != ids[2] || list.Data[1].ID != ids[1] {
		t.Fatalf("list = %+v", list)
	}
}

func TestLinalgOperations(t *testing.T) {
	t.Parallel()

	e, _ := newTestEcho(t)

	rec := doJSON(t, e, http.MethodPost, "/v1/linalg/transpose", `{"dtype":"i32","matrix":[[1,2,3],[4,5,6]]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("transpose status = %d body = %s", rec.Code, rec.Body.String())
	}
	tr := decodeBody[LinalgResponse](t, rec)
	want := [][]float64{{1, 4}, {2, 5}, {3, 6}}
	for i := range want {
		for j := range want[i] {
			if tr.Outputs["result"][i][j] != want[i][j] {
				t.Fatalf("transpose = %v", tr.Outputs["result"])
			}
		}
	}

	rec = doJSON(t, e, http.MethodPost, "/v1/linalg/inverse", `{"dtype":"f64","matrix":[[4,7],[2,6]]}`)
	inv := decodeBody[LinalgResponse](t, rec).Outputs["result"]
	wantInv := [][]float64{{0.6, -0.7}, {-0.2, 0.4}}
	for i := range wantInv {
		for j := range wantInv[i] {
			if math.Abs(inv[i][j]-wantInv[i][j]) > 1e-12 {
				t.Fatalf("inverse = %v", inv)
			}
		}
	}

	rec = doJSON(t, e, http.MethodPost, "/v1/linalg/polar", `{"dtype":"f64","matrix":[[2,1],[-1,3]]}`)
	polar := decodeBody[LinalgResponse](t, rec)
	r, s := polar.Outputs["r"], polar.Outputs["s"]
	m := [][]float64{{2, 1}, {-1, 3}}
	for i := range 2 {
		for j := range 2 {
			got := r[i][0]*s[0][j] + r[i][1]*s[1][j]
			if math.Abs(got-m[i][j]) > 1e-9 {
				t.Fatalf("R*S = %v %v", r, s)
			}
		}
	}
	if math.Abs(s[0][1]-s[1][0]) > 1e-9 {
		t.Fatalf("S not symmetric: %v", s)
	}

	for op, want := range map[string]float64{"any": 1, "all": 0} {
		rec = doJSON(t, e, http.MethodPost, "/v1/linalg/"+op, `{"matrix":[[0,2],[0,0]]}`)
		resp := decodeBody[LinalgResponse](t, rec)
		if resp.DType != "f32" || resp.Outputs["result"][0][0] != want {
			t.Fatalf("%s = %+v", op, resp)
		}
	}
}

func TestLinalgErrors(t *testing.T) {
	t.Parallel()

	e, _ := newTestEcho(t)
	cases := []struct {
		name, path, body string
		status           int
		errType          string
	}{
		{"unknown op", "/v1/linalg/svd", `{"matrix":[[1]]}`, http.StatusNotFound, "not_found_error"},
		{"empty", "/v1/linalg/transpose", `{}`, http.StatusBadRequest, "invalid_request_error"},
		{"too large", "/v1/linalg/transpose", `{"matrix":[[1,2,3,4,5]]}`, http.StatusBadRequest, "invalid_request_error"},
		{"ragged", "/v1/linalg/transpose", `{"matrix":[[1,2],[3]]}`, http.StatusBadRequest, "invalid_request_error"},
		{"bad dtype", "/v1/linalg/transpose", `{"dtype":"u8","matrix":[[1]]}`, http.StatusBadRequest, "invalid_request_error"},
		{"int inverse", "/v1/linalg/inverse", `{"dtype":"i32","matrix":[[1,0],[0,1]]}`, http.StatusBadRequest, "invalid_request_error"},
		{"non-square polar", "/v1/linalg/polar", `{"matrix":[[1,2]]}`, http.StatusBadRequest, "invalid_request_error"},
		{"singular", "/v1/linalg/inverse", `{"dtype":"f64","matrix":[[1,2],[2,4]]}`, http.StatusUnprocessableEntity, "numeric_error"},
		{"malformed", "/v1/linalg/inverse", `{"matrix":`, http.StatusBadRequest, "invalid_request_error"},
	}
	for _, tc := range cases {
		rec := doJSON(t, e, http.MethodPost, tc.path, tc.body)
		if rec.Code != tc.status {
			t.Fatalf("%s: status = %d body = %s", tc.name, rec.Code, rec.Body.String())
		}
		if body := decodeBody[errorEnvelope](t, rec); body.Error.Type != tc.errType {
			t.Fatalf("%s: error = %+v", tc.name, body.Error)
		}
	}
}

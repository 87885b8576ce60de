package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/feedopt/feedopt/pkg/catalog"
	"github.com/feedopt/feedopt/pkg/formulation"
	"github.com/feedopt/feedopt/pkg/gateway"
)

const optimalBody = `{"status":"Optimal","custo_total":250.5,"inclusoes":{"corn":60,"soy":40,"oil":0},"custos_individuais":{"corn":150,"soy":100.5},"conferencia_nutricional":{"protein":18.5}}`

type fakeGateway struct {
	mu       sync.Mutex
	vocab    formulation.Vocabulary
	requests []formulation.Request
	drafts   []formulation.Draft
	optErr   error
}

func (g *fakeGateway) FetchCatalog(ctx context.Context) (formulation.Vocabulary, error) {
	return g.vocab, nil
}

func (g *fakeGateway) SubmitOptimization(ctx context.Context, req formulation.Request) (gateway.Optimization, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	if g.optErr != nil {
		return gateway.Optimization{}, g.optErr
	}
	res, err := formulation.ParseResult([]byte(optimalBody))
	return gateway.Optimization{Result: res, Raw: []byte(optimalBody)}, err
}

func (g *fakeGateway) SubmitConsultation(ctx context.Context, d formulation.Draft) (formulation.Consultation, error) {
	g.mu.Lock()
	g.drafts = append(g.drafts, d)
	g.mu.Unlock()
	return formulation.Consultation{
		TotalCost:    99,
		Nutrients:    []formulation.NutrientValue{{Nutrient: "protein", Value: 12}},
		HasNutrients: true,
	}, nil
}

func (g *fakeGateway) ImportCatalog(ctx context.Context, filename string, r io.Reader, session string) (string, error) {
	data, _ := io.ReadAll(r)
	return filename + ":" + session + ":" + string(data), nil
}

func (g *fakeGateway) ExportCatalog(ctx context.Context, session string) (gateway.Download, error) {
	return gateway.Download{Filename: session + ".xlsx", ContentType: "application/octet-stream", Data: []byte("xlsx")}, nil
}

type memResults struct {
	raw []byte
}

func (m *memResults) SaveLastResult(ctx context.Context, raw []byte) error {
	m.raw = append([]byte(nil), raw...)
	return nil
}

func (m *memResults) LastResult(ctx context.Context) ([]byte, bool, error) {
	return m.raw, m.raw != nil, nil
}

func newTestServer() (*Server, *fakeGateway, *memResults) {
	gw := &fakeGateway{vocab: formulation.Vocabulary{
		Materials: []string{"corn", "soy", "oil"},
		Nutrients: []string{"protein", "energy"},
	}}
	res := &memResults{}
	return New(gw, res, catalog.NewStore(nil), "", ""), gw, res
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func createView(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/views", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create view: %d %s", rec.Code, rec.Body)
	}
	var v viewResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	return v.ID
}

func TestBasicAuth(t *testing.T) {
	s, _, _ := newTestServer()
	s.Username, s.Password = "admin", "secret"
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/api/catalog", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no credentials: got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/catalog", nil)
	req.SetBasicAuth("admin", "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("with credentials: got %d", rec.Code)
	}
}

func TestOptimizeFlow(t *testing.T) {
	s, gw, results := newTestServer()
	h := s.Handler()
	id := createView(t, h)
	base := "/api/views/" + id

	for _, body := range []string{
		`{"kind":"material","subject":"corn","relation":"<=","value":60}`,
		`{"kind":"nutrient","subject":"protein","relation":">=","value":18}`,
	} {
		if rec := do(t, h, http.MethodPost, base+"/constraints", body); rec.Code != http.StatusCreated {
			t.Fatalf("add constraint %s: %d %s", body, rec.Code, rec.Body)
		}
	}

	rec := do(t, h, http.MethodPost, base+"/optimize", `{"cost_ceiling":500}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("optimize: %d %s", rec.Code, rec.Body)
	}

	wire, err := json.Marshal(gw.requests[0])
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	if want := `{"metas":{"protein":[18,null]},"restricoes":{"corn":[null,60]},"custo_max":500}`; string(wire) != want {
		t.Errorf("request = %s, want %s", wire, want)
	}

	var got reportResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Message != "Status: Optimal | Cost: 250.5000" {
		t.Errorf("message = %q", got.Message)
	}
	wantInc := []formulation.Inclusion{{Material: "corn", Percent: 60}, {Material: "soy", Percent: 40}}
	if diff := cmp.Diff(wantInc, got.Report.Inclusions); diff != "" {
		t.Errorf("inclusions (-want +got):\n%s", diff)
	}
	if string(results.raw) != optimalBody {
		t.Errorf("persisted %s, want the raw service body", results.raw)
	}

	rec = do(t, h, http.MethodGet, "/api/results/latest", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"custo_total":250.5`) {
		t.Errorf("latest: %d %s", rec.Code, rec.Body)
	}

	rec = do(t, h, http.MethodGet, "/api/results/latest/export?format=csv", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("export: %d %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.HasPrefix(rec.Body.String(), "Material,Weight (%),Cost\ncorn,60.0000,150.0000\n") {
		t.Errorf("csv = %q", rec.Body)
	}
}

func TestOptimizeServiceError(t *testing.T) {
	s, gw, results := newTestServer()
	gw.optErr = &gateway.Error{Op: gateway.OpSubmitOptimization, Message: "connection refused"}
	h := s.Handler()
	id := createView(t, h)

	rec := do(t, h, http.MethodPost, "/api/views/"+id+"/optimize", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("got %d, want 502", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "connection refused") {
		t.Errorf("body = %q", rec.Body)
	}
	if results.raw != nil {
		t.Error("failed optimization overwrote the stored result")
	}
	if gw.requests[0].CostCeiling != s.DefaultCostCeiling {
		t.Errorf("cost ceiling = %v", gw.requests[0].CostCeiling)
	}
}

func TestUpdateConstraintValidation(t *testing.T) {
	s, _, _ := newTestServer()
	h := s.Handler()
	id := createView(t, h)
	base := "/api/views/" + id + "/constraints"

	rec := do(t, h, http.MethodPost, base, `{"kind":"material"}`)
	var e struct {
		ID    uint64  `json:"id"`
		Value float64 `json:"value"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = do(t, h, http.MethodPatch, base+"/1", `{"field":"value","value":"abc"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("non-numeric value: got %d", rec.Code)
	}
	rec = do(t, h, http.MethodPatch, base+"/1", `{"field":"subject","value":"gold"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unknown subject: got %d", rec.Code)
	}
	rec = do(t, h, http.MethodPatch, base+"/1", `{"field":"value","value":"42"}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"value":42`) {
		t.Fatalf("valid edit: %d %s", rec.Code, rec.Body)
	}
	rec = do(t, h, http.MethodPatch, base+"/99", `{"field":"value","value":"1"}`)
	if rec.Code != http.StatusNoContent {
		t.Errorf("unknown id: got %d", rec.Code)
	}

	if rec := do(t, h, http.MethodPost, base, `{"kind":"nutrient","subject":"fiber"}`); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid add: got %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, base, "")
	var entries []json.RawMessage
	json.Unmarshal(rec.Body.Bytes(), &entries)
	if len(entries) != 1 || e.ID != 1 {
		t.Errorf("entries = %s", rec.Body)
	}

	if rec := do(t, h, http.MethodDelete, base+"/1", ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete: got %d", rec.Code)
	}
}

func TestDraftGuard(t *testing.T) {
	s, gw, _ := newTestServer()
	h := s.Handler()
	id := createView(t, h)
	base := "/api/views/" + id

	if rec := do(t, h, http.MethodPut, base+"/draft/corn", `{"value":60}`); rec.Code != http.StatusOK {
		t.Fatalf("corn: %d %s", rec.Code, rec.Body)
	}
	rec := do(t, h, http.MethodPut, base+"/draft/soy", `{"value":50}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("soy 50: got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), formulation.ErrCompositionExceeded.Error()) {
		t.Errorf("body = %q", rec.Body)
	}
	if rec := do(t, h, http.MethodPut, base+"/draft/gold", `{"value":1}`); rec.Code != http.StatusNotFound {
		t.Errorf("unknown material: got %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, base+"/draft", "")
	var d draftResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &d); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := draftResponse{Draft: formulation.Draft{"corn": 60, "soy": 0, "oil": 0}, Total: 60, Remaining: 40}
	if diff := cmp.Diff(want, d); diff != "" {
		t.Errorf("draft (-want +got):\n%s", diff)
	}

	rec = do(t, h, http.MethodPost, base+"/consult", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("consult: %d %s", rec.Code, rec.Body)
	}
	var got reportResponse
	json.Unmarshal(rec.Body.Bytes(), &got)
	if diff := cmp.Diff([]formulation.Inclusion{{Material: "corn", Percent: 60}}, got.Report.Inclusions); diff != "" {
		t.Errorf("consult inclusions (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(formulation.Draft{"corn": 60, "soy": 0, "oil": 0}, gw.drafts[0]); diff != "" {
		t.Errorf("submitted draft (-want +got):\n%s", diff)
	}
}

func TestUnknownView(t *testing.T) {
	s, _, _ := newTestServer()
	h := s.Handler()
	id := createView(t, h)
	if rec := do(t, h, http.MethodDelete, "/api/views/"+id, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/views/"+id+"/constraints", ""); rec.Code != http.StatusNotFound {
		t.Errorf("deleted view: got %d", rec.Code)
	}
}

func TestLatestWithoutResult(t *testing.T) {
	s, _, _ := newTestServer()
	if rec := do(t, s.Handler(), http.MethodGet, "/api/results/latest", ""); rec.Code != http.StatusNotFound {
		t.Errorf("got %d, want 404", rec.Code)
	}
}

func TestMaterials(t *testing.T) {
	s, _, _ := newTestServer()
	h := s.Handler()

	if rec := do(t, h, http.MethodPost, "/api/materials", `{"nome":"fishmeal","custo":-1}`); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("negative cost: got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/materials", `{"nome":"fishmeal","custo":0}`); rec.Code != http.StatusCreated {
		t.Errorf("zero cost: got %d %s", rec.Code, rec.Body)
	}
	if rec := do(t, h, http.MethodPost, "/api/materials", `{"nome":"fishmeal","custo":3.5,"nutrientes":{"protein":60}}`); rec.Code != http.StatusCreated {
		t.Fatalf("add: %d %s", rec.Code, rec.Body)
	}
	if got := s.Materials.List(); len(got) != 1 || got[0].Name != "fishmeal" {
		t.Errorf("materials = %+v", got)
	}
	if rec := do(t, h, http.MethodDelete, "/api/materials/fishmeal", ""); rec.Code != http.StatusNoContent {
		t.Errorf("remove: got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/api/materials/fishmeal", ""); rec.Code != http.StatusNotFound {
		t.Errorf("remove twice: got %d", rec.Code)
	}
}

func TestLocalMaterialsReachTheRequest(t *testing.T) {
	s, gw, _ := newTestServer()
	if err := s.Materials.Add(context.Background(), catalog.RawMaterial{Name: "fishmeal", CostPerUnit: 3.5, Nutrients: map[string]float64{"protein": 60}}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	h := s.Handler()
	id := createView(t, h)
	body := `{"kind":"material","subject":"fishmeal","relation":"<=","value":5}`
	if rec := do(t, h, http.MethodPost, "/api/views/"+id+"/constraints", body); rec.Code != http.StatusCreated {
		t.Fatalf("constraint on local material: %d %s", rec.Code, rec.Body)
	}
	if rec := do(t, h, http.MethodPost, "/api/views/"+id+"/optimize", `{"cost_ceiling":100}`); rec.Code != http.StatusOK {
		t.Fatalf("optimize: %d", rec.Code)
	}
	extra, ok := gw.requests[0].ExtraMaterials["fishmeal"]
	if !ok || extra.CostPerUnit != 3.5 {
		t.Errorf("extras = %+v", gw.requests[0].ExtraMaterials)
	}
	if b := gw.requests[0].MaterialBounds["fishmeal"]; b.Upper == nil || *b.Upper != 5 {
		t.Errorf("fishmeal bounds = %v", b)
	}
}

func TestCatalogImportExport(t *testing.T) {
	s, _, _ := newTestServer()
	h := s.Handler()

	var body bytes.Buffer
	body.WriteString("--b\r\nContent-Disposition: form-data; name=\"session\"\r\n\r\nabc\r\n" +
		"--b\r\nContent-Disposition: form-data; name=\"file\"; filename=\"mp.xlsx\"\r\nContent-Type: application/octet-stream\r\n\r\nDATA\r\n--b--\r\n")
	req := httptest.NewRequest(http.MethodPost, "/api/catalog/import", &body)
	req.Header.Set("Content-Type", "multipart/form-data; boundary=b")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "mp.xlsx:abc:DATA") {
		t.Fatalf("import: %d %s", rec.Code, rec.Body)
	}

	rec = do(t, h, http.MethodGet, "/api/catalog/export?session=abc", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "xlsx" {
		t.Fatalf("export: %d %s", rec.Code, rec.Body)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="abc.xlsx"` {
		t.Errorf("Content-Disposition = %q", cd)
	}
}

func TestGatewayErrorStatusMessage(t *testing.T) {
	err := &gateway.Error{Op: gateway.OpFetchCatalog, StatusCode: 500, Message: "boom"}
	if !errors.As(error(err), new(*gateway.Error)) {
		t.Fatal("gateway.Error does not match itself")
	}
	rec := httptest.NewRecorder()
	gatewayError(rec, err)
	if rec.Code != http.StatusBadGateway || !strings.Contains(rec.Body.String(), "Optimization service error (500): boom") {
		t.Errorf("got %d %q", rec.Code, rec.Body)
	}
}

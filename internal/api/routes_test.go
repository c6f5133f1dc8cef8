package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"trustbridge/backend/internal/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	server *Server
	router *gin.Engine
}

func writeTestArtifact(t *testing.T, dir, name string, artifact model.Artifact) string {
	t.Helper()
	data, err := json.Marshal(artifact)
	if err != nil {
		t.Fatalf("marshal artifact: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path
}

// newTestServer stands up a server over temp storage. Pass empty paths to
// leave a model unavailable.
func newTestServer(t *testing.T, housePath, loanPath string) *testServer {
	t.Helper()
	server, err := NewServer(Config{
		DBPath:         filepath.Join(t.TempDir(), "trustbridge.db"),
		HouseModelPath: housePath,
		LoanModelPath:  loanPath,
		SilentDB:       true,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() { _ = server.Close() })

	router, err := server.Router()
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	return &testServer{server: server, router: router}
}

func houseArtifact() model.Artifact {
	// All-zero coefficients pin the appraisal to the intercept.
	return model.Artifact{
		Schema:       model.SchemaVersion,
		Kind:         "house",
		Type:         model.TypeLinearRegression,
		Coefficients: make([]float64, 7),
		Intercept:    450000,
	}
}

func loanArtifact(intercept float64) model.Artifact {
	return model.Artifact{
		Schema:       model.SchemaVersion,
		Kind:         "loan",
		Type:         model.TypeLogisticRegression,
		Coefficients: make([]float64, 8),
		Intercept:    intercept,
	}
}

func (ts *testServer) doJSON(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) registerAndLogin(t *testing.T, username, fullName string) string {
	t.Helper()
	w := ts.doJSON(t, http.MethodPost, "/api/register", "", RegisterRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "hunter2hunter2",
		FullName: fullName,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d body %s", username, w.Code, w.Body.String())
	}

	w = ts.doJSON(t, http.MethodPost, "/api/login", "", LoginRequest{Username: username, Password: "hunter2hunter2"})
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", username, w.Code, w.Body.String())
	}
	var auth AuthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &auth); err != nil {
		t.Fatalf("decode auth: %v", err)
	}
	if auth.Token == "" {
		t.Fatal("expected session token")
	}
	return auth.Token
}

func houseFields() map[string]string {
	return map[string]string{
		"bedrooms":  "3",
		"bathrooms": "2",
		"flat_area": "1800",
		"lot_area":  "5000",
		"condition": "4",
		"grade":     "7",
		"zipcode":   "98001",
	}
}

func loanFields() map[string]string {
	return map[string]string{
		"applicant_income":   "5000",
		"coapplicant_income": "1500",
		"loan_amount":        "120",
		"loan_term":          "360",
		"credit_history":     "1",
		"property_area":      "Rural",
		"married":            "Yes",
		"education":          "Graduate",
	}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var payload struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return payload.Code, payload.Error
}

func TestPredictHouseDegradedService(t *testing.T) {
	ts := newTestServer(t, filepath.Join(t.TempDir(), "missing.json"), "")
	token := ts.registerAndLogin(t, "degraded", "Dana Reeve")

	w := ts.doJSON(t, http.MethodPost, "/api/predict/house", token, houseFields())
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d body %s", w.Code, w.Body.String())
	}
	code, _ := decodeError(t, w)
	if code != codeDegraded {
		t.Fatalf("expected code %s got %s", codeDegraded, code)
	}

	count, err := ts.server.db.CountAudits()
	if err != nil {
		t.Fatalf("count audits: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no audit record got %d", count)
	}
}

func TestPredictHouseFullPipeline(t *testing.T) {
	dir := t.TempDir()
	ts := newTestServer(t, writeTestArtifact(t, dir, "house.json", houseArtifact()), "")
	token := ts.registerAndLogin(t, "appraiser", "Morgan Walker")

	w := ts.doJSON(t, http.MethodPost, "/api/predict/house", token, houseFields())
	if w.Code != http.StatusOK {
		t.Fatalf("predict: status %d body %s", w.Code, w.Body.String())
	}

	var resp PredictResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ResultText != "$450,000.00" {
		t.Fatalf("unexpected result text %q", resp.ResultText)
	}
	if resp.Confidence != 94.2 {
		t.Fatalf("unexpected confidence %v", resp.Confidence)
	}
	if resp.AuditID == 0 {
		t.Fatal("expected audit id")
	}
	if resp.ReportID != fmt.Sprintf("TB-%04d", resp.AuditID) {
		t.Fatalf("unexpected report id %q", resp.ReportID)
	}
	if len(resp.Factors) != 3 || resp.FactorsDisclosure == "" {
		t.Fatalf("expected heuristic factors with disclosure, got %+v", resp)
	}

	// History contains the new record.
	w = ts.doJSON(t, http.MethodGet, "/api/history", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("history: status %d", w.Code)
	}
	var history HistoryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history.Items) != 1 || history.Items[0].ID != resp.AuditID {
		t.Fatalf("expected history entry for audit %d got %+v", resp.AuditID, history.Items)
	}
	if history.Items[0].Inputs["zipcode"] != "98001" {
		t.Fatalf("expected input snapshot in history, got %+v", history.Items[0].Inputs)
	}

	// The report downloads for the owner.
	w = ts.doJSON(t, http.MethodGet, fmt.Sprintf("/api/reports/%d", resp.AuditID), token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("report: status %d body %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("expected pdf content type got %q", ct)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")) {
		t.Fatal("expected PDF bytes")
	}

	// Someone else is forbidden.
	otherToken := ts.registerAndLogin(t, "other", "Casey Stone")
	w = ts.doJSON(t, http.MethodGet, fmt.Sprintf("/api/reports/%d", resp.AuditID), otherToken, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", w.Code)
	}
	code, _ := decodeError(t, w)
	if code != codeForbidden {
		t.Fatalf("expected code %s got %s", codeForbidden, code)
	}

	// The activity stream saw the scoring event.
	last := ts.server.notifier.LastEvent()
	if last == nil || last.AuditID != resp.AuditID || last.Owner != "Morgan Walker" {
		t.Fatalf("expected broadcast for audit %d got %+v", resp.AuditID, last)
	}
}

func TestPredictHouseValidation(t *testing.T) {
	dir := t.TempDir()
	ts := newTestServer(t, writeTestArtifact(t, dir, "house.json", houseArtifact()), "")
	token := ts.registerAndLogin(t, "validator", "Val Field")

	fields := houseFields()
	fields["zipcode"] = "not-a-number"
	w := ts.doJSON(t, http.MethodPost, "/api/predict/house", token, fields)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d body %s", w.Code, w.Body.String())
	}
	code, message := decodeError(t, w)
	if code != codeValidation {
		t.Fatalf("expected code %s got %s", codeValidation, code)
	}
	if !strings.Contains(message, "zipcode") {
		t.Fatalf("expected offending field in message, got %q", message)
	}

	count, err := ts.server.db.CountAudits()
	if err != nil {
		t.Fatalf("count audits: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no audit record got %d", count)
	}
}

func TestPredictLoanOutcomes(t *testing.T) {
	tests := []struct {
		name      string
		intercept float64
		expected  string
	}{
		{"approved", 4, "Approved"},
		{"flagged", -4, "Flagged for Review"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			ts := newTestServer(t, "", writeTestArtifact(t, dir, "loan.json", loanArtifact(tc.intercept)))
			token := ts.registerAndLogin(t, "borrower", "Lee Quinn")

			w := ts.doJSON(t, http.MethodPost, "/api/predict/loan", token, loanFields())
			if w.Code != http.StatusOK {
				t.Fatalf("predict: status %d body %s", w.Code, w.Body.String())
			}
			var resp PredictResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.ResultText != tc.expected {
				t.Fatalf("expected %q got %q", tc.expected, resp.ResultText)
			}
		})
	}
}

func TestPredictLoanFormEncoded(t *testing.T) {
	dir := t.TempDir()
	ts := newTestServer(t, "", writeTestArtifact(t, dir, "loan.json", loanArtifact(4)))
	token := ts.registerAndLogin(t, "formuser", "Fay Orman")

	form := url.Values{}
	for key, value := range loanFields() {
		form.Set(key, value)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/predict/loan", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("predict: status %d body %s", w.Code, w.Body.String())
	}
	var resp PredictResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ResultText != "Approved" {
		t.Fatalf("expected Approved got %q", resp.ResultText)
	}
}

func TestHistoryScopedToOwner(t *testing.T) {
	dir := t.TempDir()
	ts := newTestServer(t, writeTestArtifact(t, dir, "house.json", houseArtifact()), "")

	tokenA := ts.registerAndLogin(t, "owner-a", "Alex Ames")
	tokenB := ts.registerAndLogin(t, "owner-b", "Blair Boone")

	for i := 0; i < 3; i++ {
		if w := ts.doJSON(t, http.MethodPost, "/api/predict/house", tokenA, houseFields()); w.Code != http.StatusOK {
			t.Fatalf("predict a: status %d", w.Code)
		}
	}
	if w := ts.doJSON(t, http.MethodPost, "/api/predict/house", tokenB, houseFields()); w.Code != http.StatusOK {
		t.Fatalf("predict b: status %d", w.Code)
	}

	w := ts.doJSON(t, http.MethodGet, "/api/history?limit=10", tokenB, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("history: status %d", w.Code)
	}
	var history HistoryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history.Items) != 1 {
		t.Fatalf("expected 1 record for owner b got %d", len(history.Items))
	}
}

func TestReportNotFound(t *testing.T) {
	ts := newTestServer(t, "", "")
	token := ts.registerAndLogin(t, "nobody", "Nico Body")

	w := ts.doJSON(t, http.MethodGet, "/api/reports/999", token, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", w.Code)
	}
	code, _ := decodeError(t, w)
	if code != codeNotFound {
		t.Fatalf("expected code %s got %s", codeNotFound, code)
	}
}

func TestEndpointsRequireAuth(t *testing.T) {
	ts := newTestServer(t, "", "")

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/predict/house"},
		{http.MethodPost, "/api/predict/loan"},
		{http.MethodGet, "/api/history"},
		{http.MethodGet, "/api/reports/1"},
		{http.MethodPost, "/api/calculator"},
	}
	for _, p := range paths {
		w := ts.doJSON(t, p.method, p.path, "", nil)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401 got %d", p.method, p.path, w.Code)
		}
	}
}

func TestCalculator(t *testing.T) {
	ts := newTestServer(t, "", "")
	token := ts.registerAndLogin(t, "planner", "Pat Lane")

	w := ts.doJSON(t, http.MethodPost, "/api/calculator", token, CalculatorRequest{
		Income:      5000,
		Expenses:    2000,
		Rate:        0,
		TenureYears: 1,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("calculator: status %d body %s", w.Code, w.Body.String())
	}
	var resp CalculatorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.MaxEMI != "$1,350.00" {
		t.Fatalf("expected max emi $1,350.00 got %q", resp.MaxEMI)
	}
	if resp.SuggestedLoan != "$16,200.00" {
		t.Fatalf("expected suggested loan $16,200.00 got %q", resp.SuggestedLoan)
	}

	w = ts.doJSON(t, http.MethodPost, "/api/calculator", token, CalculatorRequest{Income: 5000, Expenses: 2000, Rate: 6, TenureYears: 0})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero tenure got %d", w.Code)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	ts := newTestServer(t, "", "")
	ts.registerAndLogin(t, "secure", "Sam Cure")

	w := ts.doJSON(t, http.MethodPost, "/api/login", "", LoginRequest{Username: "secure", Password: "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", w.Code)
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	ts := newTestServer(t, "", "")
	ts.registerAndLogin(t, "taken", "Tay Ken")

	w := ts.doJSON(t, http.MethodPost, "/api/register", "", RegisterRequest{
		Username: "taken",
		Email:    "new@example.com",
		Password: "hunter2hunter2",
		FullName: "New Person",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", w.Code)
	}
}

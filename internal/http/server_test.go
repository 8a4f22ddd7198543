package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"livein/internal/budget"
	"livein/internal/core"
	"livein/internal/services"
	"livein/internal/storage"
	"livein/internal/stream"
)

func newTestServer(t *testing.T) (*Server, *storage.SQLiteRepository) {
	t.Helper()

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}

	members, err := repo.ListMembers(context.Background())
	if err != nil {
		t.Fatalf("ListMembers() error = %v", err)
	}
	household := core.Household{Members: members}

	broadcaster := stream.NewBroadcaster()
	txService := services.NewTransactionService(repo, nil, broadcaster, household)
	chatService := services.NewChatService(repo, nil, household)

	s := NewServer(":0", txService, repo, broadcaster, chatService, household)
	t.Cleanup(func() {
		_ = s.Shutdown(context.Background())
		repo.Close()
	})
	return s, repo
}

func doJSON(t *testing.T, s *Server, method, path, uid string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if uid != "" {
		req.Header.Set("X-User-ID", uid)
	}
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	return rec
}

func TestLogin(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name       string
		uid, pin   string
		wantStatus int
	}{
		{"valid first member", "userA-uid", "9900", http.StatusOK},
		{"valid second member", "userB-uid", "0099", http.StatusOK},
		{"wrong pin", "userA-uid", "0000", http.StatusUnauthorized},
		{"swapped pin", "userA-uid", "0099", http.StatusUnauthorized},
		{"unknown uid", "stranger", "9900", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, s, http.MethodPost, "/api/login", "", map[string]string{
				"uid": tt.uid, "pin": tt.pin,
			})
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var resp struct {
				Member  core.Member `json:"member"`
				Partner core.Member `json:"partner"`
				RoomID  string      `json:"room_id"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Member.UID != tt.uid {
				t.Errorf("member uid = %q, want %q", resp.Member.UID, tt.uid)
			}
			if resp.Partner.UID == tt.uid || resp.Partner.UID == "" {
				t.Errorf("partner uid = %q, want the other member", resp.Partner.UID)
			}
			if resp.RoomID != "userA-uid_userB-uid" {
				t.Errorf("room id = %q, want userA-uid_userB-uid", resp.RoomID)
			}
			if strings.Contains(rec.Body.String(), "9900") || strings.Contains(rec.Body.String(), "0099") {
				t.Error("login response leaks a PIN")
			}
		})
	}
}

func TestTransactionLifecycle(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/transactions", "userA-uid", map[string]string{
		"amount":   "42.50",
		"category": "Needs",
		"item":     "Groceries",
		"partner":  "Sarah",
		"desc":     "weekly shop",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}

	var created core.Transaction
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	if created.ID == "" || created.Timestamp == 0 {
		t.Errorf("created transaction missing server fields: %+v", created)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/transactions", "userB-uid", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var listed []core.Transaction
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != created.ID {
		t.Errorf("list = %+v, want the created transaction", listed)
	}

	// Partner can't delete what they didn't log.
	rec = doJSON(t, s, http.MethodDelete, "/api/transactions/"+created.ID, "userB-uid", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("delete by non-owner status = %d, want 403", rec.Code)
	}

	rec = doJSON(t, s, http.MethodDelete, "/api/transactions/"+created.ID, "userA-uid", nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete by owner status = %d, want 204", rec.Code)
	}

	rec = doJSON(t, s, http.MethodDelete, "/api/transactions/"+created.ID, "userA-uid", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("delete missing status = %d, want 404", rec.Code)
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name string
		body map[string]string
	}{
		{"malformed amount", map[string]string{"amount": "abc", "category": "Needs", "item": "Rent", "partner": "Sarah"}},
		{"negative amount", map[string]string{"amount": "-5", "category": "Needs", "item": "Rent", "partner": "Sarah"}},
		{"unknown category", map[string]string{"amount": "10", "category": "Luxuries", "item": "Rent", "partner": "Sarah"}},
		{"stranger partner", map[string]string{"amount": "10", "category": "Needs", "item": "Rent", "partner": "Eve"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, s, http.MethodPost, "/api/transactions", "userA-uid", tt.body)
			if rec.Code != http.StatusUnprocessableEntity {
				t.Errorf("status = %d, want 422 (body %s)", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestRequiresKnownMember(t *testing.T) {
	s, _ := newTestServer(t)

	paths := []string{"/api/transactions", "/api/dashboard", "/api/analytics", "/api/reports", "/api/allocations"}
	for _, path := range paths {
		rec := doJSON(t, s, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without identity = %d, want 401", path, rec.Code)
		}
		rec = doJSON(t, s, http.MethodGet, path, "stranger", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("GET %s as stranger = %d, want 401", path, rec.Code)
		}
	}
}

func TestDashboardSummary(t *testing.T) {
	s, _ := newTestServer(t)

	// Income 1000 total with a 50/30/20 split; 180 of Needs spend is 36%
	// of the 500 Needs budget.
	rec := doJSON(t, s, http.MethodPut, "/api/allocations", "userA-uid", core.BudgetAllocation{
		Needs: 50, Wants: 30, Savings: 20, IncomeA: 600, IncomeB: 400,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("put allocation status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, s, http.MethodPost, "/api/transactions", "userA-uid", map[string]string{
		"amount": "180", "category": "Needs", "item": "Rent", "partner": "Sarah",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/dashboard?timeframe=month", "userA-uid", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard status = %d, body %s", rec.Code, rec.Body.String())
	}

	var summary budget.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if !summary.TotalSpend.Equal(mustDecimal(t, "180")) {
		t.Errorf("TotalSpend = %s, want 180", summary.TotalSpend)
	}
	if summary.Utilization[core.CategoryNeeds] != 36 {
		t.Errorf("Needs utilization = %d, want 36", summary.Utilization[core.CategoryNeeds])
	}
	if summary.Utilization[core.CategoryWants] != 0 {
		t.Errorf("Wants utilization = %d, want 0", summary.Utilization[core.CategoryWants])
	}
}

func TestDashboardRejectsBadTimeframe(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/dashboard?timeframe=week", "userA-uid", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestAllocationDefaultsAndValidation(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/allocations", "userB-uid", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get allocation status = %d", rec.Code)
	}
	var alloc core.BudgetAllocation
	if err := json.Unmarshal(rec.Body.Bytes(), &alloc); err != nil {
		t.Fatalf("decode allocation: %v", err)
	}
	if alloc.Needs != 50 || alloc.Wants != 30 || alloc.Savings != 20 {
		t.Errorf("default allocation = %+v, want 50/30/20", alloc)
	}

	rec = doJSON(t, s, http.MethodPut, "/api/allocations", "userB-uid", core.BudgetAllocation{
		Needs: 150, Wants: 30, Savings: 20,
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("put invalid allocation status = %d, want 422", rec.Code)
	}
}

func TestAnalyticsMatrix(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/transactions", "userA-uid", map[string]string{
		"amount": "30", "category": "Wants", "item": "Outings", "partner": "Marcus",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/analytics", "userA-uid", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("analytics status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		ByCategory map[core.Category]map[string]string `json:"byCategory"`
		Partners   []string                            `json:"partners"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode analytics: %v", err)
	}
	if len(resp.Partners) != 2 {
		t.Fatalf("partners = %v, want both members", resp.Partners)
	}
	if got := resp.ByCategory[core.CategoryWants]["Marcus"]; got != "30" {
		t.Errorf("Wants/Marcus = %q, want 30", got)
	}
	if got := resp.ByCategory[core.CategoryNeeds]["Sarah"]; got != "0" {
		t.Errorf("Needs/Sarah = %q, want zero-filled 0", got)
	}
}

func TestReportsExportCSV(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/transactions", "userB-uid", map[string]string{
		"amount": "12.30", "category": "Savings", "item": "Emergency Funds", "partner": "Marcus",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/reports/export?timeframe=month", "userB-uid", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %q, want text/csv", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "date,category,item,partner,amount,added_by,description") {
		t.Errorf("missing CSV header: %q", body)
	}
	if !strings.Contains(body, "Emergency Funds") || !strings.Contains(body, "12.30") {
		t.Errorf("missing transaction row: %q", body)
	}
}

func TestReportsFilters(t *testing.T) {
	s, _ := newTestServer(t)

	seed := []map[string]string{
		{"amount": "10", "category": "Needs", "item": "Rent", "partner": "Sarah"},
		{"amount": "20", "category": "Wants", "item": "Outings", "partner": "Marcus"},
		{"amount": "30", "category": "Needs", "item": "Groceries", "partner": "Marcus"},
	}
	for _, body := range seed {
		if rec := doJSON(t, s, http.MethodPost, "/api/transactions", "userA-uid", body); rec.Code != http.StatusCreated {
			t.Fatalf("seed create status = %d", rec.Code)
		}
	}

	tests := []struct {
		name      string
		query     string
		wantCount int
	}{
		{"no filters", "", 3},
		{"by partner", "&partner=Marcus", 2},
		{"by category", "&category=Needs", 2},
		{"partner and category", "&partner=Marcus&category=Needs", 1},
		{"no matches", "&partner=Sarah&category=Savings", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, s, http.MethodGet, "/api/reports?timeframe=month"+tt.query, "userA-uid", nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}
			var resp struct {
				Transactions []core.Transaction `json:"transactions"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode reports: %v", err)
			}
			if len(resp.Transactions) != tt.wantCount {
				t.Errorf("transactions = %d, want %d", len(resp.Transactions), tt.wantCount)
			}
		})
	}

	rec := doJSON(t, s, http.MethodGet, "/api/reports?category=Luxuries", "userA-uid", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid category filter status = %d, want 400", rec.Code)
	}
}

func TestRegisterDevice(t *testing.T) {
	s, repo := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/devices", "userA-uid", map[string]string{
		"token": "fcm-token-1",
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("register status = %d, body %s", rec.Code, rec.Body.String())
	}

	tokens, err := repo.ListDeviceTokens(context.Background(), "userA-uid")
	if err != nil {
		t.Fatalf("ListDeviceTokens() error = %v", err)
	}
	if len(tokens) != 1 || tokens[0] != "fcm-token-1" {
		t.Errorf("tokens = %v, want [fcm-token-1]", tokens)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/devices", "userA-uid", map[string]string{"token": "  "})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("blank token status = %d, want 422", rec.Code)
	}
}

func mustDecimal(t *testing.T, v string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(v)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", v, err)
	}
	return d
}

func TestHealthEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := doJSON(t, s, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}

package http

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"livein/internal/budget"
	"livein/internal/core"
)

// summaryFor computes (or serves from cache) the dashboard summary using
// the requesting member's allocation.
func (s *Server) summaryFor(r *http.Request, uid string, tf core.Timeframe) (budget.Summary, error) {
	key := s.household.ID() + "/" + string(tf) + "/" + uid
	if cached, found := s.summaryCache.Get(key); found {
		slog.DebugContext(r.Context(), "Summary cache hit", "timeframe", tf, "uid", uid)
		return cached, nil
	}

	txs, err := s.transactions.List(r.Context())
	if err != nil {
		return budget.Summary{}, fmt.Errorf("load transactions: %w", err)
	}
	alloc, err := s.storage.GetAllocation(r.Context(), uid)
	if err != nil {
		return budget.Summary{}, fmt.Errorf("load allocation: %w", err)
	}

	summary := budget.Summarize(txs, alloc, tf, time.Now())
	s.summaryCache.Set(key, summary)
	return summary, nil
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	member, ok := s.requesterUID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "unknown member")
		return
	}
	tf, err := timeframeParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := s.summaryFor(r, member.UID, tf)
	if err != nil {
		slog.ErrorContext(r.Context(), "Dashboard summary error", "error", err, "timeframe", tf)
		respondError(w, http.StatusInternalServerError, "failed to compute summary")
		return
	}

	respondJSON(w, http.StatusOK, summary)
}

type analyticsResponse struct {
	Timeframe  core.Timeframe               `json:"timeframe"`
	ByCategory map[core.Category]decimalMap `json:"byCategory"`
	Comparison budget.Comparison            `json:"comparison"`
	Partners   []string                     `json:"partners"`
}

type decimalMap = map[string]string

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if _, ok := s.requesterUID(r); !ok {
		respondError(w, http.StatusUnauthorized, "unknown member")
		return
	}
	tf, err := timeframeParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	txs, err := s.transactions.List(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Analytics load error", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load transactions")
		return
	}

	now := time.Now()
	scoped := budget.FilterByTimeframe(txs, tf, now)
	partners := s.household.PartnerNames()
	matrix := budget.SpendByPartnerAndCategory(scoped, partners, core.Categories())

	// Flatten the decimal matrix into strings; clients render, not compute.
	byCategory := make(map[core.Category]decimalMap, len(core.Categories()))
	for _, c := range core.Categories() {
		row := make(decimalMap, len(partners))
		for _, p := range partners {
			row[p] = matrix[p][c].String()
		}
		byCategory[c] = row
	}

	respondJSON(w, http.StatusOK, analyticsResponse{
		Timeframe:  tf,
		ByCategory: byCategory,
		Comparison: budget.PeriodComparison(txs, tf, now),
		Partners:   partners,
	})
}

// reportFilters narrows a report to one partner and/or category.
// Empty values mean no filtering on that axis.
type reportFilters struct {
	partner  string
	category core.Category
}

func reportFiltersFromQuery(r *http.Request) (reportFilters, error) {
	f := reportFilters{
		partner:  sanitizeInput(r.URL.Query().Get("partner")),
		category: core.Category(sanitizeInput(r.URL.Query().Get("category"))),
	}
	if f.category != "" && !f.category.Valid() {
		return reportFilters{}, core.ErrInvalidCategory
	}
	return f, nil
}

func (f reportFilters) apply(txs []core.Transaction) []core.Transaction {
	if f.partner == "" && f.category == "" {
		return txs
	}
	var out []core.Transaction
	for _, tx := range txs {
		if f.partner != "" && tx.Partner != f.partner {
			continue
		}
		if f.category != "" && tx.Category != f.category {
			continue
		}
		out = append(out, tx)
	}
	return out
}

type reportsResponse struct {
	Timeframe    core.Timeframe     `json:"timeframe"`
	Summary      budget.Summary     `json:"summary"`
	Transactions []core.Transaction `json:"transactions"`
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	member, ok := s.requesterUID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "unknown member")
		return
	}
	tf, err := timeframeParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := s.summaryFor(r, member.UID, tf)
	if err != nil {
		slog.ErrorContext(r.Context(), "Report summary error", "error", err, "timeframe", tf)
		respondError(w, http.StatusInternalServerError, "failed to compute summary")
		return
	}

	filters, err := reportFiltersFromQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	txs, err := s.transactions.List(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Report load error", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load transactions")
		return
	}
	scoped := filters.apply(budget.FilterByTimeframe(txs, tf, time.Now()))
	if scoped == nil {
		scoped = []core.Transaction{}
	}

	respondJSON(w, http.StatusOK, reportsResponse{
		Timeframe:    tf,
		Summary:      summary,
		Transactions: scoped,
	})
}

// handleReportsExport streams the timeframe's transactions as CSV.
func (s *Server) handleReportsExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if _, ok := s.requesterUID(r); !ok {
		respondError(w, http.StatusUnauthorized, "unknown member")
		return
	}
	tf, err := timeframeParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	filters, err := reportFiltersFromQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	txs, err := s.transactions.List(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Export load error", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load transactions")
		return
	}
	scoped := filters.apply(budget.FilterByTimeframe(txs, tf, time.Now()))

	filename := fmt.Sprintf("livein-%s-%s.csv", tf, time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"date", "category", "item", "partner", "amount", "added_by", "description"})
	for _, tx := range scoped {
		date := time.UnixMilli(tx.Timestamp).Format("2006-01-02 15:04")
		_ = cw.Write([]string{
			date,
			string(tx.Category),
			tx.Item,
			tx.Partner,
			tx.Amount,
			tx.AddedBy.Name,
			tx.Desc,
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		slog.ErrorContext(r.Context(), "CSV export write error", "error", err)
	}
}

func (s *Server) handleAllocations(w http.ResponseWriter, r *http.Request) {
	member, ok := s.requesterUID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "unknown member")
		return
	}

	switch r.Method {
	case http.MethodGet:
		alloc, err := s.storage.GetAllocation(r.Context(), member.UID)
		if err != nil {
			slog.ErrorContext(r.Context(), "Get allocation error", "error", err, "uid", member.UID)
			respondError(w, http.StatusInternalServerError, "failed to load allocation")
			return
		}
		respondJSON(w, http.StatusOK, alloc)

	case http.MethodPut:
		var alloc core.BudgetAllocation
		if err := decodeJSON(w, r, &alloc); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := alloc.Validate(); err != nil {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if err := s.storage.PutAllocation(r.Context(), member.UID, alloc); err != nil {
			slog.ErrorContext(r.Context(), "Put allocation error", "error", err, "uid", member.UID)
			respondError(w, http.StatusInternalServerError, "failed to save allocation")
			return
		}
		s.invalidateSummaries()
		respondJSON(w, http.StatusOK, alloc)

	default:
		w.Header().Set("Allow", "GET, PUT")
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

package http

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"livein/internal/core"
	"livein/internal/storage"
)

type loginRequest struct {
	UID string `json:"uid"`
	PIN string `json:"pin"`
}

type loginResponse struct {
	Member      core.Member `json:"member"`
	Partner     core.Member `json:"partner"`
	HouseholdID string      `json:"household_id"`
	RoomID      string      `json:"room_id"`
}

// handleLogin verifies a member's PIN and returns the household context
// the client needs for every other call.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	member, ok := s.household.MemberByUID(strings.TrimSpace(req.UID))
	if !ok {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if subtle.ConstantTimeCompare([]byte(member.PIN), []byte(req.PIN)) != 1 {
		slog.WarnContext(r.Context(), "Login failed", "uid", req.UID)
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	partner, _ := s.household.OtherMember(member.UID)

	slog.InfoContext(r.Context(), "Login succeeded", "uid", member.UID)
	respondJSON(w, http.StatusOK, loginResponse{
		Member:      member,
		Partner:     partner,
		HouseholdID: s.household.ID(),
		RoomID:      core.RoomID(member.UID, partner.UID),
	})
}

type createTransactionRequest struct {
	Amount   string `json:"amount"`
	Category string `json:"category"`
	Item     string `json:"item"`
	Partner  string `json:"partner"`
	Desc     string `json:"desc"`
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListTransactions(w, r)
	case http.MethodPost:
		s.handleCreateTransaction(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requesterUID(r); !ok {
		respondError(w, http.StatusUnauthorized, "unknown member")
		return
	}

	txs, err := s.transactions.List(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "List transactions error", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load transactions")
		return
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	respondJSON(w, http.StatusOK, txs)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	member, ok := s.requesterUID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "unknown member")
		return
	}

	var req createTransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tx := core.Transaction{
		Amount:   strings.TrimSpace(req.Amount),
		Category: core.Category(strings.TrimSpace(req.Category)),
		Item:     sanitizeInput(req.Item),
		Partner:  sanitizeInput(req.Partner),
		Desc:     sanitizeInput(req.Desc),
		AddedBy:  core.Identity{UID: member.UID, Name: member.Name},
	}

	stored, err := s.transactions.Create(r.Context(), tx)
	if err != nil {
		slog.WarnContext(r.Context(), "Create transaction rejected", "error", err, "uid", member.UID)
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.invalidateSummaries()
	respondJSON(w, http.StatusCreated, stored)
}

func (s *Server) handleTransactionByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.Header().Set("Allow", "DELETE")
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	member, ok := s.requesterUID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "unknown member")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/transactions/")
	if id == "" || strings.Contains(id, "/") {
		respondError(w, http.StatusNotFound, "not found")
		return
	}

	err := s.transactions.Delete(r.Context(), member.UID, id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		respondError(w, http.StatusNotFound, "transaction not found")
		return
	case errors.Is(err, core.ErrNotOwner):
		respondError(w, http.StatusForbidden, "only the member who logged a transaction can remove it")
		return
	case err != nil:
		slog.ErrorContext(r.Context(), "Delete transaction error", "error", err, "id", id)
		respondError(w, http.StatusInternalServerError, "failed to delete transaction")
		return
	}

	s.invalidateSummaries()
	respondJSON(w, http.StatusNoContent, nil)
}

type registerDeviceRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	member, ok := s.requesterUID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "unknown member")
		return
	}

	var req registerDeviceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		respondError(w, http.StatusUnprocessableEntity, "missing device token")
		return
	}
	platform := strings.TrimSpace(req.Platform)
	if platform == "" {
		platform = "web"
	}

	if err := s.storage.RegisterDeviceToken(r.Context(), member.UID, token, platform); err != nil {
		slog.ErrorContext(r.Context(), "Register device error", "error", err, "uid", member.UID)
		respondError(w, http.StatusInternalServerError, "failed to register device")
		return
	}

	respondJSON(w, http.StatusNoContent, nil)
}

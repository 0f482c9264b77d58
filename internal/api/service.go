// Package api exposes the game engine over HTTP: session commands,
// read models, the leaderboard, and the WebSocket event stream.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/tradequest/game-engine/internal/archive"
	"github.com/tradequest/game-engine/internal/game"
	"github.com/tradequest/game-engine/internal/leaderboard"
	"github.com/tradequest/game-engine/internal/market"
	"github.com/tradequest/game-engine/internal/metrics"
	"github.com/tradequest/game-engine/internal/model"
	"github.com/tradequest/game-engine/internal/portfolio"
)

// Service handles game HTTP requests. Command execution is serialized
// per session inside the game package; the service itself only routes.
type Service struct {
	manager *game.Manager
	board   leaderboard.Board
	archive archive.Archive
	wsHub   *WSHub // optional hub for real-time broadcasts

	mu        sync.RWMutex
	usernames map[string]string // gameID → display name
}

// NewService creates the HTTP service. Pass nil for hub if WebSocket
// broadcasting is not needed.
func NewService(manager *game.Manager, board leaderboard.Board, arch archive.Archive, hub *WSHub) *Service {
	return &Service{
		manager:   manager,
		board:     board,
		archive:   arch,
		wsHub:     hub,
		usernames: make(map[string]string),
	}
}

// Routes mounts all API routes on the given router.
func (s *Service) Routes(r chi.Router) {
	r.Post("/games", s.StartGame)
	r.Get("/games/{gameID}", s.GetSnapshot)
	r.Get("/games/{gameID}/instruments", s.GetInstruments)
	r.Get("/games/{gameID}/transactions", s.GetTransactions)
	r.Post("/games/{gameID}/buy", s.Buy)
	r.Post("/games/{gameID}/sell", s.Sell)
	r.Post("/games/{gameID}/sell-all", s.SellAll)
	r.Post("/games/{gameID}/expand", s.ExpandLimit)
	r.Post("/games/{gameID}/advance", s.AdvanceYear)
	r.Post("/games/{gameID}/end", s.EndGame)
	r.Post("/games/{gameID}/reset", s.ResetGame)
	r.Delete("/games/{gameID}", s.DeleteGame)
	r.Get("/leaderboard", s.GetLeaderboard)
	r.Get("/results", s.GetResults)
	r.Get("/results/{gameID}/ledger", s.GetArchivedLedger)
	if s.wsHub != nil {
		r.Get("/ws", s.wsHub.HandleWS)
	}
}

// --- Request/Response types ---

// StartGameRequest is the JSON body for POST /games.
type StartGameRequest struct {
	PlayerID string `json:"player_id"`
	Username string `json:"username"`
}

// StartGameResponse returns the new session ID with the first snapshot.
type StartGameResponse struct {
	GameID   string                `json:"game_id"`
	Snapshot model.AccountSnapshot `json:"snapshot"`
}

// TradeRequest is the JSON body for buy and partial-sell commands.
type TradeRequest struct {
	InstrumentID string          `json:"instrument_id"`
	Quantity     decimal.Decimal `json:"quantity"`
}

// SellAllRequest is the JSON body for POST .../sell-all.
type SellAllRequest struct {
	InstrumentID string `json:"instrument_id"`
}

// --- Handlers ---

// StartGame handles POST /api/v1/games
func (s *Service) StartGame(w http.ResponseWriter, r *http.Request) {
	var req StartGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.PlayerID == "" {
		writeError(w, "player_id is required", http.StatusBadRequest)
		return
	}

	sess, err := s.manager.Start(req.PlayerID)
	if err != nil {
		s.writeCommandError(w, err)
		return
	}

	s.mu.Lock()
	s.usernames[sess.ID] = req.Username
	s.mu.Unlock()

	metrics.ActiveSessions.Set(float64(s.manager.ActiveCount()))
	slog.Info("game started", "game_id", sess.ID, "player", req.PlayerID)

	respondJSON(w, http.StatusCreated, StartGameResponse{
		GameID:   sess.ID,
		Snapshot: sess.Snapshot(),
	})
}

// GetSnapshot handles GET /api/v1/games/{gameID}
func (s *Service) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Get(chi.URLParam(r, "gameID"))
	if err != nil {
		writeError(w, "game not found", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, sess.Snapshot())
}

// GetInstruments handles GET /api/v1/games/{gameID}/instruments
func (s *Service) GetInstruments(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Get(chi.URLParam(r, "gameID"))
	if err != nil {
		writeError(w, "game not found", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, sess.Quotes())
}

// GetTransactions handles GET /api/v1/games/{gameID}/transactions
func (s *Service) GetTransactions(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Get(chi.URLParam(r, "gameID"))
	if err != nil {
		writeError(w, "game not found", http.StatusNotFound)
		return
	}
	ledger := sess.Ledger()
	if ledger == nil {
		ledger = []model.Transaction{}
	}
	respondJSON(w, http.StatusOK, ledger)
}

// Buy handles POST /api/v1/games/{gameID}/buy
func (s *Service) Buy(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Get(chi.URLParam(r, "gameID"))
	if err != nil {
		writeError(w, "game not found", http.StatusNotFound)
		return
	}

	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.InstrumentID == "" {
		writeError(w, "instrument_id is required", http.StatusBadRequest)
		return
	}

	snap, err := sess.Buy(req.InstrumentID, req.Quantity)
	if err != nil {
		s.writeCommandError(w, err)
		return
	}

	metrics.TradesTotal.WithLabelValues(model.TxBuy).Inc()
	slog.Info("buy executed",
		"game_id", sess.ID,
		"instrument", req.InstrumentID,
		"qty", req.Quantity.String(),
	)
	s.broadcastFill(sess.ID, model.TxBuy, req.InstrumentID, req.Quantity)

	respondJSON(w, http.StatusOK, snap)
}

// Sell handles POST /api/v1/games/{gameID}/sell
func (s *Service) Sell(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Get(chi.URLParam(r, "gameID"))
	if err != nil {
		writeError(w, "game not found", http.StatusNotFound)
		return
	}

	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.InstrumentID == "" {
		writeError(w, "instrument_id is required", http.StatusBadRequest)
		return
	}

	snap, err := sess.SellPartial(req.InstrumentID, req.Quantity)
	if err != nil {
		s.writeCommandError(w, err)
		return
	}

	metrics.TradesTotal.WithLabelValues(model.TxSell).Inc()
	slog.Info("sell executed",
		"game_id", sess.ID,
		"instrument", req.InstrumentID,
		"qty", req.Quantity.String(),
	)
	s.broadcastFill(sess.ID, model.TxSell, req.InstrumentID, req.Quantity)

	respondJSON(w, http.StatusOK, snap)
}

// SellAll handles POST /api/v1/games/{gameID}/sell-all
func (s *Service) SellAll(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Get(chi.URLParam(r, "gameID"))
	if err != nil {
		writeError(w, "game not found", http.StatusNotFound)
		return
	}

	var req SellAllRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.InstrumentID == "" {
		writeError(w, "instrument_id is required", http.StatusBadRequest)
		return
	}

	snap, err := sess.SellAll(req.InstrumentID)
	if err != nil {
		s.writeCommandError(w, err)
		return
	}

	metrics.TradesTotal.WithLabelValues(model.TxSell).Inc()
	slog.Info("sell-all executed", "game_id", sess.ID, "instrument", req.InstrumentID)

	respondJSON(w, http.StatusOK, snap)
}

// ExpandLimit handles POST /api/v1/games/{gameID}/expand
func (s *Service) ExpandLimit(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Get(chi.URLParam(r, "gameID"))
	if err != nil {
		writeError(w, "game not found", http.StatusNotFound)
		return
	}

	snap, err := sess.ExpandLimit()
	if err != nil {
		s.writeCommandError(w, err)
		return
	}

	slog.Info("position limit expanded", "game_id", sess.ID, "max_positions", snap.MaxPositions)
	respondJSON(w, http.StatusOK, snap)
}

// AdvanceYear handles POST /api/v1/games/{gameID}/advance
func (s *Service) AdvanceYear(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Get(chi.URLParam(r, "gameID"))
	if err != nil {
		writeError(w, "game not found", http.StatusNotFound)
		return
	}

	snap, err := sess.AdvanceYear()
	if err != nil {
		s.writeCommandError(w, err)
		return
	}

	metrics.YearsAdvanced.Inc()
	slog.Info("year advanced", "game_id", sess.ID, "progress", snap.TransactionProgress)
	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:     "year_advanced",
			GameID:   sess.ID,
			Progress: snap.TransactionProgress,
		})
	}

	respondJSON(w, http.StatusOK, snap)
}

// EndGame handles POST /api/v1/games/{gameID}/end
func (s *Service) EndGame(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Get(chi.URLParam(r, "gameID"))
	if err != nil {
		writeError(w, "game not found", http.StatusNotFound)
		return
	}

	result, err := sess.EndGame()
	if err != nil {
		s.writeCommandError(w, err)
		return
	}

	metrics.GamesCompleted.Inc()
	metrics.ActiveSessions.Set(float64(s.manager.ActiveCount()))
	slog.Info("game ended",
		"game_id", sess.ID,
		"player", result.PlayerID,
		"final_assets", result.FinalAssets.String(),
		"profit", result.Profit.String(),
	)

	ctx := r.Context()

	s.mu.RLock()
	username := s.usernames[sess.ID]
	s.mu.RUnlock()
	if username == "" {
		username = result.PlayerID
	}

	if err := s.board.Submit(ctx, model.RankEntry{
		PlayerID:      result.PlayerID,
		Username:      username,
		TotalAssets:   result.FinalAssets,
		Profit:        result.Profit,
		ProfitPercent: result.ProfitPercent,
	}); err != nil {
		slog.Error("leaderboard submit failed", "game_id", sess.ID, "err", err)
	}

	if err := s.archive.SaveResult(ctx, result, sess.Ledger()); err != nil {
		slog.Error("archive save failed", "game_id", sess.ID, "err", err)
	}

	respondJSON(w, http.StatusOK, result)
}

// ResetGame handles POST /api/v1/games/{gameID}/reset
func (s *Service) ResetGame(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Reset(chi.URLParam(r, "gameID"))
	if err != nil {
		writeError(w, "game not found", http.StatusNotFound)
		return
	}

	metrics.ActiveSessions.Set(float64(s.manager.ActiveCount()))
	slog.Info("game reset", "game_id", sess.ID)
	respondJSON(w, http.StatusOK, sess.Snapshot())
}

// DeleteGame handles DELETE /api/v1/games/{gameID}
func (s *Service) DeleteGame(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")
	if err := s.manager.Remove(gameID); err != nil {
		writeError(w, "game not found", http.StatusNotFound)
		return
	}

	s.mu.Lock()
	delete(s.usernames, gameID)
	s.mu.Unlock()

	metrics.ActiveSessions.Set(float64(s.manager.ActiveCount()))
	slog.Info("game removed", "game_id", gameID)
	w.WriteHeader(http.StatusNoContent)
}

// GetLeaderboard handles GET /api/v1/leaderboard?limit=n
func (s *Service) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := s.board.Top(r.Context(), limit)
	if err != nil {
		writeError(w, "failed to load leaderboard", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.RankEntry{}
	}
	respondJSON(w, http.StatusOK, entries)
}

// GetResults handles GET /api/v1/results?limit=n
func (s *Service) GetResults(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	results, err := s.archive.Results(r.Context(), limit)
	if err != nil {
		writeError(w, "failed to load results", http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []model.GameResult{}
	}
	respondJSON(w, http.StatusOK, results)
}

// GetArchivedLedger handles GET /api/v1/results/{gameID}/ledger
func (s *Service) GetArchivedLedger(w http.ResponseWriter, r *http.Request) {
	ledger, err := s.archive.Ledger(r.Context(), chi.URLParam(r, "gameID"))
	if err != nil {
		writeError(w, "archived game not found", http.StatusNotFound)
		return
	}
	if ledger == nil {
		ledger = []model.Transaction{}
	}
	respondJSON(w, http.StatusOK, ledger)
}

// --- Helpers ---

func (s *Service) broadcastFill(gameID, tradeType, instrumentID string, qty decimal.Decimal) {
	if s.wsHub == nil {
		return
	}
	s.wsHub.Broadcast(WSMessage{
		Type:         "fill",
		GameID:       gameID,
		InstrumentID: instrumentID,
		TradeType:    tradeType,
		Quantity:     qty.String(),
	})
}

// writeCommandError maps engine errors to HTTP statuses: unknown
// instruments and positions are 404, business-rule rejections are 409,
// malformed quantities are 400.
func (s *Service) writeCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, market.ErrInstrumentNotFound),
		errors.Is(err, portfolio.ErrPositionNotFound):
		metrics.TradeRejections.WithLabelValues("not_found").Inc()
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, portfolio.ErrInsufficientFunds):
		metrics.TradeRejections.WithLabelValues("insufficient_funds").Inc()
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, portfolio.ErrPositionLimitExceeded):
		metrics.TradeRejections.WithLabelValues("position_limit").Inc()
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, portfolio.ErrInsufficientQuantity):
		metrics.TradeRejections.WithLabelValues("insufficient_quantity").Inc()
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, portfolio.ErrInvalidQuantity):
		metrics.TradeRejections.WithLabelValues("invalid_quantity").Inc()
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, game.ErrGameEnded):
		metrics.TradeRejections.WithLabelValues("game_ended").Inc()
		writeError(w, err.Error(), http.StatusConflict)
	default:
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

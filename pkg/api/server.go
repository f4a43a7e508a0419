package api

import (
	"encoding/json"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/p2pswap/swapd/pkg/swap"
)

// Server exposes the order lifecycle over REST and pushes order updates
// over WebSocket. It signs on behalf of one local actor session; the
// server is the actor's own agent, not a shared custodian.
type Server struct {
	coord  *swap.Coordinator
	actor  *swap.ActorSession
	router *mux.Router
	hub    *Hub
	log    *zap.SugaredLogger
}

func NewServer(coord *swap.Coordinator, actor *swap.ActorSession, log *zap.SugaredLogger) *Server {
	s := &Server{
		coord:  coord,
		actor:  actor,
		router: mux.NewRouter(),
		hub:    NewHub(log),
		log:    log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/orders", s.handleCreateOrder).Methods("POST")
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/orders/{id}/execute", s.handleExecuteOrder).Methods("POST")
	api.HandleFunc("/orders/{id}/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/actor", s.handleGetActor).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the routed handler without the listener, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the hub and blocks serving HTTP on addr.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	s.log.Infow("api_listening", "addr", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &swap.ValidationError{Field: "body", Reason: "invalid JSON"})
		return
	}

	params, err := parseCreateRequest(req)
	if err != nil {
		writeError(w, err)
		return
	}

	id, err := s.coord.CreateOrder(r.Context(), s.actor, params)
	if err != nil {
		writeError(w, err)
		return
	}

	s.broadcastOrder(r, id)
	writeJSON(w, http.StatusCreated, CreateOrderResponse{OrderID: uint64(id)})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}

	order, err := s.coord.QueryOrder(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (s *Server) handleExecuteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}

	receipt, err := s.coord.ExecuteOrder(r.Context(), s.actor, id)
	if err != nil {
		writeError(w, err)
		return
	}

	s.broadcastOrder(r, id)
	writeJSON(w, http.StatusOK, ReceiptResponse{Tx: string(receipt.Handle)})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}

	receipt, err := s.coord.CancelOrder(r.Context(), s.actor, id)
	if err != nil {
		writeError(w, err)
		return
	}

	s.broadcastOrder(r, id)
	writeJSON(w, http.StatusOK, ReceiptResponse{Tx: string(receipt.Handle)})
}

func (s *Server) handleGetActor(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"address": s.actor.Address().Hex(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// broadcastOrder re-reads the order after a confirmed flow and pushes the
// fresh state to subscribed WebSocket clients, so UIs do not have to poll.
func (s *Server) broadcastOrder(r *http.Request, id swap.OrderID) {
	order, err := s.coord.QueryOrder(r.Context(), id)
	if err != nil {
		s.log.Warnw("broadcast_read_failed", "order_id", uint64(id), "err", err)
		return
	}
	s.hub.BroadcastToChannel("orders", OrderUpdate{
		Channel: "orders",
		Order:   toOrderResponse(order),
	})
}

func orderIDFromPath(r *http.Request) (swap.OrderID, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, &swap.ValidationError{Field: "id", Reason: "must be a positive integer"}
	}
	return swap.OrderID(id), nil
}

func parseCreateRequest(req CreateOrderRequest) (swap.CreateParams, error) {
	var p swap.CreateParams

	if !common.IsHexAddress(req.TokenToSell) {
		return p, &swap.ValidationError{Field: "token_to_sell", Reason: "not a hex address"}
	}
	if !common.IsHexAddress(req.TokenToBuy) {
		return p, &swap.ValidationError{Field: "token_to_buy", Reason: "not a hex address"}
	}

	sellAmt, ok := new(big.Int).SetString(req.AmountToSell, 10)
	if !ok {
		return p, &swap.ValidationError{Field: "amount_to_sell", Reason: "not a decimal integer"}
	}
	buyAmt, ok := new(big.Int).SetString(req.AmountToBuy, 10)
	if !ok {
		return p, &swap.ValidationError{Field: "amount_to_buy", Reason: "not a decimal integer"}
	}

	p = swap.CreateParams{
		TokenToSell:  common.HexToAddress(req.TokenToSell),
		TokenToBuy:   common.HexToAddress(req.TokenToBuy),
		AmountToSell: sellAmt,
		AmountToBuy:  buyAmt,
	}
	return p, nil
}

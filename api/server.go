// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package api exposes a devnet over HTTP: the feeder gateway and gateway
// endpoints, the devnet control endpoints, a JSON-RPC service and metrics.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	cjson "github.com/ava-labs/avalanchego/utils/json"
	"github.com/gorilla/mux"
	"github.com/gorilla/rpc/v2"
	log "github.com/inconshreveable/log15"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ava-labs/l2devnet/chain"
	"github.com/ava-labs/l2devnet/devnet"
	"github.com/ava-labs/l2devnet/postman"
)

const (
	// ServiceName is the name the JSON-RPC service is registered under.
	ServiceName = "devnet"

	aliveMessage = "Alive!!!"
)

// Server routes HTTP requests to a devnet.
type Server struct {
	devnet *devnet.Devnet
	router *mux.Router
	log    log.Logger
}

// NewServer builds the routes of [d]. Metrics gathered by [gatherer] are
// served on /metrics.
func NewServer(d *devnet.Devnet, gatherer prometheus.Gatherer) (*Server, error) {
	s := &Server{
		devnet: d,
		router: mux.NewRouter(),
		log:    log.New("module", "api"),
	}

	rpcServer := rpc.NewServer()
	codec := cjson.NewCodec()
	rpcServer.RegisterCodec(codec, "application/json")
	rpcServer.RegisterCodec(codec, "application/json;charset=UTF-8")
	if err := rpcServer.RegisterService(&Service{devnet: d}, ServiceName); err != nil {
		return nil, err
	}
	s.router.Handle("/rpc", rpcServer).Methods(http.MethodPost)
	s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	for _, path := range []string{"/is_alive", "/gateway/is_alive", "/feeder_gateway/is_alive"} {
		s.router.HandleFunc(path, s.isAlive).Methods(http.MethodGet)
	}

	// gateway
	s.router.HandleFunc("/gateway/add_transaction", s.addTransaction).Methods(http.MethodPost)

	// feeder gateway
	s.router.HandleFunc("/feeder_gateway/call_contract", s.callContract).Methods(http.MethodPost)
	s.router.HandleFunc("/feeder_gateway/estimate_fee", s.estimateFee).Methods(http.MethodPost)
	s.router.HandleFunc("/feeder_gateway/get_block", s.getBlock).Methods(http.MethodGet)
	s.router.HandleFunc("/feeder_gateway/get_transaction", s.getTransaction).Methods(http.MethodGet)
	s.router.HandleFunc("/feeder_gateway/get_transaction_status", s.getTransactionStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/feeder_gateway/get_transaction_receipt", s.getTransactionReceipt).Methods(http.MethodGet)
	s.router.HandleFunc("/feeder_gateway/get_transaction_trace", s.getTransactionTrace).Methods(http.MethodGet)
	s.router.HandleFunc("/feeder_gateway/get_storage_at", s.getStorageAt).Methods(http.MethodGet)
	s.router.HandleFunc("/feeder_gateway/get_code", s.getCode).Methods(http.MethodGet)
	s.router.HandleFunc("/feeder_gateway/get_state_update", s.getStateUpdate).Methods(http.MethodGet)

	// devnet control
	s.router.HandleFunc("/dump", s.dump).Methods(http.MethodPost)
	s.router.HandleFunc("/load", s.load).Methods(http.MethodPost)
	s.router.HandleFunc("/restart", s.restart).Methods(http.MethodPost)
	s.router.HandleFunc("/increase_time", s.increaseTime).Methods(http.MethodPost)
	s.router.HandleFunc("/set_time", s.setTime).Methods(http.MethodPost)
	s.router.HandleFunc("/mint", s.mint).Methods(http.MethodPost)

	// postman
	s.router.HandleFunc("/postman/load_l1_messaging_contract", s.loadMessagingContract).Methods(http.MethodPost)
	s.router.HandleFunc("/postman/flush", s.flush).Methods(http.MethodPost)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) isAlive(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte(aliveMessage))
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
}

// badRequest marks errors in the shape of a request.
type badRequest struct{ err error }

func (b *badRequest) Error() string { return b.err.Error() }
func (b *badRequest) Unwrap() error { return b.err }

func invalid(err error) error { return &badRequest{err: err} }

// statusCode maps caller errors to 400 and everything else to 500.
func statusCode(err error) int {
	var (
		bad     *badRequest
		loadErr *devnet.LoadError
	)
	switch {
	case errors.As(err, &bad),
		devnet.IsValidationError(err),
		errors.As(err, &loadErr),
		errors.Is(err, postman.ErrInvalidRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusCode(err)
	if code == http.StatusInternalServerError && !errors.Is(err, chain.ErrNotFound) {
		s.log.Warn("request failed", "path", r.URL.Path, "err", err)
	}
	s.writeJSONStatus(w, code, &ErrorResponse{Message: err.Error(), StatusCode: code})
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	s.writeJSONStatus(w, http.StatusOK, v)
}

func (s *Server) writeJSONStatus(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("failed to write response", "err", err)
	}
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return invalid(err)
	}
	return nil
}

// decodeOptional is decode for endpoints whose body may be omitted, leaving
// [v] zeroed.
func decodeOptional(r *http.Request, v interface{}) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return invalid(err)
}

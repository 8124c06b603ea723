package transport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rpggio/sealab/internal/ledger"
)

// Server exposes a ledger.Ledger over JSON-RPC.
type Server struct {
	ledger ledger.Ledger
	logger *slog.Logger
}

// NewServer creates an HTTP router serving POST /rpc and GET /health.
func NewServer(l ledger.Ledger, logger *slog.Logger, authMiddleware func(http.Handler) http.Handler) *chi.Mux {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := chi.NewRouter()

	srv := &Server{ledger: l, logger: logger}

	r.Get("/health", srv.handleHealth)
	r.Group(func(r chi.Router) {
		if authMiddleware != nil {
			r.Use(authMiddleware)
		}
		r.Post("/rpc", srv.handleRPC)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ok, err := s.ledger.IsAvailable(r.Context())
	if err != nil || !ok {
		http.Error(w, "ledger unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	req, err := ParseRequest(r.Body)
	if err != nil {
		WriteError(w, nil, ErrInvalidReq, "invalid request", nil)
		return
	}

	ctx := r.Context()
	switch req.Method {
	case MethodIsAvailable:
		ok, err := s.ledger.IsAvailable(ctx)
		if err != nil {
			s.logger.Warn("ledger probe failed", "error", err)
			ok = false
		}
		WriteResult(w, req.ID, AvailabilityResult{Available: ok})

	case MethodGetData:
		var p KeyParams
		if !s.decodeParams(w, req, &p) {
			return
		}
		value, err := s.ledger.GetData(ctx, p.Key)
		if err != nil {
			s.writeLedgerError(w, req, ErrInternal, err)
			return
		}
		WriteResult(w, req.ID, DataResult{Value: value})

	case MethodSetData:
		var p SetParams
		if !s.decodeParams(w, req, &p) {
			return
		}
		receipt, err := s.ledger.SetData(ctx, p.Key, p.Value)
		if err != nil {
			s.writeLedgerError(w, req, ErrLedgerWrite, err)
			return
		}
		WriteResult(w, req.ID, receipt)

	default:
		WriteError(w, req.ID, ErrMethodNotFound, "method not found: "+req.Method, nil)
	}
}

func (s *Server) decodeParams(w http.ResponseWriter, req Request, dst interface{ key() string }) bool {
	if len(req.Params) == 0 {
		WriteError(w, req.ID, ErrInvalidParams, "params required", nil)
		return false
	}
	if err := json.Unmarshal(req.Params, dst); err != nil {
		WriteError(w, req.ID, ErrInvalidParams, "invalid params", err.Error())
		return false
	}
	if strings.TrimSpace(dst.key()) == "" {
		WriteError(w, req.ID, ErrInvalidParams, "key is required", nil)
		return false
	}
	return true
}

func (s *Server) writeLedgerError(w http.ResponseWriter, req Request, code int, err error) {
	if errors.Is(err, ledger.ErrUnavailable) {
		code = ErrLedgerUnavailable
	}
	s.logger.Warn("ledger call failed", "method", req.Method, "error", err)
	WriteError(w, req.ID, code, err.Error(), nil)
}

func (p *KeyParams) key() string { return p.Key }
func (p *SetParams) key() string { return p.Key }

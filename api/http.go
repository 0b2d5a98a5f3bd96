// Package api exposes the REST surface (spec §6 "HTTP API") and the
// WebSocket delivery feed. Grounded on teacher's rpc/server.go: an
// http.Server with explicit Read/Write/Idle timeouts, a bearer-token gate,
// and a MaxBytesReader body cap — re-routed here from teacher's JSON-RPC
// 2.0 envelope onto plain REST paths and status codes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nymtech/ephemera/core"
	"github.com/nymtech/ephemera/identity"
	"github.com/nymtech/ephemera/mempool"
	"github.com/nymtech/ephemera/membership"
)

const maxBodyBytes = 1 * 1024 * 1024

// Mempool is the subset of mempool.Mempool the API submits client messages
// into.
type Mempool interface {
	Submit(core.Message) error
}

// Storage is the subset of storage.BlockStore the API reads from.
type Storage interface {
	GetBlockByHash(hash identity.Hash256) (*core.Block, error)
	GetBlockByHeight(height uint64) (*core.Block, error)
	LastBlock() (*core.Block, error)
	GetCertificate(hash identity.Hash256) (*core.Certificate, error)
	GetMessage(id identity.Hash256) (*core.Message, error)
	MessageCount() (int, error)
}

// Config bundles the Server's dependencies and lifecycle settings.
type Config struct {
	Addr        string
	AuthToken   string // empty disables the bearer-token gate
	LocalPeerID identity.PeerID

	ThresholdFraction float64
	BlockIntervalMs   int64
	TickIntervalMs    int64
	StaleTimeoutMs    int64
}

// Server is the node's HTTP surface: REST endpoints plus the WS upgrade
// point, grounded on teacher's rpc.Server lifecycle (Start/Stop/Addr).
type Server struct {
	cfg     Config
	mempool Mempool
	storage Storage
	members membership.Provider
	hub     *hub

	httpServer *http.Server
}

// NewServer wires a Server ready to Start.
func NewServer(cfg Config, mp Mempool, store Storage, members membership.Provider) *Server {
	s := &Server{
		cfg:     cfg,
		mempool: mp,
		storage: store,
		members: members,
		hub:     newHub(),
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Hub exposes the broadcast.Subscriber the coordinator should Subscribe, so
// every delivery is pushed to connected WebSocket clients.
func (s *Server) Hub() *hub { return s.hub }

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /broadcast/submit_message", s.authGate(s.handleSubmitMessage))
	mux.HandleFunc("GET /broadcast/block/height/{height}", s.authGate(s.handleBlockByHeight))
	mux.HandleFunc("GET /broadcast/block/certificates/{hash}", s.authGate(s.handleCertificate))
	mux.HandleFunc("GET /broadcast/block/{hash}", s.authGate(s.handleBlockByHash))
	mux.HandleFunc("GET /broadcast/blocks/last", s.authGate(s.handleLastBlock))
	mux.HandleFunc("GET /node/health", s.handleHealth)
	mux.HandleFunc("GET /node/config", s.authGate(s.handleConfig))
	mux.HandleFunc("GET /ws/deliveries", s.authGate(s.handleWS))
	return mux
}

// Start binds and begins serving in the background, matching teacher's
// rpc.Server.Start (synchronous bind, asynchronous Serve).
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[api] serve error: %v", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the server down with a 5-second deadline.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.cfg.Addr }

func (s *Server) authGate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AuthToken != "" {
			got := r.Header.Get("Authorization")
			if got != "Bearer "+s.cfg.AuthToken {
				writeError(w, http.StatusUnauthorized, "missing or invalid bearer token")
				return
			}
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		next(w, r)
	}
}

func (s *Server) handleSubmitMessage(w http.ResponseWriter, r *http.Request) {
	var req submitMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	msg := req.toMessage()
	id, err := requestIDOf(msg)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed message: "+err.Error())
		return
	}
	if _, err := s.storage.GetMessage(id); err == nil {
		writeError(w, http.StatusConflict, "message already certified in a delivered block")
		return
	} else if !errors.Is(err, core.ErrNotFound) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err := s.mempool.Submit(msg); err != nil {
		switch {
		case errors.Is(err, mempool.ErrBadSignature):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, mempool.ErrRejectedByApp):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, mempool.ErrFull):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			writeError(w, http.StatusServiceUnavailable, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, submitMessageResponse{RequestID: id.String()})
}

func (s *Server) handleBlockByHash(w http.ResponseWriter, r *http.Request) {
	hash, err := identity.HashFromHex(r.PathValue("hash"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed hash")
		return
	}
	block, err := s.storage.GetBlockByHash(hash)
	if errors.Is(err, core.ErrNotFound) {
		writeError(w, http.StatusNotFound, "block not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.respondBlock(w, block)
}

func (s *Server) handleBlockByHeight(w http.ResponseWriter, r *http.Request) {
	height, err := strconv.ParseUint(r.PathValue("height"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed height")
		return
	}
	block, err := s.storage.GetBlockByHeight(height)
	if errors.Is(err, core.ErrNotFound) {
		writeError(w, http.StatusNotFound, "block not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.respondBlock(w, block)
}

func (s *Server) handleCertificate(w http.ResponseWriter, r *http.Request) {
	hash, err := identity.HashFromHex(r.PathValue("hash"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed hash")
		return
	}
	cert, err := s.storage.GetCertificate(hash)
	if errors.Is(err, core.ErrNotFound) {
		writeError(w, http.StatusNotFound, "certificate not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cert)
}

func (s *Server) handleLastBlock(w http.ResponseWriter, r *http.Request) {
	block, err := s.storage.LastBlock()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if block == nil {
		writeError(w, http.StatusNotFound, "no blocks delivered yet")
		return
	}
	s.respondBlock(w, block)
}

func (s *Server) respondBlock(w http.ResponseWriter, block *core.Block) {
	hash, err := block.Hash()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	cert, err := s.storage.GetCertificate(hash)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, blockResponse{Block: block, Certificate: cert})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	group, err := s.members.Current()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	msgCount, err := s.storage.MessageCount()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:            "ok",
		PeerID:            string(s.cfg.LocalPeerID),
		MembersKnown:      group.Len(),
		MessagesCertified: msgCount,
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, configResponse{
		PeerID:            string(s.cfg.LocalPeerID),
		ThresholdFraction: s.cfg.ThresholdFraction,
		BlockIntervalMs:   s.cfg.BlockIntervalMs,
		TickIntervalMs:    s.cfg.TickIntervalMs,
		StaleTimeoutMs:    s.cfg.StaleTimeoutMs,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[api] write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, errorResponse{Code: status, Reason: reason})
}

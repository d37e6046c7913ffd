package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"FinMitra/internal/advisor"
	xerrors "FinMitra/internal/errors"
	"FinMitra/internal/observability/metrics"
	"FinMitra/internal/profile"
	"FinMitra/internal/session"
)

// CodeRequestDecode marks malformed request bodies.
const CodeRequestDecode xerrors.Code = "REQUEST_DECODE_FAILED"

func init() {
	xerrors.Register(CodeRequestDecode, xerrors.Attributes{
		Message:   "request body could not be decoded",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
}

// Server exposes the advisor over REST.
type Server struct {
	addr            string
	advisor         *advisor.Advisor
	allowedOrigins  []string
	shutdownTimeout time.Duration
}

// ServerOption configures optional server behaviour.
type ServerOption func(*Server)

// WithAllowedOrigins restricts CORS to the given origins. The default
// allows any origin, matching what the mobile clients expect.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithShutdownTimeout bounds graceful shutdown.
func WithShutdownTimeout(timeout time.Duration) ServerOption {
	return func(s *Server) {
		if timeout > 0 {
			s.shutdownTimeout = timeout
		}
	}
}

// NewServer builds the API server.
func NewServer(addr string, adv *advisor.Advisor, opts ...ServerOption) *Server {
	s := &Server{
		addr:            addr,
		advisor:         adv,
		shutdownTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler assembles the route table. Split out from Start so tests can
// drive the full middleware stack through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/api/v1/plans", s.instrument("plans", s.handlePlans))
	mux.HandleFunc("/api/v1/tips", s.instrument("tips", s.handleTips))
	return s.withCORS(mux)
}

// Start serves until the context is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type planRequest struct {
	Profile   profile.Raw `json:"profile"`
	SessionID string      `json:"session_id"`
	Message   string      `json:"message"`
}

type planResponse struct {
	Success   bool           `json:"success"`
	Plan      string         `json:"plan,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	History   []session.Turn `json:"history,omitempty"`
	Error     string         `json:"error,omitempty"`
	Code      string         `json:"code,omitempty"`
}

func (s *Server) handlePlans(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "only POST is supported", http.StatusMethodNotAllowed)
		return
	}
	if s.advisor == nil {
		writeFailure(w, xerrors.New(xerrors.CodeInitializationFailure, ""))
		return
	}

	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, xerrors.Wrap(CodeRequestDecode, err, "decode plan request"))
		return
	}

	normalized, err := profile.Normalize(req.Profile)
	if err != nil {
		writeFailure(w, err)
		return
	}

	result, err := s.advisor.GeneratePlan(r.Context(), advisor.PlanRequest{
		Profile:    normalized,
		SessionKey: req.SessionID,
		Message:    req.Message,
	})
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, planResponse{
		Success:   true,
		Plan:      result.Plan,
		SessionID: result.SessionKey,
		History:   result.History,
	})
}

type tipRequest struct {
	Profile profile.Raw `json:"profile"`
}

type tipResponse struct {
	Success bool   `json:"success"`
	Tip     string `json:"tip,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

func (s *Server) handleTips(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "only POST is supported", http.StatusMethodNotAllowed)
		return
	}
	if s.advisor == nil {
		writeFailure(w, xerrors.New(xerrors.CodeInitializationFailure, ""))
		return
	}

	var req tipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, xerrors.Wrap(CodeRequestDecode, err, "decode tip request"))
		return
	}

	normalized, err := profile.Normalize(req.Profile)
	if err != nil {
		writeFailure(w, err)
		return
	}

	tip, err := s.advisor.GenerateTip(r.Context(), normalized)
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tipResponse{Success: true, Tip: tip})
}

// instrument wraps a handler with request metrics.
func (s *Server) instrument(name string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(recorder, r)
		metrics.ObserveRequest(name, r.Method, recorder.status, time.Since(start))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withCORS answers preflight requests and stamps response headers. Mobile
// web clients call this API from arbitrary origins.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := "*"
		if len(s.allowedOrigins) > 0 {
			origin = ""
			requested := r.Header.Get("Origin")
			for _, allowed := range s.allowedOrigins {
				if allowed == requested {
					origin = requested
					break
				}
			}
		}
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeFailure maps coded errors onto HTTP statuses. Every failure body
// carries success=false plus the code so clients can branch without parsing
// messages.
func writeFailure(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch xerrors.CodeOf(err) {
	case xerrors.CodeValidation, xerrors.CodeInvalidArgument, CodeRequestDecode:
		status = http.StatusBadRequest
	case xerrors.CodeTimeout:
		status = http.StatusGatewayTimeout
	case xerrors.CodeGeneration:
		status = http.StatusBadGateway
	case xerrors.CodeInitializationFailure:
		status = http.StatusServiceUnavailable
	}

	message := err.Error()
	if coded, ok := xerrors.From(err); ok {
		message = coded.Message()
	}
	writeJSON(w, status, planResponse{
		Success: false,
		Error:   message,
		Code:    string(xerrors.CodeOf(err)),
	})
}

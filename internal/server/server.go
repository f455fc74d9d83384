package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/audiolibrelab/coffeehunt/internal/config"
	"github.com/audiolibrelab/coffeehunt/internal/metrics"
	"github.com/audiolibrelab/coffeehunt/internal/service"
	"github.com/audiolibrelab/coffeehunt/internal/tracking"
)

// Server exposes the hunt controls over HTTP for the kiosk UI
type Server struct {
	service service.Service
	cfg     *config.Config
	port    string
	limiter *rate.Limiter
}

// GenericResponse represents a generic API response
type GenericResponse struct {
	Success  bool                  `json:"success"`
	Message  string                `json:"message"`
	Error    string                `json:"error,omitempty"`
	Notice   service.Notice        `json:"notice,omitempty"`
	Path     string                `json:"path,omitempty"`
	Artifact *service.ArtifactInfo `json:"artifact,omitempty"`
	Status   *service.Status       `json:"status,omitempty"`
}

// StartRequest is the optional body of POST /api/session/start
type StartRequest struct {
	Facing string `json:"facing"`
}

// New creates a new web server instance
func New(svc service.Service, cfg *config.Config) *Server {
	burst := cfg.Server.IntentBurst
	limit := rate.Limit(cfg.Server.IntentRate)
	if cfg.Server.IntentRate <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}

	return &Server{
		service: svc,
		cfg:     cfg,
		port:    cfg.Server.Port,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Router builds the route table
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/events", s.handleEvents).Methods(http.MethodGet)
	r.HandleFunc("/api/artifacts/download", s.handleArtifactDownload).Methods(http.MethodGet)
	r.HandleFunc("/api/artifacts/{id}", s.handleArtifact).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	intents := r.PathPrefix("/api").Methods(http.MethodPost).Subrouter()
	intents.Use(s.rateLimit)
	intents.HandleFunc("/session/start", s.handleStartSession)
	intents.HandleFunc("/session/stop", s.handleStopSession)
	intents.HandleFunc("/camera/toggle", s.handleToggleCamera)
	intents.HandleFunc("/recording/start", s.handleStartRecording)
	intents.HandleFunc("/recording/stop", s.handleStopRecording)
	intents.HandleFunc("/share", s.handleShare)
	intents.HandleFunc("/download", s.handleDownload)

	return r
}

// Start serves until ctx is done
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Server shutdown failed", "error", err)
		}
	}()

	localIP := getLocalIP()

	slog.Info("Starting Coffee Hunt Web Server",
		"port", s.port,
		"local_url", fmt.Sprintf("http://%s:%s", localIP, s.port),
		"localhost_url", fmt.Sprintf("http://localhost:%s", s.port))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			metrics.IntentsTotal.WithLabelValues(r.URL.Path, "rate_limited").Inc()
			s.sendErrorResponse(w, http.StatusTooManyRequests, "Too many requests", "path", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleIndex serves the control page
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	io.WriteString(w, indexHTML)
}

// handleStatus returns the current orchestrator snapshot
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, s.service.Status())
}

// handleStartSession starts a new round, optionally with an explicit camera
func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	facing := s.service.Status().CameraMode

	var req StartRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.sendErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
			return
		}
	}
	if req.Facing == "" {
		req.Facing = r.URL.Query().Get("facing")
	}
	if req.Facing != "" {
		parsed, err := tracking.ParseFacing(req.Facing)
		if err != nil {
			s.sendErrorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
		facing = parsed
	}

	// The session outlives the request
	if err := s.service.Start(context.WithoutCancel(r.Context()), facing); err != nil {
		metrics.IntentsTotal.WithLabelValues("start", "failed").Inc()
		s.sendErrorResponse(w, startErrorStatus(err), fmt.Sprintf("Failed to start: %v", err), "operation", "start", "facing", facing)
		return
	}

	metrics.IntentsTotal.WithLabelValues("start", "ok").Inc()
	s.sendStatus(w, fmt.Sprintf("Hunting with %s camera", facing))
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Stop(context.WithoutCancel(r.Context())); err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError, fmt.Sprintf("Failed to stop: %v", err), "operation", "stop")
		return
	}
	metrics.IntentsTotal.WithLabelValues("stop", "ok").Inc()
	s.sendStatus(w, "Session stopped")
}

func (s *Server) handleToggleCamera(w http.ResponseWriter, r *http.Request) {
	if err := s.service.ToggleCamera(context.WithoutCancel(r.Context())); err != nil {
		metrics.IntentsTotal.WithLabelValues("toggle_camera", "failed").Inc()
		s.sendErrorResponse(w, startErrorStatus(err), fmt.Sprintf("Failed to switch camera: %v", err), "operation", "toggle_camera")
		return
	}
	metrics.IntentsTotal.WithLabelValues("toggle_camera", "ok").Inc()
	s.sendStatus(w, fmt.Sprintf("Switched to %s camera", s.service.Status().CameraMode))
}

func (s *Server) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	if !s.service.StartRecordingManually(r.Context()) {
		metrics.IntentsTotal.WithLabelValues("start_recording", "ignored").Inc()
		st := s.service.Status()
		s.sendJSON(w, http.StatusOK, GenericResponse{
			Success: false,
			Message: "Recording not started",
			Status:  &st,
		})
		return
	}
	metrics.IntentsTotal.WithLabelValues("start_recording", "ok").Inc()
	s.sendStatus(w, "Recording started")
}

func (s *Server) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	if a := s.service.StopRecordingManually(); a == nil {
		metrics.IntentsTotal.WithLabelValues("stop_recording", "ignored").Inc()
		s.sendStatus(w, "Not recording")
		return
	}
	metrics.IntentsTotal.WithLabelValues("stop_recording", "ok").Inc()
	s.sendStatus(w, "Recording stopped")
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	notice := s.service.ShareArtifact(r.Context())
	st := s.service.Status()
	resp := GenericResponse{
		Success:  notice == "",
		Message:  "Video shared",
		Notice:   notice,
		Artifact: st.Artifact,
	}
	if notice != "" {
		resp.Message = string(notice)
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// handleDownload saves the artifact on the host
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	path, notice := s.service.DownloadArtifact(r.Context())
	resp := GenericResponse{
		Success: notice == "",
		Message: "Video saved",
		Notice:  notice,
		Path:    path,
	}
	if notice != "" {
		resp.Message = string(notice)
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// handleArtifactDownload sends the latest artifact as a file attachment
func (s *Server) handleArtifactDownload(w http.ResponseWriter, r *http.Request) {
	a := s.service.Artifact()
	if a == nil {
		s.sendJSON(w, http.StatusNotFound, GenericResponse{
			Success: false,
			Message: string(service.NoticeNoRecording),
			Notice:  service.NoticeNoRecording,
		})
		return
	}

	filename := s.cfg.Share.Filename
	w.Header().Set("Content-Type", a.MediaType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", a.Size))

	if _, err := io.Copy(w, a.Reader()); err != nil {
		slog.Error("Error serving artifact download", "artifact_id", a.ID, "error", err)
	}
}

// handleArtifact streams an artifact by id, with range support
func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid artifact id", http.StatusBadRequest)
		return
	}

	a, ok := s.service.LookupArtifact(id)
	if !ok {
		http.Error(w, "Artifact not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", a.MediaType)
	http.ServeContent(w, r, "", a.CreatedAt, a.Reader())
}

func startErrorStatus(err error) int {
	switch {
	case errors.Is(err, tracking.ErrCameraDenied):
		return http.StatusForbidden
	case errors.Is(err, context.Canceled):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Server) sendStatus(w http.ResponseWriter, message string) {
	st := s.service.Status()
	s.sendJSON(w, http.StatusOK, GenericResponse{
		Success: true,
		Message: message,
		Status:  &st,
	})
}

func (s *Server) sendJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// sendErrorResponse sends a JSON error response and logs it with context
func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...interface{}) {
	// Log the error with structured context
	logFields := []interface{}{"error_message", errorMsg, "status_code", statusCode}
	if len(logContext) > 0 {
		logFields = append(logFields, logContext...)
	}
	slog.Error("Sending error response to client", logFields...)

	s.sendJSON(w, statusCode, GenericResponse{
		Success: false,
		Error:   errorMsg,
	})
}

func getLocalIP() string {
	// Try to connect to a remote address to determine local IP
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}

package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/boblangley/artifact-forge/internal/applier"
	"github.com/boblangley/artifact-forge/internal/config"
	"github.com/boblangley/artifact-forge/internal/parser"
	"github.com/boblangley/artifact-forge/internal/types"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 4 << 20

// previewCSP puts preview documents on an opaque origin so generated code
// cannot call the API with the user's credentials.
const previewCSP = "sandbox allow-scripts"

// HTTPServer serves the JSON API, the preview document and the preview
// WebSocket stream.
type HTTPServer struct {
	pipeline *Pipeline
	router   chi.Router
	logger   *slog.Logger
}

// NewHTTPServer creates the HTTP surface for p.
func NewHTTPServer(p *Pipeline) *HTTPServer {
	s := &HTTPServer{
		pipeline: p,
		logger:   p.logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/apply", s.handleApply)
		r.Post("/parse", s.handleParse)
		r.Post("/blocks", s.handleBlocks)
		r.Post("/preview", s.handlePublish)
		r.Post("/preview/render", s.handleRender)
		r.Post("/preview/module", s.handleRenderModule)
		r.Get("/prompt", s.handlePrompt)
		r.Get("/applies", s.handleApplies)
		r.Get("/routes", s.handleRoutes)
		r.Get("/host/blocks", s.handleHostBlocks)
	})
	r.Get("/preview", s.handlePreviewDocument)
	r.Get("/ws/preview", s.handlePreviewWS)

	s.router = r
	return s
}

// Handler returns the routed handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

type contentRequest struct {
	Content string `json:"content"`
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (s *HTTPServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		s.sendJSON(w, errorBody{Error: "Invalid JSON body", Details: err.Error()}, http.StatusBadRequest)
		return false
	}
	return true
}

func (s *HTTPServer) sendJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *HTTPServer) sendHTML(w http.ResponseWriter, doc string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Security-Policy", previewCSP)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, doc)
}

// applyStatus maps an apply failure to an HTTP status.
func applyStatus(err error) int {
	if applier.KindOf(err) == applier.KindBadInput {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *HTTPServer) handleApply(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.pipeline.Applier.Apply(r.Context(), req.Content)
	if err != nil {
		body := errorBody{Error: applier.MsgInternal}
		var ae *applier.Error
		if errors.As(err, &ae) {
			body = errorBody{Error: ae.Message, Details: ae.Details()}
		}
		if applyStatus(err) == http.StatusInternalServerError {
			s.logger.Error("apply failed", "error", err)
		}
		s.sendJSON(w, body, applyStatus(err))
		return
	}
	s.sendJSON(w, result, http.StatusOK)
}

func (s *HTTPServer) handleParse(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if !s.decode(w, r, &req) {
		return
	}

	artifact, err := parser.ParseArtifact(req.Content)
	if err != nil {
		s.sendJSON(w, errorBody{Error: applier.MsgUnparseable}, http.StatusBadRequest)
		return
	}
	s.sendJSON(w, artifact, http.StatusOK)
}

func (s *HTTPServer) handleBlocks(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if !s.decode(w, r, &req) {
		return
	}

	blocks := parser.SplitBlocks(req.Content)
	if blocks == nil {
		blocks = []types.Block{}
	}
	s.sendJSON(w, map[string]any{"blocks": blocks}, http.StatusOK)
}

func (s *HTTPServer) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if !s.decode(w, r, &req) {
		return
	}

	if _, err := s.pipeline.Publish(r.URL.Query().Get("channel"), req); err != nil {
		s.sendJSON(w, errorBody{Error: "No code block found"}, http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type renderRequest struct {
	Code    string `json:"code"`
	Loading bool   `json:"loading,omitempty"`
}

func (s *HTTPServer) handleRender(w http.ResponseWriter, r *http.Request) {
	var req renderRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.sendHTML(w, s.pipeline.Renderer.Render(req.Code, req.Loading))
}

func (s *HTTPServer) handleRenderModule(w http.ResponseWriter, r *http.Request) {
	var req ModuleRequest
	if !s.decode(w, r, &req) {
		return
	}

	doc, err := s.pipeline.RenderModule(req)
	if err != nil {
		s.sendJSON(w, errorBody{Error: "No code block found"}, http.StatusBadRequest)
		return
	}
	s.sendHTML(w, doc)
}

func (s *HTTPServer) handlePreviewDocument(w http.ResponseWriter, r *http.Request) {
	s.sendHTML(w, s.pipeline.RenderLatest(r.URL.Query().Get("channel")))
}

func (s *HTTPServer) handlePrompt(w http.ResponseWriter, r *http.Request) {
	t := config.ParsePromptType(r.URL.Query().Get("type"))
	s.sendJSON(w, map[string]string{
		"type":   string(t),
		"prompt": s.pipeline.Prompts.Get(t),
	}, http.StatusOK)
}

func (s *HTTPServer) handleApplies(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.sendJSON(w, errorBody{Error: "limit must be a non-negative integer"}, http.StatusBadRequest)
			return
		}
		limit = n
	}

	applies, err := s.pipeline.ListApplies(r.Context(), limit)
	if err != nil {
		s.logger.Error("list applies failed", "error", err)
		s.sendJSON(w, errorBody{Error: applier.MsgInternal}, http.StatusInternalServerError)
		return
	}
	s.sendJSON(w, map[string]any{"applies": applies}, http.StatusOK)
}

func (s *HTTPServer) handleRoutes(w http.ResponseWriter, r *http.Request) {
	routes, err := s.pipeline.Routes(r.Context())
	if err != nil {
		s.logger.Error("list routes failed", "error", err)
		s.sendJSON(w, errorBody{Error: applier.MsgInternal}, http.StatusInternalServerError)
		return
	}
	s.sendJSON(w, map[string]any{"routes": routes}, http.StatusOK)
}

func (s *HTTPServer) handleHostBlocks(w http.ResponseWriter, r *http.Request) {
	blocks, err := s.pipeline.HostBlocks()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.sendJSON(w, errorBody{Error: "Host page not found"}, http.StatusNotFound)
			return
		}
		s.logger.Error("read host blocks failed", "error", err)
		s.sendJSON(w, errorBody{Error: applier.MsgInternal}, http.StatusInternalServerError)
		return
	}
	s.sendJSON(w, map[string]any{"blocks": blocks}, http.StatusOK)
}

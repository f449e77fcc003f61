// Package server is the operator dashboard over the store and workspace.
package server

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"github.com/TobiSchelling/reelsmith/internal/database"
	"github.com/TobiSchelling/reelsmith/internal/moderate"
	"github.com/TobiSchelling/reelsmith/internal/sanitize"
	"github.com/TobiSchelling/reelsmith/internal/script"
	"github.com/TobiSchelling/reelsmith/internal/workspace"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

const (
	indexCandidates = 20
	indexRuns       = 10
)

// Server is the HTTP dashboard.
type Server struct {
	db     *database.DB
	ws     *workspace.Workspace
	logger *zap.Logger
	pages  map[string]*template.Template
	router chi.Router
}

// New creates a new Server.
func New(db *database.DB, ws *workspace.Workspace, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
		"bytes": func(n int64) string { return humanize.Bytes(uint64(n)) },
		"ago":   func(unix int64) string { return humanize.Time(time.Unix(unix, 0)) },
		"since": sinceTimestamp,
		"join":  strings.Join,
		"score": func(f float64) string { return humanize.FormatFloat("#,###.##", f) },
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone so {{define "content"}} does not collide.
	pageNames := []string{"index.html", "candidate.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{db: db, ws: ws, logger: logger, pages: pages}
	s.router = s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	staticSub, _ := fs.Sub(staticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))
	r.Handle("/outputs/*", http.StripPrefix("/outputs/",
		http.FileServer(http.Dir(s.ws.Path(workspace.Output, "")))))

	r.Get("/", s.handleIndex)
	r.Get("/candidate/{id}", s.handleCandidate)

	r.Route("/api", func(r chi.Router) {
		r.Get("/flagged", s.handleListFlagged)
		r.Post("/flagged/{id}/resolve", s.handleResolve)
		r.Get("/outputs", s.handleListOutputs)
		r.Get("/candidates", s.handleListCandidates)
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)))
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.GetStats()
	if err != nil {
		s.serverError(w, "loading stats", err)
		return
	}
	flags, err := s.db.ListFlags()
	if err != nil {
		s.serverError(w, "listing flags", err)
		return
	}
	top, err := s.db.TopCandidates(indexCandidates)
	if err != nil {
		s.serverError(w, "listing candidates", err)
		return
	}
	runs, err := s.db.RecentRuns(indexRuns)
	if err != nil {
		s.serverError(w, "listing runs", err)
		return
	}
	outputs, err := s.ws.ListFiles(workspace.Output, ".mp4")
	if err != nil {
		s.serverError(w, "listing outputs", err)
		return
	}

	s.render(w, "index.html", map[string]any{
		"Stats":      stats,
		"Flags":      flags,
		"Candidates": top,
		"Runs":       runs,
		"Outputs":    outputs,
	})
}

func (s *Server) handleCandidate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := s.db.GetCandidate(id)
	if err != nil {
		s.serverError(w, "loading candidate", err)
		return
	}
	if c == nil {
		http.NotFound(w, r)
		return
	}

	var content *sanitize.Canonical
	for _, area := range []workspace.Area{workspace.Canonical, workspace.Quarantine} {
		var cc sanitize.Canonical
		if err := s.ws.ReadJSON(area, id, &cc); err == nil {
			content = &cc
			break
		}
	}
	var sc *script.Script
	if loaded, err := script.Load(s.ws, id); err == nil {
		sc = &loaded
	}
	flag, err := s.db.GetFlag(id)
	if err != nil {
		s.serverError(w, "loading flag", err)
		return
	}

	s.render(w, "candidate.html", map[string]any{
		"Candidate": c,
		"Content":   content,
		"Script":    sc,
		"Flag":      flag,
		"HasVideo":  s.ws.Exists(workspace.Output, id+".mp4"),
	})
}

type flagJSON struct {
	CandidateID           string   `json:"candidate_id"`
	Reasons               []string `json:"reasons"`
	FlaggedAt             string   `json:"flagged_at"`
	QuarantinedContentRef string   `json:"quarantined_content_ref"`
}

func (s *Server) handleListFlagged(w http.ResponseWriter, r *http.Request) {
	flags, err := s.db.ListFlags()
	if err != nil {
		s.serverError(w, "listing flags", err)
		return
	}
	out := make([]flagJSON, 0, len(flags))
	for _, f := range flags {
		out = append(out, flagJSON{
			CandidateID:           f.CandidateID,
			Reasons:               f.Reasons,
			FlaggedAt:             f.FlaggedAt,
			QuarantinedContentRef: f.QuarantinedContentRef,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ok, err := moderate.Resolve(s.db, s.ws, id)
	if err != nil {
		s.serverError(w, "resolving flag", err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "flag not found"})
		return
	}
	s.logger.Info("flag resolved", zap.String("id", id))
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved", "id": id})
}

type outputJSON struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	Modified string `json:"modified"`
	URL      string `json:"url"`
}

func (s *Server) handleListOutputs(w http.ResponseWriter, r *http.Request) {
	files, err := s.ws.ListFiles(workspace.Output, ".mp4")
	if err != nil {
		s.serverError(w, "listing outputs", err)
		return
	}
	out := make([]outputJSON, 0, len(files))
	for _, f := range files {
		out = append(out, outputJSON{
			Name:     f.Name,
			Size:     f.Size,
			Modified: database.Timestamp(time.Unix(f.ModTime, 0)),
			URL:      "/outputs/" + f.Name,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type candidateJSON struct {
	ID               string  `json:"id"`
	Source           string  `json:"source"`
	Title            string  `json:"title"`
	Author           string  `json:"author"`
	Upvotes          int     `json:"upvotes"`
	Comments         int     `json:"comments"`
	DiscoveredAt     string  `json:"discovered_at"`
	ViralityScore    float64 `json:"virality_score"`
	ModerationStatus string  `json:"moderation_status"`
}

func (s *Server) handleListCandidates(w http.ResponseWriter, r *http.Request) {
	candidates, err := s.db.TopCandidates(0)
	if err != nil {
		s.serverError(w, "listing candidates", err)
		return
	}
	out := make([]candidateJSON, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, candidateJSON{
			ID:               c.ID,
			Source:           c.Source,
			Title:            c.Title,
			Author:           c.Author,
			Upvotes:          c.UpvoteCount,
			Comments:         c.CommentCount,
			DiscoveredAt:     c.DiscoveredAt,
			ViralityScore:    c.ViralityScore,
			ModerationStatus: c.ModerationStatus,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		s.serverError(w, "template lookup", fmt.Errorf("template %s not found", name))
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		s.serverError(w, "rendering "+name, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

func (s *Server) serverError(w http.ResponseWriter, what string, err error) {
	s.logger.Error(what, zap.Error(err))
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

func sinceTimestamp(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return humanize.Time(t)
}

// NewHTTPServer builds the dashboard listener bound to localhost:port.
func NewHTTPServer(db *database.DB, ws *workspace.Workspace, port int, logger *zap.Logger) (*http.Server, error) {
	srv, err := New(db, ws, logger)
	if err != nil {
		return nil, err
	}
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	return &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

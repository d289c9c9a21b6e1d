package main

import (
	"context"
	"crypto/rand"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"retouch-ai/internal/config"
	"retouch-ai/internal/editor"
	"retouch-ai/internal/gemini"
	"retouch-ai/internal/httpclient"
	"retouch-ai/internal/session"
)

//go:embed static/*
var staticFS embed.FS

const sessionCookie = "retouch_session"

type server struct {
	store          *session.Store
	logger         *slog.Logger
	maxUploadBytes int64
	requestTimeout time.Duration
}

type apiError struct {
	Error string `json:"error"`
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))

	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout,
	})

	gem := gemini.New(gemini.Options{
		APIKey:     cfg.GeminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		APIVersion: cfg.GeminiAPIVersion,
		Model:      cfg.GeminiImageModel,
		HTTPClient: httpClient,
		Logger:     logger,
	})

	store := session.NewStore(session.Options{
		TTL: cfg.SessionTTL,
		New: func() *editor.Session {
			return editor.NewSession(editor.Options{Client: gem, Logger: logger})
		},
	})

	s := &server{
		store:          store,
		logger:         logger,
		maxUploadBytes: cfg.MaxUploadBytes,
		requestTimeout: cfg.RequestTimeout,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/image", s.handleImage)
	mux.HandleFunc("/api/edit", s.handleEdit)
	mux.HandleFunc("/api/clear", s.handleClear)
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/download", s.handleDownload)

	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	mux.Handle("/", http.FileServer(http.FS(staticSub)))

	srv := &http.Server{
		Addr:              cfg.WebAddr,
		Handler:           withLogging(mux, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       90 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("web started", "addr", cfg.WebAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if removed := store.Prune(time.Now()); removed > 0 {
					logger.Info("pruned idle sessions", "count", removed)
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
	}
}

func (s *server) handleImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, apiError{Error: "method not allowed"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid multipart form"})
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "missing image"})
		return
	}
	defer file.Close()

	imgBytes, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "failed to read image"})
		return
	}

	sess := s.session(w, r)
	if err := sess.LoadImage(imgBytes, header.Header.Get("Content-Type"), header.Filename); err != nil {
		if errors.Is(err, editor.ErrUnsupportedImage) {
			writeJSON(w, http.StatusBadRequest, apiError{Error: "unsupported image type, use PNG, JPEG or WEBP"})
			return
		}
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, sess.View())
}

func (s *server) handleEdit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, apiError{Error: "method not allowed"})
		return
	}

	sess := s.session(w, r)
	sess.SetPrompt(r.FormValue("prompt"))

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	err := sess.Submit(ctx)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, sess.View())
	case errors.Is(err, editor.ErrBusy):
		writeJSON(w, http.StatusConflict, apiError{Error: "an edit is already in progress"})
	case errors.Is(err, editor.ErrNoSource), errors.Is(err, editor.ErrEmptyPrompt):
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
	default:
		// Remote failure: the error is recorded in the session view so the
		// page can show the banner and keep the rest of the state.
		s.logger.Error("edit failed", "err", err)
		writeJSON(w, http.StatusOK, sess.View())
	}
}

func (s *server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, apiError{Error: "method not allowed"})
		return
	}

	sess := s.session(w, r)
	sess.Clear()
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session(w, r).View())
}

func (s *server) handleDownload(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)

	data, mimeType, err := sess.EditedImage()
	if err != nil {
		writeJSON(w, http.StatusNotFound, apiError{Error: "no edited image"})
		return
	}

	name := sess.View().DownloadName
	if name == "" {
		name = "edited-image.png"
	}

	w.Header().Set("content-type", mimeType)
	w.Header().Set("content-disposition", `attachment; filename="`+name+`"`)
	_, _ = w.Write(data)
}

func (s *server) session(w http.ResponseWriter, r *http.Request) *editor.Session {
	if cookie, err := r.Cookie(sessionCookie); err == nil && strings.TrimSpace(cookie.Value) != "" {
		return s.store.Get(cookie.Value)
	}

	id := newSessionID()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return s.store.Get(id)
}

func newSessionID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withLogging(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Info("http", "method", r.Method, "path", r.URL.Path, "dur_ms", time.Since(start).Milliseconds())
	})
}

func logLevel(value string) slog.Level {
	switch value {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"example.com/socialfeed/internal/logger"
	"example.com/socialfeed/internal/middleware"
	"example.com/socialfeed/internal/monitoring"
	"example.com/socialfeed/internal/oracle"
	"example.com/socialfeed/internal/session"
	"example.com/socialfeed/internal/social"
	"example.com/socialfeed/internal/upload"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var logg = logger.New()

// Options carries the HTTP-level settings of the server.
type Options struct {
	BasePath       string
	CookieName     string
	SessionTTL     time.Duration
	SecureCookie   bool
	UploadMaxBytes int64
}

type Server struct {
	accounts *social.AccountService
	feed     *social.FeedService
	sessions session.Store
	uploads  *upload.Saver
	oracle   *oracle.Client
	opts     Options
}

func New(accounts *social.AccountService, feed *social.FeedService, sessions session.Store, uploads *upload.Saver, oc *oracle.Client, opts Options) *Server {
	opts.BasePath = strings.TrimRight(opts.BasePath, "/")
	if opts.CookieName == "" {
		opts.CookieName = "sid"
	}
	if opts.UploadMaxBytes <= 0 {
		opts.UploadMaxBytes = 10 << 20
	}
	return &Server{
		accounts: accounts,
		feed:     feed,
		sessions: sessions,
		uploads:  uploads,
		oracle:   oc,
		opts:     opts,
	}
}

// routes builds the router. Every path lives under BasePath.
func (s *Server) routes() http.Handler {
	root := mux.NewRouter()

	api := root
	if s.opts.BasePath != "" {
		api = root.PathPrefix(s.opts.BasePath).Subrouter()
	}
	api.Use(monitoring.InstrumentHandler)
	api.Use(middleware.SessionAuth(s.sessions, s.opts.CookieName))

	api.HandleFunc("/users", s.usersPostHandler).Methods(http.MethodPost)
	api.HandleFunc("/users", s.usersGetHandler).Methods(http.MethodGet)

	api.HandleFunc("/login", s.loginHandler).Methods(http.MethodPost)
	api.HandleFunc("/login", s.sessionStatusHandler).Methods(http.MethodGet)
	api.HandleFunc("/login", s.logoutHandler).Methods(http.MethodDelete)

	api.HandleFunc("/contents", s.publishHandler).Methods(http.MethodPost)
	api.HandleFunc("/contents", s.globalFeedHandler).Methods(http.MethodGet)
	api.HandleFunc("/feed", s.personalFeedHandler).Methods(http.MethodGet)
	api.HandleFunc("/activity", s.activityHandler).Methods(http.MethodGet)

	api.HandleFunc("/follow", s.followHandler).Methods(http.MethodPost)
	api.HandleFunc("/follow", s.unfollowHandler).Methods(http.MethodDelete)
	api.HandleFunc("/follow", s.listFollowingHandler).Methods(http.MethodGet)

	if s.uploads != nil {
		api.HandleFunc("/upload", s.uploadHandler).Methods(http.MethodPost)
		files := http.StripPrefix(s.opts.BasePath+"/uploads/", noDirListing(http.FileServer(http.Dir(s.uploads.Dir()))))
		api.PathPrefix("/uploads/").Handler(files).Methods(http.MethodGet)
	}
	if s.oracle != nil {
		api.HandleFunc("/oracle", s.oracleHandler).Methods(http.MethodGet)
	}

	api.HandleFunc("/test", healthHandler).Methods(http.MethodGet)
	api.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return root
}

func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Run serves HTTP (or HTTPS when certFile and keyFile are set) until ctx is
// cancelled, then shuts down gracefully.
func Run(ctx context.Context, s *Server, addr, certFile, keyFile string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second, // uploads need more than plain JSON
		WriteTimeout:      30 * time.Second,
	}

	errCh := make(chan error, 1)

	// --- Start server in a goroutine ---
	go func() {
		var err error
		if certFile != "" && keyFile != "" {
			logg.Info("server", "Starting HTTPS server on "+addr)
			err = srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			logg.Info("server", "Starting HTTP server on "+addr)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// --- Graceful shutdown ---
	select {
	case err := <-errCh:
		if err != nil {
			logg.Error("server", "Server stopped unexpectedly", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}
	logg.Info("server", "Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("server", "Error during server shutdown", err)
		return err
	}
	logg.Info("server", "Server stopped gracefully")
	return nil
}

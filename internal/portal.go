package internal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgellow/grant-intake/internal/backend"
	"github.com/dgellow/grant-intake/internal/config"
	"github.com/dgellow/grant-intake/internal/credential"
	"github.com/dgellow/grant-intake/internal/crypto"
	"github.com/dgellow/grant-intake/internal/identity"
	"github.com/dgellow/grant-intake/internal/idp"
	"github.com/dgellow/grant-intake/internal/log"
	"github.com/dgellow/grant-intake/internal/profile"
	"github.com/dgellow/grant-intake/internal/retry"
	"github.com/dgellow/grant-intake/internal/server"
	"github.com/dgellow/grant-intake/internal/session"
	"github.com/dgellow/grant-intake/internal/storage"
	"github.com/dgellow/grant-intake/internal/transport"
)

// Portal is the session layer of the grant-intake portal: identity provider
// client, session orchestrator and the local session API.
type Portal struct {
	config       config.Config
	httpServer   *server.HTTPServer
	provider     *idp.Client
	orchestrator *session.Orchestrator
	closers      []io.Closer
}

// NewPortal builds every component from cfg. Nothing runs until Run.
func NewPortal(ctx context.Context, cfg config.Config) (*Portal, error) {
	log.LogInfoWithFields("portal", "Building session layer", map[string]any{
		"addr":    cfg.Server.Addr,
		"backend": cfg.Backend.BaseURL,
		"storage": string(cfg.Storage.Kind),
	})

	store, closers, err := setupStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	profiles, err := setupProfileCache(cfg, store)
	if err != nil {
		closeAll(closers)
		return nil, err
	}

	var credOpts []credential.Option
	if cfg.Cache.RefreshMargin > 0 {
		credOpts = append(credOpts, credential.WithRefreshMargin(cfg.Cache.RefreshMargin))
	}
	creds := credential.NewCache(credOpts...)

	provider, err := idp.NewFromConfig(ctx, cfg.Identity, nil)
	if err != nil {
		closeAll(closers)
		return nil, fmt.Errorf("failed to create identity provider client: %w", err)
	}

	// The backend client authenticates through the orchestrator, which in
	// turn needs the backend client as its profile fetcher.
	var orchestrator *session.Orchestrator
	tokens := transport.TokenSourceFunc(func(ctx context.Context) (string, error) {
		return orchestrator.AccessToken(ctx)
	})
	fetcher, err := backend.NewProfileClient(cfg.Backend.BaseURL, transport.NewClient(tokens, cfg.Backend.RequestTimeout))
	if err != nil {
		closeAll(closers)
		return nil, fmt.Errorf("failed to create profile client: %w", err)
	}

	orchestrator = session.New(provider, fetcher, creds, profiles,
		session.WithTimeouts(session.Timeouts{
			Credential: cfg.Timeouts.Credential,
			Session:    cfg.Timeouts.Session,
			Profile:    cfg.Timeouts.Profile,
			Store:      cfg.Timeouts.Store,
			SignOut:    cfg.Timeouts.SignOut,
		}),
		session.WithRetryPolicy(retryPolicy(cfg.Retry)),
		session.WithPrivilegedRole(cfg.Server.PrivilegedRole),
		session.OnSessionExpired(func() {
			log.LogWarnWithFields("portal", "Session expired; the applicant must sign in again", nil)
		}),
	)

	handler := buildHTTPHandler(cfg, orchestrator, provider)

	return &Portal{
		config:       cfg,
		httpServer:   server.NewHTTPServer(handler, cfg.Server.Addr),
		provider:     provider,
		orchestrator: orchestrator,
		closers:      closers,
	}, nil
}

// Run starts the provider refresher, the orchestrator and the HTTP server,
// and blocks until a shutdown signal or a server error.
func (p *Portal) Run() error {
	log.LogInfoWithFields("portal", "Starting session layer", map[string]any{
		"addr": p.config.Server.Addr,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.provider.Start(ctx)
	p.orchestrator.Start(ctx)
	go logStateChanges(p.orchestrator)

	errChan := make(chan error, 1)
	go func() {
		if err := p.httpServer.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var shutdownReason string
	var runErr error
	select {
	case sig := <-sigChan:
		shutdownReason = fmt.Sprintf("signal %v", sig)
		log.LogInfoWithFields("portal", "Received shutdown signal", map[string]any{
			"signal": sig.String(),
		})
	case err := <-errChan:
		shutdownReason = fmt.Sprintf("error: %v", err)
		runErr = err
		log.LogErrorWithFields("portal", "Shutting down due to error", map[string]any{
			"error": err.Error(),
		})
	}

	log.LogInfoWithFields("portal", "Starting graceful shutdown", map[string]any{
		"reason":  shutdownReason,
		"timeout": "30s",
	})
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := p.shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}

	log.LogInfoWithFields("portal", "Shutdown complete", map[string]any{
		"reason": shutdownReason,
	})
	return runErr
}

func (p *Portal) shutdown(ctx context.Context) error {
	err := p.httpServer.Stop(ctx)
	if err != nil {
		log.LogErrorWithFields("portal", "HTTP server shutdown error", map[string]any{
			"error": err.Error(),
		})
	}

	p.orchestrator.Stop()
	p.provider.Stop()
	closeAll(p.closers)
	return err
}

// setupStorage returns the profile cache store, scoped to this process.
func setupStorage(ctx context.Context, cfg config.StorageConfig) (storage.Store, []io.Closer, error) {
	var base storage.Store
	var closers []io.Closer

	switch cfg.Kind {
	case config.StorageKindFirestore:
		log.LogInfoWithFields("storage", "Using Firestore storage", map[string]any{
			"project":    cfg.GCPProject,
			"database":   cfg.FirestoreDatabase,
			"collection": cfg.FirestoreCollection,
		})
		fs, err := storage.NewFirestoreStore(ctx, storage.FirestoreConfig{
			ProjectID:       cfg.GCPProject,
			Database:        cfg.FirestoreDatabase,
			Collection:      cfg.FirestoreCollection,
			CredentialsFile: cfg.CredentialsFile,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Firestore storage: %w", err)
		}
		base = fs
		closers = append(closers, fs)
	default:
		log.LogInfoWithFields("storage", "Using in-memory storage", map[string]any{
			"quota": cfg.Quota,
		})
		var opts []storage.MemoryOption
		if cfg.Quota > 0 {
			opts = append(opts, storage.WithQuota(cfg.Quota))
		}
		base = storage.NewMemoryStore(opts...)
	}

	scoped := storage.NewScoped(base, cfg.Scope)
	log.LogDebugWithFields("storage", "Profile cache scope", map[string]any{
		"scope": scoped.Scope(),
	})
	return scoped, closers, nil
}

func setupProfileCache(cfg config.Config, store storage.Store) (*profile.Cache, error) {
	opts := []profile.CacheOption{profile.WithTTL(cfg.Cache.ProfileTTL)}
	if cfg.Storage.EncryptionKey != "" {
		key, err := crypto.DecodeKey(string(cfg.Storage.EncryptionKey))
		if err != nil {
			return nil, fmt.Errorf("invalid storage.encryptionKey: %w", err)
		}
		enc, err := crypto.NewEncryptor(key)
		if err != nil {
			return nil, fmt.Errorf("failed to create encryptor: %w", err)
		}
		opts = append(opts, profile.WithEncryptor(enc))
	}
	return profile.NewCache(store, opts...), nil
}

func retryPolicy(cfg config.RetryConfig) retry.Policy {
	policy := retry.DefaultPolicy()
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialInterval > 0 {
		policy.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		policy.MaxInterval = cfg.MaxInterval
	}
	policy.Retryable = backend.IsRetryable
	return policy
}

type sessionService interface {
	server.SessionController
	server.StateWatcher
}

// buildHTTPHandler wires the local session API routes.
func buildHTTPHandler(cfg config.Config, sessions sessionService, authenticator identity.PasswordAuthenticator) http.Handler {
	mux := http.NewServeMux()
	handlers := server.NewSessionHandlers(sessions, authenticator)

	mux.Handle("/health", server.NewHealthHandler())
	mux.HandleFunc("/session", handlers.StateHandler)
	mux.HandleFunc("/session/refresh", handlers.RefreshHandler)
	mux.HandleFunc("/session/signin", handlers.SignInHandler)
	mux.HandleFunc("/session/signout", handlers.SignOutHandler)
	mux.Handle("/session/events", server.NewSessionEventsHandler(sessions))

	return server.ChainMiddleware(mux,
		server.NewCORSMiddleware(cfg.Server.AllowedOrigins),
		server.NewLoggerMiddleware("session_api"),
		server.NewRecoverMiddleware("session_api"),
	)
}

// logStateChanges reports status transitions until the orchestrator stops.
func logStateChanges(o *session.Orchestrator) {
	states, cancel := o.Watch()
	defer cancel()

	var last session.Status
	for s := range states {
		if s.Status == last {
			continue
		}
		last = s.Status
		log.LogInfoWithFields("portal", "Session status changed", map[string]any{
			"status":  string(s.Status),
			"subject": s.Subject,
			"expired": s.SessionExpired,
		})
	}
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		if err := c.Close(); err != nil {
			log.LogWarnWithFields("portal", "Close failed", map[string]any{
				"error": err.Error(),
			})
		}
	}
}

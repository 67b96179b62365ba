package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sambanova-oss/connectorrt/internal/config"
	"github.com/sambanova-oss/connectorrt/internal/connector"
	"github.com/sambanova-oss/connectorrt/internal/credstore"
	"github.com/sambanova-oss/connectorrt/internal/server"
	"github.com/sambanova-oss/connectorrt/pkg/logging"
	"github.com/sambanova-oss/connectorrt/pkg/oauth"
)

const logSubsystem = "bootstrap"

// Options selects how the process is launched.
type Options struct {
	// ConfigPath is the path to the YAML configuration file.
	ConfigPath string
	Debug      bool
}

// Application holds every long-lived component the connector runtime needs,
// wired together once at startup.
type Application struct {
	cfg        config.Config
	store      *credstore.ValkeyStore
	registry   *connector.Registry
	manager    *connector.Manager
	httpServer *http.Server
}

// New loads configuration and wires the credential store, connector
// registry, connector manager, and HTTP surface.
func New(opts Options) (*Application, error) {
	logLevel := logging.LevelInfo
	if opts.Debug {
		logLevel = logging.LevelDebug
	}
	logging.InitForCLI(logLevel, os.Stdout)

	cfg, err := config.LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	store, err := credstore.New(credstore.Config{
		Address:       cfg.Store.Address,
		Password:      cfg.Store.Password,
		DB:            cfg.Store.DB,
		KeyPrefix:     cfg.Store.KeyPrefix,
		EncryptionKey: cfg.Store.EncryptionKey,
	})
	if err != nil {
		return nil, fmt.Errorf("connect credential store: %w", err)
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	oauthClient := oauth.NewClient(oauth.WithHTTPClient(httpClient))

	registry := connector.NewRegistry(store, oauthClient, httpClient)

	configs, toolsByProvider, err := toOAuthConfigs(cfg.Providers)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("translate provider configuration: %w", err)
	}
	configs = withRedirectURIs(configs, cfg.Server.CallbackBaseURL)

	if err := registry.Load(configs, toolsByProvider); err != nil {
		store.Close()
		return nil, fmt.Errorf("load connector registry: %w", err)
	}
	logging.Info(logSubsystem, "loaded %d connectors", len(configs))

	manager := connector.NewManager(registry, store)

	httpSrv := server.New(server.Config{CallbackRedirectURL: cfg.Server.UICallbackURL}, registry, manager)

	host := cfg.Server.Host
	if host == "" {
		host = "localhost"
	}
	addr := fmt.Sprintf("%s:%d", host, orDefault(cfg.Server.Port, 8080))

	return &Application{
		cfg:      cfg,
		store:    store,
		registry: registry,
		manager:  manager,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           httpSrv.Mux(),
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      120 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
	}, nil
}

func orDefault(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

// withRedirectURIs fills in RedirectURI for any provider that didn't set one
// explicitly, from the server's callback base URL.
func withRedirectURIs(configs []connector.OAuthConfig, base string) []connector.OAuthConfig {
	if base == "" {
		return configs
	}
	for i := range configs {
		if configs[i].RedirectURI == "" {
			configs[i].RedirectURI = fmt.Sprintf("%s/connectors/%s/callback", base, configs[i].ProviderID)
		}
	}
	return configs
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// process receives SIGINT/SIGTERM, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	defer a.store.Close()

	serveErr := make(chan error, 1)
	go func() {
		logging.Info(logSubsystem, "listening on %s", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return err
	case <-sigChan:
		logging.Info(logSubsystem, "shutting down")
	case <-ctx.Done():
		logging.Info(logSubsystem, "context cancelled, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return a.httpServer.Shutdown(shutdownCtx)
}

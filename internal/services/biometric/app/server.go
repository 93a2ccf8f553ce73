// Package app wires the biometric daemon runtime and HTTP lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/louisbranch/biomgate/internal/biometric"
	"github.com/louisbranch/biomgate/internal/platform/config"
	"github.com/louisbranch/biomgate/internal/platform/timeouts"
	"github.com/louisbranch/biomgate/internal/services/biometric/backend"
	"github.com/louisbranch/biomgate/internal/services/biometric/backend/devsim"
	"github.com/louisbranch/biomgate/internal/services/biometric/credential"
	"github.com/louisbranch/biomgate/internal/services/biometric/keystore"
	"github.com/louisbranch/biomgate/internal/services/biometric/orchestrator"
	"github.com/louisbranch/biomgate/internal/services/biometric/prompt"
	"github.com/louisbranch/biomgate/internal/services/biometric/registry"
	"github.com/louisbranch/biomgate/internal/services/biometric/settings"
	"github.com/louisbranch/biomgate/internal/services/biometric/storage/sqlite"
)

type serverEnv struct {
	AuditDBPath      string        `env:"BIOMGATE_AUDIT_DB_PATH"`
	CredentialDBPath string        `env:"BIOMGATE_CREDENTIAL_DB_PATH"`
	SigningKey       string        `env:"BIOMGATE_CREDENTIAL_SIGNING_KEY"`
	TokenCapacity    int           `env:"BIOMGATE_TOKEN_CAPACITY" envDefault:"8"`
	TokenTTL         time.Duration `env:"BIOMGATE_TOKEN_TTL" envDefault:"5m"`
	SimFingerprint   bool          `env:"BIOMGATE_SIM_FINGERPRINT" envDefault:"true"`
	SimFace          bool          `env:"BIOMGATE_SIM_FACE" envDefault:"true"`
	SimLatency       time.Duration `env:"BIOMGATE_SIM_LATENCY" envDefault:"50ms"`
	FaceEnabled      bool          `env:"BIOMGATE_FACE_ENABLED" envDefault:"true"`
	FaceConfirm      bool          `env:"BIOMGATE_FACE_ALWAYS_CONFIRM" envDefault:"false"`
}

func loadServerEnv() serverEnv {
	var cfg serverEnv
	_ = config.ParseEnv(&cfg)
	if strings.TrimSpace(cfg.AuditDBPath) == "" {
		cfg.AuditDBPath = filepath.Join("data", "biomgate-audit.db")
	}
	if strings.TrimSpace(cfg.CredentialDBPath) == "" {
		cfg.CredentialDBPath = filepath.Join("data", "biomgate-credentials.db")
	}
	if strings.TrimSpace(cfg.SigningKey) == "" {
		// Dev-only fallback; production deployments set the env var.
		cfg.SigningKey = "biomgate-dev-signing-key-not-for-production"
	}
	return cfg
}

// Server hosts the biometric daemon HTTP API and storage lifecycle.
type Server struct {
	listener   net.Listener
	httpServer *http.Server

	orch     *orchestrator.Orchestrator
	verifier *credential.Verifier
	tokens   *keystore.Keystore
	settings *settings.Store
	audit    *sqlite.Store
	credDB   *bolt.DB
}

// New creates a configured daemon server listening on the provided port.
func New(port int) (*Server, error) {
	return NewWithAddr(fmt.Sprintf(":%d", port))
}

// NewWithAddr creates a configured daemon server for the provided address.
func NewWithAddr(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	srvEnv := loadServerEnv()
	server, err := newFromEnv(srvEnv)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}
	server.listener = listener
	server.httpServer = &http.Server{
		Handler:           server.routes(),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}
	return server, nil
}

func newFromEnv(srvEnv serverEnv) (*Server, error) {
	audit, err := sqlite.Open(srvEnv.AuditDBPath)
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}

	credDB, err := bolt.Open(srvEnv.CredentialDBPath, 0o600, &bolt.Options{Timeout: timeouts.StorageOpen})
	if err != nil {
		_ = audit.Close()
		return nil, fmt.Errorf("open credential db: %w", err)
	}

	verifier, err := credential.New(credDB, []byte(srvEnv.SigningKey), credential.Options{TokenTTL: srvEnv.TokenTTL})
	if err != nil {
		_ = audit.Close()
		_ = credDB.Close()
		return nil, fmt.Errorf("create credential verifier: %w", err)
	}

	settingsStore := settings.New(settings.Defaults{
		FaceEnabledForApps:            srvEnv.FaceEnabled,
		FaceAlwaysRequireConfirmation: srvEnv.FaceConfirm,
	})

	var backends []backend.Backend
	if srvEnv.SimFingerprint {
		backends = append(backends, devsim.New(devsim.Options{
			Modality: biometric.ModalityFingerprint,
			Latency:  srvEnv.SimLatency,
		}))
	}
	if srvEnv.SimFace {
		backends = append(backends, devsim.New(devsim.Options{
			Modality: biometric.ModalityFace,
			Latency:  srvEnv.SimLatency,
		}))
	}

	tokens := keystore.New(srvEnv.TokenCapacity)
	orch := orchestrator.New(orchestrator.Deps{
		Registry: registry.New(settingsStore, backends...),
		Settings: settingsStore,
		Surface:  &logSurface{},
		Sink:     tokens,
		Audit:    audit,
	})

	return &Server{
		orch:     orch,
		verifier: verifier,
		tokens:   tokens,
		settings: settingsStore,
		audit:    audit,
		credDB:   credDB,
	}, nil
}

// Addr returns the listener address for the server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves a daemon server until context cancellation.
func Run(ctx context.Context, port int) error {
	server, err := New(port)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the HTTP server until context cancellation.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	log.Printf("biomgated listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		err := <-serveErr
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close releases the server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.tokens != nil {
		s.tokens.Seal()
	}
	if s.credDB != nil {
		if err := s.credDB.Close(); err != nil {
			log.Printf("close credential db: %v", err)
		}
	}
	if s.audit != nil {
		if err := s.audit.Close(); err != nil {
			log.Printf("close audit store: %v", err)
		}
	}
}

// logSurface is the daemon's stand-in presentation surface. Real deployments
// attach a system UI process; the daemon logs what it would be told.
type logSurface struct{}

func (logSurface) ShowAuthenticationDialog(opts prompt.Options, modality biometric.Modality, requireConfirmation bool, userID int32, callingPackage string) error {
	log.Printf("surface: show dialog modality=%s confirm=%t user=%d package=%s", modality, requireConfirmation, userID, callingPackage)
	return nil
}

func (logSurface) HideAuthenticationDialog() error {
	log.Printf("surface: hide dialog")
	return nil
}

func (logSurface) OnBiometricAuthenticated() error {
	log.Printf("surface: authenticated")
	return nil
}

func (logSurface) OnBiometricError(modality biometric.Modality, code biometric.ErrorCode, vendorCode int32) error {
	log.Printf("surface: error modality=%s code=%d vendor=%d", modality, code, vendorCode)
	return nil
}

func (logSurface) OnBiometricHelp(message string) error {
	log.Printf("surface: help %q", message)
	return nil
}

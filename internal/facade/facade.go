// Package facade exposes the server lifecycle to host applications: a JSON
// descriptor for embedding clients and an optional local HTTP control
// surface.
package facade

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"codeops/internal/domain"
	"codeops/internal/service"
)

// ServiceConfig is the connection block of the descriptor.
type ServiceConfig struct {
	BaseURL         string `json:"baseUrl"`
	ConnectionToken string `json:"connectionToken,omitempty"`
}

// Descriptor is the payload handed to an embedding host shell. Field names
// follow the wire format existing clients already parse.
type Descriptor struct {
	State         domain.ServerState `json:"state"`
	ServerURL     string             `json:"serverUrl"`
	APIVersion    string             `json:"apiVersion,omitempty"`
	VscodeCommit  string             `json:"vscodeCommit,omitempty"`
	Platform      string             `json:"platform,omitempty"`
	PID           int                `json:"pid,omitempty"`
	FailReason    string             `json:"failReason,omitempty"`
	ServiceConfig ServiceConfig      `json:"serviceConfig"`
}

// Facade wraps a manager for host integration.
type Facade struct {
	manager *service.Manager
	logger  *zap.Logger
}

// New creates a facade over the given manager.
func New(manager *service.Manager, logger *zap.Logger) *Facade {
	return &Facade{manager: manager, logger: logger}
}

// Info builds the current descriptor.
func (f *Facade) Info() Descriptor {
	info := f.manager.Info()
	return Descriptor{
		State:        info.State,
		ServerURL:    info.URL,
		APIVersion:   info.APIVersion,
		VscodeCommit: info.Commit,
		Platform:     info.Platform,
		PID:          info.PID,
		FailReason:   info.FailReason,
		ServiceConfig: ServiceConfig{
			BaseURL:         info.URL,
			ConnectionToken: info.ConnectionToken,
		},
	}
}

// Router builds the HTTP control surface.
func (f *Facade) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", f.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/start", f.lifecycle("start", f.manager.Start)).Methods(http.MethodPost)
	api.HandleFunc("/stop", f.lifecycle("stop", f.manager.Stop)).Methods(http.MethodPost)
	api.HandleFunc("/restart", f.lifecycle("restart", f.manager.Restart)).Methods(http.MethodPost)
	return r
}

// Serve runs the control surface on ln until ctx is cancelled, then shuts
// down gracefully.
func (f *Facade) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           f.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	f.logger.Info("Control surface listening", zap.String("addr", ln.Addr().String()))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (f *Facade) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, f.Info())
}

// lifecycle adapts a manager operation to an HTTP handler. Invalid-state
// errors map to 409, everything else to 500; the response always carries the
// fresh descriptor so clients can reconcile.
func (f *Facade) lifecycle(op string, fn func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(r.Context()); err != nil {
			f.logger.Warn("Control request failed",
				zap.String("op", op), zap.Error(err))
			status := http.StatusInternalServerError
			var stateErr *domain.InvalidStateError
			if errors.As(err, &stateErr) {
				status = http.StatusConflict
			}
			writeJSON(w, status, struct {
				Error      string     `json:"error"`
				Descriptor Descriptor `json:"descriptor"`
			}{Error: err.Error(), Descriptor: f.Info()})
			return
		}
		writeJSON(w, http.StatusOK, f.Info())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

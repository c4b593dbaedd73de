package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/richinex/notewright/server"
)

const shutdownTimeout = 10 * time.Second

// Serve runs the HTTP transport on bind until ctx is cancelled, then drains
// in-flight requests.
func Serve(ctx context.Context, app *App, bind, version string) error {
	ln, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", bind, err)
	}
	return serveListener(ctx, app, ln, version)
}

func serveListener(ctx context.Context, app *App, ln net.Listener, version string) error {
	cfg := server.Config{
		Runner:       app.Loop,
		Logger:       app.Logger,
		Addr:         ln.Addr().String(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: app.turnWriteTimeout(),
		Version:      version,
	}
	if app.Journal != nil {
		cfg.Journal = app.Journal
	}
	srv := server.New(cfg)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	<-errCh
	app.Logger.Info("http server stopped")
	return nil
}

// turnWriteTimeout bounds a response by the worst case of a full turn: every
// step calling the model with all retries, plus every tool call retried once.
func (a *App) turnWriteTimeout() time.Duration {
	l := a.Settings.Limits
	model := time.Duration(l.MaxSteps) * time.Duration(l.ModelMaxRetries+1) * l.ModelTimeout
	tools := time.Duration(l.MaxToolCalls) * 2 * l.ToolTimeout
	return model + tools + 10*time.Second
}

// File: internal/browser/connector.go
package browser

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/mpellegro/wasend-cli/internal/config"
)

// ConnectorError marks failures to reach or start a debuggable browser.
// Callers treat it as session-fatal: the run cannot proceed without a tab.
type ConnectorError struct {
	Op  string
	Err error
}

func (e *ConnectorError) Error() string {
	return fmt.Sprintf("browser connector: %s: %v", e.Op, e.Err)
}

func (e *ConnectorError) Unwrap() error { return e.Err }

// Connector locates or launches a Chrome instance with the remote debugging
// port open, then attaches chromedp to it. It never owns the browser
// process: detaching leaves the window (and the logged-in WhatsApp session)
// running for the next run.
type Connector struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
}

func NewConnector(cfg config.BrowserConfig, logger *zap.Logger) *Connector {
	return &Connector{cfg: cfg, logger: logger.Named("connector")}
}

// Handle is an attached browser tab. Cancel releases the chromedp contexts
// without killing the browser.
type Handle struct {
	Ctx    context.Context
	cancel []context.CancelFunc
	logger *zap.Logger
}

// portOpen is the single authoritative liveness probe for the debug port.
func portOpen(port int, timeout time.Duration) bool {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Ensure guarantees a browser is listening on the debug port, launching one
// when nothing answers. Launch failures and port-poll exhaustion both come
// back as ConnectorError.
func (c *Connector) Ensure(ctx context.Context) error {
	if portOpen(c.cfg.DebugPort, time.Second) {
		c.logger.Info("Attaching to running browser", zap.Int("port", c.cfg.DebugPort))
		return nil
	}

	c.logger.Info("No browser on debug port, launching",
		zap.Int("port", c.cfg.DebugPort),
		zap.String("executable", c.cfg.Executable))

	cmd := exec.Command(c.cfg.Executable,
		fmt.Sprintf("--remote-debugging-port=%d", c.cfg.DebugPort),
		fmt.Sprintf("--user-data-dir=%s", c.cfg.ProfileDir),
		"--no-first-run",
		"--no-default-browser-check",
	)
	if err := cmd.Start(); err != nil {
		return &ConnectorError{Op: "launch", Err: err}
	}
	// Detach from the child so the browser outlives this process.
	go func() { _ = cmd.Wait() }()

	deadline := time.Now().Add(c.cfg.LaunchTimeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return &ConnectorError{Op: "launch wait", Err: ctx.Err()}
		case <-time.After(500 * time.Millisecond):
		}
		if portOpen(c.cfg.DebugPort, time.Second) {
			c.logger.Info("Browser ready", zap.Int("port", c.cfg.DebugPort))
			return nil
		}
	}
	return &ConnectorError{Op: "launch wait", Err: fmt.Errorf("debug port %d never opened within %s", c.cfg.DebugPort, c.cfg.LaunchTimeout)}
}

// Attach binds chromedp to the already-verified debug port and returns a
// handle onto a tab context. EnsureFrontend must be called before driving.
func (c *Connector) Attach(ctx context.Context) (*Handle, error) {
	if err := c.Ensure(ctx); err != nil {
		return nil, err
	}

	devtoolsURL := fmt.Sprintf("http://127.0.0.1:%d", c.cfg.DebugPort)
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, devtoolsURL)

	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, &ConnectorError{Op: "attach", Err: err}
	}

	return &Handle{
		Ctx:    tabCtx,
		cancel: []context.CancelFunc{tabCancel, allocCancel},
		logger: c.logger,
	}, nil
}

// EnsureFrontend points the handle's tab at WhatsApp Web. When some open tab
// already has the frontend loaded we retarget onto it instead of stealing a
// fresh tab, preserving the authenticated page state.
func (h *Handle) EnsureFrontend(ctx context.Context) error {
	targets, err := chromedp.Targets(h.Ctx)
	if err != nil {
		return &ConnectorError{Op: "list targets", Err: err}
	}

	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		if strings.Contains(t.URL, "web.whatsapp.com") {
			h.logger.Info("Reusing open WhatsApp tab", zap.String("url", t.URL))
			tabCtx, tabCancel := chromedp.NewContext(h.Ctx, chromedp.WithTargetID(t.TargetID))
			if err := chromedp.Run(tabCtx); err != nil {
				tabCancel()
				return &ConnectorError{Op: "retarget", Err: err}
			}
			h.Ctx = tabCtx
			h.cancel = append([]context.CancelFunc{tabCancel}, h.cancel...)
			return nil
		}
	}

	h.logger.Info("Opening WhatsApp Web")
	if err := chromedp.Run(h.Ctx, chromedp.Navigate("https://web.whatsapp.com")); err != nil {
		return &ConnectorError{Op: "navigate", Err: err}
	}
	return nil
}

// Detach cancels the chromedp contexts. The browser keeps running.
func (h *Handle) Detach() {
	for _, cancel := range h.cancel {
		cancel()
	}
}

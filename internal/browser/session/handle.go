// internal/browser/session/handle.go
package session

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/fleetpm/internal/browser"
	"github.com/xkilldash9x/fleetpm/internal/config"
)

var (
	// ErrHandleClosed is returned by Acquire after Close.
	ErrHandleClosed = errors.New("browser handle is closed")
	// ErrHandleLeased is returned when the session is already acquired.
	ErrHandleLeased = errors.New("browser session is already in use")
)

const shutdownTimeout = 10 * time.Second

// launchFunc starts a browser and returns its driver plus a shutdown func.
type launchFunc func(ctx context.Context) (browser.Driver, func(), error)

// Handle owns the one browser session used by a run. The browser is started
// lazily on the first Acquire and lives until Close. Only one caller may hold
// the session at a time.
type Handle struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	mu       sync.Mutex
	driver   browser.Driver
	shutdown func()
	leased   bool
	closed   bool

	launch launchFunc
}

// NewHandle returns a handle that will launch Chrome with cfg on demand.
func NewHandle(cfg config.BrowserConfig, logger *zap.Logger) *Handle {
	h := &Handle{
		cfg:    cfg,
		logger: logger.Named("session"),
	}
	h.launch = h.launchChrome
	return h
}

// Acquire returns the session driver, launching the browser if needed. If a
// previously launched session has died, ErrSessionLost is returned; the run
// cannot continue on a new browser without a fresh login.
func (h *Handle) Acquire(ctx context.Context) (browser.Driver, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHandleClosed
	}
	if h.leased {
		return nil, ErrHandleLeased
	}

	if h.driver == nil {
		driver, shutdown, err := h.launch(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		h.driver, h.shutdown = driver, shutdown
		h.logger.Info("Browser session started.", zap.Bool("headless", h.cfg.Headless))
	} else if err := h.driver.Alive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		h.logger.Error("Browser session is no longer alive.", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", browser.ErrSessionLost, err)
	}

	h.leased = true
	return h.driver, nil
}

// Release returns the session to the handle. The browser keeps running.
func (h *Handle) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leased = false
}

// Close shuts the browser down. Safe to call more than once.
func (h *Handle) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	h.leased = false
	if h.shutdown != nil {
		h.shutdown()
		h.logger.Info("Browser session closed.")
	}
	h.driver, h.shutdown = nil, nil
}

func (h *Handle) launchChrome(ctx context.Context) (browser.Driver, func(), error) {
	// The allocator must outlive ctx; only Close ends the browser.
	allocCtx, allocCancel := chromedp.NewExecAllocator(Detach(ctx), buildAllocatorOptions(h.cfg)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(h.logger.Sugar().Debugf),
		chromedp.WithErrorf(h.logger.Sugar().Debugf),
	)

	shutdown := func() {
		done := make(chan error, 1)
		go func() { done <- chromedp.Cancel(tabCtx) }()
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				h.logger.Warn("Error during browser shutdown.", zap.Error(err))
			}
		case <-time.After(shutdownTimeout):
			h.logger.Warn("Browser shutdown timed out; forcing.", zap.Duration("timeout", shutdownTimeout))
		}
		tabCancel()
		allocCancel()
	}

	launchTimeout := h.cfg.LaunchTimeout
	if launchTimeout <= 0 {
		launchTimeout = 30 * time.Second
	}

	// The first Run must use tabCtx itself; a derived deadline would bind
	// the browser's lifetime to it.
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(tabCtx, chromedp.Navigate("about:blank")) }()

	select {
	case err := <-done:
		if err != nil {
			shutdown()
			return nil, nil, fmt.Errorf("browser liveness check failed: %w", err)
		}
	case <-time.After(launchTimeout):
		shutdown()
		return nil, nil, fmt.Errorf("browser did not start within %v", launchTimeout)
	case <-ctx.Done():
		shutdown()
		return nil, nil, ctx.Err()
	}

	return newDriver(tabCtx, h.logger, h.cfg.ActionTimeout), shutdown, nil
}

// allocatorFlag is one Chrome command line switch. A bool Value of false
// removes a default switch.
type allocatorFlag struct {
	Name  string
	Value interface{}
}

// allocatorFlags lists the switches applied on top of chromedp's defaults.
func allocatorFlags(cfg config.BrowserConfig) []allocatorFlag {
	flags := []allocatorFlag{
		// The fleet app behaves differently under an automation banner.
		{Name: "enable-automation", Value: false},
		{Name: "disable-blink-features", Value: "AutomationControlled"},
		{Name: "headless", Value: cfg.Headless},
	}
	if cfg.Headless {
		flags = append(flags, allocatorFlag{Name: "hide-scrollbars", Value: true})
	}

	if runtime.GOOS == "linux" {
		flags = append(flags,
			allocatorFlag{Name: "no-sandbox", Value: true},
			allocatorFlag{Name: "disable-dev-shm-usage", Value: true},
			allocatorFlag{Name: "disable-setuid-sandbox", Value: true},
		)
	}

	for _, arg := range cfg.Args {
		arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
		if arg == "" {
			continue
		}
		if key, value, found := strings.Cut(arg, "="); found {
			flags = append(flags, allocatorFlag{Name: key, Value: value})
		} else {
			flags = append(flags, allocatorFlag{Name: arg, Value: true})
		}
	}
	return flags
}

func buildAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for _, f := range allocatorFlags(cfg) {
		opts = append(opts, chromedp.Flag(f.Name, f.Value))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}
	return opts
}

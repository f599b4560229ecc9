// internal/browser/session.go

// Package browser provides the production Session implementation on top of a
// headless Chrome instance driven over the DevTools protocol.
package browser

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/applypilot/api/schemas"
	"github.com/xkilldash9x/applypilot/internal/config"
)

// Session is a single browsing session. It implements schemas.Session.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	// allocCancel tears down the exec allocator after the browser context.
	allocCancel context.CancelFunc
	logger      *zap.Logger
	cfg         config.BrowserConfig
	rng         *rand.Rand

	mu         sync.RWMutex
	currentURL string

	closeOnce sync.Once
}

var _ schemas.Session = (*Session)(nil)

// NewSession launches a browser and returns a ready session.
func NewSession(parentCtx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	sessionID := uuid.New().String()
	log := logger.Named("session").With(zap.String("session_id", sessionID))

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if cfg.IgnoreTLSErrors {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	for _, arg := range cfg.Args {
		opts = append(opts, chromedp.Flag(arg, true))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parentCtx, opts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	// Launch eagerly so construction fails fast if no browser is available.
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	log.Info("Session initialized.")
	return &Session{
		id:          sessionID,
		ctx:         ctx,
		cancel:      cancel,
		allocCancel: allocCancel,
		logger:      log,
		cfg:         cfg,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

// Close terminates the session and the browser it owns.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.logger.Info("Closing session.")
		s.cancel()
		s.allocCancel()
	})
}

// Navigate loads a URL, waits for the document to be ready, and applies the
// configured post-load settle time plus a short reading pause.
func (s *Session) Navigate(ctx context.Context, targetURL string) error {
	navCtx, navCancel := s.operationContext(ctx, s.cfg.NavigationTimeout)
	defer navCancel()

	s.logger.Info("Navigating", zap.String("url", targetURL))
	if err := chromedp.Run(navCtx,
		chromedp.Navigate(targetURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigation to '%s' failed: %w", targetURL, err)
	}

	s.mu.Lock()
	s.currentURL = targetURL
	s.mu.Unlock()

	if s.cfg.PostLoadWait > 0 {
		if err := s.hesitate(ctx, s.cfg.PostLoadWait); err != nil {
			return err
		}
	}
	// Simulated reading time after page load.
	return s.hesitate(ctx, 500*time.Millisecond+time.Duration(s.rng.Intn(1000))*time.Millisecond)
}

// Find returns a reference to the first visible element matching the selector,
// or (nil, nil) when nothing visible matches.
func (s *Session) Find(ctx context.Context, sel string) (*schemas.ElementRef, error) {
	findCtx, findCancel := s.operationContext(ctx, 5*time.Second)
	defer findCancel()

	var visible bool
	script := visibilityProbe(sel)
	if err := chromedp.Run(findCtx, chromedp.Evaluate(script, &visible)); err != nil {
		return nil, fmt.Errorf("querying selector '%s': %w", sel, err)
	}
	if !visible {
		return nil, nil
	}
	return &schemas.ElementRef{Selector: sel}, nil
}

// WaitFor blocks until the selector matches a visible element or the timeout
// elapses.
func (s *Session) WaitFor(ctx context.Context, sel string, timeout time.Duration) error {
	waitCtx, waitCancel := s.operationContext(ctx, timeout)
	defer waitCancel()

	if err := chromedp.Run(waitCtx, chromedp.WaitVisible(sel, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("timeout waiting for '%s': %w", sel, err)
	}
	return nil
}

// Activate clicks the element, preceded by a short human-paced hold.
func (s *Session) Activate(ctx context.Context, el *schemas.ElementRef) error {
	if el == nil {
		return fmt.Errorf("cannot activate a nil element reference")
	}
	if err := s.hesitate(ctx, s.holdDelay()); err != nil {
		return err
	}

	actCtx, actCancel := s.operationContext(ctx, 10*time.Second)
	defer actCancel()
	if err := chromedp.Run(actCtx, chromedp.Click(el.Selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("activating '%s': %w", el.Selector, err)
	}
	s.refreshLocation()
	return nil
}

// SetText focuses the element, clears it, and types the value key by key.
func (s *Session) SetText(ctx context.Context, el *schemas.ElementRef, value string) error {
	if el == nil {
		return fmt.Errorf("cannot type into a nil element reference")
	}
	if err := s.hesitate(ctx, s.holdDelay()); err != nil {
		return err
	}

	typeCtx, typeCancel := s.operationContext(ctx, 15*time.Second)
	defer typeCancel()
	err := chromedp.Run(typeCtx,
		chromedp.Click(el.Selector, chromedp.ByQuery),
		chromedp.SetValue(el.Selector, "", chromedp.ByQuery),
		chromedp.SendKeys(el.Selector, value, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("typing into '%s': %w", el.Selector, err)
	}
	return nil
}

// CurrentLocation returns the last known URL of the page. The cached value is
// refreshed after navigations and activations.
func (s *Session) CurrentLocation() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentURL
}

// Evaluate runs a script in the page and unmarshals the result into out.
func (s *Session) Evaluate(ctx context.Context, expression string, out interface{}) error {
	evalCtx, evalCancel := s.operationContext(ctx, 10*time.Second)
	defer evalCancel()

	if err := chromedp.Run(evalCtx, chromedp.Evaluate(expression, out)); err != nil {
		return fmt.Errorf("script evaluation failed: %w", err)
	}
	return nil
}

// refreshLocation updates the cached URL; activations can navigate.
func (s *Session) refreshLocation() {
	locCtx, locCancel := context.WithTimeout(s.ctx, 2*time.Second)
	defer locCancel()

	var loc string
	if err := chromedp.Run(locCtx, chromedp.Location(&loc)); err != nil {
		s.logger.Debug("Failed to refresh location", zap.Error(err))
		return
	}
	s.mu.Lock()
	s.currentURL = loc
	s.mu.Unlock()
}

// operationContext derives a context bound to both the session lifecycle and
// the caller's deadline.
func (s *Session) operationContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	opCtx, opCancel := context.WithTimeout(s.ctx, timeout)
	stop := context.AfterFunc(ctx, opCancel)
	return opCtx, func() {
		stop()
		opCancel()
	}
}

// visibilityProbe builds the in-page check for "matches and is actionable":
// non-zero box, not display:none/visibility:hidden, intersecting the viewport.
func visibilityProbe(sel string) string {
	quoted := strconv.Quote(sel)
	return fmt.Sprintf(`(() => {
        const el = document.querySelector(%s);
        if (!el) return false;
        const r = el.getBoundingClientRect();
        if (r.width === 0 || r.height === 0) return false;
        const style = window.getComputedStyle(el);
        if (style.display === 'none' || style.visibility === 'hidden') return false;
        return r.bottom > 0 && r.top < window.innerHeight;
    })()`, quoted)
}

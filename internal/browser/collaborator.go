// File: internal/browser/collaborator.go
package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	cdplog "github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/dowser-cli/api/schemas"
	"github.com/xkilldash9x/dowser-cli/internal/config"
	"github.com/xkilldash9x/dowser-cli/internal/explorer"
)

// Collaborator drives a single Chromium session for one run. It implements
// schemas.UICollaborator; the reasoning core only ever sees its structured
// outputs.
type Collaborator struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocCancel   context.CancelFunc
	sessionCtx    context.Context
	sessionCancel context.CancelFunc

	limiter *rate.Limiter

	mu            sync.Mutex
	started       bool
	currentURL    string
	targets       map[string]actionTarget
	consoleErrors []string
	networkCalls  int
}

var _ schemas.UICollaborator = (*Collaborator)(nil)

// New prepares a collaborator; the browser process starts lazily on the
// first Discover.
func New(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) *Collaborator {
	aps := cfg.ActionsPerSecond
	if aps <= 0 {
		aps = 2.0
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("ignore-certificate-errors", cfg.IgnoreTLSErrors),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", cfg.Headless),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	sessionCtx, sessionCancel := chromedp.NewContext(allocCtx)

	return &Collaborator{
		cfg:           cfg,
		logger:        logger.Named("browser"),
		allocCancel:   allocCancel,
		sessionCtx:    sessionCtx,
		sessionCancel: sessionCancel,
		limiter:       rate.NewLimiter(rate.Limit(aps), 1),
		targets:       make(map[string]actionTarget),
	}
}

// Close tears the browser session down.
func (c *Collaborator) Close() {
	c.sessionCancel()
	c.allocCancel()
}

// start boots the browser, enables event domains and installs the console
// and network listeners. Called once, under the first Discover.
func (c *Collaborator) start() error {
	if c.started {
		return nil
	}

	chromedp.ListenTarget(c.sessionCtx, func(ev any) {
		switch e := ev.(type) {
		case *cdplog.EventEntryAdded:
			if e.Entry.Level == cdplog.LevelError {
				c.mu.Lock()
				c.consoleErrors = append(c.consoleErrors, e.Entry.Text)
				c.mu.Unlock()
			}
		case *network.EventRequestWillBeSent:
			c.mu.Lock()
			c.networkCalls++
			c.mu.Unlock()
		}
	})

	runCtx, cancel := context.WithTimeout(c.sessionCtx, c.cfg.NavigationTimeout)
	defer cancel()
	if err := chromedp.Run(runCtx, cdplog.Enable(), network.Enable()); err != nil {
		return fmt.Errorf("failed to start browser session: %w", err)
	}
	c.started = true
	return nil
}

// Discover navigates to the target on first call, snapshots the current page
// on every call, and derives the structured UI state from the snapshot.
func (c *Collaborator) Discover(ctx context.Context, target string) (schemas.UIState, error) {
	if err := c.start(); err != nil {
		return schemas.UIState{}, err
	}

	runCtx, cancel := context.WithTimeout(c.sessionCtx, c.cfg.NavigationTimeout)
	defer cancel()

	tasks := chromedp.Tasks{}
	c.mu.Lock()
	firstVisit := c.currentURL == ""
	c.mu.Unlock()
	if firstVisit {
		tasks = append(tasks, chromedp.Navigate(target))
		if c.cfg.PostLoadWait > 0 {
			tasks = append(tasks, chromedp.Sleep(c.cfg.PostLoadWait))
		}
	}

	var (
		rawHTML string
		pageURL string
		title   string
	)
	tasks = append(tasks,
		chromedp.Location(&pageURL),
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &rawHTML, chromedp.ByQuery),
	)
	if err := chromedp.Run(runCtx, tasks); err != nil {
		return schemas.UIState{}, fmt.Errorf("page discovery failed: %w", err)
	}

	root, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return schemas.UIState{}, fmt.Errorf("failed to parse page snapshot: %w", err)
	}

	actions, targets := DeriveActions(root)

	c.mu.Lock()
	c.currentURL = pageURL
	c.targets = targets
	consoleErrors := len(c.consoleErrors)
	c.mu.Unlock()

	state := schemas.UIState{
		AvailableActions: actions,
		Observation:      BuildObservation(root, title, pageURL, consoleErrors),
		PageURL:          pageURL,
		Route:            Route(pageURL),
		Title:            title,
	}

	c.logger.Debug("Page discovered",
		zap.String("route", state.Route),
		zap.Int("actions", len(actions)))
	return state, nil
}

// Execute performs one action contract against the live page. Action-level
// failures come back as a skipped result, never as an error; only an
// unusable session errors.
func (c *Collaborator) Execute(ctx context.Context, action schemas.ActionContract) (schemas.ExecutionResult, error) {
	if !c.started {
		return schemas.ExecutionResult{}, fmt.Errorf("execute before discovery: no browser session")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return schemas.ExecutionResult{}, fmt.Errorf("rate limit wait aborted: %w", err)
	}

	return c.run(action)
}

func (c *Collaborator) run(action schemas.ActionContract) (schemas.ExecutionResult, error) {
	c.mu.Lock()
	c.consoleErrors = nil
	c.networkCalls = 0
	target, known := c.targets[action.ActionID]
	currentURL := c.currentURL
	c.mu.Unlock()

	result := schemas.ExecutionResult{ActionID: action.ActionID}

	var task chromedp.Action
	switch {
	case action.ActionID == explorer.BacktrackActionID:
		task = chromedp.NavigateBack()
	case !known:
		c.logger.Warn("Unknown action, skipping", zap.String("action", action.ActionID))
		result.Skipped = true
		return result, nil
	default:
		task = c.taskFor(target, currentURL, action.Parameters)
	}

	runCtx, cancel := context.WithTimeout(c.sessionCtx, c.cfg.NavigationTimeout)
	defer cancel()

	start := time.Now()
	err := chromedp.Run(runCtx, task)
	result.Duration = time.Since(start)

	c.mu.Lock()
	result.ConsoleErrors = append([]string(nil), c.consoleErrors...)
	result.NetworkCalls = c.networkCalls
	c.mu.Unlock()

	if err != nil {
		if c.sessionCtx.Err() != nil {
			return result, fmt.Errorf("browser session lost: %w", err)
		}
		c.logger.Warn("Action execution failed, marking skipped",
			zap.String("action", action.ActionID),
			zap.Error(err))
		result.Skipped = true
		return result, nil
	}

	result.Success = true
	return result, nil
}

// taskFor maps a derived target to the chromedp action that executes it.
// Element references go through querySelectorAll indexing, which matches how
// the targets were derived from the snapshot.
func (c *Collaborator) taskFor(target actionTarget, currentURL string, params map[string]any) chromedp.Action {
	locate := fmt.Sprintf("document.querySelectorAll(%q)[%d]", target.Tag, target.Index)
	switch target.Kind {
	case kindNavigate:
		return chromedp.Navigate(resolveHref(currentURL, target.Href))
	case kindFill:
		value := "test input"
		if v, ok := params["value"].(string); ok && v != "" {
			value = v
		}
		script := fmt.Sprintf(`(() => { const el = %s; if (!el) throw new Error("element gone");
			el.value = %q; el.dispatchEvent(new Event("input", {bubbles: true}));
			el.dispatchEvent(new Event("change", {bubbles: true})); })()`, locate, value)
		return chromedp.Evaluate(script, nil)
	case kindSubmit:
		script := fmt.Sprintf(`(() => { const el = %s; if (!el) throw new Error("element gone");
			el.requestSubmit ? el.requestSubmit() : el.submit(); })()`, locate)
		return chromedp.Evaluate(script, nil)
	case kindSelect:
		script := fmt.Sprintf(`(() => { const el = %s; if (!el || el.options.length === 0) throw new Error("element gone");
			el.selectedIndex = el.options.length > 1 ? 1 : 0;
			el.dispatchEvent(new Event("change", {bubbles: true})); })()`, locate)
		return chromedp.Evaluate(script, nil)
	default: // kindClick
		script := fmt.Sprintf(`(() => { const el = %s; if (!el) throw new Error("element gone"); el.click(); })()`, locate)
		return chromedp.Evaluate(script, nil)
	}
}

// resolveHref makes relative link destinations absolute against the current
// page.
func resolveHref(currentURL, href string) string {
	base, err := url.Parse(currentURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

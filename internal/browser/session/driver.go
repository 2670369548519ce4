// internal/browser/session/driver.go
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/fleetpm/internal/browser"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// cdpDriver implements browser.Driver on a single chromedp tab. All element
// discovery runs as page JavaScript so a query and its field extraction are
// one atomic read of the DOM.
type cdpDriver struct {
	tabCtx        context.Context
	logger        *zap.Logger
	actionTimeout time.Duration

	// Seams for tests; default to the chromedp-backed implementations.
	runActionsFunc func(ctx context.Context, actions ...chromedp.Action) error
	evalFunc       func(ctx context.Context, script string) (jsoniter.RawMessage, error)
}

var (
	_ browser.Driver   = (*cdpDriver)(nil)
	_ browser.Capturer = (*cdpDriver)(nil)
)

func newDriver(tabCtx context.Context, logger *zap.Logger, actionTimeout time.Duration) *cdpDriver {
	if actionTimeout <= 0 {
		actionTimeout = 10 * time.Second
	}
	d := &cdpDriver{
		tabCtx:        tabCtx,
		logger:        logger.Named("driver"),
		actionTimeout: actionTimeout,
	}
	d.runActionsFunc = d.runActions
	d.evalFunc = d.evaluate
	return d
}

// wireQuery is the JSON shape of browser.Query consumed by the page scripts.
type wireQuery struct {
	By     string            `json:"by"`
	Expr   string            `json:"expr"`
	Fields map[string]string `json:"fields,omitempty"`
	Scope  string            `json:"scope,omitempty"`
}

func toWire(q browser.Query) wireQuery {
	return wireQuery{By: q.By.String(), Expr: q.Expr, Fields: q.Fields, Scope: q.Scope}
}

type wireElement struct {
	Ref     string            `json:"ref"`
	Text    string            `json:"text"`
	Class   string            `json:"class"`
	Value   string            `json:"value"`
	Enabled bool              `json:"enabled"`
	Fields  map[string]string `json:"fields"`
}

func (d *cdpDriver) Find(ctx context.Context, q browser.Query) ([]browser.Element, error) {
	raw, err := d.evalFunc(ctx, fmt.Sprintf(findScript, jsonEncode(toWire(q))))
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", q, err)
	}

	var wire []wireElement
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("failed to decode find result for %s: %w (payload: %s)", q, err, string(raw))
	}
	out := make([]browser.Element, 0, len(wire))
	for _, w := range wire {
		out = append(out, browser.Element{
			Ref:     w.Ref,
			Text:    w.Text,
			Class:   w.Class,
			Value:   w.Value,
			Enabled: w.Enabled,
			Fields:  w.Fields,
		})
	}
	return out, nil
}

// Click checks that el is still attached, then issues a native click. The
// script click fallback runs only when the native click never reached the
// node (it did not become visible in time or had no box model); any other
// failure may have already dispatched input and is returned as is.
func (d *cdpDriver) Click(ctx context.Context, el browser.Element) error {
	if err := d.checkRef(ctx, checkRefScript, el.Ref); err != nil {
		return err
	}

	opCtx, cancel := context.WithTimeout(ctx, d.actionTimeout)
	defer cancel()
	err := d.runActionsFunc(opCtx, chromedp.Click(refSelector(el.Ref), chromedp.ByQuery, chromedp.NodeVisible))
	if err == nil {
		return nil
	}
	if errors.Is(err, browser.ErrSessionLost) || ctx.Err() != nil {
		return err
	}
	if !clickUndispatched(opCtx, err) {
		return fmt.Errorf("click failed for ref '%s': %w", el.Ref, err)
	}

	d.logger.Debug("Native click never reached the node; falling back to script click.", zap.String("ref", el.Ref), zap.Error(err))
	return d.checkRef(ctx, jsClickScript, el.Ref)
}

// clickUndispatched reports whether a failed native click stopped before any
// mouse event was sent.
func clickUndispatched(opCtx context.Context, err error) bool {
	if errors.Is(opCtx.Err(), context.DeadlineExceeded) {
		return true
	}
	return errors.Is(err, chromedp.ErrInvalidBoxModel) ||
		errors.Is(err, chromedp.ErrNotVisible) ||
		errors.Is(err, chromedp.ErrNoResults)
}

func (d *cdpDriver) Type(ctx context.Context, el browser.Element, text string) error {
	if err := d.checkRef(ctx, clearInputScript, el.Ref); err != nil {
		return err
	}

	opCtx, cancel := context.WithTimeout(ctx, d.actionTimeout)
	defer cancel()
	if err := d.runActionsFunc(opCtx, chromedp.SendKeys(refSelector(el.Ref), text, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("type action failed for ref '%s': %w", el.Ref, err)
	}
	return nil
}

func (d *cdpDriver) Signature(ctx context.Context, probes map[string]browser.Query) (browser.Signature, error) {
	wire := make(map[string]wireQuery, len(probes))
	for name, q := range probes {
		wire[name] = toWire(q)
	}
	raw, err := d.evalFunc(ctx, fmt.Sprintf(signatureScript, jsonEncode(wire)))
	if err != nil {
		return nil, fmt.Errorf("signature: %w", err)
	}
	var sig browser.Signature
	if err := json.Unmarshal(raw, &sig); err != nil {
		return nil, fmt.Errorf("failed to decode signature: %w (payload: %s)", err, string(raw))
	}
	return sig, nil
}

func (d *cdpDriver) Navigate(ctx context.Context, url string) error {
	opCtx, cancel := context.WithTimeout(ctx, 3*d.actionTimeout)
	defer cancel()
	if err := d.runActionsFunc(opCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to '%s': %w", url, err)
	}
	return nil
}

func (d *cdpDriver) Alive(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := d.evalFunc(opCtx, readyStateScript); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: liveness probe failed: %v", browser.ErrSessionLost, err)
	}
	return nil
}

func (d *cdpDriver) Screenshot(ctx context.Context) ([]byte, error) {
	opCtx, cancel := context.WithTimeout(ctx, d.actionTimeout)
	defer cancel()
	var buf []byte
	if err := d.runActionsFunc(opCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

func (d *cdpDriver) PageSource(ctx context.Context) (string, error) {
	opCtx, cancel := context.WithTimeout(ctx, d.actionTimeout)
	defer cancel()
	var html string
	if err := d.runActionsFunc(opCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to capture page source: %w", err)
	}
	return html, nil
}

// checkRef runs one of the ref scripts and maps "stale" to browser.ErrStale.
func (d *cdpDriver) checkRef(ctx context.Context, script, ref string) error {
	raw, err := d.evalFunc(ctx, fmt.Sprintf(script, jsonEncode(ref)))
	if err != nil {
		return err
	}
	var verdict string
	if err := json.Unmarshal(raw, &verdict); err != nil {
		return fmt.Errorf("failed to decode ref check: %w", err)
	}
	if verdict != "ok" {
		return fmt.Errorf("ref %s: %w", ref, browser.ErrStale)
	}
	return nil
}

// evaluate runs script in the page and returns its JSON value.
func (d *cdpDriver) evaluate(ctx context.Context, script string) (jsoniter.RawMessage, error) {
	opCtx, cancel := context.WithTimeout(ctx, d.actionTimeout)
	defer cancel()

	var res jsoniter.RawMessage
	err := d.runActionsFunc(opCtx,
		chromedp.Evaluate(script, &res, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
		}),
	)
	if err != nil {
		if opCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, fmt.Errorf("script evaluation timed out after %v: %w", d.actionTimeout, err)
		}
		return nil, err
	}
	return res, nil
}

// runActions executes actions on the tab, bounded by ctx. A dead tab is
// reported as browser.ErrSessionLost.
func (d *cdpDriver) runActions(ctx context.Context, actions ...chromedp.Action) error {
	if d.tabCtx.Err() != nil {
		return browser.ErrSessionLost
	}
	opCtx, cancel := CombineContext(d.tabCtx, ctx)
	defer cancel()

	err := chromedp.Run(opCtx, actions...)
	if err != nil && d.tabCtx.Err() != nil {
		return fmt.Errorf("%w: %v", browser.ErrSessionLost, err)
	}
	return err
}

func refSelector(ref string) string {
	return fmt.Sprintf(`[%s=%q]`, refAttr, ref)
}

func jsonEncode(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

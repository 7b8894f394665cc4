// File: internal/browser/page.go
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"
)

// Page drives one WhatsApp Web tab over CDP. It is the concrete DOM the
// delivery driver runs against.
type Page struct {
	handle   *Handle
	resolver *Resolver
	logger   *zap.Logger
}

func NewPage(handle *Handle, logger *zap.Logger) *Page {
	return &Page{
		handle:   handle,
		resolver: NewResolver(logger),
		logger:   logger.Named("page"),
	}
}

// Context exposes the tab context for capabilities layered on the same
// session, such as the file chooser injector.
func (p *Page) Context() context.Context { return p.handle.Ctx }

func (p *Page) Navigate(ctx context.Context, url string) error {
	tctx, cancel := p.tabCtx(ctx)
	defer cancel()
	return chromedp.Run(tctx, chromedp.Navigate(url))
}

// Resolve waits for a target per the predicate within the budget.
func (p *Page) Resolve(ctx context.Context, target string, pred Predicate, budget time.Duration) error {
	tctx, cancel := p.tabCtx(ctx)
	defer cancel()
	_, err := p.resolver.Resolve(tctx, target, pred, budget)
	return err
}

// Probe checks for a target without waiting.
func (p *Page) Probe(ctx context.Context, target string) (bool, error) {
	tctx, cancel := p.tabCtx(ctx)
	defer cancel()
	return p.resolver.Probe(tctx, target)
}

// Click resolves the target to a clickable element then clicks it through
// the input domain.
func (p *Page) Click(ctx context.Context, target string, budget time.Duration) error {
	tctx, cancel := p.tabCtx(ctx)
	defer cancel()
	loc, err := p.resolver.Resolve(tctx, target, Clickable, budget)
	if err != nil {
		return err
	}
	return chromedp.Run(tctx, chromedp.Click(loc.Expr, queryOption(loc)))
}

// ClickIfPresent clicks the target only when a probe sees it. Returns
// whether a click happened. Used for transient popups that may or may not
// appear.
func (p *Page) ClickIfPresent(ctx context.Context, target string) (bool, error) {
	tctx, cancel := p.tabCtx(ctx)
	defer cancel()
	found, err := p.resolver.Probe(tctx, target)
	if err != nil || !found {
		return false, err
	}
	locs := LocatorsFor(target)
	var clicked bool
	if err := chromedp.Run(tctx, chromedp.Evaluate(clickScript(locs), &clicked)); err != nil {
		return false, err
	}
	return clicked, nil
}

// ClickScript clicks the target with a programmatic el.click() instead of a
// synthesized mouse event. The send button sits inside a footer WhatsApp
// re-renders as the caption fills in, which makes coordinate clicks miss.
func (p *Page) ClickScript(ctx context.Context, target string, budget time.Duration) error {
	tctx, cancel := p.tabCtx(ctx)
	defer cancel()
	if _, err := p.resolver.Resolve(tctx, target, Present, budget); err != nil {
		return err
	}
	var clicked bool
	if err := chromedp.Run(tctx, chromedp.Evaluate(clickScript(LocatorsFor(target)), &clicked)); err != nil {
		return err
	}
	if !clicked {
		return &ElementNotFoundError{Target: target, Last: fmt.Errorf("script click matched nothing")}
	}
	return nil
}

// InsertText places text into a contenteditable target. A synthetic paste
// event goes in first so multi-line templates land as one input mutation;
// when the page swallows the event we fall back to key-by-key typing.
func (p *Page) InsertText(ctx context.Context, target string, text string, budget time.Duration) error {
	tctx, cancel := p.tabCtx(ctx)
	defer cancel()
	loc, err := p.resolver.Resolve(tctx, target, Clickable, budget)
	if err != nil {
		return err
	}
	opt := queryOption(loc)

	if err := chromedp.Run(tctx, chromedp.Click(loc.Expr, opt)); err != nil {
		return err
	}

	var pasted bool
	if err := chromedp.Run(tctx, chromedp.Evaluate(pasteScript(loc, text), &pasted)); err != nil {
		return err
	}
	if pasted {
		return nil
	}

	p.logger.Debug("Paste event ignored, typing text", zap.String("target", target))
	return chromedp.Run(tctx, chromedp.SendKeys(loc.Expr, text, opt))
}

// pasteScript dispatches a ClipboardEvent carrying the text at the element.
// WhatsApp's editor handles paste natively, which preserves newlines that
// plain key events would submit early.
func pasteScript(loc Locator, text string) string {
	expr, _ := json.Marshal(loc.Expr)
	payload, _ := json.Marshal(text)
	finder := fmt.Sprintf("document.querySelector(%s)", expr)
	if loc.Kind == ByXPath {
		finder = fmt.Sprintf(
			"document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue",
			expr)
	}
	return fmt.Sprintf(`(function(){
  try {
    var el = %s;
    if (!el) { return false; }
    el.focus();
    var dt = new DataTransfer();
    dt.setData('text/plain', %s);
    var ev = new ClipboardEvent('paste', { clipboardData: dt, bubbles: true, cancelable: true });
    el.dispatchEvent(ev);
    return (el.textContent || '').length > 0;
  } catch (e) { return false; }
})()`, finder, payload)
}

// PressEscape sends Escape to the page, dismissing whatever modal holds
// focus.
func (p *Page) PressEscape(ctx context.Context) error {
	tctx, cancel := p.tabCtx(ctx)
	defer cancel()
	return chromedp.Run(tctx, chromedp.KeyEvent(kb.Escape))
}

// EvaluateBool runs a JS expression expected to yield a boolean.
func (p *Page) EvaluateBool(ctx context.Context, script string) (bool, error) {
	tctx, cancel := p.tabCtx(ctx)
	defer cancel()
	var out bool
	if err := chromedp.Run(tctx, chromedp.Evaluate(script, &out)); err != nil {
		return false, err
	}
	return out, nil
}

// tabCtx layers the caller's cancellation onto the attached tab context so
// stop requests cut through in-flight CDP waits. The returned cancel must
// run when the operation completes; it releases the propagation hook and
// the child context, so per-operation contexts never outlive their call.
func (p *Page) tabCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(p.handle.Ctx)
	stop := context.AfterFunc(ctx, cancel)
	return merged, func() {
		stop()
		cancel()
	}
}

// File: internal/browser/resolver.go
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ElementNotFoundError is returned when no locator of a target resolved
// within the wait budget. Last carries the final underlying wait error.
type ElementNotFoundError struct {
	Target string
	Last   error
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("element %q not found with any registered locator: %v", e.Target, e.Last)
}

func (e *ElementNotFoundError) Unwrap() error { return e.Last }

// Resolver tries a target's locators in declared order and reports the first
// that satisfies the requested predicate within a shared wait budget.
type Resolver struct {
	targets map[string][]Locator
	logger  *zap.Logger
}

// NewResolver builds a resolver over the package-level target registry.
func NewResolver(logger *zap.Logger) *Resolver {
	return &Resolver{targets: Targets, logger: logger.Named("resolver")}
}

// queryOption maps a locator kind to the matching chromedp query strategy.
func queryOption(l Locator) chromedp.QueryOption {
	if l.Kind == ByXPath {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

// Resolve attempts each locator in order against the tab behind ctx and
// returns the winning locator. The budget is shared: each attempt gets an
// equal slice, and the whole call never exceeds the overall bound.
func (r *Resolver) Resolve(ctx context.Context, target string, pred Predicate, budget time.Duration) (Locator, error) {
	locs, ok := r.targets[target]
	if !ok || len(locs) == 0 {
		return Locator{}, &ElementNotFoundError{Target: target, Last: fmt.Errorf("no locators registered")}
	}

	overall, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	slice := budget / time.Duration(len(locs))
	if slice < time.Second {
		slice = time.Second
	}

	var last error
	for _, loc := range locs {
		attemptCtx, attemptCancel := context.WithTimeout(overall, slice)
		err := chromedp.Run(attemptCtx, r.waitTask(loc, pred))
		attemptCancel()

		if err == nil {
			r.logger.Debug("Resolved target",
				zap.String("target", target),
				zap.String("locator", loc.Expr))
			return loc, nil
		}
		last = err

		if overall.Err() != nil {
			break
		}
	}

	return Locator{}, &ElementNotFoundError{Target: target, Last: last}
}

func (r *Resolver) waitTask(loc Locator, pred Predicate) chromedp.Action {
	opt := queryOption(loc)
	if pred == Clickable {
		return chromedp.Tasks{
			chromedp.WaitVisible(loc.Expr, opt),
			chromedp.WaitEnabled(loc.Expr, opt),
		}
	}
	return chromedp.WaitReady(loc.Expr, opt)
}

// Probe is a single-shot, non-waiting existence check across all of a
// target's locators, evaluated in one script. Polling wait loops build on
// this instead of the blocking Resolve.
func (r *Resolver) Probe(ctx context.Context, target string) (bool, error) {
	locs, ok := r.targets[target]
	if !ok {
		return false, fmt.Errorf("unknown selector target %q", target)
	}

	var found bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(probeScript(locs), &found)); err != nil {
		return false, err
	}
	return found, nil
}

// probeScript builds a JS expression that returns true when any locator of
// the list matches the current document.
func probeScript(locs []Locator) string {
	var checks []string
	for _, l := range locs {
		expr, _ := json.Marshal(l.Expr)
		if l.Kind == ByXPath {
			checks = append(checks, fmt.Sprintf(
				`!!document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue`,
				expr))
		} else {
			checks = append(checks, fmt.Sprintf(`!!document.querySelector(%s)`, expr))
		}
	}
	return "(function(){ try { return " + strings.Join(checks, " || ") + "; } catch (e) { return false; } })()"
}

// clickScript builds a JS expression that programmatically clicks the first
// matching element of the list, returning whether anything was clicked.
// A programmatic click avoids coordinate-dependent flakiness on elements
// WhatsApp re-renders mid-interaction.
func clickScript(locs []Locator) string {
	var lines []string
	lines = append(lines, "(function(){ try {", "var el = null;")
	for _, l := range locs {
		expr, _ := json.Marshal(l.Expr)
		if l.Kind == ByXPath {
			lines = append(lines, fmt.Sprintf(
				"if (!el) { el = document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue; }",
				expr))
		} else {
			lines = append(lines, fmt.Sprintf("if (!el) { el = document.querySelector(%s); }", expr))
		}
	}
	lines = append(lines,
		"if (!el) { return false; }",
		"el.click();",
		"return true;",
		"} catch (e) { return false; } })()")
	return strings.Join(lines, "\n")
}

// File: internal/browser/inject.go
package browser

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ChooserInjector fulfils native file-chooser dialogs over CDP. Arming it
// intercepts chooser openings on the tab; Inject then answers the next one
// with a concrete file path, so no OS dialog ever appears.
type ChooserInjector struct {
	tab    context.Context
	opened chan *page.EventFileChooserOpened
	logger *zap.Logger
}

// NewChooserInjector arms interception on the handle's tab. Must be called
// before the click that would open the dialog.
func NewChooserInjector(handle *Handle, logger *zap.Logger) (*ChooserInjector, error) {
	ci := &ChooserInjector{
		tab:    handle.Ctx,
		opened: make(chan *page.EventFileChooserOpened, 1),
		logger: logger.Named("injector"),
	}

	chromedp.ListenTarget(handle.Ctx, func(ev interface{}) {
		if e, ok := ev.(*page.EventFileChooserOpened); ok {
			select {
			case ci.opened <- e:
			default:
			}
		}
	})

	if err := chromedp.Run(handle.Ctx, page.SetInterceptFileChooserDialog(true)); err != nil {
		return nil, fmt.Errorf("arm file chooser interception: %w", err)
	}
	return ci, nil
}

// Inject waits for the intercepted chooser to open and sets the file on its
// backing input node. path is made absolute first: CDP resolves relative
// paths against the browser's cwd, not ours.
func (ci *ChooserInjector) Inject(ctx context.Context, path string, wait time.Duration) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve attachment path: %w", err)
	}

	var ev *page.EventFileChooserOpened
	select {
	case ev = <-ci.opened:
	case <-time.After(wait):
		return fmt.Errorf("file chooser never opened within %s", wait)
	case <-ctx.Done():
		return ctx.Err()
	}

	ci.logger.Debug("File chooser intercepted", zap.String("path", abs))

	setFiles := dom.SetFileInputFiles([]string{abs}).WithBackendNodeID(ev.BackendNodeID)
	if err := chromedp.Run(ci.tab, chromedp.ActionFunc(func(cctx context.Context) error {
		return setFiles.Do(cctx)
	})); err != nil {
		return fmt.Errorf("set file input: %w", err)
	}
	return nil
}

// Disarm turns interception back off so later manual use of the browser
// gets a real dialog.
func (ci *ChooserInjector) Disarm() error {
	return chromedp.Run(ci.tab, page.SetInterceptFileChooserDialog(false))
}

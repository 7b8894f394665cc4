// File: internal/driver/driver.go

// Package driver walks one contact through the WhatsApp Web send flow:
// open the chat via the deep link, attach the image, caption it with the
// personalized message, and confirm the send. Every step classifies its
// failure so the orchestrator can tell a bad number from a broken page.
package driver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mpellegro/wasend-cli/internal/browser"
	"github.com/mpellegro/wasend-cli/internal/config"
	"github.com/mpellegro/wasend-cli/internal/contacts"
)

// DOM is the slice of browser behavior the driver needs. The concrete
// implementation is browser.Page; tests script a fake.
type DOM interface {
	Navigate(ctx context.Context, url string) error
	Resolve(ctx context.Context, target string, pred browser.Predicate, budget time.Duration) error
	Probe(ctx context.Context, target string) (bool, error)
	Click(ctx context.Context, target string, budget time.Duration) error
	ClickIfPresent(ctx context.Context, target string) (bool, error)
	ClickScript(ctx context.Context, target string, budget time.Duration) error
	InsertText(ctx context.Context, target, text string, budget time.Duration) error
	PressEscape(ctx context.Context) error
}

// FileInjector answers the file chooser that opens when the media menu item
// is clicked.
type FileInjector interface {
	Inject(ctx context.Context, path string, wait time.Duration) error
}

const chatDeepLink = "https://web.whatsapp.com/send?phone=%s"

// Driver executes the delivery sequence against a DOM.
type Driver struct {
	dom      DOM
	injector FileInjector
	cfg      config.SendConfig
	logger   *zap.Logger

	// sleep is swapped out in tests so settle delays do not run wall-clock.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(dom DOM, injector FileInjector, cfg config.SendConfig, logger *zap.Logger) *Driver {
	return &Driver{
		dom:      dom,
		injector: injector,
		cfg:      cfg,
		logger:   logger.Named("driver"),
		sleep:    ctxSleep,
	}
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// PersonalizeMessage substitutes the contact's first name into the
// template.
func PersonalizeMessage(template, firstName string) string {
	return strings.ReplaceAll(template, "{first_name}", firstName)
}

// Send runs the full delivery sequence for one contact. A nil return means
// the send was confirmed; otherwise the error is one of the typed failures
// in errors.go (or a raw context/transport error, which the caller treats
// as a possible session loss).
func (d *Driver) Send(ctx context.Context, c contacts.Contact) error {
	log := d.logger.With(zap.String("phone", c.PhoneClean), zap.Int("row", c.RowNumber))
	log.Info("Opening chat")

	if err := d.dom.Navigate(ctx, fmt.Sprintf(chatDeepLink, c.PhoneClean)); err != nil {
		return fmt.Errorf("navigate to chat: %w", err)
	}

	if err := d.awaitChatOrError(ctx, c.PhoneClean); err != nil {
		return err
	}
	if err := d.sleep(ctx, d.cfg.Settle.AfterChatLoad); err != nil {
		return err
	}

	if err := d.attachMedia(ctx, c.PhoneClean); err != nil {
		return err
	}

	if err := d.awaitPreview(ctx, c.PhoneClean); err != nil {
		return err
	}

	if err := d.injectCaption(ctx, c); err != nil {
		return err
	}

	log.Info("Sending")
	if err := d.dom.ClickScript(ctx, "send_button", d.cfg.StepTimeout); err != nil {
		return d.classify(c.PhoneClean, "send", err)
	}

	if err := d.verify(ctx, c.PhoneClean); err != nil {
		return err
	}

	log.Info("Send confirmed")
	return nil
}

// awaitChatOrError polls until the chat is ready, the number is rejected,
// or the step budget runs out. WhatsApp surfaces an unknown number as a
// modal popup rather than an error page, so the loop races the popup and
// the composer.
func (d *Driver) awaitChatOrError(ctx context.Context, phone string) error {
	deadline := time.Now().Add(d.cfg.StepTimeout)
	for time.Now().Before(deadline) {
		bad, err := d.dom.Probe(ctx, "invalid_phone_popup")
		if err != nil {
			return fmt.Errorf("probe invalid-phone popup: %w", err)
		}
		if bad {
			d.dismissPopup(ctx)
			return &ContactNotFoundError{Phone: phone}
		}

		// Some sessions interpose a "Continue to Chat" interstitial.
		if clicked, err := d.dom.ClickIfPresent(ctx, "continue_to_chat"); err != nil {
			return fmt.Errorf("click continue-to-chat: %w", err)
		} else if clicked {
			d.logger.Debug("Clicked through interstitial", zap.String("phone", phone))
		}

		ready, err := d.dom.Probe(ctx, "message_input")
		if err != nil {
			return fmt.Errorf("probe composer: %w", err)
		}
		if ready {
			return nil
		}

		if err := d.sleep(ctx, 500*time.Millisecond); err != nil {
			return err
		}
	}
	return &SendTimeoutError{Phone: phone, Step: "await chat"}
}

// dismissPopup clears the invalid-number modal so the tab is usable for the
// next contact. Best effort: an unclosable popup still goes away on the
// next navigation.
func (d *Driver) dismissPopup(ctx context.Context) {
	clicked, err := d.dom.ClickIfPresent(ctx, "popup_ok_button")
	if err != nil || !clicked {
		_ = d.dom.PressEscape(ctx)
	}
}

// attachMedia opens the attach menu and selects the image. Clicking the
// media item opens the intercepted file chooser, which the injector then
// answers.
func (d *Driver) attachMedia(ctx context.Context, phone string) error {
	if err := d.dom.Click(ctx, "attach_button", d.cfg.StepTimeout); err != nil {
		return d.classify(phone, "open attach menu", err)
	}
	if err := d.sleep(ctx, d.cfg.Settle.AfterMenuClick); err != nil {
		return err
	}

	if err := d.dom.Click(ctx, "photos_and_videos", d.cfg.StepTimeout); err != nil {
		return d.classify(phone, "select media type", err)
	}

	if err := d.injector.Inject(ctx, d.cfg.ImagePath, d.cfg.StepTimeout); err != nil {
		return &DeliveryError{Phone: phone, Step: "inject file", Err: err}
	}

	return d.sleep(ctx, d.cfg.Settle.AfterFileInject)
}

// awaitPreview waits for the attachment preview, whose caption box is the
// readiness signal.
func (d *Driver) awaitPreview(ctx context.Context, phone string) error {
	if err := d.dom.Resolve(ctx, "caption_input", browser.Present, d.cfg.StepTimeout); err != nil {
		return d.classify(phone, "await preview", err)
	}
	return nil
}

func (d *Driver) injectCaption(ctx context.Context, c contacts.Contact) error {
	if err := d.sleep(ctx, d.cfg.Settle.BeforeCaption); err != nil {
		return err
	}
	msg := PersonalizeMessage(d.cfg.Template, c.FirstName)
	if err := d.dom.InsertText(ctx, "caption_input", msg, d.cfg.StepTimeout); err != nil {
		return d.classify(c.PhoneClean, "type caption", err)
	}
	return nil
}

// verify confirms the preview closed and the chat composer came back. If
// the page never settles we cannot tell whether the message left, so the
// failure is reported as a timeout rather than a hard error.
func (d *Driver) verify(ctx context.Context, phone string) error {
	if err := d.sleep(ctx, d.cfg.Settle.AfterSend); err != nil {
		return err
	}

	previewOpen, err := d.dom.Probe(ctx, "caption_input")
	if err != nil {
		return fmt.Errorf("probe preview: %w", err)
	}
	if previewOpen {
		return &SendTimeoutError{Phone: phone, Step: "verify"}
	}

	// The composer takes a moment to come back after the preview closes,
	// so wait for it rather than spot-checking.
	if err := d.dom.Resolve(ctx, "message_input", browser.Present, d.cfg.StepTimeout); err != nil {
		var nf *browser.ElementNotFoundError
		if errors.As(err, &nf) {
			return &SendTimeoutError{Phone: phone, Step: "verify"}
		}
		return err
	}
	return nil
}

// classify maps a step failure onto the error taxonomy. Element lookups
// that fail mid-flow become DeliveryError; anything else passes through for
// the orchestrator's session check.
func (d *Driver) classify(phone, step string, err error) error {
	var nf *browser.ElementNotFoundError
	if errors.As(err, &nf) {
		return &DeliveryError{Phone: phone, Step: step, Err: err}
	}
	return err
}

// Connected reports whether the session is authenticated and online. A
// visible QR code means logged out; the disconnected banner means the
// paired phone dropped off.
func (d *Driver) Connected(ctx context.Context) (bool, error) {
	qr, err := d.dom.Probe(ctx, "qr_code")
	if err != nil {
		return false, err
	}
	if qr {
		d.logger.Warn("QR code visible, session is logged out")
		return false, nil
	}

	offline, err := d.dom.Probe(ctx, "phone_disconnected")
	if err != nil {
		return false, err
	}
	if offline {
		d.logger.Warn("Phone disconnected banner visible")
		return false, nil
	}
	return true, nil
}

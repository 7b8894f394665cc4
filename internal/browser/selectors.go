// File: internal/browser/selectors.go
package browser

// LocatorKind distinguishes how a locator expression is interpreted.
type LocatorKind string

const (
	ByCSS   LocatorKind = "css"
	ByXPath LocatorKind = "xpath"
)

// Locator is one concrete strategy for finding a logical UI target.
type Locator struct {
	Kind LocatorKind
	Expr string
}

// Predicate is the resolution condition a caller requires of a target:
// merely present in the document, or visible and enabled for invocation.
type Predicate int

const (
	Present Predicate = iota
	Clickable
)

// Targets maps logical element names to ordered fallback locators.
// WhatsApp Web changes its markup without notice; the ordered list converts
// many classes of breakage into silent recovery. Centralized so a UI change
// touches one table. Never mutated at runtime.
var Targets = map[string][]Locator{
	"message_input": {
		{ByCSS, `div[contenteditable="true"][data-tab="10"]`},
		{ByCSS, `div[contenteditable="true"][title="Type a message"]`},
		{ByCSS, `footer div[contenteditable="true"]`},
	},
	"attach_button": {
		{ByCSS, `span[data-icon="plus-rounded"]`},
		{ByCSS, `div[title="Attach"]`},
		{ByCSS, `span[data-icon="plus"]`},
		{ByCSS, `span[data-icon="attach-menu-plus"]`},
		{ByCSS, `div[aria-label="Attach"]`},
	},
	"photos_and_videos": {
		{ByCSS, `div[aria-label="Photos & videos"]`},
		{ByXPath, `//div[@role="listitem" and .//span[text()="Photos & videos"]]`},
		{ByXPath, `//*[contains(text(), "Photos & videos")]`},
	},
	"caption_input": {
		{ByCSS, `div[contenteditable="true"][data-tab="undefined"]`},
		{ByXPath, `//div[@contenteditable="true" and @data-tab="undefined" and @role="textbox"]`},
		{ByXPath, `//div[@contenteditable="true" and contains(@aria-placeholder, "caption")]`},
		{ByXPath, `//div[@contenteditable="true" and contains(@aria-placeholder, "Add a")]`},
	},
	"send_button": {
		{ByCSS, `span[data-icon="wds-ic-send-filled"]`},
		{ByCSS, `div[aria-label="Send"]`},
		{ByCSS, `span[data-icon="send"]`},
		{ByCSS, `div[role="button"][aria-label="Send"]`},
	},
	"invalid_phone_popup": {
		{ByXPath, `//*[contains(text(), "Phone number shared via url is invalid")]`},
		{ByXPath, `//*[contains(text(), "phone number shared via url is invalid")]`},
	},
	"popup_ok_button": {
		{ByXPath, `//div[@role="button" and .//div[text()="OK"]]`},
		{ByXPath, `//div[contains(@class, "popup")]//div[@role="button"]`},
	},
	"continue_to_chat": {
		{ByXPath, `//div[@role="button" and .//div[text()="Continue to Chat"]]`},
		{ByXPath, `//*[contains(text(), "Continue to Chat")]`},
	},
	"qr_code": {
		{ByCSS, `canvas[aria-label="Scan this QR code to link a device!"]`},
	},
	"phone_disconnected": {
		{ByXPath, `//*[contains(text(), "Phone not connected")]`},
	},
}

// LocatorsFor returns the registered locator list for a logical target
// name, nil when unregistered.
func LocatorsFor(name string) []Locator {
	return Targets[name]
}

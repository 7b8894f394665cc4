// File: internal/diagnose/diagnose.go

// Package diagnose captures a structured snapshot of the WhatsApp Web DOM.
// When a selector drifts after a frontend update, the snapshot shows which
// icons, editors, and inputs the page currently exposes, so the registry
// can be fixed without poking around devtools.
package diagnose

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Icon is one data-icon span on the page. WhatsApp keys most of its
// actionable controls off these.
type Icon struct {
	Name    string `json:"name"`
	Aria    string `json:"aria,omitempty"`
	Visible bool   `json:"visible"`
}

// Editable is one contenteditable region, the shape both the composer and
// the caption box take.
type Editable struct {
	Aria   string `json:"aria,omitempty"`
	TestID string `json:"test_id,omitempty"`
}

// Report is the full snapshot.
type Report struct {
	CapturedAt time.Time  `json:"captured_at"`
	URL        string     `json:"url"`
	Title      string     `json:"title"`
	Icons      []Icon     `json:"icons"`
	Editables  []Editable `json:"editables"`
	FileInputs int        `json:"file_inputs"`
	Dialogs    []string   `json:"dialogs"`
}

// snapshotScript walks the live DOM and returns the report fields computed
// in-page, where visibility is cheap to check.
const snapshotScript = `(function(){
  var icons = [];
  document.querySelectorAll('span[data-icon]').forEach(function(el){
    var r = el.getBoundingClientRect();
    icons.push({
      name: el.getAttribute('data-icon'),
      aria: el.getAttribute('aria-label') || (el.closest('[aria-label]') || {getAttribute:function(){return ''}}).getAttribute('aria-label') || '',
      visible: r.width > 0 && r.height > 0
    });
  });

  var editables = [];
  document.querySelectorAll('div[contenteditable="true"]').forEach(function(el){
    editables.push({
      aria: el.getAttribute('aria-label') || '',
      test_id: el.getAttribute('data-testid') || ''
    });
  });

  var dialogs = [];
  document.querySelectorAll('div[role="dialog"]').forEach(function(el){
    dialogs.push((el.textContent || '').slice(0, 200));
  });

  return {
    url: location.href,
    title: document.title,
    icons: icons,
    editables: editables,
    file_inputs: document.querySelectorAll('input[type="file"]').length,
    dialogs: dialogs
  };
})()`

// Capture evaluates the snapshot script against the tab behind ctx.
func Capture(ctx context.Context) (Report, error) {
	var report Report
	if err := chromedp.Run(ctx, chromedp.Evaluate(snapshotScript, &report)); err != nil {
		return Report{}, fmt.Errorf("capture dom snapshot: %w", err)
	}
	report.CapturedAt = time.Now()
	return report, nil
}

// Write persists the report as indented JSON.
func Write(path string, report Report) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Summarize logs the highlights an operator needs at a glance.
func Summarize(report Report, logger *zap.Logger) {
	visible := 0
	for _, ic := range report.Icons {
		if ic.Visible {
			visible++
		}
	}
	logger.Info("DOM snapshot",
		zap.String("url", report.URL),
		zap.Int("icons_total", len(report.Icons)),
		zap.Int("icons_visible", visible),
		zap.Int("editables", len(report.Editables)),
		zap.Int("file_inputs", report.FileInputs),
		zap.Int("dialogs", len(report.Dialogs)))
}

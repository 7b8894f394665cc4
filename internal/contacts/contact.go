// File: internal/contacts/contact.go
package contacts

import (
	"regexp"
	"strings"
)

// Contact is one pending recipient pulled from the sheet. Immutable for the
// duration of a run; RowNumber is the 1-indexed sheet row used for status
// write-back.
type Contact struct {
	RowNumber  int    `json:"row_number"`
	SortName   string `json:"sort_name"`
	FirstName  string `json:"first_name"`
	PhoneRaw   string `json:"phone_raw"`
	PhoneClean string `json:"phone_clean"`
}

// firstNameFallback is used when a row has no usable name at all.
const firstNameFallback = "there"

var sheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9_-]+)`)

// NormalizePhone reduces a raw phone value to digits only, preserving order,
// suitable for the wa.me deep link. "+1 347 551-1532" -> "13475511532".
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ExtractFirstName pulls the first name out of a "Last, First" sort name.
// A comma-free name is returned trimmed as-is; an empty or whitespace-only
// value yields the generic fallback.
func ExtractFirstName(sortName string) string {
	trimmed := strings.TrimSpace(sortName)
	if trimmed == "" {
		return firstNameFallback
	}
	if i := strings.Index(trimmed, ","); i >= 0 {
		first := strings.TrimSpace(trimmed[i+1:])
		if first == "" {
			return firstNameFallback
		}
		return first
	}
	return trimmed
}

// ExtractSheetID parses the spreadsheet ID out of a full Google Sheets URL.
// Returns "" when the URL does not contain a /spreadsheets/d/ segment.
func ExtractSheetID(url string) string {
	m := sheetIDPattern.FindStringSubmatch(url)
	if m == nil {
		return ""
	}
	return m[1]
}

// ParseRows converts raw sheet values (columns A:D: status, id, sort name,
// phone) into pending contacts, in row order, capped at limit. Row 1 is the
// header. Rows with a non-empty status, a missing phone, or a phone that
// normalizes to nothing are skipped.
func ParseRows(rows [][]string, limit int) []Contact {
	pending := make([]Contact, 0, limit)
	for idx, row := range rows {
		if idx == 0 {
			continue // header
		}
		if len(pending) >= limit {
			break
		}

		padded := make([]string, 4)
		copy(padded, row)

		if strings.TrimSpace(padded[0]) != "" {
			continue
		}
		phoneRaw := strings.TrimSpace(padded[3])
		if phoneRaw == "" {
			continue
		}
		phoneClean := NormalizePhone(phoneRaw)
		if phoneClean == "" {
			continue
		}

		sortName := strings.TrimSpace(padded[2])
		pending = append(pending, Contact{
			RowNumber:  idx + 1, // values are 0-indexed from row 1
			SortName:   sortName,
			FirstName:  ExtractFirstName(sortName),
			PhoneRaw:   phoneRaw,
			PhoneClean: phoneClean,
		})
	}
	return pending
}

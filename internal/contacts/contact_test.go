// File: internal/contacts/contact_test.go
package contacts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"us with punctuation", "+1 347 551-1532", "13475511532"},
		{"israel with spaces", "+972 52 599-7530", "972525997530"},
		{"already clean", "16145541758", "16145541758"},
		{"parens and dots", "(614) 554.1758", "6145541758"},
		{"empty", "", ""},
		{"no digits", "+- ()", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizePhone(tc.in))
		})
	}
}

func TestExtractFirstName(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"last comma first", "Lauren, David", "David"},
		{"multi-word last name", "Lorenzo Nourafchan, Moshe", "Moshe"},
		{"no comma", "David", "David"},
		{"no comma padded", "  David  ", "David"},
		{"empty", "", "there"},
		{"whitespace only", "   ", "there"},
		{"comma with empty first", "Lauren, ", "there"},
		{"splits on first comma only", "Doe, Jane, Jr", "Jane, Jr"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractFirstName(tc.in))
		})
	}
}

func TestExtractSheetID(t *testing.T) {
	assert.Equal(t, "ABC123",
		ExtractSheetID("https://docs.google.com/spreadsheets/d/ABC123/edit#gid=0"))
	assert.Equal(t, "1aB_c-9",
		ExtractSheetID("https://docs.google.com/spreadsheets/d/1aB_c-9/"))
	assert.Equal(t, "", ExtractSheetID("https://docs.google.com/document/d/XYZ/edit"))
	assert.Equal(t, "", ExtractSheetID(""))
}

func TestParseRows(t *testing.T) {
	rows := [][]string{
		{"Status", "ID", "Sort Name", "Phone"},            // header, row 1
		{"", "101", "Lauren, David", "+1 347 551-1532"},   // row 2, pending
		{"1", "102", "Smith, Anna", "+1 614 554 1758"},    // row 3, already sent
		{"", "103", "Jones, Ben", ""},                     // row 4, no phone
		{"", "104", "", "+972 52 599-7530"},               // row 5, no name
		{"0", "105", "Park, Min", "+1 222 333 4444"},      // row 6, already failed
		{"", "106", "Rivera, Sol", "+- ()"},               // row 7, phone normalizes empty
		{"", "107", "Nguyen, Mai", "+84 90 123 4567"},     // row 8, pending
	}

	pending := ParseRows(rows, 10)
	require.Len(t, pending, 3)

	assert.Equal(t, 2, pending[0].RowNumber)
	assert.Equal(t, "David", pending[0].FirstName)
	assert.Equal(t, "13475511532", pending[0].PhoneClean)

	// Nameless rows still send, with the generic fallback.
	assert.Equal(t, 5, pending[1].RowNumber)
	assert.Equal(t, "there", pending[1].FirstName)

	assert.Equal(t, 8, pending[2].RowNumber)
	assert.Equal(t, "Mai", pending[2].FirstName)
}

func TestParseRows_LimitAndOrder(t *testing.T) {
	rows := [][]string{
		{"Status", "ID", "Sort Name", "Phone"},
		{"", "1", "A, One", "111"},
		{"", "2", "B, Two", "222"},
		{"", "3", "C, Three", "333"},
	}

	pending := ParseRows(rows, 2)
	require.Len(t, pending, 2)
	assert.Equal(t, "One", pending[0].FirstName)
	assert.Equal(t, "Two", pending[1].FirstName)
}

func TestParseRows_ShortRowsArePadded(t *testing.T) {
	rows := [][]string{
		{"Status"},
		{"", "1"}, // no name or phone columns at all
	}
	assert.Empty(t, ParseRows(rows, 5))
}

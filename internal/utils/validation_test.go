package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePositiveInt(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    int
		wantErr string
	}{
		{name: "valid", value: "10", want: 10},
		{name: "surrounding spaces", value: " 7 ", want: 7},
		{name: "zero", value: "0", wantErr: `Field "rows" must be a positive integer.`},
		{name: "negative", value: "-3", wantErr: `Field "rows" must be a positive integer.`},
		{name: "not a number", value: "ten", wantErr: `Invalid field value for field "rows".`},
		{name: "float", value: "1.5", wantErr: `Invalid field value for field "rows".`},
		{name: "empty", value: "", wantErr: `Invalid field value for field "rows".`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, fieldErrors := ParsePositiveInt(tt.value, "rows", nil)
			if tt.wantErr != "" {
				assert.Equal(t, []string{tt.wantErr}, fieldErrors["rows"])
				return
			}
			assert.Empty(t, fieldErrors)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestParsePositiveIntAccumulates(t *testing.T) {
	_, fieldErrors := ParsePositiveInt("x", "rows", nil)
	_, fieldErrors = ParsePositiveInt("0", "page", fieldErrors)

	assert.Len(t, fieldErrors, 2)
	assert.Contains(t, fieldErrors, "rows")
	assert.Contains(t, fieldErrors, "page")
}

func TestValidatePageSize(t *testing.T) {
	assert.Empty(t, ValidatePageSize(1000, 1000, nil))
	assert.Equal(t, []string{`Field "rows" must not exceed 1000.`}, ValidatePageSize(1001, 1000, nil)["rows"])
	assert.Empty(t, ValidatePageSize(5000, 0, nil))
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report.csv", "report.csv"},
		{"dir/report.csv", "report.csv"},
		{`C:\Users\me\report.csv`, "report.csv"},
		{"../../etc/passwd", "passwd"},
		{"  spaced.txt ", "spaced.txt"},
		{"bad\x00name.txt", "badname.txt"},
		{"..", ""},
		{"", ""},
		{"/", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.in))
		})
	}
}

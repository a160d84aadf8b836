package validate

import "fmt"

// Text field length limits, shared by the admin API and the page.
const (
	MaxTitleLength      = 200
	MaxUserNameLength   = 50
	MaxVideoInputLength = 200
	MaxImportURLLength  = 2000
	MaxImportTextLength = 256 * 1024
	MaxPasswordLength   = 72
)

func checkLen(value string, max int, field string) string {
	if len(value) > max {
		return fmt.Sprintf("%s must be %d characters or fewer", field, max)
	}
	return ""
}

func Title(s string) string      { return checkLen(s, MaxTitleLength, "title") }
func UserName(s string) string   { return checkLen(s, MaxUserNameLength, "name") }
func VideoInput(s string) string { return checkLen(s, MaxVideoInputLength, "video id or URL") }
func ImportURL(s string) string  { return checkLen(s, MaxImportURLLength, "import URL") }
func ImportText(s string) string { return checkLen(s, MaxImportTextLength, "import text") }
func Password(s string) string   { return checkLen(s, MaxPasswordLength, "password") }

// FieldLimits returns a map of field names to max lengths for the /api/limits endpoint.
func FieldLimits() map[string]int {
	return map[string]int{
		"title":      MaxTitleLength,
		"userName":   MaxUserNameLength,
		"videoInput": MaxVideoInputLength,
		"importURL":  MaxImportURLLength,
		"importText": MaxImportTextLength,
		"password":   MaxPasswordLength,
	}
}

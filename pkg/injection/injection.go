// Package injection screens free-text rating input for SQL injection and
// cross-site scripting payloads using libinjection.
package injection

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// Kind names the class of payload that was detected.
type Kind string

const (
	KindSQLi Kind = "sqli"
	KindXSS  Kind = "xss"
)

// Result describes a detected injection pattern.
type Result struct {
	Kind        Kind   // Which detector matched
	Fingerprint string // libinjection fingerprint (SQLi only)
	Field       string // Name of the field that failed the check
	Value       string // The value that was checked
}

// Check runs both libinjection detectors over value.
// Returns nil when the value is clean.
//
// Example:
//
//	Check("notes", "Helped a lot after two weeks")   // nil
//	Check("notes", "'; DROP TABLE ratings--")        // Kind == KindSQLi
//	Check("notes", "<script>alert(1)</script>")       // Kind == KindXSS
func Check(field, value string) *Result {
	if value == "" {
		return nil
	}

	if isSQLi, fingerprint := libinjection.IsSQLi(value); isSQLi {
		return &Result{
			Kind:        KindSQLi,
			Fingerprint: string(fingerprint),
			Field:       field,
			Value:       value,
		}
	}

	if libinjection.IsXSS(value) {
		return &Result{
			Kind:  KindXSS,
			Field: field,
			Value: value,
		}
	}

	return nil
}

// CheckAll checks every string value in fields and returns one result per
// offending field. Non-string values are skipped.
func CheckAll(fields map[string]any) []*Result {
	var results []*Result
	for name, value := range fields {
		s, ok := value.(string)
		if !ok {
			continue
		}
		if r := Check(name, s); r != nil {
			results = append(results, r)
		}
	}
	return results
}

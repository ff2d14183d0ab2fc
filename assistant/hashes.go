package assistant

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

var hashPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// ParseHashes normalizes user-supplied prompt hashes. Each value may hold
// several hashes separated by commas or whitespace. An entry that is not a
// well-formed hash is an error.
func ParseHashes(values []string) ([]string, error) {
	var hashes []string
	for _, value := range values {
		fields := strings.FieldsFunc(value, func(r rune) bool {
			return r == ',' || unicode.IsSpace(r)
		})
		for _, field := range fields {
			hash := strings.ToLower(field)
			if !hashPattern.MatchString(hash) {
				return nil, fmt.Errorf("invalid prompt hash %q", field)
			}
			hashes = append(hashes, hash)
		}
	}
	return hashes, nil
}

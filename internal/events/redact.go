// SPDX-License-Identifier: AGPL-3.0-or-later
package events

import (
	"regexp"
	"strings"
)

const secretToken = "[secret]"

// SecretToken returns the replacement marker used in redacted text.
func SecretToken() string { return secretToken }

// flag-value and env-assignment forms that carry credentials in command
// lines. The value is replaced, the flag kept so the audit trail stays
// readable.
var secretArgPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(--?(?:password|passwd|token|secret|api-?key)[= ])\S+`),
	regexp.MustCompile(`(?i)\b((?:PASSWORD|TOKEN|SECRET|API_KEY|ACCESS_KEY)[A-Z_]*=)\S+`),
}

// RedactCommand masks credential-bearing values in a command line before
// it is written to the audit trail.
func RedactCommand(command string) string {
	out := command
	for _, rx := range secretArgPatterns {
		out = rx.ReplaceAllString(out, "${1}"+secretToken)
	}
	return out
}

// NewLineRedactor returns a function masking the given literal secret
// values in output lines, or nil when there is nothing to mask.
func NewLineRedactor(secretValues []string) func(string) string {
	filtered := make([]string, 0, len(secretValues))
	for _, val := range secretValues {
		if val != "" {
			filtered = append(filtered, val)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	return func(line string) string {
		for _, secret := range filtered {
			line = strings.ReplaceAll(line, secret, secretToken)
		}
		return line
	}
}

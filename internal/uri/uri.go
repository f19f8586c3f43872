// Package uri normalizes file identities received from the analysis service.
package uri

import "strings"

// Normalize collapses the double percent-encoding of the space character that
// the analysis service emits inconsistently across requests. The same file
// can arrive as ".../my%20file.lus" in one response and ".../my%2520file.lus"
// in the next; both must map to the same tree key, so every identity is
// passed through here before use.
func Normalize(raw string) string {
	return strings.ReplaceAll(raw, "%2520", "%20")
}

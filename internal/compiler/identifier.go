package compiler

import "strings"

// InferIdentifier names a definition from the first non-blank of alias,
// text and label, suffixed with "-<partID>".
func InferIdentifier(alias, text, label, partID string) (string, error) {
	for _, src := range []string{alias, text, label} {
		src = strings.TrimSpace(src)
		if src == "" {
			continue
		}
		if partID == "" {
			return src, nil
		}
		return src + "-" + partID, nil
	}
	return "", newError(ErrMissingIdentifier, "node %q has no alias, text or label", partID)
}

package masking

import "strings"

const maskToken = "****"

// MaskCode redacts an access code while keeping its last four characters.
func MaskCode(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 4 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}

// MaskEmail keeps the first character of the local part and the domain.
func MaskEmail(value string) string {
	trimmed := strings.TrimSpace(value)
	at := strings.LastIndex(trimmed, "@")
	if at <= 0 {
		return MaskCode(trimmed)
	}
	return trimmed[:1] + maskToken + trimmed[at:]
}

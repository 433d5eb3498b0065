package util

import "strings"

const truncationMarker = "\n[output truncated]"

// TruncateBytes trims a string to maxBytes if needed.
func TruncateBytes(input string, maxBytes int) (string, bool) {
	if maxBytes <= 0 || len(input) <= maxBytes {
		return input, false
	}
	return input[:maxBytes], true
}

// BoundOutput trims captured command output to maxBytes and appends a
// visible marker so the model knows the output is incomplete.
func BoundOutput(input string, maxBytes int) string {
	out, truncated := TruncateBytes(input, maxBytes)
	if !truncated {
		return out
	}
	return out + truncationMarker
}

// Preview returns a short preview of text by limiting lines and bytes.
func Preview(text string, maxLines int, maxBytes int) string {
	if text == "" {
		return ""
	}
	var out []string
	byteCount := 0
	for _, line := range strings.Split(text, "\n") {
		if maxLines > 0 && len(out) >= maxLines {
			break
		}
		sep := 0
		if len(out) > 0 {
			sep = 1
		}
		if maxBytes > 0 && byteCount+sep+len(line) > maxBytes {
			break
		}
		byteCount += sep + len(line)
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

package ingestion

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decode converts raw bytes to UTF-8 text using the first encoding in order that accepts them.
func decode(data []byte, encodings []string) (string, string, error) {
	var lastErr error
	for _, name := range encodings {
		text, err := decodeAs(data, name)
		if err == nil {
			return text, name, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no encodings configured")
	}
	return "", "", fmt.Errorf("failed to decode with any supported encoding (%s): %w", strings.Join(encodings, ", "), lastErr)
}

func decodeAs(data []byte, name string) (string, error) {
	switch strings.ToLower(strings.ReplaceAll(name, "_", "-")) {
	case "utf-8", "utf8":
		data = bytes.TrimPrefix(data, utf8BOM)
		if !utf8.Valid(data) {
			return "", fmt.Errorf("invalid utf-8 byte sequence")
		}
		return string(data), nil
	case "windows-1252", "cp1252":
		return decodeCharmap(data, charmap.Windows1252)
	case "latin-1", "latin1", "iso-8859-1":
		return decodeCharmap(data, charmap.ISO8859_1)
	default:
		return "", fmt.Errorf("unknown encoding %q", name)
	}
}

func decodeCharmap(data []byte, enc encoding.Encoding) (string, error) {
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// sniffDelimiter picks the most frequent candidate delimiter on the header line, defaulting to ",".
func sniffDelimiter(headerLine string) rune {
	best, bestCount := ',', 0
	for _, candidate := range []rune{',', ';', '\t', '|'} {
		if n := strings.Count(headerLine, string(candidate)); n > bestCount {
			best, bestCount = candidate, n
		}
	}
	return best
}

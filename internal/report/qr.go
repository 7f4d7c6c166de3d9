package report

import (
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// DigestToQR creates a QR code PNG encoding the capture digest so a
// printed report can be matched back to its capture file.
func DigestToQR(digest string, size int) ([]byte, error) {
	normalized := sanitizeDigest(digest)
	if normalized == "" {
		return nil, fmt.Errorf("capture digest is empty")
	}
	if size <= 0 {
		size = 128
	}
	png, err := qrcode.Encode(normalized, qrcode.Medium, size)
	if err != nil {
		return nil, err
	}
	return png, nil
}

func sanitizeDigest(digest string) string {
	upper := strings.ToUpper(strings.TrimSpace(digest))
	if upper == "" {
		return ""
	}
	var b strings.Builder
	for _, r := range upper {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'F':
			b.WriteRune(r)
		}
	}
	return b.String()
}

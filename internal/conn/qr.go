package conn

import qrcode "github.com/skip2/go-qrcode"

// renderPNG renders a pairing code as a 256px PNG QR image.
func renderPNG(code string) ([]byte, error) {
	return qrcode.Encode(code, qrcode.Medium, 256)
}

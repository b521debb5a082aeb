package verifactu

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// Tamaño en píxeles del QR tributario (la AEAT recomienda entre 30 y 40 mm).
const qrSize = 256

// QRCodePNG codifica la URL de cotejo en un PNG. El payload ya viene montado
// desde el registro de encadenamiento; aquí solo se rasteriza.
func QRCodePNG(payload string) ([]byte, error) {
	if payload == "" {
		return nil, fmt.Errorf("payload QR vacío")
	}
	png, err := qrcode.Encode(payload, qrcode.Medium, qrSize)
	if err != nil {
		return nil, fmt.Errorf("generar QR: %w", err)
	}
	return png, nil
}

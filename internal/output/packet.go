package output

import "github.com/chase3718/glowsync/internal/pattern"

const (
	SOF0         = 0xAA
	SOF1         = 0x55
	CmdShowFrame = 0x20
)

// EncodeFrame builds the on-wire representation of one frame for the LED
// controller:
//
//	[SOF0][SOF1][LEN lo][LEN hi][CMD][brightness][r g b ...][CKS]
//
// LEN counts CMD plus payload. CKS is the XOR of the LEN bytes, CMD and the
// payload.
func EncodeFrame(dst []byte, frame pattern.Frame, brightness uint8) []byte {
	payloadLen := 1 + len(frame)*3
	length := uint16(payloadLen + 1) // +1 for CMD byte
	lo, hi := byte(length), byte(length>>8)

	dst = append(dst, SOF0, SOF1, lo, hi, CmdShowFrame, brightness)
	cks := lo ^ hi ^ CmdShowFrame ^ brightness
	for _, c := range frame {
		dst = append(dst, c.R, c.G, c.B)
		cks ^= c.R ^ c.G ^ c.B
	}
	return append(dst, cks)
}

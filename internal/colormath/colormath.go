// Package colormath holds the fixed-point color and trigonometry helpers
// shared by every pattern generator. Nothing in here touches floating point.
package colormath

// HueSteps is the size of the hue wheel: 6 sectors of 256 steps.
const HueSteps = 1536

// SinMax is the amplitude returned by FastSin and FastCos.
const SinMax = 32767

// FullCircle is one turn expressed in half degrees.
const FullCircle = 720

// quarterSin holds sin(i/2 degrees) * SinMax for i in [0,180].
var quarterSin = [181]int32{
	0, 286, 572, 858, 1144, 1429, 1715, 2000, 2286, 2571,
	2856, 3141, 3425, 3709, 3993, 4277, 4560, 4843, 5126, 5408,
	5690, 5971, 6252, 6533, 6813, 7092, 7371, 7649, 7927, 8204,
	8481, 8757, 9032, 9306, 9580, 9853, 10126, 10397, 10668, 10938,
	11207, 11475, 11743, 12009, 12275, 12539, 12803, 13066, 13328, 13588,
	13848, 14107, 14364, 14621, 14876, 15130, 15383, 15635, 15886, 16135,
	16383, 16631, 16876, 17121, 17364, 17606, 17846, 18085, 18323, 18559,
	18794, 19028, 19260, 19491, 19720, 19947, 20173, 20398, 20621, 20842,
	21062, 21280, 21497, 21712, 21925, 22137, 22347, 22555, 22762, 22967,
	23170, 23371, 23571, 23768, 23964, 24158, 24351, 24541, 24730, 24916,
	25101, 25284, 25465, 25644, 25821, 25996, 26169, 26340, 26509, 26676,
	26841, 27004, 27165, 27324, 27481, 27635, 27788, 27938, 28087, 28233,
	28377, 28519, 28659, 28796, 28932, 29065, 29196, 29324, 29451, 29575,
	29697, 29817, 29934, 30049, 30162, 30273, 30381, 30487, 30591, 30692,
	30791, 30888, 30982, 31074, 31163, 31250, 31335, 31418, 31498, 31575,
	31650, 31723, 31794, 31862, 31927, 31990, 32051, 32109, 32165, 32218,
	32269, 32318, 32364, 32407, 32448, 32487, 32523, 32556, 32587, 32616,
	32642, 32666, 32687, 32706, 32722, 32736, 32747, 32756, 32762, 32766,
	32767,
}

// gammaTable approximates a perceptual gamma of 2.6.
var gammaTable = [256]uint8{
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 1, 1, 1, 1,
	1, 1, 1, 1, 2, 2, 2, 2, 2, 2, 2, 2, 3, 3, 3, 3,
	3, 3, 4, 4, 4, 4, 5, 5, 5, 5, 5, 6, 6, 6, 6, 7,
	7, 7, 8, 8, 8, 9, 9, 9, 10, 10, 10, 11, 11, 11, 12, 12,
	13, 13, 13, 14, 14, 15, 15, 16, 16, 17, 17, 18, 18, 19, 19, 20,
	20, 21, 21, 22, 22, 23, 24, 24, 25, 25, 26, 27, 27, 28, 29, 29,
	30, 31, 31, 32, 33, 34, 34, 35, 36, 37, 38, 38, 39, 40, 41, 42,
	42, 43, 44, 45, 46, 47, 48, 49, 50, 51, 52, 53, 54, 55, 56, 57,
	58, 59, 60, 61, 62, 63, 64, 65, 66, 68, 69, 70, 71, 72, 73, 75,
	76, 77, 78, 80, 81, 82, 84, 85, 86, 88, 89, 90, 92, 93, 94, 96,
	97, 99, 100, 102, 103, 105, 106, 108, 109, 111, 112, 114, 115, 117, 119, 120,
	122, 124, 125, 127, 129, 130, 132, 134, 136, 137, 139, 141, 143, 145, 146, 148,
	150, 152, 154, 156, 158, 160, 162, 164, 166, 168, 170, 172, 174, 176, 178, 180,
	182, 184, 186, 188, 191, 193, 195, 197, 199, 202, 204, 206, 209, 211, 213, 215,
	218, 220, 223, 225, 227, 230, 232, 235, 237, 240, 242, 245, 247, 250, 252, 255,
}

// HueToRGB converts a point on the 1536-step hue wheel into a packed 0xRRGGBB
// color. Saturation and value are applied as two fixed-point scalings.
func HueToRGB(hue int, sat, val uint8) uint32 {
	hue %= HueSteps
	if hue < 0 {
		hue += HueSteps
	}
	frac := uint32(hue & 0xFF)

	var r, g, b uint32
	switch hue >> 8 {
	case 0: // red -> yellow
		r, g, b = 255, frac, 0
	case 1: // yellow -> green
		r, g, b = 255-frac, 255, 0
	case 2: // green -> cyan
		r, g, b = 0, 255, frac
	case 3: // cyan -> blue
		r, g, b = 0, 255-frac, 255
	case 4: // blue -> magenta
		r, g, b = frac, 0, 255
	default: // magenta -> red
		r, g, b = 255, 0, 255-frac
	}

	v1 := uint32(val) + 1
	s1 := uint32(sat) + 1
	s2 := 255 - uint32(sat)
	r = ((((r * s1) >> 8) + s2) * v1) >> 8
	g = ((((g * s1) >> 8) + s2) * v1) >> 8
	b = ((((b * s1) >> 8) + s2) * v1) >> 8
	return r<<16 | g<<8 | b
}

// Pack builds a 0xRRGGBB value.
func Pack(r, g, b uint8) uint32 {
	return uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}

// Unpack splits a 0xRRGGBB value into its channels.
func Unpack(c uint32) (r, g, b uint8) {
	return uint8(c >> 16), uint8(c >> 8), uint8(c)
}

// FastSin returns sin(angle) * SinMax where angle is in half degrees.
func FastSin(angle int) int {
	angle %= FullCircle
	if angle < 0 {
		angle += FullCircle
	}
	switch {
	case angle <= 180:
		return int(quarterSin[angle])
	case angle <= 360:
		return int(quarterSin[360-angle])
	case angle <= 540:
		return -int(quarterSin[angle-360])
	default:
		return -int(quarterSin[FullCircle-angle])
	}
}

// FastCos returns cos(angle) * SinMax where angle is in half degrees.
func FastCos(angle int) int {
	return FastSin(angle + 180)
}

// Gamma maps a linear channel value onto the LED's perceptual curve.
func Gamma(v uint8) uint8 {
	return gammaTable[v]
}

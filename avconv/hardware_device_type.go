package avconv

import (
	"strings"

	"github.com/asticode/go-astiav"
)

// HardwareDeviceTypeFromString resolves names like "vaapi" or "MediaCodec";
// an empty or unknown name yields HardwareDeviceTypeNone (software decoding).
func HardwareDeviceTypeFromString(s string) astiav.HardwareDeviceType {
	normalizeString := func(s string) string {
		return strings.ToLower(strings.TrimSpace(s))
	}
	s = normalizeString(s)
	if s == "" || s == "none" {
		return astiav.HardwareDeviceTypeNone
	}
	for _, candidate := range []astiav.HardwareDeviceType{
		astiav.HardwareDeviceTypeCUDA,
		astiav.HardwareDeviceTypeD3D11VA,
		astiav.HardwareDeviceTypeDRM,
		astiav.HardwareDeviceTypeDXVA2,
		astiav.HardwareDeviceTypeMediaCodec,
		astiav.HardwareDeviceTypeOpenCL,
		astiav.HardwareDeviceTypeQSV,
		astiav.HardwareDeviceTypeVAAPI,
		astiav.HardwareDeviceTypeVDPAU,
		astiav.HardwareDeviceTypeVideoToolbox,
		astiav.HardwareDeviceTypeVulkan,
	} {
		if normalizeString(candidate.String()) == s {
			return candidate
		}
	}
	return astiav.HardwareDeviceTypeNone
}

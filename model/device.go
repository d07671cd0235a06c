package model

import "strings"

type DeviceType int

const (
	DeviceTypeIPhone DeviceType = 1 << iota
	DeviceTypeIPad
	DeviceTypeAppleTV
)

// Platform is the path segment the developer services use for this device family.
func (t DeviceType) Platform() string {
	if t == DeviceTypeAppleTV {
		return "tvos"
	}
	return "ios"
}

func (t DeviceType) String() string {
	switch t {
	case DeviceTypeIPad:
		return "ipad"
	case DeviceTypeAppleTV:
		return "tvOS"
	default:
		return "iphone"
	}
}

func ParseDeviceType(s string) DeviceType {
	switch strings.ToLower(s) {
	case "ipad":
		return DeviceTypeIPad
	case "appletv", "tvos", "tv":
		return DeviceTypeAppleTV
	default:
		return DeviceTypeIPhone
	}
}

type Device struct {
	Identifier string
	Name       string
	Type       DeviceType
}

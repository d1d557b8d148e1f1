// Package uaparser classifies User-Agent strings into closed device, OS,
// and browser enums. Rules are evaluated in declared order; the first match
// wins, so a UA containing both "Chrome" and "Safari" classifies as Chrome.
package uaparser

import (
	"strings"

	"github.com/radixinsight/analytics/internal/domain"
)

// Result holds the three derived enum values.
type Result struct {
	DeviceType string
	OS         string
	Browser    string
}

// Parse maps a possibly empty User-Agent string to its classification.
// Unknown or absent input maps to the unknown enum values.
func Parse(ua string) Result {
	return Result{
		DeviceType: deviceType(ua),
		OS:         operatingSystem(ua),
		Browser:    browser(ua),
	}
}

// deviceType classifies by substring, mobile before tablet; any other
// non-empty UA is a desktop.
func deviceType(ua string) string {
	switch {
	case ua == "":
		return domain.DeviceUnknown
	case strings.Contains(ua, "Mobile") || strings.Contains(ua, "Android"):
		return domain.DeviceMobile
	case strings.Contains(ua, "Tablet"):
		return domain.DeviceTablet
	default:
		return domain.DeviceDesktop
	}
}

func operatingSystem(ua string) string {
	switch {
	case strings.Contains(ua, "Windows"):
		return domain.OSWindows
	case strings.Contains(ua, "Mac OS"):
		return domain.OSMacOS
	case strings.Contains(ua, "Linux"):
		return domain.OSLinux
	case strings.Contains(ua, "Android"):
		return domain.OSAndroid
	case strings.Contains(ua, "iOS"), strings.Contains(ua, "iPhone"), strings.Contains(ua, "iPad"):
		return domain.OSiOS
	default:
		return domain.OSUnknown
	}
}

func browser(ua string) string {
	switch {
	case strings.Contains(ua, "Chrome"):
		return domain.BrowserChrome
	case strings.Contains(ua, "Firefox"):
		return domain.BrowserFirefox
	case strings.Contains(ua, "Safari"):
		return domain.BrowserSafari
	case strings.Contains(ua, "Edge"):
		return domain.BrowserEdge
	case strings.Contains(ua, "MSIE"), strings.Contains(ua, "Trident"):
		return domain.BrowserIE
	default:
		return domain.BrowserUnknown
	}
}

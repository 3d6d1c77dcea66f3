package audit

import (
	"fmt"
	"strings"

	"github.com/mssola/useragent"
)

// DeviceSummary condenses an administrator's User-Agent into a short
// "browser/major os platform" string for audit entries. Raw user agents are
// too volatile and too identifying to store verbatim.
func DeviceSummary(userAgentString string) string {
	if userAgentString == "" {
		return ""
	}

	ua := useragent.New(userAgentString)
	browser, version := ua.Browser()

	major := "unknown"
	if version != "" {
		if parts := strings.Split(version, "."); len(parts) > 0 && parts[0] != "" {
			major = parts[0]
		}
	}

	os := strings.ToLower(strings.TrimSpace(ua.OS()))
	if os == "" {
		os = "unknown"
	}
	browser = strings.ToLower(strings.TrimSpace(browser))
	if browser == "" {
		browser = "unknown"
	}

	platform := "desktop"
	if ua.Mobile() {
		platform = "mobile"
	}

	return fmt.Sprintf("%s/%s %s %s", browser, major, os, platform)
}

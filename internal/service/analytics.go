package service

import (
	"strings"
	"time"

	"github.com/mssola/user_agent"

	"github.com/zarlabs/zar/internal/geoip"
	"github.com/zarlabs/zar/internal/models"
)

// Analytics turns the raw facts of a resolution (IP, User-Agent, Referer)
// into an analytic event: geo enrichment from the MaxMind database when one
// is loaded, device classification from the User-Agent string.
type Analytics struct {
	geo *geoip.Resolver
}

// NewAnalytics builds the enricher. A null resolver leaves country and city
// unset.
func NewAnalytics(geo *geoip.Resolver) *Analytics {
	return &Analytics{geo: geo}
}

// Event builds the analytic record for one click. It never fails: a missing
// geo database, an unroutable address, or an unparseable user agent all
// degrade to null columns rather than blocking the redirect.
func (a *Analytics) Event(urlID int, clickedAt time.Time, ip, rawUA, referer string) models.URLAnalyticEvent {
	ev := models.URLAnalyticEvent{
		URLID:      urlID,
		ClickedAt:  clickedAt,
		IPAddress:  truncate(ip, 45),
		DeviceType: models.DeviceUnknown,
	}
	if referer != "" {
		ev.Referer = &referer
	}
	if rawUA != "" {
		parsed := user_agent.New(rawUA)
		short := truncate(rawUA, 255)
		ev.UserAgent = &short
		ev.DeviceType = deviceType(parsed, rawUA)
		if name, _ := parsed.Browser(); name != "" {
			browser := truncate(name, 64)
			ev.Browser = &browser
		}
		if osName := parsed.OSInfo().Name; osName != "" {
			osName = truncate(osName, 64)
			ev.OS = &osName
		}
	}
	country, city := a.geo.Lookup(ip)
	ev.CountryCode = country
	if city != nil {
		clipped := truncate(*city, 128)
		ev.City = &clipped
	}
	return ev
}

// deviceType buckets a user agent with priority mobile, tablet, desktop,
// bot, unknown. Tablets are split out of the mobile bucket first: iPads and
// Android devices without the "Mobile" token report as mobile-ish but
// belong in tablet.
func deviceType(ua *user_agent.UserAgent, raw string) string {
	lower := strings.ToLower(raw)
	tablet := ua.Platform() == "iPad" ||
		strings.Contains(lower, "tablet") ||
		(strings.Contains(lower, "android") && !strings.Contains(lower, "mobile"))
	switch {
	case ua.Mobile() && !tablet:
		return models.DeviceMobile
	case tablet:
		return models.DeviceTablet
	case isDesktop(ua):
		return models.DeviceDesktop
	case ua.Bot():
		return models.DeviceBot
	}
	return models.DeviceUnknown
}

func isDesktop(ua *user_agent.UserAgent) bool {
	switch ua.Platform() {
	case "Windows", "Macintosh", "X11":
		return true
	}
	os := ua.OSInfo().Name
	for _, name := range []string{"Windows", "Mac OS", "Linux", "Chrome OS", "FreeBSD"} {
		if strings.Contains(os, name) {
			return true
		}
	}
	return false
}

// DeviceName distills a user agent into the coarse label shown on the
// session list. Order matters: iPhone agents mention Mac OS, Android agents
// mention Linux.
func DeviceName(rawUA string) string {
	lower := strings.ToLower(rawUA)
	switch {
	case strings.Contains(lower, "iphone"):
		return "iPhone"
	case strings.Contains(lower, "ipad"):
		return "iPad"
	case strings.Contains(lower, "android"):
		return "Android"
	case strings.Contains(lower, "windows"):
		return "Windows"
	case strings.Contains(lower, "macintosh"), strings.Contains(lower, "mac os"):
		return "Mac"
	case strings.Contains(lower, "linux"):
		return "Linux"
	}
	return "Unknown"
}

// truncate clips s to at most n characters, counting runes so multi-byte
// input still fits the varchar columns it feeds.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

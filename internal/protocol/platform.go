package protocol

import "strings"

// Platform is the streaming service a room is bound to.
type Platform string

const (
	PlatformYouTube     Platform = "youtube"
	PlatformCrunchyroll Platform = "crunchyroll"
	PlatformNetflix     Platform = "netflix"
	PlatformPrimeVideo  Platform = "primevideo"
)

func (p Platform) Valid() bool {
	switch p {
	case PlatformYouTube, PlatformCrunchyroll, PlatformNetflix, PlatformPrimeVideo:
		return true
	}
	return false
}

// AllowsURL reports whether url belongs to the platform. This is a plain
// substring allow-list, not a URL parser; the literal substrings below are
// the external contract with the browser extension.
func (p Platform) AllowsURL(url string) bool {
	switch p {
	case PlatformYouTube:
		return strings.Contains(url, "youtube.com") || strings.Contains(url, "youtu.be")
	case PlatformCrunchyroll:
		return strings.Contains(url, "crunchyroll.com")
	case PlatformNetflix:
		return strings.Contains(url, "netflix.com")
	case PlatformPrimeVideo:
		return strings.Contains(url, "primevideo.com") ||
			strings.Contains(url, "amazon.com/gp/video") ||
			strings.Contains(url, "amazon.de/gp/video")
	}
	return false
}

// VideoState is the shared playback state of a room.
type VideoState string

const (
	StatePlaying VideoState = "playing"
	StatePaused  VideoState = "paused"
)

func (s VideoState) Valid() bool {
	return s == StatePlaying || s == StatePaused
}

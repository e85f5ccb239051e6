package model

import (
	"fmt"
	"net/url"
	"strings"
)

// videoIDLen is the canonical YouTube video id length.
const videoIDLen = 11

// ParseVideoID normalizes user input into a bare video id. Accepted forms:
//
//	dQw4w9WgXcQ
//	https://www.youtube.com/watch?v=dQw4w9WgXcQ
//	https://youtu.be/dQw4w9WgXcQ
//	https://www.youtube.com/shorts/dQw4w9WgXcQ
//	https://www.youtube.com/live/dQw4w9WgXcQ
func ParseVideoID(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", fmt.Errorf("video id is required")
	}

	if isBareVideoID(s) {
		return s, nil
	}

	if !strings.Contains(s, "/") {
		return "", fmt.Errorf("failed to parse video id: %q", input)
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("failed to parse video id: %q", input)
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	path := strings.Trim(u.Path, "/")

	var id string
	switch host {
	case "youtu.be":
		id = path
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		switch {
		case path == "watch":
			id = u.Query().Get("v")
		case strings.HasPrefix(path, "shorts/"):
			id = strings.TrimPrefix(path, "shorts/")
		case strings.HasPrefix(path, "live/"):
			id = strings.TrimPrefix(path, "live/")
		case strings.HasPrefix(path, "embed/"):
			id = strings.TrimPrefix(path, "embed/")
		}
	}

	if idx := strings.IndexByte(id, '/'); idx >= 0 {
		id = id[:idx]
	}
	if !isBareVideoID(id) {
		return "", fmt.Errorf("failed to parse video id: %q", input)
	}
	return id, nil
}

func isBareVideoID(s string) bool {
	if len(s) != videoIDLen {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}

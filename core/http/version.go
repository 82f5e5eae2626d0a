package http

import "strconv"

// Version is an HTTP protocol version
type Version struct {
	Major, Minor uint8
}

var (
	HTTP10 = Version{1, 0}
	HTTP11 = Version{1, 1}
)

// AtLeast reports whether v is major.minor or newer
func (v Version) AtLeast(major, minor uint8) bool {
	return v.Major > major || (v.Major == major && v.Minor >= minor)
}

func (v Version) String() string {
	return "HTTP/" + strconv.Itoa(int(v.Major)) + "." + strconv.Itoa(int(v.Minor))
}

// parseVersion matches the literal mask HTTP/d.d
func parseVersion(b []byte) (Version, bool) {
	if len(b) != 8 || string(b[:5]) != "HTTP/" || b[6] != '.' {
		return Version{}, false
	}
	if !isDigit(b[5]) || !isDigit(b[7]) {
		return Version{}, false
	}
	return Version{Major: b[5] - '0', Minor: b[7] - '0'}, true
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

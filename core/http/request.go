package http

// RequestLine is the parsed first line of a request
type RequestLine struct {
	Method  Method
	Target  Target
	Version Version
}

// Request is one parsed request. Body points into the request arena and is
// only valid for the cycle that read it.
type Request struct {
	RequestLine

	Header  Header
	Trailer Header
	Body    []byte

	// Close is set when framing forces the connection to close after the
	// response even if persistence was negotiated
	Close bool
}

// Reset clears the request for the next cycle, keeping map storage
func (r *Request) Reset() {
	r.RequestLine = RequestLine{}

	if r.Header == nil {
		r.Header = make(Header, 16)
	} else {
		clear(r.Header)
	}
	if r.Trailer != nil {
		clear(r.Trailer)
	}

	r.Body = nil
	r.Close = false
}

// Host returns the Host header with any port removed
func (r *Request) Host() string {
	return stripPort(r.Header.Get("host"))
}

func stripPort(host string) string {
	if host == "" {
		return ""
	}
	if host[0] == '[' {
		for i := 1; i < len(host); i++ {
			if host[i] == ']' {
				return host[:i+1]
			}
		}
		return host
	}
	for i := len(host) - 1; i >= 0; i-- {
		if host[i] == ':' {
			return host[:i]
		}
	}
	return host
}

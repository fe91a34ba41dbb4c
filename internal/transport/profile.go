package transport

import (
	"time"
)

// Profile is the immutable network parameter bundle for one task execution.
// It is built once per job from task and credential settings and shared
// read-only across every request the job issues.
type Profile struct {
	BaseURL    string
	UserAgent  string
	Charset    string
	Timeout    time.Duration
	Retries    int
	RetrySleep time.Duration
	Sleep      time.Duration
	Headers    map[string]string
	Cookies    map[string]string
}

// WithCookie returns a copy of the profile carrying an extra cookie.
func (p Profile) WithCookie(name, value string) Profile {
	cookies := make(map[string]string, len(p.Cookies)+1)
	for k, v := range p.Cookies {
		cookies[k] = v
	}
	cookies[name] = value
	p.Cookies = cookies
	return p
}

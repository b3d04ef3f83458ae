// File: request/cookies.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package request

import "strings"

// SessionCookieName carries the encoded session identity.
const SessionCookieName = "ScSsnId"

// SplitCookies splits a Cookie header value on ';', trims each segment and
// drops empty ones.
func SplitCookies(v string) []string {
	var out []string
	for seg := range strings.SplitSeq(v, ";") {
		if seg = strings.TrimSpace(seg); seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

// Cookies returns the decoded cookie segments in header order.
func (r *Request) Cookies() []string { return SplitCookies(r.text(r.f.Cookies)) }

// Cookie returns the value of the first cookie named name.
func (r *Request) Cookie(name string) (string, bool) {
	for _, c := range r.Cookies() {
		k, v, _ := strings.Cut(c, "=")
		if strings.TrimSpace(k) == name {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

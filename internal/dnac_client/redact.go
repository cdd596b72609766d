package dnac_client

import (
	"net/url"
	"regexp"
)

var secretQueryKey = regexp.MustCompile(`(?i)password|token|secret|key`)

// RedactURL replaces the values of secret-looking query parameters and any
// userinfo with "***".
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.User != nil {
		u.User = url.User("***")
	}
	if u.RawQuery == "" {
		return u.String()
	}
	q := u.Query()
	changed := false
	for k := range q {
		if secretQueryKey.MatchString(k) {
			q[k] = []string{"***"}
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

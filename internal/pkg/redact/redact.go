// Package redact keeps credentials out of API responses and logs.
package redact

import (
	"net/url"
	"strings"
)

const redactedValue = "***REDACTED***"

// secretParams are query parameters upstreams accept credentials in.
var secretParams = map[string]bool{
	"api_key":       true,
	"apikey":        true,
	"token":         true,
	"access_token":  true,
	"refresh_token": true,
	"client_secret": true,
}

// IsSecretParam reports whether a query parameter carries a credential.
func IsSecretParam(name string) bool {
	return secretParams[strings.ToLower(name)]
}

// URL returns raw with the values of credential query parameters and any
// userinfo password replaced. Unparseable input is returned unchanged.
func URL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), redactedValue)
		}
	}
	q := u.Query()
	changed := false
	for k := range q {
		if IsSecretParam(k) {
			q[k] = []string{redactedValue}
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// Error rewrites the URL of a *url.Error in place so that err.Error() no
// longer contains credentials. Other errors are returned as they are.
func Error(err error) error {
	if ue, ok := err.(*url.Error); ok {
		ue.URL = URL(ue.URL)
	}
	return err
}

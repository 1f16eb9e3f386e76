package clickproxy

import (
	"encoding/json"
	"net/http"
	"net/url"
)

func appendQueryParam(raw, key, value string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}

// rebuildQuery applies a del-then-add mutation to raw's query string:
// every key in del is removed, then every key in add is set.
func rebuildQuery(raw string, del []string, add map[string]string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for _, k := range del {
		q.Del(k)
	}
	for key, value := range add {
		q.Set(key, value)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// baseOf returns scheme+host+path, ignoring query, for BaseChanged checks.
func baseOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Scheme + "://" + u.Host + u.Path
}

func sameOrigin(raw, domain string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Host == domain
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<unparseable>"
	}
	return u.Scheme + "://" + u.Host + u.Path
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}

// writeJSONHref responds with the documented {href} shape (spec §6.2):
// the signed values folded into pathPrefix's query string, as the href the
// browser-side helper should assign to trigger the request.
func writeJSONHref(w http.ResponseWriter, pathPrefix string, values url.Values) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"href": pathPrefix + "?" + values.Encode(),
	})
}

// writeJSONHrefBase responds with the documented {href, base} shape (spec
// §6.2) expected from /first-party/proxy-rebuild: base is the clear
// (unsigned) target's scheme+host+path, letting the caller confirm the
// rebuild didn't change origin.
func writeJSONHrefBase(w http.ResponseWriter, pathPrefix string, values url.Values, base string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"href": pathPrefix + "?" + values.Encode(),
		"base": base,
	})
}

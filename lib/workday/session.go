package workday

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Session is an authenticated Workday browser session: the cookies of a
// logged in user and the locator of the search result set that user produced.
// It is read by every call and never modified after it has been obtained.
type Session struct {
	Cookies map[string]string `json:"cookies"`
	// Locator is the path Workday serves the cached search results under
	// (the "chunkingUrl" of the results page), without the .htmld suffix.
	Locator string `json:"locator"`
}

func (s Session) Validate() error {
	if len(s.Cookies) == 0 {
		return fmt.Errorf("workday session has no cookies")
	}
	if s.Locator == "" {
		return fmt.Errorf("workday session has no result set locator")
	}
	if !strings.HasPrefix(s.Locator, "/") {
		return fmt.Errorf("workday result set locator %q is not an absolute path", s.Locator)
	}
	return nil
}

func (s Session) httpCookies() []*http.Cookie {
	names := make([]string, 0, len(s.Cookies))
	for name := range s.Cookies {
		names = append(names, name)
	}
	sort.Strings(names)

	cookies := make([]*http.Cookie, len(names))
	for i, name := range names {
		cookies[i] = &http.Cookie{Name: name, Value: s.Cookies[name]}
	}
	return cookies
}

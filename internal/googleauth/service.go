package googleauth

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Service is a Google API vacal talks to.
type Service string

const (
	ServiceCalendar Service = "calendar"
	ServiceGmail    Service = "gmail"
)

var errUnknownService = errors.New("unknown service")

var serviceScopes = map[Service][]string{
	ServiceCalendar: {"https://www.googleapis.com/auth/calendar"},
	// gmail.readonly lets `auth add` confirm which account was authorized.
	ServiceGmail: {
		"https://www.googleapis.com/auth/gmail.send",
		"https://www.googleapis.com/auth/gmail.readonly",
	},
}

var baseScopes = []string{"openid", "email"}

func AllServices() []Service {
	return []Service{ServiceCalendar, ServiceGmail}
}

func UserServiceCSV() string {
	names := make([]string, 0, len(serviceScopes))
	for _, s := range AllServices() {
		names = append(names, string(s))
	}
	return strings.Join(names, ",")
}

func ParseService(raw string) (Service, error) {
	s := Service(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := serviceScopes[s]; !ok {
		return "", fmt.Errorf("%w %q (expected %s)", errUnknownService, raw, UserServiceCSV())
	}
	return s, nil
}

// Scopes returns the OAuth scopes one service needs.
func Scopes(service Service) ([]string, error) {
	scopes, ok := serviceScopes[service]
	if !ok {
		return nil, fmt.Errorf("%w %q", errUnknownService, service)
	}
	return append([]string(nil), scopes...), nil
}

// ScopesFor returns the sorted, deduplicated scopes for services plus the
// identity scopes.
func ScopesFor(services []Service) ([]string, error) {
	set := map[string]struct{}{}
	for _, s := range baseScopes {
		set[s] = struct{}{}
	}
	for _, svc := range services {
		scopes, err := Scopes(svc)
		if err != nil {
			return nil, err
		}
		for _, s := range scopes {
			set[s] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

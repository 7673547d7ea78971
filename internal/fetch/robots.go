package fetch

import (
	"bufio"
	"strings"
)

// robotsRules holds the Disallow prefixes that apply to us for one host.
type robotsRules struct {
	disallow []string
}

// parseRobots extracts the Disallow rules from a robots.txt body. Rules in
// the wildcard group and in any group whose User-agent token appears in our
// user agent both apply. Only prefix matching is implemented; that is the
// common denominator crawlers honor.
func parseRobots(body, userAgent string) *robotsRules {
	rules := &robotsRules{}
	uaLower := strings.ToLower(userAgent)

	applies := false
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		val = strings.TrimSpace(val)

		switch key {
		case "user-agent":
			agent := strings.ToLower(val)
			applies = agent == "*" || (agent != "" && strings.Contains(uaLower, agent))
		case "disallow":
			if applies && val != "" {
				rules.disallow = append(rules.disallow, val)
			}
		}
	}
	return rules
}

// Allows reports whether the path is permitted by the rules.
func (r *robotsRules) Allows(path string) bool {
	if r == nil {
		return true
	}
	if path == "" {
		path = "/"
	}
	for _, prefix := range r.disallow {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}

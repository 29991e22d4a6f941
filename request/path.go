package request

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jonwraymond/fetchops/keys"
)

// Path returns the endpoint template with every ":name" token replaced by
// the string form of the matching parameter. Tokens without a parameter
// are left in place.
func (r Request) Path() string {
	path, _ := substitute(r.endpoint, r.params)
	return path
}

// ResolvePath returns the resolved path or a *ConfigError naming every
// unresolved token.
func (r Request) ResolvePath() (string, error) {
	path, missing := substitute(r.endpoint, r.params)
	if len(missing) > 0 {
		return path, &ConfigError{Endpoint: r.endpoint, Missing: missing, Err: ErrUnresolvedParams}
	}
	return path, nil
}

// URL returns base + resolved path + encoded query.
func (r Request) URL() string {
	u := r.scope.Base + r.Path()
	if q := keys.EncodeQuery(r.query); q != "" {
		u += "?" + q
	}
	return u
}

// substitute scans template for ":name" tokens. A token name is a run of
// letters, digits and underscores directly after the colon; a colon not
// followed by a name character is literal.
func substitute(template string, params map[string]any) (string, []string) {
	var (
		b       strings.Builder
		missing []string
		seen    map[string]bool
	)
	b.Grow(len(template))
	for i := 0; i < len(template); {
		c := template[i]
		if c != ':' {
			b.WriteByte(c)
			i++
			continue
		}
		j := i + 1
		for j < len(template) && isNameChar(template[j]) {
			j++
		}
		if j == i+1 {
			b.WriteByte(c)
			i++
			continue
		}
		name := template[i+1 : j]
		if v, ok := params[name]; ok && v != nil {
			b.WriteString(fmt.Sprint(v))
		} else {
			b.WriteString(template[i:j])
			if seen == nil {
				seen = make(map[string]bool)
			}
			if !seen[name] {
				seen[name] = true
				missing = append(missing, name)
			}
		}
		i = j
	}
	sort.Strings(missing)
	return b.String(), missing
}

func isNameChar(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

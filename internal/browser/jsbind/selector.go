// internal/browser/jsbind/selector.go
package jsbind

import (
	"fmt"
	"strings"
)

// translateCSSToXPath converts simple CSS selectors (tag, #id, .class,
// [attr], [attr=value], descendant combinators, comma groups) to XPath.
// Strings that already look like XPath pass through untouched.
func translateCSSToXPath(css string) string {
	css = strings.TrimSpace(css)
	if css == "*" {
		return "//*"
	}
	if strings.HasPrefix(css, "/") || strings.HasPrefix(css, "./") || strings.HasPrefix(css, "(") {
		return css
	}

	// Selector groups: "a, b" becomes "xpath(a) | xpath(b)".
	if strings.Contains(css, ",") {
		groups := strings.Split(css, ",")
		translated := make([]string, 0, len(groups))
		for _, g := range groups {
			g = strings.TrimSpace(g)
			if g == "" {
				continue
			}
			translated = append(translated, translateCSSToXPath(g))
		}
		return strings.Join(translated, " | ")
	}

	var xpath strings.Builder
	xpath.WriteString("//")

	// Space is always treated as the descendant combinator.
	parts := strings.Fields(css)
	for i, part := range parts {
		if i > 0 {
			xpath.WriteString("//")
		}
		xpath.WriteString(translateCompound(part))
	}
	return xpath.String()
}

// translateCompound handles a single compound selector like div#main.active[data-x=1].
func translateCompound(part string) string {
	tagName := "*"
	hasExplicitTag := false
	var predicates []string

	token := part
	for len(token) > 0 {
		switch {
		case strings.HasPrefix(token, "#"):
			id, rest := cutSimpleToken(token[1:])
			if !strings.Contains(id, "'") {
				predicates = append(predicates, fmt.Sprintf("@id='%s'", id))
			}
			token = rest

		case strings.HasPrefix(token, "."):
			class, rest := cutSimpleToken(token[1:])
			if !strings.Contains(class, "'") {
				predicates = append(predicates,
					fmt.Sprintf("contains(concat(' ', normalize-space(@class), ' '), ' %s ')", class))
			}
			token = rest

		case strings.HasPrefix(token, "["):
			end := strings.IndexByte(token, ']')
			if end < 0 {
				return "*" // malformed, bail to a harmless match-all
			}
			if pred := attrPredicate(token[1:end]); pred != "" {
				predicates = append(predicates, pred)
			}
			token = token[end+1:]

		case !hasExplicitTag:
			tag, rest := cutSimpleToken(token)
			tagName = strings.ToLower(tag)
			hasExplicitTag = true
			token = rest

		default:
			token = ""
		}
	}

	if len(predicates) == 0 {
		return tagName
	}
	return tagName + "[" + strings.Join(predicates, " and ") + "]"
}

// cutSimpleToken splits an identifier off the front of a compound selector.
func cutSimpleToken(s string) (token, rest string) {
	end := strings.IndexAny(s, ".#[")
	if end == -1 {
		return s, ""
	}
	return s[:end], s[end:]
}

// attrPredicate translates an attribute selector body ("attr" or "attr=value").
func attrPredicate(body string) string {
	name, value, hasValue := strings.Cut(body, "=")
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, "'\" ") {
		return ""
	}
	if !hasValue {
		return "@" + name
	}
	value = strings.TrimSpace(value)
	value = strings.Trim(value, `"'`)
	if strings.Contains(value, "'") {
		return ""
	}
	return fmt.Sprintf("@%s='%s'", name, value)
}

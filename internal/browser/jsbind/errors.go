// internal/browser/jsbind/errors.go
package jsbind

import "fmt"

// InvalidSelectorError reports a selector the CSS-to-XPath translation could
// not turn into a valid query. It is thrown into the script as a GoError, so
// scripts see it the way a browser surfaces a SyntaxError from querySelector.
type InvalidSelectorError struct {
	Selector string
}

func (e *InvalidSelectorError) Error() string {
	return fmt.Sprintf("invalid selector '%s'", e.Selector)
}

// HierarchyError reports an illegal tree operation, e.g. removing a node from
// a parent it does not belong to.
type HierarchyError struct {
	Op      string
	Message string
}

func (e *HierarchyError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

package plan

import (
	"fmt"
	"strconv"
	"strings"
)

// Strategy controls where extra separators are added around the joined
// ancestor labels.
type Strategy string

const (
	StrategyNone  Strategy = "none"
	StrategyLeft  Strategy = "left"
	StrategyRight Strategy = "right"
	StrategyBoth  Strategy = "both"
)

// ParseStrategy validates a separator strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyNone, StrategyLeft, StrategyRight, StrategyBoth:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("plan: unknown separator strategy %q", s)
}

// Template tokens.
const (
	TokenHierarchy = "[HIERARCHY]"
	TokenLayerName = "[LAYER_NAME]"
	TokenNum       = "[NUM]"
)

// Naming holds the options that shape the hierarchy string.
type Naming struct {
	Separator           string
	Strategy            Strategy
	EmptyExtraSeparator bool
	TopHierarchyFirst   bool
	IgnorePrefix        string
	UseIgnoredName      bool
}

// JoinHierarchy builds the string substituted for [HIERARCHY] from the
// ancestor labels of a layer (its hierarchy without the last element).
func (n Naming) JoinHierarchy(ancestors []string) string {
	elems := make([]string, 0, len(ancestors)+2)
	for _, label := range ancestors {
		if n.IgnorePrefix != "" && strings.HasPrefix(label, n.IgnorePrefix) {
			if !n.UseIgnoredName {
				continue
			}
			label = strings.TrimPrefix(label, n.IgnorePrefix)
		}
		elems = append(elems, label)
	}
	if !n.TopHierarchyFirst {
		for i, j := 0, len(elems)-1; i < j; i, j = i+1, j-1 {
			elems[i], elems[j] = elems[j], elems[i]
		}
	}

	decorate := len(elems) > 0 || n.EmptyExtraSeparator
	if n.EmptyExtraSeparator && len(elems) == 0 &&
		n.Strategy != StrategyBoth && n.Strategy != StrategyNone {
		elems = append(elems, "")
	}
	if decorate && (n.Strategy == StrategyLeft || n.Strategy == StrategyBoth) {
		elems = append([]string{""}, elems...)
	}
	if decorate && (n.Strategy == StrategyRight || n.Strategy == StrategyBoth) {
		elems = append(elems, "")
	}
	return strings.Join(elems, n.Separator)
}

// ExpandTemplate replaces the template tokens by literal substitution.
// Unknown tokens are left as they are.
func ExpandTemplate(template, hierarchy, label string, counter int) string {
	s := strings.ReplaceAll(template, TokenHierarchy, hierarchy)
	s = strings.ReplaceAll(s, TokenLayerName, label)
	s = strings.ReplaceAll(s, TokenNum, strconv.Itoa(counter))
	for width := 1; width <= 5; width++ {
		s = strings.ReplaceAll(s, "[NUM-"+strconv.Itoa(width)+"]", fmt.Sprintf("%0*d", width, counter))
	}
	return s
}

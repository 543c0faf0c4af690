package moderation

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type ViolationKind string

const (
	KindBannedContent  ViolationKind = "banned_content"
	KindDisallowedLink ViolationKind = "disallowed_link"
)

const (
	bannedContentPoints  = 1
	disallowedLinkPoints = 2
)

var urlPattern = regexp.MustCompile(`https?://\S+`)

type Classification struct {
	Kind   ViolationKind
	Points int64
}

type Classifier interface {
	Classify(text string) (Classification, bool)
}

// RuleClassifier applies the built-in rules in priority order, first match wins:
// banned content (1 point) before disallowed links (2 points).
type RuleClassifier struct {
	bannedWords    []string
	allowedDomains []string
}

func NewRuleClassifier(rules Rules) *RuleClassifier {
	lower := cases.Lower(language.Und)
	c := &RuleClassifier{}
	for _, w := range rules.BannedWords {
		if w = strings.TrimSpace(w); w != "" {
			c.bannedWords = append(c.bannedWords, lower.String(w))
		}
	}
	for _, d := range rules.AllowedDomains {
		if d = strings.TrimSpace(d); d != "" {
			c.allowedDomains = append(c.allowedDomains, d)
		}
	}
	return c
}

func (c *RuleClassifier) Classify(text string) (Classification, bool) {
	if text == "" {
		return Classification{}, false
	}
	if c.hasBannedContent(text) {
		return Classification{Kind: KindBannedContent, Points: bannedContentPoints}, true
	}
	if c.hasDisallowedLink(text) {
		return Classification{Kind: KindDisallowedLink, Points: disallowedLinkPoints}, true
	}
	return Classification{}, false
}

func (c *RuleClassifier) hasBannedContent(text string) bool {
	// cases.Caser is stateful, one per call
	lowered := cases.Lower(language.Und).String(text)
	for _, word := range c.bannedWords {
		if strings.Contains(lowered, word) {
			return true
		}
	}
	return false
}

// hasDisallowedLink reports whether any URL misses every allowed domain.
// Domain containment is a plain substring check, so subdomains and look-alikes pass.
func (c *RuleClassifier) hasDisallowedLink(text string) bool {
	for _, url := range urlPattern.FindAllString(text, -1) {
		if !c.isAllowed(url) {
			return true
		}
	}
	return false
}

func (c *RuleClassifier) isAllowed(url string) bool {
	for _, domain := range c.allowedDomains {
		if strings.Contains(url, domain) {
			return true
		}
	}
	return false
}

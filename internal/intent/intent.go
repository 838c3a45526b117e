// Package intent classifies a normalized utterance into exactly one routing tag.
//
// Classification is an ordered rule table evaluated top-down; the first rule
// whose matcher accepts the text wins. Rules are data, so precedence can be
// read, tested and extended without touching control flow.
package intent

import "strings"

// Intent is a routing tag drawn from a closed set
type Intent string

const (
	Time        Intent = "time"
	Date        Intent = "date"
	Calc        Intent = "calc"
	Weather     Intent = "weather"
	News        Intent = "news"
	Joke        Intent = "joke"
	Quote       Intent = "quote"
	IP          Intent = "ip"
	Search      Intent = "search"
	MemoryClear Intent = "memory_clear"
	ModeChange  Intent = "mode_change"
	Coding      Intent = "coding"
	Autonomous  Intent = "autonomous"
	General     Intent = "general"
)

// All lists every intent in the closed set
var All = []Intent{
	Time, Date, Calc, Weather, News, Joke, Quote, IP, Search,
	MemoryClear, ModeChange, Coding, Autonomous, General,
}

// Valid reports whether i belongs to the closed set.
func (i Intent) Valid() bool {
	for _, known := range All {
		if i == known {
			return true
		}
	}
	return false
}

// Normalize trims and lower-cases raw input. Callers normalize once;
// Classify never does, so classifying the same text twice is idempotent.
func Normalize(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Matcher decides whether a rule applies to normalized text
type Matcher func(text string) bool

// Rule pairs a matcher with the intent it yields
type Rule struct {
	Intent Intent
	Match  Matcher
}

// Exact matches when text equals one of phrases
func Exact(phrases ...string) Matcher {
	set := make(map[string]struct{}, len(phrases))
	for _, p := range phrases {
		set[p] = struct{}{}
	}
	return func(text string) bool {
		_, ok := set[text]
		return ok
	}
}

// Prefix matches when text starts with one of prefixes
func Prefix(prefixes ...string) Matcher {
	return func(text string) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(text, p) {
				return true
			}
		}
		return false
	}
}

// Contains matches when text contains one of needles
func Contains(needles ...string) Matcher {
	return func(text string) bool {
		for _, n := range needles {
			if strings.Contains(text, n) {
				return true
			}
		}
		return false
	}
}

// Any matches when any of matchers does
func Any(matchers ...Matcher) Matcher {
	return func(text string) bool {
		for _, m := range matchers {
			if m(text) {
				return true
			}
		}
		return false
	}
}

// LongerThan matches text of more than n bytes that also satisfies m
func LongerThan(n int, m Matcher) Matcher {
	return func(text string) bool {
		return len(text) > n && m(text)
	}
}

// DefaultRules is the reference rule table. Order is significant.
func DefaultRules() []Rule {
	return []Rule{
		{Time, Exact("time", "what time is it", "current time")},
		{Date, Exact("date", "what is today", "today's date")},
		{Calc, Prefix("calc ", "calculate ")},
		{Weather, Prefix("weather ", "weather in ")},
		{News, Any(Exact("news"), Prefix("show news", "latest news"))},
		{Joke, Exact("joke", "tell me a joke")},
		{Quote, Exact("quote", "give me a quote", "inspirational quote")},
		{IP, Exact("ip", "my ip", "what is my ip")},
		{MemoryClear, Exact("clear memory", "reset memory", "forget everything")},
		{ModeChange, Prefix("mode ")},
		{Search, Prefix("search ", "search for ", "look up ")},
		{Autonomous, Any(
			Prefix("plan ", "autonomously ", "execute task:"),
			Contains("step by step plan", "create a plan"),
		)},
		{Coding, Any(
			Contains(
				"write code", "write a function", "create a component", "build a",
				"implement", "debug", "fix this code", "algorithm",
				"in python", "in javascript", "in typescript", "in react",
				"in java", "in c++",
				"function(", "class ", "async ", "optimize", "refactor",
			),
			LongerThan(15, Contains("code")),
		)},
	}
}

// Classifier maps normalized text to an intent
type Classifier struct {
	rules []Rule
}

// NewClassifier creates a classifier over rules. A nil slice selects DefaultRules.
func NewClassifier(rules []Rule) *Classifier {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Classifier{rules: rules}
}

// Classify returns the first matching rule's intent, or General.
func (c *Classifier) Classify(text string) Intent {
	for _, r := range c.rules {
		if r.Match(text) {
			return r.Intent
		}
	}
	return General
}

// Rules returns a copy of the rule table in evaluation order
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

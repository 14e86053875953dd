package core

import (
	"fmt"
	"sort"

	"golang.org/x/text/language"
)

// Language is one of the platform's content languages.
type Language string

const (
	English Language = "en"
	Russian Language = "ru"
	Hebrew  Language = "he"
)

// Languages lists all content languages in canonical order.
var Languages = []Language{English, Russian, Hebrew}

func (l Language) Valid() bool {
	switch l {
	case English, Russian, Hebrew:
		return true
	}
	return false
}

// ParseLanguage canonicalizes a language code ("en", "en-US", "iw") to one of
// the platform languages. It returns an error for languages the platform does
// not carry.
func ParseLanguage(code string) (Language, error) {

	tag, err := language.Parse(code)
	if err != nil {
		return "", fmt.Errorf("parse language %q: %w", code, err)
	}

	base, _ := tag.Base()
	var l = Language(base.String())
	if !l.Valid() {
		return "", fmt.Errorf("unsupported language %q", code)
	}
	return l, nil
}

// Content maps a language to its text. Absent languages have no key.
type Content map[Language]string

// Canonical returns a copy of c restricted to the platform languages.
func (c Content) Canonical() Content {
	var result = make(Content, len(Languages))
	for _, l := range Languages {
		if text, ok := c[l]; ok {
			result[l] = text
		}
	}
	return result
}

// Equal compares canonicalized content. An absent language and an empty
// string are different values.
func (c Content) Equal(other Content) bool {
	c, other = c.Canonical(), other.Canonical()
	if len(c) != len(other) {
		return false
	}
	for l, text := range c {
		if otherText, ok := other[l]; !ok || otherText != text {
			return false
		}
	}
	return true
}

// Languages returns the languages present in c, in canonical order.
func (c Content) Languages() []Language {
	var present = []Language{}
	for _, l := range Languages {
		if _, ok := c[l]; ok {
			present = append(present, l)
		}
	}
	return present
}

// Merge returns a copy of c with the given edits applied on top.
func (c Content) Merge(edits Content) Content {
	var result = c.Canonical()
	for l, text := range edits.Canonical() {
		result[l] = text
	}
	return result
}

// ChangedLanguages returns the languages whose value in c differs from base,
// including languages present on one side only.
func (c Content) ChangedLanguages(base Content) []Language {
	c, base = c.Canonical(), base.Canonical()
	var changed = map[Language]interface{}{}
	for l, text := range c {
		if baseText, ok := base[l]; !ok || baseText != text {
			changed[l] = struct{}{}
		}
	}
	for l := range base {
		if _, ok := c[l]; !ok {
			changed[l] = struct{}{}
		}
	}
	var result = []Language{}
	for l := range changed {
		result = append(result, l)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

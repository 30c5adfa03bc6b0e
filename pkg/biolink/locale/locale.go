package locale

import (
	"fmt"
	"strings"
)

// Language is a supported UI language
type Language string

const (
	English Language = "en"
	Arabic  Language = "ar"
)

// Default is used when nothing else is known
const Default = English

// Direction is the text direction of a language
type Direction string

const (
	LTR Direction = "ltr"
	RTL Direction = "rtl"
)

// Parse returns the supported language for a tag like "ar", "ar-EG" or "EN".
func Parse(tag string) (Language, bool) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		tag = tag[:i]
	}
	switch Language(tag) {
	case English:
		return English, true
	case Arabic:
		return Arabic, true
	}
	return "", false
}

// FromAcceptLanguage picks the first supported language in an
// Accept-Language header. Quality values are honoured only by order.
func FromAcceptLanguage(header string) (Language, bool) {
	for _, part := range strings.Split(header, ",") {
		tag, _, _ := strings.Cut(part, ";")
		if lang, ok := Parse(tag); ok {
			return lang, true
		}
	}
	return "", false
}

// Preference is the language configuration handed to every render
type Preference struct {
	Language Language
}

// NewPreference returns the preference for tag, or the default language
func NewPreference(tag string) Preference {
	if lang, ok := Parse(tag); ok {
		return Preference{Language: lang}
	}
	return Preference{Language: Default}
}

// Lang is the value for the html lang attribute
func (p Preference) Lang() string {
	if p.Language == "" {
		return string(Default)
	}
	return string(p.Language)
}

// Dir is the value for the html dir attribute
func (p Preference) Dir() Direction {
	if p.Language == Arabic {
		return RTL
	}
	return LTR
}

// RTL reports whether text runs right to left
func (p Preference) RTL() bool {
	return p.Dir() == RTL
}

// Other is the language the toggle switches to
func (p Preference) Other() Language {
	if p.Language == Arabic {
		return English
	}
	return Arabic
}

// T looks up a UI string, falling back to English and then the key
func (p Preference) T(key string) string {
	if s, ok := catalog[p.Language][key]; ok {
		return s
	}
	if s, ok := catalog[English][key]; ok {
		return s
	}
	return key
}

// Tf is T with fmt.Sprintf arguments
func (p Preference) Tf(key string, args ...interface{}) string {
	return fmt.Sprintf(p.T(key), args...)
}

// Package languages holds the interpreter's supported language set.
package languages

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/pemistahl/lingua-go"
	"golang.org/x/text/language"
)

// Language is a supported display name, its ISO 639-1 code and the regional locale
// used by speech services.
type Language struct {
	Name   string       `json:"name"`
	Code   string       `json:"code"`
	Locale string       `json:"locale"`
	Tag    language.Tag `json:"-"`
}

// ErrUnsupported is returned by Lookup for blank or unknown languages.
var ErrUnsupported = errors.New("unsupported language")

const (
	DefaultParticipant1 = "English"
	DefaultParticipant2 = "Telugu"

	// Auto requests source-language detection.
	Auto = "auto"
)

var supported = []Language{
	{Name: "Telugu", Code: "te", Locale: "te-IN"},
	{Name: "Hindi", Code: "hi", Locale: "hi-IN"},
	{Name: "Kannada", Code: "kn", Locale: "kn-IN"},
	{Name: "English", Code: "en", Locale: "en-US"},
	{Name: "Japanese", Code: "ja", Locale: "ja-JP"},
	{Name: "Korean", Code: "ko", Locale: "ko-KR"},
}

func init() {
	for i := range supported {
		supported[i].Tag = language.MustParse(supported[i].Code)
		language.MustParse(supported[i].Locale)
	}
}

// All returns the supported languages ordered by name.
func All() []Language {
	out := append([]Language(nil), supported...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup resolves a display name or a BCP-47 code, case-insensitively.
// Region subtags are ignored, so "en-US" resolves to English.
func Lookup(nameOrCode string) (Language, error) {
	key := strings.TrimSpace(nameOrCode)
	if key == "" {
		return Language{}, fmt.Errorf("%w: language is required", ErrUnsupported)
	}
	for _, l := range supported {
		if strings.EqualFold(l.Name, key) {
			return l, nil
		}
	}
	tag, err := language.Parse(key)
	if err != nil {
		return Language{}, fmt.Errorf("%w %q", ErrUnsupported, nameOrCode)
	}
	base, _ := tag.Base()
	for _, l := range supported {
		if lb, _ := l.Tag.Base(); lb == base {
			return l, nil
		}
	}
	return Language{}, fmt.Errorf("%w %q", ErrUnsupported, nameOrCode)
}

// MustLookup is Lookup for compile-time constants.
func MustLookup(nameOrCode string) Language {
	l, err := Lookup(nameOrCode)
	if err != nil {
		panic(err)
	}
	return l
}

// Detector guesses the language of a text among the supported set.
type Detector struct {
	detector lingua.LanguageDetector
}

var linguaLanguages = map[lingua.Language]string{
	lingua.Telugu:   "te",
	lingua.Hindi:    "hi",
	lingua.English:  "en",
	lingua.Japanese: "ja",
	lingua.Korean:   "ko",
}

// NewDetector builds a lingua detector over every supported language lingua knows.
// Kannada has no lingua model and is never detected.
func NewDetector() *Detector {
	langs := make([]lingua.Language, 0, len(linguaLanguages))
	for l := range linguaLanguages {
		langs = append(langs, l)
	}
	return &Detector{
		detector: lingua.NewLanguageDetectorBuilder().
			FromLanguages(langs...).
			Build(),
	}
}

// Detect returns the detected language, or false when the text is ambiguous.
func (d *Detector) Detect(text string) (Language, bool) {
	if d == nil || strings.TrimSpace(text) == "" {
		return Language{}, false
	}
	l, ok := d.detector.DetectLanguageOf(text)
	if !ok {
		return Language{}, false
	}
	code, ok := linguaLanguages[l]
	if !ok {
		return Language{}, false
	}
	return MustLookup(code), true
}

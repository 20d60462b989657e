package rag

import (
	"unicode"

	"github.com/xxxsen/ragdesk/internal/model"
)

const hebrewShareThreshold = 0.3

// DetectLanguage answers Hebrew when more than 30% of the letters are Hebrew.
func DetectLanguage(text string) model.Language {
	var letters, hebrew int
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.Is(unicode.Hebrew, r) {
			hebrew++
		}
	}
	if letters > 0 && float64(hebrew)/float64(letters) > hebrewShareThreshold {
		return model.LanguageHebrew
	}
	return model.LanguageEnglish
}

// Package locale detects a guest's language and holds the router's canned
// replies.
package locale

import (
	"strings"
	"unicode"

	"hostel-agent/internal/domain"
)

// malayWords are common Malay words that rarely appear in English messages.
var malayWords = map[string]bool{
	"saya": true, "nak": true, "mahu": true, "hendak": true, "boleh": true,
	"tak": true, "tidak": true, "ada": true, "bilik": true, "berapa": true,
	"harga": true, "tempah": true, "tempahan": true, "terima": true, "kasih": true,
	"selamat": true, "pagi": true, "petang": true, "malam": true, "esok": true,
	"hari": true, "ini": true, "itu": true, "untuk": true, "dengan": true,
	"apa": true, "bila": true, "mana": true, "kami": true, "orang": true,
	"batal": true, "ya": true, "tolong": true, "encik": true, "cik": true,
	"sampai": true, "hingga": true, "dari": true, "katil": true, "bayar": true,
}

// minMalayHits is the number of Malay words needed to switch to Malay.
const minMalayHits = 2

// Detect guesses the language of text. Any Han character means Chinese.
// Malay needs minMalayHits distinct Malay words, or one when the message has
// no more than two words. Otherwise Latin letters mean English. Text with no
// letters keeps fallback.
func Detect(text string, fallback domain.Language) domain.Language {
	if fallback == "" {
		fallback = domain.DefaultLanguage
	}

	hasLatin := false
	for _, r := range text {
		if unicode.Is(unicode.Han, r) {
			return domain.LanguageChinese
		}
		if r < unicode.MaxASCII && unicode.IsLetter(r) {
			hasLatin = true
		}
	}
	if !hasLatin {
		return fallback
	}

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	hits := make(map[string]bool)
	for _, w := range words {
		if malayWords[w] {
			hits[w] = true
		}
	}
	switch {
	case len(hits) >= minMalayHits:
		return domain.LanguageMalay
	case len(hits) == 1 && len(words) <= 2:
		return domain.LanguageMalay
	case len(hits) == 1 && fallback == domain.LanguageMalay:
		return domain.LanguageMalay
	default:
		return domain.LanguageEnglish
	}
}

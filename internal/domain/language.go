package domain

// Language is a supported guest locale.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageMalay   Language = "ms"
	LanguageChinese Language = "zh"

	DefaultLanguage = LanguageEnglish
)

// ParseLanguage maps a free-form code to a supported Language, falling back
// to DefaultLanguage.
func ParseLanguage(code string) Language {
	switch code {
	case "en", "EN", "english":
		return LanguageEnglish
	case "ms", "MS", "my", "malay", "bm":
		return LanguageMalay
	case "zh", "ZH", "cn", "chinese":
		return LanguageChinese
	default:
		return DefaultLanguage
	}
}

// Texts holds one string per language.
type Texts map[Language]string

// Pick returns the text for lang, the default-language text, or any text.
func (t Texts) Pick(lang Language) string {
	if s, ok := t[lang]; ok && s != "" {
		return s
	}
	if s, ok := t[DefaultLanguage]; ok && s != "" {
		return s
	}
	for _, l := range []Language{LanguageEnglish, LanguageMalay, LanguageChinese} {
		if s := t[l]; s != "" {
			return s
		}
	}
	return ""
}

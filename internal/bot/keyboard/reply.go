package keyboard

import (
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/horoscope-bot/internal/domain"
	"github.com/Proton-105/horoscope-bot/internal/profile"
)

// SkipAnswer is accepted for optional registration fields.
const SkipAnswer = "-"

var languageLabels = map[domain.Language]string{
	domain.LanguageLT: "🇱🇹 LT",
	domain.LanguageEN: "🇬🇧 EN",
	domain.LanguageRU: "🇷🇺 RU",
	domain.LanguageLV: "🇱🇻 LV",
}

// LanguageLabel is the keyboard text of lang.
func LanguageLabel(lang domain.Language) string {
	return languageLabels[lang]
}

// LanguageMenu offers every supported language, two per row.
func LanguageMenu() *telebot.ReplyMarkup {
	markup := newReplyMarkup()

	rows := make([]telebot.Row, 0, (len(domain.Languages)+1)/2)
	for i := 0; i < len(domain.Languages); i += 2 {
		row := telebot.Row{markup.Text(LanguageLabel(domain.Languages[i]))}
		if i+1 < len(domain.Languages) {
			row = append(row, markup.Text(LanguageLabel(domain.Languages[i+1])))
		}
		rows = append(rows, row)
	}

	markup.Reply(rows...)
	return markup
}

// GenderMenu offers the gender vocabulary of lang.
func GenderMenu(lang domain.Language) *telebot.ReplyMarkup {
	markup := newReplyMarkup()

	options := profile.GenderOptions(lang)
	row := make(telebot.Row, 0, len(options))
	for _, option := range options {
		row = append(row, markup.Text(option))
	}

	markup.Reply(row)
	return markup
}

// SkipMenu offers the skip answer for optional fields.
func SkipMenu() *telebot.ReplyMarkup {
	markup := newReplyMarkup()
	markup.Reply(markup.Row(markup.Text(SkipAnswer)))
	return markup
}

// Remove hides any reply keyboard.
func Remove() *telebot.ReplyMarkup {
	return &telebot.ReplyMarkup{RemoveKeyboard: true}
}

func newReplyMarkup() *telebot.ReplyMarkup {
	return &telebot.ReplyMarkup{
		ResizeKeyboard:  true,
		OneTimeKeyboard: true,
	}
}

package keyboard

import (
	"strconv"

	telebot "gopkg.in/telebot.v3"
)

// InlineButton is a button definition rendered into callback data by Build.
type InlineButton struct {
	Text   string
	Unique string // routes the callback
	Data   string // payload after the separator
}

// InlineKeyboardBuilder accumulates rows before rendering telebot markup.
type InlineKeyboardBuilder struct {
	rows [][]InlineButton
}

func NewInlineKeyboard() *InlineKeyboardBuilder {
	return &InlineKeyboardBuilder{rows: make([][]InlineButton, 0)}
}

// AddRow appends a row of buttons. Empty rows are ignored.
func (b *InlineKeyboardBuilder) AddRow(buttons ...InlineButton) *InlineKeyboardBuilder {
	if len(buttons) == 0 {
		return b
	}

	row := make([]InlineButton, len(buttons))
	copy(row, buttons)
	b.rows = append(b.rows, row)
	return b
}

// Build encodes every button's callback data and fails when one exceeds the
// Telegram limit.
func (b *InlineKeyboardBuilder) Build() (*telebot.ReplyMarkup, error) {
	inline := make([][]telebot.InlineButton, len(b.rows))
	for i, row := range b.rows {
		inline[i] = make([]telebot.InlineButton, len(row))
		for j, btn := range row {
			data, err := EncodeCallback(btn.Unique, btn.Data)
			if err != nil {
				return nil, err
			}
			inline[i][j] = telebot.InlineButton{Text: btn.Text, Data: data}
		}
	}

	return &telebot.ReplyMarkup{InlineKeyboard: inline}, nil
}

// CancelRequest renders the button that aborts the user's pending horoscope.
func CancelRequest(label string, userID int64) *telebot.ReplyMarkup {
	markup, err := NewInlineKeyboard().
		AddRow(InlineButton{Text: label, Unique: CallbackHoroscopeCancel, Data: strconv.FormatInt(userID, 10)}).
		Build()
	if err != nil {
		return nil
	}
	return markup
}

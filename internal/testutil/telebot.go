// Package testutil holds fakes shared by transport tests.
package testutil

import (
	"sync"

	telebot "gopkg.in/telebot.v3"
)

// Sent is one message passed to Context.Send.
type Sent struct {
	Text   string
	Markup *telebot.ReplyMarkup
}

// FakeContext implements the parts of telebot.Context the handlers use.
// Calling any other method panics through the nil embedded interface.
type FakeContext struct {
	telebot.Context

	User   *telebot.User
	Msg    *telebot.Message
	CB     *telebot.Callback
	SendFn func(what interface{}) error

	mu        sync.Mutex
	store     map[string]interface{}
	sent      []Sent
	responses []*telebot.CallbackResponse
}

// NewTextContext builds an update carrying a text message from userID.
func NewTextContext(userID int64, messageID int, text string) *FakeContext {
	user := &telebot.User{ID: userID}
	return &FakeContext{
		User: user,
		Msg: &telebot.Message{
			ID:     messageID,
			Sender: user,
			Chat:   &telebot.Chat{ID: userID},
			Text:   text,
		},
	}
}

// NewCallbackContext builds an inline button press from userID.
func NewCallbackContext(userID int64, id, data string) *FakeContext {
	user := &telebot.User{ID: userID}
	return &FakeContext{
		User: user,
		CB:   &telebot.Callback{ID: id, Sender: user, Data: data},
	}
}

func (f *FakeContext) Sender() *telebot.User       { return f.User }
func (f *FakeContext) Message() *telebot.Message   { return f.Msg }
func (f *FakeContext) Callback() *telebot.Callback { return f.CB }

func (f *FakeContext) Text() string {
	if f.Msg == nil {
		return ""
	}
	return f.Msg.Text
}

func (f *FakeContext) Send(what interface{}, opts ...interface{}) error {
	if f.SendFn != nil {
		if err := f.SendFn(what); err != nil {
			return err
		}
	}

	msg := Sent{}
	msg.Text, _ = what.(string)
	for _, opt := range opts {
		if markup, ok := opt.(*telebot.ReplyMarkup); ok {
			msg.Markup = markup
		}
	}

	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()
	return nil
}

func (f *FakeContext) Respond(resp ...*telebot.CallbackResponse) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(resp) == 0 {
		f.responses = append(f.responses, nil)
		return nil
	}
	f.responses = append(f.responses, resp...)
	return nil
}

func (f *FakeContext) Get(key string) interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.store[key]
}

func (f *FakeContext) Set(key string, val interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.store == nil {
		f.store = make(map[string]interface{})
	}
	f.store[key] = val
}

// Sent returns a copy of every message sent so far.
func (f *FakeContext) Sent() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Sent, len(f.sent))
	copy(out, f.sent)
	return out
}

// LastText returns the text of the most recent message, or "".
func (f *FakeContext) LastText() string {
	sent := f.Sent()
	if len(sent) == 0 {
		return ""
	}
	return sent[len(sent)-1].Text
}

// Responses returns the callback answers given so far. A bare Respond()
// is recorded as nil.
func (f *FakeContext) Responses() []*telebot.CallbackResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*telebot.CallbackResponse, len(f.responses))
	copy(out, f.responses)
	return out
}

package handlers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/horoscope-bot/internal/bot/keyboard"
	"github.com/Proton-105/horoscope-bot/internal/deliver"
	"github.com/Proton-105/horoscope-bot/internal/domain"
	"github.com/Proton-105/horoscope-bot/internal/i18n"
	"github.com/Proton-105/horoscope-bot/internal/orchestrator"
	"github.com/Proton-105/horoscope-bot/internal/state"
	"github.com/Proton-105/horoscope-bot/internal/testutil"
	"github.com/Proton-105/horoscope-bot/internal/transcribe"
	"github.com/Proton-105/horoscope-bot/pkg/logger"
)

type profileStore struct {
	mu       sync.Mutex
	profiles map[int64]*domain.UserProfile
}

func newProfileStore() *profileStore {
	return &profileStore{profiles: make(map[int64]*domain.UserProfile)}
}

func (s *profileStore) Get(_ context.Context, userID int64) (*domain.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *profileStore) Upsert(_ context.Context, p *domain.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.profiles[p.ID] = &cp
	return nil
}

func (s *profileStore) Profile(ctx context.Context, userID int64) (*domain.UserProfile, error) {
	return s.Get(ctx, userID)
}

func (s *profileStore) Stop(_ context.Context, userID int64) error   { return s.setActive(userID, false) }
func (s *profileStore) Resume(_ context.Context, userID int64) error { return s.setActive(userID, true) }

func (s *profileStore) setActive(userID int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return domain.ErrProfileNotFound
	}
	p.Active = active
	return nil
}

type fakeHoroscopes struct {
	mu        sync.Mutex
	err       error
	requests  int
	pending   bool
	cancelled []int64
}

func (f *fakeHoroscopes) RequestNow(context.Context, int64) (*orchestrator.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	if f.err != nil {
		return nil, f.err
	}
	return &orchestrator.Result{Text: "stars", Target: "openai/test", Attempts: 1}, nil
}

func (f *fakeHoroscopes) CancelPending(userID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, userID)
	return f.pending
}

type fakeRunner struct {
	windows []domain.Window
}

func (f *fakeRunner) RunNow(_ context.Context, w domain.Window) (*deliver.Report, error) {
	f.windows = append(f.windows, w)
	return &deliver.Report{Window: w, Delivered: 3, Skipped: 1, Failed: 0}, nil
}

type fakeTranscriber struct {
	text string
	err  error
	lang domain.Language
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audio []byte, _ time.Duration, lang domain.Language) (string, error) {
	f.lang = lang
	if len(audio) == 0 {
		return "", transcribe.ErrNoSpeech
	}
	return f.text, f.err
}

type fakeFiles struct{ data []byte }

func (f fakeFiles) File(*telebot.File) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

type fixture struct {
	store    *profileStore
	machine  *state.Machine
	renderer *Renderer
	en       i18n.Translator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	catalog, err := i18n.Load("en")
	require.NoError(t, err)

	store := newProfileStore()
	return &fixture{
		store:    store,
		machine:  state.NewMachine(state.NewMemoryStorage(), store, state.NewLocalLocker(), logger.Discard()),
		renderer: NewRenderer(catalog),
		en:       catalog.Translator("en"),
	}
}

func (f *fixture) registered(userID int64) {
	f.store.profiles[userID] = &domain.UserProfile{
		ID:        userID,
		Name:      "Ona",
		BirthDate: time.Date(1990, 5, 15, 0, 0, 0, 0, time.UTC),
		Language:  domain.LanguageEN,
		Gender:    domain.GenderFemale,
		Active:    true,
	}
}

func TestRegistrationFlow(t *testing.T) {
	f := newFixture(t)
	log := logger.Discard()
	start := NewStartHandler(f.machine, f.renderer, log)
	answer := NewAnswerHandler(f.machine, f.store, f.renderer, log)

	c := testutil.NewTextContext(7, 1, "/start")
	require.NoError(t, start(c))
	sent := c.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, f.en.T("registration.choose_language"), sent[0].Text)
	require.NotNil(t, sent[0].Markup)
	assert.Len(t, sent[0].Markup.ReplyKeyboard, 2)

	steps := []struct {
		text string
		want string
	}{
		{"🇬🇧 EN", f.en.T("registration.ask_name")},
		{"Ona", f.en.T("registration.ask_gender")},
		{"woman", f.en.T("registration.ask_birth_date")},
		{"1990-05-15", f.en.T("registration.ask_profession")},
		{keyboard.SkipAnswer, f.en.T("registration.ask_hobbies")},
		{"reading", f.en.Tf("registration.complete", "Ona", "Taurus")},
	}
	for i, step := range steps {
		c := testutil.NewTextContext(7, i+2, step.text)
		require.NoError(t, answer(c))
		assert.Equal(t, step.want, c.LastText(), "answer %q", step.text)
	}

	p, err := f.store.Get(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "Ona", p.Name)
	assert.Equal(t, domain.GenderFemale, p.Gender)
	assert.Empty(t, p.Profession)
	assert.Equal(t, "reading", p.Hobbies)
}

func TestAnswerValidationAndDuplicates(t *testing.T) {
	f := newFixture(t)
	log := logger.Discard()
	ctx := context.Background()

	_, err := f.machine.Start(ctx, 9)
	require.NoError(t, err)
	answer := NewAnswerHandler(f.machine, f.store, f.renderer, log)

	c := testutil.NewTextContext(9, 10, "EN")
	require.NoError(t, answer(c))

	c = testutil.NewTextContext(9, 11, "x")
	require.NoError(t, answer(c))
	assert.Equal(t, f.en.T("validation.name")+"\n\n"+f.en.T("registration.ask_name"), c.LastText())

	c = testutil.NewTextContext(9, 11, "Ona")
	require.NoError(t, answer(c))
	assert.Equal(t, f.en.T("registration.ask_name"), c.LastText())

	require.NoError(t, answer(testutil.NewTextContext(9, 12, "Ona")))
	require.NoError(t, answer(testutil.NewTextContext(9, 13, "man")))

	c = testutil.NewTextContext(9, 14, "15.05.1990")
	require.NoError(t, answer(c))
	assert.Equal(t, f.en.T("validation.birth_date.invalid_format")+"\n\n"+f.en.T("registration.ask_birth_date"), c.LastText())
}

func TestAnswerWithoutSession(t *testing.T) {
	f := newFixture(t)
	answer := NewAnswerHandler(f.machine, f.store, f.renderer, logger.Discard())

	c := testutil.NewTextContext(5, 1, "hello")
	require.NoError(t, answer(c))
	assert.Equal(t, f.en.T("profile.none"), c.LastText())

	f.registered(5)
	c = testutil.NewTextContext(5, 2, "hello")
	require.NoError(t, answer(c))
	assert.Equal(t, f.en.T("help.text"), c.LastText())
}

func TestStartWhenRegisteredAndReset(t *testing.T) {
	f := newFixture(t)
	f.registered(3)
	log := logger.Discard()

	c := testutil.NewTextContext(3, 1, "/start")
	require.NoError(t, NewStartHandler(f.machine, f.renderer, log)(c))
	assert.Equal(t, f.en.T("registration.already_registered"), c.LastText())

	c = testutil.NewTextContext(3, 2, "/reset")
	require.NoError(t, NewResetHandler(f.machine, f.renderer, log)(c))
	assert.Equal(t, f.en.T("registration.reset_started")+"\n\n"+f.en.T("registration.choose_language"), c.LastText())

	_, err := f.store.Get(context.Background(), 3)
	assert.NoError(t, err, "profile stays until the new registration completes")
}

func TestCancelHandler(t *testing.T) {
	f := newFixture(t)
	log := logger.Discard()
	h := &fakeHoroscopes{}
	cancel := NewCancelHandler(f.machine, h, f.renderer, log)

	c := testutil.NewTextContext(4, 1, "/cancel")
	require.NoError(t, cancel(c))
	assert.Equal(t, f.en.T("registration.no_session"), c.LastText())

	h.pending = true
	c = testutil.NewTextContext(4, 2, "/cancel")
	require.NoError(t, cancel(c))
	assert.Equal(t, f.en.T("horoscope.cancelled"), c.LastText())

	h.pending = false
	_, err := f.machine.Start(context.Background(), 4)
	require.NoError(t, err)
	c = testutil.NewTextContext(4, 3, "/cancel")
	require.NoError(t, cancel(c))
	assert.Equal(t, f.en.T("registration.cancelled"), c.LastText())

	_, err = f.machine.Session(context.Background(), 4)
	assert.ErrorIs(t, err, state.ErrSessionNotFound)
	assert.Equal(t, []int64{4, 4, 4}, h.cancelled)
}

func TestHoroscopeHandler(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("provider down")

	tests := []struct {
		name     string
		err      error
		wantText string
		wantErr  error
	}{
		{name: "served", wantText: f.en.T("horoscope.generating")},
		{name: "no profile", err: domain.ErrProfileNotFound, wantText: f.en.T("horoscope.need_profile")},
		{name: "already delivered", err: deliver.ErrAlreadyDelivered, wantText: f.en.T("horoscope.already_delivered")},
		{name: "pending", err: deliver.ErrRequestPending, wantText: f.en.T("horoscope.pending")},
		{name: "cancelled", err: deliver.ErrRequestCancelled, wantText: f.en.T("horoscope.generating")},
		{name: "failure", err: boom, wantText: f.en.T("horoscope.generating"), wantErr: boom},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			h := &fakeHoroscopes{err: tc.err}
			c := testutil.NewTextContext(8, 1, "/horoscope")

			err := NewHoroscopeHandler(h, f.renderer, logger.Discard())(c)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.wantText, c.LastText())
			assert.Equal(t, 1, h.requests)

			sent := c.Sent()
			require.NotEmpty(t, sent)
			require.NotNil(t, sent[0].Markup)
			assert.Len(t, sent[0].Markup.InlineKeyboard, 1)
		})
	}
}

func TestCancelRequestCallback(t *testing.T) {
	f := newFixture(t)
	h := &fakeHoroscopes{pending: true}
	cb := NewCancelRequestCallback(h, f.renderer, logger.Discard())

	data, err := keyboard.EncodeCallback(keyboard.CallbackHoroscopeCancel, "8")
	require.NoError(t, err)

	other := testutil.NewCallbackContext(9, "c1", data)
	require.NoError(t, cb(other))
	assert.Empty(t, h.cancelled)

	owner := testutil.NewCallbackContext(8, "c2", data)
	require.NoError(t, cb(owner))
	assert.Equal(t, []int64{8}, h.cancelled)
	responses := owner.Responses()
	require.Len(t, responses, 1)
	require.NotNil(t, responses[0])
	assert.Equal(t, f.en.T("horoscope.cancelled"), responses[0].Text)
}

func TestProfileAndSubscription(t *testing.T) {
	f := newFixture(t)
	log := logger.Discard()

	c := testutil.NewTextContext(2, 1, "/profile")
	require.NoError(t, NewProfileHandler(f.store, f.renderer, log)(c))
	assert.Equal(t, f.en.T("profile.none"), c.LastText())

	c = testutil.NewTextContext(2, 2, "/stop")
	require.NoError(t, NewStopHandler(f.store, f.renderer, log)(c))
	assert.Equal(t, f.en.T("profile.none"), c.LastText())

	f.registered(2)
	c = testutil.NewTextContext(2, 3, "/stop")
	require.NoError(t, NewStopHandler(f.store, f.renderer, log)(c))
	assert.Equal(t, f.en.T("subscription.stopped"), c.LastText())
	assert.False(t, f.store.profiles[2].Active)

	c = testutil.NewTextContext(2, 4, "/profile")
	require.NoError(t, NewProfileHandler(f.store, f.renderer, log)(c))
	want := f.en.Tf("profile.view", "Ona", "1990-05-15", "Taurus", "woman",
		f.en.T("profile.not_specified"), f.en.T("profile.not_specified"), "🇬🇧 EN", f.en.T("profile.paused"))
	assert.Equal(t, want, c.LastText())

	c = testutil.NewTextContext(2, 5, "/resume")
	require.NoError(t, NewResumeHandler(f.store, f.renderer, log)(c))
	assert.Equal(t, f.en.T("subscription.resumed"), c.LastText())
	assert.True(t, f.store.profiles[2].Active)
}

func TestSendTodayHandler(t *testing.T) {
	f := newFixture(t)
	runner := &fakeRunner{}
	window := func() domain.Window { return domain.Window("2026-10-18") }
	h := NewSendTodayHandler(runner, window, []int64{1}, f.renderer, logger.Discard())

	c := testutil.NewTextContext(2, 1, "/send_today")
	require.NoError(t, h(c))
	assert.Equal(t, f.en.T("admin.denied"), c.LastText())
	assert.Empty(t, runner.windows)

	c = testutil.NewTextContext(1, 2, "/send_today")
	require.NoError(t, h(c))
	assert.Equal(t, []domain.Window{"2026-10-18"}, runner.windows)
	assert.Equal(t, f.en.Tf("admin.run_report", "2026-10-18", 3, 1, 0), c.LastText())
}

func TestVoiceHandler(t *testing.T) {
	f := newFixture(t)
	log := logger.Discard()
	ctx := context.Background()

	voiceContext := func(messageID int, duration int) *testutil.FakeContext {
		c := testutil.NewTextContext(6, messageID, "")
		c.Msg.Voice = &telebot.Voice{File: telebot.File{FileID: "f"}, Duration: duration}
		return c
	}

	c := voiceContext(1, 3)
	require.NoError(t, NewVoiceHandler(f.machine, f.store, nil, nil, f.renderer, log)(c))
	assert.Equal(t, f.en.T("voice.disabled"), c.LastText())

	_, err := f.machine.Start(ctx, 6)
	require.NoError(t, err)
	_, err = f.machine.Submit(ctx, 6, state.Input{MessageID: 1, Text: "EN"})
	require.NoError(t, err)

	tr := &fakeTranscriber{text: "Ona"}
	c = voiceContext(2, 3)
	SetLanguage(c, domain.LanguageEN)
	require.NoError(t, NewVoiceHandler(f.machine, f.store, tr, fakeFiles{data: []byte("ogg")}, f.renderer, log)(c))
	assert.Equal(t, f.en.T("registration.ask_gender"), c.LastText())
	assert.Equal(t, domain.LanguageEN, tr.lang)

	tooLong := &fakeTranscriber{err: transcribe.ErrTooLong}
	c = voiceContext(3, 90)
	require.NoError(t, NewVoiceHandler(f.machine, f.store, tooLong, fakeFiles{data: []byte("ogg")}, f.renderer, log)(c))
	assert.Equal(t, f.en.T("voice.too_long"), c.LastText())

	c = voiceContext(4, 1)
	require.NoError(t, NewVoiceHandler(f.machine, f.store, &fakeTranscriber{}, fakeFiles{}, f.renderer, log)(c))
	assert.Equal(t, f.en.T("voice.not_recognized"), c.LastText())
}

func TestLanguageOf(t *testing.T) {
	c := testutil.NewTextContext(1, 1, "hi")
	assert.Equal(t, domain.LanguageEN, LanguageOf(c))

	c.User.LanguageCode = "ru-RU"
	assert.Equal(t, domain.LanguageRU, LanguageOf(c))

	SetLanguage(c, domain.LanguageLV)
	assert.Equal(t, domain.LanguageLV, LanguageOf(c))

	SetLanguage(c, domain.Language("XX"))
	assert.Equal(t, domain.LanguageLV, LanguageOf(c))
}

package transcribe

import (
	"context"
	"errors"
	"testing"
	"time"

	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/horoscope-bot/internal/domain"
	"github.com/Proton-105/horoscope-bot/pkg/config"
	"github.com/Proton-105/horoscope-bot/pkg/logger"
)

func TestTranscribeJoinsResults(t *testing.T) {
	var got *speechpb.RecognizeRequest
	s := newSpeech(func(_ context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		got = req
		return &speechpb.RecognizeResponse{Results: []*speechpb.SpeechRecognitionResult{
			{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: " 1990-05-15 "}}},
			{Alternatives: nil},
			{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "thanks"}}},
		}}, nil
	}, config.TranscriptionConfig{}, logger.Discard())

	text, err := s.Transcribe(context.Background(), []byte("ogg"), 3*time.Second, domain.LanguageLT)
	require.NoError(t, err)
	assert.Equal(t, "1990-05-15 thanks", text)

	require.NotNil(t, got)
	assert.Equal(t, "lt-LT", got.GetConfig().GetLanguageCode())
	assert.Equal(t, speechpb.RecognitionConfig_OGG_OPUS, got.GetConfig().GetEncoding())
	assert.Equal(t, DefaultSampleRate, got.GetConfig().GetSampleRateHertz())
	assert.Equal(t, []byte("ogg"), got.GetAudio().GetContent())
}

func TestTranscribeRejects(t *testing.T) {
	calls := 0
	s := newSpeech(func(context.Context, *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		calls++
		return &speechpb.RecognizeResponse{}, nil
	}, config.TranscriptionConfig{MaxVoiceSeconds: 20}, logger.Discard())
	ctx := context.Background()

	_, err := s.Transcribe(ctx, []byte("ogg"), 21*time.Second, domain.LanguageEN)
	assert.ErrorIs(t, err, ErrTooLong)

	_, err = s.Transcribe(ctx, nil, time.Second, domain.LanguageEN)
	assert.ErrorIs(t, err, ErrNoSpeech)
	assert.Zero(t, calls)

	_, err = s.Transcribe(ctx, []byte("ogg"), time.Second, domain.LanguageEN)
	assert.ErrorIs(t, err, ErrNoSpeech)
	assert.Equal(t, 1, calls)
}

func TestTranscribeWrapsErrors(t *testing.T) {
	boom := errors.New("unavailable")
	s := newSpeech(func(context.Context, *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		return nil, boom
	}, config.TranscriptionConfig{}, logger.Discard())

	_, err := s.Transcribe(context.Background(), []byte("ogg"), time.Second, domain.LanguageRU)
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, s.Close())
}

func TestLanguageCode(t *testing.T) {
	assert.Equal(t, "lv-LV", LanguageCode(domain.LanguageLV))
	assert.Equal(t, "ru-RU", LanguageCode(domain.LanguageRU))
	assert.Equal(t, "en-US", LanguageCode(domain.Language("XX")))
}

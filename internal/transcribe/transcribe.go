// Package transcribe turns Telegram voice notes into text with Google Cloud
// Speech-to-Text.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"

	"github.com/Proton-105/horoscope-bot/internal/domain"
	"github.com/Proton-105/horoscope-bot/pkg/config"
)

const (
	// DefaultSampleRate matches Telegram's Opus voice notes.
	DefaultSampleRate int32 = 48000
	// DefaultMaxDuration is the synchronous Recognize limit.
	DefaultMaxDuration = 60 * time.Second
)

var (
	ErrTooLong  = errors.New("voice message is too long")
	ErrNoSpeech = errors.New("no speech recognized")
)

// Transcriber converts audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, duration time.Duration, lang domain.Language) (string, error)
}

type recognizeFunc func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)

// Speech transcribes OGG/Opus audio through the Recognize API.
type Speech struct {
	recognize   recognizeFunc
	close       func() error
	sampleRate  int32
	maxDuration time.Duration
	log         *slog.Logger
}

// NewSpeech dials Google Cloud Speech. An empty credentials file falls back
// to application default credentials.
func NewSpeech(ctx context.Context, cfg config.TranscriptionConfig, log *slog.Logger) (*Speech, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}

	s := newSpeech(func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		return client.Recognize(ctx, req)
	}, cfg, log)
	s.close = client.Close
	return s, nil
}

func newSpeech(fn recognizeFunc, cfg config.TranscriptionConfig, log *slog.Logger) *Speech {
	if log == nil {
		log = slog.Default()
	}

	s := &Speech{
		recognize:   fn,
		sampleRate:  cfg.SampleRate,
		maxDuration: time.Duration(cfg.MaxVoiceSeconds) * time.Second,
		log:         log.With(slog.String("component", "transcribe")),
	}
	if s.sampleRate <= 0 {
		s.sampleRate = DefaultSampleRate
	}
	if s.maxDuration <= 0 || s.maxDuration > DefaultMaxDuration {
		s.maxDuration = DefaultMaxDuration
	}
	return s
}

// LanguageCode maps a profile language to a BCP-47 recognition locale.
func LanguageCode(lang domain.Language) string {
	switch lang {
	case domain.LanguageLT:
		return "lt-LT"
	case domain.LanguageRU:
		return "ru-RU"
	case domain.LanguageLV:
		return "lv-LV"
	default:
		return "en-US"
	}
}

// Transcribe returns the best transcript of audio.
func (s *Speech) Transcribe(ctx context.Context, audio []byte, duration time.Duration, lang domain.Language) (string, error) {
	if duration > s.maxDuration {
		return "", ErrTooLong
	}
	if len(audio) == 0 {
		return "", ErrNoSpeech
	}

	req := &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   speechpb.RecognitionConfig_OGG_OPUS,
			SampleRateHertz:            s.sampleRate,
			AudioChannelCount:          1,
			LanguageCode:               LanguageCode(lang),
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	}

	resp, err := s.recognize(ctx, req)
	if err != nil {
		s.log.Warn("speech recognition failed", slog.String("language", string(lang)), slog.Any("error", err))
		return "", fmt.Errorf("recognize speech: %w", err)
	}

	parts := make([]string, 0, len(resp.GetResults()))
	for _, result := range resp.GetResults() {
		alts := result.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		if t := strings.TrimSpace(alts[0].GetTranscript()); t != "" {
			parts = append(parts, t)
		}
	}

	if len(parts) == 0 {
		return "", ErrNoSpeech
	}
	return strings.Join(parts, " "), nil
}

// Close releases the gRPC connection.
func (s *Speech) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

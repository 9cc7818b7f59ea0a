// Package googletts synthesizes speech with Google Cloud Text-to-Speech.
// Tamil and Malayalam voices are served for the ta-IN and ml-IN locales.
package googletts

import (
	"context"
	"fmt"
	"strings"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"

	"github.com/jo-hoe/medscan/internal/language"
)

type Config struct {
	CredentialsFile string  `yaml:"credentials_file"`
	VoiceGender     string  `yaml:"voice_gender" validate:"omitempty,oneof=female male neutral"`
	SpeakingRate    float64 `yaml:"speaking_rate" validate:"gte=0,lte=4"`
}

type synthesizeClient interface {
	SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest, opts ...gax.CallOption) (*texttospeechpb.SynthesizeSpeechResponse, error)
	Close() error
}

type Synthesizer struct {
	client       synthesizeClient
	gender       texttospeechpb.SsmlVoiceGender
	speakingRate float64
}

// New connects to the Text-to-Speech API. Without a credentials file the
// application default credentials are used.
func New(ctx context.Context, cfg Config) (*Synthesizer, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := texttospeech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create text-to-speech client: %w", err)
	}
	return newSynthesizer(client, cfg), nil
}

func newSynthesizer(client synthesizeClient, cfg Config) *Synthesizer {
	return &Synthesizer{
		client:       client,
		gender:       voiceGender(cfg.VoiceGender),
		speakingRate: cfg.SpeakingRate,
	}
}

func voiceGender(name string) texttospeechpb.SsmlVoiceGender {
	switch strings.ToLower(name) {
	case "male":
		return texttospeechpb.SsmlVoiceGender_MALE
	case "neutral":
		return texttospeechpb.SsmlVoiceGender_NEUTRAL
	default:
		return texttospeechpb.SsmlVoiceGender_FEMALE
	}
}

func (s *Synthesizer) Name() string { return "google" }

func (s *Synthesizer) Synthesize(ctx context.Context, text, lang string) ([]byte, error) {
	req := &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: language.Locale(lang),
			SsmlGender:   s.gender,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
			SpeakingRate:  s.speakingRate,
		},
	}

	resp, err := s.client.SynthesizeSpeech(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("synthesize speech: %w", err)
	}
	return resp.GetAudioContent(), nil
}

func (s *Synthesizer) Close() error {
	return s.client.Close()
}

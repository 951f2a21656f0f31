package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	openai "github.com/openai/openai-go/v3"

	"murmur/internal/stt"
	"murmur/pkg/audioconv"
)

const systemPrompt = "You are a helpful AI assistant. Keep responses concise and conversational."

// Engine is the AI boundary behind the HTTP handlers. Having it as an
// interface keeps the handlers testable without network access.
type Engine interface {
	Transcribe(ctx context.Context, data []byte, filename, contentType string) (string, error)
	Chat(ctx context.Context, text string) (string, error)
	ChatStream(ctx context.Context, text string, emit func(delta string) error) error
	Speak(ctx context.Context, text string) ([]byte, error)
}

// OpenAIEngine delegates to the OpenAI API. When a local whisper transcriber
// is supplied, transcription happens on-box instead of via the remote API.
type OpenAIEngine struct {
	client openai.Client
	local  *stt.Transcriber
}

func NewOpenAIEngine(client openai.Client, local *stt.Transcriber) *OpenAIEngine {
	return &OpenAIEngine{client: client, local: local}
}

func (e *OpenAIEngine) Transcribe(ctx context.Context, data []byte, filename, contentType string) (string, error) {
	if e.local != nil {
		pcm, err := audioconv.DecodePCM16k(data, audioconv.Options{})
		if err != nil {
			return "", fmt.Errorf("decode upload: %w", err)
		}
		text, err := e.local.TranscribePCM(ctx, pcm, stt.Options{Language: "en"})
		if err != nil {
			return "", fmt.Errorf("local transcribe: %w", err)
		}
		return strings.TrimSpace(text), nil
	}

	tr, err := e.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model:       openai.AudioModelWhisper1,
		File:        openai.File(bytes.NewReader(data), filename, contentType),
		Language:    openai.String("en"),
		Temperature: openai.Float(0),
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(tr.Text), nil
}

func (e *OpenAIEngine) Chat(ctx context.Context, text string) (string, error) {
	resp, err := e.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(text),
		},
		Model: openai.ChatModelGPT4oMini,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", fmt.Errorf("empty message content")
	}
	return content, nil
}

func (e *OpenAIEngine) ChatStream(ctx context.Context, text string, emit func(delta string) error) error {
	stream := e.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(text),
		},
		Model: openai.ChatModelGPT4oMini,
	})
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			if err := emit(delta); err != nil {
				return err
			}
		}
	}
	return stream.Err()
}

func (e *OpenAIEngine) Speak(ctx context.Context, text string) ([]byte, error) {
	resp, err := e.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model: openai.SpeechModelTTS1,
		Voice: openai.AudioSpeechNewParamsVoiceAlloy,
		Input: text,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

package botapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"murmur/internal/capture"
)

func TestTranscribeUploadsMultipart(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/transcribe" {
			http.Error(w, "wrong path", 404)
			return
		}
		f, fh, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "missing file", 400)
			return
		}
		defer f.Close()
		if fh.Filename != "recording.wav" {
			http.Error(w, "wrong filename", 400)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"transcription": "hello"}`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL + "/api")
	art := capture.Artifact{Data: []byte("RIFFxxxxWAVE"), Format: capture.FormatWAV}

	text, err := c.Transcribe(context.Background(), art)
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "hello" {
		t.Fatalf("unexpected transcription: %q", text)
	}
}

func TestErrorDetailSurfaced(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(400)
		w.Write([]byte(`{"detail": "no speech detected in audio"}`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL)
	_, err := c.Transcribe(context.Background(), capture.Artifact{Data: []byte("RIFF")})
	if err == nil {
		t.Fatal("expected an error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Detail != "no speech detected in audio" || apiErr.Status != 400 {
		t.Fatalf("detail not surfaced: %+v", apiErr)
	}
}

func TestErrorWithoutDetailGetsGenericMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", 502)
	}))
	defer ts.Close()

	c := NewClient(ts.URL)
	_, err := c.Reply(context.Background(), "hi")
	if err == nil {
		t.Fatal("expected an error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Error() != "request failed with status 502" {
		t.Fatalf("unexpected message: %q", apiErr.Error())
	}
}

func TestReplyAndSynthesize(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/chat":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"response": "hi there"}`))
		case "/speak":
			w.Header().Set("Content-Type", "audio/mpeg")
			w.Write([]byte{0xFF, 0xFB, 0x90, 0x00})
		default:
			http.Error(w, "wrong path", 404)
		}
	}))
	defer ts.Close()

	c := NewClient(ts.URL)

	reply, err := c.Reply(context.Background(), "hello")
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if reply != "hi there" {
		t.Fatalf("unexpected reply: %q", reply)
	}

	audio, err := c.Synthesize(context.Background(), reply)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(audio) != 4 || audio[0] != 0xFF {
		t.Fatalf("unexpected audio payload: %v", audio)
	}
}

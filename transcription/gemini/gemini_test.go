package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kbukum/voicescribe/transcription"
)

func TestNewProviderRequiresAPIKey(t *testing.T) {
	if _, err := NewProvider(Config{}); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestTranscribe(t *testing.T) {
	var gotPath, gotKey string
	var gotReq generateRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"hello "},{"text":"there"}]}}]}`)
	}))
	defer srv.Close()

	p, err := NewProvider(Config{APIKey: "g-test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := p.Transcribe(context.Background(), transcription.Request{
		Audio:    bytes.NewReader([]byte("fake-aac")),
		MIMEType: "audio/aac",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "hello there" {
		t.Errorf("unexpected transcript %q", result.Text)
	}
	if gotPath != "/models/gemini-2.5-flash:generateContent" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotKey != "g-test" {
		t.Errorf("unexpected api key header %q", gotKey)
	}

	parts := gotReq.Contents[0].Parts
	if len(parts) != 2 || parts[1].InlineData == nil {
		t.Fatalf("expected prompt + inline audio parts, got %+v", parts)
	}
	if parts[1].InlineData.MIMEType != "audio/aac" {
		t.Errorf("unexpected inline mime type %q", parts[1].InlineData.MIMEType)
	}
	decoded, _ := base64.StdEncoding.DecodeString(parts[1].InlineData.Data)
	if string(decoded) != "fake-aac" {
		t.Errorf("audio payload not forwarded, got %q", decoded)
	}
}

func TestTranscribeEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{"candidates":[]}`)
	}))
	defer srv.Close()

	p, _ := NewProvider(Config{APIKey: "g-test", BaseURL: srv.URL})
	_, err := p.Transcribe(context.Background(), transcription.Request{
		Audio:    bytes.NewReader([]byte("x")),
		MIMEType: "audio/aac",
	})
	if err == nil {
		t.Fatal("expected error for empty model response")
	}
}

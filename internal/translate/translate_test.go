package translate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNew_Providers(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{"default", Config{}, "none", false},
		{"libretranslate", Config{Provider: "libretranslate", Endpoint: "http://localhost:5000"}, "libretranslate", false},
		{"libretranslate without endpoint", Config{Provider: "libretranslate"}, "", true},
		{"ollama", Config{Provider: "ollama", Model: "aya"}, "ollama", false},
		{"ollama without model", Config{Provider: "ollama"}, "", true},
		{"unknown", Config{Provider: "babelfish"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && tr.Name() != tt.want {
				t.Errorf("Name() = %s, want %s", tr.Name(), tt.want)
			}
		})
	}
}

func TestLibreTranslate(t *testing.T) {
	var received libreRequest
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Path != "/translate" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&received)
		_ = json.NewEncoder(w).Encode(libreResponse{TranslatedText: "வணக்கம்"})
	}))
	defer server.Close()

	tr, err := New(Config{Provider: "libretranslate", Endpoint: server.URL + "/", APIKey: "k"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	got, err := tr.Translate(context.Background(), "Hello", "tamil")
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if got != "வணக்கம்" {
		t.Errorf("unexpected translation %q", got)
	}
	if received.Source != "en" || received.Target != "ta" || received.APIKey != "k" {
		t.Errorf("unexpected request: %+v", received)
	}

	// english never reaches the provider
	if got, _ := tr.Translate(context.Background(), "Hello", "english"); got != "Hello" || calls != 1 {
		t.Errorf("english should pass through, got %q after %d calls", got, calls)
	}
}

func TestLibreTranslate_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(libreResponse{Error: "ml is not supported"})
	}))
	defer server.Close()

	tr, _ := New(Config{Provider: "libretranslate", Endpoint: server.URL})
	if _, err := tr.Translate(context.Background(), "Hello", "malayalam"); err == nil {
		t.Error("expected error for 400 response")
	}
}

func TestOllamaTranslator(t *testing.T) {
	var request map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&request)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":   "aya",
			"message": map[string]any{"role": "assistant", "content": " നമസ്കാരം \n"},
			"done":    true,
		})
	}))
	defer server.Close()

	tr, err := New(Config{Provider: "ollama", Endpoint: server.URL, Model: "aya"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	got, err := tr.Translate(context.Background(), "Hello", "malayalam")
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if got != "നമസ്കാരം" {
		t.Errorf("unexpected translation %q", got)
	}
	if request["model"] != "aya" {
		t.Errorf("expected model aya, got %v", request["model"])
	}
}

func TestPassthrough(t *testing.T) {
	tr, _ := New(Config{Provider: "none"})
	got, err := tr.Translate(context.Background(), "Hello", "tamil")
	if err != nil || got != "Hello" {
		t.Errorf("Translate() = %q, %v", got, err)
	}
}

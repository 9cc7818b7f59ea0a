// Package language holds the languages the device can speak and their codes
// for the OCR, translation and speech providers.
package language

import (
	"fmt"
	"strings"
)

const (
	English   = "english"
	Tamil     = "tamil"
	Malayalam = "malayalam"
)

type codes struct {
	iso       string // ISO 639-1, used by translation services
	tesseract string
	locale    string // BCP-47, used by text-to-speech
	display   string
}

var known = map[string]codes{
	English:   {iso: "en", tesseract: "eng", locale: "en-IN", display: "English"},
	Tamil:     {iso: "ta", tesseract: "tam", locale: "ta-IN", display: "Tamil"},
	Malayalam: {iso: "ml", tesseract: "mal", locale: "ml-IN", display: "Malayalam"},
}

// Normalize lowercases a language name and checks that it is known
func Normalize(name string) (string, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if _, ok := known[n]; !ok {
		return "", fmt.Errorf("unsupported language: %q", name)
	}
	return n, nil
}

func IsKnown(name string) bool {
	_, err := Normalize(name)
	return err == nil
}

// ISOCode returns the ISO 639-1 code, "en" for unknown names
func ISOCode(name string) string {
	if c, ok := known[strings.ToLower(name)]; ok {
		return c.iso
	}
	return "en"
}

// TesseractCode returns the tesseract traineddata name, "eng" for unknown names
func TesseractCode(name string) string {
	if c, ok := known[strings.ToLower(name)]; ok {
		return c.tesseract
	}
	return "eng"
}

// Locale returns the BCP-47 locale used for speech, "en-IN" for unknown names
func Locale(name string) string {
	if c, ok := known[strings.ToLower(name)]; ok {
		return c.locale
	}
	return "en-IN"
}

// DisplayName returns the capitalized language name
func DisplayName(name string) string {
	if c, ok := known[strings.ToLower(name)]; ok {
		return c.display
	}
	return name
}

package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jo-hoe/medscan/internal/analysis"
	"github.com/jo-hoe/medscan/internal/common"
	"github.com/jo-hoe/medscan/internal/document"
	"github.com/jo-hoe/medscan/internal/hardware"
	"github.com/jo-hoe/medscan/internal/imageprocessing"
	"github.com/jo-hoe/medscan/internal/language"
	"github.com/jo-hoe/medscan/internal/retention"
	"github.com/jo-hoe/medscan/internal/scanner"
	"github.com/jo-hoe/medscan/internal/speech/googletts"
	"github.com/jo-hoe/medscan/internal/translate"
)

// APIKeyEnv is read when api_key is not set in the config file
const APIKeyEnv = "MEDICAL_AI_API_KEY"

// GlossaryFileName is looked up in models_path for the report analyzer
const GlossaryFileName = "medical_terminology.json"

type Database struct {
	Type             string `yaml:"type" validate:"oneof=sqlite redis postgres"`
	ConnectionString string `yaml:"connection_string"`
}

type ScannerSection struct {
	Driver    string `yaml:"driver" validate:"oneof=sane inbox"`
	ColorMode string `yaml:"color_mode"`
	InboxPath string `yaml:"inbox_path"`
}

type OCRSection struct {
	Engine string `yaml:"engine" validate:"oneof=tesseract none"`
}

type SpeechSection struct {
	Provider      string           `yaml:"provider" validate:"oneof=google none"`
	Google        googletts.Config `yaml:"google"`
	PlayerCommand string           `yaml:"player_command"`
	PlayerArgs    []string         `yaml:"player_args"`
}

type ServiceConfig struct {
	APIEndpoint         string     `yaml:"api_endpoint" validate:"omitempty,url"`
	APIKey              string     `yaml:"api_key"`
	APITimeoutSeconds   int        `yaml:"api_timeout_seconds" validate:"gte=0"`
	ScannerDevice       string     `yaml:"scanner_device"`
	ModelsPath          string     `yaml:"models_path"`
	TempPath            string     `yaml:"temp_path" validate:"required"`
	OutputPath          string     `yaml:"output_path" validate:"required"`
	SupportedLanguages  []string   `yaml:"supported_languages" validate:"min=1"`
	DefaultLanguage     string     `yaml:"default_language" validate:"required"`
	ConfidenceThreshold float64    `yaml:"confidence_threshold" validate:"gte=0,lte=1"`
	ScanResolution      int        `yaml:"scan_resolution" validate:"gt=0"`
	MaxScanSize         [2]float64 `yaml:"max_scan_size"`
	ServerMode          bool       `yaml:"server_mode"`
	UseLocalModels      bool       `yaml:"use_local_models"`
	UseAPIFallback      bool       `yaml:"use_api_fallback"`
	AudioVolume         float64    `yaml:"audio_volume" validate:"gte=0,lte=1"`
	Port                int        `yaml:"port" validate:"gt=0,lte=65535"`
	ResultListLimit     int        `yaml:"result_list_limit" validate:"gte=0"`

	// pin keys of the single-file device config; they override hardware.pins
	ButtonGPIOPin *int `yaml:"button_gpio_pin"`
	LEDStatusPin  *int `yaml:"led_status_pin"`
	LEDErrorPin   *int `yaml:"led_error_pin"`

	Database      Database                        `yaml:"database"`
	Preprocessing []imageprocessing.CommandConfig `yaml:"preprocessing"`
	Analyzers     []analysis.AnalyzerConfig       `yaml:"analyzers"`
	Scanner       ScannerSection                  `yaml:"scanner"`
	Hardware      hardware.Config                 `yaml:"hardware"`
	Translation   translate.Config                `yaml:"translation"`
	Speech        SpeechSection                   `yaml:"speech"`
	OCR           OCRSection                      `yaml:"ocr"`
	Retention     retention.Config                `yaml:"retention"`
}

// DefaultConfig mirrors the stock device configuration
func DefaultConfig() *ServiceConfig {
	return &ServiceConfig{
		ModelsPath:          "./models",
		TempPath:            "./temp",
		OutputPath:          "./results",
		DefaultLanguage:     language.English,
		ConfidenceThreshold: 0.75,
		ScanResolution:      300,
		MaxScanSize:         [2]float64{8.5, 14},
		UseLocalModels:      true,
		UseAPIFallback:      true,
		AudioVolume:         0.8,
		Port:                8080,
		APITimeoutSeconds:   60,
		ResultListLimit:     20,
		Database:            Database{Type: "sqlite"},
		Scanner:             ScannerSection{Driver: "sane", ColorMode: "Color"},
		Hardware: hardware.Config{
			DebounceMillis: 300,
			SelfTestMillis: 500,
			LCDBus:         "1",
			LCDAddress:     0x27,
		},
		Translation: translate.Config{Provider: "none"},
		Speech:      SpeechSection{Provider: "none", PlayerCommand: "mpg123"},
		OCR:         OCRSection{Engine: "tesseract"},
		Retention:   retention.Config{ScanImagesDays: 7, AnalysisResultsDays: 30, Interval: "24h"},
	}
}

func defaultPins() hardware.Pins {
	return hardware.Pins{
		Button:        17,
		ButtonLight:   27,
		ReadyLED:      5,
		ErrorLED:      6,
		ProcessingLED: 13,
		LanguageSwitch: map[string]int{
			language.English:   22,
			language.Tamil:     23,
			language.Malayalam: 24,
		},
	}
}

// LoadConfig loads configuration from the specified YAML or JSON file
func LoadConfig(configPath string) (*ServiceConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}
	config, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}
	return config, nil
}

// ParseConfig decodes data over the defaults, fills the remaining defaults
// and validates the result
func ParseConfig(data []byte) (*ServiceConfig, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	config.applyDefaults()

	if err := common.ValidateStruct(config); err != nil {
		return nil, err
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *ServiceConfig) applyDefaults() {
	if c.APIKey == "" {
		c.APIKey = os.Getenv(APIKeyEnv)
	}
	if len(c.SupportedLanguages) == 0 {
		c.SupportedLanguages = []string{language.English, language.Tamil, language.Malayalam}
	}
	for i, lang := range c.SupportedLanguages {
		c.SupportedLanguages[i] = strings.ToLower(strings.TrimSpace(lang))
	}
	c.DefaultLanguage = strings.ToLower(strings.TrimSpace(c.DefaultLanguage))
	if c.Database.Type == "sqlite" && c.Database.ConnectionString == "" {
		c.Database.ConnectionString = filepath.Join(c.OutputPath, "results.db")
	}

	pins := &c.Hardware.Pins
	if pins.Button == 0 && pins.ButtonLight == 0 && pins.ReadyLED == 0 &&
		pins.ProcessingLED == 0 && pins.ErrorLED == 0 {
		switches := pins.LanguageSwitch
		*pins = defaultPins()
		pins.LanguageSwitch = mergePins(pins.LanguageSwitch, switches)
	}
	if len(pins.LanguageSwitch) == 0 {
		pins.LanguageSwitch = defaultPins().LanguageSwitch
	}
	if c.ButtonGPIOPin != nil {
		pins.Button = *c.ButtonGPIOPin
	}
	if c.LEDStatusPin != nil {
		pins.ProcessingLED = *c.LEDStatusPin
	}
	if c.LEDErrorPin != nil {
		pins.ErrorLED = *c.LEDErrorPin
	}

	glossary := filepath.Join(c.ModelsPath, GlossaryFileName)
	for i := range c.Analyzers {
		a := &c.Analyzers[i]
		if a.Name != analysis.ReportAnalyzerName || common.GetStringParam(a.Params, "glossaryPath", "") != "" {
			continue
		}
		if _, err := os.Stat(glossary); err != nil {
			continue
		}
		if a.Params == nil {
			a.Params = map[string]any{}
		}
		a.Params["glossaryPath"] = glossary
	}
}

func mergePins(base, override map[string]int) map[string]int {
	merged := make(map[string]int, len(base))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}

func (c *ServiceConfig) validate() error {
	for _, lang := range c.SupportedLanguages {
		if !language.IsKnown(lang) {
			return fmt.Errorf("unsupported language: %s", lang)
		}
	}
	if !c.IsSupportedLanguage(c.DefaultLanguage) {
		return fmt.Errorf("default_language %s is not in supported_languages", c.DefaultLanguage)
	}
	if c.MaxScanSize[0] < 0 || c.MaxScanSize[1] < 0 {
		return fmt.Errorf("max_scan_size must not be negative")
	}
	if c.Database.ConnectionString == "" {
		return fmt.Errorf("database connection_string is required for %s", c.Database.Type)
	}
	if c.Scanner.Driver == "inbox" && c.Scanner.InboxPath == "" {
		return fmt.Errorf("scanner inbox_path is required for the inbox driver")
	}
	if _, err := c.RetentionInterval(); err != nil {
		return err
	}
	if c.Hardware.Enabled {
		if err := c.Hardware.Pins.Validate(); err != nil {
			return fmt.Errorf("invalid hardware pins: %w", err)
		}
	}
	if c.Speech.Provider != "none" && c.Speech.PlayerCommand == "" {
		return fmt.Errorf("speech player_command is required")
	}
	if err := validateCommands(c.Preprocessing); err != nil {
		return fmt.Errorf("invalid preprocessing configuration: %w", err)
	}
	if err := validateAnalyzers(c.Analyzers); err != nil {
		return fmt.Errorf("invalid analyzer configuration: %w", err)
	}
	return nil
}

// validateCommands ensures every preprocessing step names a known command
func validateCommands(commands []imageprocessing.CommandConfig) error {
	for i, cmd := range commands {
		if cmd.Name == "" {
			return fmt.Errorf("command at index %d has empty name", i)
		}
		if !imageprocessing.DefaultRegistry.IsRegistered(cmd.Name) {
			return fmt.Errorf("unknown command at index %d: %s", i, cmd.Name)
		}
	}
	return nil
}

// validateAnalyzers ensures every analyzer is known and each document type is bound once
func validateAnalyzers(analyzers []analysis.AnalyzerConfig) error {
	seenTypes := make(map[document.Type]bool)

	for i, a := range analyzers {
		if a.Name == "" {
			return fmt.Errorf("analyzer at index %d has empty name", i)
		}
		if !analysis.DefaultRegistry.IsRegistered(a.Name) {
			return fmt.Errorf("unknown analyzer at index %d: %s", i, a.Name)
		}
		docType, err := document.ParseType(a.DocumentType)
		if err != nil {
			return fmt.Errorf("analyzer at index %d: %w", i, err)
		}
		if seenTypes[docType] {
			return fmt.Errorf("duplicate analyzer for document type %s", docType)
		}
		seenTypes[docType] = true
	}

	return nil
}

// IsSupportedLanguage reports whether lang is one of supported_languages
func (c *ServiceConfig) IsSupportedLanguage(lang string) bool {
	for _, l := range c.SupportedLanguages {
		if l == lang {
			return true
		}
	}
	return false
}

func (c *ServiceConfig) RetentionInterval() (time.Duration, error) {
	if c.Retention.Interval == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Retention.Interval)
	if err != nil {
		return 0, fmt.Errorf("invalid retention interval %q: %w", c.Retention.Interval, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("retention interval must not be negative")
	}
	return d, nil
}

func (c *ServiceConfig) APITimeout() time.Duration {
	return time.Duration(c.APITimeoutSeconds) * time.Second
}

// ScannerConfig returns the scanner driver settings
func (c *ServiceConfig) ScannerConfig() scanner.Config {
	return scanner.Config{
		Driver:     c.Scanner.Driver,
		Device:     c.ScannerDevice,
		Resolution: c.ScanResolution,
		ColorMode:  c.Scanner.ColorMode,
		MaxWidth:   c.MaxScanSize[0],
		MaxHeight:  c.MaxScanSize[1],
		InboxPath:  c.Scanner.InboxPath,
	}
}

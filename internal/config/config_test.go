package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/spf13/viper"
)

func TestSplitLines(t *testing.T) {
	t.Run("NewlineSeparated", func(t *testing.T) {
		got := SplitLines("ftp://[^\\s]+\nsftp://[^\\s]+\n\nssh://[^\\s]+\n")
		want := []string{`ftp://[^\s]+`, `sftp://[^\s]+`, `ssh://[^\s]+`}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Expected %v, got %v", want, got)
		}
	})

	t.Run("WindowsLineEndings", func(t *testing.T) {
		got := SplitLines("a\r\nb\r\n")
		want := []string{"a", "b"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Expected %v, got %v", want, got)
		}
	})

	t.Run("PatternsWithCommasSurvive", func(t *testing.T) {
		got := SplitLines(`\d{2,4}-\d{3,4}`)
		want := []string{`\d{2,4}-\d{3,4}`}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Comma inside a pattern must not split it: %v", got)
		}
	})
}

func TestSplitCommaList(t *testing.T) {
	got := SplitCommaList("tracker_id, status_id,,priority_id ")
	want := []string{"tracker_id", "status_id", "priority_id"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}

	if got := SplitCommaList(""); len(got) != 0 {
		t.Errorf("Empty input should yield empty list, got %v", got)
	}
}

func TestNormalizeLists(t *testing.T) {
	t.Run("DelimitedStrings", func(t *testing.T) {
		cfg := GetDefaults()
		cfg.Detection.SensitivePatterns = []string{"ftp://[^\\s]+\nsftp://[^\\s]+"}
		cfg.Detection.ExcludedFields = []string{"tracker_id, status_id"}

		normalizeLists(cfg)

		if want := []string{`ftp://[^\s]+`, `sftp://[^\s]+`}; !reflect.DeepEqual(cfg.Detection.SensitivePatterns, want) {
			t.Errorf("Expected %v, got %v", want, cfg.Detection.SensitivePatterns)
		}
		if want := []string{"tracker_id", "status_id"}; !reflect.DeepEqual(cfg.Detection.ExcludedFields, want) {
			t.Errorf("Expected %v, got %v", want, cfg.Detection.ExcludedFields)
		}
	})

	t.Run("NativeListsPassThrough", func(t *testing.T) {
		cfg := GetDefaults()
		cfg.Detection.PersonalPatterns = []string{`\d{2,4}-\d{3,4}`, `[A-Z]\d{8}`}

		normalizeLists(cfg)

		if want := []string{`\d{2,4}-\d{3,4}`, `[A-Z]\d{8}`}; !reflect.DeepEqual(cfg.Detection.PersonalPatterns, want) {
			t.Errorf("Comma inside a native-list pattern must survive: %v", cfg.Detection.PersonalPatterns)
		}
	})
}

func writeConfigFile(t *testing.T, path, patterns string) {
	t.Helper()
	content := "detection:\n  sensitive_patterns: \"" + patterns + "\"\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
}

func TestDelimitedListsFollowFileEdits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	writeConfigFile(t, path, `ftp://[^\\s]+\nsftp://[^\\s]+`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if want := []string{`ftp://[^\s]+`, `sftp://[^\s]+`}; !reflect.DeepEqual(cfg.Detection.SensitivePatterns, want) {
		t.Fatalf("Expected %v, got %v", want, cfg.Detection.SensitivePatterns)
	}

	// An operator edit re-read after the first load must win over whatever the
	// first load saw
	writeConfigFile(t, path, `ssh://[^\\s]+`)
	if err := viper.ReadInConfig(); err != nil {
		t.Fatalf("Failed to re-read config file: %v", err)
	}

	cfg, err = decodeConfig(GetDefaults())
	if err != nil {
		t.Fatalf("decodeConfig failed: %v", err)
	}
	if want := []string{`ssh://[^\s]+`}; !reflect.DeepEqual(cfg.Detection.SensitivePatterns, want) {
		t.Errorf("Edited patterns not picked up on reload: got %v, want %v", cfg.Detection.SensitivePatterns, want)
	}
}

func TestDetectionEnabled(t *testing.T) {
	cases := []struct {
		sensitive, personal, want bool
	}{
		{false, false, false},
		{true, false, true},
		{false, true, true},
		{true, true, true},
	}

	for _, c := range cases {
		cfg := DetectionConfig{
			EnableSensitiveDataDetection: c.sensitive,
			EnablePersonalDataDetection:  c.personal,
		}
		if cfg.Enabled() != c.want {
			t.Errorf("Enabled() with sensitive=%t personal=%t: expected %t", c.sensitive, c.personal, c.want)
		}
	}
}

func TestValidateConfig(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		if err := validateConfig(GetDefaults()); err != nil {
			t.Errorf("Default configuration should validate: %v", err)
		}
	})

	t.Run("BadPort", func(t *testing.T) {
		cfg := GetDefaults()
		cfg.Server.Port = 0
		if err := validateConfig(cfg); err == nil {
			t.Error("Expected error for invalid port")
		}
	})

	t.Run("BadMaxContentLength", func(t *testing.T) {
		cfg := GetDefaults()
		cfg.Detection.MaxContentLength = 0
		if err := validateConfig(cfg); err == nil {
			t.Error("Expected error for zero max content length")
		}
	})

	t.Run("BadLogLevel", func(t *testing.T) {
		cfg := GetDefaults()
		cfg.Logging.Level = "verbose"
		if err := validateConfig(cfg); err == nil {
			t.Error("Expected error for invalid log level")
		}
	})
}

func TestDefaultPatternsPresent(t *testing.T) {
	cfg := GetDefaults()

	if len(cfg.Detection.SensitivePatterns) == 0 {
		t.Error("Default sensitive patterns missing")
	}
	if len(cfg.Detection.PersonalPatterns) == 0 {
		t.Error("Default personal patterns missing")
	}
}

package telegram

import (
	"errors"
	"testing"

	"github.com/nilltadios/gemini-qa-webapp/internal/domain"
)

func TestParseSettingsArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    string
		want    SettingsChange
		wantErr error
	}{
		{"empty shows settings", "", SettingsChange{}, nil},
		{"whitespace", "   ", SettingsChange{}, nil},
		{"search on", "search on", SettingsChange{Key: "search", On: true}, nil},
		{"search off upper", "SEARCH OFF", SettingsChange{Key: "search"}, nil},
		{"code true", "code true", SettingsChange{Key: "code", On: true}, nil},
		{"agents russian", "agents выкл", SettingsChange{Key: "agents"}, nil},
		{"max", "max 4", SettingsChange{Key: "max", Value: 4}, nil},
		{"max too big", "max 6", SettingsChange{}, domain.ErrInvalidRefinements},
		{"max zero", "max 0", SettingsChange{}, domain.ErrInvalidRefinements},
		{"max not a number", "max many", SettingsChange{}, domain.ErrInvalidRefinements},
		{"bad toggle", "search sometimes", SettingsChange{}, ErrUsage},
		{"missing value", "search", SettingsChange{}, ErrUsage},
		{"too many args", "search on now", SettingsChange{}, ErrUsage},
		{"unknown key", "theme dark", SettingsChange{}, ErrUnknownToggle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSettingsArgs(tt.args)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ParseSettingsArgs(%q) error = %v, want %v", tt.args, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseSettingsArgs(%q) = %+v, want %+v", tt.args, got, tt.want)
			}
		})
	}
}

func TestSettingsChange_Apply(t *testing.T) {
	s := DefaultSettings(3)

	SettingsChange{Key: "search", On: false}.Apply(&s)
	SettingsChange{Key: "code", On: true}.Apply(&s)
	SettingsChange{Key: "agents", On: false}.Apply(&s)
	SettingsChange{Key: "max", Value: 5}.Apply(&s)
	SettingsChange{}.Apply(&s)

	want := Settings{Search: false, CodeExecution: true, UseQualityAgents: false, MaxRefinements: 5}
	if s != want {
		t.Errorf("settings = %+v, want %+v", s, want)
	}
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings(0)
	if !s.Search || !s.UseQualityAgents || s.CodeExecution {
		t.Errorf("DefaultSettings() = %+v", s)
	}
	if s.MaxRefinements != domain.DefaultMaxRefinements {
		t.Errorf("MaxRefinements = %d, want %d", s.MaxRefinements, domain.DefaultMaxRefinements)
	}
	if got := DefaultSettings(5).MaxRefinements; got != 5 {
		t.Errorf("DefaultSettings(5).MaxRefinements = %d", got)
	}
}

func TestParseEditArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     string
		wantN    int
		wantText string
		wantErr  bool
	}{
		{"simple", "2 new text", 2, "new text", false},
		{"extra spaces", "  1   trimmed  ", 1, "trimmed", false},
		{"cyrillic", "3 Напиши на 200 слов", 3, "Напиши на 200 слов", false},
		{"no text", "2", 0, "", true},
		{"blank text", "2    ", 0, "", true},
		{"not a number", "two text", 0, "", true},
		{"zero", "0 text", 0, "", true},
		{"empty", "", 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, text, err := ParseEditArgs(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseEditArgs(%q) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			}
			if n != tt.wantN || text != tt.wantText {
				t.Errorf("ParseEditArgs(%q) = %d, %q, want %d, %q", tt.args, n, text, tt.wantN, tt.wantText)
			}
		})
	}
}

func TestParseIndexArg(t *testing.T) {
	tests := []struct {
		args    string
		want    int
		wantErr bool
	}{
		{"1", 1, false},
		{" 12 ", 12, false},
		{"0", 0, true},
		{"-1", 0, true},
		{"x", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseIndexArg(tt.args)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseIndexArg(%q) = %d, %v", tt.args, got, err)
		}
	}
}

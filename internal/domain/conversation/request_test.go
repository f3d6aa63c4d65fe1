package conversation

import (
	"errors"
	"testing"

	"github.com/aislide/aislide-bot/internal/domain/pricing"
	"github.com/aislide/aislide-bot/internal/domain/task"
	"github.com/aislide/aislide-bot/internal/domain/theme"
)

var testLimits = pricing.Limits{
	DeckMinSlides:      4,
	DeckMaxSlides:      30,
	CourseWorkMinPages: 5,
	CourseWorkMaxPages: 40,
	Languages:          []string{"uz", "ru", "en"},
}

func TestParseWebFormDeck(t *testing.T) {
	req, err := ParseWebForm(`{"topic":" Quyosh tizimi ","details":"maktab uchun","unit_count":10,"theme_key":"Ocean","language":"ru","kind":"basic_deck"}`,
		theme.NewRegistry(), testLimits)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.Kind != task.KindBasicDeck || req.Topic != "Quyosh tizimi" || req.UnitCount != 10 ||
		req.ThemeKey != "ocean" || req.Language != "ru" {
		t.Fatalf("unexpected request %+v", req)
	}

	key, units := req.PriceKey()
	if key != pricing.KeySlideBasic || units != 10 {
		t.Fatalf("expected slide_basic x10, got %s x%d", key, units)
	}
	if p := req.Payload(); p.Size != 10 || p.Details != "maktab uchun" {
		t.Fatalf("unexpected payload %+v", p)
	}
}

func TestParseWebFormDefaultsAndAliases(t *testing.T) {
	themes := theme.NewRegistry()

	tests := []struct {
		name      string
		data      string
		wantKind  task.Kind
		wantUnits int
		wantTheme string
		wantSubj  string
	}{
		{
			name:      "legacy deck fields",
			data:      `{"topic":"Iqtisodiyot","slide_count":"8","theme_id":"minimal"}`,
			wantKind:  task.KindBasicDeck,
			wantUnits: 8,
			wantTheme: "minimal",
		},
		{
			name:      "deck defaults",
			data:      `{"topic":"Iqtisodiyot"}`,
			wantKind:  task.KindBasicDeck,
			wantUnits: 10,
			wantTheme: theme.DefaultKey,
		},
		{
			name:      "course work inferred from work_type",
			data:      `{"work_type":"referat","topic":"Amir Temur","subject_name":"Tarix","page_count":15}`,
			wantKind:  task.KindCourseWork,
			wantUnits: 15,
			wantSubj:  "Tarix",
		},
		{
			name:      "course work default pages",
			data:      `{"kind":"course_work","topic":"Amir Temur","theme_key":"ocean"}`,
			wantKind:  task.KindCourseWork,
			wantUnits: 12,
		},
		{
			name:      "pitch deck default size",
			data:      `{"kind":"pitch_deck","topic":"AISlide"}`,
			wantKind:  task.KindPitchDeck,
			wantUnits: PitchDeckSlides,
			wantTheme: theme.DefaultKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseWebForm(tt.data, themes, testLimits)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if req.Kind != tt.wantKind || req.UnitCount != tt.wantUnits || req.ThemeKey != tt.wantTheme || req.Subject != tt.wantSubj {
				t.Fatalf("unexpected request %+v", req)
			}
			if req.Language != "uz" {
				t.Fatalf("expected default language uz, got %q", req.Language)
			}
		})
	}
}

func TestParseWebFormRejects(t *testing.T) {
	themes := theme.NewRegistry()

	tests := []struct {
		name  string
		data  string
		field string
	}{
		{"malformed json", `{"topic":`, "_"},
		{"missing topic", `{"unit_count":10}`, "topic"},
		{"unknown kind", `{"kind":"poem","topic":"Bahor"}`, "kind"},
		{"unknown language", `{"topic":"Bahor","language":"de"}`, "language"},
		{"unknown theme", `{"topic":"Bahor","theme_key":"neon"}`, "theme_key"},
		{"too few slides", `{"topic":"Bahor","unit_count":2}`, "unit_count"},
		{"too many slides", `{"topic":"Bahor","unit_count":31}`, "unit_count"},
		{"too many pages", `{"kind":"course_work","topic":"Bahor","unit_count":41}`, "unit_count"},
		{"zero units", `{"topic":"Bahor","unit_count":0}`, "unit_count"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseWebForm(tt.data, themes, testLimits)
			if !errors.Is(err, ErrInvalidPayload) {
				t.Fatalf("expected ErrInvalidPayload, got %v", err)
			}
			var perr *PayloadError
			if !errors.As(err, &perr) {
				t.Fatalf("expected *PayloadError, got %T", err)
			}
			if _, ok := perr.Fields[tt.field]; !ok {
				t.Fatalf("expected error on %q, got %v", tt.field, perr.Fields)
			}
		})
	}
}

func TestPriceKeyPerKind(t *testing.T) {
	tests := []struct {
		kind      task.Kind
		units     int
		wantKey   string
		wantUnits int
	}{
		{task.KindBasicDeck, 10, pricing.KeySlideBasic, 10},
		{task.KindCourseWork, 15, pricing.KeyCourseWorkPage, 15},
		{task.KindPitchDeck, 12, pricing.KeyPitchDeck, 1},
	}
	for _, tt := range tests {
		req := &WebFormRequest{Kind: tt.kind, UnitCount: tt.units}
		if key, units := req.PriceKey(); key != tt.wantKey || units != tt.wantUnits {
			t.Errorf("%s: expected %s x%d, got %s x%d", tt.kind, tt.wantKey, tt.wantUnits, key, units)
		}
	}
}

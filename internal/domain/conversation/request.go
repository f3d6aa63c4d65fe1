package conversation

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/aislide/aislide-bot/internal/domain/pricing"
	"github.com/aislide/aislide-bot/internal/domain/task"
	"github.com/aislide/aislide-bot/internal/domain/theme"
	"github.com/aislide/aislide-bot/internal/pkg/validator"
)

const (
	defaultSlideCount = 10
	defaultPageCount  = 12
	defaultLanguage   = "uz"

	// PitchDeckSlides is the fixed size of a questionnaire pitch deck.
	PitchDeckSlides = 12
)

// WebFormRequest is a validated submission from the web form.
type WebFormRequest struct {
	Kind      task.Kind `json:"kind" validate:"required,task_kind"`
	Topic     string    `json:"topic" validate:"required,min=2,max=300"`
	Subject   string    `json:"subject" validate:"max=200"`
	WorkType  string    `json:"work_type" validate:"max=50"`
	Details   string    `json:"details" validate:"max=3000"`
	UnitCount int       `json:"unit_count" validate:"gt=0"`
	ThemeKey  string    `json:"theme_key"`
	Language  string    `json:"language" validate:"required,language"`
}

// TaskPayload is the JSON stored with a generation task for the worker.
type TaskPayload struct {
	Kind      task.Kind `json:"kind"`
	Topic     string    `json:"topic,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	WorkType  string    `json:"work_type,omitempty"`
	Details   string    `json:"details,omitempty"`
	Size      int       `json:"size"`
	ThemeKey  string    `json:"theme_key,omitempty"`
	Language  string    `json:"language"`
	Questions []string  `json:"questions,omitempty"`
	Answers   []string  `json:"answers,omitempty"`
}

// rawWebForm accepts the field names of every form version.
type rawWebForm struct {
	Kind        string   `json:"kind"`
	WorkType    string   `json:"work_type"`
	Topic       string   `json:"topic"`
	Subject     string   `json:"subject"`
	SubjectName string   `json:"subject_name"`
	Details     string   `json:"details"`
	UnitCount   *flexInt `json:"unit_count"`
	SlideCount  *flexInt `json:"slide_count"`
	PageCount   *flexInt `json:"page_count"`
	ThemeKey    string   `json:"theme_key"`
	ThemeID     string   `json:"theme_id"`
	Language    string   `json:"language"`
}

// flexInt decodes 12 and "12" alike.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

// ParseWebForm decodes and validates raw web_app_data. Nothing is charged
// before this succeeds.
func ParseWebForm(data string, themes *theme.Registry, limits pricing.Limits) (*WebFormRequest, error) {
	var raw rawWebForm
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, &PayloadError{Fields: map[string]string{"_": "Malformed JSON"}}
	}

	req := &WebFormRequest{
		Kind:     task.Kind(strings.TrimSpace(raw.Kind)),
		Topic:    strings.TrimSpace(raw.Topic),
		Subject:  strings.TrimSpace(firstNonEmpty(raw.Subject, raw.SubjectName)),
		WorkType: strings.TrimSpace(raw.WorkType),
		Details:  strings.TrimSpace(raw.Details),
		ThemeKey: strings.ToLower(strings.TrimSpace(firstNonEmpty(raw.ThemeKey, raw.ThemeID))),
		Language: strings.ToLower(strings.TrimSpace(raw.Language)),
	}

	if req.Kind == "" {
		req.Kind = task.KindBasicDeck
		if raw.WorkType != "" || raw.PageCount != nil {
			req.Kind = task.KindCourseWork
		}
	}
	if req.Language == "" {
		req.Language = defaultLanguage
	}

	switch {
	case raw.UnitCount != nil:
		req.UnitCount = int(*raw.UnitCount)
	case req.Kind == task.KindCourseWork && raw.PageCount != nil:
		req.UnitCount = int(*raw.PageCount)
	case raw.SlideCount != nil:
		req.UnitCount = int(*raw.SlideCount)
	case req.Kind == task.KindCourseWork:
		req.UnitCount = defaultPageCount
	case req.Kind == task.KindPitchDeck:
		req.UnitCount = PitchDeckSlides
	default:
		req.UnitCount = defaultSlideCount
	}

	fields := validator.Validate(req)
	if fields == nil {
		fields = map[string]string{}
	}

	if req.Kind == task.KindCourseWork {
		req.ThemeKey = ""
		if req.UnitCount < limits.CourseWorkMinPages || req.UnitCount > limits.CourseWorkMaxPages {
			fields["unit_count"] = "Page count must be between " +
				strconv.Itoa(limits.CourseWorkMinPages) + " and " + strconv.Itoa(limits.CourseWorkMaxPages)
		}
	} else {
		if req.ThemeKey == "" {
			req.ThemeKey = theme.DefaultKey
		}
		if _, ok := themes.Get(req.ThemeKey); !ok {
			fields["theme_key"] = "Unknown theme"
		}
		if req.UnitCount < limits.DeckMinSlides || req.UnitCount > limits.DeckMaxSlides {
			fields["unit_count"] = "Slide count must be between " +
				strconv.Itoa(limits.DeckMinSlides) + " and " + strconv.Itoa(limits.DeckMaxSlides)
		}
	}

	if len(fields) > 0 {
		return nil, &PayloadError{Fields: fields}
	}
	return req, nil
}

// PriceKey returns the catalog key and the number of units to charge.
// Pitch decks are priced flat.
func (r *WebFormRequest) PriceKey() (string, int) {
	switch r.Kind {
	case task.KindCourseWork:
		return pricing.KeyCourseWorkPage, r.UnitCount
	case task.KindPitchDeck:
		return pricing.KeyPitchDeck, 1
	default:
		return pricing.KeySlideBasic, r.UnitCount
	}
}

// Payload builds the stored task payload.
func (r *WebFormRequest) Payload() TaskPayload {
	return TaskPayload{
		Kind:     r.Kind,
		Topic:    r.Topic,
		Subject:  r.Subject,
		WorkType: r.WorkType,
		Details:  r.Details,
		Size:     r.UnitCount,
		ThemeKey: r.ThemeKey,
		Language: r.Language,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

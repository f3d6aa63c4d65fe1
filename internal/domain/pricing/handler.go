package pricing

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aislide/aislide-bot/internal/domain/theme"
	"github.com/aislide/aislide-bot/internal/pkg/response"
)

// Limits are the unit ranges the web form has to respect.
type Limits struct {
	DeckMinSlides      int      `json:"deck_min_slides"`
	DeckMaxSlides      int      `json:"deck_max_slides"`
	CourseWorkMinPages int      `json:"course_work_min_pages"`
	CourseWorkMaxPages int      `json:"course_work_max_pages"`
	Languages          []string `json:"languages"`
}

type catalogResponse struct {
	Prices   []PriceEntry    `json:"prices"`
	Themes   []theme.Theme   `json:"themes"`
	Limits   Limits          `json:"limits"`
	Defaults catalogDefaults `json:"defaults"`
}

type catalogDefaults struct {
	Theme    string `json:"theme"`
	Language string `json:"language"`
}

// Handler serves the public catalog consumed by the web form.
type Handler struct {
	catalog *Catalog
	themes  *theme.Registry
	limits  Limits
}

func NewHandler(catalog *Catalog, themes *theme.Registry, limits Limits) *Handler {
	return &Handler{catalog: catalog, themes: themes, limits: limits}
}

// Routes mounts GET / under the caller's prefix.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Get)
	return r
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	prices, err := h.catalog.ListActive(r.Context())
	if err != nil {
		response.InternalError(w)
		return
	}

	language := "uz"
	if len(h.limits.Languages) > 0 {
		language = h.limits.Languages[0]
	}
	response.OK(w, catalogResponse{
		Prices:   prices,
		Themes:   h.themes.All(),
		Limits:   h.limits,
		Defaults: catalogDefaults{Theme: theme.DefaultKey, Language: language},
	})
}

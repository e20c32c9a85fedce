package handler

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/sakif/people-match/internal/apperror"
	"github.com/sakif/people-match/internal/model"
	"github.com/sakif/people-match/internal/service"
)

//go:embed templates/*.html
var templateFS embed.FS

// DemoQuestion is the question the home page lists matches for.
const DemoQuestion = "Do you like pets?"

// HomeHandler serves the HTML page and its form posts.
//
//	GET  /         → page; query: focus_user, search_question, search_answer, match_for
//	POST /register → register a name, back to / focused on it
//	POST /answer   → answer a question
//	POST /skip     → skip a question
//	POST /ask      → custom question with a desired answer
//
// Every POST redirects (303) so a browser refresh never resubmits the form.
type HomeHandler struct {
	templates   *template.Template
	engine      *service.Engine
	requireAuth bool
	logger      *slog.Logger
}

// NewHomeHandler parses the embedded templates once.
func NewHomeHandler(engine *service.Engine, requireAuth bool, logger *slog.Logger) (*HomeHandler, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/home.html")
	if err != nil {
		return nil, err
	}
	return &HomeHandler{templates: tmpl, engine: engine, requireAuth: requireAuth, logger: logger}, nil
}

type homePage struct {
	Title        string
	Flash        string
	Questions    []model.Question
	DemoQuestion string
	DemoMatches  []string
	Users        []string

	FocusUser string
	Next      *model.Question
	Statuses  []model.QuestionStatus

	SearchQuestion string
	SearchAnswer   bool
	SearchResults  []string
	Searched       bool

	MatchFor    string
	Match       *model.Match
	MatchPolicy string
	MatchError  string
}

// HandleHome renders the page.
func (h *HomeHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page := homePage{
		Title:        "People Match",
		Flash:        q.Get("flash"),
		Questions:    h.engine.Pool.All(),
		DemoQuestion: DemoQuestion,
		DemoMatches:  h.engine.Matches.Search(map[string]bool{DemoQuestion: true}),
		MatchPolicy:  string(h.engine.Matches.Policy()),
	}
	for _, u := range h.engine.Registry.All() {
		page.Users = append(page.Users, u.Name)
	}

	if name := strings.TrimSpace(q.Get("focus_user")); name != "" {
		if u, err := h.engine.Registry.Get(name); err == nil {
			page.FocusUser = u.Name
			page.Statuses = h.engine.Questions.Statuses(u)
			if next, ok := h.engine.Questions.NextQuestionFor(u); ok {
				page.Next = &next
			}
		} else {
			page.Flash = err.Error()
		}
	}

	if text := strings.TrimSpace(q.Get("search_question")); text != "" {
		page.Searched = true
		page.SearchQuestion = text
		page.SearchAnswer = q.Get("search_answer") == "yes"
		page.SearchResults = h.engine.Matches.Search(map[string]bool{text: page.SearchAnswer})
	}

	if name := strings.TrimSpace(q.Get("match_for")); name != "" {
		page.MatchFor = name
		m, ok, err := h.engine.Matches.BestMatch(name)
		switch {
		case err != nil:
			page.MatchError = err.Error()
		case ok:
			page.Match = &m
		}
	}

	// Render into a buffer first so a template error can still become a 500.
	var buf bytes.Buffer
	if err := h.templates.ExecuteTemplate(&buf, "home", page); err != nil {
		h.logger.Error("failed to render home page", slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// HandleRegister handles the registration form.
func (h *HomeHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.FormValue("username"))
	if err := authorize(r, h.requireAuth, name); err != nil {
		h.back(w, r, "", err)
		return
	}
	u, err := h.engine.Registry.Register(r.Context(), name, r.FormValue("profile_image_url"), nil)
	if err != nil {
		h.back(w, r, "", err)
		return
	}
	h.back(w, r, u.Name, nil)
}

// HandleAnswer handles the yes/no answer form.
func (h *HomeHandler) HandleAnswer(w http.ResponseWriter, r *http.Request) {
	u, err := h.formUser(r)
	if err != nil {
		h.back(w, r, "", err)
		return
	}
	answer, err := yesNo(r.FormValue("answer"))
	if err != nil {
		h.back(w, r, u.Name, err)
		return
	}
	err = h.engine.Questions.RecordAnswer(r.Context(), u, r.FormValue("question"), answer)
	h.back(w, r, u.Name, err)
}

// HandleSkip handles the skip button.
func (h *HomeHandler) HandleSkip(w http.ResponseWriter, r *http.Request) {
	u, err := h.formUser(r)
	if err != nil {
		h.back(w, r, "", err)
		return
	}
	err = h.engine.Questions.Skip(r.Context(), u, r.FormValue("question"))
	h.back(w, r, u.Name, err)
}

// HandleAsk handles the custom question form.
func (h *HomeHandler) HandleAsk(w http.ResponseWriter, r *http.Request) {
	u, err := h.formUser(r)
	if err != nil {
		h.back(w, r, "", err)
		return
	}
	desired, err := yesNo(r.FormValue("desired_answer"))
	if err != nil {
		h.back(w, r, u.Name, err)
		return
	}
	err = h.engine.Questions.DeclarePreference(r.Context(), u, r.FormValue("question_text"), desired)
	h.back(w, r, u.Name, err)
}

func (h *HomeHandler) formUser(r *http.Request) (*model.User, error) {
	name := strings.TrimSpace(r.FormValue("username"))
	if name == "" {
		return nil, apperror.ValidationFailed("username", "username is required")
	}
	if err := authorize(r, h.requireAuth, name); err != nil {
		return nil, err
	}
	return h.engine.Registry.Get(name)
}

// back redirects to the page, carrying the focused user and any error text.
func (h *HomeHandler) back(w http.ResponseWriter, r *http.Request, focus string, err error) {
	v := url.Values{}
	if focus != "" {
		v.Set("focus_user", focus)
	}
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			v.Set("flash", appErr.Message)
		} else {
			h.logger.Error("form post failed",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
			v.Set("flash", "something went wrong")
		}
	}
	target := "/"
	if len(v) > 0 {
		target += "?" + v.Encode()
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func yesNo(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true":
		return true, nil
	case "no", "false":
		return false, nil
	}
	return false, apperror.ValidationFailed("answer", "answer must be yes or no")
}

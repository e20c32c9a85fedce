package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/people-match/internal/auth"
	"github.com/sakif/people-match/internal/handler"
	"github.com/sakif/people-match/internal/service"
)

func homeRouter(t *testing.T, e *service.Engine, requireAuth bool) http.Handler {
	t.Helper()
	h, err := handler.NewHomeHandler(e, requireAuth, discardLogger())
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Get("/", h.HandleHome)
	r.Post("/register", h.HandleRegister)
	r.Post("/answer", h.HandleAnswer)
	r.Post("/skip", h.HandleSkip)
	r.Post("/ask", h.HandleAsk)
	return r
}

func postForm(t *testing.T, h http.Handler, caller, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if caller != "" {
		req = req.WithContext(auth.WithUserName(req.Context(), caller))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHomePage(t *testing.T) {
	e := newEngine(t, handler.DemoQuestion, "Do you enjoy hiking?")
	ctx := context.Background()
	alex, err := e.Registry.Register(ctx, "Alex", "", nil)
	require.NoError(t, err)
	require.NoError(t, e.Questions.RecordAnswer(ctx, alex, handler.DemoQuestion, true))
	jordan, err := e.Registry.Register(ctx, "Jordan", "", nil)
	require.NoError(t, err)
	require.NoError(t, e.Questions.DeclarePreference(ctx, jordan, handler.DemoQuestion, true))

	router := homeRouter(t, e, false)

	t.Run("lists questions and pet lovers", func(t *testing.T) {
		rr := do(t, router, http.MethodGet, "/", "")

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")
		body := rr.Body.String()
		assert.Contains(t, body, "Do you enjoy hiking?")
		assert.Contains(t, body, "People who like pets: Alex")
	})

	t.Run("focus user sees the next question", func(t *testing.T) {
		rr := do(t, router, http.MethodGet, "/?focus_user=Alex", "")

		require.Equal(t, http.StatusOK, rr.Code)
		body := rr.Body.String()
		assert.Contains(t, body, "Questions for Alex")
		assert.Contains(t, body, "<strong>Do you enjoy hiking?</strong>")
	})

	t.Run("best match", func(t *testing.T) {
		rr := do(t, router, http.MethodGet, "/?match_for=Jordan", "")

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "<strong>Alex</strong>")
	})

	t.Run("search", func(t *testing.T) {
		rr := do(t, router, http.MethodGet, "/?search_question="+url.QueryEscape(handler.DemoQuestion)+"&search_answer=no", "")

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "Nobody answered that way.")
	})

	t.Run("unknown focus user shows a message", func(t *testing.T) {
		rr := do(t, router, http.MethodGet, "/?focus_user=ghost", "")

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "was not found")
	})
}

func TestHomeForms(t *testing.T) {
	e := newEngine(t, handler.DemoQuestion, "Do you enjoy hiking?")
	router := homeRouter(t, e, false)

	rr := postForm(t, router, "", "/register", url.Values{"username": {"Sam"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/?focus_user=Sam", rr.Header().Get("Location"))

	rr = postForm(t, router, "", "/answer", url.Values{"username": {"Sam"}, "question": {handler.DemoQuestion}, "answer": {"yes"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)

	rr = postForm(t, router, "", "/skip", url.Values{"username": {"Sam"}, "question": {"Do you enjoy hiking?"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)

	rr = postForm(t, router, "", "/ask", url.Values{"username": {"Sam"}, "question_text": {"Do you like jazz?"}, "desired_answer": {"no"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)

	sam, err := e.Registry.Get("Sam")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{handler.DemoQuestion: true}, sam.Answers())
	assert.Equal(t, []string{"Do you enjoy hiking?"}, sam.Skipped())
	assert.Equal(t, map[string]bool{"Do you like jazz?": false}, sam.Preferences())

	t.Run("bad answer flashes an error", func(t *testing.T) {
		rr := postForm(t, router, "", "/answer", url.Values{"username": {"Sam"}, "question": {handler.DemoQuestion}, "answer": {"maybe"}})

		require.Equal(t, http.StatusSeeOther, rr.Code)
		loc, err := url.Parse(rr.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "Sam", loc.Query().Get("focus_user"))
		assert.NotEmpty(t, loc.Query().Get("flash"))
	})

	t.Run("unknown user flashes an error", func(t *testing.T) {
		rr := postForm(t, router, "", "/skip", url.Values{"username": {"ghost"}, "question": {handler.DemoQuestion}})

		require.Equal(t, http.StatusSeeOther, rr.Code)
		assert.Contains(t, rr.Header().Get("Location"), "flash=")
	})
}

func TestHomeFormsRequireOwnSession(t *testing.T) {
	e := newEngine(t, handler.DemoQuestion)
	router := homeRouter(t, e, true)

	rr := postForm(t, router, "Milo", "/register", url.Values{"username": {"Sam"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Contains(t, rr.Header().Get("Location"), "flash=")
	assert.False(t, e.Registry.Exists("Sam"))

	rr = postForm(t, router, "Sam", "/register", url.Values{"username": {"Sam"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.True(t, e.Registry.Exists("Sam"))
}

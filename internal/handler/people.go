// Package handler contains the HTTP handlers of people-match.
//
// Handlers only translate: they decode the request, call the engine or a
// service, and encode the result. Every rule about users, questions and
// matching lives in internal/service.
package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/people-match/internal/apperror"
	"github.com/sakif/people-match/internal/auth"
	"github.com/sakif/people-match/internal/model"
	"github.com/sakif/people-match/internal/service"
)

// PeopleHandler serves the matching API under /api.
type PeopleHandler struct {
	engine *service.Engine
	logger *slog.Logger

	// requireAuth makes mutations check that the token subject is the
	// user being changed.
	requireAuth bool
}

// NewPeopleHandler creates a PeopleHandler. With requireAuth set, the routes
// that change a user must run behind auth.RequireAuth.
func NewPeopleHandler(engine *service.Engine, requireAuth bool, logger *slog.Logger) *PeopleHandler {
	return &PeopleHandler{engine: engine, requireAuth: requireAuth, logger: logger}
}

// =========================================================================
// REQUEST / RESPONSE TYPES
// =========================================================================

type registerProfileRequest struct {
	Username        string            `json:"username" validate:"required,max=64"`
	ProfileImageURL string            `json:"profile_image_url" validate:"omitempty,url"`
	Details         map[string]string `json:"details"`
}

// answerRequest addresses the question by id (API clients) or by text
// (custom questions). Exactly one must be given.
type answerRequest struct {
	Username   string `json:"username" validate:"required,max=64"`
	QuestionID int64  `json:"question_id" validate:"omitempty,min=1"`
	Question   string `json:"question" validate:"max=200"`
	Answer     *bool  `json:"answer" validate:"required"`
}

type skipRequest struct {
	Username   string `json:"username" validate:"required,max=64"`
	QuestionID int64  `json:"question_id" validate:"omitempty,min=1"`
	Question   string `json:"question" validate:"max=200"`
}

type askRequest struct {
	Username      string `json:"username" validate:"required,max=64"`
	QuestionText  string `json:"question_text" validate:"required,max=200"`
	DesiredAnswer *bool  `json:"desired_answer" validate:"required"`
}

type askExistingRequest struct {
	Username      string `json:"username" validate:"required,max=64"`
	QuestionID    int64  `json:"question_id" validate:"required,min=1"`
	DesiredAnswer *bool  `json:"desired_answer" validate:"required"`
}

type searchRequest struct {
	Filters map[string]bool `json:"filters"`
}

type nextQuestionResponse struct {
	Question *model.Question `json:"question"`
}

type askResponse struct {
	QuestionID int64 `json:"question_id"`
}

type searchResponse struct {
	Users []string `json:"users"`
}

// matchResponse uses pointers so "no match" encodes as nulls.
type matchResponse struct {
	Match *string  `json:"match"`
	Score *float64 `json:"score"`
	Policy string  `json:"policy"`
}

type statusResponse struct {
	Username  string                 `json:"username"`
	Questions []model.QuestionStatus `json:"questions"`
}

// =========================================================================
// USERS
// =========================================================================

// HandleRegisterProfile handles POST /api/users: register or merge a profile.
func (h *PeopleHandler) HandleRegisterProfile(w http.ResponseWriter, r *http.Request) {
	var req registerProfileRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	name := strings.TrimSpace(req.Username)
	if err := h.authorize(r, name); err != nil {
		writeError(w, err)
		return
	}

	existed := h.engine.Registry.Exists(name)
	u, err := h.engine.Registry.Register(r.Context(), name, req.ProfileImageURL, req.Details)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	status := http.StatusCreated
	if existed {
		status = http.StatusOK
	}
	writeJSON(w, status, u.Snapshot())
}

// HandleGetUser handles GET /api/users/{name}.
func (h *PeopleHandler) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.engine.Registry.Get(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u.Snapshot())
}

// =========================================================================
// QUESTIONS
// =========================================================================

// HandleListQuestions handles GET /api/questions.
func (h *PeopleHandler) HandleListQuestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"questions": h.engine.Pool.All()})
}

// HandleNextQuestion handles GET /api/questions/next?username=.
func (h *PeopleHandler) HandleNextQuestion(w http.ResponseWriter, r *http.Request) {
	u, err := h.userFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.next(u))
}

// HandleQuestionStatus handles GET /api/questions/status?username=.
func (h *PeopleHandler) HandleQuestionStatus(w http.ResponseWriter, r *http.Request) {
	u, err := h.userFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Username:  u.Name,
		Questions: h.engine.Questions.Statuses(u),
	})
}

// HandleAnswer handles POST /api/questions/answer and replies with the next
// question for the same user.
func (h *PeopleHandler) HandleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	u, err := h.mutableUser(r, req.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := questionRef(req.QuestionID, req.Question); err != nil {
		writeError(w, err)
		return
	}

	if req.QuestionID != 0 {
		err = h.engine.Questions.RecordAnswerByID(r.Context(), u, req.QuestionID, *req.Answer)
	} else {
		err = h.engine.Questions.RecordAnswer(r.Context(), u, req.Question, *req.Answer)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.next(u))
}

// HandleSkip handles POST /api/questions/skip and replies with the next
// question, which may be the one just skipped when nothing else is left.
func (h *PeopleHandler) HandleSkip(w http.ResponseWriter, r *http.Request) {
	var req skipRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	u, err := h.mutableUser(r, req.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := questionRef(req.QuestionID, req.Question); err != nil {
		writeError(w, err)
		return
	}

	if req.QuestionID != 0 {
		err = h.engine.Questions.SkipByID(r.Context(), u, req.QuestionID)
	} else {
		err = h.engine.Questions.Skip(r.Context(), u, req.Question)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.next(u))
}

// HandleAsk handles POST /api/questions/ask: a custom question with the
// answer the user wants from a match. The question joins the pool.
func (h *PeopleHandler) HandleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	u, err := h.mutableUser(r, req.Username)
	if err != nil {
		writeError(w, err)
		return
	}

	text := strings.TrimSpace(req.QuestionText)
	if err := h.engine.Questions.DeclarePreference(r.Context(), u, text, *req.DesiredAnswer); err != nil {
		h.fail(w, r, err)
		return
	}
	q, _ := h.engine.Pool.Get(text)
	writeJSON(w, http.StatusOK, askResponse{QuestionID: q.ID})
}

// HandleAskExisting handles POST /api/questions/ask-existing.
func (h *PeopleHandler) HandleAskExisting(w http.ResponseWriter, r *http.Request) {
	var req askExistingRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	u, err := h.mutableUser(r, req.Username)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.engine.Questions.DeclarePreferenceByID(r.Context(), u, req.QuestionID, *req.DesiredAnswer); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, askResponse{QuestionID: req.QuestionID})
}

// =========================================================================
// MATCHING
// =========================================================================

// HandleSearch handles POST /api/search.
func (h *PeopleHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Users: h.engine.Matches.Search(req.Filters)})
}

// HandleMatchCheck handles GET /api/match/check?username=.
func (h *PeopleHandler) HandleMatchCheck(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("username"))
	if name == "" {
		writeError(w, apperror.ValidationFailed("username", "username is required"))
		return
	}

	m, ok, err := h.engine.Matches.BestMatch(name)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := matchResponse{Policy: string(h.engine.Matches.Policy())}
	if ok {
		resp.Match = &m.Name
		resp.Score = &m.Score
	}
	writeJSON(w, http.StatusOK, resp)
}

// =========================================================================
// HELPERS
// =========================================================================

func (h *PeopleHandler) next(u *model.User) nextQuestionResponse {
	q, ok := h.engine.Questions.NextQuestionFor(u)
	if !ok {
		return nextQuestionResponse{}
	}
	return nextQuestionResponse{Question: &q}
}

func (h *PeopleHandler) userFromQuery(r *http.Request) (*model.User, error) {
	name := strings.TrimSpace(r.URL.Query().Get("username"))
	if name == "" {
		return nil, apperror.ValidationFailed("username", "username is required")
	}
	return h.engine.Registry.Get(name)
}

// mutableUser resolves the user a mutation targets and checks the caller
// may change it.
func (h *PeopleHandler) mutableUser(r *http.Request, username string) (*model.User, error) {
	name := strings.TrimSpace(username)
	if err := h.authorize(r, name); err != nil {
		return nil, err
	}
	return h.engine.Registry.Get(name)
}

func (h *PeopleHandler) authorize(r *http.Request, username string) error {
	return authorize(r, h.requireAuth, username)
}

// authorize checks that the token subject is username when auth is on.
func authorize(r *http.Request, requireAuth bool, username string) error {
	if !requireAuth {
		return nil
	}
	caller, ok := auth.UserNameFromContext(r.Context())
	if !ok {
		return apperror.Unauthorized("valid authentication required")
	}
	if caller != username {
		return apperror.Forbidden("you can only change your own answers and preferences")
	}
	return nil
}

// fail writes err and logs it when it is not a domain error.
func (h *PeopleHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		h.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	writeError(w, err)
}

func questionRef(id int64, text string) error {
	hasText := strings.TrimSpace(text) != ""
	switch {
	case id == 0 && !hasText:
		return apperror.ValidationFailed("question_id", "question_id or question is required")
	case id != 0 && hasText:
		return apperror.ValidationFailed("question", "give question_id or question, not both")
	}
	return nil
}

package api

import (
	"net/http"
	"strings"

	"github.com/okian/courtside/internal/domain/roster"
)

type chatRequest struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

// handleMatch serves GET /api/match, the full match screen snapshot.
func (s *Server) handleMatch(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.session.MatchView())
}

// handleMatchStart serves POST /api/match/start.
func (s *Server) handleMatchStart(w http.ResponseWriter, r *http.Request) {
	const op = "api.match_start"
	if err := s.session.StartMatch(r.Context()); err != nil {
		s.fail(w, r, "", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusAccepted, s.session.MatchView())
}

// handleMatchStop serves POST /api/match/stop.
func (s *Server) handleMatchStop(w http.ResponseWriter, _ *http.Request) {
	s.session.EndMatch()
	writeJSON(w, http.StatusOK, s.session.MatchView())
}

// handleChatList serves GET /api/chat.
func (s *Server) handleChatList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Chat().Messages())
}

// handleChatPost serves POST /api/chat. A blank username posts as the
// session user.
func (s *Server) handleChatPost(w http.ResponseWriter, r *http.Request) {
	const op = "api.chat_post"
	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, "Invalid body", WrapKind(op, ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.Username) == "" {
		req.Username = s.session.User().Username
	}
	m, err := s.session.Chat().Post(req.Username, req.Message)
	if err != nil {
		s.fail(w, r, "Empty message", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// handleFixtures serves GET /api/fixtures, this month's calendar.
func (s *Server) handleFixtures(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Fixtures())
}

// handleSalary serves GET /api/salary.
func (s *Server) handleSalary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Salary())
}

type opponentResponse struct {
	Name     string           `json:"name"`
	Starters []roster.Slot    `json:"starters"`
	Stats    roster.TeamStats `json:"stats"`
}

// handleOpponent serves GET /api/opponent, the dummy opponent's starters.
func (s *Server) handleOpponent(w http.ResponseWriter, _ *http.Request) {
	starters := s.session.Opponent()
	writeJSON(w, http.StatusOK, opponentResponse{
		Name:     s.session.MatchView().Scoreboard.AwayTeam,
		Starters: starters,
		Stats:    roster.Stats(starters),
	})
}

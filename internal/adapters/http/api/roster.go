package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/okian/courtside/internal/adapters/repository"
	"github.com/okian/courtside/internal/domain/roster"
	"github.com/okian/courtside/pkg/logger"
)

type meResponse struct {
	Username string `json:"username"`
	Level    int    `json:"level"`
	XP       int    `json:"xp"`
	XPToNext int    `json:"xpToNext"`
	Money    string `json:"money"`
}

type swapRequest struct {
	From *roster.SlotRef `json:"from"`
	To   *roster.SlotRef `json:"to"`
}

// validate normalizes both locations.
func (req swapRequest) validate() error {
	if req.From == nil || req.To == nil {
		return errors.New("from and to are required")
	}
	for _, ref := range []*roster.SlotRef{req.From, req.To} {
		loc, err := roster.ParseLocation(string(ref.Location))
		if err != nil {
			return err
		}
		ref.Location = loc
	}
	return nil
}

type okResponse struct {
	OK bool `json:"ok"`
}

type lineupResponse struct {
	Starters []roster.Slot    `json:"starters"`
	Bench    []roster.Slot    `json:"bench"`
	Selected *roster.SlotRef  `json:"selected,omitempty"`
	Stats    roster.TeamStats `json:"stats"`
}

type clickResponse struct {
	Swapped  bool            `json:"swapped"`
	Selected *roster.SlotRef `json:"selected,omitempty"`
}

// handleMe serves GET /api/me.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	const op = "api.me"
	u, err := s.store.FetchMe(r.Context())
	if err != nil {
		s.fail(w, r, "No user", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		Username: u.Username,
		Level:    u.Level,
		XP:       u.XP,
		XPToNext: repository.XPToNext,
		Money:    strconv.FormatInt(u.Money, 10),
	})
}

// handleRoster serves GET /api/roster from the store.
func (s *Server) handleRoster(w http.ResponseWriter, r *http.Request) {
	const op = "api.roster"
	v, err := s.store.FetchRoster(r.Context())
	if err != nil {
		s.fail(w, r, "No roster", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, v.Sorted())
}

// handleSwap serves POST /api/roster/swap. It writes the store directly and
// then refreshes the session's confirmed roster.
func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	const op = "api.roster_swap"
	var req swapRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, "Invalid body", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		s.fail(w, r, "Invalid slots", WrapKind(op, ErrBadRequest, err))
		return
	}

	if err := s.store.SwapSlots(r.Context(), *req.From, *req.To); err != nil {
		display := "Invalid slots"
		if errors.Is(err, repository.ErrNoRoster) {
			display = "No roster"
		}
		s.fail(w, r, display, Wrap(op, err))
		return
	}
	if err := s.session.Refresh(r.Context()); err != nil {
		s.logger.Warn(r.Context(), "session roster refresh failed", logger.Error(err))
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (s *Server) lineup() lineupResponse {
	v := s.session.Roster().Sorted()
	resp := lineupResponse{Starters: v.Starters, Bench: v.Bench, Stats: roster.Stats(v.Starters)}
	if sel, ok := s.session.Selected(); ok {
		resp.Selected = &sel
	}
	return resp
}

// handleLineup serves GET /api/lineup, the optimistic roster view.
func (s *Server) handleLineup(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.lineup())
}

// handleClick serves POST /api/lineup/click with a slot reference body.
func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	const op = "api.lineup_click"
	var ref roster.SlotRef
	if err := decodeBody(r, &ref); err != nil {
		s.fail(w, r, "Invalid body", WrapKind(op, ErrBadRequest, err))
		return
	}
	loc, err := roster.ParseLocation(string(ref.Location))
	if err != nil {
		s.fail(w, r, "Invalid slots", WrapKind(op, ErrBadRequest, err))
		return
	}
	ref.Location = loc
	swapped, err := s.session.Click(ref)
	if err != nil {
		s.fail(w, r, "", Wrap(op, err))
		return
	}
	resp := clickResponse{Swapped: swapped}
	if sel, ok := s.session.Selected(); ok {
		resp.Selected = &sel
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDrop serves POST /api/lineup/drop with a {from, to} body.
func (s *Server) handleDrop(w http.ResponseWriter, r *http.Request) {
	const op = "api.lineup_drop"
	var req swapRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, "Invalid body", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		s.fail(w, r, "Invalid slots", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := s.session.Drop(*req.From, *req.To); err != nil {
		s.fail(w, r, "", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusAccepted, s.lineup())
}

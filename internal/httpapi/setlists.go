package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"chordboard/internal/apperr"
	"chordboard/internal/models"
)

func urlID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.BadRequest("invalid %s %q", name, raw)
	}
	return id, nil
}

func (s *Server) handleCreateSetlist(w http.ResponseWriter, r *http.Request) {
	callerID := callerFromContext(r.Context())

	var body struct {
		Name        string   `json:"name"`
		Description string   `json:"description"`
		Tags        []string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, apperr.BadRequest("invalid JSON body"))
		return
	}

	setlist, err := s.setlists.Create(r.Context(), callerID, body.Name, body.Description, body.Tags)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, setlist)
}

func (s *Server) handleListSetlists(w http.ResponseWriter, r *http.Request) {
	callerID := callerFromContext(r.Context())

	var since *time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.writeError(w, r, apperr.BadRequest("invalid since %q", raw))
			return
		}
		since = &parsed
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.writeError(w, r, apperr.BadRequest("invalid limit %q", raw))
			return
		}
		limit = parsed
	}

	setlists, err := s.setlists.List(r.Context(), callerID, since, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Setlists []*models.Setlist `json:"setlists"`
	}{Setlists: setlists})
}

func (s *Server) handleGetSetlist(w http.ResponseWriter, r *http.Request) {
	setlistID, err := urlID(r, "setlistID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	setlist, err := s.setlists.Get(r.Context(), setlistID, callerFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, setlist)
}

func (s *Server) handleUpdateSetlist(w http.ResponseWriter, r *http.Request) {
	setlistID, err := urlID(r, "setlistID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var update models.SetlistUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		s.writeError(w, r, apperr.BadRequest("invalid JSON body"))
		return
	}

	setlist, err := s.setlists.Update(r.Context(), setlistID, callerFromContext(r.Context()), update)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, setlist)
}

func (s *Server) handleDeleteSetlist(w http.ResponseWriter, r *http.Request) {
	setlistID, err := urlID(r, "setlistID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	snapshot, err := s.setlists.Delete(r.Context(), setlistID, callerFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// handleAddSongs accepts either a single song_id or a song_ids batch.
func (s *Server) handleAddSongs(w http.ResponseWriter, r *http.Request) {
	setlistID, err := urlID(r, "setlistID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	callerID := callerFromContext(r.Context())

	var body struct {
		SongID  *int64  `json:"song_id"`
		SongIDs []int64 `json:"song_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, apperr.BadRequest("invalid JSON body"))
		return
	}

	var setlist *models.Setlist
	switch {
	case body.SongID != nil:
		setlist, err = s.setlists.AddSong(r.Context(), setlistID, callerID, *body.SongID)
	case len(body.SongIDs) > 0:
		setlist, err = s.setlists.AddSongs(r.Context(), setlistID, callerID, body.SongIDs)
	default:
		err = apperr.BadRequest("song_id or song_ids is required")
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, setlist)
}

func (s *Server) handleRemoveSong(w http.ResponseWriter, r *http.Request) {
	setlistID, err := urlID(r, "setlistID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	songID, err := urlID(r, "songID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	setlist, err := s.setlists.RemoveSong(r.Context(), setlistID, callerFromContext(r.Context()), songID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, setlist)
}

func (s *Server) handleRemoveSongs(w http.ResponseWriter, r *http.Request) {
	setlistID, err := urlID(r, "setlistID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var body struct {
		SongIDs []int64 `json:"song_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, apperr.BadRequest("invalid JSON body"))
		return
	}

	setlist, err := s.setlists.RemoveSongs(r.Context(), setlistID, callerFromContext(r.Context()), body.SongIDs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, setlist)
}

func (s *Server) handleReorder(w http.ResponseWriter, r *http.Request) {
	setlistID, err := urlID(r, "setlistID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var body struct {
		OrderedSongIDs []int64 `json:"ordered_song_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, apperr.BadRequest("invalid JSON body"))
		return
	}

	result, err := s.setlists.Reorder(r.Context(), setlistID, callerFromContext(r.Context()), body.OrderedSongIDs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	setlistID, err := urlID(r, "setlistID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var body struct {
		Email      string            `json:"email"`
		Permission models.Permission `json:"permission"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, apperr.BadRequest("invalid JSON body"))
		return
	}
	if strings.TrimSpace(body.Email) == "" {
		s.writeError(w, r, apperr.BadRequest("email is required"))
		return
	}

	collaborator, err := s.sharing.Share(r.Context(), setlistID, callerFromContext(r.Context()), body.Email, body.Permission)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, collaborator)
}

func (s *Server) handleAcceptInvitation(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	setlist, err := s.sharing.AcceptInvitation(r.Context(), code, callerFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, setlist)
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	setlist, err := s.sharing.JoinByShareCode(r.Context(), code, callerFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, setlist)
}

func (s *Server) handleListCollaborators(w http.ResponseWriter, r *http.Request) {
	setlistID, err := urlID(r, "setlistID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	collaborators, err := s.sharing.Collaborators(r.Context(), setlistID, callerFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Collaborators []models.Collaborator `json:"collaborators"`
	}{Collaborators: collaborators})
}

func (s *Server) handleUpdateCollaborator(w http.ResponseWriter, r *http.Request) {
	setlistID, err := urlID(r, "setlistID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	targetID, err := urlID(r, "customerID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var body struct {
		Permission models.Permission `json:"permission"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, apperr.BadRequest("invalid JSON body"))
		return
	}

	collaborator, err := s.sharing.UpdateCollaborator(r.Context(), setlistID, callerFromContext(r.Context()), targetID, body.Permission)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, collaborator)
}

func (s *Server) handleRemoveCollaborator(w http.ResponseWriter, r *http.Request) {
	setlistID, err := urlID(r, "setlistID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	targetID, err := urlID(r, "customerID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.sharing.RemoveCollaborator(r.Context(), setlistID, callerFromContext(r.Context()), targetID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	setlistID, err := urlID(r, "setlistID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var settings models.SetlistSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		s.writeError(w, r, apperr.BadRequest("invalid JSON body"))
		return
	}

	setlist, err := s.setlists.UpdateSettings(r.Context(), setlistID, callerFromContext(r.Context()), settings)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, setlist)
}

func (s *Server) handleMakePublic(w http.ResponseWriter, r *http.Request) {
	s.handleSetPublic(w, r, true)
}

func (s *Server) handleMakePrivate(w http.ResponseWriter, r *http.Request) {
	s.handleSetPublic(w, r, false)
}

func (s *Server) handleSetPublic(w http.ResponseWriter, r *http.Request, public bool) {
	setlistID, err := urlID(r, "setlistID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	callerID := callerFromContext(r.Context())

	var setlist *models.Setlist
	if public {
		setlist, err = s.setlists.MakePublic(r.Context(), setlistID, callerID)
	} else {
		setlist, err = s.setlists.MakePrivate(r.Context(), setlistID, callerID)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, setlist)
}

func (s *Server) handleLike(w http.ResponseWriter, r *http.Request) {
	setlistID, err := urlID(r, "setlistID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	count, err := s.setlists.Like(r.Context(), setlistID, callerFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"like_count": count})
}

func (s *Server) handleUnlike(w http.ResponseWriter, r *http.Request) {
	setlistID, err := urlID(r, "setlistID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	count, err := s.setlists.Unlike(r.Context(), setlistID, callerFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"like_count": count})
}

func (s *Server) handleIncrementView(w http.ResponseWriter, r *http.Request) {
	setlistID, err := urlID(r, "setlistID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	count, err := s.setlists.IncrementView(r.Context(), setlistID, callerFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"view_count": count})
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	setlistID, err := urlID(r, "setlistID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.writeError(w, r, apperr.BadRequest("invalid limit %q", raw))
			return
		}
		limit = parsed
	}

	activities, err := s.setlists.Activity(r.Context(), setlistID, callerFromContext(r.Context()), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Activities []models.Activity `json:"activities"`
	}{Activities: activities})
}

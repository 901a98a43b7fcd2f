package server

import (
	"net/http"
	"strings"

	"telefwd/internal/app"
	"telefwd/pkg/domain"
)

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		channels, err := s.app.ListChannels(r.Context(), user)
		if err != nil {
			writeAppError(w, err)
			return
		}
		if channels == nil {
			channels = []domain.Channel{}
		}
		writeJSON(w, http.StatusOK, channels)
	case http.MethodPost:
		var req struct {
			ChannelID   string             `json:"channel_id"`
			ChannelName string             `json:"channel_name"`
			ChannelType domain.ChannelType `json:"channel_type"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		ch, err := s.app.AddChannel(r.Context(), user, app.ChannelInput{
			ChannelID: req.ChannelID,
			Name:      req.ChannelName,
			Type:      req.ChannelType,
		})
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, ch)
	default:
		methodNotAllowed(w)
	}
}

// /channels/{id} or /channels/{id}/toggle
func (s *Server) handleChannelByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	path := strings.TrimPrefix(r.URL.Path, "/channels/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if len(parts) == 2 {
		if parts[1] == "toggle" && r.Method == http.MethodPatch {
			ch, err := s.app.ToggleChannel(r.Context(), user, id)
			if err != nil {
				writeAppError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, ch)
			return
		}
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodPut:
		var req struct {
			ChannelName *string             `json:"channel_name"`
			ChannelType *domain.ChannelType `json:"channel_type"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		ch, err := s.app.UpdateChannel(r.Context(), user, id, req.ChannelName, req.ChannelType)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ch)
	case http.MethodDelete:
		if err := s.app.DeleteChannel(r.Context(), user, id); err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Channel deleted"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleAvailableChannels(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	channels, err := s.app.AvailableChannels(r.Context(), user)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if channels == nil {
		channels = []domain.RelayChannel{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": channels})
}

package api

import (
	"net/http"
	"strings"

	"github.com/soniam4/carbonfootprint-tracker/internal/auth"
	"github.com/soniam4/carbonfootprint-tracker/internal/domain"
)

func (h *Handler) recommendations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeActivitiesRead)
	if !ok {
		return
	}

	recs, err := h.service.ListUserRecommendations(r.Context(), claims.Subject)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	items := make([]UserRecommendationView, 0, len(recs))
	for _, rec := range recs {
		items = append(items, toUserRecommendationView(rec))
	}
	writeJSON(w, http.StatusOK, ListRecommendationsResponse{Items: items})
}

func (h *Handler) recommendationCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if _, ok := requireScope(w, r, auth.ScopeActivitiesRead); !ok {
		return
	}

	groups, err := h.service.RecommendationCatalog(r.Context())
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RecommendationCatalogResponse{Groups: groups})
}

// recommendationByID serves /v1/recommendations/{id} and its viewed/applied actions.
func (h *Handler) recommendationByID(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/recommendations/"), "/"), "/")
	id := parts[0]
	if id == "" || len(parts) > 2 {
		writeError(w, http.StatusNotFound, "not_found", "recommendation not found")
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
			return
		}
		h.getRecommendation(w, r, id)
		return
	}

	var flag domain.RecommendationFlag
	switch parts[1] {
	case "viewed":
		flag = domain.FlagViewed
	case "applied":
		flag = domain.FlagApplied
	default:
		writeError(w, http.StatusNotFound, "not_found", "recommendation not found")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	h.markRecommendation(w, r, id, flag)
}

func (h *Handler) getRecommendation(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := requireScope(w, r, auth.ScopeActivitiesRead)
	if !ok {
		return
	}
	rec, err := h.service.GetUserRecommendation(r.Context(), claims.Subject, id)
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserRecommendationView(*rec))
}

func (h *Handler) markRecommendation(w http.ResponseWriter, r *http.Request, id string, flag domain.RecommendationFlag) {
	claims, ok := requireScope(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}
	rec, err := h.service.MarkRecommendation(r.Context(), claims.Subject, id, flag)
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserRecommendationView(*rec))
}

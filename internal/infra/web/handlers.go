package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"ubid-billing/internal/domain"
	"ubid-billing/internal/domain/model"
	"ubid-billing/internal/infra/logging"
	"ubid-billing/internal/usecase"
)

// changeRequest is the JSON body for preview and commit.
type changeRequest struct {
	TargetTier  string `json:"target_tier"`
	TargetCycle string `json:"target_cycle"`
}

func (r changeRequest) toModel() model.ChangeRequest {
	return model.ChangeRequest{
		TargetTier:  model.Tier(r.TargetTier),
		TargetCycle: model.BillingCycle(r.TargetCycle),
	}
}

type profileResponse struct {
	ID              string                  `json:"id"`
	Email           string                  `json:"email"`
	DisplayName     string                  `json:"display_name"`
	Subscription    model.SubscriptionState `json:"subscription"`
	PromotionTokens int64                   `json:"promotion_tokens"`
	ExtendTokens    int64                   `json:"extend_tokens"`
	UpdatedAt       time.Time               `json:"updated_at"`
}

func toProfileResponse(u *model.UserProfile) profileResponse {
	return profileResponse{
		ID:              u.ID,
		Email:           u.Email,
		DisplayName:     u.DisplayName,
		Subscription:    u.Subscription,
		PromotionTokens: u.PromotionTokens,
		ExtendTokens:    u.ExtendTokens,
		UpdatedAt:       u.UpdatedAt,
	}
}

type changeResponse struct {
	Decision model.ChangeDecision `json:"decision"`
	Summary  string               `json:"summary"`
	Profile  profileResponse      `json:"profile"`
}

func toChangeResponse(res *usecase.ChangeResult) changeResponse {
	return changeResponse{
		Decision: res.Decision,
		Summary:  res.Summary,
		Profile:  toProfileResponse(res.Profile),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	catalog := s.billing.Catalog()
	plans := make([]*model.Plan, 0, len(catalog))
	for _, tier := range []model.Tier{model.TierPlus, model.TierUltimate} {
		if plan, ok := catalog[tier]; ok {
			plans = append(plans, plan)
		}
	}
	s.writeJSON(w, http.StatusOK, struct {
		Data []*model.Plan `json:"data"`
	}{Data: plans})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.billing.GetProfile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toProfileResponse(profile))
}

func (s *Server) handleListChanges(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := s.billing.History(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, struct {
		Data []*model.PlanChangeRecord `json:"data"`
	}{Data: records})
}

func (s *Server) handlePreviewChange(w http.ResponseWriter, r *http.Request) {
	var req changeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	res, err := s.billing.Preview(r.Context(), chi.URLParam(r, "id"), req.toModel())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toChangeResponse(res))
}

func (s *Server) handleCommitChange(w http.ResponseWriter, r *http.Request) {
	var req changeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	res, err := s.billing.ChangePlan(r.Context(), chi.URLParam(r, "id"), req.toModel())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toChangeResponse(res))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	res, err := s.billing.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toChangeResponse(res))
}

// handleMintSession issues a session token for a user. Operator-only; the
// marketplace frontend normally gets sessions from its own login flow.
func (s *Server) handleMintSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		Role   string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Role == "" {
		req.Role = "user"
	}
	token, err := s.auth.Mint(w, req.UserID, req.Role)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"token": token})
}

// handleLookupUser resolves a profile by email for support tooling.
func (s *Server) handleLookupUser(w http.ResponseWriter, r *http.Request) {
	profile, err := s.billing.GetProfileByEmail(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toProfileResponse(profile))
}

// handleRunRenewals triggers one sweep outside the ticker schedule.
func (s *Server) handleRunRenewals(w http.ResponseWriter, r *http.Request) {
	applied, renewed, err := s.renewal.ApplyDue(r.Context(), time.Now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, struct {
		PendingApplied int `json:"pending_applied"`
		Renewed        int `json:"renewed"`
	}{PendingApplied: applied, Renewed: renewed})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps domain errors onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrNoActiveSubscription):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrConflict):
		http.Error(w, "Profile was modified concurrently, retry", http.StatusConflict)
	default:
		logging.With(r.Context(), s.log).Error().Err(err).Msg("request failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

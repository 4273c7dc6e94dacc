package server

import (
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sifterhq/sifter/internal/auth"
	"github.com/sifterhq/sifter/internal/models"
)

type orgRegisterRequest struct {
	Email     string `json:"email"`
	UserLimit int    `json:"userLimit"`
	License   string `json:"licenseType"`
}

type orgRegisterResponse struct {
	ID     string `json:"id"`
	APIKey string `json:"apiKey"`
}

func (s *Server) handleOrgRegister(w http.ResponseWriter, r *http.Request) {
	var req orgRegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	email := strings.TrimSpace(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		s.writeError(w, r, validationf("a valid email is required"))
		return
	}
	if req.UserLimit <= 0 {
		s.writeError(w, r, validationf("userLimit must be positive"))
		return
	}
	license, err := models.ParseLicense(req.License)
	if err != nil {
		s.writeError(w, r, validationf("%v", err))
		return
	}

	apiKey, err := auth.GenerateAPIKey(models.PrincipalKindOrganization)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	now := time.Now()
	org := &models.Organization{
		OrgID:            uuid.Must(uuid.NewV7()),
		Email:            email,
		CredentialDigest: auth.DigestAPIKey(apiKey),
		UserLimit:        req.UserLimit,
		License:          license,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.orgs.Create(r.Context(), org); err != nil {
		s.writeError(w, r, err)
		return
	}

	log.Ctx(r.Context()).Info().Str("org_id", org.OrgID.String()).Msg("organization registered")

	// The raw key appears in this response and nowhere else.
	writeJSON(w, http.StatusCreated, orgRegisterResponse{
		ID:     org.OrgID.String(),
		APIKey: apiKey,
	})
}

type createUserRequest struct {
	Username string `json:"username"`
}

type createUserResponse struct {
	APIKey string `json:"apiKey"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	org, err := s.gate.RequireOrganization(auth.PrincipalFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	username := strings.TrimSpace(req.Username)
	if username == "" {
		s.writeError(w, r, validationf("username is required"))
		return
	}

	apiKey, err := auth.GenerateAPIKey(models.PrincipalKindUser)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	now := time.Now()
	user := &models.User{
		UserID:           uuid.Must(uuid.NewV7()),
		OrgID:            org.OrgID,
		Username:         username,
		CredentialDigest: auth.DigestAPIKey(apiKey),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.users.Create(r.Context(), user, org.UserLimit); err != nil {
		s.writeError(w, r, err)
		return
	}

	log.Ctx(r.Context()).Info().
		Str("org_id", org.OrgID.String()).
		Str("username", username).
		Msg("user provisioned")

	writeJSON(w, http.StatusCreated, createUserResponse{APIKey: apiKey})
}

type userSummary struct {
	Username              string  `json:"username"`
	SpamRequestCount      int64   `json:"spamRequestCount"`
	PhishingRequestCount  int64   `json:"phishingRequestCount"`
	SpamPositiveCount     int64   `json:"spamPositiveCount"`
	PhishingPositiveCount int64   `json:"phishingPositiveCount"`
	SpamPercent           float64 `json:"spamPercent"`
	PhishingPercent       float64 `json:"phishingPercent"`
}

type listUsersResponse struct {
	Users []userSummary `json:"users"`
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	org, err := s.gate.RequireOrganization(auth.PrincipalFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	users, err := s.users.ListByOrg(r.Context(), org.OrgID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := listUsersResponse{Users: make([]userSummary, 0, len(users))}
	for _, u := range users {
		resp.Users = append(resp.Users, userSummary{
			Username:              u.Username,
			SpamRequestCount:      u.Usage.SpamRequests,
			PhishingRequestCount:  u.Usage.PhishingRequests,
			SpamPositiveCount:     u.Usage.SpamPositives,
			PhishingPositiveCount: u.Usage.PhishingPositives,
			SpamPercent:           positiveRate(u.Usage.SpamPositives, u.Usage.SpamRequests),
			PhishingPercent:       positiveRate(u.Usage.PhishingPositives, u.Usage.PhishingRequests),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// positiveRate is the share of requests that classified positive, as a
// percentage rounded to 2 decimals. Zero requests yields zero.
func positiveRate(positives, requests int64) float64 {
	if requests == 0 {
		return 0
	}
	return math.Round(float64(positives)/float64(requests)*10000) / 100
}

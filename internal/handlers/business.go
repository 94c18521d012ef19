package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/zoner/backend/internal/business"
)

// BusinessHandler implements business profile and follow endpoints.
type BusinessHandler struct {
	Business BusinessService
}

type createBusinessResponse struct {
	User     userResponse            `json:"user"`
	Business businessProfileResponse `json:"business"`
	Tokens   tokensResponse          `json:"tokens"`
}

type followResponse struct {
	Changed bool `json:"changed"`
}

// CreateProfile handles POST /business/profile as multipart with an
// optional logo part.
func (h BusinessHandler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, err := principal(r)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	if err := parseMultipart(w, r); err != nil {
		respondError(ctx, w, err)
		return
	}
	logo, _, err := formFile(r, "logo", false)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	terms, _ := strconv.ParseBool(strings.TrimSpace(r.FormValue("termsAccepted")))
	result, err := h.Business.Create(ctx, p.UserID, business.CreateInput{
		BusinessName:  r.FormValue("businessName"),
		Category:      r.FormValue("category"),
		PhoneNumber:   r.FormValue("phoneNumber"),
		Description:   r.FormValue("description"),
		Location:      r.FormValue("location"),
		Country:       r.FormValue("country"),
		TermsAccepted: terms,
		Logo:          logo,
	})
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondOK(ctx, w, http.StatusCreated, "business profile created", createBusinessResponse{
		User:     newUserResponse(result.User),
		Business: newBusinessProfileResponse(result.Profile),
		Tokens:   newTokensResponse(result.Tokens),
	})
}

// GetProfile handles GET /business/profile.
func (h BusinessHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, err := principal(r)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	profile, err := h.Business.Get(ctx, p.UserID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondOK(ctx, w, http.StatusOK, "business profile", newBusinessProfileResponse(profile))
}

// Follow handles POST /business/{userId}/follow.
func (h BusinessHandler) Follow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, err := principal(r)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	followed, err := h.Business.Follow(ctx, p.UserID, r.PathValue("userId"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	message := "business followed"
	if !followed {
		message = "already following"
	}
	respondOK(ctx, w, http.StatusOK, message, followResponse{Changed: followed})
}

// Unfollow handles DELETE /business/{userId}/follow.
func (h BusinessHandler) Unfollow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, err := principal(r)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	removed, err := h.Business.Unfollow(ctx, p.UserID, r.PathValue("userId"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	message := "business unfollowed"
	if !removed {
		message = "not following"
	}
	respondOK(ctx, w, http.StatusOK, message, followResponse{Changed: removed})
}

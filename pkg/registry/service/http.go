package service

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	apperrors "github.com/curatelabs/tcr-middleware/pkg/app/errors"
	apphttp "github.com/curatelabs/tcr-middleware/pkg/app/http"
	"github.com/curatelabs/tcr-middleware/pkg/registry"
	"github.com/curatelabs/tcr-middleware/pkg/voting"
)

// HTTP wraps the Registry to provide HTTP endpoints
type HTTP struct {
	service Registry
	polls   *voting.PollService
	logger  *zap.Logger
}

// RegisterRoutes registers the registry and poll endpoints on the given chi router
func RegisterRoutes(r chi.Router, service Registry, polls *voting.PollService, logger *zap.Logger) {
	h := &HTTP{
		service: service,
		polls:   polls,
		logger:  logger,
	}

	r.Post("/listings", apphttp.HandleError(h.apply))
	r.Get("/listings/{id}", apphttp.HandleError(h.getListing))
	r.Post("/listings/{id}/challenges", apphttp.HandleError(h.challenge))
	r.Post("/listings/{id}/status", apphttp.HandleError(h.updateStatus))
	r.Post("/listings/{id}/deposit", apphttp.HandleError(h.deposit))
	r.Post("/listings/{id}/withdraw", apphttp.HandleError(h.withdraw))
	r.Post("/listings/{id}/exit", apphttp.HandleError(h.exit))

	r.Get("/challenges/{id}/reward", apphttp.HandleError(h.determineReward))
	r.Post("/challenges/{id}/claims", apphttp.HandleError(h.claimReward))

	r.Post("/polls/{id}/commits", apphttp.HandleError(h.commitVote))
	r.Post("/polls/{id}/reveals", apphttp.HandleError(h.revealVote))
}

// ApplyRequest is the body of POST /listings
type ApplyRequest struct {
	Name      string `json:"name"`
	Deposit   string `json:"deposit"`
	Applicant string `json:"applicant"`
}

// ListingResponse describes a listing
type ListingResponse struct {
	ID                string    `json:"id"`
	Name              string    `json:"name,omitempty"`
	Owner             string    `json:"owner"`
	Deposit           string    `json:"deposit"`
	ApplicationExpiry time.Time `json:"application_expiry"`
	Whitelisted       bool      `json:"whitelisted"`
	ChallengeID       string    `json:"challenge_id,omitempty"`
}

func listingResponse(l *registry.Listing) *ListingResponse {
	return &ListingResponse{
		ID:                l.ID,
		Name:              l.Name,
		Owner:             l.Owner,
		Deposit:           l.Deposit.String(),
		ApplicationExpiry: l.ApplicationExpiry,
		Whitelisted:       l.Whitelisted,
		ChallengeID:       l.ChallengeID,
	}
}

func (h *HTTP) apply(w http.ResponseWriter, r *http.Request) error {
	var req ApplyRequest
	if err := readJSON(r, &req); err != nil {
		return err
	}
	if req.Name == "" || req.Applicant == "" {
		return apperrors.BadRequestError(nil, "name and applicant are required")
	}
	deposit, err := parseAmount(req.Deposit)
	if err != nil {
		return err
	}

	listing, err := h.service.Apply(r.Context(), req.Name, deposit, req.Applicant)
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusCreated, listingResponse(listing))
	return nil
}

func (h *HTTP) getListing(w http.ResponseWriter, r *http.Request) error {
	listing, err := h.service.GetListing(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, listingResponse(listing))
	return nil
}

// ChallengeRequest is the body of POST /listings/{id}/challenges
type ChallengeRequest struct {
	Challenger string `json:"challenger"`
}

func (h *HTTP) challenge(w http.ResponseWriter, r *http.Request) error {
	var req ChallengeRequest
	if err := readJSON(r, &req); err != nil {
		return err
	}
	if req.Challenger == "" {
		return apperrors.BadRequestError(nil, "challenger is required")
	}

	challengeID, err := h.service.Challenge(r.Context(), chi.URLParam(r, "id"), req.Challenger)
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{"challenge_id": challengeID})
	return nil
}

func (h *HTTP) updateStatus(w http.ResponseWriter, r *http.Request) error {
	listingID := chi.URLParam(r, "id")
	if err := h.service.UpdateStatus(r.Context(), listingID); err != nil {
		return err
	}
	whitelisted, err := h.service.IsWhitelisted(r.Context(), listingID)
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"whitelisted": whitelisted})
	return nil
}

// FundsRequest is the body of deposit/withdraw/exit calls
type FundsRequest struct {
	Owner  string `json:"owner"`
	Amount string `json:"amount,omitempty"`
}

func (h *HTTP) deposit(w http.ResponseWriter, r *http.Request) error {
	var req FundsRequest
	if err := readJSON(r, &req); err != nil {
		return err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return err
	}
	if err := h.service.Deposit(r.Context(), chi.URLParam(r, "id"), req.Owner, amount); err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	return nil
}

func (h *HTTP) withdraw(w http.ResponseWriter, r *http.Request) error {
	var req FundsRequest
	if err := readJSON(r, &req); err != nil {
		return err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return err
	}
	if err := h.service.Withdraw(r.Context(), chi.URLParam(r, "id"), req.Owner, amount); err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	return nil
}

func (h *HTTP) exit(w http.ResponseWriter, r *http.Request) error {
	var req FundsRequest
	if err := readJSON(r, &req); err != nil {
		return err
	}
	if err := h.service.Exit(r.Context(), chi.URLParam(r, "id"), req.Owner); err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	return nil
}

func (h *HTTP) determineReward(w http.ResponseWriter, r *http.Request) error {
	reward, err := h.service.DetermineReward(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"reward": reward.String()})
	return nil
}

// ClaimRequest is the body of POST /challenges/{id}/claims
type ClaimRequest struct {
	Voter string `json:"voter"`
}

func (h *HTTP) claimReward(w http.ResponseWriter, r *http.Request) error {
	var req ClaimRequest
	if err := readJSON(r, &req); err != nil {
		return err
	}
	if req.Voter == "" {
		return apperrors.BadRequestError(nil, "voter is required")
	}
	amount, err := h.service.ClaimVoterReward(r.Context(), chi.URLParam(r, "id"), req.Voter)
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"amount": amount.String()})
	return nil
}

// CommitRequest is the body of POST /polls/{id}/commits
type CommitRequest struct {
	Voter      string `json:"voter"`
	SecretHash string `json:"secret_hash"`
	Tokens     string `json:"tokens"`
}

func (h *HTTP) commitVote(w http.ResponseWriter, r *http.Request) error {
	var req CommitRequest
	if err := readJSON(r, &req); err != nil {
		return err
	}
	if req.Voter == "" {
		return apperrors.BadRequestError(nil, "voter is required")
	}
	hash, err := parseSecretHash(req.SecretHash)
	if err != nil {
		return err
	}
	tokens, err := parseAmount(req.Tokens)
	if err != nil {
		return err
	}

	if err := h.polls.Commit(r.Context(), chi.URLParam(r, "id"), req.Voter, hash, tokens); err != nil {
		return pollError(err)
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "committed"})
	return nil
}

// RevealRequest is the body of POST /polls/{id}/reveals
type RevealRequest struct {
	Voter  string `json:"voter"`
	Choice uint8  `json:"choice"`
	Salt   string `json:"salt"`
}

func (h *HTTP) revealVote(w http.ResponseWriter, r *http.Request) error {
	var req RevealRequest
	if err := readJSON(r, &req); err != nil {
		return err
	}
	if req.Voter == "" {
		return apperrors.BadRequestError(nil, "voter is required")
	}
	salt, err := hex.DecodeString(strings.TrimPrefix(req.Salt, "0x"))
	if err != nil {
		return apperrors.BadRequestError(err, "salt must be hex encoded")
	}

	if err := h.polls.Reveal(r.Context(), chi.URLParam(r, "id"), req.Voter, voting.Choice(req.Choice), salt); err != nil {
		return pollError(err)
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "revealed"})
	return nil
}

// pollError maps voting errors onto service error categories.
func pollError(err error) error {
	switch {
	case err == nil:
		return nil
	case isAny(err, voting.ErrNoSuchPoll):
		return apperrors.ResourceNotFoundError(err, "no such poll")
	case isAny(err, voting.ErrCommitStageOver, voting.ErrRevealStageInactive):
		return apperrors.LockedError(err, err.Error())
	case isAny(err, voting.ErrAlreadyRevealed):
		return apperrors.ConflictError(err, err.Error())
	default:
		return apperrors.BadRequestError(err, err.Error())
	}
}

func isAny(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

func readJSON(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB limit
	if err != nil {
		return apperrors.BadRequestError(err, "failed to read request")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apperrors.BadRequestError(err, "invalid JSON")
	}
	return nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, apperrors.BadRequestError(nil, "amount is required")
	}
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, apperrors.BadRequestError(err, "invalid amount")
	}
	return amount, nil
}

func parseSecretHash(s string) ([32]byte, error) {
	var hash [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil || len(raw) != 32 {
		return hash, apperrors.BadRequestError(err, "secret_hash must be 32 hex-encoded bytes")
	}
	copy(hash[:], raw)
	return hash, nil
}

func (h *HTTP) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

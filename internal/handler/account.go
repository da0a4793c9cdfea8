package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"capture-relay-api/internal/model"
	"capture-relay-api/internal/repository"
	"capture-relay-api/internal/service"
	"capture-relay-api/pkg/apierror"
	"capture-relay-api/pkg/response"
	"capture-relay-api/pkg/uid"

	"github.com/go-chi/chi/v5"
)

// AccountHandler handles account directory HTTP requests.
type AccountHandler struct {
	accountService *service.AccountService
}

// NewAccountHandler creates a new account handler.
func NewAccountHandler(accountService *service.AccountService) *AccountHandler {
	return &AccountHandler{accountService: accountService}
}

type registerRequest struct {
	AccountID string `json:"account_id,omitempty"`
	Tier      string `json:"tier,omitempty"`
}

// Register handles POST /api/v1/accounts
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON"))
		return
	}
	defer r.Body.Close()

	accountID := req.AccountID
	if accountID == "" {
		accountID = uid.New()
	}
	tier := model.Tier(req.Tier)
	if req.Tier != "" && !tier.Valid() {
		response.Error(w, apierror.BadRequest("tier must be free or premium"))
		return
	}

	account, err := h.accountService.Register(r.Context(), accountID, tier)
	if err != nil {
		if errors.Is(err, service.ErrRegistrationUnsupported) {
			response.Error(w, apierror.Conflict("accounts are managed by an external directory"))
			return
		}
		response.Error(w, apierror.InternalError(""))
		return
	}

	response.Created(w, account)
}

// Get handles GET /api/v1/accounts/{account_id}
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account_id")

	account, err := h.accountService.Get(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			response.Error(w, apierror.NotFound("account not found"))
			return
		}
		response.Error(w, apierror.InternalError(""))
		return
	}
	response.OK(w, account)
}

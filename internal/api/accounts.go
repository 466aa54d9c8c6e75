package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mailwarden/internal/store"
	logx "mailwarden/pkg/logx"
)

type accountReq struct {
	OwnerID    string `json:"owner_id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	AuthType   string `json:"auth_type"`
	Credential string `json:"credential"`
}

func (s *Server) createAccount(w http.ResponseWriter, r *http.Request) {
	var req accountReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.OwnerID == "" {
		http.Error(w, "owner_id is required", http.StatusBadRequest)
		return
	}
	if req.Email == "" {
		http.Error(w, "email is required", http.StatusBadRequest)
		return
	}
	authType := store.AuthType(req.AuthType)
	switch authType {
	case store.AuthOAuth, store.AuthPassword:
	case "":
		authType = store.AuthPassword
	default:
		http.Error(w, "auth_type must be oauth or password", http.StatusBadRequest)
		return
	}

	acc := s.accounts.CreateAccount(store.Account{
		OwnerID:    req.OwnerID,
		Email:      req.Email,
		Name:       req.Name,
		AuthType:   authType,
		Credential: req.Credential,
	})
	s.log.Info("account created",
		logx.String("account", acc.ID),
		logx.String("email", acc.Email))
	writeJSON(w, http.StatusCreated, acc)
}

func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	var accounts []store.Account
	if owner := r.URL.Query().Get("owner_id"); owner != "" {
		accounts = s.accounts.AccountsByOwner(owner)
	} else {
		accounts = s.accounts.Accounts()
	}
	if accounts == nil {
		accounts = []store.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.accounts.Account(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (s *Server) updateAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req accountReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.AuthType != "" {
		switch store.AuthType(req.AuthType) {
		case store.AuthOAuth, store.AuthPassword:
		default:
			http.Error(w, "auth_type must be oauth or password", http.StatusBadRequest)
			return
		}
	}

	acc, ok := s.accounts.UpdateAccount(id, func(a *store.Account) {
		if req.Email != "" {
			a.Email = req.Email
		}
		if req.Name != "" {
			a.Name = req.Name
		}
		if req.AuthType != "" {
			a.AuthType = store.AuthType(req.AuthType)
		}
		if req.Credential != "" {
			a.Credential = req.Credential
			// New credentials invalidate the previous verification result.
			a.Status = store.AccountPending
		}
	})
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (s *Server) deleteAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.accounts.DeleteAccount(id) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	s.log.Info("account deleted", logx.String("account", id))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) verifyAccount(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.accounts.Account(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	res, err := s.verifier.Verify(r.Context(), acc)
	if err != nil {
		s.log.Warn("manual verification failed",
			logx.String("account", acc.ID),
			logx.Err(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) verifyAll(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner_id")
	if owner == "" {
		http.Error(w, "owner_id is required", http.StatusBadRequest)
		return
	}
	summary, err := s.verifier.VerifyOwner(r.Context(), owner)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

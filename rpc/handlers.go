package rpc

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"storepay/crypto"
	"storepay/native/payments"
	"storepay/native/stores"
	"storepay/native/tokenlist"
	"storepay/observability"
)

type tokenRef struct {
	Issuer string `json:"issuer"`
	Symbol string `json:"symbol"`
}

func (t tokenRef) id() tokenlist.TokenID {
	return tokenlist.TokenID{Issuer: t.Issuer, Symbol: t.Symbol}
}

type depositRequest struct {
	From   string   `json:"from"`
	To     string   `json:"to,omitempty"`
	Token  tokenRef `json:"token"`
	Amount int64    `json:"amount"`
	Memo   string   `json:"memo"`
}

type acceptRequest struct {
	StoreRef string `json:"storeRef"`
	Memo     string `json:"memo,omitempty"`
}

type claimRequest struct {
	Payer string `json:"payer"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if !decodeBody(w, r, &req) {
		return
	}
	from, err := crypto.ParseAddress(req.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from address")
		return
	}
	to := s.ledger.Custody()
	if strings.TrimSpace(req.To) != "" {
		if to, err = crypto.ParseAddress(req.To); err != nil {
			writeError(w, http.StatusBadRequest, "invalid to address")
			return
		}
	}

	order, err := s.ledger.RecordDeposit(payments.DepositNotification{
		From:   from,
		To:     to,
		Token:  req.Token.id(),
		Amount: req.Amount,
		Memo:   req.Memo,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if order == nil {
		writeJSON(w, http.StatusAccepted, map[string]bool{"ignored": true})
		return
	}
	observability.Payments().RecordOrderCreated(order.Token.String())
	writeJSON(w, http.StatusCreated, order)
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	orderRef := chi.URLParam(r, "orderRef")
	var req acceptRequest
	if !decodeBody(w, r, &req) {
		return
	}
	store, ok, err := s.stores.StoreByRef(req.StoreRef)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "store not found")
		return
	}

	start := time.Now()
	receipt, err := s.ledger.ResolveAccept(orderRef, store.ID, req.Memo)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	token := receipt.Order.Token.String()
	switch receipt.Outcome {
	case payments.OutcomeSettled:
		observability.Payments().RecordSettlement(token, time.Since(start))
	case payments.OutcomeRefunded:
		observability.Payments().RecordRefund(token, "unsupported_token", time.Since(start))
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	orderRef := chi.URLParam(r, "orderRef")
	start := time.Now()
	order, err := s.ledger.ResolveReject(orderRef)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	observability.Payments().RecordRefund(order.Token.String(), "rejected", time.Since(start))
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if !decodeBody(w, r, &req) {
		return
	}
	payer, err := crypto.ParseAddress(req.Payer)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid payer address")
		return
	}
	entries, err := s.ledger.Claim(payer)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if len(entries) == 0 {
		observability.Payments().RecordClaim("empty")
		writeJSON(w, http.StatusOK, map[string]any{"claimed": []any{}})
		return
	}
	observability.Payments().RecordClaim("paid")
	writeJSON(w, http.StatusOK, map[string]any{"claimed": entries})
}

func (s *Server) handleClearOrders(w http.ResponseWriter, r *http.Request) {
	count, err := s.ledger.Clear()
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cleared": count})
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.ledger.Orders()
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if orders == nil {
		orders = []*payments.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, ok, err := s.ledger.Order(chi.URLParam(r, "orderRef"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleGetBalances(w http.ResponseWriter, r *http.Request) {
	payer, err := crypto.ParseAddress(chi.URLParam(r, "payer"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid payer address")
		return
	}
	entries, err := s.ledger.Balances(payer)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if entries == nil {
		entries = []*payments.RefundEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	entries, err := s.tokens.List()
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if entries == nil {
		entries = []*tokenlist.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type storeView struct {
	*stores.Store
	Recipients []stores.Recipient    `json:"recipients"`
	Tokens     []*stores.TokenPolicy `json:"tokens"`
}

func (s *Server) handleListStores(w http.ResponseWriter, r *http.Request) {
	list, err := s.stores.List()
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if list == nil {
		list = []*stores.Store{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetStore(w http.ResponseWriter, r *http.Request) {
	store, ok, err := s.stores.StoreByRef(chi.URLParam(r, "storeRef"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "store not found")
		return
	}
	recipients, err := s.stores.Recipients(store.ID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	policies, err := s.stores.TokenPolicies(store.ID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if policies == nil {
		policies = []*stores.TokenPolicy{}
	}
	writeJSON(w, http.StatusOK, storeView{Store: store, Recipients: recipients, Tokens: policies})
}

type registerTokenRequest struct {
	Token            tokenRef `json:"token"`
	ImageURL         string   `json:"imageUrl,omitempty"`
	SystemFeePercent float64  `json:"systemFeePercent"`
}

func (s *Server) handleRegisterToken(w http.ResponseWriter, r *http.Request) {
	var req registerTokenRequest
	if !decodeBody(w, r, &req) {
		return
	}
	entry, err := s.tokens.Register(req.Token.id(), req.ImageURL, req.SystemFeePercent)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

type updateTokenRequest struct {
	SystemFeePercent *float64 `json:"systemFeePercent,omitempty"`
	Slippage         *float64 `json:"slippage,omitempty"`
	ImageURL         *string  `json:"imageUrl,omitempty"`
}

func (s *Server) handleUpdateToken(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "tokenID")
	if !ok {
		return
	}
	var req updateTokenRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SystemFeePercent != nil {
		if err := s.tokens.SetSystemFee(id, *req.SystemFeePercent); err != nil {
			s.writeDomainError(w, err)
			return
		}
	}
	if req.Slippage != nil {
		if err := s.tokens.SetSlippage(id, *req.Slippage); err != nil {
			s.writeDomainError(w, err)
			return
		}
	}
	if req.ImageURL != nil {
		if err := s.tokens.SetImageURL(id, *req.ImageURL); err != nil {
			s.writeDomainError(w, err)
			return
		}
	}
	entry, ok, err := s.tokens.Get(id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "token not found")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleRemoveToken(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "tokenID")
	if !ok {
		return
	}
	if err := s.tokens.Remove(id); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearTokens(w http.ResponseWriter, r *http.Request) {
	if err := s.tokens.Clear(); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addStoreRequest struct {
	StoreRef string `json:"storeRef"`
	Name     string `json:"name"`
	Owner    string `json:"owner"`
}

func (s *Server) handleAddStore(w http.ResponseWriter, r *http.Request) {
	var req addStoreRequest
	if !decodeBody(w, r, &req) {
		return
	}
	owner, err := crypto.ParseAddress(req.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid owner address")
		return
	}
	store, err := s.stores.AddStore(req.StoreRef, req.Name, owner)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, store)
}

type addRecipientRequest struct {
	Account string `json:"account"`
	Weight  uint8  `json:"weight"`
}

func (s *Server) handleAddRecipient(w http.ResponseWriter, r *http.Request) {
	store, ok := s.resolveStore(w, r)
	if !ok {
		return
	}
	var req addRecipientRequest
	if !decodeBody(w, r, &req) {
		return
	}
	account, err := crypto.ParseAddress(req.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid recipient address")
		return
	}
	if err := s.stores.AddRecipient(store.Owner, account, req.Weight); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveRecipient(w http.ResponseWriter, r *http.Request) {
	store, ok := s.resolveStore(w, r)
	if !ok {
		return
	}
	account, err := crypto.ParseAddress(chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid recipient address")
		return
	}
	if err := s.stores.RemoveRecipient(store.Owner, account); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearRecipients(w http.ResponseWriter, r *http.Request) {
	store, ok := s.resolveStore(w, r)
	if !ok {
		return
	}
	if err := s.stores.ClearRecipients(store.Owner); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type storeTokenRequest struct {
	TokenID     uint64  `json:"tokenId"`
	MinSlippage float64 `json:"minSlippage"`
	MaxSlippage float64 `json:"maxSlippage"`
	USDValue    float64 `json:"usdValue,omitempty"`
}

func (s *Server) handleAddStoreToken(w http.ResponseWriter, r *http.Request) {
	store, ok := s.resolveStore(w, r)
	if !ok {
		return
	}
	var req storeTokenRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.stores.AddToken(store.Owner, req.TokenID, req.MinSlippage, req.MaxSlippage, req.USDValue); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type editStoreTokenRequest struct {
	MinSlippage *float64 `json:"minSlippage,omitempty"`
	MaxSlippage *float64 `json:"maxSlippage,omitempty"`
	USDValue    *float64 `json:"usdValue,omitempty"`
	Active      *bool    `json:"active,omitempty"`
}

func (s *Server) handleEditStoreToken(w http.ResponseWriter, r *http.Request) {
	store, ok := s.resolveStore(w, r)
	if !ok {
		return
	}
	tokenID, ok := parseID(w, r, "tokenID")
	if !ok {
		return
	}
	var req editStoreTokenRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.MinSlippage != nil || req.MaxSlippage != nil || req.USDValue != nil {
		policies, err := s.stores.TokenPolicies(store.ID)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		var policy *stores.TokenPolicy
		for _, candidate := range policies {
			if candidate.TokenID == tokenID {
				policy = candidate
				break
			}
		}
		if policy == nil {
			writeError(w, http.StatusNotFound, "token policy not found")
			return
		}
		minSlip, maxSlip, usd := policy.MinSlippage, policy.MaxSlippage, policy.USDValue
		if req.MinSlippage != nil {
			minSlip = *req.MinSlippage
		}
		if req.MaxSlippage != nil {
			maxSlip = *req.MaxSlippage
		}
		if req.USDValue != nil {
			usd = *req.USDValue
		}
		if err := s.stores.EditToken(store.Owner, tokenID, minSlip, maxSlip, usd); err != nil {
			s.writeDomainError(w, err)
			return
		}
	}
	if req.Active != nil {
		if err := s.stores.SetTokenActive(store.Owner, tokenID, *req.Active); err != nil {
			s.writeDomainError(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveStoreToken(w http.ResponseWriter, r *http.Request) {
	store, ok := s.resolveStore(w, r)
	if !ok {
		return
	}
	tokenID, ok := parseID(w, r, "tokenID")
	if !ok {
		return
	}
	if err := s.stores.RemoveToken(store.Owner, tokenID); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearStores(w http.ResponseWriter, r *http.Request) {
	if err := s.stores.Clear(); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	entries, err := s.audit.Recent(r.Context(), limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if entries == nil {
		entries = []AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) resolveStore(w http.ResponseWriter, r *http.Request) (*stores.Store, bool) {
	store, ok, err := s.stores.StoreByRef(chi.URLParam(r, "storeRef"))
	if err != nil {
		s.writeDomainError(w, err)
		return nil, false
	}
	if !ok {
		writeError(w, http.StatusNotFound, "store not found")
		return nil, false
	}
	return store, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func parseID(w http.ResponseWriter, r *http.Request, param string) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, param), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+param)
		return 0, false
	}
	return id, true
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, payments.ErrOrderNotFound),
		errors.Is(err, tokenlist.ErrNotFound),
		errors.Is(err, stores.ErrRecipientNotFound),
		errors.Is(err, stores.ErrTokenPolicyNotFound):
		status = http.StatusNotFound
	case errors.Is(err, payments.ErrDuplicateOrderRef),
		errors.Is(err, tokenlist.ErrAlreadyWhitelisted),
		errors.Is(err, stores.ErrStoreExists),
		errors.Is(err, stores.ErrOwnerBound),
		errors.Is(err, stores.ErrRecipientExists),
		errors.Is(err, stores.ErrTokenPolicyExists):
		status = http.StatusConflict
	case errors.Is(err, stores.ErrNotAuthorized):
		status = http.StatusForbidden
	case errors.Is(err, payments.ErrTokenNotWhitelisted),
		errors.Is(err, payments.ErrNoRecipients),
		errors.Is(err, payments.ErrFeeCalculation),
		errors.Is(err, payments.ErrNegativePayout),
		errors.Is(err, payments.ErrDistributionOverdrawn),
		errors.Is(err, tokenlist.ErrNegativeFee),
		errors.Is(err, tokenlist.ErrNegativeSlippage),
		errors.Is(err, stores.ErrSlippageBounds),
		errors.Is(err, stores.ErrTokenNotWhitelisted):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeError(w, status, err.Error())
}

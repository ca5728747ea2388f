package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"streamgate/internal/access"
	"streamgate/internal/models"
	"streamgate/internal/payments"
	"streamgate/internal/services"
	"streamgate/internal/store"
	"streamgate/internal/tokens"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type Handler struct {
	Users    services.UserService
	Streams  services.StreamService
	Recorder payments.Recorder
	Resolver access.Resolver
	Issuer   *tokens.Issuer
}

func NewHandler(users services.UserService, streams services.StreamService, recorder payments.Recorder, resolver access.Resolver, issuer *tokens.Issuer) *Handler {
	return &Handler{
		Users:    users,
		Streams:  streams,
		Recorder: recorder,
		Resolver: resolver,
		Issuer:   issuer,
	}
}

// currentUser resolves the request's identity from the wallet header.
// Returns nil without error when no header is present.
func (h *Handler) currentUser(r *http.Request) (*models.User, error) {
	wallet := r.Header.Get("X-Wallet-Address")
	if wallet == "" {
		return nil, nil
	}
	user, err := h.Users.GetByWallet(r.Context(), wallet)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) *models.User {
	wallet := r.Header.Get("X-Wallet-Address")
	if wallet == "" {
		writeError(w, http.StatusUnauthorized, "wallet address required")
		return nil
	}
	user, err := h.Users.GetByWallet(r.Context(), wallet)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return nil
		}
		writeError(w, http.StatusInternalServerError, "lookup user failed")
		return nil
	}
	return user
}

// --- auth ---

type signupRequest struct {
	WalletAddress string  `json:"walletAddress"`
	Username      string  `json:"username"`
	Email         *string `json:"email,omitempty"`
}

type userResponse struct {
	ID            string  `json:"id"`
	WalletAddress string  `json:"walletAddress"`
	Username      string  `json:"username"`
	Email         *string `json:"email,omitempty"`
	IsCreator     bool    `json:"isCreator"`
	CreatedAt     string  `json:"createdAt"`
}

func toUserResponse(user *models.User) userResponse {
	return userResponse{
		ID:            user.ID,
		WalletAddress: user.WalletAddress,
		Username:      user.Username,
		Email:         user.Email,
		IsCreator:     user.IsCreator,
		CreatedAt:     user.CreatedAt.Format(time.RFC3339),
	}
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	user, err := h.Users.Signup(r.Context(), req.WalletAddress, req.Username, req.Email)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrMissingWallet), errors.Is(err, services.ErrUsernameRequired):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, services.ErrUserExists):
			writeError(w, http.StatusBadRequest, "user already exists with this wallet or username")
		default:
			writeError(w, http.StatusInternalServerError, "create account failed")
		}
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	user, err := h.Users.Login(r.Context(), req.WalletAddress, req.Username, req.Email)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrMissingWallet), errors.Is(err, services.ErrUsernameRequired):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "authenticate failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// --- streams ---

type createStreamRequest struct {
	RoomName    string       `json:"room_name,omitempty"`
	Title       string       `json:"title"`
	Description *string      `json:"description,omitempty"`
	Category    *string      `json:"category,omitempty"`
	Thumbnail   *string      `json:"thumbnail,omitempty"`
	Price       *json.Number `json:"price,omitempty"`
}

type streamResponse struct {
	ID              string  `json:"id"`
	RoomName        string  `json:"roomName"`
	CreatorID       string  `json:"creatorId"`
	Title           string  `json:"title"`
	Description     *string `json:"description,omitempty"`
	Category        *string `json:"category,omitempty"`
	Thumbnail       *string `json:"thumbnail,omitempty"`
	Price           *string `json:"price,omitempty"`
	PaymentRequired bool    `json:"paymentRequired"`
	IsLive          bool    `json:"isLive"`
	ViewerCount     int64   `json:"viewerCount"`
	StartedAt       string  `json:"startedAt"`
	EndedAt         string  `json:"endedAt,omitempty"`
}

func toStreamResponse(stream *models.Stream) streamResponse {
	resp := streamResponse{
		ID:              stream.ID,
		RoomName:        stream.RoomName,
		CreatorID:       stream.CreatorID,
		Title:           stream.Title,
		Description:     stream.Description,
		Category:        stream.Category,
		Thumbnail:       stream.Thumbnail,
		PaymentRequired: stream.PaymentRequired,
		IsLive:          stream.IsLive,
		ViewerCount:     stream.ViewerCount,
		StartedAt:       stream.StartedAt.Format(time.RFC3339),
	}
	if stream.Price != nil {
		v := stream.Price.String()
		resp.Price = &v
	}
	if stream.EndedAt != nil {
		resp.EndedAt = stream.EndedAt.Format(time.RFC3339)
	}
	return resp
}

func (h *Handler) CreateStream(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}

	var req createStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	params := services.CreateStreamParams{
		RoomName:    req.RoomName,
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Thumbnail:   req.Thumbnail,
	}
	if req.Price != nil {
		price, err := decimal.NewFromString(req.Price.String())
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid price")
			return
		}
		params.Price = &price
	}

	stream, err := h.Streams.CreateStream(r.Context(), user, params)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrMissingTitle), errors.Is(err, services.ErrInvalidPrice):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "create stream failed")
		}
		return
	}

	minted, _, err := h.Issuer.Issue(r.Context(), user, "", stream)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "issue host tokens failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stream":     toStreamResponse(stream),
		"auth_token": minted.APIToken,
		"room_token": minted.RoomToken,
	})
}

type updateStreamRequest struct {
	Title       *string      `json:"title,omitempty"`
	Description *string      `json:"description,omitempty"`
	Category    *string      `json:"category,omitempty"`
	Thumbnail   *string      `json:"thumbnail,omitempty"`
	Price       *json.Number `json:"price,omitempty"`
}

func (h *Handler) UpdateStream(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}

	var req updateStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	params := services.UpdateStreamParams{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Thumbnail:   req.Thumbnail,
	}
	if req.Price != nil {
		price, err := decimal.NewFromString(req.Price.String())
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid price")
			return
		}
		params.Price = &price
	}

	stream, err := h.Streams.UpdateStream(r.Context(), user, chi.URLParam(r, "streamId"), params)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "stream not found")
		case errors.Is(err, services.ErrNotOwner):
			writeError(w, http.StatusForbidden, "only the stream creator can edit it")
		case errors.Is(err, services.ErrMissingTitle):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "update stream failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, toStreamResponse(stream))
}

type stopStreamRequest struct {
	RoomName string `json:"roomName"`
}

func (h *Handler) StopStream(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}

	var req stopStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RoomName == "" {
		writeError(w, http.StatusBadRequest, "room name required")
		return
	}

	stream, err := h.Streams.StopStream(r.Context(), user, req.RoomName)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound), errors.Is(err, services.ErrStreamEnded):
			writeError(w, http.StatusNotFound, "stream not found or already ended")
		case errors.Is(err, services.ErrNotOwner):
			writeError(w, http.StatusForbidden, "only the stream creator can stop it")
		default:
			writeError(w, http.StatusInternalServerError, "stop stream failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, toStreamResponse(stream))
}

func (h *Handler) ListLive(w http.ResponseWriter, r *http.Request) {
	streams, err := h.Streams.ListLive(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list streams failed")
		return
	}
	out := make([]streamResponse, 0, len(streams))
	for _, stream := range streams {
		out = append(out, toStreamResponse(stream))
	}
	writeJSON(w, http.StatusOK, map[string]any{"streams": out})
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	streams, err := h.Streams.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	out := make([]streamResponse, 0, len(streams))
	for _, stream := range streams {
		out = append(out, toStreamResponse(stream))
	}
	writeJSON(w, http.StatusOK, map[string]any{"streams": out})
}

func (h *Handler) GetStream(w http.ResponseWriter, r *http.Request) {
	stream, err := h.Streams.Get(r.Context(), chi.URLParam(r, "streamId"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "stream not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get stream failed")
		return
	}
	writeJSON(w, http.StatusOK, toStreamResponse(stream))
}

func (h *Handler) GetStreamByRoom(w http.ResponseWriter, r *http.Request) {
	stream, err := h.Streams.GetByRoom(r.Context(), chi.URLParam(r, "roomName"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "stream not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get stream failed")
		return
	}
	writeJSON(w, http.StatusOK, toStreamResponse(stream))
}

// --- access & payments ---

type accessResponse struct {
	HasAccess       bool   `json:"hasAccess"`
	Reason          string `json:"reason"`
	PaymentRequired bool   `json:"paymentRequired"`
	Price           string `json:"price,omitempty"`
	PaymentID       string `json:"paymentId,omitempty"`
}

func toAccessResponse(decision access.Decision) accessResponse {
	resp := accessResponse{
		HasAccess:       decision.HasAccess,
		Reason:          string(decision.Reason),
		PaymentRequired: decision.PaymentRequired,
		PaymentID:       decision.PaymentID,
	}
	if !decision.HasAccess {
		resp.Price = decision.Price.String()
	}
	return resp
}

func (h *Handler) AccessStatus(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}

	stream, err := h.Streams.Get(r.Context(), chi.URLParam(r, "streamId"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "stream not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get stream failed")
		return
	}

	decision, err := h.Resolver.Resolve(r.Context(), user, stream)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "access check failed")
		return
	}
	writeJSON(w, http.StatusOK, toAccessResponse(decision))
}

type verifyPaymentRequest struct {
	StreamID        string      `json:"streamId"`
	TransactionHash string      `json:"transactionHash"`
	Amount          json.Number `json:"amount"`
	Asset           string      `json:"asset,omitempty"`
	Network         string      `json:"network,omitempty"`
}

type paymentResponse struct {
	ID              string `json:"id"`
	Amount          string `json:"amount"`
	AmountAtomic    int64  `json:"amountAtomic"`
	Status          string `json:"status"`
	TransactionHash string `json:"transactionHash"`
	Asset           string `json:"asset"`
	Network         string `json:"network"`
}

func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}

	var req verifyPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	amount, err := decimal.NewFromString(req.Amount.String())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	payment, alreadyVerified, err := h.Recorder.Record(r.Context(), payments.RecordRequest{
		StreamID:      req.StreamID,
		PayerID:       user.ID,
		SettlementRef: req.TransactionHash,
		Amount:        amount,
		Asset:         req.Asset,
		Network:       req.Network,
	})
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrStreamNotFound):
			writeError(w, http.StatusNotFound, "stream not found")
		case errors.Is(err, payments.ErrMissingReference), errors.Is(err, payments.ErrInvalidAmount):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "verify payment failed")
		}
		return
	}

	resp := map[string]any{
		"success": true,
		"payment": paymentResponse{
			ID:              payment.ID,
			Amount:          payment.Amount.String(),
			AmountAtomic:    payment.AmountAtomic,
			Status:          string(payment.Status),
			TransactionHash: payment.SettlementRef,
			Asset:           payment.Asset,
			Network:         payment.Network,
		},
	}
	if alreadyVerified {
		resp["message"] = "Payment already verified"
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- session tokens ---

type joinStreamRequest struct {
	RoomName string `json:"room_name"`
	Identity string `json:"identity"`
}

func (h *Handler) JoinStream(w http.ResponseWriter, r *http.Request) {
	var req joinStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RoomName == "" {
		writeError(w, http.StatusBadRequest, "room name required")
		return
	}

	user, err := h.currentUser(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup user failed")
		return
	}

	stream, err := h.Streams.GetByRoom(r.Context(), req.RoomName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "stream not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get stream failed")
		return
	}

	minted, decision, err := h.Issuer.Issue(r.Context(), user, req.Identity, stream)
	if err != nil {
		switch {
		case errors.Is(err, tokens.ErrAccessDenied):
			writeJSON(w, http.StatusPaymentRequired, errorResponse{
				Error:  "payment required",
				Reason: string(decision.Reason),
				Price:  decision.Price.String(),
			})
		case errors.Is(err, tokens.ErrMissingIdentity):
			writeError(w, http.StatusUnauthorized, "identity required")
		default:
			writeError(w, http.StatusInternalServerError, "join stream failed")
		}
		return
	}

	h.Streams.RecordJoin(r.Context(), stream, user)

	writeJSON(w, http.StatusOK, map[string]any{
		"auth_token": minted.APIToken,
		"room_token": minted.RoomToken,
		"reason":     string(decision.Reason),
		"stream":     toStreamResponse(stream),
	})
}

// Watch serves the gated watch resource; the payment gate in front of it has
// already verified and settled by the time this runs.
func (h *Handler) Watch(w http.ResponseWriter, r *http.Request) {
	stream, err := h.Streams.GetByRoom(r.Context(), chi.URLParam(r, "roomName"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "stream not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get stream failed")
		return
	}
	writeJSON(w, http.StatusOK, toStreamResponse(stream))
}

// --- creator ---

type creatorProfileRequest struct {
	ChannelName    string `json:"channelName"`
	PaymentAddress string `json:"paymentAddress"`
}

func (h *Handler) SaveCreatorProfile(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}

	var req creatorProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	profile, err := h.Users.SaveCreatorProfile(r.Context(), user.ID, req.ChannelName, req.PaymentAddress)
	if err != nil {
		if errors.Is(err, services.ErrInvalidPayoutAddress) {
			writeError(w, http.StatusBadRequest, "invalid payout address")
			return
		}
		writeError(w, http.StatusInternalServerError, "save profile failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"channelName":    profile.ChannelName,
		"paymentAddress": profile.PaymentAddress,
	})
}

type earningsPaymentResponse struct {
	ID              string `json:"id"`
	StreamID        string `json:"streamId"`
	PayerUsername   string `json:"payerUsername,omitempty"`
	Amount          string `json:"amount"`
	Asset           string `json:"asset"`
	Network         string `json:"network"`
	TransactionHash string `json:"transactionHash"`
	CreatedAt       string `json:"createdAt"`
}

func (h *Handler) CreatorEarnings(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}

	summary, err := h.Users.Earnings(r.Context(), user)
	if err != nil {
		if errors.Is(err, services.ErrNotCreator) {
			writeError(w, http.StatusForbidden, "user is not a creator")
			return
		}
		writeError(w, http.StatusInternalServerError, "earnings lookup failed")
		return
	}

	history := make([]earningsPaymentResponse, 0, len(summary.History))
	for _, entry := range summary.History {
		history = append(history, earningsPaymentResponse{
			ID:              entry.Payment.ID,
			StreamID:        entry.Payment.StreamID,
			PayerUsername:   entry.PayerUsername,
			Amount:          entry.Payment.Amount.String(),
			Asset:           entry.Payment.Asset,
			Network:         entry.Payment.Network,
			TransactionHash: entry.Payment.SettlementRef,
			CreatedAt:       entry.Payment.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"totalEarnings": summary.Total.String(),
		"paymentCount":  summary.Payments,
		"payments":      history,
	})
}

func (h *Handler) CreatorTokens(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	if !user.IsCreator {
		writeError(w, http.StatusForbidden, "user is not a creator")
		return
	}

	stream, err := h.Streams.ActiveByCreator(r.Context(), user.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no active stream found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get stream failed")
		return
	}

	minted, _, err := h.Issuer.Issue(r.Context(), user, "", stream)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "issue tokens failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"auth_token": minted.APIToken,
		"room_token": minted.RoomToken,
		"stream":     toStreamResponse(stream),
	})
}

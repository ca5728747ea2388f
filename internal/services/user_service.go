package services

import (
	"context"
	"errors"
	"time"

	"streamgate/internal/models"
	"streamgate/internal/store"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrMissingWallet        = errors.New("missing wallet address")
	ErrUserExists           = errors.New("user already exists")
	ErrUsernameRequired     = errors.New("username required for new accounts")
	ErrInvalidPayoutAddress = errors.New("invalid payout address")
	ErrNotCreator           = errors.New("user is not a creator")
)

type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, userID string) (*models.User, error)
	GetUserByWallet(ctx context.Context, walletAddress string) (*models.User, error)
	UserExists(ctx context.Context, walletAddress, username string) (bool, error)
	SetCreator(ctx context.Context, userID string) error
	UpsertCreatorProfile(ctx context.Context, profile *models.CreatorProfile) error
	GetCreatorProfile(ctx context.Context, userID string) (*models.CreatorProfile, error)
	SumEarningsByCreator(ctx context.Context, creatorID string) (decimal.Decimal, int64, error)
	ListPaymentsByCreator(ctx context.Context, creatorID string) ([]*models.Payment, error)
}

type UserService struct {
	Store UserStore
}

func (s UserService) Signup(ctx context.Context, walletAddress, username string, email *string) (*models.User, error) {
	if walletAddress == "" {
		return nil, ErrMissingWallet
	}
	if len(username) < 3 {
		return nil, ErrUsernameRequired
	}

	exists, err := s.Store.UserExists(ctx, walletAddress, username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrUserExists
	}

	user := &models.User{
		ID:            uuid.NewString(),
		WalletAddress: walletAddress,
		Username:      username,
		Email:         email,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.Store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login finds the user for a wallet address, creating the account on first
// contact when a username is supplied.
func (s UserService) Login(ctx context.Context, walletAddress, username string, email *string) (*models.User, error) {
	if walletAddress == "" {
		return nil, ErrMissingWallet
	}

	user, err := s.Store.GetUserByWallet(ctx, walletAddress)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if username == "" {
		return nil, ErrUsernameRequired
	}
	return s.Signup(ctx, walletAddress, username, email)
}

func (s UserService) GetByWallet(ctx context.Context, walletAddress string) (*models.User, error) {
	if walletAddress == "" {
		return nil, ErrMissingWallet
	}
	return s.Store.GetUserByWallet(ctx, walletAddress)
}

// SaveCreatorProfile registers a payout address and flips the account into a
// creator. The address must decode to a 32-byte base58 key; a bad payee here
// would silently swallow every later payment.
func (s UserService) SaveCreatorProfile(ctx context.Context, userID, channelName, paymentAddress string) (*models.CreatorProfile, error) {
	if err := ValidatePayoutAddress(paymentAddress); err != nil {
		return nil, err
	}

	profile := &models.CreatorProfile{
		UserID:         userID,
		ChannelName:    channelName,
		PaymentAddress: paymentAddress,
		UpdatedAt:      time.Now().UTC(),
	}
	if err := s.Store.UpsertCreatorProfile(ctx, profile); err != nil {
		return nil, err
	}
	if err := s.Store.SetCreator(ctx, userID); err != nil {
		return nil, err
	}
	return profile, nil
}

// PayoutAddress returns the creator's registered payment address, or "" when
// no profile exists yet (callers fall back to the platform address).
func (s UserService) PayoutAddress(ctx context.Context, userID string) (string, error) {
	profile, err := s.Store.GetCreatorProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return profile.PaymentAddress, nil
}

type EarningsPayment struct {
	Payment       *models.Payment
	PayerUsername string
}

type EarningsSummary struct {
	Total    decimal.Decimal
	Payments int64
	History  []EarningsPayment
}

// Earnings totals a creator's completed payments and lists them newest
// first, with each payer's username resolved for display. A payer account
// deleted since the payment keeps its row with an empty username.
func (s UserService) Earnings(ctx context.Context, creator *models.User) (*EarningsSummary, error) {
	if !creator.IsCreator {
		return nil, ErrNotCreator
	}
	total, count, err := s.Store.SumEarningsByCreator(ctx, creator.ID)
	if err != nil {
		return nil, err
	}

	rows, err := s.Store.ListPaymentsByCreator(ctx, creator.ID)
	if err != nil {
		return nil, err
	}

	usernames := map[string]string{}
	history := make([]EarningsPayment, 0, len(rows))
	for _, payment := range rows {
		name, ok := usernames[payment.PayerID]
		if !ok {
			payer, err := s.Store.GetUser(ctx, payment.PayerID)
			switch {
			case err == nil:
				name = payer.Username
			case errors.Is(err, store.ErrNotFound):
				name = ""
			default:
				return nil, err
			}
			usernames[payment.PayerID] = name
		}
		history = append(history, EarningsPayment{Payment: payment, PayerUsername: name})
	}

	return &EarningsSummary{Total: total, Payments: count, History: history}, nil
}

// ValidatePayoutAddress checks that an address is a base58-encoded 32-byte
// public key.
func ValidatePayoutAddress(addr string) error {
	if addr == "" {
		return ErrInvalidPayoutAddress
	}
	decoded := base58.Decode(addr)
	if len(decoded) != 32 {
		return ErrInvalidPayoutAddress
	}
	return nil
}

package store

import (
	"context"
	"database/sql"

	"streamgate/internal/models"
)

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO users (user_id, wallet_address, username, email, is_creator)
		VALUES ($1,$2,$3,$4,$5)
	`,
		user.ID,
		user.WalletAddress,
		user.Username,
		user.Email,
		user.IsCreator,
	)
	return err
}

func (s *Store) GetUserByWallet(ctx context.Context, walletAddress string) (*models.User, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT user_id, wallet_address, username, email, is_creator, created_at
		FROM users WHERE wallet_address=$1
	`, walletAddress)
	return scanUser(row)
}

func (s *Store) GetUser(ctx context.Context, userID string) (*models.User, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT user_id, wallet_address, username, email, is_creator, created_at
		FROM users WHERE user_id=$1
	`, userID)
	return scanUser(row)
}

func (s *Store) UserExists(ctx context.Context, walletAddress, username string) (bool, error) {
	var exists bool
	row := s.Pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM users WHERE wallet_address=$1 OR username=$2)
	`, walletAddress, username)
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (s *Store) SetCreator(ctx context.Context, userID string) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE users SET is_creator=TRUE WHERE user_id=$1
	`, userID)
	return err
}

func (s *Store) UpsertCreatorProfile(ctx context.Context, profile *models.CreatorProfile) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO creator_profiles (user_id, channel_name, payment_address)
		VALUES ($1,$2,$3)
		ON CONFLICT (user_id) DO UPDATE
		SET channel_name=EXCLUDED.channel_name,
			payment_address=EXCLUDED.payment_address,
			updated_at=now()
	`,
		profile.UserID,
		profile.ChannelName,
		profile.PaymentAddress,
	)
	return err
}

func (s *Store) GetCreatorProfile(ctx context.Context, userID string) (*models.CreatorProfile, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT user_id, channel_name, payment_address, updated_at
		FROM creator_profiles WHERE user_id=$1
	`, userID)

	var profile models.CreatorProfile
	if err := row.Scan(
		&profile.UserID,
		&profile.ChannelName,
		&profile.PaymentAddress,
		&profile.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &profile, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var user models.User
	var email sql.NullString

	if err := row.Scan(
		&user.ID,
		&user.WalletAddress,
		&user.Username,
		&email,
		&user.IsCreator,
		&user.CreatedAt,
	); err != nil {
		return nil, err
	}
	if email.Valid {
		user.Email = &email.String
	}
	return &user, nil
}

package tokens

import (
	"context"
	"errors"
	"time"

	"streamgate/internal/access"
	"streamgate/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrAccessDenied    = errors.New("access denied")
	ErrMissingIdentity = errors.New("identity is required")
)

type AccessChecker interface {
	Resolve(ctx context.Context, viewer *models.User, stream *models.Stream) (access.Decision, error)
}

// VideoGrant is the capability claim the room service consumes. This
// platform sets it and never interprets it further.
type VideoGrant struct {
	Room           string `json:"room"`
	RoomJoin       bool   `json:"roomJoin"`
	CanPublish     bool   `json:"canPublish"`
	CanSubscribe   bool   `json:"canSubscribe"`
	CanPublishData bool   `json:"canPublishData"`
}

type roomClaims struct {
	Video VideoGrant `json:"video"`
	jwt.RegisteredClaims
}

type apiClaims struct {
	Room     string `json:"room"`
	Identity string `json:"identity"`
	jwt.RegisteredClaims
}

type SessionTokens struct {
	APIToken  string
	RoomToken string
}

type Issuer struct {
	APIKey       string
	APISecret    string
	Access       AccessChecker
	APITokenTTL  time.Duration
	RoomTokenTTL time.Duration
}

// Issue mints session credentials for identity on stream. Access is
// re-resolved here, immediately before minting, never from a decision the
// caller cached: a denial can flip to a grant while a page sits open.
// Re-issuing for the same identity and room is side-effect-free.
func (i *Issuer) Issue(ctx context.Context, viewer *models.User, identity string, stream *models.Stream) (*SessionTokens, access.Decision, error) {
	if identity == "" && viewer != nil {
		identity = viewer.WalletAddress
	}
	if identity == "" {
		return nil, access.Decision{}, ErrMissingIdentity
	}

	decision, err := i.Access.Resolve(ctx, viewer, stream)
	if err != nil {
		return nil, access.Decision{}, err
	}
	if !decision.HasAccess {
		return nil, decision, ErrAccessDenied
	}

	publish := decision.Reason == access.ReasonCreator

	roomToken, err := i.mintRoomToken(identity, stream.RoomName, publish)
	if err != nil {
		return nil, decision, err
	}
	apiToken, err := i.mintAPIToken(identity, stream.RoomName)
	if err != nil {
		return nil, decision, err
	}

	return &SessionTokens{APIToken: apiToken, RoomToken: roomToken}, decision, nil
}

func (i *Issuer) mintRoomToken(identity, roomName string, publish bool) (string, error) {
	now := time.Now()
	claims := roomClaims{
		Video: VideoGrant{
			Room:           roomName,
			RoomJoin:       true,
			CanPublish:     publish,
			CanSubscribe:   true,
			CanPublishData: true,
		},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.APIKey,
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.RoomTokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(i.APISecret))
}

func (i *Issuer) mintAPIToken(identity, roomName string) (string, error) {
	now := time.Now()
	claims := apiClaims{
		Room:     roomName,
		Identity: identity,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.APIKey,
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.APITokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(i.APISecret))
}

// VerifyAPIToken parses a platform API token and returns the room and
// identity it is scoped to.
func (i *Issuer) VerifyAPIToken(tokenString string) (room, identity string, err error) {
	token, err := jwt.ParseWithClaims(tokenString, &apiClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(i.APISecret), nil
	})
	if err != nil {
		return "", "", err
	}
	claims, ok := token.Claims.(*apiClaims)
	if !ok || !token.Valid {
		return "", "", errors.New("invalid token claims")
	}
	return claims.Room, claims.Identity, nil
}

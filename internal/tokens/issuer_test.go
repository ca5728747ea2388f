package tokens

import (
	"context"
	"testing"
	"time"

	"streamgate/internal/access"
	"streamgate/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedAccess struct {
	decision access.Decision
	calls    int
}

func (f *fixedAccess) Resolve(_ context.Context, _ *models.User, _ *models.Stream) (access.Decision, error) {
	f.calls++
	return f.decision, nil
}

func testIssuer(checker AccessChecker) *Issuer {
	return &Issuer{
		APIKey:       "api-key",
		APISecret:    "api-secret-for-tests",
		Access:       checker,
		APITokenTTL:  time.Hour,
		RoomTokenTTL: 4 * time.Hour,
	}
}

func testStream() *models.Stream {
	return &models.Stream{ID: "stream-1", RoomName: "room-1", CreatorID: "creator-1", IsLive: true}
}

func parseRoomGrant(t *testing.T, issuer *Issuer, tokenString string) VideoGrant {
	t.Helper()
	token, err := jwt.ParseWithClaims(tokenString, &roomClaims{}, func(token *jwt.Token) (any, error) {
		return []byte(issuer.APISecret), nil
	})
	require.NoError(t, err)
	require.True(t, token.Valid)
	return token.Claims.(*roomClaims).Video
}

func TestIssueRefusedWhenDenied(t *testing.T) {
	checker := &fixedAccess{decision: access.Decision{HasAccess: false, Reason: access.ReasonPaymentRequired}}
	issuer := testIssuer(checker)

	minted, decision, err := issuer.Issue(context.Background(), &models.User{ID: "viewer-1", WalletAddress: "wallet-v"}, "", testStream())
	assert.ErrorIs(t, err, ErrAccessDenied)
	assert.Nil(t, minted)
	assert.Equal(t, access.ReasonPaymentRequired, decision.Reason)
}

func TestIssueViewerGrants(t *testing.T) {
	checker := &fixedAccess{decision: access.Decision{HasAccess: true, Reason: access.ReasonPaid}}
	issuer := testIssuer(checker)

	minted, _, err := issuer.Issue(context.Background(), &models.User{ID: "viewer-1", WalletAddress: "wallet-v"}, "", testStream())
	require.NoError(t, err)
	require.NotNil(t, minted)
	assert.Equal(t, 1, checker.calls, "access resolved at issuance time")

	grant := parseRoomGrant(t, issuer, minted.RoomToken)
	assert.Equal(t, "room-1", grant.Room)
	assert.True(t, grant.RoomJoin)
	assert.True(t, grant.CanSubscribe)
	assert.True(t, grant.CanPublishData)
	assert.False(t, grant.CanPublish, "viewers never publish")

	room, identity, err := issuer.VerifyAPIToken(minted.APIToken)
	require.NoError(t, err)
	assert.Equal(t, "room-1", room)
	assert.Equal(t, "wallet-v", identity)
}

func TestIssueCreatorCanPublish(t *testing.T) {
	checker := &fixedAccess{decision: access.Decision{HasAccess: true, Reason: access.ReasonCreator}}
	issuer := testIssuer(checker)

	minted, _, err := issuer.Issue(context.Background(), &models.User{ID: "creator-1", WalletAddress: "wallet-c"}, "", testStream())
	require.NoError(t, err)

	grant := parseRoomGrant(t, issuer, minted.RoomToken)
	assert.True(t, grant.CanPublish)
}

func TestIssueRequiresIdentity(t *testing.T) {
	checker := &fixedAccess{decision: access.Decision{HasAccess: true, Reason: access.ReasonFree}}
	issuer := testIssuer(checker)

	_, _, err := issuer.Issue(context.Background(), nil, "", testStream())
	assert.ErrorIs(t, err, ErrMissingIdentity)

	minted, _, err := issuer.Issue(context.Background(), nil, "guest-7", testStream())
	require.NoError(t, err)
	_, identity, err := issuer.VerifyAPIToken(minted.APIToken)
	require.NoError(t, err)
	assert.Equal(t, "guest-7", identity)
}

func TestReissueIsSafe(t *testing.T) {
	checker := &fixedAccess{decision: access.Decision{HasAccess: true, Reason: access.ReasonPaid}}
	issuer := testIssuer(checker)
	viewer := &models.User{ID: "viewer-1", WalletAddress: "wallet-v"}

	first, _, err := issuer.Issue(context.Background(), viewer, "", testStream())
	require.NoError(t, err)
	second, _, err := issuer.Issue(context.Background(), viewer, "", testStream())
	require.NoError(t, err)

	for _, minted := range []*SessionTokens{first, second} {
		_, identity, err := issuer.VerifyAPIToken(minted.APIToken)
		require.NoError(t, err)
		assert.Equal(t, "wallet-v", identity)
	}
}

func TestVerifyAPITokenRejectsForgery(t *testing.T) {
	issuer := testIssuer(&fixedAccess{decision: access.Decision{HasAccess: true, Reason: access.ReasonFree}})
	other := testIssuer(&fixedAccess{decision: access.Decision{HasAccess: true, Reason: access.ReasonFree}})
	other.APISecret = "a-different-secret"

	minted, _, err := other.Issue(context.Background(), nil, "guest-1", testStream())
	require.NoError(t, err)

	_, _, err = issuer.VerifyAPIToken(minted.APIToken)
	assert.Error(t, err)
}

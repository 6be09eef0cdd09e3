package reconcile

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenPair 是發給前端的存取/更新權杖
type TokenPair struct {
	Access  string
	Refresh string
}

type tokenIssuerOptions struct {
	accessTTL  time.Duration
	refreshTTL time.Duration
}

type TokenIssuerOption func(*tokenIssuerOptions)

// WithAccessTokenTTL 設置存取權杖的有效期間
func WithAccessTokenTTL(d time.Duration) TokenIssuerOption {
	return func(o *tokenIssuerOptions) {
		o.accessTTL = d
	}
}

// WithRefreshTokenTTL 設置更新權杖的有效期間
func WithRefreshTokenTTL(d time.Duration) TokenIssuerOption {
	return func(o *tokenIssuerOptions) {
		o.refreshTTL = d
	}
}

// TokenIssuer 以 Ed25519 簽發使用者的存取/更新權杖
// launch 抵達 Finish 狀態(或需要前端接手建課)時簽發，
// 前端帶著權杖呼叫其餘 API
type TokenIssuer struct {
	key     ed25519.PrivateKey
	issuer  string
	options tokenIssuerOptions
}

// NewTokenIssuer 建立權杖簽發器
func NewTokenIssuer(key ed25519.PrivateKey, issuer string, opts ...TokenIssuerOption) *TokenIssuer {
	options := tokenIssuerOptions{
		accessTTL:  15 * time.Minute,
		refreshTTL: 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &TokenIssuer{
		key:     key,
		issuer:  issuer,
		options: options,
	}
}

// RefreshTTL 回傳更新權杖的有效期間
// launch session 的 TTL 跟著它走
func (i *TokenIssuer) RefreshTTL() time.Duration {
	return i.options.refreshTTL
}

// IssuePair 為使用者簽發一組存取/更新權杖
func (i *TokenIssuer) IssuePair(userID uuid.UUID) (*TokenPair, error) {
	const op = "TokenIssuer.IssuePair"

	access, err := i.sign(userID, "access", i.options.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to sign access token, err=%w", op, err)
	}
	refresh, err := i.sign(userID, "refresh", i.options.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to sign refresh token, err=%w", op, err)
	}
	return &TokenPair{Access: access, Refresh: refresh}, nil
}

func (i *TokenIssuer) sign(userID uuid.UUID, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.MapClaims{
		"iss":        i.issuer,
		"sub":        userID.String(),
		"iat":        jwt.NewNumericDate(now),
		"exp":        jwt.NewNumericDate(now.Add(ttl)),
		"jti":        uuid.NewString(),
		"token_type": tokenType,
	})
	return token.SignedString(i.key)
}

// ParseUserID 驗證權杖並取出使用者編號
func (i *TokenIssuer) ParseUserID(raw, wantType string) (uuid.UUID, error) {
	const op = "TokenIssuer.ParseUserID"

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return i.key.Public(), nil
	}, jwt.WithIssuer(i.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return uuid.Nil, fmt.Errorf("[%s] Fail to parse token, err=%w", op, err)
	}
	if tokenType, _ := claims["token_type"].(string); tokenType != wantType {
		return uuid.Nil, fmt.Errorf("[%s] Unexpected token type %q", op, tokenType)
	}
	subject, err := claims.GetSubject()
	if err != nil {
		return uuid.Nil, fmt.Errorf("[%s] Fail to read subject, err=%w", op, err)
	}
	userID, err := uuid.Parse(subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("[%s] Fail to parse subject as uuid, err=%w", op, err)
	}
	return userID, nil
}

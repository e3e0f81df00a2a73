package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"invigilation/internal/apperrors"
)

// Token is a signed access token.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Claims represents JWT payload.
type Claims struct {
	FacultyID int64 `json:"fid"`
	Admin     bool  `json:"adm"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies access tokens.
type Issuer struct {
	Name string
	Key  []byte
	TTL  time.Duration
	Now  func() time.Time
}

// NewIssuer builds an HS256 issuer.
func NewIssuer(name, key string, ttl time.Duration) *Issuer {
	return &Issuer{Name: name, Key: []byte(key), TTL: ttl, Now: time.Now}
}

// Issue signs an access token for a faculty.
func (i *Issuer) Issue(facultyID int64, admin bool) (Token, error) {
	now := i.Now()
	exp := now.Add(i.TTL)

	claims := Claims{
		FacultyID: facultyID,
		Admin:     admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.Name,
			Subject:   strconv.FormatInt(facultyID, 10),
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.Key)
	if err != nil {
		return Token{}, err
	}
	return Token{AccessToken: signed, ExpiresAt: exp}, nil
}

// Parse validates a token and returns claims. Expired tokens map to
// apperrors.ErrUnauthenticated, anything else unusable to ErrInvalidToken.
func (i *Issuer) Parse(tokenStr string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return i.Key, nil
	}, jwt.WithTimeFunc(i.Now), jwt.WithIssuer(i.Name))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, apperrors.New(apperrors.ErrUnauthenticated, "Token has expired")
		}
		return Claims{}, apperrors.New(apperrors.ErrInvalidToken, "Invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.FacultyID == 0 {
		return Claims{}, apperrors.New(apperrors.ErrInvalidToken, "Invalid token")
	}
	return *claims, nil
}

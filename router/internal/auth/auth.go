package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const issuer = "txnroute"

// Settings selects the authentication mode and its credentials.
type Settings struct {
	Mode   string // apikey | jwt | none
	Header string // lowercase header/metadata key for apikey mode
	Key    string // expected API key
	Secret string // HMAC secret for jwt mode
}

// enabled reports whether credentials must be checked at all.
func (s Settings) enabled() bool {
	switch s.Mode {
	case "apikey":
		return s.Key != ""
	case "jwt":
		return s.Secret != ""
	default:
		return false
	}
}

var errUnauthenticated = errors.New("unauthenticated")

// check validates the credential found by lookup.
func (s Settings) check(lookup func(string) string) error {
	switch s.Mode {
	case "apikey":
		if v := lookup(s.Header); v == "" || v != s.Key {
			return fmt.Errorf("%w: invalid api key", errUnauthenticated)
		}
	case "jwt":
		token, ok := strings.CutPrefix(lookup("authorization"), "Bearer ")
		if !ok || token == "" {
			return fmt.Errorf("%w: missing bearer token", errUnauthenticated)
		}
		if _, err := ValidateToken(token, s.Secret); err != nil {
			return fmt.Errorf("%w: invalid token", errUnauthenticated)
		}
	}
	return nil
}

// UnaryInterceptor returns a gRPC interceptor enforcing s on every call.
func UnaryInterceptor(s Settings) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if !s.enabled() {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}
		err := s.check(func(key string) string {
			if vals := md.Get(key); len(vals) > 0 {
				return vals[0]
			}
			return ""
		})
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		return handler(ctx, req)
	}
}

// Middleware returns an HTTP middleware enforcing s. Failures get a JSON 401.
func Middleware(s Settings) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !s.enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := s.check(r.Header.Get); err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				fmt.Fprintf(w, "{\"error\":%q}\n", err.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Claims are the JWT claims accepted by the router.
type Claims struct {
	Client string `json:"client"`
	jwt.RegisteredClaims
}

// GenerateToken signs an HS256 token for client valid for ttl.
func GenerateToken(client, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Client: client,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ValidateToken checks signature, expiry and issuer and returns the client name.
func ValidateToken(tokenString, secret string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	return claims.Client, nil
}

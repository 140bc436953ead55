package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/asdine/storm/v3"
	"github.com/dgrijalva/jwt-go"
	"github.com/go-chi/render"
	"golang.org/x/crypto/bcrypt"
)

var (
	JWT_HMAC_SECRET []byte        = []byte("xWumOlRfhu+LBi2F2e1yF4FiaopQ5mr8klL4fpILnlI=")
	JWT_LIFESPAN    time.Duration = time.Hour
)

type contextKey string

const jwtContextKey contextKey = "jwt"

//---
// Structs
//

// Represents a local operator. Only admins may drive lifecycle transitions.
type User struct {
	ID       int    `storm:"increment"` // pk
	Email    string `storm:"unique"`
	Name     string
	Password string
	Admin    bool
}

// Sets the User.Password to the hashed value for the provided plain text
func (u *User) SetPassword(pass []byte) error {
	hash, err := bcrypt.GenerateFromPassword(pass, bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hash)
	return nil
}

// Compares User.Password with the provided plain text.
// Returns values directly as provided by the bcrypt library for downstream processing.
func (u *User) VerifyPassword(pass []byte) error {
	return bcrypt.CompareHashAndPassword([]byte(u.Password), pass)
}

//---
// Generic payloads
//---

// Login payload
type LoginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (l *LoginPayload) Bind(r *http.Request) error {
	if l.Email == "" {
		return errors.New("email is required")
	}
	return nil
}

type JWTPayload struct {
	SignedToken string `json:"token"`
}

//---
// Helper functions
//

// Produce a standard format JWT token
func newJWT(sub string) (ts string, err error) {
	now := time.Now().UTC()
	claims := jwt.StandardClaims{
		Issuer:    ENV.JWT_ISSUER,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(JWT_LIFESPAN).Unix(),
		Subject:   sub,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	return token.SignedString(JWT_HMAC_SECRET)
}

func claimsFrom(ctx context.Context) (claims *jwt.StandardClaims, ok bool) {
	token, ok := ctx.Value(jwtContextKey).(*jwt.Token)
	if !ok {
		return nil, false
	}
	claims, ok = token.Claims.(*jwt.StandardClaims)
	return
}

//---
// Views
//---

// Login looks up a user, verifies password and returns response
func Login(w http.ResponseWriter, r *http.Request) {
	data := &LoginPayload{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	var user User
	if err := ENV.DB.One("Email", data.Email, &user); err != nil {
		if err == storm.ErrNotFound {
			render.Render(w, r, ErrNotFound)
			return
		}
		render.Render(w, r, ErrRender(err))
		return
	}

	err := user.VerifyPassword([]byte(data.Password))
	if err != nil {
		if err == bcrypt.ErrMismatchedHashAndPassword {
			render.Render(w, r, ErrPermissionDenied(errors.New("Invalid password")))
			return
		}
		render.Render(w, r, ErrRender(err))
		return
	}

	tokenString, err := newJWT(user.Email)
	if err != nil {
		render.Render(w, r, ErrRender(err))
		return
	}

	ENV.Log.WithField("user", user.Email).Info("operator logged in")
	render.JSON(w, r, JWTPayload{tokenString})
}

// Provides a new token to the client
func JWTRefresh(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		render.Render(w, r, ErrUnauthorized(JWTEmpty))
		return
	}

	tokenString, err := newJWT(claims.Subject)
	if err != nil {
		render.Render(w, r, ErrRender(err))
		return
	}

	render.JSON(w, r, JWTPayload{tokenString})
}

//---
// Authentication middleware
//---

var (
	JWTEmpty     = errors.New("Bearer token not provided")
	JWTNotAdmin  = errors.New("Operator is not allowed to control the rig")
	JWTBadMethod = errors.New("Unexpected signing method")
)

func tokenFromRequest(r *http.Request) (tokenStr string) {
	// query params first, browsers cannot set headers on websockets
	tokenStr = r.URL.Query().Get("jwt")

	if tokenStr == "" {
		bearer := r.Header.Get("Authorization")
		if len(bearer) > 7 && strings.ToUpper(bearer[0:6]) == "BEARER" {
			tokenStr = bearer[7:]
		}
	}

	if tokenStr == "" {
		cookie, err := r.Cookie("jwt")
		if err == nil {
			tokenStr = cookie.Value
		}
	}
	return
}

func ValidateJWT(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := tokenFromRequest(r)
		if tokenStr == "" {
			render.Render(w, r, ErrUnauthorized(JWTEmpty))
			return
		}

		token, err := jwt.ParseWithClaims(tokenStr,
			&jwt.StandardClaims{},
			func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, JWTBadMethod
				}
				return JWT_HMAC_SECRET, nil
			})

		if err != nil {
			reason := errors.New("Invalid token")
			if jwterr, ok := err.(*jwt.ValidationError); ok && jwterr.Errors&jwt.ValidationErrorExpired != 0 {
				reason = errors.New("Token has expired")
			}
			render.Render(w, r, ErrUnauthorized(reason))
			return
		}

		if !token.Valid {
			render.Render(w, r, ErrUnauthorized(errors.New("Invalid token")))
			return
		}

		ctx := context.WithValue(r.Context(), jwtContextKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin must run after ValidateJWT.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsFrom(r.Context())
		if !ok {
			render.Render(w, r, ErrUnauthorized(JWTEmpty))
			return
		}

		var user User
		if err := ENV.DB.One("Email", claims.Subject, &user); err != nil || !user.Admin {
			render.Render(w, r, ErrPermissionDenied(JWTNotAdmin))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// analytics/handlers/auth_handlers.go
package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"bahr/analytics/models"
	"bahr/analytics/store"
	"bahr/analytics/utils"
)

// OperatorStore persists dashboard operator accounts.
type OperatorStore interface {
	CreateUser(ctx context.Context, email string, hashedPassword []byte) (*models.Operator, error)
	GetUserByEmail(ctx context.Context, email string) (*models.Operator, error)
}

type AuthHandlers struct {
	Users        OperatorStore
	Tokens       *utils.TokenIssuer
	SecureCookie bool
}

func NewAuthHandlers(users OperatorStore, tokens *utils.TokenIssuer) *AuthHandlers {
	return &AuthHandlers{Users: users, Tokens: tokens}
}

func (h *AuthHandlers) Signup(c *gin.Context) {
	var req models.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("ERROR: Failed to hash password for %s: %v", req.Email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process password"})
		return
	}

	op, err := h.Users.CreateUser(c.Request.Context(), req.Email, hashed)
	if err != nil {
		if errors.Is(err, store.ErrUserExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "Operator with this email already exists"})
			return
		}
		log.Printf("ERROR: Failed to create operator %s: %v", req.Email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register operator"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Operator registered successfully", "email": op.Email})
}

// Login checks credentials and issues a JWT, both as a cookie and in the body.
func (h *AuthHandlers) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	op, err := h.Users.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, store.ErrUserNotFound) {
			log.Printf("ERROR: Operator lookup failed for %s: %v", req.Email, err)
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	if err := bcrypt.CompareHashAndPassword(op.HashedPassword, []byte(req.Password)); err != nil {
		log.Printf("Login failed for %s: password mismatch", req.Email)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, expiresAt, err := h.Tokens.Generate(op)
	if err != nil {
		log.Printf("ERROR: Failed to generate JWT for operator %d: %v", op.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate authentication token"})
		return
	}

	c.SetCookie(utils.TokenCookie, token, int(h.Tokens.TTL().Seconds()), "/", "", h.SecureCookie, true)
	c.JSON(http.StatusOK, models.LoginResponse{
		Message:   "Login successful",
		Email:     op.Email,
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

func (h *AuthHandlers) Logout(c *gin.Context) {
	c.SetCookie(utils.TokenCookie, "", -1, "/", "", h.SecureCookie, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

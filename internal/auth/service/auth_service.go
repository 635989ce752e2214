package service

import (
	"errors"
	"fmt"
	"log"

	"github.com/wahaj4311/microservices-demo/internal/auth/domain"
	"github.com/wahaj4311/microservices-demo/internal/shared/authn"
	"github.com/wahaj4311/microservices-demo/internal/shared/types"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type UserRepository interface {
	Create(user *types.User, passwordHash string) error
	GetByUsername(username string) (*types.User, string, error)
	GetByID(userID uuid.UUID) (*types.User, error)
}

type AuthService struct {
	userRepo UserRepository
	tokens   *authn.TokenManager
}

func NewAuthService(userRepo UserRepository, tokens *authn.TokenManager) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		tokens:   tokens,
	}
}

func (s *AuthService) Register(request domain.RegisterRequest) (*types.User, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(request.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("password hashing error: %v", err)
	}

	user := domain.NewUser(request.Username, request.Email)
	if err := s.userRepo.Create(user, string(hash)); err != nil {
		return nil, err
	}

	log.Printf("User registered: ID=%s, Username=%s", user.ID, user.Username)
	return user, nil
}

// Login verifies the password and issues a bearer token. Unknown user
// and wrong password are indistinguishable to the caller.
func (s *AuthService) Login(request domain.LoginRequest) (string, *types.User, error) {
	user, passwordHash, err := s.userRepo.GetByUsername(request.Username)
	if errors.Is(err, domain.ErrUserNotFound) {
		return "", nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(request.Password)); err != nil {
		return "", nil, domain.ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID, user.Username)
	if err != nil {
		return "", nil, fmt.Errorf("token issue error: %v", err)
	}

	return token, user, nil
}

func (s *AuthService) GetUser(userID uuid.UUID) (*types.User, error) {
	return s.userRepo.GetByID(userID)
}

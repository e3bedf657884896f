package services

import (
	"errors"
	"net/http"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/gatewatch/gate_api/dto"
	"github.com/gatewatch/gate_api/model"
	"github.com/gatewatch/gate_api/shared"
)

type AuthService struct {
	appContext.DefaultService

	sqlSvc *PostgresService
	jwtSvc *JWTService
}

const AUTH_SVC = "auth_svc"

func (svc AuthService) Id() string {
	return AUTH_SVC
}

func (svc *AuthService) Start() error {
	svc.sqlSvc = svc.Service(POSTGRES_SVC).(*PostgresService)
	svc.jwtSvc = svc.Service(JWT_SVC).(*JWTService)
	return nil
}

func (svc *AuthService) Register(req dto.RegisterRequest) (*dto.RegisterResponse, error) {
	var existing model.User
	err := svc.sqlSvc.Db().
		Where("email = ? OR username = ?", req.Email, req.Username).
		First(&existing).Error
	if err == nil {
		return nil, shared.NewAppError(http.StatusConflict, "Email or username already registered")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, svc.sqlSvc.HandleError(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &model.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: string(hash),
		Role:         shared.RoleUser,
		TenantID:     req.TenantID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := svc.sqlSvc.Db().Create(user).Error; err != nil {
		return nil, svc.sqlSvc.HandleError(err)
	}

	log.WithFields(log.Fields{"user_id": user.ID, "username": user.Username}).Info("User registered")

	return &dto.RegisterResponse{
		UserID:  user.ID,
		Message: "Registration successful",
	}, nil
}

func (svc *AuthService) Login(req dto.LoginRequest, clientIP string) (*dto.LoginResponse, error) {
	var user model.User
	err := svc.sqlSvc.Db().Where("email = ?", req.Email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.NewAppError(http.StatusUnauthorized, "Invalid credentials")
	}
	if err != nil {
		return nil, svc.sqlSvc.HandleError(err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		log.WithFields(log.Fields{"user_id": user.ID, "ip": clientIP}).Warn("Failed login attempt")
		return nil, shared.NewAppError(http.StatusUnauthorized, "Invalid credentials")
	}

	pair, err := svc.jwtSvc.GenerateTokenPair(user.ID, user.Role, user.TenantID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user.LastLoginAt = &now
	if err := svc.sqlSvc.Db().Model(&user).Update("last_login_at", now).Error; err != nil {
		log.WithError(err).WithField("user_id", user.ID).Warn("Failed to record login time")
	}

	return &dto.LoginResponse{
		AccessToken: pair.AccessToken,
		ExpiresIn:   pair.ExpiresIn,
		User: dto.UserInfo{
			ID:          user.ID,
			Username:    user.Username,
			Email:       user.Email,
			Role:        user.Role,
			TenantID:    user.TenantID,
			CreatedAt:   user.CreatedAt,
			LastLoginAt: user.LastLoginAt,
		},
	}, nil
}

func (svc *AuthService) GetUser(userID string) (*dto.UserInfo, error) {
	var user model.User
	err := svc.sqlSvc.Db().Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.NewNotFoundError("User not found")
	}
	if err != nil {
		return nil, svc.sqlSvc.HandleError(err)
	}

	return &dto.UserInfo{
		ID:          user.ID,
		Username:    user.Username,
		Email:       user.Email,
		Role:        user.Role,
		TenantID:    user.TenantID,
		CreatedAt:   user.CreatedAt,
		LastLoginAt: user.LastLoginAt,
	}, nil
}

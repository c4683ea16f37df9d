package models

import (
	"errors"

	"github.com/golang-jwt/jwt/v4"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

const (
	RoleProducer = `producer`
	RoleManager  = `manager`
	RoleCrew     = `crew`
	RolePortal   = `portal`
)

type Claims struct {
	jwt.RegisteredClaims
	AccountID int    `json:"accountID"`
	ClientID  int    `json:"clientID"`
	Role      string `json:"role"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

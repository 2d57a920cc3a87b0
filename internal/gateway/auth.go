package gateway

import (
	"context"
	"errors"
	"net/http"
	"path"
	"strings"
)

const (
	loginPath       = "backend/login"
	sendOTPPath     = "cmsapi/forget/send-otp"
	validateOTPPath = "cmsapi/forget/validate-otp"
	resetPath       = "cmsapi/forget/reset"
	unreadPath      = "backend/unread"
	markReadSuffix  = "mark-read"

	UnreadKindCareer  = "career"
	UnreadKindConnect = "connect"

	operationLogin       = "login"
	operationSendOTP     = "send_otp"
	operationValidateOTP = "validate_otp"
	operationResetPass   = "reset_password"
	operationMarkRead    = "mark_read"
)

var (
	// ErrInvalidCredentials indicates the backend rejected the username and password.
	ErrInvalidCredentials = errors.New("gateway: invalid credentials")
	// ErrUnknownUnreadKind indicates an unread inbox other than career or connect.
	ErrUnknownUnreadKind = errors.New("gateway: unknown unread kind")
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success bool `json:"success"`
}

type sendOTPRequest struct {
	Email string `json:"email"`
}

type validateOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"newPassword"`
}

// Login verifies credentials. A well-formed answer with success=false yields ErrInvalidCredentials.
func (client *Client) Login(ctx context.Context, username string, password string) error {
	var response loginResponse
	loginErr := client.executeJSON(ctx, requestSpec{
		operation: operationLogin,
		method:    http.MethodPost,
		path:      loginPath,
	}, loginRequest{Username: username, Password: password}, &response)
	if loginErr != nil {
		var statusError *StatusError
		if errors.As(loginErr, &statusError) && (statusError.StatusCode == http.StatusUnauthorized || statusError.StatusCode == http.StatusForbidden) {
			return ErrInvalidCredentials
		}
		return loginErr
	}
	if !response.Success {
		return ErrInvalidCredentials
	}
	return nil
}

// SendOTP asks the backend to email a one-time password.
func (client *Client) SendOTP(ctx context.Context, email string) error {
	return client.executeJSON(ctx, requestSpec{
		operation: operationSendOTP,
		method:    http.MethodPost,
		path:      sendOTPPath,
	}, sendOTPRequest{Email: email}, nil)
}

// ValidateOTP checks a one-time password for email.
func (client *Client) ValidateOTP(ctx context.Context, email string, otp string) error {
	return client.executeJSON(ctx, requestSpec{
		operation: operationValidateOTP,
		method:    http.MethodPost,
		path:      validateOTPPath,
	}, validateOTPRequest{Email: email, OTP: otp}, nil)
}

// ResetPassword sets a new password once the OTP has been validated.
func (client *Client) ResetPassword(ctx context.Context, email string, otp string, newPassword string) error {
	return client.executeJSON(ctx, requestSpec{
		operation: operationResetPass,
		method:    http.MethodPost,
		path:      resetPath,
	}, resetPasswordRequest{Email: email, OTP: otp, NewPassword: newPassword}, nil)
}

// MarkAllRead acknowledges every unread record of the career or connect inbox.
func (client *Client) MarkAllRead(ctx context.Context, kind string) error {
	normalizedKind := strings.ToLower(strings.TrimSpace(kind))
	if normalizedKind != UnreadKindCareer && normalizedKind != UnreadKindConnect {
		return ErrUnknownUnreadKind
	}
	return client.executeJSON(ctx, requestSpec{
		operation: operationMarkRead,
		method:    http.MethodPost,
		path:      path.Join(unreadPath, normalizedKind, markReadSuffix),
	}, nil, nil)
}

package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"hamasa/internal/engine"
	"hamasa/internal/engine/auth"
)

var authErrors = []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound, http.StatusTooManyRequests}

func registerAuth(api huma.API, rt routes) {
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Log in with email or phone number",
		Tags:        []string{"auth"},
		Errors:      authErrors,
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*response[engine.LoginResult], error) {
		res, err := rt.e.Login(ctx, input.Body.Identifier, input.Body.Password)
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "refresh-token",
		Method:      http.MethodPost,
		Path:        "/auth/refresh-token",
		Summary:     "Exchange a refresh token for a new token pair",
		Tags:        []string{"auth"},
		Errors:      authErrors,
	}, func(ctx context.Context, input *struct {
		Body RefreshRequest `json:"body"`
	}) (*response[engine.LoginResult], error) {
		res, err := rt.e.Refresh(ctx, input.Body.RefreshToken)
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "service-token",
		Method:      http.MethodPost,
		Path:        "/auth/service-token",
		Summary:     "Issue a long-lived token for the ML service",
		Tags:        []string{"auth"},
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*response[engine.ServiceTokenResult], error) {
		res, err := rt.e.ServiceToken(ctx, actor(ctx))
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "logout",
		Method:      http.MethodPost,
		Path:        "/auth/logout",
		Summary:     "Log out",
		Description: "Tokens are stateless; clients discard them.",
		Tags:        []string{"auth"},
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*response[message], error) {
		if actor(ctx).ID == "" {
			return nil, rt.handleError(auth.UnauthenticatedError{})
		}
		return reply(message{Message: "Successfully logged out"}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/auth/me",
		Summary:     "Current principal",
		Tags:        []string{"auth"},
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*response[engine.Account], error) {
		acct, err := rt.e.Me(ctx, actor(ctx))
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(acct), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "forgot-password",
		Method:      http.MethodPost,
		Path:        "/auth/forgot-password",
		Summary:     "Send a password reset code by SMS",
		Tags:        []string{"auth"},
		Errors:      authErrors,
	}, func(ctx context.Context, input *struct {
		Body ForgotPasswordRequest `json:"body"`
	}) (*response[message], error) {
		if err := rt.e.ForgotPassword(ctx, input.Body.Identifier); err != nil {
			return nil, rt.handleError(err)
		}
		return reply(message{Message: "OTP sent"}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reset-password",
		Method:      http.MethodPost,
		Path:        "/auth/reset-password",
		Summary:     "Set a new password with a reset code",
		Tags:        []string{"auth"},
		Errors:      authErrors,
	}, func(ctx context.Context, input *struct {
		Body ResetPasswordRequest `json:"body"`
	}) (*response[message], error) {
		if err := rt.e.ResetPassword(ctx, input.Body.Identifier, input.Body.OTP, input.Body.NewPassword); err != nil {
			return nil, rt.handleError(err)
		}
		return reply(message{Message: "Password reset successful"}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "change-password",
		Method:      http.MethodPost,
		Path:        "/auth/change-password",
		Summary:     "Set a new password with a code sent to a phone number",
		Tags:        []string{"auth"},
		Errors:      authErrors,
	}, func(ctx context.Context, input *struct {
		Body ChangePasswordRequest `json:"body"`
	}) (*response[message], error) {
		if err := rt.e.ChangePassword(ctx, input.Body.PhoneNumber, input.Body.OTP, input.Body.NewPassword); err != nil {
			return nil, rt.handleError(err)
		}
		return reply(message{Message: "Password changed successfully"}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "send-otp",
		Method:      http.MethodPost,
		Path:        "/auth/send-otp",
		Summary:     "Send a verification code by SMS",
		Tags:        []string{"auth"},
		Errors:      authErrors,
	}, func(ctx context.Context, input *struct {
		Body PhoneRequest `json:"body"`
	}) (*response[message], error) {
		if err := rt.e.SendOTP(ctx, input.Body.PhoneNumber); err != nil {
			return nil, rt.handleError(err)
		}
		return reply(message{Message: "OTP sent"}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "verify-otp",
		Method:      http.MethodPost,
		Path:        "/auth/verify-otp",
		Summary:     "Check and consume a verification code",
		Tags:        []string{"auth"},
		Errors:      authErrors,
	}, func(ctx context.Context, input *struct {
		Body VerifyOTPRequest `json:"body"`
	}) (*response[message], error) {
		if err := rt.e.VerifyOTP(ctx, input.Body.PhoneNumber, input.Body.OTP); err != nil {
			return nil, rt.handleError(err)
		}
		return reply(message{Message: "OTP verified"}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "verify-phone",
		Method:      http.MethodPost,
		Path:        "/auth/verify-phone",
		Summary:     "Verify a phone number and activate its account",
		Tags:        []string{"auth"},
		Errors:      authErrors,
	}, func(ctx context.Context, input *struct {
		Body VerifyOTPRequest `json:"body"`
	}) (*response[engine.Account], error) {
		acct, err := rt.e.VerifyPhone(ctx, input.Body.PhoneNumber, input.Body.OTP)
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(acct), nil
	})
}

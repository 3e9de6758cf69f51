package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"camwatch/internal/media"
	"camwatch/internal/model"
	"camwatch/pkg/apierror"
)

func writeSuccess(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: true,
		Data:    data,
	})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := &model.APIError{
		Code:    "INTERNAL_ERROR",
		Message: "Unexpected server error",
	}

	var apiErr *apierror.APIError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatus
		body.Code = apiErr.Code
		body.Message = apiErr.Message
		body.Details = apiErr.Details
	case errors.Is(err, model.ErrInvalidCredentials):
		status = http.StatusForbidden
		body.Code = "INVALID_CREDENTIALS"
		body.Message = "Wrong username or password"
	case errors.Is(err, model.ErrUsernameTaken):
		status = http.StatusConflict
		body.Code = "USERNAME_TAKEN"
		body.Message = "Username already taken"
	case errors.Is(err, model.ErrProtected):
		status = http.StatusForbidden
		body.Code = "PROTECTED"
		body.Message = "Account is protected and cannot be modified"
	case errors.Is(err, model.ErrUserNotFound):
		status = http.StatusNotFound
		body.Code = "NOT_FOUND"
		body.Message = "User not found"
	case errors.Is(err, model.ErrTokenExpired):
		status = http.StatusUnauthorized
		body.Code = "TOKEN_EXPIRED"
		body.Message = "Session expired"
	case errors.Is(err, model.ErrTokenInvalid):
		status = http.StatusUnauthorized
		body.Code = "TOKEN_INVALID"
		body.Message = "Invalid token"
	case errors.Is(err, model.ErrForbidden):
		status = http.StatusForbidden
		body.Code = "FORBIDDEN"
		body.Message = "Access denied"
	case errors.Is(err, media.ErrMalformedOffer):
		status = http.StatusBadRequest
		body.Code = "BAD_REQUEST"
		body.Message = "Malformed SDP offer"
	case errors.Is(err, media.ErrSourceBusy):
		status = http.StatusConflict
		body.Code = "SOURCE_BUSY"
		body.Message = "Camera source is busy"
	case errors.Is(err, media.ErrSourceUnavailable):
		status = http.StatusBadGateway
		body.Code = "SIGNALING_FAILED"
		body.Message = "Media source unavailable"
	case errors.Is(err, model.ErrSignalingFailed):
		status = http.StatusBadGateway
		body.Code = "SIGNALING_FAILED"
		body.Message = "Signaling failed"
	case errors.Is(err, model.ErrInvalidInput):
		status = http.StatusBadRequest
		body.Code = "BAD_REQUEST"
		body.Message = "Invalid input"
	default:
		slog.Error("unhandled error in writeError", "error", err.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: false,
		Error:   body,
	})
}

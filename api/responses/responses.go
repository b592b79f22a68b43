package responses

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	apperrors "github.com/crossmkt/arbitrage-backend/pkg/errors"
	"github.com/crossmkt/arbitrage-backend/pkg/logger"
)

// SuccessEnvelope wraps every successful JSON response.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// ErrorEnvelope wraps every error JSON response.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, SuccessEnvelope{Data: data})
}

func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}

	typed := apperrors.As(err)
	if typed == nil {
		typed = apperrors.Wrap(apperrors.CodeInternal, err, "unexpected error")
	}

	if logg != nil {
		logg.Error(ctx, "request.error", err)
	}

	payload := ErrorEnvelope{Error: APIError{
		Code:    string(typed.Code()),
		Message: typed.Message(),
	}}
	writeJSON(w, httpStatus(typed.Code()), payload)
}

func httpStatus(code apperrors.Code) int {
	switch code {
	case apperrors.CodeValidation:
		return http.StatusUnprocessableEntity
	case apperrors.CodeConnectivity:
		return http.StatusBadGateway
	case apperrors.CodeApplication, apperrors.CodeWorkflow, apperrors.CodePurchaseStopped:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf(`{"level":"error","msg":"failed to encode response","err":"%v"}`, err)
	}
}

package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/upb/apicenter/services"
	"github.com/upb/apicenter/services/dispatch"
	"github.com/upb/apicenter/services/providers"
	"github.com/upb/apicenter/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses.
//
//	exhausted                       502
//	unsupported provider            404
//	provider not configured         503
//	configuration, validation       400
//	rate limit                      429
//	contract, external, vendor      502
//	deadline exceeded               504 (see HandleTimeout)
//	anything else                   500
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	var provErr *providers.ProviderError
	var writeErr error

	// An exhausted error unwraps to every attempt's own error, so it must be
	// matched before the per-type cases below.
	switch {
	case services.IsExhaustedError(err):
		writeErr = utils.WriteBadGateway(w, err.Error(), exhaustedDetails(err))

	case services.IsUnsupportedError(err):
		writeErr = utils.WriteNotFound(w, err.Error(), detailsOf(err, services.ErrorTypeUnsupported))

	case services.IsNotConfiguredError(err):
		writeErr = utils.WriteServiceUnavailable(w, err.Error(), detailsOf(err, services.ErrorTypeNotConfigured))

	case services.IsConfigurationError(err), services.IsValidationError(err):
		writeErr = utils.WriteBadRequest(w, err.Error(), services.GetErrorDetails(err))

	case services.IsRateLimitError(err):
		writeErr = utils.WriteTooManyRequests(w, err.Error(), detailsOf(err, services.ErrorTypeRateLimit))

	case services.IsContractError(err), services.IsExternalError(err):
		writeErr = utils.WriteBadGateway(w, err.Error(), services.GetErrorDetails(err))

	case errors.As(err, &provErr):
		writeErr = utils.WriteBadGateway(w, err.Error(), map[string]interface{}{
			"provider": provErr.Provider,
			"code":     provErr.Code,
		})

	case errors.Is(err, context.DeadlineExceeded):
		writeErr = utils.WriteError(w, http.StatusGatewayTimeout, "request timed out", nil)

	case services.IsInternalError(err):
		// Log internal errors but return generic message
		logger.Error("internal server error", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "An internal error occurred")

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w, "An unexpected error occurred")
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}

// HandleTimeout writes a 504 for a request whose deadline passed while
// attempts were still running. The attempts tried so far are kept in the
// details.
func HandleTimeout(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err := utils.WriteError(w, http.StatusGatewayTimeout, "request timed out", exhaustedDetails(err)); err != nil {
		logger.Error("failed to write timeout response", zap.Error(err))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{})
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	// Generic validation error
	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}

func exhaustedDetails(err error) map[string]interface{} {
	var exhausted *dispatch.ExhaustedError
	if !errors.As(err, &exhausted) {
		return nil
	}
	return map[string]interface{}{
		"mode":     string(exhausted.Mode),
		"attempts": failureResponses(exhausted.Failures),
	}
}

func detailsOf(err error, t services.ErrorType) map[string]interface{} {
	if d := services.FindDomainError(err, t); d != nil && len(d.Details) > 0 {
		return d.Details
	}
	return nil
}

package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

const (
	CodeOK      ErrorCode = "OK"
	CodeUnknown ErrorCode = "UNKNOWN"
)

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeUnauthorized       ErrorCode = "COMMON_003"
	ErrCodeForbidden          ErrorCode = "COMMON_004"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
	ErrCodeFeatureDisabled    ErrorCode = "COMMON_015"
	ErrCodeCacheMiss          ErrorCode = "COMMON_017"
)

// Network Module Error Codes
const (
	ErrCodeNetworkInvalid       ErrorCode = "NET_001"
	ErrCodeNetworkParse         ErrorCode = "NET_002"
	ErrCodeUnknownSpecies       ErrorCode = "NET_003"
	ErrCodeUnknownCompartment   ErrorCode = "NET_004"
	ErrCodeDuplicateElement     ErrorCode = "NET_005"
	ErrCodeInvalidStoichiometry ErrorCode = "NET_006"
)

// Ontology Module Error Codes
const (
	ErrCodeOntologyParse ErrorCode = "ONTO_001"
	ErrCodeTermNotFound  ErrorCode = "ONTO_002"
	ErrCodeOntologyEmpty ErrorCode = "ONTO_003"
)

// Generalization Module Error Codes
const (
	ErrCodeRunNotFound    ErrorCode = "GEN_001"
	ErrCodeRunCancelled   ErrorCode = "GEN_002"
	ErrCodeEmptyNetwork   ErrorCode = "GEN_003"
	ErrCodePublishFailed  ErrorCode = "GEN_004"
	ErrCodeArtifactFailed ErrorCode = "GEN_005"
	ErrCodeExportFailed   ErrorCode = "GEN_006"
	ErrCodeIndexingFailed ErrorCode = "GEN_007"
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeForbidden:          http.StatusForbidden,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusBadGateway,
	ErrCodeFeatureDisabled:    http.StatusNotImplemented,
	ErrCodeCacheMiss:          http.StatusNotFound,

	ErrCodeNetworkInvalid:       http.StatusUnprocessableEntity,
	ErrCodeNetworkParse:         http.StatusBadRequest,
	ErrCodeUnknownSpecies:       http.StatusUnprocessableEntity,
	ErrCodeUnknownCompartment:   http.StatusUnprocessableEntity,
	ErrCodeDuplicateElement:     http.StatusUnprocessableEntity,
	ErrCodeInvalidStoichiometry: http.StatusUnprocessableEntity,

	ErrCodeOntologyParse: http.StatusInternalServerError,
	ErrCodeTermNotFound:  http.StatusNotFound,
	ErrCodeOntologyEmpty: http.StatusServiceUnavailable,

	ErrCodeRunNotFound:    http.StatusNotFound,
	ErrCodeRunCancelled:   http.StatusRequestTimeout,
	ErrCodeEmptyNetwork:   http.StatusUnprocessableEntity,
	ErrCodePublishFailed:  http.StatusInternalServerError,
	ErrCodeArtifactFailed: http.StatusInternalServerError,
	ErrCodeExportFailed:   http.StatusInternalServerError,
	ErrCodeIndexingFailed: http.StatusInternalServerError,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeUnauthorized:       "authentication required",
	ErrCodeForbidden:          "permission denied",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",
	ErrCodeFeatureDisabled:    "feature disabled",
	ErrCodeCacheMiss:          "cache miss",

	ErrCodeNetworkInvalid:       "invalid reaction network",
	ErrCodeNetworkParse:         "failed to parse reaction network",
	ErrCodeUnknownSpecies:       "reaction references an unknown species",
	ErrCodeUnknownCompartment:   "species references an unknown compartment",
	ErrCodeDuplicateElement:     "duplicate network element id",
	ErrCodeInvalidStoichiometry: "stoichiometry must be positive",

	ErrCodeOntologyParse: "failed to parse ontology",
	ErrCodeTermNotFound:  "ontology term not found",
	ErrCodeOntologyEmpty: "ontology is empty",

	ErrCodeRunNotFound:    "generalization run not found",
	ErrCodeRunCancelled:   "generalization run cancelled",
	ErrCodeEmptyNetwork:   "network has no reactions",
	ErrCodePublishFailed:  "failed to publish generalization event",
	ErrCodeArtifactFailed: "failed to store generalization artifact",
	ErrCodeExportFailed:   "failed to export generalized graph",
	ErrCodeIndexingFailed: "failed to index species groups",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.SplitN(string(code), "_", 2)
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}

package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

const (
	ErrCodeInvalidParameter ErrCode = "INVALID_PARAMETER"
	ErrCodeFileMissing      ErrCode = "FILE_MISSING"
	ErrCodeFileTooLarge     ErrCode = "FILE_TOO_LARGE"
	ErrCodeUserRequired     ErrCode = "USER_REQUIRED"
	ErrCodeDetectionUnknown ErrCode = "DETECTION_UNKNOWN"
	ErrCodeNotFound         ErrCode = "NOT_FOUND"
	ErrCodeInternal         ErrCode = "INTERNAL"
	ErrCodeUnknown          ErrCode = "UNKNOWN"
)

type ErrCode string

type ErrorInfo struct {
	HttpStatus int     `json:"-"`
	Code       ErrCode `json:"code"`
	Message    string  `json:"message"`
	Detail     string  `json:"detail,omitempty"`
}

func (e ErrorInfo) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func IsErrCode(err error, code ErrCode) bool {
	if err == nil {
		return false
	}
	info := ErrorInfo{}
	if errors.As(err, &info) {
		return info.Code == code
	}
	return false
}

func NewParameterInvalidError(msg string) ErrorInfo {
	return ErrorInfo{HttpStatus: http.StatusBadRequest, Code: ErrCodeInvalidParameter, Message: msg}
}

func NewFileMissingError(field string) ErrorInfo {
	return ErrorInfo{HttpStatus: http.StatusBadRequest, Code: ErrCodeFileMissing, Message: fmt.Sprintf("no file provided, use %q as the form field name", field)}
}

func NewFileTooLargeError(limit int64) ErrorInfo {
	return ErrorInfo{HttpStatus: http.StatusRequestEntityTooLarge, Code: ErrCodeFileTooLarge, Message: fmt.Sprintf("file exceeds %d bytes", limit)}
}

func NewUserRequiredError() ErrorInfo {
	return ErrorInfo{HttpStatus: http.StatusUnauthorized, Code: ErrCodeUserRequired, Message: "user id required"}
}

func NewDetectionUnknownError(id string) ErrorInfo {
	return ErrorInfo{HttpStatus: http.StatusNotFound, Code: ErrCodeDetectionUnknown, Message: fmt.Sprintf("detection: %s not found", id)}
}

func NewNotFoundError(what string) ErrorInfo {
	return ErrorInfo{HttpStatus: http.StatusNotFound, Code: ErrCodeNotFound, Message: fmt.Sprintf("%s not found", what)}
}

func NewInternalError(err error) ErrorInfo {
	return ErrorInfo{HttpStatus: http.StatusInternalServerError, Code: ErrCodeInternal, Message: "internal error", Detail: err.Error()}
}

func ResponseError(w http.ResponseWriter, err error) {
	info := ErrorInfo{}
	if !errors.As(err, &info) {
		info = ErrorInfo{
			HttpStatus: http.StatusInternalServerError,
			Code:       ErrCodeUnknown,
			Message:    err.Error(),
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(info.HttpStatus)
	json.NewEncoder(w).Encode(info)
}

func ResponseJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func ResponseOK(w http.ResponseWriter, data any) {
	ResponseJSON(w, http.StatusOK, data)
}

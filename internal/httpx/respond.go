package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-vendor-orders/internal/orders"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"net/http"
	"reflect"
	"strconv"
	"strings"
)

// seconds a client should wait before retrying a 503
const retryAfter = "1"

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type validationBody struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

func writeValidation(w http.ResponseWriter, field, msg string) {
	writeJSON(w, http.StatusUnprocessableEntity, validationBody{Message: msg, Errors: map[string][]string{field: {msg}}})
}

func writeNotFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "Resource not found"})
}

// writeError maps the domain error taxonomy onto status codes. System
// failure detail goes to the log only.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	var ve *orders.ValidationError
	var se *orders.SystemError
	switch {
	case errors.As(err, &ve):
		writeValidation(w, ve.Field, ve.Message)
	case errors.Is(err, orders.ErrNotFound):
		writeNotFound(w)
	case errors.Is(err, orders.ErrForbidden):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "Forbidden"})
	case errors.As(err, &se):
		log.Error("system failure",
			zap.String("op", se.Op),
			zap.Bool("lock_timeout", se.LockTimeout()),
			zap.Bool("retryable", se.Retryable()),
			zap.Error(se.Err),
		)
		if se.Retryable() {
			w.Header().Set("Retry-After", retryAfter)
		}
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "Service temporarily unavailable, please retry."})
	default:
		log.Error("unhandled error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required.", fe.Field())
	case "max":
		return fmt.Sprintf("The %s may not be greater than %s characters.", fe.Field(), fe.Param())
	case "min", "gte", "gt":
		return fmt.Sprintf("The %s must be at least %s.", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("The selected %s is invalid.", fe.Field())
	}
	return fmt.Sprintf("The %s is invalid.", fe.Field())
}

// bind decodes and validates the JSON body into dst, writing the error
// response itself when it returns false.
func bind(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return false
	}
	err := validate.Struct(dst)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return false
	}
	body := validationBody{Message: fieldMessage(verrs[0]), Errors: map[string][]string{}}
	for _, fe := range verrs {
		body.Errors[fe.Field()] = append(body.Errors[fe.Field()], fieldMessage(fe))
	}
	writeJSON(w, http.StatusUnprocessableEntity, body)
	return false
}

func pageParam(r *http.Request) int {
	p, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil {
		return 1
	}
	return orders.ClampPage(p)
}

package httpx

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Decode reads a JSON body into dst and validates its `validate` tags.
// On failure it writes the 400 response itself and returns false.
func Decode(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) bool {
	return decode(w, r, maxBytes, dst, false)
}

// DecodeOptional is Decode for endpoints where the whole body may be omitted;
// an empty body leaves dst at its zero value.
func DecodeOptional(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) bool {
	return decode(w, r, maxBytes, dst, true)
}

func decode(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any, optional bool) bool {
	if err := decodeJSON(w, r, maxBytes, dst); err != nil && !(optional && errors.Is(err, errEmptyBody)) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
			return false
		}
		WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return false
	}
	if fields := ValidateStruct(dst); fields != nil {
		WriteFieldErrors(w, fields)
		return false
	}
	return true
}

// ValidateStruct returns field -> message for every failed rule, or nil.
func ValidateStruct(v any) map[string]string {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"_": "invalid"}
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = message(fe)
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "email":
		return "must be a valid email"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	default:
		return "invalid"
	}
}

package jobs

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/angelmondragon/mpsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/mpsync/pkg/errors"
)

// Params are the arguments every entry point accepts.
type Params struct {
	CredentialID int64 `json:"credential_id" validate:"required,gt=0"`
	Days         int   `json:"days" validate:"gte=0,lte=400"`
	DaysStep     int   `json:"days_step,omitempty" validate:"gte=0,lte=90"`
	ShopID       int64 `json:"shop_id,omitempty" validate:"gte=0"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// Validate checks the parameter ranges.
func (p Params) Validate() error {
	if err := validate.Struct(p); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok {
			details := map[string]string{}
			for _, fe := range errs {
				details[fe.Field()] = fmt.Sprintf("failed %s", fe.Tag())
			}
			return pkgerrors.New(pkgerrors.CodeValidation, "invalid job parameters").WithDetails(details)
		}
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid job parameters")
	}
	return nil
}

// Result is the outcome reported for one job run.
type Result struct {
	Status  enums.ResultStatus `json:"status"`
	Message string             `json:"message"`
	Code    pkgerrors.Code     `json:"code,omitempty"`
	// RetryAt is set when the credential was put on cool-down.
	RetryAt *time.Time `json:"retry_at,omitempty"`

	cause error
}

func (r Result) OK() bool {
	return r.Status == enums.ResultSuccess
}

func (r Result) String() string {
	if r.OK() {
		return fmt.Sprintf("%s: %s", r.Status, r.Message)
	}
	return fmt.Sprintf("%s [%s]: %s", r.Status, r.Code, r.Message)
}

// Err returns the error behind a failed run.
func (r Result) Err() error {
	return r.cause
}

func success(message string) Result {
	return Result{Status: enums.ResultSuccess, Message: message}
}

func failure(err error) Result {
	return Result{Status: enums.ResultFailure, Message: err.Error(), Code: pkgerrors.CodeOf(err), cause: err}
}

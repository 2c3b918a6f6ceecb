package service

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/voter-support-api/internal/dto"
	"github.com/noah-isme/voter-support-api/internal/models"
)

// Age bounds for support submitters, inclusive.
const (
	MinSupportAge = 16
	MaxSupportAge = 100
)

var supportEmailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

var supportFieldLabels = map[string]string{
	"schoolId":     "School ID",
	"fullName":     "Full name",
	"departmentId": "Department",
	"birthday":     "Birthday",
	"email":        "Email",
	"message":      "Message",
}

// FieldErrors maps payload field names to a human readable violation.
type FieldErrors map[string]string

// Error implements error with a stable, sorted rendering.
func (f FieldErrors) Error() string {
	keys := make([]string, 0, len(f))
	for key := range f {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", key, f[key]))
	}
	return strings.Join(parts, "; ")
}

type supportSubmissionInput struct {
	SchoolID     string `json:"schoolId" validate:"required,school_id"`
	FullName     string `json:"fullName" validate:"required,max=255"`
	DepartmentID string `json:"departmentId" validate:"required,max=64"`
	Birthday     string `json:"birthday" validate:"required,support_date,plausible_age"`
	Email        string `json:"email" validate:"required,max=255,support_email"`
	Message      string `json:"message" validate:"required,min=10,max=1000"`
}

// SupportRequestValidator checks and normalises public support submissions. It never touches storage.
type SupportRequestValidator struct {
	validate *validator.Validate
	now      func() time.Time
}

// NewSupportRequestValidator builds a validator; now defaults to time.Now.
func NewSupportRequestValidator(now func() time.Time) *SupportRequestValidator {
	if now == nil {
		now = time.Now
	}
	v := &SupportRequestValidator{validate: validator.New(), now: now}
	v.validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	mustRegister(v.validate, "school_id", func(fl validator.FieldLevel) bool {
		_, ok := parseSchoolID(fl.Field().String())
		return ok
	})
	mustRegister(v.validate, "support_date", func(fl validator.FieldLevel) bool {
		_, ok := parseBirthday(fl.Field().String())
		return ok
	})
	mustRegister(v.validate, "plausible_age", func(fl validator.FieldLevel) bool {
		birthday, ok := parseBirthday(fl.Field().String())
		if !ok {
			return false
		}
		age := completedYears(birthday, v.now())
		return age >= MinSupportAge && age <= MaxSupportAge
	})
	mustRegister(v.validate, "support_email", func(fl validator.FieldLevel) bool {
		return supportEmailPattern.MatchString(fl.Field().String())
	})
	return v
}

// Validate returns the normalised submission, or the violations keyed by payload field.
func (v *SupportRequestValidator) Validate(req dto.SubmitSupportRequest) (*models.SupportSubmission, FieldErrors) {
	input := supportSubmissionInput{
		SchoolID:     strings.TrimSpace(string(req.SchoolID)),
		FullName:     strings.TrimSpace(req.FullName),
		DepartmentID: strings.TrimSpace(req.DepartmentID),
		Birthday:     strings.TrimSpace(req.Birthday),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Message:      strings.TrimSpace(req.Message),
	}

	if err := v.validate.Struct(input); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, FieldErrors{"payload": err.Error()}
		}
		fields := make(FieldErrors, len(verrs))
		for _, fe := range verrs {
			if _, seen := fields[fe.Field()]; !seen {
				fields[fe.Field()] = supportFieldMessage(fe)
			}
		}
		return nil, fields
	}

	schoolID, _ := parseSchoolID(input.SchoolID)
	birthday, _ := parseBirthday(input.Birthday)
	return &models.SupportSubmission{
		SchoolID:     schoolID,
		FullName:     input.FullName,
		DepartmentID: input.DepartmentID,
		Birthday:     birthday,
		Email:        input.Email,
		Message:      input.Message,
	}, nil
}

func supportFieldMessage(fe validator.FieldError) string {
	label := supportFieldLabels[fe.Field()]
	if label == "" {
		label = fe.Field()
	}
	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "school_id":
		return "School ID must be a positive number"
	case "support_date":
		return "Please enter a valid birthday"
	case "plausible_age":
		return fmt.Sprintf("Age must be between %d and %d years", MinSupportAge, MaxSupportAge)
	case "support_email":
		return "Please enter a valid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", label, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", label, fe.Param())
	default:
		return label + " is invalid"
	}
}

func parseSchoolID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func parseBirthday(raw string) (time.Time, bool) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

// completedYears counts full years elapsed between birthday and the calendar date of now.
func completedYears(birthday, now time.Time) int {
	years := now.Year() - birthday.Year()
	if now.Month() < birthday.Month() || (now.Month() == birthday.Month() && now.Day() < birthday.Day()) {
		years--
	}
	return years
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s validation: %v", tag, err))
	}
}

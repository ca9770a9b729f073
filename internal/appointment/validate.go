package appointment

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"klinikcal/internal/model"
	"klinikcal/internal/slot"
)

var mobileRe = regexp.MustCompile(`^05[0-9]{8,9}$`)

// NormalizePhone drops the separators people type into phone numbers.
func NormalizePhone(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '-', '(', ')', '.':
			return -1
		}
		return r
	}, s)
}

// ValidPhone reports whether s is a local mobile number: a leading 0, the
// mobile prefix 5, and 10 to 11 digits in total.
func ValidPhone(s string) bool {
	return mobileRe.MatchString(NormalizePhone(s))
}

var customTags = map[string]validator.Func{
	"notblank": func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	},
	"trmobile": func(fl validator.FieldLevel) bool {
		return ValidPhone(fl.Field().String())
	},
	"apptype": func(fl validator.FieldLevel) bool {
		return model.AppointmentType(fl.Field().String()).Valid()
	},
}

func mustRegister(v *validator.Validate, tags map[string]validator.Func) {
	for tag, fn := range tags {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("appointment: register %q validation: %v", tag, err))
		}
	}
}

// Validator checks a FormState before anything is sent to the backend.
type Validator struct {
	v *validator.Validate
}

// NewValidator builds the form validator with its custom tags. It panics if a
// tag cannot be registered.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	mustRegister(v, customTags)
	return &Validator{v: v}
}

// Check carries the context a form is validated against.
type Check struct {
	Grid      slot.Grid
	WeekStart time.Time
	// Services is the catalog already filtered for the chosen doctor and
	// type. A non-empty list makes serviceId mandatory.
	Services []model.Service
	// Now enables the past-slot check when non-zero. Updates leave it unset.
	Now time.Time
}

// Validate returns ValidationErrors keyed by JSON field path, or nil.
func (v *Validator) Validate(f FormState, c Check) error {
	out := ValidationErrors{}

	if err := v.v.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			key := fieldKey(fe.Namespace())
			if _, dup := out[key]; !dup {
				out[key] = message(fe)
			}
		}
	}

	if len(c.Services) > 0 {
		if f.ServiceID == "" {
			out["serviceId"] = "service is required"
		} else if !containsService(c.Services, f.ServiceID) {
			out["serviceId"] = "service is not offered for this doctor and type"
		}
	}

	_, count := f.Span()
	if err := c.Grid.CheckSpan(f.TimeIndex, count); err != nil {
		key := "slotCount"
		if errors.Is(err, slot.ErrInvalidSlot) {
			key = "timeIndex"
		}
		if _, dup := out[key]; !dup {
			out[key] = err.Error()
		}
	}

	if f.IsRecurring && f.EndDate != nil {
		first := c.Grid.InstanceDate(c.WeekStart, f.DayIndex, f.TimeIndex)
		if c.Grid.DayStart(*f.EndDate).Before(c.Grid.DayStart(first)) {
			out["endDate"] = "end date is before the first occurrence"
		}
	}

	if !c.Now.IsZero() && c.Grid.ValidSlot(f.TimeIndex) && c.Grid.ValidDay(f.DayIndex) &&
		c.Grid.IsPast(c.WeekStart, f.DayIndex, f.TimeIndex, c.Now) {
		if _, dup := out["timeIndex"]; !dup {
			out["timeIndex"] = "slot is in the past"
		}
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

func containsService(list []model.Service, id string) bool {
	for _, s := range list {
		if s.ID == id {
			return true
		}
	}
	return false
}

// fieldKey strips the root struct name from a validator namespace.
func fieldKey(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "notblank":
		return "must not be blank"
	case "trmobile":
		return "must be a mobile number like 05XX XXX XX XX"
	case "apptype":
		return "unknown appointment type"
	case "min":
		if fe.Kind() == reflect.Slice {
			return "at least " + fe.Param() + " required"
		}
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	default:
		return "invalid (" + fe.Tag() + ")"
	}
}

package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	v *validator.Validate

	// Day of month as shown on the application form: 1st, 2nd, 15th, 30th...
	reDayOfMonth = regexp.MustCompile(`^([1-9]|[12][0-9]|3[01])(st|nd|rd|th)?$`)
	rePhone      = regexp.MustCompile(`^\+?[0-9 ()\-]{7,20}$`)
)

// Value sets shared with the domain packages.
var (
	PlanTypes      = []string{"Retirement", "Education", "Health", "Auto"}
	PlanTiers      = []string{"Basic", "Standard", "Premium"}
	InsuranceTypes = []string{"Auto Insurance", "Education Plan", "Health Insurance", "Retirement Plan"}
	Frequencies    = []string{"Monthly", "Quarterly", "Bi-Annually", "Annually"}

	RequiredClaimDocuments   = []string{"Valid Government ID", "Copy of Policy Contract"}
	SupportingClaimDocuments = []string{
		"Official Receipt / Billing statement",
		"Medical or Hospital Records",
		"Police or Incident Reports",
		"Certificate of Retirement or Age Verification",
		"School Registration or Proof of Enrollment",
	}
)

func init() {
	v = validator.New()

	// Use JSON tag as the field name in error output
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	_ = v.RegisterValidation("plantype", oneOf(PlanTypes))
	_ = v.RegisterValidation("plantier", oneOf(PlanTiers))
	_ = v.RegisterValidation("insurancetype", oneOf(InsuranceTypes))
	_ = v.RegisterValidation("frequency", oneOf(Frequencies))
	_ = v.RegisterValidation("claimdoc", oneOf(RequiredClaimDocuments))
	_ = v.RegisterValidation("supportdoc", oneOf(SupportingClaimDocuments))

	_ = v.RegisterValidation("dayofmonth", func(fl validator.FieldLevel) bool {
		val := strings.TrimSpace(fl.Field().String())
		if val == "" { // let omitempty handle empty
			return true
		}
		return reDayOfMonth.MatchString(strings.ToLower(val))
	})

	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		val := strings.TrimSpace(fl.Field().String())
		if val == "" {
			return true
		}
		return rePhone.MatchString(val)
	})
}

func oneOf(allowed []string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		val := strings.TrimSpace(fl.Field().String())
		if val == "" {
			return true
		}
		for _, a := range allowed {
			if a == val {
				return true
			}
		}
		return false
	}
}

// Validate returns map[field][]messages (Laravel-like)
func Validate(s any) (map[string][]string, error) {
	if err := v.Struct(s); err != nil {
		ve, ok := err.(validator.ValidationErrors)
		if !ok {
			return nil, err
		}
		out := make(map[string][]string)
		for _, e := range ve {
			field := e.Field() // already mapped from json tag

			switch e.Tag() {
			case "required":
				out[field] = append(out[field], "This field is required")

			case "email":
				out[field] = append(out[field], "Invalid email format")

			case "min":
				if e.Kind() == reflect.String {
					out[field] = append(out[field], fmt.Sprintf("Must be at least %s characters", e.Param()))
				} else if e.Kind() == reflect.Slice {
					out[field] = append(out[field], fmt.Sprintf("Must contain at least %s items", e.Param()))
				} else {
					out[field] = append(out[field], fmt.Sprintf("Must be at least %s", e.Param()))
				}

			case "max":
				if e.Kind() == reflect.String {
					out[field] = append(out[field], fmt.Sprintf("Must be at most %s characters", e.Param()))
				} else if e.Kind() == reflect.Slice {
					out[field] = append(out[field], fmt.Sprintf("Must contain at most %s items", e.Param()))
				} else {
					out[field] = append(out[field], fmt.Sprintf("Must be at most %s", e.Param()))
				}

			case "oneof":
				out[field] = append(out[field], "Value is not allowed")

			case "gt":
				out[field] = append(out[field], fmt.Sprintf("Must be greater than %s", e.Param()))

			case "gte":
				out[field] = append(out[field], fmt.Sprintf("Must be greater than or equal to %s", e.Param()))

			case "datetime":
				out[field] = append(out[field], "Must be a date in YYYY-MM-DD format")

			case "plantype":
				out[field] = append(out[field], "Policy type must be one of: "+strings.Join(PlanTypes, ", "))

			case "plantier":
				out[field] = append(out[field], "Plan tier must be one of: "+strings.Join(PlanTiers, ", "))

			case "insurancetype":
				out[field] = append(out[field], "Policy type must be one of: "+strings.Join(InsuranceTypes, ", "))

			case "frequency":
				out[field] = append(out[field], "Payment frequency must be one of: "+strings.Join(Frequencies, ", "))

			case "claimdoc":
				out[field] = append(out[field], "Required document must be one of: "+strings.Join(RequiredClaimDocuments, ", "))

			case "supportdoc":
				out[field] = append(out[field], "Supporting document must be one of: "+strings.Join(SupportingClaimDocuments, "; "))

			case "dayofmonth":
				out[field] = append(out[field], "Must be a day of the month, e.g. 15th")

			case "phone":
				out[field] = append(out[field], "Invalid contact number")

			default:
				// Fallback to original error text if we missed a tag
				out[field] = append(out[field], e.Error())
			}
		}
		return out, nil
	}
	return nil, nil
}

// Add appends a message for field, allocating the map on first use.
func Add(errs map[string][]string, field, msg string) map[string][]string {
	if errs == nil {
		errs = make(map[string][]string)
	}
	errs[field] = append(errs[field], msg)
	return errs
}

package models

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultPage    = 1
	DefaultPerPage = 50
)

const (
	msgLocationID = "location_id must be a positive integer."
	msgStartDate  = "start_date must be in YYYY-MM-DD format."
	msgEndDate    = "end_date must be in YYYY-MM-DD format."
	msgDateRange  = "end_date must be greater than or equal to start_date."
	msgPage       = "page must be a positive integer."
	msgPerPage    = "per_page must be a positive integer."
	msgQuality    = "Invalid quality_threshold value."

	// MsgInvalidMetric is reported when the metric name is not in the catalog
	MsgInvalidMetric = "Invalid metric name."
)

// ValidationError is a client error whose message is safe to return
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a ValidationError
func NewValidationError(msg string) *ValidationError {
	return &ValidationError{Message: msg}
}

// IsValidationError reports whether err carries a ValidationError
func IsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// Filters is a validated query over climate observations.
// Zero values mean "no constraint".
type Filters struct {
	LocationID       int64
	StartDate        string
	EndDate          string
	Metric           string
	QualityThreshold Quality
	Page             int
	PerPage          int
}

// AllowedQualities returns the lower-cased tiers admitted by the threshold
func (f Filters) AllowedQualities() []string {
	if f.QualityThreshold == "" {
		return nil
	}
	tiers := f.QualityThreshold.AtOrAbove()
	out := make([]string, len(tiers))
	for i, q := range tiers {
		out[i] = string(q)
	}
	return out
}

// Offset returns the row offset of the requested page
func (f Filters) Offset() int {
	return (f.Page - 1) * f.PerPage
}

type rawFilters struct {
	LocationID       string `validate:"omitempty,posint"`
	StartDate        string `validate:"omitempty,datetime=2006-01-02"`
	EndDate          string `validate:"omitempty,datetime=2006-01-02"`
	Page             string `validate:"omitempty,posint"`
	PerPage          string `validate:"omitempty,posint"`
	QualityThreshold string `validate:"omitempty,quality"`
}

// checks are evaluated in order; the first failing one is reported
var checks = []struct {
	field, tag, msg string
}{
	{"LocationID", "posint", msgLocationID},
	{"StartDate", "datetime", msgStartDate},
	{"EndDate", "datetime", msgEndDate},
	{"EndDate", "daterange", msgDateRange},
	{"Page", "posint", msgPage},
	{"PerPage", "posint", msgPerPage},
	{"QualityThreshold", "quality", msgQuality},
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("posint", func(fl validator.FieldLevel) bool {
		_, ok := parsePositiveInt(fl.Field().String())
		return ok
	})
	v.RegisterValidation("quality", func(fl validator.FieldLevel) bool {
		_, ok := ParseQuality(fl.Field().String())
		return ok
	})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		raw := sl.Current().Interface().(rawFilters)
		if raw.StartDate == "" || raw.EndDate == "" {
			return
		}
		start, err1 := time.Parse(DateLayout, raw.StartDate)
		end, err2 := time.Parse(DateLayout, raw.EndDate)
		if err1 != nil || err2 != nil {
			return
		}
		if end.Before(start) {
			sl.ReportError(raw.EndDate, "EndDate", "EndDate", "daterange", "")
		}
	}, rawFilters{})
	return v
}

func parsePositiveInt(s string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// ParseFilters validates query parameters. Pagination parameters are only
// read when paginated is true. The metric name is lower-cased but its
// existence is checked by the caller against storage.
func ParseFilters(params map[string]string, paginated bool) (Filters, error) {
	raw := rawFilters{
		LocationID:       params["location_id"],
		StartDate:        params["start_date"],
		EndDate:          params["end_date"],
		QualityThreshold: params["quality_threshold"],
	}
	if paginated {
		raw.Page = params["page"]
		raw.PerPage = params["per_page"]
	}

	if err := validate.Struct(raw); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return Filters{}, err
		}
		failed := make(map[string]bool, len(fieldErrs))
		for _, fe := range fieldErrs {
			failed[fe.Field()+"/"+fe.Tag()] = true
		}
		for _, c := range checks {
			if failed[c.field+"/"+c.tag] {
				return Filters{}, NewValidationError(c.msg)
			}
		}
		return Filters{}, NewValidationError(fieldErrs[0].Error())
	}

	f := Filters{
		StartDate: raw.StartDate,
		EndDate:   raw.EndDate,
		Metric:    strings.ToLower(params["metric"]),
		Page:      DefaultPage,
		PerPage:   DefaultPerPage,
	}
	if id, ok := parsePositiveInt(raw.LocationID); ok {
		f.LocationID = id
	}
	if q, ok := ParseQuality(raw.QualityThreshold); ok {
		f.QualityThreshold = q
	}
	if n, ok := parsePositiveInt(raw.Page); ok {
		f.Page = int(n)
	}
	if n, ok := parsePositiveInt(raw.PerPage); ok {
		f.PerPage = int(n)
	}
	return f, nil
}

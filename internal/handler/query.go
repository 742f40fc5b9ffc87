package handler

import (
	"errors"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

type trainsQuery struct {
	Origin      string `query:"origin" validate:"required"`
	Destination string `query:"destination" validate:"required"`
	Date        string `query:"date" validate:"required,datetime=2006-01-02"`
}

type roundTripQuery struct {
	Origin       string `query:"origin" validate:"required"`
	Destination  string `query:"destination" validate:"required"`
	OutboundDate string `query:"outboundDate" validate:"required,datetime=2006-01-02"`
	ReturnDate   string `query:"returnDate" validate:"required,datetime=2006-01-02"`
}

type timetableQuery struct {
	TrainNo string `query:"trainNo" validate:"required"`
}

type seatStatusQuery struct {
	StationID string `query:"stationId" validate:"required"`
}

// newValidator reports field errors under their query parameter names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("query"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// decodeQuery copies query values into the string fields of dst tagged
// with `query`. Values are trimmed; leading zeros are kept.
func decodeQuery(values url.Values, dst interface{}) {
	rv := reflect.ValueOf(dst).Elem()
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		name, _, _ := strings.Cut(rt.Field(i).Tag.Get("query"), ",")
		if name == "" || rv.Field(i).Kind() != reflect.String {
			continue
		}
		rv.Field(i).SetString(strings.TrimSpace(values.Get(name)))
	}
}

// bindQuery decodes and validates dst. The returned message is empty when
// the query is valid.
func bindQuery(v *validator.Validate, values url.Values, dst interface{}) string {
	decodeQuery(values, dst)

	err := v.Struct(dst)
	if err == nil {
		return ""
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid query parameters"
	}

	var missing, invalid []string
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			missing = append(missing, fe.Field())
		case "datetime":
			invalid = append(invalid, fe.Field()+" must be YYYY-MM-DD")
		default:
			invalid = append(invalid, fe.Field())
		}
	}

	var parts []string
	if len(missing) > 0 {
		parts = append(parts, plural("missing required parameter", len(missing))+": "+strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		parts = append(parts, plural("invalid parameter", len(invalid))+": "+strings.Join(invalid, ", "))
	}
	return strings.Join(parts, "; ")
}

func plural(s string, n int) string {
	if n == 1 {
		return s
	}
	return s + "s"
}

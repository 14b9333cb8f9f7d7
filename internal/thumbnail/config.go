// Package thumbnail holds the canonical resize configuration shared by the
// upload API and the resize worker. Form fields, JSON bodies and object
// metadata all go through Validate so bounds and defaults live in one place.
package thumbnail

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
)

// Extension is the file extension used for derived keys.
func (f Format) Extension() string {
	if f == FormatJPEG {
		return "jpg"
	}
	return string(f)
}

func (f Format) ContentType() string {
	return "image/" + string(f)
}

func (f Format) Supported() bool {
	switch f {
	case FormatJPEG, FormatPNG, FormatWebP:
		return true
	}
	return false
}

const (
	MinDimension = 50
	MaxDimension = 2000
	MinQuality   = 1
	MaxQuality   = 100

	DefaultWidth   = 300
	DefaultHeight  = 300
	DefaultQuality = 85
	DefaultFormat  = FormatJPEG
)

const (
	FieldWidth   = "width"
	FieldHeight  = "height"
	FieldQuality = "quality"
	FieldFormat  = "format"
	FieldPreset  = "preset"
)

var SupportedFormats = []Format{FormatJPEG, FormatPNG, FormatWebP}

var fieldOrder = map[string]int{FieldPreset: 0, FieldWidth: 1, FieldHeight: 2, FieldQuality: 3, FieldFormat: 4}

type ResizeConfig struct {
	Width   int    `json:"width" validate:"min=50,max=2000"`
	Height  int    `json:"height" validate:"min=50,max=2000"`
	Quality int    `json:"quality" validate:"min=1,max=100"`
	Format  Format `json:"format" validate:"oneof=jpeg png webp"`
}

func Default() ResizeConfig {
	return ResizeConfig{
		Width:   DefaultWidth,
		Height:  DefaultHeight,
		Quality: DefaultQuality,
		Format:  DefaultFormat,
	}
}

// Fields flattens the config into its canonical string form. Feeding the
// result back into ValidateStrings yields the same config.
func (c ResizeConfig) Fields() map[string]string {
	return map[string]string{
		FieldWidth:   strconv.Itoa(c.Width),
		FieldHeight:  strconv.Itoa(c.Height),
		FieldQuality: strconv.Itoa(c.Quality),
		FieldFormat:  string(c.Format),
	}
}

func (c ResizeConfig) String() string {
	return fmt.Sprintf("%dx%d q%d %s", c.Width, c.Height, c.Quality, c.Format)
}

type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every offending field of a rejected input.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, issue.Field+": "+issue.Message)
	}
	return strings.Join(parts, ", ")
}

func (e *ValidationError) Fields() []string {
	fields := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		fields = append(fields, issue.Field)
	}
	return fields
}

// IsValidationError reports whether err carries a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

var messages = map[string]string{
	"width.min":    "Width must be at least 50px",
	"width.max":    "Width must not exceed 2000px",
	"height.min":   "Height must be at least 50px",
	"height.max":   "Height must not exceed 2000px",
	"quality.min":  "Quality must be at least 1",
	"quality.max":  "Quality must not exceed 100",
	"format.oneof": "Format must be one of: jpeg, png, webp",
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate coerces untrusted input into a ResizeConfig. Absent fields take
// the named preset's values, or the defaults without one; every present
// field that is unparseable or out of bounds is reported in the returned
// *ValidationError. Format names are matched exactly.
func Validate(raw map[string]any) (ResizeConfig, error) {
	cfg := Default()
	var issues []Issue

	if value, ok := raw[FieldPreset]; ok {
		name, present, err := coerceString(value)
		switch {
		case err != nil:
			issues = append(issues, Issue{Field: FieldPreset, Message: err.Error()})
		case present:
			preset, found := Preset(name)
			if !found {
				issues = append(issues, Issue{Field: FieldPreset, Message: "Preset must be one of: " + strings.Join(PresetNames(), ", ")})
			} else {
				cfg = preset
			}
		}
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{FieldWidth, &cfg.Width},
		{FieldHeight, &cfg.Height},
		{FieldQuality, &cfg.Quality},
	}
	for _, field := range ints {
		value, ok := raw[field.name]
		if !ok {
			continue
		}
		n, present, err := coerceInt(value)
		if err != nil {
			issues = append(issues, Issue{Field: field.name, Message: err.Error()})
			continue
		}
		if present {
			*field.dst = n
		}
	}

	if value, ok := raw[FieldFormat]; ok {
		s, present, err := coerceString(value)
		if err != nil {
			issues = append(issues, Issue{Field: FieldFormat, Message: err.Error()})
		} else if present {
			cfg.Format = Format(s)
		}
	}

	if err := validate.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return ResizeConfig{}, fmt.Errorf("validate resize config: %w", err)
		}
		for _, fe := range fieldErrs {
			issues = append(issues, Issue{Field: fe.Field(), Message: message(fe)})
		}
	}

	if len(issues) > 0 {
		sort.SliceStable(issues, func(i, j int) bool {
			return fieldOrder[issues[i].Field] < fieldOrder[issues[j].Field]
		})
		return ResizeConfig{}, &ValidationError{Issues: issues}
	}
	return cfg, nil
}

// ValidateStrings is Validate for string-only sources such as multipart
// form fields and object metadata.
func ValidateStrings(raw map[string]string) (ResizeConfig, error) {
	values := make(map[string]any, len(raw))
	for k, v := range raw {
		values[k] = v
	}
	return Validate(values)
}

func message(fe validator.FieldError) string {
	if msg, ok := messages[fe.Field()+"."+fe.Tag()]; ok {
		return msg
	}
	return fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
}

var (
	errNotANumber = errors.New("must be a valid number")
	errNotInteger = errors.New("must be an integer")
	errNotString  = errors.New("must be a string")
)

func coerceInt(value any) (int, bool, error) {
	switch v := value.(type) {
	case nil:
		return 0, false, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false, nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, false, errNotANumber
		}
		return n, true, nil
	case int:
		return v, true, nil
	case int32:
		return int(v), true, nil
	case int64:
		if v > math.MaxInt32 || v < math.MinInt32 {
			return 0, false, errNotANumber
		}
		return int(v), true, nil
	case float64:
		return floatToInt(v)
	case float32:
		return floatToInt(float64(v))
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return coerceInt(n)
		}
		f, err := v.Float64()
		if err != nil {
			return 0, false, errNotANumber
		}
		return floatToInt(f)
	default:
		return 0, false, errNotANumber
	}
}

func floatToInt(f float64) (int, bool, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false, errNotANumber
	}
	if f != math.Trunc(f) {
		return 0, false, errNotInteger
	}
	return int(f), true, nil
}

func coerceString(value any) (string, bool, error) {
	switch v := value.(type) {
	case nil:
		return "", false, nil
	case string:
		s := strings.TrimSpace(v)
		return s, s != "", nil
	case Format:
		return string(v), v != "", nil
	default:
		return "", false, errNotString
	}
}

// CUE schema and struct validation
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
	"github.com/go-playground/validator/v10"
)

//go:embed schema.cue
var embeddedSchema []byte

// ConfigError reports invalid startup configuration. It is fatal: the
// simulator must not start with a configuration that produced one.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ValidateWithCue validates a YAML configuration file using a CUE schema file.
func ValidateWithCue(configFile, cueFile string) error {
	ctx := cuecontext.New()

	yamlBytes, err := os.ReadFile(configFile)
	if err != nil {
		return &ConfigError{Field: "file", Reason: "cannot read YAML config", Err: err}
	}
	f, err := cueyaml.Extract(configFile, yamlBytes)
	if err != nil {
		return &ConfigError{Field: "file", Reason: "cannot parse YAML config", Err: err}
	}
	configVal := ctx.BuildFile(f)

	schemaBytes := embeddedSchema
	if cueFile != "" {
		schemaBytes, err = os.ReadFile(cueFile)
		if err != nil {
			return &ConfigError{Field: "schema", Reason: "cannot read CUE schema", Err: err}
		}
	}
	schemaVal := ctx.CompileBytes(schemaBytes)
	if schemaVal.Err() != nil {
		return &ConfigError{Field: "schema", Reason: "cannot compile CUE schema", Err: schemaVal.Err()}
	}

	final := schemaVal.LookupPath(cue.ParsePath("#Config")).Unify(configVal)
	if err := final.Validate(cue.Concrete(true)); err != nil {
		return &ConfigError{Field: "schema", Reason: "validation failed", Err: err}
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type deviceList struct {
	Devices []Device `yaml:"devices" validate:"required,min=1,unique=ID,dive"`
}

// Validate applies defaults to cfg and checks it, returning a *ConfigError.
func Validate(cfg *SimulationConfig) error {
	cfg.applyDefaults()
	return toConfigError(validate.Struct(cfg))
}

// ValidateDevices checks a registry seed list: non-empty, unique ids, required fields.
func ValidateDevices(devices []Device) error {
	return toConfigError(validate.Struct(deviceList{Devices: devices}))
}

func toConfigError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ConfigError{Field: "config", Reason: "invalid", Err: err}
	}
	fe := verrs[0]
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	return &ConfigError{Field: field, Reason: reason(fe)}
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "unique":
		return "duplicate id"
	case "min":
		return "at least " + fe.Param() + " entries required"
	case "oneof":
		return "must be one of " + fe.Param()
	case "ip|hostname_rfc1123":
		return "must be an IP address or hostname"
	default:
		return fmt.Sprintf("failed %s %s", fe.Tag(), fe.Param())
	}
}

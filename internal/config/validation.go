package config

import (
	stdErrors "errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	perrors "git.home.luguber.info/inful/pagetree/internal/errors"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// structValidator reports fields by their YAML path (e.g. "site.title").
func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
			d, err := time.ParseDuration(fl.Field().String())
			return err == nil && d >= 0
		})
		validate = v
	})
	return validate
}

// Validate checks struct-level rules, then cross-field rules.
func Validate(cfg *Config) error {
	if err := structValidator().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if stdErrors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return perrors.ValidationFailed(yamlPath(fe.Namespace()), describe(fe))
		}
		return perrors.ValidationFailed("config", err.Error())
	}
	return validateCrossField(cfg)
}

func validateCrossField(cfg *Config) error {
	if cfg.Template.Syntax == "sentinel" && cfg.Template.File == "" {
		return perrors.ValidationFailed("template.file", "sentinel syntax requires a template file")
	}
	return validateAreas(cfg)
}

// area is a configured filesystem location named by its YAML field.
type area struct {
	field string
	path  string
	dir   bool
}

// validateAreas rejects layouts in which resetting the output or work area
// would remove inputs, or in which the two areas remove each other.
func validateAreas(cfg *Config) error {
	out := area{field: "output.directory", path: absPath(cfg.Output.Directory), dir: true}
	work := area{field: "output.work_dir", path: absPath(cfg.Output.WorkDir), dir: true}
	if contains(out.path, work.path) || contains(work.path, out.path) {
		return perrors.ValidationFailed(work.field, "must not overlap output.directory")
	}

	inputs := []area{{field: "source.dir", path: cfg.Source.Dir, dir: true}}
	if cfg.Assets.Source != "" {
		inputs = append(inputs, area{field: "assets.source", path: cfg.Assets.Source, dir: true})
	}
	if cfg.Template.File != "" {
		inputs = append(inputs, area{field: "template.file", path: cfg.Template.File})
	}
	if cfg.History.Database != "" {
		inputs = append(inputs, area{field: "history.database", path: cfg.History.Database})
	}
	for _, reset := range []area{out, work} {
		for _, in := range inputs {
			p := absPath(in.path)
			if contains(reset.path, p) {
				return perrors.ValidationFailed(reset.field, fmt.Sprintf("must not contain %s (%s)", in.field, in.path))
			}
			if in.dir && contains(p, reset.path) {
				return perrors.ValidationFailed(reset.field, fmt.Sprintf("must not be inside %s (%s)", in.field, in.path))
			}
		}
	}
	return nil
}

func absPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	return abs
}

// contains reports whether child equals parent or lies below it.
func contains(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil || filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// yamlPath drops the root struct name: "Config.site.title" -> "site.title".
func yamlPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_with":
		return fmt.Sprintf("is required when %s is set", strings.ToLower(fe.Param()))
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fmt.Sprint(fe.Value()))
	case "duration":
		return fmt.Sprintf("must be a duration such as 30s or 5m, got %q", fmt.Sprint(fe.Value()))
	case "hostname_port":
		return fmt.Sprintf("must be host:port, got %q", fmt.Sprint(fe.Value()))
	default:
		return fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
	}
}

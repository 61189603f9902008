package conf

import (
	"encoding/json"
	stdErrors "errors"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ringo-is-a-color/lastcall/util/errors"
	"github.com/ringo-is-a-color/lastcall/util/ioutil"
	"github.com/ringo-is-a-color/lastcall/util/osutil"
)

var validate = validator.New()

func init() {
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := fld.Tag.Get("json")
		if name == "" {
			return strings.ToLower(fld.Name)
		}
		return name
	})
}

func Parse(configFilePath string) (*Config, error) {
	bs, err := ioutil.ReadFile(configFilePath)
	if err != nil {
		return nil, errors.Wrap(err, "error")
	}

	config := &Config{}
	// the shutdown section is optional, so set up its defaults here as well
	config.Shutdown.Signals = osutil.TerminationSignals()
	config.Shutdown.MarkFailure = true
	config.Shutdown.FailureExitCode = defaultFailureExitCode
	config.Journal.Path = defaultJournalPath
	config.LockFile = defaultLockFile
	err = json.Unmarshal(bs, &config)
	if err != nil {
		return nil, errors.Wrapf(err, "error: %v", configFilePath)
	}

	err = validate.Struct(config)
	if err != nil {
		var errs validator.ValidationErrors
		if stdErrors.As(err, &errs) {
			if len(errs) > 0 {
				validatedError := errors.Newf("error: fail to parse the config file %v", configFilePath)
				for _, err := range errs {
					fieldName := err.Namespace()[strings.Index(err.Namespace(), ".")+1:]
					validatedError = errors.Join(validatedError, errors.Newf("  the '%v' field should be '%v'", fieldName, err.ActualTag()))
				}
				return nil, validatedError
			}
		}
		return nil, errors.WithStack(err)
	}
	resolveAllFilePathsToConfigFolder(config, filepath.Dir(configFilePath))
	return config, nil
}

func resolveAllFilePathsToConfigFolder(config *Config, configFileFolder string) {
	config.Journal.Path = resolveTo(config.Journal.Path, configFileFolder)
	config.LockFile = resolveTo(config.LockFile, configFileFolder)
}

func resolveTo(relativePath string, basePath string) string {
	if filepath.IsAbs(relativePath) {
		return relativePath
	}
	return filepath.Join(basePath, relativePath)
}

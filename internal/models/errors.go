package models

import (
	"errors"
	"fmt"
)

var ErrUnknownLanguage = errors.New("no published model for language")

// ConfigurationError reports a request the catalog cannot serve, such as a
// language with no published model.
type ConfigurationError struct {
	Lang string
	Err  error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("models: configuration: lang %q: %v", e.Lang, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// DownloadError reports an artifact that is missing locally and could not be
// fetched from its source.
type DownloadError struct {
	Kind Kind
	Lang string
	URL  string
	Err  error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("models: download %s/%s from %s: %v", e.Kind, e.Lang, e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// ModelNotAvailableError reports an artifact absent from the local cache when
// no download was requested.
type ModelNotAvailableError struct {
	Kind Kind
	Lang string
	Path string
}

func (e *ModelNotAvailableError) Error() string {
	return fmt.Sprintf("models: %s model for %q not found at %s", e.Kind, e.Lang, e.Path)
}

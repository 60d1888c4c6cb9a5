package models

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

type Kind string

const (
	KindDetector   Kind = "det"
	KindRecognizer Kind = "rec"
	KindClassifier Kind = "cls"
)

func (k Kind) Label() string {
	switch k {
	case KindDetector:
		return "text detection model"
	case KindRecognizer:
		return "text recognition model"
	case KindClassifier:
		return "angle classification model"
	}
	return string(k)
}

// Sources holds the remote roots for each kind. Each root serves
// <code>.traineddata files.
type Sources struct {
	Det, Rec, Cls string
}

func (s Sources) base(k Kind) string {
	switch k {
	case KindDetector:
		return s.Det
	case KindRecognizer:
		return s.Rec
	default:
		return s.Cls
	}
}

// languages maps the public language identifiers to Tesseract model codes.
var languages = map[string]string{
	"ch":          "chi_sim",
	"chinese_cht": "chi_tra",
	"en":          "eng",
	"japan":       "jpn",
	"korean":      "kor",
	"french":      "fra",
	"german":      "deu",
	"it":          "ita",
	"es":          "spa",
	"pt":          "por",
	"ru":          "rus",
	"ar":          "ara",
	"hi":          "hin",
	"ta":          "tam",
	"te":          "tel",
	"ka":          "kan",
	"latin":       "lat",
	"cyrillic":    "srp",
	"devanagari":  "mar",
}

// Languages lists the identifiers with a published model, sorted.
func Languages() []string {
	out := make([]string, 0, len(languages))
	for k := range languages {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Code returns the Tesseract code for lang.
func Code(lang string) (string, error) {
	code, ok := languages[strings.ToLower(strings.TrimSpace(lang))]
	if !ok {
		return "", &ConfigurationError{Lang: lang, Err: ErrUnknownLanguage}
	}
	return code, nil
}

// Artifact is one model file set inside the cache. Dir is usable as a
// tessdata prefix.
type Artifact struct {
	Kind Kind   `json:"kind"`
	Lang string `json:"lang"`
	Code string `json:"code"`
	Name string `json:"name"`
	Dir  string `json:"dir"`
	File string `json:"file"`
	URL  string `json:"url"`
}

// Path is the model file location.
func (a Artifact) Path() string { return filepath.Join(a.Dir, a.File) }

// Layout places artifacts under home as <home>/<kind>/<lang>/<code>_<kind>/.
type Layout struct {
	Home    string
	Sources Sources
}

func (l Layout) Artifact(k Kind, lang string) (Artifact, error) {
	code, err := Code(lang)
	if err != nil {
		return Artifact{}, err
	}
	lang = strings.ToLower(strings.TrimSpace(lang))
	name := fmt.Sprintf("%s_%s", code, k)
	file := code + ".traineddata"
	return Artifact{
		Kind: k,
		Lang: lang,
		Code: code,
		Name: name,
		Dir:  filepath.Join(l.Home, string(k), lang, name),
		File: file,
		URL:  strings.TrimRight(l.Sources.base(k), "/") + "/" + file,
	}, nil
}

// Plan lists the artifacts needed for lang; the classifier is included only
// when angle classification is enabled.
func (l Layout) Plan(lang string, useAngleCls bool) ([]Artifact, error) {
	kinds := []Kind{KindDetector, KindRecognizer}
	if useAngleCls {
		kinds = append(kinds, KindClassifier)
	}
	out := make([]Artifact, 0, len(kinds))
	for _, k := range kinds {
		a, err := l.Artifact(k, lang)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

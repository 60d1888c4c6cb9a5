package models

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/emandor/lemme_ocr/internal/telemetry"
)

// Set is the resolved artifact set for one language. Cls is nil when angle
// classification is disabled.
type Set struct {
	Lang string    `json:"lang"`
	Det  Artifact  `json:"det"`
	Rec  Artifact  `json:"rec"`
	Cls  *Artifact `json:"cls,omitempty"`
}

// Artifacts returns the members in det, rec, cls order.
func (s Set) Artifacts() []Artifact {
	out := []Artifact{s.Det, s.Rec}
	if s.Cls != nil {
		out = append(out, *s.Cls)
	}
	return out
}

// Print writes one line per model with its resolved directory.
func (s Set) Print(w io.Writer) error {
	lines := []struct {
		k   Kind
		dir string
	}{
		{KindDetector, s.Det.Dir},
		{KindRecognizer, s.Rec.Dir},
		{KindClassifier, "disabled"},
	}
	if s.Cls != nil {
		lines[2].dir = s.Cls.Dir
	}
	for _, l := range lines {
		if _, err := fmt.Fprintf(w, "%s: %s\n", l.k.Label(), l.dir); err != nil {
			return err
		}
	}
	return nil
}

type Stage string

const (
	StageCached          Stage = "cached"
	StageDownloadStarted Stage = "download_started"
	StageDownloadDone    Stage = "download_done"
	StageDownloadFailed  Stage = "download_failed"
)

type Event struct {
	Stage    Stage    `json:"stage"`
	Lang     string   `json:"lang"`
	Artifact Artifact `json:"artifact"`
	Bytes    int64    `json:"bytes,omitempty"`
	Err      string   `json:"error,omitempty"`
}

type Observer func(Event)

// Manifest is written next to each downloaded model file.
type Manifest struct {
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	File      string    `json:"file"`
	Size      int64     `json:"size"`
	SHA256    string    `json:"sha256"`
	FetchedAt time.Time `json:"fetched_at"`
}

const manifestFile = "manifest.json"

type Provisioner struct {
	layout  Layout
	fetcher Fetcher
	observe Observer
}

func NewProvisioner(layout Layout, fetcher Fetcher) *Provisioner {
	return &Provisioner{layout: layout, fetcher: fetcher}
}

// OnEvent registers an observer; nil removes it.
func (p *Provisioner) OnEvent(fn Observer) { p.observe = fn }

func (p *Provisioner) Layout() Layout { return p.layout }

// Resolve locates the artifacts for lang in the local cache without touching
// the network.
func (p *Provisioner) Resolve(lang string, useAngleCls bool) (Set, error) {
	plan, err := p.layout.Plan(lang, useAngleCls)
	if err != nil {
		return Set{}, err
	}
	for _, a := range plan {
		if !present(a) {
			return Set{}, &ModelNotAvailableError{Kind: a.Kind, Lang: a.Lang, Path: a.Path()}
		}
	}
	return assemble(plan), nil
}

// Ensure makes every artifact for lang available locally, downloading the
// missing ones. Cached artifacts are reused as is.
func (p *Provisioner) Ensure(ctx context.Context, lang string, useAngleCls bool) (Set, error) {
	plan, err := p.layout.Plan(lang, useAngleCls)
	if err != nil {
		return Set{}, err
	}
	log := telemetry.L().With().Str("module", "models").Str("lang", lang).Logger()

	for _, a := range plan {
		if present(a) {
			log.Debug().Str("kind", string(a.Kind)).Str("dir", a.Dir).Msg("model_cached")
			p.emit(Event{Stage: StageCached, Lang: a.Lang, Artifact: a})
			continue
		}
		log.Info().Str("kind", string(a.Kind)).Str("url", a.URL).Msg("model_download_start")
		p.emit(Event{Stage: StageDownloadStarted, Lang: a.Lang, Artifact: a})

		n, err := p.download(ctx, a)
		if err != nil {
			log.Error().Err(err).Str("kind", string(a.Kind)).Msg("model_download_fail")
			p.emit(Event{Stage: StageDownloadFailed, Lang: a.Lang, Artifact: a, Err: err.Error()})
			return Set{}, &DownloadError{Kind: a.Kind, Lang: a.Lang, URL: a.URL, Err: err}
		}
		log.Info().Str("kind", string(a.Kind)).Int64("bytes", n).Msg("model_download_done")
		p.emit(Event{Stage: StageDownloadDone, Lang: a.Lang, Artifact: a, Bytes: n})
	}
	return assemble(plan), nil
}

func (p *Provisioner) emit(e Event) {
	if p.observe != nil {
		p.observe(e)
	}
}

// download streams into a temp file in the artifact dir and renames it into
// place, so a failed fetch never leaves a partial model behind.
func (p *Provisioner) download(ctx context.Context, a Artifact) (int64, error) {
	if p.fetcher == nil {
		return 0, errors.New("no fetcher configured")
	}
	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(a.Dir, a.File+".*.part")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	sink := &partFile{f: tmp, h: sha256.New()}
	n, err := p.fetcher.Fetch(ctx, a.URL, sink)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, errors.New("empty response body")
	}
	if err := os.Rename(tmp.Name(), a.Path()); err != nil {
		return n, err
	}

	m := Manifest{
		Name:      a.Name,
		URL:       a.URL,
		File:      a.File,
		Size:      n,
		SHA256:    hex.EncodeToString(sink.h.Sum(nil)),
		FetchedAt: time.Now().UTC(),
	}
	b, _ := json.MarshalIndent(m, "", "  ")
	if err := os.WriteFile(filepath.Join(a.Dir, manifestFile), b, 0o644); err != nil {
		return n, err
	}
	return n, nil
}

// partFile hashes what it writes to a temp file and can start over.
type partFile struct {
	f *os.File
	h hash.Hash
}

func (p *partFile) Write(b []byte) (int, error) {
	n, err := p.f.Write(b)
	p.h.Write(b[:n])
	return n, err
}

func (p *partFile) Rewind() error {
	if err := p.f.Truncate(0); err != nil {
		return err
	}
	if _, err := p.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	p.h.Reset()
	return nil
}

// ReadManifest loads the manifest written for a downloaded artifact.
func ReadManifest(a Artifact) (Manifest, error) {
	var m Manifest
	b, err := os.ReadFile(filepath.Join(a.Dir, manifestFile))
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}

func present(a Artifact) bool {
	st, err := os.Stat(a.Path())
	return err == nil && st.Mode().IsRegular() && st.Size() > 0
}

func assemble(plan []Artifact) Set {
	s := Set{Lang: plan[0].Lang}
	for i := range plan {
		a := plan[i]
		switch a.Kind {
		case KindDetector:
			s.Det = a
		case KindRecognizer:
			s.Rec = a
		case KindClassifier:
			s.Cls = &a
		}
	}
	return s
}

package bagit

import (
	"io"
	"sort"
	"strings"
	"time"

	"github.com/facebookgo/clock"
	"github.com/pkg/errors"

	"github.com/mjordan/bagit-indexer/util"
)

// Outcome is the verdict of a validation.
type Outcome string

// The possible outcomes.
const (
	Valid   Outcome = "valid"
	Invalid Outcome = "invalid"
)

// ValidationResult is what a Validator reports about one bag.
type ValidationResult struct {
	Timestamp time.Time // in UTC
	Outcome   Outcome

	// Errors describes each problem found. It is empty if and only if the
	// outcome is Valid. Problems holds the same errors, typed.
	Errors   []string
	Problems []error

	// BytesRead is the number of bytes hashed.
	BytesRead int64
}

// A Validator recomputes the checksums of a bag and compares its manifest
// with the files actually present. The zero value is usable and uses the
// wall clock.
type Validator struct {
	Clock clock.Clock
}

// NewValidator returns a Validator using the wall clock.
func NewValidator() *Validator {
	return &Validator{Clock: clock.New()}
}

// fileCheck tracks one manifest entry during a validation.
type fileCheck struct {
	alg      string
	expected string
	seen     bool
	computed string
	ok       bool
	readErr  error
}

// Validate checks the bag b, whose files are in a. Every manifest entry is
// hashed once during a single pass over the archive. Payload files missing
// from the manifest and malformed fetch lines are also reported. Fetch
// targets may be absent. The bag is not changed.
//
// Problems are listed in a fixed order: payload manifest entries in manifest
// order, then tag manifest entries, then unmanifested payload files sorted
// by name, then fetch lines.
func (v *Validator) Validate(b *Bag, a Archive) ValidationResult {
	var result ValidationResult
	payload := make(map[string]*fileCheck, len(b.Manifest.Entries))
	for _, e := range b.Manifest.Entries {
		payload[e.Path] = &fileCheck{alg: b.Manifest.Algorithm, expected: e.Checksum}
	}
	tagfiles := make(map[string]*fileCheck, len(b.TagManifest.Entries))
	for _, e := range b.TagManifest.Entries {
		tagfiles[e.Path] = &fileCheck{alg: b.TagManifest.Algorithm, expected: e.Checksum}
	}
	var unmanifested []string

	prefix := ""
	if b.Root != "" {
		prefix = b.Root + "/"
	}
	err := a.Walk(func(name string, r io.Reader) error {
		if !strings.HasPrefix(name, prefix) {
			return nil
		}
		rel := name[len(prefix):]
		check := payload[rel]
		if check == nil {
			check = tagfiles[rel]
		}
		if check == nil {
			if strings.HasPrefix(rel, "data/") {
				unmanifested = append(unmanifested, rel)
			}
			return nil
		}
		computed, ok, n, err := util.VerifyStreamHash(r, check.alg, check.expected)
		result.BytesRead += n
		check.seen = true
		if err != nil {
			// reported against this file; the walk goes on
			check.readErr = err
			return nil
		}
		check.computed = computed
		check.ok = ok
		return nil
	})
	if err != nil {
		result.Problems = append(result.Problems, errors.Wrap(err, "reading bag"))
	}

	fetched := make(map[string]bool, len(b.Fetch))
	for _, f := range b.Fetch {
		fetched[f.Target] = true
	}
	report := func(m Manifest, checks map[string]*fileCheck, holey bool) {
		for _, e := range m.Entries {
			c := checks[e.Path]
			switch {
			case !c.seen && holey && fetched[e.Path]:
			case !c.seen:
				result.Problems = append(result.Problems, &MissingFileError{Path: e.Path, Manifest: m.FileName})
			case c.readErr != nil:
				result.Problems = append(result.Problems, &UnreadableFileError{Path: e.Path, Err: c.readErr})
			case !c.ok:
				result.Problems = append(result.Problems, &ChecksumMismatchError{
					Path:      e.Path,
					Algorithm: m.Algorithm,
					Expected:  e.Checksum,
					Actual:    c.computed,
				})
			}
		}
	}
	report(b.Manifest, payload, true)
	report(b.TagManifest, tagfiles, false)

	sort.Strings(unmanifested)
	for _, p := range unmanifested {
		result.Problems = append(result.Problems, &UnmanifestedFileError{Path: p})
	}
	for _, fl := range b.FetchLines {
		result.Problems = append(result.Problems, &MalformedFetchError{Line: fl.Line, Text: fl.Text, Reason: fl.Reason})
	}

	for _, p := range result.Problems {
		result.Errors = append(result.Errors, p.Error())
	}
	result.Outcome = Valid
	if len(result.Problems) > 0 {
		result.Outcome = Invalid
	}
	c := v.Clock
	if c == nil {
		c = clock.New()
	}
	result.Timestamp = c.Now().UTC()
	return result
}

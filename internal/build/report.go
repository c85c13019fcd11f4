package build

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/teadocs/internal/foundation/errors"
)

// Outcome is the final state of a build.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeWarning  Outcome = "warning"
	OutcomeFailed   Outcome = "failed"
	OutcomeCanceled Outcome = "canceled"
)

// IssueCode is a stable, machine readable problem identifier. Codes are only
// ever appended.
type IssueCode string

const (
	IssueContent         IssueCode = "CONTENT_ERROR"
	IssueCompile         IssueCode = "COMPILE_ERROR"
	IssueAssetMissing    IssueCode = "ASSET_MISSING"
	IssueBrokenLink      IssueCode = "LINK_BROKEN"
	IssueNavDangling     IssueCode = "NAV_DANGLING"
	IssueConfig          IssueCode = "CONFIG_ERROR"
	IssueIO              IssueCode = "IO_ERROR"
	IssueStrictViolation IssueCode = "STRICT_VIOLATION"
	IssueCanceled        IssueCode = "BUILD_CANCELED"
	IssueInternal        IssueCode = "INTERNAL_ERROR"
)

// IssueSeverity is error or warning.
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
)

// Issue is one structured report entry.
type Issue struct {
	Code     IssueCode     `json:"code"`
	Severity IssueSeverity `json:"severity"`
	Path     string        `json:"path,omitempty"`
	Message  string        `json:"message"`
}

// Stage names used for durations.
const (
	StageScan    = "scan"
	StageCompile = "compile"
	StageAssets  = "assets"
	StagePromote = "promote"
)

// Report summarizes one build.
type Report struct {
	SchemaVersion  int
	BuildID        string
	Root           string
	Output         string
	Start          time.Time
	End            time.Time
	Pages          int
	Assets         int
	Compiled       int
	CacheHits      int
	Errors         []error
	Warnings       []error
	Issues         []Issue
	StageDurations map[string]time.Duration
	Outcome        Outcome
}

func newReport(id, root, out string, start time.Time) *Report {
	return &Report{
		SchemaVersion:  1,
		BuildID:        id,
		Root:           root,
		Output:         out,
		Start:          start,
		StageDurations: map[string]time.Duration{},
	}
}

// AddIssue records err under code. Warnings and errors are mirrored into the
// corresponding slices.
func (r *Report) AddIssue(code IssueCode, severity IssueSeverity, err error) {
	issue := Issue{Code: code, Severity: severity, Message: err.Error()}
	if ce, ok := errors.AsClassified(err); ok {
		issue.Path = ce.Path()
		issue.Message = ce.Message()
	}
	r.Issues = append(r.Issues, issue)
	if severity == SeverityError {
		r.Errors = append(r.Errors, err)
	} else {
		r.Warnings = append(r.Warnings, err)
	}
}

// Duration is the wall time of the build.
func (r *Report) Duration() time.Duration { return r.End.Sub(r.Start) }

func (r *Report) finish(end time.Time, canceled bool) {
	r.End = end
	switch {
	case canceled:
		r.Outcome = OutcomeCanceled
	case len(r.Errors) > 0:
		r.Outcome = OutcomeFailed
	case len(r.Warnings) > 0:
		r.Outcome = OutcomeWarning
	default:
		r.Outcome = OutcomeSuccess
	}
}

// Summary returns a one-line human summary.
func (r *Report) Summary() string {
	return fmt.Sprintf("build=%s pages=%d assets=%d compiled=%d cache_hits=%d errors=%d warnings=%d duration=%s outcome=%s",
		r.BuildID, r.Pages, r.Assets, r.Compiled, r.CacheHits, len(r.Errors), len(r.Warnings),
		r.Duration().Truncate(time.Millisecond), r.Outcome)
}

// reportJSON is the persisted form with errors flattened to strings.
type reportJSON struct {
	SchemaVersion    int              `json:"schema_version"`
	BuildID          string           `json:"build_id"`
	Root             string           `json:"root"`
	Output           string           `json:"output"`
	Start            time.Time        `json:"start"`
	End              time.Time        `json:"end"`
	Pages            int              `json:"pages"`
	Assets           int              `json:"assets"`
	Compiled         int              `json:"compiled"`
	CacheHits        int              `json:"cache_hits"`
	Errors           []string         `json:"errors"`
	Warnings         []string         `json:"warnings"`
	Issues           []Issue          `json:"issues"`
	StageDurationsMS map[string]int64 `json:"stage_durations_ms"`
	Outcome          Outcome          `json:"outcome"`
}

// MarshalJSON renders the persisted form.
func (r *Report) MarshalJSON() ([]byte, error) {
	s := reportJSON{
		SchemaVersion:    r.SchemaVersion,
		BuildID:          r.BuildID,
		Root:             r.Root,
		Output:           r.Output,
		Start:            r.Start,
		End:              r.End,
		Pages:            r.Pages,
		Assets:           r.Assets,
		Compiled:         r.Compiled,
		CacheHits:        r.CacheHits,
		Errors:           make([]string, 0, len(r.Errors)),
		Warnings:         make([]string, 0, len(r.Warnings)),
		Issues:           r.Issues,
		StageDurationsMS: make(map[string]int64, len(r.StageDurations)),
		Outcome:          r.Outcome,
	}
	if s.Issues == nil {
		s.Issues = []Issue{}
	}
	for _, e := range r.Errors {
		s.Errors = append(s.Errors, e.Error())
	}
	for _, w := range r.Warnings {
		s.Warnings = append(s.Warnings, w.Error())
	}
	for k, v := range r.StageDurations {
		s.StageDurationsMS[k] = v.Milliseconds()
	}
	return json.Marshal(s)
}

// Persist writes the report as JSON to path through a temporary file. The
// path must not lie inside the output directory, which is replaced
// wholesale by every build.
func (r *Report) Persist(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve report path: %w", err)
	}
	if r.Output != "" {
		if inside(r.Output, abs) {
			return errors.ValidationError("report path lies inside the output directory").WithPath(abs).Build()
		}
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report json: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("ensure report directory: %w", err)
	}
	tmp := abs + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp report: %w", err)
	}
	if err := os.Rename(tmp, abs); err != nil {
		return fmt.Errorf("atomic rename report: %w", err)
	}
	return nil
}

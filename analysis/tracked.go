package analysis

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"bahr/analytics/models"
)

// Recorder is the part of the telemetry tracker the analyser needs.
type Recorder interface {
	Record(ctx context.Context, name models.EventName, properties models.Properties)
}

// Analyzer is the verse service as seen by TrackedAnalyzer.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (*Response, error)
}

// TrackedAnalyzer runs one analysis and records the submit, outcome and
// API call events around it.
type TrackedAnalyzer struct {
	Service  Analyzer
	Recorder Recorder
	Now      func() time.Time
}

// Options are the advanced analysis inputs.
type Options struct {
	PrecomputedPattern string
	ExpectedMeter      string
}

func (ta *TrackedAnalyzer) Analyze(ctx context.Context, text string, opts Options) (*Response, error) {
	now := ta.Now
	if now == nil {
		now = time.Now
	}

	advanced := opts.PrecomputedPattern != "" || opts.ExpectedMeter != ""
	ta.Recorder.Record(ctx, models.EventAnalyzeSubmit, models.Properties{
		"verse_length":            utf8.RuneCountInString(text),
		"has_diacritics":          HasDiacritics(text),
		"using_advanced_features": advanced,
		"has_precomputed_pattern": opts.PrecomputedPattern != "",
		"has_expected_meter":      opts.ExpectedMeter != "",
	})

	started := now()
	resp, err := ta.Service.Analyze(ctx, Request{
		Text:               text,
		DetectBahr:         true,
		SuggestCorrections: true,
		AnalyzeRhyme:       true,
		PrecomputedPattern: opts.PrecomputedPattern,
		ExpectedMeter:      opts.ExpectedMeter,
	})
	elapsed := now().Sub(started)

	call := models.Properties{
		"endpoint":    AnalyzePath,
		"duration_ms": elapsed.Milliseconds(),
		"success":     err == nil,
	}
	ta.Recorder.Record(ctx, models.EventAPICall, call)

	if err != nil {
		ta.Recorder.Record(ctx, models.EventAPIError, models.Properties{
			"endpoint":      AnalyzePath,
			"service_error": errors.Is(err, ErrService),
		})
		ta.Recorder.Record(ctx, models.EventAnalyzeError, models.Properties{
			"error_message": err.Error(),
		})
		return nil, err
	}

	bahr, quality := "unknown", "unknown"
	if resp.Bahr != nil {
		if resp.Bahr.NameAr != "" {
			bahr = resp.Bahr.NameAr
		}
		if resp.Bahr.MatchQuality != "" {
			quality = resp.Bahr.MatchQuality
		}
	}
	ta.Recorder.Record(ctx, models.EventAnalyzeSuccess, models.Properties{
		"bahr_detected":     bahr,
		"match_quality":     quality,
		"score":             resp.Score,
		"has_rhyme":         resp.Rhyme != nil,
		"using_v2_features": advanced,
	})
	return resp, nil
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"bahr/analytics/analysis"
	"bahr/analytics/config"
	"bahr/analytics/database"
	"bahr/analytics/models"
	"bahr/analytics/sessionstore"
	"bahr/analytics/telemetry"
	"bahr/analytics/utils"
)

// flushGrace bounds how long a command waits for pending telemetry on exit.
const flushGrace = 2 * time.Second

type exampleVerse struct {
	Text  string
	Poet  string
	Meter string
}

var exampleVerses = []exampleVerse{
	{Text: "إذا غامرت في شرف مروم *** فلا تقنع بما دون النجوم", Poet: "المتنبي", Meter: "الطويل"},
	{Text: "قفا نبك من ذكرى حبيب ومنزل *** بسقط اللوى بين الدخول فحومل", Poet: "امرؤ القيس", Meter: "الطويل"},
	{Text: "أَلا لَيتَ الشَبابَ يَعودُ يَوماً *** فَأُخبِرَهُ بِما فَعَلَ المَشيبُ", Poet: "أبو العتاهية", Meter: "الوافر"},
}

// withTracker builds the session store and tracker for one command, runs fn,
// then gives pending forwards a short grace period.
func withTracker(ctx context.Context, cfg *config.Config, fn func(*telemetry.Tracker) error) error {
	sessionStore, closeStore := openSessionStore(ctx, cfg)
	defer closeStore()

	manager := telemetry.NewSessionManager(sessionStore,
		telemetry.WithTimeout(cfg.SessionTimeout),
		telemetry.WithRetentionCap(cfg.RetentionCap),
		telemetry.WithDebug(cfg.TelemetryDebug),
	)

	var forwarder telemetry.Forwarder = telemetry.NopForwarder{}
	var httpForwarder *telemetry.HTTPForwarder
	if cfg.TelemetryEnabled {
		httpForwarder = telemetry.NewHTTPForwarder(telemetry.ForwarderConfig{
			Endpoint:    cfg.CollectorURL,
			Timeout:     cfg.ForwardTimeout,
			MaxInFlight: int64(cfg.ForwardMaxInFlight),
			Debug:       cfg.TelemetryDebug,
		})
		forwarder = httpForwarder
	}

	tracker := telemetry.NewTracker(manager, forwarder)
	err := fn(tracker)

	if httpForwarder != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), flushGrace)
		httpForwarder.Wait(flushCtx)
		cancel()
	}
	return err
}

// openSessionStore picks the configured backend. Any failure falls back to an
// in-memory store: telemetry never blocks a command.
func openSessionStore(ctx context.Context, cfg *config.Config) (telemetry.SessionStore, func()) {
	noop := func() {}

	switch cfg.SessionBackend {
	case config.BackendMemory:
		return sessionstore.NewMemory(), noop
	case config.BackendSQLite:
		client, err := database.NewSQLiteDB(ctx, cfg.SessionSQLitePath)
		if err != nil {
			debugf(cfg, "Falling back to in-memory session store: %v", err)
			return sessionstore.NewMemory(), noop
		}
		st, err := sessionstore.NewSQL(ctx, client.DB, sessionstore.SQLiteDialect)
		if err != nil {
			client.DB.Close()
			debugf(cfg, "Falling back to in-memory session store: %v", err)
			return sessionstore.NewMemory(), noop
		}
		return st, func() { client.DB.Close() }
	case config.BackendPostgres:
		client, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
		if err != nil {
			debugf(cfg, "Falling back to in-memory session store: %v", err)
			return sessionstore.NewMemory(), noop
		}
		st, err := sessionstore.NewSQL(ctx, client.DB, sessionstore.PostgresDialect)
		if err != nil {
			client.Close()
			debugf(cfg, "Falling back to in-memory session store: %v", err)
			return sessionstore.NewMemory(), noop
		}
		return st, client.Close
	default:
		return sessionstore.NewFile(cfg.SessionFile), noop
	}
}

func debugf(cfg *config.Config, format string, args ...any) {
	if cfg.TelemetryDebug {
		log.Printf("[telemetry] "+format, args...)
	}
}

func newAnalyzeCmd(cfg *config.Config) *cobra.Command {
	var (
		opts  analysis.Options
		retry bool
	)

	cmd := &cobra.Command{
		Use:   "analyze <verse>",
		Short: "Analyse a verse",
		Long:  "Submit a verse to the analysis service and print its scansion, meter and rhyme.",
		Example: `  bahr analyze "قفا نبك من ذكرى حبيب ومنزل *** بسقط اللوى بين الدخول فحومل"
  bahr analyze --meter الطويل "..."`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTracker(cmd.Context(), cfg, func(t *telemetry.Tracker) error {
				t.RecordPageView(cmd.Context(), "/analyze")
				if retry {
					t.Record(cmd.Context(), models.EventRetryClick, nil)
				}
				return runAnalysis(cmd.Context(), cmd.OutOrStdout(), cfg, t, args[0], opts)
			})
		},
	}

	cmd.Flags().StringVar(&opts.PrecomputedPattern, "pattern", "", "precomputed phonetic pattern (/ = haraka, o = sakin)")
	cmd.Flags().StringVar(&opts.ExpectedMeter, "meter", "", "expected meter name in Arabic, used for disambiguation")
	cmd.Flags().BoolVar(&retry, "retry", false, "mark this submission as a retry of a failed one")
	return cmd
}

func newExamplesCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "examples",
		Short: "List example verses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withTracker(cmd.Context(), cfg, func(t *telemetry.Tracker) error {
				t.RecordPageView(cmd.Context(), "/examples")
				out := cmd.OutOrStdout()
				for i, ex := range exampleVerses {
					fmt.Fprintf(out, "%d. %s\n   %s - %s\n", i+1, ex.Text, ex.Poet, ex.Meter)
				}
				return nil
			})
		},
	}
}

func newExampleCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "example <n>",
		Short: "Analyse one of the example verses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 1 || n > len(exampleVerses) {
				return fmt.Errorf("example must be a number between 1 and %d", len(exampleVerses))
			}
			verse := exampleVerses[n-1].Text

			return withTracker(cmd.Context(), cfg, func(t *telemetry.Tracker) error {
				t.RecordPageView(cmd.Context(), "/analyze")
				t.Record(cmd.Context(), models.EventExampleClick, models.Properties{
					"verse_preview": utils.Preview(verse, 20),
				})
				return runAnalysis(cmd.Context(), cmd.OutOrStdout(), cfg, t, verse, analysis.Options{})
			})
		},
	}
}

func newResetCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear the current analysis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withTracker(cmd.Context(), cfg, func(t *telemetry.Tracker) error {
				t.Record(cmd.Context(), models.EventResetClick, nil)
				fmt.Fprintln(cmd.OutOrStdout(), "Analysis cleared.")
				return nil
			})
		},
	}
}

func newStatsCmd(cfg *config.Config) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show usage statistics for the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withTracker(cmd.Context(), cfg, func(t *telemetry.Tracker) error {
				t.RecordPageView(cmd.Context(), "/analytics")
				return printStats(cmd.OutOrStdout(), t.SessionStats(cmd.Context()), asJSON)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print statistics as JSON")
	return cmd
}

func runAnalysis(ctx context.Context, out io.Writer, cfg *config.Config, t *telemetry.Tracker, verse string, opts analysis.Options) error {
	analyzer := &analysis.TrackedAnalyzer{
		Service:  analysis.NewClient(cfg.APIURL, &http.Client{Timeout: 30 * time.Second}),
		Recorder: t,
	}

	resp, err := analyzer.Analyze(ctx, verse, opts)
	if err != nil {
		return fmt.Errorf("analysis failed: %w (retry with --retry)", err)
	}

	fmt.Fprintf(out, "Verse:   %s\n", resp.Text)
	fmt.Fprintf(out, "Taqti3:  %s\n", resp.Taqti3)
	if resp.Bahr != nil {
		fmt.Fprintf(out, "Meter:   %s (%s), confidence %.2f", resp.Bahr.NameAr, resp.Bahr.NameEn, resp.Bahr.Confidence)
		if resp.Bahr.MatchQuality != "" {
			fmt.Fprintf(out, ", %s match", resp.Bahr.MatchQuality)
		}
		fmt.Fprintln(out)
	}
	if resp.Rhyme != nil {
		fmt.Fprintf(out, "Rhyme:   %s\n", resp.Rhyme.DescriptionEn)
	}
	fmt.Fprintf(out, "Score:   %.0f\n", resp.Score)
	return nil
}

func printStats(out io.Writer, stats models.SessionStats, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	fmt.Fprintf(out, "Session:      %s\n", stats.SessionID)
	fmt.Fprintf(out, "Duration:     %s\n", stats.Duration.Round(time.Second))
	fmt.Fprintf(out, "Page views:   %d\n", stats.PageViews)
	fmt.Fprintf(out, "Events:       %d\n", stats.TotalEvents)
	fmt.Fprintf(out, "Analyses:     %d submitted, %d succeeded, %d failed\n", stats.Submitted, stats.Succeeded, stats.Failed)
	fmt.Fprintf(out, "Success rate: %.0f%%\n", stats.SuccessRate*100)
	return nil
}

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/gscoppino/STEM/internal/collection"
	"github.com/gscoppino/STEM/internal/config"
	"github.com/gscoppino/STEM/pkg/directory"
)

// OutputOptions configures CLI output behavior.
type OutputOptions struct {
	Verbose bool
	Quiet   bool
	JSON    bool
}

// FetchResult describes one completed collection fetch.
type FetchResult struct {
	Collection string
	URL        string
	Records    []directory.Record
	Duration   time.Duration
	Attempts   int
}

// PrintFetchResult prints the records of a fetch, as JSON when requested and
// otherwise as a summary line followed by a table.
func PrintFetchResult(w io.Writer, result FetchResult, opts OutputOptions) error {
	if opts.JSON {
		return PrintRecordsJSON(w, result.Records)
	}

	if !opts.Quiet {
		fmt.Fprintf(w, "✓ Fetched %s %s from %s\n",
			humanize.Comma(int64(len(result.Records))),
			pluralize(len(result.Records), "record", "records"),
			result.Collection)
		if opts.Verbose {
			fmt.Fprintf(w, "  URL: %s\n", result.URL)
			fmt.Fprintf(w, "  Duration: %v\n", result.Duration.Round(time.Millisecond))
			if result.Attempts > 1 {
				fmt.Fprintf(w, "  Attempts: %d\n", result.Attempts)
			}
		}
		fmt.Fprintln(w)
	}

	PrintRecords(w, result.Records)
	return nil
}

// PrintRecordsJSON writes records as an indented JSON array.
func PrintRecordsJSON(w io.Writer, records []directory.Record) error {
	if records == nil {
		records = []directory.Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// PrintRecords prints one row per record: id, resource type and display name.
func PrintRecords(w io.Writer, records []directory.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, "(no records)")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tNAME")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.ID(), orDash(r.String("resourceType")), orDash(r.String("displayName")))
	}
	_ = tw.Flush()
}

// PrintSiteSummary prints the collections, filters and refresh schedule of
// a validated site.
func PrintSiteSummary(w io.Writer, site *config.Site) {
	oae := site.OAE()
	fmt.Fprintf(w, "  Tenant: %s//%s\n", oae.Protocol, oae.Host)

	groups := make([]string, 0, len(oae.Groups))
	for key := range oae.Groups {
		groups = append(groups, key)
	}
	sort.Strings(groups)
	if len(groups) > 0 {
		fmt.Fprintf(w, "  Groups: %s\n", strings.Join(groups, ", "))
	}

	fmt.Fprintln(w, "  Collections:")
	for _, c := range site.Collections() {
		line := fmt.Sprintf("    %s (%s)", c.Name, c.Kind)
		if parent := site.ParentID(c); parent != "" {
			line += " parent=" + parent
		}
		if c.Limit != nil {
			line += fmt.Sprintf(" limit=%d", *c.Limit)
		}
		if len(c.Records) > 0 {
			line += fmt.Sprintf(" records=%s", humanize.Comma(int64(len(c.Records))))
		}
		fmt.Fprintln(w, line)
	}

	filters := site.Filters()
	if len(filters) > 0 {
		fmt.Fprintln(w, "  Filters:")
		for _, f := range filters {
			mark := " "
			if f.Selected {
				mark = "*"
			}
			fmt.Fprintf(w, "   %s %s\n", mark, f.Title)
		}
	}

	refresh := site.Refresh()
	switch {
	case refresh.Schedule != "":
		fmt.Fprintf(w, "  Refresh: cron %q\n", refresh.Schedule)
	case refresh.IntervalMs > 0:
		fmt.Fprintf(w, "  Refresh: every %v\n", time.Duration(refresh.IntervalMs)*time.Millisecond)
	default:
		fmt.Fprintln(w, "  Refresh: disabled")
	}
}

// PrintCollectionList prints the configured collections with their URLs.
func PrintCollectionList(w io.Writer, cols []*collection.Collection) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tURL")
	for _, c := range cols {
		url := "-"
		if collection.Fetchable(c.Kind()) {
			if u, err := c.BuildURL(); err == nil {
				url = u
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Name(), c.Kind().Name(), url)
	}
	_ = tw.Flush()
}

// NextRefresh formats the time until the next scheduled refresh.
func NextRefresh(next time.Time) string {
	if next.IsZero() {
		return "not scheduled"
	}
	return humanize.Time(next)
}

func pluralize(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

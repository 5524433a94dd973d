// Package ui renders CLI output: folder tables, ranked search results,
// job progress, and index stats. Color is used on interactive terminals
// and dropped for pipes, CI, and NO_COLOR.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/trentonhq/trenton/internal/app"
	"github.com/trentonhq/trenton/internal/search"
	"github.com/trentonhq/trenton/internal/store"
)

// Printer writes formatted command output.
type Printer struct {
	out    io.Writer
	styles Styles
}

// NewPrinter builds a printer for out. Color is enabled only when out is
// an interactive terminal, NO_COLOR is unset, and noColor is false.
func NewPrinter(out io.Writer, noColor bool) *Printer {
	plain := noColor || DetectNoColor() || !IsTTY(out)
	return &Printer{out: out, styles: GetStyles(plain)}
}

// Successf prints a success line.
func (p *Printer) Successf(format string, args ...any) {
	fmt.Fprintln(p.out, p.styles.Success.Render(fmt.Sprintf(format, args...)))
}

// Warnf prints a warning line.
func (p *Printer) Warnf(format string, args ...any) {
	fmt.Fprintln(p.out, p.styles.Warning.Render(fmt.Sprintf(format, args...)))
}

// Errorf prints an error line.
func (p *Printer) Errorf(format string, args ...any) {
	fmt.Fprintln(p.out, p.styles.Error.Render(fmt.Sprintf(format, args...)))
}

// Infof prints an unstyled line.
func (p *Printer) Infof(format string, args ...any) {
	fmt.Fprintf(p.out, format+"\n", args...)
}

// FolderRow pairs a folder with its indexed file count.
type FolderRow struct {
	Folder    store.Folder
	FileCount int
}

// Folders prints the registered folder table.
func (p *Printer) Folders(rows []FolderRow) {
	if len(rows) == 0 {
		fmt.Fprintln(p.out, p.styles.Dim.Render("No folders registered."))
		return
	}
	fmt.Fprintln(p.out, p.styles.Header.Render(
		fmt.Sprintf("%-4s %-10s %-8s %6s  %s", "ID", "MODALITY", "ACTIVE", "FILES", "PATH")))
	for _, r := range rows {
		active := "yes"
		if !r.Folder.IsActive {
			active = "no"
		}
		fmt.Fprintf(p.out, "%-4d %-10s %-8s %6d  %s\n",
			r.Folder.ID, r.Folder.Modality.String(), active, r.FileCount,
			p.styles.Accent.Render(r.Folder.Path))
	}
}

// SearchResults prints a ranked result list with any deletion warnings.
func (p *Printer) SearchResults(resp *search.Response) {
	for _, w := range resp.Warnings {
		fmt.Fprintln(p.out, p.styles.Warning.Render(w))
	}
	if len(resp.Results) == 0 {
		fmt.Fprintln(p.out, p.styles.Dim.Render("No results."))
		return
	}
	for i, r := range resp.Results {
		marker := ""
		if r.File.IsDeleted {
			marker = p.styles.Warning.Render(" [deleted]")
		}
		fmt.Fprintf(p.out, "%2d. %s  %s %s%s\n",
			i+1,
			p.styles.Score.Render(fmt.Sprintf("%.4f", r.Score)),
			p.styles.Dim.Render(fmt.Sprintf("%-11s", r.Modality.String())),
			r.File.Path,
			marker)
	}
	fmt.Fprintln(p.out, p.styles.Dim.Render(
		fmt.Sprintf("%d results in %s", resp.Total, resp.Elapsed.Round(time.Millisecond))))
}

// JobLine formats a one-line job summary for progress polling.
func JobLine(j *store.IndexingJob) string {
	var b strings.Builder
	fmt.Fprintf(&b, "job %d [%s] %s", j.ID, j.Kind, j.Status)
	if j.TotalFiles > 0 {
		fmt.Fprintf(&b, " %d/%d", j.ProcessedFiles+j.FailedFiles, j.TotalFiles)
	}
	if j.FailedFiles > 0 {
		fmt.Fprintf(&b, " (%d failed)", j.FailedFiles)
	}
	if j.ErrorMessage != "" {
		fmt.Fprintf(&b, ": %s", j.ErrorMessage)
	}
	return b.String()
}

// Job prints a job summary, styled by outcome.
func (p *Printer) Job(j *store.IndexingJob) {
	line := JobLine(j)
	switch j.Status {
	case store.JobStatusCompleted:
		fmt.Fprintln(p.out, p.styles.Success.Render(line))
	case store.JobStatusFailed:
		fmt.Fprintln(p.out, p.styles.Error.Render(line))
	default:
		fmt.Fprintln(p.out, line)
	}
}

// Stats prints index statistics.
func (p *Printer) Stats(s *app.Stats) {
	label := func(name string) string { return p.styles.Label.Render(fmt.Sprintf("%-15s", name)) }
	fmt.Fprintf(p.out, "%s %d\n", label("Folders"), s.Folders)
	fmt.Fprintf(p.out, "%s %d\n", label("Files"), s.Files)
	fmt.Fprintf(p.out, "%s %d\n", label("Embeddings"), s.Embeddings)
	fmt.Fprintf(p.out, "%s %d\n", label("Active jobs"), s.ActiveJobs)
	fmt.Fprintf(p.out, "%s %d\n", label("Dropped events"), s.DroppedEvents)
	provider := s.Provider
	if provider == "" {
		provider = "unavailable"
	}
	status := p.styles.Success.Render("online")
	if !s.ProviderOnline {
		status = p.styles.Warning.Render("offline")
	}
	fmt.Fprintf(p.out, "%s %s (%s)\n", label("Provider"), provider, status)
}

// IsTTY reports whether w is an interactive terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectNoColor reports whether the NO_COLOR convention is in effect.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

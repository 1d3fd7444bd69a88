package report

import (
	"fmt"
	"strings"

	"flatwatch/internal/model"
	"flatwatch/internal/snapshot"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	sectionNew     = "NEW PROPERTIES"
	sectionRemoved = "REMOVED PROPERTIES"
	sectionAll     = "ALL PROPERTIES"
	emptySection   = "(none)"
)

// Renderer turns snapshots and diffs into the plain-text report and its subject.
type Renderer struct {
	DetailBaseURL string
	SubjectPrefix string
	printer       *message.Printer
}

func NewRenderer(detailBaseURL, subjectPrefix string) *Renderer {
	return &Renderer{
		DetailBaseURL: strings.TrimRight(detailBaseURL, "/"),
		SubjectPrefix: subjectPrefix,
		printer:       message.NewPrinter(language.English),
	}
}

// Render produces the three report sections in fixed order.
func (r *Renderer) Render(added, removed, full model.Snapshot) string {
	var b strings.Builder
	r.writeSection(&b, sectionNew, added)
	b.WriteString("\n")
	r.writeSection(&b, sectionRemoved, removed)
	b.WriteString("\n")
	r.writeSection(&b, sectionAll, full)
	return b.String()
}

func (r *Renderer) writeSection(b *strings.Builder, title string, s model.Snapshot) {
	fmt.Fprintf(b, "%s (%d)\n\n", title, len(s))
	if len(s) == 0 {
		b.WriteString(emptySection + "\n")
		return
	}
	for _, l := range s.Sorted() {
		r.writeListing(b, l)
		b.WriteString("\n")
	}
}

func (r *Renderer) writeListing(b *strings.Builder, l model.Listing) {
	fmt.Fprintf(b, "- %s\n", l.Title)
	r.printer.Fprintf(b, "  %d rooms | %d m² | €%d\n", l.Rooms, l.Size, l.Price)
	fmt.Fprintf(b, "  %d people | available %s\n", l.People, l.Calendar)
	fmt.Fprintf(b, "  %s\n", r.DetailURL(l))
}

// DetailURL joins the detail base URL with the listing's relative path.
func (r *Renderer) DetailURL(l model.Listing) string {
	if strings.HasPrefix(l.URL, "http://") || strings.HasPrefix(l.URL, "https://") {
		return l.URL
	}
	if l.URL != "" && !strings.HasPrefix(l.URL, "/") {
		return r.DetailBaseURL + "/" + l.URL
	}
	return r.DetailBaseURL + l.URL
}

// RenderError builds the report sent instead of the listing report when a run fails.
func (r *Renderer) RenderError(err error) string {
	var b strings.Builder
	b.WriteString("The listing check failed.\n\n")
	fmt.Fprintf(&b, "Kind:  %s\n", model.ErrorKind(err))
	fmt.Fprintf(&b, "Error: %v\n", err)
	b.WriteString("\nThe cached snapshot was not updated.\n")
	return b.String()
}

// Subject summarizes a diff in one line.
func (r *Renderer) Subject(d snapshot.Result) string {
	if !d.HasChanges() {
		return r.SubjectPrefix + ": no changes"
	}
	return fmt.Sprintf("%s: %d new, %d removed", r.SubjectPrefix, len(d.Added), len(d.Removed))
}

func (r *Renderer) ErrorSubject() string {
	return r.SubjectPrefix + " script error"
}

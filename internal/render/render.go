// Package render turns view states into terminal output.
package render

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"projectdesk/internal/domain"
	"projectdesk/internal/view"
)

// Heading is printed above every branch.
const Heading = "Project Detail"

const signedLayout = "2006-01-02T15:04:05.000Z07:00"

// Card describes the detail view of one record.
type Card struct {
	ImageURL    string `json:"image_url"`
	ImageAlt    string `json:"image_alt"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Budget      string `json:"budget"`
	Signed      string `json:"signed"`
	Status      string `json:"status"`
	Active      bool   `json:"active"`
}

// DetailCard builds the card for p.
func DetailCard(p domain.Project) Card {
	status := "inactive"
	if p.IsActive {
		status = "active"
	}
	return Card{
		ImageURL:    p.ImageURL,
		ImageAlt:    p.Name,
		Title:       p.Name,
		Description: p.Description,
		Budget:      "Budget : " + strconv.FormatFloat(p.Budget, 'f', -1, 64),
		Signed:      "Signed: " + p.ContractSignedOn.UTC().Format(signedLayout),
		Status:      status,
		Active:      p.IsActive,
	}
}

// Output is the machine-readable form of a rendered state.
type Output struct {
	Branch string `json:"branch"`
	ID     *int64 `json:"id,omitempty"`
	Error  string `json:"error,omitempty"`
	Card   *Card  `json:"card,omitempty"`
}

// Snapshot describes the branch selected for s.
func Snapshot(s view.State) Output {
	out := Output{Branch: view.SelectBranch(s).String()}
	switch st := s.(type) {
	case view.Loading:
		out.ID = domain.Int64(st.ID)
	case view.Failed:
		out.ID = domain.Int64(st.ID)
		out.Error = st.Reason
	case view.Loaded:
		out.ID = domain.Int64(st.ID)
		card := DetailCard(st.Project)
		out.Card = &card
	}
	return out
}

// Renderer writes the heading and exactly one branch per state.
type Renderer struct {
	out   io.Writer
	style table.Style
}

func New(w io.Writer) *Renderer {
	return &Renderer{out: w, style: table.StyleRounded}
}

// Render writes s. Idle writes only the heading.
func (r *Renderer) Render(s view.State) error {
	if _, err := fmt.Fprintln(r.out, color.New(color.Bold).Sprint(Heading)); err != nil {
		return err
	}
	switch view.SelectBranch(s) {
	case view.BranchLoading:
		return r.loading()
	case view.BranchError:
		return r.failure(s.(view.Failed))
	case view.BranchDetail:
		return r.detail(DetailCard(s.(view.Loaded).Project))
	}
	return nil
}

func (r *Renderer) loading() error {
	_, err := fmt.Fprintf(r.out, "%s Loading...\n", color.New(color.FgCyan).Sprint("◌"))
	return err
}

func (r *Renderer) failure(f view.Failed) error {
	tw := table.NewWriter()
	tw.SetOutputMirror(r.out)
	tw.SetStyle(r.style)
	tw.AppendRow(table.Row{color.New(color.FgRed).Sprintf("! %s", f.Reason)})
	tw.Render()
	return nil
}

func (r *Renderer) detail(c Card) error {
	tw := table.NewWriter()
	tw.SetOutputMirror(r.out)
	tw.SetStyle(r.style)
	tw.SetTitle(color.New(color.Bold).Sprint(c.Title))
	status := color.New(color.FgYellow).Sprint(c.Status)
	if c.Active {
		status = color.New(color.FgGreen).Sprint(c.Status)
	}
	tw.AppendRows([]table.Row{
		{"Image", c.ImageURL},
		{"Description", c.Description},
		{"Budget", c.Budget},
		{"Signed", c.Signed},
		{"Status", status},
	})
	tw.Render()
	return nil
}

// Transition formats one controller transition for logs and the journal.
func Transition(tr view.Transition) string {
	return fmt.Sprintf("%s #%d %s -> %s", tr.At.UTC().Format(time.RFC3339), tr.Generation, tr.From, tr.To)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gosuri/uitable"
)

// Dependencies are the external collaborators of a run
type Dependencies struct {
	// Connect loads credentials and builds the service clients.
	Connect func(ctx context.Context, cfg AuthConfig) (*Credentials, *OCIClients, error)
	// NewRenderer initialises the diagram engine.
	NewRenderer func(ctx context.Context, cfg DiagramConfig) (DiagramRenderer, error)
	// ProgressOut receives the progress bar; nil disables it.
	ProgressOut io.Writer
}

// DefaultDependencies wires the OCI SDK and the graphviz renderer
func DefaultDependencies() Dependencies {
	deps := Dependencies{
		Connect: connectOCI,
		NewRenderer: func(ctx context.Context, cfg DiagramConfig) (DiagramRenderer, error) {
			return NewRenderer(ctx, cfg)
		},
	}
	if terminalAttached(os.Stderr) {
		deps.ProgressOut = os.Stderr
	}
	return deps
}

func connectOCI(ctx context.Context, cfg AuthConfig) (*Credentials, *OCIClients, error) {
	creds, err := LoadCredentials(cfg)
	if err != nil {
		return nil, nil, err
	}
	clients, err := NewOCIClients(ctx, creds)
	if err != nil {
		return nil, nil, err
	}
	return creds, clients, nil
}

// CompartmentResult is the outcome of one compartment
type CompartmentResult struct {
	Compartment  Compartment
	Path         string
	Counts       map[Category]int
	Missing      []Category
	DiagramPath  string
	DiagramBytes int64
	Duration     time.Duration
	Err          error
}

// Succeeded reports a complete bundle that was drawn
func (r CompartmentResult) Succeeded() bool {
	return r.Err == nil && len(r.Missing) == 0
}

// RunSummary collects the per-compartment results of a run
type RunSummary struct {
	TenancyID    string
	Compartments []CompartmentResult
	Duration     time.Duration
}

// Failed reports whether any compartment or category failed
func (s *RunSummary) Failed() bool {
	for _, r := range s.Compartments {
		if !r.Succeeded() {
			return true
		}
	}
	return false
}

// Rendered returns the number of diagrams written
func (s *RunSummary) Rendered() int {
	n := 0
	for _, r := range s.Compartments {
		if r.DiagramPath != "" {
			n++
		}
	}
	return n
}

// Run performs the full pass: credentials, compartments, then collect and
// render each compartment in order. The returned error is non-nil only for
// fatal failures; per-compartment failures are recorded in the summary.
func Run(ctx context.Context, cfg *AppConfig, deps Dependencies, out io.Writer) (*RunSummary, error) {
	start := time.Now()
	summary := &RunSummary{}
	defer func() { summary.Duration = time.Since(start) }()

	renderer, err := deps.NewRenderer(ctx, cfg.Diagram)
	if err != nil {
		return summary, err
	}
	defer renderer.Close()

	creds, clients, err := deps.Connect(ctx, cfg.Auth)
	if err != nil {
		return summary, err
	}
	summary.TenancyID = creds.TenancyID
	logger.Verbose("Authenticated for tenancy %s in region %s", creds.TenancyID, creds.Region)

	compartments, err := EnumerateCompartments(ctx, clients.Identity, creds.TenancyID, cfg.EnumerateOptions())
	if err != nil {
		return summary, err
	}
	directory := NewCompartmentDirectory(creds.TenancyID, compartments)

	compartments = ApplyCompartmentFilter(compartments, cfg.Filters)
	logger.Info("Processing %d compartments", len(compartments))

	collector, err := NewCollector(clients, cfg.CollectorOptions())
	if err != nil {
		return summary, err
	}

	var inventory InventoryWriter
	if cfg.Output.File != "" {
		inventory, err = OpenInventoryFile(cfg.Output.File, cfg.Output.Format)
		if err != nil {
			return summary, err
		}
		defer func() {
			if cerr := inventory.Close(); cerr != nil {
				logger.Error("Failed to close inventory %s: %v", cfg.Output.File, cerr)
			}
		}()
	}

	titles := newDiagramTitles(cfg.Diagram.Format)

	progress := NewProgressTracker(cfg.General.Progress && deps.ProgressOut != nil, deps.ProgressOut, len(compartments))
	progress.Start()
	defer progress.Stop()

	for _, compartment := range compartments {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("run interrupted: %w", err)
		}

		progress.Begin(compartment.Name)
		result := processCompartment(ctx, compartment, directory.Path(compartment.ID), cfg, titles, collector, renderer, inventory, out)
		summary.Compartments = append(summary.Compartments, result)
		progress.Done(!result.Succeeded())

		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("run interrupted: %w", err)
		}
		if cfg.General.FailFast && !result.Succeeded() {
			if result.Err != nil {
				return summary, result.Err
			}
			return summary, fmt.Errorf("compartment %s: categories unavailable: %s", compartment.Name, joinCategories(result.Missing))
		}
	}

	return summary, nil
}

func processCompartment(ctx context.Context, compartment Compartment, path string, cfg *AppConfig, titles *diagramTitles,
	collector *Collector, renderer DiagramRenderer, inventory InventoryWriter, out io.Writer) (result CompartmentResult) {

	start := time.Now()
	result = CompartmentResult{Compartment: compartment, Path: path}
	defer func() { result.Duration = time.Since(start) }()
	log := logger.With("compartment", compartment.Name)

	fmt.Fprintf(out, "Fetching resources in compartment: %s\n", compartment.Name)

	bundle, err := collector.Collect(ctx, compartment)
	if bundle == nil {
		log.Error("Failed to collect resources: %v", err)
		result.Err = err
		return result
	}
	result.Counts = bundle.Counts()
	if err != nil {
		result.Missing = bundle.FailedCategories()
		log.Warn("Incomplete resource listing, missing: %s", joinCategories(result.Missing))
		if cfg.General.FailFast {
			return result
		}
	}
	log.Debug("Collected %d resources", bundle.Total())

	title := titles.next(DiagramTitle(cfg.Diagram, path), compartment.ID)
	diagramPath, err := renderer.Render(ctx, title, bundle)
	if err != nil {
		log.Error("Failed to render diagram: %v", err)
		result.Err = err
		return result
	}
	result.DiagramPath = diagramPath
	if info, err := os.Stat(diagramPath); err == nil {
		result.DiagramBytes = info.Size()
	}

	if inventory != nil {
		if err := inventory.WriteBundle(bundle, compartment.Name); err != nil {
			result.Err = fmt.Errorf("failed to write inventory: %w", err)
			return result
		}
	}

	fmt.Fprintf(out, "Diagram generated successfully for compartment: %s\n", compartment.Name)
	return result
}

// diagramTitles hands out titles whose file names are unique within a run.
// A title that folds onto a file already written gets the compartment's
// short OCID appended, then a counter.
type diagramTitles struct {
	format string
	used   map[string]bool
}

func newDiagramTitles(format string) *diagramTitles {
	return &diagramTitles{format: format, used: make(map[string]bool)}
}

func (d *diagramTitles) next(title, compartmentID string) string {
	candidate := title
	if d.used[d.key(candidate)] {
		candidate = fmt.Sprintf("%s (%s)", title, formatShortOCID(compartmentID))
	}
	for n := 2; d.used[d.key(candidate)]; n++ {
		candidate = fmt.Sprintf("%s (%s) %d", title, formatShortOCID(compartmentID), n)
	}
	d.used[d.key(candidate)] = true
	return candidate
}

// key is case-folded for case-insensitive file systems
func (d *diagramTitles) key(title string) string {
	return strings.ToLower(DiagramFilename(title, d.format))
}

func joinCategories(categories []Category) string {
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

// PrintSummary writes a per-compartment table of the run
func PrintSummary(w io.Writer, summary *RunSummary) {
	table := uitable.New()
	table.MaxColWidth = 60
	table.Wrap = true

	table.AddRow("COMPARTMENT", "COMPUTE", "DATABASES", "NETWORKING", "STORAGE", "DIAGRAM", "SIZE", "STATUS")
	for _, r := range summary.Compartments {
		size := "-"
		if r.DiagramBytes > 0 {
			size = humanize.Bytes(uint64(r.DiagramBytes))
		}
		diagram := r.DiagramPath
		if diagram == "" {
			diagram = "-"
		}
		table.AddRow(
			r.Path,
			r.Counts[CategoryCompute],
			r.Counts[CategoryDatabases],
			r.Counts[CategoryNetworking],
			r.Counts[CategoryObjectStorage],
			diagram,
			size,
			resultStatus(r),
		)
	}
	fmt.Fprintln(w, table)
	fmt.Fprintf(w, "\n%d of %d diagrams rendered in %s\n",
		summary.Rendered(), len(summary.Compartments), summary.Duration.Round(time.Millisecond))
}

func resultStatus(r CompartmentResult) string {
	var remote *RemoteListError
	var render *RenderError
	switch {
	case r.Err != nil && errors.As(r.Err, &render):
		return "render failed"
	case r.Err != nil && errors.As(r.Err, &remote):
		return "listing failed"
	case r.Err != nil:
		return "failed"
	case len(r.Missing) > 0:
		return "partial (" + joinCategories(r.Missing) + ")"
	default:
		return "ok"
	}
}

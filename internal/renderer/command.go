// Package renderer builds and runs the external renderer command line.
package renderer

import (
	"fmt"
	"strconv"
)

// DefaultBinary is the renderer executable looked up on PATH.
const DefaultBinary = "inkscape"

// Export area modes.
const (
	AreaPage    = "page"
	AreaDrawing = "drawing"
	AreaCustom  = "custom"
)

// Resolution modes.
const (
	ResolutionDefault = "default"
	ResolutionDPI     = "dpi"
	ResolutionSize    = "size"
)

// Options is the part of the configuration that shapes the command prefix.
type Options struct {
	Binary     string
	ExportType string
	PlainSVG   bool
	PDFVersion string

	AreaType string
	// AreaSize is x0:y0:x1:y1, used with AreaCustom.
	AreaSize string

	ResolutionType string
	DPI            int
	Width          int
	Height         int
}

// Command returns the renderer command prefix: the binary followed by every
// argument shared by all layers of a run. It depends on opts only.
func Command(opts Options) []string {
	bin := opts.Binary
	if bin == "" {
		bin = DefaultBinary
	}
	cmd := []string{bin, "--vacuum-defs"}

	switch opts.ExportType {
	case "svg":
		if opts.PlainSVG {
			cmd = append(cmd, "--export-plain-svg")
		}
	case "pdf":
		cmd = append(cmd, "--export-pdf-version="+opts.PDFVersion)
	}

	switch opts.AreaType {
	case AreaDrawing:
		cmd = append(cmd, "--export-area-drawing")
	case AreaCustom:
		cmd = append(cmd, "--export-area="+opts.AreaSize)
	default:
		cmd = append(cmd, "--export-area-page")
	}

	switch opts.ResolutionType {
	case ResolutionDPI:
		cmd = append(cmd, "--export-dpi="+strconv.Itoa(opts.DPI))
	case ResolutionSize:
		cmd = append(cmd,
			fmt.Sprintf("--export-width=%d", opts.Width),
			fmt.Sprintf("--export-height=%d", opts.Height))
	}
	return cmd
}

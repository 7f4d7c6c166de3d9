package report

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"example.com/nbsgate/internal/common"
)

// SaveSummaryPDF renders the given ingest summary into a PDF document.
func SaveSummaryPDF(sum IngestSummary, out string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Ingest Summary", false)
	pdf.SetAuthor("nbsctl", false)
	pdf.SetCreator("nbsctl", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	addPDFTitle(pdf, "Ingest Summary")
	addCaptureSection(pdf, sum)
	addTotalsSection(pdf, sum)
	addCommandSection(pdf, sum.Commands)
	addDatastreamSection(pdf, sum.Datastreams)
	addDigestQR(pdf, sum.Digest)

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.OutputFileAndClose(out)
}

func addPDFTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)
}

func addCaptureSection(pdf *gofpdf.Fpdf, sum IngestSummary) {
	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(0, 5, "Capture: "+emptyFallback(sum.Capture, "-"), "", "L", false)
	if sum.Digest != "" {
		pdf.MultiCell(0, 5, "SHA-256: "+sum.Digest, "", "L", false)
	}
	if !sum.GeneratedAt.IsZero() {
		pdf.MultiCell(0, 5, "Generated: "+sum.GeneratedAt.Format(time.RFC3339), "", "L", false)
	}
	pdf.Ln(4)
}

func addTotalsSection(pdf *gofpdf.Fpdf, sum IngestSummary) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Totals")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	items := []struct {
		label string
		value string
	}{
		{label: "Frames", value: strconv.FormatInt(sum.Frames, 10)},
		{label: "Bytes", value: common.FormatBytes(sum.Bytes)},
		{label: "Resyncs", value: strconv.FormatInt(sum.Resyncs, 10)},
		{label: "Duplicates", value: strconv.FormatInt(sum.Duplicates, 10)},
		{label: "Late drops", value: strconv.FormatInt(sum.Late, 10)},
		{label: "Capacity drops", value: strconv.FormatInt(sum.Dropped, 10)},
		{label: "Elapsed", value: sum.Elapsed.Round(time.Millisecond).String()},
	}
	for _, item := range items {
		pdf.CellFormat(50, 6, item.label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, item.value, "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

func addCommandSection(pdf *gofpdf.Fpdf, rows []CommandCount) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Frames by Command")
	pdf.Ln(9)

	headers := []string{"Command", "Frames", "Bytes"}
	widths := []float64{70, 45, 45}

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	lineHeight := 5.0
	for _, row := range rows {
		values := []string{
			emptyFallback(row.Command, "-"),
			strconv.FormatInt(row.Frames, 10),
			common.FormatBytes(row.Bytes),
		}
		renderTableRow(pdf, widths, values, lineHeight)
	}
	pdf.Ln(4)
}

func addDatastreamSection(pdf *gofpdf.Fpdf, rows []DatastreamCount) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Data Frames by Datastream")
	pdf.Ln(9)

	if len(rows) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, "No data-transfer frames recorded.", "", "L", false)
		pdf.Ln(4)
		return
	}

	headers := []string{"Datastream", "Frames", "Products"}
	widths := []float64{70, 45, 45}

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	lineHeight := 5.0
	for _, row := range rows {
		values := []string{
			datastreamLabel(row.Datastream),
			strconv.FormatInt(row.Frames, 10),
			strconv.FormatInt(row.Products, 10),
		}
		renderTableRow(pdf, widths, values, lineHeight)
	}
	pdf.Ln(4)
}

func addDigestQR(pdf *gofpdf.Fpdf, digest string) {
	if strings.TrimSpace(digest) == "" {
		return
	}
	png, err := DigestToQR(digest, 256)
	if err != nil {
		return
	}
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("capture-digest-qr", opts, bytes.NewReader(png))
	pdf.ImageOptions("capture-digest-qr", 15, pdf.GetY(), 30, 30, false, opts, 0, "")
	pdf.Ln(34)
}

func renderTableRow(pdf *gofpdf.Fpdf, widths []float64, values []string, lineHeight float64) {
	xStart := pdf.GetX()
	yStart := pdf.GetY()
	maxLines := 1
	splitCols := make([][]string, len(values))
	for i, val := range values {
		text := strings.TrimSpace(val)
		if text == "" {
			text = "-"
		}
		lines := pdf.SplitText(text, widths[i]-2)
		if len(lines) == 0 {
			lines = []string{""}
		}
		splitCols[i] = lines
		if len(lines) > maxLines {
			maxLines = len(lines)
		}
	}
	rowHeight := float64(maxLines) * lineHeight
	x := xStart
	for i, lines := range splitCols {
		pdf.SetXY(x, yStart)
		cellText := strings.Join(lines, "\n")
		pdf.MultiCell(widths[i], lineHeight, cellText, "1", "L", false)
		x += widths[i]
	}
	pdf.SetXY(xStart, yStart+rowHeight)
}

func datastreamLabel(ds uint8) string {
	switch ds {
	case 1:
		return "1 (GOES EAST)"
	case 2:
		return "2 (GOES WEST)"
	case 4:
		return "4 (NOAAPORT OPT)"
	case 5:
		return "5 (NMC)"
	default:
		return fmt.Sprintf("%d", ds)
	}
}

func emptyFallback(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}

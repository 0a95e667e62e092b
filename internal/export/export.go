package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/amirbrooks/todo/internal/store"
)

var Formats = []string{"json", "ndjson", "csv", "pdf"}

// Ext returns the file extension for format, or "" if it is unknown.
func Ext(format string) string {
	f := normalize(format)
	for _, known := range Formats {
		if f == known {
			return known
		}
	}
	return ""
}

func normalize(format string) string {
	return strings.ToLower(strings.TrimSpace(format))
}

// Render encodes tasks in the given format.
func Render(tasks []store.Task, format string) ([]byte, error) {
	if tasks == nil {
		tasks = []store.Task{}
	}
	switch normalize(format) {
	case "json":
		b, err := json.MarshalIndent(map[string]any{"tasks": tasks}, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(b, '\n'), nil
	case "ndjson":
		var buf bytes.Buffer
		for _, t := range tasks {
			line, err := json.Marshal(t)
			if err != nil {
				return nil, err
			}
			buf.Write(line)
			buf.WriteByte('\n')
		}
		return buf.Bytes(), nil
	case "csv":
		return renderCSV(tasks)
	case "pdf":
		return renderPDF(tasks)
	default:
		return nil, fmt.Errorf("%w: unknown export format %q", store.ErrInvalid, format)
	}
}

func renderCSV(tasks []store.Task) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"id", "title", "description", "completed", "created_at"})
	for _, t := range tasks {
		_ = w.Write([]string{
			strconv.Itoa(t.ID),
			t.Title,
			t.Description,
			strconv.FormatBool(t.Completed),
			t.CreatedAt.String(),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderPDF(tasks []store.Task) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("To-Do List", true)
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 14)
	pdf.Cell(40, 10, "To-Do List")
	pdf.Ln(12)
	if len(tasks) == 0 {
		pdf.SetFont("Arial", "I", 10)
		pdf.Cell(40, 6, "No tasks found.")
		pdf.Ln(6)
	}
	for _, t := range tasks {
		box := "[ ]"
		if t.Completed {
			box = "[x]"
		}
		pdf.SetFont("Arial", "B", 10)
		pdf.MultiCell(0, 6, tr(fmt.Sprintf("%s %d. %s", box, t.ID, t.Title)), "0", "L", false)
		pdf.SetFont("Arial", "", 9)
		if t.Description != "" {
			pdf.MultiCell(0, 5, tr("    "+t.Description), "0", "L", false)
		}
		pdf.MultiCell(0, 5, "    Created: "+t.CreatedAt.String(), "0", "L", false)
		pdf.Ln(2)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

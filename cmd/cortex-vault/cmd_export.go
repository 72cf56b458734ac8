package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/cortex-vault/internal/models"
	"github.com/ajitpratap0/cortex-vault/internal/projection"
	"github.com/ajitpratap0/cortex-vault/internal/query"
)

// exportRecord is the flat export shape shared by every format.
type exportRecord struct {
	ID             string   `json:"id" yaml:"id"`
	Type           string   `json:"type" yaml:"type"`
	Status         string   `json:"status" yaml:"status"`
	Text           string   `json:"text" yaml:"text"`
	Confidence     float64  `json:"confidence" yaml:"confidence"`
	Category       string   `json:"category,omitempty" yaml:"category,omitempty"`
	Entities       []string `json:"entities" yaml:"entities"`
	AccessCount    int64    `json:"access_count" yaml:"access_count"`
	CreatedAt      string   `json:"created_at" yaml:"created_at"`
	UpdatedAt      string   `json:"updated_at" yaml:"updated_at"`
	LastAccessedAt string   `json:"last_accessed_at,omitempty" yaml:"last_accessed_at,omitempty"`
}

func toExportRecord(m *models.Memory) exportRecord {
	r := exportRecord{
		ID:          m.ID,
		Type:        string(m.Type),
		Status:      string(m.Status),
		Text:        m.Text,
		Confidence:  m.Confidence,
		Category:    m.CategoryValue(),
		Entities:    m.Entities,
		AccessCount: m.AccessCount,
		CreatedAt:   m.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   m.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if m.LastAccessedAt != nil {
		r.LastAccessedAt = m.LastAccessedAt.UTC().Format(time.RFC3339)
	}
	return r
}

func exportCmd() *cobra.Command {
	var (
		format string
		output string
		sortBy string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all memories to JSON, YAML or CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			k, err := query.ParseSortKey(sortBy)
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}

			memories, err := newClient(logger).ListMemories(ctx, credentials())
			if err != nil {
				return fmt.Errorf("export: listing memories: %w", err)
			}
			ordered := projection.Project(memories, query.NewSnapshot("", nil, k))
			all := make([]exportRecord, len(ordered))
			for i, m := range ordered {
				all[i] = toExportRecord(m)
			}

			var w io.Writer
			if output == "" || output == "-" {
				w = cmd.OutOrStdout()
			} else {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("export: creating output file: %w", err)
				}
				defer func() { _ = f.Close() }()
				w = f
			}

			if err := writeExport(w, format, all); err != nil {
				return fmt.Errorf("export: %w", err)
			}
			if output != "" && output != "-" {
				logger.Info("export complete", "count", len(all), "format", format, "file", output)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "output format: json, yaml or csv")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().StringVar(&sortBy, "sort", "date", "order: date, confidence or access")
	return cmd
}

func writeExport(w io.Writer, format string, all []exportRecord) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(all); err != nil {
			return fmt.Errorf("encoding JSON: %w", err)
		}
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(all); err != nil {
			return fmt.Errorf("encoding YAML: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("encoding YAML: %w", err)
		}
	case "csv":
		cw := csv.NewWriter(w)
		headers := []string{"id", "type", "status", "text", "confidence", "category", "entities", "access_count", "created_at", "updated_at", "last_accessed_at"}
		if err := cw.Write(headers); err != nil {
			return fmt.Errorf("writing CSV header: %w", err)
		}
		for i := range all {
			r := &all[i]
			row := []string{
				r.ID,
				r.Type,
				r.Status,
				r.Text,
				strconv.FormatFloat(r.Confidence, 'f', 4, 64),
				r.Category,
				strings.Join(r.Entities, ";"),
				strconv.FormatInt(r.AccessCount, 10),
				r.CreatedAt,
				r.UpdatedAt,
				r.LastAccessedAt,
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("writing CSV row: %w", err)
			}
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			return fmt.Errorf("flushing CSV: %w", err)
		}
	default:
		return fmt.Errorf("unsupported format %q: use json, yaml or csv", format)
	}
	return nil
}

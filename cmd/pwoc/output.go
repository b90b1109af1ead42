package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/kevinmichaelchen/papers-without-code/internal/models"
	"go.yaml.in/yaml/v3"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

func parseFormat(s string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(s)); f {
	case formatText, formatJSON, formatYAML:
		return f, nil
	case "yml":
		return formatYAML, nil
	default:
		return "", models.Errorf(models.KindInvalidInput, "pwoc.format", "unknown output format %q", s)
	}
}

func writeResults(w io.Writer, format string, repos []models.RankedRepo) error {
	f, err := parseFormat(format)
	if err != nil {
		return err
	}
	if repos == nil {
		repos = []models.RankedRepo{}
	}

	switch f {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(repos)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(repos); err != nil {
			return err
		}
		return enc.Close()
	default:
		return writeText(w, repos)
	}
}

func writeText(w io.Writer, repos []models.RankedRepo) error {
	var b strings.Builder
	if len(repos) == 0 {
		b.WriteString("No repositories found\n")
	} else {
		b.WriteString("Most similar repository:\n")
		writeRepo(&b, repos[0])
		if len(repos) > 1 {
			b.WriteString("\nOther repositories:\n")
			for _, r := range repos[1:] {
				writeRepo(&b, r)
			}
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeRepo(b *strings.Builder, r models.RankedRepo) {
	fmt.Fprintf(b, "  %s  (%.3f)  ★ %d  forks %d  watchers %d\n", r.Name, r.Similarity, r.Stars, r.Forks, r.Watchers)
	fmt.Fprintf(b, "    %s\n", r.Link)
	if r.Description != nil && *r.Description != "" {
		fmt.Fprintf(b, "    %s\n", *r.Description)
	}
	fmt.Fprintf(b, "    found by %s\n", r.SearchQuery)
}

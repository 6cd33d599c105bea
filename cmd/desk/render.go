package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"article-desk/internal/model"

	"gopkg.in/yaml.v3"
)

// renderArticles writes articles in the given format. In table form the
// article being edited, if any, is marked.
func renderArticles(w io.Writer, format string, articles []model.Article, editing int, selected bool) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(articles)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(articles)
	case "table", "":
	default:
		return fmt.Errorf("unknown output format %q", format)
	}

	if len(articles) == 0 {
		_, err := fmt.Fprintln(w, "No articles yet")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tTOPIC\tTITLE\tTEXT")
	for _, a := range articles {
		mark := ""
		if selected && a.ID == editing {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", mark, a.ID, a.Topic, a.Title, clip(a.Text, 48))
	}
	return tw.Flush()
}

func clip(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}

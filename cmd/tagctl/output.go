package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bigkaa/goarttag/internal/domain/model"
	"github.com/bigkaa/goarttag/internal/service"
)

// Форматы вывода.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func validateFormat(f string) error {
	switch f {
	case formatTable, formatJSON, formatYAML:
		return nil
	}
	return fmt.Errorf("недопустимый формат вывода %q, допустимые: table, json, yaml", f)
}

// render выводит data в json/yaml либо таблицей через table.
func render(w io.Writer, f string, data any, table func(tw *tabwriter.Writer)) error {
	switch f {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	case formatTable:
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		table(tw)
		return tw.Flush()
	}
	return validateFormat(f)
}

func printConfigs(w io.Writer, f string, items []*model.TagConfig) error {
	if items == nil {
		items = []*model.TagConfig{}
	}
	return render(w, f, items, func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "ID\tENTITY TYPE\tPREFIX\tSEP\tFORMAT\tAUTO\tCURRENT\tPADDING")
		for _, c := range items {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%q\t%s\t%t\t%d\t%d\n",
				c.ID, c.EntityType, c.Prefix, c.Separator, c.Format, c.AutoGenerate, c.CurrentNumber, c.PaddingLength)
		}
	})
}

func printTags(w io.Writer, f string, items []*model.Tag) error {
	if items == nil {
		items = []*model.Tag{}
	}
	return render(w, f, items, func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "ID\tVALUE\tOWNER TYPE\tOWNER ID\tUPDATED")
		for _, t := range items {
			id := "-"
			if t.ID != 0 {
				id = strconv.FormatInt(t.ID, 10)
			}
			updated := "-"
			if !t.UpdatedAt.IsZero() {
				updated = t.UpdatedAt.UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", id, t.Value, t.OwnerType, t.OwnerID, updated)
		}
	})
}

func printBulkResult(w io.Writer, f string, result *service.BulkResult) error {
	return render(w, f, result, func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "TAG ID\tSTATUS\tOLD\tNEW\tERROR")
		for _, u := range result.Regenerated {
			fmt.Fprintf(tw, "%d\tregenerated\t%s\t%s\t\n", u.ID, u.OldValue, u.NewValue)
		}
		for _, e := range result.Failed {
			fmt.Fprintf(tw, "%d\tfailed\t\t\t%s\n", e.ID, e.Error)
		}
	})
}

// bulkDeleted — итог массового удаления в том же виде, что отдаёт API.
type bulkDeleted struct {
	DeletedCount int `json:"deletedCount" yaml:"deletedCount"`
}

func printBulkDeleted(w io.Writer, f string, n int) error {
	return render(w, f, bulkDeleted{DeletedCount: n}, func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "Удалено тегов: %d\n", n)
	})
}

package askdatactl

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
)

const maxRenderedRows = 50

type failure struct {
	Index     int    `json:"index"`
	Statement string `json:"statement"`
	Table     string `json:"table"`
	Error     string `json:"error"`
}

type uploadResponse struct {
	Message           string           `json:"message"`
	Columns           []string         `json:"columns"`
	Rows              []map[string]any `json:"rows"`
	TableName         *string          `json:"table_name"`
	AllTables         []string         `json:"all_tables"`
	TotalRows         int64            `json:"total_rows"`
	PreviewRows       int              `json:"preview_rows"`
	StatementFailures []failure        `json:"statement_failures"`
	PreviewFailures   []failure        `json:"preview_failures"`
}

type askResponse struct {
	SQL        string           `json:"sql"`
	Result     []map[string]any `json:"result"`
	ResultRows int              `json:"result_rows"`
	Columns    []string         `json:"columns"`
	Query      string           `json:"query"`
	TablesUsed []string         `json:"tables_used"`
	Truncated  bool             `json:"truncated"`
}

type deleteResponse struct {
	Message       string    `json:"message"`
	DeletedTables []string  `json:"deleted_tables"`
	DropFailures  []failure `json:"drop_failures"`
}

type schemaResponse struct {
	Version   uint64   `json:"version"`
	TableName *string  `json:"table_name"`
	AllTables []string `json:"all_tables"`
	Schemas   []struct {
		TableName string   `json:"table_name"`
		Columns   []string `json:"columns"`
		TopRows   [][]any  `json:"top_rows"`
	} `json:"schemas"`
	PreviewFailures []failure `json:"preview_failures"`
	Removed         []string  `json:"removed_tables"`
}

type historyResponse struct {
	Ingestions []struct {
		Filename          string    `json:"filename"`
		Format            string    `json:"format"`
		Tables            []string  `json:"tables"`
		TotalRows         int64     `json:"total_rows"`
		StatementFailures int       `json:"statement_failures"`
		Status            string    `json:"status"`
		Error             string    `json:"error"`
		CreatedAt         time.Time `json:"created_at"`
	} `json:"ingestions"`
	Questions []struct {
		Question   string    `json:"question"`
		SQL        string    `json:"sql"`
		ResultRows int       `json:"result_rows"`
		Status     string    `json:"status"`
		ErrorCode  string    `json:"error_code"`
		CreatedAt  time.Time `json:"created_at"`
	} `json:"questions"`
}

var (
	headline = color.New(color.FgCyan, color.Bold)
	success  = color.New(color.FgGreen, color.Bold)
	warning  = color.New(color.FgYellow, color.Bold)
	failed   = color.New(color.FgRed, color.Bold)
	sqlText  = color.New(color.FgMagenta)
)

func renderUpload(w io.Writer, body uploadResponse) {
	_, _ = success.Fprintln(w, body.Message)
	if body.TableName != nil {
		_, _ = fmt.Fprintf(w, "primary table: %s (%d rows)\n", *body.TableName, body.TotalRows)
	}
	_, _ = fmt.Fprintf(w, "tables: %s\n", strings.Join(body.AllTables, ", "))
	for _, f := range body.StatementFailures {
		_, _ = warning.Fprintf(w, "statement %d failed: %s\n", f.Index, f.Error)
	}
	for _, f := range body.PreviewFailures {
		_, _ = warning.Fprintf(w, "preview of %s failed: %s\n", f.Table, f.Error)
	}
	if len(body.Columns) > 0 {
		_, _ = fmt.Fprintln(w)
		writeTable(w, body.Columns, body.Rows)
	}
}

func renderAsk(w io.Writer, body askResponse) {
	_, _ = headline.Fprintln(w, "SQL")
	_, _ = sqlText.Fprintln(w, body.SQL)
	_, _ = fmt.Fprintln(w)
	if body.ResultRows == 0 {
		_, _ = warning.Fprintln(w, "no rows")
		return
	}
	writeTable(w, body.Columns, body.Result)
	suffix := ""
	if body.Truncated {
		suffix = " (truncated)"
	}
	_, _ = fmt.Fprintf(w, "\n%d row(s)%s\n", body.ResultRows, suffix)
}

func renderDelete(w io.Writer, body deleteResponse) {
	_, _ = success.Fprintln(w, body.Message)
	for _, table := range body.DeletedTables {
		_, _ = fmt.Fprintf(w, "  dropped %s\n", table)
	}
	for _, f := range body.DropFailures {
		_, _ = failed.Fprintf(w, "  could not drop %s: %s\n", f.Table, f.Error)
	}
}

func renderSchema(w io.Writer, body schemaResponse) {
	if len(body.Schemas) == 0 {
		_, _ = warning.Fprintln(w, "no data uploaded")
		return
	}
	for _, table := range body.Removed {
		_, _ = warning.Fprintf(w, "removed vanished table %s\n", table)
	}
	for _, f := range body.PreviewFailures {
		_, _ = warning.Fprintf(w, "preview of %s failed: %s\n", f.Table, f.Error)
	}
	for i, schema := range body.Schemas {
		if i > 0 {
			_, _ = fmt.Fprintln(w)
		}
		marker := ""
		if body.TableName != nil && *body.TableName == schema.TableName {
			marker = " (primary)"
		}
		_, _ = headline.Fprintf(w, "%s%s\n", schema.TableName, marker)
		rows := make([]map[string]any, 0, len(schema.TopRows))
		for _, values := range schema.TopRows {
			row := map[string]any{}
			for j, column := range schema.Columns {
				if j < len(values) {
					row[column] = values[j]
				}
			}
			rows = append(rows, row)
		}
		writeTable(w, schema.Columns, rows)
	}
}

func renderHistory(w io.Writer, body historyResponse) {
	if len(body.Ingestions) > 0 {
		_, _ = headline.Fprintln(w, "Uploads")
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "TIME\tFILE\tSTATUS\tTABLES\tROWS\tFAILED STATEMENTS")
		for _, item := range body.Ingestions {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\n",
				item.CreatedAt.Local().Format(time.DateTime), item.Filename, statusLabel(item.Status),
				strings.Join(item.Tables, ","), item.TotalRows, item.StatementFailures)
		}
		_ = tw.Flush()
	}
	if len(body.Questions) > 0 {
		if len(body.Ingestions) > 0 {
			_, _ = fmt.Fprintln(w)
		}
		_, _ = headline.Fprintln(w, "Questions")
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "TIME\tSTATUS\tROWS\tQUESTION")
		for _, item := range body.Questions {
			status := statusLabel(item.Status)
			if item.ErrorCode != "" {
				status += " " + item.ErrorCode
			}
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n",
				item.CreatedAt.Local().Format(time.DateTime), status, item.ResultRows, item.Question)
		}
		_ = tw.Flush()
	}
	if len(body.Ingestions) == 0 && len(body.Questions) == 0 {
		_, _ = warning.Fprintln(w, "no history")
	}
}

func statusLabel(status string) string {
	if status == "ok" {
		return success.Sprint(status)
	}
	return failed.Sprint(status)
}

// writeTable prints rows in column order. Without columns the keys of the
// first row are used, sorted.
func writeTable(w io.Writer, columns []string, rows []map[string]any) {
	if len(columns) == 0 && len(rows) > 0 {
		for key := range rows[0] {
			columns = append(columns, key)
		}
		sort.Strings(columns)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, strings.Join(columns, "\t"))
	for i, row := range rows {
		if i == maxRenderedRows {
			_, _ = fmt.Fprintf(tw, "... %d more\n", len(rows)-maxRenderedRows)
			break
		}
		cells := make([]string, len(columns))
		for j, column := range columns {
			cells[j] = formatCell(row[column])
		}
		_, _ = fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	_ = tw.Flush()
}

func formatCell(value any) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case string:
		return v
	case float64:
		return fmt.Sprintf("%v", v)
	case bool:
		return fmt.Sprintf("%t", v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	}
}

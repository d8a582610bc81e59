package clickhouse

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/ethpandaops/trendsync/pkg/store"
)

const createStagingSQL = `CREATE TABLE IF NOT EXISTS {{ .Database }}.{{ .Staging }} (
{{- range $i, $c := .Columns }}{{ if $i }},{{ end }}
    {{ $c.Name }} {{ $c.Type }}
{{- end }}
) ENGINE = MergeTree ORDER BY ({{ .Key | join ", " }})`

// Staging rows win by greatest _batched_at, remaining ties by the greatest non-key values
const replaceSQL = `CREATE OR REPLACE TABLE {{ .Database }}.{{ .Canonical }}
ENGINE = MergeTree ORDER BY ({{ .Key | join ", " }})
AS SELECT {{ .ColumnNames | join ", " }}
FROM {{ .Database }}.{{ .Staging }}
ORDER BY {{ .BatchedAt }} DESC{{ range .NonKey }}, {{ . }} DESC{{ end }}
LIMIT 1 BY {{ .Key | join ", " }}`

const watermarkSQL = `SELECT toString(maxOrNull({{ .Column }})) AS watermark FROM {{ .Database }}.{{ .Canonical }}`

const tableExistsSQL = `SELECT count() AS n FROM system.tables WHERE database = {{ .DatabaseName | squote }} AND name = {{ .TableName | squote }}`

type column struct {
	Name string
	Type string
}

// sqlRenderer renders statements with Sprig functions
type sqlRenderer struct {
	templates map[string]*template.Template
}

func newSQLRenderer() (*sqlRenderer, error) {
	r := &sqlRenderer{templates: make(map[string]*template.Template, 4)}

	for name, content := range map[string]string{
		"create_staging": createStagingSQL,
		"replace":        replaceSQL,
		"watermark":      watermarkSQL,
		"table_exists":   tableExistsSQL,
	} {
		tmpl, err := template.New(name).Funcs(sprig.TxtFuncMap()).Parse(content)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", name, err)
		}

		r.templates[name] = tmpl
	}

	return r, nil
}

func (r *sqlRenderer) render(name string, vars map[string]interface{}) (string, error) {
	var buf bytes.Buffer
	if err := r.templates[name].Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}

	return buf.String(), nil
}

// quoteIdent quotes an identifier with backticks
func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "\\`") + "`"
}

// escapeLiteral escapes a value placed inside single quotes
func escapeLiteral(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

func quoteAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = quoteIdent(n)
	}

	return out
}

// columnType maps logical column types onto ClickHouse types
func columnType(t store.ColumnType) (string, error) {
	switch t {
	case store.TypeString:
		return "String", nil
	case store.TypeFloat:
		return "Float64", nil
	case store.TypeDate:
		return "Date", nil
	case store.TypeTimestamp:
		return "DateTime", nil
	case store.TypeBool:
		return "Bool", nil
	default:
		return "", fmt.Errorf("%w: %q", store.ErrUnknownColumnType, t)
	}
}

func (r *sqlRenderer) createStaging(database string, spec store.TableSpec) (string, error) {
	cols := make([]column, 0, len(spec.Columns))

	for _, c := range spec.Columns {
		typ, err := columnType(c.Type)
		if err != nil {
			return "", err
		}

		cols = append(cols, column{Name: quoteIdent(c.Name), Type: typ})
	}

	return r.render("create_staging", map[string]interface{}{
		"Database": quoteIdent(database),
		"Staging":  quoteIdent(spec.Staging),
		"Columns":  cols,
		"Key":      quoteAll(spec.Key),
	})
}

func (r *sqlRenderer) replace(database string, spec store.TableSpec) (string, error) {
	return r.render("replace", map[string]interface{}{
		"Database":    quoteIdent(database),
		"Canonical":   quoteIdent(spec.Name),
		"Staging":     quoteIdent(spec.Staging),
		"ColumnNames": quoteAll(spec.ColumnNames()),
		"Key":         quoteAll(spec.Key),
		"NonKey":      quoteAll(spec.NonKeyColumns()),
		"BatchedAt":   quoteIdent(store.BatchedAtColumn),
	})
}

func (r *sqlRenderer) watermark(database string, spec store.TableSpec, column string) (string, error) {
	return r.render("watermark", map[string]interface{}{
		"Database":  quoteIdent(database),
		"Canonical": quoteIdent(spec.Name),
		"Column":    quoteIdent(column),
	})
}

func (r *sqlRenderer) tableExists(database, table string) (string, error) {
	return r.render("table_exists", map[string]interface{}{
		"DatabaseName": escapeLiteral(database),
		"TableName":    escapeLiteral(table),
	})
}

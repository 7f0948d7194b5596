package chart

import (
	"html/template"
	"io"
)

var bigNumberTmpl = template.Must(template.New("bignumber").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: -apple-system, "Segoe UI", Helvetica, Arial, sans-serif; margin: 2rem; }
.card { width: 400px; padding: 1.5rem; border: 1px solid #e5e7eb; border-radius: 8px; text-align: center; }
.value { font-size: 60px; font-weight: bold; color: #1f77b4; }
.caption { color: #6b7280; }
</style>
</head>
<body>
<div class="card">
{{- if .Has}}
<div class="caption">{{.Title}}</div>
<div class="value">{{.Value}}</div>
{{- else}}
<div class="caption">No occurrences ({{.Scope}})</div>
{{- end}}
</div>
</body>
</html>
`))

// BigNumber renders the number of occurrences on the most recent day that
// has any.
func BigNumber(w io.Writer, d Dataset) error {
	data := struct {
		Title string
		Scope string
		Value int
		Has   bool
	}{
		Title: "Occurrences on " + formatDay(d.Latest.Date),
		Scope: d.Label(),
		Value: d.Latest.Count,
		Has:   d.HasLatest,
	}
	if !d.HasLatest {
		data.Title = "No occurrences"
	}
	return bigNumberTmpl.Execute(w, data)
}

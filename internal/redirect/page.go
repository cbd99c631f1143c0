package redirect

import (
	"html/template"
	"net/http"
)

// resultPage is shown in the browser once the redirect has been handled.
var resultPage = template.Must(template.New("result").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>mcauth</title>
<style>
  body {
    font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif;
    background: #18181b;
    color: #fafafa;
    display: flex;
    align-items: center;
    justify-content: center;
    min-height: 100vh;
    margin: 0;
  }
  .card {
    background: #27272a;
    border-radius: 8px;
    padding: 2rem 2.5rem;
    max-width: 480px;
    border-top: 4px solid {{if .Error}}#ef4444{{else}}#34d399{{end}};
  }
  h1 { font-size: 1.25rem; margin: 0 0 0.5rem; }
  p { color: #a1a1aa; margin: 0; white-space: pre-wrap; }
</style>
</head>
<body>
<div class="card">
  <h1>{{.Headline}}</h1>
  <p>{{.Detail}}</p>
</div>
</body>
</html>
`))

type pageData struct {
	Headline string
	Detail   string
	Error    bool
}

func renderPage(w http.ResponseWriter, headline, detail string, isError bool) {
	status := http.StatusOK
	if isError {
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = resultPage.Execute(w, pageData{Headline: headline, Detail: detail, Error: isError})
}

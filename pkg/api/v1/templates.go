package apiv1

import (
	"html/template"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/beam-cloud/toolshelf/pkg/catalog"
	"github.com/beam-cloud/toolshelf/pkg/types"
)

const (
	pageTitle          = "Toolshelf"
	pageTitleWelcome   = "Welcome"
	pageTitleTools     = "AI Tools"
	pageTitleReminders = "Reminders"
	pageTitleError     = "Something went wrong"
)

var templateFuncs = template.FuncMap{
	"isOpen":   func(s catalog.DialogState) bool { return s == catalog.DialogOpen },
	"storable": types.Categories,
}

var (
	errorTemplate     = template.Must(template.New("error").Parse(errorHTML))
	welcomeTemplate   = template.Must(template.New("welcome").Parse(welcomeHTML))
	remindersTemplate = template.Must(template.New("reminders").Parse(remindersHTML))
	toolsTemplate     = template.Must(template.Must(template.New("tools").Funcs(templateFuncs).Parse(toolsHTML)).Parse(liveHTML))
)

type errorPageData struct {
	Title   string
	Message string
}

type basicPageData struct {
	Title string
}

type toolsPageData struct {
	Title string
	catalog.Render
}

func renderPage(c echo.Context, code int, t *template.Template, data any) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(code)
	return t.Execute(c.Response(), data)
}

func renderErrorPage(c echo.Context, code int, message string) error {
	return renderPage(c, code, errorTemplate, errorPageData{
		Title:   pageTitleError,
		Message: message,
	})
}

// renderLive writes only the live region of the catalog page.
func renderLive(c echo.Context, r catalog.Render) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(http.StatusOK)
	return toolsTemplate.ExecuteTemplate(c.Response(), "live", toolsPageData{
		Title:  pageTitleTools,
		Render: r,
	})
}

func renderToolsPage(c echo.Context, r catalog.Render) error {
	return renderPage(c, http.StatusOK, toolsTemplate, toolsPageData{
		Title:  pageTitleTools,
		Render: r,
	})
}

const baseStyles = `
	*, *::before, *::after { box-sizing: border-box; }
	body {
		font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, "Helvetica Neue", Arial, sans-serif;
		line-height: 1.5;
		margin: 0;
		min-height: 100vh;
		background: #fafafa;
		color: #111;
	}
	@media (prefers-color-scheme: dark) {
		body { background: #111; color: #fafafa; }
		.card, .tool, dialog { background: #1a1a1a; border-color: #333; }
		.secondary { color: #888; }
	}
	nav {
		display: flex;
		gap: 16px;
		padding: 16px 32px;
		border-bottom: 1px solid #e5e5e5;
	}
	nav a { color: inherit; text-decoration: none; font-weight: 600; }
	main { max-width: 1080px; margin: 0 auto; padding: 32px 16px; }
	.card {
		max-width: 400px;
		padding: 48px 32px;
		text-align: center;
		background: #fff;
		border: 1px solid #e5e5e5;
		border-radius: 12px;
		margin: 64px auto;
	}
	h1 {
		font-size: 24px;
		font-weight: 600;
		margin: 0 0 8px 0;
	}
	p {
		margin: 0 0 16px 0;
	}
	.secondary {
		color: #666;
		font-size: 14px;
	}
	.toolbar { display: flex; gap: 8px; flex-wrap: wrap; margin-bottom: 24px; }
	.toolbar form { display: flex; gap: 8px; }
	input, select, textarea {
		font: inherit;
		padding: 8px 10px;
		border: 1px solid #d4d4d4;
		border-radius: 6px;
	}
	.grid {
		display: grid;
		grid-template-columns: repeat(auto-fill, minmax(240px, 1fr));
		gap: 16px;
	}
	.tool {
		padding: 16px;
		background: #fff;
		border: 1px solid #e5e5e5;
		border-radius: 12px;
	}
	.tool h2 { font-size: 16px; margin: 0 0 8px 0; display: flex; gap: 8px; align-items: center; }
	.tool .actions { display: flex; gap: 8px; }
	.celebrate {
		padding: 12px 16px;
		margin-bottom: 24px;
		border-radius: 8px;
		background: #dcfce7;
		color: #16a34a;
		font-weight: 600;
	}
	@media (prefers-color-scheme: dark) {
		.celebrate { background: #14532d; }
	}
	dialog {
		display: block;
		position: static;
		border: 1px solid #e5e5e5;
		border-radius: 12px;
		padding: 24px;
		margin: 0 0 24px 0;
		background: #fff;
		color: inherit;
	}
	dialog form { display: grid; gap: 8px; max-width: 420px; }
	button {
		background: #111;
		color: #fff;
		border: none;
		padding: 8px 16px;
		border-radius: 6px;
		font-size: 14px;
		cursor: pointer;
	}
	button.link { background: none; color: inherit; padding: 8px 0; }
	@media (prefers-color-scheme: dark) {
		button { background: #fafafa; color: #111; }
		button.link { background: none; color: inherit; }
	}
`

const navHTML = `
	<nav>
		<a href="/">` + pageTitle + `</a>
		<a href="/ai-tools">AI Tools</a>
		<a href="/reminders">Reminders</a>
		<form method="post" action="/leave" style="display:inline"><button type="submit">Leave</button></form>
	</nav>`

const errorHTML = `<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="utf-8">
	<meta name="viewport" content="width=device-width, initial-scale=1">
	<title>{{.Title}} - ` + pageTitle + `</title>
	<style>` + baseStyles + `</style>
</head>
<body>` + navHTML + `
	<div class="card">
		<h1>{{.Title}}</h1>
		<p>{{.Message}}</p>
		<p class="secondary"><a href="/ai-tools">Back to the catalog</a></p>
	</div>
</body>
</html>`

const welcomeHTML = `<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="utf-8">
	<meta name="viewport" content="width=device-width, initial-scale=1">
	<title>{{.Title}} - ` + pageTitle + `</title>
	<style>` + baseStyles + `</style>
</head>
<body>` + navHTML + `
	<div class="card">
		<h1>Welcome to ` + pageTitle + `</h1>
		<p class="secondary">A shared catalog of AI tools, updated live for everyone.</p>
		<p><a href="/ai-tools">Browse AI Tools</a></p>
		<p><a href="/reminders">Reminders</a></p>
	</div>
</body>
</html>`

const remindersHTML = `<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="utf-8">
	<meta name="viewport" content="width=device-width, initial-scale=1">
	<title>{{.Title}} - ` + pageTitle + `</title>
	<style>` + baseStyles + `</style>
</head>
<body>` + navHTML + `
	<div class="card">
		<h1>{{.Title}}</h1>
		<p class="secondary">Coming soon.</p>
	</div>
</body>
</html>`

const toolsHTML = `<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="utf-8">
	<meta name="viewport" content="width=device-width, initial-scale=1">
	<title>{{.Title}} - ` + pageTitle + `</title>
	<style>` + baseStyles + `</style>
</head>
<body>` + navHTML + `
	<main>
		<h1>{{.Title}}</h1>

		<div class="toolbar">
			<form method="post" action="/ai-tools/search">
				<input type="search" name="search" placeholder="Search tools" value="{{.Search}}">
				<button type="submit">Search</button>
			</form>
			<form method="post" action="/ai-tools/category">
				<select name="category" onchange="this.form.submit()">
					{{$selected := .Category}}
					{{range .Categories}}<option value="{{.}}"{{if eq . $selected}} selected{{end}}>{{.}}</option>{{end}}
				</select>
				<noscript><button type="submit">Filter</button></noscript>
			</form>
			<form method="post" action="/ai-tools/add/toggle">
				<button type="submit">{{if isOpen .AddDialog}}Close{{else}}Add tool{{end}}</button>
			</form>
		</div>

		{{if isOpen .AddDialog}}
		<dialog open id="add-dialog">
			<form method="post" action="/ai-tools/add">
				<input name="name" placeholder="Name" value="{{.Draft.Name}}">
				<input name="url" placeholder="URL" value="{{.Draft.Url}}">
				<textarea name="description" placeholder="Description">{{.Draft.Description}}</textarea>
				{{$draft := .Draft.Category}}
				<select name="category">
					<option value="">Category</option>
					{{range storable}}<option value="{{.}}"{{if eq (print .) $draft}} selected{{end}}>{{.}}</option>{{end}}
				</select>
				<button type="submit">Add</button>
			</form>
		</dialog>
		{{end}}

		{{if isOpen .EditDialog}}
		<dialog open id="edit-dialog">
			<form method="post" action="/ai-tools/edit">
				<input name="name" placeholder="Name" value="{{.Editing.Name}}">
				<input name="url" placeholder="URL" value="{{.Editing.Url}}">
				<textarea name="description" placeholder="Description">{{.Editing.Description}}</textarea>
				{{$editing := .Editing.Category}}
				<select name="category">
					<option value="">Category</option>
					{{range storable}}<option value="{{.}}"{{if eq (print .) $editing}} selected{{end}}>{{.}}</option>{{end}}
				</select>
				<button type="submit">Save</button>
			</form>
			<form method="post" action="/ai-tools/edit/cancel">
				<button type="submit" class="link">Cancel</button>
			</form>
		</dialog>
		{{end}}

		<div id="live">{{template "live" .}}</div>
	</main>
	<script>
		// Only the live region is replaced, so typed search text and open dialogs survive updates.
		new EventSource("/ai-tools/events").addEventListener("render", function () {
			fetch("/ai-tools/live", { credentials: "same-origin" })
				.then(function (resp) { return resp.ok ? resp.text() : Promise.reject(resp.status); })
				.then(function (html) { document.getElementById("live").innerHTML = html; })
				.catch(function () {});
		});
	</script>
</body>
</html>`

// liveHTML is the part of the catalog page that follows snapshots and the
// celebration. It is served alone by /ai-tools/live.
const liveHTML = `{{define "live"}}
		<p class="secondary">{{len .Tools}} of {{.Total}} tools</p>
		{{if .Celebrating}}<div class="celebrate" id="celebrate">Saved! Thanks for sharing.</div>{{end}}
		<div class="grid">
			{{range .Tools}}
			<div class="tool">
				<h2><img src="{{.FaviconURL}}" width="16" height="16" alt=""> <a href="{{.Url}}" target="_blank" rel="noopener">{{.Name}}</a></h2>
				<p>{{.Description}}</p>
				<p class="secondary">{{.Category}}</p>
				<div class="actions">
					<form method="post" action="/ai-tools/{{.Id}}/edit"><button type="submit" class="link">Edit</button></form>
					<form method="post" action="/ai-tools/{{.Id}}/delete"><button type="submit" class="link">Delete</button></form>
				</div>
			</div>
			{{else}}
			<p class="secondary">No tools found.</p>
			{{end}}
		</div>
{{end}}`

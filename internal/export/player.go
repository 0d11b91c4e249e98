package export

import (
	"bytes"
	"html/template"

	"github.com/evidencerec/core/internal/errs"
	"github.com/evidencerec/core/internal/projections"
)

// playerTemplate renders a static, dependency-free tutorial viewer: one
// section per step, each block's text and its evidence ref ids. It is not
// a build step — the original ships this as a plain templated HTML file
// alongside the bundle, not a compiled asset.
var playerTemplate = template.Must(template.New("player").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Tutorial — {{.SessionID}}</title>
<style>
body { font-family: sans-serif; max-width: 52rem; margin: 2rem auto; }
.step { border-bottom: 1px solid #ddd; padding: 1rem 0; }
.step h2 { margin-bottom: 0.25rem; }
.block { margin: 0.5rem 0; }
.evidence { color: #666; font-size: 0.85rem; }
</style>
</head>
<body>
<h1>Tutorial — {{.SessionID}}</h1>
{{range .Steps}}
<section class="step">
<h2>{{.OrderIndex}}. {{.Title}}</h2>
{{range .Body}}
<div class="block">
<p>{{.Text}}</p>
{{if .EvidenceRefs}}<p class="evidence">evidence: {{range .EvidenceRefs}}{{.}} {{end}}</p>{{end}}
</div>
{{end}}
</section>
{{end}}
</body>
</html>
`))

type playerData struct {
	SessionID string
	Steps     []projections.Step
}

// renderPlayer executes playerTemplate over the session's replayed steps.
func renderPlayer(sessionID string, r projections.Replayed) ([]byte, error) {
	var buf bytes.Buffer
	data := playerData{SessionID: sessionID, Steps: r.Steps}
	if err := playerTemplate.Execute(&buf, data); err != nil {
		return nil, errs.NewInternal("export: render player template: %v", err)
	}
	return buf.Bytes(), nil
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package quotes

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/pdiddy/report-engine/pkg/types"
)

const systemPrompt = `You extract verbatim evidence from academic papers for a research report.
Copy EXACT text only. Never paraphrase, summarize, or fix typos.
Include any references that are contiguous with the copied text, e.g. "(Moe et al., 2020)" or "[1][2]".
Use ... to mark a gap of excluded text between copied fragments.
Do not copy titles, author lists, or section headings.
Respond with a JSON object and nothing else.`

var quotePromptTmpl = template.Must(template.New("quotes").Parse(`{{if .Edit}}The user wants to modify an existing report. Extract passages that help fulfill the edit instruction.

<edit_instruction>
{{.Edit.Instruction}}
</edit_instruction>

<current_report>
{{.Digest}}
</current_report>
{{else}}Extract passages from the paper that help answer the research query.

<query>
{{.Query}}
</query>
{{end}}
<paper>
Title: {{.Meta.Title}}
Authors: {{.Authors}}
Year: {{.Meta.Year}}
{{range $i, $p := .Passages}}
<snippet index="{{$i}}">
{{$p}}
</snippet>
{{end}}</paper>

For each relevant passage, give the quote and the index of the snippet it was copied from.
If the paper does not help at all, return an empty list.

Example response:
{"quotes": [{"text": "Attention improves translation quality by 2 BLEU points... This holds across language pairs.", "snippet": 0}]}
`))

// renderPrompt executes the quote prompt for one evidence item.
func renderPrompt(query string, item types.EvidenceItem, ec *types.EditContext, previewChars int) (string, error) {
	data := struct {
		Query    string
		Edit     *types.EditContext
		Digest   string
		Meta     types.PaperMeta
		Authors  string
		Passages []string
	}{
		Query:    query,
		Edit:     ec,
		Meta:     item.Meta,
		Authors:  strings.Join(item.Meta.Authors, ", "),
		Passages: item.Passages(),
	}
	if ec != nil && ec.Report != nil {
		data.Digest = ec.Report.Digest(previewChars)
	}

	var buf bytes.Buffer
	if err := quotePromptTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering quote prompt: %w", err)
	}
	return buf.String(), nil
}

// quoteResponse is the structured answer for one paper.
type quoteResponse struct {
	Quotes []struct {
		Text    string `json:"text"`
		Snippet *int   `json:"snippet"`
	} `json:"quotes"`
}

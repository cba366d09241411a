// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package writer

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/pdiddy/report-engine/pkg/types"
)

const systemPrompt = `You write one section of a research report at a time from quoted evidence.`

const citationRules = `<citation instructions>
- Each reference key is a pipe separated string in square brackets: [ID | AUTHOR_REF | YEAR | Citations: CITES].
- Cite the relevant references inline using their exact reference key. You may place several keys in a row.
- Citations come AFTER the text they support.
- Only use reference keys listed in this prompt. Never invent one.
- You may add something from your own knowledge only if you are sure it is true. Cite it as [LLM MEMORY | 2024] and never combine it with another key.
</citation instructions>`

const writingRules = `<writing instructions>
- Start with the section name on its own line, then a line beginning with "TLDR;" holding a two sentence summary without citations, then the content.
- Use direct and simple language. Be concise.
- Use the citation count to judge what is notable. Only call a paper "notable" when it has 100 or more citations.
- Older references may be outdated; avoid "state of the art" claims.
- Do not repeat points made in sections already written.
- The format MUST match: a "list" section is a Markdown list, a "synthesis" section is connected paragraphs.
- Write Markdown.
</writing instructions>`

var synthesisTmpl = template.Must(template.New("synthesis").Parse(`Write one section of a report that answers this query:
<query>
{{.Query}}
</query>

The full plan of the report:
<plan>
{{.Outline}}
</plan>

Sections already written:
<already_written>
{{.Written}}
</already_written>

The section to write next:
<section_name>
{{.Name}}
</section_name>

<references>
{{.References}}
</references>

` + citationRules + `

` + writingRules + `
`))

var editTmpl = template.Must(template.New("edit").Parse(`A user is editing an existing report.

<edit_instruction>
{{.Instruction}}
</edit_instruction>
{{if .SectionInstruction}}
Specific instruction for this section: {{.SectionInstruction}}
{{end}}
The plan of the edited report:
<plan>
{{.Outline}}
</plan>

Sections already written in the edited report:
<already_written>
{{.Written}}
</already_written>

The section to handle next:
<section_name>
{{.Name}}
</section_name>

<action>
{{.Action}}
</action>
{{if .Existing}}
<current_section_content>
{{.Existing}}
</current_section_content>

<existing_references>
{{.ExistingRefs}}
</existing_references>
{{end}}
<new_references>
{{.References}}
</new_references>

<action-specific instructions>
{{.Guidance}}
</action-specific instructions>
{{if .Preserve}}
IMPORTANT: Your previous draft dropped these existing citations: {{.Preserve}}. Keep every existing citation in place.
{{end}}
` + citationRules + `

` + writingRules + `
`))

var actionGuidance = map[types.Action]string{
	types.ActionExpand:   "EXPAND: keep all current content and add new paragraphs that use the new references. Keep every existing citation.",
	types.ActionAddTo:    "ADD_TO: weave the new references into the existing narrative, adding sentences where needed. Keep every existing citation.",
	types.ActionGoDeeper: "GO_DEEPER: keep the current content and add depth and detail on what it already covers. Keep every existing citation.",
	types.ActionModify:   "MODIFY: rewrite the section to follow the instruction. Existing and new references may both be cited.",
	types.ActionReplace:  "REPLACE: write entirely new content from the new references only, replacing the current content.",
	types.ActionNew:      "NEW: write a brand new section from the new references.",
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s prompt: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

// formatReferences lists each paper behind quotes once, keyed by its reference
// key, with its quotes joined.
func formatReferences(quotes []types.Quote, catalog types.Catalog) string {
	if len(quotes) == 0 {
		return "None"
	}
	var order []string
	byPaper := make(map[string][]string)
	for _, q := range quotes {
		if _, ok := byPaper[q.PaperID]; !ok {
			order = append(order, q.PaperID)
		}
		byPaper[q.PaperID] = append(byPaper[q.PaperID], q.Text)
	}
	var b strings.Builder
	for _, id := range order {
		meta := catalog[id]
		meta.PaperID = id
		fmt.Fprintf(&b, "%s: %q\n", meta.ReferenceKey(), strings.Join(byPaper[id], " ... "))
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatExistingReferences lists a section's current citations.
func formatExistingReferences(cs []types.Citation) string {
	if len(cs) == 0 {
		return "None"
	}
	var b strings.Builder
	for _, c := range cs {
		fmt.Fprintf(&b, "%s", c.Meta().ReferenceKey())
		if len(c.Snippets) > 0 {
			fmt.Fprintf(&b, ": %q", strings.Join(c.Snippets, " ... "))
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// sectionName is the title as planners and writers see it: "Title (format)".
func sectionName(d types.Dimension) string {
	format := d.Format
	if format == "" {
		format = types.FormatSynthesis
	}
	return fmt.Sprintf("%s (%s)", d.Title, format)
}

// SectionNames returns the planned names of dims for Brief.Outline.
func SectionNames(dims []types.Dimension) []string {
	out := make([]string, len(dims))
	for i, d := range dims {
		out[i] = sectionName(d)
	}
	return out
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return "None"
	}
	return "- " + strings.Join(items, "\n- ")
}

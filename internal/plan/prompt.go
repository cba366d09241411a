// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package plan

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/pdiddy/report-engine/pkg/types"
)

const systemPrompt = `You organize quoted evidence from academic papers into the sections of a research report.
Respond with a JSON object and nothing else.`

var synthesisPromptTmpl = template.Must(template.New("synthesis").Parse(`Plan a report that answers the query below using the numbered quotes.

<query>
{{.Query}}
</query>

<quotes>
{{.Quotes}}
</quotes>

Group the quotes into thematic dimensions. Each dimension becomes one section.
- Order dimensions so the report reads as a coherent narrative. Start with background when useful.
- Give each dimension a format: "list" for enumerations of approaches, tools, or papers; "synthesis" for a connected paragraph.
- Assign each quote index to at most one dimension. Use every quote that contributes.
- Write a short report title.

Example response:
{"cot": "reasoning about the grouping", "report_title": "Scaling Laws for Language Models", "dimensions": [{"name": "Background", "format": "synthesis", "quotes": [0, 3]}, {"name": "Key Methods", "format": "list", "quotes": [1, 2]}]}
`))

var editPromptTmpl = template.Must(template.New("edit").Parse(`Plan how to EDIT an existing report according to the user's instruction.

<current_report>
{{.Digest}}
</current_report>

<edit_instruction>
{{.Instruction}}
</edit_instruction>

<mentioned_papers>
{{.Mentioned}}
</mentioned_papers>

<new_quotes>
{{.Quotes}}
</new_quotes>

For every existing section index, choose exactly one action:
- KEEP: the section is fine as-is. No quotes.
- EXPAND: keep all content and add new paragraphs from the new quotes.
- ADD_TO: weave the new papers into the existing narrative.
- GO_DEEPER: add more depth and detail on what the section already covers.
- MODIFY: rewrite the section following the instruction; existing citations may be reused.
- REPLACE: write entirely new content from the new quotes.
- DELETE: remove the section. No quotes.
You may also add NEW sections; they are appended at the end of the report.

Respect the existing structure unless the instruction requires changes. Every new quote should go to an existing section or a new one.
Refer to sections by index only. Keep the report title unless the instruction requires a new one.

Example response:
{"reasoning": "why", "report_title": "", "section_plans": [{"section_index": 0, "action": "KEEP", "reasoning": "unaffected", "specific_instruction": "", "quotes": []}, {"section_index": 1, "action": "ADD_TO", "reasoning": "user asked to add papers here", "specific_instruction": "Add the two mentioned papers", "quotes": [0, 1]}], "new_sections": [{"title": "Limitations", "format": "synthesis", "instruction": "Summarize known limitations", "quotes": [2]}]}
`))

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s prompt: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

// FormatQuotes renders quotes as a numbered list keyed by reference key, the
// form planners see them in.
func FormatQuotes(quotes []types.Quote, catalog types.Catalog) string {
	if len(quotes) == 0 {
		return "None"
	}
	var b strings.Builder
	for i, q := range quotes {
		meta := catalog[q.PaperID]
		meta.PaperID = q.PaperID
		fmt.Fprintf(&b, "[%d] %s: %s\n", i, meta.ReferenceKey(), q.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}

// synthesisResponse is the structured synthesis plan.
type synthesisResponse struct {
	Cot         string `json:"cot"`
	ReportTitle string `json:"report_title"`
	Dimensions  []struct {
		Name   string `json:"name"`
		Format string `json:"format"`
		Quotes []int  `json:"quotes"`
	} `json:"dimensions"`
}

// editResponse is the structured edit plan.
type editResponse struct {
	Reasoning    string `json:"reasoning"`
	ReportTitle  string `json:"report_title"`
	SectionPlans []struct {
		SectionIndex        int    `json:"section_index"`
		Action              string `json:"action"`
		Reasoning           string `json:"reasoning"`
		SpecificInstruction string `json:"specific_instruction"`
		Quotes              []int  `json:"quotes"`
	} `json:"section_plans"`
	NewSections []struct {
		Title       string `json:"title"`
		Format      string `json:"format"`
		Instruction string `json:"instruction"`
		Reasoning   string `json:"reasoning"`
		Quotes      []int  `json:"quotes"`
	} `json:"new_sections"`
}

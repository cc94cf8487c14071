package react

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/BDNK1/agentflow/tools"
)

var promptTemplate = template.Must(template.New("react").Parse(
	`Answer the following question as best you can. You have access to the following tools:
{{range .Tools}}
{{.Name}}: {{.Description}}
  Parameters: {{.Schema}}
{{end}}
Use the following format:

Question: the input question you must answer
Thought: you should always think about what to do
Action: the action to take, must be one of [{{.Names}}]
Action Input: the input to the action, as a JSON object
Observation: the result of the action
... (this Thought/Action/Action Input/Observation can repeat N times)
Thought: I now know the final answer
{{.Marker}}: the final answer to the original input question

Begin!

Question: {{.Question}}
`))

type promptTool struct {
	Name        string
	Description string
	Schema      string
}

// BuildPrompt renders the tool listing and the step format the parser expects.
func BuildPrompt(defs []tools.Definition, question string) string {
	return buildPrompt(defs, question, DefaultFinalAnswerMarker)
}

func buildPrompt(defs []tools.Definition, question, marker string) string {
	data := struct {
		Tools    []promptTool
		Names    string
		Marker   string
		Question string
	}{Marker: marker, Question: question}

	names := make([]string, 0, len(defs))
	for _, def := range defs {
		schema, err := json.Marshal(&def.Parameters)
		if err != nil {
			schema = []byte("{}")
		}
		data.Tools = append(data.Tools, promptTool{
			Name:        def.Name,
			Description: def.Description,
			Schema:      string(schema),
		})
		names = append(names, def.Name)
	}
	data.Names = strings.Join(names, ", ")

	var sb strings.Builder
	// the template only ranges over plain strings
	_ = promptTemplate.Execute(&sb, data)
	return sb.String()
}

// Observation is the turn fed back to the model after an action.
func Observation(action, input string, result any) string {
	return fmt.Sprintf("Action：%s\nAction Input：%s\nAction Result：%s", action, input, FormatResult(result))
}

// FormatResult renders a tool result as observation text.
func FormatResult(result any) string {
	switch v := result.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case []byte:
		return string(v)
	}
	out, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprint(result)
	}
	return string(out)
}

func stepFormatCorrection(marker string) string {
	return fmt.Sprintf(`Your last response did not follow the required format. Reply with either
Thought: <your reasoning>
Action: <tool name>
Action Input: <JSON object>
or
Thought: <your reasoning>
%s: <answer>`, marker)
}

func jsonCorrection(step Step, err error) string {
	return Observation(step.Action, step.ActionInput,
		fmt.Sprintf("Action Input is not valid JSON (%v). Please fix your JSON and try again.", err))
}

func notMatchedObservation(step Step, available []string) string {
	return Observation(step.Action, step.ActionInput,
		fmt.Sprintf("Tool %s is not available. Available tools: %s.", step.Action, strings.Join(available, ", ")))
}

func invokeErrorObservation(step Step, err error) string {
	return Observation(step.Action, step.ActionInput, fmt.Sprintf("Error: %v", err))
}

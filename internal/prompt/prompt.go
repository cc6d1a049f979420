// Package prompt composes the system instruction sent to model providers.
package prompt

import "strings"

// Identity is the canned answer for identity questions.
const Identity = "My name is **Dynamo AI**, the #1 AI Research OS made in India. I am built for high-performance research, data intelligence, and visual generation."

const baseRules = `You are Dynamo AI. ` + Identity + `
Rules:
1. Always identify as Dynamo AI.
2. Provide professional research data and respond in clear Markdown.
3. [VISUALS]: For flowcharts, use Mermaid: ` + "```mermaid graph TD ... ```" + `
4. [VISUALS]: For mindmaps, use: ` + "```mermaid mindmap ... ```" + `
5. [QUIZ]: For quizzes, use: ` + "```json_quiz [JSON_DATA] ```"

// FactCheckClause asks the model for a verdict with a truth score and sources.
const FactCheckClause = "[FACT CHECK MODE ACTIVE] Verify the claims in the user's message. " +
	"Start with a verdict (TRUE, FALSE, MISLEADING or UNVERIFIABLE), then give a truth score from 0 to 100, " +
	"then justify the verdict citing your sources."

// DeepDiveTemperatures are the sampling temperatures of the three deep-dive
// generations, in the order their perspectives are returned.
var DeepDiveTemperatures = []float32{0.5, 0.8, 1.1}

// Flags are the request modes that affect the instruction.
type Flags struct {
	DeepDive  bool
	FactCheck bool
}

// Instruction is a composed system directive. The zero value is empty; values
// are never modified after construction.
type Instruction struct {
	clauses []string
}

// Base returns the identity and formatting instruction shared by every request.
func Base() Instruction {
	return Instruction{clauses: []string{baseRules}}
}

// With returns a copy of i with clause appended.
func (i Instruction) With(clause string) Instruction {
	clauses := make([]string, len(i.clauses), len(i.clauses)+1)
	copy(clauses, i.clauses)
	return Instruction{clauses: append(clauses, clause)}
}

// Clauses returns a copy of the instruction's clauses.
func (i Instruction) Clauses() []string {
	return append([]string(nil), i.clauses...)
}

// String renders the instruction.
func (i Instruction) String() string {
	return strings.Join(i.clauses, "\n\n")
}

// Augment adds the mode clauses selected by flags. Deep dive is served by
// fanning out over DeepDiveTemperatures, so it leaves the text unchanged.
func Augment(base Instruction, flags Flags) Instruction {
	out := base
	if flags.FactCheck {
		out = out.With(FactCheckClause)
	}
	return out
}

// Fanout returns the temperatures to sample for flags: one nil entry for a
// single default-temperature call, or DeepDiveTemperatures for deep dive.
func Fanout(flags Flags) []*float32 {
	if !flags.DeepDive {
		return []*float32{nil}
	}
	temps := make([]*float32, len(DeepDiveTemperatures))
	for i := range DeepDiveTemperatures {
		t := DeepDiveTemperatures[i]
		temps[i] = &t
	}
	return temps
}

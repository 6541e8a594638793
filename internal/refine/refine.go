// Package refine turns a short user request into a structured task
// specification through a two-pass model protocol with a human-in-the-loop
// step between the passes.
package refine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/taskloom/taskloom/internal/provider"
	"github.com/taskloom/taskloom/internal/state"
	"github.com/taskloom/taskloom/internal/stream"
	"github.com/taskloom/taskloom/internal/ui"
)

// FollowUpQuestion is one clarification request posed to the human. Options
// is empty for open-ended questions.
type FollowUpQuestion struct {
	Question string   `json:"question"`
	Options  []string `json:"options,omitempty"`
	Selected string   `json:"selected,omitempty"`
}

// Analysis is the parsed outcome of the first pass.
type Analysis struct {
	Extracted       map[string]any     `json:"extractedData"`
	MissingRequired []string           `json:"missingRequiredSlots"`
	Questions       []FollowUpQuestion `json:"-"`
	NeedsMoreInfo   bool               `json:"needsMoreInfo"`
	Draft           string             `json:"refinedPrompt"`
}

// Result is what the loop hands back to the task. RefinedPrompt is always
// usable: on any failure it degrades to the original prompt.
type Result struct {
	OriginalPrompt string
	RefinedPrompt  string
	Explanation    string
	NeedsMoreInfo  bool
	Questions      []FollowUpQuestion
}

// ArtifactWriter records the refined document and its immutable snapshot.
type ArtifactWriter interface {
	WriteArtifact(taskID, content string) (string, error)
	SnapshotArtifact(taskID, content string) error
}

// Refiner runs the two-pass refinement protocol.
type Refiner struct {
	transport provider.Transport
	asker     ui.Interactor
	artifacts ArtifactWriter
	template  Template
}

// New creates a refiner over the default slot template. artifacts may be nil
// to skip durable recording.
func New(transport provider.Transport, asker ui.Interactor, artifacts ArtifactWriter) *Refiner {
	return &Refiner{
		transport: transport,
		asker:     asker,
		artifacts: artifacts,
		template:  WebProjectTemplate(),
	}
}

// Refine runs analysis, the blocking question step, and synthesis. It never
// returns an error for model or parse failures: those degrade to the
// original prompt with an explanatory note. Only ctx cancellation and
// failures of the human-interaction channel itself propagate.
func (r *Refiner) Refine(ctx context.Context, taskID, prompt string) (Result, error) {
	analysis, err := r.analyze(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		slog.Warn("refinement analysis failed, using original prompt", "error", err)
		return Result{
			OriginalPrompt: prompt,
			RefinedPrompt:  prompt,
			Explanation:    "Refinement failed. Using the original prompt.",
		}, nil
	}

	augmented := prompt
	if analysis.NeedsMoreInfo {
		answered, err := r.askQuestions(ctx, analysis.Questions)
		if err != nil {
			return Result{}, err
		}
		analysis.Questions = answered
		augmented = augmentPrompt(prompt, answered)
	}

	spec, err := r.synthesize(ctx, augmented, analysis.Extracted)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		slog.Warn("refinement synthesis failed, using original prompt", "error", err)
		return Result{
			OriginalPrompt: prompt,
			RefinedPrompt:  prompt,
			Explanation:    "Refinement failed. Using the original prompt.",
			Questions:      analysis.Questions,
		}, nil
	}

	refined := prompt + "\n\n" + spec
	r.record(taskID, refined)

	return Result{
		OriginalPrompt: prompt,
		RefinedPrompt:  refined,
		Explanation:    fmt.Sprintf("Refined with %d follow-up answers.", len(analysis.Questions)),
		NeedsMoreInfo:  false,
		Questions:      analysis.Questions,
	}, nil
}

// analysisResponse is the wire shape of the first-pass model output.
type analysisResponse struct {
	ExtractedData        map[string]any `json:"extractedData"`
	MissingRequiredSlots []string       `json:"missingRequiredSlots"`
	FollowUpQuestions    []string       `json:"followUpQuestions"`
	NeedsMoreInfo        bool           `json:"needsMoreInfo"`
	RefinedPrompt        string         `json:"refinedPrompt"`
}

func (r *Refiner) analyze(ctx context.Context, prompt string) (Analysis, error) {
	system := r.analysisSystemPrompt()
	user := fmt.Sprintf("Analyze this request and extract template slot information:\n\nUser Request: %q\n\nExtract available information, identify missing required elements, and generate follow-up questions if needed.", prompt)

	raw, err := r.invoke(ctx, system, user)
	if err != nil {
		return Analysis{}, err
	}

	var resp analysisResponse
	if err := stream.DecodeObject(raw, &resp); err != nil {
		return Analysis{}, fmt.Errorf("analysis pass: %w", err)
	}

	a := Analysis{
		Extracted:       resp.ExtractedData,
		MissingRequired: resp.MissingRequiredSlots,
		NeedsMoreInfo:   resp.NeedsMoreInfo,
		Draft:           resp.RefinedPrompt,
	}
	a.Questions = r.buildQuestions(resp)
	if len(a.Questions) > 0 {
		a.NeedsMoreInfo = true
	}
	return a, nil
}

// buildQuestions pairs model-generated questions with the missing required
// slots in order, attaching each slot's discrete options. Missing optional
// slots collapse into one consolidated open-ended question.
func (r *Refiner) buildQuestions(resp analysisResponse) []FollowUpQuestion {
	var out []FollowUpQuestion
	for i, name := range resp.MissingRequiredSlots {
		slot, ok := r.template.Slot(name)
		if !ok || !slot.Required {
			continue
		}
		q := FollowUpQuestion{Options: slot.Options}
		if i < len(resp.FollowUpQuestions) {
			q.Question = resp.FollowUpQuestions[i]
		} else {
			q.Question = fmt.Sprintf("What should the %s be? (e.g. %s)", slot.Description, strings.Join(slot.Examples, ", "))
		}
		out = append(out, q)
	}

	var missingOptional []string
	for _, slot := range r.template.Slots {
		if slot.Required {
			continue
		}
		if v, ok := resp.ExtractedData[slot.Name]; !ok || v == nil {
			missingOptional = append(missingOptional, slot.Name)
		}
	}
	if len(missingOptional) > 0 {
		out = append(out, FollowUpQuestion{
			Question: fmt.Sprintf("A few optional details would also help: %s. Any preferences? (Press enter to skip.)", strings.Join(missingOptional, ", ")),
		})
	}
	return out
}

// askQuestions presents each question in order through a blocking exchange
// and records the answer as Selected.
func (r *Refiner) askQuestions(ctx context.Context, questions []FollowUpQuestion) ([]FollowUpQuestion, error) {
	out := make([]FollowUpQuestion, len(questions))
	copy(out, questions)
	for i := range out {
		text := out[i].Question
		if len(out[i].Options) > 0 {
			text = fmt.Sprintf("%s\nOptions: %s", text, strings.Join(out[i].Options, ", "))
		}
		resp, err := r.asker.Ask(ctx, state.AskFollowup, text)
		if err != nil {
			return nil, fmt.Errorf("follow-up question %d: %w", i+1, err)
		}
		out[i].Selected = resp.Text
	}
	return out, nil
}

func (r *Refiner) synthesize(ctx context.Context, augmented string, extracted map[string]any) (string, error) {
	system := r.synthesisSystemPrompt()
	var sb strings.Builder
	sb.WriteString("Create a complete specification for this request:\n\n")
	sb.WriteString(augmented)
	if len(extracted) > 0 {
		data, err := json.MarshalIndent(extracted, "", "  ")
		if err == nil {
			sb.WriteString("\n\nInformation already extracted:\n")
			sb.Write(data)
		}
	}

	spec, err := r.invoke(ctx, system, sb.String())
	if err != nil {
		return "", err
	}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return "", fmt.Errorf("synthesis pass: %w", stream.ErrMalformedModelOutput)
	}
	return spec, nil
}

func (r *Refiner) invoke(ctx context.Context, system, user string) (string, error) {
	ch, err := r.transport.StreamMessage(ctx, system, []provider.Message{
		{Role: "user", Content: user},
	})
	if err != nil {
		return "", fmt.Errorf("start stream: %w", err)
	}
	text, _, err := stream.Collect(ctx, ch)
	if err != nil {
		return "", fmt.Errorf("collect stream: %w", err)
	}
	return text, nil
}

// record writes the artifact and its read-only snapshot. Snapshot failure is
// logged, never raised.
func (r *Refiner) record(taskID, content string) {
	if r.artifacts == nil {
		return
	}
	if _, err := r.artifacts.WriteArtifact(taskID, content); err != nil {
		slog.Warn("failed to record refined task artifact", "task", taskID, "error", err)
		return
	}
	if err := r.artifacts.SnapshotArtifact(taskID, content); err != nil {
		slog.Warn("failed to snapshot refined task artifact", "task", taskID, "error", err)
	}
}

func augmentPrompt(prompt string, questions []FollowUpQuestion) string {
	var sb strings.Builder
	sb.WriteString(prompt)
	sb.WriteString("\n\nAdditional details from follow-up questions:")
	for _, q := range questions {
		fmt.Fprintf(&sb, "\nQ: %s\nA: %s", q.Question, q.Selected)
	}
	return sb.String()
}

func (r *Refiner) analysisSystemPrompt() string {
	tmpl, _ := json.MarshalIndent(r.template, "", "  ")
	return fmt.Sprintf(`You are a project specification assistant. Analyze user prompts and extract information to fill predefined template slots.

TEMPLATE STRUCTURE:
%s

ANALYSIS TASK:
1. Extract information from the user prompt that matches each template slot
2. Identify which required slots are missing information
3. For missing required slots, generate one specific follow-up question each
4. Draft a refined prompt with all available information

RESPONSE FORMAT:
Respond with a single JSON object:
{
  "extractedData": {"<slot name>": "<extracted value or null>"},
  "missingRequiredSlots": ["<missing required slot names>"],
  "followUpQuestions": ["<one question per missing required slot, same order>"],
  "needsMoreInfo": <boolean>,
  "refinedPrompt": "<draft specification from available information>"
}

EXTRACTION GUIDELINES:
- Be liberal in interpretation but conservative in assumption
- Look for implicit information
- Do not invent information that is not reasonably implied
- Normalize values to template-friendly formats

QUESTION GENERATION RULES:
- Ask specific, actionable questions for missing required slots
- Provide examples in questions to guide responses
- Focus on one concept per question`, tmpl)
}

func (r *Refiner) synthesisSystemPrompt() string {
	return `You are a project specification assistant. Produce a complete, actionable specification in prose using exactly this structure:

### Project Overview
- **Project Name**
- **Project Type**
- **Target Audience**
- **Project Goals**

### Technical Requirements
- **Preferred Technologies**
- **Architecture**
- **Platform**

### Design Specifications
- **Design Style**
- **Color Scheme**
- **UI/UX Preferences**
- **Animations**

### Feature Requirements
- **Core Features**
- **Additional Features**
- **User Interactions**

### Page Structure
- **Required Pages**
- **Content Strategy**
- **Navigation**

### Implementation Details
- **Development Approach**
- **File Structure**
- **Best Practices**

Fill each section from the request and the follow-up answers. Where information is missing, provide professional recommendations. Do not ask further questions.`
}

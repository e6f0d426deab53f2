package advisor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"multimodal/pkg/apperror"
	"multimodal/pkg/domain"
)

const solutionSeparator = "---"

const promptTemplate = `
We need to transport goods from %s to %s. Based on the remaining valid routes, provide 4 structured solutions strictly following this format, and separate each solution with '---':

1. Consideration: [Optimal solution / Cost-efficient / Time-saving / Environmentally friendly]

2. Route: [City 1 -> City 2 -> ... -> Final City] by [Mode1, Mode2, ...]

3. Cost: $X

4. Time: X hours

5. Carbon Footprint: X kg

6. Evaluation: [One-line comment without mentioning ratios or percentages]

Consider both direct routes (if available) and multi-step routes. For multi-step routes, list all modes used.

The first output must be the optimal solution, balancing cost, time, and environmental impact. The next solution is cost-efficient, the next is time-saving, and the last is environmentally friendly.

**Please do not mention any ratios or percentages in the evaluation.**

Please ensure each solution strictly follows the format and uses the data provided. Do not include extra information or deviate from the structure.

Valid paths: %s`

type promptPath struct {
	Route            string  `json:"route"`
	Modes            string  `json:"modes"`
	TotalCost        float64 `json:"totalCost"`
	TotalTime        float64 `json:"totalTime"`
	TotalEnvironment float64 `json:"totalEnvironment"`
}

// BuildPrompt текст запроса на четыре решения
func BuildPrompt(req Request) (string, error) {
	paths := make([]promptPath, len(req.Paths))
	for i, p := range req.Paths {
		paths[i] = promptPath{
			Route:            p.RouteText(),
			Modes:            p.ModesText(),
			TotalCost:        p.TotalCost,
			TotalTime:        p.TotalTime,
			TotalEnvironment: p.TotalEnvironment,
		}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(paths); err != nil {
		return "", fmt.Errorf("marshal paths: %w", err)
	}
	return fmt.Sprintf(promptTemplate, req.Origin, req.Destination, bytes.TrimSpace(buf.Bytes())), nil
}

var (
	reConsideration = regexp.MustCompile(`(?im)^\s*(?:\d+\.\s*)?Consideration:\s*(.+)$`)
	reRoute         = regexp.MustCompile(`(?im)^\s*(?:\d+\.\s*)?Route:\s*\[?([^\]\n]+?)\]?\s+by\s+\[?([^\]\n]+?)\]?\s*$`)
	reCost          = regexp.MustCompile(`(?im)^\s*(?:\d+\.\s*)?Cost:\s*\$?\s*([\d,]+(?:\.\d+)?)`)
	reTime          = regexp.MustCompile(`(?im)^\s*(?:\d+\.\s*)?Time:\s*([\d,]+(?:\.\d+)?)`)
	reCarbon        = regexp.MustCompile(`(?im)^\s*(?:\d+\.\s*)?Carbon Footprint:\s*([\d,]+(?:\.\d+)?)`)
	reEvaluation    = regexp.MustCompile(`(?im)^\s*(?:\d+\.\s*)?Evaluation:\s*(.+)$`)
)

// ParseReply разбивает ответ по '---' и разбирает поля каждого решения.
// Блок, не прошедший схему, сохраняется только как текст.
func ParseReply(content string) ([]Solution, error) {
	var out []Solution
	for _, block := range strings.Split(content, solutionSeparator) {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		s := parseSolution(block)
		if err := validateSolution(s); err != nil {
			s = Solution{Text: block}
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, apperror.New(apperror.CodeAdvisorMalformed, "advisor reply contains no solutions")
	}
	return out, nil
}

func parseSolution(block string) Solution {
	s := Solution{Text: block}
	if m := reConsideration.FindStringSubmatch(block); m != nil {
		s.Consideration = ParseConsideration(m[1])
	}
	if m := reRoute.FindStringSubmatch(block); m != nil {
		for _, loc := range strings.Split(m[1], "->") {
			if loc = strings.TrimSpace(loc); loc != "" {
				s.Route = append(s.Route, loc)
			}
		}
		for _, raw := range strings.Split(m[2], ",") {
			if mode, err := domain.ParseMode(raw); err == nil {
				s.Modes = append(s.Modes, mode)
			}
		}
	}
	s.Cost = parseNumber(reCost, block)
	s.Time = parseNumber(reTime, block)
	s.EnvironmentalImpact = parseNumber(reCarbon, block)
	if m := reEvaluation.FindStringSubmatch(block); m != nil {
		s.Comment = strings.TrimSpace(m[1])
	}
	return s
}

func parseNumber(re *regexp.Regexp, block string) float64 {
	m := re.FindStringSubmatch(block)
	if m == nil {
		return -1
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return -1
	}
	return v
}

const solutionSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["consideration", "route", "modes", "cost", "time", "environmentalImpact"],
  "properties": {
    "consideration": {"enum": ["optimal", "lowest-cost", "fastest", "eco-friendly"]},
    "route": {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}},
    "modes": {"type": "array", "minItems": 1, "items": {"enum": ["Sea", "Air", "Land"]}},
    "cost": {"type": "number", "minimum": 0},
    "time": {"type": "number", "minimum": 0},
    "environmentalImpact": {"type": "number", "minimum": 0}
  }
}`

var (
	solutionSchemaOnce sync.Once
	solutionSchema     *jsonschema.Schema
	solutionSchemaErr  error
)

func validateSolution(s Solution) error {
	solutionSchemaOnce.Do(func() {
		solutionSchema, solutionSchemaErr = jsonschema.CompileString("solution.schema.json", solutionSchemaJSON)
	})
	if solutionSchemaErr != nil {
		return solutionSchemaErr
	}

	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return solutionSchema.Validate(doc)
}

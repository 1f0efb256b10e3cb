// Package skillrun dispatches a Skill prompt and a structured input payload
// to one of four inference backends (C5): two local CLI wrappers and two
// HTTP APIs. Every backend returns the same shape — a decoded JSON object —
// so the orchestrator above this package never branches on provider.
package skillrun

import (
	"encoding/json"
	"fmt"
)

// RuntimeSystemPrompt is the provider-agnostic guardrail sent as the system
// message (or CLI --system-prompt) on every call: it forces JSON-only output
// regardless of what the Skill prompt itself says.
const RuntimeSystemPrompt = "You are a Skill runtime executor. You must follow the user-supplied Skill text exactly. " +
	"Output exactly one JSON object. Do not emit markdown, explanations, or any surrounding text."

// BuildUserPrompt assembles the provider-agnostic user turn from a Skill's
// prompt text, the named input payload, and the schema name the Skill is
// contracted to produce.
func BuildUserPrompt(skillPrompt, inputName string, input any, targetSchema string) (string, error) {
	encoded, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", inputName, err)
	}
	return fmt.Sprintf(
		"Execute the following Skill exactly as written and produce its result.\n"+
			"The output must be a single JSON object.\n\n"+
			"[Skill]\n%s\n\n"+
			"[%s]\n%s\n\n"+
			"[TargetSchema]\n%s\n",
		skillPrompt, inputName, string(encoded), targetSchema,
	), nil
}

// ChunkPostamble is appended to the Skill prompt when a single incremental
// input is split into chunks: each chunk call only sees a slice of sessions
// and must not assume evidence it wasn't given.
const ChunkPostamble = "\n\n[Chunk constraints]\n" +
	"- This input represents only one chunk of the full session set.\n" +
	"- Produce an intermediate mechanism report based only on this chunk.\n" +
	"- Do not assume data that was not provided."

// MergePostamble is appended when the final call aggregates chunk_reports
// from every prior chunk call into one IncrementalMechanismV1 payload.
const MergePostamble = "\n\n[Chunk merge constraints]\n" +
	"- The input contains chunk_reports, the intermediate results of every chunk.\n" +
	"- You must deduplicate, merge, and collapse layers across all chunk_reports.\n" +
	"- The final output must still be a valid IncrementalMechanismV1 payload."

package provider

import "strings"

// systemPrompt fixes the output contract: plain YouTube-style chapter lines.
const systemPrompt = `You are a tool that converts a video transcript with timestamps into chapter timecodes.
Output only chapter lines in the form "M:SS Title" (or "H:MM:SS Title" for long videos), one per line, starting at 0:00.
Titles are short and descriptive. Do not add commentary, numbering, or markdown.`

// buildUserContent assembles the user message from the custom instructions
// and the transcript. Instructions come first so they can steer the titles.
func buildUserContent(text, instructions string) string {
	var sb strings.Builder
	if s := strings.TrimSpace(instructions); s != "" {
		sb.WriteString("Additional instructions: ")
		sb.WriteString(s)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Transcript:\n")
	sb.WriteString(text)
	return sb.String()
}

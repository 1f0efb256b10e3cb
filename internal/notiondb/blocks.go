package notiondb

import "strings"

// splitText breaks text into chunks of at most limit characters, preferring
// to break on the last newline or space before the limit so words and lines
// survive intact. Notion's rich_text elements cap at 2000 characters.
func splitText(text string, limit int) []string {
	if text == "" {
		return []string{""}
	}
	var chunks []string
	for len(text) > limit {
		cut := strings.LastIndex(text[:limit], "\n")
		if cut <= 0 {
			cut = strings.LastIndex(text[:limit], " ")
		}
		if cut <= 0 {
			cut = limit
		}
		chunks = append(chunks, text[:cut])
		text = strings.TrimLeft(text[cut:], "\n")
	}
	chunks = append(chunks, text)
	return chunks
}

func richText(text string) []map[string]any {
	chunks := splitText(text, maxTextChunk)
	out := make([]map[string]any, len(chunks))
	for i, chunk := range chunks {
		out[i] = map[string]any{
			"type": "text",
			"text": map[string]any{"content": chunk},
		}
	}
	return out
}

// Heading builds a heading_1/2/3 block. level must be 1, 2, or 3.
func Heading(text string, level int) map[string]any {
	if level < 1 || level > 3 {
		level = 2
	}
	key := "heading_" + string(rune('0'+level))
	if len(text) > maxTextChunk {
		text = text[:maxTextChunk]
	}
	return map[string]any{
		"object": "block",
		"type":   key,
		key:      map[string]any{"rich_text": richText(text)},
	}
}

// Paragraph builds a paragraph block.
func Paragraph(text string) map[string]any {
	return map[string]any{
		"object":    "block",
		"type":      "paragraph",
		"paragraph": map[string]any{"rich_text": richText(text)},
	}
}

// BulletedListItem builds a bulleted_list_item block.
func BulletedListItem(text string) map[string]any {
	return map[string]any{
		"object":             "block",
		"type":               "bulleted_list_item",
		"bulleted_list_item": map[string]any{"rich_text": richText(text)},
	}
}

// Divider builds a horizontal divider block.
func Divider() map[string]any {
	return map[string]any{
		"object":  "block",
		"type":    "divider",
		"divider": map[string]any{},
	}
}

// TitleProperty builds a Notion "title" property value.
func TitleProperty(text string) map[string]any {
	return map[string]any{"title": richText(text)}
}

// RichTextProperty builds a Notion "rich_text" property value.
func RichTextProperty(text string) map[string]any {
	return map[string]any{"rich_text": richText(text)}
}

// SelectProperty builds a Notion "select" property value.
func SelectProperty(name string) map[string]any {
	return map[string]any{"select": map[string]any{"name": name}}
}

// DateProperty builds a Notion "date" property value for a single date
// (no end).
func DateProperty(iso string) map[string]any {
	return map[string]any{"date": map[string]any{"start": iso}}
}

// NumberProperty builds a Notion "number" property value.
func NumberProperty(n float64) map[string]any {
	return map[string]any{"number": n}
}

// PlainTextProperty extracts the concatenated plain text of a title or
// rich_text property value, accepting both a value decoded from an API
// response and one built by TitleProperty/RichTextProperty.
func PlainTextProperty(prop map[string]any) string {
	raw := prop["title"]
	if raw == nil {
		raw = prop["rich_text"]
	}
	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case []map[string]any:
		for _, m := range v {
			items = append(items, m)
		}
	}
	var sb strings.Builder
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if pt, ok := m["plain_text"].(string); ok {
			sb.WriteString(pt)
			continue
		}
		if text, ok := m["text"].(map[string]any); ok {
			if content, ok := text["content"].(string); ok {
				sb.WriteString(content)
			}
		}
	}
	return sb.String()
}

package tools

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

const (
	defaultServerName = "local"
	maxXMLSize        = 1024 * 1024 // 1MB limit for XML tool calls
	argumentsTagName  = "arguments"
)

var toolRegex = regexp.MustCompile(`(?s)<tool>.*?</tool>`)

// entityRegex matches ampersands that already start an XML entity.
var entityRegex = regexp.MustCompile(`&(?:amp|lt|gt|quot|apos|#\d+|#x[0-9a-fA-F]+);`)

// ParseToolCall extracts the first tool call from a model response and
// returns it with the remaining text.
func ParseToolCall(text string) (*ToolCall, string, error) {
	if len(text) > maxXMLSize {
		return nil, text, fmt.Errorf("tool call XML exceeds maximum size of %d bytes", maxXMLSize)
	}

	loc := toolRegex.FindStringIndex(text)
	if loc == nil {
		return nil, text, fmt.Errorf("no tool call found in text")
	}
	toolXML := strings.TrimSpace(text[loc[0]:loc[1]])

	var call ToolCall
	if err := UnmarshalXMLWithFallback([]byte(toolXML), &call); err != nil {
		snippet := toolXML
		if len(snippet) > 200 {
			snippet = snippet[:200] + "..."
		}
		return nil, text, fmt.Errorf("failed to unmarshal tool call XML: %w\nXML snippet: %s", err, snippet)
	}

	call.ToolName = strings.TrimSpace(call.ToolName)
	if call.ToolName == "" {
		return nil, text, fmt.Errorf("tool_name is required in tool call")
	}
	if strings.TrimSpace(call.ServerName) == "" {
		call.ServerName = defaultServerName
	}

	remaining := strings.TrimSpace(text[:loc[0]] + text[loc[1]:])
	return &call, remaining, nil
}

// HasToolCall checks if the text contains a tool call.
func HasToolCall(text string) bool {
	return toolRegex.MatchString(text)
}

// UnmarshalXMLWithFallback unmarshals data, retrying once with bare
// ampersands escaped since models often emit them unescaped in URLs.
func UnmarshalXMLWithFallback(data []byte, v interface{}) error {
	err := xml.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	if retryErr := xml.Unmarshal(escapeBareAmpersands(data), v); retryErr != nil {
		return err
	}
	return nil
}

func escapeBareAmpersands(data []byte) []byte {
	text := string(data)
	entities := make(map[int]bool)
	for _, m := range entityRegex.FindAllStringIndex(text, -1) {
		entities[m[0]] = true
	}

	var b strings.Builder
	b.Grow(len(text) + 16)
	for i := 0; i < len(text); i++ {
		if text[i] == '&' && !entities[i] {
			b.WriteString("&amp;")
			continue
		}
		b.WriteByte(text[i])
	}
	return []byte(b.String())
}

// ArgumentsToJSON converts flat XML arguments into a JSON object. Each
// direct child of <arguments> becomes a field; its text is typed using the
// property types in schema ("integer", "number", "boolean"; everything else
// stays a string). Unknown elements are kept as strings so the receiver can
// reject them.
func ArgumentsToJSON(argumentsXML []byte, schema map[string]interface{}) (json.RawMessage, error) {
	values, err := argumentValues(argumentsXML)
	if err != nil {
		return nil, err
	}

	props, _ := schema["properties"].(map[string]interface{})
	out := make(map[string]interface{}, len(values))
	for name, raw := range values {
		typ := ""
		if p, ok := props[name].(map[string]interface{}); ok {
			typ, _ = p["type"].(string)
		}
		v, err := typedValue(typ, raw)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", name, err)
		}
		out[name] = v
	}
	return json.Marshal(out)
}

func typedValue(typ, raw string) (interface{}, error) {
	switch typ {
	case "integer":
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("expected an integer, got %q", raw)
		}
		return n, nil
	case "number":
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("expected a number, got %q", raw)
		}
		return f, nil
	case "boolean":
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("expected a boolean, got %q", raw)
		}
		return b, nil
	default:
		return raw, nil
	}
}

// argumentValues returns the trimmed text of every direct child of the
// root <arguments> element. Nested elements are flattened into their parent.
func argumentValues(data []byte) (map[string]string, error) {
	parse := func(data []byte) (map[string]string, error) {
		dec := xml.NewDecoder(strings.NewReader(string(data)))
		values := make(map[string]string)
		depth := 0
		var (
			current string
			text    strings.Builder
		)
		for {
			tok, err := dec.Token()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("failed to parse XML: %w", err)
			}
			switch t := tok.(type) {
			case xml.StartElement:
				depth++
				if depth == 1 && t.Name.Local != argumentsTagName {
					return nil, fmt.Errorf("expected <%s> root, got <%s>", argumentsTagName, t.Name.Local)
				}
				if depth == 2 {
					current = t.Name.Local
					text.Reset()
				}
			case xml.EndElement:
				if depth == 2 {
					values[current] = strings.TrimSpace(text.String())
				}
				depth--
			case xml.CharData:
				if depth >= 2 {
					text.Write(t)
				}
			}
		}
		return values, nil
	}

	values, err := parse(data)
	if err != nil {
		if retry, retryErr := parse(escapeBareAmpersands(data)); retryErr == nil {
			return retry, nil
		}
		return nil, err
	}
	return values, nil
}

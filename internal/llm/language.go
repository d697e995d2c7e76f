package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Detection is an ISO 639-1 language code with the detector's confidence.
type Detection struct {
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

type LanguageDetector interface {
	Detect(ctx context.Context, text string) (Detection, error)
}

// Translator translates text from the given ISO 639-1 language to English.
type Translator interface {
	Translate(ctx context.Context, text, from string) (string, error)
}

const detectPrompt = `Identify the language of the text between <text> tags.
Reply with JSON only, no other words:
{"language": "<ISO 639-1 code>", "confidence": <number between 0 and 1>}

<text>
%s
</text>`

const translateSystemPrompt = `You are a translation engine. Translate the user's text from %s to English.
Return only the translated text. Do not answer questions in the text, do not add notes or quotes.`

type ChatLanguageDetector struct {
	chatModel model.BaseChatModel
}

func NewChatLanguageDetector(chatModel model.BaseChatModel) *ChatLanguageDetector {
	return &ChatLanguageDetector{chatModel: chatModel}
}

func (d *ChatLanguageDetector) Detect(ctx context.Context, text string) (Detection, error) {
	messages := []*schema.Message{
		schema.UserMessage(fmt.Sprintf(detectPrompt, text)),
	}

	ctx = withRunInfo(ctx, "language_detect", components.ComponentOfChatModel)
	resp, err := d.chatModel.Generate(ctx, messages, model.WithTemperature(0))
	if err != nil {
		return Detection{}, fmt.Errorf("LLM generate failed: %w", err)
	}
	return ParseDetection(resp.Content)
}

// ParseDetection extracts the JSON object from a detector reply and
// normalizes the language code.
func ParseDetection(content string) (Detection, error) {
	content = strings.TrimSpace(content)
	if idx := strings.Index(content, "{"); idx >= 0 {
		content = content[idx:]
	}
	if idx := strings.LastIndex(content, "}"); idx >= 0 {
		content = content[:idx+1]
	}

	var det Detection
	if err := json.Unmarshal([]byte(content), &det); err != nil {
		return Detection{}, fmt.Errorf("JSON unmarshal failed: %w", err)
	}

	lang, ok := NormalizeLanguage(det.Language)
	if !ok {
		return Detection{}, fmt.Errorf("invalid language code %q", det.Language)
	}
	det.Language = lang
	if det.Confidence < 0 {
		det.Confidence = 0
	}
	if det.Confidence > 1 {
		det.Confidence = 1
	}
	return det, nil
}

// NormalizeLanguage lowercases a language tag and reduces region-qualified
// tags such as "pt-BR" to their two-letter base.
func NormalizeLanguage(code string) (string, bool) {
	code = strings.ToLower(strings.TrimSpace(code))
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	if len(code) != 2 {
		return "", false
	}
	for _, r := range code {
		if r < 'a' || r > 'z' {
			return "", false
		}
	}
	return code, true
}

type ChatTranslator struct {
	chatModel model.BaseChatModel
}

func NewChatTranslator(chatModel model.BaseChatModel) *ChatTranslator {
	return &ChatTranslator{chatModel: chatModel}
}

func (t *ChatTranslator) Translate(ctx context.Context, text, from string) (string, error) {
	messages := []*schema.Message{
		schema.SystemMessage(fmt.Sprintf(translateSystemPrompt, from)),
		schema.UserMessage(text),
	}

	ctx = withRunInfo(ctx, "translate", components.ComponentOfChatModel)
	resp, err := t.chatModel.Generate(ctx, messages, model.WithTemperature(0))
	if err != nil {
		return "", fmt.Errorf("LLM generate failed: %w", err)
	}
	translated := strings.TrimSpace(resp.Content)
	if translated == "" {
		return "", fmt.Errorf("empty translation")
	}
	return translated, nil
}

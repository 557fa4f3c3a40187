package processing

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// StructuredRequest asks a text model for JSON matching Schema.
type StructuredRequest struct {
	Name        string
	Description string
	Prompt      string
	Schema      interface{}
	Temperature float64
}

// StructuredGenerator returns the model's raw JSON text. Parsing and
// validation stay with the caller so bad output can be classified.
type StructuredGenerator interface {
	GenerateJSON(ctx context.Context, req StructuredRequest) (string, error)
}

// ImageDescriber describes an image with a vision model.
type ImageDescriber interface {
	DescribeImage(ctx context.Context, image []byte, contentType, prompt string) (string, error)
}

// GenerateSchema generates a JSON schema for structured outputs
func GenerateSchema[T any]() interface{} {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)
	return schema
}

// OpenAIClient implements StructuredGenerator and ImageDescriber.
type OpenAIClient struct {
	client      openai.Client
	model       string
	visionModel string
}

func NewOpenAIClient(apiKey, model, visionModel string, opts ...option.RequestOption) *OpenAIClient {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OpenAIClient{
		client:      openai.NewClient(opts...),
		model:       model,
		visionModel: visionModel,
	}
}

func (c *OpenAIClient) GenerateJSON(ctx context.Context, req StructuredRequest) (string, error) {
	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        req.Name,
		Description: openai.String(req.Description),
		Schema:      req.Schema,
		Strict:      openai.Bool(true),
	}

	chatCompletion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
		Model:       openai.ChatModel(c.model),
		Temperature: openai.Float(req.Temperature),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: schemaParam,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(chatCompletion.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}
	return chatCompletion.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) DescribeImage(ctx context.Context, image []byte, contentType, prompt string) (string, error) {
	if contentType == "" || !strings.HasPrefix(contentType, "image/") {
		contentType = "image/jpeg"
	}
	dataURL := "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(image)

	chatCompletion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(prompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
			}),
		},
		Model: openai.ChatModel(c.visionModel),
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(chatCompletion.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}
	return strings.TrimSpace(chatCompletion.Choices[0].Message.Content), nil
}

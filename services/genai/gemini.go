// Package genaisvc implements ai.Generator on the Gemini API.
package genaisvc

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/genai"

	"github.com/codexlms/codex/core"
	"github.com/codexlms/codex/core/ai"
)

type gemini struct {
	client   *genai.Client
	model    string
	ttsModel string
	voice    string
}

var _ ai.Generator = (*gemini)(nil)

func NewGenerator(ctx context.Context, conf *core.Config) (ai.Generator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  conf.GenAI.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating genai client")
	}
	return &gemini{
		client:   client,
		model:    conf.GenAI.Model,
		ttsModel: conf.GenAI.TTSModel,
		voice:    conf.GenAI.Voice,
	}, nil
}

func (g *gemini) Generate(ctx context.Context, req ai.Request) (ai.Response, error) {
	model, config := g.model, g.config(req)
	if req.Speech != nil {
		model = g.ttsModel
	}
	resp, err := g.client.Models.GenerateContent(ctx, model, contents(req), config)
	if err != nil {
		return ai.Response{}, errors.Wrap(err, "generating content")
	}
	return response(resp)
}

func (g *gemini) config(req ai.Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.Speech != nil {
		voice := req.Speech.Voice
		if voice == "" {
			voice = g.voice
		}
		config.ResponseModalities = []string{"AUDIO"}
		config.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		}
		return config
	}
	if req.Schema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = toSchema(req.Schema)
	}
	return config
}

// contents lists the history turns followed by the prompt.
func contents(req ai.Request) []*genai.Content {
	list := make([]*genai.Content, 0, len(req.History)+1)
	for _, turn := range req.History {
		if strings.TrimSpace(turn.Text) == "" {
			continue
		}
		role := ai.RoleUser
		if turn.Role == ai.RoleModel {
			role = ai.RoleModel
		}
		list = append(list, &genai.Content{Role: role, Parts: []*genai.Part{{Text: turn.Text}}})
	}
	return append(list, &genai.Content{Role: ai.RoleUser, Parts: []*genai.Part{{Text: req.Prompt}}})
}

var schemaTypes = map[string]genai.Type{
	ai.TypeObject:  genai.TypeObject,
	ai.TypeArray:   genai.TypeArray,
	ai.TypeString:  genai.TypeString,
	ai.TypeNumber:  genai.TypeNumber,
	ai.TypeInteger: genai.TypeInteger,
	ai.TypeBoolean: genai.TypeBoolean,
}

func toSchema(s *ai.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        schemaTypes[s.Type],
		Description: s.Description,
		Required:    s.Required,
		Enum:        s.Enum,
		Items:       toSchema(s.Items),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toSchema(prop)
		}
	}
	return out
}

// response concatenates the text parts of the first candidate and keeps its first audio part.
func response(resp *genai.GenerateContentResponse) (ai.Response, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ai.Response{}, ai.ErrEmptyResponse
	}
	var (
		out  ai.Response
		text strings.Builder
	)
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		text.WriteString(part.Text)
		if part.InlineData != nil && out.Audio == nil && strings.HasPrefix(part.InlineData.MIMEType, "audio/") {
			out.Audio, out.AudioMIME = part.InlineData.Data, part.InlineData.MIMEType
		}
	}
	out.Text = text.String()
	if out.Text == "" && out.Audio == nil {
		return ai.Response{}, ai.ErrEmptyResponse
	}
	return out, nil
}

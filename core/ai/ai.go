// Package ai wraps a hosted generative model behind prompt templates returning structured results.
package ai

import (
	"context"

	"github.com/pkg/errors"
)

// Roles of a conversation turn.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Schema types
const (
	TypeObject  = "object"
	TypeArray   = "array"
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
)

var ErrEmptyResponse = errors.New("empty model response")

type (
	Turn struct {
		Role string `json:"role"`
		Text string `json:"text"`
	}

	// Schema describes the JSON output expected from the model.
	Schema struct {
		Type        string             `json:"type"`
		Description string             `json:"description,omitempty"`
		Properties  map[string]*Schema `json:"properties,omitempty"`
		Items       *Schema            `json:"items,omitempty"`
		Required    []string           `json:"required,omitempty"`
		Enum        []string           `json:"enum,omitempty"`
	}

	// SpeechConfig asks for audio instead of text.
	SpeechConfig struct {
		Voice string
	}

	Request struct {
		System  string
		Prompt  string
		History []Turn
		Schema  *Schema
		Speech  *SpeechConfig
	}

	Response struct {
		Text      string
		Audio     []byte
		AudioMIME string // eg. "audio/L16;codec=pcm;rate=24000"
	}

	// Generator is a hosted generative model.
	Generator interface {
		Generate(ctx context.Context, req Request) (Response, error)
	}
)

func object(required []string, props map[string]*Schema) *Schema {
	return &Schema{Type: TypeObject, Properties: props, Required: required}
}

func str(desc string) *Schema { return &Schema{Type: TypeString, Description: desc} }

func arrayOf(items *Schema, desc string) *Schema {
	return &Schema{Type: TypeArray, Items: items, Description: desc}
}

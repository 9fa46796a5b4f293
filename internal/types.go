package internal

import (
	"encoding/json"
	"time"
)

type TranslationRequest struct {
	ID         string          `json:"id"`
	TargetLang string          `json:"targetLanguage" validate:"required"`
	Document   json.RawMessage `json:"document" validate:"required"`
	Timestamp  time.Time       `json:"timestamp"`
}

package main

import (
	"github.com/coderisk/coupler/internal/config"
	"github.com/coderisk/coupler/internal/models"
)

func decodeOptions(raw map[string]interface{}) (models.AnalysisOptions, error) {
	return config.DecodeAnalysisOptions(raw)
}

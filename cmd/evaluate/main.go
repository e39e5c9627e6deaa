package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/zatekoja/clinicalorders/internal/evaluation"
	"github.com/zatekoja/clinicalorders/internal/extraction"
	"github.com/zatekoja/clinicalorders/internal/extraction/modelextract"
	"github.com/zatekoja/clinicalorders/internal/infrastructure/clients/llm"
	"github.com/zatekoja/clinicalorders/internal/infrastructure/observability"
	"github.com/zatekoja/clinicalorders/internal/vocabulary"
	"github.com/zatekoja/clinicalorders/pkg/config"
	"github.com/zatekoja/clinicalorders/pkg/secrets"
)

func main() {
	goldenPath := flag.String("golden", "config/golden_transcripts.json", "path to the golden transcript set")
	engineName := flag.String("engine", extraction.EnginePattern, "engine to evaluate: pattern or model")
	vocabPath := flag.String("vocab", "", "vocabulary file (defaults to VOCABULARY_PATH or the embedded set)")
	flag.Parse()

	ctx := context.Background()

	if _, err := secrets.ApplyModelCredentials(ctx, secrets.LoadVaultConfigFromEnv()); err != nil {
		log.Fatalf("Failed to load credentials from Vault: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	// Results go to stdout, so keep the logs quiet unless asked otherwise
	level := cfg.Log.Level
	if os.Getenv("LOG_LEVEL") == "" {
		level = "warn"
	}
	observability.InitLogger("clinical-orders-evaluate", "production", level)

	path := *vocabPath
	if path == "" {
		path = cfg.Engine.VocabularyPath
	}
	var vocab *vocabulary.Vocabulary
	if path == "" {
		vocab, err = vocabulary.Default()
	} else {
		vocab, err = vocabulary.Load(path)
	}
	if err != nil {
		log.Fatalf("Failed to load vocabulary: %v", err)
	}

	var extractor evaluation.Extractor
	switch *engineName {
	case extraction.EnginePattern:
		engine, err := extraction.NewEngine(extraction.Options{
			Vocabulary: vocab,
			Guardrails: extraction.GuardrailConfig{
				MinConfidence: cfg.Engine.MinConfidence,
				MaxEntities:   cfg.Engine.MaxEntities,
			},
		})
		if err != nil {
			log.Fatalf("Failed to initialize extraction engine: %v", err)
		}
		extractor = evaluation.PatternExtractor{Engine: engine}
	case extraction.EngineModel:
		model, err := llm.NewJSONModel(cfg)
		if err != nil {
			log.Fatalf("Failed to initialize language model: %v", err)
		}
		if model == nil {
			log.Fatalf("No language model configured: set OPENAI_API_KEY or ANTHROPIC_API_KEY")
		}
		extractor = modelextract.New(model, vocab, modelextract.WithTimeout(cfg.Model.Timeout))
	default:
		log.Fatalf("Unknown engine %q: expected pattern or model", *engineName)
	}

	cases, err := evaluation.LoadGoldenTranscripts(*goldenPath)
	if err != nil {
		log.Fatalf("Failed to load golden transcripts: %v", err)
	}
	if err := evaluation.ValidateGoldenTranscripts(cases); err != nil {
		log.Fatalf("Invalid golden transcripts: %v", err)
	}

	runner := evaluation.NewRunner(*engineName, extractor)
	summary, err := runner.Run(ctx, cases)
	if err != nil {
		log.Fatalf("Evaluation failed: %v", err)
	}

	// Output results as JSON
	out, _ := json.MarshalIndent(summary, "", "  ")
	fmt.Println(string(out))
}

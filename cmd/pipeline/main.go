package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/precision-dx-pipeline/internal/calculator"
	"github.com/precision-dx-pipeline/internal/config"
	"github.com/precision-dx-pipeline/internal/critic"
	"github.com/precision-dx-pipeline/internal/logging"
	"github.com/precision-dx-pipeline/internal/pipeline"
	"github.com/precision-dx-pipeline/internal/provider"
	"github.com/precision-dx-pipeline/internal/signal"
	"github.com/precision-dx-pipeline/internal/uncertainty"
)

func main() {
	message := flag.String("message", "", "patient symptom description")
	patientJSON := flag.String("patient", "{}", "patient data as JSON (age, history, vitals)")
	patientID := flag.String("patient-id", "", "patient identifier")
	sessionID := flag.String("session-id", "", "session identifier")
	flag.Parse()

	if *message == "" {
		fmt.Fprintln(os.Stderr, "usage: pipeline -message \"symptoms\" [-patient '{\"age\": 55}']")
		os.Exit(2)
	}

	// Load and validate configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}
	cfg := configManager.GetConfig()

	logger := logging.NewLogger(cfg.Logging)

	var patientData map[string]any
	if err := json.Unmarshal([]byte(*patientJSON), &patientData); err != nil {
		log.Fatalf("Invalid patient data JSON: %v", err)
	}

	// Wire pipeline components
	extractor, err := signal.NewExtractor(logger, cfg.Signal.CacheSize)
	if err != nil {
		log.Fatalf("Failed to create signal extractor: %v", err)
	}
	router := signal.NewRouter(logger, cfg.Uncertainty.MaxVOIQuestions)
	registry := calculator.NewRegistry(logger, cfg.Calculator.MinCompleteness)
	quantifier := uncertainty.NewQuantifier(logger, cfg.Uncertainty)
	abstention := uncertainty.NewEngine(logger, cfg.Uncertainty)
	ruleCritic := critic.NewCritic(logger, cfg.Critic)

	prov := provider.NewResilient(provider.NewRuleBased(logger), logger, cfg.Provider)
	executor := pipeline.NewExecutor(logger, prov, registry, quantifier, cfg.Uncertainty)
	service := pipeline.NewService(logger, extractor, router, executor, ruleCritic, quantifier, abstention)

	card := service.Process(context.Background(), pipeline.ConsultationRequest{
		PatientID:   *patientID,
		SessionID:   *sessionID,
		Message:     *message,
		PatientData: patientData,
	})

	output, err := json.MarshalIndent(card, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode diagnosis card: %v", err)
	}
	fmt.Println(string(output))
}

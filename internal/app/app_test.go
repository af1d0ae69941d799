package app

import (
	"context"
	"os"
	"testing"

	"foodbridge/internal/config"
	"foodbridge/internal/logistics"
	"foodbridge/internal/vision"
)

func TestOpenUsesDefaultsAndAIScorer(t *testing.T) {
	rt, err := Open(context.Background(), t.TempDir(), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()
	if len(rt.Config.NGOs) == 0 {
		t.Fatal("expected default NGO catalog")
	}
	if _, ok := rt.Engine.Classifier.(*vision.Classifier); !ok {
		t.Fatalf("unexpected classifier %T", rt.Engine.Classifier)
	}
	if _, ok := rt.Engine.Scorer.(*vision.Scorer); !ok {
		t.Fatalf("unexpected scorer %T", rt.Engine.Scorer)
	}
}

func TestRuleScorerFromConfig(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(config.Path(dir), []byte("matching:\n  scorer: rules\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	rt, err := Open(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()
	if _, ok := rt.Engine.Scorer.(logistics.RuleScorer); !ok {
		t.Fatalf("expected rule scorer, got %T", rt.Engine.Scorer)
	}
}

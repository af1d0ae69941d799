package engine_test

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"
	"testing"

	"foodbridge/internal/domain"
	"foodbridge/internal/engine"
)

type recordingArchive struct {
	mu   sync.Mutex
	puts []string
}

func (a *recordingArchive) Put(_ context.Context, sessionID string, _ []byte, _ string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.puts = append(a.puts, sessionID)
	return "donations/" + sessionID + ".jpg", nil
}

func TestSubmitImageReturnsPreview(t *testing.T) {
	env := newTestEnv(t)
	photo := []byte("raw photo bytes")
	v := env.toSafetyCheck(t, "donor-1")
	if v.Image == nil {
		t.Fatalf("expected image info")
	}
	want := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(photo)
	if v.Image.Preview != want {
		t.Fatalf("unexpected preview %q", v.Image.Preview)
	}
}

func TestOfflineClassifySkipsArchive(t *testing.T) {
	env := newTestEnv(t)
	arch := &recordingArchive{}
	env.Engine.Archive = arch
	env.Classifier.err = domain.NewPipelineError(domain.KindNoConnectivity, "No Internet Connection", nil)

	v, _ := env.Engine.StartSession(env.Ctx, "donor-1")
	v, err := env.Engine.SubmitImage(env.Ctx, v.ID, "donor-1", []byte("x"), "image/jpeg")
	if err != nil || v.State != engine.StateError {
		t.Fatalf("expected error state, got %s (%v)", v.State, err)
	}
	if len(arch.puts) != 0 {
		t.Fatalf("archive called while offline: %v", arch.puts)
	}

	env.Classifier.err = nil
	if v, err = env.Engine.ResetSession(env.Ctx, v.ID, "donor-1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	v, err = env.Engine.SubmitImage(env.Ctx, v.ID, "donor-1", []byte("x"), "image/jpeg")
	if err != nil || v.State != engine.StateSafetyCheck {
		t.Fatalf("expected safety_check, got %s (%v)", v.State, err)
	}
	if len(arch.puts) != 1 || v.Image == nil || !strings.HasSuffix(v.Image.ArchiveKey, ".jpg") {
		t.Fatalf("expected one archived photo, got %v %+v", arch.puts, v.Image)
	}
}

func TestUnsafeVerdictStoreFailureEndsInError(t *testing.T) {
	env := newTestEnv(t)
	env.Classifier.donation = donation(5.0, false)
	v, _ := env.Engine.StartSession(env.Ctx, "donor-1")
	env.Engine.DB.Close()

	v, err := env.Engine.SubmitImage(env.Ctx, v.ID, "donor-1", []byte("x"), "image/jpeg")
	if err != nil {
		t.Fatalf("store failure should surface through the view, got %v", err)
	}
	if v.State != engine.StateError || v.Busy || v.Error == nil || v.Error.Kind != domain.KindRemote {
		t.Fatalf("unexpected view %s busy=%v %+v", v.State, v.Busy, v.Error)
	}
	if strings.Contains(v.Error.Message, "sql") {
		t.Fatalf("storage detail leaked to the user: %q", v.Error.Message)
	}

	v, err = env.Engine.ResetSession(env.Ctx, v.ID, "donor-1")
	if err != nil || v.State != engine.StateIdle {
		t.Fatalf("reset: %s (%v)", v.State, err)
	}
	env.Classifier.donation = donation(5.0, true)
	v, err = env.Engine.SubmitImage(env.Ctx, v.ID, "donor-1", []byte("x"), "image/jpeg")
	if err != nil || v.State != engine.StateSafetyCheck {
		t.Fatalf("session should accept a new photo, got %s (%v)", v.State, err)
	}
}

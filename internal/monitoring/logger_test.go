package monitoring

import (
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	if !called {
		t.Error("custom logger was not called")
	}

	// nil installs a no-op logger
	called = false
	SetLogger(nil)
	Logf("test message")
	if called {
		t.Error("no-op logger should not have triggered callback")
	}
}

func TestLogf_Default(t *testing.T) {
	if Logf == nil {
		t.Error("Logf should not be nil by default")
	}

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Logf panicked: %v", r)
		}
	}()
	Logf("test message: %s", "value")
}

func TestDebugf_GatedByVerbose(t *testing.T) {
	original := Logf
	originalVerbose := Verbose
	defer func() {
		Logf = original
		Verbose = originalVerbose
	}()

	calls := 0
	SetLogger(func(format string, v ...interface{}) { calls++ })

	Verbose = false
	Debugf("suppressed")
	if calls != 0 {
		t.Errorf("expected 0 calls with Verbose=false, got %d", calls)
	}

	Verbose = true
	Debugf("emitted")
	if calls != 1 {
		t.Errorf("expected 1 call with Verbose=true, got %d", calls)
	}
}

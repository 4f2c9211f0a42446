package config

import (
	"path/filepath"
	"testing"
)

func TestLoadWritesDefaultWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.VideoFPSOut != Default().VideoFPSOut {
		t.Fatalf("got VideoFPSOut=%d, want default %d", cfg.VideoFPSOut, Default().VideoFPSOut)
	}

	again, err := Load(path)
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if again != cfg {
		t.Fatalf("reloaded config differs from first load: %+v vs %+v", again, cfg)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "settings.yml")

	cfg := Default()
	cfg.MinBufferMS = 3000
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.MinBufferMS != 3000 {
		t.Fatalf("got MinBufferMS=%d, want 3000", got.MinBufferMS)
	}
}

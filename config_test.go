package symstream

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Name != "foxes" || cfg.Mode != "session" || cfg.Symbol != "f09fa68a" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.BlockSize != 4096 || cfg.SessionTTL != time.Hour || cfg.KeyPrefix != "symstream:" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("SYMSTREAM_NAME", "owls")
	t.Setenv("SYMSTREAM_MODE", "shared")
	t.Setenv("SYMSTREAM_SUPPLY", "7")
	t.Setenv("SYMSTREAM_SYMBOL", "f09fa689")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	opts, err := cfg.DeviceOptions()
	if err != nil {
		t.Fatalf("DeviceOptions: %v", err)
	}
	d, err := Register(context.Background(), cfg.Name, append(opts, WithLogger(discardLogger()))...)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	defer d.Close(context.Background())

	if d.Name() != "owls" || d.Mode() != ModeShared || d.InitialSupply() != 7 {
		t.Fatalf("unexpected device: name %s mode %s supply %d", d.Name(), d.Mode(), d.InitialSupply())
	}
	if string(d.Symbol().Bytes()) != "🦉" {
		t.Fatalf("unexpected symbol %s", d.Symbol())
	}
}

func TestConfigDeviceOptionsErrors(t *testing.T) {
	if _, err := (Config{Mode: "sometimes"}).DeviceOptions(); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("want ErrInvalidMode, got %v", err)
	}
	if _, err := (Config{Mode: "session", Symbol: "00112233445566778899"}).DeviceOptions(); !errors.Is(err, ErrSymbolWidth) {
		t.Fatalf("want ErrSymbolWidth, got %v", err)
	}
}

func TestParseSupplyMode(t *testing.T) {
	for _, m := range []SupplyMode{ModeUnbounded, ModeSession, ModeShared} {
		got, err := ParseSupplyMode(m.String())
		if err != nil || got != m {
			t.Fatalf("round trip %s: got %s err %v", m, got, err)
		}
	}
	if got, _ := ParseSupplyMode(" Private "); got != ModeSession {
		t.Fatalf("want alias private -> session, got %s", got)
	}
	if ModeUnbounded.Bounded() || !ModeShared.Bounded() {
		t.Fatalf("unexpected Bounded results")
	}
}

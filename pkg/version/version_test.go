package version

import (
	"strings"
	"testing"
)

func TestInfo(t *testing.T) {
	info := Info()
	for _, key := range []string{"version", "buildTime", "gitCommit", "goVersion"} {
		if info[key] == "" {
			t.Errorf("missing %s", key)
		}
	}
}

func TestString(t *testing.T) {
	old := Version
	Version = "1.2.3"
	defer func() { Version = old }()

	if s := String(); !strings.HasPrefix(s, "tickbusd 1.2.3\n") {
		t.Errorf("unexpected version string %q", s)
	}
}

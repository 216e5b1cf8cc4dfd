package network

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const topoYAML = `
platform_headway_minutes: 3
stations:
  - id: A
    platforms:
      - id: a1
        capacity: 2
  - id: B
    platforms:
      - id: b1
sections:
  - id: s-ab
    from: A
    to: B
    length_km: 12
    capacity: 1
    bidirectional: true
    headway_minutes: 4
`

const rosterYAML = `
trains:
  - id: E1
    class: express
    speed_kph: 140
    stops:
      - station: A
        departure: 2026-03-02T08:00:00Z
      - station: B
        arrival: 2026-03-02T08:10:00Z
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadTopology(t *testing.T) {
	n, err := Load(writeFile(t, "topo.yaml", topoYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	a1, ok := n.Resource("a1")
	if !ok || a1.Capacity != 2 || a1.Headway != 3*time.Minute {
		t.Errorf("a1 = %+v", a1)
	}
	sec, ok := n.Resource("s-ab")
	if !ok || sec.Headway != 4*time.Minute || !sec.Bidirectional {
		t.Errorf("s-ab = %+v", sec)
	}
}

func TestLoadTopologyDefaults(t *testing.T) {
	n, err := Load(writeFile(t, "topo.yaml", `
stations:
  - id: A
    platforms:
      - id: a1
sections:
  - id: s-aa
    from: A
    to: A
    length_km: 1
    capacity: 1
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	a1, _ := n.Resource("a1")
	if a1.Capacity != 1 || a1.Headway != 2*time.Minute {
		t.Errorf("platform defaults not applied: %+v", a1)
	}
	sec, _ := n.Resource("s-aa")
	if sec.Headway != 5*time.Minute {
		t.Errorf("section headway default not applied: %+v", sec)
	}
}

func TestLoadTopologyErrors(t *testing.T) {
	if _, err := Load("missing.yaml"); err == nil {
		t.Error("missing file should fail")
	}
	if _, err := Load(writeFile(t, "topo.txt", topoYAML)); err == nil {
		t.Error("unknown extension should fail")
	}
	if _, err := Load(writeFile(t, "bad.yaml", ":")); err == nil {
		t.Error("malformed yaml should fail")
	}
}

func TestLoadRoster(t *testing.T) {
	trains, err := LoadRoster(writeFile(t, "roster.yaml", rosterYAML))
	if err != nil {
		t.Fatalf("load roster: %v", err)
	}
	if len(trains) != 1 {
		t.Fatalf("expected 1 train, got %d", len(trains))
	}
	tr := trains[0]
	if tr.ID != "E1" || tr.SpeedKPH != 140 || len(tr.Route) != 2 {
		t.Errorf("train = %+v", tr)
	}
}

func TestLoadRosterRejectsBadTrains(t *testing.T) {
	cases := map[string]string{
		"unknown class": `
trains:
  - id: E1
    class: hovercraft
    speed_kph: 100
    stops:
      - station: A
`,
		"no speed": `
trains:
  - id: E1
    class: express
    stops:
      - station: A
`,
	}
	for name, content := range cases {
		if _, err := LoadRoster(writeFile(t, "roster.yaml", content)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

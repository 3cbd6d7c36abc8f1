package scenario

import (
	"testing"

	"github.com/elektrokombinacija/amr-fleet/internal/config"
)

func testParams() Params {
	return Params{
		Seed:      42,
		Scale:     "small",
		WorldSize: 100,
		SpeedMin:  1.0,
		SpeedMax:  2.0,
		Presets:   config.DefaultScaleMap(),
	}
}

func TestGenerateDeterministic(t *testing.T) {
	robots1, jobs1, hash1, err := Generate(testParams())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	robots2, jobs2, hash2, err := Generate(testParams())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if hash1 != hash2 {
		t.Fatalf("same seed produced different hashes: %s vs %s", hash1, hash2)
	}
	if len(robots1) != 5 || len(jobs1) != 25 {
		t.Fatalf("small preset should give 5 robots / 25 jobs, got %d/%d", len(robots1), len(jobs1))
	}
	for i := range robots1 {
		if robots1[i] != robots2[i] {
			t.Fatalf("robot %d differs across runs", i)
		}
	}
	for i := range jobs1 {
		if jobs1[i] != jobs2[i] {
			t.Fatalf("job %d differs across runs", i)
		}
	}
}

func TestGenerateSeedChangesHash(t *testing.T) {
	_, _, hash1, err := Generate(testParams())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	p := testParams()
	p.Seed = 43
	_, _, hash2, err := Generate(p)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if hash1 == hash2 {
		t.Fatal("different seeds must change the scenario hash")
	}
}

func TestGenerateInitialState(t *testing.T) {
	robots, jobs, _, err := Generate(testParams())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, r := range robots {
		if r.Battery != 100.0 {
			t.Errorf("robot %d battery = %v, want 100", r.ID, r.Battery)
		}
		if r.State != "idle" {
			t.Errorf("robot %d state = %s, want idle", r.ID, r.State)
		}
		if r.X < 0 || r.X > 100 || r.Y < 0 || r.Y > 100 {
			t.Errorf("robot %d out of world: (%v,%v)", r.ID, r.X, r.Y)
		}
		if r.Speed < 1.0 || r.Speed > 2.0 {
			t.Errorf("robot %d speed = %v, want [1,2]", r.ID, r.Speed)
		}
	}
	for i, j := range jobs {
		if j.State != "pending" {
			t.Errorf("job %s state = %s, want pending", j.ID, j.State)
		}
		if j.Priority < 1 || j.Priority > 5 {
			t.Errorf("job %s priority = %d, want [1,5]", j.ID, j.Priority)
		}
		lo := 120 + (i+1)*12
		if j.DeadlineTS < lo || j.DeadlineTS > lo+20 {
			t.Errorf("job %s deadline = %d, want [%d,%d]", j.ID, j.DeadlineTS, lo, lo+20)
		}
	}
}

func TestGenerateOverrides(t *testing.T) {
	p := testParams()
	p.Robots = 2
	p.Jobs = 3
	robots, jobs, _, err := Generate(p)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(robots) != 2 || len(jobs) != 3 {
		t.Fatalf("override gave %d robots / %d jobs", len(robots), len(jobs))
	}
}

func TestGenerateValidation(t *testing.T) {
	p := testParams()
	p.Scale = "giant"
	if _, _, _, err := Generate(p); err == nil {
		t.Error("expected error for unknown scale")
	}

	p = testParams()
	p.Robots = 2 // jobs left 0
	if _, _, _, err := Generate(p); err == nil {
		t.Error("expected error for lone robots override")
	}

	p = testParams()
	p.Robots = -1
	p.Jobs = 3
	if _, _, _, err := Generate(p); err == nil {
		t.Error("expected error for negative robots override")
	}
}

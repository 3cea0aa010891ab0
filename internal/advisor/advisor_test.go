package advisor

import "testing"

func TestParseDifficulty(t *testing.T) {
	cases := []struct {
		in   string
		want Difficulty
		ok   bool
	}{
		{"easy", DifficultyEasy, true},
		{"MEDIUM", DifficultyMedium, true},
		{" hard ", DifficultyHard, true},
		{"", DifficultyMedium, true},
		{"grandmaster", "", false},
	}
	for _, c := range cases {
		got, err := ParseDifficulty(c.in)
		if c.ok && (err != nil || got != c.want) {
			t.Fatalf("ParseDifficulty(%q) = %q, %v; want %q", c.in, got, err, c.want)
		}
		if !c.ok && err == nil {
			t.Fatalf("ParseDifficulty(%q): expected error", c.in)
		}
	}
}

func TestPresetFor(t *testing.T) {
	easy := PresetFor(DifficultyEasy)
	medium := PresetFor(DifficultyMedium)
	hard := PresetFor(DifficultyHard)

	if easy.SkillLevel != 5 || medium.SkillLevel != 10 || hard.SkillLevel != 20 {
		t.Fatalf("skill levels = %d/%d/%d", easy.SkillLevel, medium.SkillLevel, hard.SkillLevel)
	}
	if !(easy.MoveTime < medium.MoveTime && medium.MoveTime < hard.MoveTime) {
		t.Fatalf("movetimes not increasing: %v %v %v", easy.MoveTime, medium.MoveTime, hard.MoveTime)
	}
}

func TestBuildPositionCommand(t *testing.T) {
	if got := buildPositionCommand("startpos", nil); got != "position startpos\n" {
		t.Fatalf("startpos command = %q", got)
	}
	if got := buildPositionCommand("", []string{"e2e4", "e7e5"}); got != "position startpos moves e2e4 e7e5\n" {
		t.Fatalf("moves command = %q", got)
	}
	fen := "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
	if got := buildPositionCommand(fen, nil); got != "position fen "+fen+"\n" {
		t.Fatalf("fen command = %q", got)
	}
}

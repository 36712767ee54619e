package models

import "testing"

func TestRecoveryDifficultyFor(t *testing.T) {
	tests := []struct {
		count int
		want  string
	}{
		{3, DifficultyEasy},
		{4, DifficultyEasy},
		{5, DifficultyNormal},
		{6, DifficultyNormal},
		{7, DifficultyHard},
		{20, DifficultyHard},
	}
	for _, tt := range tests {
		if got := RecoveryDifficultyFor(tt.count); got != tt.want {
			t.Errorf("count %d: %q, want %q", tt.count, got, tt.want)
		}
	}
}

func TestEscalateDifficulty(t *testing.T) {
	if got := EscalateDifficulty(DifficultyEasy); got != DifficultyNormal {
		t.Errorf("easy escalates to %q", got)
	}
	if got := EscalateDifficulty(DifficultyNormal); got != DifficultyHard {
		t.Errorf("normal escalates to %q", got)
	}
	if got := EscalateDifficulty(DifficultyHard); got != DifficultyHard {
		t.Errorf("hard must stay hard, got %q", got)
	}
}

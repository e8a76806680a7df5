package main

import (
	"testing"

	"github.com/spf13/viper"

	"github.com/pavelanni/assessor/internal/llm/prompts"
)

func TestRootCommands(t *testing.T) {
	root := rootCmd()
	for _, name := range []string{"serve", "extract", "grade", "plagiarism", "export"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered (err=%v)", name, err)
		}
	}
	if root.RunE == nil {
		t.Error("root command should default to serve")
	}
	if root.Flags().Lookup("addr") == nil {
		t.Error("serve flags should be available on the root command")
	}
}

func TestPromptVariant(t *testing.T) {
	tests := []struct {
		in   string
		want prompts.PromptVariant
	}{
		{"strict", prompts.PromptStrict},
		{" Lenient ", prompts.PromptLenient},
		{"", prompts.PromptStandard},
		{"harsh", prompts.PromptStandard},
	}
	for _, tt := range tests {
		v := viper.New()
		v.Set("prompt-variant", tt.in)
		if got := promptVariant(v); got != tt.want {
			t.Errorf("promptVariant(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWriteOutputFile(t *testing.T) {
	path := t.TempDir() + "/out.json"
	if err := writeOutput(path, map[string]int{"n": 1}); err != nil {
		t.Fatalf("writeOutput: %v", err)
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("read back: %v", err)
	}
	if v.GetInt("n") != 1 {
		t.Errorf("n = %d, want 1", v.GetInt("n"))
	}
}

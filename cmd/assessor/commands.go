package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pavelanni/assessor/internal/docparse"
	"github.com/pavelanni/assessor/internal/extract"
	"github.com/pavelanni/assessor/internal/grading"
	"github.com/pavelanni/assessor/internal/plagiarism"
	"github.com/pavelanni/assessor/internal/store"
)

func extractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract FILE",
		Short: "Extract questions from a DOCX or text document",
		Args:  cobra.ExactArgs(1),
		RunE:  runExtract,
	}
	f := cmd.Flags()
	f.Bool("images", false, "Send embedded images to the model")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLLMFlags(cmd)
	addLoggingFlags(cmd)
	return cmd
}

func gradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grade",
		Short: "Grade an essay from a text file, file URLs or a stored submission",
		RunE:  runGrade,
	}
	f := cmd.Flags()
	f.String("question", "", "Question or assignment prompt")
	f.Float64("max-score", 0, "Maximum score")
	f.String("rubric", "", "Grading rubric (default: built-in rubric)")
	f.String("text-file", "", "File holding the essay text")
	f.StringSlice("url", nil, "Submission file URL (repeatable)")
	f.String("submission", "", "Grade and store a submission by ID instead")
	f.String("db", "assessor.db", "SQLite database path (with --submission)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLLMFlags(cmd)
	addFetchFlags(cmd)
	addLoggingFlags(cmd)
	cmd.MarkFlagsMutuallyExclusive("text-file", "url", "submission")
	cmd.MarkFlagsOneRequired("text-file", "url", "submission")
	return cmd
}

func plagiarismCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plagiarism",
		Short: "Check the submitted work of an assignment for similar pairs",
		RunE:  runPlagiarism,
	}
	f := cmd.Flags()
	f.String("assignment", "", "Assignment ID (required)")
	f.Float64("threshold", plagiarism.DefaultThreshold, "Similarity percentage that flags a pair")
	f.String("db", "assessor.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLoggingFlags(cmd)
	_ = cmd.MarkFlagRequired("assignment")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export graded submissions and plagiarism decisions as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("assignment", "", "Assignment ID (required)")
	f.String("db", "assessor.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLoggingFlags(cmd)
	_ = cmd.MarkFlagRequired("assignment")
	return cmd
}

func runExtract(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := docparse.Parse(filepath.Base(path), "", data, v.GetBool("images"))
	if err != nil {
		return err
	}

	client, err := newLLM(ctx, v, nil)
	if err != nil {
		return err
	}
	questions, err := extract.New(client, nil).ExtractQuestions(ctx, doc.Text, doc.Images)
	if err != nil {
		return err
	}
	return writeOutput(v.GetString("output"), questions)
}

func runGrade(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	client, err := newLLM(ctx, v, nil)
	if err != nil {
		return err
	}
	fetcher, err := newFetcher(v)
	if err != nil {
		return err
	}
	grader := grading.New(client, fetcher, nil, grading.Options{Variant: promptVariant(v)})

	if id := v.GetString("submission"); id != "" {
		db, err := store.New(v.GetString("db"))
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		result, err := grading.NewService(grader, db, nil, 1).GradeSubmission(ctx, id, v.GetString("rubric"))
		if err != nil {
			return err
		}
		return writeOutput(v.GetString("output"), result)
	}

	question, maxScore, rubric := v.GetString("question"), v.GetFloat64("max-score"), v.GetString("rubric")
	if textFile := v.GetString("text-file"); textFile != "" {
		text, err := os.ReadFile(textFile)
		if err != nil {
			return fmt.Errorf("read %s: %w", textFile, err)
		}
		result, err := grader.GradeFromText(ctx, string(text), question, maxScore, rubric)
		if err != nil {
			return err
		}
		return writeOutput(v.GetString("output"), result)
	}
	result, err := grader.GradeFromFiles(ctx, v.GetStringSlice("url"), question, maxScore, rubric)
	if err != nil {
		return err
	}
	return writeOutput(v.GetString("output"), result)
}

func runPlagiarism(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	wf, err := plagiarism.NewChecker(db, v.GetFloat64("threshold"), nil).Check(cmd.Context(), v.GetString("assignment"))
	if err != nil {
		return err
	}
	return writeOutput(v.GetString("output"), struct {
		Report any `json:"report"`
		Pairs  any `json:"pairs"`
	}{wf.Report(), wf.Pairs()})
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := db.ExportAssignment(cmd.Context(), v.GetString("assignment"))
	if err != nil {
		return fmt.Errorf("export assignment: %w", err)
	}
	return writeOutput(v.GetString("output"), export)
}

// writeOutput writes v as indented JSON to path, or stdout for "-".
func writeOutput(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	var w io.Writer
	if path == "" || path == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)
	return nil
}

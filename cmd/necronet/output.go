package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tendant/necronet/pkg/necronet"
	"github.com/tendant/necronet/pkg/necronet/storage"
	"github.com/tendant/necronet/pkg/necronet/validation"
	"github.com/tendant/necronet/pkg/necronet/viewstate"
)

func (a *app) writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) printArtifact(cmd *cobra.Command, artifact *necronet.Artifact) error {
	a.outMu.Lock()
	defer a.outMu.Unlock()

	w := cmd.OutOrStdout()
	if a.json {
		return a.writeJSON(w, artifact)
	}
	fmt.Fprintf(w, "Artifact ID: %s\n", artifact.ID)
	fmt.Fprintf(w, "Name:        %s\n", artifact.Name)
	fmt.Fprintf(w, "Type:        %s\n", artifact.Type)
	fmt.Fprintf(w, "Status:      %s\n", artifact.Status)
	if !artifact.CreatedAt.IsZero() {
		fmt.Fprintf(w, "Created:     %s\n", artifact.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	if artifact.StorageKey != "" {
		fmt.Fprintf(w, "Storage URL: %s\n", storage.NewURLBuilder(a.cfg.StorageConfig()).PublicURL(artifact.StorageKey))
	}
	if artifact.HasNarration() {
		fmt.Fprintf(w, "Narration:   %s\n", *artifact.NarrationURL)
	}
	if artifact.ErrorMessage != nil {
		fmt.Fprintf(w, "Error:       %s\n", *artifact.ErrorMessage)
	}
	return nil
}

func (a *app) printStatus(cmd *cobra.Command, artifact *necronet.Artifact) {
	a.outMu.Lock()
	defer a.outMu.Unlock()

	w := cmd.OutOrStdout()
	if a.json {
		_ = a.writeJSON(w, artifact)
		return
	}
	line := fmt.Sprintf("%s  %s", artifact.ID, artifact.Status)
	if artifact.HasNarration() {
		line += "  narration: " + *artifact.NarrationURL
	}
	if artifact.ErrorMessage != nil {
		line += "  error: " + *artifact.ErrorMessage
	}
	fmt.Fprintln(w, line)
}

func (a *app) printList(cmd *cobra.Command, state viewstate.ListState) error {
	a.outMu.Lock()
	defer a.outMu.Unlock()

	w := cmd.OutOrStdout()
	if a.json {
		return a.writeJSON(w, necronet.ArtifactList{Artifacts: state.Artifacts, Total: state.Total})
	}
	if len(state.Artifacts) == 0 {
		fmt.Fprintln(w, "The museum is empty.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tSTATUS\tCREATED")
	for _, artifact := range state.Artifacts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			artifact.ID, artifact.Name, artifact.Type, artifact.Status, artifact.CreatedAt.Format("2006-01-02 15:04"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "Showing %d of %d artifacts\n", len(state.Artifacts), state.Total)
	return nil
}

func (a *app) printPlan(cmd *cobra.Command, plan *necronet.MigrationPlan) error {
	a.outMu.Lock()
	defer a.outMu.Unlock()

	w := cmd.OutOrStdout()
	if a.json {
		return a.writeJSON(w, plan)
	}
	fmt.Fprintf(w, "Type:      %s\n", plan.ArtifactType)
	fmt.Fprintf(w, "Strategy:  %s\n", plan.Strategy)
	fmt.Fprintf(w, "Estimated: %ds\n", plan.EstimatedDurationSeconds)
	fmt.Fprintln(w, "Steps:")
	for _, step := range plan.Steps {
		fmt.Fprintf(w, "  %s\n", step)
	}
	return nil
}

type validationOutput struct {
	Path  string `json:"path"`
	Size  string `json:"size"`
	Type  string `json:"artifact_type"`
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

func (a *app) printValidation(cmd *cobra.Command, path string, file *necronet.File, result necronet.ValidationResult) error {
	a.outMu.Lock()
	defer a.outMu.Unlock()

	out := validationOutput{
		Path:  path,
		Size:  validation.FormatFileSize(file.Size),
		Type:  string(validation.ClassifyByExtension(file.Name)),
		Valid: result.Valid,
		Error: result.Error,
	}
	w := cmd.OutOrStdout()
	if a.json {
		return a.writeJSON(w, out)
	}
	verdict := "ok"
	if !out.Valid {
		verdict = "rejected: " + out.Error
	}
	fmt.Fprintf(w, "%s (%s, %s): %s\n", out.Path, out.Size, out.Type, verdict)
	return nil
}

func (a *app) printHealth(cmd *cobra.Command, health *necronet.Health) error {
	a.outMu.Lock()
	defer a.outMu.Unlock()

	w := cmd.OutOrStdout()
	if a.json {
		return a.writeJSON(w, health)
	}
	parts := []string{"status=" + health.Status}
	for _, kv := range [][2]string{{"supabase", health.Supabase}, {"s3", health.S3}, {"tts", health.TTS}} {
		if kv[1] != "" {
			parts = append(parts, kv[0]+"="+kv[1])
		}
	}
	fmt.Fprintln(w, strings.Join(parts, " "))
	return nil
}

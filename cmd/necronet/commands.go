package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tendant/necronet/pkg/necronet"
	"github.com/tendant/necronet/pkg/necronet/poller"
	"github.com/tendant/necronet/pkg/necronet/storage"
	"github.com/tendant/necronet/pkg/necronet/upload"
	"github.com/tendant/necronet/pkg/necronet/validation"
	"github.com/tendant/necronet/pkg/necronet/viewstate"
	"golang.org/x/sync/errgroup"
)

// NewUploadCommand creates the upload command
func NewUploadCommand(a *app) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a legacy file to the museum",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, closeFile, err := openFile(args[0])
			if err != nil {
				return err
			}
			defer closeFile()

			controller := upload.NewController(a.client, upload.WithLogger(a.logger))
			unsubscribe := controller.Subscribe(func(p necronet.UploadProgress) {
				if p.Status == necronet.ProgressUploading {
					fmt.Fprintf(cmd.ErrOrStderr(), "\rUploading %s... %3d%%", file.Name, p.Percent)
				}
			})
			artifact := controller.Upload(cmd.Context(), file)
			unsubscribe()
			fmt.Fprintln(cmd.ErrOrStderr())

			if artifact == nil {
				return errors.New(controller.Progress().Error)
			}
			if err := a.printArtifact(cmd, artifact); err != nil {
				return err
			}
			if !watch {
				return nil
			}
			return a.watch(cmd, artifact.ID)
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "follow the migration until it finishes")
	return cmd
}

// NewGetCommand creates the get command
func NewGetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <artifact-id>",
		Short: "Show one artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			artifact, err := a.client.GetArtifact(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printArtifact(cmd, artifact)
		},
	}
}

// NewWatchCommand creates the watch command
func NewWatchCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <artifact-id>...",
		Short: "Follow artifacts until their migration finishes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, ctx := errgroup.WithContext(cmd.Context())
			for _, id := range args {
				g.Go(func() error {
					return a.watchContext(ctx, cmd, id)
				})
			}
			return g.Wait()
		},
	}
}

// NewListCommand creates the list command
func NewListCommand(a *app) *cobra.Command {
	var (
		limit int
		all   bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List artifacts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				limit = a.cfg.PageSize
			}
			view := viewstate.NewArtifactListView(a.client, viewstate.WithPageSize(limit), viewstate.WithLogger(a.logger))
			view.Refetch(cmd.Context())
			for all && view.HasMore() {
				if !view.LoadMore(cmd.Context()) {
					break
				}
				if view.State().Error != "" {
					break
				}
			}

			state := view.State()
			if state.Error != "" {
				return errors.New(state.Error)
			}
			return a.printList(cmd, state)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "page size (default NECRONET_PAGE_SIZE)")
	cmd.Flags().BoolVar(&all, "all", false, "fetch every page")
	return cmd
}

// NewPlanCommand creates the plan command
func NewPlanCommand(a *app) *cobra.Command {
	var artifactType string

	cmd := &cobra.Command{
		Use:   "plan <file-name>",
		Short: "Ask how the museum would migrate a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t := necronet.ArtifactType(artifactType)
			if artifactType == "" {
				t = validation.ClassifyByExtension(args[0])
			}
			if !t.Valid() {
				return fmt.Errorf("unknown artifact type %q", artifactType)
			}
			plan, err := a.client.GetMigrationPlan(cmd.Context(), args[0], t)
			if err != nil {
				return err
			}
			return a.printPlan(cmd, plan)
		},
	}

	cmd.Flags().StringVarP(&artifactType, "type", "t", "", "artifact type (default: from the file extension)")
	return cmd
}

// NewValidateCommand creates the validate command
func NewValidateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>...",
		Short: "Check files against the upload rules without sending them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				file := &necronet.File{Name: filepath.Base(path)}
				if info, err := os.Stat(path); err == nil {
					file.Size = info.Size()
				} else {
					return fmt.Errorf("stat %s: %w", path, err)
				}
				result := validation.Validate(file)
				if !result.Valid {
					failed++
				}
				if err := a.printValidation(cmd, path, file, result); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files rejected", failed, len(args))
			}
			return nil
		},
	}
}

// NewURLCommand creates the url command
func NewURLCommand(a *app) *cobra.Command {
	var presign bool

	cmd := &cobra.Command{
		Use:   "url <storage-key>",
		Short: "Print the object storage URL of an artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !presign {
				fmt.Fprintln(cmd.OutOrStdout(), storage.NewURLBuilder(a.cfg.StorageConfig()).PublicURL(args[0]))
				return nil
			}
			fetcher, err := storage.NewFetcher(cmd.Context(), a.cfg.StorageConfig())
			if err != nil {
				return err
			}
			u, err := fetcher.PresignURL(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), u)
			return nil
		},
	}

	cmd.Flags().BoolVar(&presign, "presign", false, "print a time-limited signed URL instead")
	return cmd
}

// NewFetchCommand creates the fetch command
func NewFetchCommand(a *app) *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "fetch <artifact-id>",
		Short: "Download the stored bytes of an artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			artifact, err := a.client.GetArtifact(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if outputPath == "" {
				outputPath = artifact.Name
			}

			fetcher, err := storage.NewFetcher(cmd.Context(), a.cfg.StorageConfig())
			if err != nil {
				return err
			}
			out, err := os.Create(outputPath)
			if err != nil {
				return fmt.Errorf("create output file: %w", err)
			}
			defer out.Close()

			n, err := fetcher.Download(cmd.Context(), artifact.StorageKey, out)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s) to %s\n", artifact.Name, validation.FormatFileSize(n), outputPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output path (default: artifact name)")
	return cmd
}

// NewHealthCommand creates the health command
func NewHealthCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the museum is alive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			health, err := a.client.Health(cmd.Context())
			if err != nil {
				return err
			}
			return a.printHealth(cmd, health)
		},
	}
}

func (a *app) watch(cmd *cobra.Command, id string) error {
	return a.watchContext(cmd.Context(), cmd, id)
}

// watchContext polls id until it is terminal, printing each status change.
func (a *app) watchContext(ctx context.Context, cmd *cobra.Command, id string) error {
	p := poller.New(a.client, append(a.cfg.PollerOptions(), poller.WithLogger(a.logger))...)

	var last necronet.Status
	artifact, err := p.Poll(ctx, id, func(artifact *necronet.Artifact) {
		if artifact.Status != last {
			last = artifact.Status
			a.printStatus(cmd, artifact)
		}
	})
	if err != nil {
		return fmt.Errorf("%s: %w", id, err)
	}
	if artifact.Status == necronet.StatusFailed {
		return fmt.Errorf("%s: migration failed", id)
	}
	return nil
}

func openFile(path string) (*necronet.File, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("stat %s: %w", path, err)
	}
	file := &necronet.File{Name: filepath.Base(path), Size: info.Size(), Reader: f}
	return file, func() { f.Close() }, nil
}

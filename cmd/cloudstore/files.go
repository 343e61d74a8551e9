package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"

	"github.com/koustreak/cloudstore/internal/errs"
	"github.com/koustreak/cloudstore/internal/file"
)

func makeUploadCmd(a *app) *cobra.Command {
	var contentType string
	cmd := &cobra.Command{
		Use:   "upload <local-path>",
		Short: "Upload a local file and print the stored metadata as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			localPath := args[0]

			fi, err := os.Stat(localPath)
			if err != nil {
				return errs.Wrap(errs.ErrKindInvalidInput, "cannot read local file", err)
			}
			if fi.IsDir() {
				return errs.Newf(errs.ErrKindInvalidInput, "%s is a directory", localPath)
			}
			if contentType == "" {
				if mt, err := mimetype.DetectFile(localPath); err == nil {
					contentType = mt.String()
				}
			}

			adapter, err := a.adapter(ctx)
			if err != nil {
				return err
			}
			defer adapter.Close()

			data, err := adapter.UploadFile(ctx, &file.Record{
				LocalPath:    localPath,
				OriginalName: filepath.Base(localPath),
				Mimetype:     contentType,
				Size:         fi.Size(),
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(data)
		},
	}
	cmd.Flags().StringVar(&contentType, "content-type", "", "content type (detected when empty)")
	return cmd
}

func makeURLCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "url <filename>",
		Short: "Print the media link of a stored file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			adapter, err := a.adapter(ctx)
			if err != nil {
				return err
			}
			defer adapter.Close()

			url, err := adapter.FileURL(ctx, &file.Record{Filename: args[0]})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), url)
			return err
		},
	}
}

func makeExistsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "exists <filename>",
		Short: "Report whether a file exists under the configured path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			adapter, err := a.adapter(ctx)
			if err != nil {
				return err
			}
			defer adapter.Close()

			exists, err := adapter.FileExists(ctx, args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), exists)
			return err
		},
	}
}

func makeRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <filename>",
		Aliases: []string{"remove"},
		Short:   "Remove a stored file",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			adapter, err := a.adapter(ctx)
			if err != nil {
				return err
			}
			defer adapter.Close()

			if err := adapter.RemoveFile(ctx, &file.Record{Filename: args[0]}); err != nil {
				return err
			}
			a.log.With().Str("filename", args[0]).Logger().Info("file removed")
			return nil
		},
	}
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/attachvault/internal/docstore"
)

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get DOCUMENT_ID",
		Short: "Show a document's metadata and links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.docstore()
			if err != nil {
				return err
			}
			doc, err := client.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printJSON(doc)
		},
	}
}

func newDownloadCmd(a *app) *cobra.Command {
	var dir, rawURL string
	var browser bool
	cmd := &cobra.Command{
		Use:   "download DOCUMENT_ID",
		Short: "Save a document locally",
		Long: `download saves the document into --dir under the name the service reports.
With --browser the download URL is first handed to the system browser and the
buffered fetch only runs if that fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []docstore.Option{docstore.WithSaver(docstore.DirSaver{Dir: dir})}
			if browser {
				opts = append(opts, docstore.WithNavigator(a.systemNavigator()))
			}
			client, err := a.docstore(opts...)
			if err != nil {
				return err
			}
			res, err := client.Download(cmd.Context(), args[0], rawURL)
			if err != nil {
				return err
			}
			if res.Path == "" {
				fmt.Fprintf(a.out, "opened %s\n", res.URL)
				return nil
			}
			fmt.Fprintf(a.out, "saved %s (%d bytes)\n", res.Path, res.Size)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", a.cfg.DownloadDir, "Directory to save into")
	cmd.Flags().StringVar(&rawURL, "url", "", "Use this download URL instead of building one")
	cmd.Flags().BoolVar(&browser, "browser", false, "Try the system browser first")
	return cmd
}

func newViewCmd(a *app) *cobra.Command {
	var rawURL string
	cmd := &cobra.Command{
		Use:   "view DOCUMENT_ID",
		Short: "Open a document in the system viewer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.docstore(docstore.WithNavigator(a.systemNavigator()))
			if err != nil {
				return err
			}
			return client.View(cmd.Context(), args[0], rawURL)
		},
	}
	cmd.Flags().StringVar(&rawURL, "url", "", "Use this view URL instead of building one")
	return cmd
}

func (a *app) systemNavigator() docstore.Navigator {
	if a.navigator != nil {
		return a.navigator
	}
	return docstore.SystemNavigator{}
}

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/persistorai/doctrail/client"
)

func newDocCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doc",
		Short: "Manage tracked documents",
	}
	cmd.AddCommand(docGetCmd())
	cmd.AddCommand(docListCmd())
	cmd.AddCommand(docCreateCmd())
	cmd.AddCommand(docSaveCmd())
	cmd.AddCommand(docDeleteCmd())
	cmd.AddCommand(docDiffCmd())
	return cmd
}

// readAttrs parses attributes from --attrs or --file. YAML is accepted, and
// JSON with it.
func readAttrs(inline, path string) (map[string]any, error) {
	if inline != "" && path != "" {
		return nil, fmt.Errorf("--attrs and --file are mutually exclusive")
	}

	data := []byte(inline)
	if path != "" {
		var err error
		if path == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(path)
		}
		if err != nil {
			return nil, fmt.Errorf("reading attributes: %w", err)
		}
	}

	attrs := map[string]any{}
	if len(data) == 0 {
		return attrs, nil
	}
	if err := yaml.Unmarshal(data, &attrs); err != nil {
		return nil, fmt.Errorf("parse attributes: %w", err)
	}
	return attrs, nil
}

func attrFlags(cmd *cobra.Command, inline, path *string) {
	cmd.Flags().StringVar(inline, "attrs", "", "Attributes as JSON or YAML")
	cmd.Flags().StringVarP(path, "file", "f", "", "Read attributes from a file (- for stdin)")
}

func docGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <type> <id>",
		Short: "Get a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := apiClient.Documents.Get(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if flagFmt == "table" {
				return outputDocuments([]client.Document{*doc})
			}
			return output(doc, doc.ID)
		},
	}
}

func docListCmd() *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list <type>",
		Short: "List documents of a type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, hasMore, err := apiClient.Documents.List(cmd.Context(), args[0], limit, offset)
			if err != nil {
				return err
			}
			if err := outputDocuments(docs); err != nil {
				return err
			}
			if hasMore {
				fmt.Fprintf(os.Stderr, "more results available (use --offset %d)\n", offset+len(docs))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Max results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Offset")
	return cmd
}

func docCreateCmd() *cobra.Command {
	var id, inline, path string
	cmd := &cobra.Command{
		Use:   "create <type>",
		Short: "Create a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			attrs, err := readAttrs(inline, path)
			if err != nil {
				return err
			}
			doc, err := apiClient.Documents.Create(cmd.Context(), args[0], &client.SaveDocumentRequest{ID: id, Attributes: attrs})
			if err != nil {
				return err
			}
			return output(doc, doc.ID)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Document ID (generated when empty)")
	attrFlags(cmd, &inline, &path)
	return cmd
}

func docSaveCmd() *cobra.Command {
	var revision int64
	var inline, path string
	cmd := &cobra.Command{
		Use:   "save <type> <id>",
		Short: "Replace a document's attributes",
		Long: `Replace a document's attributes. The revision defaults to the
document's current revision; pass --revision to guard against concurrent edits.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			attrs, err := readAttrs(inline, path)
			if err != nil {
				return err
			}
			if revision == 0 {
				cur, err := apiClient.Documents.Get(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				revision = cur.Revision
			}
			doc, err := apiClient.Documents.Save(cmd.Context(), args[0], args[1], &client.SaveDocumentRequest{Revision: revision, Attributes: attrs})
			if err != nil {
				if client.IsConflict(err) {
					return fmt.Errorf("document changed since revision %d: %w", revision, err)
				}
				return err
			}
			return output(doc, doc.ID)
		},
	}
	cmd.Flags().Int64Var(&revision, "revision", 0, "Expected current revision")
	attrFlags(cmd, &inline, &path)
	return cmd
}

func docDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <type> <id>",
		Short: "Destroy a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := apiClient.Documents.Delete(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintln(stdout, "deleted")
			return nil
		},
	}
}

func docDiffCmd() *cobra.Command {
	var action, inline, path string
	cmd := &cobra.Command{
		Use:   "diff <type> <id>",
		Short: "Preview the tracked changes a write would record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req *client.SaveDocumentRequest
			if action != "destroy" {
				attrs, err := readAttrs(inline, path)
				if err != nil {
					return err
				}
				req = &client.SaveDocumentRequest{Attributes: attrs}
			}
			changes, err := apiClient.Documents.Diff(cmd.Context(), args[0], args[1], action, req)
			if err != nil {
				return err
			}
			return outputChanges(changes)
		},
	}
	cmd.Flags().StringVar(&action, "action", "update", "Lifecycle event: create|update|destroy")
	attrFlags(cmd, &inline, &path)
	return cmd
}
